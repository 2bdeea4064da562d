// Package main is the entry point for the secrets server.
//
// main only reads configuration and picks implementations:
//
//	DB_DRIVER      sqlite (default) | postgres  → UserRepository
//	SESSION_STORE  memory (default) | redis     → scs.Store
//	GOOGLE_* / GITHUB_*                          → identity providers
//
// Everything else is wired in internal/server.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/joho/godotenv"

	"github.com/sakif/secrets/internal/auth"
	"github.com/sakif/secrets/internal/config"
	"github.com/sakif/secrets/internal/repository"
	"github.com/sakif/secrets/internal/repository/postgres"
	"github.com/sakif/secrets/internal/repository/sqlite"
	"github.com/sakif/secrets/internal/server"
	"github.com/sakif/secrets/internal/session"
)

func main() {
	// A missing .env is fine; real deployments export the variables.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var closers []io.Closer

	// === 1. USER STORE ===
	users, closer, err := openUserStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	closers = append(closers, closer)

	// === 2. SESSION STORE ===
	var store scs.Store
	if cfg.SessionStore == config.StoreRedis {
		client := session.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err := client.Ping(ctx).Err(); err != nil {
			closeAll(closers, logger)
			return fmt.Errorf("connecting to redis at %s: %w", cfg.Redis.Addr, err)
		}
		closers = append(closers, client)
		store = session.NewRedisStore(client)
		logger.Info("session store: redis", slog.String("addr", cfg.Redis.Addr))
	} else {
		logger.Info("session store: memory")
	}

	sessions := session.NewManager(session.ManagerConfig{
		Lifetime: cfg.SessionLifetime,
		Secure:   cfg.IsProduction(),
		Store:    store,
	})

	// === 3. CREDENTIALS ===
	signer, err := auth.NewSessionSigner(cfg.SessionSecret, cfg.SessionLifetime)
	if err != nil {
		closeAll(closers, logger)
		return err
	}
	verifier, err := auth.NewPasswordService(cfg.BcryptCost)
	if err != nil {
		closeAll(closers, logger)
		return err
	}

	// === 4. IDENTITY PROVIDERS ===
	var providers []auth.IdentityProvider
	if cfg.Google.Enabled() {
		providers = append(providers, auth.NewGoogleProvider(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.CallbackURL))
	}
	if cfg.GitHub.Enabled() {
		providers = append(providers, auth.NewGitHubProvider(cfg.GitHub.ClientID, cfg.GitHub.ClientSecret, cfg.GitHub.CallbackURL))
	}
	if len(providers) == 0 {
		logger.Warn("no identity providers configured; only password login is available")
	}

	// === 5. SERVE ===
	srv, err := server.New(server.Config{Addr: cfg.Addr()}, server.Dependencies{
		Users:     users,
		Sessions:  sessions,
		Signer:    signer,
		Verifier:  verifier,
		Providers: providers,
		Closers:   closers,
	}, logger)
	if err != nil {
		closeAll(closers, logger)
		return err
	}

	// Start blocks until SIGINT/SIGTERM.
	return srv.Start()
}

type userStore interface {
	repository.UserRepository
	io.Closer
}

func openUserStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.UserRepository, io.Closer, error) {
	var (
		db  userStore
		err error
	)

	switch cfg.DBDriver {
	case config.DriverPostgres:
		db, err = postgres.New(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, nil, fmt.Errorf("opening postgres: %w", err)
		}
		logger.Info("user store: postgres",
			slog.String("host", cfg.Postgres.Host),
			slog.String("database", cfg.Postgres.Database),
		)

	default:
		if cfg.DBPath != sqlite.MemoryPath {
			// sqlite creates the file but not its directory.
			if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
				return nil, nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		db, err = sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening sqlite: %w", err)
		}
		logger.Info("user store: sqlite", slog.String("path", cfg.DBPath))
	}

	return db, db, nil
}

func closeAll(closers []io.Closer, logger *slog.Logger) {
	for _, c := range closers {
		if err := c.Close(); err != nil {
			logger.Error("closing resource", slog.String("error", err.Error()))
		}
	}
}
