// Package server sets up the HTTP server, router, and all route definitions.
//
// This is the composition root. cmd/server decides which store, session
// backend and identity providers to use; New wires them into services and
// handlers:
//
//	UserRepository ─┬─▶ session.Binder ─┬─▶ SecretGate ──▶ SecretHandler
//	                │                   └─────────────────▶ AuthHandler
//	                ├─▶ LocalIdentity ─────────────────────▶ AuthHandler
//	                └─▶ FederatedIdentity ─────────────────▶ AuthHandler
//
// WHY SEPARATE FROM main.go?
// Tests build the exact production router with an in-memory store and drive
// it through httptest, without reading the environment or opening ports.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/secrets/internal/auth"
	"github.com/sakif/secrets/internal/handler"
	"github.com/sakif/secrets/internal/middleware"
	"github.com/sakif/secrets/internal/repository"
	"github.com/sakif/secrets/internal/service"
	"github.com/sakif/secrets/internal/session"
)

// Config holds the listener settings.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration // 0 means 30s
}

// Dependencies are the components the server is assembled from. The server
// takes ownership of every Closer and closes it after shutdown.
type Dependencies struct {
	Users     repository.UserRepository
	Sessions  *scs.SessionManager
	Signer    *auth.SessionSigner
	Verifier  service.CredentialVerifier
	Providers []auth.IdentityProvider
	Closers   []io.Closer
}

// Server represents the HTTP server and all its dependencies.
type Server struct {
	router  *chi.Mux
	config  Config
	logger  *slog.Logger
	closers []io.Closer
}

// New wires the dependencies into handlers and routes.
func New(cfg Config, deps Dependencies, logger *slog.Logger) (*Server, error) {
	if deps.Users == nil || deps.Sessions == nil || deps.Signer == nil || deps.Verifier == nil {
		return nil, errors.New("server: users, sessions, signer and verifier are required")
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		closers: deps.Closers,
	}
	s.setupRoutes(deps)
	return s, nil
}

// Handler returns the root handler. Tests serve it with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// POST     /login                   → local sign-in
// POST     /register                → local sign-up (signs in)
// GET      /auth/{provider}         → redirect to Google/GitHub
// GET      /auth/{provider}/secrets → OAuth callback
// GET|POST /logout                  → drop the session
// GET      /secrets                 → view own secret
// POST     /submit                  → replace own secret
// GET      /healthz                 → liveness check (no session)
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID : the logger below reads it
//  2. RealIP    : client address from proxy headers
//  3. Logger    : one line per request
//  4. Recoverer : a panic becomes a 500 and is logged with its request ID
//  5. LoadAndSave (routes group only): session in, session out
func (s *Server) setupRoutes(deps Dependencies) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	binder := session.NewBinder(deps.Sessions, deps.Signer, deps.Users, s.logger)

	authHandler := handler.NewAuthHandler(
		service.NewLocalIdentity(deps.Users, deps.Verifier, s.logger),
		service.NewFederatedIdentity(deps.Users, s.logger),
		binder,
		deps.Providers,
		s.logger,
	)
	secretHandler := handler.NewSecretHandler(service.NewSecretGate(binder, deps.Users, s.logger), s.logger)

	s.router.Get("/healthz", handler.HandleHealth)

	s.router.Group(func(r chi.Router) {
		r.Use(binder.LoadAndSave)

		r.Post("/login", authHandler.HandleLogin)
		r.Post("/register", authHandler.HandleRegister)
		r.Get("/logout", authHandler.HandleLogout)
		r.Post("/logout", authHandler.HandleLogout)

		r.Route("/auth/{provider}", func(r chi.Router) {
			r.Get("/", authHandler.HandleProviderLogin)
			r.Get("/secrets", authHandler.HandleProviderCallback)
		})

		r.Get("/secrets", secretHandler.HandleView)
		r.Post("/submit", secretHandler.HandleSubmit)
	})

	for _, p := range deps.Providers {
		s.logger.Info("identity provider enabled", slog.String("provider", p.Name()))
	}
}

// Start serves until SIGINT/SIGTERM, then shuts down gracefully.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new connections
//  2. Wait up to ShutdownTimeout for in-flight requests
//  3. Close the store and session backend
func (s *Server) Start() error {
	defer s.close()

	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", slog.String("addr", s.config.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

func (s *Server) close() {
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			s.logger.Error("closing resource", slog.String("error", err.Error()))
		}
	}
}
