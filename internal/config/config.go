// Package config loads the server configuration from environment variables.
//
// Variables are parsed with caarlos0/env into a tagged struct; field-level
// rules live in `validate` tags (go-playground/validator) and the rules that
// span several fields live in Validate. cmd/server loads an optional .env
// file before calling Load, so local development needs no exported variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config is the complete server configuration.
type Config struct {
	Port     int    `env:"PORT"      envDefault:"3000"        validate:"min=1,max=65535"`
	AppEnv   string `env:"APP_ENV"   envDefault:"development" validate:"oneof=development production test"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"        validate:"oneof=debug info warn error DEBUG INFO WARN ERROR"`

	DBDriver string         `env:"DB_DRIVER" envDefault:"sqlite"          validate:"oneof=sqlite postgres"`
	DBPath   string         `env:"DB_PATH"   envDefault:"data/secrets.db"`
	Postgres PostgresConfig `envPrefix:"PG_"`

	SessionSecret   string        `env:"SESSION_SECRET"   validate:"required,min=16"`
	SessionLifetime time.Duration `env:"SESSION_LIFETIME" envDefault:"24h"    validate:"gt=0"`
	SessionStore    string        `env:"SESSION_STORE"    envDefault:"memory" validate:"oneof=memory redis"`
	Redis           RedisConfig   `envPrefix:"REDIS_"`

	BcryptCost int `env:"BCRYPT_COST" envDefault:"10" validate:"min=4,max=31"`

	Google OAuthClientConfig `envPrefix:"GOOGLE_"`
	GitHub OAuthClientConfig `envPrefix:"GITHUB_"`
}

// PostgresConfig holds the PG_* connection variables.
type PostgresConfig struct {
	User     string `env:"USER"`
	Password string `env:"PASSWORD"`
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432" validate:"min=1,max=65535"`
	Database string `env:"DATABASE"`
}

type RedisConfig struct {
	Addr     string `env:"ADDR"     envDefault:"localhost:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB"       envDefault:"0" validate:"min=0"`
}

// OAuthClientConfig holds one identity provider's registration.
// A provider with no client ID is disabled.
type OAuthClientConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	CallbackURL  string `env:"CALLBACK_URL" validate:"omitempty,url"`
}

func (o OAuthClientConfig) Enabled() bool {
	return o.ClientID != ""
}

// Load parses the process environment and validates the result.
func Load() (*Config, error) {
	return LoadFrom(env.ToMap(os.Environ()))
}

// LoadFrom parses the given variables instead of the process environment.
// Tests use it to stay independent of whatever the shell exports.
func LoadFrom(environ map[string]string) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate rejects inconsistent settings. All problems are reported at once.
func (c *Config) Validate() error {
	var errs []error

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Errorf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = append(errs, err)
		}
	}

	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			errs = append(errs, errors.New("DB_PATH is required for the sqlite driver"))
		}
	case DriverPostgres:
		if c.Postgres.Host == "" || c.Postgres.Database == "" || c.Postgres.User == "" {
			errs = append(errs, errors.New("PG_HOST, PG_DATABASE and PG_USER are required for the postgres driver"))
		}
	}

	if c.SessionStore == StoreRedis && c.Redis.Addr == "" {
		errs = append(errs, errors.New("REDIS_ADDR is required for the redis session store"))
	}

	for name, p := range map[string]OAuthClientConfig{"GOOGLE": c.Google, "GITHUB": c.GitHub} {
		if p.Enabled() && (p.ClientSecret == "" || p.CallbackURL == "") {
			errs = append(errs, fmt.Errorf("%s_CLIENT_SECRET and %s_CALLBACK_URL are required when %s_CLIENT_ID is set", name, name, name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// IsProduction reports whether APP_ENV is production. Production turns on
// Secure session cookies and TLS to PostgreSQL.
func (c *Config) IsProduction() bool {
	return c.AppEnv == EnvProduction
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// SlogLevel converts LOG_LEVEL for slog.HandlerOptions.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// PostgresDSN builds the connection URL. Production requires TLS.
func (c *Config) PostgresDSN() string {
	sslmode := "disable"
	if c.IsProduction() {
		sslmode = "require"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Postgres.User, c.Postgres.Password),
		Host:     net.JoinHostPort(c.Postgres.Host, strconv.Itoa(c.Postgres.Port)),
		Path:     "/" + c.Postgres.Database,
		RawQuery: url.Values{"sslmode": {sslmode}}.Encode(),
	}
	return u.String()
}
