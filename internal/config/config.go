package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store backends selectable with STORE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

var (
	ErrUnknownBackend = errors.New("unknown backend")
	ErrMissingSetting = errors.New("missing setting")
)

// Config holds process configuration read from the environment.
type Config struct {
	Host    string `env:"HOST" envDefault:"0.0.0.0"`
	Port    int    `env:"PORT" envDefault:"3001"`
	Version string `env:"VERSION" envDefault:"dev"`

	StoreBackend   string        `env:"STORE_BACKEND" envDefault:"memory"`
	SessionBackend string        `env:"SESSION_BACKEND" envDefault:"memory"`
	StoreTimeout   time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`

	DatabaseURL       string        `env:"DATABASE_URL"`
	SQLitePath        string        `env:"SQLITE_PATH" envDefault:"file:sercha-auth.db?_pragma=busy_timeout(5000)"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
	DBConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"1m"`

	RedisURL    string `env:"REDIS_URL"`
	RedisPrefix string `env:"REDIS_PREFIX" envDefault:"sercha:"`

	SessionTTL       time.Duration `env:"SESSION_TTL" envDefault:"1h"`
	TokenTTL         time.Duration `env:"TOKEN_TTL" envDefault:"1h"`
	EvictionInterval time.Duration `env:"EVICTION_INTERVAL" envDefault:"1m"`
	JWTSecret        string        `env:"JWT_SECRET" envDefault:"development-secret-change-in-production"`
	HashCost         int           `env:"HASH_COST" envDefault:"10"`
	HashWorkers      int           `env:"HASH_WORKERS" envDefault:"4"`

	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string   `env:"LOG_FORMAT" envDefault:"text"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	SecureCookie   bool     `env:"SECURE_COOKIE" envDefault:"false"`
}

// ParseEnv populates target from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load reads and validates Config from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks backend names and that each selected backend has the
// connection settings it needs.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory, BackendSQLite:
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("%w: REDIS_URL is required for store backend %q", ErrMissingSetting, c.StoreBackend)
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: DATABASE_URL is required for store backend %q", ErrMissingSetting, c.StoreBackend)
		}
	default:
		return fmt.Errorf("%w: STORE_BACKEND=%q", ErrUnknownBackend, c.StoreBackend)
	}

	switch c.SessionBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("%w: REDIS_URL is required for session backend %q", ErrMissingSetting, c.SessionBackend)
		}
	default:
		return fmt.Errorf("%w: SESSION_BACKEND=%q", ErrUnknownBackend, c.SessionBackend)
	}

	if c.SQLitePath == "" && c.StoreBackend == BackendSQLite {
		return fmt.Errorf("%w: SQLITE_PATH", ErrMissingSetting)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("invalid SESSION_TTL %s", c.SessionTTL)
	}
	return nil
}

// UsesRedis reports whether any selected backend needs a Redis client.
func (c Config) UsesRedis() bool {
	return c.StoreBackend == BackendRedis || c.SessionBackend == BackendRedis
}

// SlogLevel maps LOG_LEVEL to a slog.Level. Unknown values mean info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
