package main

// @title           Sercha Auth API
// @version         1.0
// @description     Username/password authentication with server-side sessions and JWT bearer tokens.

// @contact.name   Sercha OSS
// @contact.url    https://github.com/custodia-labs/sercha-auth/issues

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:3001
// @BasePath  /
// @schemes   http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT Bearer token. Format: "Bearer {token}"

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/sercha-auth/internal/adapters/driven/auth"
	"github.com/custodia-labs/sercha-auth/internal/adapters/driven/memory"
	redisadapter "github.com/custodia-labs/sercha-auth/internal/adapters/driven/redis"
	"github.com/custodia-labs/sercha-auth/internal/adapters/driven/relational"
	"github.com/custodia-labs/sercha-auth/internal/adapters/driving/http"
	"github.com/custodia-labs/sercha-auth/internal/config"
	"github.com/custodia-labs/sercha-auth/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-auth/internal/core/services"
	"github.com/custodia-labs/sercha-auth/internal/worker"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	if cfg.Version == "dev" {
		cfg.Version = version
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("sercha-auth exited", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	logger.Info("sercha-auth starting",
		"version", cfg.Version,
		"store_backend", cfg.StoreBackend,
		"session_backend", cfg.SessionBackend)

	checks := make(map[string]http.Pinger)

	// ===== Redis (when any backend needs it) =====
	var redisClient *redis.Client
	if cfg.UsesRedis() {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		checks["redis"] = http.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
		logger.Info("redis connected")
	}

	// ===== Credential store =====
	var store driven.CredentialStore
	switch cfg.StoreBackend {
	case config.BackendRedis:
		store = redisadapter.NewCredentialStore(redisClient, cfg.RedisPrefix)
	case config.BackendPostgres, config.BackendSQLite:
		db, err := connectRelational(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		checks[cfg.StoreBackend] = db
		store = relational.NewCredentialStore(db)
		logger.Info("relational store ready", "driver", db.Dialect())
	default:
		store = memory.NewCredentialStore()
	}
	store = services.NewGuardedStore(store, cfg.StoreTimeout)

	// ===== Sessions and revocations =====
	var (
		sessionStore driven.SessionStore
		revoked      driven.RevocationList
	)
	if cfg.SessionBackend == config.BackendRedis {
		sessionStore = redisadapter.NewSessionStore(redisClient, cfg.RedisPrefix)
		revoked = redisadapter.NewRevocationList(redisClient, cfg.RedisPrefix)
	} else {
		sessionStore = memory.NewSessionStore()
		revoked = memory.NewRevocationList()
	}

	sessions := services.NewSessionManager(services.SessionManagerConfig{
		Sessions: sessionStore,
		Revoked:  revoked,
		Logger:   logger,
		TTL:      cfg.SessionTTL,
	})

	// ===== Hashing pool =====
	pool := worker.NewPool(worker.PoolConfig{
		Logger:      logger,
		Concurrency: cfg.HashWorkers,
	})
	// Outlives the signal so requests drained during shutdown can still hash
	if err := pool.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("start hash pool: %w", err)
	}
	defer pool.Stop()
	checks["hash_pool"] = pool

	hasher := auth.NewHasherWithCost(cfg.HashCost, pool)
	issuer := auth.NewTokenIssuer(cfg.JWTSecret, auth.WithTTL(cfg.TokenTTL))

	authService := services.NewAuthService(store, hasher, issuer, sessions, logger)

	server := http.NewServer(http.Config{
		Host:           cfg.Host,
		Port:           cfg.Port,
		Version:        cfg.Version,
		SessionTTL:     cfg.SessionTTL,
		SecureCookie:   cfg.SecureCookie,
		AllowedOrigins: cfg.AllowedOrigins,
	}, authService, checks, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx)
	})
	g.Go(func() error {
		sessions.Run(gctx, cfg.EvictionInterval)
		return nil
	})

	err := g.Wait()
	logger.Info("sercha-auth stopped")
	return err
}

func connectRelational(ctx context.Context, cfg config.Config) (*relational.DB, error) {
	dbCfg := relational.DefaultConfig(relational.DriverPostgres, cfg.DatabaseURL)
	if cfg.StoreBackend == config.BackendSQLite {
		dbCfg = relational.DefaultConfig(relational.DriverSQLite, cfg.SQLitePath)
	}
	dbCfg.MaxOpenConns = cfg.DBMaxOpenConns
	dbCfg.MaxIdleConns = cfg.DBMaxIdleConns
	dbCfg.ConnMaxLifetime = cfg.DBConnMaxLifetime
	dbCfg.ConnMaxIdleTime = cfg.DBConnMaxIdleTime

	db, err := relational.Connect(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.StoreBackend, err)
	}
	if err := db.InitSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return db, nil
}
