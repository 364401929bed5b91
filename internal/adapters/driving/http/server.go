package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/custodia-labs/sercha-auth/docs"
	"github.com/custodia-labs/sercha-auth/internal/core/ports/driving"
)

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger
type PingFunc func(ctx context.Context) error

// Ping calls f(ctx)
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	version    string
	logger     *slog.Logger

	// Session cookie settings
	sessionTTL   time.Duration
	secureCookie bool

	allowedOrigins []string

	// Services
	authService driving.AuthService

	// Infrastructure health checks, keyed by backend name
	checks map[string]Pinger
}

// Config holds server configuration
type Config struct {
	Host         string
	Port         int
	Version      string
	SessionTTL   time.Duration // Drives the session cookie Max-Age
	SecureCookie bool          // Set the Secure attribute on the session cookie

	// AllowedOrigins enables CORS for the listed origins ("*" for any)
	AllowedOrigins []string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:       "0.0.0.0",
		Port:       3001,
		Version:    "dev",
		SessionTTL: time.Hour,
	}
}

// NewServer creates a new HTTP server
func NewServer(
	cfg Config,
	authService driving.AuthService,
	checks map[string]Pinger, // can be nil
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router:       http.NewServeMux(),
		version:      cfg.Version,
		logger:       logger,
		sessionTTL:   cfg.SessionTTL,
		secureCookie: cfg.SecureCookie,
		authService:  authService,
		checks:       checks,

		allowedOrigins: cfg.AllowedOrigins,
	}

	docs.SwaggerInfo.Version = cfg.Version

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.setupRoutes()
	return s
}

// Handler returns the router wrapped in the request middleware chain
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	h = NewRecoveryMiddleware(s.logger).Handler(h)
	if len(s.allowedOrigins) > 0 {
		h = NewCORSMiddleware(s.allowedOrigins).Handler(h)
	}
	h = NewLoggingMiddleware(s.logger).Handler(h)
	h = NewRequestIDMiddleware().Handler(h)
	return h
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	sessionMiddleware := NewSessionMiddleware(s.authService)
	authMiddleware := NewAuthMiddleware(s.authService)

	// Health endpoints
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)
	s.router.HandleFunc("GET /swagger/doc.json", s.handleSwaggerDoc)

	// Cookie session endpoints
	s.router.HandleFunc("POST /session/signup", s.handleSessionSignup)
	s.router.HandleFunc("POST /session/login", s.handleSessionLogin)
	s.router.Handle("GET /session/login",
		sessionMiddleware.Authenticate(http.HandlerFunc(s.handleWhoami)))
	s.router.Handle("POST /session/secure",
		sessionMiddleware.Authenticate(http.HandlerFunc(s.handleSessionSecure)))
	s.router.HandleFunc("POST /session/logout", s.handleSessionLogout)

	// Bearer token endpoints
	s.router.HandleFunc("POST /jwt/signup", s.handleJWTSignup)
	s.router.HandleFunc("POST /jwt/login", s.handleJWTLogin)
	s.router.Handle("GET /jwt/login",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleWhoami)))
	s.router.Handle("POST /jwt/secure",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleJWTSecure)))
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}
