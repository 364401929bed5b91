package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/custodia-labs/sercha-auth/internal/core/domain"
	"github.com/custodia-labs/sercha-auth/internal/core/ports/driven"
)

// DefaultSessionTTL is used when no session lifetime is configured
const DefaultSessionTTL = 24 * time.Hour

// sweeper is implemented by session stores without native expiry
type sweeper interface {
	Sweep(now time.Time) int
}

// SessionManager creates, resolves and revokes sessions.
// A session is rejected if it is revoked or past its TTL; either check alone is enough.
type SessionManager struct {
	sessions driven.SessionStore
	revoked  driven.RevocationList
	logger   *slog.Logger
	ttl      time.Duration
	now      func() time.Time
}

// SessionManagerConfig holds configuration for the session manager.
type SessionManagerConfig struct {
	Sessions driven.SessionStore
	Revoked  driven.RevocationList
	Logger   *slog.Logger
	TTL      time.Duration    // Session lifetime (default: 24h). Negative issues expired sessions.
	Now      func() time.Time // Clock (default: time.Now)
}

// NewSessionManager creates a new session manager.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultSessionTTL
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &SessionManager{
		sessions: cfg.Sessions,
		revoked:  cfg.Revoked,
		logger:   logger,
		ttl:      ttl,
		now:      now,
	}
}

// TTL returns the configured session lifetime
func (m *SessionManager) TTL() time.Duration {
	return m.ttl
}

// Create starts a new session for username
func (m *SessionManager) Create(ctx context.Context, username string) (*domain.Session, error) {
	now := m.now()
	session := &domain.Session{
		ID:        generateID(),
		Username:  username,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}

	if err := m.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return session, nil
}

// Resolve returns the live session for id.
// An empty id is domain.ErrNoSession; a revoked, expired or unknown one is
// domain.ErrUnauthorized. Any other error is an operational fault.
func (m *SessionManager) Resolve(ctx context.Context, id string) (*domain.Session, error) {
	if id == "" {
		return nil, domain.ErrNoSession
	}

	revoked, err := m.revoked.Contains(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return nil, domain.ErrUnauthorized
	}

	session, err := m.sessions.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	if session.ExpiredAt(m.now()) {
		_ = m.sessions.Delete(ctx, id)
		return nil, domain.ErrUnauthorized
	}

	return session, nil
}

// Revoke invalidates id. Revoking an unknown or already revoked id is not an error.
func (m *SessionManager) Revoke(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}

	expiresAt := m.now().Add(m.ttl)
	session, err := m.sessions.Get(ctx, id)
	switch {
	case err == nil:
		expiresAt = session.ExpiresAt
	case errors.Is(err, domain.ErrNotFound):
	default:
		return fmt.Errorf("get session: %w", err)
	}

	// Revocation goes first so the id is rejected even if the delete fails
	if err := m.revoked.Add(ctx, id, expiresAt); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}

	if err := m.sessions.Delete(ctx, id); err != nil {
		m.logger.Warn("failed to delete revoked session", "error", err)
	}
	return nil
}

// Evict drops revocation entries and stored sessions past their expiry
func (m *SessionManager) Evict(ctx context.Context) (int, error) {
	now := m.now()

	evicted, err := m.revoked.Evict(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("evict revocations: %w", err)
	}

	if sw, ok := m.sessions.(sweeper); ok {
		evicted += sw.Sweep(now)
	}
	return evicted, nil
}

// Run evicts expired entries every interval until ctx is cancelled.
func (m *SessionManager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Info("session eviction starting", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("session eviction stopped")
			return
		case <-ticker.C:
			n, err := m.Evict(ctx)
			if err != nil {
				m.logger.Error("session eviction failed", "error", err)
				continue
			}
			if n > 0 {
				m.logger.Debug("evicted expired sessions", "count", n)
			}
		}
	}
}

// generateID creates a random session identifier
func generateID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
