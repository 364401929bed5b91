package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/custodia-labs/sercha-auth/internal/core/domain"
	"github.com/custodia-labs/sercha-auth/internal/core/ports/driven"
	"github.com/redis/go-redis/v9"
)

// Verify interface compliance
var (
	_ driven.SessionStore   = (*SessionStore)(nil)
	_ driven.RevocationList = (*RevocationList)(nil)
)

const (
	// Key prefixes for Redis
	sessionPrefix = "session:"
	revokedPrefix = "revoked:"
)

// SessionStore implements driven.SessionStore using Redis
// Sessions use Redis TTL for automatic expiration
type SessionStore struct {
	client *redis.Client
	prefix string
}

// NewSessionStore creates a new Redis-backed SessionStore
func NewSessionStore(client *redis.Client, prefix string) *SessionStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &SessionStore{client: client, prefix: prefix}
}

// Save stores a session with TTL equal to its lifetime. The lifetime comes
// from the session's own timestamps so the caller's clock decides expiry.
func (s *SessionStore) Save(ctx context.Context, session *domain.Session) error {
	ttl := session.ExpiresAt.Sub(session.CreatedAt)
	if session.CreatedAt.IsZero() {
		ttl = time.Until(session.ExpiresAt)
	}
	if ttl <= 0 {
		// Session already expired, don't save
		return nil
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.client.Set(ctx, s.prefix+sessionPrefix+session.ID, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Get retrieves a session by ID
func (s *SessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	data, err := s.client.Get(ctx, s.prefix+sessionPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

// Delete deletes a session
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.prefix+sessionPrefix+id).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// RevocationList implements driven.RevocationList using Redis keys that
// expire with the revoked identifier's natural expiry
type RevocationList struct {
	client *redis.Client
	prefix string
}

// NewRevocationList creates a new Redis-backed RevocationList
func NewRevocationList(client *redis.Client, prefix string) *RevocationList {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RevocationList{client: client, prefix: prefix}
}

// Add revokes id. The key outlives expiresAt by at least one second.
func (r *RevocationList) Add(ctx context.Context, id string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl < time.Second {
		ttl = time.Second
	}
	if err := r.client.Set(ctx, r.prefix+revokedPrefix+id, expiresAt.Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke %s: %w", id, err)
	}
	return nil
}

// Contains reports whether id is revoked
func (r *RevocationList) Contains(ctx context.Context, id string) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+revokedPrefix+id).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check revocation: %w", err)
	}
	return n > 0, nil
}

// Evict is a no-op; Redis expires revocation keys natively
func (r *RevocationList) Evict(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}
