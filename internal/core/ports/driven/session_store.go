package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/sercha-auth/internal/core/domain"
)

// SessionStore handles server-side session persistence (memory or Redis)
type SessionStore interface {
	// Save stores a session keyed by its ID
	Save(ctx context.Context, session *domain.Session) error

	// Get retrieves a session by ID. Returns domain.ErrNotFound if absent.
	Get(ctx context.Context, id string) (*domain.Session, error)

	// Delete deletes a session. Deleting an absent session is not an error.
	Delete(ctx context.Context, id string) error
}

// RevocationList holds identifiers revoked before their natural expiry
type RevocationList interface {
	// Add revokes id until expiresAt, after which the entry may be evicted
	Add(ctx context.Context, id string, expiresAt time.Time) error

	// Contains reports whether id has been revoked
	Contains(ctx context.Context, id string) (bool, error)

	// Evict drops entries whose expiry is before now and returns how many
	// were removed. Backends with native expiry may return 0.
	Evict(ctx context.Context, now time.Time) (int, error)
}
