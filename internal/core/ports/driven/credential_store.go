package driven

import (
	"context"

	"github.com/custodia-labs/sercha-auth/internal/core/domain"
)

// CredentialStore is the uniform persistence contract for user records.
// Every adapter must pass the storetest conformance suite.
type CredentialStore interface {
	// InsertOne stores a new record. Returns domain.ErrConflict if the
	// username is taken; the check is atomic in the backend.
	InsertOne(ctx context.Context, user *domain.UserRecord) (*domain.UserRecord, error)

	// FindOne returns the first matching record, or nil with a nil error
	// when nothing matches.
	FindOne(ctx context.Context, q domain.Query) (*domain.UserRecord, error)

	// UpdateOne merges patch into the first matching record.
	// A miss returns ModifiedCount 0, not an error.
	UpdateOne(ctx context.Context, q domain.Query, patch domain.UserPatch) (domain.UpdateResult, error)

	// DeleteOne removes at most one matching record. Idempotent.
	DeleteOne(ctx context.Context, q domain.Query) error

	// ClearAll removes every record (tests and ops only)
	ClearAll(ctx context.Context) error
}
