package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/sercha-auth/internal/core/domain"
	"github.com/custodia-labs/sercha-auth/internal/core/ports/driven"
)

// DefaultStoreTimeout bounds each credential store call
const DefaultStoreTimeout = 5 * time.Second

// Ensure GuardedStore implements CredentialStore
var _ driven.CredentialStore = (*GuardedStore)(nil)

// GuardedStore bounds every call to the wrapped store with a timeout.
// Failures other than domain.ErrConflict surface as domain.ErrStoreUnavailable
// wrapping the cause.
type GuardedStore struct {
	inner   driven.CredentialStore
	timeout time.Duration
}

// NewGuardedStore wraps inner. A non-positive timeout uses DefaultStoreTimeout.
func NewGuardedStore(inner driven.CredentialStore, timeout time.Duration) *GuardedStore {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return &GuardedStore{inner: inner, timeout: timeout}
}

func (g *GuardedStore) InsertOne(ctx context.Context, user *domain.UserRecord) (*domain.UserRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	out, err := g.inner.InsertOne(ctx, user)
	return out, g.wrap("insert", err)
}

func (g *GuardedStore) FindOne(ctx context.Context, q domain.Query) (*domain.UserRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	out, err := g.inner.FindOne(ctx, q)
	return out, g.wrap("find", err)
}

func (g *GuardedStore) UpdateOne(ctx context.Context, q domain.Query, patch domain.UserPatch) (domain.UpdateResult, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	out, err := g.inner.UpdateOne(ctx, q, patch)
	return out, g.wrap("update", err)
}

func (g *GuardedStore) DeleteOne(ctx context.Context, q domain.Query) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	return g.wrap("delete", g.inner.DeleteOne(ctx, q))
}

func (g *GuardedStore) ClearAll(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	return g.wrap("clear", g.inner.ClearAll(ctx))
}

func (g *GuardedStore) wrap(op string, err error) error {
	if err == nil || errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrStoreUnavailable, op, err)
}
