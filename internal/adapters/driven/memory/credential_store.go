package memory

import (
	"context"
	"sync"

	"github.com/custodia-labs/sercha-auth/internal/core/domain"
	"github.com/custodia-labs/sercha-auth/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.CredentialStore = (*CredentialStore)(nil)

// CredentialStore implements driven.CredentialStore as an ordered slice
// scanned linearly. State lives for the lifetime of the process.
type CredentialStore struct {
	mu    sync.RWMutex
	users []*domain.UserRecord
}

// NewCredentialStore creates an empty in-memory CredentialStore
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{}
}

// InsertOne appends a record. The uniqueness check and the append happen
// under the same write lock.
func (s *CredentialStore) InsertOne(ctx context.Context, user *domain.UserRecord) (*domain.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Compared directly: an empty username is unmatchable as a query but
	// still unique as a key.
	for _, u := range s.users {
		if u.Username == user.Username {
			return nil, domain.ErrConflict
		}
	}
	s.users = append(s.users, user.Clone())
	return user.Clone(), nil
}

// FindOne returns a copy of the first matching record
func (s *CredentialStore) FindOne(ctx context.Context, q domain.Query) (*domain.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexOf(q); i >= 0 {
		return s.users[i].Clone(), nil
	}
	return nil, nil
}

// UpdateOne merges patch into the first matching record
func (s *CredentialStore) UpdateOne(ctx context.Context, q domain.Query, patch domain.UserPatch) (domain.UpdateResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.UpdateResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(q)
	if i < 0 {
		return domain.UpdateResult{}, nil
	}
	s.users[i].Apply(patch)
	return domain.UpdateResult{ModifiedCount: 1}, nil
}

// DeleteOne removes the first matching record, if any
func (s *CredentialStore) DeleteOne(ctx context.Context, q domain.Query) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(q); i >= 0 {
		s.users = append(s.users[:i], s.users[i+1:]...)
	}
	return nil
}

// ClearAll drops every record
func (s *CredentialStore) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = nil
	return nil
}

// Len returns the number of stored records
func (s *CredentialStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// indexOf must be called with the lock held
func (s *CredentialStore) indexOf(q domain.Query) int {
	for i, u := range s.users {
		if q.Matches(u) {
			return i
		}
	}
	return -1
}
