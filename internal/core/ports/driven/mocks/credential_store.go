package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/sercha-auth/internal/core/domain"
	"github.com/custodia-labs/sercha-auth/internal/core/ports/driven"
)

// Ensure MockCredentialStore implements CredentialStore
var _ driven.CredentialStore = (*MockCredentialStore)(nil)

// MockCredentialStore is a map-backed CredentialStore with behavior injection.
// Hooks, when set, replace the default behavior of the matching method.
type MockCredentialStore struct {
	mu    sync.RWMutex
	users map[string]*domain.UserRecord

	InsertFn func(ctx context.Context, user *domain.UserRecord) (*domain.UserRecord, error)
	FindFn   func(ctx context.Context, q domain.Query) (*domain.UserRecord, error)
	UpdateFn func(ctx context.Context, q domain.Query, patch domain.UserPatch) (domain.UpdateResult, error)
}

// NewMockCredentialStore creates a new MockCredentialStore
func NewMockCredentialStore() *MockCredentialStore {
	return &MockCredentialStore{users: make(map[string]*domain.UserRecord)}
}

func (m *MockCredentialStore) InsertOne(ctx context.Context, user *domain.UserRecord) (*domain.UserRecord, error) {
	if m.InsertFn != nil {
		return m.InsertFn(ctx, user)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.Username]; ok {
		return nil, domain.ErrConflict
	}
	m.users[user.Username] = user.Clone()
	return user.Clone(), nil
}

func (m *MockCredentialStore) FindOne(ctx context.Context, q domain.Query) (*domain.UserRecord, error) {
	if m.FindFn != nil {
		return m.FindFn(ctx, q)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if q.Matches(u) {
			return u.Clone(), nil
		}
	}
	return nil, nil
}

func (m *MockCredentialStore) UpdateOne(ctx context.Context, q domain.Query, patch domain.UserPatch) (domain.UpdateResult, error) {
	if m.UpdateFn != nil {
		return m.UpdateFn(ctx, q, patch)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if q.Matches(u) {
			u.Apply(patch)
			return domain.UpdateResult{ModifiedCount: 1}, nil
		}
	}
	return domain.UpdateResult{}, nil
}

func (m *MockCredentialStore) DeleteOne(ctx context.Context, q domain.Query) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, u := range m.users {
		if q.Matches(u) {
			delete(m.users, name)
			return nil
		}
	}
	return nil
}

func (m *MockCredentialStore) ClearAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = make(map[string]*domain.UserRecord)
	return nil
}

// Helper methods for testing

func (m *MockCredentialStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users)
}
