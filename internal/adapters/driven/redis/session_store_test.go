package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-auth/internal/core/domain"
)

// setupTestSessionStore creates a test Redis client and SessionStore
func setupTestSessionStore(t *testing.T) (*SessionStore, *miniredis.Miniredis, func()) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	store := NewSessionStore(client, "")

	return store, mr, func() {
		client.Close()
		mr.Close()
	}
}

// createTestSession creates a test session with default values
func createTestSession(username string) *domain.Session {
	return &domain.Session{
		ID:        "session-123",
		Username:  username,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}
}

func TestNewSessionStore(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	store := NewSessionStore(client, "")

	if store == nil {
		t.Fatal("expected non-nil SessionStore")
	}
	if store.prefix != DefaultPrefix {
		t.Errorf("expected default prefix, got %q", store.prefix)
	}
}

func TestSessionStore_Save_Success(t *testing.T) {
	store, _, cleanup := setupTestSessionStore(t)
	defer cleanup()

	ctx := context.Background()
	session := createTestSession("foo")

	err := store.Save(ctx, session)
	if err != nil {
		t.Fatalf("unexpected error saving session: %v", err)
	}

	retrieved, err := store.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("failed to retrieve saved session: %v", err)
	}

	if retrieved.ID != session.ID {
		t.Errorf("expected ID %s, got %s", session.ID, retrieved.ID)
	}
	if retrieved.Username != session.Username {
		t.Errorf("expected Username %s, got %s", session.Username, retrieved.Username)
	}
}

func TestSessionStore_Save_SetsTTL(t *testing.T) {
	store, mr, cleanup := setupTestSessionStore(t)
	defer cleanup()

	ctx := context.Background()
	session := createTestSession("foo")
	require.NoError(t, store.Save(ctx, session))

	ttl := mr.TTL(DefaultPrefix + sessionPrefix + session.ID)
	assert.Greater(t, ttl, 23*time.Hour)

	mr.FastForward(25 * time.Hour)

	_, err := store.Get(ctx, session.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSessionStore_Save_TTLFollowsSessionClock(t *testing.T) {
	store, mr, cleanup := setupTestSessionStore(t)
	defer cleanup()

	ctx := context.Background()
	created := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	session := &domain.Session{
		ID:        "fixed-clock",
		Username:  "foo",
		CreatedAt: created,
		ExpiresAt: created.Add(2 * time.Hour),
	}
	require.NoError(t, store.Save(ctx, session))

	assert.Equal(t, 2*time.Hour, mr.TTL(DefaultPrefix+sessionPrefix+session.ID))

	got, err := store.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "foo", got.Username)
}

func TestSessionStore_Save_ExpiredSession(t *testing.T) {
	store, _, cleanup := setupTestSessionStore(t)
	defer cleanup()

	ctx := context.Background()
	session := createTestSession("foo")
	session.ExpiresAt = time.Now().Add(-1 * time.Hour) // Already expired

	err := store.Save(ctx, session)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Session should not be saved since it's already expired
	_, err = store.Get(ctx, session.ID)
	if err != domain.ErrNotFound {
		t.Errorf("expected ErrNotFound for expired session, got %v", err)
	}
}

func TestSessionStore_Delete(t *testing.T) {
	store, _, cleanup := setupTestSessionStore(t)
	defer cleanup()

	ctx := context.Background()
	session := createTestSession("foo")
	require.NoError(t, store.Save(ctx, session))

	require.NoError(t, store.Delete(ctx, session.ID))
	// Deleting twice is fine
	require.NoError(t, store.Delete(ctx, session.ID))

	_, err := store.Get(ctx, session.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSessionStore_Get_CorruptData(t *testing.T) {
	store, mr, cleanup := setupTestSessionStore(t)
	defer cleanup()

	require.NoError(t, mr.Set(DefaultPrefix+sessionPrefix+"bad", "not json"))

	_, err := store.Get(context.Background(), "bad")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}

func TestRevocationList_AddContains(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	list := NewRevocationList(client, "")

	revoked, err := list.Contains(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, list.Add(ctx, "s1", time.Now().Add(time.Hour)))

	revoked, err = list.Contains(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, revoked)

	n, err := list.Evict(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRevocationList_ExpiresNatively(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	list := NewRevocationList(client, "")

	// Already past its natural expiry: kept for the minimum TTL
	require.NoError(t, list.Add(ctx, "old", time.Now().Add(-time.Minute)))
	revoked, err := list.Contains(ctx, "old")
	require.NoError(t, err)
	assert.True(t, revoked)

	mr.FastForward(2 * time.Second)

	revoked, err = list.Contains(ctx, "old")
	require.NoError(t, err)
	assert.False(t, revoked)
}
