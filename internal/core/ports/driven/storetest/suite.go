// Package storetest holds the conformance suite every driven.CredentialStore
// adapter runs. An adapter is interchangeable only if it passes unchanged.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/sercha-auth/internal/core/domain"
	"github.com/custodia-labs/sercha-auth/internal/core/ports/driven"
)

// Concurrency is the number of parallel duplicate inserts in the race test
const Concurrency = 16

// Suite exercises the CredentialStore contract.
// NewStore must return a store backed by fresh or clearable state.
type Suite struct {
	suite.Suite

	NewStore func(t *testing.T) driven.CredentialStore

	ctx   context.Context
	store driven.CredentialStore
}

// Run executes the suite against the store returned by newStore
func Run(t *testing.T, newStore func(t *testing.T) driven.CredentialStore) {
	suite.Run(t, &Suite{NewStore: newStore})
}

func (s *Suite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.NewStore(s.T())
	s.Require().NoError(s.store.ClearAll(s.ctx))
}

func (s *Suite) TestInsertAndFind() {
	none, err := s.store.FindOne(s.ctx, domain.Query{Field: domain.FieldUsername, Value: "nobody"})
	s.Require().NoError(err)
	s.Nil(none)

	_, err = s.store.InsertOne(s.ctx, &domain.UserRecord{Username: "bar", Token: "abc", Hash: "qux"})
	s.Require().NoError(err)

	byUsername, err := s.store.FindOne(s.ctx, domain.ByUsername("bar"))
	s.Require().NoError(err)
	s.Require().NotNil(byUsername)
	s.Equal("bar", byUsername.Username)
	s.Equal("qux", byUsername.Hash)

	byToken, err := s.store.FindOne(s.ctx, domain.ByToken("abc"))
	s.Require().NoError(err)
	s.Require().NotNil(byToken)
	s.Equal("bar", byToken.Username)
	s.Equal("qux", byToken.Hash)
}

func (s *Suite) TestInsertReturnsStoredRecord() {
	exp := time.Unix(1700000000, 0)
	stored, err := s.store.InsertOne(s.ctx, &domain.UserRecord{Username: "foo", Hash: "bar", ExpiresAt: &exp})
	s.Require().NoError(err)
	s.Require().NotNil(stored)
	s.Equal("foo", stored.Username)
	s.Equal("bar", stored.Hash)
	s.Empty(stored.Token)
	s.Require().NotNil(stored.ExpiresAt)
	s.Equal(exp.Unix(), stored.ExpiresAt.Unix())
}

func (s *Suite) TestUpdate() {
	_, err := s.store.InsertOne(s.ctx, &domain.UserRecord{Username: "foo", Hash: "bar"})
	s.Require().NoError(err)

	res, err := s.store.UpdateOne(s.ctx, domain.ByUsername("foo"), domain.UserPatch{Token: ptr("123")})
	s.Require().NoError(err)
	s.Equal(1, res.ModifiedCount)

	found, err := s.store.FindOne(s.ctx, domain.ByUsername("foo"))
	s.Require().NoError(err)
	s.Require().NotNil(found)
	s.Equal("bar", found.Hash)
	s.Equal("123", found.Token)
}

func (s *Suite) TestUpdateNotFound() {
	res, err := s.store.UpdateOne(s.ctx, domain.ByUsername("foo"), domain.UserPatch{Token: ptr("baz")})
	s.Require().NoError(err)
	s.Equal(0, res.ModifiedCount)

	found, err := s.store.FindOne(s.ctx, domain.ByToken("baz"))
	s.Require().NoError(err)
	s.Nil(found)
}

func (s *Suite) TestUpdateByToken() {
	_, err := s.store.InsertOne(s.ctx, &domain.UserRecord{Username: "foo", Hash: "bar", Token: "old"})
	s.Require().NoError(err)

	exp := time.Unix(1800000000, 0)
	res, err := s.store.UpdateOne(s.ctx, domain.ByToken("old"), domain.UserPatch{Token: ptr("new"), ExpiresAt: &exp})
	s.Require().NoError(err)
	s.Equal(1, res.ModifiedCount)

	stale, err := s.store.FindOne(s.ctx, domain.ByToken("old"))
	s.Require().NoError(err)
	s.Nil(stale)

	found, err := s.store.FindOne(s.ctx, domain.ByToken("new"))
	s.Require().NoError(err)
	s.Require().NotNil(found)
	s.Equal("foo", found.Username)
	s.Require().NotNil(found.ExpiresAt)
	s.Equal(exp.Unix(), found.ExpiresAt.Unix())

	byExpiry, err := s.store.FindOne(s.ctx, domain.Query{Field: domain.FieldExpiresAt, Value: strconv.FormatInt(exp.Unix(), 10)})
	s.Require().NoError(err)
	s.Require().NotNil(byExpiry)
	s.Equal("foo", byExpiry.Username)
}

func (s *Suite) TestDelete() {
	_, err := s.store.InsertOne(s.ctx, &domain.UserRecord{Username: "foo", Hash: "bar", Token: "t1"})
	s.Require().NoError(err)
	s.Require().NoError(s.store.DeleteOne(s.ctx, domain.ByUsername("foo")))

	found, err := s.store.FindOne(s.ctx, domain.ByUsername("foo"))
	s.Require().NoError(err)
	s.Nil(found)

	byToken, err := s.store.FindOne(s.ctx, domain.ByToken("t1"))
	s.Require().NoError(err)
	s.Nil(byToken)
}

func (s *Suite) TestDeleteMissingIsNoop() {
	s.Require().NoError(s.store.DeleteOne(s.ctx, domain.ByUsername("ghost")))
	s.Require().NoError(s.store.DeleteOne(s.ctx, domain.ByUsername("ghost")))

	found, err := s.store.FindOne(s.ctx, domain.ByUsername("ghost"))
	s.Require().NoError(err)
	s.Nil(found)
}

func (s *Suite) TestDeleteRemovesAtMostOne() {
	_, err := s.store.InsertOne(s.ctx, &domain.UserRecord{Username: "a", Hash: "same"})
	s.Require().NoError(err)
	_, err = s.store.InsertOne(s.ctx, &domain.UserRecord{Username: "b", Hash: "same"})
	s.Require().NoError(err)

	s.Require().NoError(s.store.DeleteOne(s.ctx, domain.Query{Field: domain.FieldHash, Value: "same"}))

	remaining, err := s.store.FindOne(s.ctx, domain.Query{Field: domain.FieldHash, Value: "same"})
	s.Require().NoError(err)
	s.NotNil(remaining)
}

func (s *Suite) TestInsertDuplicateConflicts() {
	_, err := s.store.InsertOne(s.ctx, &domain.UserRecord{Username: "foo", Hash: "first"})
	s.Require().NoError(err)

	_, err = s.store.InsertOne(s.ctx, &domain.UserRecord{Username: "foo", Hash: "second"})
	s.Require().ErrorIs(err, domain.ErrConflict)

	found, err := s.store.FindOne(s.ctx, domain.ByUsername("foo"))
	s.Require().NoError(err)
	s.Require().NotNil(found)
	s.Equal("first", found.Hash)
}

func (s *Suite) TestInsertEmptyUsernameIsStillUnique() {
	_, err := s.store.InsertOne(s.ctx, &domain.UserRecord{Username: "", Hash: "first"})
	s.Require().NoError(err)

	_, err = s.store.InsertOne(s.ctx, &domain.UserRecord{Username: "", Hash: "second"})
	s.Require().ErrorIs(err, domain.ErrConflict)
}

func (s *Suite) TestSharedTokenFindsFirstInserted() {
	_, err := s.store.InsertOne(s.ctx, &domain.UserRecord{Username: "a", Hash: "h", Token: "t"})
	s.Require().NoError(err)
	_, err = s.store.InsertOne(s.ctx, &domain.UserRecord{Username: "b", Hash: "h", Token: "t"})
	s.Require().NoError(err)

	first, err := s.store.FindOne(s.ctx, domain.ByToken("t"))
	s.Require().NoError(err)
	s.Require().NotNil(first)
	s.Equal("a", first.Username)

	s.Require().NoError(s.store.DeleteOne(s.ctx, domain.ByUsername("b")))

	still, err := s.store.FindOne(s.ctx, domain.ByToken("t"))
	s.Require().NoError(err)
	s.Require().NotNil(still)
	s.Equal("a", still.Username)

	s.Require().NoError(s.store.DeleteOne(s.ctx, domain.ByUsername("a")))
	_, err = s.store.InsertOne(s.ctx, &domain.UserRecord{Username: "c", Hash: "h"})
	s.Require().NoError(err)
	res, err := s.store.UpdateOne(s.ctx, domain.ByUsername("c"), domain.UserPatch{Token: ptr("t")})
	s.Require().NoError(err)
	s.Equal(1, res.ModifiedCount)

	owner, err := s.store.FindOne(s.ctx, domain.ByToken("t"))
	s.Require().NoError(err)
	s.Require().NotNil(owner)
	s.Equal("c", owner.Username)
}

func (s *Suite) TestSharedTokenUpdateMovesOnlyOneOwner() {
	_, err := s.store.InsertOne(s.ctx, &domain.UserRecord{Username: "a", Hash: "h", Token: "t"})
	s.Require().NoError(err)
	_, err = s.store.InsertOne(s.ctx, &domain.UserRecord{Username: "b", Hash: "h", Token: "t"})
	s.Require().NoError(err)

	res, err := s.store.UpdateOne(s.ctx, domain.ByToken("t"), domain.UserPatch{Token: ptr("t2")})
	s.Require().NoError(err)
	s.Equal(1, res.ModifiedCount)

	rest, err := s.store.FindOne(s.ctx, domain.ByToken("t"))
	s.Require().NoError(err)
	s.Require().NotNil(rest)
	s.Equal("b", rest.Username)

	moved, err := s.store.FindOne(s.ctx, domain.ByToken("t2"))
	s.Require().NoError(err)
	s.Require().NotNil(moved)
	s.Equal("a", moved.Username)
}

func (s *Suite) TestConcurrentInsertSameUsername() {
	var wins, conflicts atomic.Int32
	var g errgroup.Group

	for i := 0; i < Concurrency; i++ {
		g.Go(func() error {
			_, err := s.store.InsertOne(s.ctx, &domain.UserRecord{Username: "racer", Hash: fmt.Sprintf("h%d", i)})
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, domain.ErrConflict):
				conflicts.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	s.Require().NoError(g.Wait())

	s.Equal(int32(1), wins.Load())
	s.Equal(int32(Concurrency-1), conflicts.Load())

	found, err := s.store.FindOne(s.ctx, domain.ByUsername("racer"))
	s.Require().NoError(err)
	s.NotNil(found)
}

func (s *Suite) TestFindUnmatchableQuery() {
	_, err := s.store.InsertOne(s.ctx, &domain.UserRecord{Username: "foo", Hash: "bar"})
	s.Require().NoError(err)

	// The record has no token; an empty value must still not match it
	found, err := s.store.FindOne(s.ctx, domain.ByToken(""))
	s.Require().NoError(err)
	s.Nil(found)

	found, err = s.store.FindOne(s.ctx, domain.Query{Field: "password", Value: "bar"})
	s.Require().NoError(err)
	s.Nil(found)

	res, err := s.store.UpdateOne(s.ctx, domain.ByToken(""), domain.UserPatch{Hash: ptr("x")})
	s.Require().NoError(err)
	s.Equal(0, res.ModifiedCount)
}

func (s *Suite) TestClearAll() {
	for _, name := range []string{"a", "b", "c"} {
		_, err := s.store.InsertOne(s.ctx, &domain.UserRecord{Username: name, Hash: "h", Token: "t-" + name})
		s.Require().NoError(err)
	}
	s.Require().NoError(s.store.ClearAll(s.ctx))

	for _, name := range []string{"a", "b", "c"} {
		found, err := s.store.FindOne(s.ctx, domain.ByUsername(name))
		s.Require().NoError(err)
		s.Nil(found)

		byToken, err := s.store.FindOne(s.ctx, domain.ByToken("t-"+name))
		s.Require().NoError(err)
		s.Nil(byToken)
	}

	// Usernames are free again after a reset
	_, err := s.store.InsertOne(s.ctx, &domain.UserRecord{Username: "a", Hash: "h"})
	s.Require().NoError(err)
}

// TestLifecycleTranscript runs the canonical sequence and compares its
// observable transcript with a fixed expectation shared by every adapter.
func (s *Suite) TestLifecycleTranscript() {
	s.Equal(ExpectedLifecycle, Lifecycle(s.T(), s.ctx, s.store))
}

// ExpectedLifecycle is the transcript Lifecycle must produce on any adapter
var ExpectedLifecycle = []string{
	"insert u1: ok",
	"find username=u1: u1|h1|tok1|-",
	"find token=tok1: u1|h1|tok1|-",
	"update username=u1 token=tok2: 1",
	"find username=u1: u1|h1|tok2|-",
	"find token=tok1: <none>",
	"delete username=u1: ok",
	"find username=u1: <none>",
	"update username=u1 token=tok3: 0",
}

// Lifecycle runs insert, find, update, delete and records each observation
func Lifecycle(t *testing.T, ctx context.Context, store driven.CredentialStore) []string {
	t.Helper()
	var out []string

	find := func(q domain.Query) {
		rec, err := store.FindOne(ctx, q)
		require.NoError(t, err)
		out = append(out, fmt.Sprintf("find %s=%s: %s", q.Field, q.Value, describe(rec)))
	}
	update := func(q domain.Query, token string) {
		res, err := store.UpdateOne(ctx, q, domain.UserPatch{Token: ptr(token)})
		require.NoError(t, err)
		out = append(out, fmt.Sprintf("update %s=%s token=%s: %d", q.Field, q.Value, token, res.ModifiedCount))
	}

	_, err := store.InsertOne(ctx, &domain.UserRecord{Username: "u1", Hash: "h1", Token: "tok1"})
	require.NoError(t, err)
	out = append(out, "insert u1: ok")

	find(domain.ByUsername("u1"))
	find(domain.ByToken("tok1"))
	update(domain.ByUsername("u1"), "tok2")
	find(domain.ByUsername("u1"))
	find(domain.ByToken("tok1"))

	require.NoError(t, store.DeleteOne(ctx, domain.ByUsername("u1")))
	out = append(out, "delete username=u1: ok")

	find(domain.ByUsername("u1"))
	update(domain.ByUsername("u1"), "tok3")

	return out
}

func describe(rec *domain.UserRecord) string {
	if rec == nil {
		return "<none>"
	}
	exp := "-"
	if rec.ExpiresAt != nil {
		exp = strconv.FormatInt(rec.ExpiresAt.Unix(), 10)
	}
	return fmt.Sprintf("%s|%s|%s|%s", rec.Username, rec.Hash, rec.Token, exp)
}

func ptr[T any](v T) *T {
	return &v
}
