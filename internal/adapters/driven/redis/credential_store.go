package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/sercha-auth/internal/core/domain"
	"github.com/custodia-labs/sercha-auth/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.CredentialStore = (*CredentialStore)(nil)

// DefaultPrefix namespaces every key the adapter writes
const DefaultPrefix = "sercha:"

// CredentialStore implements driven.CredentialStore as a document store on
// Redis. Each user is one hash at <prefix>user:<username> carrying a "seq"
// field assigned from <prefix>seq at insert. Tokens are indexed in sorted
// sets at <prefix>token:<token>, scored by seq, so the lowest score is the
// first inserted owner. Writes run as Lua scripts so a document and its
// index always change together.
type CredentialStore struct {
	client *redis.Client
	prefix string
}

// seqField orders documents by insertion
const seqField = "seq"

// NewCredentialStore creates a Redis-backed CredentialStore.
// An empty prefix falls back to DefaultPrefix.
func NewCredentialStore(client *redis.Client, prefix string) *CredentialStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &CredentialStore{client: client, prefix: prefix}
}

func (s *CredentialStore) userKey(username string) string {
	return s.prefix + "user:" + username
}

func (s *CredentialStore) tokenPrefix() string {
	return s.prefix + "token:"
}

func (s *CredentialStore) seqKey() string {
	return s.prefix + "seq"
}

// insertScript creates the document only if the key is absent.
// KEYS[1] document, KEYS[2] sequence, KEYS[3] optional token index.
// ARGV field/value pairs.
var insertScript = redis.NewScript(`
	if redis.call("exists", KEYS[1]) == 1 then
		return 0
	end
	local seq = tostring(redis.call("incr", KEYS[2]))
	redis.call("hset", KEYS[1], "seq", seq)
	redis.call("hset", KEYS[1], unpack(ARGV))
	if #KEYS > 2 then
		redis.call("zadd", KEYS[3], seq, redis.call("hget", KEYS[1], "username"))
	end
	return 1
`)

// updateScript re-checks the match, moves the token index entry and merges
// fields. KEYS[1] document. ARGV[1] query field, ARGV[2] query value,
// ARGV[3] token index prefix, ARGV[4..] field/value pairs.
var updateScript = redis.NewScript(`
	if redis.call("hget", KEYS[1], ARGV[1]) ~= ARGV[2] then
		return 0
	end
	local username = redis.call("hget", KEYS[1], "username")
	local seq = redis.call("hget", KEYS[1], "seq") or "0"
	for i = 4, #ARGV, 2 do
		if ARGV[i] == "token" then
			local old = redis.call("hget", KEYS[1], "token")
			if old and old ~= "" then
				redis.call("zrem", ARGV[3] .. old, username)
			end
			if ARGV[i + 1] ~= "" then
				redis.call("zadd", ARGV[3] .. ARGV[i + 1], seq, username)
			end
		end
	end
	if #ARGV >= 5 then
		redis.call("hset", KEYS[1], unpack(ARGV, 4))
	end
	return 1
`)

// deleteScript re-checks the match and removes the document and its index
// entry. KEYS[1] document. ARGV[1] query field, ARGV[2] query value,
// ARGV[3] token index prefix.
var deleteScript = redis.NewScript(`
	if redis.call("hget", KEYS[1], ARGV[1]) ~= ARGV[2] then
		return 0
	end
	local username = redis.call("hget", KEYS[1], "username")
	local token = redis.call("hget", KEYS[1], "token")
	if token and token ~= "" then
		redis.call("zrem", ARGV[3] .. token, username)
	end
	redis.call("del", KEYS[1])
	return 1
`)

// InsertOne stores a new user document. The existence check and the write
// are one script, so concurrent inserts of a username cannot both succeed.
func (s *CredentialStore) InsertOne(ctx context.Context, user *domain.UserRecord) (*domain.UserRecord, error) {
	keys := []string{s.userKey(user.Username), s.seqKey()}
	if user.Token != "" {
		keys = append(keys, s.tokenPrefix()+user.Token)
	}

	created, err := insertScript.Run(ctx, s.client, keys, encodeUser(user)...).Int()
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	if created == 0 {
		return nil, domain.ErrConflict
	}
	return user.Clone(), nil
}

// FindOne returns the first document matching q, or nil
func (s *CredentialStore) FindOne(ctx context.Context, q domain.Query) (*domain.UserRecord, error) {
	key, err := s.locate(ctx, q)
	if err != nil || key == "" {
		return nil, err
	}

	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	user, err := decodeUser(fields)
	if err != nil {
		return nil, err
	}
	if !q.Matches(user) {
		// Stale index entry
		return nil, nil
	}
	return user, nil
}

// UpdateOne merges patch into the first document matching q with a field
// level set, never a document replace.
func (s *CredentialStore) UpdateOne(ctx context.Context, q domain.Query, patch domain.UserPatch) (domain.UpdateResult, error) {
	key, err := s.locate(ctx, q)
	if err != nil || key == "" {
		return domain.UpdateResult{}, err
	}

	args := append([]interface{}{string(q.Field), q.Value, s.tokenPrefix()}, encodePatch(patch)...)
	n, err := updateScript.Run(ctx, s.client, []string{key}, args...).Int()
	if err != nil {
		return domain.UpdateResult{}, fmt.Errorf("failed to update user: %w", err)
	}
	return domain.UpdateResult{ModifiedCount: n}, nil
}

// DeleteOne removes the first document matching q. Missing documents are a no-op.
func (s *CredentialStore) DeleteOne(ctx context.Context, q domain.Query) error {
	key, err := s.locate(ctx, q)
	if err != nil || key == "" {
		return err
	}

	if err := deleteScript.Run(ctx, s.client, []string{key}, string(q.Field), q.Value, s.tokenPrefix()).Err(); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// ClearAll deletes every key under the adapter prefix
func (s *CredentialStore) ClearAll(ctx context.Context) error {
	for _, pattern := range []string{s.userKey("*"), s.tokenPrefix() + "*"} {
		iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
		var batch []string
		for iter.Next(ctx) {
			batch = append(batch, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("failed to scan keys: %w", err)
		}
		if len(batch) > 0 {
			if err := s.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("failed to clear keys: %w", err)
			}
		}
	}
	if err := s.client.Del(ctx, s.seqKey()).Err(); err != nil {
		return fmt.Errorf("failed to reset sequence: %w", err)
	}
	return nil
}

// locate resolves q to the key of the first inserted matching document.
// Username and token lookups use the key and the index; other fields fall
// back to a keyspace scan ordered by seq.
func (s *CredentialStore) locate(ctx context.Context, q domain.Query) (string, error) {
	if !q.Matchable() {
		return "", nil
	}

	switch q.Field {
	case domain.FieldUsername:
		return s.userKey(q.Value), nil

	case domain.FieldToken:
		owners, err := s.client.ZRange(ctx, s.tokenPrefix()+q.Value, 0, 0).Result()
		if err != nil {
			return "", fmt.Errorf("failed to read token index: %w", err)
		}
		if len(owners) == 0 {
			return "", nil
		}
		return s.userKey(owners[0]), nil
	}

	var (
		best    string
		bestSeq int64
	)
	iter := s.client.Scan(ctx, 0, s.userKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		vals, err := s.client.HMGet(ctx, iter.Val(), string(q.Field), seqField).Result()
		if err != nil {
			return "", fmt.Errorf("failed to scan users: %w", err)
		}
		if v, ok := vals[0].(string); !ok || v != q.Value {
			continue
		}
		raw, _ := vals[1].(string)
		seq, _ := strconv.ParseInt(raw, 10, 64)
		if best == "" || seq < bestSeq {
			best, bestSeq = iter.Val(), seq
		}
	}
	if err := iter.Err(); err != nil {
		return "", fmt.Errorf("failed to scan users: %w", err)
	}
	return best, nil
}

func encodeUser(u *domain.UserRecord) []interface{} {
	args := []interface{}{string(domain.FieldUsername), u.Username, string(domain.FieldHash), u.Hash}
	if u.Token != "" {
		args = append(args, string(domain.FieldToken), u.Token)
	}
	if u.ExpiresAt != nil {
		args = append(args, string(domain.FieldExpiresAt), strconv.FormatInt(u.ExpiresAt.Unix(), 10))
	}
	return args
}

func encodePatch(p domain.UserPatch) []interface{} {
	var args []interface{}
	if p.Hash != nil {
		args = append(args, string(domain.FieldHash), *p.Hash)
	}
	if p.Token != nil {
		args = append(args, string(domain.FieldToken), *p.Token)
	}
	if p.ExpiresAt != nil {
		args = append(args, string(domain.FieldExpiresAt), strconv.FormatInt(p.ExpiresAt.Unix(), 10))
	}
	return args
}

func decodeUser(fields map[string]string) (*domain.UserRecord, error) {
	user := &domain.UserRecord{
		Username: fields[string(domain.FieldUsername)],
		Hash:     fields[string(domain.FieldHash)],
		Token:    fields[string(domain.FieldToken)],
	}
	if raw := fields[string(domain.FieldExpiresAt)]; raw != "" {
		sec, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to decode expiry %q: %w", raw, err)
		}
		t := time.Unix(sec, 0)
		user.ExpiresAt = &t
	}
	return user, nil
}
