package relational

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/custodia-labs/sercha-auth/internal/core/domain"
	"github.com/custodia-labs/sercha-auth/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.CredentialStore = (*CredentialStore)(nil)

// columns maps queryable record fields to their table column
var columns = map[domain.Field]string{
	domain.FieldUsername:  "username",
	domain.FieldToken:     "token",
	domain.FieldHash:      "hash",
	domain.FieldExpiresAt: "expires_at",
}

// CredentialStore implements driven.CredentialStore on a SQL table.
// Username uniqueness is enforced by a UNIQUE constraint.
type CredentialStore struct {
	db *DB

	mu          sync.Mutex
	schemaReady bool
}

// NewCredentialStore creates a new relational CredentialStore
func NewCredentialStore(db *DB) *CredentialStore {
	return &CredentialStore{db: db}
}

// ensureSchema creates the table on first use. A failed attempt is retried on the next call.
func (s *CredentialStore) ensureSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schemaReady {
		return nil
	}
	if err := s.db.InitSchema(ctx); err != nil {
		return err
	}
	s.schemaReady = true
	return nil
}

func (s *CredentialStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.db.dialect.rebind(query), args...)
}

// InsertOne adds a new user record
func (s *CredentialStore) InsertOne(ctx context.Context, user *domain.UserRecord) (*domain.UserRecord, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO users (username, hash, token, expires_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := s.exec(ctx, query,
		user.Username,
		user.Hash,
		NullString(user.Token),
		NullUnix(user.ExpiresAt),
	)
	if err != nil {
		if s.db.dialect.isUnique(err) {
			return nil, domain.ErrConflict
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return user.Clone(), nil
}

// FindOne returns the first record matching q, or nil if none does
func (s *CredentialStore) FindOne(ctx context.Context, q domain.Query) (*domain.UserRecord, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}

	col, arg, ok := predicate(q)
	if !ok {
		return nil, nil
	}

	query := s.db.dialect.rebind(fmt.Sprintf(`
		SELECT username, hash, token, expires_at
		FROM users
		WHERE %s = $1
		ORDER BY id
		LIMIT 1
	`, col))

	var (
		user      domain.UserRecord
		token     sql.NullString
		expiresAt sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&user.Username, &user.Hash, &token, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}

	user.Token = token.String
	user.ExpiresAt = TimePtr(expiresAt)
	return &user, nil
}

// UpdateOne merges patch into the first record matching q
func (s *CredentialStore) UpdateOne(ctx context.Context, q domain.Query, patch domain.UserPatch) (domain.UpdateResult, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return domain.UpdateResult{}, err
	}

	col, arg, ok := predicate(q)
	if !ok {
		return domain.UpdateResult{}, nil
	}

	var hash sql.NullString
	if patch.Hash != nil {
		hash = sql.NullString{String: *patch.Hash, Valid: true}
	}
	var token sql.NullString
	if patch.Token != nil {
		token = sql.NullString{String: *patch.Token, Valid: true}
	}

	query := fmt.Sprintf(`
		UPDATE users SET
			hash = COALESCE($1, hash),
			token = COALESCE($2, token),
			expires_at = COALESCE($3, expires_at)
		WHERE id = (SELECT id FROM users WHERE %s = $4 ORDER BY id LIMIT 1)
	`, col)

	result, err := s.exec(ctx, query, hash, token, NullUnix(patch.ExpiresAt), arg)
	if err != nil {
		return domain.UpdateResult{}, fmt.Errorf("update user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return domain.UpdateResult{}, fmt.Errorf("update user: %w", err)
	}
	return domain.UpdateResult{ModifiedCount: int(rows)}, nil
}

// DeleteOne removes the first record matching q. Deleting nothing is not an error.
func (s *CredentialStore) DeleteOne(ctx context.Context, q domain.Query) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}

	col, arg, ok := predicate(q)
	if !ok {
		return nil
	}

	query := fmt.Sprintf(`
		DELETE FROM users
		WHERE id = (SELECT id FROM users WHERE %s = $1 ORDER BY id LIMIT 1)
	`, col)

	if _, err := s.exec(ctx, query, arg); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// ClearAll removes every user record
func (s *CredentialStore) ClearAll(ctx context.Context) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.db.dialect.truncate); err != nil {
		return fmt.Errorf("clear users: %w", err)
	}
	return nil
}

// predicate resolves q to a whitelisted column and a typed argument.
// ok is false when q cannot match any row.
func predicate(q domain.Query) (col string, arg any, ok bool) {
	if !q.Matchable() {
		return "", nil, false
	}
	col = columns[q.Field]
	if q.Field == domain.FieldExpiresAt {
		secs, err := strconv.ParseInt(q.Value, 10, 64)
		if err != nil {
			return "", nil, false
		}
		return col, secs, true
	}
	return col, q.Value, true
}
