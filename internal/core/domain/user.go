package domain

import (
	"strconv"
	"time"
)

// Field names a UserRecord attribute that a Query can match on
type Field string

const (
	FieldUsername  Field = "username"
	FieldToken     Field = "token"
	FieldHash      Field = "hash"
	FieldExpiresAt Field = "expiresAt" // Unix seconds, decimal
)

// Valid reports whether f is a known record field
func (f Field) Valid() bool {
	switch f {
	case FieldUsername, FieldToken, FieldHash, FieldExpiresAt:
		return true
	}
	return false
}

// UserRecord is a stored credential. It never holds the plaintext password.
type UserRecord struct {
	Username  string     `json:"username"`
	Hash      string     `json:"-"` // Never serialize
	Token     string     `json:"token,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Clone returns a deep copy so callers cannot mutate store-owned state
func (u *UserRecord) Clone() *UserRecord {
	if u == nil {
		return nil
	}
	c := *u
	if u.ExpiresAt != nil {
		t := *u.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}

// Value returns the string form of a field, as compared by Query matching.
// Absent optional fields return "".
func (u *UserRecord) Value(f Field) string {
	switch f {
	case FieldUsername:
		return u.Username
	case FieldToken:
		return u.Token
	case FieldHash:
		return u.Hash
	case FieldExpiresAt:
		if u.ExpiresAt == nil {
			return ""
		}
		return strconv.FormatInt(u.ExpiresAt.Unix(), 10)
	}
	return ""
}

// Apply merges the non-nil fields of p into the record
func (u *UserRecord) Apply(p UserPatch) {
	if p.Hash != nil {
		u.Hash = *p.Hash
	}
	if p.Token != nil {
		u.Token = *p.Token
	}
	if p.ExpiresAt != nil {
		t := *p.ExpiresAt
		u.ExpiresAt = &t
	}
}

// Query is a single field-value equality predicate.
// Compound filters are deliberately not supported.
type Query struct {
	Field Field
	Value string
}

// ByUsername builds a Query on the username key
func ByUsername(username string) Query {
	return Query{Field: FieldUsername, Value: username}
}

// ByToken builds a Query on the token field
func ByToken(token string) Query {
	return Query{Field: FieldToken, Value: token}
}

// Matchable reports whether the query can match anything at all.
// Unknown fields and empty values never match.
func (q Query) Matchable() bool {
	return q.Field.Valid() && q.Value != ""
}

// Matches reports whether the record satisfies the query
func (q Query) Matches(u *UserRecord) bool {
	if u == nil || !q.Matchable() {
		return false
	}
	return u.Value(q.Field) == q.Value
}

// UserPatch lists fields to overwrite on update; nil leaves a field unchanged.
// The username is the record key and cannot be patched.
type UserPatch struct {
	Hash      *string
	Token     *string
	ExpiresAt *time.Time
}

// UpdateResult reports how many records an update touched (0 or 1)
type UpdateResult struct {
	ModifiedCount int `json:"modified_count"`
}
