package mocks

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/custodia-labs/sercha-auth/internal/core/domain"
	"github.com/custodia-labs/sercha-auth/internal/core/ports/driven"
)

var (
	_ driven.PasswordHasher = (*MockPasswordHasher)(nil)
	_ driven.TokenIssuer    = (*MockTokenIssuer)(nil)
)

const mockHashPrefix = "hashed:"

// MockPasswordHasher is a mock implementation of PasswordHasher for testing.
// It prefixes the password instead of hashing it. NOT secure - only for testing.
type MockPasswordHasher struct {
	// Custom behavior hook (optional)
	HashFn func(secret string) (string, error)

	hashCalls atomic.Int64
}

// NewMockPasswordHasher creates a new MockPasswordHasher
func NewMockPasswordHasher() *MockPasswordHasher {
	return &MockPasswordHasher{}
}

// Hash returns the prefixed password (for testing only)
func (m *MockPasswordHasher) Hash(ctx context.Context, secret string) (string, error) {
	m.hashCalls.Add(1)
	if m.HashFn != nil {
		return m.HashFn(secret)
	}
	return mockHashPrefix + secret, nil
}

// Verify compares the prefixed password with hash (for testing only)
func (m *MockPasswordHasher) Verify(ctx context.Context, secret, hash string) (bool, error) {
	return strings.TrimPrefix(hash, mockHashPrefix) == secret && strings.HasPrefix(hash, mockHashPrefix), nil
}

// HashCalls returns how many times Hash was invoked
func (m *MockPasswordHasher) HashCalls() int64 {
	return m.hashCalls.Load()
}

// MockTokenIssuer is a mock implementation of TokenIssuer for testing.
// Tokens are base64-encoded JSON claims without a signature.
type MockTokenIssuer struct {
	TTL time.Duration
	Now func() time.Time
}

// NewMockTokenIssuer creates a new MockTokenIssuer with a one hour TTL
func NewMockTokenIssuer() *MockTokenIssuer {
	return &MockTokenIssuer{TTL: time.Hour, Now: time.Now}
}

// Issue creates a base64-encoded JSON token from claims
func (m *MockTokenIssuer) Issue(subject, sessionID string) (string, *domain.TokenClaims, error) {
	now := m.Now()
	claims := &domain.TokenClaims{
		Subject:   subject,
		SessionID: sessionID,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(m.TTL).Unix(),
	}
	data, err := json.Marshal(claims)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal claims: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), claims, nil
}

// Verify decodes a base64-encoded JSON token and checks its expiry
func (m *MockTokenIssuer) Verify(token string) (*domain.TokenClaims, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, domain.ErrMalformedToken
	}

	var claims domain.TokenClaims
	if err := json.Unmarshal(data, &claims); err != nil {
		return nil, domain.ErrMalformedToken
	}
	if m.Now().Unix() >= claims.ExpiresAt {
		return nil, domain.ErrTokenExpired
	}

	return &claims, nil
}
