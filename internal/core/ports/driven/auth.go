package driven

import (
	"context"

	"github.com/custodia-labs/sercha-auth/internal/core/domain"
)

// PasswordHasher performs one-way, cost-factored hashing of secrets.
// Implementations must never log or persist the plaintext.
type PasswordHasher interface {
	Hash(ctx context.Context, secret string) (string, error)
	Verify(ctx context.Context, secret, hash string) (bool, error)
}

// TokenIssuer signs and verifies time-bounded tokens
type TokenIssuer interface {
	// Issue signs a token for subject bound to a session id
	Issue(subject, sessionID string) (string, *domain.TokenClaims, error)

	// Verify returns the claims or one of domain.ErrTokenExpired,
	// domain.ErrInvalidSignature, domain.ErrMalformedToken
	Verify(token string) (*domain.TokenClaims, error)
}
