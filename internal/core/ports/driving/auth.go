package driving

import (
	"context"

	"github.com/custodia-labs/sercha-auth/internal/core/domain"
)

// AuthService handles signup, login, secure access and logout
type AuthService interface {
	// Signup creates a user and an authenticated session
	Signup(ctx context.Context, creds domain.Credentials) (*domain.AuthResult, error)

	// Login verifies credentials and creates an authenticated session
	Login(ctx context.Context, creds domain.Credentials) (*domain.AuthResult, error)

	// SecureAccess resolves a session id to the authenticated user
	SecureAccess(ctx context.Context, sessionID string) (*domain.AuthContext, error)

	// ValidateToken resolves a bearer token to the authenticated user
	ValidateToken(ctx context.Context, token string) (*domain.AuthContext, error)

	// Logout revokes a session; the user record is untouched
	Logout(ctx context.Context, sessionID string) error
}
