package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/custodia-labs/sercha-auth/internal/core/domain"
	"github.com/custodia-labs/sercha-auth/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-auth/internal/core/ports/driving"
)

// Ensure authService implements AuthService
var _ driving.AuthService = (*authService)(nil)

// authService implements the AuthService interface
type authService struct {
	store    driven.CredentialStore
	hasher   driven.PasswordHasher
	issuer   driven.TokenIssuer
	sessions *SessionManager
	logger   *slog.Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(
	store driven.CredentialStore,
	hasher driven.PasswordHasher,
	issuer driven.TokenIssuer,
	sessions *SessionManager,
	logger *slog.Logger,
) driving.AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &authService{
		store:    store,
		hasher:   hasher,
		issuer:   issuer,
		sessions: sessions,
		logger:   logger,
	}
}

// Signup creates a user and opens a session for them
func (s *authService) Signup(ctx context.Context, creds domain.Credentials) (*domain.AuthResult, error) {
	if !creds.Complete() {
		return nil, domain.ErrMissingField
	}
	if len(creds.Password) > domain.MaxPasswordBytes {
		return nil, domain.ErrPasswordTooLong
	}

	existing, err := s.store.FindOne(ctx, domain.ByUsername(creds.Username))
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrConflict
	}

	hash, err := s.hasher.Hash(ctx, creds.Password)
	if err != nil {
		return nil, err
	}

	// The store rejects a concurrent signup that passed the check above
	if _, err := s.store.InsertOne(ctx, &domain.UserRecord{
		Username: creds.Username,
		Hash:     hash,
	}); err != nil {
		return nil, err
	}

	s.logger.Info("user signed up", "username", creds.Username)
	return s.authenticate(ctx, creds.Username)
}

// Login verifies credentials and opens a session
func (s *authService) Login(ctx context.Context, creds domain.Credentials) (*domain.AuthResult, error) {
	if !creds.Complete() {
		return nil, domain.ErrMissingField
	}

	user, err := s.store.FindOne(ctx, domain.ByUsername(creds.Username))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrNotFound
	}

	ok, err := s.hasher.Verify(ctx, creds.Password, user.Hash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrBadCredentials
	}

	return s.authenticate(ctx, user.Username)
}

// authenticate opens a session, issues a token and records it on the user
func (s *authService) authenticate(ctx context.Context, username string) (*domain.AuthResult, error) {
	session, err := s.sessions.Create(ctx, username)
	if err != nil {
		return nil, err
	}

	token, claims, err := s.issuer.Issue(username, session.ID)
	if err != nil {
		s.discardSession(ctx, session.ID)
		return nil, err
	}

	expiresAt := time.Unix(claims.ExpiresAt, 0)
	res, err := s.store.UpdateOne(ctx, domain.ByUsername(username), domain.UserPatch{
		Token:     &token,
		ExpiresAt: &expiresAt,
	})
	if err != nil {
		s.discardSession(ctx, session.ID)
		return nil, err
	}
	if res.ModifiedCount == 0 {
		// Deleted between lookup and update
		s.discardSession(ctx, session.ID)
		return nil, domain.ErrNotFound
	}

	return &domain.AuthResult{
		Username:  username,
		SessionID: session.ID,
		Token:     token,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// discardSession revokes a session no caller will ever receive. It runs
// even if ctx was cancelled.
func (s *authService) discardSession(ctx context.Context, id string) {
	if err := s.sessions.Revoke(context.WithoutCancel(ctx), id); err != nil {
		s.logger.Warn("failed to revoke orphaned session", "error", err)
	}
}

// SecureAccess resolves a session id to its user.
// Every failure other than a missing id is domain.ErrUnauthorized.
func (s *authService) SecureAccess(ctx context.Context, sessionID string) (*domain.AuthContext, error) {
	session, err := s.resolve(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return s.authContext(ctx, session)
}

// ValidateToken resolves a bearer token to its user.
// The token's session must still be live and unrevoked.
func (s *authService) ValidateToken(ctx context.Context, token string) (*domain.AuthContext, error) {
	if token == "" {
		return nil, domain.ErrUnauthorized
	}

	claims, err := s.issuer.Verify(token)
	if err != nil {
		if !domain.IsTokenError(err) {
			s.logger.Error("token verification failed", "error", err)
		}
		return nil, domain.ErrUnauthorized
	}

	session, err := s.resolve(ctx, claims.SessionID)
	if err != nil {
		return nil, domain.ErrUnauthorized
	}
	if session.Username != claims.Subject {
		return nil, domain.ErrUnauthorized
	}

	return s.authContext(ctx, session)
}

// Logout revokes a live session. The user record is untouched.
func (s *authService) Logout(ctx context.Context, sessionID string) error {
	session, err := s.resolve(ctx, sessionID)
	if err != nil {
		return err
	}

	if err := s.sessions.Revoke(ctx, session.ID); err != nil {
		return fmt.Errorf("logout: %w", err)
	}

	s.logger.Info("user logged out", "username", session.Username)
	return nil
}

// resolve maps session lookup failures onto ErrNoSession or ErrUnauthorized
func (s *authService) resolve(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := s.sessions.Resolve(ctx, sessionID)
	switch {
	case err == nil:
		return session, nil
	case errors.Is(err, domain.ErrNoSession), errors.Is(err, domain.ErrUnauthorized):
		return nil, err
	default:
		s.logger.Error("session lookup failed", "error", err)
		return nil, domain.ErrUnauthorized
	}
}

// authContext confirms the session's user still exists
func (s *authService) authContext(ctx context.Context, session *domain.Session) (*domain.AuthContext, error) {
	user, err := s.store.FindOne(ctx, domain.ByUsername(session.Username))
	if err != nil {
		s.logger.Error("user lookup failed", "error", err)
		return nil, domain.ErrUnauthorized
	}
	if user == nil {
		// Orphaned session: the user was deleted
		if err := s.sessions.Revoke(ctx, session.ID); err != nil {
			s.logger.Warn("failed to revoke orphaned session", "error", err)
		}
		return nil, domain.ErrUnauthorized
	}

	return &domain.AuthContext{
		Username:  user.Username,
		SessionID: session.ID,
	}, nil
}
