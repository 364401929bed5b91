package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/custodia-labs/sercha-auth/internal/core/domain"
	"github.com/custodia-labs/sercha-auth/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-auth/internal/worker"
)

// Ensure implementations satisfy the ports
var (
	_ driven.PasswordHasher = (*Hasher)(nil)
	_ driven.TokenIssuer    = (*TokenIssuer)(nil)
)

// DefaultTokenTTL is the lifetime of issued tokens when none is configured
const DefaultTokenTTL = 24 * time.Hour

// Hasher hashes passwords with bcrypt.
// When a pool is configured the work runs there, bounding CPU use.
type Hasher struct {
	cost int
	pool *worker.Pool
}

// NewHasher creates a bcrypt hasher with the default cost
func NewHasher(pool *worker.Pool) *Hasher {
	return NewHasherWithCost(bcrypt.DefaultCost, pool)
}

// NewHasherWithCost creates a bcrypt hasher with a custom cost.
// Costs outside bcrypt's accepted range fall back to the default.
func NewHasherWithCost(cost int, pool *worker.Pool) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost, pool: pool}
}

// Hash generates a salted bcrypt hash of secret
func (h *Hasher) Hash(ctx context.Context, secret string) (string, error) {
	var hash []byte
	err := h.run(ctx, func() error {
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(secret), h.cost)
		return err
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", fmt.Errorf("%w: %v", domain.ErrPasswordTooLong, err)
		}
		return "", fmt.Errorf("%w: %v", domain.ErrHashFailed, err)
	}
	return string(hash), nil
}

// Verify checks secret against a bcrypt hash.
// A mismatch is (false, nil); a hash bcrypt cannot read is an error.
func (h *Hasher) Verify(ctx context.Context, secret, hash string) (bool, error) {
	if len(secret) > domain.MaxPasswordBytes {
		// No hash this hasher produced can match it
		return false, nil
	}

	var match bool
	err := h.run(ctx, func() error {
		err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil
		}
		if err != nil {
			return err
		}
		match = true
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false, err
		}
		return false, fmt.Errorf("%w: %v", domain.ErrHashFailed, err)
	}
	return match, nil
}

func (h *Hasher) run(ctx context.Context, job worker.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if h.pool == nil {
		return job()
	}
	return h.pool.Do(ctx, job)
}

// jwtClaims wraps domain.TokenClaims for JWT compatibility
type jwtClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// TokenIssuer signs HS256 JWTs bound to a session id
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// IssuerOption configures a TokenIssuer
type IssuerOption func(*TokenIssuer)

// WithTTL sets the token lifetime. A non-positive TTL issues already-expired tokens.
func WithTTL(ttl time.Duration) IssuerOption {
	return func(i *TokenIssuer) { i.ttl = ttl }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) IssuerOption {
	return func(i *TokenIssuer) { i.now = now }
}

// NewTokenIssuer creates a token issuer with the given HMAC secret
func NewTokenIssuer(secret string, opts ...IssuerOption) *TokenIssuer {
	i := &TokenIssuer{
		secret: []byte(secret),
		ttl:    DefaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue creates a signed JWT for subject
func (i *TokenIssuer) Issue(subject, sessionID string) (string, *domain.TokenClaims, error) {
	now := i.now()
	expires := now.Add(i.ttl)

	jc := jwtClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jc).SignedString(i.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}

	return signed, &domain.TokenClaims{
		Subject:   subject,
		SessionID: sessionID,
		IssuedAt:  jc.IssuedAt.Unix(),
		ExpiresAt: jc.ExpiresAt.Unix(),
	}, nil
}

// Verify validates a JWT and extracts domain claims
func (i *TokenIssuer) Verify(tokenString string) (*domain.TokenClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)

	token, err := parser.ParseWithClaims(tokenString, &jwtClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, domain.ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, domain.ErrInvalidSignature
		default:
			return nil, fmt.Errorf("%w: %v", domain.ErrMalformedToken, err)
		}
	}

	claims, ok := token.Claims.(*jwtClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, domain.ErrMalformedToken
	}

	out := &domain.TokenClaims{
		Subject:   claims.Subject,
		SessionID: claims.SessionID,
		ExpiresAt: claims.ExpiresAt.Unix(),
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Unix()
	}
	return out, nil
}
