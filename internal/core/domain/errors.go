package domain

import "errors"

// Domain errors - used across all layers
var (
	// ErrMissingField indicates a required credential field was empty
	ErrMissingField = errors.New("username and password are both required")

	// ErrPasswordTooLong indicates a password longer than MaxPasswordBytes
	ErrPasswordTooLong = errors.New("password is too long")

	// ErrConflict indicates the username is already taken
	ErrConflict = errors.New("username already exists")

	// ErrNotFound indicates the referenced user does not exist
	ErrNotFound = errors.New("not found")

	// ErrBadCredentials indicates the password did not match the stored hash
	ErrBadCredentials = errors.New("username and password do not match")

	// ErrUnauthorized indicates a missing, invalid, expired or revoked session or token
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNoSession indicates the caller did not present a session identifier
	ErrNoSession = errors.New("no session id provided")

	// ErrStoreUnavailable indicates the credential store timed out or could not be reached
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrHashFailed indicates the password hash could not be computed
	ErrHashFailed = errors.New("password hashing failed")

	// ErrTokenExpired indicates the token is past its expiry
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidSignature indicates the token was not signed by this issuer
	ErrInvalidSignature = errors.New("invalid token signature")

	// ErrMalformedToken indicates the token could not be parsed
	ErrMalformedToken = errors.New("malformed token")
)

// IsTokenError reports whether err is one of the token verification failures.
// Callers surface all of them as ErrUnauthorized.
func IsTokenError(err error) bool {
	return errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrMalformedToken)
}
