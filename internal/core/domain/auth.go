package domain

import "time"

// Session binds an opaque identifier to an authenticated username
type Session struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ExpiredAt checks if the session has expired at the given instant
func (s *Session) ExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// AuthContext contains authenticated user info for request context
type AuthContext struct {
	Username  string `json:"username"`
	SessionID string `json:"session_id,omitempty"`
}

// MaxPasswordBytes is the longest password bcrypt can hash
const MaxPasswordBytes = 72

// Credentials is a signup or login attempt
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Complete reports whether both fields are present
func (c Credentials) Complete() bool {
	return c.Username != "" && c.Password != ""
}

// AuthResult is returned after a successful signup or login
type AuthResult struct {
	Username  string    `json:"username"`
	SessionID string    `json:"-"` // Travels in the cookie only
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenClaims represents the JWT token payload
type TokenClaims struct {
	Subject   string `json:"sub"`
	SessionID string `json:"sid"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}
