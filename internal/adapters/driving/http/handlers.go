package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/swaggo/swag"

	"github.com/custodia-labs/sercha-auth/internal/core/domain"
)

// Client-facing messages. Internal error detail is logged, never returned.
const (
	msgMissingField    = "Username and password are both required."
	msgConflict        = "Username already exists."
	msgBadCredentials  = "Username and password do not match."
	msgUnauthorized    = "Unauthorized!"
	msgNoSession       = "No session id provided."
	msgUnavailable     = "Service unavailable."
	msgInternal        = "Internal server error."
	msgBadBody         = "Invalid request body."
	msgPasswordTooLong = "Password must be at most 72 bytes."
	msgLoggedOut       = "Logged out."
)

// MessageResponse represents a message-only API response
// @Description Message response, used for errors too
type MessageResponse struct {
	Message string `json:"message" example:"Unauthorized!"`
}

// AuthResponse is returned after signup or login
// @Description Authentication response
type AuthResponse struct {
	Message string `json:"message,omitempty" example:"Logged in as foo."`
	Token   string `json:"token" example:"eyJhbGciOiJIUzI1NiJ9..."`
}

// UserSummary is the public view of an authenticated user
type UserSummary struct {
	Username string `json:"username" example:"foo"`
}

// WhoamiResponse wraps the authenticated user
// @Description Current user
type WhoamiResponse struct {
	User UserSummary `json:"user"`
}

// StatusResponse represents a simple status response
// @Description Simple status response
type StatusResponse struct {
	Status string            `json:"status" example:"ok"`
	Checks map[string]string `json:"checks,omitempty"`
}

// VersionResponse represents the API version response
// @Description API version response
type VersionResponse struct {
	Version string `json:"version" example:"1.0.0"`
}

// Health endpoints

// handleHealth godoc
// @Summary      Health check
// @Description  Returns the health status of the API
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// handleReady godoc
// @Summary      Readiness check
// @Description  Pings the configured credential and session backends
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Failure      503  {object}  StatusResponse
// @Router       /ready [get]
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := StatusResponse{Status: "ready", Checks: make(map[string]string, len(s.checks))}
	status := http.StatusOK
	for name, p := range s.checks {
		if err := p.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", "backend", name, "error", err)
			resp.Checks[name] = "unavailable"
			resp.Status = "not ready"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	writeJSON(w, status, resp)
}

// handleVersion godoc
// @Summary      Get API version
// @Description  Returns the current API version
// @Tags         Health
// @Produce      json
// @Success      200  {object}  VersionResponse
// @Router       /version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: s.version})
}

func (s *Server) handleSwaggerDoc(w http.ResponseWriter, r *http.Request) {
	doc, err := swag.ReadDoc()
	if err != nil {
		s.logger.Error("failed to render api docs", "error", err)
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(doc))
}

// Session endpoints

// handleSessionSignup godoc
// @Summary      Sign up
// @Description  Create a user and start a cookie session
// @Tags         Session
// @Accept       json
// @Produce      json
// @Param        request  body      domain.Credentials  true  "Credentials"
// @Success      200      {object}  AuthResponse
// @Failure      400      {object}  MessageResponse  "Invalid request body or password too long"
// @Failure      401      {object}  MessageResponse  "Missing field or username taken"
// @Failure      503      {object}  MessageResponse  "Store unavailable"
// @Router       /session/signup [post]
func (s *Server) handleSessionSignup(w http.ResponseWriter, r *http.Request) {
	creds, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	res, err := s.authService.Signup(r.Context(), creds)
	if err != nil {
		s.writeAuthError(w, r, err, creds.Username)
		return
	}

	s.setSessionCookie(w, res)
	writeJSON(w, http.StatusOK, AuthResponse{
		Message: fmt.Sprintf("Signed up as %s.", res.Username),
		Token:   res.Token,
	})
}

// handleSessionLogin godoc
// @Summary      Log in
// @Description  Verify credentials and start a cookie session
// @Tags         Session
// @Accept       json
// @Produce      json
// @Param        request  body      domain.Credentials  true  "Credentials"
// @Success      200      {object}  AuthResponse
// @Failure      400      {object}  MessageResponse  "Invalid request body"
// @Failure      401      {object}  MessageResponse  "Missing field, unknown user or wrong password"
// @Failure      503      {object}  MessageResponse  "Store unavailable"
// @Router       /session/login [post]
func (s *Server) handleSessionLogin(w http.ResponseWriter, r *http.Request) {
	creds, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	res, err := s.authService.Login(r.Context(), creds)
	if err != nil {
		s.writeAuthError(w, r, err, creds.Username)
		return
	}

	s.setSessionCookie(w, res)
	writeJSON(w, http.StatusOK, AuthResponse{
		Message: fmt.Sprintf("Logged in as %s.", res.Username),
		Token:   res.Token,
	})
}

// handleWhoami godoc
// @Summary      Current user
// @Description  Returns the user bound to the session cookie or bearer token
// @Tags         Session
// @Produce      json
// @Success      200  {object}  WhoamiResponse
// @Failure      401  {object}  MessageResponse
// @Router       /session/login [get]
// @Router       /jwt/login [get]
func (s *Server) handleWhoami(w http.ResponseWriter, r *http.Request) {
	authCtx := GetAuthContext(r.Context())
	if authCtx == nil {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, WhoamiResponse{User: UserSummary{Username: authCtx.Username}})
}

// handleSessionSecure godoc
// @Summary      Protected resource
// @Description  Greets the user bound to the session cookie
// @Tags         Session
// @Produce      json
// @Success      200  {object}  MessageResponse
// @Failure      401  {object}  MessageResponse
// @Router       /session/secure [post]
func (s *Server) handleSessionSecure(w http.ResponseWriter, r *http.Request) {
	authCtx := GetAuthContext(r.Context())
	if authCtx == nil {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}
	writeMessage(w, http.StatusOK, fmt.Sprintf("Hello from session auth, %s!", authCtx.Username))
}

// handleSessionLogout godoc
// @Summary      Log out
// @Description  Revoke the session cookie. The user record is kept.
// @Tags         Session
// @Produce      json
// @Success      200  {object}  MessageResponse
// @Failure      401  {object}  MessageResponse
// @Router       /session/logout [post]
func (s *Server) handleSessionLogout(w http.ResponseWriter, r *http.Request) {
	err := s.authService.Logout(r.Context(), sessionID(r))
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNoSession):
		writeError(w, http.StatusUnauthorized, msgNoSession)
		return
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	default:
		s.writeAuthError(w, r, err, "")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	writeMessage(w, http.StatusOK, msgLoggedOut)
}

// Bearer token endpoints

// handleJWTSignup godoc
// @Summary      Sign up (token)
// @Description  Create a user and return a bearer token
// @Tags         JWT
// @Accept       json
// @Produce      json
// @Param        request  body      domain.Credentials  true  "Credentials"
// @Success      200      {object}  AuthResponse
// @Failure      401      {object}  MessageResponse
// @Router       /jwt/signup [post]
func (s *Server) handleJWTSignup(w http.ResponseWriter, r *http.Request) {
	creds, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	res, err := s.authService.Signup(r.Context(), creds)
	if err != nil {
		s.writeAuthError(w, r, err, creds.Username)
		return
	}
	writeJSON(w, http.StatusOK, AuthResponse{Token: res.Token})
}

// handleJWTLogin godoc
// @Summary      Log in (token)
// @Description  Verify credentials and return a bearer token
// @Tags         JWT
// @Accept       json
// @Produce      json
// @Param        request  body      domain.Credentials  true  "Credentials"
// @Success      200      {object}  AuthResponse
// @Failure      401      {object}  MessageResponse
// @Router       /jwt/login [post]
func (s *Server) handleJWTLogin(w http.ResponseWriter, r *http.Request) {
	creds, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	res, err := s.authService.Login(r.Context(), creds)
	if err != nil {
		s.writeAuthError(w, r, err, creds.Username)
		return
	}
	writeJSON(w, http.StatusOK, AuthResponse{Token: res.Token})
}

// handleJWTSecure godoc
// @Summary      Protected resource (token)
// @Description  Greets the user bound to the bearer token
// @Tags         JWT
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  MessageResponse
// @Failure      401  {object}  MessageResponse
// @Router       /jwt/secure [post]
func (s *Server) handleJWTSecure(w http.ResponseWriter, r *http.Request) {
	authCtx := GetAuthContext(r.Context())
	if authCtx == nil {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}
	writeMessage(w, http.StatusOK, fmt.Sprintf("Hi from JWT, %s!", authCtx.Username))
}

// Helpers

func (s *Server) setSessionCookie(w http.ResponseWriter, res *domain.AuthResult) {
	c := &http.Cookie{
		Name:     SessionCookieName,
		Value:    res.SessionID,
		Path:     "/",
		Expires:  res.ExpiresAt.UTC(),
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteLaxMode,
	}
	if secs := int(s.sessionTTL / time.Second); secs > 0 {
		c.MaxAge = secs
	}
	http.SetCookie(w, c)
}

// writeAuthError maps service errors to status codes and fixed messages
func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, err error, username string) {
	switch {
	case errors.Is(err, domain.ErrMissingField):
		writeError(w, http.StatusUnauthorized, msgMissingField)
	case errors.Is(err, domain.ErrPasswordTooLong):
		writeError(w, http.StatusBadRequest, msgPasswordTooLong)
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusUnauthorized, msgConflict)
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusUnauthorized, fmt.Sprintf("Username %s does not exist.", username))
	case errors.Is(err, domain.ErrBadCredentials):
		writeError(w, http.StatusUnauthorized, msgBadCredentials)
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrNoSession):
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
	case errors.Is(err, domain.ErrStoreUnavailable):
		s.logger.Error("store unavailable", "error", err, "request_id", GetRequestID(r.Context()))
		writeError(w, http.StatusServiceUnavailable, msgUnavailable)
	default:
		s.logger.Error("request failed", "error", err, "request_id", GetRequestID(r.Context()))
		writeError(w, http.StatusInternalServerError, msgInternal)
	}
}

// decodeCredentials reads a JSON credentials body. Missing fields, or a
// missing body, are left empty for the service to reject.
func decodeCredentials(w http.ResponseWriter, r *http.Request) (domain.Credentials, bool) {
	var creds domain.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, msgBadBody)
		return creds, false
	}
	return creds, true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, MessageResponse{Message: message})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeMessage(w, status, message)
}
