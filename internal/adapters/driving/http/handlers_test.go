package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-auth/internal/adapters/driven/memory"
	"github.com/custodia-labs/sercha-auth/internal/core/domain"
	"github.com/custodia-labs/sercha-auth/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/sercha-auth/internal/core/services"
	"github.com/custodia-labs/sercha-auth/internal/worker"
)

// Mock services for testing

type mockAuthService struct {
	signupFn        func(ctx context.Context, creds domain.Credentials) (*domain.AuthResult, error)
	loginFn         func(ctx context.Context, creds domain.Credentials) (*domain.AuthResult, error)
	secureAccessFn  func(ctx context.Context, sessionID string) (*domain.AuthContext, error)
	validateTokenFn func(ctx context.Context, token string) (*domain.AuthContext, error)
	logoutFn        func(ctx context.Context, sessionID string) error
}

func (m *mockAuthService) Signup(ctx context.Context, creds domain.Credentials) (*domain.AuthResult, error) {
	if m.signupFn != nil {
		return m.signupFn(ctx, creds)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAuthService) Login(ctx context.Context, creds domain.Credentials) (*domain.AuthResult, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, creds)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAuthService) SecureAccess(ctx context.Context, sessionID string) (*domain.AuthContext, error) {
	if m.secureAccessFn != nil {
		return m.secureAccessFn(ctx, sessionID)
	}
	return nil, domain.ErrUnauthorized
}

func (m *mockAuthService) ValidateToken(ctx context.Context, token string) (*domain.AuthContext, error) {
	if m.validateTokenFn != nil {
		return m.validateTokenFn(ctx, token)
	}
	return nil, domain.ErrUnauthorized
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(svc *mockAuthService, checks map[string]Pinger) *Server {
	cfg := DefaultConfig()
	return NewServer(cfg, svc, checks, discardLogger())
}

// newIntegrationServer wires the real services over in-memory adapters
func newIntegrationServer(sessionTTL time.Duration) *Server {
	manager := services.NewSessionManager(services.SessionManagerConfig{
		Sessions: memory.NewSessionStore(),
		Revoked:  memory.NewRevocationList(),
		TTL:      sessionTTL,
		Logger:   discardLogger(),
	})
	store := services.NewGuardedStore(memory.NewCredentialStore(), time.Second)
	svc := services.NewAuthService(store, mocks.NewMockPasswordHasher(), mocks.NewMockTokenIssuer(), manager, discardLogger())

	cfg := DefaultConfig()
	cfg.SessionTTL = sessionTTL
	return NewServer(cfg, svc, nil, discardLogger())
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, cookie *http.Cookie, bearer string) *httptest.ResponseRecorder {
	t.Helper()

	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeMessage(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp MessageResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	return resp.Message
}

func sessionCookie(rr *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == SessionCookieName {
			return c
		}
	}
	return nil
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(&mockAuthService{}, nil)

	rr := doJSON(t, s.Handler(), "GET", "/health", nil, nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp StatusResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestHandleReady(t *testing.T) {
	healthy := PingFunc(func(context.Context) error { return nil })
	broken := PingFunc(func(context.Context) error { return errors.New("connection refused") })

	s := newTestServer(&mockAuthService{}, map[string]Pinger{"store": healthy})
	rr := doJSON(t, s.Handler(), "GET", "/ready", nil, nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	s = newTestServer(&mockAuthService{}, map[string]Pinger{"store": healthy, "sessions": broken})
	rr = doJSON(t, s.Handler(), "GET", "/ready", nil, nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	var resp StatusResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "not ready", resp.Status)
	assert.Equal(t, "unavailable", resp.Checks["sessions"])
	assert.Equal(t, "ok", resp.Checks["store"])
	assert.NotContains(t, rr.Body.String(), "connection refused")
}

func TestHandleReady_HashPool(t *testing.T) {
	pool := worker.NewPool(worker.PoolConfig{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.NoError(t, pool.Start(context.Background()))

	s := newTestServer(&mockAuthService{}, map[string]Pinger{"hash_pool": pool})
	rr := doJSON(t, s.Handler(), "GET", "/ready", nil, nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	pool.Stop()
	rr = doJSON(t, s.Handler(), "GET", "/ready", nil, nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	var resp StatusResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "unavailable", resp.Checks["hash_pool"])
}

func TestHandleSwaggerDoc(t *testing.T) {
	s := newTestServer(&mockAuthService{}, nil)

	rr := doJSON(t, s.Handler(), "GET", "/swagger/doc.json", nil, nil, "")
	require.Equal(t, http.StatusOK, rr.Code)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &doc))
	paths, ok := doc["paths"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, paths, "/session/signup")
	assert.Contains(t, paths, "/jwt/secure")
}

func TestHandleSessionSignup_SetsCookie(t *testing.T) {
	expires := time.Now().Add(time.Hour)
	svc := &mockAuthService{
		signupFn: func(ctx context.Context, creds domain.Credentials) (*domain.AuthResult, error) {
			return &domain.AuthResult{Username: creds.Username, SessionID: "sess-1", Token: "tok-1", ExpiresAt: expires}, nil
		},
	}
	s := newTestServer(svc, nil)

	rr := doJSON(t, s.Handler(), "POST", "/session/signup", domain.Credentials{Username: "foo", Password: "bar"}, nil, "")
	require.Equal(t, http.StatusOK, rr.Code)

	c := sessionCookie(rr)
	require.NotNil(t, c)
	assert.Equal(t, "sess-1", c.Value)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, int(time.Hour/time.Second), c.MaxAge)

	var resp AuthResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "tok-1", resp.Token)
	assert.NotContains(t, rr.Body.String(), "sess-1", "session id travels in the cookie only")
}

func TestHandleAuthErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"missing field", domain.ErrMissingField, http.StatusUnauthorized, "Username and password are both required."},
		{"password too long", domain.ErrPasswordTooLong, http.StatusBadRequest, "Password must be at most 72 bytes."},
		{"conflict", domain.ErrConflict, http.StatusUnauthorized, "Username already exists."},
		{"not found", domain.ErrNotFound, http.StatusUnauthorized, "Username foo does not exist."},
		{"bad credentials", domain.ErrBadCredentials, http.StatusUnauthorized, "Username and password do not match."},
		{"store unavailable", fmt.Errorf("%w: dial tcp: refused", domain.ErrStoreUnavailable), http.StatusServiceUnavailable, "Service unavailable."},
		{"hash failure", fmt.Errorf("%w: boom", domain.ErrHashFailed), http.StatusInternalServerError, "Internal server error."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fail := func(context.Context, domain.Credentials) (*domain.AuthResult, error) { return nil, tt.err }
			s := newTestServer(&mockAuthService{signupFn: fail, loginFn: fail}, nil)

			for _, path := range []string{"/session/signup", "/session/login", "/jwt/signup", "/jwt/login"} {
				rr := doJSON(t, s.Handler(), "POST", path, domain.Credentials{Username: "foo", Password: "bar"}, nil, "")
				assert.Equal(t, tt.wantStatus, rr.Code, path)
				assert.Equal(t, tt.wantMsg, decodeMessage(t, rr), path)
				assert.Nil(t, sessionCookie(rr), path)
			}
		})
	}
}

func TestHandleSessionLogin_InvalidBody(t *testing.T) {
	s := newTestServer(&mockAuthService{}, nil)

	req := httptest.NewRequest("POST", "/session/login", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleSessionLogin_EmptyBody(t *testing.T) {
	var got domain.Credentials
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, creds domain.Credentials) (*domain.AuthResult, error) {
			got = creds
			return nil, domain.ErrMissingField
		},
	}
	s := newTestServer(svc, nil)

	req := httptest.NewRequest("POST", "/session/login", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, domain.Credentials{}, got)
}

func TestHandleSessionLogout(t *testing.T) {
	svc := &mockAuthService{
		logoutFn: func(ctx context.Context, sessionID string) error {
			switch sessionID {
			case "":
				return domain.ErrNoSession
			case "live":
				return nil
			case "broken":
				return errors.New("redis down")
			}
			return domain.ErrUnauthorized
		},
	}
	s := newTestServer(svc, nil)

	rr := doJSON(t, s.Handler(), "POST", "/session/logout", nil, nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "No session id provided.", decodeMessage(t, rr))

	rr = doJSON(t, s.Handler(), "POST", "/session/logout", nil, &http.Cookie{Name: SessionCookieName, Value: "stale"}, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Unauthorized!", decodeMessage(t, rr))

	rr = doJSON(t, s.Handler(), "POST", "/session/logout", nil, &http.Cookie{Name: SessionCookieName, Value: "broken"}, "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "redis")

	rr = doJSON(t, s.Handler(), "POST", "/session/logout", nil, &http.Cookie{Name: SessionCookieName, Value: "live"}, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Logged out.", decodeMessage(t, rr))
	c := sessionCookie(rr)
	require.NotNil(t, c)
	assert.Negative(t, c.MaxAge, "cookie is cleared")
}

func TestSessionScenario(t *testing.T) {
	h := newIntegrationServer(time.Hour).Handler()
	foo := domain.Credentials{Username: "foo", Password: "bar"}

	rr := doJSON(t, h, "POST", "/session/signup", foo, nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	cookie := sessionCookie(rr)
	require.NotNil(t, cookie)

	rr = doJSON(t, h, "POST", "/session/login", domain.Credentials{Username: "foo", Password: "wrong"}, nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, decodeMessage(t, rr), "do not match")

	rr = doJSON(t, h, "POST", "/session/login", domain.Credentials{Username: "ghost", Password: "x"}, nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, decodeMessage(t, rr), "does not exist")

	rr = doJSON(t, h, "GET", "/session/login", nil, cookie, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var who WhoamiResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&who))
	assert.Equal(t, "foo", who.User.Username)

	rr = doJSON(t, h, "POST", "/session/secure", nil, cookie, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Hello from session auth, foo!", decodeMessage(t, rr))

	rr = doJSON(t, h, "POST", "/session/logout", nil, cookie, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Logged out.", decodeMessage(t, rr))

	rr = doJSON(t, h, "POST", "/session/secure", nil, cookie, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Unauthorized!", decodeMessage(t, rr))

	// User record survives logout
	rr = doJSON(t, h, "POST", "/session/signup", foo, nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Username already exists.", decodeMessage(t, rr))
}

func TestSessionScenario_ExpiredCookie(t *testing.T) {
	h := newIntegrationServer(-time.Second).Handler()

	rr := doJSON(t, h, "POST", "/session/signup", domain.Credentials{Username: "foo", Password: "bar"}, nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	cookie := sessionCookie(rr)
	require.NotNil(t, cookie)

	rr = doJSON(t, h, "GET", "/session/login", nil, &http.Cookie{Name: SessionCookieName, Value: cookie.Value}, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Unauthorized!", decodeMessage(t, rr))
}

func TestSessionSecure_NoCookie(t *testing.T) {
	h := newIntegrationServer(time.Hour).Handler()

	rr := doJSON(t, h, "POST", "/session/secure", nil, nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Unauthorized!", decodeMessage(t, rr))

	rr = doJSON(t, h, "POST", "/session/secure", nil, &http.Cookie{Name: SessionCookieName, Value: "not-right"}, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestJWTScenario(t *testing.T) {
	h := newIntegrationServer(time.Hour).Handler()

	rr := doJSON(t, h, "POST", "/jwt/signup", domain.Credentials{Username: "foo", Password: "bar"}, nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Nil(t, sessionCookie(rr))

	rr = doJSON(t, h, "POST", "/jwt/login", domain.Credentials{Username: "foo", Password: "bar"}, nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var resp AuthResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	require.NotEmpty(t, resp.Token)

	rr = doJSON(t, h, "GET", "/jwt/login", nil, nil, resp.Token)
	require.Equal(t, http.StatusOK, rr.Code)
	var who WhoamiResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&who))
	assert.Equal(t, "foo", who.User.Username)

	rr = doJSON(t, h, "POST", "/jwt/secure", nil, nil, resp.Token)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Hi from JWT, foo!", decodeMessage(t, rr))

	rr = doJSON(t, h, "POST", "/jwt/secure", nil, nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = doJSON(t, h, "POST", "/jwt/secure", nil, nil, "garbage")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
