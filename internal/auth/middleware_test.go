package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/clinicguard/internal/models"
	pkghttp "github.com/BradenHooton/clinicguard/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRevocations struct {
	revoked map[string]bool
	err     error
}

func (f *fakeRevocations) IsRevoked(_ context.Context, token string) (bool, error) {
	return f.revoked[token], f.err
}

type fakeAccounts struct {
	user *models.User
	err  error
}

func (f *fakeAccounts) CheckAccess(_ context.Context, _ string) (*models.User, error) {
	return f.user, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type middlewareFixture struct {
	tokens   *TokenManager
	revoked  *fakeRevocations
	accounts *fakeAccounts
	pair     *models.TokenPair
}

func newMiddlewareFixture(t *testing.T) *middlewareFixture {
	t.Helper()
	tm := newTestTokenManager(t)
	pair, err := tm.IssuePair(testSubject())
	require.NoError(t, err)
	return &middlewareFixture{
		tokens:   tm,
		revoked:  &fakeRevocations{revoked: map[string]bool{}},
		accounts: &fakeAccounts{user: &models.User{ID: "user-1", Role: models.RoleProfessional, IsEnabled: true}},
		pair:     pair,
	}
}

func (f *middlewareFixture) serve(req *http.Request) (*httptest.ResponseRecorder, *models.User) {
	var seen *models.User
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetUser(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	rec := httptest.NewRecorder()
	NewAuthenticator(f.tokens, f.revoked, f.accounts, discardLogger()).Middleware(next).ServeHTTP(rec, req)
	return rec, seen
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) pkghttp.ErrorResponse {
	t.Helper()
	var body pkghttp.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestAuthenticator_ValidCookieSession(t *testing.T) {
	f := newMiddlewareFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: f.pair.AccessToken})

	rec, user := f.serve(req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, user)
	assert.Equal(t, "user-1", user.ID)
}

func TestAuthenticator_BearerFallback(t *testing.T) {
	f := newMiddlewareFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+f.pair.AccessToken)

	rec, _ := f.serve(req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAuthenticator_RejectsMissingAndInvalidTokens(t *testing.T) {
	f := newMiddlewareFixture(t)

	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"garbage", "not-a-jwt"},
		{"refresh token as access", f.pair.RefreshToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
			if tt.token != "" {
				req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: tt.token})
			}
			rec, user := f.serve(req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Nil(t, user)
		})
	}
}

func TestAuthenticator_RejectsExpiredToken(t *testing.T) {
	f := newMiddlewareFixture(t)
	f.tokens.SetClock(func() time.Time { return time.Now().Add(2 * time.Hour) })

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: f.pair.AccessToken})

	rec, _ := f.serve(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticator_RejectsRevokedToken(t *testing.T) {
	f := newMiddlewareFixture(t)
	f.revoked.revoked[f.pair.AccessToken] = true

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: f.pair.AccessToken})

	rec, _ := f.serve(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticator_BlacklistUnavailableFailsClosed(t *testing.T) {
	f := newMiddlewareFixture(t)
	f.revoked.err = errors.New("connection refused")

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: f.pair.AccessToken})

	rec, user := f.serve(req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Nil(t, user)
}

func TestAuthenticator_AccountStateErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"banned", models.ErrAccountBanned, http.StatusForbidden, "account_banned"},
		{"blocked", models.ErrAccountBlocked, http.StatusForbidden, "account_blocked"},
		{"disabled", models.ErrAccountDisabled, http.StatusForbidden, "account_disabled"},
		{"deleted user", models.ErrNotFound, http.StatusUnauthorized, "unauthorized"},
		{"store down", models.ErrStoreUnavailable, http.StatusServiceUnavailable, "service_unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newMiddlewareFixture(t)
			f.accounts.user = nil
			f.accounts.err = tt.err

			req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
			req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: f.pair.AccessToken})

			rec, user := f.serve(req)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Nil(t, user)
			assert.Equal(t, tt.wantErr, decodeError(t, rec).Error)
		})
	}
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(models.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name     string
		user     *models.User
		wantCode int
	}{
		{"no session", nil, http.StatusUnauthorized},
		{"wrong role", &models.User{Role: models.RoleAssistant}, http.StatusForbidden},
		{"admin", &models.User{Role: models.RoleAdmin}, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/telemetry", nil)
			if tt.user != nil {
				req = req.WithContext(WithSession(req.Context(), &models.TokenClaims{}, tt.user, "tok"))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}
