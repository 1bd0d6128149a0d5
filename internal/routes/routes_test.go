package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/clinicguard/internal/auth"
	"github.com/BradenHooton/clinicguard/internal/handlers"
	"github.com/BradenHooton/clinicguard/internal/middleware"
	"github.com/BradenHooton/clinicguard/internal/models"
)

type notRevoked struct{}

func (notRevoked) IsRevoked(ctx context.Context, token string) (bool, error) { return false, nil }

type accountsByID map[string]*models.User

func (a accountsByID) CheckAccess(ctx context.Context, userID string) (*models.User, error) {
	u, ok := a[userID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return u, nil
}

type routerFixture struct {
	router http.Handler
	tokens *auth.TokenManager
}

func newRouterFixture(t *testing.T, users ...*models.User) *routerFixture {
	t.Helper()

	tokens, err := auth.NewTokenManager("access-secret-for-routing-tests-0001", "refresh-secret-for-routing-tests-0002", time.Hour, 24*time.Hour)
	require.NoError(t, err)

	accounts := accountsByID{}
	for _, u := range users {
		accounts[u.ID] = u
	}

	logger := handlers.DiscardLogger()
	cookies := auth.NewCookieConfig("", false, time.Hour, 24*time.Hour)
	h := Handlers{
		Auth:      handlers.NewAuthHandler(&handlers.MockAuthService{}, handlers.StaticPhase(models.PhaseActive), cookies, nil, logger),
		TwoFactor: handlers.NewTwoFactorHandler(&handlers.MockTwoFactorService{}, logger),
		Account:   handlers.NewAccountHandler(&handlers.MockAccountService{}, cookies, nil, logger),
		Admin:     handlers.NewAdminHandler(&handlers.MockTelemetryReader{}, &handlers.MockAdminService{}, logger),
		Health:    handlers.NewHealthHandler(&handlers.MockPinger{}, logger),
	}

	router := chi.NewRouter()
	RegisterRoutes(router, h, auth.NewAuthenticator(tokens, notRevoked{}, accounts, logger), middleware.RateLimitConfig{RequestsPerMinute: 100})
	return &routerFixture{router: router, tokens: tokens}
}

func (f *routerFixture) do(t *testing.T, method, path string, user *models.User) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if user != nil {
		pair, err := f.tokens.IssuePair(auth.SubjectFromUser(user))
		require.NoError(t, err)
		req.AddCookie(&http.Cookie{Name: auth.AccessTokenCookie, Value: pair.AccessToken})
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestRoutes_PublicEndpoints(t *testing.T) {
	f := newRouterFixture(t)

	assert.Equal(t, http.StatusOK, f.do(t, "GET", "/health", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, "GET", "/ready", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, "POST", "/auth/refresh", nil).Code)
}

func TestRoutes_ProtectedRequireSession(t *testing.T) {
	f := newRouterFixture(t)

	for _, path := range []string{"/auth/me", "/auth/2fa/status", "/admin/audit-logs"} {
		assert.Equal(t, http.StatusUnauthorized, f.do(t, "GET", path, nil).Code, path)
	}
	assert.Equal(t, http.StatusUnauthorized, f.do(t, "POST", "/account/disable", nil).Code)
}

func TestRoutes_AdminRequiresRole(t *testing.T) {
	pro := &models.User{ID: "11111111-1111-4111-8111-111111111111", Email: "pro@clinic.test", Role: models.RoleProfessional, IsEnabled: true}
	admin := &models.User{ID: "22222222-2222-4222-8222-222222222222", Email: "admin@clinic.test", Role: models.RoleAdmin, IsEnabled: true}
	f := newRouterFixture(t, pro, admin)

	assert.Equal(t, http.StatusOK, f.do(t, "GET", "/auth/me", pro).Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, "GET", "/admin/audit-logs", pro).Code)
	assert.Equal(t, http.StatusOK, f.do(t, "GET", "/admin/audit-logs", admin).Code)
	assert.Equal(t, http.StatusOK, f.do(t, "GET", "/admin/security-summary", admin).Code)
}

func TestRoutes_UnknownUserHasNoSession(t *testing.T) {
	f := newRouterFixture(t)
	ghost := &models.User{ID: "33333333-3333-4333-8333-333333333333", Role: models.RoleAdmin}

	assert.Equal(t, http.StatusUnauthorized, f.do(t, "GET", "/auth/me", ghost).Code)
}
