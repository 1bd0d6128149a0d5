package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/clinicguard/internal/auth"
	"github.com/BradenHooton/clinicguard/internal/models"
	"github.com/BradenHooton/clinicguard/internal/services"
	pkghttp "github.com/BradenHooton/clinicguard/pkg/http"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext attaches a verified session for user to the request, the
// same way the authenticator middleware does.
func WithAuthContext(req *http.Request, user *models.User, accessToken string) *http.Request {
	claims := &models.TokenClaims{
		Type:     models.TokenTypeAccess,
		UserID:   user.ID,
		Email:    user.Email,
		Role:     user.Role,
		ClinicID: user.ClinicID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	return req.WithContext(auth.WithSession(req.Context(), claims, user, accessToken))
}

// WithURLParam sets a chi path parameter on the request
func WithURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(req.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// WithRefreshCookie adds the refresh token cookie to the request
func WithRefreshCookie(req *http.Request, token string) *http.Request {
	req.AddCookie(&http.Cookie{Name: auth.RefreshTokenCookie, Value: token})
	return req
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response and
// returns it for further assertions
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) pkghttp.ErrorResponse {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
	return resp
}

// FindCookie returns the named Set-Cookie from a recorded response, or nil
func FindCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// DiscardLogger returns a logger that drops everything
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc    func(ctx context.Context, in services.LoginInput) (*services.LoginResult, error)
	RefreshFunc  func(ctx context.Context, refreshToken, ip string) (*services.LoginResult, error)
	LogoutFunc   func(ctx context.Context, in services.LogoutInput) error
	RegisterFunc func(ctx context.Context, in services.RegisterInput) (*models.User, error)
}

func (m *MockAuthService) Login(ctx context.Context, in services.LoginInput) (*services.LoginResult, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrInvalidCredentials
	}
	return m.LoginFunc(ctx, in)
}

func (m *MockAuthService) Refresh(ctx context.Context, refreshToken, ip string) (*services.LoginResult, error) {
	if m.RefreshFunc == nil {
		return nil, models.ErrTokenInvalid
	}
	return m.RefreshFunc(ctx, refreshToken, ip)
}

func (m *MockAuthService) Logout(ctx context.Context, in services.LogoutInput) error {
	if m.LogoutFunc == nil {
		return nil
	}
	return m.LogoutFunc(ctx, in)
}

func (m *MockAuthService) Register(ctx context.Context, in services.RegisterInput) (*models.User, error) {
	if m.RegisterFunc == nil {
		return nil, models.ErrConflict
	}
	return m.RegisterFunc(ctx, in)
}

// StaticPhase reports the same phase for every user
type StaticPhase models.AccountPhase

func (p StaticPhase) Phase(*models.User) models.AccountPhase {
	return models.AccountPhase(p)
}

// MockTwoFactorService implements TwoFactorServiceInterface for testing
type MockTwoFactorService struct {
	SetupFunc   func(ctx context.Context, userID, email string) (*models.TwoFactorSetup, error)
	EnableFunc  func(ctx context.Context, userID, secret, code string) ([]string, error)
	DisableFunc func(ctx context.Context, userID, code string) error
	StatusFunc  func(ctx context.Context, userID string) (*models.TwoFactorStatus, error)
}

func (m *MockTwoFactorService) Setup(ctx context.Context, userID, email string) (*models.TwoFactorSetup, error) {
	if m.SetupFunc == nil {
		return &models.TwoFactorSetup{}, nil
	}
	return m.SetupFunc(ctx, userID, email)
}

func (m *MockTwoFactorService) Enable(ctx context.Context, userID, secret, code string) ([]string, error) {
	if m.EnableFunc == nil {
		return nil, models.ErrTwoFactorInvalidCode
	}
	return m.EnableFunc(ctx, userID, secret, code)
}

func (m *MockTwoFactorService) Disable(ctx context.Context, userID, code string) error {
	if m.DisableFunc == nil {
		return nil
	}
	return m.DisableFunc(ctx, userID, code)
}

func (m *MockTwoFactorService) Status(ctx context.Context, userID string) (*models.TwoFactorStatus, error) {
	if m.StatusFunc == nil {
		return &models.TwoFactorStatus{}, nil
	}
	return m.StatusFunc(ctx, userID)
}

// MockAccountService implements AccountServiceInterface for testing
type MockAccountService struct {
	PolicyValue       models.LifecyclePolicy
	PhaseValue        models.AccountPhase
	DisableFunc       func(ctx context.Context, userID, ip string) (*models.User, error)
	EnableFunc        func(ctx context.Context, actorID, userID string) (*models.User, error)
	SetBannedFunc     func(ctx context.Context, actorID, userID string, banned bool) (*models.User, error)
	SetBlockedFunc    func(ctx context.Context, actorID, userID string, blocked bool) (*models.User, error)
	ResetPasswordFunc func(ctx context.Context, actorID, userID, newPassword string) error
}

func (m *MockAccountService) Policy() models.LifecyclePolicy {
	return m.PolicyValue
}

func (m *MockAccountService) Phase(*models.User) models.AccountPhase {
	return m.PhaseValue
}

func (m *MockAccountService) Disable(ctx context.Context, userID, ip string) (*models.User, error) {
	if m.DisableFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.DisableFunc(ctx, userID, ip)
}

func (m *MockAccountService) Enable(ctx context.Context, actorID, userID string) (*models.User, error) {
	if m.EnableFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.EnableFunc(ctx, actorID, userID)
}

func (m *MockAccountService) SetBanned(ctx context.Context, actorID, userID string, banned bool) (*models.User, error) {
	if m.SetBannedFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.SetBannedFunc(ctx, actorID, userID, banned)
}

func (m *MockAccountService) SetBlocked(ctx context.Context, actorID, userID string, blocked bool) (*models.User, error) {
	if m.SetBlockedFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.SetBlockedFunc(ctx, actorID, userID, blocked)
}

func (m *MockAccountService) ResetPassword(ctx context.Context, actorID, userID, newPassword string) error {
	if m.ResetPasswordFunc == nil {
		return models.ErrNotFound
	}
	return m.ResetPasswordFunc(ctx, actorID, userID, newPassword)
}

// MockTelemetryReader implements TelemetryReader for testing
type MockTelemetryReader struct {
	ListAuditLogsFunc       func(ctx context.Context, filter models.TelemetryFilter) ([]*models.AuditLog, error)
	ListSecurityMetricsFunc func(ctx context.Context, filter models.TelemetryFilter) ([]*models.SecurityMetric, error)
}

func (m *MockTelemetryReader) ListAuditLogs(ctx context.Context, filter models.TelemetryFilter) ([]*models.AuditLog, error) {
	if m.ListAuditLogsFunc == nil {
		return nil, nil
	}
	return m.ListAuditLogsFunc(ctx, filter)
}

func (m *MockTelemetryReader) ListSecurityMetrics(ctx context.Context, filter models.TelemetryFilter) ([]*models.SecurityMetric, error) {
	if m.ListSecurityMetricsFunc == nil {
		return nil, nil
	}
	return m.ListSecurityMetricsFunc(ctx, filter)
}

// MockAdminService implements AdminServiceInterface for testing
type MockAdminService struct {
	GetSecuritySummaryFunc func(ctx context.Context, window time.Duration) (*services.SecuritySummaryResponse, error)
}

func (m *MockAdminService) GetSecuritySummary(ctx context.Context, window time.Duration) (*services.SecuritySummaryResponse, error) {
	if m.GetSecuritySummaryFunc == nil {
		return &services.SecuritySummaryResponse{Counts: map[string]int64{}}, nil
	}
	return m.GetSecuritySummaryFunc(ctx, window)
}

// MockPinger implements Pinger for testing
type MockPinger struct {
	Err error
}

func (m *MockPinger) HealthCheck(ctx context.Context) error {
	return m.Err
}
