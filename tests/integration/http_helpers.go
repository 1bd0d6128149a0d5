package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/BradenHooton/clinicguard/internal/auth"
	"github.com/BradenHooton/clinicguard/internal/config"
	"github.com/BradenHooton/clinicguard/internal/database"
	"github.com/BradenHooton/clinicguard/internal/handlers"
	middlewareCustom "github.com/BradenHooton/clinicguard/internal/middleware"
	"github.com/BradenHooton/clinicguard/internal/models"
	"github.com/BradenHooton/clinicguard/internal/repositories"
	"github.com/BradenHooton/clinicguard/internal/routes"
	"github.com/BradenHooton/clinicguard/internal/services"
	pkghttp "github.com/BradenHooton/clinicguard/pkg/http"
	pkglogger "github.com/BradenHooton/clinicguard/pkg/logger"
)

// SentNotification represents a captured outbound notification
type SentNotification struct {
	Kind  string
	To    string
	Until time.Time
}

// RecordingNotifier captures notifications for test assertions
type RecordingNotifier struct {
	mu   sync.Mutex
	Sent []SentNotification
}

func (n *RecordingNotifier) SendLockoutAlert(ctx context.Context, email string, blockedUntil time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Sent = append(n.Sent, SentNotification{Kind: "lockout", To: email, Until: blockedUntil})
	return nil
}

func (n *RecordingNotifier) SendAccountDisabled(ctx context.Context, email string, accessEndsAt, deletionAt time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Sent = append(n.Sent, SentNotification{Kind: "disabled", To: email, Until: deletionAt})
	return nil
}

// Kinds returns the kinds of every notification sent so far, in order
func (n *RecordingNotifier) Kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	kinds := make([]string, 0, len(n.Sent))
	for _, s := range n.Sent {
		kinds = append(kinds, s.Kind)
	}
	return kinds
}

// TestConfig returns a configuration suitable for running the full stack in tests
func TestConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:          "0",
			Env:           "test",
			LogLevel:      "warn",
			AuthRateLimit: 1000,
		},
		Auth: config.AuthConfig{
			AccessSecret:       "integration-access-secret-0123456789abcdef",
			RefreshSecret:      "integration-refresh-secret-0123456789abcdef",
			AccessTokenExpiry:  15 * time.Minute,
			RefreshTokenExpiry: 7 * 24 * time.Hour,
			CleanupInterval:    time.Hour,
		},
		Lockout: config.LockoutConfig{
			ResetWindow:    15 * time.Minute,
			BlockThreshold: 10,
			BlockDuration:  15 * time.Minute,
		},
		Registration: config.RegistrationConfig{
			FailureLimit:  5,
			FailureWindow: time.Hour,
			FailureBlock:  24 * time.Hour,
		},
		Captcha: config.CaptchaConfig{Threshold: 3},
		TwoFactor: config.TwoFactorConfig{
			Issuer:        "ClinicGuardTest",
			EncryptionKey: []byte("0123456789abcdef0123456789abcdef"),
		},
		Lifecycle: config.LifecycleConfig{
			GracePeriod:        30 * 24 * time.Hour,
			DeletionThreshold:  270 * 24 * time.Hour,
			TelemetryRetention: 90 * 24 * time.Hour,
		},
	}
}

// TestServer wraps httptest.Server with database and all dependencies
type TestServer struct {
	Server   *httptest.Server
	DB       *database.DB
	Notifier *RecordingNotifier
	Config   *config.Config
	Policy   models.LifecyclePolicy
}

// NewTestServer wires the real services, handlers and routes against db
func NewTestServer(db *database.DB) (*TestServer, error) {
	cfg := TestConfig()
	logger := pkglogger.New(io.Discard, cfg.Server.LogLevel)

	userRepo := repositories.NewUserRepository(db)
	blacklistRepo := repositories.NewTokenBlacklistRepository(db)
	attempts := repositories.NewLoginAttemptRepository(db)

	tokenManager, err := auth.NewTokenManager(cfg.Auth.AccessSecret, cfg.Auth.RefreshSecret, cfg.Auth.AccessTokenExpiry, cfg.Auth.RefreshTokenExpiry)
	if err != nil {
		return nil, fmt.Errorf("token manager: %w", err)
	}
	totpManager, err := auth.NewTOTPManager(cfg.TwoFactor.EncryptionKey, cfg.TwoFactor.Issuer)
	if err != nil {
		return nil, fmt.Errorf("totp manager: %w", err)
	}
	captchaVerifier, err := auth.NewCaptchaVerifier("", "", "", time.Second)
	if err != nil {
		return nil, fmt.Errorf("captcha verifier: %w", err)
	}
	blacklist := auth.NewBlacklist(blacklistRepo)
	notifier := &RecordingNotifier{}

	policy := models.LifecyclePolicy{
		GracePeriod:       cfg.Lifecycle.GracePeriod,
		DeletionThreshold: cfg.Lifecycle.DeletionThreshold,
	}
	auditService := services.NewAuditService(repositories.NewAuditLogRepository(db), repositories.NewSecurityMetricRepository(db), logger)
	lockoutService := services.NewLockoutService(attempts, cfg.Lockout, logger)
	accountService := services.NewAccountService(userRepo, lockoutService, notifier, auditService, policy, logger)
	twoFactorService := services.NewTwoFactorService(repositories.NewTwoFactorRepository(db), totpManager, auditService, logger)

	authService := services.NewAuthService(services.AuthDeps{
		Users:        userRepo,
		Tokens:       tokenManager,
		Blacklist:    blacklist,
		Lockout:      lockoutService,
		Captcha:      services.NewCaptchaGate(captchaVerifier, cfg.Captcha.Threshold, logger),
		TwoFactor:    twoFactorService,
		Accounts:     accountService,
		Registration: services.NewRegistrationGuard(attempts, cfg.Registration, logger),
		Notifier:     notifier,
		Audit:        auditService,
		Policy:       policy,
		Logger:       logger,
	})

	ipConfig := &pkghttp.IPConfig{}
	cookies := auth.NewCookieConfig("", false, cfg.Auth.AccessTokenExpiry, cfg.Auth.RefreshTokenExpiry)

	router := chi.NewRouter()
	router.Use(chiMiddleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(chiMiddleware.Recoverer)

	routes.RegisterRoutes(router,
		routes.Handlers{
			Auth:      handlers.NewAuthHandler(authService, accountService, cookies, ipConfig, logger),
			TwoFactor: handlers.NewTwoFactorHandler(twoFactorService, logger),
			Account:   handlers.NewAccountHandler(accountService, cookies, ipConfig, logger),
			Admin:     handlers.NewAdminHandler(auditService, services.NewAdminService(auditService, logger), logger),
			Health:    handlers.NewHealthHandler(db, logger),
		},
		auth.NewAuthenticator(tokenManager, blacklist, accountService, logger),
		middlewareCustom.RateLimitConfig{RequestsPerMinute: cfg.Server.AuthRateLimit, IPConfig: ipConfig},
	)

	return &TestServer{
		Server:   httptest.NewServer(router),
		DB:       db,
		Notifier: notifier,
		Config:   cfg,
		Policy:   policy,
	}, nil
}

// Close shuts down the HTTP server
func (ts *TestServer) Close() {
	ts.Server.Close()
}

// NewClient returns an HTTP client with its own cookie jar, like one browser
func (ts *TestServer) NewClient() *http.Client {
	jar, _ := cookiejar.New(nil)
	return &http.Client{Jar: jar, Timeout: 10 * time.Second}
}

// Response is a decoded HTTP response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       map[string]any
}

// Do sends a JSON request through client and decodes the JSON response body
func (ts *TestServer) Do(client *http.Client, method, path string, body any) (*Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	out := &Response{StatusCode: resp.StatusCode, Header: resp.Header}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out.Body); err != nil {
			return nil, fmt.Errorf("failed to decode body %q: %w", raw, err)
		}
	}
	return out, nil
}
