package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/BradenHooton/clinicguard/internal/auth"
	"github.com/BradenHooton/clinicguard/internal/background"
	"github.com/BradenHooton/clinicguard/internal/config"
	"github.com/BradenHooton/clinicguard/internal/database"
	"github.com/BradenHooton/clinicguard/internal/handlers"
	middlewareCustom "github.com/BradenHooton/clinicguard/internal/middleware"
	"github.com/BradenHooton/clinicguard/internal/models"
	"github.com/BradenHooton/clinicguard/internal/repositories"
	"github.com/BradenHooton/clinicguard/internal/routes"
	"github.com/BradenHooton/clinicguard/internal/services"
	pkgauth "github.com/BradenHooton/clinicguard/pkg/auth"
	pkghttp "github.com/BradenHooton/clinicguard/pkg/http"
	pkglogger "github.com/BradenHooton/clinicguard/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := pkglogger.New(os.Stdout, cfg.Server.LogLevel)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), time.Minute)
	err = db.Migrate(migrateCtx)
	migrateCancel()
	if err != nil {
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	blacklistRepo := repositories.NewTokenBlacklistRepository(db)
	twoFactorRepo := repositories.NewTwoFactorRepository(db)
	purgeRepo := repositories.NewAccountPurgeRepository(db)
	auditRepo := repositories.NewAuditLogRepository(db)
	metricRepo := repositories.NewSecurityMetricRepository(db)

	attemptStore, closeAttempts, err := newAttemptStore(cfg, db, logger)
	if err != nil {
		logger.Error("failed to initialize attempt store", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeAttempts()

	// Initialize auth primitives
	tokenManager, err := auth.NewTokenManager(
		cfg.Auth.AccessSecret,
		cfg.Auth.RefreshSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
	)
	if err != nil {
		logger.Error("failed to initialize token manager", slog.Any("error", err))
		os.Exit(1)
	}

	totpManager, err := auth.NewTOTPManager(cfg.TwoFactor.EncryptionKey, cfg.TwoFactor.Issuer)
	if err != nil {
		logger.Error("failed to initialize TOTP manager", slog.Any("error", err))
		os.Exit(1)
	}

	captchaVerifier, err := auth.NewCaptchaVerifier(cfg.Captcha.Provider, cfg.Captcha.SecretKey, cfg.Captcha.VerifyURL, cfg.Captcha.Timeout)
	if err != nil {
		logger.Error("failed to initialize CAPTCHA verifier", slog.Any("error", err))
		os.Exit(1)
	}

	blacklist := auth.NewBlacklist(blacklistRepo)

	var notifier services.Notifier = services.NoopNotifier{}
	if cfg.Email.Enabled {
		sesNotifier, err := services.NewSESNotifier(context.Background(), cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
		if err != nil {
			logger.Error("failed to initialize email service", slog.Any("error", err))
			os.Exit(1)
		}
		notifier = sesNotifier
	}

	// Initialize services
	policy := models.LifecyclePolicy{
		GracePeriod:       cfg.Lifecycle.GracePeriod,
		DeletionThreshold: cfg.Lifecycle.DeletionThreshold,
	}
	auditService := services.NewAuditService(auditRepo, metricRepo, logger)
	lockoutService := services.NewLockoutService(attemptStore, cfg.Lockout, logger)
	accountService := services.NewAccountService(userRepo, lockoutService, notifier, auditService, policy, logger)
	twoFactorService := services.NewTwoFactorService(twoFactorRepo, totpManager, auditService, logger)
	adminService := services.NewAdminService(auditService, logger)

	authService := services.NewAuthService(services.AuthDeps{
		Users:                userRepo,
		Tokens:               tokenManager,
		Blacklist:            blacklist,
		Lockout:              lockoutService,
		Captcha:              services.NewCaptchaGate(captchaVerifier, cfg.Captcha.Threshold, logger),
		TwoFactor:            twoFactorService,
		Accounts:             accountService,
		Registration:         services.NewRegistrationGuard(attemptStore, cfg.Registration, logger),
		Notifier:             notifier,
		Audit:                auditService,
		Policy:               policy,
		Logger:               logger,
		RevokeRotatedRefresh: cfg.Auth.RevokeRotatedRefresh,
	})

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	cookies := auth.NewCookieConfig(cfg.Auth.CookieDomain, cfg.Server.IsProduction(), cfg.Auth.AccessTokenExpiry, cfg.Auth.RefreshTokenExpiry)

	h := routes.Handlers{
		Auth:      handlers.NewAuthHandler(authService, accountService, cookies, ipConfig, logger),
		TwoFactor: handlers.NewTwoFactorHandler(twoFactorService, logger),
		Account:   handlers.NewAccountHandler(accountService, cookies, ipConfig, logger),
		Admin:     handlers.NewAdminHandler(auditService, adminService, logger),
		Health:    handlers.NewHealthHandler(db, logger),
	}

	// Bootstrap first admin user if configured
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminUser(ctx, userRepo, logger); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	cancel()

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(
		router,
		h,
		auth.NewAuthenticator(tokenManager, blacklist, accountService, logger),
		middlewareCustom.RateLimitConfig{RequestsPerMinute: cfg.Server.AuthRateLimit, IPConfig: ipConfig},
	)

	// Background work
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	cleanupManager := background.NewCleanupManager(blacklistRepo, attemptStore, auditService, cfg.Lifecycle.TelemetryRetention, logger, cfg.Auth.CleanupInterval)
	go cleanupManager.Start(bgCtx)

	reaper := background.NewReaper(userRepo, purgeRepo, auditService, policy, logger)
	var stopReaper func()
	if cfg.Lifecycle.ReaperSchedule != "" {
		c, err := reaper.Schedule(bgCtx, cfg.Lifecycle.ReaperSchedule)
		if err != nil {
			logger.Error("invalid reaper schedule", slog.String("schedule", cfg.Lifecycle.ReaperSchedule), slog.Any("error", err))
			os.Exit(1)
		}
		stopReaper = func() { <-c.Stop().Done() }
		logger.Info("reaper scheduled", slog.String("schedule", cfg.Lifecycle.ReaperSchedule))
	}

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}

	bgCancel()
	cleanupManager.Stop()
	if stopReaper != nil {
		stopReaper()
	}

	logger.Info("server stopped gracefully")
}

// attemptStore is what both the lockout engine and the cleanup sweep need
type attemptStore interface {
	services.AttemptStore
	background.AttemptPruner
}

// newAttemptStore picks Redis when REDIS_URL is set, else Postgres.
func newAttemptStore(cfg *config.Config, db *database.DB, logger *slog.Logger) (attemptStore, func(), error) {
	if cfg.Redis.URL == "" {
		return repositories.NewLoginAttemptRepository(db), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping failed: %w", err)
	}

	logger.Info("lockout records stored in redis", slog.String("addr", opts.Addr))
	retention := cfg.Lockout.ResetWindow
	if cfg.Registration.FailureWindow > retention {
		retention = cfg.Registration.FailureWindow
	}
	return repositories.NewRedisAttemptStore(client, "clinicguard:lockout", retention), func() { _ = client.Close() }, nil
}

// ensureAdminUser creates the first admin user if ADMIN_EMAIL and ADMIN_PASSWORD are set
func ensureAdminUser(ctx context.Context, userRepo *repositories.UserRepository, logger *slog.Logger) error {
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminEmail == "" || adminPassword == "" {
		logger.Info("no ADMIN_EMAIL or ADMIN_PASSWORD set, skipping admin user creation")
		return nil
	}

	// Check if admin already exists
	_, err := userRepo.GetByEmail(ctx, adminEmail)
	if err == nil {
		logger.Info("admin user already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	if err := pkgauth.ValidatePassword(adminPassword); err != nil {
		return fmt.Errorf("admin password rejected: %w", err)
	}
	hashedPassword, err := pkgauth.HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	now := time.Now()
	admin := &models.User{
		Email:             adminEmail,
		PasswordHash:      hashedPassword,
		Name:              "Admin",
		Role:              models.RoleAdmin,
		EmailVerified:     true,
		IsEnabled:         true,
		PasswordChangedAt: &now,
	}

	if _, err := userRepo.Create(ctx, admin); err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	logger.Info("admin user created", slog.String("email", pkglogger.SanitizedEmail(adminEmail)))
	return nil
}
