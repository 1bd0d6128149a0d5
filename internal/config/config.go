package config

import (
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database     DatabaseConfig
	Server       ServerConfig
	Auth         AuthConfig
	Lockout      LockoutConfig
	Registration RegistrationConfig
	Captcha      CaptchaConfig
	TwoFactor    TwoFactorConfig
	Lifecycle    LifecycleConfig
	Redis        RedisConfig
	Email        EmailConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	AuthRateLimit  int // requests per minute per IP on public /auth routes
}

type AuthConfig struct {
	AccessSecret         string
	RefreshSecret        string
	AccessTokenExpiry    time.Duration
	RefreshTokenExpiry   time.Duration
	CookieDomain         string
	RevokeRotatedRefresh bool
	CleanupInterval      time.Duration
}

// LockoutConfig drives the progressive lockout engine for logins.
type LockoutConfig struct {
	ResetWindow    time.Duration
	BlockThreshold int
	BlockDuration  time.Duration
	IPWhitelist    []string // literal IPs or CIDRs
}

// RegistrationConfig drives the registration guard's failure counter.
type RegistrationConfig struct {
	FailureLimit  int
	FailureWindow time.Duration
	FailureBlock  time.Duration
}

type CaptchaConfig struct {
	Provider  string // "turnstile" or empty for none
	SecretKey string
	VerifyURL string
	Threshold int
	Timeout   time.Duration
}

type TwoFactorConfig struct {
	Issuer        string
	EncryptionKey []byte // AES-256 key for TOTP secrets at rest
}

type LifecycleConfig struct {
	GracePeriod        time.Duration
	DeletionThreshold  time.Duration
	ReaperSchedule     string // cron expression, empty disables the in-process reaper
	TelemetryRetention time.Duration
}

type RedisConfig struct {
	URL string // when set, lockout records live in Redis instead of Postgres
}

type EmailConfig struct {
	Enabled     bool
	AWSRegion   string
	FromAddress string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	accessSecret := getEnv("JWT_ACCESS_SECRET", "")
	if accessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	refreshSecret := getEnv("JWT_REFRESH_SECRET", "")
	if refreshSecret == "" {
		return nil, fmt.Errorf("JWT_REFRESH_SECRET is required")
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "clinicguard"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			AuthRateLimit:  getEnvAsInt("AUTH_RATE_LIMIT_PER_MINUTE", 20),
		},
		Auth: AuthConfig{
			AccessSecret:         accessSecret,
			RefreshSecret:        refreshSecret,
			AccessTokenExpiry:    getEnvAsDuration("ACCESS_TOKEN_EXPIRY", time.Hour),
			RefreshTokenExpiry:   getEnvAsDuration("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour),
			CookieDomain:         getEnv("COOKIE_DOMAIN", ""),
			RevokeRotatedRefresh: getEnvAsBool("REVOKE_ROTATED_REFRESH", false),
			CleanupInterval:      getEnvAsDuration("CLEANUP_INTERVAL", time.Hour),
		},
		Lockout: LockoutConfig{
			ResetWindow:    getEnvAsDuration("LOCKOUT_RESET_WINDOW", time.Hour),
			BlockThreshold: getEnvAsInt("LOCKOUT_BLOCK_THRESHOLD", 10),
			BlockDuration:  getEnvAsDuration("LOCKOUT_BLOCK_DURATION", 15*time.Minute),
			IPWhitelist:    getEnvAsList("LOCKOUT_IP_WHITELIST"),
		},
		Registration: RegistrationConfig{
			FailureLimit:  getEnvAsInt("REGISTRATION_FAILURE_LIMIT", 5),
			FailureWindow: getEnvAsDuration("REGISTRATION_FAILURE_WINDOW", 24*time.Hour),
			FailureBlock:  getEnvAsDuration("REGISTRATION_FAILURE_BLOCK", 24*time.Hour),
		},
		Captcha: CaptchaConfig{
			Provider:  strings.ToLower(getEnv("CAPTCHA_PROVIDER", "")),
			SecretKey: getEnv("CAPTCHA_SECRET_KEY", ""),
			VerifyURL: getEnv("CAPTCHA_VERIFY_URL", "https://challenges.cloudflare.com/turnstile/v0/siteverify"),
			Threshold: getEnvAsInt("CAPTCHA_THRESHOLD", 3),
			Timeout:   getEnvAsDuration("CAPTCHA_TIMEOUT", 5*time.Second),
		},
		TwoFactor: TwoFactorConfig{
			Issuer: getEnv("TOTP_ISSUER", "ClinicGuard"),
		},
		Lifecycle: LifecycleConfig{
			GracePeriod:        getEnvAsDuration("ACCOUNT_GRACE_PERIOD", 30*24*time.Hour),
			DeletionThreshold:  getEnvAsDuration("ACCOUNT_DELETION_THRESHOLD", 240*24*time.Hour),
			ReaperSchedule:     getEnv("REAPER_SCHEDULE", "0 3 * * *"),
			TelemetryRetention: getEnvAsDuration("TELEMETRY_RETENTION", 90*24*time.Hour),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Email: EmailConfig{
			Enabled:     getEnvAsBool("EMAIL_ENABLED", false),
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateJWTSecret("JWT_ACCESS_SECRET", accessSecret, env); err != nil {
		return nil, err
	}
	if err := validateJWTSecret("JWT_REFRESH_SECRET", refreshSecret, env); err != nil {
		return nil, err
	}
	if accessSecret == refreshSecret {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}

	key, err := parseEncryptionKey(getEnv("TOTP_ENCRYPTION_KEY", ""))
	if err != nil {
		return nil, err
	}
	cfg.TwoFactor.EncryptionKey = key

	if err := validateWhitelist(cfg.Lockout.IPWhitelist); err != nil {
		return nil, err
	}

	if cfg.Captcha.Provider != "" && cfg.Captcha.Provider != "turnstile" {
		return nil, fmt.Errorf("CAPTCHA_PROVIDER %q is not supported", cfg.Captcha.Provider)
	}
	if cfg.Captcha.Provider != "" && cfg.Captcha.SecretKey == "" {
		return nil, fmt.Errorf("CAPTCHA_SECRET_KEY is required when CAPTCHA_PROVIDER is set")
	}

	if cfg.Email.Enabled && cfg.Email.FromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when EMAIL_ENABLED is true")
	}

	if cfg.Lifecycle.GracePeriod >= cfg.Lifecycle.DeletionThreshold {
		return nil, fmt.Errorf("ACCOUNT_GRACE_PERIOD must be shorter than ACCOUNT_DELETION_THRESHOLD")
	}

	return cfg, nil
}

// IsProduction reports whether cookies must be marked Secure.
func (c *ServerConfig) IsProduction() bool {
	return c.Env == "production"
}

// validateJWTSecret enforces minimum security standards for a signing secret
func validateJWTSecret(name, secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("%s must be at least %d characters in %s environment (got %d)",
			name, minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("%s cannot be a common weak value", name)
		}
	}

	return nil
}

// parseEncryptionKey decodes the hex TOTP key; it must be 32 bytes.
func parseEncryptionKey(raw string) ([]byte, error) {
	if raw == "" {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY is required")
	}
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY must be hex encoded: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY must decode to 32 bytes (got %d)", len(key))
	}
	return key, nil
}

func validateWhitelist(entries []string) error {
	for _, entry := range entries {
		if strings.Contains(entry, "/") {
			if _, _, err := net.ParseCIDR(entry); err != nil {
				return fmt.Errorf("LOCKOUT_IP_WHITELIST entry %q is not a valid CIDR", entry)
			}
			continue
		}
		if net.ParseIP(entry) == nil {
			return fmt.Errorf("LOCKOUT_IP_WHITELIST entry %q is not a valid IP", entry)
		}
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		origins := getEnvAsList("ALLOWED_ORIGINS")
		if origins == nil {
			return []string{}
		}
		return origins
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
}
