package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEncryptionKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_ACCESS_SECRET", "access-secret-32-characters-long!")
	t.Setenv("JWT_REFRESH_SECRET", "refresh-secret-32-characters-long")
	t.Setenv("DB_PASSWORD", "test")
	t.Setenv("TOTP_ENCRYPTION_KEY", testEncryptionKey)
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, time.Hour, cfg.Auth.AccessTokenExpiry)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.RefreshTokenExpiry)
	assert.False(t, cfg.Auth.RevokeRotatedRefresh)

	assert.Equal(t, time.Hour, cfg.Lockout.ResetWindow)
	assert.Equal(t, 10, cfg.Lockout.BlockThreshold)
	assert.Equal(t, 15*time.Minute, cfg.Lockout.BlockDuration)
	assert.Empty(t, cfg.Lockout.IPWhitelist)

	assert.Equal(t, 5, cfg.Registration.FailureLimit)
	assert.Equal(t, 24*time.Hour, cfg.Registration.FailureBlock)

	assert.Equal(t, "", cfg.Captcha.Provider)
	assert.Equal(t, 3, cfg.Captcha.Threshold)

	assert.Len(t, cfg.TwoFactor.EncryptionKey, 32)
	assert.Equal(t, 30*24*time.Hour, cfg.Lifecycle.GracePeriod)
	assert.Equal(t, 240*24*time.Hour, cfg.Lifecycle.DeletionThreshold)

	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 60*time.Second, cfg.Server.IdleTimeout)
	assert.False(t, cfg.Server.IsProduction())
}

func TestLoad_CustomValues(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SERVER_READ_TIMEOUT", "30s")
	t.Setenv("LOCKOUT_IP_WHITELIST", "10.0.0.0/8, 192.168.1.7")
	t.Setenv("REVOKE_ROTATED_REFRESH", "true")
	t.Setenv("CAPTCHA_PROVIDER", "Turnstile")
	t.Setenv("CAPTCHA_SECRET_KEY", "0x0000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.1.7"}, cfg.Lockout.IPWhitelist)
	assert.True(t, cfg.Auth.RevokeRotatedRefresh)
	assert.Equal(t, "turnstile", cfg.Captcha.Provider)
}

func TestLoad_InvalidDurationFallsBack(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SERVER_READ_TIMEOUT", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"missing access secret", map[string]string{"JWT_ACCESS_SECRET": ""}, "JWT_ACCESS_SECRET is required"},
		{"missing refresh secret", map[string]string{"JWT_REFRESH_SECRET": ""}, "JWT_REFRESH_SECRET is required"},
		{"same secrets", map[string]string{"JWT_REFRESH_SECRET": "access-secret-32-characters-long!"}, "must differ"},
		{"short secret", map[string]string{"JWT_ACCESS_SECRET": "short"}, "at least 16"},
		{"production secret length", map[string]string{"ENV": "production", "JWT_ACCESS_SECRET": "only-twenty-chars-xx"}, "at least 32"},
		{"missing db password", map[string]string{"DB_PASSWORD": ""}, "DB_PASSWORD is required"},
		{"missing totp key", map[string]string{"TOTP_ENCRYPTION_KEY": ""}, "TOTP_ENCRYPTION_KEY is required"},
		{"short totp key", map[string]string{"TOTP_ENCRYPTION_KEY": "0001"}, "32 bytes"},
		{"non hex totp key", map[string]string{"TOTP_ENCRYPTION_KEY": "zz"}, "hex encoded"},
		{"bad whitelist", map[string]string{"LOCKOUT_IP_WHITELIST": "10.0.0.0/99"}, "not a valid CIDR"},
		{"unknown captcha", map[string]string{"CAPTCHA_PROVIDER": "recaptcha"}, "not supported"},
		{"captcha without key", map[string]string{"CAPTCHA_PROVIDER": "turnstile"}, "CAPTCHA_SECRET_KEY"},
		{"email without sender", map[string]string{"EMAIL_ENABLED": "true"}, "EMAIL_FROM_ADDRESS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateJWTSecret_WeakValues(t *testing.T) {
	err := validateJWTSecret("JWT_ACCESS_SECRET", "changeme", "test")
	require.Error(t, err)

	err = validateJWTSecret("JWT_ACCESS_SECRET", "a-perfectly-fine-secret", "development")
	assert.NoError(t, err)
}
