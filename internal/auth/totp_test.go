package auth

import (
	"crypto/rand"
	"encoding/base64"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTOTPManager(t *testing.T) *TOTPManager {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	tm, err := NewTOTPManager(key, "ClinicGuard")
	require.NoError(t, err)
	return tm
}

func codeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

// ============================================================================
// Constructor Tests
// ============================================================================

func TestTOTPManager_NewTOTPManager_InvalidKeyLength(t *testing.T) {
	for _, length := range []int{0, 16, 24, 31, 33, 64} {
		tm, err := NewTOTPManager(make([]byte, length), "ClinicGuard")
		assert.Error(t, err)
		assert.Nil(t, tm)
		assert.Contains(t, err.Error(), "must be exactly 32 bytes")
	}
}

// ============================================================================
// Setup Tests
// ============================================================================

func TestTOTPManager_GenerateSetup(t *testing.T) {
	tm := newTestTOTPManager(t)

	setup, err := tm.GenerateSetup("user@example.com")
	require.NoError(t, err)

	// 20 bytes base32 encodes to 32 characters
	assert.Len(t, setup.Secret, 32)
	assert.True(t, strings.HasPrefix(setup.ProvisioningURI, "otpauth://totp/"))
	assert.Contains(t, setup.ProvisioningURI, "issuer=ClinicGuard")
	assert.Contains(t, setup.ProvisioningURI, "secret="+setup.Secret)

	require.True(t, strings.HasPrefix(setup.QRCode, "data:image/png;base64,"))
	pngData, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(setup.QRCode, "data:image/png;base64,"))
	require.NoError(t, err)
	require.Greater(t, len(pngData), 4)

	// PNG signature: 137 80 78 71
	assert.Equal(t, []byte{137, 80, 78, 71}, pngData[:4])
}

func TestTOTPManager_GenerateSetup_FreshSecretEachTime(t *testing.T) {
	tm := newTestTOTPManager(t)

	a, err := tm.GenerateSetup("user@example.com")
	require.NoError(t, err)
	b, err := tm.GenerateSetup("user@example.com")
	require.NoError(t, err)

	assert.NotEqual(t, a.Secret, b.Secret)
}

// ============================================================================
// Encryption/Decryption Tests - SECURITY CRITICAL
// ============================================================================

func TestTOTPManager_EncryptDecrypt_RoundTrip(t *testing.T) {
	tm := newTestTOTPManager(t)

	encrypted, nonce, err := tm.EncryptSecret("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)
	assert.Len(t, nonce, 12) // GCM nonce is 12 bytes
	assert.NotContains(t, string(encrypted), "JBSWY3DPEHPK3PXP")

	decrypted, err := tm.DecryptSecret(encrypted, nonce)
	require.NoError(t, err)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", decrypted)
}

func TestTOTPManager_DecryptSecret_TamperedCiphertext(t *testing.T) {
	tm := newTestTOTPManager(t)

	encrypted, nonce, err := tm.EncryptSecret("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)

	encrypted[0] ^= 0xFF
	_, err = tm.DecryptSecret(encrypted, nonce)
	assert.Error(t, err)
}

func TestTOTPManager_DecryptSecret_WrongKey(t *testing.T) {
	tm := newTestTOTPManager(t)
	other := newTestTOTPManager(t)

	encrypted, nonce, err := tm.EncryptSecret("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)

	_, err = other.DecryptSecret(encrypted, nonce)
	assert.Error(t, err)
}

// ============================================================================
// Validation Tests
// ============================================================================

func TestTOTPManager_Validate_SkewWindow(t *testing.T) {
	tm := newTestTOTPManager(t)
	setup, err := tm.GenerateSetup("user@example.com")
	require.NoError(t, err)

	// Aligned to the start of a step so neighbours are exactly one step away
	now := time.Unix(1_800_000_000-(1_800_000_000%30), 0).UTC()
	tm.SetClock(func() time.Time { return now })

	tests := []struct {
		name   string
		offset time.Duration
		valid  bool
	}{
		{"current step", 0, true},
		{"previous step", -30 * time.Second, true},
		{"next step", 30 * time.Second, true},
		{"three steps back", -90 * time.Second, false},
		{"three steps ahead", 90 * time.Second, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := codeAt(t, setup.Secret, now.Add(tt.offset))
			assert.Equal(t, tt.valid, tm.Validate(setup.Secret, code))
		})
	}
}

func TestTOTPManager_Validate_RejectsMalformed(t *testing.T) {
	tm := newTestTOTPManager(t)
	setup, err := tm.GenerateSetup("user@example.com")
	require.NoError(t, err)

	for _, code := range []string{"", "12345", "1234567", "abcdef"} {
		assert.False(t, tm.Validate(setup.Secret, code), code)
	}
}

// ============================================================================
// Backup Code Tests
// ============================================================================

func TestTOTPManager_GenerateBackupCodes(t *testing.T) {
	tm := newTestTOTPManager(t)

	codes, err := tm.GenerateBackupCodes(10)
	require.NoError(t, err)
	require.Len(t, codes, 10)

	pattern := regexp.MustCompile(`^[0-9]{8}$`)
	seen := map[string]bool{}
	for _, code := range codes {
		assert.Regexp(t, pattern, code)
		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
}

func TestHashBackupCode(t *testing.T) {
	h := HashBackupCode("12345678")
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashBackupCode("12345678"))
	assert.NotEqual(t, h, HashBackupCode("12345679"))
}
