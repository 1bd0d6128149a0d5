package services

import (
	"context"
	"errors"
	"testing"

	"github.com/BradenHooton/clinicguard/internal/auth"
	"github.com/BradenHooton/clinicguard/internal/models"
	"github.com/stretchr/testify/assert"
)

// stubVerifier is a configurable auth.CaptchaVerifier
type stubVerifier struct {
	enabled bool
	result  auth.CaptchaResult
	err     error
	calls   int
}

func (s *stubVerifier) Enabled() bool { return s.enabled }

func (s *stubVerifier) Verify(ctx context.Context, token, remoteIP string) (auth.CaptchaResult, error) {
	s.calls++
	return s.result, s.err
}

func TestShouldShowCaptcha(t *testing.T) {
	assert.False(t, ShouldShowCaptcha(0, 3))
	assert.False(t, ShouldShowCaptcha(2, 3))
	assert.True(t, ShouldShowCaptcha(3, 3))
	assert.True(t, ShouldShowCaptcha(9, 3))
	assert.True(t, ShouldShowCaptcha(3, 0))
	assert.False(t, ShouldShowCaptcha(1, 2))
	assert.True(t, ShouldShowCaptcha(2, 2))
}

func TestCaptchaGate_DisabledProviderNeverDemands(t *testing.T) {
	gate := NewCaptchaGate(auth.NoopVerifier{}, 3, testLogger())

	assert.False(t, gate.Required(100))
	assert.NoError(t, gate.Check(context.Background(), 100, "", "203.0.113.5"))
}

func TestCaptchaGate_BelowThreshold(t *testing.T) {
	v := &stubVerifier{enabled: true}
	gate := NewCaptchaGate(v, 3, testLogger())

	assert.NoError(t, gate.Check(context.Background(), 2, "", ""))
	assert.Zero(t, v.calls)
}

func TestCaptchaGate_MissingToken(t *testing.T) {
	v := &stubVerifier{enabled: true}
	gate := NewCaptchaGate(v, 3, testLogger())

	err := gate.Check(context.Background(), 3, "", "")
	assert.ErrorIs(t, err, models.ErrCaptchaRequired)
	assert.NotErrorIs(t, err, models.ErrCaptchaInvalid)
	assert.Zero(t, v.calls)
}

func TestCaptchaGate_RejectedToken(t *testing.T) {
	v := &stubVerifier{enabled: true, result: auth.CaptchaResult{ErrorCodes: []string{"invalid-input-response"}}}
	gate := NewCaptchaGate(v, 3, testLogger())

	err := gate.Check(context.Background(), 4, "tok", "")
	assert.ErrorIs(t, err, models.ErrCaptchaRequired)
	assert.ErrorIs(t, err, models.ErrCaptchaInvalid)
}

func TestCaptchaGate_ProviderErrorFailsClosed(t *testing.T) {
	v := &stubVerifier{enabled: true, err: errors.New("timeout")}
	gate := NewCaptchaGate(v, 3, testLogger())

	assert.ErrorIs(t, gate.Check(context.Background(), 4, "tok", ""), models.ErrCaptchaRequired)
}

func TestCaptchaGate_AcceptedToken(t *testing.T) {
	v := &stubVerifier{enabled: true, result: auth.CaptchaResult{Success: true}}
	gate := NewCaptchaGate(v, 3, testLogger())

	assert.NoError(t, gate.Check(context.Background(), 4, "tok", ""))
	assert.Equal(t, 1, v.calls)
}
