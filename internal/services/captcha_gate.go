package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/clinicguard/internal/auth"
	"github.com/BradenHooton/clinicguard/internal/models"
)

// DefaultCaptchaThreshold is the failure count from which a CAPTCHA is demanded.
const DefaultCaptchaThreshold = 3

// ShouldShowCaptcha reports whether failureCount has reached threshold.
// A non-positive threshold means DefaultCaptchaThreshold.
func ShouldShowCaptcha(failureCount, threshold int) bool {
	if threshold <= 0 {
		threshold = DefaultCaptchaThreshold
	}
	return failureCount >= threshold
}

// CaptchaGate demands a solved CAPTCHA once an identifier has failed enough
// times. It only applies when a provider is configured.
type CaptchaGate struct {
	verifier  auth.CaptchaVerifier
	threshold int
	logger    *slog.Logger
}

// NewCaptchaGate creates a new CaptchaGate
func NewCaptchaGate(verifier auth.CaptchaVerifier, threshold int, logger *slog.Logger) *CaptchaGate {
	if verifier == nil {
		verifier = auth.NoopVerifier{}
	}
	return &CaptchaGate{verifier: verifier, threshold: threshold, logger: logger}
}

// Required reports whether a token must accompany the next attempt.
func (g *CaptchaGate) Required(failureCount int) bool {
	return g.verifier.Enabled() && ShouldShowCaptcha(failureCount, g.threshold)
}

// Check enforces the gate. A missing token yields models.ErrCaptchaRequired;
// a rejected token yields an error matching both ErrCaptchaRequired and
// ErrCaptchaInvalid. Provider failures fail closed.
func (g *CaptchaGate) Check(ctx context.Context, failureCount int, token, remoteIP string) error {
	if !g.Required(failureCount) {
		return nil
	}
	if token == "" {
		return models.ErrCaptchaRequired
	}

	result, err := g.verifier.Verify(ctx, token, remoteIP)
	if err != nil {
		g.logger.Error("captcha verification unavailable", slog.Any("error", err))
		return fmt.Errorf("%w: %w", models.ErrCaptchaRequired, models.ErrCaptchaInvalid)
	}
	if !result.Success {
		g.logger.Info("captcha rejected", slog.Any("error_codes", result.ErrorCodes))
		return fmt.Errorf("%w: %w", models.ErrCaptchaRequired, models.ErrCaptchaInvalid)
	}
	return nil
}
