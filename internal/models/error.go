package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound         = errors.New("resource not found")
	ErrConflict         = errors.New("resource already exists")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrBadRequest       = errors.New("bad request")
	ErrInternalServer   = errors.New("internal server error")
	ErrStoreUnavailable = errors.New("backing store unavailable")

	// Credential and abuse-control errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRateLimitExceeded  = errors.New("rate limit exceeded")
	ErrCaptchaRequired    = errors.New("captcha required")
	ErrCaptchaInvalid     = errors.New("captcha verification failed")

	// Account state errors
	ErrAccountBanned   = errors.New("account is banned")
	ErrAccountBlocked  = errors.New("account is blocked")
	ErrAccountDisabled = errors.New("account is disabled")

	// Token errors, all surfaced to callers as "no session"
	ErrTokenInvalid   = errors.New("token is invalid")
	ErrTokenWrongType = errors.New("token type mismatch")
	ErrTokenRevoked   = errors.New("token has been revoked")

	// Two-factor errors
	ErrTwoFactorRequired       = errors.New("two-factor code required")
	ErrTwoFactorInvalidCode    = errors.New("invalid two-factor code")
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor authentication already enabled")
	ErrTwoFactorNotEnabled     = errors.New("two-factor authentication not enabled")
)

// RateLimitError carries machine-readable retry timing for a throttled caller.
// It unwraps to ErrRateLimitExceeded.
type RateLimitError struct {
	RetryAfter   time.Duration
	BlockedUntil *time.Time
}

func (e *RateLimitError) Error() string {
	if e.BlockedUntil != nil {
		return fmt.Sprintf("rate limit exceeded: blocked until %s", e.BlockedUntil.UTC().Format(time.RFC3339))
	}
	return fmt.Sprintf("rate limit exceeded: retry after %s", e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimitExceeded
}

// RetryAfterSeconds rounds the retry delay up to whole seconds, minimum 1.
func (e *RateLimitError) RetryAfterSeconds() int {
	secs := int((e.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
