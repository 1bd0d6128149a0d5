package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/clinicguard/internal/models"
	pkgauth "github.com/BradenHooton/clinicguard/pkg/auth"
	pkghttp "github.com/BradenHooton/clinicguard/pkg/http"
)

// writeServiceError maps a service error onto the HTTP contract. Anything
// unrecognised is logged and returned as a generic 500.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var rlErr *models.RateLimitError
	var pwErr *pkgauth.PasswordValidationError

	switch {
	case errors.As(err, &rlErr):
		pkghttp.WriteTooManyRequests(w, "Too many attempts. Please try again later.", rlErr.RetryAfterSeconds(), rlErr.BlockedUntil)
	case errors.Is(err, models.ErrRateLimitExceeded):
		pkghttp.WriteTooManyRequests(w, "Too many attempts. Please try again later.", 1, nil)

	case errors.Is(err, models.ErrCaptchaRequired):
		message := "CAPTCHA verification required"
		if errors.Is(err, models.ErrCaptchaInvalid) {
			message = "CAPTCHA verification failed"
		}
		pkghttp.WriteErrorResponse(w, http.StatusBadRequest, pkghttp.ErrorResponse{
			Error:           "captcha_required",
			Message:         message,
			RequiresCaptcha: true,
		})

	case errors.Is(err, models.ErrInvalidCredentials):
		pkghttp.WriteUnauthorized(w, "Invalid email or password")

	case errors.Is(err, models.ErrTwoFactorRequired):
		pkghttp.WriteErrorResponse(w, http.StatusBadRequest, pkghttp.ErrorResponse{
			Error:       "two_factor_required",
			Message:     "Two-factor code required",
			Requires2FA: true,
		})
	case errors.Is(err, models.ErrTwoFactorInvalidCode):
		pkghttp.WriteErrorResponse(w, http.StatusBadRequest, pkghttp.ErrorResponse{
			Error:       "two_factor_required",
			Message:     "Invalid two-factor code",
			Requires2FA: true,
		})
	case errors.Is(err, models.ErrTwoFactorAlreadyEnabled):
		pkghttp.WriteConflict(w, "Two-factor authentication is already enabled")
	case errors.Is(err, models.ErrTwoFactorNotEnabled):
		pkghttp.WriteBadRequest(w, "Two-factor authentication is not enabled")

	case errors.Is(err, models.ErrAccountBanned):
		pkghttp.WriteError(w, http.StatusForbidden, "account_banned", "Account is banned")
	case errors.Is(err, models.ErrAccountBlocked):
		pkghttp.WriteError(w, http.StatusForbidden, "account_blocked", "Account is blocked")
	case errors.Is(err, models.ErrAccountDisabled):
		pkghttp.WriteError(w, http.StatusForbidden, "account_disabled", "Account is disabled")

	case errors.Is(err, models.ErrTokenInvalid), errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w, "No valid session")

	case errors.As(err, &pwErr):
		pkghttp.WriteBadRequest(w, pwErr.Error())
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, "Invalid request")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Resource not found")
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "Resource already exists")

	case errors.Is(err, models.ErrStoreUnavailable):
		logger.Error("backing store unavailable", slog.Any("error", err))
		pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
	default:
		logger.Error("unhandled service error", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
