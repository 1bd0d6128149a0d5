package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/clinicguard/internal/auth"
	"github.com/BradenHooton/clinicguard/internal/models"
	pkghttp "github.com/BradenHooton/clinicguard/pkg/http"
)

// TwoFactorServiceInterface defines TOTP enrolment operations
type TwoFactorServiceInterface interface {
	Setup(ctx context.Context, userID, email string) (*models.TwoFactorSetup, error)
	Enable(ctx context.Context, userID, secret, code string) ([]string, error)
	Disable(ctx context.Context, userID, code string) error
	Status(ctx context.Context, userID string) (*models.TwoFactorStatus, error)
}

// TwoFactorHandler handles /auth/2fa requests for the current user
type TwoFactorHandler struct {
	service TwoFactorServiceInterface
	logger  *slog.Logger
}

// NewTwoFactorHandler creates a new TwoFactorHandler
func NewTwoFactorHandler(service TwoFactorServiceInterface, logger *slog.Logger) *TwoFactorHandler {
	return &TwoFactorHandler{service: service, logger: logger}
}

// EnableTwoFactorRequest confirms a proposed secret
type EnableTwoFactorRequest struct {
	Secret string `json:"secret" validate:"required,min=16,max=128"`
	Code   string `json:"code" validate:"required,len=6,numeric"`
}

// DisableTwoFactorRequest accepts a TOTP or backup code
type DisableTwoFactorRequest struct {
	Code string `json:"code" validate:"required,max=16"`
}

// EnableTwoFactorResponse carries the one-time view of the backup codes
type EnableTwoFactorResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

// Status handles GET /auth/2fa/status
func (h *TwoFactorHandler) Status(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		pkghttp.WriteUnauthorized(w, "No valid session")
		return
	}

	status, err := h.service.Status(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, status)
}

// Setup handles POST /auth/2fa/setup
func (h *TwoFactorHandler) Setup(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		pkghttp.WriteUnauthorized(w, "No valid session")
		return
	}

	setup, err := h.service.Setup(r.Context(), user.ID, user.Email)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, setup)
}

// Enable handles POST /auth/2fa/enable
func (h *TwoFactorHandler) Enable(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		pkghttp.WriteUnauthorized(w, "No valid session")
		return
	}

	var req EnableTwoFactorRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	codes, err := h.service.Enable(r.Context(), user.ID, req.Secret, req.Code)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, EnableTwoFactorResponse{BackupCodes: codes})
}

// Disable handles POST /auth/2fa/disable
func (h *TwoFactorHandler) Disable(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		pkghttp.WriteUnauthorized(w, "No valid session")
		return
	}

	var req DisableTwoFactorRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.Disable(r.Context(), user.ID, req.Code); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "Two-factor authentication disabled"})
}
