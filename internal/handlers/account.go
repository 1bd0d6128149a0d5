package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/clinicguard/internal/auth"
	"github.com/BradenHooton/clinicguard/internal/models"
	pkghttp "github.com/BradenHooton/clinicguard/pkg/http"
)

// AccountServiceInterface defines account lifecycle and admin state changes
type AccountServiceInterface interface {
	Policy() models.LifecyclePolicy
	Phase(user *models.User) models.AccountPhase
	Disable(ctx context.Context, userID, ip string) (*models.User, error)
	Enable(ctx context.Context, actorID, userID string) (*models.User, error)
	SetBanned(ctx context.Context, actorID, userID string, banned bool) (*models.User, error)
	SetBlocked(ctx context.Context, actorID, userID string, blocked bool) (*models.User, error)
	ResetPassword(ctx context.Context, actorID, userID, newPassword string) error
}

// AccountHandler handles self-service disable and admin account controls
type AccountHandler struct {
	service  AccountServiceInterface
	cookies  auth.CookieConfig
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

// NewAccountHandler creates a new AccountHandler
func NewAccountHandler(service AccountServiceInterface, cookies auth.CookieConfig, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		service:  service,
		cookies:  cookies,
		ipConfig: ipConfig,
		logger:   logger,
	}
}

// DisableAccountResponse tells the user how long they have to change their mind
type DisableAccountResponse struct {
	User         UserResponse `json:"user"`
	AccessEndsAt time.Time    `json:"access_ends_at"`
	DeletionAt   time.Time    `json:"deletion_at"`
}

// ResetPasswordRequest is an admin-initiated password change
type ResetPasswordRequest struct {
	Password string `json:"password" validate:"required"`
}

type targetUser struct {
	ID string `validate:"required,uuid"`
}

// Disable handles POST /account/disable
func (h *AccountHandler) Disable(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		pkghttp.WriteUnauthorized(w, "No valid session")
		return
	}

	updated, err := h.service.Disable(r.Context(), user.ID, pkghttp.ExtractClientIP(r, h.ipConfig))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	resp := DisableAccountResponse{User: toUserResponse(updated, h.service.Phase(updated))}
	if updated.DisabledAt != nil {
		policy := h.service.Policy()
		resp.AccessEndsAt = updated.DisabledAt.Add(policy.GracePeriod)
		resp.DeletionAt = updated.DisabledAt.Add(policy.DeletionThreshold)
	}
	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// Enable handles POST /admin/users/{id}/enable
func (h *AccountHandler) Enable(w http.ResponseWriter, r *http.Request) {
	h.applyStateChange(w, r, func(ctx context.Context, actorID, userID string) (*models.User, error) {
		return h.service.Enable(ctx, actorID, userID)
	})
}

// Ban handles POST /admin/users/{id}/ban
func (h *AccountHandler) Ban(w http.ResponseWriter, r *http.Request) {
	h.applyStateChange(w, r, func(ctx context.Context, actorID, userID string) (*models.User, error) {
		return h.service.SetBanned(ctx, actorID, userID, true)
	})
}

// Unban handles POST /admin/users/{id}/unban
func (h *AccountHandler) Unban(w http.ResponseWriter, r *http.Request) {
	h.applyStateChange(w, r, func(ctx context.Context, actorID, userID string) (*models.User, error) {
		return h.service.SetBanned(ctx, actorID, userID, false)
	})
}

// Block handles POST /admin/users/{id}/block
func (h *AccountHandler) Block(w http.ResponseWriter, r *http.Request) {
	h.applyStateChange(w, r, func(ctx context.Context, actorID, userID string) (*models.User, error) {
		return h.service.SetBlocked(ctx, actorID, userID, true)
	})
}

// Unblock handles POST /admin/users/{id}/unblock
func (h *AccountHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	h.applyStateChange(w, r, func(ctx context.Context, actorID, userID string) (*models.User, error) {
		return h.service.SetBlocked(ctx, actorID, userID, false)
	})
}

// ResetPassword handles POST /admin/users/{id}/reset-password
func (h *AccountHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	actor := auth.GetUser(r.Context())
	if actor == nil {
		pkghttp.WriteUnauthorized(w, "No valid session")
		return
	}
	userID, ok := h.targetID(w, r)
	if !ok {
		return
	}

	var req ResetPasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.ResetPassword(r.Context(), actor.ID, userID, req.Password); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "Password reset"})
}

func (h *AccountHandler) applyStateChange(w http.ResponseWriter, r *http.Request, change func(ctx context.Context, actorID, userID string) (*models.User, error)) {
	actor := auth.GetUser(r.Context())
	if actor == nil {
		pkghttp.WriteUnauthorized(w, "No valid session")
		return
	}
	userID, ok := h.targetID(w, r)
	if !ok {
		return
	}

	updated, err := change(r.Context(), actor.ID, userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, toUserResponse(updated, h.service.Phase(updated)))
}

// targetID reads and validates the {id} path parameter.
func (h *AccountHandler) targetID(w http.ResponseWriter, r *http.Request) (string, bool) {
	target := targetUser{ID: chi.URLParam(r, "id")}
	if err := ValidateRequest(target); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid user ID")
		return "", false
	}
	return target.ID, true
}
