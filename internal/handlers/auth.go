package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/clinicguard/internal/auth"
	"github.com/BradenHooton/clinicguard/internal/models"
	"github.com/BradenHooton/clinicguard/internal/services"
	pkghttp "github.com/BradenHooton/clinicguard/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Login(ctx context.Context, in services.LoginInput) (*services.LoginResult, error)
	Refresh(ctx context.Context, refreshToken, ip string) (*services.LoginResult, error)
	Logout(ctx context.Context, in services.LogoutInput) error
	Register(ctx context.Context, in services.RegisterInput) (*models.User, error)
}

// PhaseReporter computes an account's lifecycle phase.
type PhaseReporter interface {
	Phase(user *models.User) models.AccountPhase
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  AuthServiceInterface
	phases   PhaseReporter
	cookies  auth.CookieConfig
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, phases PhaseReporter, cookies auth.CookieConfig, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service:  service,
		phases:   phases,
		cookies:  cookies,
		ipConfig: ipConfig,
		logger:   logger,
	}
}

// Request DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email         string `json:"email" validate:"required,email"`
	Password      string `json:"password" validate:"required,max=72"`
	CaptchaToken  string `json:"captcha_token"`
	TwoFactorCode string `json:"two_factor_code" validate:"omitempty,max=16"`
}

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name" validate:"required,min=1,max=200"`
}

// Response DTOs

// UserResponse is the public view of an account. Credentials never leave
// the server.
type UserResponse struct {
	ID            string              `json:"id"`
	Email         string              `json:"email"`
	Name          string              `json:"name"`
	Role          string              `json:"role"`
	ClinicID      *string             `json:"clinic_id,omitempty"`
	EmailVerified bool                `json:"email_verified"`
	Phase         models.AccountPhase `json:"phase,omitempty"`
	DisabledAt    *time.Time          `json:"disabled_at,omitempty"`
}

// LoginResponse is returned on a successful login or refresh. Tokens travel
// only in cookies.
type LoginResponse struct {
	User           UserResponse `json:"user"`
	UsedBackupCode bool         `json:"used_backup_code,omitempty"`
}

func toUserResponse(u *models.User, phase models.AccountPhase) UserResponse {
	return UserResponse{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		Role:          u.Role,
		ClinicID:      u.ClinicID,
		EmailVerified: u.EmailVerified,
		Phase:         phase,
		DisabledAt:    u.DisabledAt,
	}
}

// Login handles user login
// @Summary User login
// @Accept json
// @Param request body LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} LoginResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 403 {object} pkghttp.ErrorResponse
// @Failure 429 {object} pkghttp.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.service.Login(r.Context(), services.LoginInput{
		Email:         req.Email,
		Password:      req.Password,
		CaptchaToken:  req.CaptchaToken,
		TwoFactorCode: req.TwoFactorCode,
		IPAddress:     pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent:     r.Header.Get("User-Agent"),
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	auth.SetSessionCookies(w, result.Tokens, h.cookies)
	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
		User:           toUserResponse(result.User, h.phases.Phase(result.User)),
		UsedBackupCode: result.UsedBackupCode,
	})
}

// Refresh rotates both session cookies. The refresh token is read from its
// cookie only.
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	refreshToken := auth.RefreshTokenFromCookie(r)
	if refreshToken == "" {
		pkghttp.WriteUnauthorized(w, "No valid session")
		return
	}

	result, err := h.service.Refresh(r.Context(), refreshToken, pkghttp.ExtractClientIP(r, h.ipConfig))
	if err != nil {
		if errors.Is(err, models.ErrTokenInvalid) {
			auth.ClearSessionCookies(w, h.cookies)
		}
		writeServiceError(w, h.logger, err)
		return
	}

	auth.SetSessionCookies(w, result.Tokens, h.cookies)
	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
		User: toUserResponse(result.User, h.phases.Phase(result.User)),
	})
}

// Logout blacklists the current tokens and clears the cookies.
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetClaims(r.Context())
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "No valid session")
		return
	}

	var accessExpiry time.Time
	if claims.ExpiresAt != nil {
		accessExpiry = claims.ExpiresAt.Time
	}

	err := h.service.Logout(r.Context(), services.LogoutInput{
		UserID:          claims.UserID,
		AccessToken:     auth.GetAccessToken(r.Context()),
		AccessExpiresAt: accessExpiry,
		RefreshToken:    auth.RefreshTokenFromCookie(r),
		IPAddress:       pkghttp.ExtractClientIP(r, h.ipConfig),
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	auth.ClearSessionCookies(w, h.cookies)
	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// Register handles public sign-up
// @Summary User registration
// @Accept json
// @Param request body RegisterRequest true "Register request"
// @Produce json
// @Success 202 {object} map[string]string
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 429 {object} pkghttp.ErrorResponse
// @Router /auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	_, err := h.service.Register(r.Context(), services.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		Name:      req.Name,
		IPAddress: pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent: r.Header.Get("User-Agent"),
	})
	// A taken email gets the same answer as a new one
	if err != nil && !errors.Is(err, models.ErrConflict) {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, map[string]string{
		"message": "Registration received. If the email is not already registered, you can now sign in.",
	})
}

// Me returns the authenticated user and their lifecycle phase.
// @Router /auth/me [get]
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		pkghttp.WriteUnauthorized(w, "No valid session")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, toUserResponse(user, h.phases.Phase(user)))
}
