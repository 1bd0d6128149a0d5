package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/clinicguard/internal/auth"
	"github.com/BradenHooton/clinicguard/internal/models"
	pkgauth "github.com/BradenHooton/clinicguard/pkg/auth"
	pkglogger "github.com/BradenHooton/clinicguard/pkg/logger"
)

// TokenRevoker blacklists tokens and answers revocation lookups.
type TokenRevoker interface {
	Revoke(ctx context.Context, token, userID, tokenType string, expiresAt time.Time, reason string) error
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// TwoFactorVerifier is the part of the two-factor engine login needs.
type TwoFactorVerifier interface {
	IsEnabled(ctx context.Context, userID string) (bool, error)
	VerifyCode(ctx context.Context, userID, code string) (models.TwoFactorVerification, error)
}

// AccessChecker applies the account lifecycle to a user id.
type AccessChecker interface {
	CheckAccess(ctx context.Context, userID string) (*models.User, error)
}

// AuthDeps are the collaborators of AuthService.
type AuthDeps struct {
	Users        UserRepository
	Tokens       *auth.TokenManager
	Blacklist    TokenRevoker
	Lockout      *LockoutService
	Captcha      *CaptchaGate
	TwoFactor    TwoFactorVerifier
	Accounts     AccessChecker
	Registration *RegistrationGuard
	Notifier     Notifier
	Audit        SecurityRecorder
	Policy       models.LifecyclePolicy
	Logger       *slog.Logger

	// RevokeRotatedRefresh blacklists the presented refresh token when it is
	// exchanged for a new pair.
	RevokeRotatedRefresh bool
}

// AuthService handles authentication business logic
type AuthService struct {
	AuthDeps
	now func() time.Time
}

// NewAuthService creates a new AuthService
func NewAuthService(deps AuthDeps) *AuthService {
	if deps.Notifier == nil {
		deps.Notifier = NoopNotifier{}
	}
	return &AuthService{AuthDeps: deps, now: time.Now}
}

// LoginInput is a password login attempt.
type LoginInput struct {
	Email         string
	Password      string
	CaptchaToken  string
	TwoFactorCode string
	IPAddress     string
	UserAgent     string
}

// LoginResult is a successful authentication.
type LoginResult struct {
	User           *models.User
	Tokens         *models.TokenPair
	UsedBackupCode bool
}

// Login authenticates a password login. Checks run in a fixed order: lockout,
// CAPTCHA, credentials, account state, second factor. Only credential and
// second-factor failures count against the lockout.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	decision, err := s.Lockout.Check(ctx, in.Email, in.IPAddress)
	if err != nil {
		s.Logger.Error("lockout check failed", slog.Any("error", err))
		return nil, err
	}
	if !decision.Allowed {
		s.Audit.RecordMetric(ctx, models.MetricRateLimited, "", in.IPAddress, nil, models.Details{
			"count":       decision.Count,
			"retry_after": decision.RetryAfter.Seconds(),
		})
		return nil, decision.Err()
	}

	if err := s.Captcha.Check(ctx, decision.Count, in.CaptchaToken, in.IPAddress); err != nil {
		metric := models.MetricCaptchaRequired
		if errors.Is(err, models.ErrCaptchaInvalid) {
			metric = models.MetricCaptchaFailed
		}
		s.Audit.RecordMetric(ctx, metric, "", in.IPAddress, nil, models.Details{"count": decision.Count})
		// A rejected token counts toward the lockout; a missing one does not.
		if errors.Is(err, models.ErrCaptchaInvalid) {
			return nil, s.failLogin(ctx, in, nil, "captcha_invalid", err)
		}
		return nil, err
	}

	user, err := s.Users.GetByEmail(ctx, in.Email)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.Logger.Error("failed to get user by email", slog.Any("error", err))
			return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
		}
		// Same bcrypt cost as a real comparison
		pkgauth.VerifyPassword("", in.Password)
		return nil, s.failLogin(ctx, in, nil, "invalid_credentials", models.ErrInvalidCredentials)
	}

	if !pkgauth.VerifyPassword(user.PasswordHash, in.Password) {
		return nil, s.failLogin(ctx, in, user, "invalid_credentials", models.ErrInvalidCredentials)
	}

	return s.completeLogin(ctx, user, in, "password")
}

// LoginWithIdentity authenticates a user whose identity an OAuth provider has
// already verified. The provider account is matched by its id, then by
// verified email, and a new account is created when neither matches.
func (s *AuthService) LoginWithIdentity(ctx context.Context, identity models.VerifiedIdentity, twoFactorCode, ip, userAgent string) (*LoginResult, error) {
	if identity.Provider == "" || identity.ProviderID == "" {
		return nil, models.ErrBadRequest
	}
	email := strings.ToLower(strings.TrimSpace(identity.Email))
	in := LoginInput{Email: email, TwoFactorCode: twoFactorCode, IPAddress: ip, UserAgent: userAgent}

	user, err := s.Users.GetByExternalIdentity(ctx, identity.Provider, identity.ProviderID)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrNotFound):
		if email == "" || !identity.EmailVerified {
			return nil, models.ErrUnauthorized
		}
		user, err = s.linkOrCreate(ctx, identity, email)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	in.Email = user.Email

	decision, err := s.Lockout.Check(ctx, in.Email, ip)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, decision.Err()
	}

	return s.completeLogin(ctx, user, in, identity.Provider)
}

func (s *AuthService) linkOrCreate(ctx context.Context, identity models.VerifiedIdentity, email string) (*models.User, error) {
	user, err := s.Users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if !user.EmailVerified {
			if err := s.Users.MarkEmailVerified(ctx, user.ID); err != nil {
				return nil, fmt.Errorf("failed to mark email verified: %w", err)
			}
			user.EmailVerified = true
		}
	case errors.Is(err, models.ErrNotFound):
		user, err = s.Users.Create(ctx, &models.User{
			Email:         email,
			Name:          identity.Name,
			Role:          models.RoleProfessional,
			EmailVerified: true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		s.Audit.LogEvent(ctx, AuditRecord{
			EventType: models.AuditEventRegister,
			ActorID:   user.ID,
			TargetID:  user.ID,
			Success:   true,
			Details:   models.Details{"provider": identity.Provider},
		})
	default:
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}

	if _, err := s.Users.LinkExternalIdentity(ctx, user.ID, identity.Provider, identity.ProviderID); err != nil {
		return nil, fmt.Errorf("failed to link identity: %w", err)
	}
	return user, nil
}

// completeLogin runs the checks shared by every login method once the
// credentials have been accepted.
func (s *AuthService) completeLogin(ctx context.Context, user *models.User, in LoginInput, method string) (*LoginResult, error) {
	if err := user.State().Check(s.Policy, s.now()); err != nil {
		s.Audit.RecordMetric(ctx, models.MetricAccountStateDenied, user.ID, in.IPAddress, user.ClinicID, models.Details{"reason": err.Error()})
		s.Audit.LogEvent(ctx, AuditRecord{
			EventType: models.AuditEventLogin,
			ActorID:   user.ID,
			Reason:    "account_state",
			IPAddress: in.IPAddress,
			UserAgent: in.UserAgent,
			ClinicID:  user.ClinicID,
		})
		return nil, err
	}

	result := &LoginResult{User: user}

	enabled, err := s.TwoFactor.IsEnabled(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if enabled {
		if strings.TrimSpace(in.TwoFactorCode) == "" {
			return nil, models.ErrTwoFactorRequired
		}
		verification, err := s.TwoFactor.VerifyCode(ctx, user.ID, in.TwoFactorCode)
		if err != nil {
			return nil, err
		}
		if !verification.Valid {
			s.Audit.RecordMetric(ctx, models.MetricTwoFactorFailure, user.ID, in.IPAddress, user.ClinicID, nil)
			return nil, s.failLogin(ctx, in, user, "invalid_two_factor_code", models.ErrTwoFactorInvalidCode)
		}
		result.UsedBackupCode = verification.UsedBackupCode
	}

	pair, err := s.Tokens.IssuePair(auth.SubjectFromUser(user))
	if err != nil {
		return nil, err
	}
	result.Tokens = pair

	if err := s.Lockout.Clear(ctx, in.Email, in.IPAddress); err != nil {
		s.Logger.Warn("failed to clear lockout record", slog.Any("error", err))
	}

	s.Audit.RecordMetric(ctx, models.MetricLoginSuccess, user.ID, in.IPAddress, user.ClinicID, models.Details{"method": method})
	s.Audit.LogEvent(ctx, AuditRecord{
		EventType: models.AuditEventLogin,
		ActorID:   user.ID,
		Success:   true,
		IPAddress: in.IPAddress,
		UserAgent: in.UserAgent,
		ClinicID:  user.ClinicID,
		Details:   models.Details{"method": method, "used_backup_code": result.UsedBackupCode},
	})
	return result, nil
}

// failLogin counts a credential failure and returns cause. A store failure
// while counting is returned instead so the attempt fails closed.
func (s *AuthService) failLogin(ctx context.Context, in LoginInput, user *models.User, reason string, cause error) error {
	var userID string
	var clinicID *string
	if user != nil {
		userID = user.ID
		clinicID = user.ClinicID
	}

	s.Audit.LogEvent(ctx, AuditRecord{
		EventType: models.AuditEventLogin,
		ActorID:   userID,
		Reason:    reason,
		IPAddress: in.IPAddress,
		UserAgent: in.UserAgent,
		ClinicID:  clinicID,
	})

	decision, err := s.Lockout.RecordFailure(ctx, in.Email, in.IPAddress)
	if err != nil {
		s.Logger.Error("failed to record login failure",
			slog.String("email", pkglogger.SanitizedEmail(in.Email)),
			slog.Any("error", err))
		return err
	}

	s.Audit.RecordMetric(ctx, models.MetricLoginFailure, userID, in.IPAddress, clinicID, models.Details{
		"reason": reason,
		"count":  decision.Count,
	})

	if decision.NewlyBlocked {
		s.Audit.RecordMetric(ctx, models.MetricLockoutTriggered, userID, in.IPAddress, clinicID, models.Details{
			"count":         decision.Count,
			"blocked_until": decision.BlockedUntil,
		})
		if user != nil && decision.BlockedUntil != nil {
			if err := s.Notifier.SendLockoutAlert(ctx, user.Email, *decision.BlockedUntil); err != nil {
				s.Logger.Warn("failed to send lockout alert", slog.String("user_id", user.ID), slog.Any("error", err))
			}
		}
	}

	return cause
}

// Refresh exchanges a refresh token for a new pair. The account lifecycle is
// re-checked on every rotation.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, ip string) (*LoginResult, error) {
	if refreshToken == "" {
		return nil, models.ErrTokenInvalid
	}
	claims, err := s.Tokens.Verify(refreshToken, models.TokenTypeRefresh)
	if err != nil {
		return nil, err
	}

	revoked, err := s.Blacklist.IsRevoked(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	if revoked {
		return nil, fmt.Errorf("%w: %w", models.ErrTokenInvalid, models.ErrTokenRevoked)
	}

	user, err := s.Accounts.CheckAccess(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrTokenInvalid
		}
		return nil, err
	}

	pair, err := s.Tokens.IssuePair(auth.SubjectFromUser(user))
	if err != nil {
		return nil, err
	}

	if s.RevokeRotatedRefresh {
		if err := s.Blacklist.Revoke(ctx, refreshToken, user.ID, models.TokenTypeRefresh, claims.ExpiresAt.Time, "rotated"); err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
		}
	}

	s.Audit.LogEvent(ctx, AuditRecord{
		EventType: models.AuditEventRefresh,
		ActorID:   user.ID,
		Success:   true,
		IPAddress: ip,
		ClinicID:  user.ClinicID,
	})
	return &LoginResult{User: user, Tokens: pair}, nil
}

// LogoutInput identifies the session being ended.
type LogoutInput struct {
	UserID          string
	AccessToken     string
	AccessExpiresAt time.Time
	RefreshToken    string
	IPAddress       string
}

// Logout blacklists the access token and, when it verifies, the refresh
// token, each until its natural expiry.
func (s *AuthService) Logout(ctx context.Context, in LogoutInput) error {
	if in.AccessToken != "" {
		if err := s.Blacklist.Revoke(ctx, in.AccessToken, in.UserID, models.TokenTypeAccess, in.AccessExpiresAt, "logout"); err != nil {
			return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
		}
	}

	if in.RefreshToken != "" {
		if claims, err := s.Tokens.Verify(in.RefreshToken, models.TokenTypeRefresh); err == nil {
			if err := s.Blacklist.Revoke(ctx, in.RefreshToken, claims.UserID, models.TokenTypeRefresh, claims.ExpiresAt.Time, "logout"); err != nil {
				return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
			}
		}
	}

	s.Audit.RecordMetric(ctx, models.MetricTokenRevoked, in.UserID, in.IPAddress, nil, models.Details{"reason": "logout"})
	s.Audit.LogEvent(ctx, AuditRecord{
		EventType: models.AuditEventLogout,
		ActorID:   in.UserID,
		Success:   true,
		IPAddress: in.IPAddress,
	})
	return nil
}

// RegisterInput is a public sign-up request.
type RegisterInput struct {
	Email     string
	Password  string
	Name      string
	IPAddress string
	UserAgent string
}

// Register creates a professional account behind the registration guard.
// Password policy rejections are not counted as failures; a duplicate email is.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	if err := s.Registration.Allow(ctx, in.IPAddress); err != nil {
		if errors.Is(err, models.ErrRateLimitExceeded) {
			s.Audit.RecordMetric(ctx, models.MetricRegistrationDenied, "", in.IPAddress, nil, nil)
		}
		return nil, err
	}

	if err := pkgauth.ValidatePassword(in.Password); err != nil {
		return nil, err
	}

	hash, err := pkgauth.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.Users.Create(ctx, &models.User{
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		PasswordHash: hash,
		Name:         strings.TrimSpace(in.Name),
		Role:         models.RoleProfessional,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			if ferr := s.Registration.RecordFailure(ctx, in.IPAddress); ferr != nil {
				s.Logger.Warn("failed to record registration failure", slog.Any("error", ferr))
			}
			s.Audit.LogEvent(ctx, AuditRecord{
				EventType: models.AuditEventRegister,
				Reason:    "email_taken",
				IPAddress: in.IPAddress,
				UserAgent: in.UserAgent,
			})
			return nil, models.ErrConflict
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.Audit.LogEvent(ctx, AuditRecord{
		EventType: models.AuditEventRegister,
		ActorID:   user.ID,
		TargetID:  user.ID,
		Success:   true,
		IPAddress: in.IPAddress,
		UserAgent: in.UserAgent,
	})
	return user, nil
}
