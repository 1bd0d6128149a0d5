package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/clinicguard/internal/models"
	pkgauth "github.com/BradenHooton/clinicguard/pkg/auth"
	pkglogger "github.com/BradenHooton/clinicguard/pkg/logger"
)

// UserRepository defines the credential store operations the services need
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	MarkEmailVerified(ctx context.Context, id string) error
	Disable(ctx context.Context, id string, at time.Time) (*models.User, error)
	Enable(ctx context.Context, id string) (*models.User, error)
	SetBanned(ctx context.Context, id string, banned bool) (*models.User, error)
	SetBlocked(ctx context.Context, id string, blocked bool) (*models.User, error)
	GetByExternalIdentity(ctx context.Context, provider, providerID string) (*models.User, error)
	LinkExternalIdentity(ctx context.Context, userID, provider, providerID string) (*models.ExternalIdentity, error)
}

// SecurityRecorder receives audit events and security metrics. Recording
// never fails the caller.
type SecurityRecorder interface {
	LogEvent(ctx context.Context, rec AuditRecord)
	RecordMetric(ctx context.Context, metricType, userID, ipAddress string, clinicID *string, details models.Details)
}

// LockoutResetter clears lockout counters for an email across all IPs.
type LockoutResetter interface {
	ClearAll(ctx context.Context, email string) error
}

// AccountService applies the account lifecycle: self-service cancellation,
// admin state changes, and the per-request access check.
type AccountService struct {
	users    UserRepository
	lockout  LockoutResetter
	notifier Notifier
	audit    SecurityRecorder
	policy   models.LifecyclePolicy
	logger   *slog.Logger
	now      func() time.Time
}

// NewAccountService creates a new AccountService
func NewAccountService(users UserRepository, lockout LockoutResetter, notifier Notifier, audit SecurityRecorder, policy models.LifecyclePolicy, logger *slog.Logger) *AccountService {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &AccountService{
		users:    users,
		lockout:  lockout,
		notifier: notifier,
		audit:    audit,
		policy:   policy,
		logger:   logger,
		now:      time.Now,
	}
}

// Policy returns the lifecycle thresholds in force.
func (s *AccountService) Policy() models.LifecyclePolicy {
	return s.policy
}

// Phase returns the user's current lifecycle phase.
func (s *AccountService) Phase(user *models.User) models.AccountPhase {
	if user.IsEnabled {
		return models.PhaseActive
	}
	return s.policy.Phase(user.DisabledAt, s.now())
}

// CheckAccess loads the user and applies the lifecycle rules. It returns
// models.ErrNotFound for deleted users and an account state error when the
// account may not be used.
func (s *AccountService) CheckAccess(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: failed to load account: %v", models.ErrStoreUnavailable, err)
	}

	if err := user.State().Check(s.policy, s.now()); err != nil {
		return nil, err
	}
	return user, nil
}

// Disable is self-service cancellation. The account enters its grace period;
// disabled_at keeps its first value if the account was already disabled.
func (s *AccountService) Disable(ctx context.Context, userID, ip string) (*models.User, error) {
	user, err := s.users.Disable(ctx, userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to disable account: %w", err)
	}

	s.audit.LogEvent(ctx, AuditRecord{
		EventType: models.AuditEventAccountDisable,
		ActorID:   userID,
		TargetID:  userID,
		Success:   true,
		IPAddress: ip,
		ClinicID:  user.ClinicID,
	})

	if user.DisabledAt != nil {
		accessEnds := user.DisabledAt.Add(s.policy.GracePeriod)
		deletion := user.DisabledAt.Add(s.policy.DeletionThreshold)
		if err := s.notifier.SendAccountDisabled(ctx, user.Email, accessEnds, deletion); err != nil {
			s.logger.Warn("failed to send account disabled notification",
				slog.String("user_id", userID),
				slog.Any("error", err))
		}
	}

	return user, nil
}

// Enable re-enables an account and clears disabled_at.
func (s *AccountService) Enable(ctx context.Context, actorID, userID string) (*models.User, error) {
	user, err := s.users.Enable(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to enable account: %w", err)
	}
	s.logAdminAction(ctx, models.AuditEventAccountEnable, actorID, user, nil)
	return user, nil
}

// SetBanned sets or lifts a ban.
func (s *AccountService) SetBanned(ctx context.Context, actorID, userID string, banned bool) (*models.User, error) {
	user, err := s.users.SetBanned(ctx, userID, banned)
	if err != nil {
		return nil, fmt.Errorf("failed to update ban: %w", err)
	}
	s.logAdminAction(ctx, models.AuditEventAccountBan, actorID, user, models.Details{"banned": banned})
	return user, nil
}

// SetBlocked sets or lifts an administrative block.
func (s *AccountService) SetBlocked(ctx context.Context, actorID, userID string, blocked bool) (*models.User, error) {
	user, err := s.users.SetBlocked(ctx, userID, blocked)
	if err != nil {
		return nil, fmt.Errorf("failed to update block: %w", err)
	}
	s.logAdminAction(ctx, models.AuditEventAccountBlock, actorID, user, models.Details{"blocked": blocked})
	return user, nil
}

// ResetPassword sets a new password and clears every lockout counter for the
// account's email.
func (s *AccountService) ResetPassword(ctx context.Context, actorID, userID, newPassword string) error {
	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load account: %w", err)
	}

	hash, err := pkgauth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	if err := s.lockout.ClearAll(ctx, user.Email); err != nil {
		s.logger.Warn("failed to clear lockout after password reset",
			slog.String("email", pkglogger.SanitizedEmail(user.Email)),
			slog.Any("error", err))
	}

	s.logAdminAction(ctx, models.AuditEventPasswordReset, actorID, user, nil)
	return nil
}

func (s *AccountService) logAdminAction(ctx context.Context, eventType, actorID string, target *models.User, details models.Details) {
	s.audit.LogEvent(ctx, AuditRecord{
		EventType: eventType,
		ActorID:   actorID,
		TargetID:  target.ID,
		Success:   true,
		ClinicID:  target.ClinicID,
		Details:   details,
	})
}
