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
)

// BackupCodeCount is the number of single-use codes issued on enable.
const BackupCodeCount = 10

// TwoFactorStore persists second-factor configuration and backup codes.
type TwoFactorStore interface {
	Get(ctx context.Context, userID string) (*models.TwoFactorConfig, error)
	Enable(ctx context.Context, cfg *models.TwoFactorConfig, codeHashes []string) error
	ConsumeBackupCode(ctx context.Context, userID, codeHash string) (bool, error)
	CountBackupCodes(ctx context.Context, userID string) (int, error)
	Delete(ctx context.Context, userID string) error
}

// TwoFactorService implements TOTP enrolment and verification.
type TwoFactorService struct {
	store  TwoFactorStore
	totp   *auth.TOTPManager
	audit  SecurityRecorder
	logger *slog.Logger
	now    func() time.Time
}

// NewTwoFactorService creates a new TwoFactorService
func NewTwoFactorService(store TwoFactorStore, totp *auth.TOTPManager, audit SecurityRecorder, logger *slog.Logger) *TwoFactorService {
	return &TwoFactorService{
		store:  store,
		totp:   totp,
		audit:  audit,
		logger: logger,
		now:    time.Now,
	}
}

// Setup proposes a new secret. Nothing is stored until Enable succeeds.
func (s *TwoFactorService) Setup(ctx context.Context, userID, email string) (*models.TwoFactorSetup, error) {
	enabled, err := s.IsEnabled(ctx, userID)
	if err != nil {
		return nil, err
	}
	if enabled {
		return nil, models.ErrTwoFactorAlreadyEnabled
	}

	setup, err := s.totp.GenerateSetup(email)
	if err != nil {
		return nil, fmt.Errorf("failed to generate two-factor setup: %w", err)
	}
	return setup, nil
}

// Enable confirms the proposed secret with a current code, stores it
// encrypted, and returns the plaintext backup codes. They are shown once.
func (s *TwoFactorService) Enable(ctx context.Context, userID, secret, code string) ([]string, error) {
	enabled, err := s.IsEnabled(ctx, userID)
	if err != nil {
		return nil, err
	}
	if enabled {
		return nil, models.ErrTwoFactorAlreadyEnabled
	}

	if !s.totp.Validate(secret, normalizeCode(code)) {
		return nil, models.ErrTwoFactorInvalidCode
	}

	codes, err := s.totp.GenerateBackupCodes(BackupCodeCount)
	if err != nil {
		return nil, err
	}
	hashes := make([]string, len(codes))
	for i, c := range codes {
		hashes[i] = auth.HashBackupCode(c)
	}

	encrypted, nonce, err := s.totp.EncryptSecret(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt two-factor secret: %w", err)
	}

	now := s.now()
	cfg := &models.TwoFactorConfig{
		UserID:          userID,
		SecretEncrypted: encrypted,
		SecretNonce:     nonce,
		Enabled:         true,
		EnabledAt:       &now,
	}
	if err := s.store.Enable(ctx, cfg, hashes); err != nil {
		if errors.Is(err, models.ErrTwoFactorAlreadyEnabled) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to enable two-factor: %w", err)
	}

	s.audit.LogEvent(ctx, AuditRecord{
		EventType: models.AuditEventTwoFactorEnable,
		ActorID:   userID,
		TargetID:  userID,
		Success:   true,
	})
	return codes, nil
}

// IsEnabled reports whether the user has an enabled configuration.
func (s *TwoFactorService) IsEnabled(ctx context.Context, userID string) (bool, error) {
	cfg, err := s.store.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("%w: failed to load two-factor config: %v", models.ErrStoreUnavailable, err)
	}
	return cfg.Enabled, nil
}

// VerifyCode checks code as a TOTP first, then as a backup code. A matching
// backup code is consumed in the same statement that finds it.
func (s *TwoFactorService) VerifyCode(ctx context.Context, userID, code string) (models.TwoFactorVerification, error) {
	cfg, err := s.store.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.TwoFactorVerification{}, models.ErrTwoFactorNotEnabled
		}
		return models.TwoFactorVerification{}, fmt.Errorf("%w: failed to load two-factor config: %v", models.ErrStoreUnavailable, err)
	}
	if !cfg.Enabled {
		return models.TwoFactorVerification{}, models.ErrTwoFactorNotEnabled
	}

	secret, err := s.totp.DecryptSecret(cfg.SecretEncrypted, cfg.SecretNonce)
	if err != nil {
		return models.TwoFactorVerification{}, err
	}

	code = normalizeCode(code)
	if s.totp.Validate(secret, code) {
		return models.TwoFactorVerification{Valid: true}, nil
	}

	if len(code) != 8 {
		return models.TwoFactorVerification{}, nil
	}
	consumed, err := s.store.ConsumeBackupCode(ctx, userID, auth.HashBackupCode(code))
	if err != nil {
		return models.TwoFactorVerification{}, fmt.Errorf("%w: failed to consume backup code: %v", models.ErrStoreUnavailable, err)
	}
	if !consumed {
		return models.TwoFactorVerification{}, nil
	}

	s.audit.RecordMetric(ctx, models.MetricBackupCodeUsed, userID, "", nil, nil)
	return models.TwoFactorVerification{Valid: true, UsedBackupCode: true}, nil
}

// Disable turns two-factor off after a valid code and purges the secret and
// remaining backup codes.
func (s *TwoFactorService) Disable(ctx context.Context, userID, code string) error {
	result, err := s.VerifyCode(ctx, userID, code)
	if err != nil {
		return err
	}
	if !result.Valid {
		s.audit.LogEvent(ctx, AuditRecord{
			EventType: models.AuditEventTwoFactorDisable,
			ActorID:   userID,
			TargetID:  userID,
			Reason:    "invalid_code",
		})
		return models.ErrTwoFactorInvalidCode
	}

	if err := s.store.Delete(ctx, userID); err != nil {
		return fmt.Errorf("failed to disable two-factor: %w", err)
	}

	s.audit.LogEvent(ctx, AuditRecord{
		EventType: models.AuditEventTwoFactorDisable,
		ActorID:   userID,
		TargetID:  userID,
		Success:   true,
	})
	return nil
}

// Status reports whether two-factor is on and how many backup codes remain.
func (s *TwoFactorService) Status(ctx context.Context, userID string) (*models.TwoFactorStatus, error) {
	cfg, err := s.store.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &models.TwoFactorStatus{}, nil
		}
		return nil, fmt.Errorf("failed to load two-factor config: %w", err)
	}
	if !cfg.Enabled {
		return &models.TwoFactorStatus{}, nil
	}

	remaining, err := s.store.CountBackupCodes(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count backup codes: %w", err)
	}
	return &models.TwoFactorStatus{
		Enabled:              true,
		EnabledAt:            cfg.EnabledAt,
		BackupCodesRemaining: remaining,
	}, nil
}

// normalizeCode strips the separators users commonly type.
func normalizeCode(code string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(code))
}
