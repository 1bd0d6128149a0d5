package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/clinicguard/internal/database"
	"github.com/BradenHooton/clinicguard/internal/models"
	"github.com/jackc/pgx/v5"
)

// TwoFactorRepository persists second-factor configuration and backup codes.
type TwoFactorRepository struct {
	db *database.DB
}

func NewTwoFactorRepository(db *database.DB) *TwoFactorRepository {
	return &TwoFactorRepository{db: db}
}

// Get returns the user's configuration or models.ErrNotFound.
func (r *TwoFactorRepository) Get(ctx context.Context, userID string) (*models.TwoFactorConfig, error) {
	query := `
		SELECT user_id, secret_encrypted, secret_nonce, enabled, enabled_at, updated_at
		FROM two_factor_configs WHERE user_id = $1
	`

	var cfg models.TwoFactorConfig
	err := r.db.Pool.QueryRow(ctx, query, userID).Scan(
		&cfg.UserID, &cfg.SecretEncrypted, &cfg.SecretNonce, &cfg.Enabled, &cfg.EnabledAt, &cfg.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &cfg, nil
}

// Enable stores the encrypted secret and replaces the backup code set in one
// transaction. It fails with models.ErrTwoFactorAlreadyEnabled when an
// enabled configuration already exists.
func (r *TwoFactorRepository) Enable(ctx context.Context, cfg *models.TwoFactorConfig, codeHashes []string) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		var enabled bool
		err := tx.QueryRow(ctx,
			`SELECT enabled FROM two_factor_configs WHERE user_id = $1 FOR UPDATE`, cfg.UserID,
		).Scan(&enabled)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
		case err != nil:
			return fmt.Errorf("failed to lock two-factor config: %w", err)
		case enabled:
			return models.ErrTwoFactorAlreadyEnabled
		}

		now := time.Now()
		_, err = tx.Exec(ctx, `
			INSERT INTO two_factor_configs (user_id, secret_encrypted, secret_nonce, enabled, enabled_at, updated_at)
			VALUES ($1, $2, $3, TRUE, $4, $4)
			ON CONFLICT (user_id) DO UPDATE
			SET secret_encrypted = EXCLUDED.secret_encrypted,
				secret_nonce = EXCLUDED.secret_nonce,
				enabled = TRUE,
				enabled_at = EXCLUDED.enabled_at,
				updated_at = EXCLUDED.updated_at
		`, cfg.UserID, cfg.SecretEncrypted, cfg.SecretNonce, now)
		if err != nil {
			return fmt.Errorf("failed to store two-factor config: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM two_factor_backup_codes WHERE user_id = $1`, cfg.UserID); err != nil {
			return fmt.Errorf("failed to clear backup codes: %w", err)
		}

		rows := make([][]any, 0, len(codeHashes))
		for _, h := range codeHashes {
			rows = append(rows, []any{cfg.UserID, h})
		}
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"two_factor_backup_codes"},
			[]string{"user_id", "code_hash"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("failed to store backup codes: %w", err)
		}

		cfg.Enabled = true
		cfg.EnabledAt = &now
		cfg.UpdatedAt = now
		return nil
	})
}

// ConsumeBackupCode deletes the matching code and reports whether one was
// removed. Two concurrent callers with the same code cannot both succeed.
func (r *TwoFactorRepository) ConsumeBackupCode(ctx context.Context, userID, codeHash string) (bool, error) {
	result, err := r.db.Pool.Exec(ctx,
		`DELETE FROM two_factor_backup_codes WHERE user_id = $1 AND code_hash = $2`, userID, codeHash)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return result.RowsAffected() == 1, nil
}

func (r *TwoFactorRepository) CountBackupCodes(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM two_factor_backup_codes WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return n, nil
}

// Delete purges the secret and every backup code for the user.
func (r *TwoFactorRepository) Delete(ctx context.Context, userID string) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM two_factor_backup_codes WHERE user_id = $1`, userID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM two_factor_configs WHERE user_id = $1`, userID)
		return err
	})
}
