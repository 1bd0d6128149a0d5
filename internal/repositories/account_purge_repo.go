package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/clinicguard/internal/database"
	"github.com/BradenHooton/clinicguard/internal/models"
	"github.com/jackc/pgx/v5"
)

// purgeStep deletes one class of rows that reference an account.
type purgeStep struct {
	table string
	query string
}

// purgeSteps is ordered children before parents; the schema has no cascading
// constraints so the user row must go last.
var purgeSteps = []purgeStep{
	{"support_messages", `DELETE FROM support_messages WHERE user_id = $1`},
	{"token_blacklist", `DELETE FROM token_blacklist WHERE user_id = $1`},
	{"two_factor_backup_codes", `DELETE FROM two_factor_backup_codes WHERE user_id = $1`},
	{"two_factor_configs", `DELETE FROM two_factor_configs WHERE user_id = $1`},
	{"external_identities", `DELETE FROM external_identities WHERE user_id = $1`},
	{"professionals", `DELETE FROM professionals WHERE user_id = $1`},
	{"notifications", `DELETE FROM notifications WHERE user_id = $1`},
	{"credit_transactions", `DELETE FROM credit_transactions WHERE user_id = $1`},
	{"credits", `DELETE FROM credits WHERE user_id = $1`},
	{"clinical_sessions", `DELETE FROM clinical_sessions WHERE patient_id IN (SELECT id FROM patients WHERE owner_id = $1)`},
	{"appointments", `DELETE FROM appointments WHERE patient_id IN (SELECT id FROM patients WHERE owner_id = $1)`},
	{"patients", `DELETE FROM patients WHERE owner_id = $1`},
	{"audit_logs", `DELETE FROM audit_logs WHERE actor_id = $1 OR target_id = $1`},
	{"security_metrics", `DELETE FROM security_metrics WHERE user_id = $1`},
	{"messages", `DELETE FROM messages WHERE sender_id = $1`},
}

// PurgeResult counts deleted rows per table.
type PurgeResult map[string]int64

// AccountPurgeRepository permanently removes an account and everything it owns.
type AccountPurgeRepository struct {
	db *database.DB
}

func NewAccountPurgeRepository(db *database.DB) *AccountPurgeRepository {
	return &AccountPurgeRepository{db: db}
}

// purgeEligible reports whether an account may still be purged for cutoff.
// A re-enabled account, or one disabled again after the cutoff, is not.
func purgeEligible(isEnabled bool, disabledAt *time.Time, cutoff time.Time) bool {
	return !isEnabled && disabledAt != nil && !disabledAt.After(cutoff)
}

// PurgeAccount deletes all rows owned by userID, then the user row, in one
// transaction. The user row is locked and re-checked against cutoff first, so
// an account re-enabled or re-disabled after it was listed survives.
func (r *AccountPurgeRepository) PurgeAccount(ctx context.Context, userID string, cutoff time.Time) (PurgeResult, error) {
	result := PurgeResult{}

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		var isEnabled bool
		var disabledAt *time.Time
		err := tx.QueryRow(ctx,
			`SELECT is_enabled, disabled_at FROM users WHERE id = $1 FOR UPDATE`, userID,
		).Scan(&isEnabled, &disabledAt)
		if err != nil {
			return database.MapPostgresError(err)
		}
		if !purgeEligible(isEnabled, disabledAt, cutoff) {
			return fmt.Errorf("account %s is no longer scheduled for deletion: %w", userID, models.ErrConflict)
		}

		for _, step := range purgeSteps {
			tag, err := tx.Exec(ctx, step.query, userID)
			if err != nil {
				return fmt.Errorf("failed to purge %s: %w", step.table, err)
			}
			result[step.table] = tag.RowsAffected()
		}

		tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
		if err != nil {
			return fmt.Errorf("failed to purge users: %w", err)
		}
		result["users"] = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
