package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/clinicguard/internal/database"
	"github.com/BradenHooton/clinicguard/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TokenBlacklistRepository stores revoked token digests. Raw tokens never
// reach this layer.
type TokenBlacklistRepository struct {
	pool *pgxpool.Pool
}

func NewTokenBlacklistRepository(db *database.DB) *TokenBlacklistRepository {
	return &TokenBlacklistRepository{pool: db.Pool}
}

// Add inserts an entry. Revoking an already revoked token is a no-op.
func (r *TokenBlacklistRepository) Add(ctx context.Context, entry *models.BlacklistEntry) error {
	query := `
		INSERT INTO token_blacklist (token_id, user_id, token_type, expires_at, reason)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (token_id) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query, entry.TokenID, entry.UserID, entry.TokenType, entry.ExpiresAt, entry.Reason)
	if err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}

// Exists reports whether tokenID is blacklisted and not yet past its expiry.
func (r *TokenBlacklistRepository) Exists(ctx context.Context, tokenID string, now time.Time) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM token_blacklist WHERE token_id = $1 AND expires_at > $2)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, tokenID, now).Scan(&exists); err != nil {
		return false, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}

	return exists, nil
}

// DeleteExpired removes entries whose tokens have expired naturally.
func (r *TokenBlacklistRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM token_blacklist WHERE expires_at < $1`, now)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return result.RowsAffected(), nil
}
