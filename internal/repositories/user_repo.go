package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BradenHooton/clinicguard/internal/database"
	"github.com/BradenHooton/clinicguard/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{pool: db.Pool}
}

// rowScanner interface for scanning rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const userColumns = `id, email, password_hash, name, role, clinic_id, email_verified,
	is_enabled, is_blocked, is_banned, disabled_at, password_changed_at, created_at, updated_at`

// scanUserRow handles nullable fields and populates a User model from a database row
func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User
	var passwordHash *string

	err := scanner.Scan(
		&user.ID, &user.Email, &passwordHash, &user.Name, &user.Role, &user.ClinicID, &user.EmailVerified,
		&user.IsEnabled, &user.IsBlocked, &user.IsBanned, &user.DisabledAt, &user.PasswordChangedAt,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if passwordHash != nil {
		user.PasswordHash = *passwordHash
	}

	return &user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUserRow(r.pool.QueryRow(ctx, query, id))
}

// GetByEmail looks up a user case-insensitively.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUserRow(r.pool.QueryRow(ctx, query, strings.ToLower(email)))
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	user.ID = uuid.New().String()
	user.Email = strings.ToLower(user.Email)

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	if user.Role == "" {
		user.Role = models.RoleProfessional
	}

	query := `
		INSERT INTO users (id, email, password_hash, name, role, clinic_id, email_verified,
			is_enabled, password_changed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8, $9, $10)
		RETURNING ` + userColumns

	var passwordHash *string
	if user.PasswordHash != "" {
		passwordHash = &user.PasswordHash
	}

	return scanUserRow(r.pool.QueryRow(ctx, query,
		user.ID, user.Email, passwordHash, user.Name, user.Role, user.ClinicID, user.EmailVerified,
		user.PasswordChangedAt, user.CreatedAt, user.UpdatedAt,
	))
}

// UpdatePassword replaces the password hash and stamps password_changed_at.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	query := `UPDATE users SET password_hash = $1, password_changed_at = NOW(), updated_at = NOW() WHERE id = $2`
	return r.execOne(ctx, query, passwordHash, id)
}

// MarkEmailVerified sets email_verified once an identity provider has vouched for it.
func (r *UserRepository) MarkEmailVerified(ctx context.Context, id string) error {
	query := `UPDATE users SET email_verified = TRUE, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, query, id)
}

// Disable moves the account out of the enabled state. disabled_at is only
// written when it is not already set, so repeated calls keep the original
// timestamp.
func (r *UserRepository) Disable(ctx context.Context, id string, at time.Time) (*models.User, error) {
	query := `
		UPDATE users SET is_enabled = FALSE, disabled_at = COALESCE(disabled_at, $1), updated_at = NOW()
		WHERE id = $2
		RETURNING ` + userColumns
	return scanUserRow(r.pool.QueryRow(ctx, query, at, id))
}

// Enable re-enables the account and clears disabled_at.
func (r *UserRepository) Enable(ctx context.Context, id string) (*models.User, error) {
	query := `
		UPDATE users SET is_enabled = TRUE, disabled_at = NULL, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns
	return scanUserRow(r.pool.QueryRow(ctx, query, id))
}

func (r *UserRepository) SetBanned(ctx context.Context, id string, banned bool) (*models.User, error) {
	query := `UPDATE users SET is_banned = $1, updated_at = NOW() WHERE id = $2 RETURNING ` + userColumns
	return scanUserRow(r.pool.QueryRow(ctx, query, banned, id))
}

func (r *UserRepository) SetBlocked(ctx context.Context, id string, blocked bool) (*models.User, error) {
	query := `UPDATE users SET is_blocked = $1, updated_at = NOW() WHERE id = $2 RETURNING ` + userColumns
	return scanUserRow(r.pool.QueryRow(ctx, query, blocked, id))
}

// ListDisabledBefore returns disabled accounts whose disabled_at is at or
// before cutoff, ordered by (disabled_at, id). A non-nil after resumes
// strictly past that entry, so rows left behind by a failed purge never hide
// later ones.
func (r *UserRepository) ListDisabledBefore(ctx context.Context, cutoff time.Time, after *models.DisabledAccount, limit int) ([]models.DisabledAccount, error) {
	query := `
		SELECT id, disabled_at FROM users
		WHERE is_enabled = FALSE AND disabled_at IS NOT NULL AND disabled_at <= $1
			AND ($2::timestamptz IS NULL OR (disabled_at, id) > ($2::timestamptz, $3::uuid))
		ORDER BY disabled_at ASC, id ASC
		LIMIT $4
	`

	var afterAt *time.Time
	var afterID *string
	if after != nil {
		afterAt = &after.DisabledAt
		afterID = &after.ID
	}

	rows, err := r.pool.Query(ctx, query, cutoff, afterAt, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query disabled users: %w", err)
	}

	accounts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.DisabledAccount, error) {
		var a models.DisabledAccount
		err := row.Scan(&a.ID, &a.DisabledAt)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return accounts, nil
}

// GetByExternalIdentity resolves a provider account to its linked user.
func (r *UserRepository) GetByExternalIdentity(ctx context.Context, provider, providerID string) (*models.User, error) {
	query := `
		SELECT u.id, u.email, u.password_hash, u.name, u.role, u.clinic_id, u.email_verified,
			u.is_enabled, u.is_blocked, u.is_banned, u.disabled_at, u.password_changed_at, u.created_at, u.updated_at
		FROM users u
		JOIN external_identities ei ON ei.user_id = u.id
		WHERE ei.provider = $1 AND ei.provider_id = $2
	`
	return scanUserRow(r.pool.QueryRow(ctx, query, provider, providerID))
}

// LinkExternalIdentity records that a provider account belongs to userID.
func (r *UserRepository) LinkExternalIdentity(ctx context.Context, userID, provider, providerID string) (*models.ExternalIdentity, error) {
	query := `
		INSERT INTO external_identities (id, user_id, provider, provider_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, user_id, provider, provider_id, created_at
	`

	var ei models.ExternalIdentity
	err := r.pool.QueryRow(ctx, query, uuid.New().String(), userID, provider, providerID).Scan(
		&ei.ID, &ei.UserID, &ei.Provider, &ei.ProviderID, &ei.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &ei, nil
}

func (r *UserRepository) execOne(ctx context.Context, query string, args ...any) error {
	result, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
