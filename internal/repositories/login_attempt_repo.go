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

// AttemptMutation receives the current record (nil when none exists) and
// returns the record to persist. Returning nil deletes the record.
type AttemptMutation func(current *models.LoginAttemptRecord) (*models.LoginAttemptRecord, error)

// LoginAttemptRepository keeps lockout records in Postgres. Every mutation
// runs under a row lock so concurrent failures for one identifier serialise.
type LoginAttemptRepository struct {
	db *database.DB
}

// NewLoginAttemptRepository creates a new LoginAttemptRepository
func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

const attemptColumns = `identifier, count, first_attempt_at, last_attempt_at, blocked_until, level`

func scanAttemptRow(scanner rowScanner) (*models.LoginAttemptRecord, error) {
	var rec models.LoginAttemptRecord
	err := scanner.Scan(&rec.Identifier, &rec.Count, &rec.FirstAttemptAt, &rec.LastAttemptAt, &rec.BlockedUntil, &rec.Level)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &rec, nil
}

// Get returns the record for identifier or models.ErrNotFound.
func (r *LoginAttemptRepository) Get(ctx context.Context, identifier string) (*models.LoginAttemptRecord, error) {
	query := `SELECT ` + attemptColumns + ` FROM login_attempts WHERE identifier = $1`
	rec, err := scanAttemptRow(r.db.Pool.QueryRow(ctx, query, identifier))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return rec, nil
}

// Mutate applies fn to the identifier's record atomically.
func (r *LoginAttemptRepository) Mutate(ctx context.Context, identifier string, fn AttemptMutation) (*models.LoginAttemptRecord, error) {
	var result *models.LoginAttemptRecord
	var fnErr error

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		// Placeholder row so there is always something to lock, even for the
		// very first failure.
		_, err := tx.Exec(ctx, `
			INSERT INTO login_attempts (identifier, count, first_attempt_at, last_attempt_at)
			VALUES ($1, 0, NOW(), NOW())
			ON CONFLICT (identifier) DO NOTHING
		`, identifier)
		if err != nil {
			return err
		}

		current, err := scanAttemptRow(tx.QueryRow(ctx,
			`SELECT `+attemptColumns+` FROM login_attempts WHERE identifier = $1 FOR UPDATE`, identifier))
		if err != nil {
			return err
		}
		if current.Count == 0 {
			current = nil
		}

		var next *models.LoginAttemptRecord
		next, fnErr = fn(current)
		if fnErr != nil {
			return fnErr
		}

		if next == nil {
			_, err = tx.Exec(ctx, `DELETE FROM login_attempts WHERE identifier = $1`, identifier)
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE login_attempts
			SET count = $2, first_attempt_at = $3, last_attempt_at = $4, blocked_until = $5, level = $6
			WHERE identifier = $1
		`, identifier, next.Count, next.FirstAttemptAt, next.LastAttemptAt, next.BlockedUntil, next.Level)
		if err != nil {
			return err
		}
		result = next
		return nil
	})
	if fnErr != nil {
		return nil, fnErr
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}

	return result, nil
}

// Delete removes the identifier's record. Missing records are not an error.
func (r *LoginAttemptRepository) Delete(ctx context.Context, identifier string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM login_attempts WHERE identifier = $1`, identifier)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

// DeleteIdentity removes the bare email record and every "email:ip" record
// for email.
func (r *LoginAttemptRepository) DeleteIdentity(ctx context.Context, email string) error {
	query := `DELETE FROM login_attempts WHERE identifier = $1 OR starts_with(identifier, $1 || ':')`
	if _, err := r.db.Pool.Exec(ctx, query, email); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

// DeleteExpired prunes records that have not been touched since staleBefore
// and carry no block still in force at now.
func (r *LoginAttemptRepository) DeleteExpired(ctx context.Context, staleBefore, now time.Time) (int64, error) {
	query := `
		DELETE FROM login_attempts
		WHERE last_attempt_at < $1 AND (blocked_until IS NULL OR blocked_until < $2)
	`

	result, err := r.db.Pool.Exec(ctx, query, staleBefore, now)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return result.RowsAffected(), nil
}
