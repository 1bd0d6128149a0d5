package integration

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/BradenHooton/clinicguard/internal/database"
	"github.com/BradenHooton/clinicguard/internal/models"
	"github.com/BradenHooton/clinicguard/internal/repositories"
	"github.com/BradenHooton/clinicguard/pkg/auth"
)

// TestDB manages PostgreSQL testcontainer and database operations
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	Pool       *pgxpool.Pool
	DB         *database.DB
}

// SetupTestDatabase creates a PostgreSQL testcontainer, runs migrations, returns TestDB
func SetupTestDatabase(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("clinicguard"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := database.NewFromPool(pool, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := db.Migrate(ctx); err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &TestDB{
		Container:  container,
		ConnString: connStr,
		Pool:       pool,
		DB:         db,
	}, nil
}

// Teardown stops the container and closes the connection pool
func (db *TestDB) Teardown(ctx context.Context) error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}

// CleanupTables truncates all tables for test isolation
func (db *TestDB) CleanupTables(ctx context.Context) error {
	tables := []string{
		"messages",
		"appointments",
		"clinical_sessions",
		"patients",
		"credit_transactions",
		"credits",
		"notifications",
		"professionals",
		"support_messages",
		"security_metrics",
		"audit_logs",
		"two_factor_backup_codes",
		"two_factor_configs",
		"token_blacklist",
		"login_attempts",
		"external_identities",
		"users",
	}

	for _, table := range tables {
		if _, err := db.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return nil
}

// SeedUser inserts an enabled, verified professional with a hashed password
func SeedUser(ctx context.Context, db *database.DB, email, password string) (*models.User, error) {
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user, err := repositories.NewUserRepository(db).Create(ctx, &models.User{
		Email:             email,
		PasswordHash:      hashedPassword,
		Name:              "Test User",
		Role:              models.RoleProfessional,
		EmailVerified:     true,
		IsEnabled:         true,
		PasswordChangedAt: &now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return user, nil
}

// SeedDisabledSince disables userID with disabled_at set to at
func SeedDisabledSince(ctx context.Context, pool *pgxpool.Pool, userID string, at time.Time) error {
	_, err := pool.Exec(ctx,
		`UPDATE users SET is_enabled = false, disabled_at = $2, updated_at = NOW() WHERE id = $1`,
		userID, at)
	if err != nil {
		return fmt.Errorf("failed to disable user: %w", err)
	}
	return nil
}

// SeedPatientWithSession inserts a patient owned by ownerID plus one clinical session
func SeedPatientWithSession(ctx context.Context, pool *pgxpool.Pool, ownerID string) (string, error) {
	var patientID string
	if err := pool.QueryRow(ctx,
		`INSERT INTO patients (owner_id, clinic_id) VALUES ($1, 'clinic-1') RETURNING id`,
		ownerID).Scan(&patientID); err != nil {
		return "", fmt.Errorf("failed to insert patient: %w", err)
	}

	if _, err := pool.Exec(ctx,
		`INSERT INTO clinical_sessions (patient_id) VALUES ($1)`, patientID); err != nil {
		return "", fmt.Errorf("failed to insert clinical session: %w", err)
	}
	return patientID, nil
}

// CountRows returns the number of rows in table matching where
func CountRows(ctx context.Context, pool *pgxpool.Pool, table, where string, args ...any) (int, error) {
	var n int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", table, where)
	if err := pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}
