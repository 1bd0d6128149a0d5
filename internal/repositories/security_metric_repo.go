package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/clinicguard/internal/database"
	"github.com/BradenHooton/clinicguard/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SecurityMetricRepository stores append-only security counters.
type SecurityMetricRepository struct {
	pool *pgxpool.Pool
}

func NewSecurityMetricRepository(db *database.DB) *SecurityMetricRepository {
	return &SecurityMetricRepository{pool: db.Pool}
}

const securityMetricColumns = `id, type, user_id, ip_address, clinic_id, details, created_at`

func scanSecurityMetricRow(row rowScanner) (*models.SecurityMetric, error) {
	var m models.SecurityMetric
	var details []byte

	err := row.Scan(&m.ID, &m.Type, &m.UserID, &m.IPAddress, &m.ClinicID, &details, &m.CreatedAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if m.Details, err = models.ParseDetails(details); err != nil {
		return nil, fmt.Errorf("failed to decode metric details: %w", err)
	}

	return &m, nil
}

func (r *SecurityMetricRepository) Create(ctx context.Context, m *models.SecurityMetric) error {
	query := `
		INSERT INTO security_metrics (type, user_id, ip_address, clinic_id, details)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.pool.QueryRow(ctx, query, m.Type, m.UserID, m.IPAddress, m.ClinicID, m.Details.Bytes()).
		Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create security metric: %w", err)
	}

	return nil
}

func (r *SecurityMetricRepository) List(ctx context.Context, filter models.TelemetryFilter) ([]*models.SecurityMetric, error) {
	var where []string
	var args []any

	if filter.Type != "" {
		args = append(args, filter.Type)
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Since != nil {
		args = append(args, *filter.Since)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}

	query := `SELECT ` + securityMetricColumns + ` FROM security_metrics` + whereClause(where) + pageClause(&args, filter)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query security metrics: %w", err)
	}

	metrics, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.SecurityMetric, error) {
		return scanSecurityMetricRow(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan security metrics: %w", err)
	}
	return metrics, nil
}

// CountSince counts metrics of one type created at or after since.
func (r *SecurityMetricRepository) CountSince(ctx context.Context, metricType string, since time.Time) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM security_metrics WHERE type = $1 AND created_at >= $2`, metricType, since).Scan(&n)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return n, nil
}

func (r *SecurityMetricRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM security_metrics WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return result.RowsAffected(), nil
}
