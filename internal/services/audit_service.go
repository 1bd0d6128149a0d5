package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/clinicguard/internal/models"
	pkglogger "github.com/BradenHooton/clinicguard/pkg/logger"
	"github.com/google/uuid"
)

// AuditLogStore persists audit events.
type AuditLogStore interface {
	Create(ctx context.Context, log *models.AuditLog) error
	List(ctx context.Context, filter models.TelemetryFilter) ([]*models.AuditLog, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// SecurityMetricStore persists security metrics.
type SecurityMetricStore interface {
	Create(ctx context.Context, metric *models.SecurityMetric) error
	List(ctx context.Context, filter models.TelemetryFilter) ([]*models.SecurityMetric, error)
	CountSince(ctx context.Context, metricType string, since time.Time) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditRecord describes one audit event. Empty strings are stored as NULL.
type AuditRecord struct {
	EventType string
	ActorID   string
	TargetID  string
	Success   bool
	Reason    string
	IPAddress string
	UserAgent string
	ClinicID  *string
	Details   models.Details
}

// AuditService handles telemetry with a dual-write pattern (slog + database).
// Recording never fails the caller: persistence errors are logged and dropped.
type AuditService struct {
	audits      AuditLogStore
	metrics     SecurityMetricStore
	auditLogger *pkglogger.AuditLogger
	logger      *slog.Logger
}

// NewAuditService creates a new AuditService
func NewAuditService(audits AuditLogStore, metrics SecurityMetricStore, logger *slog.Logger) *AuditService {
	return &AuditService{
		audits:      audits,
		metrics:     metrics,
		auditLogger: pkglogger.NewAuditLogger(logger),
		logger:      logger,
	}
}

// LogEvent records an audit event.
func (s *AuditService) LogEvent(ctx context.Context, rec AuditRecord) {
	// Dual-write: immediate slog output
	s.auditLogger.LogEvent(ctx, pkglogger.AuditEvent{
		EventType: rec.EventType,
		UserID:    firstNonEmpty(rec.ActorID, rec.TargetID),
		IPAddress: rec.IPAddress,
		Success:   rec.Success,
		Reason:    rec.Reason,
		Details:   rec.Details,
	})

	log := &models.AuditLog{
		EventType: rec.EventType,
		ActorID:   parseUUID(rec.ActorID),
		TargetID:  parseUUID(rec.TargetID),
		Success:   rec.Success,
		Reason:    optionalString(rec.Reason),
		IPAddress: optionalString(rec.IPAddress),
		UserAgent: optionalString(rec.UserAgent),
		ClinicID:  rec.ClinicID,
		Details:   rec.Details,
	}
	if err := s.audits.Create(ctx, log); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist audit log",
			slog.String("event_type", rec.EventType),
			slog.Any("error", err))
	}
}

// RecordMetric records a security metric.
func (s *AuditService) RecordMetric(ctx context.Context, metricType, userID, ipAddress string, clinicID *string, details models.Details) {
	s.auditLogger.LogMetric(ctx, metricType, userID, ipAddress, details)

	metric := &models.SecurityMetric{
		Type:      metricType,
		UserID:    parseUUID(userID),
		IPAddress: optionalString(ipAddress),
		ClinicID:  clinicID,
		Details:   details,
	}
	if err := s.metrics.Create(ctx, metric); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist security metric",
			slog.String("metric", metricType),
			slog.Any("error", err))
	}
}

// ListAuditLogs returns audit events matching filter, newest first.
func (s *AuditService) ListAuditLogs(ctx context.Context, filter models.TelemetryFilter) ([]*models.AuditLog, error) {
	logs, err := s.audits.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return logs, nil
}

// ListSecurityMetrics returns metrics matching filter, newest first.
func (s *AuditService) ListSecurityMetrics(ctx context.Context, filter models.TelemetryFilter) ([]*models.SecurityMetric, error) {
	metrics, err := s.metrics.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list security metrics: %w", err)
	}
	return metrics, nil
}

// CountMetricSince counts metrics of one type recorded at or after since.
func (s *AuditService) CountMetricSince(ctx context.Context, metricType string, since time.Time) (int64, error) {
	n, err := s.metrics.CountSince(ctx, metricType, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count security metrics: %w", err)
	}
	return n, nil
}

// Prune deletes telemetry rows created before cutoff.
func (s *AuditService) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	audits, err := s.audits.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit logs: %w", err)
	}
	metrics, err := s.metrics.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return audits, fmt.Errorf("failed to prune security metrics: %w", err)
	}
	return audits + metrics, nil
}

func parseUUID(s string) *uuid.UUID {
	if s == "" {
		return nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
