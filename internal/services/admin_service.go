package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/BradenHooton/clinicguard/internal/models"
)

// MetricCounter counts security metrics by type.
type MetricCounter interface {
	CountMetricSince(ctx context.Context, metricType string, since time.Time) (int64, error)
}

// summaryMetrics are the counters shown on the admin security summary.
var summaryMetrics = []string{
	models.MetricLoginSuccess,
	models.MetricLoginFailure,
	models.MetricLockoutTriggered,
	models.MetricRateLimited,
	models.MetricCaptchaRequired,
	models.MetricCaptchaFailed,
	models.MetricTwoFactorFailure,
	models.MetricBackupCodeUsed,
	models.MetricAccountStateDenied,
	models.MetricRegistrationDenied,
}

// SecuritySummaryResponse contains metric counts over a trailing window.
type SecuritySummaryResponse struct {
	Since  time.Time        `json:"since"`
	Counts map[string]int64 `json:"counts"`
}

// AdminService aggregates data for admin dashboard endpoints.
type AdminService struct {
	metrics MetricCounter
	logger  *slog.Logger
	now     func() time.Time
}

// NewAdminService creates a new AdminService.
func NewAdminService(metrics MetricCounter, logger *slog.Logger) *AdminService {
	return &AdminService{
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// GetSecuritySummary counts each security metric recorded within window.
// window is clamped to between one hour and thirty days.
func (s *AdminService) GetSecuritySummary(ctx context.Context, window time.Duration) (*SecuritySummaryResponse, error) {
	switch {
	case window < time.Hour:
		window = time.Hour
	case window > 30*24*time.Hour:
		window = 30 * 24 * time.Hour
	}
	since := s.now().Add(-window)

	counts := make(map[string]int64, len(summaryMetrics))
	for _, metric := range summaryMetrics {
		n, err := s.metrics.CountMetricSince(ctx, metric, since)
		if err != nil {
			s.logger.Error("dashboard: failed to count metric",
				slog.String("metric", metric),
				slog.Any("error", err))
			return nil, err
		}
		counts[metric] = n
	}

	return &SecuritySummaryResponse{Since: since, Counts: counts}, nil
}
