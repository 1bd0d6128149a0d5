package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/BradenHooton/clinicguard/internal/models"
	"github.com/BradenHooton/clinicguard/internal/services"
	pkghttp "github.com/BradenHooton/clinicguard/pkg/http"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// TelemetryReader lists audit logs and security metrics for admins.
type TelemetryReader interface {
	ListAuditLogs(ctx context.Context, filter models.TelemetryFilter) ([]*models.AuditLog, error)
	ListSecurityMetrics(ctx context.Context, filter models.TelemetryFilter) ([]*models.SecurityMetric, error)
}

// AdminServiceInterface defines the dashboard service contract.
type AdminServiceInterface interface {
	GetSecuritySummary(ctx context.Context, window time.Duration) (*services.SecuritySummaryResponse, error)
}

// AdminHandler handles admin telemetry HTTP requests.
type AdminHandler struct {
	telemetry TelemetryReader
	service   AdminServiceInterface
	logger    *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(telemetry TelemetryReader, service AdminServiceInterface, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{telemetry: telemetry, service: service, logger: logger}
}

// AuditLogListResponse is a page of audit logs
type AuditLogListResponse struct {
	Items  []*models.AuditLog `json:"items"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

// SecurityMetricListResponse is a page of security metrics
type SecurityMetricListResponse struct {
	Items  []*models.SecurityMetric `json:"items"`
	Limit  int                      `json:"limit"`
	Offset int                      `json:"offset"`
}

// ListAuditLogs handles GET /admin/audit-logs
// Accepts ?type=, ?user_id=, ?since= (RFC 3339), ?limit= (1-100, default 50), ?offset=.
func (h *AdminHandler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseTelemetryFilter(w, r)
	if !ok {
		return
	}

	logs, err := h.telemetry.ListAuditLogs(r.Context(), filter)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if logs == nil {
		logs = []*models.AuditLog{}
	}
	pkghttp.WriteJSON(w, http.StatusOK, AuditLogListResponse{Items: logs, Limit: filter.Limit, Offset: filter.Offset})
}

// ListSecurityMetrics handles GET /admin/security-metrics
func (h *AdminHandler) ListSecurityMetrics(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseTelemetryFilter(w, r)
	if !ok {
		return
	}

	metrics, err := h.telemetry.ListSecurityMetrics(r.Context(), filter)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if metrics == nil {
		metrics = []*models.SecurityMetric{}
	}
	pkghttp.WriteJSON(w, http.StatusOK, SecurityMetricListResponse{Items: metrics, Limit: filter.Limit, Offset: filter.Offset})
}

// GetSecuritySummary handles GET /admin/security-summary
// Accepts optional ?window= as a Go duration (default 24h).
func (h *AdminHandler) GetSecuritySummary(w http.ResponseWriter, r *http.Request) {
	window := 24 * time.Hour
	if raw := r.URL.Query().Get("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			pkghttp.WriteBadRequest(w, "window must be a duration such as 24h")
			return
		}
		window = d
	}

	summary, err := h.service.GetSecuritySummary(r.Context(), window)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, summary)
}

func parseTelemetryFilter(w http.ResponseWriter, r *http.Request) (models.TelemetryFilter, bool) {
	q := r.URL.Query()
	filter := models.TelemetryFilter{
		Type:  q.Get("type"),
		Limit: defaultPageSize,
	}

	if raw := q.Get("user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			pkghttp.WriteBadRequest(w, "user_id must be a valid UUID")
			return filter, false
		}
		filter.UserID = &id
	}

	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			pkghttp.WriteBadRequest(w, "since must be an RFC 3339 timestamp")
			return filter, false
		}
		filter.Since = &since
	}

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxPageSize {
			pkghttp.WriteBadRequest(w, "limit must be between 1 and 100")
			return filter, false
		}
		filter.Limit = n
	}

	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			pkghttp.WriteBadRequest(w, "offset must be a non-negative integer")
			return filter, false
		}
		filter.Offset = n
	}

	return filter, true
}
