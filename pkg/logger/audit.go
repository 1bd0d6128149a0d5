package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType string
	UserID    string
	IPAddress string
	Success   bool
	Reason    string
	Details   map[string]any
}

// AuditLogger writes audit and metric events to the structured log. It is
// the log half of the telemetry pipeline and never fails.
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogEvent logs an audit event at info on success and warn on failure.
func (al *AuditLogger) LogEvent(ctx context.Context, event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "auth"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	attrs = appendCommon(attrs, event.UserID, event.IPAddress, event.Details)
	if event.Reason != "" {
		attrs = append(attrs, slog.String("reason", event.Reason))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}

// LogMetric logs a security metric.
func (al *AuditLogger) LogMetric(ctx context.Context, metricType, userID, ipAddress string, details map[string]any) {
	attrs := []slog.Attr{
		slog.String("audit_type", "metric"),
		slog.String("metric", metricType),
	}
	attrs = appendCommon(attrs, userID, ipAddress, details)
	al.logger.LogAttrs(ctx, slog.LevelInfo, "security_metric", attrs...)
}

func appendCommon(attrs []slog.Attr, userID, ipAddress string, details map[string]any) []slog.Attr {
	if userID != "" {
		attrs = append(attrs, slog.String("user_id", userID))
	}
	if ipAddress != "" {
		attrs = append(attrs, slog.String("ip_address", ipAddress))
	}
	if len(details) > 0 {
		group := make([]any, 0, len(details))
		for k, v := range details {
			group = append(group, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Group("details", group...))
	}
	return attrs
}
