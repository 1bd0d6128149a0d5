package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BradenHooton/clinicguard/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuditStore struct {
	logs        []*models.AuditLog
	err         error
	prunedUntil time.Time
}

func (s *fakeAuditStore) Create(ctx context.Context, log *models.AuditLog) error {
	if s.err != nil {
		return s.err
	}
	s.logs = append(s.logs, log)
	return nil
}

func (s *fakeAuditStore) List(ctx context.Context, filter models.TelemetryFilter) ([]*models.AuditLog, error) {
	return s.logs, s.err
}

func (s *fakeAuditStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.prunedUntil = cutoff
	return 2, s.err
}

type fakeMetricStore struct {
	metrics []*models.SecurityMetric
	counts  map[string]int64
	err     error
}

func (s *fakeMetricStore) Create(ctx context.Context, metric *models.SecurityMetric) error {
	if s.err != nil {
		return s.err
	}
	s.metrics = append(s.metrics, metric)
	return nil
}

func (s *fakeMetricStore) List(ctx context.Context, filter models.TelemetryFilter) ([]*models.SecurityMetric, error) {
	return s.metrics, s.err
}

func (s *fakeMetricStore) CountSince(ctx context.Context, metricType string, since time.Time) (int64, error) {
	return s.counts[metricType], s.err
}

func (s *fakeMetricStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 3, s.err
}

func TestAuditService_LogEventPersists(t *testing.T) {
	audits, metrics := &fakeAuditStore{}, &fakeMetricStore{}
	svc := NewAuditService(audits, metrics, testLogger())

	actor := uuid.New()
	clinic := "clinic-1"
	svc.LogEvent(context.Background(), AuditRecord{
		EventType: models.AuditEventLogin,
		ActorID:   actor.String(),
		TargetID:  "not-a-uuid",
		Success:   true,
		IPAddress: testIP,
		ClinicID:  &clinic,
		Details:   models.Details{"method": "password"},
	})

	require.Len(t, audits.logs, 1)
	log := audits.logs[0]
	assert.Equal(t, models.AuditEventLogin, log.EventType)
	require.NotNil(t, log.ActorID)
	assert.Equal(t, actor, *log.ActorID)
	assert.Nil(t, log.TargetID)
	assert.Nil(t, log.Reason)
	require.NotNil(t, log.IPAddress)
	assert.Equal(t, testIP, *log.IPAddress)
	assert.Equal(t, "password", log.Details["method"])
}

func TestAuditService_RecordMetricPersists(t *testing.T) {
	audits, metrics := &fakeAuditStore{}, &fakeMetricStore{}
	svc := NewAuditService(audits, metrics, testLogger())

	svc.RecordMetric(context.Background(), models.MetricLoginFailure, "", testIP, nil, models.Details{"count": 2})

	require.Len(t, metrics.metrics, 1)
	assert.Equal(t, models.MetricLoginFailure, metrics.metrics[0].Type)
	assert.Nil(t, metrics.metrics[0].UserID)
}

func TestAuditService_StoreErrorsAreSwallowed(t *testing.T) {
	audits := &fakeAuditStore{err: errors.New("db down")}
	metrics := &fakeMetricStore{err: errors.New("db down")}
	svc := NewAuditService(audits, metrics, testLogger())

	assert.NotPanics(t, func() {
		svc.LogEvent(context.Background(), AuditRecord{EventType: models.AuditEventLogout})
		svc.RecordMetric(context.Background(), models.MetricTokenRevoked, "", "", nil, nil)
	})
	assert.Empty(t, audits.logs)
	assert.Empty(t, metrics.metrics)
}

func TestAuditService_ListAndCountWrapErrors(t *testing.T) {
	audits := &fakeAuditStore{err: errors.New("db down")}
	metrics := &fakeMetricStore{err: errors.New("db down")}
	svc := NewAuditService(audits, metrics, testLogger())

	_, err := svc.ListAuditLogs(context.Background(), models.TelemetryFilter{})
	assert.Error(t, err)
	_, err = svc.ListSecurityMetrics(context.Background(), models.TelemetryFilter{})
	assert.Error(t, err)
	_, err = svc.CountMetricSince(context.Background(), models.MetricLoginFailure, time.Now())
	assert.Error(t, err)
}

func TestAuditService_Prune(t *testing.T) {
	audits, metrics := &fakeAuditStore{}, &fakeMetricStore{}
	svc := NewAuditService(audits, metrics, testLogger())
	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	n, err := svc.Prune(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, cutoff, audits.prunedUntil)
}
