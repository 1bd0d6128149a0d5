package integration

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/clinicguard/internal/background"
	"github.com/BradenHooton/clinicguard/internal/models"
	"github.com/BradenHooton/clinicguard/internal/repositories"
	"github.com/BradenHooton/clinicguard/internal/services"
)

func newTestReaper(db *TestDB) *background.Reaper {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	audit := services.NewAuditService(repositories.NewAuditLogRepository(db.DB), repositories.NewSecurityMetricRepository(db.DB), logger)
	policy := models.LifecyclePolicy{
		GracePeriod:       30 * 24 * time.Hour,
		DeletionThreshold: 270 * 24 * time.Hour,
	}
	return background.NewReaper(repositories.NewUserRepository(db.DB), repositories.NewAccountPurgeRepository(db.DB), audit, policy, logger)
}

func TestReaper_PurgesAccountAndOwnedRows(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()

	doomed, err := SeedUser(ctx, db.DB, "doomed@clinic.test", TestPassword)
	require.NoError(t, err)
	require.NoError(t, SeedDisabledSince(ctx, db.Pool, doomed.ID, time.Now().Add(-300*24*time.Hour)))
	patientID, err := SeedPatientWithSession(ctx, db.Pool, doomed.ID)
	require.NoError(t, err)

	inGrace, err := SeedUser(ctx, db.DB, "grace@clinic.test", TestPassword)
	require.NoError(t, err)
	require.NoError(t, SeedDisabledSince(ctx, db.Pool, inGrace.ID, time.Now().Add(-10*24*time.Hour)))
	_, err = SeedPatientWithSession(ctx, db.Pool, inGrace.ID)
	require.NoError(t, err)

	active, err := SeedUser(ctx, db.DB, "active@clinic.test", TestPassword)
	require.NoError(t, err)

	result, err := newTestReaper(db).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, background.ReapResult{Purged: 1}, result)

	n, err := CountRows(ctx, db.Pool, "users", "id = $1", doomed.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = CountRows(ctx, db.Pool, "patients", "owner_id = $1", doomed.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = CountRows(ctx, db.Pool, "clinical_sessions", "patient_id = $1", patientID)
	require.NoError(t, err)
	assert.Zero(t, n)

	for _, keep := range []string{inGrace.ID, active.ID} {
		n, err = CountRows(ctx, db.Pool, "users", "id = $1", keep)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}
	n, err = CountRows(ctx, db.Pool, "patients", "owner_id = $1", inGrace.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = CountRows(ctx, db.Pool, "audit_logs", "event_type = $1 AND target_id = $2", string(models.AuditEventAccountPurge), doomed.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReaper_SecondRunIsANoop(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()

	doomed, err := SeedUser(ctx, db.DB, "doomed@clinic.test", TestPassword)
	require.NoError(t, err)
	require.NoError(t, SeedDisabledSince(ctx, db.Pool, doomed.ID, time.Now().Add(-300*24*time.Hour)))

	reaper := newTestReaper(db)
	first, err := reaper.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Purged)

	second, err := reaper.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, background.ReapResult{}, second)
}

func TestPurgeAccount_RefusesEnabledAccount(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()

	user, err := SeedUser(ctx, db.DB, "live@clinic.test", TestPassword)
	require.NoError(t, err)

	_, err = repositories.NewAccountPurgeRepository(db.DB).PurgeAccount(ctx, user.ID, time.Now())
	assert.ErrorIs(t, err, models.ErrConflict)

	n, err := CountRows(ctx, db.Pool, "users", "id = $1", user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPurgeAccount_RefusesAccountDisabledAgainAfterCutoff(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()
	cutoff := time.Now().Add(-240 * 24 * time.Hour)

	user, err := SeedUser(ctx, db.DB, "redisabled@clinic.test", TestPassword)
	require.NoError(t, err)
	require.NoError(t, SeedDisabledSince(ctx, db.Pool, user.ID, cutoff.Add(-time.Hour)))

	listed, err := repositories.NewUserRepository(db.DB).ListDisabledBefore(ctx, cutoff, nil, 10)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	// Re-enabled and disabled again between listing and purge
	require.NoError(t, SeedDisabledSince(ctx, db.Pool, user.ID, time.Now()))

	_, err = repositories.NewAccountPurgeRepository(db.DB).PurgeAccount(ctx, user.ID, cutoff)
	assert.ErrorIs(t, err, models.ErrConflict)

	n, err := CountRows(ctx, db.Pool, "users", "id = $1", user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestListDisabledBefore_ResumesAfterCursor(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()
	at := time.Now().Add(-300 * 24 * time.Hour).Truncate(time.Microsecond)

	for _, email := range []string{"a@clinic.test", "b@clinic.test", "c@clinic.test"} {
		user, err := SeedUser(ctx, db.DB, email, TestPassword)
		require.NoError(t, err)
		require.NoError(t, SeedDisabledSince(ctx, db.Pool, user.ID, at))
	}

	users := repositories.NewUserRepository(db.DB)
	cutoff := time.Now().Add(-240 * 24 * time.Hour)

	first, err := users.ListDisabledBefore(ctx, cutoff, nil, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)

	rest, err := users.ListDisabledBefore(ctx, cutoff, &first[1], 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.NotContains(t, []string{first[0].ID, first[1].ID}, rest[0].ID)
}
