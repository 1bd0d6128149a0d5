package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BradenHooton/clinicguard/internal/models"
	pkgauth "github.com/BradenHooton/clinicguard/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type accountFixture struct {
	svc      *AccountService
	users    *MockUserRepository
	lockout  *LockoutService
	attempts *MemoryAttemptStore
	notifier *MockNotifier
	audit    *RecordingAudit
	clock    *FakeClock
	user     *models.User
}

func newAccountFixture(t *testing.T) *accountFixture {
	t.Helper()
	f := &accountFixture{
		users:    &MockUserRepository{},
		attempts: NewMemoryAttemptStore(),
		notifier: &MockNotifier{},
		audit:    &RecordingAudit{},
		clock:    NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		user:     NewTestUser("user-1", testEmail, "Ada"),
	}
	f.users.GetByIDFunc = func(ctx context.Context, id string) (*models.User, error) {
		if id == f.user.ID {
			return f.user, nil
		}
		return nil, models.ErrNotFound
	}

	f.lockout = NewLockoutService(f.attempts, testLockoutConfig(), testLogger())
	f.lockout.now = f.clock.Now

	f.svc = NewAccountService(f.users, f.lockout, f.notifier, f.audit, models.DefaultLifecyclePolicy(), testLogger())
	f.svc.now = f.clock.Now
	return f
}

func (f *accountFixture) disabledDaysAgo(days int) {
	at := f.clock.Now().Add(-time.Duration(days) * 24 * time.Hour)
	f.user.IsEnabled = false
	f.user.DisabledAt = &at
}

func TestAccount_CheckAccessByPhase(t *testing.T) {
	tests := []struct {
		name      string
		days      int
		wantPhase models.AccountPhase
		wantErr   error
	}{
		{"one day", 1, models.PhaseGracePeriod, nil},
		{"day 29", 29, models.PhaseGracePeriod, nil},
		{"day 30", 30, models.PhaseBlocked, models.ErrAccountDisabled},
		{"day 239", 239, models.PhaseBlocked, models.ErrAccountDisabled},
		{"day 240", 240, models.PhaseScheduledDeletion, models.ErrAccountDisabled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAccountFixture(t)
			f.disabledDaysAgo(tt.days)

			assert.Equal(t, tt.wantPhase, f.svc.Phase(f.user))
			_, err := f.svc.CheckAccess(context.Background(), "user-1")
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestAccount_CheckAccessActive(t *testing.T) {
	f := newAccountFixture(t)

	user, err := f.svc.CheckAccess(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)
	assert.Equal(t, models.PhaseActive, f.svc.Phase(user))
}

func TestAccount_CheckAccessFlagsBeatPhase(t *testing.T) {
	f := newAccountFixture(t)
	f.user.IsBanned = true
	f.user.IsBlocked = true

	_, err := f.svc.CheckAccess(context.Background(), "user-1")
	assert.ErrorIs(t, err, models.ErrAccountBanned)

	f.user.IsBanned = false
	_, err = f.svc.CheckAccess(context.Background(), "user-1")
	assert.ErrorIs(t, err, models.ErrAccountBlocked)
}

func TestAccount_CheckAccessDisabledWithoutTimestamp(t *testing.T) {
	f := newAccountFixture(t)
	f.user.IsEnabled = false

	_, err := f.svc.CheckAccess(context.Background(), "user-1")
	assert.ErrorIs(t, err, models.ErrAccountDisabled)
}

func TestAccount_CheckAccessLookupErrors(t *testing.T) {
	f := newAccountFixture(t)

	_, err := f.svc.CheckAccess(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)

	f.users.GetByIDFunc = func(ctx context.Context, id string) (*models.User, error) {
		return nil, errors.New("connection refused")
	}
	_, err = f.svc.CheckAccess(context.Background(), "user-1")
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
}

func TestAccount_DisableNotifiesWithDeadlines(t *testing.T) {
	f := newAccountFixture(t)
	var gotAt time.Time
	f.users.DisableFunc = func(ctx context.Context, id string, at time.Time) (*models.User, error) {
		gotAt = at
		f.user.IsEnabled = false
		f.user.DisabledAt = &at
		return f.user, nil
	}

	user, err := f.svc.Disable(context.Background(), "user-1", testIP)
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now(), gotAt)
	assert.Equal(t, models.PhaseGracePeriod, f.svc.Phase(user))
	assert.Equal(t, []string{testEmail}, f.notifier.DisabledNotices)
	require.Len(t, f.audit.Events, 1)
	assert.Equal(t, models.AuditEventAccountDisable, f.audit.Events[0].EventType)
}

func TestAccount_DisableNotifierFailureIgnored(t *testing.T) {
	f := newAccountFixture(t)
	f.notifier.Err = errors.New("ses down")
	f.users.DisableFunc = func(ctx context.Context, id string, at time.Time) (*models.User, error) {
		f.user.DisabledAt = &at
		return f.user, nil
	}

	_, err := f.svc.Disable(context.Background(), "user-1", testIP)
	assert.NoError(t, err)
}

func TestAccount_EnableAndFlags(t *testing.T) {
	f := newAccountFixture(t)
	f.users.EnableFunc = func(ctx context.Context, id string) (*models.User, error) {
		return f.user, nil
	}
	f.users.SetBannedFunc = func(ctx context.Context, id string, banned bool) (*models.User, error) {
		f.user.IsBanned = banned
		return f.user, nil
	}
	f.users.SetBlockedFunc = func(ctx context.Context, id string, blocked bool) (*models.User, error) {
		f.user.IsBlocked = blocked
		return f.user, nil
	}
	ctx := context.Background()

	_, err := f.svc.Enable(ctx, "admin-1", "user-1")
	require.NoError(t, err)
	_, err = f.svc.SetBanned(ctx, "admin-1", "user-1", true)
	require.NoError(t, err)
	assert.True(t, f.user.IsBanned)
	_, err = f.svc.SetBlocked(ctx, "admin-1", "user-1", true)
	require.NoError(t, err)
	assert.True(t, f.user.IsBlocked)

	require.Len(t, f.audit.Events, 3)
	for _, ev := range f.audit.Events {
		assert.Equal(t, "admin-1", ev.ActorID)
		assert.Equal(t, "user-1", ev.TargetID)
	}
}

func TestAccount_EnableUnknownUser(t *testing.T) {
	f := newAccountFixture(t)

	_, err := f.svc.Enable(context.Background(), "admin-1", "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAccount_ResetPasswordClearsLockout(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()
	var storedHash string
	f.users.UpdatePasswordFunc = func(ctx context.Context, id, hash string) error {
		storedHash = hash
		return nil
	}

	for _, ip := range []string{"203.0.113.5", "203.0.113.6"} {
		for i := 0; i < 10; i++ {
			_, err := f.lockout.RecordFailure(ctx, testEmail, ip)
			require.NoError(t, err)
		}
	}

	require.NoError(t, f.svc.ResetPassword(ctx, "admin-1", "user-1", "New-Password-1"))
	assert.True(t, pkgauth.VerifyPassword(storedHash, "New-Password-1"))

	for _, ip := range []string{"203.0.113.5", "203.0.113.6"} {
		d, err := f.lockout.Check(ctx, testEmail, ip)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Nil(t, f.attempts.Record(LockoutIdentifier(testEmail, ip)))
	}
}

func TestAccount_ResetPasswordRejectsWeakPassword(t *testing.T) {
	f := newAccountFixture(t)
	called := false
	f.users.UpdatePasswordFunc = func(ctx context.Context, id, hash string) error {
		called = true
		return nil
	}

	err := f.svc.ResetPassword(context.Background(), "admin-1", "user-1", "password")
	var pwErr *pkgauth.PasswordValidationError
	assert.ErrorAs(t, err, &pwErr)
	assert.False(t, called)
}
