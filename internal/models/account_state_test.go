package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func daysAgo(now time.Time, d int) *time.Time {
	t := now.Add(-time.Duration(d) * 24 * time.Hour)
	return &t
}

func TestLifecyclePolicy_Phase(t *testing.T) {
	p := DefaultLifecyclePolicy()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		disabledAt *time.Time
		want       AccountPhase
	}{
		{"never disabled", nil, PhaseActive},
		{"just disabled", daysAgo(now, 0), PhaseGracePeriod},
		{"29 days", daysAgo(now, 29), PhaseGracePeriod},
		{"30 days exactly", daysAgo(now, 30), PhaseBlocked},
		{"31 days", daysAgo(now, 31), PhaseBlocked},
		{"239 days", daysAgo(now, 239), PhaseBlocked},
		{"240 days exactly", daysAgo(now, 240), PhaseScheduledDeletion},
		{"241 days", daysAgo(now, 241), PhaseScheduledDeletion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Phase(tt.disabledAt, now))
		})
	}
}

func TestLifecyclePolicy_PhaseIsMonotonic(t *testing.T) {
	p := DefaultLifecyclePolicy()
	disabledAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	order := map[AccountPhase]int{
		PhaseGracePeriod:       1,
		PhaseBlocked:           2,
		PhaseScheduledDeletion: 3,
	}

	prev := 0
	for h := 0; h < 300*24; h += 7 {
		now := disabledAt.Add(time.Duration(h) * time.Hour)
		cur := order[p.Phase(&disabledAt, now)]
		assert.GreaterOrEqual(t, cur, prev, "phase moved backward at +%dh", h)
		prev = cur
	}
}

func TestLifecyclePolicy_CanAccess(t *testing.T) {
	p := DefaultLifecyclePolicy()
	now := time.Now()

	assert.True(t, p.CanAccess(nil, now))
	assert.True(t, p.CanAccess(daysAgo(now, 29), now))
	assert.False(t, p.CanAccess(daysAgo(now, 31), now))
	assert.False(t, p.CanAccess(daysAgo(now, 241), now))
}

func TestAccountState_Check(t *testing.T) {
	p := DefaultLifecyclePolicy()
	now := time.Now()

	tests := []struct {
		name  string
		state AccountState
		want  error
	}{
		{"enabled", AccountState{IsEnabled: true}, nil},
		{"banned wins over everything", AccountState{IsEnabled: true, IsBlocked: true, IsBanned: true}, ErrAccountBanned},
		{"blocked flag", AccountState{IsEnabled: true, IsBlocked: true}, ErrAccountBlocked},
		{"disabled in grace", AccountState{IsEnabled: false, DisabledAt: daysAgo(now, 5)}, nil},
		{"disabled past grace", AccountState{IsEnabled: false, DisabledAt: daysAgo(now, 45)}, ErrAccountDisabled},
		{"disabled without timestamp", AccountState{IsEnabled: false}, ErrAccountDisabled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.state.Check(p, now)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoginAttemptRecord_CloneDoesNotAlias(t *testing.T) {
	until := time.Now().Add(time.Minute)
	r := &LoginAttemptRecord{Identifier: "a@x.com", Count: 10, BlockedUntil: &until}

	c := r.Clone()
	*c.BlockedUntil = c.BlockedUntil.Add(time.Hour)
	c.Count = 1

	assert.Equal(t, 10, r.Count)
	assert.Equal(t, until, *r.BlockedUntil)
	assert.Nil(t, (*LoginAttemptRecord)(nil).Clone())
}
