package models

import "time"

// AccountPhase is the lifecycle phase derived from disabled_at.
type AccountPhase string

const (
	PhaseActive            AccountPhase = "active"
	PhaseGracePeriod       AccountPhase = "grace_period"
	PhaseBlocked           AccountPhase = "blocked"
	PhaseScheduledDeletion AccountPhase = "scheduled_deletion"
)

// Lifecycle thresholds measured from disabled_at
const (
	DefaultGracePeriod       = 30 * 24 * time.Hour
	DefaultDeletionThreshold = 240 * 24 * time.Hour
)

// LifecyclePolicy holds the phase boundaries.
type LifecyclePolicy struct {
	GracePeriod       time.Duration
	DeletionThreshold time.Duration
}

// DefaultLifecyclePolicy returns the 30 day / 240 day policy.
func DefaultLifecyclePolicy() LifecyclePolicy {
	return LifecyclePolicy{
		GracePeriod:       DefaultGracePeriod,
		DeletionThreshold: DefaultDeletionThreshold,
	}
}

// Phase computes the lifecycle phase at now. A nil disabledAt is active.
func (p LifecyclePolicy) Phase(disabledAt *time.Time, now time.Time) AccountPhase {
	if disabledAt == nil {
		return PhaseActive
	}
	elapsed := now.Sub(*disabledAt)
	switch {
	case elapsed < p.GracePeriod:
		return PhaseGracePeriod
	case elapsed < p.DeletionThreshold:
		return PhaseBlocked
	default:
		return PhaseScheduledDeletion
	}
}

// CanAccess is true only in the active and grace_period phases.
func (p LifecyclePolicy) CanAccess(disabledAt *time.Time, now time.Time) bool {
	switch p.Phase(disabledAt, now) {
	case PhaseActive, PhaseGracePeriod:
		return true
	default:
		return false
	}
}

// DeletionCutoff is the latest disabled_at that is eligible for the reaper at now.
func (p LifecyclePolicy) DeletionCutoff(now time.Time) time.Time {
	return now.Add(-p.DeletionThreshold)
}

// DisabledAccount is one entry of the reaper's listing. The last entry of a
// page is the keyset cursor for the next one.
type DisabledAccount struct {
	ID         string
	DisabledAt time.Time
}

// AccountState is the set of flags consulted on every authenticated request.
type AccountState struct {
	IsEnabled  bool
	IsBlocked  bool
	IsBanned   bool
	DisabledAt *time.Time
}

// Check returns nil when the account may authenticate at now, otherwise one of
// ErrAccountBanned, ErrAccountBlocked or ErrAccountDisabled.
func (s AccountState) Check(p LifecyclePolicy, now time.Time) error {
	if s.IsBanned {
		return ErrAccountBanned
	}
	if s.IsBlocked {
		return ErrAccountBlocked
	}
	if s.IsEnabled {
		return nil
	}
	// A disabled account without a timestamp predates lifecycle tracking.
	if s.DisabledAt == nil {
		return ErrAccountDisabled
	}
	if !p.CanAccess(s.DisabledAt, now) {
		return ErrAccountDisabled
	}
	return nil
}
