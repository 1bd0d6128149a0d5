package models

import "time"

// LoginAttemptRecord is the per-identifier abuse counter.
// Identifier is a lowercased email, "email:ip", or a registration key.
type LoginAttemptRecord struct {
	Identifier     string     `json:"identifier"`
	Count          int        `json:"count"`
	FirstAttemptAt time.Time  `json:"first_attempt_at"`
	LastAttemptAt  time.Time  `json:"last_attempt_at"`
	BlockedUntil   *time.Time `json:"blocked_until,omitempty"`
	Level          int        `json:"level,omitempty"` // escalation level; registration guard only
}

// IsBlocked reports whether the record carries an unexpired block at now.
func (r *LoginAttemptRecord) IsBlocked(now time.Time) bool {
	return r.BlockedUntil != nil && now.Before(*r.BlockedUntil)
}

// Clone returns a deep copy so store implementations can hand records to
// mutation callbacks without aliasing.
func (r *LoginAttemptRecord) Clone() *LoginAttemptRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.BlockedUntil != nil {
		t := *r.BlockedUntil
		c.BlockedUntil = &t
	}
	return &c
}
