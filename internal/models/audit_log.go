package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Audit event types
const (
	AuditEventLogin            = "login"
	AuditEventLogout           = "logout"
	AuditEventRefresh          = "token_refresh"
	AuditEventRegister         = "register"
	AuditEventTwoFactorEnable  = "two_factor_enable"
	AuditEventTwoFactorDisable = "two_factor_disable"
	AuditEventAccountDisable   = "account_disable"
	AuditEventAccountEnable    = "account_enable"
	AuditEventAccountBan       = "account_ban"
	AuditEventAccountBlock     = "account_block"
	AuditEventPasswordReset    = "password_reset"
	AuditEventAccountPurge     = "account_purge"
)

// Security metric types
const (
	MetricLoginSuccess       = "login_success"
	MetricLoginFailure       = "login_failure"
	MetricLockoutTriggered   = "lockout_triggered"
	MetricRateLimited        = "rate_limited"
	MetricCaptchaRequired    = "captcha_required"
	MetricCaptchaFailed      = "captcha_failed"
	MetricTwoFactorFailure   = "two_factor_failure"
	MetricBackupCodeUsed     = "backup_code_used"
	MetricAccountStateDenied = "account_state_denied"
	MetricTokenRevoked       = "token_revoked"
	MetricRegistrationDenied = "registration_denied"
)

// Details is free-form context attached to telemetry rows (JSONB).
type Details map[string]any

// Bytes encodes the details for a JSONB column. Nil encodes as an empty object.
func (d Details) Bytes() []byte {
	if d == nil {
		return []byte("{}")
	}
	b, err := json.Marshal(map[string]any(d))
	if err != nil {
		return []byte("{}")
	}
	return b
}

// ParseDetails decodes a JSONB column value, tolerating NULL.
func ParseDetails(raw []byte) (Details, error) {
	if len(raw) == 0 {
		return Details{}, nil
	}
	var d Details
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	if d == nil {
		d = Details{}
	}
	return d, nil
}

// AuditLog is an append-only record of a security-relevant action.
type AuditLog struct {
	ID        uuid.UUID  `json:"id"`
	EventType string     `json:"event_type"`
	ActorID   *uuid.UUID `json:"actor_id,omitempty"`
	TargetID  *uuid.UUID `json:"target_id,omitempty"`
	Success   bool       `json:"success"`
	Reason    *string    `json:"reason,omitempty"`
	IPAddress *string    `json:"ip_address,omitempty"`
	UserAgent *string    `json:"user_agent,omitempty"`
	ClinicID  *string    `json:"clinic_id,omitempty"`
	Details   Details    `json:"details"`
	CreatedAt time.Time  `json:"created_at"`
}

// SecurityMetric is an append-only counter fact emitted by the auth core.
type SecurityMetric struct {
	ID        uuid.UUID  `json:"id"`
	Type      string     `json:"type"`
	UserID    *uuid.UUID `json:"user_id,omitempty"`
	IPAddress *string    `json:"ip_address,omitempty"`
	ClinicID  *string    `json:"clinic_id,omitempty"`
	Details   Details    `json:"details"`
	CreatedAt time.Time  `json:"created_at"`
}

// TelemetryFilter narrows admin listings.
type TelemetryFilter struct {
	Type   string
	UserID *uuid.UUID
	Since  *time.Time
	Limit  int
	Offset int
}
