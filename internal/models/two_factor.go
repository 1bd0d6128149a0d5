package models

import "time"

// TwoFactorConfig is the persisted second-factor state for one user.
// The TOTP secret is stored encrypted; backup codes live in their own table
// and are only ever handled here as hashes.
type TwoFactorConfig struct {
	UserID          string
	SecretEncrypted []byte
	SecretNonce     []byte
	Enabled         bool
	EnabledAt       *time.Time
	UpdatedAt       time.Time
}

// TwoFactorSetup is a proposed secret returned to the user before enabling.
type TwoFactorSetup struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
	QRCode          string `json:"qr_code"` // PNG data URL
}

// TwoFactorVerification is the outcome of checking a TOTP or backup code.
type TwoFactorVerification struct {
	Valid          bool
	UsedBackupCode bool
}

// TwoFactorStatus summarises a user's second-factor state.
type TwoFactorStatus struct {
	Enabled              bool       `json:"enabled"`
	EnabledAt            *time.Time `json:"enabled_at,omitempty"`
	BackupCodesRemaining int        `json:"backup_codes_remaining"`
}
