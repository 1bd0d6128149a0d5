package models

import (
	"time"
)

// Roles recognised by the clinic backend
const (
	RoleAdmin        = "admin"
	RoleProfessional = "professional"
	RoleAssistant    = "assistant"
)

// User is the credential-store view of an account.
type User struct {
	ID            string
	Email         string
	PasswordHash  string // empty for provider-only accounts
	Name          string
	Role          string
	ClinicID      *string
	EmailVerified bool

	IsEnabled  bool
	IsBlocked  bool
	IsBanned   bool
	DisabledAt *time.Time // set once on enabled -> disabled, cleared on re-enable

	PasswordChangedAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// State returns the account flags that drive lifecycle decisions.
func (u *User) State() AccountState {
	return AccountState{
		IsEnabled:  u.IsEnabled,
		IsBlocked:  u.IsBlocked,
		IsBanned:   u.IsBanned,
		DisabledAt: u.DisabledAt,
	}
}

// ExternalIdentity links an OAuth provider account to a user.
type ExternalIdentity struct {
	ID         string
	UserID     string
	Provider   string // "google", "github", ...
	ProviderID string
	CreatedAt  time.Time
}

// VerifiedIdentity is what an OAuth collaborator hands the core after it has
// finished the provider protocol.
type VerifiedIdentity struct {
	Provider      string
	ProviderID    string
	Email         string
	EmailVerified bool
	Name          string
}
