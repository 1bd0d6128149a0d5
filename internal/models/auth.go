package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token kinds carried in the "type" claim
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// TokenClaims is the signed payload of both access and refresh tokens.
type TokenClaims struct {
	Type     string  `json:"type"`
	UserID   string  `json:"user_id"`
	Email    string  `json:"email"`
	Role     string  `json:"role"`
	ClinicID *string `json:"clinic_id,omitempty"`
	jwt.RegisteredClaims
}

// TokenPair is the result of issuing a session.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// BlacklistEntry is a revoked token, keyed by a one-way digest of the raw string.
type BlacklistEntry struct {
	TokenID   string // hex SHA-256 of the raw token
	UserID    string
	TokenType string
	ExpiresAt time.Time
	Reason    string
	CreatedAt time.Time
}
