package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/clinicguard/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Subject is the identity a token pair is issued for.
type Subject struct {
	UserID   string
	Email    string
	Role     string
	ClinicID *string
}

// SubjectFromUser builds a token subject from a user record.
func SubjectFromUser(u *models.User) Subject {
	return Subject{UserID: u.ID, Email: u.Email, Role: u.Role, ClinicID: u.ClinicID}
}

// TokenManager issues and verifies access/refresh JWTs. Each token type has
// its own signing key, so one key cannot mint the other kind of token.
type TokenManager struct {
	accessSecret       []byte
	refreshSecret      []byte
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
	now                func() time.Time
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(accessSecret, refreshSecret string, accessExpiry, refreshExpiry time.Duration) (*TokenManager, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("token signing secrets must not be empty")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("access and refresh signing secrets must differ")
	}
	return &TokenManager{
		accessSecret:       []byte(accessSecret),
		refreshSecret:      []byte(refreshSecret),
		accessTokenExpiry:  accessExpiry,
		refreshTokenExpiry: refreshExpiry,
		now:                time.Now,
	}, nil
}

// SetClock overrides the time source, for tests.
func (tm *TokenManager) SetClock(now func() time.Time) {
	tm.now = now
}

func (tm *TokenManager) AccessTokenExpiry() time.Duration  { return tm.accessTokenExpiry }
func (tm *TokenManager) RefreshTokenExpiry() time.Duration { return tm.refreshTokenExpiry }

// IssuePair signs a fresh access and refresh token for subject.
func (tm *TokenManager) IssuePair(subject Subject) (*models.TokenPair, error) {
	now := tm.now()

	access, accessExp, err := tm.sign(subject, models.TokenTypeAccess, now)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := tm.sign(subject, models.TokenTypeRefresh, now)
	if err != nil {
		return nil, err
	}

	return &models.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (tm *TokenManager) sign(subject Subject, tokenType string, now time.Time) (string, time.Time, error) {
	key, expiry := tm.keyFor(tokenType)
	expiresAt := now.Add(expiry)

	claims := &models.TokenClaims{
		Type:     tokenType,
		UserID:   subject.UserID,
		Email:    subject.Email,
		Role:     subject.Role,
		ClinicID: subject.ClinicID,
		RegisteredClaims: jwt.RegisteredClaims{
			// Random id so two tokens with equal claims never share a string
			ID:        uuid.New().String(),
			Subject:   subject.UserID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}
	return signed, expiresAt, nil
}

// Verify checks signature, expiry and that the token is of expectedType.
// Every failure wraps models.ErrTokenInvalid.
func (tm *TokenManager) Verify(tokenString, expectedType string) (*models.TokenClaims, error) {
	if expectedType != models.TokenTypeAccess && expectedType != models.TokenTypeRefresh {
		return nil, fmt.Errorf("%w: unknown token type %q", models.ErrTokenInvalid, expectedType)
	}
	key, _ := tm.keyFor(expectedType)

	claims := &models.TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return key, nil
	},
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, models.ErrTokenInvalid
	}

	if claims.Type != expectedType {
		return nil, fmt.Errorf("%w: %w", models.ErrTokenInvalid, models.ErrTokenWrongType)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing user id", models.ErrTokenInvalid)
	}

	return claims, nil
}

func (tm *TokenManager) keyFor(tokenType string) ([]byte, time.Duration) {
	if tokenType == models.TokenTypeRefresh {
		return tm.refreshSecret, tm.refreshTokenExpiry
	}
	return tm.accessSecret, tm.accessTokenExpiry
}
