package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/BradenHooton/clinicguard/internal/models"
)

// BlacklistStore persists revoked token digests.
type BlacklistStore interface {
	Add(ctx context.Context, entry *models.BlacklistEntry) error
	Exists(ctx context.Context, tokenID string, now time.Time) (bool, error)
}

// Blacklist revokes tokens before their natural expiry. Entries are keyed by
// TokenDigest, so the stored id cannot be turned back into a usable token.
type Blacklist struct {
	store BlacklistStore
	now   func() time.Time
}

func NewBlacklist(store BlacklistStore) *Blacklist {
	return &Blacklist{store: store, now: time.Now}
}

// TokenDigest is the hex SHA-256 of the raw token string.
func TokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Revoke blacklists token until expiresAt. Tokens already past expiry need
// no entry.
func (b *Blacklist) Revoke(ctx context.Context, token, userID, tokenType string, expiresAt time.Time, reason string) error {
	if !expiresAt.After(b.now()) {
		return nil
	}
	return b.store.Add(ctx, &models.BlacklistEntry{
		TokenID:   TokenDigest(token),
		UserID:    userID,
		TokenType: tokenType,
		ExpiresAt: expiresAt,
		Reason:    reason,
	})
}

// IsRevoked is a point lookup by digest. Store errors are returned so callers
// can fail closed.
func (b *Blacklist) IsRevoked(ctx context.Context, token string) (bool, error) {
	return b.store.Exists(ctx, TokenDigest(token), b.now())
}
