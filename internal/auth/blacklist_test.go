package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BradenHooton/clinicguard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryBlacklistStore is an in-memory BlacklistStore
type memoryBlacklistStore struct {
	entries map[string]*models.BlacklistEntry
	err     error
}

func newMemoryBlacklistStore() *memoryBlacklistStore {
	return &memoryBlacklistStore{entries: map[string]*models.BlacklistEntry{}}
}

func (m *memoryBlacklistStore) Add(_ context.Context, entry *models.BlacklistEntry) error {
	if m.err != nil {
		return m.err
	}
	m.entries[entry.TokenID] = entry
	return nil
}

func (m *memoryBlacklistStore) Exists(_ context.Context, tokenID string, now time.Time) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	e, ok := m.entries[tokenID]
	return ok && e.ExpiresAt.After(now), nil
}

func TestTokenDigest(t *testing.T) {
	d := TokenDigest("header.payload.sig")
	assert.Len(t, d, 64)
	assert.Equal(t, d, TokenDigest("header.payload.sig"))
	assert.NotEqual(t, d, TokenDigest("header.payload.sih"))
	assert.NotContains(t, d, "payload")
}

func TestBlacklist_RevokeThenIsRevoked(t *testing.T) {
	store := newMemoryBlacklistStore()
	bl := NewBlacklist(store)
	tm := newTestTokenManager(t)
	ctx := context.Background()

	first, err := tm.IssuePair(testSubject())
	require.NoError(t, err)
	second, err := tm.IssuePair(testSubject())
	require.NoError(t, err)

	require.NoError(t, bl.Revoke(ctx, first.AccessToken, "user-1", models.TokenTypeAccess, first.AccessExpiresAt, "logout"))

	revoked, err := bl.IsRevoked(ctx, first.AccessToken)
	require.NoError(t, err)
	assert.True(t, revoked)

	// Same claims, different token
	revoked, err = bl.IsRevoked(ctx, second.AccessToken)
	require.NoError(t, err)
	assert.False(t, revoked)

	// Stored key is the digest, not the token
	_, stored := store.entries[first.AccessToken]
	assert.False(t, stored)
	entry := store.entries[TokenDigest(first.AccessToken)]
	require.NotNil(t, entry)
	assert.Equal(t, "user-1", entry.UserID)
	assert.Equal(t, models.TokenTypeAccess, entry.TokenType)
}

func TestBlacklist_ExpiredTokenNeedsNoEntry(t *testing.T) {
	store := newMemoryBlacklistStore()
	bl := NewBlacklist(store)

	err := bl.Revoke(context.Background(), "tok", "user-1", models.TokenTypeAccess, time.Now().Add(-time.Minute), "logout")
	require.NoError(t, err)
	assert.Empty(t, store.entries)
}

func TestBlacklist_StoreErrorSurfaces(t *testing.T) {
	store := newMemoryBlacklistStore()
	store.err = errors.New("connection refused")
	bl := NewBlacklist(store)

	_, err := bl.IsRevoked(context.Background(), "tok")
	assert.Error(t, err)
}
