package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/clinicguard/internal/models"
	"github.com/BradenHooton/clinicguard/internal/repositories"
)

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc               func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc            func(ctx context.Context, email string) (*models.User, error)
	CreateFunc                func(ctx context.Context, user *models.User) (*models.User, error)
	UpdatePasswordFunc        func(ctx context.Context, id, passwordHash string) error
	MarkEmailVerifiedFunc     func(ctx context.Context, id string) error
	DisableFunc               func(ctx context.Context, id string, at time.Time) (*models.User, error)
	EnableFunc                func(ctx context.Context, id string) (*models.User, error)
	SetBannedFunc             func(ctx context.Context, id string, banned bool) (*models.User, error)
	SetBlockedFunc            func(ctx context.Context, id string, blocked bool) (*models.User, error)
	GetByExternalIdentityFunc func(ctx context.Context, provider, providerID string) (*models.User, error)
	LinkExternalIdentityFunc  func(ctx context.Context, userID, provider, providerID string) (*models.ExternalIdentity, error)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, id, passwordHash)
	}
	return nil
}

func (m *MockUserRepository) MarkEmailVerified(ctx context.Context, id string) error {
	if m.MarkEmailVerifiedFunc != nil {
		return m.MarkEmailVerifiedFunc(ctx, id)
	}
	return nil
}

func (m *MockUserRepository) Disable(ctx context.Context, id string, at time.Time) (*models.User, error) {
	if m.DisableFunc != nil {
		return m.DisableFunc(ctx, id, at)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) Enable(ctx context.Context, id string) (*models.User, error) {
	if m.EnableFunc != nil {
		return m.EnableFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) SetBanned(ctx context.Context, id string, banned bool) (*models.User, error) {
	if m.SetBannedFunc != nil {
		return m.SetBannedFunc(ctx, id, banned)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) SetBlocked(ctx context.Context, id string, blocked bool) (*models.User, error) {
	if m.SetBlockedFunc != nil {
		return m.SetBlockedFunc(ctx, id, blocked)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByExternalIdentity(ctx context.Context, provider, providerID string) (*models.User, error) {
	if m.GetByExternalIdentityFunc != nil {
		return m.GetByExternalIdentityFunc(ctx, provider, providerID)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) LinkExternalIdentity(ctx context.Context, userID, provider, providerID string) (*models.ExternalIdentity, error) {
	if m.LinkExternalIdentityFunc != nil {
		return m.LinkExternalIdentityFunc(ctx, userID, provider, providerID)
	}
	return &models.ExternalIdentity{UserID: userID, Provider: provider, ProviderID: providerID}, nil
}

// MockTwoFactorStore implements TwoFactorStore for testing
type MockTwoFactorStore struct {
	GetFunc               func(ctx context.Context, userID string) (*models.TwoFactorConfig, error)
	EnableFunc            func(ctx context.Context, cfg *models.TwoFactorConfig, codeHashes []string) error
	ConsumeBackupCodeFunc func(ctx context.Context, userID, codeHash string) (bool, error)
	CountBackupCodesFunc  func(ctx context.Context, userID string) (int, error)
	DeleteFunc            func(ctx context.Context, userID string) error
}

func (m *MockTwoFactorStore) Get(ctx context.Context, userID string) (*models.TwoFactorConfig, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, userID)
	}
	return nil, models.ErrNotFound
}

func (m *MockTwoFactorStore) Enable(ctx context.Context, cfg *models.TwoFactorConfig, codeHashes []string) error {
	if m.EnableFunc != nil {
		return m.EnableFunc(ctx, cfg, codeHashes)
	}
	return nil
}

func (m *MockTwoFactorStore) ConsumeBackupCode(ctx context.Context, userID, codeHash string) (bool, error) {
	if m.ConsumeBackupCodeFunc != nil {
		return m.ConsumeBackupCodeFunc(ctx, userID, codeHash)
	}
	return false, nil
}

func (m *MockTwoFactorStore) CountBackupCodes(ctx context.Context, userID string) (int, error) {
	if m.CountBackupCodesFunc != nil {
		return m.CountBackupCodesFunc(ctx, userID)
	}
	return 0, nil
}

func (m *MockTwoFactorStore) Delete(ctx context.Context, userID string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, userID)
	}
	return nil
}

// MockTwoFactorVerifier implements TwoFactorVerifier for testing
type MockTwoFactorVerifier struct {
	IsEnabledFunc  func(ctx context.Context, userID string) (bool, error)
	VerifyCodeFunc func(ctx context.Context, userID, code string) (models.TwoFactorVerification, error)
}

func (m *MockTwoFactorVerifier) IsEnabled(ctx context.Context, userID string) (bool, error) {
	if m.IsEnabledFunc != nil {
		return m.IsEnabledFunc(ctx, userID)
	}
	return false, nil
}

func (m *MockTwoFactorVerifier) VerifyCode(ctx context.Context, userID, code string) (models.TwoFactorVerification, error) {
	if m.VerifyCodeFunc != nil {
		return m.VerifyCodeFunc(ctx, userID, code)
	}
	return models.TwoFactorVerification{}, nil
}

// MockNotifier implements Notifier for testing and records what was sent
type MockNotifier struct {
	mu              sync.Mutex
	LockoutAlerts   []string
	DisabledNotices []string
	Err             error
}

func (m *MockNotifier) SendLockoutAlert(ctx context.Context, email string, blockedUntil time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LockoutAlerts = append(m.LockoutAlerts, email)
	return m.Err
}

func (m *MockNotifier) SendAccountDisabled(ctx context.Context, email string, accessEndsAt, deletionAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DisabledNotices = append(m.DisabledNotices, email)
	return m.Err
}

// RecordingAudit implements SecurityRecorder and keeps everything in memory
type RecordingAudit struct {
	mu      sync.Mutex
	Events  []AuditRecord
	Metrics []string
}

func (r *RecordingAudit) LogEvent(ctx context.Context, rec AuditRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, rec)
}

func (r *RecordingAudit) RecordMetric(ctx context.Context, metricType, userID, ipAddress string, clinicID *string, details models.Details) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Metrics = append(r.Metrics, metricType)
}

// MetricCount returns how many times metricType was recorded.
func (r *RecordingAudit) MetricCount(metricType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.Metrics {
		if m == metricType {
			n++
		}
	}
	return n
}

// MemoryAttemptStore is an in-memory AttemptStore. Mutations are serialised
// by a mutex, which gives the same per-identifier atomicity as the real stores.
type MemoryAttemptStore struct {
	mu      sync.Mutex
	records map[string]*models.LoginAttemptRecord
	Err     error // returned by every operation when set
}

func NewMemoryAttemptStore() *MemoryAttemptStore {
	return &MemoryAttemptStore{records: make(map[string]*models.LoginAttemptRecord)}
}

func (s *MemoryAttemptStore) Get(ctx context.Context, identifier string) (*models.LoginAttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	rec, ok := s.records[identifier]
	if !ok {
		return nil, models.ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *MemoryAttemptStore) Mutate(ctx context.Context, identifier string, fn repositories.AttemptMutation) (*models.LoginAttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	next, err := fn(s.records[identifier].Clone())
	if err != nil {
		return nil, err
	}
	if next == nil {
		delete(s.records, identifier)
		return nil, nil
	}
	s.records[identifier] = next.Clone()
	return next, nil
}

func (s *MemoryAttemptStore) Delete(ctx context.Context, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	delete(s.records, identifier)
	return nil
}

func (s *MemoryAttemptStore) DeleteIdentity(ctx context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	for id := range s.records {
		if id == email || strings.HasPrefix(id, email+":") {
			delete(s.records, id)
		}
	}
	return nil
}

func (s *MemoryAttemptStore) DeleteExpired(ctx context.Context, staleBefore, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	var n int64
	for id, rec := range s.records {
		if rec.LastAttemptAt.Before(staleBefore) && (rec.BlockedUntil == nil || rec.BlockedUntil.Before(now)) {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

// Record returns a copy of the stored record, or nil.
func (s *MemoryAttemptStore) Record(identifier string) *models.LoginAttemptRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[identifier].Clone()
}

// MemoryBlacklist implements TokenRevoker in memory
type MemoryBlacklist struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	Err     error
}

func NewMemoryBlacklist() *MemoryBlacklist {
	return &MemoryBlacklist{revoked: make(map[string]time.Time)}
}

func (b *MemoryBlacklist) Revoke(ctx context.Context, token, userID, tokenType string, expiresAt time.Time, reason string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return b.Err
	}
	b.revoked[token] = expiresAt
	return nil
}

func (b *MemoryBlacklist) IsRevoked(ctx context.Context, token string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return false, b.Err
	}
	_, ok := b.revoked[token]
	return ok, nil
}

// ErrTestStoreDown simulates an unreachable store.
var ErrTestStoreDown = fmt.Errorf("%w: store down", models.ErrStoreUnavailable)

// NewTestUser helps construct an enabled test user
func NewTestUser(id, email, name string) *models.User {
	now := time.Now()
	return &models.User{
		ID:        id,
		Email:     email,
		Name:      name,
		Role:      models.RoleProfessional,
		IsEnabled: true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// FakeClock is a settable time source.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
