package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/clinicguard/internal/config"
	"github.com/BradenHooton/clinicguard/internal/models"
	"github.com/BradenHooton/clinicguard/internal/repositories"
	pkghttp "github.com/BradenHooton/clinicguard/pkg/http"
	pkglogger "github.com/BradenHooton/clinicguard/pkg/logger"
)

// AttemptStore persists per-identifier abuse counters. Mutate must apply fn
// atomically with respect to other writers of the same identifier.
type AttemptStore interface {
	Get(ctx context.Context, identifier string) (*models.LoginAttemptRecord, error)
	Mutate(ctx context.Context, identifier string, fn repositories.AttemptMutation) (*models.LoginAttemptRecord, error)
	Delete(ctx context.Context, identifier string) error
	DeleteIdentity(ctx context.Context, email string) error
	DeleteExpired(ctx context.Context, staleBefore, now time.Time) (int64, error)
}

// delayLadder maps a failure count to the wait imposed before the next
// attempt. Entries are checked from the top.
var delayLadder = []struct {
	minCount int
	delay    time.Duration
}{
	{5, 30 * time.Second},
	{3, 5 * time.Second},
}

func delayFor(count int) time.Duration {
	for _, step := range delayLadder {
		if count >= step.minCount {
			return step.delay
		}
	}
	return 0
}

// LockoutDecision is the outcome of a lockout check or a recorded failure.
type LockoutDecision struct {
	Allowed      bool
	Count        int
	Delay        time.Duration
	RetryAfter   time.Duration
	BlockedUntil *time.Time
	NewlyBlocked bool // this failure crossed the block threshold
}

// Err returns the rate limit error for a denied decision, nil otherwise.
func (d LockoutDecision) Err() error {
	if d.Allowed {
		return nil
	}
	return &models.RateLimitError{RetryAfter: d.RetryAfter, BlockedUntil: d.BlockedUntil}
}

// LockoutIdentifier builds the counter key for a login. The client IP is
// appended when known so one attacker cannot lock a victim out everywhere.
func LockoutIdentifier(email, ip string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if ip == "" {
		return email
	}
	return email + ":" + ip
}

// LockoutService is the progressive lockout engine for password logins.
type LockoutService struct {
	store  AttemptStore
	config config.LockoutConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewLockoutService creates a new LockoutService
func NewLockoutService(store AttemptStore, cfg config.LockoutConfig, logger *slog.Logger) *LockoutService {
	return &LockoutService{
		store:  store,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

func (s *LockoutService) whitelisted(ip string) bool {
	return ip != "" && pkghttp.MatchesAny(ip, s.config.IPWhitelist)
}

// Check reports whether a login for email from ip may proceed. Store read
// failures are returned so the caller can fail closed.
func (s *LockoutService) Check(ctx context.Context, email, ip string) (LockoutDecision, error) {
	if s.whitelisted(ip) {
		return LockoutDecision{Allowed: true}, nil
	}

	identifier := LockoutIdentifier(email, ip)
	rec, err := s.store.Get(ctx, identifier)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return LockoutDecision{Allowed: true}, nil
		}
		return LockoutDecision{}, fmt.Errorf("lockout check: %w", err)
	}

	now := s.now()
	if s.expired(rec, now) {
		if err := s.store.Delete(ctx, identifier); err != nil {
			s.logger.Warn("failed to delete expired lockout record",
				slog.String("identifier", pkglogger.SanitizedIdentifier(identifier)),
				slog.Any("error", err))
		}
		return LockoutDecision{Allowed: true}, nil
	}

	return s.evaluate(rec, now), nil
}

// RecordFailure counts a failed credential check and returns the decision
// that applies to the next attempt.
func (s *LockoutService) RecordFailure(ctx context.Context, email, ip string) (LockoutDecision, error) {
	if s.whitelisted(ip) {
		return LockoutDecision{Allowed: true}, nil
	}

	identifier := LockoutIdentifier(email, ip)
	var newlyBlocked bool
	var now time.Time

	rec, err := s.store.Mutate(ctx, identifier, func(current *models.LoginAttemptRecord) (*models.LoginAttemptRecord, error) {
		now = s.now()
		newlyBlocked = false

		if current == nil || s.expired(current, now) {
			return &models.LoginAttemptRecord{
				Identifier:     identifier,
				Count:          1,
				FirstAttemptAt: now,
				LastAttemptAt:  now,
			}, nil
		}

		next := current.Clone()
		next.Count++
		next.LastAttemptAt = now
		if next.BlockedUntil == nil && next.Count >= s.config.BlockThreshold {
			until := now.Add(s.config.BlockDuration)
			next.BlockedUntil = &until
			newlyBlocked = true
		}
		return next, nil
	})
	if err != nil {
		return LockoutDecision{}, fmt.Errorf("lockout record failure: %w", err)
	}

	decision := s.evaluate(rec, now)
	decision.NewlyBlocked = newlyBlocked
	if newlyBlocked {
		s.logger.Warn("login identifier blocked",
			slog.String("identifier", pkglogger.SanitizedIdentifier(identifier)),
			slog.Int("failed_attempts", rec.Count),
			slog.Time("blocked_until", *rec.BlockedUntil))
	}
	return decision, nil
}

// Clear removes the counter after a successful authentication.
func (s *LockoutService) Clear(ctx context.Context, email, ip string) error {
	if s.whitelisted(ip) {
		return nil
	}
	return s.store.Delete(ctx, LockoutIdentifier(email, ip))
}

// ClearAll removes every counter for email regardless of source IP.
func (s *LockoutService) ClearAll(ctx context.Context, email string) error {
	return s.store.DeleteIdentity(ctx, strings.ToLower(strings.TrimSpace(email)))
}

// expired reports whether rec no longer constrains anything: its block has
// ended or, unblocked, its reset window has elapsed.
func (s *LockoutService) expired(rec *models.LoginAttemptRecord, now time.Time) bool {
	if rec.BlockedUntil != nil {
		return !now.Before(*rec.BlockedUntil)
	}
	return now.Sub(rec.FirstAttemptAt) > s.config.ResetWindow
}

func (s *LockoutService) evaluate(rec *models.LoginAttemptRecord, now time.Time) LockoutDecision {
	decision := LockoutDecision{Allowed: true, Count: rec.Count, Delay: delayFor(rec.Count)}

	if rec.IsBlocked(now) {
		until := *rec.BlockedUntil
		decision.Allowed = false
		decision.BlockedUntil = &until
		decision.RetryAfter = until.Sub(now)
		return decision
	}

	if decision.Delay > 0 {
		if wait := rec.LastAttemptAt.Add(decision.Delay).Sub(now); wait > 0 {
			decision.Allowed = false
			decision.RetryAfter = wait
		}
	}
	return decision
}
