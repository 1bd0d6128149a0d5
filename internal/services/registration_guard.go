package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/clinicguard/internal/config"
	"github.com/BradenHooton/clinicguard/internal/models"
)

// registrationLevels are the escalating per-IP limits. Exceeding a level's
// limit blocks the IP until that level's window ends and moves it up a level.
var registrationLevels = []struct {
	limit  int
	window time.Duration
}{
	{10, 10 * time.Minute},
	{5, 30 * time.Minute},
	{3, 60 * time.Minute},
}

const (
	registrationRatePrefix    = "register:"
	registrationFailurePrefix = "register-fail:"
)

// RegistrationGuard throttles public account creation per source IP.
type RegistrationGuard struct {
	store  AttemptStore
	config config.RegistrationConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewRegistrationGuard creates a new RegistrationGuard
func NewRegistrationGuard(store AttemptStore, cfg config.RegistrationConfig, logger *slog.Logger) *RegistrationGuard {
	return &RegistrationGuard{
		store:  store,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Allow counts a registration attempt from ip and returns a
// *models.RateLimitError when the IP is over its current level or serving a
// failure block. An unknown IP is not throttled.
func (g *RegistrationGuard) Allow(ctx context.Context, ip string) error {
	if ip == "" {
		return nil
	}

	failures, err := g.store.Get(ctx, registrationFailurePrefix+ip)
	switch {
	case err == nil:
		if now := g.now(); failures.IsBlocked(now) {
			return blockedError(failures.BlockedUntil, now)
		}
	case !errors.Is(err, models.ErrNotFound):
		return fmt.Errorf("registration guard: %w", err)
	}

	var denied error
	_, err = g.store.Mutate(ctx, registrationRatePrefix+ip, func(current *models.LoginAttemptRecord) (*models.LoginAttemptRecord, error) {
		now := g.now()
		denied = nil

		if current == nil {
			return &models.LoginAttemptRecord{
				Identifier:     registrationRatePrefix + ip,
				Count:          1,
				FirstAttemptAt: now,
				LastAttemptAt:  now,
			}, nil
		}

		next := current.Clone()
		next.LastAttemptAt = now
		if next.IsBlocked(now) {
			denied = blockedError(next.BlockedUntil, now)
			return next, nil
		}

		level := registrationLevels[min(next.Level, len(registrationLevels)-1)]
		if next.BlockedUntil != nil || now.Sub(next.FirstAttemptAt) >= level.window {
			// New window, escalation level is kept
			next.Count = 1
			next.FirstAttemptAt = now
			next.BlockedUntil = nil
			return next, nil
		}

		next.Count++
		if next.Count > level.limit {
			until := next.FirstAttemptAt.Add(level.window)
			next.BlockedUntil = &until
			if next.Level < len(registrationLevels)-1 {
				next.Level++
			}
			denied = blockedError(next.BlockedUntil, now)
			g.logger.Warn("registration rate limit exceeded",
				slog.String("ip_address", ip),
				slog.Int("level", next.Level))
		}
		return next, nil
	})
	if err != nil {
		return fmt.Errorf("registration guard: %w", err)
	}
	return denied
}

// RecordFailure counts a real registration failure such as an already
// registered email. Input validation errors must not be recorded.
func (g *RegistrationGuard) RecordFailure(ctx context.Context, ip string) error {
	if ip == "" {
		return nil
	}

	_, err := g.store.Mutate(ctx, registrationFailurePrefix+ip, func(current *models.LoginAttemptRecord) (*models.LoginAttemptRecord, error) {
		now := g.now()

		if current == nil || failureWindowOver(current, now, g.config.FailureWindow) {
			return &models.LoginAttemptRecord{
				Identifier:     registrationFailurePrefix + ip,
				Count:          1,
				FirstAttemptAt: now,
				LastAttemptAt:  now,
			}, nil
		}

		next := current.Clone()
		next.Count++
		next.LastAttemptAt = now
		if next.BlockedUntil == nil && next.Count >= g.config.FailureLimit {
			until := now.Add(g.config.FailureBlock)
			next.BlockedUntil = &until
			g.logger.Warn("registration failures exceeded, blocking source",
				slog.String("ip_address", ip),
				slog.Int("failures", next.Count))
		}
		return next, nil
	})
	if err != nil {
		return fmt.Errorf("registration guard: %w", err)
	}
	return nil
}

func failureWindowOver(rec *models.LoginAttemptRecord, now time.Time, window time.Duration) bool {
	if rec.BlockedUntil != nil {
		return !rec.IsBlocked(now)
	}
	return now.Sub(rec.FirstAttemptAt) > window
}

func blockedError(until *time.Time, now time.Time) error {
	u := *until
	return &models.RateLimitError{RetryAfter: u.Sub(now), BlockedUntil: &u}
}
