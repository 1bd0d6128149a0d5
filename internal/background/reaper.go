package background

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/BradenHooton/clinicguard/internal/models"
	"github.com/BradenHooton/clinicguard/internal/repositories"
	"github.com/BradenHooton/clinicguard/internal/services"
)

const defaultReapBatch = 100

// DisabledAccountLister lists accounts disabled at or before a cutoff.
type DisabledAccountLister interface {
	ListDisabledBefore(ctx context.Context, cutoff time.Time, after *models.DisabledAccount, limit int) ([]models.DisabledAccount, error)
}

// AccountPurger deletes one account and everything it owns.
type AccountPurger interface {
	PurgeAccount(ctx context.Context, userID string, cutoff time.Time) (repositories.PurgeResult, error)
}

// ReapResult summarises one reaper run.
type ReapResult struct {
	Purged  int
	Skipped int // re-enabled between listing and purge
	Failed  int
}

// Reaper permanently deletes accounts that reached scheduled_deletion.
type Reaper struct {
	users     DisabledAccountLister
	purger    AccountPurger
	audit     services.SecurityRecorder
	policy    models.LifecyclePolicy
	logger    *slog.Logger
	batchSize int
	now       func() time.Time
}

// NewReaper creates a new Reaper
func NewReaper(users DisabledAccountLister, purger AccountPurger, audit services.SecurityRecorder, policy models.LifecyclePolicy, logger *slog.Logger) *Reaper {
	return &Reaper{
		users:     users,
		purger:    purger,
		audit:     audit,
		policy:    policy,
		logger:    logger,
		batchSize: defaultReapBatch,
		now:       time.Now,
	}
}

// Run purges every eligible account. Each account is purged in its own
// transaction; a failure is logged and counted and the run moves on. Only a
// failure to list accounts is returned.
func (r *Reaper) Run(ctx context.Context) (ReapResult, error) {
	var result ReapResult
	cutoff := r.policy.DeletionCutoff(r.now())
	var after *models.DisabledAccount

	for {
		batch, err := r.users.ListDisabledBefore(ctx, cutoff, after, r.batchSize)
		if err != nil {
			return result, fmt.Errorf("failed to list accounts for deletion: %w", err)
		}

		for _, account := range batch {
			r.reap(ctx, account.ID, cutoff, &result)
		}

		if len(batch) < r.batchSize {
			break
		}
		last := batch[len(batch)-1]
		after = &last
	}

	r.logger.Info("account reaper finished",
		slog.Time("cutoff", cutoff),
		slog.Int("purged", result.Purged),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed))
	return result, nil
}

func (r *Reaper) reap(ctx context.Context, userID string, cutoff time.Time, result *ReapResult) {
	rows, err := r.purger.PurgeAccount(ctx, userID, cutoff)
	switch {
	case err == nil:
		result.Purged++
		details := models.Details{}
		for table, n := range rows {
			details[table] = n
		}
		// Written after the purge: a tombstone holding only the id and row counts.
		r.audit.LogEvent(ctx, services.AuditRecord{
			EventType: models.AuditEventAccountPurge,
			TargetID:  userID,
			Success:   true,
			Details:   details,
		})
	case errors.Is(err, models.ErrConflict), errors.Is(err, models.ErrNotFound):
		result.Skipped++
		r.logger.Info("account no longer eligible for deletion", slog.String("user_id", userID))
	default:
		result.Failed++
		r.logger.Error("failed to purge account",
			slog.String("user_id", userID),
			slog.Any("error", err))
	}
}

// Schedule runs the reaper on a five-field cron schedule until the returned
// scheduler is stopped. Overlapping runs are skipped.
func (r *Reaper) Schedule(ctx context.Context, schedule string) (*cron.Cron, error) {
	c := cron.New(
		cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	_, err := c.AddFunc(schedule, func() {
		if _, err := r.Run(ctx); err != nil {
			r.logger.Error("scheduled account reaper failed", slog.Any("error", err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid reaper schedule %q: %w", schedule, err)
	}

	c.Start()
	r.logger.Info("account reaper scheduled", slog.String("schedule", schedule))
	return c, nil
}
