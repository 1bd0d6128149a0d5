package background

import (
	"context"
	"log/slog"
	"time"
)

// attemptStaleAfter is how long an unblocked attempt record may sit untouched
// before the sweep removes it. It covers the longest counting window in use.
const attemptStaleAfter = 24 * time.Hour

// BlacklistPruner removes blacklist entries whose tokens have expired.
type BlacklistPruner interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// AttemptPruner removes attempt records that no longer affect any decision.
type AttemptPruner interface {
	DeleteExpired(ctx context.Context, staleBefore, now time.Time) (int64, error)
}

// TelemetryPruner removes audit and metric rows created before cutoff.
type TelemetryPruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupManager periodically sweeps expired rows that lazy pruning on read
// never reaches.
type CleanupManager struct {
	blacklist BlacklistPruner
	attempts  AttemptPruner
	telemetry TelemetryPruner
	retention time.Duration
	logger    *slog.Logger
	interval  time.Duration
	stopCh    chan struct{}
	now       func() time.Time
}

// NewCleanupManager creates a new cleanup manager. A zero retention keeps
// telemetry forever.
func NewCleanupManager(
	blacklist BlacklistPruner,
	attempts AttemptPruner,
	telemetry TelemetryPruner,
	retention time.Duration,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		blacklist: blacklist,
		attempts:  attempts,
		telemetry: telemetry,
		retention: retention,
		logger:    logger,
		interval:  interval,
		stopCh:    make(chan struct{}),
		now:       time.Now,
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			cm.RunOnce(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// RunOnce performs one sweep. Each step runs even if an earlier one failed.
func (cm *CleanupManager) RunOnce(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	now := cm.now()

	if n, err := cm.blacklist.DeleteExpired(cleanupCtx, now); err != nil {
		cm.logger.Error("failed to cleanup expired blacklist entries", slog.Any("error", err))
	} else if n > 0 {
		cm.logger.Info("expired blacklist entries removed", slog.Int64("rows_deleted", n))
	}

	if n, err := cm.attempts.DeleteExpired(cleanupCtx, now.Add(-attemptStaleAfter), now); err != nil {
		cm.logger.Error("failed to cleanup stale attempt records", slog.Any("error", err))
	} else if n > 0 {
		cm.logger.Info("stale attempt records removed", slog.Int64("rows_deleted", n))
	}

	if cm.telemetry == nil || cm.retention <= 0 {
		return
	}
	if n, err := cm.telemetry.Prune(cleanupCtx, now.Add(-cm.retention)); err != nil {
		cm.logger.Error("failed to prune telemetry", slog.Any("error", err))
	} else if n > 0 {
		cm.logger.Info("old telemetry removed", slog.Int64("rows_deleted", n))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
