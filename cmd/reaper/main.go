// Command reaper purges every account whose lifecycle phase has reached
// scheduled deletion, then exits. It is safe to run repeatedly.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/BradenHooton/clinicguard/internal/background"
	"github.com/BradenHooton/clinicguard/internal/config"
	"github.com/BradenHooton/clinicguard/internal/database"
	"github.com/BradenHooton/clinicguard/internal/models"
	"github.com/BradenHooton/clinicguard/internal/repositories"
	"github.com/BradenHooton/clinicguard/internal/services"
	pkglogger "github.com/BradenHooton/clinicguard/pkg/logger"
)

func main() {
	os.Exit(run())
}

// run returns 0 on success, 1 when the run could not start or was aborted and
// 2 when some accounts failed to purge.
func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		return 1
	}

	logger := pkglogger.New(os.Stdout, cfg.Server.LogLevel)

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		return 1
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	audit := services.NewAuditService(repositories.NewAuditLogRepository(db), repositories.NewSecurityMetricRepository(db), logger)
	policy := models.LifecyclePolicy{
		GracePeriod:       cfg.Lifecycle.GracePeriod,
		DeletionThreshold: cfg.Lifecycle.DeletionThreshold,
	}

	reaper := background.NewReaper(repositories.NewUserRepository(db), repositories.NewAccountPurgeRepository(db), audit, policy, logger)
	result, err := reaper.Run(ctx)
	if err != nil {
		logger.Error("reaper run failed", slog.Any("error", err))
		return 1
	}
	if result.Failed > 0 {
		return 2
	}
	return 0
}
