package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/BradenHooton/passcode/pkg/clock"
)

// RecordPurger deletes code records created before a cutoff
type RecordPurger interface {
	DeleteCreatedBefore(ctx context.Context, before time.Time) (int64, error)
}

// StatsReporter is implemented by stores that can log their connection pool usage
type StatsReporter interface {
	LogStats()
}

// CleanupManager periodically removes code records that have aged out of
// every rate-limit window and can no longer be verified
type CleanupManager struct {
	store     RecordPurger
	clock     clock.Clock
	retention time.Duration
	logger    *slog.Logger
	interval  time.Duration
	stopCh    chan struct{}
}

// NewCleanupManager creates a new cleanup manager. Retention must cover both
// the daily window and the code TTL.
func NewCleanupManager(
	store RecordPurger,
	clk clock.Clock,
	retention time.Duration,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		store:     store,
		clock:     clk,
		retention: retention,
		logger:    logger,
		interval:  interval,
		stopCh:    make(chan struct{}),
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

// RunOnce removes records older than the retention period
func (cm *CleanupManager) RunOnce(ctx context.Context) int64 {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cutoff := cm.clock.Now().Add(-cm.retention)
	rowsDeleted, err := cm.store.DeleteCreatedBefore(cleanupCtx, cutoff)
	if err != nil {
		cm.logger.Error("failed to purge old code records", slog.Any("error", err))
		return 0
	}

	if rowsDeleted > 0 {
		cm.logger.Info("code record cleanup completed",
			slog.Int64("rows_deleted", rowsDeleted),
			slog.Time("cutoff", cutoff),
		)
	}

	if reporter, ok := cm.store.(StatsReporter); ok {
		reporter.LogStats()
	}
	return rowsDeleted
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
