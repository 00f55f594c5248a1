package db

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultCleanupInterval is how often StartCleanupScheduler prunes history.
const DefaultCleanupInterval = 6 * time.Hour

// CleanupResult contains statistics about a cleanup run.
type CleanupResult struct {
	Deleted  int64
	Duration time.Duration
}

// Cleanup deletes render_history rows that started before now minus
// retention and vacuums the file. A zero retention keeps everything.
//
// Example:
//
//	result, err := database.Cleanup(ctx, cfg.HistoryRetention())
func (d *Database) Cleanup(ctx context.Context, retention time.Duration) (CleanupResult, error) {
	return d.cleanupBefore(ctx, time.Now().Add(-retention), retention)
}

func (d *Database) cleanupBefore(ctx context.Context, cutoff time.Time, retention time.Duration) (CleanupResult, error) {
	start := time.Now()
	result := CleanupResult{}
	if retention < 0 {
		return result, fmt.Errorf("retention must be non-negative, got %v", retention)
	}
	if retention == 0 {
		return result, nil
	}
	conn, err := d.db()
	if err != nil {
		return result, err
	}

	res, err := conn.ExecContext(ctx, "DELETE FROM render_history WHERE started_at < ?", cutoff.UnixMilli())
	if err != nil {
		return result, fmt.Errorf("failed to delete from render_history: %w", err)
	}
	if result.Deleted, err = res.RowsAffected(); err != nil {
		return result, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if result.Deleted > 0 {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(start)
			return result, err
		}
		if _, err := conn.ExecContext(ctx, "VACUUM"); err != nil {
			result.Duration = time.Since(start)
			return result, fmt.Errorf("cleanup succeeded but VACUUM failed: %w", err)
		}
	}
	result.Duration = time.Since(start)
	return result, nil
}

// StartCleanupScheduler runs Cleanup now and then every interval until ctx
// is cancelled. Results are logged.
func (d *Database) StartCleanupScheduler(ctx context.Context, retention, interval time.Duration, logger *zap.Logger) {
	if retention == 0 {
		logger.Info("Render history retention disabled")
		return
	}
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	run := func() {
		result, err := d.Cleanup(ctx, retention)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("Render history cleanup failed", zap.Error(err))
			}
			return
		}
		logger.Debug("Render history cleanup",
			zap.Int64("deleted", result.Deleted),
			zap.Duration("duration", result.Duration))
	}

	go func() {
		run()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run()
			}
		}
	}()
}
