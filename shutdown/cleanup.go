package shutdown

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Closer adapts an io.Closer such as a session registry or database handle.
func Closer(logger *zap.Logger, name string, c io.Closer) Func {
	return func(ctx context.Context) error {
		if err := c.Close(); err != nil {
			return err
		}
		logger.Debug("Closed", zap.String("component", name))
		return nil
	}
}

// HTTPServer stops srv gracefully within the shutdown budget and closes it
// hard when the budget runs out.
func HTTPServer(logger *zap.Logger, srv *http.Server) Func {
	return func(ctx context.Context) error {
		err := srv.Shutdown(ctx)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			logger.Warn("HTTP server did not drain in time, closing connections")
			return srv.Close()
		}
		if err == nil {
			logger.Info("HTTP server stopped", zap.String("addr", srv.Addr))
		}
		return err
	}
}

// FlushLogger syncs the logger. Sync errors on terminals are ignored
// because stdout and stderr do not support fsync.
func FlushLogger(logger *zap.Logger) Func {
	return func(ctx context.Context) error {
		err := logger.Sync()
		if err == nil || errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
			return nil
		}
		return err
	}
}

// RemoveStale removes entries of dir matching pattern that were last
// modified more than olderThan ago. Worker sockets left by a crashed
// process are the typical target. Missing directories are not an error.
func RemoveStale(logger *zap.Logger, dir, pattern string, olderThan time.Duration) Func {
	return func(ctx context.Context) error {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return err
		}
		cutoff := time.Now().Add(-olderThan)
		var errs []error
		removed := 0
		for _, path := range matches {
			if err := ctx.Err(); err != nil {
				return err
			}
			info, err := os.Lstat(path)
			if err != nil {
				continue
			}
			if info.ModTime().After(cutoff) {
				continue
			}
			if err := os.RemoveAll(path); err != nil {
				errs = append(errs, err)
				continue
			}
			removed++
		}
		if removed > 0 {
			logger.Info("Removed stale files",
				zap.String("dir", dir),
				zap.String("pattern", pattern),
				zap.Int("count", removed),
			)
		}
		return errors.Join(errs...)
	}
}
