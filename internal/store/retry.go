package store

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

const (
	busyRetryAttempts = 3
	busyRetryBase     = 50 * time.Millisecond
)

// isConflict reports SQLITE_BUSY and "database is locked" errors, the two
// forms of SQLite write contention that warrant a retry.
func isConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// withBusyRetry runs fn, retrying contention errors with exponential backoff
// (50ms, 100ms).
func withBusyRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for i := 0; i < busyRetryAttempts; i++ {
		err = fn()
		if !isConflict(err) || i == busyRetryAttempts-1 {
			return err
		}
		delay := busyRetryBase * time.Duration(1<<i)
		slog.Debug("SQLite busy, retrying", "op", op, "attempt", i+1, "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
