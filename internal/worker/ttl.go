// Package worker runs background maintenance for the session store.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/leadflow/internal/shared"
)

// DefaultTTLInterval is how often expired sessions are swept.
const DefaultTTLInterval = 5 * time.Minute

// Sweeper removes sessions idle for longer than ttl.
type Sweeper interface {
	CleanupExpiredSessions(ctx context.Context, ttl time.Duration) (int64, error)
}

// CleanupCallback is called after a sweep that removed sessions.
type CleanupCallback func(removed int64)

// StartTTLWorker runs a background goroutine that periodically removes
// abandoned conversations. It stops when ctx is done.
func StartTTLWorker(ctx context.Context, repo Sweeper, ttl, interval time.Duration, onCleanup CleanupCallback) {
	if interval <= 0 {
		interval = DefaultTTLInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("TTL worker started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				removed, err := sweep(ctx, repo, ttl)
				if err != nil {
					slog.Error("TTL worker failed to cleanup expired sessions", "error", err)
					continue
				}
				if removed > 0 {
					slog.Info("TTL worker cleaned up expired sessions", "count", removed)
					if onCleanup != nil {
						onCleanup(removed)
					}
				}
			case <-ctx.Done():
				slog.Info("TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// sweep deletes expired sessions, retrying with exponential backoff when
// SQLite reports the database as busy.
func sweep(ctx context.Context, repo Sweeper, ttl time.Duration) (int64, error) {
	const maxRetries = 3
	baseDelay := 100 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		var removed int64
		removed, err = repo.CleanupExpiredSessions(ctx, ttl)
		if err == nil {
			return removed, nil
		}
		if !shared.IsSQLiteConflictError(err) || i == maxRetries-1 {
			break
		}

		delay := baseDelay * time.Duration(1<<i) // 100ms, 200ms
		slog.Debug("TTL worker: database locked during cleanup, retrying", "attempt", i+1, "delay", delay)
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(delay):
		}
	}
	return 0, fmt.Errorf("cleanup expired sessions: %w", err)
}
