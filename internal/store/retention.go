package store

import (
	"context"
	"log/slog"
	"time"
)

const retentionWorkerInterval = time.Hour

// StartRetentionWorker runs a background goroutine that periodically deletes
// archived attempts older than retention. It stops when ctx is done.
func StartRetentionWorker(ctx context.Context, repo Repository, retention time.Duration) {
	startRetentionWorker(ctx, repo, retention, retentionWorkerInterval)
}

func startRetentionWorker(ctx context.Context, repo Repository, retention, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Retention worker started", "interval", interval, "retention", retention)

		for {
			select {
			case <-ticker.C:
				purgeExpiredAttempts(ctx, repo, retention)
			case <-ctx.Done():
				slog.Info("Retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func purgeExpiredAttempts(ctx context.Context, repo Repository, retention time.Duration) {
	deleted, err := repo.DeleteAttemptsBefore(ctx, time.Now().Add(-retention))
	if err != nil {
		slog.Error("Retention worker failed to purge attempts", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("Retention worker purged attempts", "count", deleted)
	}
}
