package conversation

import (
	"context"
	"log/slog"
	"time"
)

// RunPruner deletes seen-message entries older than retention every interval
// until ctx is cancelled.
func RunPruner(ctx context.Context, store *Store, retention, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 || retention <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.PruneSeen(ctx, retention)
			if err != nil {
				logger.Error("prune seen messages failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("pruned seen messages", "count", n)
			}
		}
	}
}
