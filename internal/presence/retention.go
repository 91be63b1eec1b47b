package presence

import (
	"context"
	"log/slog"
	"time"
)

// Pruner deletes journal rows older than a cutoff.
type Pruner interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RunRetention prunes rows older than retention every interval until ctx is
// done. A non-positive retention returns immediately.
func RunRetention(ctx context.Context, pruner Pruner, retention, interval time.Duration, logger *slog.Logger) {
	if retention <= 0 {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = retention / 10
	}

	prune := func() {
		n, err := pruner.DeleteBefore(ctx, time.Now().UTC().Add(-retention))
		if err != nil {
			logger.Warn("presence prune failed", "error", err)
			return
		}
		if n > 0 {
			logger.Info("presence pruned", "rows", n)
		}
	}

	prune()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
