package cache

import (
	"context"
	"log/slog"
	"time"
)

// Purger removes expired entries that would otherwise only be dropped when
// read again.
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

// Sweep purges p every interval until ctx is done. A non-positive interval
// disables it.
func Sweep(ctx context.Context, p Purger, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.Purge(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn("cache sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("cache sweep", "purged", n)
			}
		}
	}
}
