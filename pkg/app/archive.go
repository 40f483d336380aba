package app

import (
	"context"
	"time"
)

// RunArchiver archives terminal trades every interval until ctx is done.
// A non-positive interval disables it.
func (a *App) RunArchiver(ctx context.Context, interval, olderThan time.Duration) {
	if interval <= 0 {
		return
	}
	logger := a.Deps.Logger.With("job", "archive")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.Registry.Archive(ctx, olderThan); err != nil {
				logger.Error("failed to archive trades", "error", err)
			}
		}
	}
}
