package watcher

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// runPolling rescans the roots every PollInterval. Used as a fallback when
// fsnotify is not available or fails.
func (h *HybridWatcher) runPolling(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.scan(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				// Non-fatal, try again next tick
				h.logger.Warn("poll failed", slog.String("error", err.Error()))
			}
			if h.terminal.Load() {
				return
			}
		}
	}
}
