// Package sweep runs periodic in-memory eviction tasks with a cancellable
// lifetime.
//
// Each store owns its own sweep with its own interval; the semantics of what
// "stale" means (idle-based vs write-age-based) live in the store, not here.
package sweep

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"
)

// Run invokes fn every interval until ctx is cancelled.
//
// Sweeps are pure in-memory operations and are not expected to fail. A panic
// in fn is treated as fatal to that tick only: it is logged with a stack and
// the ticker keeps running, so eviction is never silently abandoned.
func Run(ctx context.Context, log *slog.Logger, name string, interval time.Duration, fn func(now time.Time)) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			runOnce(log, name, now, fn)
		}
	}
}

func runOnce(log *slog.Logger, name string, now time.Time, fn func(now time.Time)) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("panic in sweep task",
				"sweep", name,
				"recover", rec,
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn(now)
}
