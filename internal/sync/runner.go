package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Runner drives the engine through a fixed number of passes at a fixed
// interval. A fatal pass failure stops the schedule; per-item failures only
// show up in summaries. With a watcher attached, a source change triggers
// the next pass early instead of waiting out the interval.
type Runner struct {
	engine   *Engine
	interval time.Duration
	times    int
	watcher  *FileWatcher
}

func NewRunner(engine *Engine, interval time.Duration, times int, watcher *FileWatcher) *Runner {
	return &Runner{
		engine:   engine,
		interval: interval,
		times:    times,
		watcher:  watcher,
	}
}

func (r *Runner) Run(ctx context.Context) error {
	var watchEvents <-chan struct{}
	if r.watcher != nil {
		if err := r.watcher.Start(ctx); err != nil {
			slog.Warn("file watcher unavailable, interval only", "error", err)
		} else {
			watchEvents = r.watcher.Events()
			defer r.watcher.Stop()
		}
	}

	// a timer instead of a ticker so a pass overrunning the interval does
	// not queue up extra ticks
	timer := time.NewTimer(r.interval)
	defer timer.Stop()
	if !timer.Stop() {
		<-timer.C
	}

	for pass := 1; ; pass++ {
		slog.Info("starting sync pass", "pass", pass, "of", r.times)

		if _, err := r.engine.RunPass(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			return fmt.Errorf("pass %d/%d: %w", pass, r.times, err)
		}

		if pass >= r.times {
			return nil
		}

		timer.Reset(r.interval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		case <-watchEvents:
			slog.Debug("source changed, running next pass early")
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
	}
}
