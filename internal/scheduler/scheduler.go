// Package scheduler runs a task on a fixed interval until its context ends.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Task is one scheduled unit of work.
type Task func(ctx context.Context) error

// Every runs task every interval until ctx is done. When immediate is set the
// first run starts right away instead of after one interval. Runs never
// overlap; a tick that arrives while a run is still going is dropped.
func Every(ctx context.Context, interval time.Duration, immediate bool, name string, task Task, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("scheduler").With(zap.String("task", name))
	if interval <= 0 {
		logger.Warn("schedule disabled; interval must be positive", zap.Duration("interval", interval))
		return
	}

	run := func() {
		start := time.Now()
		if err := task(ctx); err != nil {
			logger.Warn("scheduled task failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
			return
		}
		logger.Debug("scheduled task finished", zap.Duration("elapsed", time.Since(start)))
	}

	logger.Info("schedule started", zap.Duration("interval", interval), zap.Bool("immediate", immediate))
	if immediate {
		run()
	}

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("schedule stopped")
			return
		case <-t.C:
			run()
		}
	}
}
