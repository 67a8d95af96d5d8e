// Package scheduler runs named functions on fixed intervals until the context
// is cancelled.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Task is a function run every Interval. An error from Run is logged and
// the next tick runs normally; the interval is the retry policy.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Every runs t until ctx is done. A tick that fires while Run is still in
// progress is dropped, so rounds of the same task never overlap. The round
// in flight when ctx is cancelled finishes before Every returns.
func Every(ctx context.Context, log *zap.Logger, t Task) {
	log = log.With(zap.String("task", t.Name))
	log.Info("task started", zap.Duration("interval", t.Interval))
	defer log.Info("task stopped")

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			if err := t.Run(ctx); err != nil {
				log.Warn("task failed", zap.Error(err), zap.Duration("took", time.Since(start)))
				continue
			}
			log.Debug("task done", zap.Duration("took", time.Since(start)))
		}
	}
}

// Run starts every task on its own goroutine inside g and returns
// immediately. Tasks stop when g's context is cancelled.
func Run(ctx context.Context, g *errgroup.Group, log *zap.Logger, tasks ...Task) {
	for _, t := range tasks {
		g.Go(func() error {
			Every(ctx, log, t)
			return nil
		})
	}
}
