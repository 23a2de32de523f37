package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Task is a periodic unit of work run by a Scheduler.
type Task func(context.Context) error

// Scheduler runs a task on a fixed interval until its context ends.
type Scheduler struct {
	name     string
	interval time.Duration
	task     Task
	logger   *zap.Logger
}

// NewScheduler builds a scheduler. Intervals below one second are raised to one second.
func NewScheduler(name string, interval time.Duration, task Task, logger *zap.Logger) *Scheduler {
	if interval < time.Second {
		interval = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{name: name, interval: interval, task: task, logger: logger}
}

// Run executes the task once immediately and then on every tick. It returns
// nil when ctx is cancelled; task errors are logged and do not stop the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Sugar().Infow("scheduler stopped", "scheduler", s.name)
			return nil
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	started := time.Now()
	if err := s.task(ctx); err != nil && ctx.Err() == nil {
		s.logger.Sugar().Warnw("scheduled task failed", "scheduler", s.name, "error", err)
		return
	}
	s.logger.Sugar().Debugw("scheduled task finished", "scheduler", s.name, "duration", time.Since(started))
}
