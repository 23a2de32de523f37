package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/hostelx-api/pkg/jobs"
)

const (
	expireJobType   = "expire_leave"
	sweepBatchLimit = 500
)

type expiryRunner interface {
	OverdueLeaves(ctx context.Context, limit int) ([]string, error)
	ExpireOne(ctx context.Context, id string) error
}

// ExpirySweeper finds overdue leaves and fans them out to a worker pool.
type ExpirySweeper struct {
	runner expiryRunner
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewExpirySweeper wires a queue whose workers expire one leave per job.
func NewExpirySweeper(runner expiryRunner, workers int, logger *zap.Logger) *ExpirySweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ExpirySweeper{runner: runner, logger: logger}
	s.queue = jobs.NewQueue("leave-expiry", s.handle, jobs.QueueConfig{
		Workers:    workers,
		BufferSize: sweepBatchLimit,
		MaxRetries: 2,
		RetryDelay: 2 * time.Second,
		Logger:     logger,
	})
	return s
}

// Start launches the worker pool.
func (s *ExpirySweeper) Start(ctx context.Context) { s.queue.Start(ctx) }

// Stop drains the worker pool.
func (s *ExpirySweeper) Stop() { s.queue.Stop() }

// Sweep enqueues every overdue leave. It is used as a scheduler task.
func (s *ExpirySweeper) Sweep(ctx context.Context) error {
	ids, err := s.runner.OverdueLeaves(ctx, sweepBatchLimit)
	if err != nil {
		return err
	}
	queued := 0
	for _, id := range ids {
		ok, err := s.queue.Enqueue(ctx, jobs.Job{Type: expireJobType, EntityID: id})
		if err != nil {
			return err
		}
		if ok {
			queued++
		}
	}
	if queued > 0 {
		s.logger.Info("queued overdue leaves for expiry", zap.Int("count", queued))
	}
	return nil
}

func (s *ExpirySweeper) handle(ctx context.Context, job jobs.Job) error {
	return s.runner.ExpireOne(ctx, job.EntityID)
}
