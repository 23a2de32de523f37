package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string]int)
	done := make(chan struct{}, 3)

	q := NewQueue("test", func(ctx context.Context, job Job) error {
		mu.Lock()
		seen[job.EntityID]++
		mu.Unlock()
		done <- struct{}{}
		return nil
	}, QueueConfig{Workers: 2})
	q.Start(context.Background())
	defer q.Stop()

	for _, id := range []string{"a", "b", "c"} {
		ok, err := q.Enqueue(context.Background(), Job{ID: id, EntityID: id})
		require.NoError(t, err)
		assert.True(t, ok)
	}
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for jobs")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]int{"a": 1, "b": 1, "c": 1}, seen)
}

func TestQueueDeduplicatesPendingEntity(t *testing.T) {
	release := make(chan struct{})
	q := NewQueue("dedupe", func(ctx context.Context, job Job) error {
		<-release
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 4})
	q.Start(context.Background())
	defer q.Stop()

	ok, err := q.Enqueue(context.Background(), Job{EntityID: "leave-1"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = q.Enqueue(context.Background(), Job{EntityID: "leave-1"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, q.Pending())

	close(release)
	require.Eventually(t, func() bool { return q.Pending() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestQueueRetriesFailures(t *testing.T) {
	var calls int32
	q := NewQueue("retry", func(ctx context.Context, job Job) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("boom")
		}
		return nil
	}, QueueConfig{Workers: 1, MaxRetries: 5, RetryDelay: 5 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	_, err := q.Enqueue(context.Background(), Job{EntityID: "x"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestEnqueueBeforeStartFails(t *testing.T) {
	q := NewQueue("idle", func(context.Context, Job) error { return nil }, QueueConfig{})
	_, err := q.Enqueue(context.Background(), Job{EntityID: "x"})
	assert.Error(t, err)
}

func TestSchedulerRunsUntilCancelled(t *testing.T) {
	var runs int32
	s := NewScheduler("sweep", time.Second, func(context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
