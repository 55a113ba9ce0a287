package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	var mu sync.Mutex
	processed := make(map[string]int)

	q := NewQueue("test", func(ctx context.Context, job Job) error {
		mu.Lock()
		defer mu.Unlock()
		processed[job.ID]++
		return nil
	}, QueueConfig{Workers: 2, BufferSize: 8})

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "a"}))
	require.NoError(t, q.Enqueue(Job{ID: "b"}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return processed["a"] == 1 && processed["b"] == 1
	}, time.Second, 5*time.Millisecond)
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	q := NewQueue("test", func(ctx context.Context, job Job) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	}, QueueConfig{Workers: 1, MaxRetries: 5, RetryDelay: time.Millisecond})

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "flaky"}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return attempts == 3
	}, time.Second, 5*time.Millisecond)
}

func TestEnqueueBeforeStartFails(t *testing.T) {
	q := NewQueue("test", func(ctx context.Context, job Job) error { return nil }, QueueConfig{})
	require.Error(t, q.Enqueue(Job{ID: "early"}))
}
