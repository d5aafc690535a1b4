package redisqueue

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kevin07696/subscription-migrator/internal/domain/ports"
	"github.com/kevin07696/subscription-migrator/pkg/resilience"
)

func setupTestQueue(t *testing.T) *Queue {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test")
	}
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}

	ctx := context.Background()
	client, err := Connect(ctx, url, zap.NewNop())
	require.NoError(t, err)

	prefix := "migrator-test-" + uuid.New().String()
	t.Cleanup(func() {
		keys, _ := client.Keys(ctx, prefix+":*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		client.Close()
	})

	return NewQueue(client, prefix, zap.NewNop())
}

func TestQueue_EnqueueDequeueFIFO(t *testing.T) {
	q := setupTestQueue(t)
	ctx := context.Background()

	pending, err := q.IsPending(ctx, ports.JobProductsBatch)
	require.NoError(t, err)
	assert.False(t, pending)

	require.NoError(t, q.Enqueue(ctx, ports.JobProductsBatch, 0))
	require.NoError(t, q.Enqueue(ctx, ports.JobProductsBatch, 10))

	pending, err = q.IsPending(ctx, ports.JobProductsBatch)
	require.NoError(t, err)
	assert.True(t, pending)

	other, err := q.IsPending(ctx, ports.JobSubscriptionsBatch)
	require.NoError(t, err)
	assert.False(t, other)

	first, err := q.Dequeue(ctx, ports.JobProductsBatch, time.Second)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, 0, first.Offset)
	assert.Equal(t, ports.JobProductsBatch, first.Kind)
	assert.NotEmpty(t, first.ID)

	waiting, processing, err := q.Pending(ctx, ports.JobProductsBatch)
	require.NoError(t, err)
	assert.Equal(t, int64(1), waiting)
	assert.Equal(t, int64(1), processing)

	q.Ack(ctx, ports.JobProductsBatch, first.ID)

	second, err := q.Dequeue(ctx, ports.JobProductsBatch, time.Second)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, 10, second.Offset)
}

func TestQueue_DequeueTimeout(t *testing.T) {
	q := setupTestQueue(t)

	job, err := q.Dequeue(context.Background(), ports.JobSubscriptionsBatch, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestQueue_ClearAll(t *testing.T) {
	q := setupTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, ports.JobSubscriptionsBatch, 0))
	require.NoError(t, q.Enqueue(ctx, ports.JobSubscriptionsBatch, 0))
	require.NoError(t, q.Enqueue(ctx, ports.JobProductsBatch, 5))

	require.NoError(t, q.ClearAll(ctx, ports.JobSubscriptionsBatch))

	pending, err := q.IsPending(ctx, ports.JobSubscriptionsBatch)
	require.NoError(t, err)
	assert.False(t, pending)

	pending, err = q.IsPending(ctx, ports.JobProductsBatch)
	require.NoError(t, err)
	assert.True(t, pending)
}

func TestQueue_RequeueAndRecover(t *testing.T) {
	q := setupTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, ports.JobProductsBatch, 3))
	job, err := q.Dequeue(ctx, ports.JobProductsBatch, time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)

	require.NoError(t, q.Requeue(ctx, ports.JobProductsBatch, job.ID))
	again, err := q.Dequeue(ctx, ports.JobProductsBatch, time.Second)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, job.ID, again.ID)

	n, err := q.Recover(ctx, ports.JobProductsBatch)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	waiting, processing, err := q.Pending(ctx, ports.JobProductsBatch)
	require.NoError(t, err)
	assert.Equal(t, int64(1), waiting)
	assert.Equal(t, int64(0), processing)
}

func TestQueue_DequeueDropsExpiredPayload(t *testing.T) {
	q := setupTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.client.LPush(ctx, q.pendingKey(ports.JobProductsBatch), "missing").Err())

	job, err := q.Dequeue(ctx, ports.JobProductsBatch, time.Second)
	require.NoError(t, err)
	assert.Nil(t, job)

	_, processing, err := q.Pending(ctx, ports.JobProductsBatch)
	require.NoError(t, err)
	assert.Equal(t, int64(0), processing)
}

type recordingHandler struct {
	mu    sync.Mutex
	jobs  []ports.Job
	fails int
}

func (h *recordingHandler) handle(ctx context.Context, job ports.Job) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.jobs = append(h.jobs, job)
	if h.fails > 0 {
		h.fails--
		return errors.New("transient")
	}
	return nil
}

func TestWorker_RunOnce(t *testing.T) {
	q := setupTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, ports.JobProductsBatch, 0))
	require.NoError(t, q.Enqueue(ctx, ports.JobSubscriptionsBatch, 0))

	h := &recordingHandler{fails: 1}
	w := NewWorker(q, h.handle, WorkerConfig{JobsPerSecond: 0, MaxAttempts: 2}, nil, zap.NewNop())
	w.retryBackoff = &resilience.FixedBackoff{}

	n, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	// the first job failed once and was retried
	assert.Len(t, h.jobs, 3)

	for _, kind := range []ports.JobKind{ports.JobProductsBatch, ports.JobSubscriptionsBatch} {
		waiting, processing, err := q.Pending(ctx, kind)
		require.NoError(t, err)
		assert.Zero(t, waiting)
		assert.Zero(t, processing)
	}
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	q := setupTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, q.Enqueue(ctx, ports.JobSubscriptionsBatch, 7))

	handled := make(chan ports.Job, 1)
	w := NewWorker(q, func(ctx context.Context, job ports.Job) error {
		handled <- job
		return nil
	}, WorkerConfig{PollTimeout: 200 * time.Millisecond}, nil, zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case job := <-handled:
		assert.Equal(t, 7, job.Offset)
	case <-time.After(5 * time.Second):
		t.Fatal("job was not handled")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}
