package redisqueue

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kevin07696/subscription-migrator/internal/domain/ports"
	"github.com/kevin07696/subscription-migrator/pkg/resilience"
)

// Handler runs one job
type Handler func(ctx context.Context, job ports.Job) error

// WorkerConfig tunes how jobs are consumed
type WorkerConfig struct {
	Kinds       []ports.JobKind
	PollTimeout time.Duration
	// JobsPerSecond caps how fast batches start; 0 means unlimited
	JobsPerSecond float64
	MaxAttempts   int
}

// DefaultWorkerConfig consumes both pipelines at up to one batch per second
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Kinds:         []ports.JobKind{ports.JobProductsBatch, ports.JobSubscriptionsBatch},
		PollTimeout:   2 * time.Second,
		JobsPerSecond: 1,
		MaxAttempts:   3,
	}
}

// Worker pops jobs from a Queue and hands them to a Handler
type Worker struct {
	queue        *Queue
	handler      Handler
	limiter      *rate.Limiter
	retryBackoff resilience.BackoffStrategy
	queueBackoff resilience.BackoffStrategy
	timeouts     *resilience.TimeoutConfig
	logger       *zap.Logger
	kinds        []ports.JobKind
	pollTimeout  time.Duration
	maxAttempts  int
}

// NewWorker creates a worker over queue
func NewWorker(queue *Queue, handler Handler, cfg WorkerConfig, timeouts *resilience.TimeoutConfig, logger *zap.Logger) *Worker {
	defaults := DefaultWorkerConfig()
	if len(cfg.Kinds) == 0 {
		cfg.Kinds = defaults.Kinds
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaults.PollTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if timeouts == nil {
		timeouts = resilience.DefaultTimeoutConfig()
	}

	// BRPOPLPUSH blocks in whole seconds
	pollTimeout := cfg.PollTimeout / time.Duration(len(cfg.Kinds))
	if pollTimeout < time.Second {
		pollTimeout = time.Second
	}

	limit := rate.Inf
	if cfg.JobsPerSecond > 0 {
		limit = rate.Limit(cfg.JobsPerSecond)
	}

	return &Worker{
		queue:        queue,
		handler:      handler,
		limiter:      rate.NewLimiter(limit, 1),
		retryBackoff: resilience.JobRetryBackoff(),
		queueBackoff: resilience.QueueBackoff(),
		timeouts:     timeouts,
		logger:       logger,
		kinds:        cfg.Kinds,
		pollTimeout:  pollTimeout,
		maxAttempts:  cfg.MaxAttempts,
	}
}

// Run consumes jobs until ctx is cancelled. Jobs interrupted by a previous run are recovered first.
func (w *Worker) Run(ctx context.Context) error {
	for _, kind := range w.kinds {
		if _, err := w.queue.Recover(ctx, kind); err != nil {
			return err
		}
	}

	w.logger.Info("Job worker started", zap.Int("kinds", len(w.kinds)), zap.Duration("poll_timeout", w.pollTimeout))
	failures := 0
	for {
		for _, kind := range w.kinds {
			if ctx.Err() != nil {
				w.logger.Info("Job worker stopping")
				return nil
			}

			job, err := w.queue.Dequeue(ctx, kind, w.pollTimeout)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				delay := w.queueBackoff.NextDelay(failures)
				failures++
				w.logger.Error("Failed to dequeue job",
					zap.String("kind", string(kind)),
					zap.Duration("retry_in", delay),
					zap.Error(err))
				sleep(ctx, delay)
				continue
			}
			failures = 0
			if job == nil {
				continue
			}

			if err := w.limiter.Wait(ctx); err != nil {
				w.requeue(job)
				continue
			}
			w.process(ctx, job)
		}
	}
}

// RunOnce processes at most one job of each kind, waiting up to a second per kind. It returns the number of jobs handled.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	handled := 0
	for _, kind := range w.kinds {
		job, err := w.queue.Dequeue(ctx, kind, time.Second)
		if err != nil {
			return handled, err
		}
		if job == nil {
			continue
		}
		w.process(ctx, job)
		handled++
	}
	return handled, nil
}

// process runs the handler with retries. Jobs cut short by shutdown go back to the queue;
// anything else is acked, since batch failures are already recorded in the migration state.
func (w *Worker) process(ctx context.Context, job *ports.Job) {
	start := time.Now()
	logger := w.logger.With(
		zap.String("job_id", job.ID),
		zap.String("kind", string(job.Kind)),
		zap.Int("offset", job.Offset))

	err := resilience.Retry(ctx, w.maxAttempts, w.retryBackoff, retryable, func(ctx context.Context) error {
		batchCtx, cancel := w.timeouts.BatchContext(ctx)
		defer cancel()
		return w.handler(batchCtx, *job)
	})

	switch {
	case err == nil:
		logger.Info("Job completed", zap.Duration("duration", time.Since(start)))
		w.queue.Ack(ctx, job.Kind, job.ID)
	case ctx.Err() != nil:
		logger.Warn("Job interrupted, requeueing", zap.Error(err))
		w.requeue(job)
	default:
		logger.Error("Job failed", zap.Duration("duration", time.Since(start)), zap.Error(err))
		w.queue.Ack(ctx, job.Kind, job.ID)
	}
}

// requeue uses a fresh context so shutdown does not lose the job
func (w *Worker) requeue(job *ports.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.queue.Requeue(ctx, job.Kind, job.ID); err != nil {
		w.logger.Error("Failed to requeue job", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func retryable(err error) bool {
	return !errors.Is(err, context.Canceled)
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
