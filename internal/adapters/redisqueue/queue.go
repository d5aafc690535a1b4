package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kevin07696/subscription-migrator/internal/domain/ports"
)

const (
	// DefaultPrefix namespaces every key written by the queue
	DefaultPrefix = "migrator"

	// JobTTL bounds how long an unconsumed job payload survives
	JobTTL = 24 * time.Hour
)

// Queue is a ports.Scheduler backed by one pending list and one processing list per job kind.
// Lists hold job IDs; payloads live under their own keys.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
	prefix string
}

var _ ports.Scheduler = (*Queue)(nil)

// NewQueue creates a queue. An empty prefix uses DefaultPrefix.
func NewQueue(client *redis.Client, prefix string, logger *zap.Logger) *Queue {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Queue{client: client, prefix: prefix, logger: logger}
}

func (q *Queue) pendingKey(kind ports.JobKind) string {
	return q.prefix + ":queue:" + string(kind)
}

func (q *Queue) processingKey(kind ports.JobKind) string {
	return q.prefix + ":processing:" + string(kind)
}

func (q *Queue) jobKey(id string) string {
	return q.prefix + ":job:" + id
}

// Enqueue stores the job payload and pushes its ID onto the pending list
func (q *Queue) Enqueue(ctx context.Context, kind ports.JobKind, offset int) error {
	job := ports.Job{ID: uuid.New().String(), Kind: kind, Offset: offset}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, q.jobKey(job.ID), data, JobTTL)
	pipe.LPush(ctx, q.pendingKey(kind), job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue %s job: %w", kind, err)
	}

	q.logger.Debug("Enqueued job",
		zap.String("job_id", job.ID),
		zap.String("kind", string(kind)),
		zap.Int("offset", offset))
	return nil
}

// ClearAll drops every pending job of the kind. Jobs already being processed are left alone.
func (q *Queue) ClearAll(ctx context.Context, kind ports.JobKind) error {
	ids, err := q.client.LRange(ctx, q.pendingKey(kind), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("list pending %s jobs: %w", kind, err)
	}

	pipe := q.client.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, q.jobKey(id))
	}
	pipe.Del(ctx, q.pendingKey(kind))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("clear %s jobs: %w", kind, err)
	}

	if len(ids) > 0 {
		q.logger.Info("Cleared pending jobs", zap.String("kind", string(kind)), zap.Int("count", len(ids)))
	}
	return nil
}

// IsPending reports whether a job of the kind is waiting to be picked up
func (q *Queue) IsPending(ctx context.Context, kind ports.JobKind) (bool, error) {
	n, err := q.client.LLen(ctx, q.pendingKey(kind)).Result()
	if err != nil {
		return false, fmt.Errorf("count pending %s jobs: %w", kind, err)
	}
	return n > 0, nil
}

// Dequeue atomically moves the oldest pending job of the kind to the processing list.
// It returns nil when nothing arrives within timeout.
func (q *Queue) Dequeue(ctx context.Context, kind ports.JobKind, timeout time.Duration) (*ports.Job, error) {
	id, err := q.client.BRPopLPush(ctx, q.pendingKey(kind), q.processingKey(kind), timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue %s job: %w", kind, err)
	}

	data, err := q.client.Get(ctx, q.jobKey(id)).Bytes()
	if err != nil {
		q.client.LRem(ctx, q.processingKey(kind), 1, id)
		if errors.Is(err, redis.Nil) {
			q.logger.Warn("Dropping job with expired payload", zap.String("job_id", id), zap.String("kind", string(kind)))
			return nil, nil
		}
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}

	var job ports.Job
	if err := json.Unmarshal(data, &job); err != nil {
		q.Ack(ctx, kind, id)
		return nil, fmt.Errorf("unmarshal job %s: %w", id, err)
	}
	return &job, nil
}

// Ack removes a finished job from the processing list and deletes its payload
func (q *Queue) Ack(ctx context.Context, kind ports.JobKind, id string) {
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.processingKey(kind), 1, id)
	pipe.Del(ctx, q.jobKey(id))
	if _, err := pipe.Exec(ctx); err != nil {
		q.logger.Error("Failed to ack job", zap.String("job_id", id), zap.Error(err))
	}
}

// Requeue moves a job from the processing list back to the head of the pending list
func (q *Queue) Requeue(ctx context.Context, kind ports.JobKind, id string) error {
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.processingKey(kind), 1, id)
	pipe.RPush(ctx, q.pendingKey(kind), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("requeue job %s: %w", id, err)
	}
	return nil
}

// Recover moves every job left on the processing list back to pending.
// Call it before a worker starts consuming, when no other worker holds those jobs.
func (q *Queue) Recover(ctx context.Context, kind ports.JobKind) (int, error) {
	recovered := 0
	for {
		_, err := q.client.RPopLPush(ctx, q.processingKey(kind), q.pendingKey(kind)).Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return recovered, fmt.Errorf("recover %s jobs: %w", kind, err)
		}
		recovered++
	}
	if recovered > 0 {
		q.logger.Warn("Recovered interrupted jobs", zap.String("kind", string(kind)), zap.Int("count", recovered))
	}
	return recovered, nil
}

// Pending returns the number of pending and processing jobs of the kind
func (q *Queue) Pending(ctx context.Context, kind ports.JobKind) (pending, processing int64, err error) {
	pipe := q.client.Pipeline()
	p := pipe.LLen(ctx, q.pendingKey(kind))
	r := pipe.LLen(ctx, q.processingKey(kind))
	if _, err = pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("count %s jobs: %w", kind, err)
	}
	return p.Val(), r.Val(), nil
}
