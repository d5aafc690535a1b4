package ports

import "context"

// JobKind names a unit of batch work
type JobKind string

const (
	JobProductsBatch      JobKind = "migrate_products_batch"
	JobSubscriptionsBatch JobKind = "migrate_subscriptions_batch"
)

// Job is one scheduled batch invocation
type Job struct {
	ID     string  `json:"id"`
	Kind   JobKind `json:"kind"`
	Offset int     `json:"offset"`
}

// Scheduler is the external work queue driving batch invocations
type Scheduler interface {
	// Enqueue schedules a batch for near-immediate execution
	Enqueue(ctx context.Context, kind JobKind, offset int) error

	// ClearAll removes every pending unit of the given kind
	ClearAll(ctx context.Context, kind JobKind) error

	// IsPending reports whether a unit of the given kind is already queued
	IsPending(ctx context.Context, kind JobKind) (bool, error)
}
