package resilience

import (
	"context"
	"time"
)

// TimeoutConfig defines the timeout hierarchy of the migrator
//
//	Batch job (5m)
//	  ↓
//	Source read (30s) / Target write (10s)
//	  ↓
//	State store (5s)
//
// Control commands (start, pause, status...) get their own budget.
type TimeoutConfig struct {
	BatchJob    time.Duration
	Command     time.Duration
	SourceQuery time.Duration
	TargetQuery time.Duration
	StateStore  time.Duration
}

// DefaultTimeoutConfig returns production timeout values
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		BatchJob:    5 * time.Minute,
		Command:     2 * time.Minute,
		SourceQuery: 30 * time.Second,
		TargetQuery: 10 * time.Second,
		StateStore:  5 * time.Second,
	}
}

// BatchContext bounds one batch invocation
func (tc *TimeoutConfig) BatchContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.BatchJob)
}

// CommandContext bounds one control command
func (tc *TimeoutConfig) CommandContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.Command)
}

// SourceContext bounds a query against the source database
func (tc *TimeoutConfig) SourceContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.SourceQuery)
}

// TargetContext bounds a query against the target database
func (tc *TimeoutConfig) TargetContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.TargetQuery)
}

// StateContext bounds a state store round trip
func (tc *TimeoutConfig) StateContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.StateStore)
}
