package domain

import (
	"math"
	"time"
)

// MigrationStatus is the coarse state of the migration engine
type MigrationStatus string

const (
	MigrationStatusIdle                   MigrationStatus = "idle"
	MigrationStatusDiscovering            MigrationStatus = "discovering"
	MigrationStatusProductsMigrating      MigrationStatus = "products_migrating"
	MigrationStatusSubscriptionsMigrating MigrationStatus = "subscriptions_migrating"
	MigrationStatusCompleted              MigrationStatus = "completed"
	MigrationStatusPaused                 MigrationStatus = "paused"
	MigrationStatusError                  MigrationStatus = "error"
)

// IsRunning returns true while a pipeline is actively scheduled
func (s MigrationStatus) IsRunning() bool {
	return s == MigrationStatusProductsMigrating || s == MigrationStatusSubscriptionsMigrating
}

// ProductsProgress is the durable checkpoint of the products pipeline
type ProductsProgress struct {
	TotalProducts     int   `json:"total_products"`
	ProcessedProducts int   `json:"processed_products"`
	CreatedPlans      int   `json:"created_plans"`
	FailedProducts    int   `json:"failed_products"`
	LastProductID     int64 `json:"last_product_id"`
	CurrentBatch      int   `json:"current_batch"`
}

// SubscriptionsProgress is the durable checkpoint of the subscriptions pipeline
type SubscriptionsProgress struct {
	TotalSubscriptions     int   `json:"total_subscriptions"`
	ProcessedSubscriptions int   `json:"processed_subscriptions"`
	CreatedSubscriptions   int   `json:"created_subscriptions"`
	FailedSubscriptions    int   `json:"failed_subscriptions"`
	LastSubscriptionID     int64 `json:"last_subscription_id"`
	CurrentBatch           int   `json:"current_batch"`
}

// ErrorEntry is one line of the migration error log
type ErrorEntry struct {
	Time    time.Time              `json:"time"`
	Context map[string]interface{} `json:"context"`
	Message string                 `json:"message"`
}

// CleanupSummary records the outcome of disabling source renewals after migration
type CleanupSummary struct {
	CompletedAt      time.Time `json:"completed_at"`
	Subscriptions    int       `json:"subscriptions"`
	ActionsCancelled int       `json:"actions_cancelled"`
	Failed           int       `json:"failed"`
}

// MigrationState is the singleton record describing the migration
type MigrationState struct {
	StartTime              *time.Time            `json:"start_time"`
	EndTime                *time.Time            `json:"end_time"`
	LastActivity           *time.Time            `json:"last_activity"`
	PostMigrationCleanup   *CleanupSummary       `json:"post_migration_cleanup,omitempty"`
	Status                 MigrationStatus       `json:"status"`
	PausedFrom             MigrationStatus       `json:"paused_from,omitempty"`
	Errors                 []ErrorEntry          `json:"errors"`
	ProductsMigration      ProductsProgress      `json:"products_migration"`
	SubscriptionsMigration SubscriptionsProgress `json:"subscriptions_migration"`
}

// DefaultMigrationState returns the all-zero state used before anything has been persisted
func DefaultMigrationState() *MigrationState {
	return &MigrationState{
		Status: MigrationStatusIdle,
		Errors: []ErrorEntry{},
	}
}

// ProductsDone reports whether the products pipeline has processed everything it discovered
func (m *MigrationState) ProductsDone() bool {
	p := m.ProductsMigration
	return p.TotalProducts > 0 && p.ProcessedProducts >= p.TotalProducts
}

// SubscriptionsDone reports whether the subscriptions pipeline has processed everything it discovered
func (m *MigrationState) SubscriptionsDone() bool {
	s := m.SubscriptionsMigration
	return s.TotalSubscriptions > 0 && s.ProcessedSubscriptions >= s.TotalSubscriptions
}

// ProductsPatch carries the products fields a caller wants to change
type ProductsPatch struct {
	TotalProducts     *int
	ProcessedProducts *int
	CreatedPlans      *int
	FailedProducts    *int
	LastProductID     *int64
	CurrentBatch      *int
}

// SubscriptionsPatch carries the subscriptions fields a caller wants to change
type SubscriptionsPatch struct {
	TotalSubscriptions     *int
	ProcessedSubscriptions *int
	CreatedSubscriptions   *int
	FailedSubscriptions    *int
	LastSubscriptionID     *int64
	CurrentBatch           *int
}

// StatePatch is a partial update merged key-by-key into MigrationState.
// Nil fields are left untouched.
type StatePatch struct {
	Status               *MigrationStatus
	PausedFrom           *MigrationStatus
	StartTime            *time.Time
	EndTime              *time.Time
	Products             *ProductsPatch
	Subscriptions        *SubscriptionsPatch
	PostMigrationCleanup *CleanupSummary
	ClearEndTime         bool
}

// Apply merges the patch into state
func (p StatePatch) Apply(state *MigrationState) {
	if p.Status != nil {
		state.Status = *p.Status
	}
	if p.PausedFrom != nil {
		state.PausedFrom = *p.PausedFrom
	}
	if p.StartTime != nil {
		t := *p.StartTime
		state.StartTime = &t
	}
	if p.ClearEndTime {
		state.EndTime = nil
	}
	if p.EndTime != nil {
		t := *p.EndTime
		state.EndTime = &t
	}
	if p.PostMigrationCleanup != nil {
		c := *p.PostMigrationCleanup
		state.PostMigrationCleanup = &c
	}
	if pp := p.Products; pp != nil {
		dst := &state.ProductsMigration
		mergeInt(&dst.TotalProducts, pp.TotalProducts)
		mergeInt(&dst.ProcessedProducts, pp.ProcessedProducts)
		mergeInt(&dst.CreatedPlans, pp.CreatedPlans)
		mergeInt(&dst.FailedProducts, pp.FailedProducts)
		mergeInt64(&dst.LastProductID, pp.LastProductID)
		mergeInt(&dst.CurrentBatch, pp.CurrentBatch)
	}
	if sp := p.Subscriptions; sp != nil {
		dst := &state.SubscriptionsMigration
		mergeInt(&dst.TotalSubscriptions, sp.TotalSubscriptions)
		mergeInt(&dst.ProcessedSubscriptions, sp.ProcessedSubscriptions)
		mergeInt(&dst.CreatedSubscriptions, sp.CreatedSubscriptions)
		mergeInt(&dst.FailedSubscriptions, sp.FailedSubscriptions)
		mergeInt64(&dst.LastSubscriptionID, sp.LastSubscriptionID)
		mergeInt(&dst.CurrentBatch, sp.CurrentBatch)
	}
}

func mergeInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func mergeInt64(dst *int64, v *int64) {
	if v != nil {
		*dst = *v
	}
}

// ProductsDelta is an additive change to the products counters
type ProductsDelta struct {
	Processed     int
	Created       int
	Failed        int
	LastProductID int64
}

// SubscriptionsDelta is an additive change to the subscriptions counters
type SubscriptionsDelta struct {
	Processed          int
	Created            int
	Failed             int
	LastSubscriptionID int64
}

// ProgressPercent returns processed/total*100 clamped to [0,100] and rounded to two decimals.
// A zero total yields 0.
func ProgressPercent(processed, total int) float64 {
	if total <= 0 {
		return 0
	}
	pct := float64(processed) / float64(total) * 100
	pct = math.Max(0, math.Min(100, pct))
	return math.Round(pct*100) / 100
}

// StatusView is the read model returned by the status operation
type StatusView struct {
	State                 *MigrationState `json:"state"`
	ProductsProgress      float64         `json:"products_progress"`
	SubscriptionsProgress float64         `json:"subscriptions_progress"`
}

// CommandResult is the structured outcome of a control operation
type CommandResult struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// BatchResult is the outcome of one pipeline batch invocation
type BatchResult struct {
	Message    string `json:"message,omitempty"`
	Processed  int    `json:"processed"`
	Created    int    `json:"created"`
	Failed     int    `json:"failed"`
	NextOffset int    `json:"next_offset"`
	Success    bool   `json:"success"`
	HasMore    bool   `json:"has_more"`
	Paused     bool   `json:"paused"`
}

// PausedBatchResult is returned by processors when the migration is paused
func PausedBatchResult() BatchResult {
	return BatchResult{Message: "migration is paused", Paused: true}
}

// CompleteBatch fills in HasMore and NextOffset from the number of records fetched
func (r *BatchResult) CompleteBatch(fetched, offset, batchSize int) {
	r.Success = true
	r.HasMore = batchSize > 0 && fetched == batchSize
	if r.HasMore {
		r.NextOffset = offset + batchSize
	} else {
		r.NextOffset = 0
	}
}
