// Package orchestrator owns the migration state machine and drives both
// pipelines one scheduled batch at a time.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kevin07696/subscription-migrator/internal/domain"
	"github.com/kevin07696/subscription-migrator/internal/domain/ports"
	"github.com/kevin07696/subscription-migrator/internal/services/state"
	"github.com/kevin07696/subscription-migrator/pkg/observability"
	"github.com/kevin07696/subscription-migrator/pkg/timeutil"
)

// Discoverer produces the feasibility report
type Discoverer interface {
	Discover(ctx context.Context) *domain.FeasibilityReport
}

// BatchProcessor runs one batch of a pipeline
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, offset int) domain.BatchResult
}

// SubscriptionsProcessor is a BatchProcessor that can recount the unmigrated set
type SubscriptionsProcessor interface {
	BatchProcessor
	CountRemaining(ctx context.Context, afterID int64) (int, error)
}

// Orchestrator exposes the control operations of the migration engine
type Orchestrator struct {
	discovery     Discoverer
	products      BatchProcessor
	subscriptions SubscriptionsProcessor
	scheduler     ports.Scheduler
	state         *state.Store
	logger        ports.Logger
	tracer        trace.Tracer
	now           func() time.Time
	mu            sync.Mutex
}

// New creates an orchestrator
func New(
	discovery Discoverer,
	products BatchProcessor,
	subscriptions SubscriptionsProcessor,
	scheduler ports.Scheduler,
	store *state.Store,
	logger ports.Logger,
) *Orchestrator {
	return &Orchestrator{
		discovery:     discovery,
		products:      products,
		subscriptions: subscriptions,
		scheduler:     scheduler,
		state:         store,
		logger:        logger,
		tracer:        observability.Tracer(),
		now:           timeutil.Now,
	}
}

func (o *Orchestrator) span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return o.tracer.Start(ctx, "orchestrator."+name, trace.WithAttributes(attrs...))
}

func failed(span trace.Span, message string) domain.CommandResult {
	span.SetStatus(codes.Error, message)
	return domain.CommandResult{Success: false, Message: message}
}

func succeeded(message string) domain.CommandResult {
	return domain.CommandResult{Success: true, Message: message}
}

// Discover returns the feasibility report without touching state
func (o *Orchestrator) Discover(ctx context.Context) *domain.FeasibilityReport {
	ctx, span := o.span(ctx, "Discover")
	defer span.End()

	report := o.discovery.Discover(ctx)
	span.SetAttributes(attribute.String("readiness", string(report.Readiness.Status)))
	return report
}

// runDiscovery moves the state through discovering and returns the report,
// or a failure result when the migration is blocked
func (o *Orchestrator) runDiscovery(ctx context.Context, span trace.Span, restore domain.MigrationStatus) (*domain.FeasibilityReport, *domain.CommandResult) {
	if err := o.state.SetStatus(ctx, domain.MigrationStatusDiscovering); err != nil {
		res := failed(span, err.Error())
		return nil, &res
	}

	report := o.discovery.Discover(ctx)
	if report.Readiness.Status == domain.ReadinessBlocked {
		if err := o.state.SetStatus(ctx, domain.MigrationStatusError); err != nil {
			o.logger.Error("failed to record blocked migration", ports.Err(err))
		}
		o.logger.Warn("migration blocked", ports.String("reason", report.Readiness.Message))
		res := failed(span, report.Readiness.Message)
		return nil, &res
	}

	if err := o.state.SetStatus(ctx, restore); err != nil {
		res := failed(span, err.Error())
		return nil, &res
	}
	return report, nil
}

// inFlight reports whether a pipeline is already running or has a continuation queued
func (o *Orchestrator) inFlight(ctx context.Context, current *domain.MigrationState, status domain.MigrationStatus, kind ports.JobKind) bool {
	if current.Status == status {
		return true
	}
	pending, err := o.scheduler.IsPending(ctx, kind)
	if err != nil {
		o.logger.Warn("failed to check pending jobs", ports.String("kind", string(kind)), ports.Err(err))
		return false
	}
	return pending
}

// StartProducts starts or continues the products pipeline
func (o *Orchestrator) StartProducts(ctx context.Context) domain.CommandResult {
	ctx, span := o.span(ctx, "StartProducts")
	defer span.End()

	o.mu.Lock()
	defer o.mu.Unlock()

	current, err := o.state.Get(ctx)
	if err != nil {
		return failed(span, err.Error())
	}
	if o.inFlight(ctx, current, domain.MigrationStatusProductsMigrating, ports.JobProductsBatch) {
		return failed(span, "Products migration is already in progress")
	}
	if current.Status.IsRunning() {
		return failed(span, "Another migration pipeline is in progress")
	}

	progress := current.ProductsMigration
	if current.ProductsDone() && progress.CreatedPlans > 0 {
		return failed(span, "Products migration is already complete")
	}

	fresh := progress.ProcessedProducts == 0 || current.ProductsDone()
	offset := 0
	if !fresh {
		offset = progress.ProcessedProducts
	}

	if fresh || progress.TotalProducts == 0 {
		report, blocked := o.runDiscovery(ctx, span, current.Status)
		if blocked != nil {
			return *blocked
		}
		total := report.ProductCounts.Total
		patch := domain.StatePatch{Products: &domain.ProductsPatch{TotalProducts: &total}}
		if fresh {
			zero, zero64 := 0, int64(0)
			patch.Products.ProcessedProducts = &zero
			patch.Products.CreatedPlans = &zero
			patch.Products.FailedProducts = &zero
			patch.Products.LastProductID = &zero64
			patch.Products.CurrentBatch = &zero
		}
		if err := o.state.Update(ctx, patch); err != nil {
			return failed(span, err.Error())
		}
	}

	if err := o.begin(ctx, current, domain.MigrationStatusProductsMigrating); err != nil {
		return failed(span, err.Error())
	}
	if err := o.scheduler.Enqueue(ctx, ports.JobProductsBatch, offset); err != nil {
		o.markError(ctx, "Failed to schedule products batch", err)
		return failed(span, fmt.Sprintf("failed to schedule products batch: %v", err))
	}

	span.SetAttributes(attribute.Bool("fresh", fresh), attribute.Int("offset", offset))
	o.logger.Info("products migration started", ports.Bool("fresh", fresh), ports.Int("offset", offset))
	return succeeded("Products migration started")
}

// StartSubscriptions starts the subscriptions pipeline over the recomputed unmigrated set
func (o *Orchestrator) StartSubscriptions(ctx context.Context) domain.CommandResult {
	ctx, span := o.span(ctx, "StartSubscriptions")
	defer span.End()

	o.mu.Lock()
	defer o.mu.Unlock()

	current, err := o.state.Get(ctx)
	if err != nil {
		return failed(span, err.Error())
	}
	if o.inFlight(ctx, current, domain.MigrationStatusSubscriptionsMigrating, ports.JobSubscriptionsBatch) {
		return failed(span, "Subscriptions migration is already in progress")
	}
	if current.Status.IsRunning() {
		return failed(span, "Another migration pipeline is in progress")
	}

	remaining, err := o.subscriptions.CountRemaining(ctx, 0)
	if err != nil {
		return failed(span, fmt.Sprintf("failed to count unmigrated subscriptions: %v", err))
	}
	if remaining == 0 {
		return failed(span, "All subscriptions have already been migrated")
	}

	if _, blocked := o.runDiscovery(ctx, span, current.Status); blocked != nil {
		return *blocked
	}

	zero, zero64 := 0, int64(0)
	if err := o.state.Update(ctx, domain.StatePatch{Subscriptions: &domain.SubscriptionsPatch{
		TotalSubscriptions:     &remaining,
		ProcessedSubscriptions: &zero,
		CreatedSubscriptions:   &zero,
		FailedSubscriptions:    &zero,
		LastSubscriptionID:     &zero64,
		CurrentBatch:           &zero,
	}}); err != nil {
		return failed(span, err.Error())
	}

	if err := o.begin(ctx, current, domain.MigrationStatusSubscriptionsMigrating); err != nil {
		return failed(span, err.Error())
	}
	if err := o.scheduler.Enqueue(ctx, ports.JobSubscriptionsBatch, 0); err != nil {
		o.markError(ctx, "Failed to schedule subscriptions batch", err)
		return failed(span, fmt.Sprintf("failed to schedule subscriptions batch: %v", err))
	}

	span.SetAttributes(attribute.Int("total", remaining))
	o.logger.Info("subscriptions migration started", ports.Int("total", remaining))
	return succeeded("Subscriptions migration started")
}

// begin sets the running status and stamps start_time on the first start
func (o *Orchestrator) begin(ctx context.Context, current *domain.MigrationState, status domain.MigrationStatus) error {
	patch := domain.StatePatch{Status: &status, ClearEndTime: true}
	if current.StartTime == nil {
		now := o.now()
		patch.StartTime = &now
	}
	return o.state.Update(ctx, patch)
}

func (o *Orchestrator) markError(ctx context.Context, message string, err error) {
	o.state.AddError(ctx, message, map[string]interface{}{"error": err.Error()})
	if setErr := o.state.SetStatus(ctx, domain.MigrationStatusError); setErr != nil {
		o.logger.Error("failed to set error status", ports.Err(setErr))
	}
}

// Status returns the state with computed progress percentages
func (o *Orchestrator) Status(ctx context.Context) (*domain.StatusView, error) {
	current, err := o.state.Get(ctx)
	if err != nil {
		return nil, err
	}
	return &domain.StatusView{
		State: current,
		ProductsProgress: domain.ProgressPercent(
			current.ProductsMigration.ProcessedProducts,
			current.ProductsMigration.TotalProducts),
		SubscriptionsProgress: domain.ProgressPercent(
			current.SubscriptionsMigration.ProcessedSubscriptions,
			current.SubscriptionsMigration.TotalSubscriptions),
	}, nil
}

func (o *Orchestrator) clearScheduled(ctx context.Context) error {
	for _, kind := range []ports.JobKind{ports.JobProductsBatch, ports.JobSubscriptionsBatch} {
		if err := o.scheduler.ClearAll(ctx, kind); err != nil {
			return fmt.Errorf("clear %s: %w", kind, err)
		}
	}
	return nil
}

// Pause clears scheduled continuations and sets the paused status. A batch
// already running finishes and does not re-enqueue. Pausing when no pipeline
// is running leaves the state untouched.
func (o *Orchestrator) Pause(ctx context.Context) domain.CommandResult {
	ctx, span := o.span(ctx, "Pause")
	defer span.End()

	o.mu.Lock()
	defer o.mu.Unlock()

	current, err := o.state.Get(ctx)
	if err != nil {
		return failed(span, err.Error())
	}
	if !current.Status.IsRunning() {
		span.SetAttributes(attribute.String("status", string(current.Status)))
		return succeeded("No migration is running")
	}

	if err := o.clearScheduled(ctx); err != nil {
		return failed(span, err.Error())
	}
	paused, from := domain.MigrationStatusPaused, current.Status
	if err := o.state.Update(ctx, domain.StatePatch{Status: &paused, PausedFrom: &from}); err != nil {
		return failed(span, err.Error())
	}
	o.logger.Info("migration paused", ports.String("from", string(from)))
	return succeeded("Migration paused")
}

// Resume re-enters the pipeline that was running when Pause was called,
// falling back to the first incomplete pipeline for states paused before
// that was recorded.
func (o *Orchestrator) Resume(ctx context.Context) domain.CommandResult {
	ctx, span := o.span(ctx, "Resume")
	defer span.End()

	o.mu.Lock()
	defer o.mu.Unlock()

	current, err := o.state.Get(ctx)
	if err != nil {
		return failed(span, err.Error())
	}
	if current.Status != domain.MigrationStatusPaused {
		return failed(span, "Migration is not paused")
	}

	products := current.ProductsMigration
	subs := current.SubscriptionsMigration
	productsPending := products.ProcessedProducts < products.TotalProducts
	subsPending := subs.ProcessedSubscriptions < subs.TotalSubscriptions

	var (
		status domain.MigrationStatus
		kind   ports.JobKind
		offset int
	)
	switch {
	case current.PausedFrom == domain.MigrationStatusSubscriptionsMigrating && subsPending:
		status, kind = domain.MigrationStatusSubscriptionsMigrating, ports.JobSubscriptionsBatch
	case current.PausedFrom == domain.MigrationStatusProductsMigrating && productsPending:
		status, kind, offset = domain.MigrationStatusProductsMigrating, ports.JobProductsBatch, products.ProcessedProducts
	case productsPending:
		status, kind, offset = domain.MigrationStatusProductsMigrating, ports.JobProductsBatch, products.ProcessedProducts
	case subsPending:
		status, kind = domain.MigrationStatusSubscriptionsMigrating, ports.JobSubscriptionsBatch
	default:
		idle, none := domain.MigrationStatusIdle, domain.MigrationStatus("")
		if err := o.state.Update(ctx, domain.StatePatch{Status: &idle, PausedFrom: &none}); err != nil {
			return failed(span, err.Error())
		}
		return succeeded("Nothing left to resume")
	}

	none := domain.MigrationStatus("")
	if err := o.state.Update(ctx, domain.StatePatch{Status: &status, PausedFrom: &none}); err != nil {
		return failed(span, err.Error())
	}
	if err := o.scheduler.Enqueue(ctx, kind, offset); err != nil {
		o.markError(ctx, "Failed to schedule resumed batch", err)
		return failed(span, fmt.Sprintf("failed to schedule batch: %v", err))
	}

	span.SetAttributes(attribute.String("pipeline", string(kind)), attribute.Int("offset", offset))
	o.logger.Info("migration resumed", ports.String("status", string(status)), ports.Int("offset", offset))
	return succeeded("Migration resumed")
}

// Cancel clears scheduled work and resets the state to defaults
func (o *Orchestrator) Cancel(ctx context.Context) domain.CommandResult {
	ctx, span := o.span(ctx, "Cancel")
	defer span.End()
	return o.reset(ctx, span, "Migration cancelled")
}

// Reset behaves like Cancel
func (o *Orchestrator) Reset(ctx context.Context) domain.CommandResult {
	ctx, span := o.span(ctx, "Reset")
	defer span.End()
	return o.reset(ctx, span, "Migration reset")
}

func (o *Orchestrator) reset(ctx context.Context, span trace.Span, message string) domain.CommandResult {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.clearScheduled(ctx); err != nil {
		return failed(span, err.Error())
	}
	if err := o.state.Reset(ctx); err != nil {
		return failed(span, err.Error())
	}
	o.logger.Info("migration state reset", ports.String("reason", message))
	return succeeded(message)
}
