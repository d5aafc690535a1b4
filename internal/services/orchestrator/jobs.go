package orchestrator

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/kevin07696/subscription-migrator/internal/domain"
	"github.com/kevin07696/subscription-migrator/internal/domain/ports"
	"github.com/kevin07696/subscription-migrator/pkg/observability"
)

// HandleJob runs one scheduled batch job
func (o *Orchestrator) HandleJob(ctx context.Context, job ports.Job) error {
	var err error
	switch job.Kind {
	case ports.JobProductsBatch:
		_, err = o.RunProductsBatch(ctx, job.Offset)
	case ports.JobSubscriptionsBatch:
		_, err = o.RunSubscriptionsBatch(ctx, job.Offset)
	default:
		err = fmt.Errorf("unknown job kind %q", job.Kind)
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	observability.RecordJob(string(job.Kind), status)
	return err
}

// running reports whether the state still wants this pipeline to advance
func (o *Orchestrator) running(ctx context.Context, status domain.MigrationStatus) (bool, error) {
	current, err := o.state.Get(ctx)
	if err != nil {
		return false, err
	}
	return current.Status == status, nil
}

// RunProductsBatch processes one products batch and schedules the continuation.
// On exhaustion the pipeline returns to idle.
func (o *Orchestrator) RunProductsBatch(ctx context.Context, offset int) (domain.BatchResult, error) {
	ctx, span := o.span(ctx, "RunProductsBatch", attribute.Int("offset", offset))
	defer span.End()

	ok, err := o.running(ctx, domain.MigrationStatusProductsMigrating)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.BatchResult{}, err
	}
	if !ok {
		o.logger.Info("products batch skipped, pipeline not running", ports.Int("offset", offset))
		return domain.BatchResult{Message: "products migration is not running"}, nil
	}

	result := o.products.ProcessBatch(ctx, offset)
	span.SetAttributes(
		attribute.Int("processed", result.Processed),
		attribute.Int("created", result.Created),
		attribute.Int("failed", result.Failed),
		attribute.Bool("has_more", result.HasMore),
	)
	if result.Paused {
		return result, nil
	}
	if !result.Success {
		span.SetStatus(codes.Error, result.Message)
		o.markError(ctx, "Products batch failed", fmt.Errorf("%s", result.Message))
		return result, fmt.Errorf("products batch at offset %d: %s", offset, result.Message)
	}

	// cancel or pause while the batch ran stops the chain here
	ok, err = o.running(ctx, domain.MigrationStatusProductsMigrating)
	if err != nil || !ok {
		return result, err
	}

	if result.HasMore {
		if err := o.scheduler.Enqueue(ctx, ports.JobProductsBatch, result.NextOffset); err != nil {
			o.markError(ctx, "Failed to schedule products batch", err)
			return result, fmt.Errorf("enqueue products batch: %w", err)
		}
		return result, nil
	}

	idle := domain.MigrationStatusIdle
	if err := o.state.Update(ctx, domain.StatePatch{Status: &idle}); err != nil {
		return result, err
	}
	o.logger.Info("products migration finished")
	return result, nil
}

// RunSubscriptionsBatch processes one subscriptions batch and schedules the
// continuation. Exhaustion is double-checked against the recomputed
// unmigrated set before the migration is marked completed.
func (o *Orchestrator) RunSubscriptionsBatch(ctx context.Context, offset int) (domain.BatchResult, error) {
	ctx, span := o.span(ctx, "RunSubscriptionsBatch", attribute.Int("offset", offset))
	defer span.End()

	ok, err := o.running(ctx, domain.MigrationStatusSubscriptionsMigrating)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.BatchResult{}, err
	}
	if !ok {
		o.logger.Info("subscriptions batch skipped, pipeline not running", ports.Int("offset", offset))
		return domain.BatchResult{Message: "subscriptions migration is not running"}, nil
	}

	result := o.subscriptions.ProcessBatch(ctx, offset)
	span.SetAttributes(
		attribute.Int("processed", result.Processed),
		attribute.Int("created", result.Created),
		attribute.Int("failed", result.Failed),
		attribute.Bool("has_more", result.HasMore),
	)
	if result.Paused {
		return result, nil
	}
	if !result.Success {
		span.SetStatus(codes.Error, result.Message)
		o.markError(ctx, "Subscriptions batch failed", fmt.Errorf("%s", result.Message))
		return result, fmt.Errorf("subscriptions batch at offset %d: %s", offset, result.Message)
	}

	current, err := o.state.Get(ctx)
	if err != nil {
		return result, err
	}
	if current.Status != domain.MigrationStatusSubscriptionsMigrating {
		return result, nil
	}

	next := result.NextOffset
	more := result.HasMore
	if !more {
		remaining, err := o.subscriptions.CountRemaining(ctx, current.SubscriptionsMigration.LastSubscriptionID)
		if err != nil {
			o.logger.Warn("failed to recount unmigrated subscriptions", ports.Err(err))
		} else if remaining > 0 {
			o.logger.Info("unmigrated subscriptions remain after exhaustion, continuing",
				ports.Int("remaining", remaining))
			more = true
		}
	}

	if more {
		if err := o.scheduler.Enqueue(ctx, ports.JobSubscriptionsBatch, next); err != nil {
			o.markError(ctx, "Failed to schedule subscriptions batch", err)
			return result, fmt.Errorf("enqueue subscriptions batch: %w", err)
		}
		return result, nil
	}

	completed := domain.MigrationStatusCompleted
	end := o.now()
	if err := o.state.Update(ctx, domain.StatePatch{Status: &completed, EndTime: &end}); err != nil {
		return result, err
	}
	o.logger.Info("subscriptions migration completed",
		ports.Int("created", current.SubscriptionsMigration.CreatedSubscriptions),
		ports.Int("failed", current.SubscriptionsMigration.FailedSubscriptions))
	return result, nil
}
