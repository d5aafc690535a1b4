// Package cleanup turns off source-side renewals once subscriptions have been migrated.
package cleanup

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kevin07696/subscription-migrator/internal/domain"
	"github.com/kevin07696/subscription-migrator/internal/domain/ports"
	"github.com/kevin07696/subscription-migrator/internal/services/state"
	"github.com/kevin07696/subscription-migrator/pkg/timeutil"
)

// Service runs the post-migration cleanup
type Service struct {
	source ports.SourceCatalog
	target ports.TargetCatalog
	state  *state.Store
	logger ports.Logger
	now    func() time.Time
}

// NewService creates a cleanup service
func NewService(source ports.SourceCatalog, target ports.TargetCatalog, store *state.Store, logger ports.Logger) *Service {
	return &Service{
		source: source,
		target: target,
		state:  store,
		logger: logger,
		now:    timeutil.Now,
	}
}

// DisableSourceRenewals cancels pending renewal actions and forces manual
// renewal on every migrated source subscription. Per-record failures are
// counted and logged, never returned.
func (s *Service) DisableSourceRenewals(ctx context.Context) (*domain.CleanupSummary, error) {
	ids, err := s.migratedIDs(ctx)
	if err != nil {
		return nil, err
	}

	summary := &domain.CleanupSummary{}
	for _, id := range ids {
		cancelled, err := s.source.CancelRenewalActions(ctx, id, domain.RenewalHooks)
		if err != nil {
			summary.Failed++
			s.recordFailure(ctx, id, "Failed to cancel renewal actions", err)
			continue
		}
		summary.ActionsCancelled += cancelled

		if err := s.source.SetManualRenewal(ctx, id); err != nil {
			summary.Failed++
			s.recordFailure(ctx, id, fmt.Sprintf("Failed to set subscription #%d to manual renewal", id), err)
			continue
		}
		summary.Subscriptions++
	}
	summary.CompletedAt = s.now()

	if err := s.state.Update(ctx, domain.StatePatch{PostMigrationCleanup: summary}); err != nil {
		return summary, err
	}

	s.logger.Info("source renewals disabled",
		ports.Int("subscriptions", summary.Subscriptions),
		ports.Int("actions_cancelled", summary.ActionsCancelled),
		ports.Int("failed", summary.Failed))
	return summary, nil
}

// migratedIDs unions the source IDs recorded on target subscriptions with the
// source records carrying the migrated marker
func (s *Service) migratedIDs(ctx context.Context) ([]int64, error) {
	fromTarget, err := s.target.ListSourceSubscriptionIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list migrated subscriptions on target: %w", err)
	}
	fromSource, err := s.source.ListMigratedSubscriptionIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list migrated subscriptions on source: %w", err)
	}

	seen := make(map[int64]struct{}, len(fromTarget)+len(fromSource))
	ids := make([]int64, 0, len(fromTarget)+len(fromSource))
	for _, list := range [][]int64{fromTarget, fromSource} {
		for _, id := range list {
			if id <= 0 {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *Service) recordFailure(ctx context.Context, id int64, message string, err error) {
	s.logger.Warn(message, ports.Int64("subscription_id", id), ports.Err(err))
	s.state.AddError(ctx, fmt.Sprintf("%s: %v", message, err), map[string]interface{}{
		"subscription_id": id,
		"type":            "cleanup",
	})
}
