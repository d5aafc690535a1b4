// Package renewal vetoes source-side renewal paths for subscriptions that
// have already been migrated, so customers are not billed twice.
package renewal

import (
	"context"
	"time"

	"github.com/kevin07696/subscription-migrator/internal/domain"
	"github.com/kevin07696/subscription-migrator/internal/domain/ports"
	"github.com/kevin07696/subscription-migrator/pkg/observability"
	"github.com/kevin07696/subscription-migrator/pkg/timeutil"
)

// Guard answers the source system's renewal interception points
type Guard struct {
	source ports.SourceCatalog
	vetoes ports.VetoLog
	logger ports.Logger
	now    func() time.Time
}

// NewGuard creates a renewal guard
func NewGuard(source ports.SourceCatalog, vetoes ports.VetoLog, logger ports.Logger) *Guard {
	return &Guard{
		source: source,
		vetoes: vetoes,
		logger: logger,
		now:    timeutil.Now,
	}
}

// IsMigrated reports whether the subscription carries a complete migration marker.
// Lookup failures are treated as not migrated.
func (g *Guard) IsMigrated(ctx context.Context, subscriptionID int64) bool {
	if subscriptionID <= 0 {
		return false
	}
	marker, err := g.source.GetMarker(ctx, subscriptionID)
	if err != nil {
		g.logger.Warn("failed to read migration marker",
			ports.Int64("subscription_id", subscriptionID),
			ports.Err(err))
		return false
	}
	return marker.IsSet()
}

// AllowScheduledAction decides whether the source may schedule an action on hook
func (g *Guard) AllowScheduledAction(ctx context.Context, hook string, subscriptionID int64) bool {
	if !domain.IsRenewalHook(hook) {
		return true
	}
	return g.check(ctx, subscriptionID, domain.VetoActionSchedulerPrevented, hook)
}

// AllowScheduledPayment decides whether a due scheduled payment may run
func (g *Guard) AllowScheduledPayment(ctx context.Context, subscriptionID int64) bool {
	return g.check(ctx, subscriptionID, domain.VetoScheduledPayment, domain.HookScheduledPayment)
}

// AllowRenewalOrder decides whether a renewal order may be created, scheduled or manual
func (g *Guard) AllowRenewalOrder(ctx context.Context, subscriptionID int64) bool {
	return g.check(ctx, subscriptionID, domain.VetoManualRenewalOrderCreation, "")
}

// AllowManualRenewalProcessing decides whether a generated manual renewal order may be processed
func (g *Guard) AllowManualRenewalProcessing(ctx context.Context, subscriptionID int64) bool {
	return g.check(ctx, subscriptionID, domain.VetoManualRenewalProcessing, "")
}

// AllowEarlyRenewal decides whether an early renewal may be offered
func (g *Guard) AllowEarlyRenewal(ctx context.Context, subscriptionID int64) bool {
	return g.check(ctx, subscriptionID, domain.VetoEarlyRenewal, "")
}

// AllowStatusChange decides whether a status change may go through. Only
// switching a migrated, automatically renewing subscription back to active is vetoed.
func (g *Guard) AllowStatusChange(ctx context.Context, subscriptionID int64, newStatus string, isManual bool) bool {
	if newStatus != domain.SourceStatusActive || isManual {
		return true
	}
	return g.check(ctx, subscriptionID, domain.VetoAutoRenewalToggle, "")
}

// RecentVetoes returns the newest vetoes first
func (g *Guard) RecentVetoes(ctx context.Context, limit int) ([]domain.RenewalVeto, error) {
	return g.vetoes.Recent(ctx, limit)
}

func (g *Guard) check(ctx context.Context, subscriptionID int64, vetoType domain.VetoType, hook string) bool {
	if !g.IsMigrated(ctx, subscriptionID) {
		return true
	}

	veto := domain.RenewalVeto{
		SubscriptionID: subscriptionID,
		Type:           vetoType,
		Hook:           hook,
		Timestamp:      g.now(),
	}
	if err := g.vetoes.Append(ctx, veto); err != nil {
		g.logger.Error("failed to record renewal veto",
			ports.Int64("subscription_id", subscriptionID),
			ports.String("type", string(vetoType)),
			ports.Err(err))
	}
	observability.RecordRenewalVeto(string(vetoType))

	g.logger.Info("renewal vetoed for migrated subscription",
		ports.Int64("subscription_id", subscriptionID),
		ports.String("type", string(vetoType)))
	return false
}
