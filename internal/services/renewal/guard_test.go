package renewal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevin07696/subscription-migrator/internal/domain"
	"github.com/kevin07696/subscription-migrator/internal/testutil/fakes"
	"github.com/kevin07696/subscription-migrator/internal/testutil/fixtures"
	"github.com/kevin07696/subscription-migrator/internal/testutil/mocks"
)

func newTestGuard() (*Guard, *fakes.Source, *fakes.VetoLog, *mocks.MockLogger) {
	source := fakes.NewSource()
	source.AddSubscription(fixtures.NewSubscription(1).WithMarker(900).Build())
	source.AddSubscription(fixtures.NewSubscription(2).Build())
	vetoes := &fakes.VetoLog{}
	logger := mocks.NewMockLogger()
	g := NewGuard(source, vetoes, logger)
	g.now = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }
	return g, source, vetoes, logger
}

func TestGuard_VetoesEveryPathForMigratedSubscriptions(t *testing.T) {
	ctx := context.Background()
	g, _, vetoes, _ := newTestGuard()

	assert.False(t, g.AllowScheduledAction(ctx, domain.HookScheduledTrialEnd, 1))
	assert.False(t, g.AllowScheduledPayment(ctx, 1))
	assert.False(t, g.AllowRenewalOrder(ctx, 1))
	assert.False(t, g.AllowManualRenewalProcessing(ctx, 1))
	assert.False(t, g.AllowEarlyRenewal(ctx, 1))
	assert.False(t, g.AllowStatusChange(ctx, 1, domain.SourceStatusActive, false))

	require.Len(t, vetoes.Vetoes, 6)
	types := make([]domain.VetoType, 0, len(vetoes.Vetoes))
	for _, v := range vetoes.Vetoes {
		assert.Equal(t, int64(1), v.SubscriptionID)
		types = append(types, v.Type)
	}
	assert.Equal(t, []domain.VetoType{
		domain.VetoActionSchedulerPrevented,
		domain.VetoScheduledPayment,
		domain.VetoManualRenewalOrderCreation,
		domain.VetoManualRenewalProcessing,
		domain.VetoEarlyRenewal,
		domain.VetoAutoRenewalToggle,
	}, types)
	assert.Equal(t, domain.HookScheduledTrialEnd, vetoes.Vetoes[0].Hook)
}

func TestGuard_PartialMarkerIsNotMigrated(t *testing.T) {
	ctx := context.Background()
	g, source, vetoes, _ := newTestGuard()
	partial := fixtures.NewSubscription(3).Build()
	partial.Marker = domain.MigrationMarker{TargetID: 900}
	source.AddSubscription(partial)

	assert.False(t, g.IsMigrated(ctx, 3))
	assert.True(t, g.AllowScheduledPayment(ctx, 3))
	assert.Empty(t, vetoes.Vetoes)
}

func TestGuard_AllowsUnmigratedSubscriptions(t *testing.T) {
	ctx := context.Background()
	g, _, vetoes, _ := newTestGuard()

	assert.True(t, g.AllowScheduledAction(ctx, domain.HookScheduledPayment, 2))
	assert.True(t, g.AllowScheduledPayment(ctx, 2))
	assert.True(t, g.AllowRenewalOrder(ctx, 2))
	assert.True(t, g.AllowEarlyRenewal(ctx, 2))
	assert.True(t, g.AllowStatusChange(ctx, 2, domain.SourceStatusActive, false))
	assert.Empty(t, vetoes.Vetoes)
}

func TestGuard_IgnoresUnrelatedHooks(t *testing.T) {
	g, _, vetoes, _ := newTestGuard()

	assert.True(t, g.AllowScheduledAction(context.Background(), "woocommerce_cleanup_sessions", 1))
	assert.Empty(t, vetoes.Vetoes)
}

func TestGuard_StatusChange(t *testing.T) {
	tests := []struct {
		name      string
		newStatus string
		isManual  bool
		allowed   bool
	}{
		{name: "reactivating automatic renewal", newStatus: domain.SourceStatusActive, isManual: false, allowed: false},
		{name: "already manual", newStatus: domain.SourceStatusActive, isManual: true, allowed: true},
		{name: "putting on hold", newStatus: domain.SourceStatusOnHold, isManual: false, allowed: true},
		{name: "cancelling", newStatus: domain.SourceStatusCancelled, isManual: false, allowed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _, _, _ := newTestGuard()
			assert.Equal(t, tt.allowed, g.AllowStatusChange(context.Background(), 1, tt.newStatus, tt.isManual))
		})
	}
}

func TestGuard_VetoStandsWhenLogFails(t *testing.T) {
	g, _, vetoes, logger := newTestGuard()
	vetoes.AppendErr = errors.New("disk full")

	assert.False(t, g.AllowEarlyRenewal(context.Background(), 1))
	assert.True(t, logger.HasMessage("failed to record renewal veto"))
}

func TestGuard_UnknownSubscriptionIsAllowed(t *testing.T) {
	g, _, _, logger := newTestGuard()

	assert.True(t, g.AllowScheduledPayment(context.Background(), 404))
	assert.True(t, logger.HasMessage("failed to read migration marker"))
	assert.True(t, g.AllowScheduledPayment(context.Background(), 0))
}

func TestGuard_RecentVetoesNewestFirst(t *testing.T) {
	ctx := context.Background()
	g, _, _, _ := newTestGuard()
	g.AllowEarlyRenewal(ctx, 1)
	g.AllowRenewalOrder(ctx, 1)

	recent, err := g.RecentVetoes(ctx, 1)

	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, domain.VetoManualRenewalOrderCreation, recent[0].Type)
}
