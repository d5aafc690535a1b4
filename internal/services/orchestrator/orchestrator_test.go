package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevin07696/subscription-migrator/internal/domain"
	"github.com/kevin07696/subscription-migrator/internal/domain/ports"
	"github.com/kevin07696/subscription-migrator/internal/services/discovery"
	"github.com/kevin07696/subscription-migrator/internal/services/gateway"
	"github.com/kevin07696/subscription-migrator/internal/services/products"
	"github.com/kevin07696/subscription-migrator/internal/services/state"
	"github.com/kevin07696/subscription-migrator/internal/services/subscriptions"
	"github.com/kevin07696/subscription-migrator/internal/testutil/fakes"
	"github.com/kevin07696/subscription-migrator/internal/testutil/fixtures"
	"github.com/kevin07696/subscription-migrator/internal/testutil/mocks"
)

type env struct {
	source    *fakes.Source
	target    *fakes.Target
	scheduler *fakes.Scheduler
	store     *state.Store
	orch      *Orchestrator
}

func newEnv(productBatch, subscriptionBatch int) *env {
	logger := mocks.NewMockLogger()
	source := fakes.NewSource()
	target := fakes.NewTarget()
	scheduler := &fakes.Scheduler{}
	store := state.NewStore(&fakes.StateRepository{}, nil, logger, 0)

	disc := discovery.NewService(source, target, logger, "2.0.0")
	prod := products.NewProcessor(source, target, store, logger, productBatch)
	subs := subscriptions.NewProcessor(source, target, gateway.NewMapper(target, logger), store, logger, time.UTC, subscriptionBatch)

	return &env{
		source:    source,
		target:    target,
		scheduler: scheduler,
		store:     store,
		orch:      New(disc, prod, subs, scheduler, store, logger),
	}
}

// drain runs queued jobs until the queue is empty
func (e *env) drain(t *testing.T) int {
	t.Helper()
	runs := 0
	for {
		job, ok := e.scheduler.Pop()
		if !ok {
			return runs
		}
		require.NoError(t, e.orch.HandleJob(context.Background(), job))
		runs++
		require.Less(t, runs, 100, "job chain did not terminate")
	}
}

func (e *env) state(t *testing.T) *domain.MigrationState {
	t.Helper()
	st, err := e.store.Get(context.Background())
	require.NoError(t, err)
	return st
}

func TestStartProducts_RunsToExhaustion(t *testing.T) {
	ctx := context.Background()
	e := newEnv(2, 10)
	for id := int64(1); id <= 5; id++ {
		e.source.AddProduct(fixtures.NewSimpleProduct(id).Build())
	}

	res := e.orch.StartProducts(ctx)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, domain.MigrationStatusProductsMigrating, e.state(t).Status)
	require.Equal(t, 1, e.scheduler.Len())

	runs := e.drain(t)

	assert.Equal(t, 3, runs)
	st := e.state(t)
	assert.Equal(t, domain.MigrationStatusIdle, st.Status)
	assert.Equal(t, 5, st.ProductsMigration.TotalProducts)
	assert.Equal(t, 5, st.ProductsMigration.ProcessedProducts)
	assert.Equal(t, 5, st.ProductsMigration.CreatedPlans)
	assert.NotNil(t, st.StartTime)
}

func TestStartProducts_RefusesWhileRunning(t *testing.T) {
	ctx := context.Background()
	e := newEnv(50, 10)
	e.source.AddProduct(fixtures.NewSimpleProduct(1).Build())

	require.True(t, e.orch.StartProducts(ctx).Success)
	res := e.orch.StartProducts(ctx)

	assert.False(t, res.Success)
	assert.Equal(t, "Products migration is already in progress", res.Message)
	assert.Equal(t, 1, e.scheduler.Len())
}

func TestStartProducts_RefusesWhenContinuationPending(t *testing.T) {
	ctx := context.Background()
	e := newEnv(50, 10)
	require.NoError(t, e.scheduler.Enqueue(ctx, ports.JobProductsBatch, 0))

	res := e.orch.StartProducts(ctx)

	assert.False(t, res.Success)
}

func TestStartProducts_AlreadyCompleteAndSelfHealing(t *testing.T) {
	ctx := context.Background()
	e := newEnv(50, 10)
	e.source.AddProduct(fixtures.NewSimpleProduct(1).Build())

	require.True(t, e.orch.StartProducts(ctx).Success)
	e.drain(t)

	res := e.orch.StartProducts(ctx)
	assert.False(t, res.Success)
	assert.Equal(t, "Products migration is already complete", res.Message)

	// fully processed but nothing created: a restart is allowed
	zero := 0
	require.NoError(t, e.store.Update(ctx, domain.StatePatch{Products: &domain.ProductsPatch{CreatedPlans: &zero}}))
	res = e.orch.StartProducts(ctx)
	assert.True(t, res.Success, res.Message)
	assert.Equal(t, 0, e.state(t).ProductsMigration.ProcessedProducts)
}

func TestStartProducts_BlockedSetsError(t *testing.T) {
	ctx := context.Background()
	e := newEnv(50, 10)
	e.source.Status.Active = false

	res := e.orch.StartProducts(ctx)

	assert.False(t, res.Success)
	assert.Equal(t, "WooCommerce Subscriptions plugin is not active", res.Message)
	assert.Equal(t, domain.MigrationStatusError, e.state(t).Status)
	assert.Equal(t, 0, e.scheduler.Len())
}

func TestStartSubscriptions_RunsToCompletion(t *testing.T) {
	ctx := context.Background()
	e := newEnv(50, 2)
	for id := int64(1); id <= 3; id++ {
		e.source.AddSubscription(fixtures.NewSubscription(id).Build())
	}

	res := e.orch.StartSubscriptions(ctx)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, 3, e.state(t).SubscriptionsMigration.TotalSubscriptions)

	e.drain(t)

	st := e.state(t)
	assert.Equal(t, domain.MigrationStatusCompleted, st.Status)
	assert.Equal(t, 3, st.SubscriptionsMigration.ProcessedSubscriptions)
	assert.Equal(t, 3, st.SubscriptionsMigration.CreatedSubscriptions)
	assert.NotNil(t, st.EndTime)
	assert.Len(t, e.target.Subscriptions, 3)
}

func TestStartSubscriptions_NothingToMigrate(t *testing.T) {
	e := newEnv(50, 10)
	e.source.AddSubscription(fixtures.NewSubscription(1).WithMarker(5).Build())

	res := e.orch.StartSubscriptions(context.Background())

	assert.False(t, res.Success)
	assert.Equal(t, "All subscriptions have already been migrated", res.Message)
}

func TestStartSubscriptions_RefusesWhileProductsRunning(t *testing.T) {
	ctx := context.Background()
	e := newEnv(50, 10)
	e.source.AddProduct(fixtures.NewSimpleProduct(1).Build())
	e.source.AddSubscription(fixtures.NewSubscription(1).Build())
	require.True(t, e.orch.StartProducts(ctx).Success)

	res := e.orch.StartSubscriptions(ctx)

	assert.False(t, res.Success)
	assert.Equal(t, "Another migration pipeline is in progress", res.Message)
}

func TestPauseAndResume(t *testing.T) {
	ctx := context.Background()
	e := newEnv(2, 10)
	for id := int64(1); id <= 5; id++ {
		e.source.AddProduct(fixtures.NewSimpleProduct(id).Build())
	}
	require.True(t, e.orch.StartProducts(ctx).Success)

	job, ok := e.scheduler.Pop()
	require.True(t, ok)
	require.NoError(t, e.orch.HandleJob(ctx, job))

	res := e.orch.Pause(ctx)
	require.True(t, res.Success)
	assert.Equal(t, 0, e.scheduler.Len())
	assert.Equal(t, domain.MigrationStatusPaused, e.state(t).Status)

	// a batch that was already dispatched does nothing once paused
	result, err := e.orch.RunProductsBatch(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)
	assert.Equal(t, 2, e.state(t).ProductsMigration.ProcessedProducts)

	res = e.orch.Resume(ctx)
	require.True(t, res.Success, res.Message)
	require.Equal(t, 1, e.scheduler.Len())
	assert.Equal(t, 2, e.scheduler.Jobs[0].Offset)
	assert.Equal(t, domain.MigrationStatusProductsMigrating, e.state(t).Status)

	e.drain(t)
	assert.Equal(t, 5, e.state(t).ProductsMigration.ProcessedProducts)
}

func TestResume_RequiresPaused(t *testing.T) {
	res := newEnv(50, 10).orch.Resume(context.Background())

	assert.False(t, res.Success)
	assert.Equal(t, "Migration is not paused", res.Message)
}

func TestResume_ReentersSubscriptionsWhenProductsIncomplete(t *testing.T) {
	ctx := context.Background()
	e := newEnv(50, 1)
	for id := int64(1); id <= 3; id++ {
		e.source.AddSubscription(fixtures.NewSubscription(id).Build())
	}
	// products left one record behind before subscriptions were started
	total, processed := 5, 4
	require.NoError(t, e.store.Update(ctx, domain.StatePatch{
		Products: &domain.ProductsPatch{TotalProducts: &total, ProcessedProducts: &processed},
	}))
	require.True(t, e.orch.StartSubscriptions(ctx).Success)
	job, ok := e.scheduler.Pop()
	require.True(t, ok)
	require.NoError(t, e.orch.HandleJob(ctx, job))

	require.True(t, e.orch.Pause(ctx).Success)
	st := e.state(t)
	assert.Equal(t, domain.MigrationStatusPaused, st.Status)
	assert.Equal(t, domain.MigrationStatusSubscriptionsMigrating, st.PausedFrom)

	res := e.orch.Resume(ctx)

	require.True(t, res.Success, res.Message)
	st = e.state(t)
	assert.Equal(t, domain.MigrationStatusSubscriptionsMigrating, st.Status)
	assert.Empty(t, st.PausedFrom)
	require.Equal(t, 1, e.scheduler.Len())
	assert.Equal(t, ports.JobSubscriptionsBatch, e.scheduler.Jobs[0].Kind)
	assert.Equal(t, 4, st.ProductsMigration.ProcessedProducts)
}

func TestPause_NoopWhenNotRunning(t *testing.T) {
	ctx := context.Background()
	e := newEnv(50, 10)
	e.source.AddSubscription(fixtures.NewSubscription(1).Build())
	require.True(t, e.orch.StartSubscriptions(ctx).Success)
	e.drain(t)
	require.Equal(t, domain.MigrationStatusCompleted, e.state(t).Status)

	res := e.orch.Pause(ctx)

	assert.True(t, res.Success)
	assert.Equal(t, "No migration is running", res.Message)
	assert.Equal(t, domain.MigrationStatusCompleted, e.state(t).Status)
	assert.Empty(t, e.state(t).PausedFrom)

	res = e.orch.Resume(ctx)
	assert.False(t, res.Success)
	assert.Equal(t, domain.MigrationStatusCompleted, e.state(t).Status)
}

func TestPause_IdleStaysIdle(t *testing.T) {
	e := newEnv(50, 10)

	res := e.orch.Pause(context.Background())

	assert.True(t, res.Success)
	assert.Equal(t, domain.MigrationStatusIdle, e.state(t).Status)
}

func TestCancel_ResetsToDefaults(t *testing.T) {
	ctx := context.Background()
	e := newEnv(1, 1)
	for id := int64(1); id <= 3; id++ {
		e.source.AddProduct(fixtures.NewSimpleProduct(id).Build())
		e.source.AddSubscription(fixtures.NewSubscription(id).Build())
	}
	require.True(t, e.orch.StartProducts(ctx).Success)
	job, _ := e.scheduler.Pop()
	require.NoError(t, e.orch.HandleJob(ctx, job))

	res := e.orch.Cancel(ctx)

	require.True(t, res.Success)
	assert.Equal(t, 0, e.scheduler.Len())
	assert.Equal(t, domain.DefaultMigrationState(), e.state(t))

	// an in-flight batch finishing after cancel does not re-enqueue
	_, err := e.orch.RunProductsBatch(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, e.scheduler.Len())
}

func TestReset_BehavesLikeCancel(t *testing.T) {
	ctx := context.Background()
	e := newEnv(50, 10)
	require.NoError(t, e.store.SetStatus(ctx, domain.MigrationStatusError))

	res := e.orch.Reset(ctx)

	assert.True(t, res.Success)
	assert.Equal(t, domain.DefaultMigrationState(), e.state(t))
}

func TestStatus_ComputesPercentages(t *testing.T) {
	ctx := context.Background()
	e := newEnv(50, 10)
	total, processed := 8, 2
	require.NoError(t, e.store.Update(ctx, domain.StatePatch{
		Products: &domain.ProductsPatch{TotalProducts: &total, ProcessedProducts: &processed},
	}))

	view, err := e.orch.Status(ctx)

	require.NoError(t, err)
	assert.Equal(t, 25.0, view.ProductsProgress)
	assert.Equal(t, 0.0, view.SubscriptionsProgress)
}

func TestHandleJob_UnknownKind(t *testing.T) {
	err := newEnv(50, 10).orch.HandleJob(context.Background(), ports.Job{Kind: "bogus"})

	assert.Error(t, err)
}

// volatileSubscriptions reports exhaustion while the recount still finds records
type volatileSubscriptions struct {
	remaining []int
	batches   int
}

func (v *volatileSubscriptions) ProcessBatch(ctx context.Context, offset int) domain.BatchResult {
	v.batches++
	return domain.BatchResult{Success: true, Processed: 1}
}

func (v *volatileSubscriptions) CountRemaining(ctx context.Context, afterID int64) (int, error) {
	if len(v.remaining) == 0 {
		return 0, nil
	}
	n := v.remaining[0]
	v.remaining = v.remaining[1:]
	return n, nil
}

func TestRunSubscriptionsBatch_DoubleChecksExhaustion(t *testing.T) {
	ctx := context.Background()
	logger := mocks.NewMockLogger()
	store := state.NewStore(&fakes.StateRepository{}, nil, logger, 0)
	scheduler := &fakes.Scheduler{}
	// start sees 2, the first exhaustion recount sees 1, the second sees none
	subs := &volatileSubscriptions{remaining: []int{2, 1, 0}}
	source := fakes.NewSource()
	target := fakes.NewTarget()
	orch := New(discovery.NewService(source, target, logger, "2.0.0"), nil, subs, scheduler, store, logger)

	require.True(t, orch.StartSubscriptions(ctx).Success)

	for i := 0; i < 10; i++ {
		job, ok := scheduler.Pop()
		if !ok {
			break
		}
		require.NoError(t, orch.HandleJob(ctx, job))
	}

	assert.Equal(t, 2, subs.batches)
	st, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.MigrationStatusCompleted, st.Status)
}
