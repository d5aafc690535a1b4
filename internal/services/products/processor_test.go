package products

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevin07696/subscription-migrator/internal/domain"
	"github.com/kevin07696/subscription-migrator/internal/services/state"
	"github.com/kevin07696/subscription-migrator/internal/testutil/fakes"
	"github.com/kevin07696/subscription-migrator/internal/testutil/fixtures"
	"github.com/kevin07696/subscription-migrator/internal/testutil/mocks"
)

type processorHarness struct {
	source    *fakes.Source
	target    *fakes.Target
	store     *state.Store
	processor *Processor
}

func newHarness(batchSize int) *processorHarness {
	logger := mocks.NewMockLogger()
	source := fakes.NewSource()
	target := fakes.NewTarget()
	store := state.NewStore(&fakes.StateRepository{}, nil, logger, 0)
	return &processorHarness{
		source:    source,
		target:    target,
		store:     store,
		processor: NewProcessor(source, target, store, logger, batchSize),
	}
}

func TestProcessBatch_MixedSuccess(t *testing.T) {
	ctx := context.Background()
	h := newHarness(50)

	h.source.AddProduct(fixtures.NewSimpleProduct(1).WithName("A").
		WithVariation(11, map[string]string{"_subscription_price": "10"}).
		WithVariation(12, map[string]string{"_subscription_price": "25", "_subscription_period_interval": "3"}).
		Build())
	h.source.AddProduct(fixtures.NewSimpleProduct(2).WithName("B").WithoutMeta("_subscription_period").Build())
	h.source.AddProduct(fixtures.NewSimpleProduct(3).WithName("C").Build())

	result := h.processor.ProcessBatch(ctx, 0)

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 3, result.Created)
	assert.Equal(t, 1, result.Failed)
	assert.False(t, result.HasMore)
	assert.Equal(t, 0, result.NextOffset)

	errs, err := h.store.RecentErrors(ctx, 0)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.EqualValues(t, 2, errs[0].Context["product_id"])
	assert.Contains(t, errs[0].Message, "Product #2")

	st, err := h.store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.ProductsMigration.ProcessedProducts)
	assert.Equal(t, 3, st.ProductsMigration.CreatedPlans)
	assert.Equal(t, 1, st.ProductsMigration.FailedProducts)
	assert.Equal(t, int64(3), st.ProductsMigration.LastProductID)
}

func TestProcessBatch_PausedDoesNothing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(50)
	h.source.AddProduct(fixtures.NewSimpleProduct(1).Build())
	require.NoError(t, h.store.SetStatus(ctx, domain.MigrationStatusPaused))

	result := h.processor.ProcessBatch(ctx, 0)

	assert.True(t, result.Paused)
	assert.False(t, result.Success)
	assert.Equal(t, 0, result.Processed)
	assert.Empty(t, h.target.Plans)

	st, err := h.store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, st.ProductsMigration.ProcessedProducts)
}

func TestProcessBatch_FullBatchReportsMore(t *testing.T) {
	ctx := context.Background()
	h := newHarness(2)
	for id := int64(1); id <= 3; id++ {
		h.source.AddProduct(fixtures.NewSimpleProduct(id).Build())
	}

	first := h.processor.ProcessBatch(ctx, 0)
	require.True(t, first.HasMore)
	assert.Equal(t, 2, first.NextOffset)

	second := h.processor.ProcessBatch(ctx, first.NextOffset)
	assert.False(t, second.HasMore)
	assert.Equal(t, 1, second.Processed)

	st, err := h.store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Processed+second.Processed, st.ProductsMigration.ProcessedProducts)
	assert.Equal(t, 2, st.ProductsMigration.CurrentBatch)
}

func TestProcessBatch_EmptyBatchIsExhausted(t *testing.T) {
	h := newHarness(10)

	result := h.processor.ProcessBatch(context.Background(), 40)

	assert.True(t, result.Success)
	assert.False(t, result.HasMore)
	assert.Equal(t, 0, result.Processed)
}

func TestProcessBatch_ReusesMatchingPlans(t *testing.T) {
	ctx := context.Background()
	h := newHarness(10)
	h.source.AddProduct(fixtures.NewSimpleProduct(1).WithName("Coffee").Build())

	first := h.processor.ProcessBatch(ctx, 0)
	second := h.processor.ProcessBatch(ctx, 0)

	assert.Equal(t, 1, first.Created)
	assert.Equal(t, 1, second.Created)
	assert.Len(t, h.target.Plans, 1)
	assert.Len(t, h.target.Relations, 1)
	require.Len(t, h.target.Groups, 1)
	for _, g := range h.target.Groups {
		assert.Equal(t, "Coffee Plans", g.Title)
	}
}

func TestProcessBatch_DifferentDiscountCreatesNewPlan(t *testing.T) {
	ctx := context.Background()
	h := newHarness(10)
	product := fixtures.NewSimpleProduct(1).Build()
	h.source.AddProduct(product)

	h.processor.ProcessBatch(ctx, 0)
	product.Meta["subscription_discount"] = "15"
	h.processor.ProcessBatch(ctx, 0)

	assert.Len(t, h.target.Plans, 2)
	assert.Len(t, h.target.Groups, 1)
}

func TestProcessBatch_PlanTypeFollowsVirtualFlag(t *testing.T) {
	ctx := context.Background()
	h := newHarness(10)
	h.source.AddProduct(fixtures.NewSimpleProduct(1).Build())
	h.source.AddProduct(fixtures.NewSimpleProduct(2).Physical().Build())

	h.processor.ProcessBatch(ctx, 0)

	types := map[int64]domain.PlanType{}
	for _, r := range h.target.Relations {
		types[r.ProductID] = r.Type
	}
	assert.Equal(t, domain.PlanTypeRecurring, types[1])
	assert.Equal(t, domain.PlanTypeSubscribeAndSave, types[2])
}

func TestProcessBatch_AttachableProductsNeedActiveSubsystem(t *testing.T) {
	ctx := context.Background()
	h := newHarness(10)
	h.source.AddProduct(fixtures.NewAttachableProduct(5).
		WithScheme(map[string]string{"price": "9", "period": "week"}).
		Build())

	inactive := h.processor.ProcessBatch(ctx, 0)
	assert.Equal(t, 0, inactive.Processed)

	h.source.AttachableActive = true
	active := h.processor.ProcessBatch(ctx, 0)
	assert.Equal(t, 1, active.Processed)
	assert.Equal(t, 1, active.Created)
}

func TestProcessBatch_PartialPlanFailureStillCounts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(10)
	h.source.AddProduct(fixtures.NewSimpleProduct(1).
		WithVariation(11, map[string]string{"_subscription_period": "week"}).
		WithVariation(12, map[string]string{"_subscription_period": "year"}).
		Build())
	h.target.CreatePlanErr = func(plan *domain.PlanDefinition) error {
		if plan.BillingInterval == domain.BillingIntervalYear {
			return errors.New("insert failed")
		}
		return nil
	}

	result := h.processor.ProcessBatch(ctx, 0)

	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 0, result.Failed)
}

func TestProcessBatch_AllPlansFailingFailsProduct(t *testing.T) {
	ctx := context.Background()
	h := newHarness(10)
	h.source.AddProduct(fixtures.NewSimpleProduct(1).Build())
	h.target.CreatePlanErr = func(*domain.PlanDefinition) error { return errors.New("insert failed") }

	result := h.processor.ProcessBatch(ctx, 0)

	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 0, result.Created)

	errs, err := h.store.RecentErrors(ctx, 0)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, string(domain.ErrorCodePlanCreationFailed), errs[0].Context["code"])
}

func TestProcessBatch_ProgressClampedToTotal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(10)
	total := 1
	require.NoError(t, h.store.Update(ctx, domain.StatePatch{
		Products: &domain.ProductsPatch{TotalProducts: &total},
	}))
	h.source.AddProduct(fixtures.NewSimpleProduct(1).Build())
	h.source.AddProduct(fixtures.NewSimpleProduct(2).Build())

	h.processor.ProcessBatch(ctx, 0)

	st, err := h.store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.ProductsMigration.ProcessedProducts)
}
