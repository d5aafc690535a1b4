package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevin07696/subscription-migrator/internal/adapters/postgres"
	"github.com/kevin07696/subscription-migrator/internal/domain"
)

func TestTargetCatalog_PlansRoundTrip(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	catalog := postgres.NewTargetCatalog(postgres.NewDBExecutor(pool))

	active, err := catalog.SystemActive(ctx)
	require.NoError(t, err)
	assert.True(t, active)

	group, err := catalog.FindPlanGroup(ctx, 10, domain.PlanTypeRecurring)
	require.NoError(t, err)
	assert.Nil(t, group)

	groupID, err := catalog.CreatePlanGroup(ctx, &domain.PlanGroup{Title: "Coffee Plans", ProductID: 10, Type: domain.PlanTypeRecurring})
	require.NoError(t, err)

	plan := domain.BuildPlan(domain.BillingTerms{
		Period:      "week",
		Interval:    2,
		Price:       decimal.RequireFromString("12.50"),
		SignupFee:   decimal.RequireFromString("5"),
		Discount:    decimal.RequireFromString("10"),
		TrialLength: 1,
		TrialPeriod: "week",
	}, domain.PlanTypeRecurring)
	plan.GroupID = groupID

	planID, err := catalog.CreatePlan(ctx, plan)
	require.NoError(t, err)

	_, err = catalog.CreatePlanRelation(ctx, &domain.PlanRelation{PlanID: planID, ProductID: 10, VariationID: 11, Type: domain.PlanTypeRecurring, Status: 1})
	require.NoError(t, err)

	group, err = catalog.FindPlanGroup(ctx, 10, domain.PlanTypeRecurring)
	require.NoError(t, err)
	require.NotNil(t, group)
	assert.Equal(t, groupID, group.ID)
	assert.Equal(t, "Coffee Plans", group.Title)

	relations, err := catalog.ListPlanRelations(ctx, 10, 11)
	require.NoError(t, err)
	require.Len(t, relations, 1)
	assert.Equal(t, planID, relations[0].PlanID)

	stored, err := catalog.GetPlan(ctx, planID)
	require.NoError(t, err)
	assert.Equal(t, "Every 2 Weeks", stored.Title)
	assert.Equal(t, 7, stored.TrialDays)
	assert.True(t, stored.Matches(plan))
	assert.Equal(t, plan.Data, stored.Data)

	_, err = catalog.GetPlan(ctx, planID+100)
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestTargetCatalog_Subscriptions(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	catalog := postgres.NewTargetCatalog(postgres.NewDBExecutor(pool))

	created := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	sub := &domain.TargetSubscription{
		SourceSubscriptionID: 1001,
		ParentOrderID:        1000,
		UserID:               7,
		Status:               domain.TargetStatusActive,
		PlanType:             domain.PlanTypeRecurring,
		Gateway:              "fkwcs_stripe",
		GatewayMode:          domain.GatewayModeAutomatic,
		Currency:             "USD",
		Totals:               decimal.RequireFromString("19.99"),
		BaseTotals:           decimal.RequireFromString("19.99"),
		Plan:                 domain.BuildPlan(domain.BillingTerms{Period: "month", Interval: 1}, domain.PlanTypeRecurring),
		Metadata:             map[string]interface{}{"wcs_subscription_id": 1001},
		SearchString:         "Ada ada@example.com #1000 #1001",
		CreatedAt:            domain.LocalUTCTime{Local: created, UTC: created},
	}

	id, err := catalog.CreateSubscription(ctx, sub)
	require.NoError(t, err)

	exists, err := catalog.SubscriptionExists(ctx, id)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = catalog.SubscriptionExists(ctx, id+1)
	require.NoError(t, err)
	assert.False(t, exists)

	found, err := catalog.FindSubscriptionBySource(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, id, found)

	found, err = catalog.FindSubscriptionBySource(ctx, 4242)
	require.NoError(t, err)
	assert.Zero(t, found)

	_, err = catalog.AddLineItem(ctx, id, domain.TargetLineItem{
		Name: "Coffee", ProductID: 10, Quantity: 1,
		Subtotal: decimal.RequireFromString("19.99"), Total: decimal.RequireFromString("19.99"),
	})
	require.NoError(t, err)
	require.NoError(t, catalog.UpdateItemList(ctx, id, []string{"10"}))

	_, err = catalog.AddLineItem(ctx, id+1000, domain.TargetLineItem{Name: "Orphan", ProductID: 10, Quantity: 1})
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)

	var refs []string
	require.NoError(t, pool.QueryRow(ctx, `SELECT product_refs FROM sublium_subscriptions WHERE id = $1`, id).Scan(&refs))
	assert.Equal(t, []string{"10"}, refs)

	ids, err := catalog.ListSourceSubscriptionIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1001}, ids)
}

func TestTargetCatalog_GatewayRegistry(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	catalog := postgres.NewTargetCatalog(postgres.NewDBExecutor(pool))

	supported, err := catalog.SupportedGateways(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"fkwcs_stripe", "fkwcppcp_paypal"}, supported)

	installed, err := catalog.HasGateway(ctx, "fkwcs_stripe")
	require.NoError(t, err)
	assert.False(t, installed)

	_, err = pool.Exec(ctx, `UPDATE sublium_gateways SET installed = TRUE WHERE id = 'fkwcs_stripe'`)
	require.NoError(t, err)

	installed, err = catalog.HasGateway(ctx, "fkwcs_stripe")
	require.NoError(t, err)
	assert.True(t, installed)

	installed, err = catalog.HasGateway(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, installed)
}
