package products

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevin07696/subscription-migrator/internal/domain"
	"github.com/kevin07696/subscription-migrator/internal/testutil/fixtures"
)

func TestExtractSchemes_SimpleProduct(t *testing.T) {
	product := fixtures.NewSimpleProduct(1).
		WithMeta("_subscription_length", "12").
		WithMeta("_subscription_trial_length", "2").
		WithMeta("_subscription_trial_period", "week").
		WithMeta("_subscription_sign_up_fee", "5.50").
		Build()

	schemes := ExtractSchemes(product, false)

	require.Len(t, schemes, 1)
	terms := schemes[0].Terms
	assert.Equal(t, "month", terms.Period)
	assert.Equal(t, 1, terms.Interval)
	assert.Equal(t, 12, terms.Length)
	assert.Equal(t, 2, terms.TrialLength)
	assert.Equal(t, "week", terms.TrialPeriod)
	assert.True(t, terms.Price.Equal(decimal.NewFromInt(10)))
	assert.True(t, terms.SignupFee.Equal(decimal.RequireFromString("5.50")))
	assert.Equal(t, int64(0), schemes[0].VariationID)
}

func TestExtractSchemes_FallsBackThroughLegacyKeys(t *testing.T) {
	tests := []struct {
		name     string
		meta     map[string]string
		price    string
		period   string
		interval int
	}{
		{
			name:     "unprefixed keys",
			meta:     map[string]string{"subscription_price": "12", "subscription_period": "week", "subscription_period_interval": "2"},
			price:    "12",
			period:   "week",
			interval: 2,
		},
		{
			name:     "generic keys",
			meta:     map[string]string{"price": "7.25", "billing_period": "Year", "billing_interval": "1"},
			price:    "7.25",
			period:   "year",
			interval: 1,
		},
		{
			name:     "unparseable primary key falls through",
			meta:     map[string]string{"_subscription_price": "n/a", "_price": "9", "_subscription_period": "bogus", "period": "day"},
			price:    "9",
			period:   "day",
			interval: 1,
		},
		{
			name:     "non-positive interval defaults to one",
			meta:     map[string]string{"_price": "3", "period": "month", "interval": "0"},
			price:    "3",
			period:   "month",
			interval: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			product := &domain.SourceProduct{ID: 1, Type: domain.ProductTypeSubscription, Meta: tt.meta}

			schemes := ExtractSchemes(product, false)

			require.Len(t, schemes, 1)
			assert.True(t, schemes[0].Terms.Price.Equal(decimal.RequireFromString(tt.price)))
			assert.Equal(t, tt.period, schemes[0].Terms.Period)
			assert.Equal(t, tt.interval, schemes[0].Terms.Interval)
		})
	}
}

func TestExtractSchemes_DropsInvalidSchemes(t *testing.T) {
	noPeriod := fixtures.NewSimpleProduct(1).WithoutMeta("_subscription_period").Build()
	noPrice := fixtures.NewSimpleProduct(2).WithoutMeta("_subscription_price").Build()

	assert.Empty(t, ExtractSchemes(noPeriod, false))
	assert.Empty(t, ExtractSchemes(noPrice, false))
}

func TestExtractSchemes_VariationsInheritParentMeta(t *testing.T) {
	product := fixtures.NewSimpleProduct(10).
		WithVariation(11, map[string]string{"_subscription_price": "20"}).
		WithVariation(12, map[string]string{"_subscription_period": "year"}).
		WithVariation(13, map[string]string{"_subscription_period": "fortnight", "period": ""}).
		Build()

	schemes := ExtractSchemes(product, false)

	// variation 13 has an unknown period and no usable fallback
	require.Len(t, schemes, 2)
	assert.Equal(t, int64(11), schemes[0].VariationID)
	assert.True(t, schemes[0].Terms.Price.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, "month", schemes[0].Terms.Period)
	assert.Equal(t, int64(12), schemes[1].VariationID)
	assert.Equal(t, "year", schemes[1].Terms.Period)
}

func TestExtractSchemes_AttachableOnlyWhenSubsystemActive(t *testing.T) {
	product := fixtures.NewAttachableProduct(20).
		WithMeta("_regular_price", "30").
		WithScheme(map[string]string{"price": "27", "period": "month", "discount": "10"}).
		WithScheme(map[string]string{"price": "80", "period": "month", "interval": "3"}).
		Build()

	assert.Empty(t, ExtractSchemes(product, false))

	schemes := ExtractSchemes(product, true)
	require.Len(t, schemes, 2)
	assert.True(t, schemes[0].Terms.Discount.Equal(decimal.NewFromInt(10)))
	assert.True(t, schemes[0].RegularPrice.Equal(decimal.NewFromInt(30)))
	assert.Equal(t, 3, schemes[1].Terms.Interval)
}

func TestExtractSchemes_SalePriceDefaultsToRegular(t *testing.T) {
	product := fixtures.NewSimpleProduct(1).
		WithMeta("_regular_price", "15").
		WithMeta("_sale_price", "0").
		Build()

	schemes := ExtractSchemes(product, false)

	require.Len(t, schemes, 1)
	assert.True(t, schemes[0].RegularPrice.Equal(decimal.NewFromInt(15)))
	assert.True(t, schemes[0].SalePrice.Equal(decimal.NewFromInt(15)))
}
