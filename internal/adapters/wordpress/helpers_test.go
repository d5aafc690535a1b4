package wordpress

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kevin07696/subscription-migrator/internal/domain"
)

func TestMarkerFrom(t *testing.T) {
	assert.Equal(t, domain.MigrationMarker{}, markerFrom(map[string]string{}))
	assert.Equal(t, domain.MigrationMarker{Migrated: true, TargetID: 9}, markerFrom(map[string]string{
		domain.MetaMigratedFlag:       "yes",
		domain.MetaTargetSubscription: "9",
	}))
	assert.Equal(t, domain.MigrationMarker{TargetID: 0}, markerFrom(map[string]string{
		domain.MetaTargetSubscription: "not-a-number",
	}))
}

func TestAddress(t *testing.T) {
	meta := map[string]string{
		"_billing_first_name": "Ada",
		"_billing_city":       "London",
		"_shipping_city":      "Paris",
	}
	billing := address(meta, "_billing_")
	assert.Equal(t, "Ada", billing.FirstName)
	assert.Equal(t, "London", billing.City)
	assert.Equal(t, "Paris", address(meta, "_shipping_").City)
}

func TestLayerMeta(t *testing.T) {
	merged := layerMeta(
		map[string]string{"_regular_price": "10", "_virtual": "yes"},
		map[string]string{"_regular_price": "12", "_virtual": ""},
	)
	assert.Equal(t, "12", merged["_regular_price"])
	assert.Equal(t, "yes", merged["_virtual"])
}

func TestActionArgs(t *testing.T) {
	assert.Equal(t, `{"subscription_id":42}`, actionArgs(42))
}

func TestParseDecimal(t *testing.T) {
	assert.Equal(t, "19.99", parseDecimal(" 19.99 ").String())
	assert.True(t, parseDecimal("").IsZero())
	assert.True(t, parseDecimal("abc").IsZero())
}
