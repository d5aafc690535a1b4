package readiness

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kevin07696/subscription-migrator/internal/domain"
)

func readyInput() Input {
	return Input{
		Source:            domain.SourceSystemStatus{Active: true, Version: "5.0.0", Compatible: true},
		TargetActive:      true,
		Gateways:          []domain.GatewaySummary{{GatewayID: "stripe", Compatible: true, SubscriptionCount: 3}},
		Products:          domain.ProductCounts{Simple: 2, Total: 2},
		SubscriptionCount: 3,
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(in *Input)
		status  domain.ReadinessStatus
		message string
	}{
		{
			name:    "ready",
			mutate:  func(in *Input) {},
			status:  domain.ReadinessFeasible,
			message: "Migration is ready to proceed",
		},
		{
			name:    "source inactive blocks",
			mutate:  func(in *Input) { in.Source.Active = false },
			status:  domain.ReadinessBlocked,
			message: "WooCommerce Subscriptions plugin is not active",
		},
		{
			name: "source absent wins over incompatible gateways",
			mutate: func(in *Input) {
				in.Source.Active = false
				in.Gateways = []domain.GatewaySummary{{GatewayID: "bitpay", Compatible: false}}
			},
			status:  domain.ReadinessBlocked,
			message: "WooCommerce Subscriptions plugin is not active",
		},
		{
			name: "old source version is partial",
			mutate: func(in *Input) {
				in.Source.Compatible = false
				in.Source.Version = "1.5.0"
			},
			status:  domain.ReadinessPartial,
			message: "WooCommerce Subscriptions version 1.5.0 may not be fully compatible. Proceed with caution.",
		},
		{
			name: "unknown version does not trigger partial",
			mutate: func(in *Input) {
				in.Source.Compatible = false
				in.Source.Version = ""
			},
			status:  domain.ReadinessFeasible,
			message: "Migration is ready to proceed",
		},
		{
			name:    "target absent blocks",
			mutate:  func(in *Input) { in.TargetActive = false },
			status:  domain.ReadinessBlocked,
			message: "Sublium plugin is not active",
		},
		{
			name: "incompatible gateways are counted",
			mutate: func(in *Input) {
				in.Gateways = append(in.Gateways,
					domain.GatewaySummary{GatewayID: "bitpay"},
					domain.GatewaySummary{GatewayID: "coinbase"})
			},
			status:  domain.ReadinessPartial,
			message: "2 gateway(s) are not compatible with Sublium",
		},
		{
			name: "nothing to migrate",
			mutate: func(in *Input) {
				in.SubscriptionCount = 0
				in.Products = domain.ProductCounts{}
				in.Gateways = nil
			},
			status:  domain.ReadinessFeasible,
			message: "no data to migrate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := readyInput()
			tt.mutate(&in)

			got := Evaluate(in)

			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, tt.message, got.Message)
		})
	}
}

func TestVersionAtLeast(t *testing.T) {
	tests := []struct {
		version string
		want    bool
	}{
		{"2.0.0", true},
		{"2.0", true},
		{"2.1.3", true},
		{"10.0.0", true},
		{"1.9.9", false},
		{"1.10", false},
		{"2.0.0-beta", true},
		{"v3.0", true},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			assert.Equal(t, tt.want, VersionAtLeast(tt.version, MinSourceVersion))
		})
	}
}
