package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/kevin07696/subscription-migrator/internal/testutil/mocks"
)

type MockRegistry struct {
	mock.Mock
}

func (m *MockRegistry) SupportedGateways(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockRegistry) HasGateway(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func TestMapGateway(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
		ok     bool
	}{
		{"stripe", "stripe", TargetStripe, true},
		{"stripe cc", "stripe_cc", TargetStripe, true},
		{"paypal", "paypal", TargetPayPal, true},
		{"ppcp", "ppcp", TargetPayPal, true},
		{"ppcp gateway", "ppcp-gateway", TargetPayPal, true},
		{"paypal express", "paypal_express", TargetPayPal, true},
		{"angelleye", "angelleye_ppcp", TargetPayPal, true},
		{"ppec", "ppec_paypal", TargetPayPal, true},
		{"square", "square_credit_card", TargetSquare, true},
		{"authorize net", "authorize_net_cim", TargetAuthorize, true},
		{"canonical stripe", TargetStripe, TargetStripe, true},
		{"bank transfer", "bacs", "bacs", true},
		{"cheque", "cheque", "cheque", true},
		{"cash on delivery", "cod", "cod", true},
		{"manual", "manual", "manual", true},
		{"unknown", "bitpay", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := MapGateway(tt.source)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestMapGateway_PayPalAliasesCollapse(t *testing.T) {
	seen := map[string]struct{}{}
	for _, alias := range []string{"paypal", "ppcp", "ppcp-gateway", "paypal_standard", "ppec"} {
		got, ok := MapGateway(alias)
		assert.True(t, ok)
		seen[got] = struct{}{}
	}
	assert.Len(t, seen, 1)
}

func TestMapper_IsSupported(t *testing.T) {
	ctx := context.Background()

	t.Run("empty and manual are trivially supported", func(t *testing.T) {
		registry := new(MockRegistry)
		m := NewMapper(registry, mocks.NewMockLogger())

		assert.True(t, m.IsSupported(ctx, ""))
		assert.True(t, m.IsSupported(ctx, "bacs"))
		registry.AssertNotCalled(t, "SupportedGateways", mock.Anything)
	})

	t.Run("declared by registry", func(t *testing.T) {
		registry := new(MockRegistry)
		registry.On("SupportedGateways", ctx).Return([]string{TargetStripe}, nil)
		m := NewMapper(registry, mocks.NewMockLogger())

		assert.True(t, m.IsSupported(ctx, TargetStripe))
		registry.AssertNotCalled(t, "HasGateway", mock.Anything, mock.Anything)
	})

	t.Run("falls back to gateway instance lookup", func(t *testing.T) {
		registry := new(MockRegistry)
		registry.On("SupportedGateways", ctx).Return([]string{}, nil)
		registry.On("HasGateway", ctx, TargetSquare).Return(true, nil)
		m := NewMapper(registry, mocks.NewMockLogger())

		assert.True(t, m.IsSupported(ctx, TargetSquare))
	})

	t.Run("unknown gateway is unsupported", func(t *testing.T) {
		registry := new(MockRegistry)
		registry.On("SupportedGateways", ctx).Return([]string{TargetStripe}, nil)
		registry.On("HasGateway", ctx, "bitpay").Return(false, nil)
		m := NewMapper(registry, mocks.NewMockLogger())

		assert.False(t, m.IsSupported(ctx, "bitpay"))
	})

	t.Run("registry failure is logged and unsupported", func(t *testing.T) {
		registry := new(MockRegistry)
		logger := mocks.NewMockLogger()
		registry.On("SupportedGateways", ctx).Return(nil, errors.New("registry down"))
		registry.On("HasGateway", ctx, TargetPayPal).Return(false, errors.New("registry down"))
		m := NewMapper(registry, logger)

		assert.False(t, m.IsSupported(ctx, TargetPayPal))
		assert.Len(t, logger.WarnCalls, 2)
	})
}
