package gateway

import (
	"context"
	"strings"

	"github.com/kevin07696/subscription-migrator/internal/domain/ports"
)

// Canonical target gateway IDs
const (
	TargetStripe    = "fkwcs_stripe"
	TargetPayPal    = "fkwcppcp_paypal"
	TargetSquare    = "fkwcsq_square"
	TargetAuthorize = "authorize_net"
	Manual          = "manual"
)

var aliases = map[string]string{
	"stripe":    TargetStripe,
	"stripe_cc": TargetStripe,

	"paypal":          TargetPayPal,
	"ppcp":            TargetPayPal,
	"ppcp-gateway":    TargetPayPal,
	"paypal_standard": TargetPayPal,
	"paypal_express":  TargetPayPal,
	"angelleye_ppcp":  TargetPayPal,
	"ppec_paypal":     TargetPayPal,
	"ppec":            TargetPayPal,

	"square_credit_card": TargetSquare,
	"authorize_net_cim":  TargetAuthorize,

	TargetStripe: TargetStripe,
	TargetPayPal: TargetPayPal,
	TargetSquare: TargetSquare,
}

var manualGateways = map[string]struct{}{
	"bacs":   {},
	"cheque": {},
	"cod":    {},
	Manual:   {},
}

// PayPalBillingAgreementGateways are source gateways whose billing agreement ID must be carried over
var PayPalBillingAgreementGateways = map[string]struct{}{
	"ppcp":         {},
	"ppcp-gateway": {},
}

// MapGateway maps a source gateway ID to its target ID. The boolean is false for unsupported IDs.
func MapGateway(sourceID string) (string, bool) {
	id := strings.TrimSpace(sourceID)
	if target, ok := aliases[id]; ok {
		return target, true
	}
	if IsManual(id) {
		return id, true
	}
	return "", false
}

// IsManual reports whether id is a manual payment method that needs no gateway integration
func IsManual(id string) bool {
	_, ok := manualGateways[id]
	return ok
}

// Mapper checks mapped gateways against the target's live registry
type Mapper struct {
	registry ports.GatewayRegistry
	logger   ports.Logger
}

// NewMapper creates a gateway mapper
func NewMapper(registry ports.GatewayRegistry, logger ports.Logger) *Mapper {
	return &Mapper{
		registry: registry,
		logger:   logger,
	}
}

// Map is MapGateway exposed on the mapper for callers that hold one
func (m *Mapper) Map(sourceID string) (string, bool) {
	return MapGateway(sourceID)
}

// IsSupported reports whether the target system can charge through targetID.
// Empty and manual IDs are always supported.
func (m *Mapper) IsSupported(ctx context.Context, targetID string) bool {
	if targetID == "" || IsManual(targetID) {
		return true
	}
	if m.registry == nil {
		return false
	}

	supported, err := m.registry.SupportedGateways(ctx)
	if err != nil {
		m.logger.Warn("failed to read supported gateways",
			ports.String("gateway", targetID),
			ports.Err(err))
	}
	for _, id := range supported {
		if id == targetID {
			return true
		}
	}

	installed, err := m.registry.HasGateway(ctx, targetID)
	if err != nil {
		m.logger.Warn("failed to look up gateway instance",
			ports.String("gateway", targetID),
			ports.Err(err))
		return false
	}
	return installed
}
