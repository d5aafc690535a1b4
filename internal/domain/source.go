package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Source meta keys written or read by the engine
const (
	MetaMigratedFlag        = "_sublium_subscription_migrated"
	MetaTargetSubscription  = "_sublium_wcs_subscription_id"
	MetaRenewalOrderFlag    = "_sublium_wcs_subscription_renewal"
	MetaBillingAgreementID  = "_billing_agreement_id"
	MetaPayPalSubscription  = "_fkwcppcp_subscription_id"
	MetaRequiresManualRenew = "_requires_manual_renewal"
)

// Source product types
const (
	ProductTypeSubscription         = "subscription"
	ProductTypeVariableSubscription = "variable-subscription"
)

// Source subscription statuses
const (
	SourceStatusPending       = "pending"
	SourceStatusActive        = "active"
	SourceStatusOnHold        = "on-hold"
	SourceStatusCancelled     = "cancelled"
	SourceStatusSwitched      = "switched"
	SourceStatusExpired       = "expired"
	SourceStatusPendingCancel = "pending-cancel"
	SourceStatusTrial         = "trial"
)

// KnownSourceStatuses lists the statuses reported by discovery
var KnownSourceStatuses = []string{
	SourceStatusPending,
	SourceStatusActive,
	SourceStatusOnHold,
	SourceStatusCancelled,
	SourceStatusSwitched,
	SourceStatusExpired,
	SourceStatusPendingCancel,
}

// Address is a billing or shipping address
type Address struct {
	FirstName string
	LastName  string
	Company   string
	Address1  string
	Address2  string
	City      string
	State     string
	Postcode  string
	Country   string
	Email     string
	Phone     string
}

// MigrationMarker is the durable idempotence key written onto a source subscription
type MigrationMarker struct {
	TargetID int64
	Migrated bool
}

// IsSet reports whether the marker records a completed migration. A flag
// without a target ID, or an ID without the flag, is a partial write.
func (m MigrationMarker) IsSet() bool {
	return m.Migrated && m.TargetID > 0
}

// SourceLineItem is one product line of a source subscription
type SourceLineItem struct {
	Name         string
	TaxClass     string
	Subtotal     decimal.Decimal
	Total        decimal.Decimal
	SubtotalTax  decimal.Decimal
	TotalTax     decimal.Decimal
	RegularPrice decimal.Decimal
	SalePrice    decimal.Decimal
	ID           int64
	ProductID    int64
	VariationID  int64
	Quantity     int
	Virtual      bool
}

// SourceSubscription is the full field set of a source subscription record
type SourceSubscription struct {
	CreatedAt          *time.Time
	NextPaymentAt      *time.Time
	EndAt              *time.Time
	TrialEndAt         *time.Time
	LastOrderCreatedAt *time.Time
	Meta               map[string]string
	ParentOrderMeta    map[string]string
	Status             string
	BillingPeriod      string
	TrialPeriod        string
	PaymentMethod      string
	PaymentMethodTitle string
	ParentGateway      string
	ParentOrderNumber  string
	Currency           string
	CustomerName       string
	CustomerEmail      string
	Billing            Address
	Shipping           Address
	Items              []SourceLineItem
	Total              decimal.Decimal
	SignupFee          decimal.Decimal
	Marker             MigrationMarker
	ID                 int64
	ParentOrderID      int64
	UserID             int64
	BillingInterval    int
	BillingLength      int
	TrialLength        int
}

// ResolvedGateway returns the subscription's gateway, falling back to its parent order's
func (s *SourceSubscription) ResolvedGateway() string {
	if s.PaymentMethod != "" {
		return s.PaymentMethod
	}
	return s.ParentGateway
}

// SourceProductVariation is one variation of a variable subscription product
type SourceProductVariation struct {
	Meta map[string]string
	ID   int64
}

// SourceProduct is the full field set of a source product record
type SourceProduct struct {
	Meta          map[string]string
	Name          string
	Type          string
	Variations    []SourceProductVariation
	AddonSchemes  []map[string]string
	ID            int64
	Virtual       bool
	HasAddonPlans bool
}

// OrderLink describes an order to be pointed at a target subscription
type OrderLink struct {
	OrderID int64
	Renewal bool
}
