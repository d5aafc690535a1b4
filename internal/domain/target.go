package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PlanType classifies a target plan
type PlanType int

const (
	// PlanTypeSubscribeAndSave is recurring with a repeat-purchase discount (physical goods)
	PlanTypeSubscribeAndSave PlanType = 1
	// PlanTypeRecurring is plain recurring billing (virtual goods)
	PlanTypeRecurring PlanType = 2
)

// PlanTypeFor classifies the plan type from the product's virtual flag
func PlanTypeFor(virtual bool) PlanType {
	if virtual {
		return PlanTypeRecurring
	}
	return PlanTypeSubscribeAndSave
}

// BillingInterval is the target encoding of a billing period
type BillingInterval int

const (
	BillingIntervalDay   BillingInterval = 1
	BillingIntervalWeek  BillingInterval = 2
	BillingIntervalMonth BillingInterval = 3
	BillingIntervalYear  BillingInterval = 4
)

// TargetSubscriptionStatus is the target system's subscription status code
type TargetSubscriptionStatus int

const (
	TargetStatusPending       TargetSubscriptionStatus = 1
	TargetStatusActive        TargetSubscriptionStatus = 2
	TargetStatusOnHold        TargetSubscriptionStatus = 3
	TargetStatusCancelled     TargetSubscriptionStatus = 4
	TargetStatusCompleted     TargetSubscriptionStatus = 5
	TargetStatusPendingCancel TargetSubscriptionStatus = 6
	TargetStatusTrialing      TargetSubscriptionStatus = 7
)

// GatewayMode flags how a migrated subscription will be charged
type GatewayMode int

const (
	GatewayModeAutomatic GatewayMode = 1
	GatewayModeManual    GatewayMode = 2
)

// SignupFee is the plan's one-time fee definition
type SignupFee struct {
	Type   string          `json:"signup_fee_type"`
	Amount decimal.Decimal `json:"signup_amount"`
}

// Offer is the plan's pricing adjustment
type Offer struct {
	PriceType     string `json:"price_type"`
	DiscountType  string `json:"discount_type"`
	DiscountValue string `json:"discount_value"`
}

// PlanData is the free-form JSON payload stored with a plan
type PlanData struct {
	SubscriptionEnds             string `json:"subscription_ends"`
	RecommendedText              string `json:"recommended_text"`
	AdditionalDescription        string `json:"additional_description"`
	DisplaySummary               string `json:"display_summary"`
	SubscriptionEndsPaymentCount int    `json:"subscription_ends_payment_count"`
}

// RelationData carries product prices attached to a plan
type RelationData struct {
	RegularPrice string `json:"regular_price"`
	SalePrice    string `json:"sale_price"`
}

// PlanDefinition is a target billing plan, persisted or inlined
type PlanDefinition struct {
	RelationData     *RelationData   `json:"relation_data,omitempty"`
	Title            string          `json:"title"`
	Offer            Offer           `json:"offer"`
	Data             PlanData        `json:"data"`
	SignupFee        SignupFee       `json:"signup_fee"`
	ID               int64           `json:"id"`
	GroupID          int64           `json:"plan_group_id"`
	Type             PlanType        `json:"type"`
	BillingFrequency int             `json:"billing_frequency"`
	BillingInterval  BillingInterval `json:"billing_interval"`
	BillingLength    int             `json:"billing_length"`
	TrialDays        int             `json:"free_trial"`
	Status           int             `json:"status"`
}

// PlanGroup groups the plans of one product
type PlanGroup struct {
	Title     string
	ID        int64
	ProductID int64
	Type      PlanType
}

// PlanRelation binds a plan to a product or variation
type PlanRelation struct {
	ID          int64
	PlanID      int64
	ProductID   int64
	VariationID int64
	Type        PlanType
	Status      int
}

// TargetLineItem is a product line attached to a target subscription
type TargetLineItem struct {
	Name        string          `json:"name"`
	TaxClass    string          `json:"tax_class"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Total       decimal.Decimal `json:"total"`
	SubtotalTax decimal.Decimal `json:"subtotal_tax"`
	TotalTax    decimal.Decimal `json:"total_tax"`
	ProductID   int64           `json:"product_id"`
	VariationID int64           `json:"variation_id"`
	Quantity    int             `json:"quantity"`
}

// LocalUTCTime holds a timestamp in both the site's local zone and UTC
type LocalUTCTime struct {
	Local time.Time
	UTC   time.Time
}

// TargetSubscription is the record created in the target system for one source subscription
type TargetSubscription struct {
	CreatedAt            LocalUTCTime
	NextPaymentAt        *LocalUTCTime
	EndAt                *LocalUTCTime
	LastPaymentAt        *time.Time
	Metadata             map[string]interface{}
	Plan                 *PlanDefinition
	Gateway              string
	Currency             string
	SearchString         string
	ProductRefs          []string
	Totals               decimal.Decimal
	BaseTotals           decimal.Decimal
	ID                   int64
	SourceSubscriptionID int64
	ParentOrderID        int64
	UserID               int64
	Status               TargetSubscriptionStatus
	PlanType             PlanType
	GatewayMode          GatewayMode
}
