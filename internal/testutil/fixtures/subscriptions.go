package fixtures

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/kevin07696/subscription-migrator/internal/domain"
)

// SubscriptionBuilder provides fluent API for building source subscriptions.
type SubscriptionBuilder struct {
	subscription *domain.SourceSubscription
}

// NewSubscription creates a monthly active subscription with one line item.
func NewSubscription(id int64) *SubscriptionBuilder {
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	next := created.AddDate(0, 1, 0)
	return &SubscriptionBuilder{
		subscription: &domain.SourceSubscription{
			ID:                 id,
			Status:             domain.SourceStatusActive,
			BillingPeriod:      "month",
			BillingInterval:    1,
			PaymentMethod:      "stripe",
			PaymentMethodTitle: "Credit Card (Stripe)",
			Currency:           "USD",
			Total:              decimal.RequireFromString("29.99"),
			UserID:             7,
			CustomerName:       "Sam Rivera",
			CustomerEmail:      "sam@example.com",
			ParentOrderID:      id + 1000,
			ParentOrderNumber:  "1001",
			CreatedAt:          &created,
			NextPaymentAt:      &next,
			Billing: domain.Address{
				FirstName: "Sam",
				LastName:  "Rivera",
				Address1:  "1 Main St",
				City:      "Springfield",
				Country:   "US",
				Email:     "sam@example.com",
			},
			Meta:            map[string]string{},
			ParentOrderMeta: map[string]string{},
			Items: []domain.SourceLineItem{{
				ID:           id*10 + 1,
				ProductID:    501,
				Name:         "Coffee Club",
				Quantity:     1,
				Subtotal:     decimal.RequireFromString("29.99"),
				Total:        decimal.RequireFromString("29.99"),
				RegularPrice: decimal.RequireFromString("29.99"),
				Virtual:      true,
			}},
		},
	}
}

func (b *SubscriptionBuilder) WithStatus(status string) *SubscriptionBuilder {
	b.subscription.Status = status
	return b
}

func (b *SubscriptionBuilder) WithGateway(gateway string) *SubscriptionBuilder {
	b.subscription.PaymentMethod = gateway
	return b
}

func (b *SubscriptionBuilder) WithParentGateway(gateway string) *SubscriptionBuilder {
	b.subscription.ParentGateway = gateway
	return b
}

func (b *SubscriptionBuilder) WithBilling(period string, interval int) *SubscriptionBuilder {
	b.subscription.BillingPeriod = period
	b.subscription.BillingInterval = interval
	return b
}

func (b *SubscriptionBuilder) WithTrial(length int, period string) *SubscriptionBuilder {
	b.subscription.TrialLength = length
	b.subscription.TrialPeriod = period
	return b
}

func (b *SubscriptionBuilder) WithSignupFee(fee string) *SubscriptionBuilder {
	b.subscription.SignupFee = decimal.RequireFromString(fee)
	return b
}

func (b *SubscriptionBuilder) WithMeta(key, value string) *SubscriptionBuilder {
	b.subscription.Meta[key] = value
	return b
}

func (b *SubscriptionBuilder) WithParentOrderMeta(key, value string) *SubscriptionBuilder {
	b.subscription.ParentOrderMeta[key] = value
	return b
}

func (b *SubscriptionBuilder) WithoutItems() *SubscriptionBuilder {
	b.subscription.Items = nil
	return b
}

func (b *SubscriptionBuilder) WithMarker(targetID int64) *SubscriptionBuilder {
	b.subscription.Marker = domain.MigrationMarker{Migrated: true, TargetID: targetID}
	return b
}

func (b *SubscriptionBuilder) Build() *domain.SourceSubscription {
	return b.subscription
}
