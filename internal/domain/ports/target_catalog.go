package ports

import (
	"context"

	"github.com/kevin07696/subscription-migrator/internal/domain"
)

// TargetCatalog is the write side of the target subscription system
type TargetCatalog interface {
	// SystemActive reports whether the target system is installed
	SystemActive(ctx context.Context) (bool, error)

	CreatePlanGroup(ctx context.Context, group *domain.PlanGroup) (int64, error)
	CreatePlan(ctx context.Context, plan *domain.PlanDefinition) (int64, error)
	CreatePlanRelation(ctx context.Context, relation *domain.PlanRelation) (int64, error)

	// FindPlanGroup returns the group for a product and plan type, or nil
	FindPlanGroup(ctx context.Context, productID int64, planType domain.PlanType) (*domain.PlanGroup, error)

	// ListPlanRelations lists relations bound to a product/variation pair
	ListPlanRelations(ctx context.Context, productID, variationID int64) ([]domain.PlanRelation, error)

	// GetPlan reads a plan. Returns domain.ErrRecordNotFound when absent.
	GetPlan(ctx context.Context, id int64) (*domain.PlanDefinition, error)

	// CreateSubscription inserts a subscription with its inline plan and metadata
	CreateSubscription(ctx context.Context, sub *domain.TargetSubscription) (int64, error)

	// SubscriptionExists reports whether a target subscription ID resolves
	SubscriptionExists(ctx context.Context, id int64) (bool, error)

	// FindSubscriptionBySource returns the oldest target subscription created
	// from a source subscription, or 0 when there is none
	FindSubscriptionBySource(ctx context.Context, sourceID int64) (int64, error)

	// AddLineItem attaches one product line to a subscription
	AddLineItem(ctx context.Context, subscriptionID int64, item domain.TargetLineItem) (int64, error)

	// UpdateItemList rewrites the subscription's denormalized product reference list
	UpdateItemList(ctx context.Context, subscriptionID int64, productRefs []string) error

	// ListSourceSubscriptionIDs returns the source IDs of every migrated subscription
	ListSourceSubscriptionIDs(ctx context.Context) ([]int64, error)
}

// GatewayRegistry exposes the target system's live payment gateway registry
type GatewayRegistry interface {
	// SupportedGateways returns the IDs the target declares as supported
	SupportedGateways(ctx context.Context) ([]string, error)

	// HasGateway reports whether a gateway instance with that ID is installed
	HasGateway(ctx context.Context, id string) (bool, error)
}
