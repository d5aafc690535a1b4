package ports

import (
	"context"

	"github.com/kevin07696/subscription-migrator/internal/domain"
)

// SourceCatalog is the read side of the source subscription system, plus the few writes
// the engine performs on it (marker, order links, renewal cleanup)
type SourceCatalog interface {
	// SystemStatus reports whether the source subscription system is installed and its version
	SystemStatus(ctx context.Context) (domain.SourceSystemStatus, error)

	// AttachableSchemesActive reports whether the attachable add-on subsystem is active
	AttachableSchemesActive(ctx context.Context) (bool, error)

	// ListSubscriptionIDs returns subscription IDs in ascending order.
	// An empty statuses slice means every status.
	ListSubscriptionIDs(ctx context.Context, statuses []string) ([]int64, error)

	// ListMigratedSubscriptionIDs returns IDs carrying the migrated marker
	ListMigratedSubscriptionIDs(ctx context.Context) ([]int64, error)

	// GetSubscription reads the full field set of a subscription.
	// Returns domain.ErrRecordNotFound when the ID does not exist.
	GetSubscription(ctx context.Context, id int64) (*domain.SourceSubscription, error)

	// GetMarker reads only the migrated marker, bypassing any caches
	GetMarker(ctx context.Context, id int64) (domain.MigrationMarker, error)

	// WriteMarker sets the migrated flag and the target back-reference
	WriteMarker(ctx context.Context, id int64, targetID int64) error

	// ListRenewalOrderIDs returns the renewal orders created for a subscription
	ListRenewalOrderIDs(ctx context.Context, subscriptionID int64) ([]int64, error)

	// LinkOrders writes the target reference directly onto each order's meta
	LinkOrders(ctx context.Context, targetID int64, links []domain.OrderLink) error

	// CountProducts counts published products of the given type
	CountProducts(ctx context.Context, productType string) (int, error)

	// CountAttachableProducts counts products carrying attachable schemes
	CountAttachableProducts(ctx context.Context) (int, error)

	// ListEligibleProductIDs returns subscription products in ascending ID order
	ListEligibleProductIDs(ctx context.Context, includeAttachable bool, offset, limit int) ([]int64, error)

	// GetProduct reads a product with its variations and attachable schemes
	GetProduct(ctx context.Context, id int64) (*domain.SourceProduct, error)

	// CancelRenewalActions cancels pending renewal actions for a subscription and returns how many
	CancelRenewalActions(ctx context.Context, subscriptionID int64, hooks []string) (int, error)

	// SetManualRenewal flags the subscription so the source will not charge it automatically
	SetManualRenewal(ctx context.Context, subscriptionID int64) error
}
