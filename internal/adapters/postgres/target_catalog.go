package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/kevin07696/subscription-migrator/internal/domain"
	"github.com/kevin07696/subscription-migrator/internal/domain/ports"
)

// TargetCatalog implements ports.TargetCatalog and ports.GatewayRegistry over the Sublium tables
type TargetCatalog struct {
	db ports.DBPort
}

var (
	_ ports.TargetCatalog   = (*TargetCatalog)(nil)
	_ ports.GatewayRegistry = (*TargetCatalog)(nil)
)

// NewTargetCatalog creates a target catalog
func NewTargetCatalog(db ports.DBPort) *TargetCatalog {
	return &TargetCatalog{db: db}
}

func (c *TargetCatalog) SystemActive(ctx context.Context) (bool, error) {
	var active bool
	err := c.db.GetDB().QueryRow(ctx,
		`SELECT to_regclass('sublium_subscriptions') IS NOT NULL`).Scan(&active)
	if err != nil {
		return false, fmt.Errorf("check target schema: %w", err)
	}
	return active, nil
}

func (c *TargetCatalog) CreatePlanGroup(ctx context.Context, group *domain.PlanGroup) (int64, error) {
	var id int64
	err := c.db.GetDB().QueryRow(ctx,
		`INSERT INTO sublium_plan_groups (title, product_id, type) VALUES ($1, $2, $3) RETURNING id`,
		group.Title, group.ProductID, int(group.Type),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create plan group: %w", err)
	}
	return id, nil
}

func (c *TargetCatalog) CreatePlan(ctx context.Context, plan *domain.PlanDefinition) (int64, error) {
	signupFee, err := json.Marshal(plan.SignupFee)
	if err != nil {
		return 0, fmt.Errorf("marshal signup fee: %w", err)
	}
	offer, err := json.Marshal(plan.Offer)
	if err != nil {
		return 0, fmt.Errorf("marshal offer: %w", err)
	}
	data, err := json.Marshal(plan.Data)
	if err != nil {
		return 0, fmt.Errorf("marshal plan data: %w", err)
	}

	var id int64
	err = c.db.GetDB().QueryRow(ctx, `
		INSERT INTO sublium_plans (
			plan_group_id, title, type, billing_frequency, billing_interval,
			billing_length, free_trial, signup_fee, offer, data, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		plan.GroupID, plan.Title, int(plan.Type), plan.BillingFrequency, int(plan.BillingInterval),
		plan.BillingLength, plan.TrialDays, signupFee, offer, data, plan.Status,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create plan: %w", err)
	}
	return id, nil
}

func (c *TargetCatalog) CreatePlanRelation(ctx context.Context, relation *domain.PlanRelation) (int64, error) {
	var id int64
	err := c.db.GetDB().QueryRow(ctx, `
		INSERT INTO sublium_plan_relations (plan_id, product_id, variation_id, type, status)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		relation.PlanID, relation.ProductID, relation.VariationID, int(relation.Type), relation.Status,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create plan relation: %w", err)
	}
	return id, nil
}

func (c *TargetCatalog) FindPlanGroup(ctx context.Context, productID int64, planType domain.PlanType) (*domain.PlanGroup, error) {
	group := &domain.PlanGroup{ProductID: productID, Type: planType}
	err := c.db.GetDB().QueryRow(ctx, `
		SELECT id, title FROM sublium_plan_groups
		WHERE product_id = $1 AND type = $2
		ORDER BY id LIMIT 1`,
		productID, int(planType),
	).Scan(&group.ID, &group.Title)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find plan group: %w", err)
	}
	return group, nil
}

func (c *TargetCatalog) ListPlanRelations(ctx context.Context, productID, variationID int64) ([]domain.PlanRelation, error) {
	rows, err := c.db.GetDB().Query(ctx, `
		SELECT id, plan_id, type, status FROM sublium_plan_relations
		WHERE product_id = $1 AND variation_id = $2
		ORDER BY id`,
		productID, variationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list plan relations: %w", err)
	}
	defer rows.Close()

	var relations []domain.PlanRelation
	for rows.Next() {
		var planType, status int
		r := domain.PlanRelation{ProductID: productID, VariationID: variationID}
		if err := rows.Scan(&r.ID, &r.PlanID, &planType, &status); err != nil {
			return nil, fmt.Errorf("scan plan relation: %w", err)
		}
		r.Type = domain.PlanType(planType)
		r.Status = status
		relations = append(relations, r)
	}
	return relations, rows.Err()
}

func (c *TargetCatalog) GetPlan(ctx context.Context, id int64) (*domain.PlanDefinition, error) {
	var (
		plan                   domain.PlanDefinition
		planType, interval     int
		signupFee, offer, data []byte
	)
	err := c.db.GetDB().QueryRow(ctx, `
		SELECT id, plan_group_id, title, type, billing_frequency, billing_interval,
		       billing_length, free_trial, signup_fee, offer, data, status
		FROM sublium_plans WHERE id = $1`, id,
	).Scan(&plan.ID, &plan.GroupID, &plan.Title, &planType, &plan.BillingFrequency, &interval,
		&plan.BillingLength, &plan.TrialDays, &signupFee, &offer, &data, &plan.Status)
	if err != nil {
		return nil, notFound(err)
	}

	plan.Type = domain.PlanType(planType)
	plan.BillingInterval = domain.BillingInterval(interval)
	if err := json.Unmarshal(signupFee, &plan.SignupFee); err != nil {
		return nil, fmt.Errorf("unmarshal signup fee of plan %d: %w", id, err)
	}
	if err := json.Unmarshal(offer, &plan.Offer); err != nil {
		return nil, fmt.Errorf("unmarshal offer of plan %d: %w", id, err)
	}
	if err := json.Unmarshal(data, &plan.Data); err != nil {
		return nil, fmt.Errorf("unmarshal data of plan %d: %w", id, err)
	}
	return &plan, nil
}

func (c *TargetCatalog) CreateSubscription(ctx context.Context, sub *domain.TargetSubscription) (int64, error) {
	plan, err := json.Marshal(sub.Plan)
	if err != nil {
		return 0, fmt.Errorf("marshal plan: %w", err)
	}
	metadata := []byte("{}")
	if sub.Metadata != nil {
		if metadata, err = json.Marshal(sub.Metadata); err != nil {
			return 0, fmt.Errorf("marshal metadata: %w", err)
		}
	}
	totals, err := decimalToNumeric(sub.Totals)
	if err != nil {
		return 0, err
	}
	baseTotals, err := decimalToNumeric(sub.BaseTotals)
	if err != nil {
		return 0, err
	}
	refs := sub.ProductRefs
	if refs == nil {
		refs = []string{}
	}

	nextLocal, nextUTC := splitLocalUTC(sub.NextPaymentAt)
	endLocal, endUTC := splitLocalUTC(sub.EndAt)

	var id int64
	err = c.db.GetDB().QueryRow(ctx, `
		INSERT INTO sublium_subscriptions (
			source_subscription_id, parent_order_id, user_id, status, plan_type,
			gateway, gateway_mode, currency, totals, base_totals, plan, metadata,
			search_string, product_refs, created_at, created_at_utc,
			next_payment_at, next_payment_at_utc, end_at, end_at_utc, last_payment_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		RETURNING id`,
		sub.SourceSubscriptionID, sub.ParentOrderID, sub.UserID, int(sub.Status), int(sub.PlanType),
		sub.Gateway, int(sub.GatewayMode), sub.Currency, totals, baseTotals, plan, metadata,
		sub.SearchString, refs, timestamp(sub.CreatedAt.Local), sub.CreatedAt.UTC,
		nextLocal, nextUTC, endLocal, endUTC, sub.LastPaymentAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create subscription: %w", err)
	}
	return id, nil
}

func (c *TargetCatalog) SubscriptionExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := c.db.GetDB().QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM sublium_subscriptions WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check subscription %d: %w", id, err)
	}
	return exists, nil
}

func (c *TargetCatalog) FindSubscriptionBySource(ctx context.Context, sourceID int64) (int64, error) {
	var id int64
	err := c.db.GetDB().QueryRow(ctx,
		`SELECT id FROM sublium_subscriptions WHERE source_subscription_id = $1 ORDER BY id LIMIT 1`,
		sourceID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("find subscription for source %d: %w", sourceID, err)
	}
	return id, nil
}

func (c *TargetCatalog) AddLineItem(ctx context.Context, subscriptionID int64, item domain.TargetLineItem) (int64, error) {
	amounts := make([]pgtype.Numeric, 0, 4)
	for _, d := range []decimal.Decimal{item.Subtotal, item.Total, item.SubtotalTax, item.TotalTax} {
		n, err := decimalToNumeric(d)
		if err != nil {
			return 0, err
		}
		amounts = append(amounts, n)
	}

	// The parent row is locked so an item never lands on a subscription deleted mid-batch
	var id int64
	err := c.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var locked int64
		err := tx.QueryRow(ctx,
			`SELECT id FROM sublium_subscriptions WHERE id = $1 FOR UPDATE`, subscriptionID).Scan(&locked)
		if err != nil {
			return notFound(err)
		}
		return tx.QueryRow(ctx, `
			INSERT INTO sublium_subscription_items (
				subscription_id, product_id, variation_id, name, quantity,
				subtotal, total, subtotal_tax, total_tax, tax_class
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id`,
			subscriptionID, item.ProductID, item.VariationID, item.Name, item.Quantity,
			amounts[0], amounts[1], amounts[2], amounts[3], item.TaxClass,
		).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("add line item to subscription %d: %w", subscriptionID, err)
	}
	return id, nil
}

func (c *TargetCatalog) UpdateItemList(ctx context.Context, subscriptionID int64, productRefs []string) error {
	if productRefs == nil {
		productRefs = []string{}
	}
	_, err := c.db.GetDB().Exec(ctx,
		`UPDATE sublium_subscriptions SET product_refs = $2 WHERE id = $1`,
		subscriptionID, productRefs)
	if err != nil {
		return fmt.Errorf("update item list of subscription %d: %w", subscriptionID, err)
	}
	return nil
}

func (c *TargetCatalog) ListSourceSubscriptionIDs(ctx context.Context) ([]int64, error) {
	rows, err := c.db.GetDB().Query(ctx,
		`SELECT DISTINCT source_subscription_id FROM sublium_subscriptions ORDER BY source_subscription_id`)
	if err != nil {
		return nil, fmt.Errorf("list migrated source ids: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (c *TargetCatalog) SupportedGateways(ctx context.Context) ([]string, error) {
	rows, err := c.db.GetDB().Query(ctx,
		`SELECT id FROM sublium_gateways WHERE supported ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list supported gateways: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (c *TargetCatalog) HasGateway(ctx context.Context, id string) (bool, error) {
	var installed bool
	err := c.db.GetDB().QueryRow(ctx,
		`SELECT installed FROM sublium_gateways WHERE id = $1`, id).Scan(&installed)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("look up gateway %s: %w", id, err)
	}
	return installed, nil
}

// timestamp keeps the wall clock of t for a TIMESTAMP WITHOUT TIME ZONE column
func timestamp(t time.Time) pgtype.Timestamp {
	if t.IsZero() {
		return pgtype.Timestamp{}
	}
	wall := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
	return pgtype.Timestamp{Time: wall, Valid: true}
}

func splitLocalUTC(v *domain.LocalUTCTime) (pgtype.Timestamp, pgtype.Timestamptz) {
	if v == nil {
		return pgtype.Timestamp{}, pgtype.Timestamptz{}
	}
	return timestamp(v.Local), pgtype.Timestamptz{Time: v.UTC, Valid: !v.UTC.IsZero()}
}
