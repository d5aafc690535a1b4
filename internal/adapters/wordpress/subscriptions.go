package wordpress

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/kevin07696/subscription-migrator/internal/domain"
	"github.com/kevin07696/subscription-migrator/pkg/timeutil"
)

var hiddenStatuses = []string{"trash", "auto-draft"}

type subscriptionPost struct {
	ID          int64 `gorm:"column:ID"`
	PostStatus  string
	PostParent  int64
	PostDateGmt string
}

type orderItemRow struct {
	OrderItemID   int64
	OrderItemName string
}

type itemMetaRow struct {
	OrderItemID int64
	MetaKey     string
	MetaValue   string
}

type userRow struct {
	DisplayName string
	UserEmail   string
}

func (c *SourceCatalog) ListSubscriptionIDs(ctx context.Context, statuses []string) ([]int64, error) {
	q := c.db.WithContext(ctx).Table(c.t("posts")).Where("post_type = ?", postTypeSubscription)
	if len(statuses) > 0 {
		prefixed := make([]string, len(statuses))
		for i, s := range statuses {
			prefixed[i] = "wc-" + strings.TrimPrefix(s, "wc-")
		}
		q = q.Where("post_status IN ?", prefixed)
	} else {
		q = q.Where("post_status NOT IN ?", hiddenStatuses)
	}

	var ids []int64
	if err := q.Order("ID").Pluck("ID", &ids).Error; err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return ids, nil
}

func (c *SourceCatalog) ListMigratedSubscriptionIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := c.db.WithContext(ctx).Table(c.t("postmeta")+" AS pm").
		Joins("JOIN "+c.t("posts")+" AS p ON p.ID = pm.post_id").
		Where("p.post_type = ? AND pm.meta_key = ? AND pm.meta_value = ?", postTypeSubscription, domain.MetaMigratedFlag, "yes").
		Distinct().
		Order("pm.post_id").
		Pluck("pm.post_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list migrated subscriptions: %w", err)
	}
	return ids, nil
}

func (c *SourceCatalog) GetSubscription(ctx context.Context, id int64) (*domain.SourceSubscription, error) {
	var post subscriptionPost
	err := c.db.WithContext(ctx).Table(c.t("posts")).
		Select("ID, post_status, post_parent, COALESCE(DATE_FORMAT(post_date_gmt, ?), '') AS post_date_gmt", gmtDateFormat).
		Where("ID = ? AND post_type = ?", id, postTypeSubscription).
		Take(&post).Error
	if err != nil {
		return nil, notFound(err)
	}

	meta, err := c.postMeta(ctx, id)
	if err != nil {
		return nil, err
	}

	sub := &domain.SourceSubscription{
		ID:                 id,
		Status:             strings.TrimPrefix(post.PostStatus, "wc-"),
		ParentOrderID:      post.PostParent,
		CreatedAt:          timeutil.ParseMySQLUTC(post.PostDateGmt),
		NextPaymentAt:      timeutil.ParseMySQLUTC(meta["_schedule_next_payment"]),
		EndAt:              timeutil.ParseMySQLUTC(meta["_schedule_end"]),
		TrialEndAt:         timeutil.ParseMySQLUTC(meta["_schedule_trial_end"]),
		Meta:               meta,
		BillingPeriod:      meta["_billing_period"],
		BillingInterval:    parseInt(meta["_billing_interval"]),
		PaymentMethod:      meta["_payment_method"],
		PaymentMethodTitle: meta["_payment_method_title"],
		Currency:           meta["_order_currency"],
		Total:              parseDecimal(meta["_order_total"]),
		UserID:             parseInt64(meta["_customer_user"]),
		Billing:            address(meta, "_billing_"),
		Shipping:           address(meta, "_shipping_"),
		Marker:             markerFrom(meta),
	}
	if sub.BillingInterval <= 0 {
		sub.BillingInterval = 1
	}

	if err := c.loadParentOrder(ctx, sub); err != nil {
		return nil, err
	}
	if err := c.loadCustomer(ctx, sub); err != nil {
		return nil, err
	}
	if err := c.loadItems(ctx, sub); err != nil {
		return nil, err
	}
	if err := c.loadLastOrderDate(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (c *SourceCatalog) loadParentOrder(ctx context.Context, sub *domain.SourceSubscription) error {
	if sub.ParentOrderID <= 0 {
		return nil
	}
	meta, err := c.postMeta(ctx, sub.ParentOrderID)
	if err != nil {
		return err
	}
	sub.ParentOrderMeta = meta
	sub.ParentGateway = meta["_payment_method"]
	sub.ParentOrderNumber = meta["_order_number"]
	if sub.ParentOrderNumber == "" {
		sub.ParentOrderNumber = strconv.FormatInt(sub.ParentOrderID, 10)
	}
	return nil
}

func (c *SourceCatalog) loadCustomer(ctx context.Context, sub *domain.SourceSubscription) error {
	sub.CustomerName = strings.TrimSpace(sub.Billing.FirstName + " " + sub.Billing.LastName)
	sub.CustomerEmail = sub.Billing.Email
	if sub.UserID <= 0 || (sub.CustomerName != "" && sub.CustomerEmail != "") {
		return nil
	}

	var user userRow
	err := c.db.WithContext(ctx).Table(c.t("users")).
		Select("display_name, user_email").
		Where("ID = ?", sub.UserID).
		Take(&user).Error
	if err == gorm.ErrRecordNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load customer %d: %w", sub.UserID, err)
	}
	if sub.CustomerName == "" {
		sub.CustomerName = user.DisplayName
	}
	if sub.CustomerEmail == "" {
		sub.CustomerEmail = user.UserEmail
	}
	return nil
}

// loadItems reads line items and enriches them from their products. Billing length, trial and
// signup fee of the subscription come from the first item's product.
func (c *SourceCatalog) loadItems(ctx context.Context, sub *domain.SourceSubscription) error {
	var rows []orderItemRow
	err := c.db.WithContext(ctx).Table(c.t("woocommerce_order_items")).
		Select("order_item_id, order_item_name").
		Where("order_id = ? AND order_item_type = ?", sub.ID, "line_item").
		Order("order_item_id").
		Scan(&rows).Error
	if err != nil {
		return fmt.Errorf("load line items of subscription %d: %w", sub.ID, err)
	}
	if len(rows) == 0 {
		return nil
	}

	itemIDs := make([]int64, len(rows))
	for i, r := range rows {
		itemIDs[i] = r.OrderItemID
	}
	var metaRows []itemMetaRow
	err = c.db.WithContext(ctx).Table(c.t("woocommerce_order_itemmeta")).
		Select("order_item_id, meta_key, COALESCE(meta_value, '') AS meta_value").
		Where("order_item_id IN ?", itemIDs).
		Order("meta_id").
		Scan(&metaRows).Error
	if err != nil {
		return fmt.Errorf("load line item meta of subscription %d: %w", sub.ID, err)
	}
	itemMeta := make(map[int64]map[string]string, len(rows))
	for _, m := range metaRows {
		if itemMeta[m.OrderItemID] == nil {
			itemMeta[m.OrderItemID] = map[string]string{}
		}
		if _, seen := itemMeta[m.OrderItemID][m.MetaKey]; !seen {
			itemMeta[m.OrderItemID][m.MetaKey] = m.MetaValue
		}
	}

	productIDs := make([]int64, 0, len(rows)*2)
	for _, r := range rows {
		m := itemMeta[r.OrderItemID]
		if pid := parseInt64(m["_product_id"]); pid > 0 {
			productIDs = append(productIDs, pid)
		}
		if vid := parseInt64(m["_variation_id"]); vid > 0 {
			productIDs = append(productIDs, vid)
		}
	}
	productMeta, err := c.metaFor(ctx, productIDs)
	if err != nil {
		return err
	}

	for i, r := range rows {
		m := itemMeta[r.OrderItemID]
		productID := parseInt64(m["_product_id"])
		variationID := parseInt64(m["_variation_id"])
		pm := layerMeta(productMeta[productID], productMeta[variationID])

		sub.Items = append(sub.Items, domain.SourceLineItem{
			ID:           r.OrderItemID,
			Name:         r.OrderItemName,
			ProductID:    productID,
			VariationID:  variationID,
			Quantity:     parseInt(m["_qty"]),
			TaxClass:     m["_tax_class"],
			Subtotal:     parseDecimal(m["_line_subtotal"]),
			Total:        parseDecimal(m["_line_total"]),
			SubtotalTax:  parseDecimal(m["_line_subtotal_tax"]),
			TotalTax:     parseDecimal(m["_line_tax"]),
			RegularPrice: parseDecimal(pm["_regular_price"]),
			SalePrice:    parseDecimal(pm["_sale_price"]),
			Virtual:      pm["_virtual"] == "yes",
		})

		if i == 0 {
			sub.BillingLength = parseInt(pm["_subscription_length"])
			sub.TrialLength = parseInt(pm["_subscription_trial_length"])
			sub.TrialPeriod = pm["_subscription_trial_period"]
			sub.SignupFee = parseDecimal(pm["_subscription_sign_up_fee"])
		}
	}
	return nil
}

// loadLastOrderDate finds the newest of the parent and renewal orders
func (c *SourceCatalog) loadLastOrderDate(ctx context.Context, sub *domain.SourceSubscription) error {
	orderIDs, err := c.ListRenewalOrderIDs(ctx, sub.ID)
	if err != nil {
		return err
	}
	if sub.ParentOrderID > 0 {
		orderIDs = append(orderIDs, sub.ParentOrderID)
	}
	if len(orderIDs) == 0 {
		return nil
	}

	var last sql.NullString
	err = c.db.WithContext(ctx).Table(c.t("posts")).
		Select("DATE_FORMAT(MAX(post_date_gmt), ?)", gmtDateFormat).
		Where("ID IN ?", orderIDs).
		Row().Scan(&last)
	if err != nil {
		return fmt.Errorf("load last order date of subscription %d: %w", sub.ID, err)
	}
	if last.Valid {
		sub.LastOrderCreatedAt = timeutil.ParseMySQLUTC(last.String)
	}
	return nil
}

func (c *SourceCatalog) GetMarker(ctx context.Context, id int64) (domain.MigrationMarker, error) {
	all, err := c.metaFor(ctx, []int64{id}, domain.MetaMigratedFlag, domain.MetaTargetSubscription)
	if err != nil {
		return domain.MigrationMarker{}, err
	}
	meta := all[id]
	if len(meta) == 0 {
		exists, err := c.postExists(ctx, id, postTypeSubscription)
		if err != nil {
			return domain.MigrationMarker{}, err
		}
		if !exists {
			return domain.MigrationMarker{}, domain.ErrRecordNotFound
		}
	}
	return markerFrom(meta), nil
}

func (c *SourceCatalog) WriteMarker(ctx context.Context, id int64, targetID int64) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := c.upsertMeta(tx, id, domain.MetaMigratedFlag, "yes"); err != nil {
			return err
		}
		return c.upsertMeta(tx, id, domain.MetaTargetSubscription, strconv.FormatInt(targetID, 10))
	})
}

func (c *SourceCatalog) ListRenewalOrderIDs(ctx context.Context, subscriptionID int64) ([]int64, error) {
	var ids []int64
	err := c.db.WithContext(ctx).Table(c.t("postmeta")+" AS pm").
		Joins("JOIN "+c.t("posts")+" AS p ON p.ID = pm.post_id").
		Where("pm.meta_key = ? AND pm.meta_value = ? AND p.post_type = ?",
			metaRenewalOf, strconv.FormatInt(subscriptionID, 10), postTypeOrder).
		Order("pm.post_id").
		Pluck("pm.post_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list renewal orders of subscription %d: %w", subscriptionID, err)
	}
	return ids, nil
}

func (c *SourceCatalog) LinkOrders(ctx context.Context, targetID int64, links []domain.OrderLink) error {
	target := strconv.FormatInt(targetID, 10)
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, link := range links {
			if err := c.upsertMeta(tx, link.OrderID, domain.MetaTargetSubscription, target); err != nil {
				return err
			}
			if link.Renewal {
				if err := c.upsertMeta(tx, link.OrderID, domain.MetaRenewalOrderFlag, "yes"); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (c *SourceCatalog) CancelRenewalActions(ctx context.Context, subscriptionID int64, hooks []string) (int, error) {
	res := c.db.WithContext(ctx).Table(c.t("actionscheduler_actions")).
		Where("hook IN ? AND status = ? AND args = ?", hooks, "pending", actionArgs(subscriptionID)).
		Update("status", "canceled")
	if res.Error != nil {
		return 0, fmt.Errorf("cancel renewal actions of subscription %d: %w", subscriptionID, res.Error)
	}
	return int(res.RowsAffected), nil
}

func (c *SourceCatalog) SetManualRenewal(ctx context.Context, subscriptionID int64) error {
	exists, err := c.postExists(ctx, subscriptionID, postTypeSubscription)
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrRecordNotFound
	}
	return c.upsertMeta(c.db.WithContext(ctx), subscriptionID, domain.MetaRequiresManualRenew, "true")
}

// actionArgs is the JSON args column written by the subscriptions plugin for its scheduled actions
func actionArgs(subscriptionID int64) string {
	return fmt.Sprintf(`{"subscription_id":%d}`, subscriptionID)
}

func markerFrom(meta map[string]string) domain.MigrationMarker {
	return domain.MigrationMarker{
		Migrated: meta[domain.MetaMigratedFlag] == "yes",
		TargetID: parseInt64(meta[domain.MetaTargetSubscription]),
	}
}

func address(meta map[string]string, prefix string) domain.Address {
	return domain.Address{
		FirstName: meta[prefix+"first_name"],
		LastName:  meta[prefix+"last_name"],
		Company:   meta[prefix+"company"],
		Address1:  meta[prefix+"address_1"],
		Address2:  meta[prefix+"address_2"],
		City:      meta[prefix+"city"],
		State:     meta[prefix+"state"],
		Postcode:  meta[prefix+"postcode"],
		Country:   meta[prefix+"country"],
		Email:     meta[prefix+"email"],
		Phone:     meta[prefix+"phone"],
	}
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// layerMeta overlays variation meta on its parent product's meta
func layerMeta(base, top map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(top))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range top {
		if v != "" {
			merged[k] = v
		}
	}
	return merged
}
