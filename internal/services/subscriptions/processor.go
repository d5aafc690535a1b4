package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kevin07696/subscription-migrator/internal/domain"
	"github.com/kevin07696/subscription-migrator/internal/domain/ports"
	"github.com/kevin07696/subscription-migrator/internal/services/gateway"
	"github.com/kevin07696/subscription-migrator/internal/services/state"
	"github.com/kevin07696/subscription-migrator/pkg/observability"
	"github.com/kevin07696/subscription-migrator/pkg/timeutil"
)

// DefaultBatchSize is the number of subscriptions handled per batch
const DefaultBatchSize = 10

// excludedMetaKeys are source meta keys never copied into the target metadata.
// Besides the migration's own markers these are the order properties the source
// keeps in postmeta, which the target stores in columns of its own.
var excludedMetaKeys = map[string]struct{}{
	domain.MetaTargetSubscription:   {},
	domain.MetaMigratedFlag:         {},
	domain.MetaRequiresManualRenew:  {},
	"_payment_method":               {},
	"_payment_method_title":         {},
	"_customer_user":                {},
	"_customer_ip_address":          {},
	"_customer_user_agent":          {},
	"_created_via":                  {},
	"_prices_include_tax":           {},
	"_cart_discount":                {},
	"_cart_discount_tax":            {},
	"_cart_hash":                    {},
	"_transaction_id":               {},
	"_paid_date":                    {},
	"_completed_date":               {},
	"_trial_period":                 {},
	"_suspension_count":             {},
	"_cancelled_email_sent":         {},
	"_contains_synced_subscription": {},
	"_edit_lock":                    {},
	"_edit_last":                    {},
	"_wp_old_slug":                  {},
	"_recorded_sales":               {},
	"_recorded_coupon_usage_counts": {},
	"_download_permissions_granted": {},
}

// excludedMetaPrefixes cover families of core keys such as _billing_first_name,
// _schedule_next_payment, _order_total and _subscription_renewal_order
var excludedMetaPrefixes = []string{
	"_billing_",
	"_shipping_",
	"_schedule_",
	"_order_",
	"_subscription_",
	"_date_",
}

func isExcludedMetaKey(key string) bool {
	if _, ok := excludedMetaKeys[key]; ok {
		return true
	}
	for _, prefix := range excludedMetaPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

// Processor migrates source subscriptions into target subscriptions
type Processor struct {
	source    ports.SourceCatalog
	target    ports.TargetCatalog
	mapper    *gateway.Mapper
	state     *state.Store
	logger    ports.Logger
	location  *time.Location
	batchSize int
}

// NewProcessor creates a subscriptions pipeline processor. location is the
// source site's timezone used for the local copies of every date.
func NewProcessor(
	source ports.SourceCatalog,
	target ports.TargetCatalog,
	mapper *gateway.Mapper,
	store *state.Store,
	logger ports.Logger,
	location *time.Location,
	batchSize int,
) *Processor {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if location == nil {
		location = time.UTC
	}
	return &Processor{
		source:    source,
		target:    target,
		mapper:    mapper,
		state:     store,
		logger:    logger,
		location:  location,
		batchSize: batchSize,
	}
}

// BatchSize returns the configured batch size
func (p *Processor) BatchSize() int {
	return p.batchSize
}

// ProcessBatch migrates the next batch of unmigrated subscriptions. The
// unmigrated set is recomputed on every call; offset only feeds next_offset.
func (p *Processor) ProcessBatch(ctx context.Context, offset int) domain.BatchResult {
	start := time.Now()

	current, err := p.state.Get(ctx)
	if err != nil {
		p.logger.Error("failed to read migration state", ports.Err(err))
		return domain.BatchResult{Message: err.Error()}
	}
	if current.Status == domain.MigrationStatusPaused {
		observability.RecordBatch("subscriptions", "paused", time.Since(start).Seconds())
		return domain.PausedBatchResult()
	}

	ids, err := p.Unmigrated(ctx, current.SubscriptionsMigration.LastSubscriptionID)
	if err != nil {
		p.logger.Error("failed to compute unmigrated subscriptions", ports.Err(err))
		p.state.AddError(ctx, "Failed to fetch subscriptions batch", map[string]interface{}{
			"offset": offset,
			"error":  err.Error(),
		})
		observability.RecordBatch("subscriptions", "failed", time.Since(start).Seconds())
		return domain.BatchResult{Message: err.Error()}
	}
	if len(ids) > p.batchSize {
		ids = ids[:p.batchSize]
	}

	var result domain.BatchResult
	skipped := 0
	var lastID int64
	for _, id := range ids {
		result.Processed++
		lastID = id

		_, created, err := p.MigrateSubscription(ctx, id)
		if err != nil {
			result.Failed++
			p.logger.Warn("subscription migration failed",
				ports.Int64("subscription_id", id),
				ports.Err(err))
			p.state.AddError(ctx, fmt.Sprintf("Error migrating subscription %d: %s", id, err.Error()), map[string]interface{}{
				"subscription_id": id,
				"code":            string(domain.GetErrorCode(err)),
			})
			continue
		}
		if created {
			result.Created++
		} else {
			skipped++
		}
	}

	if err := p.state.AddSubscriptionsProgress(ctx, domain.SubscriptionsDelta{
		Processed:          result.Processed,
		Created:            result.Created,
		Failed:             result.Failed,
		LastSubscriptionID: lastID,
	}); err != nil {
		p.logger.Error("failed to persist subscriptions progress", ports.Err(err))
	}

	result.CompleteBatch(len(ids), offset, p.batchSize)

	outcome := "exhausted"
	if result.HasMore {
		outcome = "more"
	}
	observability.RecordBatch("subscriptions", outcome, time.Since(start).Seconds())
	observability.RecordRecords("subscriptions", result.Created, skipped, result.Failed)

	p.logger.Info("subscriptions batch processed",
		ports.Int("offset", offset),
		ports.Int("processed", result.Processed),
		ports.Int("created", result.Created),
		ports.Int("skipped", skipped),
		ports.Int("failed", result.Failed),
		ports.Bool("has_more", result.HasMore))

	return result
}

// Unmigrated returns the sorted IDs of all source subscriptions without a
// migrated marker whose ID is above afterID
func (p *Processor) Unmigrated(ctx context.Context, afterID int64) ([]int64, error) {
	all, err := p.source.ListSubscriptionIDs(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	migrated, err := p.source.ListMigratedSubscriptionIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list migrated subscriptions: %w", err)
	}

	done := make(map[int64]struct{}, len(migrated))
	for _, id := range migrated {
		done[id] = struct{}{}
	}

	out := make([]int64, 0, len(all))
	for _, id := range all {
		if id <= afterID {
			continue
		}
		if _, ok := done[id]; ok {
			continue
		}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// CountRemaining returns how many unmigrated subscriptions lie above afterID
func (p *Processor) CountRemaining(ctx context.Context, afterID int64) (int, error) {
	ids, err := p.Unmigrated(ctx, afterID)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// MigrateSubscription migrates one source subscription. It returns the target
// ID and whether the record was migrated by this call; an existing, resolvable
// marker short-circuits to the recorded target.
func (p *Processor) MigrateSubscription(ctx context.Context, id int64) (int64, bool, error) {
	targetID, migrated, err := p.alreadyMigrated(ctx, id)
	if err != nil {
		return 0, false, err
	}
	if migrated {
		p.logger.Debug("subscription already migrated",
			ports.Int64("subscription_id", id),
			ports.Int64("target_id", targetID))
		return targetID, false, nil
	}

	sub, err := p.source.GetSubscription(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return 0, false, domain.WrapError(domain.ErrorCodeRecordNotFound, "subscription not found", err)
		}
		return 0, false, domain.WrapError(domain.ErrorCodeExtractionFailed, "failed to load subscription", err)
	}

	// A record left behind by an attempt that failed before the marker was
	// written is adopted instead of duplicated.
	existing, err := p.target.FindSubscriptionBySource(ctx, id)
	if err != nil {
		return 0, false, domain.WrapError(domain.ErrorCodeInternalError, "failed to look up target subscription", err)
	}

	created := existing == 0
	if created {
		record, err := p.buildTargetSubscription(ctx, sub)
		if err != nil {
			return 0, false, err
		}
		targetID, err = p.target.CreateSubscription(ctx, record)
		if err != nil {
			return 0, false, domain.WrapError(domain.ErrorCodeSubscriptionCreationFailed, "failed to create target subscription", err)
		}
		p.attachItems(ctx, sub, targetID, record.ProductRefs)
	} else {
		targetID = existing
		p.logger.Warn("adopting target subscription left by an earlier attempt",
			ports.Int64("subscription_id", id),
			ports.Int64("target_id", targetID))
	}

	if err := p.source.WriteMarker(ctx, id, targetID); err != nil {
		return targetID, false, domain.WrapError(domain.ErrorCodeSubscriptionCreationFailed, "failed to write migration marker", err).
			WithDetail("target_id", targetID)
	}

	if err := p.linkOrders(ctx, sub, targetID); err != nil {
		// The marker is already written, so the record is migrated; the links can be repaired later.
		p.logger.Warn("failed to link orders to target subscription",
			ports.Int64("subscription_id", id),
			ports.Int64("target_id", targetID),
			ports.Err(err))
	}

	p.logger.Info("subscription migrated",
		ports.Int64("subscription_id", id),
		ports.Int64("target_id", targetID),
		ports.Bool("adopted", !created))
	return targetID, true, nil
}

// attachItems adds the line items and the denormalized item list. Failures are
// recorded and skipped so the marker is still written for the created record.
func (p *Processor) attachItems(ctx context.Context, sub *domain.SourceSubscription, targetID int64, refs []string) {
	for _, item := range sub.Items {
		if _, err := p.target.AddLineItem(ctx, targetID, toTargetItem(item)); err != nil {
			p.logger.Warn("failed to add line item",
				ports.Int64("subscription_id", sub.ID),
				ports.Int64("target_id", targetID),
				ports.Int64("item_id", item.ID),
				ports.Err(err))
			p.state.AddError(ctx, "Failed to add line item", map[string]interface{}{
				"subscription_id": sub.ID,
				"target_id":       targetID,
				"item_id":         item.ID,
				"error":           err.Error(),
			})
		}
	}
	if err := p.target.UpdateItemList(ctx, targetID, refs); err != nil {
		p.logger.Warn("failed to update item list",
			ports.Int64("subscription_id", sub.ID),
			ports.Int64("target_id", targetID),
			ports.Err(err))
		p.state.AddError(ctx, "Failed to update item list", map[string]interface{}{
			"subscription_id": sub.ID,
			"target_id":       targetID,
			"error":           err.Error(),
		})
	}
}

// alreadyMigrated re-reads the marker right before mutating. A marker without
// a live target record permits re-migration.
func (p *Processor) alreadyMigrated(ctx context.Context, id int64) (int64, bool, error) {
	marker, err := p.source.GetMarker(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return 0, false, domain.WrapError(domain.ErrorCodeRecordNotFound, "subscription not found", err)
		}
		return 0, false, domain.WrapError(domain.ErrorCodeExtractionFailed, "failed to read migration marker", err)
	}
	if !marker.IsSet() {
		return 0, false, nil
	}

	exists, err := p.target.SubscriptionExists(ctx, marker.TargetID)
	if err != nil {
		return 0, false, domain.WrapError(domain.ErrorCodeInternalError, "failed to verify target subscription", err)
	}
	if !exists {
		p.logger.Warn("migration marker points at a missing target subscription, re-migrating",
			ports.Int64("subscription_id", id),
			ports.Int64("target_id", marker.TargetID))
		return 0, false, nil
	}
	return marker.TargetID, true, nil
}

func (p *Processor) buildTargetSubscription(ctx context.Context, sub *domain.SourceSubscription) (*domain.TargetSubscription, error) {
	if len(sub.Items) == 0 {
		return nil, domain.NewDomainError(domain.ErrorCodeExtractionFailed, "subscription has no line items").
			WithDetail("subscription_id", sub.ID)
	}
	first := sub.Items[0]
	planType := domain.PlanTypeFor(first.Virtual)

	plan := domain.BuildPlan(domain.BillingTerms{
		Period:      sub.BillingPeriod,
		Interval:    sub.BillingInterval,
		Length:      sub.BillingLength,
		TrialLength: sub.TrialLength,
		TrialPeriod: sub.TrialPeriod,
		Price:       sub.Total,
		SignupFee:   sub.SignupFee,
	}, planType)
	plan.RelationData = relationData(first)

	gatewayID, mode := p.resolveGateway(ctx, sub)

	created := timeutil.Now()
	if sub.CreatedAt != nil {
		created = sub.CreatedAt.UTC()
	}

	refs := make([]string, 0, len(sub.Items))
	for _, item := range sub.Items {
		if item.ProductID > 0 {
			refs = append(refs, strconv.FormatInt(item.ProductID, 10))
		}
	}

	record := &domain.TargetSubscription{
		SourceSubscriptionID: sub.ID,
		ParentOrderID:        sub.ParentOrderID,
		UserID:               sub.UserID,
		Status:               domain.MapSourceStatus(sub.Status),
		PlanType:             planType,
		Plan:                 plan,
		Gateway:              gatewayID,
		GatewayMode:          mode,
		Currency:             sub.Currency,
		Totals:               sub.Total,
		BaseTotals:           sub.Total,
		CreatedAt:            p.localUTC(created),
		NextPaymentAt:        p.optionalLocalUTC(sub.NextPaymentAt),
		EndAt:                p.optionalLocalUTC(sub.EndAt),
		SearchString:         searchString(sub),
		ProductRefs:          refs,
		Metadata:             p.metadata(sub, plan),
	}
	if sub.LastOrderCreatedAt != nil {
		last := timeutil.InLocation(*sub.LastOrderCreatedAt, p.location)
		record.LastPaymentAt = &last
	}
	return record, nil
}

// resolveGateway maps the source gateway and records a warning when the target cannot charge through it
func (p *Processor) resolveGateway(ctx context.Context, sub *domain.SourceSubscription) (string, domain.GatewayMode) {
	raw := sub.ResolvedGateway()
	if raw == "" {
		return gateway.Manual, domain.GatewayModeAutomatic
	}

	mapped, ok := p.mapper.Map(raw)
	if !ok {
		mapped = raw
	}
	if p.mapper.IsSupported(ctx, mapped) {
		return mapped, domain.GatewayModeAutomatic
	}

	title := sub.PaymentMethodTitle
	if title == "" {
		title = raw
	}
	p.state.AddError(ctx,
		fmt.Sprintf("Subscription #%d uses unsupported gateway \"%s\" (%s). This subscription will be migrated but may require manual payment method update.", sub.ID, raw, title),
		map[string]interface{}{
			"subscription_id": sub.ID,
			"gateway":         raw,
			"gateway_title":   sub.PaymentMethodTitle,
			"type":            "gateway_warning",
		})
	observability.RecordGatewayWarning(raw)
	return mapped, domain.GatewayModeManual
}

func (p *Processor) metadata(sub *domain.SourceSubscription, plan *domain.PlanDefinition) map[string]interface{} {
	meta := map[string]interface{}{
		"billing_frequency":   plan.BillingFrequency,
		"billing_interval":    int(plan.BillingInterval),
		"billing_length":      sub.BillingLength,
		"trial_length":        sub.TrialLength,
		"trial_period":        sub.TrialPeriod,
		"signup_fee":          sub.SignupFee.String(),
		"plan_data":           plan,
		"wcs_subscription_id": sub.ID,
	}

	for key, value := range sub.Meta {
		if value == "" || isExcludedMetaKey(key) {
			continue
		}
		if _, exists := meta[key]; !exists {
			meta[key] = value
		}
	}

	if billing := addressFields(sub.Billing); len(billing) > 0 {
		meta["billing_details"] = billing
	}
	if shipping := addressFields(sub.Shipping); len(shipping) > 0 {
		meta["shipping_details"] = shipping
	}
	if sub.PaymentMethodTitle != "" {
		meta["payment_method_title"] = sub.PaymentMethodTitle
	}
	if sub.TrialEndAt != nil {
		meta["trial_end_date"] = timeutil.InLocation(*sub.TrialEndAt, p.location).Format(timeutil.MySQLLayout)
		meta["trial_end_date_utc"] = sub.TrialEndAt.UTC().Format(timeutil.MySQLLayout)
	}

	if _, ok := gateway.PayPalBillingAgreementGateways[sub.ResolvedGateway()]; ok {
		agreement := sub.Meta[domain.MetaBillingAgreementID]
		if agreement == "" {
			agreement = sub.ParentOrderMeta[domain.MetaBillingAgreementID]
		}
		if agreement != "" {
			meta[domain.MetaPayPalSubscription] = agreement
		}
	}
	return meta
}

func (p *Processor) linkOrders(ctx context.Context, sub *domain.SourceSubscription, targetID int64) error {
	var links []domain.OrderLink
	if sub.ParentOrderID > 0 {
		links = append(links, domain.OrderLink{OrderID: sub.ParentOrderID})
	}

	renewals, err := p.source.ListRenewalOrderIDs(ctx, sub.ID)
	if err != nil {
		return fmt.Errorf("list renewal orders: %w", err)
	}
	for _, orderID := range renewals {
		links = append(links, domain.OrderLink{OrderID: orderID, Renewal: true})
	}

	if len(links) == 0 {
		return nil
	}
	return p.source.LinkOrders(ctx, targetID, links)
}

func (p *Processor) localUTC(t time.Time) domain.LocalUTCTime {
	return domain.LocalUTCTime{
		Local: timeutil.InLocation(t, p.location),
		UTC:   t.UTC(),
	}
}

func (p *Processor) optionalLocalUTC(t *time.Time) *domain.LocalUTCTime {
	if t == nil {
		return nil
	}
	v := p.localUTC(*t)
	return &v
}

func relationData(item domain.SourceLineItem) *domain.RelationData {
	sale := item.SalePrice
	if sale.IsZero() {
		sale = item.RegularPrice
	}
	return &domain.RelationData{
		RegularPrice: item.RegularPrice.String(),
		SalePrice:    sale.String(),
	}
}

func toTargetItem(item domain.SourceLineItem) domain.TargetLineItem {
	quantity := item.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	return domain.TargetLineItem{
		Name:        item.Name,
		TaxClass:    item.TaxClass,
		Subtotal:    item.Subtotal,
		Total:       item.Total,
		SubtotalTax: item.SubtotalTax,
		TotalTax:    item.TotalTax,
		ProductID:   item.ProductID,
		VariationID: item.VariationID,
		Quantity:    quantity,
	}
}

func addressFields(a domain.Address) map[string]string {
	fields := map[string]string{
		"first_name": a.FirstName,
		"last_name":  a.LastName,
		"company":    a.Company,
		"address_1":  a.Address1,
		"address_2":  a.Address2,
		"city":       a.City,
		"state":      a.State,
		"postcode":   a.Postcode,
		"country":    a.Country,
		"email":      a.Email,
		"phone":      a.Phone,
	}
	for k, v := range fields {
		if v == "" {
			delete(fields, k)
		}
	}
	return fields
}

// searchString is "display_name email #parent_order_number #subscription_id" without empty parts
func searchString(sub *domain.SourceSubscription) string {
	parts := make([]string, 0, 4)
	if sub.CustomerName != "" {
		parts = append(parts, sub.CustomerName)
	}
	if sub.CustomerEmail != "" {
		parts = append(parts, sub.CustomerEmail)
	}
	if sub.ParentOrderNumber != "" {
		parts = append(parts, "#"+sub.ParentOrderNumber)
	}
	parts = append(parts, "#"+strconv.FormatInt(sub.ID, 10))
	return strings.Join(parts, " ")
}
