package products

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kevin07696/subscription-migrator/internal/domain"
	"github.com/kevin07696/subscription-migrator/internal/domain/ports"
	"github.com/kevin07696/subscription-migrator/internal/services/state"
	"github.com/kevin07696/subscription-migrator/pkg/observability"
)

// DefaultBatchSize is the number of products handled per batch
const DefaultBatchSize = 50

// Processor converts source subscription products into target plans
type Processor struct {
	source    ports.SourceCatalog
	target    ports.TargetCatalog
	state     *state.Store
	logger    ports.Logger
	batchSize int
}

// NewProcessor creates a products pipeline processor
func NewProcessor(
	source ports.SourceCatalog,
	target ports.TargetCatalog,
	store *state.Store,
	logger ports.Logger,
	batchSize int,
) *Processor {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Processor{
		source:    source,
		target:    target,
		state:     store,
		logger:    logger,
		batchSize: batchSize,
	}
}

// BatchSize returns the configured batch size
func (p *Processor) BatchSize() int {
	return p.batchSize
}

// ProcessBatch migrates up to one batch of products starting at offset
func (p *Processor) ProcessBatch(ctx context.Context, offset int) domain.BatchResult {
	start := time.Now()

	current, err := p.state.Get(ctx)
	if err != nil {
		p.logger.Error("failed to read migration state", ports.Err(err))
		return domain.BatchResult{Message: err.Error()}
	}
	if current.Status == domain.MigrationStatusPaused {
		observability.RecordBatch("products", "paused", time.Since(start).Seconds())
		return domain.PausedBatchResult()
	}

	includeAttachable, err := p.source.AttachableSchemesActive(ctx)
	if err != nil {
		p.logger.Warn("failed to check attachable schemes subsystem", ports.Err(err))
		includeAttachable = false
	}

	ids, err := p.source.ListEligibleProductIDs(ctx, includeAttachable, offset, p.batchSize)
	if err != nil {
		p.logger.Error("failed to list products", ports.Int("offset", offset), ports.Err(err))
		p.state.AddError(ctx, "Failed to fetch products batch", map[string]interface{}{
			"offset": offset,
			"error":  err.Error(),
		})
		observability.RecordBatch("products", "failed", time.Since(start).Seconds())
		return domain.BatchResult{Message: err.Error()}
	}

	var result domain.BatchResult
	var lastID int64
	for _, id := range ids {
		result.Processed++
		lastID = id

		plans, err := p.migrateProduct(ctx, id, includeAttachable)
		if err != nil {
			result.Failed++
			p.logger.Warn("product migration failed",
				ports.Int64("product_id", id),
				ports.Err(err))
			p.state.AddError(ctx, fmt.Sprintf("Product #%d: %s", id, errorMessage(err)), map[string]interface{}{
				"product_id": id,
				"code":       string(domain.GetErrorCode(err)),
			})
			continue
		}
		result.Created += plans
	}

	if err := p.state.AddProductsProgress(ctx, domain.ProductsDelta{
		Processed:     result.Processed,
		Created:       result.Created,
		Failed:        result.Failed,
		LastProductID: lastID,
	}); err != nil {
		p.logger.Error("failed to persist products progress", ports.Err(err))
	}

	result.CompleteBatch(len(ids), offset, p.batchSize)

	outcome := "exhausted"
	if result.HasMore {
		outcome = "more"
	}
	observability.RecordBatch("products", outcome, time.Since(start).Seconds())
	observability.RecordRecords("products", result.Created, 0, result.Failed)

	p.logger.Info("products batch processed",
		ports.Int("offset", offset),
		ports.Int("processed", result.Processed),
		ports.Int("created", result.Created),
		ports.Int("failed", result.Failed),
		ports.Bool("has_more", result.HasMore))

	return result
}

// migrateProduct creates or reuses one plan per pricing scheme and returns how many plans it bound
func (p *Processor) migrateProduct(ctx context.Context, productID int64, includeAttachable bool) (int, error) {
	product, err := p.source.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return 0, domain.WrapError(domain.ErrorCodeRecordNotFound, "product not found", err)
		}
		return 0, domain.WrapError(domain.ErrorCodeExtractionFailed, "failed to load product", err)
	}

	schemes := ExtractSchemes(product, includeAttachable)
	if len(schemes) == 0 {
		return 0, domain.NewDomainError(domain.ErrorCodeNoPricingSchemes, "no valid pricing schemes found").
			WithDetail("product_id", productID)
	}

	planType := domain.PlanTypeFor(product.Virtual)
	var group *domain.PlanGroup
	bound := 0
	var lastErr error

	for _, scheme := range schemes {
		plan := domain.BuildPlan(scheme.Terms, planType)
		plan.RelationData = &domain.RelationData{
			RegularPrice: scheme.RegularPrice.String(),
			SalePrice:    scheme.SalePrice.String(),
		}

		matched, err := p.findMatchingPlan(ctx, product.ID, scheme.VariationID, plan)
		if err != nil {
			lastErr = err
			continue
		}
		if matched != nil {
			p.logger.Debug("reusing existing plan",
				ports.Int64("product_id", product.ID),
				ports.Int64("plan_id", matched.ID))
			bound++
			continue
		}

		if group == nil {
			group, err = p.planGroup(ctx, product, planType)
			if err != nil {
				lastErr = err
				continue
			}
		}
		plan.GroupID = group.ID

		planID, err := p.target.CreatePlan(ctx, plan)
		if err != nil {
			lastErr = fmt.Errorf("create plan: %w", err)
			continue
		}
		if _, err := p.target.CreatePlanRelation(ctx, &domain.PlanRelation{
			PlanID:      planID,
			ProductID:   product.ID,
			VariationID: scheme.VariationID,
			Type:        planType,
			Status:      1,
		}); err != nil {
			lastErr = fmt.Errorf("create plan relation: %w", err)
			continue
		}
		bound++
	}

	if bound == 0 {
		return 0, domain.WrapError(domain.ErrorCodePlanCreationFailed, "plan creation failed for every pricing scheme", lastErr)
	}
	if lastErr != nil {
		p.logger.Warn("some pricing schemes could not be migrated",
			ports.Int64("product_id", product.ID),
			ports.Int("bound", bound),
			ports.Int("schemes", len(schemes)),
			ports.Err(lastErr))
	}
	return bound, nil
}

func (p *Processor) findMatchingPlan(ctx context.Context, productID, variationID int64, candidate *domain.PlanDefinition) (*domain.PlanDefinition, error) {
	relations, err := p.target.ListPlanRelations(ctx, productID, variationID)
	if err != nil {
		return nil, fmt.Errorf("list plan relations: %w", err)
	}
	for _, rel := range relations {
		plan, err := p.target.GetPlan(ctx, rel.PlanID)
		if errors.Is(err, domain.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get plan %d: %w", rel.PlanID, err)
		}
		if plan.Type == candidate.Type && plan.Matches(candidate) {
			return plan, nil
		}
	}
	return nil, nil
}

func (p *Processor) planGroup(ctx context.Context, product *domain.SourceProduct, planType domain.PlanType) (*domain.PlanGroup, error) {
	group, err := p.target.FindPlanGroup(ctx, product.ID, planType)
	if err != nil {
		return nil, fmt.Errorf("find plan group: %w", err)
	}
	if group != nil {
		return group, nil
	}

	group = &domain.PlanGroup{
		Title:     fmt.Sprintf("%s Plans", product.Name),
		ProductID: product.ID,
		Type:      planType,
	}
	id, err := p.target.CreatePlanGroup(ctx, group)
	if err != nil {
		return nil, fmt.Errorf("create plan group: %w", err)
	}
	group.ID = id
	return group, nil
}

func errorMessage(err error) string {
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		if domainErr.Err != nil {
			return fmt.Sprintf("%s: %v", domainErr.Message, domainErr.Err)
		}
		return domainErr.Message
	}
	return err.Error()
}
