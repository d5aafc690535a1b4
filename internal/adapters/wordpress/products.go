package wordpress

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/kevin07696/subscription-migrator/internal/domain"
)

var subscriptionProductTypes = []string{domain.ProductTypeSubscription, domain.ProductTypeVariableSubscription}

type productPost struct {
	ID        int64 `gorm:"column:ID"`
	PostTitle string
}

// typedProducts is a subquery selecting product IDs whose product_type term is one of slugs
func (c *SourceCatalog) typedProducts(ctx context.Context, slugs []string) *gorm.DB {
	return c.db.WithContext(ctx).Table(c.t("term_relationships")+" AS tr").
		Select("tr.object_id").
		Joins("JOIN "+c.t("term_taxonomy")+" AS tt ON tt.term_taxonomy_id = tr.term_taxonomy_id").
		Joins("JOIN "+c.t("terms")+" AS te ON te.term_id = tt.term_id").
		Where("tt.taxonomy = ? AND te.slug IN ?", "product_type", slugs)
}

// attachableCondition matches products carrying a non-empty attachable schemes list
func (c *SourceCatalog) attachableCondition() string {
	return "EXISTS (SELECT 1 FROM " + c.t("postmeta") + " AS am WHERE am.post_id = p.ID AND am.meta_key = '" +
		metaAttachableSchemes + "' AND am.meta_value NOT IN ('', 'a:0:{}'))"
}

func (c *SourceCatalog) publishedProducts(ctx context.Context) *gorm.DB {
	return c.db.WithContext(ctx).Table(c.t("posts")+" AS p").
		Where("p.post_type = ? AND p.post_status = ?", postTypeProduct, "publish")
}

func (c *SourceCatalog) CountProducts(ctx context.Context, productType string) (int, error) {
	var n int64
	err := c.publishedProducts(ctx).
		Where("p.ID IN (?)", c.typedProducts(ctx, []string{productType})).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count %s products: %w", productType, err)
	}
	return int(n), nil
}

func (c *SourceCatalog) CountAttachableProducts(ctx context.Context) (int, error) {
	var n int64
	err := c.publishedProducts(ctx).
		Where(c.attachableCondition()).
		Where("p.ID NOT IN (?)", c.typedProducts(ctx, subscriptionProductTypes)).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count attachable products: %w", err)
	}
	return int(n), nil
}

func (c *SourceCatalog) ListEligibleProductIDs(ctx context.Context, includeAttachable bool, offset, limit int) ([]int64, error) {
	q := c.publishedProducts(ctx)
	subscriptions := c.typedProducts(ctx, subscriptionProductTypes)
	if includeAttachable {
		q = q.Where("(p.ID IN (?) OR "+c.attachableCondition()+")", subscriptions)
	} else {
		q = q.Where("p.ID IN (?)", subscriptions)
	}

	var ids []int64
	err := q.Order("p.ID").Offset(offset).Limit(limit).Pluck("p.ID", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list eligible products: %w", err)
	}
	return ids, nil
}

func (c *SourceCatalog) GetProduct(ctx context.Context, id int64) (*domain.SourceProduct, error) {
	var post productPost
	err := c.db.WithContext(ctx).Table(c.t("posts")).
		Select("ID, post_title").
		Where("ID = ? AND post_type = ?", id, postTypeProduct).
		Take(&post).Error
	if err != nil {
		return nil, notFound(err)
	}

	productType, err := c.productType(ctx, id)
	if err != nil {
		return nil, err
	}
	meta, err := c.postMeta(ctx, id)
	if err != nil {
		return nil, err
	}

	product := &domain.SourceProduct{
		ID:           id,
		Name:         post.PostTitle,
		Type:         productType,
		Meta:         meta,
		Virtual:      meta["_virtual"] == "yes",
		AddonSchemes: decodeSchemes(meta[metaAttachableSchemes]),
	}
	product.HasAddonPlans = len(product.AddonSchemes) > 0

	if productType == domain.ProductTypeVariableSubscription {
		if product.Variations, err = c.variations(ctx, id); err != nil {
			return nil, err
		}
	}
	return product, nil
}

func (c *SourceCatalog) productType(ctx context.Context, id int64) (string, error) {
	var slugs []string
	err := c.db.WithContext(ctx).Table(c.t("term_relationships")+" AS tr").
		Joins("JOIN "+c.t("term_taxonomy")+" AS tt ON tt.term_taxonomy_id = tr.term_taxonomy_id").
		Joins("JOIN "+c.t("terms")+" AS te ON te.term_id = tt.term_id").
		Where("tr.object_id = ? AND tt.taxonomy = ?", id, "product_type").
		Limit(1).
		Pluck("te.slug", &slugs).Error
	if err != nil {
		return "", fmt.Errorf("read product type of %d: %w", id, err)
	}
	if len(slugs) == 0 {
		return "simple", nil
	}
	return slugs[0], nil
}

func (c *SourceCatalog) variations(ctx context.Context, productID int64) ([]domain.SourceProductVariation, error) {
	var ids []int64
	err := c.db.WithContext(ctx).Table(c.t("posts")).
		Where("post_type = ? AND post_parent = ? AND post_status IN ?", postTypeVariation, productID, []string{"publish", "private"}).
		Order("menu_order, ID").
		Pluck("ID", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list variations of product %d: %w", productID, err)
	}

	meta, err := c.metaFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]domain.SourceProductVariation, 0, len(ids))
	for _, vid := range ids {
		out = append(out, domain.SourceProductVariation{ID: vid, Meta: meta[vid]})
	}
	return out, nil
}
