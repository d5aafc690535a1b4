package fixtures

import "github.com/kevin07696/subscription-migrator/internal/domain"

// ProductBuilder provides fluent API for building source products.
type ProductBuilder struct {
	product *domain.SourceProduct
}

// NewSimpleProduct creates a virtual monthly subscription product priced at 10.
func NewSimpleProduct(id int64) *ProductBuilder {
	return &ProductBuilder{
		product: &domain.SourceProduct{
			ID:      id,
			Name:    "Product",
			Type:    domain.ProductTypeSubscription,
			Virtual: true,
			Meta: map[string]string{
				"_subscription_price":           "10",
				"_subscription_period":          "month",
				"_subscription_period_interval": "1",
			},
		},
	}
}

// NewAttachableProduct creates a physical product with no schemes attached yet.
func NewAttachableProduct(id int64) *ProductBuilder {
	return &ProductBuilder{
		product: &domain.SourceProduct{
			ID:            id,
			Name:          "Bundle",
			Type:          "simple",
			HasAddonPlans: true,
			Meta:          map[string]string{},
		},
	}
}

func (b *ProductBuilder) WithName(name string) *ProductBuilder {
	b.product.Name = name
	return b
}

func (b *ProductBuilder) WithMeta(key, value string) *ProductBuilder {
	b.product.Meta[key] = value
	return b
}

func (b *ProductBuilder) WithoutMeta(key string) *ProductBuilder {
	delete(b.product.Meta, key)
	return b
}

func (b *ProductBuilder) Physical() *ProductBuilder {
	b.product.Virtual = false
	return b
}

func (b *ProductBuilder) WithScheme(scheme map[string]string) *ProductBuilder {
	b.product.AddonSchemes = append(b.product.AddonSchemes, scheme)
	return b
}

func (b *ProductBuilder) WithVariation(id int64, meta map[string]string) *ProductBuilder {
	b.product.Type = domain.ProductTypeVariableSubscription
	b.product.Variations = append(b.product.Variations, domain.SourceProductVariation{ID: id, Meta: meta})
	return b
}

func (b *ProductBuilder) Build() *domain.SourceProduct {
	return b.product
}
