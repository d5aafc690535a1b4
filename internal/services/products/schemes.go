package products

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kevin07696/subscription-migrator/internal/domain"
)

// candidate is one legacy key and the parser that accepts its value
type candidate[T any] struct {
	parse func(string) (T, bool)
	key   string
}

// chain is an ordered list of candidates; the first key whose value parses wins
type chain[T any] []candidate[T]

func keys[T any](parse func(string) (T, bool), names ...string) chain[T] {
	c := make(chain[T], 0, len(names))
	for _, name := range names {
		c = append(c, candidate[T]{key: name, parse: parse})
	}
	return c
}

func (c chain[T]) lookup(meta map[string]string) (T, bool) {
	for _, cand := range c {
		raw, ok := meta[cand.key]
		if !ok {
			continue
		}
		if v, ok := cand.parse(raw); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

var (
	priceKeys = keys(parseDecimal,
		"_subscription_price", "subscription_price", "_price", "price", "regular_price")
	periodKeys = keys(parsePeriod,
		"_subscription_period", "subscription_period", "period", "billing_period")
	intervalKeys = keys(parsePositiveInt,
		"_subscription_period_interval", "subscription_period_interval", "interval", "billing_interval")
	lengthKeys = keys(parseNonNegativeInt,
		"_subscription_length", "subscription_length", "length")
	trialLengthKeys = keys(parseNonNegativeInt,
		"_subscription_trial_length", "subscription_trial_length", "trial_length")
	trialPeriodKeys = keys(parsePeriod,
		"_subscription_trial_period", "subscription_trial_period", "trial_period")
	signupFeeKeys = keys(parseDecimal,
		"_subscription_sign_up_fee", "subscription_sign_up_fee", "sign_up_fee", "signup_fee")
	discountKeys = keys(parseDecimal,
		"subscription_discount", "_subscription_discount", "discount")
	regularPriceKeys = keys(parseDecimal, "_regular_price", "regular_price")
	salePriceKeys    = keys(parseDecimal, "_sale_price", "sale_price")
)

func parseDecimal(raw string) (decimal.Decimal, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func parsePeriod(raw string) (string, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	return raw, domain.IsKnownPeriod(raw)
}

func parsePositiveInt(raw string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func parseNonNegativeInt(raw string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Scheme is one subscription-settings tuple extracted from a product
type Scheme struct {
	Terms        domain.BillingTerms
	RegularPrice decimal.Decimal
	SalePrice    decimal.Decimal
	VariationID  int64
}

// ExtractSchemes returns every valid pricing scheme of a product. A scheme needs a
// recognized period and a parseable price; anything else is dropped.
func ExtractSchemes(p *domain.SourceProduct, includeAttachable bool) []Scheme {
	var out []Scheme

	switch p.Type {
	case domain.ProductTypeSubscription:
		if s, ok := extractScheme(p.Meta, 0); ok {
			out = append(out, s)
		}
	case domain.ProductTypeVariableSubscription:
		for _, v := range p.Variations {
			if s, ok := extractScheme(layer(p.Meta, v.Meta), v.ID); ok {
				out = append(out, s)
			}
		}
	}

	if includeAttachable {
		for _, scheme := range p.AddonSchemes {
			if s, ok := extractScheme(layer(p.Meta, scheme), 0); ok {
				out = append(out, s)
			}
		}
	}

	return out
}

// layer returns base overlaid with top; keys in top win
func layer(base, top map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(top))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range top {
		merged[k] = v
	}
	return merged
}

func extractScheme(meta map[string]string, variationID int64) (Scheme, bool) {
	period, ok := periodKeys.lookup(meta)
	if !ok {
		return Scheme{}, false
	}
	price, ok := priceKeys.lookup(meta)
	if !ok {
		return Scheme{}, false
	}

	interval, ok := intervalKeys.lookup(meta)
	if !ok {
		interval = 1
	}
	length, _ := lengthKeys.lookup(meta)
	trialLength, _ := trialLengthKeys.lookup(meta)
	trialPeriod, _ := trialPeriodKeys.lookup(meta)
	signupFee, _ := signupFeeKeys.lookup(meta)
	discount, _ := discountKeys.lookup(meta)

	regular, ok := regularPriceKeys.lookup(meta)
	if !ok {
		regular = price
	}
	sale, ok := salePriceKeys.lookup(meta)
	if !ok || sale.IsZero() {
		sale = regular
	}

	return Scheme{
		VariationID: variationID,
		Terms: domain.BillingTerms{
			Period:      period,
			Interval:    interval,
			Length:      length,
			TrialLength: trialLength,
			TrialPeriod: trialPeriod,
			Price:       price,
			SignupFee:   signupFee,
			Discount:    discount,
		},
		RegularPrice: regular,
		SalePrice:    sale,
	}, true
}
