package readiness

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kevin07696/subscription-migrator/internal/domain"
)

// MinSourceVersion is the lowest source version known to migrate cleanly
const MinSourceVersion = "2.0.0"

// Input is everything the evaluator needs to reach a verdict
type Input struct {
	Source            domain.SourceSystemStatus
	Gateways          []domain.GatewaySummary
	Products          domain.ProductCounts
	SubscriptionCount int
	TargetActive      bool
}

// Evaluate returns the readiness verdict. The first matching rule wins.
func Evaluate(in Input) domain.Readiness {
	if !in.Source.Active {
		return domain.Readiness{
			Status:  domain.ReadinessBlocked,
			Message: "WooCommerce Subscriptions plugin is not active",
		}
	}

	if !in.Source.Compatible && in.Source.Version != "" {
		return domain.Readiness{
			Status:  domain.ReadinessPartial,
			Message: fmt.Sprintf("WooCommerce Subscriptions version %s may not be fully compatible. Proceed with caution.", in.Source.Version),
		}
	}

	if !in.TargetActive {
		return domain.Readiness{
			Status:  domain.ReadinessBlocked,
			Message: "Sublium plugin is not active",
		}
	}

	incompatible := 0
	for _, g := range in.Gateways {
		if !g.Compatible {
			incompatible++
		}
	}
	if incompatible > 0 {
		return domain.Readiness{
			Status:  domain.ReadinessPartial,
			Message: fmt.Sprintf("%d gateway(s) are not compatible with Sublium", incompatible),
		}
	}

	if in.SubscriptionCount == 0 && in.Products.Total == 0 {
		return domain.Readiness{
			Status:  domain.ReadinessFeasible,
			Message: "no data to migrate",
		}
	}

	return domain.Readiness{
		Status:  domain.ReadinessFeasible,
		Message: "Migration is ready to proceed",
	}
}

// VersionAtLeast compares dotted numeric versions. Non-numeric suffixes such as "-beta" are ignored.
func VersionAtLeast(version, minimum string) bool {
	v := parseVersion(version)
	m := parseVersion(minimum)
	for i := 0; i < len(v) || i < len(m); i++ {
		var a, b int
		if i < len(v) {
			a = v[i]
		}
		if i < len(m) {
			b = m[i]
		}
		if a != b {
			return a > b
		}
	}
	return true
}

func parseVersion(version string) []int {
	version = strings.TrimPrefix(strings.TrimSpace(version), "v")
	if i := strings.IndexAny(version, "-+ "); i >= 0 {
		version = version[:i]
	}
	parts := strings.Split(version, ".")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			break
		}
		out = append(out, n)
	}
	return out
}
