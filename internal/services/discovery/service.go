package discovery

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/kevin07696/subscription-migrator/internal/domain"
	"github.com/kevin07696/subscription-migrator/internal/domain/ports"
	"github.com/kevin07696/subscription-migrator/internal/services/gateway"
	"github.com/kevin07696/subscription-migrator/internal/services/readiness"
)

// gatewayReportStatuses are the statuses whose gateways can still be charged
var gatewayReportStatuses = []string{domain.SourceStatusActive, domain.SourceStatusPendingCancel}

// Service builds feasibility reports from the source and target catalogs.
// It never writes to either system.
type Service struct {
	source     ports.SourceCatalog
	target     ports.TargetCatalog
	logger     ports.Logger
	minVersion string
}

// NewService creates a discovery service
func NewService(source ports.SourceCatalog, target ports.TargetCatalog, logger ports.Logger, minVersion string) *Service {
	if minVersion == "" {
		minVersion = readiness.MinSourceVersion
	}
	return &Service{
		source:     source,
		target:     target,
		logger:     logger,
		minVersion: minVersion,
	}
}

// Discover gathers counts and gateway usage and evaluates readiness.
// Collaborator failures degrade to zero counts and are logged.
func (s *Service) Discover(ctx context.Context) *domain.FeasibilityReport {
	report := &domain.FeasibilityReport{
		SubscriptionCountsByStatus: map[string]int{},
		GatewayReport:              []domain.GatewaySummary{},
	}

	report.SourceStatus = s.sourceStatus(ctx)
	report.TargetActive = s.targetActive(ctx)

	if report.SourceStatus.Active {
		report.SubscriptionCount, report.SubscriptionCountsByStatus = s.subscriptionCounts(ctx)
		report.GatewayReport = s.gatewayReport(ctx)
		report.ProductCounts = s.productCounts(ctx)
	}

	report.Readiness = readiness.Evaluate(readiness.Input{
		Source:            report.SourceStatus,
		TargetActive:      report.TargetActive,
		Gateways:          report.GatewayReport,
		Products:          report.ProductCounts,
		SubscriptionCount: report.SubscriptionCount,
	})

	s.logger.Info("discovery completed",
		ports.String("readiness", string(report.Readiness.Status)),
		ports.Int("subscriptions", report.SubscriptionCount),
		ports.Int("products", report.ProductCounts.Total),
		ports.Int("gateways", len(report.GatewayReport)))

	return report
}

func (s *Service) sourceStatus(ctx context.Context) domain.SourceSystemStatus {
	status, err := s.source.SystemStatus(ctx)
	if err != nil {
		s.logger.Warn("failed to read source system status", ports.Err(err))
		return domain.SourceSystemStatus{}
	}
	status.Compatible = status.Active && status.Version != "" && readiness.VersionAtLeast(status.Version, s.minVersion)
	return status
}

func (s *Service) targetActive(ctx context.Context) bool {
	active, err := s.target.SystemActive(ctx)
	if err != nil {
		s.logger.Warn("failed to read target system status", ports.Err(err))
		return false
	}
	return active
}

func (s *Service) subscriptionCounts(ctx context.Context) (int, map[string]int) {
	byStatus := make(map[string]int, len(domain.KnownSourceStatuses))

	all, err := s.source.ListSubscriptionIDs(ctx, nil)
	if err != nil {
		s.logger.Warn("failed to count subscriptions", ports.Err(err))
		return 0, byStatus
	}

	for _, status := range domain.KnownSourceStatuses {
		ids, err := s.source.ListSubscriptionIDs(ctx, []string{status})
		if err != nil {
			s.logger.Warn("failed to count subscriptions by status",
				ports.String("status", status),
				ports.Err(err))
			continue
		}
		byStatus[status] = len(ids)
	}

	return len(all), byStatus
}

func (s *Service) gatewayReport(ctx context.Context) []domain.GatewaySummary {
	ids, err := s.source.ListSubscriptionIDs(ctx, gatewayReportStatuses)
	if err != nil {
		s.logger.Warn("failed to list subscriptions for gateway report", ports.Err(err))
		return []domain.GatewaySummary{}
	}

	counts := map[string]int{}
	titles := map[string]string{}
	for _, id := range ids {
		sub, err := s.source.GetSubscription(ctx, id)
		if err != nil {
			s.logger.Debug("skipping unreadable subscription in gateway report",
				ports.Int64("subscription_id", id),
				ports.Err(err))
			continue
		}
		gw := sub.ResolvedGateway()
		if gw == "" {
			continue
		}
		counts[gw]++
		if _, ok := titles[gw]; !ok && sub.PaymentMethod == gw && sub.PaymentMethodTitle != "" {
			titles[gw] = sub.PaymentMethodTitle
		}
	}

	report := make([]domain.GatewaySummary, 0, len(counts))
	for gw, count := range counts {
		title := titles[gw]
		if title == "" {
			title = HumanizeGatewayID(gw)
		}

		summary := domain.GatewaySummary{
			GatewayID:         gw,
			Title:             title,
			SubscriptionCount: count,
		}
		if target, ok := gateway.MapGateway(gw); ok {
			summary.Compatible = true
			summary.Message = fmt.Sprintf("Maps to Sublium gateway %s", target)
		} else {
			summary.Message = "Gateway is not supported by Sublium"
		}
		report = append(report, summary)
	}

	sort.Slice(report, func(i, j int) bool {
		if report[i].SubscriptionCount != report[j].SubscriptionCount {
			return report[i].SubscriptionCount > report[j].SubscriptionCount
		}
		return report[i].GatewayID < report[j].GatewayID
	})
	return report
}

func (s *Service) productCounts(ctx context.Context) domain.ProductCounts {
	var counts domain.ProductCounts

	counts.Simple = s.countProducts(ctx, domain.ProductTypeSubscription)
	counts.Variable = s.countProducts(ctx, domain.ProductTypeVariableSubscription)

	active, err := s.source.AttachableSchemesActive(ctx)
	if err != nil {
		s.logger.Warn("failed to check attachable schemes subsystem", ports.Err(err))
	}
	counts.AttachableAvail = active
	if active {
		n, err := s.source.CountAttachableProducts(ctx)
		if err != nil {
			s.logger.Warn("failed to count attachable products", ports.Err(err))
		}
		counts.Attachable = n
	}

	counts.Total = counts.Simple + counts.Variable + counts.Attachable
	return counts
}

func (s *Service) countProducts(ctx context.Context, productType string) int {
	n, err := s.source.CountProducts(ctx, productType)
	if err != nil {
		s.logger.Warn("failed to count products",
			ports.String("type", productType),
			ports.Err(err))
		return 0
	}
	return n
}

// HumanizeGatewayID turns "stripe_cc" into "Stripe Cc"
func HumanizeGatewayID(id string) string {
	return cases.Title(language.English).String(strings.NewReplacer("_", " ", "-", " ").Replace(id))
}
