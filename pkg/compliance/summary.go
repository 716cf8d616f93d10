package compliance

import (
	"context"

	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/contracts"
)

// ProviderStatus is one provider's line in the summary.
type ProviderStatus struct {
	Provider  contracts.Provider `json:"provider"`
	Compliant bool               `json:"compliant"`
	Score     int                `json:"score"`
}

// Summary is the dashboard view of compliance.
type Summary struct {
	OverallCompliance int              `json:"overall_compliance"`
	Providers         []ProviderStatus `json:"providers"`
	RecentViolations  int              `json:"recent_violations"`
	PendingActions    int              `json:"pending_actions"`
}

// HomeRoute is the route a provider normally serves.
func HomeRoute(p contracts.Provider) contracts.RouteType {
	if p == contracts.ProviderBedrock {
		return contracts.RouteDirect
	}
	return contracts.RouteIntegration
}

// GetComplianceSummary scores every known provider on its home route at
// medium priority and folds in the pending actions of a fresh report.
func (g *Gate) GetComplianceSummary(ctx context.Context) (*Summary, error) {
	report, err := g.GenerateHybridComplianceReport(ctx)
	if err != nil {
		return nil, err
	}

	s := &Summary{
		Providers:        make([]ProviderStatus, 0, len(contracts.KnownProviders)),
		RecentViolations: g.RecentViolations(),
		PendingActions:   len(report.NextActions),
	}
	total := 0
	for _, p := range contracts.KnownProviders {
		route := HomeRoute(p)
		op := contracts.OpStandardAnalysis
		if route == contracts.RouteDirect {
			op = contracts.OpImplementation
		}
		res := g.evaluate(contracts.RoutingPath{
			RouteType:     route,
			Provider:      p,
			OperationType: op,
			Priority:      contracts.PriorityMedium,
		}, report.ReportID)
		s.Providers = append(s.Providers, ProviderStatus{Provider: p, Compliant: res.IsCompliant, Score: res.ComplianceScore})
		total += res.ComplianceScore
	}
	if n := len(s.Providers); n > 0 {
		s.OverallCompliance = total / n
	}
	return s, nil
}
