package compliance_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/compliance"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/contracts"
)

func routingPath(route contracts.RouteType, provider contracts.Provider, prio contracts.Priority) contracts.RoutingPath {
	return contracts.RoutingPath{
		RouteType:     route,
		Provider:      provider,
		OperationType: contracts.OpStandardAnalysis,
		Priority:      prio,
	}
}

func newGate(t *testing.T, opts ...compliance.Option) *compliance.Gate {
	t.Helper()
	g, err := compliance.NewGate(opts...)
	require.NoError(t, err)
	return g
}

func TestValidateRoutingPathCompliance_KnownProviders(t *testing.T) {
	g := newGate(t)

	tests := []struct {
		provider  contracts.Provider
		score     int
		compliant bool
	}{
		{contracts.ProviderBedrock, 100, true},
		{contracts.ProviderMCP, 87, true},
		{contracts.ProviderGoogle, 87, true},
		{contracts.ProviderMeta, 75, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.provider), func(t *testing.T) {
			res := g.ValidateRoutingPathCompliance(routingPath(contracts.RouteIntegration, tt.provider, contracts.PriorityMedium), "cid-1")
			assert.Equal(t, tt.score, res.ComplianceScore)
			assert.Equal(t, tt.compliant, res.IsCompliant)
			assert.Equal(t, "cid-1", res.CorrelationID)
		})
	}
}

func TestValidateRoutingPathCompliance_UnknownProviderFloor(t *testing.T) {
	g := newGate(t)
	for _, hint := range []string{"acme", "", "openai-ish"} {
		res := g.ValidateRoutingPathCompliance(routingPath(contracts.RouteDirect, contracts.ParseProvider(hint), contracts.PriorityLow), "cid")
		assert.False(t, res.IsCompliant)
		assert.Equal(t, 0, res.ComplianceScore)
		assert.NotEmpty(t, res.Violations)
	}
}

func TestValidateRoutingPathCompliance_CriticalRequiresResidencyAndAudit(t *testing.T) {
	g := newGate(t)

	res := g.ValidateRoutingPathCompliance(routingPath(contracts.RouteDirect, contracts.ProviderGoogle, contracts.PriorityCritical), "cid")
	assert.False(t, res.IsCompliant)
	assert.Contains(t, res.Violations, "critical operations require EU data residency")

	res = g.ValidateRoutingPathCompliance(routingPath(contracts.RouteDirect, contracts.ProviderBedrock, contracts.PriorityCritical), "cid")
	assert.True(t, res.IsCompliant)
	assert.Empty(t, res.Violations)

	noAudit := false
	profiles, err := compliance.ApplyOverrides(compliance.DefaultProfiles(), map[string]compliance.ProfileOverride{
		"bedrock": {AuditLoggingEnabled: &noAudit},
	})
	require.NoError(t, err)
	g = newGate(t, compliance.WithProfiles(profiles))
	res = g.ValidateRoutingPathCompliance(routingPath(contracts.RouteDirect, contracts.ProviderBedrock, contracts.PriorityCritical), "cid")
	assert.False(t, res.IsCompliant)
	assert.Equal(t, 87, res.ComplianceScore)
	assert.Contains(t, res.Violations, "critical operations require audit logging")
}

func TestValidateRoutingPathCompliance_PassingScore(t *testing.T) {
	g := newGate(t, compliance.WithPassingScore(80))
	res := g.ValidateRoutingPathCompliance(routingPath(contracts.RouteIntegration, contracts.ProviderMeta, contracts.PriorityLow), "cid")
	assert.False(t, res.IsCompliant)
	assert.Contains(t, res.Violations, "compliance score 75 below passing score 80")

	_, err := compliance.NewGate(compliance.WithPassingScore(101))
	assert.Error(t, err)
}

func TestValidateBeforeRouting(t *testing.T) {
	g := newGate(t)

	d := g.ValidateBeforeRouting(routingPath(contracts.RouteIntegration, contracts.ParseProvider("definitely-not-a-provider"), contracts.PriorityMedium), "cid")
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "compliance")

	d = g.ValidateBeforeRouting(routingPath(contracts.RouteIntegration, contracts.ProviderMCP, contracts.PriorityMedium), "cid")
	assert.True(t, d.Allowed)
	assert.True(t, strings.Contains(d.Reason, "compliance"))
	assert.Equal(t, 87, d.Result.ComplianceScore)
}

func TestValidateRoutingPathCompliance_FreshResults(t *testing.T) {
	g := newGate(t)
	p := routingPath(contracts.RouteIntegration, contracts.ProviderMCP, contracts.PriorityMedium)
	a := g.ValidateRoutingPathCompliance(p, "a")
	b := g.ValidateRoutingPathCompliance(p, "b")
	a.Violations[0] = "mutated"
	assert.NotEqual(t, "mutated", b.Violations[0])
}

func TestApplyOverrides_RejectsUnknownProvider(t *testing.T) {
	yes := true
	_, err := compliance.ApplyOverrides(compliance.DefaultProfiles(), map[string]compliance.ProfileOverride{
		"acme": {AuditLoggingEnabled: &yes},
	})
	assert.Error(t, err)

	profiles, err := compliance.ApplyOverrides(compliance.DefaultProfiles(), map[string]compliance.ProfileOverride{
		"Gemini": {EUDataResidencyCompliant: &yes},
	})
	require.NoError(t, err)
	assert.Equal(t, 100, profiles[contracts.ProviderGoogle].Score())
}

func TestRecentViolationsWindow(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	g := newGate(t, compliance.WithClock(clock))
	bad := routingPath(contracts.RouteDirect, contracts.ParseProvider("acme"), contracts.PriorityHigh)

	g.ValidateRoutingPathCompliance(bad, "1")
	g.ValidateRoutingPathCompliance(bad, "2")
	g.ValidateRoutingPathCompliance(routingPath(contracts.RouteDirect, contracts.ProviderBedrock, contracts.PriorityHigh), "3")
	assert.Equal(t, 2, g.RecentViolations())

	now = now.Add(25 * time.Hour)
	g.ValidateRoutingPathCompliance(bad, "4")
	assert.Equal(t, 1, g.RecentViolations())
}

func TestProfileScoreBounds(t *testing.T) {
	var none compliance.Profile
	assert.Equal(t, 0, none.Score())
	assert.Len(t, none.Failed(), compliance.RubricSize)
	assert.Equal(t, 100, compliance.DefaultProfiles()[contracts.ProviderBedrock].Score())
}
