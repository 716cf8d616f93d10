package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/contracts"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ROUTER_ADDR", "")
	t.Setenv("ROUTER_LEDGER_STORE", "")
	t.Setenv("ROUTER_CHECKPOINT_INTERVAL", "")

	cfg := Load()
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "memory", cfg.LedgerStore)
	assert.Equal(t, 5*time.Second, cfg.CheckpointInterval)
	assert.Equal(t, 4096, cfg.AuditQueueSize)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("ROUTER_ADDR", ":9090")
	t.Setenv("ROUTER_LEDGER_STORE", "sqlite")
	t.Setenv("ROUTER_CHECKPOINT_INTERVAL", "250ms")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("ROUTER_RATE_LIMIT_RPS", "2.5")
	t.Setenv("OTEL_ENABLED", "true")

	cfg := Load()
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "sqlite", cfg.LedgerStore)
	assert.Equal(t, 250*time.Millisecond, cfg.CheckpointInterval)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.InDelta(t, 2.5, cfg.RateLimitRPS, 0.0001)
	assert.True(t, cfg.OTelEnabled)
}

func TestLoad_MalformedNumbersFallBack(t *testing.T) {
	t.Setenv("REDIS_DB", "three")
	t.Setenv("ROUTER_CHECKPOINT_INTERVAL", "soon")

	cfg := Load()
	assert.Equal(t, 0, cfg.RedisDB)
	assert.Equal(t, 5*time.Second, cfg.CheckpointInterval)
}

func TestDefaultPolicy_Valid(t *testing.T) {
	require.NoError(t, DefaultPolicy().Validate())
}

func TestLoadPolicy_EmptyPathYieldsDefaults(t *testing.T) {
	p, err := LoadPolicy("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy(), p)
}

const samplePolicy = `
version: 1.2.0
ledger:
  combined_budget_cents: 5000
  throttle_threshold_cents: 4000
  emergency_threshold_cents: 2500
routes:
  integration:
    provider: Google
    cost_cents: 3
    health_url: http://mcp.internal/health
throttle:
  rate_per_second: 2
  burst: 1
  min_delay: 100ms
  max_delay: 2s
compliance:
  passing_score: 80
  providers:
    meta:
      eu_data_residency_compliant: true
  rules:
    - name: no-meta-critical
      expression: '!(provider == "meta" && priority == "critical")'
      message: meta is not cleared for critical traffic
health:
  ttl: 1s
`

func TestLoadPolicy_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(samplePolicy), 0o600))

	p, err := LoadPolicy(path)
	require.NoError(t, err)

	assert.Equal(t, contracts.Cents(5000), p.Ledger.CombinedBudget)
	assert.Equal(t, 80, p.Compliance.PassingScore)
	assert.Equal(t, time.Second, p.Health.TTL)
	assert.Equal(t, 2*time.Second, p.Health.ProbeTimeout, "unset fields keep defaults")
	assert.Equal(t, 100*time.Millisecond, p.Throttle.MinDelay)
	require.Len(t, p.Compliance.Rules, 1)

	rc := p.RoutingConfig()
	assert.Equal(t, contracts.ProviderGoogle, rc.DefaultProviders[contracts.RouteIntegration])
	assert.Equal(t, contracts.Cents(3), rc.RouteCosts[contracts.RouteIntegration])
	assert.Equal(t, contracts.ProviderBedrock, rc.DefaultProviders[contracts.RouteDirect])
	assert.Equal(t, contracts.Cents(5), rc.RouteCosts[contracts.RouteDirect])

	assert.Equal(t, map[contracts.RouteType]string{
		contracts.RouteIntegration: "http://mcp.internal/health",
	}, p.HealthEndpoints())
}

func TestPolicy_NewGate(t *testing.T) {
	p, err := ParsePolicy([]byte(samplePolicy))
	require.NoError(t, err)

	gate, err := p.NewGate()
	require.NoError(t, err)

	// meta gains EU residency, but the rule still blocks critical traffic.
	path := contracts.RoutingPath{
		RouteType:     contracts.RouteIntegration,
		Provider:      contracts.ProviderMeta,
		OperationType: contracts.OpEmergency,
		Priority:      contracts.PriorityCritical,
	}
	d := gate.ValidateBeforeRouting(path, "c-1")
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "compliance")
}

func TestParsePolicy_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unsupported major", "version: 2.0.0\n"},
		{"bad version", "version: latest\n"},
		{"inverted thresholds", "ledger:\n  combined_budget_cents: 100\n  throttle_threshold_cents: 200\n  emergency_threshold_cents: 50\n"},
		{"unknown route", "routes:\n  sideways:\n    provider: mcp\n"},
		{"negative cost", "routes:\n  direct:\n    cost_cents: -1\n"},
		{"passing score", "compliance:\n  passing_score: 101\n"},
		{"unknown provider override", "compliance:\n  providers:\n    openai:\n      audit_logging_enabled: true\n"},
		{"malformed yaml", "ledger: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePolicy([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParsePolicy_VersionSentinel(t *testing.T) {
	_, err := ParsePolicy([]byte("version: 3.1.0\n"))
	assert.ErrorIs(t, err, ErrUnsupportedPolicyVersion)
}
