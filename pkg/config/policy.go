package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/compliance"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/contracts"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/ledger"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/routing"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/throttle"
)

// SupportedPolicyVersions is the semver range of policy files this build reads.
const SupportedPolicyVersions = ">= 1.0.0, < 2.0.0"

// ErrUnsupportedPolicyVersion is returned for policy files outside SupportedPolicyVersions.
var ErrUnsupportedPolicyVersion = errors.New("config: unsupported policy version")

// RouteSettings configures one execution path. Zero fields keep the
// built-in value.
type RouteSettings struct {
	Provider  string          `yaml:"provider"`
	CostCents contracts.Cents `yaml:"cost_cents"`
	HealthURL string          `yaml:"health_url,omitempty"`
}

// ComplianceSettings configures the compliance gate.
type ComplianceSettings struct {
	PassingScore int                                   `yaml:"passing_score"`
	Providers    map[string]compliance.ProfileOverride `yaml:"providers,omitempty"`
	Rules        []compliance.Rule                     `yaml:"rules,omitempty"`
}

// HealthSettings configures route health caching and probing.
type HealthSettings struct {
	TTL          time.Duration `yaml:"ttl"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

// Policy is the routing policy file.
type Policy struct {
	Version    string                   `yaml:"version"`
	Ledger     ledger.Config            `yaml:"ledger"`
	Routes     map[string]RouteSettings `yaml:"routes"`
	Throttle   throttle.Config          `yaml:"throttle"`
	Compliance ComplianceSettings       `yaml:"compliance"`
	Health     HealthSettings           `yaml:"health"`
}

// DefaultPolicy returns the built-in policy.
func DefaultPolicy() *Policy {
	return &Policy{
		Version: "1.0.0",
		Ledger: ledger.Config{
			CombinedBudget:     100000,
			ThrottleThreshold:  80000,
			EmergencyThreshold: 60000,
		},
		Routes: map[string]RouteSettings{
			string(contracts.RouteDirect):      {Provider: string(contracts.ProviderBedrock), CostCents: 5},
			string(contracts.RouteIntegration): {Provider: string(contracts.ProviderMCP), CostCents: 2},
		},
		Throttle: throttle.DefaultConfig(),
		Compliance: ComplianceSettings{
			PassingScore: compliance.DefaultPassingScore,
		},
		Health: HealthSettings{
			TTL:          5 * time.Second,
			ProbeTimeout: 2 * time.Second,
		},
	}
}

// LoadPolicy reads the policy file at path. An empty path yields the defaults.
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy %s: %w", path, err)
	}
	p, err := ParsePolicy(data)
	if err != nil {
		return nil, fmt.Errorf("policy %s: %w", path, err)
	}
	return p, nil
}

// ParsePolicy decodes YAML over the defaults and validates the result.
func ParsePolicy(data []byte) (*Policy, error) {
	p := DefaultPolicy()
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks version, thresholds, routes and compliance settings.
func (p *Policy) Validate() error {
	v, err := semver.NewVersion(p.Version)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrUnsupportedPolicyVersion, p.Version, err)
	}
	constraint, err := semver.NewConstraint(SupportedPolicyVersions)
	if err != nil {
		return err
	}
	if !constraint.Check(v) {
		return fmt.Errorf("%w: %s not in %s", ErrUnsupportedPolicyVersion, v, SupportedPolicyVersions)
	}

	if err := p.Ledger.Validate(); err != nil {
		return err
	}
	for name, rs := range p.Routes {
		if !contracts.RouteType(name).Valid() {
			return fmt.Errorf("config: unknown route %q", name)
		}
		if rs.CostCents < 0 {
			return fmt.Errorf("config: route %s has negative cost", name)
		}
	}
	if s := p.Compliance.PassingScore; s < 0 || s > 100 {
		return fmt.Errorf("config: passing score %d out of range 0..100", s)
	}
	if _, err := compliance.ApplyOverrides(compliance.DefaultProfiles(), p.Compliance.Providers); err != nil {
		return err
	}
	return nil
}

// RoutingConfig derives the engine config.
func (p *Policy) RoutingConfig() routing.Config {
	cfg := routing.DefaultConfig()
	for name, rs := range p.Routes {
		route := contracts.RouteType(name)
		if rs.Provider != "" {
			cfg.DefaultProviders[route] = contracts.ParseProvider(rs.Provider)
		}
		if rs.CostCents > 0 {
			cfg.RouteCosts[route] = rs.CostCents
		}
	}
	return cfg
}

// HealthEndpoints lists the probe URL per route, if any.
func (p *Policy) HealthEndpoints() map[contracts.RouteType]string {
	out := make(map[contracts.RouteType]string)
	for name, rs := range p.Routes {
		if rs.HealthURL != "" {
			out[contracts.RouteType(name)] = rs.HealthURL
		}
	}
	return out
}

// NewGate builds the compliance gate described by the policy.
func (p *Policy) NewGate(opts ...compliance.Option) (*compliance.Gate, error) {
	profiles, err := compliance.ApplyOverrides(compliance.DefaultProfiles(), p.Compliance.Providers)
	if err != nil {
		return nil, err
	}
	rules, err := compliance.CompileRules(p.Compliance.Rules)
	if err != nil {
		return nil, err
	}
	all := append([]compliance.Option{
		compliance.WithProfiles(profiles),
		compliance.WithPassingScore(p.Compliance.PassingScore),
		compliance.WithRules(rules),
	}, opts...)
	return compliance.NewGate(all...)
}
