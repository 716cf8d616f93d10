// Package compliance scores routing paths against a fixed eight-check
// rubric and gates routing on the result.
package compliance

import (
	"fmt"

	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/contracts"
)

// RubricSize is the number of boolean sub-checks in the rubric.
const RubricSize = 8

// DefaultPassingScore is the minimum score a known provider needs.
const DefaultPassingScore = 75

// DataProcessing holds the data-protection half of the rubric.
type DataProcessing struct {
	LawfulBasisDocumented       bool `json:"lawful_basis_documented" yaml:"lawful_basis_documented"`
	PurposeLimitationEnforced   bool `json:"purpose_limitation_enforced" yaml:"purpose_limitation_enforced"`
	DataMinimizationImplemented bool `json:"data_minimization_implemented" yaml:"data_minimization_implemented"`
	EUDataResidencyCompliant    bool `json:"eu_data_residency_compliant" yaml:"eu_data_residency_compliant"`
}

// AuditTrail holds the traceability half of the rubric.
type AuditTrail struct {
	AuditLoggingEnabled      bool `json:"audit_logging_enabled" yaml:"audit_logging_enabled"`
	CorrelationIDTracking    bool `json:"correlation_id_tracking" yaml:"correlation_id_tracking"`
	RoutingPathLogged        bool `json:"routing_path_logged" yaml:"routing_path_logged"`
	IntegrityCheckingEnabled bool `json:"integrity_checking_enabled" yaml:"integrity_checking_enabled"`
}

// Profile is the rubric outcome for one provider.
type Profile struct {
	DataProcessing DataProcessing `json:"data_processing" yaml:"data_processing"`
	AuditTrail     AuditTrail     `json:"audit_trail" yaml:"audit_trail"`
}

// ProfileOverride replaces individual checks of a known provider's profile.
// Nil fields keep the default.
type ProfileOverride struct {
	LawfulBasisDocumented       *bool `yaml:"lawful_basis_documented"`
	PurposeLimitationEnforced   *bool `yaml:"purpose_limitation_enforced"`
	DataMinimizationImplemented *bool `yaml:"data_minimization_implemented"`
	EUDataResidencyCompliant    *bool `yaml:"eu_data_residency_compliant"`
	AuditLoggingEnabled         *bool `yaml:"audit_logging_enabled"`
	CorrelationIDTracking       *bool `yaml:"correlation_id_tracking"`
	RoutingPathLogged           *bool `yaml:"routing_path_logged"`
	IntegrityCheckingEnabled    *bool `yaml:"integrity_checking_enabled"`
}

// Apply returns p with the non-nil fields of o applied.
func (p Profile) Apply(o ProfileOverride) Profile {
	set := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	set(&p.DataProcessing.LawfulBasisDocumented, o.LawfulBasisDocumented)
	set(&p.DataProcessing.PurposeLimitationEnforced, o.PurposeLimitationEnforced)
	set(&p.DataProcessing.DataMinimizationImplemented, o.DataMinimizationImplemented)
	set(&p.DataProcessing.EUDataResidencyCompliant, o.EUDataResidencyCompliant)
	set(&p.AuditTrail.AuditLoggingEnabled, o.AuditLoggingEnabled)
	set(&p.AuditTrail.CorrelationIDTracking, o.CorrelationIDTracking)
	set(&p.AuditTrail.RoutingPathLogged, o.RoutingPathLogged)
	set(&p.AuditTrail.IntegrityCheckingEnabled, o.IntegrityCheckingEnabled)
	return p
}

// check is one rubric entry in evaluation order.
type check struct {
	passed    bool
	violation string
}

func (p Profile) checks() [RubricSize]check {
	dp, at := p.DataProcessing, p.AuditTrail
	return [RubricSize]check{
		{dp.LawfulBasisDocumented, "lawful basis for processing not documented"},
		{dp.PurposeLimitationEnforced, "purpose limitation not enforced"},
		{dp.DataMinimizationImplemented, "data minimization not implemented"},
		{dp.EUDataResidencyCompliant, "EU data residency not guaranteed"},
		{at.AuditLoggingEnabled, "audit logging disabled"},
		{at.CorrelationIDTracking, "correlation id tracking disabled"},
		{at.RoutingPathLogged, "routing path not logged"},
		{at.IntegrityCheckingEnabled, "integrity checking disabled"},
	}
}

// Score is the share of passed checks, 0..100. Every check carries equal
// weight, so enabling a check never lowers the score.
func (p Profile) Score() int {
	passed := 0
	for _, c := range p.checks() {
		if c.passed {
			passed++
		}
	}
	return passed * 100 / RubricSize
}

// Failed lists the violations of the failed checks in rubric order.
func (p Profile) Failed() []string {
	var out []string
	for _, c := range p.checks() {
		if !c.passed {
			out = append(out, c.violation)
		}
	}
	return out
}

// DefaultProfiles returns the built-in rubric outcome per known provider.
func DefaultProfiles() map[contracts.Provider]Profile {
	all := Profile{
		DataProcessing: DataProcessing{true, true, true, true},
		AuditTrail:     AuditTrail{true, true, true, true},
	}

	mcp := all
	mcp.AuditTrail.IntegrityCheckingEnabled = false

	google := all
	google.DataProcessing.EUDataResidencyCompliant = false

	meta := all
	meta.DataProcessing.EUDataResidencyCompliant = false
	meta.DataProcessing.DataMinimizationImplemented = false

	return map[contracts.Provider]Profile{
		contracts.ProviderBedrock: all,
		contracts.ProviderMCP:     mcp,
		contracts.ProviderGoogle:  google,
		contracts.ProviderMeta:    meta,
	}
}

// ApplyOverrides merges overrides into profiles. Overrides for providers
// outside the known set are rejected: an unknown provider must stay at
// score zero.
func ApplyOverrides(profiles map[contracts.Provider]Profile, overrides map[string]ProfileOverride) (map[contracts.Provider]Profile, error) {
	out := make(map[contracts.Provider]Profile, len(profiles))
	for k, v := range profiles {
		out[k] = v
	}
	for name, o := range overrides {
		p := contracts.ParseProvider(name)
		base, ok := out[p]
		if !p.Known() || !ok {
			return nil, fmt.Errorf("compliance: override for unknown provider %q", name)
		}
		out[p] = base.Apply(o)
	}
	return out, nil
}
