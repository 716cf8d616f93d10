package compliance

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"

	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/contracts"
)

// ActionScope names which path a next action applies to.
type ActionScope string

const (
	ScopeDirect      ActionScope = "direct"
	ScopeIntegration ActionScope = "integration"
	ScopeBoth        ActionScope = "both"
)

// CrossPath compares the two paths field by field.
type CrossPath struct {
	DataConsistency        bool `json:"data_consistency"`
	AuditTrailContinuity   bool `json:"audit_trail_continuity"`
	ConsentPropagation     bool `json:"consent_propagation"`
	PIIHandlingConsistency bool `json:"pii_handling_consistency"`
}

// NextAction is a dated remediation item.
type NextAction struct {
	Action      string             `json:"action"`
	Priority    contracts.Priority `json:"priority"`
	DueDate     time.Time          `json:"due_date"`
	RoutingPath ActionScope        `json:"routing_path"`
}

// HybridReport is an on-demand compliance report spanning both paths.
type HybridReport struct {
	ReportID        string       `json:"report_id"`
	GeneratedAt     time.Time    `json:"generated_at"`
	Direct          Result       `json:"direct"`
	Integration     Result       `json:"integration"`
	CrossPath       CrossPath    `json:"cross_path"`
	Recommendations []string     `json:"recommendations"`
	CriticalIssues  []string     `json:"critical_issues"`
	NextActions     []NextAction `json:"next_actions"`
	ContentHash     string       `json:"content_hash"`
}

// Compliant reports whether both paths passed and no cross-path flag is false.
func (r *HybridReport) Compliant() bool {
	c := r.CrossPath
	return r.Direct.IsCompliant && r.Integration.IsCompliant &&
		c.DataConsistency && c.AuditTrailContinuity && c.ConsentPropagation && c.PIIHandlingConsistency
}

// due date offsets by severity
var dueIn = map[contracts.Priority]time.Duration{
	contracts.PriorityCritical: 24 * time.Hour,
	contracts.PriorityHigh:     7 * 24 * time.Hour,
	contracts.PriorityMedium:   30 * 24 * time.Hour,
}

// GenerateHybridComplianceReport validates the representative direct and
// integration paths and compares them. It does not record violations and
// is safe to call concurrently.
func (g *Gate) GenerateHybridComplianceReport(ctx context.Context) (*HybridReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := g.clock()
	id := uuid.New().String()

	direct := g.evaluate(g.reportDirect, id)
	integration := g.evaluate(g.reportIntegration, id)

	r := &HybridReport{
		ReportID:        id,
		GeneratedAt:     now,
		Direct:          direct,
		Integration:     integration,
		CrossPath:       compare(direct, integration),
		Recommendations: []string{},
		CriticalIssues:  []string{},
		NextActions:     []NextAction{},
	}

	addAction := func(action string, prio contracts.Priority, scope ActionScope) {
		r.NextActions = append(r.NextActions, NextAction{
			Action:      action,
			Priority:    prio,
			DueDate:     now.Add(dueIn[prio]),
			RoutingPath: scope,
		})
	}

	for _, side := range []struct {
		scope ActionScope
		res   Result
	}{{ScopeDirect, direct}, {ScopeIntegration, integration}} {
		if !side.res.IsCompliant {
			for _, v := range side.res.Violations {
				r.CriticalIssues = append(r.CriticalIssues, fmt.Sprintf("%s path: %s", side.scope, v))
			}
			addAction(fmt.Sprintf("Remediate %s path compliance violations (%s)", side.scope, side.res.RoutingPath.Provider),
				contracts.PriorityCritical, side.scope)
			continue
		}
		for _, v := range side.res.Violations {
			r.Recommendations = append(r.Recommendations, fmt.Sprintf("Address on %s path: %s", side.scope, v))
			addAction(fmt.Sprintf("Resolve %s path finding: %s", side.scope, v), contracts.PriorityMedium, side.scope)
		}
	}

	cp := r.CrossPath
	for _, flag := range []struct {
		ok   bool
		text string
	}{
		{cp.DataConsistency, "Align data residency guarantees across direct and integration paths"},
		{cp.AuditTrailContinuity, "Ensure the audit trail is continuous across both paths"},
		{cp.ConsentPropagation, "Propagate lawful basis and purpose limitation between paths"},
		{cp.PIIHandlingConsistency, "Apply the same data minimization to PII on both paths"},
	} {
		if flag.ok {
			continue
		}
		r.Recommendations = append(r.Recommendations, flag.text)
		addAction(flag.text, contracts.PriorityHigh, ScopeBoth)
	}

	if err := r.seal(); err != nil {
		return nil, err
	}
	return r, nil
}

func compare(a, b Result) CrossPath {
	return CrossPath{
		DataConsistency: a.DataProcessing.EUDataResidencyCompliant == b.DataProcessing.EUDataResidencyCompliant,
		AuditTrailContinuity: a.AuditTrail == b.AuditTrail &&
			a.AuditTrail.AuditLoggingEnabled && b.AuditTrail.AuditLoggingEnabled,
		ConsentPropagation: a.DataProcessing.LawfulBasisDocumented == b.DataProcessing.LawfulBasisDocumented &&
			a.DataProcessing.PurposeLimitationEnforced == b.DataProcessing.PurposeLimitationEnforced,
		PIIHandlingConsistency: a.DataProcessing.DataMinimizationImplemented == b.DataProcessing.DataMinimizationImplemented,
	}
}

// seal computes the content hash over the canonical JSON of the report
// with the hash field empty.
func (r *HybridReport) seal() error {
	r.ContentHash = ""
	hash, err := r.computeHash()
	if err != nil {
		return err
	}
	r.ContentHash = hash
	return nil
}

// Verify recomputes the content hash and compares it.
func (r *HybridReport) Verify() (bool, error) {
	cp := *r
	cp.ContentHash = ""
	hash, err := cp.computeHash()
	if err != nil {
		return false, err
	}
	return hash == r.ContentHash, nil
}

func (r *HybridReport) computeHash() (string, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize report: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}
