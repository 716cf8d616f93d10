package compliance

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/contracts"
)

// DefaultViolationWindow is how far back GetComplianceSummary counts violations.
const DefaultViolationWindow = 24 * time.Hour

// Result is the outcome of validating one routing path. A fresh Result is
// built on every call.
type Result struct {
	RoutingPath     contracts.RoutingPath `json:"routing_path"`
	CorrelationID   string                `json:"correlation_id"`
	IsCompliant     bool                  `json:"is_compliant"`
	ComplianceScore int                   `json:"compliance_score"`
	Violations      []string              `json:"violations"`
	DataProcessing  DataProcessing        `json:"data_processing"`
	AuditTrail      AuditTrail            `json:"audit_trail"`
	CheckedAt       time.Time             `json:"checked_at"`
}

// GateDecision is the pre-routing verdict.
type GateDecision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
	Result  Result `json:"result"`
}

// Option configures a Gate.
type Option func(*Gate)

// WithProfiles replaces the provider profiles.
func WithProfiles(p map[contracts.Provider]Profile) Option {
	return func(g *Gate) { g.profiles = p }
}

// WithPassingScore sets the minimum score for a known provider.
func WithPassingScore(score int) Option {
	return func(g *Gate) { g.passingScore = score }
}

// WithRules adds custom CEL rules.
func WithRules(rs *RuleSet) Option {
	return func(g *Gate) { g.rules = rs }
}

// WithClock overrides clock for testing.
func WithClock(clock func() time.Time) Option {
	return func(g *Gate) { g.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithViolationWindow sets the look-back window for recent violations.
func WithViolationWindow(d time.Duration) Option {
	return func(g *Gate) { g.window = d }
}

// WithRepresentativePaths sets the paths the hybrid report evaluates.
func WithRepresentativePaths(direct, integration contracts.RoutingPath) Option {
	return func(g *Gate) {
		g.reportDirect = direct
		g.reportIntegration = integration
	}
}

// Gate validates routing paths. Validation is stateless per call; the
// gate only remembers when violations happened, for the summary.
type Gate struct {
	profiles          map[contracts.Provider]Profile
	passingScore      int
	rules             *RuleSet
	clock             func() time.Time
	logger            *slog.Logger
	window            time.Duration
	reportDirect      contracts.RoutingPath
	reportIntegration contracts.RoutingPath

	mu         sync.Mutex
	violations []time.Time
}

// NewGate builds a Gate with the default profiles unless overridden.
func NewGate(opts ...Option) (*Gate, error) {
	g := &Gate{
		profiles:     DefaultProfiles(),
		passingScore: DefaultPassingScore,
		clock:        time.Now,
		logger:       slog.Default().With("component", "compliance.gate"),
		window:       DefaultViolationWindow,
		reportDirect: contracts.RoutingPath{
			RouteType:     contracts.RouteDirect,
			Provider:      contracts.ProviderBedrock,
			OperationType: contracts.OpEmergency,
			Priority:      contracts.PriorityCritical,
		},
		reportIntegration: contracts.RoutingPath{
			RouteType:     contracts.RouteIntegration,
			Provider:      contracts.ProviderMCP,
			OperationType: contracts.OpStandardAnalysis,
			Priority:      contracts.PriorityMedium,
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.passingScore < 0 || g.passingScore > 100 {
		return nil, fmt.Errorf("compliance: passing score %d out of range 0..100", g.passingScore)
	}
	for p := range g.profiles {
		if !p.Known() {
			return nil, fmt.Errorf("compliance: profile for unknown provider %q", p)
		}
	}
	return g, nil
}

// ValidateRoutingPathCompliance scores path against the rubric. It never
// fails for a well-formed path; the verdict is in the Result.
func (g *Gate) ValidateRoutingPathCompliance(path contracts.RoutingPath, correlationID string) Result {
	res := g.evaluate(path, correlationID)
	if !res.IsCompliant {
		g.recordViolation(res.CheckedAt)
		g.logger.Warn("routing path not compliant",
			"correlation_id", correlationID,
			"path", path.String(),
			"score", res.ComplianceScore,
			"violations", len(res.Violations),
		)
	}
	return res
}

// ValidateBeforeRouting turns the rubric result into an allow/deny verdict.
// The reason always mentions compliance so callers can surface it verbatim.
func (g *Gate) ValidateBeforeRouting(path contracts.RoutingPath, correlationID string) GateDecision {
	res := g.ValidateRoutingPathCompliance(path, correlationID)
	if res.IsCompliant {
		return GateDecision{
			Allowed: true,
			Reason:  fmt.Sprintf("compliance checks passed (score %d)", res.ComplianceScore),
			Result:  res,
		}
	}
	return GateDecision{
		Allowed: false,
		Reason:  "compliance violation: " + strings.Join(res.Violations, "; "),
		Result:  res,
	}
}

func (g *Gate) evaluate(path contracts.RoutingPath, correlationID string) Result {
	res := Result{
		RoutingPath:   path,
		CorrelationID: correlationID,
		CheckedAt:     g.clock(),
	}

	profile, ok := g.profiles[path.Provider]
	if !path.Provider.Known() || !ok {
		res.Violations = []string{fmt.Sprintf("provider %q has no compliance profile", path.Provider)}
		return res
	}

	res.DataProcessing = profile.DataProcessing
	res.AuditTrail = profile.AuditTrail
	res.ComplianceScore = profile.Score()
	res.Violations = profile.Failed()

	compliant := res.ComplianceScore >= g.passingScore
	if !compliant {
		res.Violations = append(res.Violations,
			fmt.Sprintf("compliance score %d below passing score %d", res.ComplianceScore, g.passingScore))
	}

	if path.Priority == contracts.PriorityCritical {
		if !profile.DataProcessing.EUDataResidencyCompliant {
			res.Violations = append(res.Violations, "critical operations require EU data residency")
			compliant = false
		}
		if !profile.AuditTrail.AuditLoggingEnabled {
			res.Violations = append(res.Violations, "critical operations require audit logging")
			compliant = false
		}
	}

	if failed := g.rules.Evaluate(path); len(failed) > 0 {
		res.Violations = append(res.Violations, failed...)
		compliant = false
	}

	res.IsCompliant = compliant
	return res
}

func (g *Gate) recordViolation(at time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.violations = append(g.violations, at)
	g.pruneLocked(at)
}

// RecentViolations counts non-compliant validations inside the window.
func (g *Gate) RecentViolations() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pruneLocked(g.clock())
	return len(g.violations)
}

func (g *Gate) pruneLocked(now time.Time) {
	cutoff := now.Add(-g.window)
	i := 0
	for i < len(g.violations) && g.violations[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		g.violations = append(g.violations[:0], g.violations[i:]...)
	}
}
