// Package routing decides which execution path serves an operation and
// orchestrates health, compliance and cost checks around that choice.
package routing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/audit"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/compliance"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/contracts"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/health"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/ledger"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/observability"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/throttle"
)

// ComplianceGate validates a path before cost is committed.
type ComplianceGate interface {
	ValidateBeforeRouting(path contracts.RoutingPath, correlationID string) compliance.GateDecision
}

// CostLedger reserves cost atomically.
type CostLedger interface {
	Reserve(path contracts.RoutingPath, cost contracts.Cents) ledger.Reservation
}

// Config holds the tunables of the engine.
type Config struct {
	// DefaultProviders picks the provider when the request carries no hint.
	DefaultProviders map[contracts.RouteType]contracts.Provider
	// RouteCosts is the cost charged when the request carries no estimate.
	RouteCosts map[contracts.RouteType]contracts.Cents
}

// DefaultConfig returns the built-in providers and costs.
func DefaultConfig() Config {
	return Config{
		DefaultProviders: map[contracts.RouteType]contracts.Provider{
			contracts.RouteDirect:      contracts.ProviderBedrock,
			contracts.RouteIntegration: contracts.ProviderMCP,
		},
		RouteCosts: map[contracts.RouteType]contracts.Cents{
			contracts.RouteDirect:      5,
			contracts.RouteIntegration: 2,
		},
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the default config.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithPacer computes delays for throttled decisions.
func WithPacer(p *throttle.Pacer) Option {
	return func(e *Engine) { e.pacer = p }
}

// WithObservability traces and meters every decision.
func WithObservability(p *observability.Provider) Option {
	return func(e *Engine) { e.obs = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock overrides clock for testing.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// Engine is the routing decision engine. It holds no per-request state and
// is safe for concurrent use.
type Engine struct {
	gate   ComplianceGate
	ledger CostLedger
	health health.Checker
	sink   audit.Sink
	pacer  *throttle.Pacer
	obs    *observability.Provider
	cfg    Config
	clock  func() time.Time
	logger *slog.Logger
}

// NewEngine wires the engine to its collaborators. A nil sink discards events.
func NewEngine(gate ComplianceGate, l CostLedger, checker health.Checker, sink audit.Sink, opts ...Option) *Engine {
	if sink == nil {
		sink = audit.Discard
	}
	e := &Engine{
		gate:   gate,
		ledger: l,
		health: checker,
		sink:   sink,
		cfg:    DefaultConfig(),
		clock:  time.Now,
		logger: slog.Default().With("component", "routing.engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Decide routes one operation.
//
// Steps run in a fixed order: table lookup, health and failover,
// compliance, cost reservation. The first failing step decides the
// rejection and later steps are skipped, so a compliance rejection never
// touches the ledger. Every call emits exactly one audit event.
// Business rejections are returned as a Decision with Allowed false and a
// nil error; the error is reserved for a context that ended before a
// decision was made, which is audited as cancelled.
func (e *Engine) Decide(ctx context.Context, req contracts.OperationRequest) (*Decision, error) {
	req = req.WithCorrelationID()
	if err := ctx.Err(); err != nil {
		e.emitCancelled(ctx, req, err)
		return nil, err
	}

	var done func(error)
	if e.obs != nil {
		ctx, done = e.obs.TrackOperation(ctx, "router.decide",
			observability.AttrOperationType.String(string(req.OperationType)),
		)
	}

	d := e.decide(ctx, req)
	e.emit(ctx, d)

	if e.obs != nil {
		e.obs.RecordDecision(ctx, d.routeLabel(), d.Allowed, d.Kind, d.Throttled)
		done(d.Err())
	}
	if d.Allowed {
		e.logger.DebugContext(ctx, "operation routed",
			"correlation_id", req.CorrelationID,
			"path", d.Path.String(),
			"throttled", d.Throttled,
		)
	} else {
		e.logger.InfoContext(ctx, "operation rejected",
			"correlation_id", req.CorrelationID,
			"operation", req.OperationType,
			"kind", d.Kind,
			"reason", d.Reason,
		)
	}
	return d, nil
}

func (e *Engine) decide(ctx context.Context, req contracts.OperationRequest) *Decision {
	d := &Decision{Request: req}

	row, ok := Resolve(req.OperationType)
	if !ok {
		return d.reject(contracts.KindInvalidOperationType,
			fmt.Sprintf("unknown operation type %q", req.OperationType))
	}

	prio := req.Priority
	if prio == "" {
		prio = row.Priority
	}
	if !prio.Valid() {
		return d.reject(contracts.KindInvalidOperationType,
			fmt.Sprintf("unknown priority %q for operation %q", req.Priority, req.OperationType))
	}

	path := contracts.RoutingPath{
		RouteType:     row.RouteType,
		Provider:      e.provider(req.ProviderHint, row.RouteType),
		OperationType: req.OperationType,
		Priority:      prio,
	}

	status := e.check(ctx, path)
	if !status.Usable() {
		alt, hasAlt := Alternate(path.RouteType, prio)
		if !hasAlt {
			d.RouteHealth = status
			return d.reject(contracts.KindNoHealthyRoute,
				fmt.Sprintf("%s route unavailable and %s priority has no alternate", path.RouteType, prio))
		}
		failover := path
		failover.RouteType = alt
		failover.Provider = e.provider(req.ProviderHint, alt)
		altStatus := e.check(ctx, failover)
		if !altStatus.Usable() {
			d.RouteHealth = altStatus
			return d.reject(contracts.KindNoHealthyRoute,
				fmt.Sprintf("both %s and %s routes unavailable", path.RouteType, alt))
		}
		e.logger.WarnContext(ctx, "route failover",
			"correlation_id", req.CorrelationID,
			"from", path.RouteType,
			"to", alt,
		)
		path, status = failover, altStatus
		d.FailedOver = true
	}
	d.Path = &path
	d.RouteHealth = status
	observability.AddSpanEvent(ctx, "route.resolved", observability.PathAttributes(path)...)

	verdict := e.gate.ValidateBeforeRouting(path, req.CorrelationID)
	d.Compliance = &verdict.Result
	observability.AddSpanEvent(ctx, "compliance.checked",
		observability.ComplianceAttributes(verdict.Result.IsCompliant, verdict.Result.ComplianceScore)...)
	if !verdict.Allowed {
		return d.reject(contracts.KindComplianceViolation, verdict.Reason)
	}

	res := e.ledger.Reserve(path, e.cost(req, path.RouteType))
	d.Reservation = &res
	if !res.Accepted {
		return d.reject(res.Kind, res.Reason)
	}

	d.Allowed = true
	d.Reason = "routed via " + string(path.RouteType)
	if status == health.StatusDegraded {
		d.Reason += " (degraded)"
	}
	if res.Throttled {
		d.Throttled = true
		if e.pacer != nil {
			d.Delay = e.pacer.Delay()
		}
	}
	return d
}

func (e *Engine) provider(hint string, route contracts.RouteType) contracts.Provider {
	if hint != "" {
		return contracts.ParseProvider(hint)
	}
	return e.cfg.DefaultProviders[route]
}

func (e *Engine) cost(req contracts.OperationRequest, route contracts.RouteType) contracts.Cents {
	if req.EstimatedCost > 0 {
		return req.EstimatedCost
	}
	return e.cfg.RouteCosts[route]
}

// check never fails: a probe error counts as unavailable.
func (e *Engine) check(ctx context.Context, path contracts.RoutingPath) health.Status {
	if e.health == nil {
		return health.StatusHealthy
	}
	s, err := e.health.CheckRouteHealth(ctx, path)
	if err != nil {
		e.logger.WarnContext(ctx, "route health check failed", "route", path.RouteType, "error", err)
		return health.StatusUnavailable
	}
	return s
}

func (e *Engine) emit(ctx context.Context, d *Decision) {
	ev := audit.NewEvent(d.Request, e.clock())
	ev.Path = d.Path
	ev.FailedOver = d.FailedOver
	ev.RouteHealth = string(d.RouteHealth)
	ev.Outcome = audit.OutcomeRejected
	if d.Allowed {
		ev.Outcome = audit.OutcomeAllowed
	}
	ev.Kind = d.Kind
	ev.Reason = d.Reason
	if c := d.Compliance; c != nil {
		ev.Compliance = &audit.ComplianceInfo{Compliant: c.IsCompliant, Score: c.ComplianceScore, Violations: c.Violations}
	}
	if r := d.Reservation; r != nil {
		ev.Cost = &audit.CostInfo{
			Cost:        r.Cost,
			Throttled:   r.Throttled,
			Direct:      r.Totals.Direct,
			Integration: r.Totals.Integration,
			Combined:    r.Totals.Combined,
		}
	}
	d.AuditEventID = ev.ID
	if err := e.sink.LogEvent(ctx, ev); err != nil {
		e.logger.WarnContext(ctx, "audit event not recorded", "event_id", ev.ID, "error", err)
	}
}

func (e *Engine) emitCancelled(ctx context.Context, req contracts.OperationRequest, cause error) {
	ev := audit.NewEvent(req, e.clock())
	ev.Outcome = audit.OutcomeCancelled
	ev.Reason = "cancelled before routing: " + cause.Error()
	if err := e.sink.LogEvent(context.WithoutCancel(ctx), ev); err != nil {
		e.logger.WarnContext(ctx, "audit event not recorded", "event_id", ev.ID, "error", err)
	}
	e.logger.InfoContext(ctx, "operation cancelled",
		"correlation_id", req.CorrelationID,
		"operation", req.OperationType,
		"error", cause,
	)
}

func (d *Decision) reject(kind contracts.RejectionKind, reason string) *Decision {
	d.Allowed = false
	d.Kind = kind
	d.Reason = reason
	return d
}

func (d *Decision) routeLabel() string {
	if d.Path == nil {
		return "none"
	}
	return string(d.Path.RouteType)
}
