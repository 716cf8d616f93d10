package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/contracts"
)

// Router semantic convention attributes.
var (
	AttrOperationType = attribute.Key("router.operation.type")
	AttrPriority      = attribute.Key("router.operation.priority")
	AttrRoute         = attribute.Key("router.route")
	AttrProvider      = attribute.Key("router.provider")
	AttrOutcome       = attribute.Key("router.outcome")
	AttrRejectionKind = attribute.Key("router.rejection.kind")
	AttrThrottled     = attribute.Key("router.throttled")

	AttrComplianceOK    = attribute.Key("router.compliance.compliant")
	AttrComplianceScore = attribute.Key("router.compliance.score")
)

// PathAttributes describes a resolved routing path.
func PathAttributes(p contracts.RoutingPath) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrRoute.String(string(p.RouteType)),
		AttrProvider.String(string(p.Provider)),
		AttrOperationType.String(string(p.OperationType)),
		AttrPriority.String(string(p.Priority)),
	}
}

// DecisionAttributes describes a decision outcome.
func DecisionAttributes(route string, allowed bool, kind contracts.RejectionKind, throttled bool) []attribute.KeyValue {
	outcome := "allowed"
	if !allowed {
		outcome = "rejected"
	}
	return []attribute.KeyValue{
		AttrRoute.String(route),
		AttrOutcome.String(outcome),
		AttrRejectionKind.String(string(kind)),
		AttrThrottled.Bool(throttled),
	}
}

// ComplianceAttributes describes a compliance verdict.
func ComplianceAttributes(compliant bool, score int) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrComplianceOK.Bool(compliant),
		AttrComplianceScore.Int(score),
	}
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}
