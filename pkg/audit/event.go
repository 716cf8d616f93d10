// Package audit records one event per routing decision.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/contracts"
)

// ErrQueueFull is returned by AsyncSink when an event had to be dropped.
var ErrQueueFull = errors.New("audit: queue full, event dropped")

// ErrSinkClosed is returned by AsyncSink for events arriving after Close.
var ErrSinkClosed = errors.New("audit: sink closed, event dropped")

// Outcome is the final verdict of a decision.
type Outcome string

const (
	OutcomeAllowed   Outcome = "allowed"
	OutcomeRejected  Outcome = "rejected"
	// OutcomeCancelled marks a call whose context ended before routing.
	OutcomeCancelled Outcome = "cancelled"
)

// ComplianceInfo is the compliance part of an event.
type ComplianceInfo struct {
	Compliant  bool     `json:"compliant"`
	Score      int      `json:"score"`
	Violations []string `json:"violations,omitempty"`
}

// CostInfo is the ledger part of an event.
type CostInfo struct {
	Cost        contracts.Cents `json:"cost_cents"`
	Throttled   bool            `json:"throttled"`
	Direct      contracts.Cents `json:"direct_cents"`
	Integration contracts.Cents `json:"integration_cents"`
	Combined    contracts.Cents `json:"combined_cents"`
}

// Event is one routing decision as recorded for audit.
type Event struct {
	ID            string                  `json:"id"`
	Timestamp     time.Time               `json:"timestamp"`
	CorrelationID string                  `json:"correlation_id"`
	OperationType contracts.OperationType `json:"operation_type"`
	Priority      contracts.Priority      `json:"priority,omitempty"`
	ProviderHint  string                  `json:"provider_hint,omitempty"`
	Path          *contracts.RoutingPath  `json:"path,omitempty"`
	FailedOver    bool                    `json:"failed_over,omitempty"`
	RouteHealth   string                  `json:"route_health,omitempty"`
	Outcome       Outcome                 `json:"outcome"`
	Kind          contracts.RejectionKind `json:"kind,omitempty"`
	Reason        string                  `json:"reason,omitempty"`
	Compliance    *ComplianceInfo         `json:"compliance,omitempty"`
	Cost          *CostInfo               `json:"cost,omitempty"`
	PreviousHash  string                  `json:"previous_hash,omitempty"`
	Hash          string                  `json:"hash,omitempty"`
}

// NewEvent stamps a new event with an id and time.
func NewEvent(req contracts.OperationRequest, now time.Time) Event {
	return Event{
		ID:            uuid.New().String(),
		Timestamp:     now,
		CorrelationID: req.CorrelationID,
		OperationType: req.OperationType,
		Priority:      req.Priority,
		ProviderHint:  req.ProviderHint,
	}
}

// Sink receives audit events. Implementations must not block the caller
// for long; wrap slow sinks in an AsyncSink.
type Sink interface {
	LogEvent(ctx context.Context, e Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event) error

func (f SinkFunc) LogEvent(ctx context.Context, e Event) error { return f(ctx, e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) error { return nil })
