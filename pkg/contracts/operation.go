// Package contracts defines the value types shared by the router, ledger and
// compliance gate.
package contracts

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// OperationType classifies an inbound AI-backed operation.
type OperationType string

const (
	OpEmergency         OperationType = "emergency"
	OpInfrastructure    OperationType = "infrastructure"
	OpMetaMonitor       OperationType = "meta_monitor"
	OpImplementation    OperationType = "implementation"
	OpKiroCommunication OperationType = "kiro_communication"
	OpStandardAnalysis  OperationType = "standard_analysis"
	OpBackgroundTasks   OperationType = "background_tasks"
)

// OperationTypes lists every known operation type in routing-table order.
var OperationTypes = []OperationType{
	OpEmergency,
	OpInfrastructure,
	OpMetaMonitor,
	OpImplementation,
	OpKiroCommunication,
	OpStandardAnalysis,
	OpBackgroundTasks,
}

// Valid reports whether t is one of the known operation types.
func (t OperationType) Valid() bool {
	for _, known := range OperationTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseOperationType parses a wire value. Surrounding whitespace and case are ignored.
func ParseOperationType(s string) (OperationType, error) {
	t := OperationType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", &RejectionError{Kind: KindInvalidOperationType, Detail: fmt.Sprintf("unknown operation type %q", s)}
	}
	return t, nil
}

// Priority is the urgency tier of a request.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Rank orders priorities; critical is highest.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// ParsePriority parses a wire value. An empty string yields the zero Priority
// and no error so the caller can fall back to a default.
func ParsePriority(s string) (Priority, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", nil
	}
	p := Priority(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown priority %q", s)
	}
	return p, nil
}

// OperationRequest is one inbound operation. It is consumed once by the
// router and is never mutated.
type OperationRequest struct {
	OperationType OperationType `json:"operation_type"`
	Priority      Priority      `json:"priority,omitempty"`
	CorrelationID string        `json:"correlation_id"`
	ProviderHint  string        `json:"provider_hint,omitempty"`
	// EstimatedCost overrides the per-route default cost when positive.
	EstimatedCost Cents `json:"estimated_cost_cents,omitempty"`
}

// WithCorrelationID returns a copy of r carrying a fresh correlation id if
// r has none.
func (r OperationRequest) WithCorrelationID() OperationRequest {
	if r.CorrelationID == "" {
		r.CorrelationID = NewCorrelationID()
	}
	return r
}

// NewCorrelationID returns a random, unique correlation id.
func NewCorrelationID() string {
	return uuid.New().String()
}
