package routing

import (
	"time"

	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/compliance"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/contracts"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/health"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/ledger"
)

// Decision is the outcome of one Decide call.
type Decision struct {
	Allowed bool                    `json:"allowed"`
	Kind    contracts.RejectionKind `json:"kind,omitempty"`
	Reason  string                  `json:"reason"`

	Request     contracts.OperationRequest `json:"request"`
	Path        *contracts.RoutingPath     `json:"path,omitempty"`
	FailedOver  bool                       `json:"failed_over,omitempty"`
	RouteHealth health.Status              `json:"route_health,omitempty"`

	Compliance  *compliance.Result  `json:"compliance,omitempty"`
	Reservation *ledger.Reservation `json:"reservation,omitempty"`

	Throttled bool          `json:"throttled"`
	Delay     time.Duration `json:"delay_ns,omitempty"`

	AuditEventID string `json:"audit_event_id"`
}

// Err returns nil for an allowed decision, otherwise a RejectionError that
// matches the sentinel of its kind.
func (d *Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &contracts.RejectionError{Kind: d.Kind, Detail: d.Reason}
}
