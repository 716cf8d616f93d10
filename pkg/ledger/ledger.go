// Package ledger provides the shared cost ledger for both execution paths.
//
// All totals live behind one mutex. Reserve is the only way spend is added
// and it checks the budget before it commits, so the combined total can
// never exceed the configured budget. Reserve performs no I/O; persistence
// happens out of band through a Checkpointer.
package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/contracts"
)

var (
	// ErrInvalidThresholds is returned when emergency < throttle < budget does not hold.
	ErrInvalidThresholds = errors.New("ledger: thresholds must satisfy 0 < emergency < throttle < budget")
	// ErrSnapshotInconsistent is returned when a restored snapshot breaks the ledger invariants.
	ErrSnapshotInconsistent = errors.New("ledger: snapshot inconsistent with configuration")
)

// Config holds the immutable limits of a ledger, in cents.
type Config struct {
	CombinedBudget     contracts.Cents `json:"combined_budget_cents" yaml:"combined_budget_cents"`
	ThrottleThreshold  contracts.Cents `json:"throttle_threshold_cents" yaml:"throttle_threshold_cents"`
	EmergencyThreshold contracts.Cents `json:"emergency_threshold_cents" yaml:"emergency_threshold_cents"`
}

// Validate checks the threshold ordering.
func (c Config) Validate() error {
	if c.EmergencyThreshold <= 0 || c.EmergencyThreshold >= c.ThrottleThreshold || c.ThrottleThreshold >= c.CombinedBudget {
		return fmt.Errorf("%w (budget=%d throttle=%d emergency=%d)",
			ErrInvalidThresholds, c.CombinedBudget, c.ThrottleThreshold, c.EmergencyThreshold)
	}
	return nil
}

// Totals is a point-in-time view of the ledger.
type Totals struct {
	Direct         contracts.Cents `json:"direct_cents"`
	Integration    contracts.Cents `json:"integration_cents"`
	Combined       contracts.Cents `json:"combined_cents"`
	Budget         contracts.Cents `json:"budget_cents"`
	ShutdownActive bool            `json:"shutdown_active"`
}

// Remaining returns the unspent budget.
func (t Totals) Remaining() contracts.Cents {
	return t.Budget - t.Combined
}

// Reservation is the outcome of one Reserve call.
type Reservation struct {
	Accepted  bool                    `json:"accepted"`
	Kind      contracts.RejectionKind `json:"kind,omitempty"`
	Reason    string                  `json:"reason,omitempty"`
	Throttled bool                    `json:"throttled"`
	Cost      contracts.Cents         `json:"cost_cents"`
	Totals    Totals                  `json:"totals"`
}

// Err returns nil for an accepted reservation, otherwise a RejectionError.
func (r Reservation) Err() error {
	if r.Accepted {
		return nil
	}
	return &contracts.RejectionError{Kind: r.Kind, Detail: r.Reason}
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) { l.clock = clock }
}

// WithSnapshot seeds the ledger from a persisted snapshot.
func WithSnapshot(s *Snapshot) Option {
	return func(l *Ledger) { l.restore = s }
}

// Ledger tracks spend per path and combined.
type Ledger struct {
	cfg    Config
	logger *slog.Logger
	clock  func() time.Time

	mu             sync.Mutex
	direct         contracts.Cents
	integration    contracts.Cents
	combined       contracts.Cents
	shutdownActive bool
	shutdownReason string
	shutdownAt     time.Time
	version        uint64

	restore *Snapshot
}

// New creates a Ledger. It fails if the thresholds are out of order or a
// supplied snapshot does not fit the configuration.
func New(cfg Config, opts ...Option) (*Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := &Ledger{
		cfg:    cfg,
		logger: slog.Default().With("component", "ledger"),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if s := l.restore; s != nil {
		if s.Direct < 0 || s.Integration < 0 || s.Direct+s.Integration != s.Combined || s.Combined > cfg.CombinedBudget {
			return nil, fmt.Errorf("%w: direct=%d integration=%d combined=%d budget=%d",
				ErrSnapshotInconsistent, s.Direct, s.Integration, s.Combined, cfg.CombinedBudget)
		}
		l.direct, l.integration, l.combined = s.Direct, s.Integration, s.Combined
		l.shutdownActive, l.shutdownReason, l.shutdownAt = s.ShutdownActive, s.ShutdownReason, s.ShutdownAt
		l.version = s.Version
		l.restore = nil
	}
	return l, nil
}

// Config returns the immutable limits.
func (l *Ledger) Config() Config {
	return l.cfg
}

// Reserve atomically checks and commits cost against the path's route.
//
// Rejections leave every total unchanged. A critical request that would
// bring the combined total to the emergency threshold latches shutdown and
// is itself rejected. An accepted reservation is flagged as throttled when
// the post-update combined total exceeds the throttle threshold; the caller
// decides how to delay.
func (l *Ledger) Reserve(path contracts.RoutingPath, cost contracts.Cents) Reservation {
	if cost < 0 {
		panic(fmt.Sprintf("ledger: negative cost %d for %s", cost, path))
	}
	if !path.RouteType.Valid() {
		panic(fmt.Sprintf("ledger: unknown route type %q", path.RouteType))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	res := Reservation{Cost: cost}

	if l.shutdownActive {
		res.Kind = contracts.KindEmergencyShutdownActive
		res.Reason = "emergency shutdown active: " + l.shutdownReason
		res.Totals = l.totalsLocked()
		return res
	}

	next := l.combined + cost

	if path.Priority == contracts.PriorityCritical && next >= l.cfg.EmergencyThreshold {
		l.shutdownActive = true
		l.shutdownAt = l.clock()
		l.shutdownReason = fmt.Sprintf("critical spend would reach %s against emergency threshold %s",
			next, l.cfg.EmergencyThreshold)
		l.version++
		l.logger.Warn("emergency shutdown latched",
			"route", path.RouteType,
			"operation", path.OperationType,
			"combined_cents", int64(l.combined),
			"cost_cents", int64(cost),
			"threshold_cents", int64(l.cfg.EmergencyThreshold),
		)
		res.Kind = contracts.KindEmergencyShutdownActive
		res.Reason = "emergency shutdown triggered: " + l.shutdownReason
		res.Totals = l.totalsLocked()
		return res
	}

	if next > l.cfg.CombinedBudget {
		res.Kind = contracts.KindBudgetExceeded
		res.Reason = fmt.Sprintf("budget exceeded: %s + %s > %s", l.combined, cost, l.cfg.CombinedBudget)
		res.Totals = l.totalsLocked()
		return res
	}

	switch path.RouteType {
	case contracts.RouteDirect:
		l.direct += cost
	case contracts.RouteIntegration:
		l.integration += cost
	}
	l.combined = next
	l.version++

	if l.combined > l.cfg.CombinedBudget || l.direct+l.integration != l.combined {
		panic(fmt.Sprintf("ledger: invariant broken direct=%d integration=%d combined=%d budget=%d",
			l.direct, l.integration, l.combined, l.cfg.CombinedBudget))
	}

	res.Accepted = true
	res.Throttled = l.combined > l.cfg.ThrottleThreshold
	res.Totals = l.totalsLocked()
	return res
}

// Totals returns the current totals.
func (l *Ledger) Totals() Totals {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalsLocked()
}

// ShutdownActive reports whether the emergency latch is set.
func (l *Ledger) ShutdownActive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.shutdownActive
}

// ResetShutdown clears the emergency latch. It is the only way the latch is
// ever cleared. It reports whether the latch was set.
func (l *Ledger) ResetShutdown(actor, reason string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	was := l.shutdownActive
	if was {
		l.shutdownActive = false
		l.shutdownReason = ""
		l.shutdownAt = time.Time{}
		l.version++
	}
	l.logger.Info("emergency shutdown reset",
		"actor", actor,
		"reason", reason,
		"was_active", was,
		"combined_cents", int64(l.combined),
	)
	return was
}

// ResetPeriod zeroes spend for a new billing period. The emergency latch
// is left untouched.
func (l *Ledger) ResetPeriod(actor string) Totals {
	l.mu.Lock()
	defer l.mu.Unlock()
	prev := l.combined
	l.direct, l.integration, l.combined = 0, 0, 0
	l.version++
	l.logger.Info("ledger period reset", "actor", actor, "previous_combined_cents", int64(prev))
	return l.totalsLocked()
}

func (l *Ledger) totalsLocked() Totals {
	return Totals{
		Direct:         l.direct,
		Integration:    l.integration,
		Combined:       l.combined,
		Budget:         l.cfg.CombinedBudget,
		ShutdownActive: l.shutdownActive,
	}
}
