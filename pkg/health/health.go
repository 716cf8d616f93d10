// Package health reports whether each execution path can take traffic.
//
// The router only reads health. States are driven externally, either by
// operators writing to a Board or by probing an endpoint per route, and
// are served from a short-lived cache.
package health

import (
	"context"
	"fmt"
	"strings"

	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/contracts"
)

// Status is the observed state of a route.
type Status string

const (
	StatusHealthy     Status = "healthy"
	StatusDegraded    Status = "degraded"
	StatusUnavailable Status = "unavailable"
)

// Usable reports whether traffic may be sent to a route in this state.
func (s Status) Usable() bool {
	return s == StatusHealthy || s == StatusDegraded
}

// ParseStatus parses a wire value.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusHealthy, StatusDegraded, StatusUnavailable:
		return st, nil
	}
	return "", fmt.Errorf("health: unknown status %q", s)
}

// Checker reports the health of the route serving path.
type Checker interface {
	CheckRouteHealth(ctx context.Context, path contracts.RoutingPath) (Status, error)
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, path contracts.RoutingPath) (Status, error)

func (f CheckerFunc) CheckRouteHealth(ctx context.Context, path contracts.RoutingPath) (Status, error) {
	return f(ctx, path)
}
