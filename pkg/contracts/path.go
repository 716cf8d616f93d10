package contracts

import "fmt"

// RouteType names one of the two execution paths.
type RouteType string

const (
	RouteDirect      RouteType = "direct"
	RouteIntegration RouteType = "integration"
)

// Other returns the opposite route.
func (r RouteType) Other() RouteType {
	if r == RouteDirect {
		return RouteIntegration
	}
	return RouteDirect
}

// Valid reports whether r is a known route.
func (r RouteType) Valid() bool {
	return r == RouteDirect || r == RouteIntegration
}

// RoutingPath is the resolved destination of an operation. Two paths are
// equal iff all four fields match, so RoutingPath is usable with == and as
// a map key.
type RoutingPath struct {
	RouteType     RouteType     `json:"route_type"`
	Provider      Provider      `json:"provider"`
	OperationType OperationType `json:"operation_type"`
	Priority      Priority      `json:"priority"`
}

func (p RoutingPath) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", p.RouteType, p.Provider, p.OperationType, p.Priority)
}
