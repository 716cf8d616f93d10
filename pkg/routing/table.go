package routing

import "github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/contracts"

// Route is one row of the routing table.
type Route struct {
	RouteType contracts.RouteType
	Priority  contracts.Priority
}

// table is fixed at build time and is not runtime configurable.
var table = map[contracts.OperationType]Route{
	contracts.OpEmergency:         {contracts.RouteDirect, contracts.PriorityCritical},
	contracts.OpInfrastructure:    {contracts.RouteDirect, contracts.PriorityCritical},
	contracts.OpMetaMonitor:       {contracts.RouteDirect, contracts.PriorityHigh},
	contracts.OpImplementation:    {contracts.RouteDirect, contracts.PriorityHigh},
	contracts.OpKiroCommunication: {contracts.RouteIntegration, contracts.PriorityMedium},
	contracts.OpStandardAnalysis:  {contracts.RouteIntegration, contracts.PriorityMedium},
	contracts.OpBackgroundTasks:   {contracts.RouteIntegration, contracts.PriorityLow},
}

// Resolve returns the table row for op.
func Resolve(op contracts.OperationType) (Route, bool) {
	r, ok := table[op]
	return r, ok
}

// Alternate returns the failover route for a priority tier. Low priority
// work has no alternate and waits for its own route to recover.
func Alternate(route contracts.RouteType, prio contracts.Priority) (contracts.RouteType, bool) {
	if prio == contracts.PriorityLow {
		return "", false
	}
	return route.Other(), true
}
