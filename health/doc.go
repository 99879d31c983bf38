// Package health tracks the health of the relay's components and rolls it up
// into one status.
//
// Components are healthy, degraded or unhealthy. The relay is unhealthy when
// any component is; a degraded component (icons unavailable, the event mirror
// disconnected, no sources resolved) leaves it degraded but serving.
//
//	monitor := health.NewMonitor("tklserver")
//	monitor.AddProbe("listener", input.Health)
//	monitor.UpdateDegraded("assets", "bundle unavailable")
//
//	if err := monitor.Check(); err != nil {
//	    // listener down
//	}
//
// Status messages never contain URLs or credentials, so webhook tokens do
// not leak through the health endpoint.
package health
