// Package metric exposes relay metrics in Prometheus format.
//
// A single MetricsRegistry is created in main and passed to components through
// their Deps structs. Components register their own collectors under a
// component name; a nil registry disables metrics for that component.
//
//	registry := metric.NewMetricsRegistry()
//	registry.CoreMetrics().RecordEvent("kill")
//
//	srv := metric.NewServer("", 9090, "/metrics", registry, input.Healthy)
//	go srv.Start()
//	defer srv.Stop(ctx)
//
// The server also answers /health, which reports 503 with the failure text
// when the supplied HealthFunc returns an error.
package metric
