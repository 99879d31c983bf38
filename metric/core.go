package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tklserver"

// Metrics contains the relay-wide metrics shared by the listener and the
// dispatch pipeline. A nil *Metrics is valid and records nothing.
type Metrics struct {
	ConnectionsActive prometheus.Gauge
	ConnectionsTotal  prometheus.Counter
	LinesReceived     *prometheus.CounterVec
	EventsTotal       *prometheus.CounterVec
	Deliveries        *prometheus.CounterVec
	DeliveryDuration  prometheus.Histogram
	MirrorPublished   *prometheus.CounterVec
	RegistrySources   prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all relay metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tcp",
			Name:      "connections_active",
			Help:      "Game server connections currently open",
		}),
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tcp",
			Name:      "connections_total",
			Help:      "Game server connections accepted",
		}),
		LinesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tcp",
			Name:      "lines_total",
			Help:      "Inbound lines by routing result (routed, unknown_ident)",
		}, []string{"result"}),
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "total",
			Help:      "Dispatched events by action (kill, teamkill, suicide, raw)",
		}, []string{"action"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "deliveries_total",
			Help:      "Webhook deliveries by status (ok, transient, invalid, fatal)",
		}, []string{"status"}),
		DeliveryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "delivery_duration_seconds",
			Help:      "Time spent in one webhook delivery call",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		MirrorPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mirror",
			Name:      "published_total",
			Help:      "Events mirrored to NATS by status (ok, error)",
		}, []string{"status"}),
		RegistrySources: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "sources",
			Help:      "Sender identifiers with a resolved destination",
		}),
	}
}

func (c *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.ConnectionsActive,
		c.ConnectionsTotal,
		c.LinesReceived,
		c.EventsTotal,
		c.Deliveries,
		c.DeliveryDuration,
		c.MirrorPublished,
		c.RegistrySources,
	}
}

// RecordConnectionOpened tracks a newly accepted connection
func (c *Metrics) RecordConnectionOpened() {
	if c == nil {
		return
	}
	c.ConnectionsTotal.Inc()
	c.ConnectionsActive.Inc()
}

// RecordConnectionClosed tracks a connection reaching its closed state
func (c *Metrics) RecordConnectionClosed() {
	if c == nil {
		return
	}
	c.ConnectionsActive.Dec()
}

// RecordLine counts an inbound line by routing result
func (c *Metrics) RecordLine(result string) {
	if c == nil {
		return
	}
	c.LinesReceived.WithLabelValues(result).Inc()
}

// RecordEvent counts a dispatched event by action
func (c *Metrics) RecordEvent(action string) {
	if c == nil {
		return
	}
	c.EventsTotal.WithLabelValues(action).Inc()
}

// RecordDelivery counts one webhook delivery attempt and its duration
func (c *Metrics) RecordDelivery(status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.Deliveries.WithLabelValues(status).Inc()
	c.DeliveryDuration.Observe(duration.Seconds())
}

// RecordMirror counts one mirror publish
func (c *Metrics) RecordMirror(status string) {
	if c == nil {
		return
	}
	c.MirrorPublished.WithLabelValues(status).Inc()
}

// RecordRegistrySize sets the number of resolved sources
func (c *Metrics) RecordRegistrySize(n int) {
	if c == nil {
		return
	}
	c.RegistrySources.Set(float64(n))
}
