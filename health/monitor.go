package health

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Probe reports the live health of a component; nil means healthy.
type Probe func() error

// Monitor tracks health of the relay's components. Components either push
// their state with Update or register a Probe evaluated on every check.
type Monitor struct {
	name     string
	mu       sync.RWMutex
	statuses map[string]Status
	probes   map[string]Probe
}

// NewMonitor creates a new health monitor for the named system
func NewMonitor(name string) *Monitor {
	return &Monitor{
		name:     name,
		statuses: make(map[string]Status),
		probes:   make(map[string]Probe),
	}
}

// Update updates the health status for a named component
func (m *Monitor) Update(name string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}
	m.statuses[name] = status
}

// UpdateHealthy is a convenience method to update a component as healthy
func (m *Monitor) UpdateHealthy(name, message string) {
	m.Update(name, NewHealthy(name, message))
}

// UpdateDegraded is a convenience method to update a component as degraded
func (m *Monitor) UpdateDegraded(name, message string) {
	m.Update(name, NewDegraded(name, message))
}

// UpdateUnhealthy is a convenience method to update a component as unhealthy
func (m *Monitor) UpdateUnhealthy(name, message string) {
	m.Update(name, NewUnhealthy(name, message))
}

// AddProbe registers a live check for a component, replacing any pushed status.
func (m *Monitor) AddProbe(name string, probe Probe) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.statuses, name)
	m.probes[name] = probe
}

// Get retrieves the health status for a named component
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	probe, isProbe := m.probes[name]
	status, exists := m.statuses[name]
	m.mu.RUnlock()

	if isProbe {
		return FromError(name, probe()), true
	}
	return status, exists
}

// AggregateHealth evaluates every probe and aggregates all statuses
func (m *Monitor) AggregateHealth() Status {
	m.mu.RLock()
	subStatuses := make([]Status, 0, len(m.statuses)+len(m.probes))
	for _, status := range m.statuses {
		subStatuses = append(subStatuses, status)
	}
	probes := make(map[string]Probe, len(m.probes))
	for name, probe := range m.probes {
		probes[name] = probe
	}
	m.mu.RUnlock()

	for name, probe := range probes {
		subStatuses = append(subStatuses, FromError(name, probe()))
	}
	return Aggregate(m.name, subStatuses)
}

// Check returns an error when the aggregate is unhealthy. A degraded relay
// still forwards events and passes.
func (m *Monitor) Check() error {
	status := m.AggregateHealth()
	if status.IsUnhealthy() {
		return fmt.Errorf("%s %s", m.name, status.Message)
	}
	return nil
}

// ServeHTTP writes the aggregate as JSON, with status 503 when unhealthy.
func (m *Monitor) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	status := m.AggregateHealth()

	w.Header().Set("Content-Type", "application/json")
	if status.IsUnhealthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}
