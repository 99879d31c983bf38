package health

// Component names reported by the relay.
const (
	ComponentListener = "listener"
	ComponentRegistry = "registry"
	ComponentAssets   = "assets"
	ComponentMirror   = "mirror"
)

// MirrorCallback returns a NATS health-change callback that keeps the mirror
// component current. Disconnects degrade the relay; they never fail it.
func (m *Monitor) MirrorCallback() func(healthy bool) {
	return func(healthy bool) {
		if healthy {
			m.UpdateHealthy(ComponentMirror, "connected")
			return
		}
		m.UpdateDegraded(ComponentMirror, "disconnected, events not mirrored")
	}
}
