package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuokri/tklserver/errors"
)

func TestMonitor_UpdateAndGet(t *testing.T) {
	m := NewMonitor("tklserver")

	m.Update(ComponentAssets, Status{Component: "wrong-name", Status: StateHealthy})
	st, ok := m.Get(ComponentAssets)
	require.True(t, ok)
	assert.Equal(t, ComponentAssets, st.Component)
	assert.False(t, st.Timestamp.IsZero())

	m.UpdateDegraded(ComponentAssets, "bundle unavailable")
	st, _ = m.Get(ComponentAssets)
	assert.True(t, st.IsDegraded())

	_, ok = m.Get("missing")
	assert.False(t, ok)
}

func TestMonitor_Probes(t *testing.T) {
	m := NewMonitor("tklserver")
	var probeErr error
	m.AddProbe(ComponentListener, func() error { return probeErr })

	st, ok := m.Get(ComponentListener)
	require.True(t, ok)
	assert.True(t, st.IsHealthy())
	assert.NoError(t, m.Check())

	probeErr = errors.ErrNotStarted
	assert.True(t, m.AggregateHealth().IsUnhealthy())
	assert.Error(t, m.Check())
}

func TestMonitor_DegradedPassesCheck(t *testing.T) {
	m := NewMonitor("tklserver")
	m.UpdateHealthy(ComponentRegistry, "2 sources")
	m.UpdateDegraded(ComponentAssets, "bundle unavailable")

	assert.True(t, m.AggregateHealth().IsDegraded())
	assert.NoError(t, m.Check())
}

func TestMonitor_MirrorCallback(t *testing.T) {
	m := NewMonitor("tklserver")
	cb := m.MirrorCallback()

	cb(true)
	st, _ := m.Get(ComponentMirror)
	assert.True(t, st.IsHealthy())

	cb(false)
	st, _ = m.Get(ComponentMirror)
	assert.True(t, st.IsDegraded())
}

func TestMonitor_ServeHTTP(t *testing.T) {
	m := NewMonitor("tklserver")
	m.UpdateHealthy(ComponentRegistry, "ok")

	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var st Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "tklserver", st.Component)
	assert.True(t, st.IsHealthy())

	m.UpdateUnhealthy(ComponentRegistry, "down")
	rec = httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/status", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMonitor_Concurrent(t *testing.T) {
	m := NewMonitor("tklserver")
	m.AddProbe(ComponentListener, func() error { return nil })
	cb := m.MirrorCallback()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			cb(i%2 == 0)
		}(i)
		go func() {
			defer wg.Done()
			_ = m.AggregateHealth()
		}()
	}
	wg.Wait()

	_, ok := m.Get(ComponentMirror)
	assert.True(t, ok)
}
