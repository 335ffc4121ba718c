package monitor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedSampler(s System) Sampler {
	return func(context.Context) (*System, error) { return &s, nil }
}

func TestHealthMonitor_Counters(t *testing.T) {
	m := NewHealthMonitor()
	m.Record(http.StatusOK, 10*time.Millisecond)
	m.Record(http.StatusNotFound, 2*time.Second)
	m.Record(http.StatusInternalServerError, time.Millisecond)
	m.Record(http.StatusOK, time.Millisecond)

	a := m.Application()
	assert.Equal(t, int64(4), a.TotalRequests)
	assert.Equal(t, int64(1), a.TotalErrors)
	assert.Equal(t, int64(1), a.SlowRequests)
	assert.InDelta(t, 25.0, a.ErrorRate, 1e-9)
}

func TestHealthMonitor_Health(t *testing.T) {
	m := NewHealthMonitor()
	m.sample = fixedSampler(System{CPUPercent: 20, MemoryPercent: 40, DiskPercent: 50})

	h := m.Health(context.Background())
	assert.Equal(t, StatusHealthy, h.Status)
	require.NotNil(t, h.System)
	assert.InDelta(t, 40.0, h.System.MemoryPercent, 1e-9)
	assert.Equal(t, "0h 0m", h.UptimeHuman)
	assert.True(t, m.Healthy(context.Background()))

	m.sample = fixedSampler(System{CPUPercent: 92, MemoryPercent: 40, DiskPercent: 50})
	assert.Equal(t, StatusDegraded, m.Health(context.Background()).Status)
	assert.True(t, m.Healthy(context.Background()), "degraded is still under the unhealthy limit")

	m.sample = fixedSampler(System{CPUPercent: 10, MemoryPercent: 10, DiskPercent: 96})
	assert.False(t, m.Healthy(context.Background()))
}

func TestHealthMonitor_ErrorRate(t *testing.T) {
	m := NewHealthMonitor()
	m.sample = fixedSampler(System{})
	for range 9 {
		m.Record(http.StatusOK, 0)
	}
	m.Record(http.StatusBadGateway, 0)
	assert.False(t, m.Healthy(context.Background()), "10% errors is not healthy")
}

func TestHealthMonitor_SampleFailure(t *testing.T) {
	m := NewHealthMonitor()
	m.sample = func(context.Context) (*System, error) { return nil, errors.New("no procfs") }

	h := m.Health(context.Background())
	assert.Equal(t, StatusDegraded, h.Status)
	assert.Nil(t, h.System)
	assert.False(t, m.Healthy(context.Background()))
}

func TestPerfMonitor(t *testing.T) {
	p := NewPerfMonitor()
	p.Record("GET /a", 10*time.Millisecond)
	p.Record("GET /a", 30*time.Millisecond)
	p.Record("GET /b", 5*time.Millisecond)

	s := p.Stats()
	require.Len(t, s, 2)
	assert.Equal(t, EndpointStats{Calls: 2, AvgTimeMs: 20, MinTimeMs: 10, MaxTimeMs: 30}, s["GET /a"])
	assert.Equal(t, int64(1), s["GET /b"].Calls)
}

func TestPerfMonitor_Handler(t *testing.T) {
	p := NewPerfMonitor()
	h := p.Handler("GET /x", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, int64(1), p.Stats()["GET /x"].Calls)
}
