package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"

	// SlowRequest is the duration above which a request counts as slow.
	SlowRequest = time.Second

	cpuSampleInterval = 100 * time.Millisecond
	diskPath          = "/"
	bytesPerGB        = 1 << 30

	degradedPercent  = 90
	unhealthyPercent = 95
	maxErrorRate     = 0.1
)

// System is a point-in-time view of host resource usage.
type System struct {
	CPUPercent        float64 `json:"cpu_percent" yaml:"cpu_percent"`
	MemoryPercent     float64 `json:"memory_percent" yaml:"memory_percent"`
	MemoryAvailableGB float64 `json:"memory_available_gb" yaml:"memory_available_gb"`
	DiskPercent       float64 `json:"disk_percent" yaml:"disk_percent"`
	DiskFreeGB        float64 `json:"disk_free_gb" yaml:"disk_free_gb"`
}

// Application holds request counters since start.
type Application struct {
	TotalRequests int64   `json:"total_requests" yaml:"total_requests"`
	TotalErrors   int64   `json:"total_errors" yaml:"total_errors"`
	SlowRequests  int64   `json:"slow_requests" yaml:"slow_requests"`
	ErrorRate     float64 `json:"error_rate" yaml:"error_rate"`
}

// Health is the payload of the metrics endpoint health section.
type Health struct {
	Status        string      `json:"status" yaml:"status"`
	UptimeSeconds int64       `json:"uptime_seconds" yaml:"uptime_seconds"`
	UptimeHuman   string      `json:"uptime_human" yaml:"uptime_human"`
	System        *System     `json:"system,omitempty" yaml:"system,omitempty"`
	Application   Application `json:"application" yaml:"application"`
	Timestamp     time.Time   `json:"timestamp" yaml:"timestamp"`
}

// Sampler reads host resource usage.
type Sampler func(ctx context.Context) (*System, error)

// HealthMonitor counts requests and errors and samples host resources.
type HealthMonitor struct {
	start    time.Time
	requests atomic.Int64
	errors   atomic.Int64
	slow     atomic.Int64
	sample   Sampler
}

// NewHealthMonitor creates a monitor sampling the local host.
func NewHealthMonitor() *HealthMonitor {
	return &HealthMonitor{start: time.Now(), sample: SampleSystem}
}

// Record counts one finished request. Server errors (5xx) count as errors.
func (m *HealthMonitor) Record(status int, d time.Duration) {
	m.requests.Add(1)
	if status >= 500 {
		m.errors.Add(1)
	}
	if d > SlowRequest {
		m.slow.Add(1)
	}
}

// Application returns the request counters.
func (m *HealthMonitor) Application() Application {
	a := Application{
		TotalRequests: m.requests.Load(),
		TotalErrors:   m.errors.Load(),
		SlowRequests:  m.slow.Load(),
	}
	a.ErrorRate = round2(float64(a.TotalErrors) / float64(max(a.TotalRequests, 1)) * 100)
	return a
}

// Uptime returns the time since the monitor was created.
func (m *HealthMonitor) Uptime() time.Duration {
	return time.Since(m.start)
}

// Health reports counters, uptime, and host usage. A failed host sample
// leaves System nil and marks the status degraded.
func (m *HealthMonitor) Health(ctx context.Context) *Health {
	up := m.Uptime()
	h := &Health{
		Status:        StatusDegraded,
		UptimeSeconds: int64(up.Seconds()),
		UptimeHuman:   fmt.Sprintf("%dh %dm", int(up.Hours()), int(up.Minutes())%60),
		Application:   m.Application(),
		Timestamp:     time.Now().UTC(),
	}

	s, err := m.sample(ctx)
	if err != nil {
		slog.Warn("failed to sample system metrics", "error", err)
		return h
	}
	h.System = s
	if s.CPUPercent < degradedPercent && s.MemoryPercent < degradedPercent {
		h.Status = StatusHealthy
	}
	return h
}

// Healthy reports whether CPU, memory and disk are each under 95% and
// fewer than 10% of requests failed.
func (m *HealthMonitor) Healthy(ctx context.Context) bool {
	s, err := m.sample(ctx)
	if err != nil {
		slog.Error("health check failed", "error", err)
		return false
	}
	rate := float64(m.errors.Load()) / float64(max(m.requests.Load(), 1))
	return s.CPUPercent < unhealthyPercent &&
		s.MemoryPercent < unhealthyPercent &&
		s.DiskPercent < unhealthyPercent &&
		rate < maxErrorRate
}

// SampleSystem reads CPU, memory and root disk usage via gopsutil.
func SampleSystem(ctx context.Context) (*System, error) {
	cpus, err := cpu.PercentWithContext(ctx, cpuSampleInterval, false)
	if err != nil {
		return nil, fmt.Errorf("cpu: %w", err)
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("memory: %w", err)
	}
	du, err := disk.UsageWithContext(ctx, diskPath)
	if err != nil {
		return nil, fmt.Errorf("disk: %w", err)
	}

	s := &System{
		MemoryPercent:     round2(vm.UsedPercent),
		MemoryAvailableGB: round2(float64(vm.Available) / bytesPerGB),
		DiskPercent:       round2(du.UsedPercent),
		DiskFreeGB:        round2(float64(du.Free) / bytesPerGB),
	}
	if len(cpus) > 0 {
		s.CPUPercent = round2(cpus[0])
	}
	return s, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
