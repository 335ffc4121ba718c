package monitor

import (
	"net/http"
	"sync"
	"time"
)

// EndpointStats summarizes the latency of one route.
type EndpointStats struct {
	Calls     int64   `json:"calls" yaml:"calls"`
	AvgTimeMs float64 `json:"avg_time_ms" yaml:"avg_time_ms"`
	MinTimeMs float64 `json:"min_time_ms" yaml:"min_time_ms"`
	MaxTimeMs float64 `json:"max_time_ms" yaml:"max_time_ms"`
}

type timing struct {
	count int64
	total time.Duration
	min   time.Duration
	max   time.Duration
}

// PerfMonitor tracks per-route latency.
type PerfMonitor struct {
	mu     sync.Mutex
	routes map[string]*timing
}

func NewPerfMonitor() *PerfMonitor {
	return &PerfMonitor{routes: make(map[string]*timing)}
}

// Record adds one observation for route.
func (p *PerfMonitor) Record(route string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.routes[route]
	if !ok {
		t = &timing{min: d}
		p.routes[route] = t
	}
	t.count++
	t.total += d
	t.min = min(t.min, d)
	t.max = max(t.max, d)
}

// Stats returns a copy of the per-route summaries.
func (p *PerfMonitor) Stats() map[string]EndpointStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]EndpointStats, len(p.routes))
	for route, t := range p.routes {
		out[route] = EndpointStats{
			Calls:     t.count,
			AvgTimeMs: ms(t.total / time.Duration(t.count)),
			MinTimeMs: ms(t.min),
			MaxTimeMs: ms(t.max),
		}
	}
	return out
}

// Handler times every call of h under route.
func (p *PerfMonitor) Handler(route string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		h.ServeHTTP(w, r)
		p.Record(route, time.Since(start))
	})
}

func ms(d time.Duration) float64 {
	return round2(float64(d) / float64(time.Millisecond))
}
