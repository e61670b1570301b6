package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/platebook/importer-backend/internal/logger"
)

// Probe reports whether one dependency is reachable. Probes should be cheap;
// the monitor calls every registered probe on each refresh.
type Probe func(ctx context.Context) error

// Monitor caches the health of registered dependencies. Workers consult
// IsHealthy before claiming a job, so the check has to be a cache read, not a
// round trip per job.
type Monitor struct {
	log      *logger.Logger
	interval time.Duration

	mu        sync.RWMutex
	probes    map[string]Probe
	results   map[string]error
	checkedAt time.Time
}

func NewMonitor(log *logger.Logger, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Monitor{
		log:      log.With("component", "HealthMonitor"),
		interval: interval,
		probes:   make(map[string]Probe),
		results:  make(map[string]error),
	}
}

// RegisterProbe adds a named dependency. Re-registering a name replaces the
// probe; registration happens during wiring, before workers start.
func (m *Monitor) RegisterProbe(name string, p Probe) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes[name] = p
}

// IsHealthy reports whether every dependency passed its most recent probe,
// refreshing the cache when it is stale.
func (m *Monitor) IsHealthy(ctx context.Context) bool {
	for _, err := range m.snapshot(ctx) {
		if err != nil {
			return false
		}
	}
	return true
}

// Check returns the per-dependency detail for the health endpoint. Names are
// sorted so the response body is stable.
type Check struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

func (m *Monitor) Check(ctx context.Context) []Check {
	results := m.snapshot(ctx)
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make([]Check, 0, len(names))
	for _, name := range names {
		c := Check{Name: name, Healthy: results[name] == nil}
		if results[name] != nil {
			c.Error = results[name].Error()
		}
		checks = append(checks, c)
	}
	return checks
}

func (m *Monitor) snapshot(ctx context.Context) map[string]error {
	m.mu.RLock()
	fresh := time.Since(m.checkedAt) < m.interval && len(m.results) == len(m.probes)
	if fresh {
		out := make(map[string]error, len(m.results))
		for k, v := range m.results {
			out[k] = v
		}
		m.mu.RUnlock()
		return out
	}
	m.mu.RUnlock()
	return m.refresh(ctx)
}

func (m *Monitor) refresh(ctx context.Context) map[string]error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Another caller may have refreshed while we waited for the lock.
	if time.Since(m.checkedAt) < m.interval && len(m.results) == len(m.probes) {
		out := make(map[string]error, len(m.results))
		for k, v := range m.results {
			out[k] = v
		}
		return out
	}

	results := make(map[string]error, len(m.probes))
	for name, probe := range m.probes {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := probe(probeCtx)
		cancel()
		results[name] = err
		if err != nil {
			m.log.Warn("Dependency unhealthy", "dependency", name, "error", err)
		}
	}
	m.results = results
	m.checkedAt = time.Now()

	out := make(map[string]error, len(results))
	for k, v := range results {
		out[k] = v
	}
	return out
}
