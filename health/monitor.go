package health

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/c360/nodeflow/node"
)

// Monitor tracks the latest status of named nodes.
type Monitor struct {
	mu         sync.RWMutex
	statuses   map[string]Status
	thresholds Thresholds
}

// NewMonitor creates a monitor that judges node stats with th.
func NewMonitor(th Thresholds) *Monitor {
	return &Monitor{
		statuses:   make(map[string]Status),
		thresholds: th,
	}
}

// Update stores status under name, overriding its Node field and filling a
// missing timestamp.
func (m *Monitor) Update(name string, status Status) {
	status.Node = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}

	m.mu.Lock()
	m.statuses[name] = status
	m.mu.Unlock()
}

// Observe records the current stats of reporter.
func (m *Monitor) Observe(reporter node.StatsReporter) Status {
	stats := reporter.Stats()
	status := FromNodeStats(stats, m.thresholds)
	m.Update(stats.Name, status)
	return status
}

// RecordError marks name unhealthy with a sanitized error message.
func (m *Monitor) RecordError(name string, err error) {
	m.Update(name, FromError(name, err))
}

func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, ok := m.statuses[name]
	return status, ok
}

// GetAll returns a copy of all statuses.
func (m *Monitor) GetAll() map[string]Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.statuses)
}

func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	delete(m.statuses, name)
	m.mu.Unlock()
}

// Names returns the monitored node names in sorted order.
func (m *Monitor) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.statuses))
}

func (m *Monitor) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.statuses)
}

// AggregateHealth rolls every monitored status up under name. Sub-statuses are
// ordered by node name.
func (m *Monitor) AggregateHealth(name string) Status {
	m.mu.RLock()
	subs := make([]Status, 0, len(m.statuses))
	for _, key := range slices.Sorted(maps.Keys(m.statuses)) {
		subs = append(subs, m.statuses[key])
	}
	m.mu.RUnlock()
	return Aggregate(name, subs)
}
