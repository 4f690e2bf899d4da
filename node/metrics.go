package node

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/nodeflow/metric"
)

// engineMetrics holds the node-labelled vectors shared by every node that
// reports to one registry.
type engineMetrics struct {
	received          *prometheus.CounterVec
	handled           *prometheus.CounterVec
	failed            *prometheus.CounterVec
	produced          *prometheus.CounterVec
	dispatched        *prometheus.CounterVec
	dropped           *prometheus.CounterVec
	backpressureWaits *prometheus.CounterVec
	handleDuration    *prometheus.HistogramVec
}

var (
	engineMetricsMu sync.Mutex
	engineByReg     = make(map[*metric.MetricsRegistry]*engineMetrics)
)

// engineMetricsFor returns the vectors for registry, registering them on first use.
func engineMetricsFor(registry *metric.MetricsRegistry) (*engineMetrics, error) {
	engineMetricsMu.Lock()
	defer engineMetricsMu.Unlock()

	if m, ok := engineByReg[registry]; ok {
		return m, nil
	}

	counter := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nodeflow",
			Subsystem: "node",
			Name:      name,
			Help:      help,
		}, []string{"node"})
	}

	m := &engineMetrics{
		received:          counter("received_total", "Items accepted into the node mailbox"),
		handled:           counter("handled_total", "Items handled without error"),
		failed:            counter("failed_total", "Items dropped because the handler, transform or produce step failed"),
		produced:          counter("produced_total", "Payloads returned by a poller production step"),
		dispatched:        counter("dispatched_total", "Deliveries made to subscribers"),
		dropped:           counter("dropped_total", "Payloads discarded because there were no subscribers"),
		backpressureWaits: counter("backpressure_waits_total", "Extra poller waits caused by downstream branch load"),
		handleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nodeflow",
			Subsystem: "node",
			Name:      "handle_duration_seconds",
			Help:      "Time spent handling one mailbox item",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"node"}),
	}

	counters := map[string]*prometheus.CounterVec{
		"node_received":           m.received,
		"node_handled":            m.handled,
		"node_failed":             m.failed,
		"node_produced":           m.produced,
		"node_dispatched":         m.dispatched,
		"node_dropped":            m.dropped,
		"node_backpressure_waits": m.backpressureWaits,
	}
	registered := make([]string, 0, len(counters)+1)
	rollback := func() {
		for _, name := range registered {
			registry.Unregister("nodeflow", name)
		}
	}
	for name, vec := range counters {
		if err := registry.RegisterCounterVec("nodeflow", name, vec); err != nil {
			rollback()
			return nil, err
		}
		registered = append(registered, name)
	}
	if err := registry.RegisterHistogramVec("nodeflow", "node_handle_duration", m.handleDuration); err != nil {
		rollback()
		return nil, err
	}

	engineByReg[registry] = m
	return m, nil
}

// nodeMetrics are the label children for one node. A nil *nodeMetrics is a
// valid no-op recorder.
type nodeMetrics struct {
	engine *engineMetrics
	name   string

	received          prometheus.Counter
	handled           prometheus.Counter
	failed            prometheus.Counter
	produced          prometheus.Counter
	dispatched        prometheus.Counter
	dropped           prometheus.Counter
	backpressureWaits prometheus.Counter
	handleDuration    prometheus.Observer
}

func newNodeMetrics(registry *metric.MetricsRegistry, name string, log *Logger) *nodeMetrics {
	if registry == nil {
		return nil
	}
	engine, err := engineMetricsFor(registry)
	if err != nil {
		log.Warn("Metrics disabled", err)
		return nil
	}
	return &nodeMetrics{
		engine:            engine,
		name:              name,
		received:          engine.received.WithLabelValues(name),
		handled:           engine.handled.WithLabelValues(name),
		failed:            engine.failed.WithLabelValues(name),
		produced:          engine.produced.WithLabelValues(name),
		dispatched:        engine.dispatched.WithLabelValues(name),
		dropped:           engine.dropped.WithLabelValues(name),
		backpressureWaits: engine.backpressureWaits.WithLabelValues(name),
		handleDuration:    engine.handleDuration.WithLabelValues(name),
	}
}

func (m *nodeMetrics) recordReceived() {
	if m != nil {
		m.received.Inc()
	}
}

func (m *nodeMetrics) recordHandled(elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.handleDuration.Observe(elapsed.Seconds())
	if err != nil {
		m.failed.Inc()
		return
	}
	m.handled.Inc()
}

func (m *nodeMetrics) recordFailed() {
	if m != nil {
		m.failed.Inc()
	}
}

func (m *nodeMetrics) recordProduced() {
	if m != nil {
		m.produced.Inc()
	}
}

func (m *nodeMetrics) recordDispatched(n int) {
	if m != nil && n > 0 {
		m.dispatched.Add(float64(n))
	}
}

func (m *nodeMetrics) recordDropped() {
	if m != nil {
		m.dropped.Inc()
	}
}

func (m *nodeMetrics) recordBackpressureWait() {
	if m != nil {
		m.backpressureWaits.Inc()
	}
}

// release removes this node's label children from every vector.
func (m *nodeMetrics) release() {
	if m == nil {
		return
	}
	for _, vec := range []*prometheus.CounterVec{
		m.engine.received, m.engine.handled, m.engine.failed, m.engine.produced,
		m.engine.dispatched, m.engine.dropped, m.engine.backpressureWaits,
	} {
		vec.DeleteLabelValues(m.name)
	}
	m.engine.handleDuration.DeleteLabelValues(m.name)
}
