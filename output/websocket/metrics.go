package websocket

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/nodeflow/metric"
)

// wsMetrics holds Prometheus metrics for one websocket output. A nil
// *wsMetrics records nothing.
type wsMetrics struct {
	registry *metric.MetricsRegistry
	service  string

	framesSent        prometheus.Counter
	bytesSent         prometheus.Counter
	clientsConnected  prometheus.Gauge
	connectionsTotal  prometheus.Counter
	broadcastDuration prometheus.Histogram
	errorsTotal       *prometheus.CounterVec
}

func newWSMetrics(registry *metric.MetricsRegistry, name string) (*wsMetrics, error) {
	labels := prometheus.Labels{"node": name}
	m := &wsMetrics{
		registry: registry,
		service:  name,
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "nodeflow",
			Subsystem:   "websocket",
			Name:        "frames_sent_total",
			Help:        "Total frames written to websocket clients",
			ConstLabels: labels,
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "nodeflow",
			Subsystem:   "websocket",
			Name:        "bytes_sent_total",
			Help:        "Total bytes written to websocket clients",
			ConstLabels: labels,
		}),
		clientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "nodeflow",
			Subsystem:   "websocket",
			Name:        "clients_connected",
			Help:        "Number of currently connected clients",
			ConstLabels: labels,
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "nodeflow",
			Subsystem:   "websocket",
			Name:        "connections_total",
			Help:        "Total client connections",
			ConstLabels: labels,
		}),
		broadcastDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "nodeflow",
			Subsystem:   "websocket",
			Name:        "broadcast_duration_seconds",
			Help:        "Time to write one payload to all clients",
			Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			ConstLabels: labels,
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "nodeflow",
			Subsystem:   "websocket",
			Name:        "errors_total",
			Help:        "Websocket errors by type",
			ConstLabels: labels,
		}, []string{"error_type"}),
	}

	collectors := []struct {
		name string
		c    prometheus.Collector
	}{
		{"websocket_frames_sent", m.framesSent},
		{"websocket_bytes_sent", m.bytesSent},
		{"websocket_clients_connected", m.clientsConnected},
		{"websocket_connections", m.connectionsTotal},
		{"websocket_broadcast_duration", m.broadcastDuration},
		{"websocket_errors", m.errorsTotal},
	}
	for _, entry := range collectors {
		if err := registry.Register(name, entry.name, entry.c); err != nil {
			m.unregister()
			return nil, err
		}
	}
	return m, nil
}

func (m *wsMetrics) recordConnect(clients int) {
	if m == nil {
		return
	}
	m.connectionsTotal.Inc()
	m.clientsConnected.Set(float64(clients))
}

func (m *wsMetrics) recordDisconnect(clients int) {
	if m == nil {
		return
	}
	m.clientsConnected.Set(float64(clients))
}

func (m *wsMetrics) recordBroadcast(delivered, size int, d time.Duration) {
	if m == nil {
		return
	}
	m.framesSent.Add(float64(delivered))
	m.bytesSent.Add(float64(delivered * size))
	m.broadcastDuration.Observe(d.Seconds())
}

func (m *wsMetrics) recordError(kind string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(kind).Inc()
}

func (m *wsMetrics) unregister() {
	if m == nil {
		return
	}
	for _, name := range []string{
		"websocket_frames_sent", "websocket_bytes_sent", "websocket_clients_connected",
		"websocket_connections", "websocket_broadcast_duration", "websocket_errors",
	} {
		m.registry.Unregister(m.service, name)
	}
}
