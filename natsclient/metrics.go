package natsclient

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/nodeflow/metric"
)

type clientMetrics struct {
	registry      *metric.MetricsRegistry
	published     *prometheus.CounterVec
	publishErrors *prometheus.CounterVec
	received      prometheus.Counter
}

func newClientMetrics(registry *metric.MetricsRegistry) (*clientMetrics, error) {
	m := &clientMetrics{
		registry: registry,
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nodeflow",
			Subsystem: "nats",
			Name:      "published_total",
			Help:      "Messages published, by mode (core or jetstream)",
		}, []string{"mode"}),
		publishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nodeflow",
			Subsystem: "nats",
			Name:      "publish_errors_total",
			Help:      "Failed publishes, by mode",
		}, []string{"mode"}),
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nodeflow",
			Subsystem: "nats",
			Name:      "received_total",
			Help:      "Messages delivered to subscription handlers",
		}),
	}

	if err := registry.RegisterCounterVec("natsclient", "published", m.published); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("natsclient", "publish_errors", m.publishErrors); err != nil {
		registry.Unregister("natsclient", "published")
		return nil, err
	}
	if err := registry.RegisterCounter("natsclient", "received", m.received); err != nil {
		registry.Unregister("natsclient", "published")
		registry.Unregister("natsclient", "publish_errors")
		return nil, err
	}
	return m, nil
}

func (m *clientMetrics) recordPublish(mode string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.publishErrors.WithLabelValues(mode).Inc()
		return
	}
	m.published.WithLabelValues(mode).Inc()
}

func (m *clientMetrics) recordReceived() {
	if m != nil {
		m.received.Inc()
	}
}

func (m *clientMetrics) release() {
	if m == nil {
		return
	}
	m.registry.Unregister("natsclient", "published")
	m.registry.Unregister("natsclient", "publish_errors")
	m.registry.Unregister("natsclient", "received")
}
