package mailbox

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/nodeflow/metric"
)

// mailboxMetrics holds Prometheus metrics for one mailbox.
type mailboxMetrics struct {
	registry *metric.MetricsRegistry
	prefix   string

	puts      prometheus.Counter
	takes     prometheus.Counter
	depth     prometheus.Gauge
	watermark prometheus.Gauge
}

func newMailboxMetrics(registry *metric.MetricsRegistry, prefix string) (*mailboxMetrics, error) {
	labels := prometheus.Labels{"node": prefix}

	m := &mailboxMetrics{
		registry: registry,
		prefix:   prefix,
		puts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "nodeflow",
			Subsystem:   "mailbox",
			Name:        "puts_total",
			ConstLabels: labels,
			Help:        "Total number of items enqueued",
		}),
		takes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "nodeflow",
			Subsystem:   "mailbox",
			Name:        "takes_total",
			ConstLabels: labels,
			Help:        "Total number of items dequeued",
		}),
		depth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "nodeflow",
			Subsystem:   "mailbox",
			Name:        "depth",
			ConstLabels: labels,
			Help:        "Current number of queued items",
		}),
		watermark: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "nodeflow",
			Subsystem:   "mailbox",
			Name:        "watermark",
			ConstLabels: labels,
			Help:        "Highest queue depth observed",
		}),
	}

	if err := registry.RegisterCounter(prefix, "mailbox_puts", m.puts); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "mailbox_takes", m.takes); err != nil {
		m.unregister()
		return nil, err
	}
	if err := registry.RegisterGauge(prefix, "mailbox_depth", m.depth); err != nil {
		m.unregister()
		return nil, err
	}
	if err := registry.RegisterGauge(prefix, "mailbox_watermark", m.watermark); err != nil {
		m.unregister()
		return nil, err
	}

	return m, nil
}

func (m *mailboxMetrics) recordPut(size int) {
	m.puts.Inc()
	m.depth.Set(float64(size))
}

func (m *mailboxMetrics) recordTake(size int) {
	m.takes.Inc()
	m.depth.Set(float64(size))
}

func (m *mailboxMetrics) recordWatermark(depth int) {
	m.watermark.Set(float64(depth))
}

func (m *mailboxMetrics) unregister() {
	for _, name := range []string{"mailbox_puts", "mailbox_takes", "mailbox_depth", "mailbox_watermark"} {
		m.registry.Unregister(m.prefix, name)
	}
}
