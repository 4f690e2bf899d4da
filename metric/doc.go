// Package metric provides the Prometheus metrics registry and HTTP server used
// by nodeflow nodes.
//
// MetricsRegistry wraps a private prometheus.Registry and keys every collector
// by "service.metric" so duplicate registrations surface as Invalid errors
// instead of panics. Nodes create their own collectors and register them here;
// a nil registry disables metrics for a node entirely.
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(9090, "/metrics", registry, nil)
//	if err := server.Start(); err != nil {
//	    return err
//	}
//	defer server.Stop(5 * time.Second)
package metric
