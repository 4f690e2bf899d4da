// Package health turns node activity into healthy, degraded or unhealthy
// statuses and aggregates them for a pipeline.
//
// A Monitor keeps the latest Status per node. Observe derives a status from a
// node's Stats snapshot using Thresholds:
//
//	monitor := health.NewMonitor(health.Thresholds{MaxDepth: 1000})
//	monitor.Observe(sink)
//	overall := monitor.AggregateHealth("pipeline")
//
// Aggregation is worst-wins: any unhealthy node makes the aggregate unhealthy,
// otherwise any degraded node makes it degraded.
//
// Error messages recorded through FromError or Monitor.RecordError are
// sanitized: URLs, paths, IP addresses, ports and credential assignments are
// replaced with placeholders.
package health
