// Package generator provides a polling source node that emits a fixed
// sequence of strings or an increasing int64 counter, one value per poll
// cycle. It is the demo source of cmd/nodeflow and a convenient driver for
// tests and benchmarks of downstream nodes.
package generator
