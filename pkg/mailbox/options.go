package mailbox

import (
	"github.com/c360/nodeflow/metric"
)

// Option configures mailbox behavior using the functional options pattern.
type Option[T any] func(*mailboxOptions[T])

// WatermarkCallback is called, outside the mailbox lock, each time the queue
// depth reaches a new high.
type WatermarkCallback func(w Watermark)

// DropCallback is called for every item discarded by Clear.
type DropCallback[T any] func(item T)

type mailboxOptions[T any] struct {
	initialCapacity int
	onWatermark     WatermarkCallback
	dropCallback    DropCallback[T]

	metricsReg    *metric.MetricsRegistry
	metricsPrefix string
}

// WithInitialCapacity presizes the backing ring.
func WithInitialCapacity[T any](capacity int) Option[T] {
	return func(opts *mailboxOptions[T]) {
		if capacity > 0 {
			opts.initialCapacity = capacity
		}
	}
}

// WithWatermarkCallback observes new maximum queue depths.
func WithWatermarkCallback[T any](callback WatermarkCallback) Option[T] {
	return func(opts *mailboxOptions[T]) {
		opts.onWatermark = callback
	}
}

// WithDropCallback observes items discarded by Clear.
func WithDropCallback[T any](callback DropCallback[T]) Option[T] {
	return func(opts *mailboxOptions[T]) {
		opts.dropCallback = callback
	}
}

// WithMetrics enables Prometheus gauges and counters for this mailbox.
// The prefix becomes the "node" label; a nil registry or empty prefix is ignored.
func WithMetrics[T any](registry *metric.MetricsRegistry, prefix string) Option[T] {
	return func(opts *mailboxOptions[T]) {
		if registry != nil && prefix != "" {
			opts.metricsReg = registry
			opts.metricsPrefix = prefix
		}
	}
}

func applyOptions[T any](options ...Option[T]) *mailboxOptions[T] {
	opts := &mailboxOptions[T]{
		initialCapacity: 16,
	}

	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}

	return opts
}
