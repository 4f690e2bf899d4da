package node

import (
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/c360/nodeflow/errors"
)

// Broadcaster owns a subscriber set and delivers payloads to it. It is the
// producer runtime shared by pollers, processors and push-based sources.
//
// The subscriber set is copy-on-write: Subscribe and Unsubscribe publish a new
// slice under the lock and Dispatch iterates whichever slice was current when
// it started.
type Broadcaster struct {
	name        string
	sender      Producer
	cloneOnFork bool
	log         *Logger
	metrics     *nodeMetrics

	mu          sync.Mutex
	subscribers []Consumer

	dispatched atomic.Int64
	dropped    atomic.Int64
}

// NewBroadcaster creates a standalone producer runtime. Payloads it dispatches
// carry the Broadcaster itself as sender.
func NewBroadcaster(opts ...Option) *Broadcaster {
	o := newOptions("producer", opts)
	log := NewLogger(o.name, o.flow, o.logger, o.publisher)
	b := newBroadcaster(o, log, newNodeMetrics(o.registry, o.name, log))
	b.sender = b
	return b
}

func newBroadcaster(o *options, log *Logger, metrics *nodeMetrics) *Broadcaster {
	return &Broadcaster{
		name:        o.name,
		cloneOnFork: o.cloneOnFork,
		log:         log,
		metrics:     metrics,
	}
}

// Name returns the display name.
func (b *Broadcaster) Name() string {
	return b.name
}

// Log returns the node's diagnostics logger.
func (b *Broadcaster) Log() *Logger {
	return b.log
}

// SetSender makes dispatched payloads carry p as their sender. Nodes that
// embed a Broadcaster call it once, before the first dispatch.
func (b *Broadcaster) SetSender(p Producer) {
	if p != nil {
		b.sender = p
	}
}

// Subscribe adds consumer to the subscriber set. Subscribing twice is a no-op.
func (b *Broadcaster) Subscribe(consumer Consumer) error {
	if consumer == nil {
		return errors.WrapInvalid(errors.ErrNilConsumer, b.name, "Subscribe", "validate consumer")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if indexOf(b.subscribers, consumer) >= 0 {
		return nil
	}
	next := make([]Consumer, len(b.subscribers), len(b.subscribers)+1)
	copy(next, b.subscribers)
	b.subscribers = append(next, consumer)

	b.log.Debug("Subscriber added", "subscriber", nameOf(consumer), "subscribers", len(b.subscribers))
	return nil
}

// Unsubscribe removes consumer if present.
func (b *Broadcaster) Unsubscribe(consumer Consumer) {
	if consumer == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	i := indexOf(b.subscribers, consumer)
	if i < 0 {
		return
	}
	next := make([]Consumer, 0, len(b.subscribers)-1)
	next = append(next, b.subscribers[:i]...)
	b.subscribers = append(next, b.subscribers[i+1:]...)

	b.log.Debug("Subscriber removed", "subscriber", nameOf(consumer), "subscribers", len(b.subscribers))
}

// Subscribers returns the current subscriber snapshot in subscription order.
// Callers must not modify it.
func (b *Broadcaster) Subscribers() []Consumer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subscribers
}

// SetCloneOnFork toggles deep copies for subsequent dispatches.
func (b *Broadcaster) SetCloneOnFork(enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cloneOnFork = enabled
}

// Dispatch delivers payload to every current subscriber and returns the number
// of successful deliveries. With more than one subscriber and clone-on-fork
// enabled, each subscriber receives its own clone; if any clone fails nothing
// is delivered. Having no subscribers is not an error. A subscriber that
// rejects the payload is logged and does not affect its siblings.
func (b *Broadcaster) Dispatch(payload Payload) (int, error) {
	if payload == nil {
		return 0, errors.WrapInvalid(errors.ErrNilPayload, b.name, "Dispatch", "validate payload")
	}

	b.mu.Lock()
	subscribers := b.subscribers
	clone := len(subscribers) > 1 && b.cloneOnFork
	b.mu.Unlock()

	if len(subscribers) == 0 {
		b.dropped.Add(1)
		b.metrics.recordDropped()
		return 0, nil
	}

	payloads := make([]Payload, len(subscribers))
	for i := range subscribers {
		if !clone {
			payloads[i] = payload
			continue
		}
		copied, err := ClonePayload(payload)
		if err != nil {
			return 0, errors.WrapInvalid(err, b.name, "Dispatch", "clone payload")
		}
		payloads[i] = copied
	}

	delivered := 0
	for i, subscriber := range subscribers {
		if b.Deliver(subscriber, payloads[i]) == nil {
			delivered++
		}
	}
	return delivered, nil
}

// Deliver hands payload to a single consumer, uncloned.
func (b *Broadcaster) Deliver(consumer Consumer, payload Payload) error {
	if err := consumer.ReceiveData(b.sender, payload); err != nil {
		b.log.Warn("Delivery rejected", err, "subscriber", nameOf(consumer))
		return err
	}
	b.dispatched.Add(1)
	b.metrics.recordDispatched(1)
	return nil
}

// Stats returns the broadcast counters.
func (b *Broadcaster) Stats() Stats {
	return Stats{
		Name:       b.name,
		Kind:       "producer",
		Dispatched: b.dispatched.Load(),
		Dropped:    b.dropped.Load(),
	}
}

func (b *Broadcaster) discard() {
	b.dropped.Add(1)
	b.metrics.recordDropped()
}

// indexOf finds consumer by identity. Consumers of non-comparable dynamic
// types never match.
func indexOf(subscribers []Consumer, consumer Consumer) int {
	if !isComparable(consumer) {
		return -1
	}
	for i, s := range subscribers {
		if isComparable(s) && s == consumer {
			return i
		}
	}
	return -1
}

// isComparable reports whether v can be compared with == and used as a map
// key. A struct whose interface field holds a slice has a comparable type
// but panics on comparison, so the comparison is tried once.
func isComparable(v any) (ok bool) {
	if v == nil || !reflect.TypeOf(v).Comparable() {
		return false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	w := v
	_ = v == w
	return true
}

func nameOf(v any) string {
	if v == nil {
		return "<nil>"
	}
	if n, ok := v.(Named); ok {
		return n.Name()
	}
	return reflect.TypeOf(v).String()
}
