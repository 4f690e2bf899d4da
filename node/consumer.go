package node

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/nodeflow/errors"
	"github.com/c360/nodeflow/pkg/mailbox"
)

// HandlerFunc processes one mailbox item. A returned error or a panic drops
// the item; the worker keeps running.
type HandlerFunc func(sender Producer, payload Payload) error

// ConsumerNode is the consumer runtime: a private FIFO mailbox drained by one
// worker goroutine. The handler never runs concurrently with itself.
type ConsumerNode struct {
	name    string
	kind    string
	handler HandlerFunc
	log     *Logger
	metrics *nodeMetrics
	mailbox *mailbox.Mailbox[Envelope]

	mu       sync.Mutex
	state    State
	done     chan struct{}
	disposed bool

	received atomic.Int64
	handled  atomic.Int64
	failed   atomic.Int64
}

// NewConsumer creates a consumer node around handler.
func NewConsumer(handler HandlerFunc, opts ...Option) (*ConsumerNode, error) {
	if handler == nil {
		return nil, errors.WrapInvalid(errors.ErrNilHandler, "node", "NewConsumer", "validate handler")
	}
	o := newOptions("consumer", opts)
	log := NewLogger(o.name, o.flow, o.logger, o.publisher)
	return newConsumerNode("consumer", handler, o, log, newNodeMetrics(o.registry, o.name, log)), nil
}

func newConsumerNode(kind string, handler HandlerFunc, o *options, log *Logger, metrics *nodeMetrics) *ConsumerNode {
	c := &ConsumerNode{
		name:    o.name,
		kind:    kind,
		handler: handler,
		log:     log,
		metrics: metrics,
	}

	mbOpts := []mailbox.Option[Envelope]{
		mailbox.WithWatermarkCallback[Envelope](c.onWatermark),
	}
	if o.registry != nil {
		mbOpts = append(mbOpts, mailbox.WithMetrics[Envelope](o.registry, o.name))
	}
	mb, err := mailbox.New(mbOpts...)
	if err != nil {
		log.Warn("Mailbox metrics disabled", err)
		mb, _ = mailbox.New(mbOpts[:1]...)
	}
	c.mailbox = mb

	return c
}

// Name returns the display name.
func (c *ConsumerNode) Name() string {
	return c.name
}

// Log returns the node's diagnostics logger for adapters built on the node.
func (c *ConsumerNode) Log() *Logger {
	return c.log
}

// Start launches the worker. It is a no-op when already running or disposed.
// If a previous worker is still draining after Stop, Start waits for it to
// exit first.
func (c *ConsumerNode) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startLocked()
}

// startLocked must be called with mu held; it may release and reacquire it.
func (c *ConsumerNode) startLocked() {
	for c.state == StateStopping && !c.disposed {
		done := c.done
		c.mu.Unlock()
		<-done
		c.mu.Lock()
	}
	if c.disposed || c.state == StateRunning {
		return
	}

	c.mailbox.Reopen()
	c.done = make(chan struct{})
	c.state = StateRunning
	go c.run(c.done)

	c.log.Info("Node started", "kind", c.kind)
}

// Stop closes the mailbox to new waits. The worker finishes the items already
// queued and exits. Stop does not block.
func (c *ConsumerNode) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *ConsumerNode) stopLocked() {
	if c.state != StateRunning {
		return
	}
	c.state = StateStopping
	c.mailbox.Close()
	c.log.Info("Node stopping", "kind", c.kind, "pending", c.mailbox.Len())
}

// IsRunning reports whether the node is Running or Suspended.
func (c *ConsumerNode) IsRunning() bool {
	return c.State().Alive()
}

// State returns the lifecycle state. Suspended is derived from the mailbox
// reader waiting on an empty queue.
func (c *ConsumerNode) State() State {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	if state == StateRunning && c.mailbox.Waiting() {
		return StateSuspended
	}
	return state
}

// Dispose stops the node, blocks until the worker has drained the mailbox and
// exited, then releases its metrics. Concurrent and repeated calls all block
// until the worker is gone.
func (c *ConsumerNode) Dispose() {
	c.mu.Lock()
	first := !c.disposed
	c.disposed = true
	c.stopLocked()
	done := c.done
	c.mu.Unlock()

	if done != nil {
		<-done
	}
	if !first {
		return
	}

	if dropped := c.mailbox.Clear(); dropped > 0 {
		c.log.Warn("Discarded undelivered items", nil, "count", dropped)
	}
	c.mailbox.Release()
	c.metrics.release()
	c.log.Info("Node disposed", "kind", c.kind)
}

// ReceiveData enqueues the pair and returns immediately. A node that was never
// started is started; a stopped node keeps the item until it is restarted.
func (c *ConsumerNode) ReceiveData(sender Producer, payload Payload) error {
	if payload == nil {
		return errors.WrapInvalid(errors.ErrNilPayload, c.name, "ReceiveData", "validate payload")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return errors.WrapFatal(errors.ErrDisposed, c.name, "ReceiveData", "enqueue payload")
	}
	if c.state == StateNotStarted {
		c.startLocked()
	}

	depth := c.mailbox.Put(Envelope{Sender: sender, Payload: payload, Received: time.Now()})
	c.received.Add(1)
	c.metrics.recordReceived()

	if c.log.Enabled(levelDebug) {
		c.log.Debug("Item received", "sender", nameOf(sender), "depth", depth)
	}
	return nil
}

// MailboxDepth returns the number of queued items.
func (c *ConsumerNode) MailboxDepth() int {
	return c.mailbox.Len()
}

// Watermark returns the highest mailbox depth seen and when it was reached.
func (c *ConsumerNode) Watermark() mailbox.Watermark {
	return c.mailbox.Watermark()
}

// Stats returns the consumer counters.
func (c *ConsumerNode) Stats() Stats {
	w := c.mailbox.Watermark()
	return Stats{
		Name:      c.name,
		Kind:      c.kind,
		State:     c.State(),
		Received:  c.received.Load(),
		Handled:   c.handled.Load(),
		Failed:    c.failed.Load(),
		Depth:     c.mailbox.Len(),
		Watermark: w.Depth,
		PeakAt:    w.At,
	}
}

func (c *ConsumerNode) run(done chan struct{}) {
	defer func() {
		c.mu.Lock()
		if c.state == StateStopping {
			c.state = StateStopped
		}
		c.mu.Unlock()
		close(done)
		c.log.Info("Node stopped", "kind", c.kind)
	}()

	for {
		env, ok := c.mailbox.Take()
		if !ok {
			return
		}
		c.handle(env)
	}
}

func (c *ConsumerNode) handle(env Envelope) {
	start := time.Now()
	err := c.invoke(env)
	c.metrics.recordHandled(time.Since(start), err)

	if err != nil {
		c.failed.Add(1)
		c.log.Error("Item dropped", err, "sender", nameOf(env.Sender), "payload_type", fmt.Sprintf("%T", env.Payload))
		return
	}
	c.handled.Add(1)
}

func (c *ConsumerNode) invoke(env Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: %w: %v", c.name, errors.ErrHandlerPanic, r)
		}
	}()
	return c.handler(env.Sender, env.Payload)
}

func (c *ConsumerNode) onWatermark(w mailbox.Watermark) {
	if c.log.Enabled(levelDebug) {
		c.log.Debug("Mailbox watermark", "depth", w.Depth, "at", w.At)
	}
}
