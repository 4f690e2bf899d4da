package mailbox

import (
	"sync"
)

// Mailbox is an unbounded FIFO queue with a single blocking reader.
// All methods are safe for concurrent use.
type Mailbox[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond

	ring []T
	head int
	size int

	closed  bool
	waiting bool

	stats   *Statistics
	metrics *mailboxMetrics
	opts    *mailboxOptions[T]
}

// New creates an open, empty mailbox.
func New[T any](options ...Option[T]) (*Mailbox[T], error) {
	opts := applyOptions(options...)

	m := &Mailbox[T]{
		ring:  make([]T, opts.initialCapacity),
		stats: NewStatistics(),
		opts:  opts,
	}
	m.notEmpty = sync.NewCond(&m.mu)

	if opts.metricsReg != nil {
		metrics, err := newMailboxMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, err
		}
		m.metrics = metrics
	}

	return m, nil
}

// Put appends an item and wakes a blocked reader. It returns the depth after
// the append. Put never blocks and succeeds on a closed mailbox; the item is
// delivered once the mailbox is drained or reopened.
func (m *Mailbox[T]) Put(item T) int {
	m.mu.Lock()
	if m.size == len(m.ring) {
		m.grow()
	}
	m.ring[(m.head+m.size)%len(m.ring)] = item
	m.size++
	depth := m.size
	metrics := m.metrics
	m.notEmpty.Signal()
	m.mu.Unlock()

	m.stats.Put()
	watermark, isNew := m.stats.UpdateSize(depth)
	if metrics != nil {
		metrics.recordPut(depth)
	}
	if isNew {
		if metrics != nil {
			metrics.recordWatermark(watermark.Depth)
		}
		if m.opts.onWatermark != nil {
			m.opts.onWatermark(watermark)
		}
	}

	return depth
}

// Take removes and returns the head item, blocking while the mailbox is open
// and empty. It returns ok=false only when the mailbox is closed and empty.
func (m *Mailbox[T]) Take() (item T, ok bool) {
	m.mu.Lock()
	for m.size == 0 && !m.closed {
		if !m.waiting {
			m.waiting = true
			m.stats.Suspend()
		}
		m.notEmpty.Wait()
	}
	m.waiting = false

	if m.size == 0 {
		m.mu.Unlock()
		return item, false
	}

	item = m.pop()
	depth := m.size
	metrics := m.metrics
	m.mu.Unlock()

	m.recordTake(depth, metrics)
	return item, true
}

// TryTake removes and returns the head item without blocking.
func (m *Mailbox[T]) TryTake() (item T, ok bool) {
	m.mu.Lock()
	if m.size == 0 {
		m.mu.Unlock()
		return item, false
	}
	item = m.pop()
	depth := m.size
	metrics := m.metrics
	m.mu.Unlock()

	m.recordTake(depth, metrics)
	return item, true
}

// Len returns the number of queued items.
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.size
}

// Waiting reports whether the reader is blocked on an empty mailbox.
func (m *Mailbox[T]) Waiting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.waiting
}

// Close wakes the reader and makes Take return ok=false once the queue is empty.
// Queued items are kept. Closing twice is a no-op.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.notEmpty.Broadcast()
}

// Reopen makes a closed mailbox blocking again.
func (m *Mailbox[T]) Reopen() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = false
}

// IsClosed reports whether Close has been called since the last Reopen.
func (m *Mailbox[T]) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Clear discards all queued items and returns how many were dropped.
func (m *Mailbox[T]) Clear() int {
	m.mu.Lock()
	dropped := make([]T, 0, m.size)
	for m.size > 0 {
		dropped = append(dropped, m.pop())
	}
	metrics := m.metrics
	m.mu.Unlock()

	if len(dropped) == 0 {
		return 0
	}

	m.stats.Drop(len(dropped))
	m.stats.UpdateSize(0)
	if metrics != nil {
		metrics.depth.Set(0)
	}
	if m.opts.dropCallback != nil {
		for _, item := range dropped {
			m.opts.dropCallback(item)
		}
	}
	return len(dropped)
}

// Stats returns the mailbox statistics.
func (m *Mailbox[T]) Stats() *Statistics {
	return m.stats
}

// Watermark returns the maximum depth observed and when it was reached.
func (m *Mailbox[T]) Watermark() Watermark {
	return m.stats.Watermark()
}

// Release unregisters the mailbox metrics. The mailbox stays usable.
func (m *Mailbox[T]) Release() {
	m.mu.Lock()
	metrics := m.metrics
	m.metrics = nil
	m.mu.Unlock()

	if metrics != nil {
		metrics.unregister()
	}
}

func (m *Mailbox[T]) recordTake(depth int, metrics *mailboxMetrics) {
	m.stats.Take()
	m.stats.UpdateSize(depth)
	if metrics != nil {
		metrics.recordTake(depth)
	}
}

// pop must be called with mu held and size > 0.
func (m *Mailbox[T]) pop() T {
	var zero T
	item := m.ring[m.head]
	m.ring[m.head] = zero
	m.head = (m.head + 1) % len(m.ring)
	m.size--
	if m.size == 0 {
		m.head = 0
	}
	return item
}

// grow must be called with mu held.
func (m *Mailbox[T]) grow() {
	capacity := len(m.ring) * 2
	if capacity == 0 {
		capacity = 16
	}
	ring := make([]T, capacity)
	for i := 0; i < m.size; i++ {
		ring[i] = m.ring[(m.head+i)%len(m.ring)]
	}
	m.ring = ring
	m.head = 0
}
