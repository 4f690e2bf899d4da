package testutil

import (
	"sync"
	"time"

	"github.com/c360/nodeflow/node"
)

// Recorder is a terminal consumer node that records every payload it
// handles, in handling order.
type Recorder struct {
	*node.ConsumerNode

	mu       sync.Mutex
	payloads []node.Payload
	senders  []node.Producer
	arrived  *sync.Cond
}

// NewRecorder creates a Recorder. It panics only if the node runtime rejects
// its own handler, which cannot happen.
func NewRecorder(opts ...node.Option) *Recorder {
	r := &Recorder{}
	r.arrived = sync.NewCond(&r.mu)

	consumer, err := node.NewConsumer(r.record, opts...)
	if err != nil {
		panic(err)
	}
	r.ConsumerNode = consumer
	return r
}

func (r *Recorder) record(sender node.Producer, payload node.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, payload)
	r.senders = append(r.senders, sender)
	r.arrived.Broadcast()
	return nil
}

// Payloads returns a copy of everything recorded so far.
func (r *Recorder) Payloads() []node.Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]node.Payload(nil), r.payloads...)
}

// Strings returns recorded string payloads, skipping any other type.
func (r *Recorder) Strings() []string {
	var out []string
	for _, p := range r.Payloads() {
		if s, ok := p.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Senders returns a copy of the sender of each recorded payload.
func (r *Recorder) Senders() []node.Producer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]node.Producer(nil), r.senders...)
}

// Len returns the number of recorded payloads.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payloads)
}

// WaitFor blocks until at least n payloads are recorded or timeout elapses.
// It reports whether n was reached.
func (r *Recorder) WaitFor(n int, timeout time.Duration) bool {
	timer := time.AfterFunc(timeout, func() {
		r.mu.Lock()
		r.arrived.Broadcast()
		r.mu.Unlock()
	})
	defer timer.Stop()

	deadline := time.Now().Add(timeout)
	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.payloads) < n {
		if !time.Now().Before(deadline) {
			return false
		}
		r.arrived.Wait()
	}
	return true
}
