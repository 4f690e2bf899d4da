package node

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/nodeflow/errors"
)

// ProduceFunc is one production step. A nil payload means nothing this cycle.
type ProduceFunc func() (Payload, error)

// Poller is the polling producer runtime. Its worker repeatedly produces a
// payload, dispatches it and sleeps the poll interval in slices of at most
// MaxSleepSlice that observe Stop.
type Poller struct {
	*Broadcaster

	produce               ProduceFunc
	interval              time.Duration
	limiter               *rate.Limiter
	backpressureThreshold int
	backpressureWait      time.Duration

	mu       sync.Mutex
	state    State
	cancel   context.CancelFunc
	done     chan struct{}
	disposed bool

	produced atomic.Int64
	failed   atomic.Int64
}

// NewPoller creates a polling producer around produce.
func NewPoller(produce ProduceFunc, opts ...Option) (*Poller, error) {
	if produce == nil {
		return nil, errors.WrapInvalid(errors.ErrNilHandler, "node", "NewPoller", "validate produce func")
	}
	o := newOptions("poller", opts)
	if o.backpressureThreshold > 0 && o.backpressureWait <= 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: backpressure wait must be positive", errors.ErrInvalidConfig),
			o.name, "NewPoller", "validate backpressure")
	}

	log := NewLogger(o.name, o.flow, o.logger, o.publisher)
	p := &Poller{
		Broadcaster:           newBroadcaster(o, log, newNodeMetrics(o.registry, o.name, log)),
		produce:               produce,
		interval:              o.pollInterval,
		limiter:               o.limiter,
		backpressureThreshold: o.backpressureThreshold,
		backpressureWait:      o.backpressureWait,
	}
	p.sender = p
	return p, nil
}

// Start launches the poll loop. It is a no-op when already running or disposed.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for p.state == StateStopping && !p.disposed {
		done := p.done
		p.mu.Unlock()
		<-done
		p.mu.Lock()
	}
	if p.disposed || p.state == StateRunning {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	p.state = StateRunning
	go p.run(ctx, p.done)

	p.log.Info("Node started", "kind", "poller", "interval", p.interval)
}

// Stop signals the loop to exit at the next slice boundary. An in-progress
// production step is never interrupted. Stop does not block.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Poller) stopLocked() {
	if p.state != StateRunning {
		return
	}
	p.state = StateStopping
	p.cancel()
	p.log.Info("Node stopping", "kind", "poller")
}

// IsRunning reports whether the poll loop is Running.
func (p *Poller) IsRunning() bool {
	return p.State() == StateRunning
}

// State returns the lifecycle state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Dispose stops the loop and blocks until the worker has exited.
func (p *Poller) Dispose() {
	p.mu.Lock()
	first := !p.disposed
	p.disposed = true
	p.stopLocked()
	done := p.done
	p.mu.Unlock()

	if done != nil {
		<-done
	}
	if first {
		p.metrics.release()
		p.log.Info("Node disposed", "kind", "poller")
	}
}

// Stats returns the poller counters.
func (p *Poller) Stats() Stats {
	s := p.Broadcaster.Stats()
	s.Kind = "poller"
	s.State = p.State()
	s.Produced = p.produced.Load()
	s.Failed = p.failed.Load()
	return s
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer func() {
		p.mu.Lock()
		if p.state == StateStopping {
			p.state = StateStopped
		}
		p.mu.Unlock()
		close(done)
		p.log.Info("Node stopped", "kind", "poller")
	}()

	for ctx.Err() == nil {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return
			}
		}

		p.cycle()

		if !sleepSliced(ctx, p.interval) {
			return
		}

		if p.backpressureThreshold > 0 {
			if load := BranchLoad(p); load > p.backpressureThreshold {
				p.metrics.recordBackpressureWait()
				p.log.Debug("Backpressure wait", "branch_load", load, "threshold", p.backpressureThreshold)
				if !sleepSliced(ctx, p.backpressureWait) {
					return
				}
			}
		}
	}
}

// cycle runs one production step and dispatches its result.
func (p *Poller) cycle() {
	payload, err := p.produceOnce()
	if err != nil {
		p.failed.Add(1)
		p.metrics.recordFailed()
		p.log.Error("Production failed", err)
		return
	}
	if payload == nil {
		return
	}

	p.produced.Add(1)
	p.metrics.recordProduced()
	if _, err := p.Dispatch(payload); err != nil {
		p.failed.Add(1)
		p.metrics.recordFailed()
		p.log.Error("Item dropped", err, "payload_type", fmt.Sprintf("%T", payload))
	}
}

func (p *Poller) produceOnce() (payload Payload, err error) {
	defer func() {
		if r := recover(); r != nil {
			payload = nil
			err = fmt.Errorf("%s: %w: %v", p.name, errors.ErrHandlerPanic, r)
		}
	}()
	return p.produce()
}

// sleepSliced waits d in slices of at most MaxSleepSlice. It returns false if
// ctx is done before the full duration elapses.
func sleepSliced(ctx context.Context, d time.Duration) bool {
	for d > 0 {
		slice := min(d, MaxSleepSlice)
		timer := time.NewTimer(slice)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
		d -= slice
	}
	return ctx.Err() == nil
}
