package node

import (
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestPoller(t *testing.T, produce ProduceFunc, opts ...Option) *Poller {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger()), WithPollInterval(time.Millisecond)}, opts...)
	p, err := NewPoller(produce, opts...)
	require.NoError(t, err)
	t.Cleanup(p.Dispose)
	return p
}

// sequence produces the given payloads once each, then nil.
func sequence(items ...Payload) ProduceFunc {
	var i atomic.Int64
	return func() (Payload, error) {
		n := int(i.Add(1)) - 1
		if n >= len(items) {
			return nil, nil
		}
		return items[n], nil
	}
}

func TestNewPoller_Validation(t *testing.T) {
	_, err := NewPoller(nil)
	assert.ErrorIs(t, err, ErrNilHandler)

	_, err = NewPoller(sequence(), WithBackpressure(5, 0))
	assert.Error(t, err)
}

func TestPoller_DispatchesInOrder(t *testing.T) {
	p := newTestPoller(t, sequence("a", "b", "c", "d"))
	s := &sink{name: "s"}
	require.NoError(t, p.Subscribe(s))

	p.Start()
	require.Eventually(t, func() bool { return len(s.received()) == 4 }, time.Second, time.Millisecond)
	p.Dispose()

	assert.Equal(t, []Payload{"a", "b", "c", "d"}, s.received())
	for _, sender := range s.senders {
		assert.Same(t, p, sender.(*Poller))
	}
	stats := p.Stats()
	assert.Equal(t, int64(4), stats.Produced)
	assert.Equal(t, int64(4), stats.Dispatched)
	assert.Equal(t, "poller", stats.Kind)
}

func TestPoller_ProductionErrorsAreSkipped(t *testing.T) {
	var calls atomic.Int64
	p := newTestPoller(t, func() (Payload, error) {
		switch calls.Add(1) {
		case 1:
			return nil, stderrors.New("source down")
		case 2:
			panic("bad source")
		case 3:
			return "ok", nil
		default:
			return nil, nil
		}
	})
	s := &sink{name: "s"}
	require.NoError(t, p.Subscribe(s))

	p.Start()
	require.Eventually(t, func() bool { return len(s.received()) == 1 }, time.Second, time.Millisecond)
	assert.True(t, p.IsRunning(), "loop survives failed cycles")
	p.Dispose()

	assert.Equal(t, int64(2), p.Stats().Failed)
}

func TestPoller_StopIsObservedWithinOneSlice(t *testing.T) {
	p := newTestPoller(t, sequence(), WithPollInterval(time.Hour))
	p.Start()
	require.True(t, p.IsRunning())

	start := time.Now()
	p.Dispose()
	assert.Less(t, time.Since(start), MaxSleepSlice+100*time.Millisecond)
	assert.Equal(t, StateStopped, p.State())
}

func TestPoller_StopIsIdempotent(t *testing.T) {
	p := newTestPoller(t, sequence())

	assert.NotPanics(t, func() {
		p.Stop()
		assert.False(t, p.IsRunning())
		p.Start()
		p.Stop()
		assert.False(t, p.IsRunning())
		p.Stop()
		assert.False(t, p.IsRunning())
	})
}

func TestPoller_StopDoesNotInterruptProduction(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once atomic.Bool
	p := newTestPoller(t, func() (Payload, error) {
		if once.CompareAndSwap(false, true) {
			close(entered)
			<-release
			return "finished", nil
		}
		return nil, nil
	})
	s := &sink{name: "s"}
	require.NoError(t, p.Subscribe(s))

	p.Start()
	<-entered
	p.Stop()
	close(release)
	p.Dispose()

	assert.Equal(t, []Payload{"finished"}, s.received())
}

func TestPoller_RestartAfterStop(t *testing.T) {
	var calls atomic.Int64
	p := newTestPoller(t, func() (Payload, error) {
		calls.Add(1)
		return nil, nil
	})

	p.Start()
	require.Eventually(t, func() bool { return calls.Load() > 0 }, time.Second, time.Millisecond)
	p.Stop()
	p.Start()
	assert.True(t, p.IsRunning())

	before := calls.Load()
	require.Eventually(t, func() bool { return calls.Load() > before }, time.Second, time.Millisecond)

	p.Dispose()
	p.Start()
	assert.False(t, p.IsRunning(), "disposed poller must not restart")
}

func TestPoller_Backpressure(t *testing.T) {
	loaded := &sink{name: "loaded", depth: 10}
	var calls atomic.Int64
	p := newTestPoller(t, func() (Payload, error) {
		calls.Add(1)
		return nil, nil
	}, WithBackpressure(5, time.Hour))
	require.NoError(t, p.Subscribe(loaded))

	p.Start()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	// The extra wait holds the loop after the first cycle.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(1), calls.Load())

	start := time.Now()
	p.Dispose()
	assert.Less(t, time.Since(start), time.Second, "backpressure wait observes Stop")
}

func TestPoller_RateLimit(t *testing.T) {
	var calls atomic.Int64
	p := newTestPoller(t, func() (Payload, error) {
		calls.Add(1)
		return nil, nil
	}, WithPollInterval(0), WithRateLimit(rate.Limit(20), 1))

	p.Start()
	time.Sleep(200 * time.Millisecond)
	p.Dispose()

	// 20/s with burst 1 allows about 5 cycles in 200ms.
	assert.LessOrEqual(t, calls.Load(), int64(8))
	assert.GreaterOrEqual(t, calls.Load(), int64(2))
}
