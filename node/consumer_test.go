package node

import (
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/nodeflow/errors"
)

func newTestConsumer(t *testing.T, handler HandlerFunc, opts ...Option) *ConsumerNode {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	c, err := NewConsumer(handler, opts...)
	require.NoError(t, err)
	t.Cleanup(c.Dispose)
	return c
}

func TestNewConsumer_RejectsNilHandler(t *testing.T) {
	_, err := NewConsumer(nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNilHandler)
	assert.True(t, errors.IsInvalid(err))
}

func TestConsumer_GeneratedName(t *testing.T) {
	c := newTestConsumer(t, func(Producer, Payload) error { return nil })
	assert.Regexp(t, `^consumer-[0-9a-f]{8}$`, c.Name())

	named := newTestConsumer(t, func(Producer, Payload) error { return nil }, WithName("sink"))
	assert.Equal(t, "sink", named.Name())
}

func TestConsumer_PreservesOrder(t *testing.T) {
	var (
		mu  sync.Mutex
		got []int
	)
	c := newTestConsumer(t, func(_ Producer, p Payload) error {
		mu.Lock()
		got = append(got, p.(int))
		mu.Unlock()
		return nil
	})

	want := make([]int, 1000)
	for i := range want {
		want[i] = i
		require.NoError(t, c.ReceiveData(nil, i))
	}
	c.Dispose()

	assert.Equal(t, want, got)
}

func TestConsumer_ReceiveStartsImplicitly(t *testing.T) {
	handled := make(chan Payload, 1)
	c := newTestConsumer(t, func(_ Producer, p Payload) error {
		handled <- p
		return nil
	})
	assert.Equal(t, StateNotStarted, c.State())
	assert.False(t, c.IsRunning())

	require.NoError(t, c.ReceiveData(nil, "x"))
	assert.True(t, c.IsRunning())

	select {
	case p := <-handled:
		assert.Equal(t, "x", p)
	case <-time.After(time.Second):
		t.Fatal("item not handled")
	}
}

func TestConsumer_SuspendsWhenEmptyAndResumesOnArrival(t *testing.T) {
	handled := make(chan Payload, 2)
	c := newTestConsumer(t, func(_ Producer, p Payload) error {
		handled <- p
		return nil
	})

	c.Start()
	require.Eventually(t, func() bool { return c.State() == StateSuspended }, time.Second, time.Millisecond)
	assert.True(t, c.IsRunning(), "suspended counts as running")

	require.NoError(t, c.ReceiveData(nil, 1))
	select {
	case <-handled:
	case <-time.After(time.Second):
		t.Fatal("suspended worker was not woken")
	}
	require.Eventually(t, func() bool { return c.State() == StateSuspended }, time.Second, time.Millisecond)
}

func TestConsumer_RejectsNilPayload(t *testing.T) {
	c := newTestConsumer(t, func(Producer, Payload) error { return nil })
	err := c.ReceiveData(nil, nil)
	assert.ErrorIs(t, err, ErrNilPayload)
	assert.Equal(t, StateNotStarted, c.State(), "rejected payload must not start the node")
}

func TestConsumer_HandlerErrorsAndPanicsDropItemOnly(t *testing.T) {
	var (
		mu  sync.Mutex
		got []string
	)
	c := newTestConsumer(t, func(_ Producer, p Payload) error {
		switch p {
		case "fail":
			return stderrors.New("boom")
		case "panic":
			panic("kaboom")
		}
		mu.Lock()
		got = append(got, p.(string))
		mu.Unlock()
		return nil
	})

	for _, p := range []string{"a", "fail", "b", "panic", "c"} {
		require.NoError(t, c.ReceiveData(nil, p))
	}
	c.Dispose()

	assert.Equal(t, []string{"a", "b", "c"}, got)
	stats := c.Stats()
	assert.Equal(t, int64(5), stats.Received)
	assert.Equal(t, int64(3), stats.Handled)
	assert.Equal(t, int64(2), stats.Failed)
}

func TestConsumer_HandlerPanicIsClassified(t *testing.T) {
	c := newTestConsumer(t, func(Producer, Payload) error { panic("bad") })
	err := c.invoke(Envelope{Payload: 1})
	assert.ErrorIs(t, err, ErrHandlerPanic)
}

func TestConsumer_StopIsIdempotent(t *testing.T) {
	c := newTestConsumer(t, func(Producer, Payload) error { return nil })

	assert.NotPanics(t, func() {
		c.Stop()
		c.Stop()
	})
	assert.False(t, c.IsRunning())

	c.Start()
	require.True(t, c.IsRunning())

	assert.NotPanics(t, func() {
		c.Stop()
		assert.False(t, c.IsRunning())
		c.Stop()
		assert.False(t, c.IsRunning())
	})
	require.Eventually(t, func() bool { return c.State() == StateStopped }, time.Second, time.Millisecond)
}

func TestConsumer_DisposeBlocksUntilDrained(t *testing.T) {
	var (
		mu      sync.Mutex
		handled []int
	)
	c := newTestConsumer(t, func(_ Producer, p Payload) error {
		time.Sleep(50 * time.Millisecond)
		mu.Lock()
		handled = append(handled, p.(int))
		mu.Unlock()
		return nil
	})

	c.Start()
	for i := 1; i <= 5; i++ {
		require.NoError(t, c.ReceiveData(nil, i))
	}

	start := time.Now()
	c.Dispose()
	elapsed := time.Since(start)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3, 4, 5}, handled)
	assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond)
	assert.Equal(t, StateStopped, c.State())
	assert.False(t, c.IsRunning())
}

func TestConsumer_DisposeIsTerminal(t *testing.T) {
	c := newTestConsumer(t, func(Producer, Payload) error { return nil })
	c.Start()
	c.Dispose()
	c.Dispose()

	c.Start()
	assert.False(t, c.IsRunning(), "disposed node must not restart")

	err := c.ReceiveData(nil, "late")
	assert.ErrorIs(t, err, ErrDisposed)
	assert.True(t, errors.IsFatal(err))
}

func TestConsumer_DisposeNeverStarted(t *testing.T) {
	c := newTestConsumer(t, func(Producer, Payload) error { return nil })
	done := make(chan struct{})
	go func() {
		c.Dispose()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dispose of an unstarted node blocked")
	}
}

func TestConsumer_StoppedNodeQueuesUntilRestart(t *testing.T) {
	handled := make(chan Payload, 1)
	c := newTestConsumer(t, func(_ Producer, p Payload) error {
		handled <- p
		return nil
	})

	c.Start()
	c.Stop()
	require.Eventually(t, func() bool { return c.State() == StateStopped }, time.Second, time.Millisecond)

	require.NoError(t, c.ReceiveData(nil, "queued"))
	assert.Equal(t, 1, c.MailboxDepth())
	select {
	case <-handled:
		t.Fatal("stopped node handled an item")
	case <-time.After(20 * time.Millisecond):
	}

	c.Start()
	select {
	case p := <-handled:
		assert.Equal(t, "queued", p)
	case <-time.After(time.Second):
		t.Fatal("restarted node did not handle queued item")
	}
}

func TestConsumer_RestartWhileDraining(t *testing.T) {
	release := make(chan struct{})
	var count sync.WaitGroup
	count.Add(3)
	c := newTestConsumer(t, func(Producer, Payload) error {
		<-release
		count.Done()
		return nil
	})

	for i := 0; i < 3; i++ {
		require.NoError(t, c.ReceiveData(nil, i))
	}
	c.Stop()
	assert.Equal(t, StateStopping, c.State())

	started := make(chan struct{})
	go func() {
		c.Start()
		close(started)
	}()

	select {
	case <-started:
		t.Fatal("Start returned while the previous worker was draining")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	<-started
	count.Wait()
	assert.True(t, c.IsRunning())
}

func TestConsumer_Watermark(t *testing.T) {
	release := make(chan struct{})
	c := newTestConsumer(t, func(Producer, Payload) error {
		<-release
		return nil
	})

	before := time.Now()
	for i := 0; i < 4; i++ {
		require.NoError(t, c.ReceiveData(nil, i))
	}
	close(release)
	c.Dispose()

	w := c.Watermark()
	assert.GreaterOrEqual(t, w.Depth, 3)
	assert.LessOrEqual(t, w.Depth, 4)
	assert.False(t, w.At.Before(before))
	assert.Equal(t, w.Depth, c.Stats().Watermark)
}

func TestConsumer_ReceivesSender(t *testing.T) {
	senders := make(chan Producer, 1)
	c := newTestConsumer(t, func(s Producer, _ Payload) error {
		senders <- s
		return nil
	})
	b := NewBroadcaster(WithLogger(quietLogger()))
	require.NoError(t, b.Subscribe(c))

	_, err := b.Dispatch("hi")
	require.NoError(t, err)
	assert.Same(t, b, (<-senders).(*Broadcaster))
}
