package generator

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/nodeflow/errors"
	"github.com/c360/nodeflow/node"
	"github.com/c360/nodeflow/testutil"
)

const testTimeout = 2 * time.Second

func quiet() node.Option {
	return node.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"sequence", Config{Mode: ModeSequence, Items: []string{"a"}}, false},
		{"counter", Config{Mode: ModeCounter}, false},
		{"empty sequence", Config{Mode: ModeSequence}, true},
		{"unknown mode", Config{Mode: "random"}, true},
		{"negative count", Config{Mode: ModeCounter, Count: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.True(t, errors.IsInvalid(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSequenceEmitsItemsOnce(t *testing.T) {
	g, err := New(Config{Mode: ModeSequence, Items: []string{"a", "b", "c"}},
		quiet(), node.WithPollInterval(time.Millisecond))
	require.NoError(t, err)

	rec := testutil.NewRecorder(quiet())
	require.NoError(t, g.Subscribe(rec))
	g.Start()

	select {
	case <-g.Done():
	case <-time.After(testTimeout):
		t.Fatal("generator never finished")
	}
	g.Dispose()
	rec.Dispose()

	assert.Equal(t, []string{"a", "b", "c"}, rec.Strings())
	assert.Equal(t, int64(3), g.Emitted())
	for _, sender := range rec.Senders() {
		assert.Same(t, g, sender.(*Generator))
	}
}

func TestRepeatingSequenceWithCount(t *testing.T) {
	g, err := New(Config{Mode: ModeSequence, Items: []string{"x", "y"}, Repeat: true, Count: 5},
		quiet(), node.WithPollInterval(time.Millisecond))
	require.NoError(t, err)

	rec := testutil.NewRecorder(quiet())
	require.NoError(t, g.Subscribe(rec))
	g.Start()
	<-g.Done()
	g.Dispose()
	rec.Dispose()

	assert.Equal(t, []string{"x", "y", "x", "y", "x"}, rec.Strings())
}

func TestCounter(t *testing.T) {
	g, err := New(Config{Mode: ModeCounter, Start: 10, Count: 3},
		quiet(), node.WithPollInterval(time.Millisecond))
	require.NoError(t, err)

	rec := testutil.NewRecorder(quiet())
	require.NoError(t, g.Subscribe(rec))
	g.Start()
	<-g.Done()
	g.Dispose()
	rec.Dispose()

	assert.Equal(t, []node.Payload{int64(10), int64(11), int64(12)}, rec.Payloads())
}

func TestUnboundedCounterStopsOnDispose(t *testing.T) {
	g, err := New(Config{Mode: ModeCounter}, quiet(), node.WithPollInterval(time.Millisecond))
	require.NoError(t, err)

	rec := testutil.NewRecorder(quiet())
	require.NoError(t, g.Subscribe(rec))
	g.Start()
	require.True(t, rec.WaitFor(5, testTimeout))
	g.Dispose()

	emitted := g.Emitted()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, emitted, g.Emitted())
	assert.False(t, g.IsRunning())

	select {
	case <-g.Done():
		t.Fatal("unbounded generator reported done")
	default:
	}
	rec.Dispose()
}

func TestRateLimit(t *testing.T) {
	g, err := New(Config{Mode: ModeCounter, Count: 4},
		quiet(), node.WithPollInterval(0), node.WithRateLimit(100, 1))
	require.NoError(t, err)

	start := time.Now()
	g.Start()
	<-g.Done()
	g.Dispose()

	// Burst 1 at 100/s: three waits of ~10ms after the first emission.
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}
