package nats

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/nodeflow/errors"
	"github.com/c360/nodeflow/node"
	"github.com/c360/nodeflow/pkg/retry"
	"github.com/c360/nodeflow/testutil"
)

func quiet() node.Option {
	return node.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func fastConfig(subject string) Config {
	cfg := DefaultConfig(subject)
	cfg.Retry = retry.Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
		Jitter:       retry.SeededJitter(1),
	}
	return cfg
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig("out").Validate())

	for _, subject := range []string{"", "out.*", "out.>", "has space"} {
		assert.True(t, errors.IsInvalid(DefaultConfig(subject).Validate()), subject)
	}

	cfg := DefaultConfig("out")
	cfg.Timeout = 0
	assert.True(t, errors.IsInvalid(cfg.Validate()))
}

func TestNewRequiresClient(t *testing.T) {
	_, err := New(nil, DefaultConfig("out"))
	assert.True(t, errors.IsInvalid(err))
}

func TestPublishCore(t *testing.T) {
	client := testutil.NewMockNATSClient()
	out, err := New(client, fastConfig("nodeflow.out"), quiet())
	require.NoError(t, err)

	require.NoError(t, out.ReceiveData(nil, "aX"))
	require.NoError(t, out.ReceiveData(nil, &testutil.Document{ID: "7"}))
	require.NoError(t, out.ReceiveData(nil, []byte(`{"raw":1}`)))
	out.Dispose()

	msgs := client.GetMessages("nodeflow.out")
	require.Len(t, msgs, 3)
	assert.Equal(t, `"aX"`, string(msgs[0]))

	var doc testutil.Document
	require.NoError(t, json.Unmarshal(msgs[1], &doc))
	assert.Equal(t, "7", doc.ID)
	assert.Equal(t, `{"raw":1}`, string(msgs[2]))

	assert.Equal(t, int64(3), out.Published())
	assert.Empty(t, client.GetStreamMessages("nodeflow.out"))
}

func TestPublishJetStream(t *testing.T) {
	client := testutil.NewMockNATSClient()
	cfg := fastConfig("nodeflow.out")
	cfg.JetStream = true
	out, err := New(client, cfg, quiet())
	require.NoError(t, err)

	require.NoError(t, out.ReceiveData(nil, 1))
	out.Dispose()

	assert.Len(t, client.GetStreamMessages("nodeflow.out"), 1)
	assert.Zero(t, client.GetMessageCount("nodeflow.out"))
}

func TestRetriesTransientFailures(t *testing.T) {
	client := testutil.NewMockNATSClient()
	client.FailNext(errors.ErrConnectionLost, errors.ErrConnectionTimeout)

	var seen []int
	cfg := fastConfig("s")
	cfg.Retry.OnRetry = func(attempt int, _ error, _ time.Duration) { seen = append(seen, attempt) }
	out, err := New(client, cfg, quiet())
	require.NoError(t, err)

	require.NoError(t, out.ReceiveData(nil, "x"))
	out.Dispose()

	assert.Equal(t, 1, client.GetMessageCount("s"))
	assert.Equal(t, int64(2), out.Retries())
	assert.Equal(t, []int{1, 2}, seen)
	assert.Zero(t, out.Failures())
}

func TestGivesUpAfterMaxAttempts(t *testing.T) {
	client := testutil.NewMockNATSClient()
	client.FailNext(errors.ErrConnectionLost, errors.ErrConnectionLost, errors.ErrConnectionLost)

	out, err := New(client, fastConfig("s"), quiet())
	require.NoError(t, err)

	require.NoError(t, out.ReceiveData(nil, "dropped"))
	require.NoError(t, out.ReceiveData(nil, "kept"))
	out.Dispose()

	msgs := client.GetMessages("s")
	require.Len(t, msgs, 1)
	assert.Equal(t, `"kept"`, string(msgs[0]))
	assert.Equal(t, int64(1), out.Failures())
	assert.Equal(t, int64(1), out.Stats().Failed)
}

func TestInvalidErrorsAreNotRetried(t *testing.T) {
	client := testutil.NewMockNATSClient()
	client.FailNext(errors.WrapInvalid(errors.ErrInvalidConfig, "test", "Publish", "reject"))

	out, err := New(client, fastConfig("s"), quiet())
	require.NoError(t, err)
	require.NoError(t, out.ReceiveData(nil, "x"))
	out.Dispose()

	assert.Zero(t, out.Retries())
	assert.Equal(t, int64(1), out.Failures())
}

func TestUnencodablePayload(t *testing.T) {
	client := testutil.NewMockNATSClient()
	out, err := New(client, fastConfig("s"), quiet())
	require.NoError(t, err)

	require.NoError(t, out.ReceiveData(nil, func() {}))
	out.Dispose()

	assert.Zero(t, client.GetMessageCount("s"))
	assert.Equal(t, int64(1), out.Failures())
	assert.Equal(t, "nats-output", out.Name())
}
