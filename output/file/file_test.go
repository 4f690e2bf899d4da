package file

import (
	"bytes"
	stderrors "errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/nodeflow/errors"
	"github.com/c360/nodeflow/node"
	"github.com/c360/nodeflow/testutil"
)

func quiet() node.Option {
	return node.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig("out.jsonl").Validate())

	assert.True(t, errors.IsInvalid(Config{Format: FormatJSONL, FlushEvery: 1}.Validate()))
	assert.True(t, errors.IsInvalid(Config{Path: "x", Format: "xml", FlushEvery: 1}.Validate()))
	assert.True(t, errors.IsInvalid(Config{Path: "x", Format: FormatRaw}.Validate()))
}

func TestJSONLinesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.jsonl")
	out, err := New(DefaultConfig(path), quiet())
	require.NoError(t, err)

	require.NoError(t, out.ReceiveData(nil, "aX"))
	require.NoError(t, out.ReceiveData(nil, &testutil.Document{ID: "1", Body: "b"}))
	require.NoError(t, out.ReceiveData(nil, []byte(`{"raw":true}`)))
	out.Dispose()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "\"aX\"\n{\"id\":\"1\",\"body\":\"b\"}\n{\"raw\":true}\n", string(data))
	assert.Equal(t, int64(3), out.Written())
	assert.Equal(t, int64(len(data)), out.BytesWritten())
}

func TestAppendAndTruncate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o644))

	cfg := DefaultConfig(path)
	out, err := New(cfg, quiet())
	require.NoError(t, err)
	require.NoError(t, out.ReceiveData(nil, 1))
	out.Dispose()

	data, _ := os.ReadFile(path)
	assert.Equal(t, "old\n1\n", string(data))

	cfg.Append = false
	out, err = New(cfg, quiet())
	require.NoError(t, err)
	require.NoError(t, out.ReceiveData(nil, 2))
	out.Dispose()

	data, _ = os.ReadFile(path)
	assert.Equal(t, "2\n", string(data))
}

func TestRawRejectsStructuredPayload(t *testing.T) {
	var buf bytes.Buffer
	out, err := NewWriter(&buf, FormatRaw, quiet())
	require.NoError(t, err)

	require.NoError(t, out.ReceiveData(nil, "plain"))
	require.NoError(t, out.ReceiveData(nil, testutil.Opaque{Value: 1}))
	require.NoError(t, out.ReceiveData(nil, []byte("bytes")))
	out.Dispose()

	assert.Equal(t, "plainbytes", buf.String())
	assert.Equal(t, int64(1), out.Failures())
	assert.Equal(t, int64(1), out.Stats().Failed)
}

func TestIndentedJSON(t *testing.T) {
	var buf bytes.Buffer
	out, err := NewWriter(&buf, FormatJSON, quiet())
	require.NoError(t, err)
	require.NoError(t, out.ReceiveData(nil, map[string]int{"n": 1}))
	out.Dispose()

	assert.Equal(t, "{\n  \"n\": 1\n}\n", buf.String())
}

func TestBufferedUntilDispose(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{Path: "writer", Format: FormatJSONL, FlushEvery: 100}
	out, err := newOutput(&buf, nil, cfg, []node.Option{quiet()})
	require.NoError(t, err)

	for i := range 5 {
		require.NoError(t, out.ReceiveData(nil, i))
	}
	require.Eventually(t, func() bool { return out.Written() == 5 }, testTimeout, testTick)
	assert.Empty(t, buf.String())

	out.Dispose()
	assert.Equal(t, 5, strings.Count(buf.String(), "\n"))
	require.NoError(t, out.Flush())
	assert.True(t, errors.IsFatal(out.ReceiveData(nil, 6)))
}

type brokenFile struct{}

func (brokenFile) Write([]byte) (int, error) { return 0, stderrors.New("disk full") }
func (brokenFile) Close() error              { return stderrors.New("bad descriptor") }

func TestDisposeLogsFlushAndCloseErrors(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	cfg := Config{Path: "writer", Format: FormatJSONL, FlushEvery: 100}
	out, err := newOutput(brokenFile{}, brokenFile{}, cfg, []node.Option{node.WithLogger(logger)})
	require.NoError(t, err)

	require.NoError(t, out.ReceiveData(nil, "tail"))
	require.Eventually(t, func() bool { return out.Written() == 1 }, testTimeout, testTick)

	out.Dispose()
	assert.Equal(t, int64(1), out.Failures())
	assert.Contains(t, logs.String(), "Final flush failed")
	assert.Contains(t, logs.String(), "disk full")
	assert.Contains(t, logs.String(), "Close failed")
	assert.Contains(t, logs.String(), "bad descriptor")
}

func TestDefaultName(t *testing.T) {
	out, err := NewWriter(io.Discard, FormatJSONL, quiet())
	require.NoError(t, err)
	defer out.Dispose()
	assert.Equal(t, "file-output", out.Name())

	named, err := NewWriter(io.Discard, FormatJSONL, quiet(), node.WithName("sink"))
	require.NoError(t, err)
	defer named.Dispose()
	assert.Equal(t, "sink", named.Name())
}
