package file

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/c360/nodeflow/errors"
	"github.com/c360/nodeflow/node"
)

// Format selects how payloads are rendered.
type Format string

const (
	FormatJSONL Format = "jsonl" // one compact JSON document per line
	FormatJSON  Format = "json"  // indented JSON documents separated by newlines
	FormatRaw   Format = "raw"   // []byte or string payloads written verbatim
)

// Stdout is the Config.Path that writes to standard output.
const Stdout = "-"

// Config holds configuration for the file output.
type Config struct {
	Path   string `json:"path"`
	Format Format `json:"format"`
	Append bool   `json:"append"`
	// FlushEvery flushes the write buffer after this many payloads. 1 flushes
	// every payload.
	FlushEvery int `json:"flush_every"`
}

// DefaultConfig returns a JSON lines config for path.
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		Format:     FormatJSONL,
		Append:     true,
		FlushEvery: 1,
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if c.Path == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "path is required")
	}
	switch c.Format {
	case FormatJSONL, FormatJSON, FormatRaw:
	default:
		return errors.WrapInvalid(fmt.Errorf("%w: format %q", errors.ErrInvalidConfig, c.Format),
			"Config", "Validate", "format must be one of: json, jsonl, raw")
	}
	if c.FlushEvery < 1 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "flush_every must be >= 1")
	}
	return nil
}

// Output is a terminal consumer node that writes each payload to a file or
// writer.
type Output struct {
	*node.ConsumerNode

	format     Format
	flushEvery int

	mu      sync.Mutex
	buf     *bufio.Writer
	closer  io.Closer
	pending int

	written atomic.Int64
	bytes   atomic.Int64
	failed  atomic.Int64
}

// New opens cfg.Path and returns the node. The file is closed by Dispose.
func New(cfg Config, opts ...node.Option) (*Output, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Path == Stdout {
		return newOutput(os.Stdout, nil, cfg, opts)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, errors.WrapFatal(err, "Output", "New", "create output directory")
	}
	flags := os.O_CREATE | os.O_WRONLY
	if cfg.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(cfg.Path, flags, 0o644)
	if err != nil {
		return nil, errors.WrapFatal(err, "Output", "New", "open output file")
	}

	out, err := newOutput(f, f, cfg, opts)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return out, nil
}

// NewWriter returns a node writing to w. w is never closed.
func NewWriter(w io.Writer, format Format, opts ...node.Option) (*Output, error) {
	cfg := Config{Path: "writer", Format: format, FlushEvery: 1}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newOutput(w, nil, cfg, opts)
}

func newOutput(w io.Writer, closer io.Closer, cfg Config, opts []node.Option) (*Output, error) {
	o := &Output{
		format:     cfg.Format,
		flushEvery: cfg.FlushEvery,
		buf:        bufio.NewWriter(w),
		closer:     closer,
	}
	opts = append([]node.Option{node.WithName("file-output")}, opts...)
	consumer, err := node.NewConsumer(o.write, opts...)
	if err != nil {
		return nil, err
	}
	o.ConsumerNode = consumer
	return o, nil
}

func (o *Output) write(_ node.Producer, payload node.Payload) error {
	data, err := o.encode(payload)
	if err != nil {
		o.failed.Add(1)
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.buf == nil {
		o.failed.Add(1)
		return errors.WrapFatal(errors.ErrDisposed, "Output", "write", "write payload")
	}
	n, err := o.buf.Write(data)
	if err != nil {
		o.failed.Add(1)
		return errors.WrapTransient(err, "Output", "write", "write payload")
	}
	o.written.Add(1)
	o.bytes.Add(int64(n))

	o.pending++
	if o.pending >= o.flushEvery {
		o.pending = 0
		if err := o.buf.Flush(); err != nil {
			return errors.WrapTransient(err, "Output", "write", "flush")
		}
	}
	return nil
}

func (o *Output) encode(payload node.Payload) ([]byte, error) {
	switch o.format {
	case FormatRaw:
		switch v := payload.(type) {
		case []byte:
			return v, nil
		case string:
			return []byte(v), nil
		default:
			return nil, errors.NewUnexpectedPayload(o.Name(), "[]byte or string", payload)
		}
	case FormatJSON:
		data, err := json.MarshalIndent(asJSON(payload), "", "  ")
		if err != nil {
			return nil, errors.WrapInvalid(err, "Output", "encode", "marshal payload")
		}
		return append(data, '\n'), nil
	default:
		data, err := json.Marshal(asJSON(payload))
		if err != nil {
			return nil, errors.WrapInvalid(err, "Output", "encode", "marshal payload")
		}
		return append(data, '\n'), nil
	}
}

// asJSON passes byte payloads holding valid JSON through unchanged.
func asJSON(payload node.Payload) any {
	if b, ok := payload.([]byte); ok && json.Valid(b) {
		return json.RawMessage(b)
	}
	return payload
}

// Flush writes buffered output.
func (o *Output) Flush() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.buf == nil {
		return nil
	}
	o.pending = 0
	return o.buf.Flush()
}

// Dispose drains the mailbox, flushes and closes the file.
func (o *Output) Dispose() {
	o.ConsumerNode.Dispose()

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.buf == nil {
		return
	}
	if err := o.buf.Flush(); err != nil {
		o.failed.Add(1)
		o.Log().Error("Final flush failed; trailing output lost", err)
	}
	o.buf = nil
	if o.closer != nil {
		if err := o.closer.Close(); err != nil {
			o.Log().Error("Close failed", err)
		}
	}
}

// Written returns the number of payloads written.
func (o *Output) Written() int64 { return o.written.Load() }

// BytesWritten returns the number of bytes written.
func (o *Output) BytesWritten() int64 { return o.bytes.Load() }

// Failures returns the number of payloads that could not be encoded or written.
func (o *Output) Failures() int64 { return o.failed.Load() }
