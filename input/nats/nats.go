package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/c360/nodeflow/errors"
	"github.com/c360/nodeflow/natsclient"
	"github.com/c360/nodeflow/node"
)

// Subscriber is the part of natsclient.Client the input uses.
type Subscriber interface {
	Subscribe(ctx context.Context, subject string, handler natsclient.MessageHandler) error
}

// Decode selects how message bodies become payloads.
type Decode string

const (
	// DecodeJSON unmarshals the body into an any (maps, slices, float64, ...).
	DecodeJSON Decode = "json"
	// DecodeString dispatches the body as a string.
	DecodeString Decode = "string"
	// DecodeBytes dispatches a private copy of the body.
	DecodeBytes Decode = "bytes"
)

// Config holds configuration for the NATS input.
type Config struct {
	Subject string `json:"subject"`
	Decode  Decode `json:"decode"`
}

// DefaultConfig returns a JSON-decoding config for subject.
func DefaultConfig(subject string) Config {
	return Config{Subject: subject, Decode: DecodeJSON}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if c.Subject == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "subject is required")
	}
	switch c.Decode {
	case DecodeJSON, DecodeString, DecodeBytes:
		return nil
	default:
		return errors.WrapInvalid(fmt.Errorf("%w: decode %q", errors.ErrInvalidConfig, c.Decode),
			"Config", "Validate", "check decode mode")
	}
}

// Input is a push-based producer. Messages arriving on the subject are decoded
// and broadcast to subscribers on the client's delivery goroutine.
//
// The subscription is made on the first Start and lives as long as the
// client; while the node is not running, arriving messages are dropped.
type Input struct {
	*node.Broadcaster

	client Subscriber
	cfg    Config

	mu         sync.Mutex
	state      node.State
	subscribed bool
	disposed   bool
	cancel     context.CancelFunc
	inflight   sync.WaitGroup

	received atomic.Int64
	ignored  atomic.Int64
	invalid  atomic.Int64
}

// New creates the node. It does not touch the network until Start.
func New(client Subscriber, cfg Config, opts ...node.Option) (*Input, error) {
	if client == nil {
		return nil, errors.WrapInvalid(errors.ErrNoConnection, "Input", "New", "validate client")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts = append([]node.Option{node.WithName("nats-input")}, opts...)
	in := &Input{
		Broadcaster: node.NewBroadcaster(opts...),
		client:      client,
		cfg:         cfg,
	}
	in.SetSender(in)
	return in, nil
}

// Start subscribes on first use and begins dispatching. A failed subscribe
// leaves the node NotStarted and is logged; StartContext returns it.
func (in *Input) Start() {
	if err := in.StartContext(context.Background()); err != nil {
		in.Log().Error("Failed to start input", err, "subject", in.cfg.Subject)
	}
}

// StartContext is Start with a context bounding the subscribe call.
func (in *Input) StartContext(ctx context.Context) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.disposed {
		return errors.WrapFatal(errors.ErrDisposed, in.Name(), "Start", "subscribe")
	}
	if in.state == node.StateRunning {
		return nil
	}
	if !in.subscribed {
		subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		if err := in.client.Subscribe(subCtx, in.cfg.Subject, in.handle); err != nil {
			cancel()
			return errors.WrapTransient(err, in.Name(), "Start", "subscribe to "+in.cfg.Subject)
		}
		in.cancel = cancel
		in.subscribed = true
	}
	in.state = node.StateRunning
	in.Log().Info("Node started", "kind", "nats-input", "subject", in.cfg.Subject)
	return nil
}

// Stop pauses dispatch. Messages that arrive while stopped are dropped.
func (in *Input) Stop() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.state != node.StateRunning {
		return
	}
	in.state = node.StateStopped
	in.Log().Info("Node stopped", "kind", "nats-input")
}

// IsRunning reports whether messages are being dispatched.
func (in *Input) IsRunning() bool {
	return in.State() == node.StateRunning
}

// State returns the lifecycle state.
func (in *Input) State() node.State {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.state
}

// Dispose stops dispatch, cancels the subscription context and waits for any
// in-flight dispatch to finish.
func (in *Input) Dispose() {
	in.mu.Lock()
	if in.disposed {
		in.mu.Unlock()
		return
	}
	in.disposed = true
	in.state = node.StateStopped
	cancel := in.cancel
	in.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	in.inflight.Wait()
	in.Log().Info("Node disposed", "kind", "nats-input")
}

// Stats returns the input counters. Received counts every message seen,
// Dropped additionally counts messages ignored while stopped or undecodable.
func (in *Input) Stats() node.Stats {
	s := in.Broadcaster.Stats()
	s.Kind = "nats-input"
	s.State = in.State()
	s.Received = in.received.Load()
	s.Failed = in.invalid.Load()
	s.Dropped += in.ignored.Load()
	return s
}

func (in *Input) handle(_ context.Context, data []byte) {
	in.received.Add(1)

	in.mu.Lock()
	if in.state != node.StateRunning {
		in.mu.Unlock()
		in.ignored.Add(1)
		return
	}
	in.inflight.Add(1)
	in.mu.Unlock()
	defer in.inflight.Done()

	payload, err := in.decode(data)
	if err != nil {
		in.invalid.Add(1)
		in.Log().Warn("Dropping undecodable message", err, "subject", in.cfg.Subject, "bytes", len(data))
		return
	}
	if _, err := in.Dispatch(payload); err != nil {
		in.Log().Warn("Dispatch failed", err, "subject", in.cfg.Subject)
	}
}

func (in *Input) decode(data []byte) (node.Payload, error) {
	switch in.cfg.Decode {
	case DecodeString:
		return string(data), nil
	case DecodeBytes:
		return append([]byte(nil), data...), nil
	default:
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, errors.WrapInvalid(err, in.Name(), "decode", "unmarshal message")
		}
		if v == nil {
			return nil, errors.WrapInvalid(errors.ErrNilPayload, in.Name(), "decode", "unmarshal message")
		}
		return v, nil
	}
}
