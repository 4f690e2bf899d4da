package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/c360/nodeflow/errors"
	"github.com/c360/nodeflow/node"
	"github.com/c360/nodeflow/pkg/retry"
)

// Publisher is the part of natsclient.Client the output uses.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
	PublishToStream(ctx context.Context, subject string, data []byte) error
}

// Config holds configuration for the NATS output.
type Config struct {
	Subject string `json:"subject"`
	// JetStream publishes through JetStream and waits for the stream ack.
	JetStream bool `json:"jetstream"`
	// Timeout bounds one payload, retries included.
	Timeout time.Duration `json:"timeout"`
	Retry   retry.Config  `json:"-"`
}

// DefaultConfig returns a core NATS config for subject.
func DefaultConfig(subject string) Config {
	return Config{
		Subject: subject,
		Timeout: 10 * time.Second,
		Retry:   retry.DefaultConfig(),
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if c.Subject == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "subject is required")
	}
	if strings.ContainsAny(c.Subject, "*> \t") {
		return errors.WrapInvalid(fmt.Errorf("%w: subject %q", errors.ErrInvalidConfig, c.Subject),
			"Config", "Validate", "publish subject must not contain wildcards or spaces")
	}
	if c.Timeout <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "timeout must be positive")
	}
	return c.Retry.Validate()
}

// Output is a terminal consumer node publishing each payload as JSON.
type Output struct {
	*node.ConsumerNode

	client Publisher
	cfg    Config

	published atomic.Int64
	retried   atomic.Int64
	failed    atomic.Int64
}

// New creates the node. client is typically a connected *natsclient.Client.
func New(client Publisher, cfg Config, opts ...node.Option) (*Output, error) {
	if client == nil {
		return nil, errors.WrapInvalid(errors.ErrNoConnection, "Output", "New", "validate client")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &Output{client: client, cfg: cfg}
	onRetry := cfg.Retry.OnRetry
	o.cfg.Retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		o.retried.Add(1)
		o.Log().Debug("Retrying publish", "subject", cfg.Subject, "attempt", attempt, "delay", delay, "error", err)
		if onRetry != nil {
			onRetry(attempt, err, delay)
		}
	}

	opts = append([]node.Option{node.WithName("nats-output")}, opts...)
	consumer, err := node.NewConsumer(o.publish, opts...)
	if err != nil {
		return nil, err
	}
	o.ConsumerNode = consumer
	return o, nil
}

func (o *Output) publish(_ node.Producer, payload node.Payload) error {
	data, err := encode(payload)
	if err != nil {
		o.failed.Add(1)
		return errors.WrapInvalid(err, "Output", "publish", "marshal payload")
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.Timeout)
	defer cancel()

	send := o.client.Publish
	if o.cfg.JetStream {
		send = o.client.PublishToStream
	}
	if err := retry.Do(ctx, o.cfg.Retry, func() error {
		return send(ctx, o.cfg.Subject, data)
	}); err != nil {
		o.failed.Add(1)
		return errors.WrapTransient(err, "Output", "publish", "publish to "+o.cfg.Subject)
	}
	o.published.Add(1)
	return nil
}

func encode(payload node.Payload) ([]byte, error) {
	if b, ok := payload.([]byte); ok && json.Valid(b) {
		return b, nil
	}
	return json.Marshal(payload)
}

// Published returns the number of payloads acknowledged by the client.
func (o *Output) Published() int64 { return o.published.Load() }

// Retries returns the number of retry attempts made.
func (o *Output) Retries() int64 { return o.retried.Load() }

// Failures returns the number of payloads dropped after encoding or publish
// failures.
func (o *Output) Failures() int64 { return o.failed.Load() }
