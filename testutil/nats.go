package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/c360/nodeflow/natsclient"
)

// MockNATSClient is an in-memory stand-in for natsclient.Client covering
// core publish/subscribe and JetStream publishes. Safe for concurrent use.
type MockNATSClient struct {
	mu            sync.RWMutex
	messages      map[string][][]byte
	streamed      map[string][][]byte
	subscriptions map[string][]natsclient.MessageHandler
	failures      []error
	closed        bool
}

// NewMockNATSClient creates a new mock NATS client.
func NewMockNATSClient() *MockNATSClient {
	return &MockNATSClient{
		messages:      make(map[string][][]byte),
		streamed:      make(map[string][][]byte),
		subscriptions: make(map[string][]natsclient.MessageHandler),
	}
}

// FailNext makes the next len(errs) publishes fail with errs, in order.
func (c *MockNATSClient) FailNext(errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, errs...)
}

// Publish records data and synchronously invokes subscribers of subject.
func (c *MockNATSClient) Publish(ctx context.Context, subject string, data []byte) error {
	return c.publish(ctx, c.messages, subject, data)
}

// PublishToStream records data as a JetStream publish and invokes subscribers.
func (c *MockNATSClient) PublishToStream(ctx context.Context, subject string, data []byte) error {
	return c.publish(ctx, c.streamed, subject, data)
}

func (c *MockNATSClient) publish(ctx context.Context, store map[string][][]byte, subject string, data []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("client is closed")
	}
	if len(c.failures) > 0 {
		err := c.failures[0]
		c.failures = c.failures[1:]
		c.mu.Unlock()
		return err
	}

	store[subject] = append(store[subject], append([]byte(nil), data...))

	// Handlers run outside the lock.
	handlers := append([]natsclient.MessageHandler(nil), c.subscriptions[subject]...)
	c.mu.Unlock()

	for _, handler := range handlers {
		msgCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		handler(msgCtx, data)
		cancel()
	}
	return nil
}

// Subscribe registers handler for subject.
func (c *MockNATSClient) Subscribe(ctx context.Context, subject string, handler natsclient.MessageHandler) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("client is closed")
	}
	c.subscriptions[subject] = append(c.subscriptions[subject], handler)
	return nil
}

// SubscriberCount returns the number of handlers registered for subject.
func (c *MockNATSClient) SubscriberCount(subject string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscriptions[subject])
}

// GetMessages returns a copy of the core messages published to subject.
func (c *MockNATSClient) GetMessages(subject string) [][]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([][]byte(nil), c.messages[subject]...)
}

// GetStreamMessages returns a copy of the JetStream messages published to subject.
func (c *MockNATSClient) GetStreamMessages(subject string) [][]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([][]byte(nil), c.streamed[subject]...)
}

// GetMessageCount returns the number of core messages on a subject.
func (c *MockNATSClient) GetMessageCount(subject string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages[subject])
}

// Close closes the mock client.
func (c *MockNATSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
