package testutil

import (
	"errors"
	"sync"

	"github.com/c360/nodeflow/node"
)

// MockNode is a synchronous node for pipeline tests. It records lifecycle
// calls and accepted payloads, and can be told to reject input.
type MockNode struct {
	mu sync.Mutex

	NodeName string

	// ReceiveFunc, when set, decides the result of ReceiveData.
	ReceiveFunc func(sender node.Producer, payload node.Payload) error

	running  bool
	disposed bool

	StartCalls   int
	StopCalls    int
	DisposeCalls int
	Received     []node.Payload
}

// NewMockNode creates a named mock node.
func NewMockNode(name string) *MockNode {
	return &MockNode{NodeName: name}
}

// Name returns the node name.
func (m *MockNode) Name() string {
	return m.NodeName
}

// Start marks the node running.
func (m *MockNode) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StartCalls++
	if !m.disposed {
		m.running = true
	}
}

// Stop marks the node stopped.
func (m *MockNode) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StopCalls++
	m.running = false
}

// IsRunning reports whether Start was called more recently than Stop.
func (m *MockNode) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Dispose marks the node disposed.
func (m *MockNode) Dispose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DisposeCalls++
	m.running = false
	m.disposed = true
}

// Disposed reports whether Dispose was called.
func (m *MockNode) Disposed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disposed
}

// ReceiveData records payload unless ReceiveFunc rejects it.
func (m *MockNode) ReceiveData(sender node.Producer, payload node.Payload) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ReceiveFunc != nil {
		if err := m.ReceiveFunc(sender, payload); err != nil {
			return err
		}
	}
	m.Received = append(m.Received, payload)
	return nil
}

// Payloads returns a copy of the accepted payloads.
func (m *MockNode) Payloads() []node.Payload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]node.Payload(nil), m.Received...)
}

// Common test errors
var (
	ErrMockFailed     = errors.New("mock operation failed")
	ErrMockConnection = errors.New("mock connection error")
)
