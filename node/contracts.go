package node

import (
	"time"
)

// Payload is an opaque unit of data. The engine only inspects it to decide
// whether and how to clone it.
type Payload = any

// Lifecycle is implemented by every node. All methods are idempotent.
type Lifecycle interface {
	// Start moves a NotStarted or Stopped node to Running.
	Start()
	// Stop asks the worker to finish its current item or cycle and exit.
	Stop()
	// IsRunning reports whether the node is Running or Suspended.
	IsRunning() bool
	// Dispose stops the node, blocks until its worker has exited and
	// releases its resources. A disposed node is never restarted.
	Dispose()
}

// Producer is implemented by nodes that originate or forward data.
type Producer interface {
	Subscribe(consumer Consumer) error
	Unsubscribe(consumer Consumer)
}

// Consumer is implemented by nodes that accept data. ReceiveData enqueues the
// pair and returns without waiting for it to be processed.
type Consumer interface {
	ReceiveData(sender Producer, payload Payload) error
}

// Named nodes expose a display name used for log identity and metric labels.
type Named interface {
	Name() string
}

// Cloner is implemented by payloads that can produce an independently owned
// deep copy of themselves.
type Cloner interface {
	Clone() Payload
}

// DepthReporter exposes the current mailbox depth of a node.
type DepthReporter interface {
	MailboxDepth() int
}

// SubscriberLister exposes a snapshot of a producer's subscribers.
type SubscriberLister interface {
	Subscribers() []Consumer
}

// StatsReporter exposes a point-in-time snapshot of node activity.
type StatsReporter interface {
	Stats() Stats
}

// Envelope is a mailbox item.
type Envelope struct {
	Sender   Producer
	Payload  Payload
	Received time.Time
}

// Stats is a snapshot of node activity. Fields that do not apply to a node's
// kind stay zero.
type Stats struct {
	Name       string    `json:"name"`
	Kind       string    `json:"kind"`
	State      State     `json:"state"`
	Received   int64     `json:"received"`
	Handled    int64     `json:"handled"`
	Failed     int64     `json:"failed"`
	Produced   int64     `json:"produced"`
	Dispatched int64     `json:"dispatched"`
	Dropped    int64     `json:"dropped"`
	Depth      int       `json:"depth"`
	Watermark  int       `json:"watermark"`
	PeakAt     time.Time `json:"peak_at"`
}
