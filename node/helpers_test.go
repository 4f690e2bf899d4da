package node

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// doc is a cloneable payload with nested mutable state.
type doc struct {
	Title string
	Tags  []string
	Meta  map[string]int
}

func (d *doc) Clone() Payload {
	c := &doc{Title: d.Title, Tags: append([]string(nil), d.Tags...), Meta: make(map[string]int, len(d.Meta))}
	for k, v := range d.Meta {
		c.Meta[k] = v
	}
	return c
}

// opaque has no clone capability.
type opaque struct{ n int }

// sink is a synchronous consumer that records what it receives.
type sink struct {
	name  string
	depth int

	mu       sync.Mutex
	payloads []Payload
	senders  []Producer
	err      error
	count    atomic.Int64
}

func (s *sink) Name() string { return s.name }

func (s *sink) MailboxDepth() int { return s.depth }

func (s *sink) ReceiveData(sender Producer, payload Payload) error {
	s.count.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.payloads = append(s.payloads, payload)
	s.senders = append(s.senders, sender)
	return nil
}

func (s *sink) received() []Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Payload(nil), s.payloads...)
}

// lister is a bare SubscriberLister/DepthReporter for probe tests.
type lister struct {
	depth int
	subs  []Consumer
}

func (l *lister) ReceiveData(Producer, Payload) error { return nil }
func (l *lister) MailboxDepth() int                   { return l.depth }
func (l *lister) Subscribers() []Consumer             { return l.subs }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
