package mailbox

import (
	"sync"
	"sync/atomic"
	"time"
)

// Watermark is the highest queue depth observed and when it was first reached.
type Watermark struct {
	Depth int       `json:"depth"`
	At    time.Time `json:"at"`
}

// Statistics tracks mailbox activity.
type Statistics struct {
	puts        int64
	takes       int64
	drops       int64
	suspensions int64

	mu          sync.RWMutex
	startTime   time.Time
	currentSize int64
	watermark   Watermark
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{
		startTime: time.Now(),
	}
}

// Put records an enqueue.
func (s *Statistics) Put() {
	atomic.AddInt64(&s.puts, 1)
}

// Take records a dequeue.
func (s *Statistics) Take() {
	atomic.AddInt64(&s.takes, 1)
}

// Drop records items discarded without being taken.
func (s *Statistics) Drop(n int) {
	atomic.AddInt64(&s.drops, int64(n))
}

// Suspend records the reader blocking on an empty mailbox.
func (s *Statistics) Suspend() {
	atomic.AddInt64(&s.suspensions, 1)
}

// UpdateSize records the current depth and reports whether it set a new watermark.
func (s *Statistics) UpdateSize(size int) (Watermark, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.currentSize = int64(size)
	if size > s.watermark.Depth {
		s.watermark = Watermark{Depth: size, At: time.Now()}
		return s.watermark, true
	}
	return s.watermark, false
}

// Puts returns the total number of enqueues.
func (s *Statistics) Puts() int64 {
	return atomic.LoadInt64(&s.puts)
}

// Takes returns the total number of dequeues.
func (s *Statistics) Takes() int64 {
	return atomic.LoadInt64(&s.takes)
}

// Drops returns the number of discarded items.
func (s *Statistics) Drops() int64 {
	return atomic.LoadInt64(&s.drops)
}

// Suspensions returns how many times the reader blocked on an empty mailbox.
func (s *Statistics) Suspensions() int64 {
	return atomic.LoadInt64(&s.suspensions)
}

// CurrentSize returns the last recorded depth.
func (s *Statistics) CurrentSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentSize
}

// Watermark returns the maximum depth and when it was reached.
func (s *Statistics) Watermark() Watermark {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.watermark
}

// Uptime returns how long the mailbox has existed.
func (s *Statistics) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.startTime)
}

// StatsSummary is a point-in-time snapshot of all statistics.
type StatsSummary struct {
	Puts        int64         `json:"puts"`
	Takes       int64         `json:"takes"`
	Drops       int64         `json:"drops"`
	Suspensions int64         `json:"suspensions"`
	CurrentSize int64         `json:"current_size"`
	Watermark   Watermark     `json:"watermark"`
	Uptime      time.Duration `json:"uptime"`
}

// Summary returns a snapshot of all statistics.
func (s *Statistics) Summary() StatsSummary {
	return StatsSummary{
		Puts:        s.Puts(),
		Takes:       s.Takes(),
		Drops:       s.Drops(),
		Suspensions: s.Suspensions(),
		CurrentSize: s.CurrentSize(),
		Watermark:   s.Watermark(),
		Uptime:      s.Uptime(),
	}
}
