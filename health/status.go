package health

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/c360/nodeflow/node"
)

// Level is a health state.
type Level string

const (
	Healthy   Level = "healthy"
	Degraded  Level = "degraded"
	Unhealthy Level = "unhealthy"
)

// severity orders levels for aggregation.
func (l Level) severity() int {
	switch l {
	case Healthy:
		return 0
	case Degraded:
		return 1
	default:
		return 2
	}
}

var (
	urlRegex        = regexp.MustCompile(`(?:https?|nats|wss?)://[^\s]+`)
	unixPathRegex   = regexp.MustCompile(`/[a-zA-Z0-9/_.-]+`)
	ipAddrRegex     = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	portRegex       = regexp.MustCompile(`:\d{2,5}\b`)
	credentialRegex = regexp.MustCompile(`(?i)(password|token|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`)
)

// Status is the health of one node or of a whole pipeline.
type Status struct {
	Node        string    `json:"node"`
	Healthy     bool      `json:"healthy"`
	Level       Level     `json:"status"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics carries the node counters a status was derived from.
type Metrics struct {
	State     string `json:"state"`
	Received  int64  `json:"received"`
	Handled   int64  `json:"handled"`
	Failed    int64  `json:"failed"`
	Produced  int64  `json:"produced"`
	Dropped   int64  `json:"dropped"`
	Depth     int    `json:"depth"`
	Watermark int    `json:"watermark"`
}

func (s Status) IsHealthy() bool   { return s.Level == Healthy }
func (s Status) IsDegraded() bool  { return s.Level == Degraded }
func (s Status) IsUnhealthy() bool { return s.Level == Unhealthy }

// WithMetrics returns a copy of the status with metrics attached.
func (s Status) WithMetrics(m *Metrics) Status {
	s.Metrics = m
	return s
}

// WithSubStatus returns a copy of the status with sub appended. The receiver's
// slice is never shared with the result.
func (s Status) WithSubStatus(sub Status) Status {
	subs := make([]Status, len(s.SubStatuses), len(s.SubStatuses)+1)
	copy(subs, s.SubStatuses)
	s.SubStatuses = append(subs, sub)
	return s
}

func newStatus(name string, level Level, message string) Status {
	return Status{
		Node:      name,
		Healthy:   level == Healthy,
		Level:     level,
		Message:   message,
		Timestamp: time.Now(),
	}
}

func NewHealthy(name, message string) Status   { return newStatus(name, Healthy, message) }
func NewDegraded(name, message string) Status  { return newStatus(name, Degraded, message) }
func NewUnhealthy(name, message string) Status { return newStatus(name, Unhealthy, message) }

// FromError reports name as unhealthy with a sanitized error message.
func FromError(name string, err error) Status {
	if err == nil {
		return NewHealthy(name, "ok")
	}
	return NewUnhealthy(name, sanitizeErrorMessage(err.Error()))
}

// Thresholds decide when a live node counts as degraded. Zero disables a check.
type Thresholds struct {
	// MaxDepth is the mailbox depth above which a node is degraded.
	MaxDepth int `json:"max_depth" yaml:"max_depth"`
	// MaxFailureRatio is the failed/received ratio above which a node is degraded.
	MaxFailureRatio float64 `json:"max_failure_ratio" yaml:"max_failure_ratio"`
}

// FromNodeStats derives a status from a node snapshot. A node that is not
// running is unhealthy; a running node breaching a threshold is degraded.
func FromNodeStats(stats node.Stats, th Thresholds) Status {
	metrics := &Metrics{
		State:     stats.State.String(),
		Received:  stats.Received,
		Handled:   stats.Handled,
		Failed:    stats.Failed,
		Produced:  stats.Produced,
		Dropped:   stats.Dropped,
		Depth:     stats.Depth,
		Watermark: stats.Watermark,
	}

	if !stats.State.Alive() {
		return NewUnhealthy(stats.Name, "node "+stats.State.String()).WithMetrics(metrics)
	}

	var reasons []string
	if th.MaxDepth > 0 && stats.Depth > th.MaxDepth {
		reasons = append(reasons, fmt.Sprintf("mailbox depth %d exceeds %d", stats.Depth, th.MaxDepth))
	}
	if th.MaxFailureRatio > 0 && stats.Received > 0 {
		ratio := float64(stats.Failed) / float64(stats.Received)
		if ratio > th.MaxFailureRatio {
			reasons = append(reasons, fmt.Sprintf("failure ratio %.2f exceeds %.2f", ratio, th.MaxFailureRatio))
		}
	}
	if len(reasons) > 0 {
		return NewDegraded(stats.Name, strings.Join(reasons, "; ")).WithMetrics(metrics)
	}
	return NewHealthy(stats.Name, "node "+stats.State.String()).WithMetrics(metrics)
}

// Aggregate rolls sub-statuses up into one: the worst level wins. An empty
// set is healthy.
func Aggregate(name string, subs []Status) Status {
	if len(subs) == 0 {
		return NewHealthy(name, "no nodes")
	}

	worst := Healthy
	var unhealthy, degraded int
	for _, sub := range subs {
		switch sub.Level {
		case Healthy:
		case Degraded:
			degraded++
		default:
			unhealthy++
		}
		if sub.Level.severity() > worst.severity() {
			worst = sub.Level
		}
	}

	var status Status
	switch worst {
	case Healthy:
		status = NewHealthy(name, fmt.Sprintf("all %d nodes healthy", len(subs)))
	case Degraded:
		status = NewDegraded(name, fmt.Sprintf("%d of %d nodes degraded", degraded, len(subs)))
	default:
		status = NewUnhealthy(name, fmt.Sprintf("%d of %d nodes unhealthy", unhealthy, len(subs)))
	}
	status.SubStatuses = make([]Status, len(subs))
	copy(status.SubStatuses, subs)
	return status
}

// sanitizeErrorMessage strips URLs, paths, addresses and credentials from an
// error message before it is exposed on the health endpoint.
func sanitizeErrorMessage(msg string) string {
	if msg == "" {
		return ""
	}
	msg = urlRegex.ReplaceAllString(msg, "[URL]")
	msg = unixPathRegex.ReplaceAllString(msg, "[PATH]")
	msg = ipAddrRegex.ReplaceAllString(msg, "[IP]")
	msg = portRegex.ReplaceAllString(msg, "[PORT]")
	return credentialRegex.ReplaceAllString(msg, "[REDACTED]")
}
