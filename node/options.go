package node

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/c360/nodeflow/metric"
)

const (
	// DefaultPollInterval is the pause between poll cycles.
	DefaultPollInterval = time.Second
	// MaxSleepSlice bounds every poller sleep so Stop is observed promptly.
	MaxSleepSlice = 500 * time.Millisecond
)

// Option configures a node. Options that do not apply to a node's kind are ignored.
type Option func(*options)

type options struct {
	name      string
	logger    *slog.Logger
	registry  *metric.MetricsRegistry
	publisher LogPublisher
	flow      string

	cloneOnFork bool
	rand        RandSource
	policy      DispatchPolicy

	pollInterval          time.Duration
	limiter               *rate.Limiter
	backpressureThreshold int
	backpressureWait      time.Duration
}

// WithName sets the display name used in logs and metric labels.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithLogger sets the base slog logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics exports engine metrics and mailbox gauges to registry.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(o *options) {
		o.registry = registry
	}
}

// WithLogPublisher publishes node log entries to logs.<flow>.<node>.
func WithLogPublisher(publisher LogPublisher, flow string) Option {
	return func(o *options) {
		o.publisher = publisher
		o.flow = flow
	}
}

// WithCloneOnFork toggles deep copies when broadcasting to more than one
// subscriber. Enabled by default.
func WithCloneOnFork(enabled bool) Option {
	return func(o *options) {
		o.cloneOnFork = enabled
	}
}

// WithRandSource sets the randomness used by the Random dispatch policy.
func WithRandSource(source RandSource) Option {
	return func(o *options) {
		if source != nil {
			o.rand = source
		}
	}
}

// WithPolicy sets the initial dispatch policy of a processor.
func WithPolicy(policy DispatchPolicy) Option {
	return func(o *options) {
		o.policy = policy
	}
}

// WithPollInterval sets the pause between poll cycles.
func WithPollInterval(interval time.Duration) Option {
	return func(o *options) {
		if interval >= 0 {
			o.pollInterval = interval
		}
	}
}

// WithRateLimit caps a poller at limit productions per second with the given burst.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(o *options) {
		if limit > 0 {
			o.limiter = rate.NewLimiter(limit, max(burst, 1))
		}
	}
}

// WithBackpressure makes a poller wait an extra period after any cycle in
// which the branch load exceeds threshold. A threshold <= 0 disables it.
func WithBackpressure(threshold int, wait time.Duration) Option {
	return func(o *options) {
		o.backpressureThreshold = threshold
		o.backpressureWait = wait
	}
}

func newOptions(kind string, opts []Option) *options {
	o := &options{
		logger:       slog.Default(),
		cloneOnFork:  true,
		policy:       ToAll,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.name == "" {
		o.name = generateName(kind)
	}
	if o.rand == nil {
		o.rand = newDefaultRandSource()
	}
	return o
}

func generateName(kind string) string {
	id := uuid.New()
	return fmt.Sprintf("%s-%x", kind, id[:4])
}
