package generator

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/c360/nodeflow/errors"
	"github.com/c360/nodeflow/node"
)

// Mode selects what a generator emits.
type Mode string

const (
	// ModeSequence emits Items in order, as strings.
	ModeSequence Mode = "sequence"
	// ModeCounter emits int64 values Start, Start+1, ...
	ModeCounter Mode = "counter"
)

// Config holds configuration for a generator.
type Config struct {
	Mode  Mode     `json:"mode"   yaml:"mode"`
	Items []string `json:"items"  yaml:"items"`
	// Count caps the number of emissions; 0 means len(Items) for a sequence
	// without Repeat and unlimited otherwise.
	Count  int64 `json:"count"  yaml:"count"`
	Start  int64 `json:"start"  yaml:"start"`
	Repeat bool  `json:"repeat" yaml:"repeat"`
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeSequence:
		if len(c.Items) == 0 {
			return errors.WrapInvalid(errors.ErrMissingConfig, "generator", "Validate", "sequence needs items")
		}
	case ModeCounter:
	default:
		return errors.WrapInvalid(fmt.Errorf("%w: mode %q", errors.ErrInvalidConfig, c.Mode),
			"generator", "Validate", "check mode")
	}
	if c.Count < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "generator", "Validate", "count must not be negative")
	}
	return nil
}

// Generator is a polling source. Each poll cycle emits one value; once the
// configured count is reached cycles produce nothing and the node idles
// until stopped.
type Generator struct {
	*node.Poller

	cfg Config

	mu   sync.Mutex
	next int64

	emitted atomic.Int64
	done    chan struct{}
	once    sync.Once
}

// New creates a generator. Poll interval, rate limit and backpressure are
// node options.
func New(cfg Config, opts ...node.Option) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Count == 0 && cfg.Mode == ModeSequence && !cfg.Repeat {
		cfg.Count = int64(len(cfg.Items))
	}

	g := &Generator{cfg: cfg, done: make(chan struct{})}
	opts = append([]node.Option{node.WithName("generator")}, opts...)
	poller, err := node.NewPoller(g.produce, opts...)
	if err != nil {
		return nil, err
	}
	g.Poller = poller
	g.SetSender(g)
	return g, nil
}

func (g *Generator) produce() (node.Payload, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cfg.Count > 0 && g.next >= g.cfg.Count {
		g.once.Do(func() {
			close(g.done)
			g.Log().Info("Generator exhausted", "emitted", g.next)
		})
		return nil, nil
	}

	i := g.next
	g.next++
	g.emitted.Add(1)

	if g.cfg.Mode == ModeCounter {
		return g.cfg.Start + i, nil
	}
	return g.cfg.Items[i%int64(len(g.cfg.Items))], nil
}

// Emitted returns the number of values produced so far.
func (g *Generator) Emitted() int64 {
	return g.emitted.Load()
}

// Done is closed once a bounded generator has emitted its last value and
// polled again. It never closes for an unbounded generator.
func (g *Generator) Done() <-chan struct{} {
	return g.done
}
