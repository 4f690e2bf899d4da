package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/c360/nodeflow/errors"
	"github.com/c360/nodeflow/health"
	"github.com/c360/nodeflow/node"
)

// Node is anything the pipeline can manage: a named node with a lifecycle.
type Node interface {
	node.Lifecycle
	node.Named
}

// Edge is one subscription between two registered nodes.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithThresholds sets the limits used to judge node health.
func WithThresholds(th health.Thresholds) Option {
	return func(p *Pipeline) {
		p.monitor = health.NewMonitor(th)
	}
}

// Pipeline is a registry of named nodes and the edges between them. It starts
// nodes downstream-first and disposes them upstream-first so that every item
// already dispatched is drained before its consumer goes away.
type Pipeline struct {
	name    string
	logger  *slog.Logger
	monitor *health.Monitor

	mu       sync.RWMutex
	order    []string
	nodes    map[string]Node
	edges    []Edge
	disposed bool
}

// New creates an empty pipeline.
func New(name string, opts ...Option) *Pipeline {
	p := &Pipeline{
		name:    name,
		logger:  slog.Default(),
		monitor: health.NewMonitor(health.Thresholds{}),
		nodes:   make(map[string]Node),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "pipeline", "pipeline", name)
	return p
}

func (p *Pipeline) Name() string { return p.name }

// Add registers n under its name.
func (p *Pipeline) Add(n Node) error {
	if n == nil {
		return errors.WrapInvalid(errors.ErrNilConsumer, "Pipeline", "Add", "node validation")
	}
	name := n.Name()
	if name == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Pipeline", "Add", "node name validation")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return errors.WrapFatal(errors.ErrDisposed, "Pipeline", "Add", "register node")
	}
	if _, exists := p.nodes[name]; exists {
		return errors.WrapInvalid(fmt.Errorf("%w: duplicate node %q", errors.ErrInvalidConfig, name),
			"Pipeline", "Add", "register node")
	}
	p.nodes[name] = n
	p.order = append(p.order, name)
	return nil
}

// MustAdd registers each node and panics on the first failure.
func (p *Pipeline) MustAdd(nodes ...Node) *Pipeline {
	for _, n := range nodes {
		if err := p.Add(n); err != nil {
			panic(err)
		}
	}
	return p
}

// Get returns the node registered under name.
func (p *Pipeline) Get(name string) (Node, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n, ok := p.nodes[name]
	return n, ok
}

// Names returns node names in registration order.
func (p *Pipeline) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.order)
}

// Connect subscribes the node named to to the node named from.
func (p *Pipeline) Connect(from, to string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	producer, consumer, err := p.resolveEdge("Connect", from, to)
	if err != nil {
		return err
	}
	if err := producer.Subscribe(consumer); err != nil {
		return errors.Wrap(err, "Pipeline", "Connect", "subscribe")
	}
	edge := Edge{From: from, To: to}
	if !slices.Contains(p.edges, edge) {
		p.edges = append(p.edges, edge)
	}
	p.logger.Debug("Connected nodes", "from", from, "to", to)
	return nil
}

// Disconnect removes the subscription from -> to. Removing an absent edge is
// a no-op.
func (p *Pipeline) Disconnect(from, to string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	producer, consumer, err := p.resolveEdge("Disconnect", from, to)
	if err != nil {
		return err
	}
	producer.Unsubscribe(consumer)
	p.edges = slices.DeleteFunc(p.edges, func(e Edge) bool { return e.From == from && e.To == to })
	p.logger.Debug("Disconnected nodes", "from", from, "to", to)
	return nil
}

func (p *Pipeline) resolveEdge(method, from, to string) (node.Producer, node.Consumer, error) {
	if p.disposed {
		return nil, nil, errors.WrapFatal(errors.ErrDisposed, "Pipeline", method, "resolve edge")
	}
	src, ok := p.nodes[from]
	if !ok {
		return nil, nil, errors.WrapInvalid(fmt.Errorf("%w: unknown node %q", errors.ErrInvalidConfig, from),
			"Pipeline", method, "resolve edge")
	}
	dst, ok := p.nodes[to]
	if !ok {
		return nil, nil, errors.WrapInvalid(fmt.Errorf("%w: unknown node %q", errors.ErrInvalidConfig, to),
			"Pipeline", method, "resolve edge")
	}
	producer, ok := src.(node.Producer)
	if !ok {
		return nil, nil, errors.WrapInvalid(fmt.Errorf("%w: %q is not a producer", errors.ErrInvalidConfig, from),
			"Pipeline", method, "resolve edge")
	}
	consumer, ok := dst.(node.Consumer)
	if !ok {
		return nil, nil, errors.WrapInvalid(fmt.Errorf("%w: %q is not a consumer", errors.ErrInvalidConfig, to),
			"Pipeline", method, "resolve edge")
	}
	return producer, consumer, nil
}

// Edges returns a copy of the current edges.
func (p *Pipeline) Edges() []Edge {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.edges)
}

// Start starts every node, sinks first.
func (p *Pipeline) Start() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.disposed {
		return errors.WrapFatal(errors.ErrDisposed, "Pipeline", "Start", "start nodes")
	}

	waves := p.waves()
	for i := len(waves) - 1; i >= 0; i-- {
		for _, name := range waves[i] {
			p.nodes[name].Start()
		}
	}
	p.logger.Info("Pipeline started", "nodes", len(p.nodes), "edges", len(p.edges))
	return nil
}

// Stop stops every node, sources first. Queued items stay in the mailboxes
// until the next Start.
func (p *Pipeline) Stop() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, wave := range p.waves() {
		for _, name := range wave {
			p.nodes[name].Stop()
		}
	}
	p.logger.Info("Pipeline stopped")
}

// Dispose disposes every node wave by wave, sources first. Nodes within a
// wave are disposed concurrently. Each Dispose drains its node's mailbox, so
// everything a source produced before Dispose reaches the sinks. If ctx ends
// first the remaining nodes keep disposing in the background and the context
// error is returned.
func (p *Pipeline) Dispose(ctx context.Context) error {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return nil
	}
	p.disposed = true
	waves := p.waves()
	nodes := p.nodes
	p.mu.Unlock()

	for _, wave := range waves {
		g, gctx := errgroup.WithContext(ctx)
		for _, name := range wave {
			n := nodes[name]
			g.Go(func() error {
				return disposeNode(gctx, n)
			})
		}
		if err := g.Wait(); err != nil {
			p.logger.Warn("Pipeline dispose interrupted", "error", err)
			return errors.WrapTransient(err, "Pipeline", "Dispose", "dispose nodes")
		}
	}
	p.logger.Info("Pipeline disposed", "nodes", len(nodes))
	return nil
}

func disposeNode(ctx context.Context, n Node) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		n.Dispose()
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispose %s: %w", n.Name(), ctx.Err())
	}
}

// Stats returns a snapshot for every node that reports statistics, in
// registration order.
func (p *Pipeline) Stats() []node.Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	stats := make([]node.Stats, 0, len(p.order))
	for _, name := range p.order {
		if r, ok := p.nodes[name].(node.StatsReporter); ok {
			stats = append(stats, r.Stats())
		}
	}
	return stats
}

// Health observes every node and returns the aggregated status.
func (p *Pipeline) Health() health.Status {
	p.mu.RLock()
	for _, name := range p.order {
		n := p.nodes[name]
		if r, ok := n.(node.StatsReporter); ok {
			p.monitor.Observe(r)
			continue
		}
		if n.IsRunning() {
			p.monitor.Update(name, health.NewHealthy(name, "node running"))
		} else {
			p.monitor.Update(name, health.NewUnhealthy(name, "node not running"))
		}
	}
	p.mu.RUnlock()
	return p.monitor.AggregateHealth(p.name)
}

// Monitor exposes the pipeline's health monitor so callers can record the
// status of collaborators such as broker connections.
func (p *Pipeline) Monitor() *health.Monitor {
	return p.monitor
}

// waves groups nodes by their distance from the sources: wave 0 holds nodes
// without upstream edges, wave k nodes whose upstreams all sit in earlier
// waves. Nodes on a cycle land in a final wave. Callers hold p.mu.
func (p *Pipeline) waves() [][]string {
	indegree := make(map[string]int, len(p.nodes))
	downstream := make(map[string][]string, len(p.nodes))
	for _, e := range p.edges {
		indegree[e.To]++
		downstream[e.From] = append(downstream[e.From], e.To)
	}

	var waves [][]string
	placed := make(map[string]bool, len(p.nodes))
	var current []string
	for _, name := range p.order {
		if indegree[name] == 0 {
			current = append(current, name)
		}
	}
	for len(current) > 0 {
		waves = append(waves, current)
		var next []string
		for _, name := range current {
			placed[name] = true
			for _, d := range downstream[name] {
				indegree[d]--
				if indegree[d] == 0 {
					next = append(next, d)
				}
			}
		}
		current = next
	}

	var rest []string
	for _, name := range p.order {
		if !placed[name] {
			rest = append(rest, name)
		}
	}
	if len(rest) > 0 {
		waves = append(waves, rest)
	}
	return waves
}
