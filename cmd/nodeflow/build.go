package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/nodeflow/config"
	"github.com/c360/nodeflow/input/generator"
	natsinput "github.com/c360/nodeflow/input/nats"
	"github.com/c360/nodeflow/metric"
	"github.com/c360/nodeflow/natsclient"
	"github.com/c360/nodeflow/node"
	"github.com/c360/nodeflow/output/file"
	natsoutput "github.com/c360/nodeflow/output/nats"
	"github.com/c360/nodeflow/output/websocket"
	"github.com/c360/nodeflow/pipeline"
	"github.com/c360/nodeflow/pkg/tlsutil"
	"github.com/c360/nodeflow/processor/transform"
)

// Node names of the assembled pipeline.
const (
	sourceName    = "source"
	processorName = "suffix"
	fileSinkName  = "file-sink"
	wsSinkName    = "websocket-sink"
	natsSinkName  = "nats-sink"
)

// broker is what the pipeline needs from a NATS connection.
type broker interface {
	natsoutput.Publisher
	natsinput.Subscriber
}

// deps are the collaborators the pipeline is built around. Registry and
// Broker may be nil.
type deps struct {
	Logger   *slog.Logger
	Registry *metric.MetricsRegistry
	Broker   broker
}

// assembly is the built pipeline plus the nodes main needs to reach directly.
type assembly struct {
	Pipeline  *pipeline.Pipeline
	Generator *generator.Generator
	WebSocket *websocket.Output
}

// buildPipeline wires source -> suffix -> sinks from cfg.
func buildPipeline(cfg *config.Config, d deps) (*assembly, error) {
	pc := cfg.Pipeline
	p := pipeline.New(pc.Name, pipeline.WithLogger(d.Logger), pipeline.WithThresholds(cfg.Health))
	a := &assembly{Pipeline: p}

	common := func(name string) []node.Option {
		opts := []node.Option{
			node.WithName(name),
			node.WithLogger(d.Logger),
			node.WithMetrics(d.Registry),
			node.WithCloneOnFork(pc.CloneOnFork),
		}
		if cfg.NATS.PublishLogs && d.Broker != nil {
			opts = append(opts, node.WithLogPublisher(d.Broker, pc.Name))
		}
		return opts
	}

	fail := func(err error) (*assembly, error) {
		_ = p.Dispose(context.Background())
		return nil, err
	}

	source, err := buildSource(cfg, d, common(sourceName))
	if err != nil {
		return fail(err)
	}
	if g, ok := source.(*generator.Generator); ok {
		a.Generator = g
	}
	if err := p.Add(source); err != nil {
		return fail(err)
	}

	procOpts := append(common(processorName), node.WithPolicy(cfg.DispatchPolicy()))
	if pc.Seed != 0 {
		procOpts = append(procOpts, node.WithRandSource(node.NewRandSource(pc.Seed)))
	}
	proc, err := transform.New(transform.AppendSuffix(pc.Suffix), procOpts...)
	if err != nil {
		return fail(err)
	}
	if err := p.Add(proc); err != nil {
		return fail(err)
	}
	if err := p.Connect(sourceName, processorName); err != nil {
		return fail(err)
	}

	sinks := 0
	addSink := func(n pipeline.Node) error {
		if err := p.Add(n); err != nil {
			return err
		}
		sinks++
		return p.Connect(processorName, n.Name())
	}

	if cfg.File.Path != "" {
		out, err := file.New(file.DefaultConfig(cfg.File.Path), common(fileSinkName)...)
		if err != nil {
			return fail(err)
		}
		if err := addSink(out); err != nil {
			return fail(err)
		}
	}

	if cfg.WebSocket.Port > 0 {
		wsCfg := websocket.DefaultConfig()
		wsCfg.Port = cfg.WebSocket.Port
		wsCfg.Path = cfg.WebSocket.Path
		if wsCfg.TLS, err = tlsutil.LoadServer(cfg.WebSocket.TLS); err != nil {
			return fail(err)
		}
		out, err := websocket.New(wsCfg, d.Registry, common(wsSinkName)...)
		if err != nil {
			return fail(err)
		}
		if err := addSink(out); err != nil {
			out.Dispose()
			return fail(err)
		}
		a.WebSocket = out
	}

	if cfg.NATS.Enabled() && d.Broker != nil {
		natsCfg := natsoutput.DefaultConfig(cfg.NATS.Subject)
		natsCfg.JetStream = cfg.NATS.JetStream
		out, err := natsoutput.New(d.Broker, natsCfg, common(natsSinkName)...)
		if err != nil {
			return fail(err)
		}
		if err := addSink(out); err != nil {
			return fail(err)
		}
	}

	if sinks == 0 {
		d.Logger.Warn("Pipeline has no sinks; processed items are discarded", "pipeline", pc.Name)
	}
	topo := a.Pipeline.Topology()
	d.Logger.Debug("Pipeline topology", "pipeline", pc.Name, "edges", len(topo.Edges), "status", topo.Status)
	return a, nil
}

func buildSource(cfg *config.Config, d deps, opts []node.Option) (pipeline.Node, error) {
	pc := cfg.Pipeline
	if pc.Source == config.SourceNATS {
		if d.Broker == nil {
			return nil, fmt.Errorf("nats source requires a broker connection")
		}
		return natsinput.New(d.Broker, natsinput.DefaultConfig(cfg.NATS.InputSubject), opts...)
	}

	gen := generator.Config{Mode: generator.ModeSequence, Items: pc.Items, Count: int64(pc.Count)}
	if pc.Source == config.SourceCounter {
		gen = generator.Config{Mode: generator.ModeCounter, Count: int64(pc.Count)}
	}

	opts = append(opts, node.WithPollInterval(time.Duration(pc.PollInterval)))
	if pc.RateLimit.PerSecond > 0 {
		opts = append(opts, node.WithRateLimit(rate.Limit(pc.RateLimit.PerSecond), pc.RateLimit.Burst))
	}
	if pc.Backpressure.Threshold > 0 {
		opts = append(opts, node.WithBackpressure(pc.Backpressure.Threshold, time.Duration(pc.Backpressure.Wait)))
	}
	return generator.New(gen, opts...)
}

// connectBroker creates and connects the NATS client described by cfg and
// makes sure the JetStream stream exists when it is used.
func connectBroker(ctx context.Context, cfg config.NATSConfig, registry *metric.MetricsRegistry, logger *slog.Logger) (*natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithName("nodeflow"),
		natsclient.WithLogger(logger),
		natsclient.WithMetrics(registry),
		natsclient.WithMaxReconnects(cfg.MaxReconnects),
		natsclient.WithReconnectWait(time.Duration(cfg.ReconnectWait)),
	}
	switch {
	case cfg.Token != "":
		opts = append(opts, natsclient.WithToken(cfg.Token))
	case cfg.Username != "":
		opts = append(opts, natsclient.WithCredentials(cfg.Username, cfg.Password))
	}

	tlsConfig, err := tlsutil.LoadClient(cfg.TLS)
	if err != nil {
		return nil, fmt.Errorf("load NATS TLS config: %w", err)
	}
	opts = append(opts, natsclient.WithTLSConfig(tlsConfig))

	client, err := natsclient.NewClient(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	slog.Info("Connecting to NATS")
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.WaitForConnection(connCtx); err != nil {
		_ = client.Close(ctx)
		return nil, fmt.Errorf("NATS connection timeout: %w", err)
	}

	if cfg.JetStream {
		if _, err := client.EnsureStream(connCtx, cfg.Stream, cfg.Subject); err != nil {
			_ = client.Close(ctx)
			return nil, fmt.Errorf("ensure stream %s: %w", cfg.Stream, err)
		}
	}
	return client, nil
}
