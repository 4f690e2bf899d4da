package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/c360/nodeflow/errors"
	"github.com/c360/nodeflow/health"
	"github.com/c360/nodeflow/node"
	"github.com/c360/nodeflow/pkg/tlsutil"
)

// Source kinds for the demo pipeline.
const (
	SourceSequence = "sequence" // emit Items once, in order
	SourceCounter  = "counter"  // emit an increasing counter, Count times (0 = forever)
	SourceNATS     = "nats"     // relay messages from NATS.InputSubject
)

// Config is the complete nodeflow configuration.
type Config struct {
	Pipeline  PipelineConfig    `json:"pipeline" yaml:"pipeline"`
	Metrics   MetricsConfig     `json:"metrics" yaml:"metrics"`
	Health    health.Thresholds `json:"health" yaml:"health"`
	NATS      NATSConfig        `json:"nats" yaml:"nats"`
	WebSocket WebSocketConfig   `json:"websocket" yaml:"websocket"`
	File      FileConfig        `json:"file" yaml:"file"`
}

// PipelineConfig shapes the demo source -> suffix -> sinks pipeline.
type PipelineConfig struct {
	Name         string             `json:"name" yaml:"name"`
	Source       string             `json:"source" yaml:"source"`
	Items        []string           `json:"items,omitempty" yaml:"items,omitempty"`
	Count        int                `json:"count,omitempty" yaml:"count,omitempty"`
	PollInterval Duration           `json:"poll_interval" yaml:"poll_interval"`
	CloneOnFork  bool               `json:"clone_on_fork" yaml:"clone_on_fork"`
	Policy       string             `json:"policy" yaml:"policy"`
	Seed         uint64             `json:"seed,omitempty" yaml:"seed,omitempty"`
	Suffix       string             `json:"suffix" yaml:"suffix"`
	Backpressure BackpressureConfig `json:"backpressure" yaml:"backpressure"`
	RateLimit    RateLimitConfig    `json:"rate_limit" yaml:"rate_limit"`
}

// BackpressureConfig enables the poller's downstream-depth check when
// Threshold is positive.
type BackpressureConfig struct {
	Threshold int      `json:"threshold" yaml:"threshold"`
	Wait      Duration `json:"wait" yaml:"wait"`
}

// RateLimitConfig caps production when PerSecond is positive.
type RateLimitConfig struct {
	PerSecond float64 `json:"per_second" yaml:"per_second"`
	Burst     int     `json:"burst" yaml:"burst"`
}

// MetricsConfig controls the /metrics and /health endpoint. Port 0 disables it.
type MetricsConfig struct {
	Port int    `json:"port" yaml:"port"`
	Path string `json:"path" yaml:"path"`
}

// NATSConfig defines the broker connection and subjects. An empty URL
// disables every NATS feature.
type NATSConfig struct {
	URL           string   `json:"url,omitempty" yaml:"url,omitempty"`
	Subject       string   `json:"subject,omitempty" yaml:"subject,omitempty"`
	InputSubject  string   `json:"input_subject,omitempty" yaml:"input_subject,omitempty"`
	JetStream     bool     `json:"jetstream" yaml:"jetstream"`
	Stream        string   `json:"stream,omitempty" yaml:"stream,omitempty"`
	PublishLogs   bool     `json:"publish_logs" yaml:"publish_logs"`
	MaxReconnects int      `json:"max_reconnects" yaml:"max_reconnects"`
	ReconnectWait Duration `json:"reconnect_wait" yaml:"reconnect_wait"`
	Username      string   `json:"username,omitempty" yaml:"username,omitempty"`
	Password      string   `json:"password,omitempty" yaml:"password,omitempty"`
	Token         string   `json:"token,omitempty" yaml:"token,omitempty"`

	TLS tlsutil.ClientConfig `json:"tls" yaml:"tls"`
}

// Enabled reports whether a broker URL is configured.
func (n NATSConfig) Enabled() bool { return n.URL != "" }

// WebSocketConfig controls the websocket sink. Port 0 disables it.
type WebSocketConfig struct {
	Port int    `json:"port" yaml:"port"`
	Path string `json:"path" yaml:"path"`

	TLS tlsutil.ServerConfig `json:"tls" yaml:"tls"`
}

// FileConfig controls the JSON lines sink. An empty path disables it and "-"
// writes to stdout.
type FileConfig struct {
	Path string `json:"path" yaml:"path"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			Name:         "demo",
			Source:       SourceSequence,
			Items:        []string{"a", "b", "c"},
			PollInterval: Duration(node.DefaultPollInterval),
			CloneOnFork:  true,
			Policy:       node.ToAll.String(),
			Suffix:       "X",
			Backpressure: BackpressureConfig{Wait: Duration(100 * time.Millisecond)},
			RateLimit:    RateLimitConfig{Burst: 1},
		},
		Metrics: MetricsConfig{Port: 9090, Path: "/metrics"},
		NATS: NATSConfig{
			Subject:       "nodeflow.out",
			Stream:        "NODEFLOW",
			MaxReconnects: -1,
			ReconnectWait: Duration(2 * time.Second),
		},
		WebSocket: WebSocketConfig{Path: "/ws"},
		File:      FileConfig{Path: "-"},
	}
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	p := c.Pipeline
	if p.Name == "" {
		add("pipeline.name is required")
	} else if !isValidSubjectToken(p.Name) {
		add("pipeline.name %q is not valid in a NATS subject", p.Name)
	}
	switch p.Source {
	case SourceSequence:
		if len(p.Items) == 0 {
			add("pipeline.items must not be empty for a sequence source")
		}
	case SourceCounter:
		if p.Count < 0 {
			add("pipeline.count must be >= 0")
		}
	case SourceNATS:
		if !c.NATS.Enabled() || c.NATS.InputSubject == "" {
			add("nats.url and nats.input_subject are required for a nats source")
		}
	default:
		add("pipeline.source %q must be one of %s, %s, %s", p.Source, SourceSequence, SourceCounter, SourceNATS)
	}
	if p.PollInterval < 0 {
		add("pipeline.poll_interval must be >= 0")
	}
	if _, err := node.ParseDispatchPolicy(p.Policy); err != nil {
		add("pipeline.policy %q is unknown", p.Policy)
	}
	if p.Backpressure.Threshold < 0 {
		add("pipeline.backpressure.threshold must be >= 0")
	}
	if p.Backpressure.Threshold > 0 && p.Backpressure.Wait <= 0 {
		add("pipeline.backpressure.wait must be > 0 when a threshold is set")
	}
	if p.RateLimit.PerSecond < 0 {
		add("pipeline.rate_limit.per_second must be >= 0")
	}
	if p.RateLimit.PerSecond > 0 && p.RateLimit.Burst < 1 {
		add("pipeline.rate_limit.burst must be >= 1")
	}

	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		add("metrics.port %d out of range", c.Metrics.Port)
	}
	if c.Metrics.Port > 0 && !strings.HasPrefix(c.Metrics.Path, "/") {
		add("metrics.path must start with /")
	}
	if c.WebSocket.Port < 0 || c.WebSocket.Port > 65535 {
		add("websocket.port %d out of range", c.WebSocket.Port)
	}
	if c.WebSocket.Port > 0 && !strings.HasPrefix(c.WebSocket.Path, "/") {
		add("websocket.path must start with /")
	}
	if c.WebSocket.Port > 0 {
		if err := c.WebSocket.TLS.Validate(); err != nil {
			add("websocket.tls: %v", err)
		}
	}
	if c.WebSocket.Port > 0 && c.WebSocket.Port == c.Metrics.Port {
		add("websocket.port and metrics.port must differ")
	}
	if c.Health.MaxDepth < 0 || c.Health.MaxFailureRatio < 0 {
		add("health thresholds must be >= 0")
	}

	if c.NATS.Enabled() {
		if !strings.HasPrefix(c.NATS.URL, "nats://") && !strings.HasPrefix(c.NATS.URL, "tls://") {
			add("nats.url %q must use nats:// or tls://", c.NATS.URL)
		}
		if c.NATS.JetStream && c.NATS.Stream == "" {
			add("nats.stream is required when jetstream is enabled")
		}
		if c.NATS.Token != "" && c.NATS.Username != "" {
			add("nats.token and nats.username are mutually exclusive")
		}
		if strings.HasPrefix(c.NATS.URL, "tls://") && !c.NATS.TLS.Enabled {
			add("nats.tls must be enabled for a tls:// url")
		}
		if err := c.NATS.TLS.Validate(); err != nil {
			add("nats.tls: %v", err)
		}
	}

	if len(problems) > 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(problems, "; ")),
			"Config", "Validate", "configuration check")
	}
	return nil
}

// DispatchPolicy returns the parsed processor policy.
func (c *Config) DispatchPolicy() node.DispatchPolicy {
	policy, err := node.ParseDispatchPolicy(c.Pipeline.Policy)
	if err != nil {
		return node.ToAll
	}
	return policy
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	if c == nil {
		return Default()
	}
	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}
	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

// String renders the configuration as JSON with credentials masked.
func (c *Config) String() string {
	masked := c.Clone()
	for _, s := range []*string{&masked.NATS.Password, &masked.NATS.Token} {
		if *s != "" {
			*s = "***"
		}
	}
	data, err := json.Marshal(masked)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(data)
}

// isValidSubjectToken reports whether s can be used as one NATS subject token.
func isValidSubjectToken(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return s != ""
}

// SafeConfig provides concurrent access to a configuration.
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig wraps cfg; a nil cfg is replaced by Default().
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = Default()
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration.
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update validates cfg and swaps it in.
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "SafeConfig", "Update", "nil config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	sc.mu.Lock()
	sc.config = cfg
	sc.mu.Unlock()
	return nil
}
