package websocket

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/c360/nodeflow/errors"
	"github.com/c360/nodeflow/metric"
	"github.com/c360/nodeflow/node"
)

// Config holds configuration for the websocket output.
type Config struct {
	// Port for Listen. 0 leaves serving to the caller through Handler.
	Port int `json:"port"`
	// Path the upgrade handler is mounted on by Listen.
	Path         string        `json:"path"`
	WriteTimeout time.Duration `json:"write_timeout"`
	PingInterval time.Duration `json:"ping_interval"`
	// ReadTimeout closes clients that stay silent, pongs included, this long.
	ReadTimeout time.Duration `json:"read_timeout"`
	// TLS makes Listen serve wss. Nil serves plain ws.
	TLS *tls.Config `json:"-"`
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Path:         "/ws",
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return errors.WrapInvalid(fmt.Errorf("%w: port %d", errors.ErrInvalidConfig, c.Port),
			"Config", "Validate", "port range")
	}
	if c.Path == "" || c.Path[0] != '/' {
		return errors.WrapInvalid(fmt.Errorf("%w: path %q", errors.ErrInvalidConfig, c.Path),
			"Config", "Validate", "path must start with /")
	}
	if c.WriteTimeout <= 0 || c.PingInterval <= 0 || c.ReadTimeout <= c.PingInterval {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"timeouts must be positive and read_timeout must exceed ping_interval")
	}
	return nil
}

// MessageEnvelope is the frame sent to clients for every payload.
type MessageEnvelope struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Sender    string          `json:"sender,omitempty"`
	Timestamp int64           `json:"timestamp"` // Unix milliseconds
	Payload   json.RawMessage `json:"payload"`
}

type client struct {
	conn        *websocket.Conn
	connectedAt time.Time
	writeMu     sync.Mutex
	closeOnce   sync.Once
}

func (c *client) write(messageType int, data []byte, timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
	return c.conn.WriteMessage(messageType, data)
}

// Output is a terminal consumer node that broadcasts every payload as a JSON
// envelope to all connected websocket clients.
type Output struct {
	*node.ConsumerNode

	cfg      Config
	upgrader websocket.Upgrader
	metrics  *wsMetrics

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]*client

	serverMu sync.Mutex
	server   *http.Server
	listener net.Listener

	shutdown  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	sent     atomic.Int64
	unsent   atomic.Int64
	failures atomic.Int64
}

// New creates the node. registry may be nil. The ping loop starts right away;
// call Listen to serve cfg.Port or mount Handler on an existing server.
func New(cfg Config, registry *metric.MetricsRegistry, opts ...node.Option) (*Output, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &Output{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients:  make(map[*websocket.Conn]*client),
		shutdown: make(chan struct{}),
	}

	opts = append([]node.Option{node.WithName("websocket-output")}, opts...)
	consumer, err := node.NewConsumer(o.broadcast, opts...)
	if err != nil {
		return nil, err
	}
	o.ConsumerNode = consumer

	if registry != nil {
		m, err := newWSMetrics(registry, consumer.Name())
		if err != nil {
			consumer.Log().Warn("Websocket metrics disabled", err)
		} else {
			o.metrics = m
		}
	}

	o.wg.Add(1)
	go o.pingLoop()
	return o, nil
}

// Handler returns the HTTP handler that upgrades connections.
func (o *Output) Handler() http.Handler {
	return http.HandlerFunc(o.handleUpgrade)
}

// Listen serves Handler on cfg.Port at cfg.Path in the background.
func (o *Output) Listen() error {
	o.serverMu.Lock()
	defer o.serverMu.Unlock()

	select {
	case <-o.shutdown:
		return errors.WrapFatal(errors.ErrDisposed, "Output", "Listen", "start server")
	default:
	}
	if o.server != nil {
		return nil
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", o.cfg.Port))
	if err != nil {
		return errors.WrapTransient(err, "Output", "Listen", "listen")
	}
	if o.cfg.TLS != nil {
		ln = tls.NewListener(ln, o.cfg.TLS)
	}
	mux := http.NewServeMux()
	mux.Handle(o.cfg.Path, o.Handler())
	o.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	o.listener = ln

	server := o.server
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			o.Log().Error("Websocket server failed", err)
		}
	}()
	o.Log().Info("Websocket server listening", "addr", ln.Addr().String(), "path", o.cfg.Path, "tls", o.cfg.TLS != nil)
	return nil
}

// Addr returns the listening address, or "" before Listen.
func (o *Output) Addr() string {
	o.serverMu.Lock()
	defer o.serverMu.Unlock()
	if o.listener == nil {
		return ""
	}
	return o.listener.Addr().String()
}

func (o *Output) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	select {
	case <-o.shutdown:
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := o.upgrader.Upgrade(w, r, nil)
	if err != nil {
		o.failures.Add(1)
		o.metrics.recordError("upgrade")
		return
	}

	c := &client{conn: conn, connectedAt: time.Now()}
	o.clientsMu.Lock()
	o.clients[conn] = c
	count := len(o.clients)
	o.clientsMu.Unlock()
	o.metrics.recordConnect(count)
	o.Log().Debug("Websocket client connected", "remote", conn.RemoteAddr().String(), "clients", count)

	o.wg.Add(1)
	go o.readLoop(c)
}

// readLoop discards client frames and removes the client when the
// connection fails or goes silent.
func (o *Output) readLoop(c *client) {
	defer o.wg.Done()
	defer o.removeClient(c)

	_ = c.conn.SetReadDeadline(time.Now().Add(o.cfg.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(o.cfg.ReadTimeout))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(o.cfg.ReadTimeout))
	}
}

func (o *Output) removeClient(c *client) {
	c.closeOnce.Do(func() {
		o.clientsMu.Lock()
		delete(o.clients, c.conn)
		count := len(o.clients)
		o.clientsMu.Unlock()
		o.metrics.recordDisconnect(count)
		_ = c.conn.Close()
	})
}

func (o *Output) snapshot() []*client {
	o.clientsMu.RLock()
	defer o.clientsMu.RUnlock()
	out := make([]*client, 0, len(o.clients))
	for _, c := range o.clients {
		out = append(out, c)
	}
	return out
}

// ClientCount returns the number of connected clients.
func (o *Output) ClientCount() int {
	o.clientsMu.RLock()
	defer o.clientsMu.RUnlock()
	return len(o.clients)
}

func (o *Output) broadcast(sender node.Producer, payload node.Payload) error {
	data, err := encode(payload)
	if err != nil {
		o.failures.Add(1)
		return errors.WrapInvalid(err, "Output", "broadcast", "marshal payload")
	}

	envelope := MessageEnvelope{
		Type:      "data",
		ID:        uuid.NewString(),
		Timestamp: time.Now().UnixMilli(),
		Payload:   data,
	}
	if named, ok := sender.(node.Named); ok {
		envelope.Sender = named.Name()
	}
	frame, err := json.Marshal(envelope)
	if err != nil {
		o.failures.Add(1)
		return errors.WrapInvalid(err, "Output", "broadcast", "marshal envelope")
	}

	clients := o.snapshot()
	if len(clients) == 0 {
		o.unsent.Add(1)
		return nil
	}

	start := time.Now()
	var delivered int
	for _, c := range clients {
		if err := c.write(websocket.TextMessage, frame, o.cfg.WriteTimeout); err != nil {
			o.failures.Add(1)
			o.metrics.recordError("write")
			o.removeClient(c)
			continue
		}
		delivered++
	}
	o.sent.Add(int64(delivered))
	o.metrics.recordBroadcast(delivered, len(frame), time.Since(start))
	return nil
}

func encode(payload node.Payload) (json.RawMessage, error) {
	if b, ok := payload.([]byte); ok && json.Valid(b) {
		return json.RawMessage(b), nil
	}
	return json.Marshal(payload)
}

func (o *Output) pingLoop() {
	defer o.wg.Done()
	ticker := time.NewTicker(o.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.shutdown:
			return
		case <-ticker.C:
			for _, c := range o.snapshot() {
				if err := c.write(websocket.PingMessage, nil, o.cfg.WriteTimeout); err != nil {
					o.metrics.recordError("ping")
					o.removeClient(c)
				}
			}
		}
	}
}

// Dispose drains the mailbox, then stops the server and disconnects every
// client.
func (o *Output) Dispose() {
	o.ConsumerNode.Dispose()

	o.closeOnce.Do(func() {
		close(o.shutdown)

		o.serverMu.Lock()
		server := o.server
		o.serverMu.Unlock()
		if server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := server.Shutdown(ctx); err != nil {
				o.Log().Warn("Websocket server shutdown", err)
			}
			cancel()
		}

		for _, c := range o.snapshot() {
			_ = c.write(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Second)
			o.removeClient(c)
		}
		o.wg.Wait()
		o.metrics.unregister()
	})
}

// Sent returns the number of frames written across all clients.
func (o *Output) Sent() int64 { return o.sent.Load() }

// Unsent returns the number of payloads that arrived with no client connected.
func (o *Output) Unsent() int64 { return o.unsent.Load() }

// Failures returns encode, upgrade and write failures.
func (o *Output) Failures() int64 { return o.failures.Load() }
