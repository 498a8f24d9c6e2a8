// Package wsclient implements a reconnecting WebSocket client with a
// ping/pong watchdog and exponential backoff. No exchange adapter in this
// repository uses it.
package wsclient

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/purefinance/mmb/internal/logging"
	"github.com/purefinance/mmb/internal/telemetry"
)

// Handler is invoked with each received message's payload.
type Handler func(data []byte)

// PingConfig controls the heartbeat watchdog.
type PingConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

var defaultPingConfig = PingConfig{Interval: 20 * time.Second, Timeout: 10 * time.Second}

// Client maintains a single WebSocket connection to url, reconnecting with
// exponential backoff on any read/dial error and resubscribing via the
// caller-supplied onConnect hook each time.
type Client struct {
	url       string
	logger    logging.Logger
	handler   Handler
	onConnect func(conn *websocket.Conn) error
	pingCfg   PingConfig

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc

	tracer      trace.Tracer
	msgCounter  metric.Int64Counter
	connCounter metric.Int64Counter
	latencyHist metric.Float64Histogram
}

// New builds a Client. onConnect, if non-nil, runs immediately after every
// successful (re)connection, typically to send subscription frames.
func New(url string, logger logging.Logger, handler Handler, onConnect func(conn *websocket.Conn) error) *Client {
	meter := telemetry.GetMeter("wsclient")
	msgCounter, _ := meter.Int64Counter("mmb_ws_messages_total")
	connCounter, _ := meter.Int64Counter("mmb_ws_connections_total")
	latencyHist, _ := meter.Float64Histogram("mmb_ws_connect_latency_ms")

	return &Client{
		url:         url,
		logger:      logger,
		handler:     handler,
		onConnect:   onConnect,
		pingCfg:     defaultPingConfig,
		tracer:      telemetry.GetTracer("wsclient"),
		msgCounter:  msgCounter,
		connCounter: connCounter,
		latencyHist: latencyHist,
	}
}

// SetPingConfig overrides the default heartbeat interval/timeout.
func (c *Client) SetPingConfig(cfg PingConfig) {
	c.pingCfg = cfg
}

// Run connects and reconnects until ctx is canceled.
func (c *Client) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		start := time.Now()
		if err := c.runLoop(ctx); err != nil {
			c.logger.Warn("websocket disconnected", "url", c.url, "error", err)
		}
		c.latencyHist.Record(ctx, float64(time.Since(start).Milliseconds()))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (c *Client) runLoop(ctx context.Context) error {
	dialCtx, span := c.tracer.Start(ctx, "wsclient.connect")
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.url, nil)
	span.End()
	if err != nil {
		return err
	}
	c.connCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("url", c.url)))

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer c.closeConn()

	if c.onConnect != nil {
		if err := c.onConnect(conn); err != nil {
			return err
		}
	}

	conn.SetReadDeadline(time.Now().Add(c.pingCfg.Interval + c.pingCfg.Timeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.pingCfg.Interval + c.pingCfg.Timeout))
		return nil
	})

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go c.heartbeat(heartbeatCtx, conn)
	// Closing the connection on cancellation unblocks ReadMessage, so Stop
	// or a canceled ctx ends the read loop without waiting for the deadline.
	go func() {
		<-heartbeatCtx.Done()
		_ = conn.Close()
	}()

	return c.readLoop(ctx, conn)
}

func (c *Client) heartbeat(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.pingCfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.pingCfg.Timeout)); err != nil {
				return
			}
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.msgCounter.Add(ctx, 1)
		if c.handler != nil {
			c.handler(data)
		}
	}
}

func (c *Client) closeConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// Stop terminates the client's reconnect loop.
func (c *Client) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}
