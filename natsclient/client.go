// Package natsclient provides the NATS-backed channel transport used by
// analytics: typed publish/subscribe of Data records on named logical
// channels, plus JetStream key-value buckets for durable tables.
package natsclient

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/streamlytics/data"
	"github.com/c360/streamlytics/errors"
	"github.com/c360/streamlytics/metric"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Subscription is a handle to an active channel subscription. Dropping it
// via Unsubscribe tears down delivery for this subscriber only.
type Subscription struct {
	sub     *nats.Subscription
	channel string
	client  *Client
}

// Unsubscribe tears down this listener. Idempotent.
func (s *Subscription) Unsubscribe() error {
	if s.sub == nil {
		return nil
	}
	err := s.sub.Unsubscribe()
	s.client.dropSubscription(s)
	s.sub = nil
	if err != nil {
		return errors.WrapTransient(err, "Subscription", "Unsubscribe", "drop "+s.channel)
	}
	return nil
}

// Client manages a NATS connection and typed Data record delivery
type Client struct {
	url     string
	logger  *slog.Logger
	metrics *metric.Metrics

	conn *nats.Conn
	js   jetstream.JetStream

	status atomic.Value // ConnectionStatus

	// Connection options
	maxReconnects int
	reconnectWait time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration
	clientName    string

	subs   map[*Subscription]struct{}
	mu     sync.RWMutex
	closed atomic.Bool
}

// NewClient creates a NATS client with optional configuration.
// Connect must be called before publishing or subscribing.
func NewClient(url string, opts ...Option) (*Client, error) {
	if url == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Client", "NewClient", "NATS URL required")
	}
	c := &Client{
		url:           url,
		logger:        slog.Default(),
		maxReconnects: -1, // infinite by default
		reconnectWait: 2 * time.Second,
		timeout:       5 * time.Second,
		drainTimeout:  30 * time.Second,
		clientName:    "streamlytics",
		subs:          make(map[*Subscription]struct{}),
	}
	c.status.Store(StatusDisconnected)
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// URL returns the configured server URL
func (c *Client) URL() string {
	return c.url
}

// Status returns the current connection status
func (c *Client) Status() ConnectionStatus {
	return c.status.Load().(ConnectionStatus)
}

// IsConnected reports whether the client currently holds a live connection
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// Connect establishes the NATS connection
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return errors.WrapFatal(errors.ErrNoConnection, "Client", "Connect", "client closed")
	}

	c.status.Store(StatusConnecting)

	opts := []nats.Option{
		nats.Name(c.clientName),
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.Timeout(c.timeout),
		nats.DrainTimeout(c.drainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.status.Store(StatusReconnecting)
			c.recordStatus(false)
			c.logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			c.status.Store(StatusConnected)
			c.recordStatus(true)
			if c.metrics != nil {
				c.metrics.RecordNATSReconnect()
			}
			c.logger.Info("NATS reconnected", "url", conn.ConnectedUrl())
		}),
	}

	conn, err := nats.Connect(c.url, opts...)
	if err != nil {
		c.status.Store(StatusDisconnected)
		return errors.WrapTransient(err, "Client", "Connect", "connect to "+c.url)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		c.status.Store(StatusDisconnected)
		return errors.WrapTransient(err, "Client", "Connect", "initialize JetStream")
	}

	c.mu.Lock()
	c.conn = conn
	c.js = js
	c.mu.Unlock()
	c.status.Store(StatusConnected)
	c.recordStatus(true)
	if c.metrics != nil {
		if rtt, rerr := conn.RTT(); rerr == nil {
			c.metrics.RecordNATSRTT(rtt)
		}
	}

	c.logger.Info("Connected to NATS", "url", c.url)

	// Honor an already-cancelled context
	if ctx.Err() != nil {
		_ = c.Close(context.Background())
		return ctx.Err()
	}
	return nil
}

// Close drains outstanding subscriptions and releases the connection.
// Safe to call more than once.
func (c *Client) Close(_ context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.js = nil
	c.subs = make(map[*Subscription]struct{})
	c.mu.Unlock()

	c.status.Store(StatusDisconnected)
	c.recordStatus(false)
	if conn == nil {
		return nil
	}

	if err := conn.Drain(); err != nil {
		conn.Close()
		return errors.WrapTransient(err, "Client", "Close", "drain connection")
	}
	return nil
}

// Publish sends a Data record to the named channel
func (c *Client) Publish(_ context.Context, channel string, rec *data.Data) error {
	if channel == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "Client", "Publish", "channel name required")
	}
	raw, err := rec.Marshal()
	if err != nil {
		return errors.WrapInvalid(err, "Client", "Publish", "encode record")
	}
	return c.PublishRaw(channel, raw)
}

// PublishRaw sends pre-encoded bytes to the named channel
func (c *Client) PublishRaw(channel string, raw []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		c.recordError("publish")
		return errors.WrapTransient(errors.ErrNoConnection, "Client", "PublishRaw", "publish to "+channel)
	}
	if err := conn.Publish(channel, raw); err != nil {
		c.recordError("publish")
		return errors.WrapTransient(err, "Client", "PublishRaw", "publish to "+channel)
	}
	return nil
}

// Subscribe registers a handler for Data records on the named channel.
// Records that fail to decode are logged and dropped; delivery continues.
// The returned handle unsubscribes this listener only, so one analytic's
// teardown never disturbs another's subscriptions on the same channel.
func (c *Client) Subscribe(
	ctx context.Context, channel string, handler func(context.Context, *data.Data),
) (*Subscription, error) {
	if channel == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Client", "Subscribe", "channel name required")
	}

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return nil, errors.WrapTransient(errors.ErrNoConnection, "Client", "Subscribe", "subscribe to "+channel)
	}

	handle := &Subscription{channel: channel, client: c}
	sub, err := conn.Subscribe(channel, func(msg *nats.Msg) {
		rec, derr := data.Unmarshal(msg.Data)
		if derr != nil {
			c.recordError("decode")
			c.logger.Warn("Dropping undecodable record",
				"channel", channel,
				"error", derr)
			return
		}
		handler(ctx, rec)
	})
	if err != nil {
		c.recordError("subscribe")
		return nil, errors.WrapTransient(err, "Client", "Subscribe", "subscribe to "+channel)
	}
	handle.sub = sub

	c.mu.Lock()
	c.subs[handle] = struct{}{}
	c.mu.Unlock()

	return handle, nil
}

func (c *Client) dropSubscription(s *Subscription) {
	c.mu.Lock()
	delete(c.subs, s)
	c.mu.Unlock()
}

// RTT returns the measured round-trip time to the server
func (c *Client) RTT() (time.Duration, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return 0, errors.WrapTransient(errors.ErrNoConnection, "Client", "RTT", "measure round trip")
	}
	rtt, err := conn.RTT()
	if err != nil {
		return 0, errors.WrapTransient(err, "Client", "RTT", "measure round trip")
	}
	if c.metrics != nil {
		c.metrics.RecordNATSRTT(rtt)
	}
	return rtt, nil
}

func (c *Client) recordStatus(connected bool) {
	if c.metrics != nil {
		c.metrics.RecordNATSStatus(connected)
	}
}

func (c *Client) recordError(errorType string) {
	if c.metrics != nil {
		c.metrics.RecordError("natsclient", errorType)
	}
}

// JetStream returns the JetStream context, or an error when not connected
func (c *Client) JetStream() (jetstream.JetStream, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.js == nil {
		return nil, errors.WrapTransient(errors.ErrNoConnection, "Client", "JetStream", "JetStream access")
	}
	return c.js, nil
}

// WaitForConnection blocks until the connection is live or ctx expires
func (c *Client) WaitForConnection(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if c.IsConnected() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for NATS connection: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
