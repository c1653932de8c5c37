package natsclient

import (
	"log/slog"
	"time"

	"github.com/c360/streamlytics/metric"
)

// Option configures a Client at construction time
type Option func(*Client)

// WithLogger sets the structured logger used by the client
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClientName sets the connection name reported to the server
func WithClientName(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.clientName = name
		}
	}
}

// WithMaxReconnects limits reconnect attempts (-1 = infinite)
func WithMaxReconnects(n int) Option {
	return func(c *Client) {
		c.maxReconnects = n
	}
}

// WithReconnectWait sets the delay between reconnect attempts
func WithReconnectWait(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.reconnectWait = d
		}
	}
}

// WithTimeout sets the connect timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithDrainTimeout bounds how long Close waits for in-flight messages
func WithDrainTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.drainTimeout = d
		}
	}
}

// WithMetrics wires connection status, reconnects, round-trip time and
// transport errors into the platform metrics
func WithMetrics(reg *metric.Registry) Option {
	return func(c *Client) {
		if reg != nil {
			c.metrics = reg.CoreMetrics()
		}
	}
}
