package natsclient

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/hapticlink/config"
	"github.com/c360/hapticlink/metric"
)

// ClientOption configures a Client. Options reject invalid values, which
// NewClient reports as invalid configuration.
type ClientOption func(*Client) error

func positive(name string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %v", name, d)
	}
	return nil
}

// WithMaxReconnects sets the reconnect budget; -1 retries forever
func WithMaxReconnects(n int) ClientOption {
	return func(c *Client) error {
		if n < -1 {
			return fmt.Errorf("max reconnects must be >= -1, got %d", n)
		}
		c.maxReconnects = n
		return nil
	}
}

// WithReconnectWait sets the pause between reconnect attempts
func WithReconnectWait(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.reconnectWait = d
		return positive("reconnect wait", d)
	}
}

// WithTimeout sets the dial timeout
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.timeout = d
		return positive("timeout", d)
	}
}

// WithDrainTimeout bounds Close
func WithDrainTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.drainTimeout = d
		return positive("drain timeout", d)
	}
}

// WithMessageTimeout bounds the context handed to subscription handlers
func WithMessageTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.messageTimeout = d
		return positive("message timeout", d)
	}
}

// WithToken authenticates with a server token
func WithToken(token string) ClientOption {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// WithName sets the connection name shown by the server
func WithName(name string) ClientOption {
	return func(c *Client) error {
		c.clientName = name
		return nil
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithHealthChangeCallback is called with false when the connection drops
// and true when it is (re)established. It runs on its own goroutine except
// for the first connect.
func WithHealthChangeCallback(fn func(healthy bool)) ClientOption {
	return func(c *Client) error {
		c.onHealthChange = fn
		return nil
	}
}

// WithMetrics reports connection state and reconnects in registry
func WithMetrics(registry *metric.MetricsRegistry) ClientOption {
	return func(c *Client) error {
		c.metrics = registry.CoreMetrics()
		return nil
	}
}

// FromConfig turns the nats section of the daemon configuration into
// options. Zero values keep the client defaults.
func FromConfig(cfg config.NATSConfig) []ClientOption {
	opts := []ClientOption{WithMaxReconnects(cfg.MaxReconnects)}
	if cfg.ReconnectWait > 0 {
		opts = append(opts, WithReconnectWait(cfg.ReconnectWait))
	}
	if cfg.Token != "" {
		opts = append(opts, WithToken(cfg.Token))
	}
	return opts
}
