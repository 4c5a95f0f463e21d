package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/hapticlink/errors"
	"github.com/c360/hapticlink/metric"
)

// ConnectionStatus is the state of the NATS connection as seen by Client
type ConnectionStatus int

// Connection states
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

const (
	pingInterval = 30 * time.Second
	pollInterval = 10 * time.Millisecond
)

// Client errors
var (
	ErrNotConnected = stderrors.New("not connected to NATS")
	ErrClosed       = stderrors.New("client is closed")
)

// Client owns one NATS connection for the bridge: it tracks status for
// health and metrics, remembers its subscriptions and drains on Close.
type Client struct {
	url     string
	status  atomic.Value // ConnectionStatus
	logger  *slog.Logger
	metrics *metric.Metrics

	mu   sync.RWMutex
	conn *nats.Conn
	subs []*nats.Subscription

	maxReconnects  int
	reconnectWait  time.Duration
	timeout        time.Duration
	drainTimeout   time.Duration
	messageTimeout time.Duration
	clientName     string
	token          string // cleared on Close

	onHealthChange func(bool)

	closeMu sync.Mutex
	closed  atomic.Bool
}

// NewClient validates url and the options. Nothing is dialled until Connect.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	if url == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "natsclient", "NewClient", "check url")
	}
	c := &Client{
		url:            url,
		logger:         slog.Default(),
		maxReconnects:  -1,
		reconnectWait:  2 * time.Second,
		timeout:        5 * time.Second,
		drainTimeout:   5 * time.Second,
		messageTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "natsclient", "NewClient", "apply option")
		}
	}
	c.logger = c.logger.With("component", "natsclient")
	c.status.Store(StatusDisconnected)
	return c, nil
}

// URL returns the server URL
func (c *Client) URL() string { return c.url }

// Status returns the current connection status
func (c *Client) Status() ConnectionStatus {
	if s, ok := c.status.Load().(ConnectionStatus); ok {
		return s
	}
	return StatusDisconnected
}

// IsHealthy reports whether the client is connected
func (c *Client) IsHealthy() bool { return c.Status() == StatusConnected }

func (c *Client) setStatus(s ConnectionStatus) {
	c.status.Store(s)
	c.metrics.RecordNATSStatus(s == StatusConnected)
}

func (c *Client) notifyHealth(healthy bool, async bool) {
	if c.onHealthChange == nil {
		return
	}
	if async {
		go c.onHealthChange(healthy)
		return
	}
	c.onHealthChange(healthy)
}

// WaitForConnection polls until the client is connected or ctx ends
func (c *Client) WaitForConnection(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for !c.IsHealthy() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("connection timeout: %w", ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

// ConnectionOptions returns the nats.go options Connect dials with
func (c *Client) ConnectionOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.PingInterval(pingInterval),
		nats.Timeout(c.timeout),
		nats.DrainTimeout(c.drainTimeout),
		nats.DisconnectErrHandler(c.handleDisconnect),
		nats.ReconnectHandler(c.handleReconnect),
		nats.ClosedHandler(c.handleClosed),
		nats.ErrorHandler(c.handleError),
	}
	if c.token != "" {
		opts = append(opts, nats.Token(c.token))
	}
	if c.clientName != "" {
		opts = append(opts, nats.Name(c.clientName))
	}
	return opts
}

// Connect dials the server. It returns nil when already connected and a
// fatal ErrClosed after Close. Dial failures are transient and wrap
// ErrConnectionFailed; a ctx that ends first abandons the dial.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return errors.WrapFatal(ErrClosed, "natsclient", "Connect", "check closed")
	}
	if c.IsHealthy() {
		return nil
	}

	c.setStatus(StatusConnecting)
	c.logger.Info("Connecting to NATS", "url", c.url)

	opts := c.ConnectionOptions()
	dialed := make(chan error, 1)
	go func() {
		conn, err := nats.Connect(c.url, opts...)
		if err != nil {
			dialed <- err
			return
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed.Load() || ctx.Err() != nil {
			conn.Close()
			dialed <- ErrClosed
			return
		}
		c.conn = conn
		dialed <- nil
	}()

	select {
	case err := <-dialed:
		if err != nil {
			c.setStatus(StatusDisconnected)
			return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrConnectionFailed, err),
				"natsclient", "Connect", "dial "+c.url)
		}
	case <-ctx.Done():
		c.setStatus(StatusDisconnected)
		return errors.WrapTransient(ctx.Err(), "natsclient", "Connect", "wait for dial")
	}

	c.setStatus(StatusConnected)
	c.logger.Info("Connected to NATS", "url", c.url)
	c.notifyHealth(true, false)
	return nil
}

// Close unsubscribes, drains within the drain timeout (or the ctx deadline
// when sooner) and closes the connection. Further calls return nil.
func (c *Client) Close(ctx context.Context) error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed.Swap(true) {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for _, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil && !stderrors.Is(err, nats.ErrConnectionClosed) {
			errs = append(errs, errors.Wrap(err, "natsclient", "Close", "unsubscribe "+sub.Subject))
		}
	}
	c.subs = nil

	if c.conn != nil {
		if err := c.drain(ctx); err != nil {
			errs = append(errs, err)
		}
		c.conn.Close()
		c.conn = nil
	}
	c.token = ""
	c.setStatus(StatusDisconnected)
	return stderrors.Join(errs...)
}

// drain runs conn.Drain bounded by the drain timeout and ctx. Caller holds mu.
func (c *Client) drain(ctx context.Context) error {
	timeout := c.drainTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = max(min(timeout, time.Until(deadline)), 0)
	}

	conn := c.conn
	done := make(chan error, 1)
	go func() { done <- conn.Drain() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil && !stderrors.Is(err, nats.ErrConnectionClosed) {
			return errors.Wrap(err, "natsclient", "Close", "drain connection")
		}
		return nil
	case <-timer.C:
		return errors.WrapTransient(fmt.Errorf("drain did not finish within %v", timeout),
			"natsclient", "Close", "drain connection")
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "natsclient", "Close", "drain connection")
	}
}

func (c *Client) connected() (*nats.Conn, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn, c.conn != nil && c.conn.IsConnected()
}

// RTT measures the round trip to the server
func (c *Client) RTT() (time.Duration, error) {
	conn, ok := c.connected()
	if !ok {
		return 0, ErrNotConnected
	}
	return conn.RTT()
}

// Subscribe registers handler for subject. Each call of handler gets a
// context derived from ctx and bounded by the message timeout. The
// subscription is removed on Close.
func (c *Client) Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || !c.conn.IsConnected() {
		return ErrNotConnected
	}

	timeout := c.messageTimeout
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		msgCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		handler(msgCtx, msg.Data)
	})
	if err != nil {
		return errors.WrapTransient(err, "natsclient", "Subscribe", "subscribe "+subject)
	}
	c.subs = append(c.subs, sub)
	return nil
}

// Publish sends data on subject. Delivery is at most once.
func (c *Client) Publish(_ context.Context, subject string, data []byte) error {
	conn, ok := c.connected()
	if !ok {
		return ErrNotConnected
	}
	return conn.Publish(subject, data)
}

func (c *Client) handleDisconnect(_ *nats.Conn, err error) {
	if c.closed.Load() {
		return
	}
	c.setStatus(StatusReconnecting)
	c.logger.Warn("Disconnected from NATS", "error", err)
	c.notifyHealth(false, true)
}

func (c *Client) handleReconnect(_ *nats.Conn) {
	c.setStatus(StatusConnected)
	c.metrics.RecordNATSReconnect()
	c.logger.Info("Reconnected to NATS", "url", c.url)
	c.notifyHealth(true, true)
}

func (c *Client) handleClosed(_ *nats.Conn) {
	c.setStatus(StatusDisconnected)
	if !c.closed.Load() {
		c.notifyHealth(false, true)
	}
}

func (c *Client) handleError(_ *nats.Conn, sub *nats.Subscription, err error) {
	if sub != nil {
		c.logger.Error("NATS subscription error", "subject", sub.Subject, "error", err)
		return
	}
	c.logger.Error("NATS error", "error", err)
}
