package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/c360/hapticlink/errors"
	"github.com/c360/hapticlink/gateway"
	"github.com/c360/hapticlink/haptic"
	"github.com/c360/hapticlink/health"
	"github.com/c360/hapticlink/metric"
)

// HealthComponent is the name the bridge reports under in the health monitor
const HealthComponent = "nats"

// Transport is the pub/sub surface the bridge needs.
// *natsclient.Client and testutil.MockNATSClient implement it.
type Transport interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error
}

// Subject suffixes under <prefix>.commands
const (
	CommandConnect    = "connect"
	CommandDisconnect = "disconnect"
	CommandVibrate    = "vibrate"
	CommandPattern    = "pattern"
	CommandStop       = "stop"
)

// Option configures a Bridge
type Option func(*Bridge)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithHealth reports bridge state to monitor
func WithHealth(monitor *health.Monitor) Option {
	return func(b *Bridge) {
		b.monitor = monitor
	}
}

// WithMetrics records published events and handled commands
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(b *Bridge) {
		b.metrics = registry.CoreMetrics()
	}
}

// Bridge relays controller events to NATS and NATS commands to the controller
type Bridge struct {
	ctrl      gateway.Controller
	transport Transport
	prefix    string
	logger    *slog.Logger
	monitor   *health.Monitor
	metrics   *metric.Metrics

	mu          sync.Mutex
	ctx         context.Context
	unsubscribe func()
	running     bool
}

// New creates a bridge. prefix is the subject root, e.g. "haptics".
func New(ctrl gateway.Controller, transport Transport, prefix string, opts ...Option) (*Bridge, error) {
	if ctrl == nil || transport == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Bridge", "New", "dependency validation")
	}
	prefix = strings.Trim(prefix, ".")
	if prefix == "" || strings.ContainsAny(prefix, "*> \t") {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: subject prefix '%s'", errors.ErrInvalidConfig, prefix),
			"Bridge", "New", "prefix validation")
	}

	b := &Bridge{
		ctrl:      ctrl,
		transport: transport,
		prefix:    prefix,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "bridge")
	return b, nil
}

// EventSubject returns the subject an event type is published on
func (b *Bridge) EventSubject(t haptic.EventType) string {
	return b.prefix + ".events." + string(t)
}

// CommandSubject returns the subject a command is accepted on
func (b *Bridge) CommandSubject(command string) string {
	return b.prefix + ".commands." + command
}

// StatusSubject returns the subject status snapshots are published on
func (b *Bridge) StatusSubject() string {
	return b.prefix + ".status"
}

// Start subscribes the command subjects and begins forwarding events.
// ctx bounds the subscriptions and every publish.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return nil
	}

	handlers := map[string]func(context.Context, []byte) error{
		CommandConnect:    b.handleConnect,
		CommandDisconnect: b.handleDisconnect,
		CommandVibrate:    b.handleVibrate,
		CommandPattern:    b.handlePattern,
		CommandStop:       b.handleStop,
	}
	for _, command := range []string{CommandConnect, CommandDisconnect, CommandVibrate, CommandPattern, CommandStop} {
		subject := b.CommandSubject(command)
		if err := b.transport.Subscribe(ctx, subject, b.command(command, handlers[command])); err != nil {
			b.reportUnhealthy("subscribe " + subject + ": " + err.Error())
			return errors.WrapTransient(err, "Bridge", "Start", "subscribe "+subject)
		}
	}

	b.ctx = ctx
	b.unsubscribe = b.ctrl.Subscribe(b.forward)
	b.running = true

	if b.monitor != nil {
		b.monitor.UpdateHealthy(HealthComponent, "bridge running on "+b.prefix)
	}
	b.logger.Info("NATS bridge started", "prefix", b.prefix)
	return nil
}

// Stop stops forwarding events and ignores further commands. The
// subscriptions themselves end when the transport is closed.
func (b *Bridge) Stop() {
	b.mu.Lock()
	unsubscribe := b.unsubscribe
	b.unsubscribe = nil
	b.running = false
	b.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
		b.logger.Info("NATS bridge stopped")
	}
}

// Running reports whether Start succeeded and Stop has not been called
func (b *Bridge) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

func (b *Bridge) publishContext() context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx == nil {
		return context.Background()
	}
	return b.ctx
}

func (b *Bridge) forward(e haptic.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		b.logger.Warn("Failed to encode event", "type", e.Type, "error", err)
		return
	}
	if err := b.transport.Publish(b.publishContext(), b.EventSubject(e.Type), data); err != nil {
		b.logger.Warn("Failed to publish event", "type", e.Type, "error", err)
		b.reportUnhealthy("publish event: " + err.Error())
	}
}

func (b *Bridge) command(name string, handle func(context.Context, []byte) error) func(context.Context, []byte) {
	return func(ctx context.Context, data []byte) {
		if !b.Running() {
			b.logger.Debug("Dropping command while stopped", "command", name)
			return
		}
		if err := handle(ctx, data); err != nil {
			b.logger.Warn("NATS command rejected", "command", name, "error", err)
			b.metrics.RecordCommand("nats", name, "rejected")
			return
		}
		b.metrics.RecordCommand("nats", name, "accepted")
		b.publishStatus(ctx)
	}
}

func (b *Bridge) publishStatus(ctx context.Context) {
	data, err := json.Marshal(b.ctrl.Status())
	if err != nil {
		b.logger.Warn("Failed to encode status", "error", err)
		return
	}
	if err := b.transport.Publish(ctx, b.StatusSubject(), data); err != nil {
		b.logger.Warn("Failed to publish status", "error", err)
	}
}

func (b *Bridge) reportUnhealthy(message string) {
	if b.monitor != nil {
		b.monitor.UpdateUnhealthy(HealthComponent, message)
	}
}

func (b *Bridge) handleConnect(ctx context.Context, _ []byte) error {
	if err := b.ctrl.Connect(ctx); err != nil {
		// The provider has already published an error event
		b.logger.Debug("Connect command failed", "error", err)
	}
	return nil
}

func (b *Bridge) handleDisconnect(context.Context, []byte) error {
	b.ctrl.Disconnect()
	return nil
}

func (b *Bridge) handleStop(context.Context, []byte) error {
	b.ctrl.Stop()
	return nil
}

func (b *Bridge) handleVibrate(_ context.Context, data []byte) error {
	var req gateway.VibrateRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}
	b.ctrl.Vibrate(*req.Intensity, req.Duration())
	return nil
}

func (b *Bridge) handlePattern(_ context.Context, data []byte) error {
	var req gateway.PatternRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}
	b.ctrl.VibratePattern(req.Samples, req.Window())
	return nil
}

func decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidData, err), "Bridge", "decode", "parse payload")
	}
	return nil
}
