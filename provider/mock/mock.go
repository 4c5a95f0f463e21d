// Package mock implements a haptic.Provider without hardware. Each command
// is shown as a toast so call timing and values can be checked by eye.
package mock

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/c360/hapticlink/haptic"
	"github.com/c360/hapticlink/metric"
	"github.com/c360/hapticlink/throttle"
)

const (
	label = string(haptic.KindMock)
	title = "Mock Haptics"
)

var mockDevices = []haptic.Device{
	{ID: "mock-a", Label: "Mock Vibrator A (100%)", CanVibrate: true},
	{ID: "mock-b", Label: "Mock Vibrator B (75%)", CanVibrate: true},
}

// Config holds configuration for the mock provider
type Config struct {
	ToastDuration time.Duration `json:"toast_duration"`
}

// DefaultConfig returns the default mock configuration
func DefaultConfig() Config {
	return Config{ToastDuration: DefaultToastDuration}
}

// Option configures a Provider
type Option func(*Provider)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithToaster sets where toasts are shown
func WithToaster(t Toaster) Option {
	return func(p *Provider) {
		if t != nil {
			p.toaster = t
		}
	}
}

// WithMetrics records command counts in registry
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(p *Provider) {
		p.metrics = registry.CoreMetrics()
	}
}

// Provider is the diagnostic provider
type Provider struct {
	cfg     Config
	logger  *slog.Logger
	toaster Toaster
	metrics *metric.Metrics
	levels  throttle.Config

	notifier haptic.Notifier
	counters haptic.Counters

	mu        sync.RWMutex
	connected bool
}

// New creates a mock provider
func New(cfg Config, opts ...Option) *Provider {
	if cfg.ToastDuration <= 0 {
		cfg.ToastDuration = DefaultToastDuration
	}
	p := &Provider{cfg: cfg, logger: slog.Default(), levels: throttle.DefaultConfig()}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "mock", "provider", label)
	if p.toaster == nil {
		p.toaster = LogToaster{Logger: p.logger}
	}
	return p
}

func (p *Provider) Name() string { return "Mock" }

func (p *Provider) Kind() haptic.Kind { return haptic.KindMock }

func (p *Provider) Endpoint() string { return "" }

// Subscribe registers an event handler
func (p *Provider) Subscribe(fn func(haptic.Event)) func() { return p.notifier.Subscribe(fn) }

func (p *Provider) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

func (p *Provider) Devices() []string {
	if !p.IsConnected() {
		return []string{}
	}
	return haptic.Labels(mockDevices)
}

func (p *Provider) ActiveDevice() string {
	if !p.IsConnected() {
		return ""
	}
	return mockDevices[0].ID
}

func (p *Provider) Status() haptic.Status {
	connected := p.IsConnected()
	s := haptic.Status{
		Name:      p.Name(),
		Kind:      haptic.KindMock,
		State:     haptic.StateDisconnected.String(),
		Connected: connected,
		Devices:   p.Devices(),
	}
	if connected {
		s.State = haptic.StateConnected.String()
		s.ActiveDevice = mockDevices[0].ID
	}
	p.counters.Fill(&s)
	return s
}

// Connect always succeeds and reports the two fixed devices
func (p *Provider) Connect(_ context.Context) error {
	p.mu.Lock()
	if p.connected {
		p.mu.Unlock()
		return nil
	}
	p.connected = true
	p.mu.Unlock()

	p.metrics.RecordConnected(label, true)
	p.metrics.RecordDevices(label, len(mockDevices))
	p.logger.Info("Connected", "devices", len(mockDevices))
	for _, d := range mockDevices {
		p.notifier.Publish(haptic.DeviceDiscovered(p.Name(), d.Label))
	}
	p.notifier.Publish(haptic.ConnectionChanged(p.Name(), true))
	return nil
}

func (p *Provider) Disconnect() {
	p.mu.Lock()
	was := p.connected
	p.connected = false
	p.mu.Unlock()

	if was {
		p.metrics.RecordConnected(label, false)
		p.metrics.RecordDevices(label, 0)
		p.logger.Info("Disconnected")
		p.notifier.Publish(haptic.ConnectionChanged(p.Name(), false))
	}
}

// Vibrate shows "Vibrate N% for Dms"
func (p *Provider) Vibrate(intensity float64, duration time.Duration) {
	cmd := haptic.NewCommand(intensity, duration)
	pct := int(math.Round(cmd.Intensity * 100))
	p.show("vibrate", fmt.Sprintf("Vibrate %d%% for %dms", pct, cmd.Duration.Milliseconds()))
}

// VibratePattern shows the representative level of a sample window
func (p *Provider) VibratePattern(samples []float64, window time.Duration) {
	if len(samples) == 0 {
		return
	}
	level := p.levels.Representative(p.levels.QuantizeAll(samples))
	p.show("vibrate", fmt.Sprintf("Pattern level %d/%d for %dms (%d samples)",
		level, p.levels.MaxLevel, window.Milliseconds(), len(samples)))
}

// Stop shows "Stop"
func (p *Provider) Stop() {
	p.show("stop", "Stop")
}

func (p *Provider) show(action, message string) {
	if !p.IsConnected() {
		return
	}
	p.toaster.Toast(Toast{Title: title, Message: message, Duration: p.cfg.ToastDuration})
	p.counters.Sent()
	p.metrics.RecordCommand(label, action, metric.CommandSent)
	p.logger.Debug("Command shown", "action", action, "message", message)
}

var (
	_ haptic.Provider      = (*Provider)(nil)
	_ haptic.PatternPlayer = (*Provider)(nil)
)
