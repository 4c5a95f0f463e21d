// Package controller owns the single active haptic provider of the daemon.
//
// UI and bridge subscribers attach to the Controller rather than to a
// provider, so they keep receiving events when the provider is swapped on
// reconfiguration.
package controller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/hapticlink/config"
	"github.com/c360/hapticlink/errors"
	"github.com/c360/hapticlink/haptic"
	"github.com/c360/hapticlink/metric"
	"github.com/c360/hapticlink/providerregistry"
)

// Controller delegates the provider operations to the active provider
type Controller struct {
	registry *providerregistry.Registry
	deps     providerregistry.Dependencies
	logger   *slog.Logger
	metrics  *metric.Metrics

	notifier haptic.Notifier

	mu          sync.RWMutex
	active      haptic.Provider
	unsubscribe func()
}

// New creates a controller that builds providers from registry
func New(registry *providerregistry.Registry, deps providerregistry.Dependencies) *Controller {
	if registry == nil {
		registry = providerregistry.Default()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		registry: registry,
		deps:     deps,
		logger:   logger.With("component", "controller"),
		metrics:  deps.Metrics.CoreMetrics(),
	}
}

// Use swaps in p. The previous provider is unsubscribed and disconnected.
func (c *Controller) Use(p haptic.Provider) {
	var unsub func()
	if p != nil {
		unsub = p.Subscribe(c.forward)
	}

	c.mu.Lock()
	prev, prevUnsub := c.active, c.unsubscribe
	c.active, c.unsubscribe = p, unsub
	c.mu.Unlock()

	if prev != nil {
		// Unsubscribe first so the final disconnect of the old provider is not
		// forwarded after the new one is active.
		prevUnsub()
		prev.Disconnect()
	}
	if p != nil {
		c.logger.Info("Provider selected", "provider", p.Name(), "kind", p.Kind(), "endpoint", p.Endpoint())
	}
}

// Reconfigure builds a provider for cfg and swaps it in. The new provider is
// not connected.
func (c *Controller) Reconfigure(cfg *config.Config) error {
	p, err := c.registry.Build(cfg, c.deps)
	if err != nil {
		return errors.Wrap(err, "Controller", "Reconfigure", "build provider")
	}
	c.Use(p)
	return nil
}

// Provider returns the active provider, nil when none is set
func (c *Controller) Provider() haptic.Provider {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// Subscribe registers fn for events of whichever provider is active
func (c *Controller) Subscribe(fn func(haptic.Event)) func() {
	return c.notifier.Subscribe(fn)
}

func (c *Controller) forward(e haptic.Event) {
	c.metrics.RecordEvent(string(e.Type))
	c.notifier.Publish(e)
}

// Connect connects the active provider
func (c *Controller) Connect(ctx context.Context) error {
	p := c.Provider()
	if p == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Controller", "Connect", "provider selection")
	}
	return p.Connect(ctx)
}

// Disconnect disconnects the active provider
func (c *Controller) Disconnect() {
	if p := c.Provider(); p != nil {
		p.Disconnect()
	}
}

// Vibrate forwards to the active provider
func (c *Controller) Vibrate(intensity float64, duration time.Duration) {
	if p := c.Provider(); p != nil {
		p.Vibrate(intensity, duration)
	}
}

// VibratePattern renders samples over window. Providers without pattern
// support receive the window peak as a single command.
func (c *Controller) VibratePattern(samples []float64, window time.Duration) {
	p := c.Provider()
	if p == nil || len(samples) == 0 {
		return
	}
	if pp, ok := p.(haptic.PatternPlayer); ok {
		pp.VibratePattern(samples, window)
		return
	}
	peak := 0.0
	for _, s := range samples {
		if s > peak {
			peak = s
		}
	}
	p.Vibrate(peak, window)
}

// Stop forwards to the active provider
func (c *Controller) Stop() {
	if p := c.Provider(); p != nil {
		p.Stop()
	}
}

// Status returns the active provider's status. A zero Status in the
// disconnected state is returned when no provider is set.
func (c *Controller) Status() haptic.Status {
	p := c.Provider()
	if p == nil {
		return haptic.Status{State: haptic.StateDisconnected.String(), Devices: []string{}}
	}
	return p.Status()
}

// Close disconnects and releases the active provider
func (c *Controller) Close() {
	c.Use(nil)
}
