// Package providerregistry maps configuration modes to provider factories.
package providerregistry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/c360/hapticlink/config"
	"github.com/c360/hapticlink/errors"
	"github.com/c360/hapticlink/haptic"
	"github.com/c360/hapticlink/metric"
	"github.com/c360/hapticlink/provider/buttplug"
	"github.com/c360/hapticlink/provider/lovense"
	"github.com/c360/hapticlink/provider/mock"
)

// Dependencies are the shared collaborators handed to every factory
type Dependencies struct {
	Logger  *slog.Logger
	Metrics *metric.MetricsRegistry
	Toaster mock.Toaster
}

// Factory builds a provider from daemon configuration. Factories must not
// perform I/O; discovery happens in Provider.Connect.
type Factory func(cfg *config.Config, deps Dependencies) (haptic.Provider, error)

// Registry holds factories keyed by provider kind
type Registry struct {
	mu        sync.RWMutex
	factories map[haptic.Kind]Factory
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[haptic.Kind]Factory)}
}

// Default returns a registry with every built-in provider registered
func Default() *Registry {
	r := NewRegistry()
	// Built-in kinds are unique and non-nil, so Register cannot fail here.
	_ = Register(r)
	return r
}

// Register adds the built-in providers to registry
func Register(registry *Registry) error {
	if registry == nil {
		return errors.WrapFatal(fmt.Errorf("registry cannot be nil"), "ProviderRegistry", "Register", "registry validation")
	}

	builtins := []struct {
		kind    haptic.Kind
		factory Factory
	}{
		{haptic.KindLovenseLocal, lovenseFactory(lovense.DialectLocal)},
		{haptic.KindLovenseRemote, lovenseFactory(lovense.DialectRemote)},
		{haptic.KindButtplug, buttplugFactory},
		{haptic.KindMock, mockFactory},
	}
	for _, b := range builtins {
		if err := registry.RegisterFactory(b.kind, b.factory); err != nil {
			return errors.WrapInvalid(err, "ProviderRegistry", "Register", string(b.kind)+" registration")
		}
	}
	return nil
}

// RegisterFactory registers factory for kind. Duplicate kinds are rejected.
func (r *Registry) RegisterFactory(kind haptic.Kind, factory Factory) error {
	if kind == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "kind validation")
	}
	if factory == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "factory function validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[kind]; exists {
		msg := fmt.Errorf("factory '%s' is already registered", kind)
		return errors.WrapInvalid(msg, "Registry", "RegisterFactory", "duplicate factory check")
	}
	r.factories[kind] = factory
	return nil
}

// Kinds returns the registered kinds in sorted order
func (r *Registry) Kinds() []haptic.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]haptic.Kind, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Build creates the provider selected by cfg.Provider.Mode
func (r *Registry) Build(cfg *config.Config, deps Dependencies) (haptic.Provider, error) {
	if cfg == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Registry", "Build", "config validation")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	kind := cfg.Mode()
	r.mu.RLock()
	factory, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		msg := fmt.Errorf("%w: unknown provider mode '%s'", errors.ErrInvalidConfig, kind)
		return nil, errors.WrapInvalid(msg, "Registry", "Build", "factory lookup")
	}

	p, err := factory(cfg, deps)
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "Build", "factory execution")
	}
	deps.Logger.Debug("Provider built", "mode", kind, "name", p.Name(), "endpoint", p.Endpoint())
	return p, nil
}

func lovenseFactory(d lovense.Dialect) Factory {
	return func(cfg *config.Config, deps Dependencies) (haptic.Provider, error) {
		return lovense.New(cfg.LovenseConfig(d),
			lovense.WithLogger(deps.Logger),
			lovense.WithMetrics(deps.Metrics))
	}
}

func buttplugFactory(cfg *config.Config, deps Dependencies) (haptic.Provider, error) {
	return buttplug.New(cfg.ButtplugConfig(),
		buttplug.WithLogger(deps.Logger),
		buttplug.WithMetrics(deps.Metrics))
}

func mockFactory(cfg *config.Config, deps Dependencies) (haptic.Provider, error) {
	opts := []mock.Option{mock.WithLogger(deps.Logger), mock.WithMetrics(deps.Metrics)}
	if deps.Toaster != nil {
		opts = append(opts, mock.WithToaster(deps.Toaster))
	}
	return mock.New(cfg.MockConfig(), opts...), nil
}
