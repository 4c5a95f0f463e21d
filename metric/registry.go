package metric

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/c360/hapticlink/errors"
)

// Registrar is implemented by registries that accept per-component collectors
type Registrar interface {
	Register(service, name string, c prometheus.Collector) error
	Unregister(service, name string) bool
}

// MetricsRegistry owns the Prometheus registry of the daemon. The core
// haptic metrics are registered up front; components such as a provider send
// queue add and remove their own collectors under a service key.
type MetricsRegistry struct {
	prometheusRegistry *prometheus.Registry
	Metrics            *Metrics

	mu    sync.Mutex
	owned map[string]prometheus.Collector
}

var _ Registrar = (*MetricsRegistry)(nil)

// NewMetricsRegistry creates a registry with the core haptic metrics and
// the Go runtime and process collectors
func NewMetricsRegistry() *MetricsRegistry {
	r := &MetricsRegistry{
		prometheusRegistry: prometheus.NewRegistry(),
		Metrics:            NewMetrics(),
		owned:              make(map[string]prometheus.Collector),
	}
	r.prometheusRegistry.MustRegister(r.Metrics.collectors()...)
	r.prometheusRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// PrometheusRegistry returns the underlying Prometheus registry
func (r *MetricsRegistry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// CoreMetrics returns the core haptic metrics. Safe on a nil registry.
func (r *MetricsRegistry) CoreMetrics() *Metrics {
	if r == nil {
		return nil
	}
	return r.Metrics
}

func key(service, name string) string { return service + "." + name }

// Register adds a collector under service/name. A second registration of the
// same key, or a name Prometheus already knows, is rejected as invalid.
func (r *MetricsRegistry) Register(service, name string, c prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key(service, name)
	if _, exists := r.owned[k]; exists {
		return errors.WrapInvalid(fmt.Errorf("metric %s already registered for service %s", name, service),
			"MetricsRegistry", "Register", "duplicate metric registration")
	}

	if err := r.prometheusRegistry.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if stderrors.As(err, &are) {
			return errors.WrapInvalid(err, "MetricsRegistry", "Register", "prometheus conflict for metric "+name)
		}
		return errors.WrapFatal(err, "MetricsRegistry", "Register", "register collector with prometheus")
	}
	r.owned[k] = c
	return nil
}

// Unregister removes a collector added with Register. It reports false when
// the key is unknown.
func (r *MetricsRegistry) Unregister(service, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key(service, name)
	c, exists := r.owned[k]
	if !exists || !r.prometheusRegistry.Unregister(c) {
		return false
	}
	delete(r.owned, k)
	return true
}
