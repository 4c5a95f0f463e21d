package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Command outcomes recorded in hapticlink_commands_total
const (
	CommandSent    = "sent"
	CommandDropped = "dropped"
	CommandFailed  = "failed"
)

// Metrics contains the process-wide haptic metrics
type Metrics struct {
	// Provider metrics
	ProviderConnected *prometheus.GaugeVec
	DevicesAvailable  *prometheus.GaugeVec
	CommandsTotal     *prometheus.CounterVec
	CommandDuration   *prometheus.HistogramVec
	ErrorsTotal       *prometheus.CounterVec

	// Daemon surface metrics
	EventsPublished *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec

	// NATS metrics
	NATSConnected  prometheus.Gauge
	NATSReconnects prometheus.Counter
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ProviderConnected,
		m.DevicesAvailable,
		m.CommandsTotal,
		m.CommandDuration,
		m.ErrorsTotal,
		m.EventsPublished,
		m.HTTPRequests,
		m.NATSConnected,
		m.NATSReconnects,
	}
}

// NewMetrics creates a new Metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		ProviderConnected: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "hapticlink",
				Subsystem: "provider",
				Name:      "connected",
				Help:      "Provider connection state (0=disconnected, 1=connected)",
			},
			[]string{"provider"},
		),

		DevicesAvailable: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "hapticlink",
				Subsystem: "provider",
				Name:      "devices",
				Help:      "Number of devices discovered by the provider",
			},
			[]string{"provider"},
		),

		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hapticlink",
				Subsystem: "commands",
				Name:      "total",
				Help:      "Vibrate/stop commands by outcome (sent, dropped, failed)",
			},
			[]string{"provider", "action", "outcome"},
		),

		CommandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "hapticlink",
				Subsystem: "commands",
				Name:      "duration_seconds",
				Help:      "Round-trip time of commands sent to the device server",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"provider", "action"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hapticlink",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of provider errors by class",
			},
			[]string{"provider", "class"},
		),

		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hapticlink",
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Provider notifications delivered to subscribers",
			},
			[]string{"type"},
		),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hapticlink",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Gateway API requests by route and status code",
			},
			[]string{"route", "code"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "hapticlink",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "hapticlink",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),
	}
}

// The Record methods are nil-safe so adapters can run without a registry.

// RecordConnected updates the provider connection gauge
func (c *Metrics) RecordConnected(provider string, connected bool) {
	if c == nil {
		return
	}
	c.ProviderConnected.WithLabelValues(provider).Set(boolToFloat(connected))
}

// RecordDevices updates the discovered device count
func (c *Metrics) RecordDevices(provider string, count int) {
	if c == nil {
		return
	}
	c.DevicesAvailable.WithLabelValues(provider).Set(float64(count))
}

// RecordCommand increments the command counter for an outcome
func (c *Metrics) RecordCommand(provider, action, outcome string) {
	if c == nil {
		return
	}
	c.CommandsTotal.WithLabelValues(provider, action, outcome).Inc()
}

// RecordCommandDuration records a command round-trip
func (c *Metrics) RecordCommandDuration(provider, action string, d time.Duration) {
	if c == nil {
		return
	}
	c.CommandDuration.WithLabelValues(provider, action).Observe(d.Seconds())
}

// RecordError increments the error counter
func (c *Metrics) RecordError(provider, class string) {
	if c == nil {
		return
	}
	c.ErrorsTotal.WithLabelValues(provider, class).Inc()
}

// RecordEvent increments the published event counter
func (c *Metrics) RecordEvent(eventType string) {
	if c == nil {
		return
	}
	c.EventsPublished.WithLabelValues(eventType).Inc()
}

// RecordHTTPRequest increments the gateway request counter
func (c *Metrics) RecordHTTPRequest(route, code string) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(route, code).Inc()
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	if c == nil {
		return
	}
	c.NATSConnected.Set(boolToFloat(connected))
}

// RecordNATSReconnect increments reconnection counter
func (c *Metrics) RecordNATSReconnect() {
	if c == nil {
		return
	}
	c.NATSReconnects.Inc()
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
