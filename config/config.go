package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/c360/hapticlink/errors"
	"github.com/c360/hapticlink/haptic"
	"github.com/c360/hapticlink/pkg/tlsutil"
	"github.com/c360/hapticlink/provider/buttplug"
	"github.com/c360/hapticlink/provider/lovense"
	"github.com/c360/hapticlink/provider/mock"
	"github.com/c360/hapticlink/throttle"
)

// Config represents the complete daemon configuration
type Config struct {
	Provider ProviderConfig `json:"provider"`
	Throttle ThrottleConfig `json:"throttle"`
	HTTP     HTTPConfig     `json:"http"`
	Metrics  MetricsConfig  `json:"metrics"`
	NATS     NATSConfig     `json:"nats"`
}

// ProviderConfig selects and configures the active provider. Zero values
// fall back to the defaults of the selected mode.
type ProviderConfig struct {
	Mode              string               `json:"mode"`
	URL               string               `json:"url,omitempty"`
	Timeout           time.Duration        `json:"timeout,omitempty"`
	ScanWindow        time.Duration        `json:"scan_window,omitempty"`
	ClientName        string               `json:"client_name,omitempty"`
	DiscoveryAttempts int                  `json:"discovery_attempts,omitempty"`
	QueueSize         int                  `json:"queue_size,omitempty"`
	ToastDuration     time.Duration        `json:"toast_duration,omitempty"`
	TLS               tlsutil.ClientConfig `json:"tls,omitempty"`
}

// ThrottleConfig overrides throttle parameters. RepeatWindow is a pointer so
// an explicit 0 can disable repeat suppression.
type ThrottleConfig struct {
	MinInterval         time.Duration  `json:"min_interval,omitempty"`
	ContinuousThreshold time.Duration  `json:"continuous_threshold,omitempty"`
	RepeatWindow        *time.Duration `json:"repeat_window,omitempty"`
	DeadZone            float64        `json:"dead_zone,omitempty"`
	TransientMargin     float64        `json:"transient_margin,omitempty"`
}

// HTTPConfig configures the gateway listener
type HTTPConfig struct {
	Port        int      `json:"port"`
	RateLimit   float64  `json:"rate_limit"`
	RateBurst   int      `json:"rate_burst"`
	CORSOrigins []string `json:"cors_origins,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Path    string `json:"path"`
}

// NATSConfig configures the optional NATS bridge
type NATSConfig struct {
	Enabled       bool          `json:"enabled"`
	URL           string        `json:"url"`
	SubjectPrefix string        `json:"subject_prefix"`
	MaxReconnects int           `json:"max_reconnects"`
	ReconnectWait time.Duration `json:"reconnect_wait"`
	Token         string        `json:"token,omitempty"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Provider: ProviderConfig{Mode: string(haptic.KindLovenseLocal)},
		HTTP: HTTPConfig{
			Port:        8086,
			RateLimit:   20,
			RateBurst:   10,
			CORSOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		},
		Metrics: MetricsConfig{Enabled: true, Port: 9090, Path: "/metrics"},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			SubjectPrefix: "haptics",
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		},
	}
}

// SafeConfig provides thread-safe access to configuration
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = Default()
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically replaces the configuration after validation
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "config", "Update", "check config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg.Clone()
	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return Default()
	}

	clone := *c
	clone.Provider.TLS.CAFiles = append([]string(nil), c.Provider.TLS.CAFiles...)
	clone.HTTP.CORSOrigins = append([]string(nil), c.HTTP.CORSOrigins...)
	if c.Provider.TLS.InsecureSkipVerify != nil {
		v := *c.Provider.TLS.InsecureSkipVerify
		clone.Provider.TLS.InsecureSkipVerify = &v
	}
	if c.Throttle.RepeatWindow != nil {
		v := *c.Throttle.RepeatWindow
		clone.Throttle.RepeatWindow = &v
	}
	return &clone
}

// Mode returns the provider kind
func (c *Config) Mode() haptic.Kind {
	return haptic.Kind(c.Provider.Mode)
}

// Validate checks the configuration, including the selected provider's
// settings after defaults are applied
func (c *Config) Validate() error {
	mode := c.Mode()
	if !mode.Valid() {
		return errors.WrapFatal(errors.ErrUnknownMode, "config", "Validate",
			fmt.Sprintf("check provider mode %q", c.Provider.Mode))
	}

	if err := c.validateSecurity(); err != nil {
		return err
	}

	var err error
	switch mode {
	case haptic.KindLovenseLocal:
		err = c.LovenseConfig(lovense.DialectLocal).Validate()
	case haptic.KindLovenseRemote:
		err = c.LovenseConfig(lovense.DialectRemote).Validate()
	case haptic.KindButtplug:
		err = c.ButtplugConfig().Validate()
	}
	if err != nil {
		return errors.WrapFatal(err, "config", "Validate", "check provider settings")
	}

	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return invalid("http.port %d out of range", c.HTTP.Port)
	}
	if c.HTTP.RateLimit < 0 || c.HTTP.RateBurst < 0 {
		return invalid("http.rate_limit and http.rate_burst cannot be negative")
	}
	if c.HTTP.RateLimit > 0 && c.HTTP.RateBurst == 0 {
		return invalid("http.rate_burst must be positive when rate_limit is set")
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
			return invalid("metrics.port %d out of range", c.Metrics.Port)
		}
		if c.Metrics.Port == c.HTTP.Port {
			return invalid("metrics.port and http.port must differ")
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return invalid("metrics.path %q must start with /", c.Metrics.Path)
		}
	}

	if c.NATS.Enabled {
		if c.NATS.URL == "" {
			return invalid("nats.url is required when nats is enabled")
		}
		if !isValidNATSSubjectPart(c.NATS.SubjectPrefix) {
			return invalid("nats.subject_prefix %q is not valid for NATS subjects", c.NATS.SubjectPrefix)
		}
	}

	return nil
}

func invalid(format string, args ...any) error {
	return errors.WrapFatal(fmt.Errorf("%w: "+format, append([]any{errors.ErrInvalidConfig}, args...)...),
		"config", "Validate", "check settings")
}

// isValidNATSSubjectPart checks if a string is valid for use in NATS subjects.
// Valid characters are alphanumeric, dots, dashes, and underscores.
func isValidNATSSubjectPart(s string) bool {
	if len(s) == 0 || strings.HasPrefix(s, ".") || strings.HasSuffix(s, ".") {
		return false
	}

	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) &&
			r != '-' && r != '_' && r != '.' {
			return false
		}
	}
	return true
}

// validateSecurity validates the provider TLS configuration
func (c *Config) validateSecurity() error {
	return errors.WrapFatal(c.Provider.TLS.Validate(), "config", "validateSecurity", "check provider.tls")
}

// ThrottleFor overlays the configured throttle parameters on base
func (c *Config) ThrottleFor(base throttle.Config) throttle.Config {
	t := c.Throttle
	if t.MinInterval > 0 {
		base.MinInterval = t.MinInterval
	}
	if t.ContinuousThreshold > 0 {
		base.ContinuousThreshold = t.ContinuousThreshold
	}
	if t.RepeatWindow != nil {
		base.RepeatWindow = *t.RepeatWindow
	}
	if t.DeadZone > 0 {
		base.DeadZone = t.DeadZone
	}
	if t.TransientMargin > 0 {
		base.TransientMargin = t.TransientMargin
	}
	return base
}

// LovenseConfig builds the Lovense adapter configuration for d
func (c *Config) LovenseConfig(d lovense.Dialect) lovense.Config {
	cfg := lovense.DefaultConfig(d)
	p := c.Provider
	if p.URL != "" {
		cfg.URL = p.URL
	}
	if p.Timeout > 0 {
		cfg.Timeout = p.Timeout
	}
	if p.DiscoveryAttempts > 0 {
		cfg.DiscoveryAttempts = p.DiscoveryAttempts
	}
	if p.QueueSize > 0 {
		cfg.QueueSize = p.QueueSize
	}
	cfg.TLS = p.TLS
	cfg.Throttle = c.ThrottleFor(cfg.Throttle)
	return cfg
}

// ButtplugConfig builds the Buttplug adapter configuration
func (c *Config) ButtplugConfig() buttplug.Config {
	cfg := buttplug.DefaultConfig()
	p := c.Provider
	if p.URL != "" {
		cfg.URL = p.URL
	}
	if p.Timeout > 0 {
		cfg.Timeout = p.Timeout
	}
	if p.ScanWindow > 0 {
		cfg.ScanWindow = p.ScanWindow
	}
	if p.ClientName != "" {
		cfg.ClientName = p.ClientName
	}
	cfg.TLS = p.TLS
	cfg.Throttle = c.ThrottleFor(cfg.Throttle)
	return cfg
}

// MockConfig builds the mock adapter configuration
func (c *Config) MockConfig() mock.Config {
	cfg := mock.DefaultConfig()
	if c.Provider.ToastDuration > 0 {
		cfg.ToastDuration = c.Provider.ToastDuration
	}
	return cfg
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
