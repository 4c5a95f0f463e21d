package lovense

import (
	"fmt"
	"net/url"
	"time"

	"github.com/c360/hapticlink/errors"
	"github.com/c360/hapticlink/pkg/tlsutil"
	"github.com/c360/hapticlink/throttle"
)

// Dialect selects the request style of the control API
type Dialect string

// Supported dialects
const (
	DialectLocal  Dialect = "local"
	DialectRemote Dialect = "remote"
)

// Config holds configuration for the Lovense provider
type Config struct {
	Dialect           Dialect              `json:"dialect"`
	URL               string               `json:"url"`
	Timeout           time.Duration        `json:"timeout"`
	DiscoveryAttempts int                  `json:"discovery_attempts"`
	QueueSize         int                  `json:"queue_size"`
	TLS               tlsutil.ClientConfig `json:"tls"`
	Throttle          throttle.Config      `json:"throttle"`
}

// DefaultConfig returns the default configuration for a dialect
func DefaultConfig(d Dialect) Config {
	cfg := Config{
		Dialect:           d,
		URL:               "https://127.0.0.1:30010",
		Timeout:           5 * time.Second,
		DiscoveryAttempts: 2,
		QueueSize:         16,
		Throttle:          throttle.DefaultConfig(),
	}
	if d == DialectRemote {
		cfg.URL = "http://127.0.0.1:20010"
	}
	return cfg
}

// Validate checks the configuration for errors
func (c Config) Validate() error {
	if c.Dialect != DialectLocal && c.Dialect != DialectRemote {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "lovense", "Validate",
			fmt.Sprintf("unknown dialect %q", c.Dialect))
	}
	if c.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "lovense", "Validate", "url is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return errors.WrapInvalid(err, "lovense", "Validate", "invalid URL format")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "lovense", "Validate",
			fmt.Sprintf("url scheme %q must be http or https", u.Scheme))
	}
	if c.Timeout <= 0 || c.Timeout > time.Minute {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "lovense", "Validate",
			"timeout must be between 0 and 60 seconds")
	}
	if c.DiscoveryAttempts < 1 || c.DiscoveryAttempts > 10 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "lovense", "Validate",
			"discovery_attempts must be between 1 and 10")
	}
	if c.QueueSize < 1 || c.QueueSize > 1024 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "lovense", "Validate",
			"queue_size must be between 1 and 1024")
	}
	return c.Throttle.Validate()
}
