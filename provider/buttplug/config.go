package buttplug

import (
	"fmt"
	"net/url"
	"time"

	"github.com/c360/hapticlink/errors"
	"github.com/c360/hapticlink/pkg/tlsutil"
	"github.com/c360/hapticlink/throttle"
)

// Config holds configuration for the Buttplug provider
type Config struct {
	URL        string `json:"url"`
	ClientName string `json:"client_name"`
	// ScanWindow is how long Connect scans before selecting a device
	ScanWindow time.Duration `json:"scan_window"`
	// Timeout bounds the handshake and each reply wait
	Timeout      time.Duration        `json:"timeout"`
	WriteTimeout time.Duration        `json:"write_timeout"`
	TLS          tlsutil.ClientConfig `json:"tls"`
	Throttle     throttle.Config      `json:"throttle"`
}

// DefaultConfig returns the default configuration for a local Intiface server
func DefaultConfig() Config {
	t := throttle.DefaultConfig()
	// The server keeps the last level on its own; only the continuous gate applies.
	t.RepeatWindow = 0
	return Config{
		URL:          "ws://127.0.0.1:12345",
		ClientName:   "hapticlink",
		ScanWindow:   2 * time.Second,
		Timeout:      5 * time.Second,
		WriteTimeout: time.Second,
		Throttle:     t,
	}
}

// Validate checks the configuration for errors
func (c Config) Validate() error {
	if c.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "buttplug", "Validate", "url is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return errors.WrapInvalid(err, "buttplug", "Validate", "invalid URL format")
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "buttplug", "Validate",
			fmt.Sprintf("url scheme %q must be ws or wss", u.Scheme))
	}
	if c.ClientName == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "buttplug", "Validate", "client_name is required")
	}
	if c.ScanWindow < 0 || c.ScanWindow > time.Minute {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "buttplug", "Validate",
			"scan_window must be between 0 and 60 seconds")
	}
	if c.Timeout <= 0 || c.Timeout > time.Minute {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "buttplug", "Validate",
			"timeout must be between 0 and 60 seconds")
	}
	if c.WriteTimeout <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "buttplug", "Validate",
			"write_timeout must be positive")
	}
	return c.Throttle.Validate()
}
