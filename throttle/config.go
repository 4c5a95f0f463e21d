package throttle

import (
	"fmt"
	"time"

	"github.com/c360/hapticlink/errors"
	"github.com/c360/hapticlink/haptic"
)

// Config holds the quantization and rate-control parameters
type Config struct {
	// DeadZone is the intensity at or below which the level is 0
	DeadZone float64 `json:"dead_zone" yaml:"dead_zone"`
	// MaxLevel is the top of the device scale
	MaxLevel int `json:"max_level" yaml:"max_level"`
	// MinAudibleLevel is the first level above the dead zone. Levels between
	// 0 and MinAudibleLevel are skipped as imperceptible.
	MinAudibleLevel int `json:"min_audible_level" yaml:"min_audible_level"`
	// ContinuousThreshold classifies shorter commands as continuous
	ContinuousThreshold time.Duration `json:"continuous_threshold" yaml:"continuous_threshold"`
	// MinInterval gates continuous commands against the last send
	MinInterval time.Duration `json:"min_interval" yaml:"min_interval"`
	// TransientMargin is how far the window peak must exceed the weighted
	// mean before the peak is sent instead
	TransientMargin float64 `json:"transient_margin" yaml:"transient_margin"`
	// RepeatWindow suppresses identical levels sent within it. Zero disables
	// suppression.
	RepeatWindow time.Duration `json:"repeat_window" yaml:"repeat_window"`
}

// DefaultConfig returns the tuned defaults for the 0..20 scale
func DefaultConfig() Config {
	return Config{
		DeadZone:            0.05,
		MaxLevel:            20,
		MinAudibleLevel:     3,
		ContinuousThreshold: haptic.ContinuousThreshold,
		MinInterval:         150 * time.Millisecond,
		TransientMargin:     5,
		RepeatWindow:        time.Second,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	switch {
	case c.DeadZone < 0 || c.DeadZone >= 1:
		return errors.WrapInvalid(fmt.Errorf("dead_zone %v outside [0,1)", c.DeadZone),
			"throttle", "Validate", "check dead zone")
	case c.MaxLevel <= 0:
		return errors.WrapInvalid(fmt.Errorf("max_level %d must be positive", c.MaxLevel),
			"throttle", "Validate", "check level scale")
	case c.MinAudibleLevel < 1 || c.MinAudibleLevel > c.MaxLevel:
		return errors.WrapInvalid(fmt.Errorf("min_audible_level %d outside [1,%d]", c.MinAudibleLevel, c.MaxLevel),
			"throttle", "Validate", "check level scale")
	case c.ContinuousThreshold < 0 || c.MinInterval < 0 || c.RepeatWindow < 0:
		return errors.WrapInvalid(fmt.Errorf("durations cannot be negative"),
			"throttle", "Validate", "check intervals")
	case c.TransientMargin < 0:
		return errors.WrapInvalid(fmt.Errorf("transient_margin %v cannot be negative", c.TransientMargin),
			"throttle", "Validate", "check transient margin")
	}
	return nil
}

// withDefaults fills zero fields from DefaultConfig. RepeatWindow and
// TransientMargin keep explicit zeros.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxLevel == 0 {
		c.MaxLevel = d.MaxLevel
	}
	if c.MinAudibleLevel == 0 {
		c.MinAudibleLevel = d.MinAudibleLevel
	}
	if c.DeadZone == 0 {
		c.DeadZone = d.DeadZone
	}
	if c.ContinuousThreshold == 0 {
		c.ContinuousThreshold = d.ContinuousThreshold
	}
	if c.MinInterval == 0 {
		c.MinInterval = d.MinInterval
	}
	return c
}
