package gateway

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/c360/hapticlink/errors"
)

// Request limits
const (
	MaxDuration       = 60 * time.Second
	MaxPatternSamples = 256
	maxBodyBytes      = 64 << 10
)

// VibrateRequest is the body of POST /api/v1/vibrate
type VibrateRequest struct {
	Intensity  *float64 `json:"intensity"`
	DurationMS int64    `json:"duration_ms"`
}

// Validate checks the request. Intensity is required and must be inside
// [0,1]; out-of-range values are rejected rather than clamped so callers
// notice unit mistakes such as sending percentages.
func (r *VibrateRequest) Validate() error {
	if r.Intensity == nil {
		return errors.WrapInvalid(errors.ErrInvalidData, "VibrateRequest", "Validate", "intensity is required")
	}
	if err := checkIntensity(*r.Intensity); err != nil {
		return errors.WrapInvalid(err, "VibrateRequest", "Validate", "intensity")
	}
	if err := checkDuration(r.DurationMS); err != nil {
		return errors.WrapInvalid(err, "VibrateRequest", "Validate", "duration_ms")
	}
	return nil
}

// Duration returns the requested duration
func (r *VibrateRequest) Duration() time.Duration {
	return time.Duration(r.DurationMS) * time.Millisecond
}

// PatternRequest is the body of POST /api/v1/pattern
type PatternRequest struct {
	Samples  []float64 `json:"samples"`
	WindowMS int64     `json:"window_ms"`
}

// Validate checks the request
func (r *PatternRequest) Validate() error {
	if len(r.Samples) == 0 {
		return errors.WrapInvalid(errors.ErrInvalidData, "PatternRequest", "Validate", "samples are required")
	}
	if len(r.Samples) > MaxPatternSamples {
		return errors.WrapInvalid(errors.ErrInvalidData, "PatternRequest", "Validate",
			fmt.Sprintf("at most %d samples", MaxPatternSamples))
	}
	for i, s := range r.Samples {
		if err := checkIntensity(s); err != nil {
			return errors.WrapInvalid(err, "PatternRequest", "Validate", fmt.Sprintf("samples[%d]", i))
		}
	}
	if r.WindowMS <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidData, "PatternRequest", "Validate", "window_ms must be positive")
	}
	if err := checkDuration(r.WindowMS); err != nil {
		return errors.WrapInvalid(err, "PatternRequest", "Validate", "window_ms")
	}
	return nil
}

// Window returns the requested window
func (r *PatternRequest) Window() time.Duration {
	return time.Duration(r.WindowMS) * time.Millisecond
}

func checkIntensity(v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return fmt.Errorf("%w: %v outside [0,1]", errors.ErrInvalidData, v)
	}
	return nil
}

func checkDuration(ms int64) error {
	if ms < 0 || time.Duration(ms)*time.Millisecond > MaxDuration {
		return fmt.Errorf("%w: %dms outside [0,%dms]", errors.ErrInvalidData, ms, MaxDuration.Milliseconds())
	}
	return nil
}

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error string `json:"error"`
}

// Envelope wraps every frame on the event stream
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Envelope types that are not provider event types
const (
	EnvelopeStatus = "status"
	EnvelopeToast  = "toast"
)
