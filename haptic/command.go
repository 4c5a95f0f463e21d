package haptic

import (
	"math"
	"time"
)

// ContinuousThreshold separates continuous commands (the caller re-issues
// them to sustain vibration) from timed pulses that should auto-stop.
const ContinuousThreshold = 500 * time.Millisecond

// Command is a single vibration request
type Command struct {
	Intensity float64       `json:"intensity"`
	Duration  time.Duration `json:"duration"`
}

// NewCommand builds a Command with intensity clamped to [0,1] and a
// non-negative duration.
func NewCommand(intensity float64, duration time.Duration) Command {
	if duration < 0 {
		duration = 0
	}
	return Command{Intensity: ClampIntensity(intensity), Duration: duration}
}

// Continuous reports whether the command is shorter than ContinuousThreshold
func (c Command) Continuous() bool {
	return c.Duration < ContinuousThreshold
}

// ClampIntensity clamps v to [0,1]. NaN maps to 0.
func ClampIntensity(v float64) float64 {
	switch {
	case math.IsNaN(v), v <= 0:
		return 0
	case v >= 1:
		return 1
	default:
		return v
	}
}

// Device is a device discovered during connect or scan
type Device struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	CanVibrate bool   `json:"can_vibrate"`
}

// Labels returns the display labels of devices, in order
func Labels(devices []Device) []string {
	labels := make([]string, 0, len(devices))
	for _, d := range devices {
		labels = append(labels, d.Label)
	}
	return labels
}
