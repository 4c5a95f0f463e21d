package haptic

import (
	"context"
	"time"
)

// Kind identifies a provider backend
type Kind string

// Provider kinds. The values double as configuration mode names.
const (
	KindLovenseLocal  Kind = "lovense-local"
	KindLovenseRemote Kind = "lovense-remote"
	KindButtplug      Kind = "buttplug"
	KindMock          Kind = "mock"
)

// Valid reports whether k names a known backend
func (k Kind) Valid() bool {
	switch k {
	case KindLovenseLocal, KindLovenseRemote, KindButtplug, KindMock:
		return true
	default:
		return false
	}
}

// Provider is the capability contract every haptic backend implements.
type Provider interface {
	// Name returns the display name of the provider
	Name() string
	// Kind returns the backend variant
	Kind() Kind

	// Connect performs discovery. On success the device list is populated
	// and the provider is connected. On failure it stays disconnected, an
	// EventError is published, and the classified error is returned.
	// Safe to call again after a failure.
	Connect(ctx context.Context) error
	// Disconnect releases connections, cancels pending work and clears
	// devices. Safe when already disconnected.
	Disconnect()

	// Vibrate requests intensity (clamped to [0,1]) for duration.
	Vibrate(intensity float64, duration time.Duration)
	// Stop requests an immediate zero-intensity command.
	Stop()

	IsConnected() bool
	// Devices returns the display labels of discovered devices
	Devices() []string
	// Endpoint returns the base URL of the device server, empty for mock
	Endpoint() string
	// ActiveDevice returns the protocol-specific id of the target device
	ActiveDevice() string

	// Subscribe registers fn for notifications and returns its unsubscribe func
	Subscribe(fn func(Event)) (unsubscribe func())

	// Status returns a point-in-time snapshot
	Status() Status
}

// PatternPlayer is implemented by providers that can render a window of
// intensity sub-samples as one representative command.
type PatternPlayer interface {
	VibratePattern(samples []float64, window time.Duration)
}
