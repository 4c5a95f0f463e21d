package gateway

import (
	"context"
	"time"

	"github.com/c360/hapticlink/haptic"
)

// Controller is the haptic surface the gateway drives.
// *controller.Controller implements it.
type Controller interface {
	Connect(ctx context.Context) error
	Disconnect()
	Vibrate(intensity float64, duration time.Duration)
	VibratePattern(samples []float64, window time.Duration)
	Stop()
	Status() haptic.Status
	Subscribe(fn func(haptic.Event)) func()
}
