package mock

import (
	"log/slog"
	"time"
)

// DefaultToastDuration is how long a toast stays visible
const DefaultToastDuration = 2 * time.Second

// Toast is a transient, auto-dismissing notification
type Toast struct {
	Title    string        `json:"title"`
	Message  string        `json:"message"`
	Duration time.Duration `json:"duration"`
}

// Toaster displays toasts. Implementations must not block.
type Toaster interface {
	Toast(Toast)
}

// ToasterFunc adapts a function to Toaster
type ToasterFunc func(Toast)

// Toast calls f
func (f ToasterFunc) Toast(t Toast) { f(t) }

// LogToaster writes toasts to a logger
type LogToaster struct {
	Logger *slog.Logger
}

// Toast logs t at info level
func (l LogToaster) Toast(t Toast) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info(t.Message, "toast", t.Title, "duration", t.Duration)
}

// Multi fans toasts out to every toaster
type Multi []Toaster

// Toast delivers t to each toaster in order
func (m Multi) Toast(t Toast) {
	for _, toaster := range m {
		if toaster != nil {
			toaster.Toast(t)
		}
	}
}
