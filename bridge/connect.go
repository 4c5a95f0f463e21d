package bridge

import (
	"context"
	"log/slog"

	"github.com/c360/hapticlink/errors"
	"github.com/c360/hapticlink/health"
	"github.com/c360/hapticlink/pkg/retry"
)

// Connector is a transport that must be connected before use
type Connector interface {
	Connect(ctx context.Context) error
}

// ConnectWithRetry connects c with exponential backoff. Each failed attempt
// is reported to monitor (which may be nil) as unhealthy.
func ConnectWithRetry(ctx context.Context, c Connector, cfg retry.Config, monitor *health.Monitor, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	attempt := 0
	err := retry.Do(ctx, cfg, func() error {
		attempt++
		err := c.Connect(ctx)
		if err == nil {
			return nil
		}
		logger.Warn("NATS connect attempt failed", "attempt", attempt, "error", err)
		if monitor != nil {
			monitor.UpdateUnhealthy(HealthComponent, err.Error())
		}
		if errors.IsFatal(err) {
			return retry.NonRetryable(err)
		}
		return err
	})
	if retry.IsNonRetryable(err) {
		return errors.WrapFatal(err, "Bridge", "ConnectWithRetry", "connect transport")
	}
	if err != nil {
		return errors.WrapTransient(err, "Bridge", "ConnectWithRetry", "connect transport")
	}
	if monitor != nil {
		monitor.UpdateHealthy(HealthComponent, "connected")
	}
	return nil
}
