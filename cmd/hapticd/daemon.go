package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/hapticlink/bridge"
	"github.com/c360/hapticlink/config"
	"github.com/c360/hapticlink/controller"
	"github.com/c360/hapticlink/gateway"
	"github.com/c360/hapticlink/health"
	"github.com/c360/hapticlink/metric"
	"github.com/c360/hapticlink/natsclient"
	"github.com/c360/hapticlink/pkg/retry"
	"github.com/c360/hapticlink/provider/mock"
	"github.com/c360/hapticlink/providerregistry"
)

// providerHealth is the monitor entry for the active provider
const providerHealth = "provider"

type daemon struct {
	cli     *CLIConfig
	cfg     *config.SafeConfig
	logger  *slog.Logger
	metrics *metric.MetricsRegistry
	monitor *health.Monitor

	ctrl          *controller.Controller
	gateway       *gateway.Server
	metricsServer *metric.Server
	providerCheck *health.ProviderCheck

	nats   *natsclient.Client
	bridge *bridge.Bridge
}

func newDaemon(cfg *config.Config, cli *CLIConfig, logger *slog.Logger) (*daemon, error) {
	d := &daemon{
		cli:     cli,
		cfg:     config.NewSafeConfig(cfg),
		logger:  logger,
		metrics: metric.NewMetricsRegistry(),
		monitor: health.NewMonitor(),
	}

	// The hub exists only once the gateway is built, which needs the
	// controller, so toasts reach it through a late-bound func.
	var hub *gateway.Hub
	toaster := mock.Multi{
		mock.LogToaster{Logger: logger.With("component", "toast")},
		mock.ToasterFunc(func(t mock.Toast) {
			if hub != nil {
				hub.Toast(t)
			}
		}),
	}

	d.ctrl = controller.New(providerregistry.Default(), providerregistry.Dependencies{
		Logger:  logger,
		Metrics: d.metrics,
		Toaster: toaster,
	})
	d.gateway = gateway.New(d.ctrl, cfg.HTTP,
		gateway.WithLogger(logger),
		gateway.WithMetrics(d.metrics),
		gateway.WithHealth(d.monitor),
	)
	hub = d.gateway.Hub()

	if err := d.ctrl.Reconfigure(cfg); err != nil {
		return nil, fmt.Errorf("select provider: %w", err)
	}
	d.providerCheck = health.WatchProvider(providerHealth, d.ctrl)
	d.monitor.AddCheck(providerHealth, d.providerCheck.Status)

	if cfg.Metrics.Enabled {
		d.metricsServer = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, d.metrics)
	}

	if cfg.NATS.Enabled {
		if err := d.setupNATS(cfg.NATS); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *daemon) setupNATS(cfg config.NATSConfig) error {
	opts := append(natsclient.FromConfig(cfg),
		natsclient.WithLogger(d.logger),
		natsclient.WithMetrics(d.metrics),
		natsclient.WithName(appName),
		natsclient.WithHealthChangeCallback(func(healthy bool) {
			if healthy {
				d.monitor.UpdateHealthy(bridge.HealthComponent, "connected")
			} else {
				d.monitor.UpdateDegraded(bridge.HealthComponent, "reconnecting")
			}
		}),
	)

	client, err := natsclient.NewClient(cfg.URL, opts...)
	if err != nil {
		return fmt.Errorf("create NATS client: %w", err)
	}
	b, err := bridge.New(d.ctrl, client, cfg.SubjectPrefix,
		bridge.WithLogger(d.logger),
		bridge.WithHealth(d.monitor),
		bridge.WithMetrics(d.metrics),
	)
	if err != nil {
		return fmt.Errorf("create NATS bridge: %w", err)
	}

	d.nats = client
	d.bridge = b
	d.monitor.UpdateDegraded(bridge.HealthComponent, "connecting")
	return nil
}

// run serves until ctx is cancelled or a server fails, then shuts down
func (d *daemon) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(d.gateway.Start)

	if d.metricsServer != nil {
		g.Go(d.metricsServer.Start)
		d.logger.Info("Metrics server started", "address", d.metricsServer.Address())
	}

	if d.bridge != nil {
		g.Go(func() error {
			d.startBridge(gctx)
			return nil
		})
	}

	if d.cli.Connect {
		g.Go(func() error {
			if err := d.ctrl.Connect(gctx); err != nil {
				d.logger.Warn("Initial connect failed", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		d.watchReload(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		d.logger.Info("Shutting down")
		return d.shutdown()
	})

	return g.Wait()
}

// startBridge connects to NATS with backoff. A bridge that cannot connect
// leaves the daemon running with an unhealthy nats entry.
func (d *daemon) startBridge(ctx context.Context) {
	cfg := retry.Config{
		MaxAttempts:  10,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}
	if err := bridge.ConnectWithRetry(ctx, d.nats, cfg, d.monitor, d.logger); err != nil {
		d.logger.Error("NATS bridge disabled", "error", err)
		return
	}
	if err := d.bridge.Start(ctx); err != nil {
		d.logger.Error("NATS bridge failed to start", "error", err)
	}
}

func (d *daemon) watchReload(ctx context.Context) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := d.reload(ctx); err != nil {
				d.logger.Error("Configuration reload failed", "error", err)
			}
		}
	}
}

// reload re-reads the configuration file and swaps the provider when its
// settings changed. Listener and NATS settings apply on restart only.
func (d *daemon) reload(ctx context.Context) error {
	next, err := loadConfig(d.cli.ConfigPath)
	if err != nil {
		return err
	}
	prev := d.cfg.Get()
	if err := d.cfg.Update(next); err != nil {
		return err
	}

	if !reflect.DeepEqual(prev.HTTP, next.HTTP) || !reflect.DeepEqual(prev.Metrics, next.Metrics) ||
		!reflect.DeepEqual(prev.NATS, next.NATS) {
		d.logger.Warn("Listener and NATS changes take effect on restart")
	}
	if !providerChanged(prev, next) {
		d.logger.Info("Configuration reloaded, provider unchanged")
		return nil
	}

	wasConnected := d.ctrl.Status().Connected
	if err := d.ctrl.Reconfigure(next); err != nil {
		return err
	}
	d.logger.Info("Provider reconfigured", "mode", next.Provider.Mode)

	if wasConnected {
		go func() {
			if err := d.ctrl.Connect(ctx); err != nil {
				d.logger.Warn("Reconnect after reload failed", "error", err)
			}
		}()
	}
	return nil
}

func providerChanged(prev, next *config.Config) bool {
	return !reflect.DeepEqual(prev.Provider, next.Provider) || !reflect.DeepEqual(prev.Throttle, next.Throttle)
}

func (d *daemon) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), d.cli.ShutdownTimeout)
	defer cancel()

	err := d.gateway.Stop(ctx)
	if err != nil {
		d.logger.Error("Gateway shutdown failed", "error", err)
	}
	if d.metricsServer != nil {
		if stopErr := d.metricsServer.Stop(); stopErr != nil {
			d.logger.Error("Metrics server shutdown failed", "error", stopErr)
		}
	}
	if d.bridge != nil {
		d.bridge.Stop()
		if closeErr := d.nats.Close(ctx); closeErr != nil {
			d.logger.Warn("NATS close failed", "error", closeErr)
		}
	}

	d.providerCheck.Close()
	d.ctrl.Close()
	return err
}
