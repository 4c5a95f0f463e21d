package lovense

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/c360/hapticlink/errors"
	"github.com/c360/hapticlink/haptic"
	"github.com/c360/hapticlink/metric"
	"github.com/c360/hapticlink/pkg/retry"
	"github.com/c360/hapticlink/pkg/worker"
	"github.com/c360/hapticlink/throttle"
)

const (
	maxReplySize    = 1 << 20
	poolStopTimeout = 2 * time.Second
)

type jobKind int

const (
	jobVibrate jobKind = iota
	jobStop
)

func (k jobKind) action() string {
	if k == jobStop {
		return "stop"
	}
	return "vibrate"
}

// sendJob is one queued command
type sendJob struct {
	kind     jobKind
	level    int
	duration time.Duration
	toy      string
	decision throttle.Decision
}

// session is the per-connection send queue
type session struct {
	cancel context.CancelFunc
	pool   *worker.Pool[sendJob]
}

// Option configures a Provider
type Option func(*Provider)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics records command outcomes and send queue metrics in registry
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(p *Provider) {
		p.registry = registry
	}
}

// WithHTTPClient replaces the client built from the TLS config
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		if client != nil {
			p.client = client
		}
	}
}

// WithClock replaces time.Now in the throttle
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		p.clock = now
	}
}

// Provider drives toys through a Lovense control server
type Provider struct {
	cfg      Config
	name     string
	kind     haptic.Kind
	label    string
	base     string
	client   *http.Client
	logger   *slog.Logger
	registry *metric.MetricsRegistry
	metrics  *metric.Metrics
	clock    func() time.Time
	throttle *throttle.Throttler

	notifier haptic.Notifier
	counters haptic.Counters

	// connectMu serializes Connect and Disconnect
	connectMu sync.Mutex

	mu            sync.RWMutex
	state         haptic.State
	devices       []haptic.Device
	active        string
	sess          *session
	cancelConnect context.CancelFunc
}

// New creates a Lovense provider
func New(cfg Config, opts ...Option) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Provider{
		cfg:    cfg,
		base:   strings.TrimSuffix(cfg.URL, "/"),
		logger: slog.Default(),
	}
	switch cfg.Dialect {
	case DialectRemote:
		p.name, p.kind = "Lovense (Remote)", haptic.KindLovenseRemote
	default:
		p.name, p.kind = "Lovense (Local)", haptic.KindLovenseLocal
	}
	p.label = string(p.kind)

	for _, opt := range opts {
		opt(p)
	}

	if p.client == nil {
		tlsConfig, err := cfg.TLS.Build(true)
		if err != nil {
			return nil, errors.WrapFatal(err, "lovense", "New", "load TLS config")
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = tlsConfig
		p.client = &http.Client{Timeout: cfg.Timeout, Transport: transport}
	}

	var throttleOpts []throttle.Option
	if p.clock != nil {
		throttleOpts = append(throttleOpts, throttle.WithClock(p.clock))
	}
	p.throttle = throttle.New(cfg.Throttle, throttleOpts...)
	p.metrics = p.registry.CoreMetrics()
	p.logger = p.logger.With("component", "lovense", "provider", p.label)

	return p, nil
}

// Name returns the display name
func (p *Provider) Name() string { return p.name }

// Kind returns the backend variant
func (p *Provider) Kind() haptic.Kind { return p.kind }

// Endpoint returns the control server base URL
func (p *Provider) Endpoint() string { return p.base }

// Subscribe registers an event handler
func (p *Provider) Subscribe(fn func(haptic.Event)) func() { return p.notifier.Subscribe(fn) }

// IsConnected reports whether discovery succeeded and the session is live
func (p *Provider) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state == haptic.StateConnected
}

// Devices returns the labels of discovered toys
func (p *Provider) Devices() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return haptic.Labels(p.devices)
}

// ActiveDevice returns the id of the toy commands target
func (p *Provider) ActiveDevice() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.active
}

// Status returns a snapshot of the provider
func (p *Provider) Status() haptic.Status {
	p.mu.RLock()
	s := haptic.Status{
		Name:         p.name,
		Kind:         p.kind,
		State:        p.state.String(),
		Connected:    p.state == haptic.StateConnected,
		Endpoint:     p.base,
		ActiveDevice: p.active,
		Devices:      haptic.Labels(p.devices),
	}
	p.mu.RUnlock()
	p.counters.Fill(&s)
	return s
}

// Connect discovers toys and opens a send session. Calling Connect while
// connected is a no-op.
func (p *Provider) Connect(ctx context.Context) error {
	p.connectMu.Lock()
	defer p.connectMu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.mu.Lock()
	if p.state == haptic.StateConnected {
		p.mu.Unlock()
		return nil
	}
	p.state = haptic.StateConnecting
	p.cancelConnect = cancel
	p.mu.Unlock()

	p.logger.Info("Discovering toys", "url", p.base, "dialect", p.cfg.Dialect)

	devices, err := retry.DoWithResult(ctx, retry.Discovery(p.cfg.DiscoveryAttempts), func() ([]haptic.Device, error) {
		devices, err := p.discover(ctx)
		if err != nil && !errors.IsTransient(err) {
			return nil, retry.NonRetryable(err)
		}
		return devices, err
	})
	if err != nil {
		var nre *retry.NonRetryableError
		if stderrors.As(err, &nre) {
			err = nre.Err
		}
		return p.failConnect(ctx, err)
	}

	sctx, scancel := context.WithCancel(context.Background())
	var poolOpts []worker.Option[sendJob]
	if p.registry != nil {
		poolOpts = append(poolOpts,
			worker.WithMetricsRegistry[sendJob](p.registry, "hapticlink_"+strings.ReplaceAll(p.label, "-", "_")+"_send"))
	}
	pool := worker.NewPool(1, p.cfg.QueueSize, p.process, poolOpts...)
	if err := pool.Start(sctx); err != nil {
		scancel()
		return p.failConnect(ctx, errors.WrapFatal(err, "lovense", "Connect", "start send queue"))
	}

	p.throttle.Reset()

	p.mu.Lock()
	p.state = haptic.StateConnected
	p.devices = devices
	p.active = devices[0].ID
	p.sess = &session{cancel: scancel, pool: pool}
	p.cancelConnect = nil
	p.mu.Unlock()

	p.metrics.RecordConnected(p.label, true)
	p.metrics.RecordDevices(p.label, len(devices))
	p.logger.Info("Connected", "toys", len(devices), "active", devices[0].ID)

	for _, d := range devices {
		p.notifier.Publish(haptic.DeviceDiscovered(p.name, d.Label))
	}
	p.notifier.Publish(haptic.ConnectionChanged(p.name, true))
	return nil
}

func (p *Provider) failConnect(ctx context.Context, err error) error {
	p.mu.Lock()
	p.state = haptic.StateDisconnected
	p.cancelConnect = nil
	p.mu.Unlock()

	if stderrors.Is(ctx.Err(), context.Canceled) {
		p.logger.Debug("Discovery cancelled", "error", err)
		return errors.Wrap(err, "lovense", "Connect", "discover toys")
	}

	p.metrics.RecordError(p.label, errors.Classify(err).String())
	p.logger.Error("Connect failed", "error", err)
	p.notifier.Publish(haptic.ErrorEvent(p.name, errors.Cause(err)))
	return errors.Wrap(err, "lovense", "Connect", "discover toys")
}

// Disconnect cancels pending discovery and queued sends and clears devices
func (p *Provider) Disconnect() {
	// Unblock a Connect waiting on the network before taking connectMu.
	p.mu.Lock()
	if p.cancelConnect != nil {
		p.cancelConnect()
	}
	p.mu.Unlock()

	p.connectMu.Lock()
	defer p.connectMu.Unlock()

	p.mu.Lock()
	wasConnected := p.state == haptic.StateConnected
	sess := p.sess
	p.sess = nil
	p.devices = nil
	p.active = ""
	p.state = haptic.StateDisconnected
	p.mu.Unlock()

	if sess != nil {
		sess.cancel()
		if err := sess.pool.Stop(poolStopTimeout); err != nil {
			p.logger.Warn("Send queue did not drain", "error", err)
		}
	}

	if wasConnected {
		p.metrics.RecordConnected(p.label, false)
		p.metrics.RecordDevices(p.label, 0)
		p.logger.Info("Disconnected")
		p.notifier.Publish(haptic.ConnectionChanged(p.name, false))
	}
}

// Vibrate quantizes intensity, applies the throttle and queues the command
func (p *Provider) Vibrate(intensity float64, duration time.Duration) {
	cmd := haptic.NewCommand(intensity, duration)
	p.submit(p.throttle.Quantize(cmd.Intensity), cmd.Duration)
}

// VibratePattern sends one representative level for a window of samples
func (p *Provider) VibratePattern(samples []float64, window time.Duration) {
	if len(samples) == 0 {
		return
	}
	cfg := p.throttle.Config()
	p.submit(cfg.Representative(cfg.QuantizeAll(samples)), window)
}

func (p *Provider) submit(level int, duration time.Duration) {
	p.mu.RLock()
	sess, toy, connected := p.sess, p.active, p.state == haptic.StateConnected
	p.mu.RUnlock()
	if !connected || sess == nil {
		return
	}

	d := p.throttle.Evaluate(level, duration)
	if d.Verdict != throttle.Send {
		p.counters.Dropped()
		p.metrics.RecordCommand(p.label, "vibrate", metric.CommandDropped)
		p.logger.Debug("Command throttled", "level", level, "verdict", d.Verdict.String())
		return
	}

	p.enqueue(sess, sendJob{kind: jobVibrate, level: level, duration: duration, toy: toy, decision: d})
}

// Stop queues an immediate zero-intensity command
func (p *Provider) Stop() {
	p.mu.RLock()
	sess, connected := p.sess, p.state == haptic.StateConnected
	p.mu.RUnlock()
	if !connected || sess == nil {
		return
	}

	p.throttle.Record(0)
	p.enqueue(sess, sendJob{kind: jobStop})
}

func (p *Provider) enqueue(sess *session, job sendJob) {
	if err := sess.pool.Submit(job); err != nil {
		p.withdraw(job)
		p.counters.Dropped()
		p.metrics.RecordCommand(p.label, job.kind.action(), metric.CommandDropped)
		if stderrors.Is(err, worker.ErrQueueFull) {
			p.logger.Warn("Send queue full, command dropped", "action", job.kind.action(), "level", job.level)
			return
		}
		p.logger.Debug("Send queue closed", "action", job.kind.action(), "error", err)
	}
}

// withdraw releases the throttle slot of a vibrate that never reached the toy
func (p *Provider) withdraw(job sendJob) {
	if job.kind == jobVibrate {
		p.throttle.Withdraw(job.decision)
	}
}

// process runs on the session worker
func (p *Provider) process(ctx context.Context, job sendJob) error {
	action := job.kind.action()
	start := time.Now()

	var body []byte
	var err error
	switch p.cfg.Dialect {
	case DialectRemote:
		req := remoteStop()
		if job.kind == jobVibrate {
			req = remoteVibrate(job.level, job.duration)
		}
		body, err = p.post(ctx, req)
	default:
		query := localStop()
		if job.kind == jobVibrate {
			query = localVibrate(job.level, job.toy)
		}
		body, err = p.get(ctx, query)
	}
	if err == nil {
		err = checkCommandReply(body)
	}

	p.metrics.RecordCommandDuration(p.label, action, time.Since(start))

	if err != nil {
		if ctx.Err() != nil {
			p.logger.Debug("Command abandoned", "action", action, "error", err)
			return err
		}
		p.withdraw(job)
		p.counters.Failed()
		p.metrics.RecordCommand(p.label, action, metric.CommandFailed)
		p.logger.Warn("Command failed", "action", action, "level", job.level, "error", err)
		return errors.Wrap(err, "lovense", "process", action)
	}

	p.counters.Sent()
	p.metrics.RecordCommand(p.label, action, metric.CommandSent)
	p.logger.Debug("Command sent", "action", action, "level", job.level)
	return nil
}

func (p *Provider) discover(ctx context.Context) ([]haptic.Device, error) {
	var body []byte
	var err error
	if p.cfg.Dialect == DialectRemote {
		body, err = p.post(ctx, remoteGetToys())
	} else {
		body, err = p.get(ctx, localGetToys())
	}
	if err != nil {
		return nil, errors.WrapTransient(err, "lovense", "discover", "request toys")
	}
	return parseToys(body)
}

func (p *Provider) post(ctx context.Context, payload remoteRequest) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.base+"/command", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return p.do(req)
}

func (p *Provider) get(ctx context.Context, query string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.base+"/command?"+query, nil)
	if err != nil {
		return nil, err
	}
	return p.do(req)
}

func (p *Provider) do(req *http.Request) ([]byte, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplySize))
	if err != nil {
		return nil, fmt.Errorf("%w: read reply: %v", errors.ErrConnectionLost, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: HTTP %d", errors.ErrConnectionFailed, resp.StatusCode)
	}
	return body, nil
}

var (
	_ haptic.Provider      = (*Provider)(nil)
	_ haptic.PatternPlayer = (*Provider)(nil)
)
