package buttplug

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/hapticlink/errors"
	"github.com/c360/hapticlink/haptic"
	"github.com/c360/hapticlink/metric"
	"github.com/c360/hapticlink/throttle"
)

const label = string(haptic.KindButtplug)

// fallbackNotice is the Message of the device_discovered event published when
// the selected device reports no vibration actuator
const fallbackNotice = "device may not support vibration"

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

// WithMetrics records command outcomes in registry
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(p *Provider) {
		p.metrics = registry.CoreMetrics()
	}
}

// WithDialer replaces the dialer built from the TLS config
func WithDialer(d *websocket.Dialer) Option {
	return func(p *Provider) {
		if d != nil {
			p.dialer = d
		}
	}
}

// WithClock replaces time.Now in the throttle
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		p.clock = now
	}
}

// Provider drives one device through a Buttplug device server
type Provider struct {
	cfg      Config
	dialer   *websocket.Dialer
	logger   *slog.Logger
	metrics  *metric.Metrics
	clock    func() time.Time
	throttle *throttle.Throttler

	notifier haptic.Notifier
	counters haptic.Counters
	ids      atomic.Uint32

	// connectMu serializes Connect and Disconnect
	connectMu sync.Mutex

	mu    sync.RWMutex
	state haptic.State
	// ready is set once Connect completes and cleared when the session ends
	ready         bool
	sess          *session
	devices       map[int]*device
	active        *device
	cancelConnect context.CancelFunc

	// cmdMu orders command writes with the auto-stop timer
	cmdMu     sync.Mutex
	stopTimer *time.Timer
	stopGen   uint64
}

// New creates a Buttplug provider
func New(cfg Config, opts ...Option) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Provider{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}

	if p.dialer == nil {
		tlsConfig, err := cfg.TLS.Build(true)
		if err != nil {
			return nil, errors.WrapFatal(err, "buttplug", "New", "load TLS config")
		}
		p.dialer = &websocket.Dialer{
			HandshakeTimeout: cfg.Timeout,
			TLSClientConfig:  tlsConfig,
		}
	}

	var throttleOpts []throttle.Option
	if p.clock != nil {
		throttleOpts = append(throttleOpts, throttle.WithClock(p.clock))
	}
	p.throttle = throttle.New(cfg.Throttle, throttleOpts...)
	p.logger = p.logger.With("component", "buttplug", "provider", label)

	return p, nil
}

// Name returns the display name
func (p *Provider) Name() string { return "Buttplug" }

// Kind returns haptic.KindButtplug
func (p *Provider) Kind() haptic.Kind { return haptic.KindButtplug }

// Endpoint returns the device server URL
func (p *Provider) Endpoint() string { return p.cfg.URL }

// Subscribe registers an event handler
func (p *Provider) Subscribe(fn func(haptic.Event)) func() { return p.notifier.Subscribe(fn) }

// IsConnected reports whether a device is selected on a live session
func (p *Provider) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.active != nil
}

// Devices returns the labels of known devices, by device index
func (p *Provider) Devices() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.deviceLabelsLocked()
}

func (p *Provider) deviceLabelsLocked() []string {
	labels := make([]string, 0, len(p.devices))
	for _, d := range sortedDevices(p.devices) {
		labels = append(labels, d.name)
	}
	return labels
}

// ActiveDevice returns the server index of the selected device
func (p *Provider) ActiveDevice() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.active == nil {
		return ""
	}
	return p.active.id()
}

// Status returns a snapshot of the provider
func (p *Provider) Status() haptic.Status {
	p.mu.RLock()
	s := haptic.Status{
		Name:      p.Name(),
		Kind:      haptic.KindButtplug,
		State:     p.state.String(),
		Connected: p.active != nil,
		Endpoint:  p.cfg.URL,
		Devices:   p.deviceLabelsLocked(),
	}
	if p.active != nil {
		s.ActiveDevice = p.active.id()
	}
	p.mu.RUnlock()
	p.counters.Fill(&s)
	return s
}

// Connect opens the socket, handshakes, scans for the configured window and
// selects a device. Calling Connect while connected is a no-op.
func (p *Provider) Connect(ctx context.Context) error {
	p.connectMu.Lock()
	defer p.connectMu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.mu.Lock()
	if p.active != nil {
		p.mu.Unlock()
		return nil
	}
	stale := p.sess
	p.sess, p.ready, p.devices = nil, false, nil
	p.state = haptic.StateConnecting
	p.cancelConnect = cancel
	p.mu.Unlock()

	// A session that lost its device is replaced rather than reused.
	if stale != nil {
		stale.close()
	}

	p.logger.Info("Connecting to device server", "url", p.cfg.URL)

	sess, err := p.dial(ctx)
	if err != nil {
		return p.failConnect(ctx, err)
	}

	p.mu.Lock()
	p.sess = sess
	p.devices = make(map[int]*device)
	p.mu.Unlock()

	sess.loops.Add(1)
	go p.readLoop(sess)

	if err := p.handshake(ctx, sess); err != nil {
		p.abandon(sess)
		return p.failConnect(ctx, err)
	}
	if err := p.scan(ctx, sess); err != nil {
		p.abandon(sess)
		return p.failConnect(ctx, err)
	}

	p.mu.Lock()
	chosen, fallback := selectDevice(p.devices)
	if chosen == nil {
		p.mu.Unlock()
		p.abandon(sess)
		return p.failConnect(ctx, errors.WrapTransient(errors.ErrNoDevices, "buttplug", "Connect", "select device"))
	}
	p.active = chosen
	p.ready = true
	p.state = haptic.StateConnected
	p.cancelConnect = nil
	count := len(p.devices)
	p.mu.Unlock()

	if fallback {
		p.logger.Warn("No device reports a vibration actuator, using first device", "device", chosen.name, "index", chosen.index)
		notice := haptic.DeviceDiscovered(p.Name(), chosen.name)
		notice.Message = fallbackNotice
		p.notifier.Publish(notice)
	}

	p.throttle.Reset()
	p.metrics.RecordConnected(label, true)
	p.metrics.RecordDevices(label, count)
	p.logger.Info("Connected", "devices", count, "active", chosen.name)
	p.notifier.Publish(haptic.ConnectionChanged(p.Name(), true))
	return nil
}

func (p *Provider) dial(ctx context.Context) (*session, error) {
	ws, resp, err := p.dialer.DialContext(ctx, p.cfg.URL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrConnectionFailed, err),
			"buttplug", "dial", "open websocket")
	}
	return newSession(ws), nil
}

func (p *Provider) handshake(ctx context.Context, sess *session) error {
	id := p.nextID()
	env, err := sess.request(ctx, id, msgRequestServerInfo, requestServerInfo{
		ID:             id,
		ClientName:     p.cfg.ClientName,
		MessageVersion: messageVersion,
	}, p.cfg.Timeout)
	if err != nil {
		return wrapRequest(err, "handshake", "request server info")
	}

	var info serverInfo
	if env.Type != msgServerInfo {
		return errors.WrapInvalid(fmt.Errorf("%w: unexpected %s reply", errors.ErrParsingFailed, env.Type),
			"buttplug", "handshake", "request server info")
	}
	if err := json.Unmarshal(env.Raw, &info); err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
			"buttplug", "handshake", "decode server info")
	}

	p.logger.Debug("Handshake complete", "server", info.ServerName,
		"message_version", info.MessageVersion, "max_ping_ms", info.MaxPingTime)

	if info.MaxPingTime > 0 {
		sess.loops.Add(1)
		go p.pingLoop(sess, time.Duration(info.MaxPingTime)*time.Millisecond/2)
	}
	return nil
}

// scan loads known devices, then scans for the configured window
func (p *Provider) scan(ctx context.Context, sess *session) error {
	id := p.nextID()
	env, err := sess.request(ctx, id, msgRequestDeviceList, idOnly{ID: id}, p.cfg.Timeout)
	if err != nil {
		return wrapRequest(err, "scan", "request device list")
	}
	if env.Type == msgDeviceList {
		var list deviceList
		if err := json.Unmarshal(env.Raw, &list); err != nil {
			return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
				"buttplug", "scan", "decode device list")
		}
		for _, info := range list.Devices {
			p.addDevice(sess, info)
		}
	}

	p.mu.Lock()
	p.state = haptic.StateScanning
	p.mu.Unlock()

	id = p.nextID()
	if _, err := sess.request(ctx, id, msgStartScanning, idOnly{ID: id}, p.cfg.Timeout); err != nil {
		if ctx.Err() != nil || sess.ctx.Err() != nil {
			return wrapRequest(err, "scan", "start scanning")
		}
		p.logger.Warn("Scan request rejected, using known devices", "error", err)
		return nil
	}

	p.logger.Debug("Scanning", "window", p.cfg.ScanWindow)
	timer := time.NewTimer(p.cfg.ScanWindow)
	select {
	case <-ctx.Done():
		timer.Stop()
		return errors.Wrap(ctx.Err(), "buttplug", "scan", "wait for devices")
	case <-sess.ctx.Done():
		timer.Stop()
		return errors.WrapTransient(errors.ErrConnectionLost, "buttplug", "scan", "wait for devices")
	case <-timer.C:
	}

	id = p.nextID()
	if _, err := sess.request(ctx, id, msgStopScanning, idOnly{ID: id}, p.cfg.Timeout); err != nil {
		p.logger.Debug("Stop scanning failed", "error", err)
	}
	return nil
}

func wrapRequest(err error, method, action string) error {
	switch {
	case stderrors.Is(err, context.Canceled):
		return errors.Wrap(err, "buttplug", method, action)
	case stderrors.Is(err, errors.ErrServerError):
		return errors.WrapInvalid(err, "buttplug", method, action)
	default:
		return errors.WrapTransient(err, "buttplug", method, action)
	}
}

// abandon closes a session Connect could not complete
func (p *Provider) abandon(sess *session) {
	p.mu.Lock()
	if p.sess == sess {
		p.sess, p.devices = nil, nil
	}
	p.mu.Unlock()
	sess.close()
}

func (p *Provider) failConnect(ctx context.Context, err error) error {
	p.mu.Lock()
	p.state = haptic.StateDisconnected
	p.cancelConnect = nil
	p.mu.Unlock()

	if stderrors.Is(ctx.Err(), context.Canceled) {
		p.logger.Debug("Connect cancelled", "error", err)
		return errors.Wrap(err, "buttplug", "Connect", "connect to device server")
	}

	p.metrics.RecordError(label, errors.Classify(err).String())
	p.logger.Error("Connect failed", "error", err)
	p.notifier.Publish(haptic.ErrorEvent(p.Name(), errors.Cause(err)))
	return errors.Wrap(err, "buttplug", "Connect", "connect to device server")
}

// Disconnect cancels the scan and auto-stop timer, closes the socket and
// waits for the session loops. Safe when never connected.
func (p *Provider) Disconnect() {
	p.mu.Lock()
	if p.cancelConnect != nil {
		p.cancelConnect()
	}
	p.mu.Unlock()

	p.connectMu.Lock()
	defer p.connectMu.Unlock()

	p.mu.Lock()
	wasConnected := p.active != nil
	sess := p.sess
	p.sess, p.devices, p.active, p.ready = nil, nil, nil, false
	p.state = haptic.StateDisconnected
	p.mu.Unlock()

	p.cancelAutoStop()
	if sess != nil {
		sess.close()
	}

	if wasConnected {
		p.metrics.RecordConnected(label, false)
		p.metrics.RecordDevices(label, 0)
		p.logger.Info("Disconnected")
		p.notifier.Publish(haptic.ConnectionChanged(p.Name(), false))
	}
}

// Vibrate sets every vibration feature of the active device to intensity
// and replaces the pending auto-stop with one at duration. A zero duration
// leaves the device running until the next command.
func (p *Provider) Vibrate(intensity float64, duration time.Duration) {
	cmd := haptic.NewCommand(intensity, duration)

	p.cmdMu.Lock()
	defer p.cmdMu.Unlock()

	p.mu.RLock()
	sess, dev := p.sess, p.active
	p.mu.RUnlock()
	if sess == nil || dev == nil {
		return
	}

	p.vibrateLocked(sess, dev, cmd.Intensity, p.throttle.Quantize(cmd.Intensity), cmd.Duration)
}

// VibratePattern sends the representative level of the window, scaled back
// to the native scalar range
func (p *Provider) VibratePattern(samples []float64, window time.Duration) {
	if len(samples) == 0 {
		return
	}

	p.cmdMu.Lock()
	defer p.cmdMu.Unlock()

	p.mu.RLock()
	sess, dev := p.sess, p.active
	p.mu.RUnlock()
	if sess == nil || dev == nil {
		return
	}

	cfg := p.throttle.Config()
	level := cfg.Representative(cfg.QuantizeAll(samples))
	p.vibrateLocked(sess, dev, float64(level)/float64(cfg.MaxLevel), level, window)
}

// vibrateLocked requires cmdMu. A throttled command sends nothing but still
// replaces the pending auto-stop, so a caller re-issuing short commands
// keeps the device running.
func (p *Provider) vibrateLocked(sess *session, dev *device, intensity float64, level int, duration time.Duration) {
	d := p.throttle.Evaluate(level, duration)
	if d.Verdict != throttle.Send {
		p.counters.Dropped()
		p.metrics.RecordCommand(label, "vibrate", metric.CommandDropped)
		p.logger.Debug("Command throttled", "intensity", intensity, "verdict", d.Verdict.String())
		p.scheduleAutoStopLocked(duration)
		return
	}

	p.cancelAutoStopLocked()

	msgType, body := dev.vibrateMessage(p.nextID(), intensity)
	if !p.send(sess, "vibrate", msgType, body) {
		p.throttle.Withdraw(d)
		return
	}
	p.scheduleAutoStopLocked(duration)
}

// scheduleAutoStopLocked replaces the pending auto-stop with one after d.
// A zero d only cancels. Requires cmdMu.
func (p *Provider) scheduleAutoStopLocked(d time.Duration) {
	p.cancelAutoStopLocked()
	if d <= 0 {
		return
	}
	gen := p.stopGen
	p.stopTimer = time.AfterFunc(d, func() { p.autoStop(gen) })
}

// Stop cancels the pending auto-stop and stops the active device
func (p *Provider) Stop() {
	p.cmdMu.Lock()
	defer p.cmdMu.Unlock()

	p.cancelAutoStopLocked()
	if p.stopActive() {
		p.throttle.Record(0)
	}
}

func (p *Provider) autoStop(gen uint64) {
	p.cmdMu.Lock()
	defer p.cmdMu.Unlock()

	if gen != p.stopGen {
		return
	}
	p.stopTimer = nil
	if p.stopActive() {
		p.throttle.Settle(0)
	}
}

// stopActive requires cmdMu. It reports whether a stop was written.
func (p *Provider) stopActive() bool {
	p.mu.RLock()
	sess, dev := p.sess, p.active
	p.mu.RUnlock()
	if sess == nil || dev == nil {
		return false
	}

	return p.send(sess, "stop", msgStopDeviceCmd, stopDeviceCmd{ID: p.nextID(), DeviceIndex: dev.index})
}

func (p *Provider) cancelAutoStop() {
	p.cmdMu.Lock()
	p.cancelAutoStopLocked()
	p.cmdMu.Unlock()
}

// cancelAutoStopLocked invalidates the pending timer even if it already fired
func (p *Provider) cancelAutoStopLocked() {
	p.stopGen++
	if p.stopTimer != nil {
		p.stopTimer.Stop()
		p.stopTimer = nil
	}
}

// send writes a fire-and-forget command. Failures are logged and counted.
func (p *Provider) send(sess *session, action, msgType string, body any) bool {
	start := time.Now()
	err := sess.write(msgType, body, p.cfg.WriteTimeout)
	p.metrics.RecordCommandDuration(label, action, time.Since(start))

	if err != nil {
		p.counters.Failed()
		p.metrics.RecordCommand(label, action, metric.CommandFailed)
		p.logger.Warn("Command failed", "action", action, "error", err)
		return false
	}

	p.counters.Sent()
	p.metrics.RecordCommand(label, action, metric.CommandSent)
	p.logger.Debug("Command sent", "action", action, "message", msgType)
	return true
}

func (p *Provider) nextID() uint32 {
	for {
		if id := p.ids.Add(1); id != 0 {
			return id
		}
	}
}

func (p *Provider) readLoop(sess *session) {
	defer sess.loops.Done()

	for {
		_, frame, err := sess.ws.ReadMessage()
		if err != nil {
			p.sessionLost(sess, err)
			return
		}

		msgs, err := decode(frame)
		if err != nil {
			p.logger.Warn("Discarding malformed server message", "error", err)
			continue
		}
		for _, m := range msgs {
			p.dispatch(sess, m)
		}
	}
}

func (p *Provider) dispatch(sess *session, m envelope) {
	if m.ID != 0 && sess.deliver(m) {
		return
	}

	switch m.Type {
	case msgDeviceAdded:
		var added deviceAdded
		if err := json.Unmarshal(m.Raw, &added); err != nil {
			p.logger.Warn("Discarding malformed DeviceAdded", "error", err)
			return
		}
		p.addDevice(sess, added.deviceInfo)
	case msgDeviceRemoved:
		var removed deviceRemoved
		if err := json.Unmarshal(m.Raw, &removed); err != nil {
			p.logger.Warn("Discarding malformed DeviceRemoved", "error", err)
			return
		}
		p.removeDevice(sess, removed.DeviceIndex)
	case msgError:
		var e errorMessage
		_ = json.Unmarshal(m.Raw, &e)
		p.metrics.RecordError(label, errors.ErrorInvalid.String())
		p.logger.Warn("Device server rejected command", "id", e.ID, "error", e.ErrorMessage, "code", e.ErrorCode)
	case msgOk, msgScanningFinished:
	default:
		p.logger.Debug("Ignoring server message", "type", m.Type, "id", m.ID)
	}
}

func (p *Provider) addDevice(sess *session, info deviceInfo) {
	d := newDevice(info)

	p.mu.Lock()
	if p.sess != sess || p.devices == nil {
		p.mu.Unlock()
		return
	}
	_, known := p.devices[d.index]
	p.devices[d.index] = d
	if p.active != nil && p.active.index == d.index {
		p.active = d
	}
	adopt := p.ready && p.active == nil && d.canVibrate()
	if adopt {
		p.active = d
		p.state = haptic.StateConnected
	}
	count := len(p.devices)
	p.mu.Unlock()

	p.metrics.RecordDevices(label, count)
	if !known {
		p.logger.Info("Device discovered", "device", d.name, "index", d.index, "vibrate", d.canVibrate())
		p.notifier.Publish(haptic.DeviceDiscovered(p.Name(), d.name))
	}
	if adopt {
		p.throttle.Reset()
		p.metrics.RecordConnected(label, true)
		p.logger.Info("Adopted device", "device", d.name, "index", d.index)
		p.notifier.Publish(haptic.ConnectionChanged(p.Name(), true))
	}
}

func (p *Provider) removeDevice(sess *session, index int) {
	p.mu.Lock()
	if p.sess != sess || p.devices == nil {
		p.mu.Unlock()
		return
	}
	d, ok := p.devices[index]
	if !ok {
		p.mu.Unlock()
		return
	}
	wasActive := p.active == d
	if wasActive {
		p.active = nil
		p.devices = make(map[int]*device)
		p.state = haptic.StateScanning
	} else {
		delete(p.devices, index)
	}
	count := len(p.devices)
	p.mu.Unlock()

	p.metrics.RecordDevices(label, count)
	if !wasActive {
		p.logger.Info("Device removed", "device", d.name, "index", index)
		return
	}

	p.cancelAutoStop()
	p.metrics.RecordConnected(label, false)
	p.logger.Warn("Active device removed", "device", d.name, "index", index)
	p.notifier.Publish(haptic.ConnectionChanged(p.Name(), false))
}

// sessionLost handles a socket closed by the server or the network
func (p *Provider) sessionLost(sess *session, err error) {
	if sess.ctx.Err() != nil {
		return
	}
	sess.cancel()
	_ = sess.ws.Close()

	p.mu.Lock()
	if p.sess != sess {
		p.mu.Unlock()
		return
	}
	wasConnected := p.active != nil
	ready := p.ready
	p.sess, p.devices, p.active, p.ready = nil, nil, nil, false
	if ready {
		p.state = haptic.StateDisconnected
	}
	p.mu.Unlock()

	if !ready {
		// Connect is still running and reports the failure itself.
		return
	}

	p.cancelAutoStop()
	p.metrics.RecordConnected(label, false)
	p.metrics.RecordDevices(label, 0)
	p.logger.Warn("Device server connection lost", "error", err)
	if wasConnected {
		p.notifier.Publish(haptic.ConnectionChanged(p.Name(), false))
	}
}

func (p *Provider) pingLoop(sess *session, interval time.Duration) {
	defer sess.loops.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-sess.ctx.Done():
			return
		case <-ticker.C:
			if err := sess.write(msgPing, idOnly{ID: p.nextID()}, p.cfg.WriteTimeout); err != nil {
				p.logger.Debug("Ping failed", "error", err)
			}
		}
	}
}

var (
	_ haptic.Provider      = (*Provider)(nil)
	_ haptic.PatternPlayer = (*Provider)(nil)
)
