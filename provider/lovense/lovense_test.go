package lovense

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/hapticlink/errors"
	"github.com/c360/hapticlink/haptic"
	"github.com/c360/hapticlink/metric"
	"github.com/c360/hapticlink/testutil"
)

const oneToy = `{"code":200,"data":{"toys":"{\"A1\":{\"nickName\":\"Toy\",\"battery\":80}}","platform":"pc"},"type":"OK"}`

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newProvider(t *testing.T, dialect Dialect, url string, opts ...Option) *Provider {
	t.Helper()
	cfg := DefaultConfig(dialect)
	cfg.URL = url
	cfg.Timeout = 2 * time.Second
	p, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(p.Disconnect)
	return p
}

func waitForCommands(t *testing.T, fake *testutil.FakeLovense, n int) []testutil.LovenseRequest {
	t.Helper()
	testutil.WaitFor(t, 2*time.Second, func() bool { return len(fake.CommandRequests()) >= n })
	return fake.CommandRequests()
}

func TestConnect_LocalDialect(t *testing.T) {
	fake := testutil.NewFakeLovense(t, oneToy)
	p := newProvider(t, DialectLocal, fake.URL())
	events := testutil.RecordEvents(t, p)

	require.NoError(t, p.Connect(context.Background()))

	assert.True(t, p.IsConnected())
	assert.Equal(t, []string{"Toy (A1, 80%)"}, p.Devices())
	assert.Equal(t, "A1", p.ActiveDevice())
	assert.Equal(t, haptic.KindLovenseLocal, p.Kind())

	reqs := fake.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodGet, reqs[0].Method)
	assert.Equal(t, "/command", reqs[0].Path)
	assert.Equal(t, "command=GetToys", reqs[0].RawQuery)

	discovered := events.OfType(haptic.EventDeviceDiscovered)
	require.Len(t, discovered, 1)
	assert.Equal(t, "Toy (A1, 80%)", discovered[0].Device)
	assert.Equal(t, []bool{true}, events.Connections())
}

func TestConnect_RemoteDialectObjectToys(t *testing.T) {
	fake := testutil.NewFakeLovense(t, `{"data":{"toys":{"A1":{"nickName":"Toy","battery":80}}}}`)
	p := newProvider(t, DialectRemote, fake.URL())

	require.NoError(t, p.Connect(context.Background()))
	assert.Equal(t, []string{"Toy (A1, 80%)"}, p.Devices())

	reqs := fake.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, "application/json", reqs[0].ContentType)
	assert.Equal(t, `{"command":"GetToys"}`, reqs[0].Body)
}

func TestConnect_NoToysFails(t *testing.T) {
	fake := testutil.NewFakeLovense(t, `{"code":200,"data":{"toys":"{}"}}`)
	p := newProvider(t, DialectLocal, fake.URL())
	events := testutil.RecordEvents(t, p)

	err := p.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNoToys)
	assert.False(t, p.IsConnected())
	assert.Empty(t, p.Devices())

	errs := events.OfType(haptic.EventError)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "no toys found")
	assert.Empty(t, events.Connections())

	assert.Len(t, fake.Requests(), 1, "no toys is not retried")
}

func TestConnect_MalformedReplyNotRetried(t *testing.T) {
	fake := testutil.NewFakeLovense(t, `{"data":`)
	p := newProvider(t, DialectLocal, fake.URL())
	events := testutil.RecordEvents(t, p)

	err := p.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrParsingFailed)
	assert.True(t, errors.IsInvalid(err))
	assert.Len(t, fake.Requests(), 1)
	assert.Len(t, events.OfType(haptic.EventError), 1)
}

func TestConnect_ServerErrorRetriedThenRecovers(t *testing.T) {
	fake := testutil.NewFakeLovense(t, oneToy)
	fake.SetStatus(http.StatusServiceUnavailable)

	p := newProvider(t, DialectLocal, fake.URL())
	events := testutil.RecordEvents(t, p)

	err := p.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.Len(t, fake.Requests(), 2, "discovery_attempts defaults to 2")
	assert.False(t, p.IsConnected())

	// Safe to retry after a failure
	fake.SetStatus(http.StatusOK)
	require.NoError(t, p.Connect(context.Background()))
	assert.True(t, p.IsConnected())
	assert.Len(t, events.OfType(haptic.EventError), 1)
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := DefaultConfig(DialectLocal)
	cfg.URL = "http://127.0.0.1:1"
	cfg.DiscoveryAttempts = 1
	p, err := New(cfg)
	require.NoError(t, err)
	events := testutil.RecordEvents(t, p)

	err = p.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrConnectionFailed)
	require.Len(t, events.OfType(haptic.EventError), 1)
	assert.Contains(t, events.OfType(haptic.EventError)[0].Message, "request toys")
}

func TestVibrate_LocalWireShape(t *testing.T) {
	fake := testutil.NewFakeLovense(t, oneToy)
	p := newProvider(t, DialectLocal, fake.URL())
	require.NoError(t, p.Connect(context.Background()))

	p.Vibrate(0.5, time.Second)
	reqs := waitForCommands(t, fake, 1)
	assert.Equal(t, http.MethodGet, reqs[0].Method)
	assert.Equal(t, "command=Vibrate&action=Vibrate&intensity=11&toy=A1", reqs[0].RawQuery)

	p.Stop()
	reqs = waitForCommands(t, fake, 2)
	assert.Equal(t, "command=Vibrate&action=Vibrate&intensity=0", reqs[1].RawQuery)
}

func TestVibrate_RemoteWireShape(t *testing.T) {
	fake := testutil.NewFakeLovense(t, oneToy)
	p := newProvider(t, DialectRemote, fake.URL())
	require.NoError(t, p.Connect(context.Background()))

	p.Vibrate(0.5, 1500*time.Millisecond)
	reqs := waitForCommands(t, fake, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, "/command", reqs[0].Path)
	assert.Equal(t, `{"command":"Function","action":"Vibrate:11","timeSec":2,"apiVer":1}`, reqs[0].Body)

	p.Stop()
	reqs = waitForCommands(t, fake, 2)
	assert.Equal(t, `{"command":"Function","action":"Stop"}`, reqs[1].Body)
}

func TestVibrate_ContinuousCommandsInsideIntervalAreDropped(t *testing.T) {
	fake := testutil.NewFakeLovense(t, oneToy)
	clock := &manualClock{now: time.Now()}
	p := newProvider(t, DialectLocal, fake.URL(), WithClock(clock.Now))
	require.NoError(t, p.Connect(context.Background()))

	p.Vibrate(0.5, 100*time.Millisecond)
	clock.Advance(100 * time.Millisecond)
	p.Vibrate(0.8, 100*time.Millisecond)

	waitForCommands(t, fake, 1)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, fake.CommandRequests(), 1, "second continuous command performs no network send")
	assert.Equal(t, int64(1), p.Status().CommandsDropped)

	clock.Advance(100 * time.Millisecond)
	p.Vibrate(0.8, 100*time.Millisecond)
	waitForCommands(t, fake, 2)
}

func TestVibrate_FailedSendDoesNotHoldInterval(t *testing.T) {
	fake := testutil.NewFakeLovense(t, oneToy)
	clock := &manualClock{now: time.Now()}
	p := newProvider(t, DialectLocal, fake.URL(), WithClock(clock.Now))
	require.NoError(t, p.Connect(context.Background()))

	fake.SetStatus(http.StatusInternalServerError)
	p.Vibrate(0.5, 100*time.Millisecond)
	testutil.WaitFor(t, 2*time.Second, func() bool { return p.Status().CommandsFailed == 1 })

	fake.SetStatus(http.StatusOK)
	clock.Advance(50 * time.Millisecond)
	p.Vibrate(0.5, 100*time.Millisecond)

	reqs := waitForCommands(t, fake, 2)
	assert.Equal(t, "command=Vibrate&action=Vibrate&intensity=11&toy=A1", reqs[1].RawQuery)
	assert.Zero(t, p.Status().CommandsDropped, "the failed send released its throttle slot")
}

func TestVibrate_CommandsKeepOrder(t *testing.T) {
	fake := testutil.NewFakeLovense(t, oneToy)
	p := newProvider(t, DialectLocal, fake.URL())
	require.NoError(t, p.Connect(context.Background()))

	p.Vibrate(0.3, time.Second)
	p.Vibrate(0.6, time.Second)
	p.Vibrate(1.0, time.Second)

	reqs := waitForCommands(t, fake, 3)
	assert.Equal(t, "command=Vibrate&action=Vibrate&intensity=7&toy=A1", reqs[0].RawQuery)
	assert.Equal(t, "command=Vibrate&action=Vibrate&intensity=13&toy=A1", reqs[1].RawQuery)
	assert.Equal(t, "command=Vibrate&action=Vibrate&intensity=20&toy=A1", reqs[2].RawQuery)
}

func TestVibratePattern_TransientOverride(t *testing.T) {
	fake := testutil.NewFakeLovense(t, oneToy)
	p := newProvider(t, DialectRemote, fake.URL())
	require.NoError(t, p.Connect(context.Background()))

	// Levels 4,4,4,18: weighted mean 9.6, the peak wins
	p.VibratePattern([]float64{0.1, 0.1, 0.1, 0.9}, 500*time.Millisecond)

	reqs := waitForCommands(t, fake, 1)
	assert.Equal(t, `{"command":"Function","action":"Vibrate:18","timeSec":1,"apiVer":1}`, reqs[0].Body)

	p.VibratePattern(nil, time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, fake.CommandRequests(), 1)
}

func TestDisconnect_ThenVibrateIsNoop(t *testing.T) {
	fake := testutil.NewFakeLovense(t, oneToy)
	p := newProvider(t, DialectLocal, fake.URL())
	events := testutil.RecordEvents(t, p)
	require.NoError(t, p.Connect(context.Background()))

	p.Disconnect()
	assert.False(t, p.IsConnected())
	assert.Empty(t, p.Devices())
	assert.Empty(t, p.ActiveDevice())
	assert.Equal(t, []bool{true, false}, events.Connections())

	fake.Reset()
	assert.NotPanics(t, func() {
		p.Vibrate(1, time.Second)
		p.Stop()
	})
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, fake.Requests())

	// Repeated disconnect is silent
	p.Disconnect()
	assert.Equal(t, []bool{true, false}, events.Connections())
}

func TestDisconnect_NeverConnected(t *testing.T) {
	p := newProvider(t, DialectLocal, "https://127.0.0.1:30010")
	events := testutil.RecordEvents(t, p)
	assert.NotPanics(t, p.Disconnect)
	assert.Zero(t, events.Len())
}

func TestDisconnect_CancelsInFlightDiscovery(t *testing.T) {
	fake := testutil.NewFakeLovense(t, oneToy)
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	fake.OnRequest(func(testutil.LovenseRequest) {
		entered <- struct{}{}
		<-release
	})
	t.Cleanup(func() { close(release) })

	p := newProvider(t, DialectLocal, fake.URL())
	events := testutil.RecordEvents(t, p)

	done := make(chan error, 1)
	go func() { done <- p.Connect(context.Background()) }()
	<-entered

	start := time.Now()
	p.Disconnect()
	assert.Less(t, time.Since(start), time.Second)

	err := <-done
	require.Error(t, err)
	assert.False(t, p.IsConnected())
	assert.Zero(t, events.Len(), "a cancelled discovery raises no notification")
}

func TestConnect_WhileConnectedIsNoop(t *testing.T) {
	fake := testutil.NewFakeLovense(t, oneToy)
	p := newProvider(t, DialectLocal, fake.URL())
	require.NoError(t, p.Connect(context.Background()))
	require.NoError(t, p.Connect(context.Background()))
	assert.Len(t, fake.Requests(), 1)
}

func TestStatus_CountsAndMetrics(t *testing.T) {
	fake := testutil.NewFakeLovense(t, oneToy)
	registry := metric.NewMetricsRegistry()
	p := newProvider(t, DialectLocal, fake.URL(), WithMetrics(registry))
	require.NoError(t, p.Connect(context.Background()))

	p.Vibrate(0.5, time.Second)
	waitForCommands(t, fake, 1)
	testutil.WaitFor(t, time.Second, func() bool { return p.Status().CommandsSent == 1 })

	s := p.Status()
	assert.Equal(t, "Lovense (Local)", s.Name)
	assert.Equal(t, "connected", s.State)
	assert.True(t, s.Connected)
	assert.Equal(t, fake.URL(), s.Endpoint)
	assert.Equal(t, "A1", s.ActiveDevice)

	// A second session registers its send queue metrics again
	p.Disconnect()
	require.NoError(t, p.Connect(context.Background()))
	assert.True(t, p.IsConnected())
}

func TestCommandFailureIsSwallowed(t *testing.T) {
	fake := testutil.NewFakeLovense(t, oneToy)
	p := newProvider(t, DialectLocal, fake.URL())
	events := testutil.RecordEvents(t, p)
	require.NoError(t, p.Connect(context.Background()))

	fake.SetStatus(http.StatusInternalServerError)
	p.Vibrate(0.7, time.Second)

	testutil.WaitFor(t, 2*time.Second, func() bool { return p.Status().CommandsFailed == 1 })
	assert.True(t, p.IsConnected(), "command failures do not disconnect")
	assert.Empty(t, events.OfType(haptic.EventError), "command failures raise no error notification")
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig(DialectLocal)
	cfg.URL = "ftp://toys"
	_, err := New(cfg)
	assert.Error(t, err)

	cfg = DefaultConfig("serial")
	_, err = New(cfg)
	assert.Error(t, err)

	cfg = DefaultConfig(DialectRemote)
	cfg.QueueSize = 0
	_, err = New(cfg)
	assert.Error(t, err)
}
