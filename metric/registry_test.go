package metric

import (
	"fmt"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gatheredNames(t *testing.T, registry *MetricsRegistry) map[string]bool {
	t.Helper()
	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	return names
}

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()

	assert.NotNil(t, registry)
	assert.NotNil(t, registry.PrometheusRegistry())
	assert.NotNil(t, registry.CoreMetrics())
}

func TestMetricsRegistry_RegisterCollectors(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_counter", Help: "A test counter"})
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_gauge", Help: "A test gauge"})
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "test_histogram", Help: "A test histogram"})
	counterVec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_counter_vec", Help: "h"}, []string{"l"})
	gaugeVec := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "test_gauge_vec", Help: "h"}, []string{"l"})
	histVec := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "test_hist_vec", Help: "h"}, []string{"l"})

	require.NoError(t, registry.Register("svc", "test_counter", counter))
	require.NoError(t, registry.Register("svc", "test_gauge", gauge))
	require.NoError(t, registry.Register("svc", "test_histogram", histogram))
	require.NoError(t, registry.Register("svc", "test_counter_vec", counterVec))
	require.NoError(t, registry.Register("svc", "test_gauge_vec", gaugeVec))
	require.NoError(t, registry.Register("svc", "test_hist_vec", histVec))

	counter.Inc()
	gauge.Set(3)
	histogram.Observe(0.1)
	counterVec.WithLabelValues("a").Inc()
	gaugeVec.WithLabelValues("a").Set(1)
	histVec.WithLabelValues("a").Observe(0.2)

	names := gatheredNames(t, registry)
	for _, name := range []string{"test_counter", "test_gauge", "test_histogram", "test_counter_vec", "test_gauge_vec", "test_hist_vec"} {
		assert.True(t, names[name], "%s should be gathered", name)
	}
}

func TestMetricsRegistry_PreventDuplicateRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	first := prometheus.NewCounter(prometheus.CounterOpts{Name: "dup_counter", Help: "h"})
	second := prometheus.NewCounter(prometheus.CounterOpts{Name: "dup_counter", Help: "h"})

	require.NoError(t, registry.Register("svc", "dup_counter", first))

	err := registry.Register("svc", "dup_counter", second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	// Same prometheus name under another service key conflicts inside prometheus
	err = registry.Register("other", "dup_counter", second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prometheus conflict")
}

func TestMetricsRegistry_Unregister(t *testing.T) {
	registry := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "session_gauge", Help: "h"})
	require.NoError(t, registry.Register("svc", "session_gauge", gauge))

	assert.True(t, registry.Unregister("svc", "session_gauge"))
	assert.False(t, registry.Unregister("svc", "session_gauge"))

	// A new session can register the same metric again
	again := prometheus.NewGauge(prometheus.GaugeOpts{Name: "session_gauge", Help: "h"})
	assert.NoError(t, registry.Register("svc", "session_gauge", again))
}

func TestMetricsRegistry_ThreadSafety(t *testing.T) {
	registry := NewMetricsRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("concurrent_counter_%d", i)
			c := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: "h"})
			assert.NoError(t, registry.Register("svc", name, c))
			registry.Unregister("svc", name)
		}(i)
	}
	wg.Wait()
}

func TestCoreMetrics_RecordMethods(t *testing.T) {
	registry := NewMetricsRegistry()
	core := registry.CoreMetrics()

	core.RecordConnected("lovense", true)
	core.RecordDevices("lovense", 2)
	core.RecordCommand("lovense", "vibrate", CommandSent)
	core.RecordCommand("lovense", "vibrate", CommandSent)
	core.RecordCommand("lovense", "vibrate", CommandDropped)
	core.RecordCommandDuration("lovense", "vibrate", 20*time.Millisecond)
	core.RecordError("lovense", "transient")
	core.RecordEvent("connection_changed")
	core.RecordHTTPRequest("/api/v1/vibrate", "202")
	core.RecordNATSStatus(true)
	core.RecordNATSReconnect()

	assert.Equal(t, 1.0, testutil.ToFloat64(core.ProviderConnected.WithLabelValues("lovense")))
	assert.Equal(t, 2.0, testutil.ToFloat64(core.DevicesAvailable.WithLabelValues("lovense")))
	assert.Equal(t, 2.0, testutil.ToFloat64(core.CommandsTotal.WithLabelValues("lovense", "vibrate", CommandSent)))
	assert.Equal(t, 1.0, testutil.ToFloat64(core.CommandsTotal.WithLabelValues("lovense", "vibrate", CommandDropped)))
	assert.Equal(t, 1.0, testutil.ToFloat64(core.NATSConnected))

	names := gatheredNames(t, registry)
	assert.True(t, names["hapticlink_commands_total"])
	assert.True(t, names["hapticlink_provider_connected"])
}

func TestCoreMetrics_NilSafe(t *testing.T) {
	var core *Metrics
	assert.NotPanics(t, func() {
		core.RecordConnected("x", true)
		core.RecordDevices("x", 1)
		core.RecordCommand("x", "stop", CommandFailed)
		core.RecordCommandDuration("x", "stop", time.Millisecond)
		core.RecordError("x", "fatal")
		core.RecordEvent("error")
		core.RecordHTTPRequest("/", "200")
		core.RecordNATSStatus(false)
		core.RecordNATSReconnect()
	})

	var registry *MetricsRegistry
	assert.Nil(t, registry.CoreMetrics())
}

func TestServer_Handler(t *testing.T) {
	registry := NewMetricsRegistry()
	registry.CoreMetrics().RecordCommand("mock", "vibrate", CommandSent)

	srv := httptest.NewServer(NewServer(0, "", registry).Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `hapticlink_commands_total{action="vibrate",outcome="sent",provider="mock"} 1`)

	resp, err = srv.Client().Get(srv.URL + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
}

func TestServer_Defaults(t *testing.T) {
	s := NewServer(0, "", NewMetricsRegistry())
	assert.Equal(t, "http://localhost:9090/metrics", s.Address())
	assert.NoError(t, s.Stop())

	assert.Error(t, NewServer(1, "/m", nil).Start())
}
