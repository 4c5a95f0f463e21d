package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/hapticlink/errors"
	"github.com/c360/hapticlink/haptic"
	"github.com/c360/hapticlink/provider/lovense"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, haptic.KindLovenseLocal, cfg.Mode())
	assert.Equal(t, 8086, cfg.HTTP.Port)
	assert.Equal(t, "haptics", cfg.NATS.SubjectPrefix)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantError string
	}{
		{"unknown mode", func(c *Config) { c.Provider.Mode = "bluetooth" }, "unknown provider mode"},
		{"bad lovense url", func(c *Config) { c.Provider.URL = "ws://127.0.0.1" }, "must be http or https"},
		{"bad buttplug url", func(c *Config) {
			c.Provider.Mode = "buttplug"
			c.Provider.URL = "http://127.0.0.1:12345"
		}, "must be ws or wss"},
		{"http port", func(c *Config) { c.HTTP.Port = 70000 }, "http.port"},
		{"burst without limit", func(c *Config) { c.HTTP.RateBurst = 0 }, "rate_burst"},
		{"metrics port clash", func(c *Config) { c.Metrics.Port = c.HTTP.Port }, "must differ"},
		{"metrics path", func(c *Config) { c.Metrics.Path = "metrics" }, "must start with /"},
		{"nats prefix", func(c *Config) {
			c.NATS.Enabled = true
			c.NATS.SubjectPrefix = "bad prefix"
		}, "subject_prefix"},
		{"missing ca file", func(c *Config) { c.Provider.TLS.CAFiles = []string{"/nonexistent/ca.pem"} }, "ca_files[0]"},
		{"tls version", func(c *Config) { c.Provider.TLS.MinVersion = "1.1" }, "invalid TLS version"},
		{"throttle", func(c *Config) { c.Throttle.DeadZone = 1.5 }, "dead_zone"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := Default()
			test.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), test.wantError)
			assert.True(t, errors.IsFatal(err))
		})
	}
}

func TestValidate_MockIgnoresURL(t *testing.T) {
	cfg := Default()
	cfg.Provider.Mode = "mock"
	cfg.Provider.URL = "not a url"
	assert.NoError(t, cfg.Validate())
}

func TestProviderConfigs(t *testing.T) {
	cfg := Default()
	cfg.Provider.URL = "https://10.0.0.5:30010"
	cfg.Provider.Timeout = 3 * time.Second
	cfg.Provider.ScanWindow = 4 * time.Second
	cfg.Provider.ClientName = "ui"
	cfg.Throttle.MinInterval = 200 * time.Millisecond
	off := time.Duration(0)
	cfg.Throttle.RepeatWindow = &off

	lv := cfg.LovenseConfig(lovense.DialectLocal)
	assert.Equal(t, "https://10.0.0.5:30010", lv.URL)
	assert.Equal(t, 3*time.Second, lv.Timeout)
	assert.Equal(t, 200*time.Millisecond, lv.Throttle.MinInterval)
	assert.Equal(t, time.Duration(0), lv.Throttle.RepeatWindow)
	assert.Equal(t, 2, lv.DiscoveryAttempts)

	cfg.Provider.URL = ""
	bp := cfg.ButtplugConfig()
	assert.Equal(t, "ws://127.0.0.1:12345", bp.URL)
	assert.Equal(t, 4*time.Second, bp.ScanWindow)
	assert.Equal(t, "ui", bp.ClientName)

	assert.Equal(t, 2*time.Second, cfg.MockConfig().ToastDuration)
}

func TestThrottleFor_KeepsProviderDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, time.Second, cfg.LovenseConfig(lovense.DialectRemote).Throttle.RepeatWindow)
	assert.Equal(t, time.Duration(0), cfg.ButtplugConfig().Throttle.RepeatWindow)
}

func TestSafeConfig(t *testing.T) {
	sc := NewSafeConfig(nil)
	got := sc.Get()
	got.HTTP.Port = 1
	assert.Equal(t, 8086, sc.Get().HTTP.Port)

	next := Default()
	next.Provider.Mode = "mock"
	require.NoError(t, sc.Update(next))
	assert.Equal(t, haptic.KindMock, sc.Get().Mode())

	bad := Default()
	bad.Provider.Mode = "nope"
	assert.Error(t, sc.Update(bad))
	assert.Error(t, sc.Update(nil))
	assert.Equal(t, haptic.KindMock, sc.Get().Mode())
}

func TestClone_DeepCopiesPointers(t *testing.T) {
	skip := true
	window := time.Second
	cfg := Default()
	cfg.Provider.TLS.InsecureSkipVerify = &skip
	cfg.Provider.TLS.CAFiles = []string{"a.pem"}
	cfg.Throttle.RepeatWindow = &window

	clone := cfg.Clone()
	*clone.Provider.TLS.InsecureSkipVerify = false
	*clone.Throttle.RepeatWindow = 0
	clone.Provider.TLS.CAFiles[0] = "b.pem"
	clone.HTTP.CORSOrigins[0] = "https://evil.example"

	assert.True(t, skip)
	assert.Equal(t, time.Second, window)
	assert.Equal(t, "a.pem", cfg.Provider.TLS.CAFiles[0])
	assert.Equal(t, "http://localhost:*", cfg.HTTP.CORSOrigins[0])
}
