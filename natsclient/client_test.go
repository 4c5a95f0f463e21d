package natsclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/hapticlink/config"
	pkgerrors "github.com/c360/hapticlink/errors"
	"github.com/c360/hapticlink/metric"
)

func TestNewClient(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", client.URL())
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.False(t, client.IsHealthy())
}

func TestNewClient_EmptyURL(t *testing.T) {
	_, err := NewClient("")
	assert.ErrorIs(t, err, pkgerrors.ErrMissingConfig)
}

func TestNewClient_OptionError(t *testing.T) {
	bad := func(*Client) error { return errors.New("bad option") }
	_, err := NewClient("nats://localhost:4222", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad option")

	for _, opt := range []ClientOption{
		WithMaxReconnects(-2),
		WithReconnectWait(0),
		WithTimeout(-time.Second),
		WithDrainTimeout(0),
		WithMessageTimeout(0),
	} {
		_, err := NewClient("nats://localhost:4222", opt)
		assert.True(t, pkgerrors.IsInvalid(err))
	}
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default().NATS
	cfg.Token = "secret"

	client, err := NewClient(cfg.URL, FromConfig(cfg)...)
	require.NoError(t, err)
	assert.Equal(t, -1, client.maxReconnects)
	assert.Equal(t, 2*time.Second, client.reconnectWait)
	assert.Equal(t, "secret", client.token)
}

func TestConnectionStatus_String(t *testing.T) {
	assert.Equal(t, "disconnected", StatusDisconnected.String())
	assert.Equal(t, "connecting", StatusConnecting.String())
	assert.Equal(t, "connected", StatusConnected.String())
	assert.Equal(t, "reconnecting", StatusReconnecting.String())
	assert.Equal(t, "unknown", ConnectionStatus(42).String())
}

func TestConnectionOptions(t *testing.T) {
	plain, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	client, err := NewClient("nats://localhost:4222",
		WithMaxReconnects(3),
		WithReconnectWait(time.Second),
		WithToken("secret"),
		WithName("hapticd"),
	)
	require.NoError(t, err)

	// token and name add one option each
	assert.Len(t, client.ConnectionOptions(), len(plain.ConnectionOptions())+2)
}

func TestPublishSubscribe_NotConnected(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.ErrorIs(t, client.Publish(context.Background(), "haptics.events.error", []byte("{}")), ErrNotConnected)
	assert.ErrorIs(t, client.Subscribe(context.Background(), "haptics.commands.stop", func(context.Context, []byte) {}), ErrNotConnected)

	_, err = client.RTT()
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestConnect_Unreachable(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	client, err := NewClient("nats://127.0.0.1:1",
		WithTimeout(200*time.Millisecond),
		WithMaxReconnects(0),
		WithMetrics(registry),
	)
	require.NoError(t, err)

	err = client.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsTransient(err))
	assert.ErrorIs(t, err, pkgerrors.ErrConnectionFailed)
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.Equal(t, 0.0, testutil.ToFloat64(registry.CoreMetrics().NATSConnected))
}

func TestConnect_Cancelled(t *testing.T) {
	client, err := NewClient("nats://10.255.255.1:4222", WithTimeout(5*time.Second), WithMaxReconnects(0))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = client.Connect(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClose_Idempotent(t *testing.T) {
	client, err := NewClient("nats://localhost:4222", WithToken("secret"))
	require.NoError(t, err)

	require.NoError(t, client.Close(context.Background()))
	require.NoError(t, client.Close(context.Background()))
	assert.Empty(t, client.token)

	err = client.Connect(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestWaitForConnection_Timeout(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, client.WaitForConnection(ctx), context.DeadlineExceeded)
}
