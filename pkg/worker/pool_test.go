package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	errs "github.com/c360/hapticlink/errors"
	"github.com/c360/hapticlink/metric"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testWork struct {
	id    int
	delay time.Duration
	fail  bool
}

func TestNewPool_Defaults(t *testing.T) {
	processor := func(_ context.Context, _ testWork) error { return nil }

	pool := NewPool(3, 100, processor)
	assert.Equal(t, 3, pool.workers)
	assert.Equal(t, 100, pool.queueSize)

	pool = NewPool(0, 0, processor)
	assert.Equal(t, 1, pool.workers)
	assert.Equal(t, 16, pool.queueSize)
}

func TestNewPool_NilProcessor(t *testing.T) {
	assert.PanicsWithValue(t, ErrNilProcessor, func() {
		NewPool[testWork](1, 1, nil)
	})
}

func TestPool_Lifecycle(t *testing.T) {
	processor := func(_ context.Context, _ testWork) error { return nil }
	pool := NewPool(1, 4, processor)

	assert.ErrorIs(t, pool.Submit(testWork{}), ErrPoolNotStarted)
	assert.NoError(t, pool.Stop(time.Second), "stop before start is a no-op")

	require.NoError(t, pool.Start(context.Background()))
	assert.ErrorIs(t, pool.Start(context.Background()), ErrPoolAlreadyStarted)

	require.NoError(t, pool.Stop(time.Second))
	assert.ErrorIs(t, pool.Submit(testWork{}), ErrPoolStopped)
	assert.NoError(t, pool.Stop(time.Second), "second stop is a no-op")
}

func TestPool_SingleWorkerPreservesOrder(t *testing.T) {
	var mu sync.Mutex
	var order []int
	processor := func(_ context.Context, w testWork) error {
		mu.Lock()
		order = append(order, w.id)
		mu.Unlock()
		return nil
	}

	pool := NewPool(1, 10, processor)
	require.NoError(t, pool.Start(context.Background()))
	for i := 0; i < 10; i++ {
		require.NoError(t, pool.Submit(testWork{id: i}))
	}
	require.NoError(t, pool.Stop(time.Second))

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestPool_QueueFull(t *testing.T) {
	release := make(chan struct{})
	processor := func(_ context.Context, _ testWork) error {
		<-release
		return nil
	}

	pool := NewPool(1, 2, processor)
	require.NoError(t, pool.Start(context.Background()))

	var dropped int
	for i := 0; i < 6; i++ {
		if err := pool.Submit(testWork{id: i}); err != nil {
			assert.ErrorIs(t, err, ErrQueueFull)
			assert.True(t, errors.Is(err, errs.ErrQueueFull))
			dropped++
		}
	}
	close(release)
	require.NoError(t, pool.Stop(time.Second))

	assert.GreaterOrEqual(t, dropped, 3)
	assert.Equal(t, int64(dropped), pool.Stats().Dropped)
}

func TestPool_ProcessingErrors(t *testing.T) {
	processor := func(_ context.Context, w testWork) error {
		if w.fail {
			return errors.New("simulated error")
		}
		return nil
	}

	pool := NewPool(2, 10, processor)
	require.NoError(t, pool.Start(context.Background()))
	for i := 0; i < 10; i++ {
		require.NoError(t, pool.Submit(testWork{id: i, fail: i%2 == 0}))
	}
	require.NoError(t, pool.Stop(time.Second))

	stats := pool.Stats()
	assert.Equal(t, int64(10), stats.Submitted)
	assert.Equal(t, int64(10), stats.Processed)
	assert.Equal(t, int64(5), stats.Failed)
}

func TestPool_CancelAbandonsQueuedWork(t *testing.T) {
	var processed int64
	started := make(chan struct{}, 1)
	processor := func(ctx context.Context, _ testWork) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		atomic.AddInt64(&processed, 1)
		return ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(1, 10, processor)
	require.NoError(t, pool.Start(ctx))
	for i := 0; i < 5; i++ {
		require.NoError(t, pool.Submit(testWork{id: i}))
	}

	<-started
	cancel()
	require.NoError(t, pool.Stop(time.Second))

	assert.Equal(t, int64(1), atomic.LoadInt64(&processed), "only the in-flight item runs")
}

func TestPool_StopTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	processor := func(_ context.Context, _ testWork) error {
		<-block
		return nil
	}

	pool := NewPool(1, 1, processor)
	require.NoError(t, pool.Start(context.Background()))
	require.NoError(t, pool.Submit(testWork{}))
	time.Sleep(10 * time.Millisecond)

	assert.ErrorIs(t, pool.Stop(20*time.Millisecond), ErrStopTimeout)
}

func TestPool_MetricsReRegisterAfterStop(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	processor := func(_ context.Context, _ testWork) error { return nil }

	first := NewPool(1, 4, processor, WithMetricsRegistry[testWork](registry, "test_send"))
	require.NotNil(t, first.metrics)
	assert.Len(t, first.registered, 6)
	require.NoError(t, first.Start(context.Background()))
	require.NoError(t, first.Submit(testWork{}))
	require.NoError(t, first.Stop(time.Second))

	second := NewPool(1, 4, processor, WithMetricsRegistry[testWork](registry, "test_send"))
	assert.Len(t, second.registered, 6, "collectors are free again after Stop")
	require.NoError(t, second.Start(context.Background()))
	require.NoError(t, second.Stop(time.Second))
}
