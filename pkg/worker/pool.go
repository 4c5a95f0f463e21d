package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/hapticlink/metric"
)

const (
	metricsService   = "worker_pool"
	defaultQueueSize = 16
)

// Pool runs a processor over queued work items of type T. With one worker
// items are processed in submission order.
type Pool[T any] struct {
	workers   int
	queueSize int
	processor func(context.Context, T) error
	queue     chan T
	wg        sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool

	submitted atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64

	registry   metric.Registrar
	prefix     string
	metrics    *poolMetrics
	registered []string
}

type poolMetrics struct {
	queueDepth prometheus.Gauge
	submitted  prometheus.Counter
	processed  prometheus.Counter
	failed     prometheus.Counter
	dropped    prometheus.Counter
	duration   *prometheus.HistogramVec
}

// Option configures a Pool
type Option[T any] func(*Pool[T])

// WithMetricsRegistry exports queue metrics named prefix_* through registry
func WithMetricsRegistry[T any](registry metric.Registrar, prefix string) Option[T] {
	return func(p *Pool[T]) {
		p.registry = registry
		p.prefix = prefix
	}
}

// NewPool creates a pool. Non-positive sizes fall back to one worker and a
// queue of 16. A nil processor panics with ErrNilProcessor.
func NewPool[T any](workers, queueSize int, processor func(context.Context, T) error, opts ...Option[T]) *Pool[T] {
	if processor == nil {
		panic(ErrNilProcessor)
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	p := &Pool[T]{
		workers:   max(workers, 1),
		queueSize: queueSize,
		processor: processor,
		queue:     make(chan T, queueSize),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.registry != nil && p.prefix != "" {
		p.registerMetrics()
	}
	return p
}

// registerMetrics creates the pool collectors. A collector whose name is
// taken keeps counting but is not exported.
func (p *Pool[T]) registerMetrics() {
	name := func(suffix string) string { return p.prefix + "_" + suffix }
	m := &poolMetrics{
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{Name: name("queue_depth"), Help: "Current send queue depth"}),
		submitted:  prometheus.NewCounter(prometheus.CounterOpts{Name: name("submitted_total"), Help: "Work items accepted by the queue"}),
		processed:  prometheus.NewCounter(prometheus.CounterOpts{Name: name("processed_total"), Help: "Work items processed"}),
		failed:     prometheus.NewCounter(prometheus.CounterOpts{Name: name("failed_total"), Help: "Work items whose processing failed"}),
		dropped:    prometheus.NewCounter(prometheus.CounterOpts{Name: name("dropped_total"), Help: "Work items rejected by a full queue"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    name("processing_duration_seconds"),
			Help:    "Time spent processing work items",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}, []string{"status"}),
	}

	for _, c := range []struct {
		name      string
		collector prometheus.Collector
	}{
		{name("queue_depth"), m.queueDepth},
		{name("submitted_total"), m.submitted},
		{name("processed_total"), m.processed},
		{name("failed_total"), m.failed},
		{name("dropped_total"), m.dropped},
		{name("processing_duration_seconds"), m.duration},
	} {
		if err := p.registry.Register(metricsService, c.name, c.collector); err == nil {
			p.registered = append(p.registered, c.name)
		}
	}
	p.metrics = m
}

// Submit queues work without blocking. It returns ErrQueueFull when the
// queue is at capacity.
func (p *Pool[T]) Submit(work T) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case !p.started:
		return ErrPoolNotStarted
	case p.stopped:
		return ErrPoolStopped
	}

	select {
	case p.queue <- work:
		p.submitted.Add(1)
		if p.metrics != nil {
			p.metrics.submitted.Inc()
			p.metrics.queueDepth.Set(float64(len(p.queue)))
		}
		return nil
	default:
		p.dropped.Add(1)
		if p.metrics != nil {
			p.metrics.dropped.Inc()
		}
		return ErrQueueFull
	}
}

// Start launches the workers. They exit when ctx is cancelled or the pool
// is stopped.
func (p *Pool[T]) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrPoolAlreadyStarted
	}
	for range p.workers {
		p.wg.Add(1)
		go p.run(ctx)
	}
	p.started = true
	return nil
}

// Stop closes the queue, waits up to timeout for the workers and removes
// the pool collectors from the registry. Queued items still run unless the
// Start context was cancelled.
func (p *Pool[T]) Stop(timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started || p.stopped {
		return nil
	}
	p.stopped = true
	close(p.queue)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = ErrStopTimeout
	}

	for _, name := range p.registered {
		p.registry.Unregister(metricsService, name)
	}
	p.registered = nil
	return err
}

// PoolStats is a point-in-time view of a pool
type PoolStats struct {
	Workers    int   `json:"workers"`
	QueueSize  int   `json:"queue_size"`
	QueueDepth int   `json:"queue_depth"`
	Submitted  int64 `json:"submitted"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
	Dropped    int64 `json:"dropped"`
}

// Stats returns current pool statistics
func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		Workers:    p.workers,
		QueueSize:  p.queueSize,
		QueueDepth: len(p.queue),
		Submitted:  p.submitted.Load(),
		Processed:  p.processed.Load(),
		Failed:     p.failed.Load(),
		Dropped:    p.dropped.Load(),
	}
}

func (p *Pool[T]) run(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case work, ok := <-p.queue:
			// Cancellation wins over queued work.
			if !ok || ctx.Err() != nil {
				return
			}
			p.process(ctx, work)
		}
	}
}

func (p *Pool[T]) process(ctx context.Context, work T) {
	start := time.Now()
	err := p.processor(ctx, work)

	p.processed.Add(1)
	if err != nil {
		p.failed.Add(1)
	}
	if p.metrics == nil {
		return
	}

	status := "success"
	if err != nil {
		p.metrics.failed.Inc()
		status = "error"
	}
	p.metrics.processed.Inc()
	p.metrics.queueDepth.Set(float64(len(p.queue)))
	p.metrics.duration.WithLabelValues(status).Observe(time.Since(start).Seconds())
}
