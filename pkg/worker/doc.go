// Package worker provides a generic bounded worker pool.
//
// The HTTP toy-control adapter uses a single-worker pool per connection
// session as its ordered send queue: Submit never blocks, a full queue
// rejects the command with ErrQueueFull, and cancelling the context passed
// to Start abandons whatever is still queued.
//
//	pool := worker.NewPool(1, 16, func(ctx context.Context, cmd sendJob) error {
//	    return adapter.send(ctx, cmd)
//	}, worker.WithMetricsRegistry[sendJob](registry, "hapticlink_lovense_send"))
//
//	_ = pool.Start(sessionCtx)
//	_ = pool.Submit(job)
//	...
//	cancel()
//	_ = pool.Stop(time.Second)
//
// A pool is one-shot: Stop closes the queue, so a new session builds a new
// pool. Stop also unregisters the pool's collectors so that the next pool
// with the same prefix can register them again.
//
// Stats are tracked with atomics regardless of whether Prometheus metrics
// are configured.
package worker
