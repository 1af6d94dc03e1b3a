package workers

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/ahrav/go-ensemble/internal/ports"
)

// rateLimitedWorker implements rate limiting using a token bucket algorithm.
// Useful when a worker fronts an upstream service with request quotas.
type rateLimitedWorker struct {
	next    ports.Worker
	limiter *rate.Limiter
}

// RateLimitMiddleware creates middleware that enforces rate limiting using a
// token bucket algorithm. The limit parameter sets executions per second,
// while burst allows temporary spikes above the sustained rate. All workers
// wrapped by the same middleware value share one bucket.
func RateLimitMiddleware(limit rate.Limit, burst int) Middleware {
	limiter := rate.NewLimiter(limit, burst)

	return func(next ports.Worker) ports.Worker {
		return &rateLimitedWorker{next: next, limiter: limiter}
	}
}

// Process waits for rate limit permission before forwarding the input.
// The wait respects the per-worker deadline set by the pool, so a starved
// worker times out rather than blocking the batch indefinitely.
func (w *rateLimitedWorker) Process(ctx context.Context, input any) (any, error) {
	if err := w.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return w.next.Process(ctx, input)
}

// Confidence forwards to the wrapped worker without consuming a token;
// scoring an already-computed value is local work.
func (w *rateLimitedWorker) Confidence(ctx context.Context, input, value any) (float64, error) {
	return w.next.Confidence(ctx, input, value)
}
