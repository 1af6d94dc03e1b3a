// Package workers provides cross-cutting middleware for Worker
// implementations. Middleware wraps a worker without changing its contract,
// adding observability or pacing before the pool ever sees it; the pool
// itself stays unaware of the decoration.
package workers

import (
	"github.com/ahrav/go-ensemble/internal/ports"
)

// Middleware decorates a Worker with additional behavior.
type Middleware func(next ports.Worker) ports.Worker

// Chain applies middleware to a worker in the order given: the first
// middleware becomes the outermost layer.
//
// Example:
//
//	worker = workers.Chain(worker,
//	    workers.TracingMiddleware("scorer-a"),
//	    workers.RateLimitMiddleware(rate.Limit(2), 1),
//	)
func Chain(worker ports.Worker, middleware ...Middleware) ports.Worker {
	for i := len(middleware) - 1; i >= 0; i-- {
		worker = middleware[i](worker)
	}
	return worker
}
