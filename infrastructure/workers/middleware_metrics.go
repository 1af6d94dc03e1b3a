package workers

import (
	"context"
	"time"

	"github.com/ahrav/go-ensemble/internal/ports"
)

// metricsWorker records execution counts and latency for the wrapped worker.
type metricsWorker struct {
	next     ports.Worker
	workerID string
	metrics  ports.MetricsCollector
}

// MetricsMiddleware creates middleware that records per-call metrics through
// the given collector. It complements the pool's own batch metrics for
// workers that also run outside pool executions.
func MetricsMiddleware(workerID string, metrics ports.MetricsCollector) Middleware {
	return func(next ports.Worker) ports.Worker {
		return &metricsWorker{next: next, workerID: workerID, metrics: metrics}
	}
}

// Process forwards to the wrapped worker, recording latency and outcome.
func (w *metricsWorker) Process(ctx context.Context, input any) (any, error) {
	start := time.Now()
	value, err := w.next.Process(ctx, input)

	status := "ok"
	if err != nil {
		status = "error"
	}
	w.metrics.RecordCounter("worker_process_total", 1, map[string]string{
		"worker": w.workerID, "status": status,
	})
	w.metrics.RecordLatency("worker_process", time.Since(start), map[string]string{
		"worker": w.workerID,
	})
	return value, err
}

// Confidence forwards to the wrapped worker and records the reported score.
func (w *metricsWorker) Confidence(ctx context.Context, input, value any) (float64, error) {
	confidence, err := w.next.Confidence(ctx, input, value)
	if err == nil {
		w.metrics.RecordHistogram("worker_confidence", confidence, map[string]string{
			"worker": w.workerID,
		})
	}
	return confidence, err
}
