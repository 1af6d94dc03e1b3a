package workers

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-ensemble/internal/ports"
)

// tracingWorker emits OpenTelemetry spans around worker execution, nested
// under the pool's batch span through the propagated context.
type tracingWorker struct {
	next     ports.Worker
	workerID string
	tracer   trace.Tracer
}

// TracingMiddleware creates middleware that records a span per Process and
// Confidence call, tagged with the given worker ID.
func TracingMiddleware(workerID string) Middleware {
	return func(next ports.Worker) ports.Worker {
		return &tracingWorker{
			next:     next,
			workerID: workerID,
			tracer:   otel.Tracer("worker"),
		}
	}
}

// Process executes the wrapped worker inside a span, recording errors.
func (w *tracingWorker) Process(ctx context.Context, input any) (any, error) {
	ctx, span := w.tracer.Start(ctx, "Worker.Process",
		trace.WithAttributes(attribute.String("worker.id", w.workerID)),
	)
	defer span.End()

	value, err := w.next.Process(ctx, input)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return value, err
}

// Confidence executes the wrapped scoring inside a span, recording the
// reported confidence as an attribute.
func (w *tracingWorker) Confidence(ctx context.Context, input, value any) (float64, error) {
	ctx, span := w.tracer.Start(ctx, "Worker.Confidence",
		trace.WithAttributes(attribute.String("worker.id", w.workerID)),
	)
	defer span.End()

	confidence, err := w.next.Confidence(ctx, input, value)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return confidence, err
	}
	span.SetAttributes(attribute.Float64("worker.confidence", confidence))
	return confidence, nil
}
