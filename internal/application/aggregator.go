package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ahrav/go-ensemble/internal/domain"
	"github.com/ahrav/go-ensemble/internal/ports"
)

// Aggregator binds one interchangeable aggregation strategy to an optional
// weight learner. At aggregation time it snapshots the learner's current
// weights and hands (results, weights) to the strategy; workers the learner
// has never seen implicitly carry weight 1.0.
//
// Strategy and learner can be swapped at runtime; swaps are serialized
// against in-flight aggregations.
type Aggregator struct {
	mu       sync.RWMutex
	strategy ports.AggregationStrategy
	learner  ports.WeightLearner

	logger  *zap.Logger
	tracer  trace.Tracer
	metrics ports.MetricsCollector
}

// AggregatorOption customizes an Aggregator at construction time.
type AggregatorOption func(*Aggregator)

// WithWeightLearner attaches a weight learner whose weights are applied at
// every aggregation.
func WithWeightLearner(learner ports.WeightLearner) AggregatorOption {
	return func(a *Aggregator) { a.learner = learner }
}

// WithAggregatorLogger attaches a structured logger.
func WithAggregatorLogger(logger *zap.Logger) AggregatorOption {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithAggregatorMetrics attaches a metrics collector recording aggregation
// outcomes and confidence.
func WithAggregatorMetrics(collector ports.MetricsCollector) AggregatorOption {
	return func(a *Aggregator) { a.metrics = collector }
}

// NewAggregator creates an Aggregator using the given strategy.
func NewAggregator(strategy ports.AggregationStrategy, opts ...AggregatorOption) (*Aggregator, error) {
	if strategy == nil {
		return nil, fmt.Errorf("%w: strategy is nil", domain.ErrInvalidConfiguration)
	}
	a := &Aggregator{
		strategy: strategy,
		logger:   zap.NewNop(),
		tracer:   otel.Tracer("aggregator"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Aggregate combines the worker results into one consensus result using the
// configured strategy and the learner's current weights. It fails with
// domain.ErrNoValidResults when no successful results remain; per-worker
// failures never surface as errors here because they already arrived as
// result statuses.
func (a *Aggregator) Aggregate(ctx context.Context, results []domain.WorkerResult) (*domain.AggregatedResult, error) {
	a.mu.RLock()
	strategy := a.strategy
	learner := a.learner
	a.mu.RUnlock()

	ctx, span := a.tracer.Start(ctx, "Aggregator.Aggregate",
		trace.WithAttributes(
			attribute.String("strategy", strategy.Name()),
			attribute.Int("results", len(results)),
		),
	)
	defer span.End()

	var weights map[string]float64
	if learner != nil {
		weights = learner.AllWeights()
	}

	start := time.Now()
	aggregated, err := strategy.Aggregate(ctx, results, weights)
	if err != nil {
		span.RecordError(err)
		if a.metrics != nil {
			a.metrics.RecordCounter("aggregations_total", 1, map[string]string{
				"strategy": strategy.Name(), "status": "error",
			})
		}
		return nil, fmt.Errorf("aggregation failed: %w", err)
	}

	a.logger.Info("aggregated worker results",
		zap.String("method", aggregated.Method),
		zap.Int("valid_workers", aggregated.ValidWorkers),
		zap.Int("total_workers", aggregated.TotalWorkers),
		zap.Float64("confidence", aggregated.Confidence),
		zap.Duration("elapsed", time.Since(start)),
	)
	if a.metrics != nil {
		a.metrics.RecordCounter("aggregations_total", 1, map[string]string{
			"strategy": strategy.Name(), "status": "ok",
		})
		a.metrics.RecordHistogram("aggregation_confidence", aggregated.Confidence,
			map[string]string{"strategy": strategy.Name()})
	}
	return aggregated, nil
}

// SetStrategy swaps the aggregation strategy.
func (a *Aggregator) SetStrategy(strategy ports.AggregationStrategy) error {
	if strategy == nil {
		return fmt.Errorf("%w: strategy is nil", domain.ErrInvalidConfiguration)
	}
	a.mu.Lock()
	a.strategy = strategy
	a.mu.Unlock()
	a.logger.Info("changed aggregation strategy", zap.String("strategy", strategy.Name()))
	return nil
}

// SetWeightLearner sets or replaces the weight learner. A nil learner
// reverts to uniform weights.
func (a *Aggregator) SetWeightLearner(learner ports.WeightLearner) {
	a.mu.Lock()
	a.learner = learner
	a.mu.Unlock()
}
