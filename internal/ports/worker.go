// Package ports defines the interfaces that form the contract between the
// domain/application layers and external collaborators. Workers, aggregation
// strategies, and weight learners are all supplied behind these interfaces,
// which enables dependency inversion and makes the engine testable.
package ports

import (
	"context"

	"github.com/ahrav/go-ensemble/internal/domain"
)

// Worker is an independently executable computation unit that also
// self-reports a confidence score. Implementations are supplied by the
// caller and treated as opaque by the pool: the engine never inspects a
// worker's output beyond what the chosen aggregation strategy requires.
//
// Implementations should be safe for concurrent use if the caller runs
// overlapping batches; the pool itself invokes each worker at most once per
// batch.
type Worker interface {
	// Process computes the worker's output for the given input.
	// It should respect context cancellation and return promptly when the
	// deadline set by the pool expires. Any error aborts only this
	// worker's contribution, never the batch.
	Process(ctx context.Context, input any) (any, error)

	// Confidence scores the worker's own output for the given input,
	// returning a value in [0, 1]. Values outside that range cause the
	// pool to record the execution as an anomaly.
	Confidence(ctx context.Context, input, value any) (float64, error)
}

// Variable is an optional capability for workers whose behavior is driven by
// a parameter map. The pool's CreateVariations uses it to derive perturbed
// copies of a base worker.
type Variable interface {
	// ApplyVariation returns a new worker configured with the given
	// parameters. The receiver must not be modified.
	ApplyVariation(params map[string]any) (Worker, error)
}

// AggregationStrategy combines multiple worker results into one consensus
// result. Strategies are pure with respect to engine state: everything they
// need arrives through the arguments.
//
// Every strategy first filters the input down to successful results and
// fails with domain.ErrNoValidResults when none remain. Failed and timed-out
// results are still retained in AggregatedResult.AllResults for audit.
type AggregationStrategy interface {
	// Name returns a unique identifier for this strategy instance.
	// The name is used for logging, debugging, and configuration; the
	// method tag recorded on results is a per-implementation constant.
	Name() string

	// Aggregate combines the given results under the given per-worker
	// weights. A worker absent from the weights map carries an implicit
	// weight of 1.0. The results slice arrives in stable registration
	// order, which tie-breaking relies on; strategies must not reorder it.
	Aggregate(
		ctx context.Context,
		results []domain.WorkerResult,
		weights map[string]float64,
	) (*domain.AggregatedResult, error)
}
