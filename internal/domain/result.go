// Package domain contains the core value objects and error taxonomy for the
// ensemble aggregation engine. The domain layer has no dependencies on
// infrastructure; all types here are plain data carriers shared between the
// worker pool, the aggregation strategies, and the weight learners.
package domain

import (
	"fmt"
	"math"
	"time"
)

// ResultStatus describes the outcome of a single worker execution.
type ResultStatus string

// Possible outcomes of one worker invocation.
const (
	// StatusSuccess indicates the worker produced a usable value with a
	// valid confidence score.
	StatusSuccess ResultStatus = "success"

	// StatusFailed indicates the worker returned an error or panicked.
	// The result carries no value and zero confidence.
	StatusFailed ResultStatus = "failed"

	// StatusTimeout indicates the worker exceeded its configured deadline
	// and was abandoned best-effort.
	StatusTimeout ResultStatus = "timeout"

	// StatusAnomaly indicates the worker produced a value but violated a
	// contract invariant, such as reporting a confidence outside [0, 1].
	// The value is retained for audit but excluded from aggregation.
	StatusAnomaly ResultStatus = "anomaly"
)

// WorkerResult captures the outcome of a single worker processing one input.
// Exactly one WorkerResult is produced per worker per pool invocation; all
// results of an invocation share the same TraceID. Results are ephemeral:
// the aggregator consumes them, and the caller owns them afterward for audit.
type WorkerResult struct {
	// WorkerID identifies the worker that produced this result.
	WorkerID string `json:"worker_id"`

	// Value is the worker's output. The engine treats it as opaque; only
	// the chosen aggregation strategy interprets it (numeric, categorical).
	// Nil for failed and timed-out executions.
	Value any `json:"value,omitempty"`

	// Confidence is the worker's self-reported confidence in Value,
	// always in [0, 1]. Zero for non-success results.
	Confidence float64 `json:"confidence"`

	// Status records how the execution ended.
	Status ResultStatus `json:"status"`

	// LatencyMs measures the worker's execution time in milliseconds.
	LatencyMs int64 `json:"latency_ms"`

	// TraceID groups all results produced by one pool invocation.
	TraceID string `json:"trace_id"`

	// Metadata carries auxiliary execution details such as worker type,
	// execution counts, or error descriptions for failed runs.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewWorkerResult constructs a successful WorkerResult and enforces the
// confidence invariant. Construction fails with ErrInvalidConfidence when
// confidence is NaN or outside [0, 1]; callers in the pool convert that
// failure into an anomaly result rather than propagating it.
func NewWorkerResult(
	workerID string,
	value any,
	confidence float64,
	latencyMs int64,
	traceID string,
) (WorkerResult, error) {
	if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
		return WorkerResult{}, fmt.Errorf("%w: worker %q reported %v",
			ErrInvalidConfidence, workerID, confidence)
	}
	return WorkerResult{
		WorkerID:   workerID,
		Value:      value,
		Confidence: confidence,
		Status:     StatusSuccess,
		LatencyMs:  latencyMs,
		TraceID:    traceID,
	}, nil
}

// NewFailedResult constructs a WorkerResult for an execution that ended with
// an error. The error text is preserved in metadata for audit.
func NewFailedResult(workerID string, latencyMs int64, traceID string, err error) WorkerResult {
	r := WorkerResult{
		WorkerID:  workerID,
		Status:    StatusFailed,
		LatencyMs: latencyMs,
		TraceID:   traceID,
	}
	if err != nil {
		r.Metadata = map[string]any{"error": err.Error()}
	}
	return r
}

// NewTimeoutResult constructs a WorkerResult for an execution abandoned after
// exceeding its deadline.
func NewTimeoutResult(workerID string, latencyMs int64, traceID string) WorkerResult {
	return WorkerResult{
		WorkerID:  workerID,
		Status:    StatusTimeout,
		LatencyMs: latencyMs,
		TraceID:   traceID,
	}
}

// IsSuccess reports whether this result is usable for aggregation.
func (r WorkerResult) IsSuccess() bool { return r.Status == StatusSuccess }

// AggregatedResult is the consensus outcome of combining multiple worker
// results through one aggregation strategy. It is created once per
// aggregation call and immutable afterward.
type AggregatedResult struct {
	// Value is the consensus value chosen or computed by the strategy.
	Value any `json:"value"`

	// Confidence expresses the strategy's certainty in Value, in [0, 1].
	// Its exact semantics depend on the strategy (weighted mean of worker
	// confidences, winning vote share, dispersion-derived, ...).
	Confidence float64 `json:"confidence"`

	// AllResults lists every contributing WorkerResult in registration
	// order, including failed and timed-out ones, for audit.
	AllResults []WorkerResult `json:"all_results,omitempty"`

	// WeightsApplied records the effective per-worker weights the strategy
	// consulted, keyed by worker ID. These are raw weights (learned weight,
	// scaled by confidence where the strategy does so), not normalized
	// shares; they need not sum to one.
	WeightsApplied map[string]float64 `json:"weights_applied,omitempty"`

	// Method names the strategy that produced this result.
	Method string `json:"method"`

	// ValidWorkers counts the successful results that entered the
	// computation. Always ValidWorkers <= TotalWorkers. Callers should
	// treat this ratio, together with Confidence, as the primary signal
	// of degraded operation.
	ValidWorkers int `json:"valid_workers"`

	// TotalWorkers counts all results passed to the strategy.
	TotalWorkers int `json:"total_workers"`

	// Metadata carries strategy-specific details such as vote
	// distributions or dispersion measures.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Timestamp records when this result was created.
	Timestamp time.Time `json:"timestamp"`
}
