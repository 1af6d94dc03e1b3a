// Package strategies provides the aggregation strategies that combine
// multiple worker results into one consensus result. Each strategy
// implements ports.AggregationStrategy, validates its configuration with
// struct tags, and can be reconfigured from YAML parameters.
package strategies

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-ensemble/internal/domain"
)

// Common errors returned by aggregation strategies.
var (
	// ErrEmptyStrategyName is returned when creating a strategy with an
	// empty name.
	ErrEmptyStrategyName = errors.New("strategy name cannot be empty")

	// ErrNonNumericValue is returned by numeric strategies when a worker
	// value cannot be interpreted as a number.
	ErrNonNumericValue = errors.New("worker value is not numeric")

	// ErrBelowMinScore is returned when the winning score falls below a
	// configured minimum threshold.
	ErrBelowMinScore = errors.New("aggregate score below minimum threshold")
)

// Package-level validator instance for configuration validation.
// Uses go-playground/validator v10 for struct tag-based validation.
var validate = validator.New()

// filterSuccessful returns the subset of results usable for aggregation,
// preserving input order. Failed, timed-out, and anomalous results are
// excluded from computation but remain in AggregatedResult.AllResults.
func filterSuccessful(results []domain.WorkerResult) []domain.WorkerResult {
	valid := make([]domain.WorkerResult, 0, len(results))
	for _, r := range results {
		if r.IsSuccess() {
			valid = append(valid, r)
		}
	}
	return valid
}

// weightFor returns the learned weight for a worker, defaulting to 1.0 for
// workers the learner has never seen. Negative weights are clamped to zero
// to preserve the non-negativity invariant.
func weightFor(weights map[string]float64, workerID string) float64 {
	if weights == nil {
		return 1.0
	}
	w, ok := weights[workerID]
	if !ok {
		return 1.0
	}
	if w < 0 {
		return 0
	}
	return w
}

// toFloat64 coerces a worker value into a float64 for numeric strategies.
func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("%w: got %T", ErrNonNumericValue, v)
	}
}

// clamp01 clamps v to the [0, 1] interval.
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
