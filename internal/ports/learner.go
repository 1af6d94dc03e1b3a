package ports

import (
	"github.com/ahrav/go-ensemble/internal/domain"
)

// WeightLearner owns the persistent per-worker trust weights applied during
// aggregation. Weights are non-negative scalars that default to a configured
// prior for workers that have never received feedback.
//
// Implementations must serialize reads and writes per worker ID: the
// aggregator reads weights while external feedback drives updates, and the
// two must be mutually exclusive for any single worker. Cross-worker
// atomicity is not required; eventual consistency across different workers'
// weights is acceptable.
type WeightLearner interface {
	// Weight returns the current weight for a worker, or the configured
	// prior if the worker has never been updated.
	Weight(workerID string) float64

	// AllWeights returns a snapshot of every learned weight, keyed by
	// worker ID. The returned map is a copy the caller may retain.
	AllWeights() map[string]float64

	// UpdateWeight folds one performance observation into the worker's
	// weight and returns the new value. It fails with
	// domain.ErrInvalidMetric when accuracy or confidence fall outside
	// [0, 1].
	UpdateWeight(workerID string, metric domain.PerformanceMetric) (float64, error)
}

// PersistentWeightLearner extends WeightLearner with durable state. Save and
// Load round-trip losslessly: loading the bytes produced by Save restores an
// identical weight map.
type PersistentWeightLearner interface {
	WeightLearner

	// Save serializes the learner's weight state as JSON.
	Save() ([]byte, error)

	// Load replaces the learner's weight state with previously saved data.
	Load(data []byte) error
}
