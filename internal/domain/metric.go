package domain

import "time"

// PerformanceMetric is the feedback record an external evaluation
// collaborator supplies to a weight learner after ground truth becomes
// available. The engine never derives Accuracy itself; how "accuracy" is
// defined belongs to the surrounding task domain.
type PerformanceMetric struct {
	// WorkerID identifies the worker this feedback applies to.
	WorkerID string `json:"worker_id"`

	// Predicted is the value the worker produced.
	Predicted any `json:"predicted,omitempty"`

	// Actual is the ground-truth value the prediction is judged against.
	Actual any `json:"actual,omitempty"`

	// Confidence is the confidence the worker reported for Predicted,
	// in [0, 1]. When confidence scaling is enabled it attenuates the
	// learning rate of the weight update.
	Confidence float64 `json:"confidence"`

	// Accuracy is the externally computed score for this prediction,
	// in [0, 1]. It is the target of the exponential-moving-average
	// weight update.
	Accuracy float64 `json:"accuracy"`

	// Timestamp records when the metric was observed.
	Timestamp time.Time `json:"timestamp"`
}
