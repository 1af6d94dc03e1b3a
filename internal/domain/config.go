package domain

import "gopkg.in/yaml.v3"

// WorkerConfig describes one worker's registration in a pool. It is created
// at registration time and mutated only through the pool's explicit
// enable/disable operations; unregistering the worker destroys it.
type WorkerConfig struct {
	// WorkerID uniquely identifies the worker within a pool and a weight
	// learner. Registration fails if the ID already exists.
	WorkerID string `yaml:"worker_id" json:"worker_id" validate:"required,min=1,max=255"`

	// WorkerType is a free-form tag describing the worker implementation,
	// used for logging and statistics grouping.
	WorkerType string `yaml:"worker_type" json:"worker_type" validate:"required,min=1,max=255"`

	// Parameters holds worker-specific configuration. The engine treats it
	// as opaque; it is the substrate for CreateVariations.
	Parameters map[string]any `yaml:"parameters" json:"parameters,omitempty"`

	// Enabled controls whether the worker participates in parallel
	// execution. Disabled workers stay registered but are never selected.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// TimeoutSeconds bounds a single execution of this worker. A worker
	// exceeding it is abandoned and recorded with StatusTimeout.
	TimeoutSeconds float64 `yaml:"timeout_seconds" json:"timeout_seconds" validate:"gt=0,max=3600"`

	// RetryAttempts is advisory metadata for external callers. The pool
	// never re-invokes a failed worker itself.
	RetryAttempts int `yaml:"retry_attempts" json:"retry_attempts" validate:"min=0,max=100"`
}

// DefaultWorkerConfig returns a WorkerConfig with production-ready defaults:
// enabled, a 30 second timeout, and three advisory retry attempts.
func DefaultWorkerConfig(workerID, workerType string) WorkerConfig {
	return WorkerConfig{
		WorkerID:       workerID,
		WorkerType:     workerType,
		Parameters:     map[string]any{},
		Enabled:        true,
		TimeoutSeconds: 30,
		RetryAttempts:  3,
	}
}

// UnmarshalYAML decodes a worker declaration over DefaultWorkerConfig, so
// omitted fields keep their defaults instead of Go zero values. In
// particular a declaration without an enabled key yields an enabled worker;
// enabled: false must be written out to disable one.
func (c *WorkerConfig) UnmarshalYAML(value *yaml.Node) error {
	type rawWorkerConfig WorkerConfig
	raw := rawWorkerConfig(DefaultWorkerConfig("", ""))
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*c = WorkerConfig(raw)
	return nil
}
