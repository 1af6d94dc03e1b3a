package strategies

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-ensemble/internal/domain"
	"github.com/ahrav/go-ensemble/internal/ports"
)

var _ ports.AggregationStrategy = (*WeightedAverageStrategy)(nil)

// MethodWeightedAverage is the strategy tag recorded in results produced by
// WeightedAverageStrategy.
const MethodWeightedAverage = "weighted_average"

// WeightedAverageStrategy combines numeric worker values using a weighted
// average. Each worker's effective weight is its learned weight, optionally
// scaled by its self-reported confidence, so that trusted and certain
// workers pull the consensus harder.
//
// The strategy is stateless and safe for concurrent use.
type WeightedAverageStrategy struct {
	// name is the unique identifier for this strategy instance.
	name string
	// config contains validated configuration parameters, immutable after
	// creation.
	config WeightedAverageConfig
}

// WeightedAverageConfig defines the configuration parameters for the
// WeightedAverageStrategy. All fields are validated during strategy creation
// and parameter unmarshaling.
type WeightedAverageConfig struct {
	// UseConfidence controls whether each worker's confidence multiplies
	// into its effective weight. When false only learned weights apply.
	UseConfidence bool `yaml:"use_confidence" json:"use_confidence"`
}

// DefaultWeightedAverageConfig returns a WeightedAverageConfig with
// confidence scaling enabled, matching the behavior most ensembles want.
func DefaultWeightedAverageConfig() WeightedAverageConfig {
	return WeightedAverageConfig{UseConfidence: true}
}

// NewWeightedAverageStrategy creates a WeightedAverageStrategy with the
// given name and configuration. The name is used for logging and appears as
// the Method tag on results.
func NewWeightedAverageStrategy(name string, config WeightedAverageConfig) (*WeightedAverageStrategy, error) {
	if name == "" {
		return nil, ErrEmptyStrategyName
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &WeightedAverageStrategy{name: name, config: config}, nil
}

// Name returns the unique identifier for this strategy instance.
// The name is used for logging and configuration; the Method tag on results
// is always MethodWeightedAverage.
func (s *WeightedAverageStrategy) Name() string { return s.name }

// Aggregate computes the weighted average of all successful numeric results.
//
// The effective weight of worker i is
//
//	w_i = learned_weight_i * confidence_i   (when UseConfidence)
//	w_i = learned_weight_i                  (otherwise)
//
// and the consensus value is sum(w_i * v_i) / sum(w_i). The aggregate
// confidence is the weighted mean of the worker confidences, which stays in
// [0, 1] whenever the inputs do. WeightsApplied reports the effective
// weights w_i; their sum is recorded as total_weight in the metadata.
//
// Aggregation fails with domain.ErrNoValidResults when no successful results
// remain or when the total effective weight is zero, since no defensible
// value exists in either case.
func (s *WeightedAverageStrategy) Aggregate(
	ctx context.Context,
	results []domain.WorkerResult,
	weights map[string]float64,
) (*domain.AggregatedResult, error) {
	valid := filterSuccessful(results)
	if len(valid) == 0 {
		return nil, fmt.Errorf("%s: %w", s.name, domain.ErrNoValidResults)
	}

	effective := make(map[string]float64, len(valid))
	var totalWeight float64
	for _, r := range valid {
		w := weightFor(weights, r.WorkerID)
		if s.config.UseConfidence {
			w *= r.Confidence
		}
		effective[r.WorkerID] = w
		totalWeight += w
	}

	if totalWeight == 0 {
		return nil, fmt.Errorf("%s: total effective weight is zero: %w",
			s.name, domain.ErrNoValidResults)
	}

	var weightedSum, confidenceSum float64
	for _, r := range valid {
		v, err := toFloat64(r.Value)
		if err != nil {
			return nil, fmt.Errorf("%s: worker %q: %w", s.name, r.WorkerID, err)
		}
		norm := effective[r.WorkerID] / totalWeight
		weightedSum += v * norm
		confidenceSum += r.Confidence * norm
	}

	return &domain.AggregatedResult{
		Value:          weightedSum,
		Confidence:     clamp01(confidenceSum),
		AllResults:     results,
		WeightsApplied: effective,
		Method:         MethodWeightedAverage,
		ValidWorkers:   len(valid),
		TotalWorkers:   len(results),
		Metadata: map[string]any{
			"use_confidence": s.config.UseConfidence,
			"total_weight":   totalWeight,
		},
		Timestamp: time.Now().UTC(),
	}, nil
}

// Validate checks if the strategy is properly configured.
func (s *WeightedAverageStrategy) Validate() error {
	if err := validate.Struct(s.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// UnmarshalParameters deserializes YAML configuration parameters and updates
// the strategy's configuration. Not safe for use concurrently with
// Aggregate.
func (s *WeightedAverageStrategy) UnmarshalParameters(params yaml.Node) error {
	var config WeightedAverageConfig
	if err := params.Decode(&config); err != nil {
		return fmt.Errorf("failed to decode parameters: %w", err)
	}
	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("parameter validation failed: %w", err)
	}
	s.config = config
	return nil
}

// NewWeightedAverageFromConfig creates a WeightedAverageStrategy from a
// configuration map. This is the boundary adapter for YAML/JSON
// configuration.
func NewWeightedAverageFromConfig(id string, config map[string]any) (ports.AggregationStrategy, error) {
	data, err := yaml.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	cfg := DefaultWeightedAverageConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return NewWeightedAverageStrategy(id, cfg)
}
