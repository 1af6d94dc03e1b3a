package strategies

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-ensemble/internal/domain"
	"github.com/ahrav/go-ensemble/internal/ports"
)

var _ ports.AggregationStrategy = (*ConfidenceBasedStrategy)(nil)

// MethodConfidenceBased is the strategy tag recorded in results produced by
// ConfidenceBasedStrategy.
const MethodConfidenceBased = "confidence_based"

// ConfidenceBasedStrategy selects the single result that maximizes
// learned_weight * confidence and returns its value unmodified. It works for
// any value type since no arithmetic is performed on the values themselves.
//
// The strategy is stateless and safe for concurrent use.
type ConfidenceBasedStrategy struct {
	// name is the unique identifier for this strategy instance.
	name string
	// config contains validated configuration parameters, immutable after
	// creation.
	config ConfidenceBasedConfig
}

// ConfidenceBasedConfig defines the configuration parameters for the
// ConfidenceBasedStrategy.
type ConfidenceBasedConfig struct {
	// MinScore sets the minimum acceptable winning score
	// (learned_weight * confidence). When the best candidate falls below
	// it, aggregation fails with ErrBelowMinScore.
	//
	// Range: 0.0 to 1.0 (inclusive). Default: 0.0 (no threshold).
	MinScore float64 `yaml:"min_score" json:"min_score" validate:"min=0.0,max=1.0"`
}

// DefaultConfidenceBasedConfig returns a ConfidenceBasedConfig with no
// minimum score threshold.
func DefaultConfidenceBasedConfig() ConfidenceBasedConfig {
	return ConfidenceBasedConfig{MinScore: 0.0}
}

// NewConfidenceBasedStrategy creates a ConfidenceBasedStrategy with the
// given name and configuration.
func NewConfidenceBasedStrategy(name string, config ConfidenceBasedConfig) (*ConfidenceBasedStrategy, error) {
	if name == "" {
		return nil, ErrEmptyStrategyName
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &ConfidenceBasedStrategy{name: name, config: config}, nil
}

// Name returns the unique identifier for this strategy instance.
func (s *ConfidenceBasedStrategy) Name() string { return s.name }

// Aggregate selects the successful result with the highest weighted
// confidence score. The aggregate confidence is that score, clamped to
// [0, 1] in case a learned weight above 1.0 pushes it over.
//
// On equal scores the earlier result in registration order wins, keeping
// selection deterministic.
func (s *ConfidenceBasedStrategy) Aggregate(
	ctx context.Context,
	results []domain.WorkerResult,
	weights map[string]float64,
) (*domain.AggregatedResult, error) {
	valid := filterSuccessful(results)
	if len(valid) == 0 {
		return nil, fmt.Errorf("%s: %w", s.name, domain.ErrNoValidResults)
	}

	applied := make(map[string]float64, len(valid))
	best := valid[0]
	bestScore := -1.0
	for _, r := range valid {
		w := weightFor(weights, r.WorkerID)
		applied[r.WorkerID] = w
		score := w * r.Confidence
		if score > bestScore {
			bestScore = score
			best = r
		}
	}

	if bestScore < s.config.MinScore {
		return nil, fmt.Errorf("%w: best=%.3f, minimum=%.3f",
			ErrBelowMinScore, bestScore, s.config.MinScore)
	}

	return &domain.AggregatedResult{
		Value:          best.Value,
		Confidence:     clamp01(bestScore),
		AllResults:     results,
		WeightsApplied: applied,
		Method:         MethodConfidenceBased,
		ValidWorkers:   len(valid),
		TotalWorkers:   len(results),
		Metadata: map[string]any{
			"selected_worker":     best.WorkerID,
			"weighted_confidence": bestScore,
		},
		Timestamp: time.Now().UTC(),
	}, nil
}

// Validate checks if the strategy is properly configured.
func (s *ConfidenceBasedStrategy) Validate() error {
	if err := validate.Struct(s.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// UnmarshalParameters deserializes YAML configuration parameters and updates
// the strategy's configuration. Not safe for use concurrently with
// Aggregate.
func (s *ConfidenceBasedStrategy) UnmarshalParameters(params yaml.Node) error {
	var config ConfidenceBasedConfig
	if err := params.Decode(&config); err != nil {
		return fmt.Errorf("failed to decode parameters: %w", err)
	}
	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("parameter validation failed: %w", err)
	}
	s.config = config
	return nil
}

// NewConfidenceBasedFromConfig creates a ConfidenceBasedStrategy from a
// configuration map. This is the boundary adapter for YAML/JSON
// configuration.
func NewConfidenceBasedFromConfig(id string, config map[string]any) (ports.AggregationStrategy, error) {
	data, err := yaml.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	cfg := DefaultConfidenceBasedConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return NewConfidenceBasedStrategy(id, cfg)
}
