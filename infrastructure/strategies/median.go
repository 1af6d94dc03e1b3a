package strategies

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-ensemble/internal/domain"
	"github.com/ahrav/go-ensemble/internal/ports"
)

var _ ports.AggregationStrategy = (*MedianStrategy)(nil)

// MethodMedian is the strategy tag recorded in results produced by
// MedianStrategy.
const MethodMedian = "median"

// MedianStrategy combines numeric worker values using the statistical
// median, which makes the consensus robust against outlier workers. The
// aggregate confidence is derived from the Median Absolute Deviation (MAD):
// tightly clustered values yield high confidence, dispersed values low.
//
// Learned weights are not used in the computation itself (the median is an
// unweighted order statistic) but are still reported in WeightsApplied for
// audit symmetry with the other strategies.
//
// The strategy is stateless and safe for concurrent use.
type MedianStrategy struct {
	// name is the unique identifier for this strategy instance.
	name string
	// config contains validated configuration parameters, immutable after
	// creation.
	config MedianConfig
}

// MedianConfig defines the configuration parameters for the MedianStrategy.
type MedianConfig struct {
	// Epsilon guards the dispersion ratio MAD / (|median| + Epsilon)
	// against division by zero when the median itself is zero.
	//
	// Must be positive. Default: 1e-9.
	Epsilon float64 `yaml:"epsilon" json:"epsilon" validate:"gt=0"`
}

// DefaultMedianConfig returns a MedianConfig with the standard epsilon
// guard.
func DefaultMedianConfig() MedianConfig {
	return MedianConfig{Epsilon: 1e-9}
}

// NewMedianStrategy creates a MedianStrategy with the given name and
// configuration.
func NewMedianStrategy(name string, config MedianConfig) (*MedianStrategy, error) {
	if name == "" {
		return nil, ErrEmptyStrategyName
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &MedianStrategy{name: name, config: config}, nil
}

// Name returns the unique identifier for this strategy instance.
func (s *MedianStrategy) Name() string { return s.name }

// Aggregate computes the median of all successful numeric values and a
// dispersion-derived confidence:
//
//	dispersion = MAD / (|median| + epsilon)
//	confidence = clamp01(1 - dispersion)
//
// where MAD is the median of absolute deviations from the median. When all
// workers agree exactly the MAD is zero and confidence is 1.
//
// Aggregation fails with domain.ErrNoValidResults when no successful results
// remain.
func (s *MedianStrategy) Aggregate(
	ctx context.Context,
	results []domain.WorkerResult,
	weights map[string]float64,
) (*domain.AggregatedResult, error) {
	valid := filterSuccessful(results)
	if len(valid) == 0 {
		return nil, fmt.Errorf("%s: %w", s.name, domain.ErrNoValidResults)
	}

	values := make([]float64, len(valid))
	applied := make(map[string]float64, len(valid))
	for i, r := range valid {
		v, err := toFloat64(r.Value)
		if err != nil {
			return nil, fmt.Errorf("%s: worker %q: %w", s.name, r.WorkerID, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%s: worker %q: invalid value %f", s.name, r.WorkerID, v)
		}
		values[i] = v
		applied[r.WorkerID] = weightFor(weights, r.WorkerID)
	}

	median := calculateMedian(values)

	deviations := make([]float64, len(values))
	for i, v := range values {
		deviations[i] = math.Abs(v - median)
	}
	mad := calculateMedian(deviations)

	dispersion := mad / (math.Abs(median) + s.config.Epsilon)
	confidence := clamp01(1 - dispersion)

	minV, maxV := values[0], values[0]
	for _, v := range values[1:] {
		minV = math.Min(minV, v)
		maxV = math.Max(maxV, v)
	}

	return &domain.AggregatedResult{
		Value:          median,
		Confidence:     confidence,
		AllResults:     results,
		WeightsApplied: applied,
		Method:         MethodMedian,
		ValidWorkers:   len(valid),
		TotalWorkers:   len(results),
		Metadata: map[string]any{
			"mad":         mad,
			"dispersion":  dispersion,
			"value_range": maxV - minV,
		},
		Timestamp: time.Now().UTC(),
	}, nil
}

// calculateMedian computes the statistical median of a slice of values:
// the middle value for odd counts, the arithmetic mean of the two middle
// values for even counts. The input slice is copied before sorting so the
// caller's ordering is preserved.
func calculateMedian(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Validate checks if the strategy is properly configured.
func (s *MedianStrategy) Validate() error {
	if err := validate.Struct(s.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// UnmarshalParameters deserializes YAML configuration parameters and updates
// the strategy's configuration. Not safe for use concurrently with
// Aggregate.
func (s *MedianStrategy) UnmarshalParameters(params yaml.Node) error {
	var config MedianConfig
	if err := params.Decode(&config); err != nil {
		return fmt.Errorf("failed to decode parameters: %w", err)
	}
	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("parameter validation failed: %w", err)
	}
	s.config = config
	return nil
}

// NewMedianFromConfig creates a MedianStrategy from a configuration map.
// This is the boundary adapter for YAML/JSON configuration.
func NewMedianFromConfig(id string, config map[string]any) (ports.AggregationStrategy, error) {
	data, err := yaml.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	cfg := DefaultMedianConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return NewMedianStrategy(id, cfg)
}
