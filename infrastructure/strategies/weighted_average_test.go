package strategies

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-ensemble/internal/domain"
)

func TestNewWeightedAverageStrategy(t *testing.T) {
	t.Run("creates with valid name", func(t *testing.T) {
		s, err := NewWeightedAverageStrategy("avg", DefaultWeightedAverageConfig())
		require.NoError(t, err)
		assert.Equal(t, "avg", s.Name())
	})

	t.Run("rejects empty name", func(t *testing.T) {
		_, err := NewWeightedAverageStrategy("", DefaultWeightedAverageConfig())
		assert.ErrorIs(t, err, ErrEmptyStrategyName)
	})
}

func TestWeightedAverageStrategy_Aggregate(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name               string
		config             WeightedAverageConfig
		results            []domain.WorkerResult
		weights            map[string]float64
		expectedValue      float64
		expectedConfidence float64
	}{
		{
			name:   "equal weights and confidences yield plain mean",
			config: WeightedAverageConfig{UseConfidence: true},
			results: []domain.WorkerResult{
				successResult(t, "w1", 10.0, 0.9),
				successResult(t, "w2", 20.0, 0.9),
				successResult(t, "w3", 30.0, 0.9),
				successResult(t, "w4", 40.0, 0.9),
				successResult(t, "w5", 40.0, 0.9),
			},
			expectedValue:      28.0,
			expectedConfidence: 0.9,
		},
		{
			name:   "learned weights shift the mean",
			config: WeightedAverageConfig{UseConfidence: false},
			results: []domain.WorkerResult{
				successResult(t, "trusted", 10.0, 0.5),
				successResult(t, "doubted", 20.0, 0.5),
			},
			weights:            map[string]float64{"trusted": 3.0, "doubted": 1.0},
			expectedValue:      12.5,
			expectedConfidence: 0.5,
		},
		{
			name:   "confidence scaling favors certain workers",
			config: WeightedAverageConfig{UseConfidence: true},
			results: []domain.WorkerResult{
				successResult(t, "sure", 100.0, 0.8),
				successResult(t, "unsure", 0.0, 0.2),
			},
			// weights 0.8 and 0.2, value = 100*0.8 = 80,
			// confidence = 0.8*0.8 + 0.2*0.2 = 0.68.
			expectedValue:      80.0,
			expectedConfidence: 0.68,
		},
		{
			name:   "integer values are coerced",
			config: WeightedAverageConfig{UseConfidence: false},
			results: []domain.WorkerResult{
				successResult(t, "w1", 2, 1.0),
				successResult(t, "w2", int64(4), 1.0),
			},
			expectedValue:      3.0,
			expectedConfidence: 1.0,
		},
		{
			name:   "failed results are excluded from the mean",
			config: WeightedAverageConfig{UseConfidence: false},
			results: []domain.WorkerResult{
				successResult(t, "ok", 10.0, 0.9),
				domain.NewFailedResult("broken", 2, "trace-test", assert.AnError),
			},
			expectedValue:      10.0,
			expectedConfidence: 0.9,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewWeightedAverageStrategy("avg", tt.config)
			require.NoError(t, err)

			agg, err := s.Aggregate(ctx, tt.results, tt.weights)
			require.NoError(t, err)

			assert.InDelta(t, tt.expectedValue, agg.Value.(float64), 1e-9)
			assert.InDelta(t, tt.expectedConfidence, agg.Confidence, 1e-9)
			assert.Equal(t, MethodWeightedAverage, agg.Method)
			assert.Equal(t, len(tt.results), agg.TotalWorkers)
		})
	}
}

func TestWeightedAverageStrategy_Aggregate_Errors(t *testing.T) {
	ctx := context.Background()
	s, err := NewWeightedAverageStrategy("avg", DefaultWeightedAverageConfig())
	require.NoError(t, err)

	t.Run("all failed results", func(t *testing.T) {
		results := []domain.WorkerResult{
			domain.NewFailedResult("a", 1, "trace-test", assert.AnError),
			domain.NewTimeoutResult("b", 30000, "trace-test"),
		}
		_, err := s.Aggregate(ctx, results, nil)
		assert.ErrorIs(t, err, domain.ErrNoValidResults)
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := s.Aggregate(ctx, nil, nil)
		assert.ErrorIs(t, err, domain.ErrNoValidResults)
	})

	t.Run("zero total weight", func(t *testing.T) {
		results := []domain.WorkerResult{
			successResult(t, "a", 10.0, 0.5),
		}
		_, err := s.Aggregate(ctx, results, map[string]float64{"a": 0})
		assert.ErrorIs(t, err, domain.ErrNoValidResults)
	})

	t.Run("non numeric value", func(t *testing.T) {
		results := []domain.WorkerResult{
			successResult(t, "a", "categorical", 0.5),
		}
		_, err := s.Aggregate(ctx, results, nil)
		assert.ErrorIs(t, err, ErrNonNumericValue)
	})
}

func TestWeightedAverageStrategy_WeightsApplied_EffectiveWeights(t *testing.T) {
	t.Run("raw learned weights without confidence scaling", func(t *testing.T) {
		s, err := NewWeightedAverageStrategy("avg", WeightedAverageConfig{UseConfidence: false})
		require.NoError(t, err)

		results := []domain.WorkerResult{
			successResult(t, "a", 1.0, 1.0),
			successResult(t, "b", 2.0, 1.0),
		}
		agg, err := s.Aggregate(context.Background(), results, map[string]float64{"a": 1, "b": 3})
		require.NoError(t, err)

		assert.InDelta(t, 1.0, agg.WeightsApplied["a"], 1e-9)
		assert.InDelta(t, 3.0, agg.WeightsApplied["b"], 1e-9)
		assert.InDelta(t, 4.0, agg.Metadata["total_weight"].(float64), 1e-9)
	})

	t.Run("confidence scales the recorded weights", func(t *testing.T) {
		s, err := NewWeightedAverageStrategy("avg", WeightedAverageConfig{UseConfidence: true})
		require.NoError(t, err)

		results := []domain.WorkerResult{
			successResult(t, "a", 1.0, 0.5),
			successResult(t, "b", 2.0, 0.5),
		}
		agg, err := s.Aggregate(context.Background(), results, map[string]float64{"a": 1, "b": 3})
		require.NoError(t, err)

		assert.InDelta(t, 0.5, agg.WeightsApplied["a"], 1e-9)
		assert.InDelta(t, 1.5, agg.WeightsApplied["b"], 1e-9)
	})
}

func TestNewWeightedAverageFromConfig(t *testing.T) {
	t.Run("defaults apply with empty config", func(t *testing.T) {
		s, err := NewWeightedAverageFromConfig("avg", map[string]any{})
		require.NoError(t, err)
		assert.Equal(t, "avg", s.Name())
	})

	t.Run("overrides use_confidence", func(t *testing.T) {
		s, err := NewWeightedAverageFromConfig("avg", map[string]any{
			"use_confidence": false,
		})
		require.NoError(t, err)

		results := []domain.WorkerResult{
			successResult(t, "a", 10.0, 0.1),
			successResult(t, "b", 20.0, 0.9),
		}
		agg, err := s.Aggregate(context.Background(), results, nil)
		require.NoError(t, err)
		// Without confidence scaling both workers pull equally.
		assert.InDelta(t, 15.0, agg.Value.(float64), 1e-9)
	})
}
