package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-ensemble/infrastructure/strategies"
	"github.com/ahrav/go-ensemble/internal/domain"
	"github.com/ahrav/go-ensemble/internal/ports"
)

func TestStrategyRegistry_Builtins(t *testing.T) {
	registry := NewStrategyRegistry()

	builtins := []string{
		strategies.MethodWeightedAverage,
		strategies.MethodMajorityVoting,
		strategies.MethodConfidenceBased,
		strategies.MethodMedian,
	}
	assert.ElementsMatch(t, builtins, registry.Types())

	for _, name := range builtins {
		t.Run(name, func(t *testing.T) {
			s, err := registry.Create(name, "instance", nil)
			require.NoError(t, err)
			assert.Equal(t, "instance", s.Name())
		})
	}
}

func TestStrategyRegistry_Create(t *testing.T) {
	registry := NewStrategyRegistry()

	t.Run("unknown type", func(t *testing.T) {
		_, err := registry.Create("mystery", "x", nil)
		assert.Error(t, err)
	})

	t.Run("parameters are forwarded", func(t *testing.T) {
		s, err := registry.Create(strategies.MethodConfidenceBased, "picky",
			map[string]any{"min_score": 0.9})
		require.NoError(t, err)

		r, err := domain.NewWorkerResult("a", 1.0, 0.5, 1, "trace-test")
		require.NoError(t, err)
		_, err = s.Aggregate(context.Background(), []domain.WorkerResult{r}, nil)
		assert.ErrorIs(t, err, strategies.ErrBelowMinScore)
	})

	t.Run("invalid parameters fail creation", func(t *testing.T) {
		_, err := registry.Create(strategies.MethodMedian, "x",
			map[string]any{"epsilon": -1.0})
		assert.Error(t, err)
	})
}

func TestStrategyRegistry_Register(t *testing.T) {
	registry := NewStrategyRegistry()

	custom := func(id string, config map[string]any) (ports.AggregationStrategy, error) {
		return strategies.NewMedianStrategy(id, strategies.DefaultMedianConfig())
	}

	require.NoError(t, registry.Register("custom", custom))
	s, err := registry.Create("custom", "mine", nil)
	require.NoError(t, err)
	assert.Equal(t, "mine", s.Name())

	t.Run("duplicate tag rejected", func(t *testing.T) {
		assert.Error(t, registry.Register("custom", custom))
		assert.Error(t, registry.Register(strategies.MethodMedian, custom))
	})

	t.Run("empty tag rejected", func(t *testing.T) {
		assert.Error(t, registry.Register("", custom))
	})

	t.Run("nil factory rejected", func(t *testing.T) {
		assert.Error(t, registry.Register("another", nil))
	})
}
