package application

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-ensemble/infrastructure/learning"
	"github.com/ahrav/go-ensemble/internal/domain"
)

const sampleConfig = `
version: "1"
pool:
  max_concurrency: 8
  quarantine:
    enabled: true
    min_requests: 5
    failure_ratio: 0.6
    cooldown_seconds: 30
workers:
  - worker_id: scorer-a
    worker_type: heuristic
    enabled: true
    timeout_seconds: 10
    retry_attempts: 2
  - worker_id: scorer-b
    worker_type: heuristic
    enabled: true
    timeout_seconds: 10
strategy:
  id: consensus
  type: weighted_average
  parameters:
    use_confidence: true
learner:
  type: bayesian
  bayesian:
    alpha: 0.2
    prior_weight: 1.0
    min_weight: 0.05
    confidence_scaling: true
`

func TestLoadEnsembleConfig(t *testing.T) {
	t.Run("full document", func(t *testing.T) {
		config, err := LoadEnsembleConfig([]byte(sampleConfig))
		require.NoError(t, err)

		assert.Equal(t, "1", config.Version)
		assert.Equal(t, 8, config.Pool.MaxConcurrency)
		require.Len(t, config.Workers, 2)
		assert.Equal(t, "scorer-a", config.Workers[0].WorkerID)
		assert.Equal(t, 2, config.Workers[0].RetryAttempts)
		assert.Equal(t, "weighted_average", config.Strategy.Type)
		require.NotNil(t, config.Learner)
		assert.Equal(t, 0.2, config.Learner.Bayesian.Alpha)
	})

	t.Run("declared worker defaults to enabled", func(t *testing.T) {
		config, err := LoadEnsembleConfig([]byte(`
version: "1"
workers:
  - worker_id: scorer-a
    worker_type: heuristic
  - worker_id: scorer-b
    worker_type: heuristic
    enabled: false
strategy:
  id: x
  type: median
`))
		require.NoError(t, err)
		require.Len(t, config.Workers, 2)
		assert.True(t, config.Workers[0].Enabled,
			"a worker omitting the enabled key must participate in execution")
		assert.Equal(t, 30.0, config.Workers[0].TimeoutSeconds)
		assert.Equal(t, 3, config.Workers[0].RetryAttempts)
		assert.False(t, config.Workers[1].Enabled)
	})

	t.Run("partial learner section keeps defaults for omitted fields", func(t *testing.T) {
		config, err := LoadEnsembleConfig([]byte(`
version: "1"
strategy:
  id: x
  type: median
learner:
  type: bayesian
  bayesian:
    alpha: 0.2
    prior_weight: 1.0
    confidence_scaling: true
`))
		require.NoError(t, err)

		defaults := learning.DefaultBayesianConfig()
		assert.Equal(t, 0.2, config.Learner.Bayesian.Alpha)
		assert.Equal(t, defaults.MinEffectiveAlpha, config.Learner.Bayesian.MinEffectiveAlpha)
		assert.Equal(t, defaults.MinWeight, config.Learner.Bayesian.MinWeight)
	})

	t.Run("missing version rejected", func(t *testing.T) {
		_, err := LoadEnsembleConfig([]byte(`
strategy:
  id: x
  type: median
`))
		assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	})

	t.Run("unknown strategy type rejected", func(t *testing.T) {
		_, err := LoadEnsembleConfig([]byte(`
version: "1"
strategy:
  id: x
  type: mystery
`))
		assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	})

	t.Run("invalid worker config rejected", func(t *testing.T) {
		_, err := LoadEnsembleConfig([]byte(`
version: "1"
workers:
  - worker_id: ""
    worker_type: heuristic
    timeout_seconds: 10
strategy:
  id: x
  type: median
`))
		assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	})

	t.Run("malformed yaml rejected", func(t *testing.T) {
		_, err := LoadEnsembleConfig([]byte("version: [unterminated"))
		assert.Error(t, err)
	})
}

func TestEnsembleConfig_BuildPool(t *testing.T) {
	config, err := LoadEnsembleConfig([]byte(sampleConfig))
	require.NoError(t, err)

	pool, err := config.BuildPool()
	require.NoError(t, err)
	assert.Empty(t, pool.WorkerIDs(), "declared workers need implementations registered by the caller")
}

func TestEnsembleConfig_BuildLearner(t *testing.T) {
	t.Run("no learner configured", func(t *testing.T) {
		config, err := LoadEnsembleConfig([]byte(`
version: "1"
strategy:
  id: x
  type: median
`))
		require.NoError(t, err)

		learner, err := config.BuildLearner(nil)
		require.NoError(t, err)
		assert.Nil(t, learner)
	})

	t.Run("bayesian learner", func(t *testing.T) {
		config, err := LoadEnsembleConfig([]byte(sampleConfig))
		require.NoError(t, err)

		learner, err := config.BuildLearner(nil)
		require.NoError(t, err)
		require.NotNil(t, learner)
		assert.Equal(t, 1.0, learner.Weight("anyone"))
	})

	t.Run("partial bayesian section keeps the learning-rate floor", func(t *testing.T) {
		config, err := LoadEnsembleConfig([]byte(`
version: "1"
strategy:
  id: x
  type: median
learner:
  type: bayesian
  bayesian:
    alpha: 0.2
    prior_weight: 1.0
    confidence_scaling: true
`))
		require.NoError(t, err)

		learner, err := config.BuildLearner(nil)
		require.NoError(t, err)

		w := learner.Weight("scorer-a")
		for i := 0; i < 5; i++ {
			w, err = learner.UpdateWeight("scorer-a", domain.PerformanceMetric{
				WorkerID:   "scorer-a",
				Accuracy:   0.0,
				Confidence: 0.0,
			})
			require.NoError(t, err)
		}
		assert.Less(t, w, 1.0,
			"zero-confidence feedback must still move the weight")
	})

	t.Run("partial adaptive section keeps defaults", func(t *testing.T) {
		config, err := LoadEnsembleConfig([]byte(`
version: "1"
strategy:
  id: x
  type: median
learner:
  type: adaptive
  adaptive:
    min_alpha: 0.05
`))
		require.NoError(t, err)

		defaults := learning.DefaultAdaptiveConfig()
		assert.Equal(t, 0.05, config.Learner.Adaptive.MinAlpha)
		assert.Equal(t, defaults.MaxAlpha, config.Learner.Adaptive.MaxAlpha)
		assert.Equal(t, defaults.StabilityWindow, config.Learner.Adaptive.StabilityWindow)

		learner, err := config.BuildLearner(nil)
		require.NoError(t, err)
		require.NotNil(t, learner)
	})

	t.Run("adaptive learner with zero config takes defaults", func(t *testing.T) {
		config, err := LoadEnsembleConfig([]byte(`
version: "1"
strategy:
  id: x
  type: median
learner:
  type: adaptive
`))
		require.NoError(t, err)

		learner, err := config.BuildLearner(nil)
		require.NoError(t, err)
		require.NotNil(t, learner)
	})

	t.Run("state path restores persisted weights", func(t *testing.T) {
		source, err := learning.NewBayesianLearner(learning.DefaultBayesianConfig(), nil)
		require.NoError(t, err)
		_, err = source.UpdateWeight("scorer-a", domain.PerformanceMetric{
			WorkerID: "scorer-a", Accuracy: 0.0, Confidence: 1.0,
		})
		require.NoError(t, err)

		path := filepath.Join(t.TempDir(), "weights.json")
		require.NoError(t, source.SaveFile(path))

		config, err := LoadEnsembleConfig([]byte(`
version: "1"
strategy:
  id: x
  type: median
learner:
  type: bayesian
  state_path: ` + path + `
`))
		require.NoError(t, err)

		learner, err := config.BuildLearner(nil)
		require.NoError(t, err)
		assert.Equal(t, source.AllWeights(), learner.AllWeights())
	})

	t.Run("missing state file is not an error", func(t *testing.T) {
		config, err := LoadEnsembleConfig([]byte(`
version: "1"
strategy:
  id: x
  type: median
learner:
  type: bayesian
  state_path: ` + filepath.Join(t.TempDir(), "absent.json") + `
`))
		require.NoError(t, err)

		learner, err := config.BuildLearner(nil)
		require.NoError(t, err)
		assert.Empty(t, learner.AllWeights())
	})
}

func TestEnsembleConfig_BuildAggregator(t *testing.T) {
	config, err := LoadEnsembleConfig([]byte(sampleConfig))
	require.NoError(t, err)

	agg, err := config.BuildAggregator(nil, nil)
	require.NoError(t, err)

	r1, err := domain.NewWorkerResult("scorer-a", 10.0, 0.9, 1, "trace-test")
	require.NoError(t, err)
	r2, err := domain.NewWorkerResult("scorer-b", 20.0, 0.9, 1, "trace-test")
	require.NoError(t, err)

	out, err := agg.Aggregate(context.Background(), []domain.WorkerResult{r1, r2})
	require.NoError(t, err)
	assert.InDelta(t, 15.0, out.Value.(float64), 1e-9)

	t.Run("bad strategy parameters", func(t *testing.T) {
		bad, err := LoadEnsembleConfig([]byte(`
version: "1"
strategy:
  id: x
  type: median
  parameters:
    epsilon: -1.0
`))
		require.NoError(t, err)

		_, err = bad.BuildAggregator(nil, nil)
		assert.Error(t, err)
	})
}
