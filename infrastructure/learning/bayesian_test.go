package learning

import (
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-ensemble/internal/domain"
)

// metricWith builds a PerformanceMetric with the given accuracy and
// confidence.
func metricWith(workerID string, accuracy, confidence float64) domain.PerformanceMetric {
	return domain.PerformanceMetric{
		WorkerID:   workerID,
		Accuracy:   accuracy,
		Confidence: confidence,
		Timestamp:  time.Now().UTC(),
	}
}

func TestNewBayesianLearner(t *testing.T) {
	tests := []struct {
		name    string
		config  BayesianConfig
		wantErr bool
	}{
		{name: "default config", config: DefaultBayesianConfig()},
		{name: "zero alpha rejected", config: BayesianConfig{Alpha: 0, PriorWeight: 1}, wantErr: true},
		{name: "alpha above one rejected", config: BayesianConfig{Alpha: 1.5, PriorWeight: 1}, wantErr: true},
		{name: "zero prior rejected", config: BayesianConfig{Alpha: 0.1, PriorWeight: 0}, wantErr: true},
		{
			name: "min weight above prior rejected",
			config: BayesianConfig{
				Alpha: 0.1, PriorWeight: 0.5, MinWeight: 0.9,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBayesianLearner(tt.config, nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestBayesianLearner_Weight_Prior(t *testing.T) {
	l, err := NewBayesianLearner(DefaultBayesianConfig(), nil)
	require.NoError(t, err)

	assert.Equal(t, 1.0, l.Weight("never-seen"))
	assert.Empty(t, l.AllWeights())
}

func TestBayesianLearner_UpdateWeight_EMA(t *testing.T) {
	config := BayesianConfig{
		Alpha:             0.5,
		PriorWeight:       1.0,
		MinWeight:         0.01,
		ConfidenceScaling: false,
	}
	l, err := NewBayesianLearner(config, nil)
	require.NoError(t, err)

	// w = 1.0*(1-0.5) + 0.2*0.5 = 0.6
	w, err := l.UpdateWeight("w1", metricWith("w1", 0.2, 1.0))
	require.NoError(t, err)
	assert.InDelta(t, 0.6, w, 1e-9)

	// w = 0.6*0.5 + 0.2*0.5 = 0.4
	w, err = l.UpdateWeight("w1", metricWith("w1", 0.2, 1.0))
	require.NoError(t, err)
	assert.InDelta(t, 0.4, w, 1e-9)
}

func TestBayesianLearner_ConfidenceScaling(t *testing.T) {
	config := BayesianConfig{
		Alpha:             0.5,
		PriorWeight:       1.0,
		MinWeight:         0.01,
		ConfidenceScaling: true,
	}
	l, err := NewBayesianLearner(config, nil)
	require.NoError(t, err)

	// alpha_eff = 0.5 * 0.4 = 0.2, w = 1.0*0.8 + 0.0*0.2 = 0.8
	w, err := l.UpdateWeight("w1", metricWith("w1", 0.0, 0.4))
	require.NoError(t, err)
	assert.InDelta(t, 0.8, w, 1e-9)
}

func TestBayesianLearner_MinEffectiveAlpha(t *testing.T) {
	config := BayesianConfig{
		Alpha:             0.5,
		PriorWeight:       1.0,
		MinWeight:         0.01,
		ConfidenceScaling: true,
		MinEffectiveAlpha: 0.1,
	}
	l, err := NewBayesianLearner(config, nil)
	require.NoError(t, err)

	// Zero-confidence feedback would stall learning entirely without the
	// floor: alpha_eff = max(0.5*0, 0.1) = 0.1, w = 1.0*0.9 + 0.0*0.1 = 0.9.
	w, err := l.UpdateWeight("w1", metricWith("w1", 0.0, 0.0))
	require.NoError(t, err)
	assert.InDelta(t, 0.9, w, 1e-9)
}

func TestBayesianLearner_Convergence(t *testing.T) {
	// A consistently accurate worker's weight must approach 1.0
	// monotonically from below.
	config := DefaultBayesianConfig()
	config.PriorWeight = 0.5
	config.ConfidenceScaling = false
	l, err := NewBayesianLearner(config, nil)
	require.NoError(t, err)

	previous := l.Weight("good")
	for i := 0; i < 100; i++ {
		w, err := l.UpdateWeight("good", metricWith("good", 1.0, 1.0))
		require.NoError(t, err)
		assert.Greater(t, w, previous, "weight must strictly increase toward 1.0 at step %d", i)
		assert.LessOrEqual(t, w, 1.0)
		previous = w
	}
	assert.InDelta(t, 1.0, previous, 0.001)
}

func TestBayesianLearner_MinWeightFloor(t *testing.T) {
	config := BayesianConfig{
		Alpha:             0.9,
		PriorWeight:       1.0,
		MinWeight:         0.05,
		ConfidenceScaling: false,
	}
	l, err := NewBayesianLearner(config, nil)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		_, err := l.UpdateWeight("bad", metricWith("bad", 0.0, 1.0))
		require.NoError(t, err)
	}
	assert.Equal(t, 0.05, l.Weight("bad"))
}

func TestBayesianLearner_UpdateWeight_InvalidMetrics(t *testing.T) {
	l, err := NewBayesianLearner(DefaultBayesianConfig(), nil)
	require.NoError(t, err)

	tests := []struct {
		name   string
		metric domain.PerformanceMetric
	}{
		{name: "negative accuracy", metric: metricWith("w", -0.1, 0.5)},
		{name: "accuracy above one", metric: metricWith("w", 1.1, 0.5)},
		{name: "NaN accuracy", metric: metricWith("w", math.NaN(), 0.5)},
		{name: "negative confidence", metric: metricWith("w", 0.5, -0.1)},
		{name: "confidence above one", metric: metricWith("w", 0.5, 1.1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.UpdateWeight("w", tt.metric)
			assert.ErrorIs(t, err, domain.ErrInvalidMetric)
		})
	}
	// Rejected updates must not touch the weight.
	assert.Equal(t, 1.0, l.Weight("w"))
}

func TestBayesianLearner_NormalizedWeights(t *testing.T) {
	config := DefaultBayesianConfig()
	config.ConfidenceScaling = false
	l, err := NewBayesianLearner(config, nil)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		_, err := l.UpdateWeight("strong", metricWith("strong", 1.0, 1.0))
		require.NoError(t, err)
		_, err = l.UpdateWeight("weak", metricWith("weak", 0.0, 1.0))
		require.NoError(t, err)
	}

	normalized := l.NormalizedWeights([]string{"strong", "weak", "unseen"})
	require.Len(t, normalized, 3)

	var sum float64
	for _, w := range normalized {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Greater(t, normalized["strong"], normalized["weak"])
	assert.Greater(t, normalized["unseen"], 0.0)
}

func TestBayesianLearner_NormalizedWeights_EmptyAndNil(t *testing.T) {
	l, err := NewBayesianLearner(DefaultBayesianConfig(), nil)
	require.NoError(t, err)

	assert.Empty(t, l.NormalizedWeights([]string{}))
	assert.Empty(t, l.NormalizedWeights(nil))
}

func TestBayesianLearner_BatchUpdate(t *testing.T) {
	config := DefaultBayesianConfig()
	config.ConfidenceScaling = false
	l, err := NewBayesianLearner(config, nil)
	require.NoError(t, err)

	updated, err := l.BatchUpdate(map[string][]domain.PerformanceMetric{
		"a": {metricWith("a", 1.0, 1.0), metricWith("a", 1.0, 1.0)},
		"b": {metricWith("b", 0.0, 1.0)},
	})
	require.NoError(t, err)
	require.Len(t, updated, 2)
	assert.InDelta(t, l.Weight("a"), updated["a"], 1e-9)
	assert.InDelta(t, l.Weight("b"), updated["b"], 1e-9)

	t.Run("invalid metric aborts batch", func(t *testing.T) {
		_, err := l.BatchUpdate(map[string][]domain.PerformanceMetric{
			"c": {metricWith("c", 2.0, 1.0)},
		})
		assert.ErrorIs(t, err, domain.ErrInvalidMetric)
	})
}

func TestBayesianLearner_Reset(t *testing.T) {
	l, err := NewBayesianLearner(DefaultBayesianConfig(), nil)
	require.NoError(t, err)

	_, err = l.UpdateWeight("a", metricWith("a", 0.2, 1.0))
	require.NoError(t, err)
	_, err = l.UpdateWeight("b", metricWith("b", 0.2, 1.0))
	require.NoError(t, err)

	t.Run("reset one worker", func(t *testing.T) {
		l.ResetWorker("a")
		assert.Equal(t, 1.0, l.Weight("a"))
		assert.NotEqual(t, 1.0, l.Weight("b"))
		_, ok := l.Statistics("a")
		assert.False(t, ok)
	})

	t.Run("reset everything", func(t *testing.T) {
		l.Reset()
		assert.Empty(t, l.AllWeights())
		assert.Equal(t, 1.0, l.Weight("b"))
	})
}

func TestBayesianLearner_Statistics(t *testing.T) {
	config := DefaultBayesianConfig()
	config.ConfidenceScaling = false
	l, err := NewBayesianLearner(config, nil)
	require.NoError(t, err)

	t.Run("no history", func(t *testing.T) {
		_, ok := l.Statistics("unseen")
		assert.False(t, ok)
	})

	for i := 0; i < 15; i++ {
		accuracy := 0.5
		if i >= 5 {
			accuracy = 1.0 // last 10 observations are perfect
		}
		_, err := l.UpdateWeight("w", metricWith("w", accuracy, 1.0))
		require.NoError(t, err)
	}

	stats, ok := l.Statistics("w")
	require.True(t, ok)
	assert.Equal(t, "w", stats.WorkerID)
	assert.Equal(t, 15, stats.UpdateCount)
	assert.InDelta(t, (5*0.5+10*1.0)/15, stats.MeanAccuracy, 1e-9)
	assert.InDelta(t, 1.0, stats.RecentAccuracy, 1e-9)
	assert.Greater(t, stats.StdAccuracy, 0.0)
	assert.Equal(t, l.Weight("w"), stats.CurrentWeight)
}

func TestBayesianLearner_SaveLoad_RoundTrip(t *testing.T) {
	config := DefaultBayesianConfig()
	config.ConfidenceScaling = false
	l, err := NewBayesianLearner(config, nil)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err := l.UpdateWeight("a", metricWith("a", 0.9, 1.0))
		require.NoError(t, err)
		_, err = l.UpdateWeight("b", metricWith("b", 0.3, 1.0))
		require.NoError(t, err)
	}
	original := l.AllWeights()

	data, err := l.Save()
	require.NoError(t, err)

	restored, err := NewBayesianLearner(config, nil)
	require.NoError(t, err)
	require.NoError(t, restored.Load(data))

	assert.Equal(t, original, restored.AllWeights())
}

func TestBayesianLearner_Load_Errors(t *testing.T) {
	l, err := NewBayesianLearner(DefaultBayesianConfig(), nil)
	require.NoError(t, err)

	assert.Error(t, l.Load([]byte("not json")))
}

func TestBayesianLearner_Load_ClampsToMinWeight(t *testing.T) {
	config := DefaultBayesianConfig()
	config.MinWeight = 0.1
	l, err := NewBayesianLearner(config, nil)
	require.NoError(t, err)

	require.NoError(t, l.Load([]byte(`{"weights": {"tiny": 0.001}, "alpha": 0.1}`)))
	assert.Equal(t, 0.1, l.Weight("tiny"))
}

func TestBayesianLearner_SaveLoadFile(t *testing.T) {
	l, err := NewBayesianLearner(DefaultBayesianConfig(), nil)
	require.NoError(t, err)
	_, err = l.UpdateWeight("a", metricWith("a", 0.7, 0.9))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "weights.json")
	require.NoError(t, l.SaveFile(path))

	restored, err := NewBayesianLearner(DefaultBayesianConfig(), nil)
	require.NoError(t, err)
	require.NoError(t, restored.LoadFile(path))
	assert.Equal(t, l.AllWeights(), restored.AllWeights())

	t.Run("missing file", func(t *testing.T) {
		assert.Error(t, restored.LoadFile(filepath.Join(t.TempDir(), "absent.json")))
	})
}

func TestBayesianLearner_ConcurrentUpdates(t *testing.T) {
	config := DefaultBayesianConfig()
	config.ConfidenceScaling = false
	l, err := NewBayesianLearner(config, nil)
	require.NoError(t, err)

	workers := []string{"w1", "w2", "w3", "w4"}
	var wg sync.WaitGroup
	for _, id := range workers {
		for i := 0; i < 25; i++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_, err := l.UpdateWeight(id, metricWith(id, 1.0, 1.0))
				assert.NoError(t, err)
			}(id)
		}
	}
	wg.Wait()

	for _, id := range workers {
		stats, ok := l.Statistics(id)
		require.True(t, ok)
		assert.Equal(t, 25, stats.UpdateCount)
		assert.Greater(t, l.Weight(id), 0.9)
	}
}

func TestMeanStd(t *testing.T) {
	mean, std := meanStd([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.InDelta(t, 5.0, mean, 1e-9)
	assert.InDelta(t, 2.0, std, 1e-9)

	mean, std = meanStd(nil)
	assert.Zero(t, mean)
	assert.Zero(t, std)
}
