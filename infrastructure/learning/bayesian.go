// Package learning provides the weight learners that continuously
// recalibrate per-worker trust weights from observed performance. Weights
// are the multiplicative trust scores the aggregation strategies apply, and
// they persist across process restarts through JSON snapshots.
package learning

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ahrav/go-ensemble/internal/domain"
	"github.com/ahrav/go-ensemble/internal/ports"
)

var _ ports.PersistentWeightLearner = (*BayesianLearner)(nil)

// Package-level validator instance for configuration validation.
var validate = validator.New()

// maxHistoryPerWorker bounds the retained performance history so long-lived
// learners do not grow without limit. The adaptive learner only ever reads a
// trailing window, so older entries are safe to discard.
const maxHistoryPerWorker = 256

// BayesianConfig defines the configuration parameters for a BayesianLearner.
type BayesianConfig struct {
	// Alpha is the learning rate of the exponential-moving-average update,
	// in (0, 1]. Higher values adapt faster to recent performance.
	Alpha float64 `yaml:"alpha" json:"alpha" validate:"gt=0,lte=1"`

	// PriorWeight is the weight assigned to a worker on first reference,
	// before any feedback arrives.
	PriorWeight float64 `yaml:"prior_weight" json:"prior_weight" validate:"gt=0"`

	// MinWeight floors every learned weight so a worker can always recover
	// from a losing streak. Must not exceed PriorWeight.
	MinWeight float64 `yaml:"min_weight" json:"min_weight" validate:"gte=0"`

	// ConfidenceScaling attenuates the learning rate by the feedback
	// confidence: alpha_eff = alpha * confidence. Low-confidence feedback
	// then moves weights more cautiously.
	ConfidenceScaling bool `yaml:"confidence_scaling" json:"confidence_scaling"`

	// MinEffectiveAlpha floors alpha_eff so persistently low-confidence
	// feedback cannot stall learning entirely.
	MinEffectiveAlpha float64 `yaml:"min_effective_alpha" json:"min_effective_alpha" validate:"gte=0,lte=1"`
}

// DefaultBayesianConfig returns a BayesianConfig with conservative defaults:
// slow adaptation from a neutral prior, confidence scaling on, and a small
// learning-rate floor.
func DefaultBayesianConfig() BayesianConfig {
	return BayesianConfig{
		Alpha:             0.1,
		PriorWeight:       1.0,
		MinWeight:         0.01,
		ConfidenceScaling: true,
		MinEffectiveAlpha: 0.01,
	}
}

// BayesianLearner recalibrates per-worker trust weights with an
// exponential-moving-average update:
//
//	w(t+1) = w(t) * (1 - alpha_eff) + accuracy * alpha_eff
//	alpha_eff = alpha * confidence     (when confidence scaling is enabled)
//
// alpha_eff is floored at MinEffectiveAlpha and the resulting weight is
// clamped to MinWeight. With accuracy in [0, 1] the weight converges toward
// the worker's true accuracy.
//
// Concurrency: updates for the same worker are serialized through a per-key
// mutex, while updates for different workers proceed independently. Reads
// take a consistent snapshot of the weight map. This satisfies the
// single-writer-per-worker discipline the aggregator relies on without
// serializing unrelated workers' updates behind one lock.
type BayesianLearner struct {
	config BayesianConfig
	logger *zap.Logger

	// locks serializes weight updates per worker ID.
	locks keyedMutex

	// mu guards the maps below for structural access; held only briefly.
	mu          sync.RWMutex
	weights     map[string]float64
	history     map[string][]domain.PerformanceMetric
	updateCount map[string]int
}

// NewBayesianLearner creates a BayesianLearner with the given configuration.
// A nil logger defaults to a no-op logger.
func NewBayesianLearner(config BayesianConfig, logger *zap.Logger) (*BayesianLearner, error) {
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	if config.MinWeight > config.PriorWeight {
		return nil, fmt.Errorf("%w: min_weight %.3f exceeds prior_weight %.3f",
			domain.ErrInvalidConfiguration, config.MinWeight, config.PriorWeight)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BayesianLearner{
		config:      config,
		logger:      logger,
		weights:     make(map[string]float64),
		history:     make(map[string][]domain.PerformanceMetric),
		updateCount: make(map[string]int),
	}, nil
}

// Weight returns the current weight for a worker, or the configured prior
// for a worker that has never received feedback.
func (l *BayesianLearner) Weight(workerID string) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if w, ok := l.weights[workerID]; ok {
		return w
	}
	return l.config.PriorWeight
}

// AllWeights returns a snapshot copy of every learned weight.
func (l *BayesianLearner) AllWeights() map[string]float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	snapshot := make(map[string]float64, len(l.weights))
	for id, w := range l.weights {
		snapshot[id] = w
	}
	return snapshot
}

// NormalizedWeights returns weights for the given workers scaled to sum to
// 1.0. Workers without learned weights contribute their prior. When the
// total mass is zero every worker receives an equal share. A nil slice
// normalizes over all workers with learned weights.
func (l *BayesianLearner) NormalizedWeights(workerIDs []string) map[string]float64 {
	if workerIDs == nil {
		l.mu.RLock()
		workerIDs = make([]string, 0, len(l.weights))
		for id := range l.weights {
			workerIDs = append(workerIDs, id)
		}
		l.mu.RUnlock()
	}
	if len(workerIDs) == 0 {
		return map[string]float64{}
	}

	normalized := make(map[string]float64, len(workerIDs))
	var total float64
	for _, id := range workerIDs {
		w := l.Weight(id)
		normalized[id] = w
		total += w
	}
	if total == 0 {
		equal := 1.0 / float64(len(workerIDs))
		for id := range normalized {
			normalized[id] = equal
		}
		return normalized
	}
	for id, w := range normalized {
		normalized[id] = w / total
	}
	return normalized
}

// UpdateWeight folds one performance observation into the worker's weight
// using the documented EMA rule and returns the new weight. The update is
// persisted in memory immediately; call Save (or SaveFile) to make it
// durable.
func (l *BayesianLearner) UpdateWeight(workerID string, metric domain.PerformanceMetric) (float64, error) {
	return l.update(workerID, metric, l.config.Alpha)
}

// update applies the EMA rule with an explicit base learning rate. The
// adaptive learner reuses it with per-worker rates.
func (l *BayesianLearner) update(workerID string, metric domain.PerformanceMetric, alpha float64) (float64, error) {
	if metric.Accuracy < 0 || metric.Accuracy > 1 || math.IsNaN(metric.Accuracy) {
		return 0, fmt.Errorf("%w: accuracy %v out of range", domain.ErrInvalidMetric, metric.Accuracy)
	}
	if metric.Confidence < 0 || metric.Confidence > 1 || math.IsNaN(metric.Confidence) {
		return 0, fmt.Errorf("%w: confidence %v out of range", domain.ErrInvalidMetric, metric.Confidence)
	}

	unlock := l.locks.lock(workerID)
	defer unlock()

	current := l.Weight(workerID)

	effectiveAlpha := alpha
	if l.config.ConfidenceScaling {
		effectiveAlpha = alpha * metric.Confidence
	}
	if effectiveAlpha < l.config.MinEffectiveAlpha {
		effectiveAlpha = l.config.MinEffectiveAlpha
	}
	if effectiveAlpha > 1 {
		effectiveAlpha = 1
	}

	updated := current*(1-effectiveAlpha) + metric.Accuracy*effectiveAlpha
	if updated < l.config.MinWeight {
		updated = l.config.MinWeight
	}

	l.mu.Lock()
	l.weights[workerID] = updated
	h := append(l.history[workerID], metric)
	if len(h) > maxHistoryPerWorker {
		h = h[len(h)-maxHistoryPerWorker:]
	}
	l.history[workerID] = h
	l.updateCount[workerID]++
	l.mu.Unlock()

	l.logger.Debug("updated worker weight",
		zap.String("worker_id", workerID),
		zap.Float64("previous", current),
		zap.Float64("updated", updated),
		zap.Float64("accuracy", metric.Accuracy),
		zap.Float64("effective_alpha", effectiveAlpha),
	)

	return updated, nil
}

// BatchUpdate applies many metrics at once, keyed by worker ID, and returns
// each worker's final weight. Metrics for one worker are applied in slice
// order. The first error aborts the batch; earlier updates remain applied.
func (l *BayesianLearner) BatchUpdate(metrics map[string][]domain.PerformanceMetric) (map[string]float64, error) {
	updated := make(map[string]float64, len(metrics))
	for workerID, workerMetrics := range metrics {
		for _, m := range workerMetrics {
			w, err := l.UpdateWeight(workerID, m)
			if err != nil {
				return updated, fmt.Errorf("worker %q: %w", workerID, err)
			}
			updated[workerID] = w
		}
	}
	return updated, nil
}

// ResetWorker discards the weight and history of one worker, returning it to
// the prior on next reference.
func (l *BayesianLearner) ResetWorker(workerID string) {
	unlock := l.locks.lock(workerID)
	defer unlock()

	l.mu.Lock()
	delete(l.weights, workerID)
	delete(l.history, workerID)
	delete(l.updateCount, workerID)
	l.mu.Unlock()

	l.logger.Info("reset worker weight state", zap.String("worker_id", workerID))
}

// Reset discards all learned state.
func (l *BayesianLearner) Reset() {
	l.mu.Lock()
	l.weights = make(map[string]float64)
	l.history = make(map[string][]domain.PerformanceMetric)
	l.updateCount = make(map[string]int)
	l.mu.Unlock()
}

// WorkerLearningStats summarizes the observed performance of one worker.
type WorkerLearningStats struct {
	// WorkerID identifies the worker.
	WorkerID string `json:"worker_id"`
	// CurrentWeight is the worker's present trust weight.
	CurrentWeight float64 `json:"current_weight"`
	// UpdateCount is the number of feedback observations applied.
	UpdateCount int `json:"update_count"`
	// MeanAccuracy and StdAccuracy summarize the retained history.
	MeanAccuracy float64 `json:"mean_accuracy"`
	StdAccuracy  float64 `json:"std_accuracy"`
	// RecentAccuracy is the mean over the last ten observations.
	RecentAccuracy float64 `json:"recent_accuracy"`
}

// Statistics returns performance statistics for a worker, or false when the
// worker has no recorded history.
func (l *BayesianLearner) Statistics(workerID string) (WorkerLearningStats, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	history := l.history[workerID]
	if len(history) == 0 {
		return WorkerLearningStats{}, false
	}

	accuracies := make([]float64, len(history))
	for i, m := range history {
		accuracies[i] = m.Accuracy
	}
	mean, std := meanStd(accuracies)

	recent := accuracies
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}
	recentMean, _ := meanStd(recent)

	w, ok := l.weights[workerID]
	if !ok {
		w = l.config.PriorWeight
	}

	return WorkerLearningStats{
		WorkerID:       workerID,
		CurrentWeight:  w,
		UpdateCount:    l.updateCount[workerID],
		MeanAccuracy:   mean,
		StdAccuracy:    std,
		RecentAccuracy: recentMean,
	}, true
}

// persistedState is the durable JSON form of a learner. It is the only
// durable artifact the engine owns.
type persistedState struct {
	Weights   map[string]float64 `json:"weights"`
	Alpha     float64            `json:"alpha"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Save serializes the learner's weight state as JSON:
//
//	{"weights": {"<worker_id>": <float>, ...}, "alpha": <float>, "updated_at": "<ISO8601>"}
//
// Loading the returned bytes into any learner restores an identical weight
// map.
func (l *BayesianLearner) Save() ([]byte, error) {
	state := persistedState{
		Weights:   l.AllWeights(),
		Alpha:     l.config.Alpha,
		UpdatedAt: time.Now().UTC(),
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal learner state: %w", err)
	}
	return data, nil
}

// Load replaces the learner's weights and alpha with previously saved state.
// History and update counts are not persisted and remain untouched.
func (l *BayesianLearner) Load(data []byte) error {
	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("unmarshal learner state: %w", err)
	}

	l.mu.Lock()
	l.weights = make(map[string]float64, len(state.Weights))
	for id, w := range state.Weights {
		if w < l.config.MinWeight {
			w = l.config.MinWeight
		}
		l.weights[id] = w
	}
	if state.Alpha > 0 && state.Alpha <= 1 {
		l.config.Alpha = state.Alpha
	}
	l.mu.Unlock()

	l.logger.Info("loaded learner state",
		zap.Int("workers", len(state.Weights)),
		zap.Time("updated_at", state.UpdatedAt),
	)
	return nil
}

// SaveFile writes the learner's state to a file with owner-only permissions.
func (l *BayesianLearner) SaveFile(path string) error {
	data, err := l.Save()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write learner state: %w", err)
	}
	return nil
}

// LoadFile restores the learner's state from a file written by SaveFile.
func (l *BayesianLearner) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read learner state: %w", err)
	}
	return l.Load(data)
}

// historyWindow returns a copy of the trailing window of a worker's history.
func (l *BayesianLearner) historyWindow(workerID string, window int) []domain.PerformanceMetric {
	l.mu.RLock()
	defer l.mu.RUnlock()
	h := l.history[workerID]
	if len(h) > window {
		h = h[len(h)-window:]
	}
	out := make([]domain.PerformanceMetric, len(h))
	copy(out, h)
	return out
}

// meanStd computes the mean and population standard deviation of values.
func meanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	for _, v := range values {
		std += (v - mean) * (v - mean)
	}
	std = math.Sqrt(std / float64(len(values)))
	return mean, std
}

// keyedMutex provides one mutex per key so updates for different workers
// never contend with each other.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// lock acquires the mutex for a key, creating it on first use, and returns
// the unlock function.
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
