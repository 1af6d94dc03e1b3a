package learning

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ahrav/go-ensemble/internal/domain"
	"github.com/ahrav/go-ensemble/internal/ports"
)

var _ ports.PersistentWeightLearner = (*AdaptiveLearner)(nil)

// AdaptiveConfig defines the configuration parameters for an
// AdaptiveLearner.
type AdaptiveConfig struct {
	// InitialAlpha is the learning rate used until a worker has enough
	// history to assess stability.
	InitialAlpha float64 `yaml:"initial_alpha" json:"initial_alpha" validate:"gt=0,lte=1"`

	// MinAlpha and MaxAlpha bound the per-worker learning rate derived
	// from performance stability.
	MinAlpha float64 `yaml:"min_alpha" json:"min_alpha" validate:"gt=0,lte=1"`
	MaxAlpha float64 `yaml:"max_alpha" json:"max_alpha" validate:"gt=0,lte=1"`

	// StabilityWindow is the number of recent observations used to assess
	// a worker's performance stability.
	StabilityWindow int `yaml:"stability_window" json:"stability_window" validate:"min=2,max=256"`

	// Bayesian carries the underlying EMA settings. Its Alpha field is
	// ignored; the adaptive rate replaces it.
	Bayesian BayesianConfig `yaml:"bayesian" json:"bayesian"`
}

// DefaultAdaptiveConfig returns an AdaptiveConfig with a moderate initial
// rate and a ten-observation stability window.
func DefaultAdaptiveConfig() AdaptiveConfig {
	cfg := AdaptiveConfig{
		InitialAlpha:    0.2,
		MinAlpha:        0.01,
		MaxAlpha:        0.5,
		StabilityWindow: 10,
		Bayesian:        DefaultBayesianConfig(),
	}
	cfg.Bayesian.Alpha = cfg.InitialAlpha
	return cfg
}

// AdaptiveLearner extends the Bayesian EMA learner with per-worker learning
// rates driven by performance stability. For each worker it computes the
// coefficient of variation CV = std/mean over a rolling window of recent
// accuracies and derives
//
//	alpha = min_alpha + (max_alpha - min_alpha) * min(CV, 1)
//
// so stable workers (low CV) converge slowly and trust their established
// weight, while volatile workers (high CV) react faster. Workers with fewer
// observations than the window are treated as maximally unstable.
type AdaptiveLearner struct {
	*BayesianLearner

	adaptiveConfig AdaptiveConfig

	// alphaMu guards the per-worker learning rates.
	alphaMu sync.RWMutex
	alphas  map[string]float64
}

// NewAdaptiveLearner creates an AdaptiveLearner with the given
// configuration. A nil logger defaults to a no-op logger.
func NewAdaptiveLearner(config AdaptiveConfig, logger *zap.Logger) (*AdaptiveLearner, error) {
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	if config.MinAlpha > config.MaxAlpha {
		return nil, fmt.Errorf("%w: min_alpha %.3f exceeds max_alpha %.3f",
			domain.ErrInvalidConfiguration, config.MinAlpha, config.MaxAlpha)
	}

	base := config.Bayesian
	base.Alpha = config.InitialAlpha
	inner, err := NewBayesianLearner(base, logger)
	if err != nil {
		return nil, err
	}

	return &AdaptiveLearner{
		BayesianLearner: inner,
		adaptiveConfig:  config,
		alphas:          make(map[string]float64),
	}, nil
}

// UpdateWeight recomputes the worker's adaptive learning rate from its
// recent history, then applies the EMA update with that rate.
func (l *AdaptiveLearner) UpdateWeight(workerID string, metric domain.PerformanceMetric) (float64, error) {
	alpha := l.adaptAlpha(workerID)

	l.alphaMu.Lock()
	l.alphas[workerID] = alpha
	l.alphaMu.Unlock()

	return l.update(workerID, metric, alpha)
}

// Alpha returns the current adaptive learning rate for a worker, or the
// initial rate when no history has accumulated.
func (l *AdaptiveLearner) Alpha(workerID string) float64 {
	l.alphaMu.RLock()
	defer l.alphaMu.RUnlock()
	if a, ok := l.alphas[workerID]; ok {
		return a
	}
	return l.adaptiveConfig.InitialAlpha
}

// adaptAlpha derives the learning rate from the coefficient of variation of
// the worker's recent accuracies, clamped to [MinAlpha, MaxAlpha].
func (l *AdaptiveLearner) adaptAlpha(workerID string) float64 {
	cv := l.stability(workerID)
	if cv > 1 {
		cv = 1
	}
	alpha := l.adaptiveConfig.MinAlpha + (l.adaptiveConfig.MaxAlpha-l.adaptiveConfig.MinAlpha)*cv
	if alpha < l.adaptiveConfig.MinAlpha {
		alpha = l.adaptiveConfig.MinAlpha
	}
	if alpha > l.adaptiveConfig.MaxAlpha {
		alpha = l.adaptiveConfig.MaxAlpha
	}
	return alpha
}

// stability returns the coefficient of variation of the worker's recent
// accuracy window. Workers without a full window report 1.0, which keeps new
// workers on a fast learning rate until enough evidence accumulates.
func (l *AdaptiveLearner) stability(workerID string) float64 {
	window := l.historyWindow(workerID, l.adaptiveConfig.StabilityWindow)
	if len(window) < l.adaptiveConfig.StabilityWindow {
		return 1.0
	}

	accuracies := make([]float64, len(window))
	for i, m := range window {
		accuracies[i] = m.Accuracy
	}
	mean, std := meanStd(accuracies)
	if mean <= 0 {
		return 1.0
	}
	return std / mean
}
