package application

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ahrav/go-ensemble/internal/domain"
	"github.com/ahrav/go-ensemble/internal/ports"
)

// VariationStrategy generates n parameter maps derived from a base worker's
// parameters. Each map configures one derived worker.
type VariationStrategy func(base map[string]any, n int) []map[string]any

// PerturbNumericParameters returns a strategy that multiplies every numeric
// parameter by a factor drawn uniformly from [1-scale, 1+scale].
// Non-numeric parameters pass through unchanged. The seed makes the
// perturbations reproducible.
func PerturbNumericParameters(scale float64, seed int64) VariationStrategy {
	return func(base map[string]any, n int) []map[string]any {
		rng := rand.New(rand.NewSource(seed))
		variations := make([]map[string]any, n)
		for i := range variations {
			params := make(map[string]any, len(base))
			for key, value := range base {
				switch v := value.(type) {
				case float64:
					params[key] = v * (1 + (rng.Float64()*2-1)*scale)
				case int:
					params[key] = int(float64(v) * (1 + (rng.Float64()*2-1)*scale))
				default:
					params[key] = value
				}
			}
			variations[i] = params
		}
		return variations
	}
}

// FeatureSubset returns a strategy that varies the string-slice parameter
// under key by keeping a random subset of its elements (always at least
// one). Workers whose behavior depends on which features they consult can
// be diversified this way.
func FeatureSubset(key string, seed int64) VariationStrategy {
	return func(base map[string]any, n int) []map[string]any {
		rng := rand.New(rand.NewSource(seed))
		variations := make([]map[string]any, n)
		for i := range variations {
			params := make(map[string]any, len(base))
			for k, v := range base {
				params[k] = v
			}
			if features, ok := base[key].([]string); ok && len(features) > 0 {
				subset := make([]string, 0, len(features))
				for _, f := range features {
					if rng.Float64() < 0.5 {
						subset = append(subset, f)
					}
				}
				if len(subset) == 0 {
					subset = append(subset, features[rng.Intn(len(features))])
				}
				params[key] = subset
			}
			variations[i] = params
		}
		return variations
	}
}

// SeedVariation returns a strategy that assigns each derived worker a
// distinct seed under key, diversifying workers whose algorithms are
// stochastic.
func SeedVariation(key string, baseSeed int64) VariationStrategy {
	return func(base map[string]any, n int) []map[string]any {
		variations := make([]map[string]any, n)
		for i := range variations {
			params := make(map[string]any, len(base))
			for k, v := range base {
				params[k] = v
			}
			params[key] = baseSeed + int64(i) + 1
			variations[i] = params
		}
		return variations
	}
}

// Variation pairs a derived worker with its configuration, ready for the
// caller to register.
type Variation struct {
	Worker ports.Worker
	Config domain.WorkerConfig
}

// CreateVariations derives num workers from a registered base worker by
// applying the variation strategy to its parameters. The base worker must
// implement ports.Variable; otherwise the call fails with
// domain.ErrNotVariable.
//
// Derived workers are returned, not auto-registered: the caller decides
// which variations join the pool.
func (p *WorkerPool) CreateVariations(workerID string, strategy VariationStrategy, num int) ([]Variation, error) {
	if num <= 0 {
		return nil, fmt.Errorf("%w: variation count must be positive, got %d",
			domain.ErrInvalidConfiguration, num)
	}

	worker, config, ok := p.Worker(workerID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrWorkerNotFound, workerID)
	}
	variable, ok := worker.(ports.Variable)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrNotVariable, workerID)
	}

	paramSets := strategy(config.Parameters, num)
	variations := make([]Variation, 0, len(paramSets))
	for _, params := range paramSets {
		derived, err := variable.ApplyVariation(params)
		if err != nil {
			return nil, fmt.Errorf("worker %q: apply variation: %w", workerID, err)
		}

		derivedConfig := config
		derivedConfig.WorkerID = fmt.Sprintf("%s-var-%s", workerID, uuid.NewString()[:8])
		derivedConfig.Parameters = params

		variations = append(variations, Variation{Worker: derived, Config: derivedConfig})
	}

	p.logger.Info("created worker variations",
		zap.String("base_worker_id", workerID),
		zap.Int("variations", len(variations)),
	)
	return variations, nil
}
