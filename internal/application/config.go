package application

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-ensemble/infrastructure/learning"
	"github.com/ahrav/go-ensemble/internal/domain"
	"github.com/ahrav/go-ensemble/internal/ports"
)

// EnsembleConfig is the top-level YAML document describing one ensemble:
// the pool limits, the declaratively configured workers, the aggregation
// strategy, and the optional weight learner.
//
// Worker implementations cannot be expressed in configuration; the caller
// registers them against the IDs declared here.
type EnsembleConfig struct {
	// Version is the configuration schema version.
	Version string `yaml:"version" validate:"required"`

	// Pool configures concurrency limits and quarantine behavior.
	Pool PoolConfig `yaml:"pool"`

	// Workers declares the worker configurations the caller will register
	// implementations for.
	Workers []domain.WorkerConfig `yaml:"workers" validate:"omitempty,dive"`

	// Strategy selects and parameterizes the aggregation strategy.
	Strategy StrategyConfig `yaml:"strategy" validate:"required"`

	// Learner optionally configures weight learning. Absent, the ensemble
	// runs with uniform weights.
	Learner *LearnerConfig `yaml:"learner"`
}

// StrategyConfig selects an aggregation strategy by type tag and carries its
// type-specific parameters.
type StrategyConfig struct {
	// ID names this strategy instance for logging.
	ID string `yaml:"id" validate:"required,min=1,max=100"`

	// Type is the registered strategy type tag.
	Type string `yaml:"type" validate:"required,oneof=weighted_average majority_voting confidence_based median"`

	// Parameters contains type-specific configuration validated by the
	// strategy itself.
	Parameters map[string]any `yaml:"parameters"`
}

// LearnerConfig selects and parameterizes a weight learner.
type LearnerConfig struct {
	// Type selects the learner implementation.
	Type string `yaml:"type" validate:"required,oneof=bayesian adaptive"`

	// Bayesian configures the EMA learner; also the base settings of the
	// adaptive learner. Omitted fields take their defaults at decode time;
	// the learner constructor validates the effective config, not the
	// document validator.
	Bayesian learning.BayesianConfig `yaml:"bayesian" validate:"-"`

	// Adaptive configures the stability-driven learning rates. Only
	// consulted when Type is "adaptive".
	Adaptive learning.AdaptiveConfig `yaml:"adaptive" validate:"-"`

	// StatePath optionally points at the JSON weight file to load at
	// build time. Missing files are not an error; the learner simply
	// starts from priors.
	StatePath string `yaml:"state_path"`
}

// UnmarshalYAML decodes a learner section over the library defaults. A
// partially specified section keeps the default value of every omitted
// field, including the min_effective_alpha and min_weight floors, rather
// than its zero value.
func (c *LearnerConfig) UnmarshalYAML(value *yaml.Node) error {
	type rawLearnerConfig LearnerConfig
	raw := rawLearnerConfig{
		Bayesian: learning.DefaultBayesianConfig(),
		Adaptive: learning.DefaultAdaptiveConfig(),
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*c = LearnerConfig(raw)
	return nil
}

// LoadEnsembleConfig parses and validates an EnsembleConfig from YAML.
// Zero-valued sections are filled with production defaults before
// validation.
func LoadEnsembleConfig(data []byte) (*EnsembleConfig, error) {
	config := &EnsembleConfig{
		Pool: DefaultPoolConfig(),
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse ensemble config: %w", err)
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidConfiguration, err)
	}
	return config, nil
}

// LoadEnsembleConfigFile reads and parses an EnsembleConfig from a file.
func LoadEnsembleConfigFile(path string) (*EnsembleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ensemble config: %w", err)
	}
	return LoadEnsembleConfig(data)
}

// BuildPool constructs the WorkerPool described by the configuration.
// Declared workers still need implementations registered by the caller.
func (c *EnsembleConfig) BuildPool(opts ...PoolOption) (*WorkerPool, error) {
	return NewWorkerPool(c.Pool, opts...)
}

// BuildLearner constructs the configured weight learner, loading persisted
// state from StatePath when the file exists. Returns nil when no learner is
// configured.
func (c *EnsembleConfig) BuildLearner(logger *zap.Logger) (ports.PersistentWeightLearner, error) {
	if c.Learner == nil {
		return nil, nil
	}

	var (
		learner ports.PersistentWeightLearner
		err     error
	)
	switch c.Learner.Type {
	case "bayesian":
		cfg := c.Learner.Bayesian
		if cfg == (learning.BayesianConfig{}) {
			cfg = learning.DefaultBayesianConfig()
		}
		learner, err = learning.NewBayesianLearner(cfg, logger)
	case "adaptive":
		cfg := c.Learner.Adaptive
		if cfg.StabilityWindow == 0 {
			cfg = learning.DefaultAdaptiveConfig()
		}
		learner, err = learning.NewAdaptiveLearner(cfg, logger)
	default:
		return nil, fmt.Errorf("%w: unknown learner type %q",
			domain.ErrInvalidConfiguration, c.Learner.Type)
	}
	if err != nil {
		return nil, err
	}

	if c.Learner.StatePath != "" {
		if _, statErr := os.Stat(c.Learner.StatePath); statErr == nil {
			if loadErr := loadLearnerState(learner, c.Learner.StatePath); loadErr != nil {
				return nil, loadErr
			}
		}
	}
	return learner, nil
}

// loadLearnerState restores a learner from a weight file.
func loadLearnerState(learner ports.PersistentWeightLearner, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read learner state: %w", err)
	}
	return learner.Load(data)
}

// BuildAggregator constructs the Aggregator described by the configuration,
// wiring in the configured strategy and learner.
func (c *EnsembleConfig) BuildAggregator(registry *StrategyRegistry, logger *zap.Logger) (*Aggregator, error) {
	if registry == nil {
		registry = NewStrategyRegistry()
	}

	strategy, err := registry.Create(c.Strategy.Type, c.Strategy.ID, c.Strategy.Parameters)
	if err != nil {
		return nil, fmt.Errorf("build strategy: %w", err)
	}

	learner, err := c.BuildLearner(logger)
	if err != nil {
		return nil, fmt.Errorf("build learner: %w", err)
	}

	opts := []AggregatorOption{WithAggregatorLogger(logger)}
	if learner != nil {
		opts = append(opts, WithWeightLearner(learner))
	}
	return NewAggregator(strategy, opts...)
}
