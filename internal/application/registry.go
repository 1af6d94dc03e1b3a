package application

import (
	"fmt"
	"sync"

	"github.com/ahrav/go-ensemble/infrastructure/strategies"
	"github.com/ahrav/go-ensemble/internal/ports"
)

// StrategyFactory creates an aggregation strategy from a flat configuration
// map, typically decoded from YAML.
type StrategyFactory func(id string, config map[string]any) (ports.AggregationStrategy, error)

// StrategyRegistry is a factory for creating aggregation strategies by type
// tag. It supports dynamic registration so applications can add custom
// strategies beside the built-in four.
type StrategyRegistry struct {
	// mu protects concurrent access to the factories map.
	mu sync.RWMutex
	// factories maps strategy type strings to their factory functions.
	factories map[string]StrategyFactory
}

// NewStrategyRegistry creates a registry with the built-in strategy types
// pre-registered: weighted_average, majority_voting, confidence_based, and
// median.
func NewStrategyRegistry() *StrategyRegistry {
	r := &StrategyRegistry{factories: make(map[string]StrategyFactory)}

	r.factories[strategies.MethodWeightedAverage] = strategies.NewWeightedAverageFromConfig
	r.factories[strategies.MethodMajorityVoting] = strategies.NewMajorityVotingFromConfig
	r.factories[strategies.MethodConfidenceBased] = strategies.NewConfidenceBasedFromConfig
	r.factories[strategies.MethodMedian] = strategies.NewMedianFromConfig

	return r
}

// Register adds a custom strategy factory under the given type tag.
// It fails when the tag is already taken.
func (r *StrategyRegistry) Register(strategyType string, factory StrategyFactory) error {
	if strategyType == "" {
		return fmt.Errorf("strategy type cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("factory for %q cannot be nil", strategyType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[strategyType]; exists {
		return fmt.Errorf("strategy type %q already registered", strategyType)
	}
	r.factories[strategyType] = factory
	return nil
}

// Create instantiates a strategy of the given type with the given id and
// configuration map.
func (r *StrategyRegistry) Create(strategyType, id string, config map[string]any) (ports.AggregationStrategy, error) {
	r.mu.RLock()
	factory, exists := r.factories[strategyType]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown strategy type: %q", strategyType)
	}
	if config == nil {
		config = map[string]any{}
	}
	return factory(id, config)
}

// Types returns the registered strategy type tags.
func (r *StrategyRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	return types
}
