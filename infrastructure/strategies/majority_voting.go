package strategies

import (
	"context"
	"fmt"
	"time"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-ensemble/internal/domain"
	"github.com/ahrav/go-ensemble/internal/ports"
)

var (
	_ ports.AggregationStrategy = (*MajorityVotingStrategy)(nil)

	// foldCaser is a package-level Unicode case folder for vote key
	// normalization. Shared to avoid creating a new caser per vote.
	foldCaser = cases.Fold()
)

// MethodMajorityVoting is the strategy tag recorded in results produced by
// MajorityVotingStrategy.
const MethodMajorityVoting = "majority_voting"

// MajorityVotingStrategy combines categorical worker values by weighted
// voting. Each worker casts its effective weight for its own value; the
// value with the maximum vote sum wins, and the aggregate confidence is the
// winning vote share of the total vote mass.
//
// Ties are broken deterministically: among tied values, the one cast by the
// earliest-registered worker wins. Because the pool returns results in
// stable registration order, repeated aggregation of the same input always
// selects the same winner.
//
// With fuzzy grouping enabled, string values within the configured
// Levenshtein similarity are pooled into a single vote bucket after Unicode
// case folding, so near-identical answers are not split across buckets.
//
// The strategy is stateless and safe for concurrent use.
type MajorityVotingStrategy struct {
	// name is the unique identifier for this strategy instance.
	name string
	// config contains validated configuration parameters, immutable after
	// creation.
	config MajorityVotingConfig
}

// MajorityVotingConfig defines the configuration parameters for the
// MajorityVotingStrategy.
type MajorityVotingConfig struct {
	// UseConfidence controls whether each worker's confidence multiplies
	// into its vote weight.
	UseConfidence bool `yaml:"use_confidence" json:"use_confidence"`

	// FuzzyGrouping pools string votes whose similarity reaches
	// SimilarityThreshold into one bucket instead of requiring exact
	// equality.
	FuzzyGrouping bool `yaml:"fuzzy_grouping" json:"fuzzy_grouping"`

	// SimilarityThreshold is the minimum normalized Levenshtein similarity
	// (0.0-1.0) for two string votes to share a bucket. Only consulted
	// when FuzzyGrouping is true.
	SimilarityThreshold float64 `yaml:"similarity_threshold" json:"similarity_threshold" validate:"min=0.0,max=1.0"`

	// CaseSensitive disables Unicode case folding of string vote keys.
	CaseSensitive bool `yaml:"case_sensitive" json:"case_sensitive"`
}

// DefaultMajorityVotingConfig returns a MajorityVotingConfig with confidence
// weighting enabled and exact, case-folded vote matching.
func DefaultMajorityVotingConfig() MajorityVotingConfig {
	return MajorityVotingConfig{
		UseConfidence:       true,
		FuzzyGrouping:       false,
		SimilarityThreshold: 0.85,
		CaseSensitive:       false,
	}
}

// NewMajorityVotingStrategy creates a MajorityVotingStrategy with the given
// name and configuration.
func NewMajorityVotingStrategy(name string, config MajorityVotingConfig) (*MajorityVotingStrategy, error) {
	if name == "" {
		return nil, ErrEmptyStrategyName
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &MajorityVotingStrategy{name: name, config: config}, nil
}

// Name returns the unique identifier for this strategy instance.
func (s *MajorityVotingStrategy) Name() string { return s.name }

// voteBucket accumulates the vote mass for one candidate value.
type voteBucket struct {
	// value is the representative value of the bucket: the value cast by
	// the earliest-registered worker that opened it.
	value any
	// key is the normalized string form used for bucket matching.
	key string
	// score is the accumulated vote mass.
	score float64
	// firstIndex is the position of the bucket-opening worker in the
	// results slice; lower index wins ties.
	firstIndex int
	// supporters counts the workers that voted into this bucket.
	supporters int
}

// Aggregate tallies weighted votes across all successful results and selects
// the value with the maximum vote sum. The winning vote share becomes the
// aggregate confidence.
//
// Aggregation fails with domain.ErrNoValidResults when no successful results
// remain or when the total vote mass is zero.
func (s *MajorityVotingStrategy) Aggregate(
	ctx context.Context,
	results []domain.WorkerResult,
	weights map[string]float64,
) (*domain.AggregatedResult, error) {
	valid := filterSuccessful(results)
	if len(valid) == 0 {
		return nil, fmt.Errorf("%s: %w", s.name, domain.ErrNoValidResults)
	}

	buckets := make([]*voteBucket, 0, len(valid))
	applied := make(map[string]float64, len(valid))

	for i, r := range valid {
		w := weightFor(weights, r.WorkerID)
		if s.config.UseConfidence {
			w *= r.Confidence
		}
		applied[r.WorkerID] = w

		key := s.voteKey(r.Value)
		b := s.findBucket(buckets, key)
		if b == nil {
			b = &voteBucket{value: r.Value, key: key, firstIndex: i}
			buckets = append(buckets, b)
		}
		b.score += w
		b.supporters++
	}

	var totalScore float64
	for _, b := range buckets {
		totalScore += b.score
	}
	if totalScore == 0 {
		return nil, fmt.Errorf("%s: total vote mass is zero: %w",
			s.name, domain.ErrNoValidResults)
	}

	// Winner has the maximum vote sum; on a tie the bucket opened by the
	// earliest-registered worker wins, which keeps repeated runs over the
	// same ordered input deterministic.
	winner := buckets[0]
	for _, b := range buckets[1:] {
		if b.score > winner.score || (b.score == winner.score && b.firstIndex < winner.firstIndex) {
			winner = b
		}
	}

	distribution := make(map[string]float64, len(buckets))
	for _, b := range buckets {
		distribution[b.key] = b.score
	}

	return &domain.AggregatedResult{
		Value:          winner.value,
		Confidence:     clamp01(winner.score / totalScore),
		AllResults:     results,
		WeightsApplied: applied,
		Method:         MethodMajorityVoting,
		ValidWorkers:   len(valid),
		TotalWorkers:   len(results),
		Metadata: map[string]any{
			"vote_distribution": distribution,
			"agreement":         float64(winner.supporters) / float64(len(valid)),
			"use_confidence":    s.config.UseConfidence,
		},
		Timestamp: time.Now().UTC(),
	}, nil
}

// voteKey normalizes a vote value into the string key used for bucket
// matching. Non-string values use their default formatting, which makes
// equal comparable values collide as intended.
func (s *MajorityVotingStrategy) voteKey(value any) string {
	str, ok := value.(string)
	if !ok {
		return fmt.Sprintf("%v", value)
	}
	if s.config.CaseSensitive {
		return str
	}
	return foldCaser.String(str)
}

// findBucket locates the bucket a vote key belongs to. With fuzzy grouping
// the first bucket whose key reaches the similarity threshold is reused;
// otherwise only exact key matches share a bucket.
func (s *MajorityVotingStrategy) findBucket(buckets []*voteBucket, key string) *voteBucket {
	for _, b := range buckets {
		if b.key == key {
			return b
		}
		if s.config.FuzzyGrouping && similarity(b.key, key) >= s.config.SimilarityThreshold {
			return b
		}
	}
	return nil
}

// similarity computes a normalized Levenshtein similarity in [0, 1] between
// two strings, where 1 means identical.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := len([]rune(a))
	if lb := len([]rune(b)); lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}

// Validate checks if the strategy is properly configured.
func (s *MajorityVotingStrategy) Validate() error {
	if err := validate.Struct(s.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// UnmarshalParameters deserializes YAML configuration parameters and updates
// the strategy's configuration. Not safe for use concurrently with
// Aggregate.
func (s *MajorityVotingStrategy) UnmarshalParameters(params yaml.Node) error {
	var config MajorityVotingConfig
	if err := params.Decode(&config); err != nil {
		return fmt.Errorf("failed to decode parameters: %w", err)
	}
	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("parameter validation failed: %w", err)
	}
	s.config = config
	return nil
}

// NewMajorityVotingFromConfig creates a MajorityVotingStrategy from a
// configuration map. This is the boundary adapter for YAML/JSON
// configuration.
func NewMajorityVotingFromConfig(id string, config map[string]any) (ports.AggregationStrategy, error) {
	data, err := yaml.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	cfg := DefaultMajorityVotingConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return NewMajorityVotingStrategy(id, cfg)
}
