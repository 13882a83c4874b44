package certainty

import (
	"fmt"
	"sort"

	"github.com/sipadi/padi/internal/domain"
)

// PenaltyTier discounts results supported by few matched symptoms.
type PenaltyTier struct {
	MinMatched int
	Factor     float64
	Status     string
}

// Threshold maps a lower CF bound to an interpretation label.
type Threshold struct {
	Min   float64
	Label string
}

// Policy holds every tunable constant of the ranking pipeline.
type Policy struct {
	// Penalties is ordered by ascending MinMatched.
	Penalties []PenaltyTier
	// Interpretations is ordered by descending Min.
	Interpretations []Threshold
	// FallbackLabel is used below the lowest interpretation threshold.
	FallbackLabel string

	MinCF      float64
	MaxResults int

	// Results with RecommendLow <= cf_final < RecommendHigh get suggestions.
	RecommendLow   float64
	RecommendHigh  float64
	MaxSuggestions int

	MultiInfectionCF    float64
	MultiInfectionCount int

	RequiredSymptoms int
	DefaultMinMatch  int
}

// DefaultPolicy returns the standard ranking policy.
func DefaultPolicy() Policy {
	return Policy{
		Penalties: []PenaltyTier{
			{MinMatched: 1, Factor: 0.5, Status: domain.MatchUncertain},
			{MinMatched: 2, Factor: 0.8, Status: domain.MatchFair},
			{MinMatched: 3, Factor: 1.0, Status: domain.MatchValid},
		},
		Interpretations: []Threshold{
			{Min: 0.80, Label: domain.InterpretCertain},
			{Min: 0.60, Label: domain.InterpretAlmostCertain},
			{Min: 0.40, Label: domain.InterpretMostLikely},
			{Min: 0.20, Label: domain.InterpretPossible},
		},
		FallbackLabel:       domain.InterpretUncertain,
		MinCF:               0.20,
		MaxResults:          3,
		RecommendLow:        0.40,
		RecommendHigh:       0.80,
		MaxSuggestions:      4,
		MultiInfectionCF:    0.80,
		MultiInfectionCount: 2,
		RequiredSymptoms:    3,
		DefaultMinMatch:     3,
	}
}

// WithOverrides applies non-zero engine settings from configuration.
func (p Policy) WithOverrides(cfg domain.EngineConfig) Policy {
	if cfg.MinCF > 0 {
		p.MinCF = cfg.MinCF
	}
	if cfg.MaxResults > 0 {
		p.MaxResults = cfg.MaxResults
	}
	if cfg.MaxSuggestions > 0 {
		p.MaxSuggestions = cfg.MaxSuggestions
	}
	if cfg.MultiInfectionCF > 0 {
		p.MultiInfectionCF = cfg.MultiInfectionCF
	}
	return p
}

// Validate reports inconsistent policies.
func (p Policy) Validate() error {
	if len(p.Penalties) == 0 {
		return fmt.Errorf("policy: at least one penalty tier is required")
	}
	if !sort.SliceIsSorted(p.Penalties, func(i, j int) bool {
		return p.Penalties[i].MinMatched < p.Penalties[j].MinMatched
	}) {
		return fmt.Errorf("policy: penalty tiers must be ordered by min matched")
	}
	if !sort.SliceIsSorted(p.Interpretations, func(i, j int) bool {
		return p.Interpretations[i].Min > p.Interpretations[j].Min
	}) {
		return fmt.Errorf("policy: interpretation thresholds must be descending")
	}
	if p.MaxResults <= 0 {
		return fmt.Errorf("policy: max results must be positive, got %d", p.MaxResults)
	}
	if p.RecommendLow > p.RecommendHigh {
		return fmt.Errorf("policy: recommendation band is empty")
	}
	return nil
}

// Penalty returns the factor and status for a matched-symptom count.
func (p Policy) Penalty(matched int) (float64, string) {
	tier := p.Penalties[0]
	for _, t := range p.Penalties {
		if matched >= t.MinMatched {
			tier = t
		}
	}
	return tier.Factor, tier.Status
}

// Interpret labels a final certainty factor.
func (p Policy) Interpret(cf float64) string {
	for _, t := range p.Interpretations {
		if cf >= t.Min {
			return t.Label
		}
	}
	return p.FallbackLabel
}

// inRecommendBand reports whether cf is plausible but not yet confident.
func (p Policy) inRecommendBand(cf float64) bool {
	return cf >= p.RecommendLow && cf < p.RecommendHigh
}
