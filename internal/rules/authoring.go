package rules

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/sipadi/padi/internal/domain"
)

// RuleDraft describes the rules to author for one disease.
type RuleDraft struct {
	DiseaseID  int64   `json:"disease_id"`
	SymptomIDs []int64 `json:"symptom_ids"`
	// CF scales each symptom's baseline MB/MD. Defaults to 1.
	CF *float64 `json:"cf_value"`
	// MinSymptomMatch defaults to the number of symptoms.
	MinSymptomMatch *int `json:"min_symptom_match"`
	Active          *bool `json:"is_active"`
}

// BuildRules derives one rule per symptom from a draft. Rule codes are
// numbered from next (R001, R002, ...). Symptoms are taken in id order.
func BuildRules(draft RuleDraft, symptoms map[int64]*domain.Symptom, next int) ([]*domain.Rule, error) {
	ids := slices.Clone(draft.SymptomIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: at least one symptom is required", domain.ErrInvalidInput)
	}

	cf := 1.0
	if draft.CF != nil {
		cf = *draft.CF
	}
	if math.IsNaN(cf) || cf < 0 || cf > 1 {
		return nil, fmt.Errorf("%w: cf value must be between 0 and 1", domain.ErrInvalidInput)
	}

	minMatch := len(ids)
	if draft.MinSymptomMatch != nil {
		minMatch = *draft.MinSymptomMatch
	}
	if minMatch < 1 || minMatch > len(ids) {
		return nil, fmt.Errorf("%w: min symptom match must be between 1 and %d", domain.ErrInvalidInput, len(ids))
	}

	active := true
	if draft.Active != nil {
		active = *draft.Active
	}
	if next < 1 {
		next = 1
	}

	rules := make([]*domain.Rule, 0, len(ids))
	for _, id := range ids {
		s, ok := symptoms[id]
		if !ok {
			return nil, fmt.Errorf("%w: symptom %d", domain.ErrNotFound, id)
		}
		rules = append(rules, &domain.Rule{
			Code:            RuleCode(next),
			DiseaseID:       draft.DiseaseID,
			SymptomID:       id,
			ConfidenceLevel: cf,
			MB:              clamp01(s.MB * cf),
			MD:              clamp01(s.MD * cf),
			MinSymptomMatch: minMatch,
			Active:          active,
		})
		next++
	}
	return rules, nil
}

// RuleCode formats a rule number as R001.
func RuleCode(n int) string {
	return fmt.Sprintf("R%03d", n)
}

// NextRuleNumber returns the number following the highest R-code in codes.
func NextRuleNumber(codes []string) int {
	highest := 0
	for _, c := range codes {
		if !strings.HasPrefix(c, "R") {
			continue
		}
		n, err := strconv.Atoi(c[1:])
		if err == nil && n > highest {
			highest = n
		}
	}
	return highest + 1
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
