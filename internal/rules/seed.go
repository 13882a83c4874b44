package rules

import (
	"context"
	"fmt"

	"github.com/sipadi/padi/internal/domain"
)

// KnowledgeWriter is the part of the repository a knowledge base is seeded into.
type KnowledgeWriter interface {
	SaveSymptom(ctx context.Context, s *domain.Symptom) error
	SaveDisease(ctx context.Context, d *domain.Disease) error
	ListRules(ctx context.Context) ([]*domain.Rule, error)
	ReplaceDiseaseRules(ctx context.Context, diseaseID int64, rules []*domain.Rule) error
}

// SeedStats summarizes a seeding run.
type SeedStats struct {
	Symptoms int
	Diseases int
	Rules    int
}

// Seed upserts the knowledge base into store. Symptoms and diseases are
// matched by code; each seeded disease has its rules replaced. Store ids
// replace the file ids and rule codes continue after the highest existing code.
func Seed(ctx context.Context, store KnowledgeWriter, kb *KnowledgeBase) (SeedStats, error) {
	var stats SeedStats

	symptoms, diseases, rules, err := kb.Build()
	if err != nil {
		return stats, err
	}

	symptomIDs := make(map[int64]int64, len(symptoms))
	for _, s := range symptoms {
		fileID := s.ID
		s.ID = 0
		if err := store.SaveSymptom(ctx, s); err != nil {
			return stats, fmt.Errorf("failed to save symptom %s: %w", s.Code, err)
		}
		symptomIDs[fileID] = s.ID
		stats.Symptoms++
	}

	diseaseIDs := make(map[int64]int64, len(diseases))
	for _, d := range diseases {
		fileID := d.ID
		d.ID = 0
		if err := store.SaveDisease(ctx, d); err != nil {
			return stats, fmt.Errorf("failed to save disease %s: %w", d.Code, err)
		}
		diseaseIDs[fileID] = d.ID
		stats.Diseases++
	}

	existing, err := store.ListRules(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to list rules: %w", err)
	}
	codes := make([]string, 0, len(existing))
	for _, r := range existing {
		codes = append(codes, r.Code)
	}
	next := NextRuleNumber(codes)

	grouped := make(map[int64][]*domain.Rule)
	var order []int64
	for _, r := range rules {
		r.ID = 0
		r.DiseaseID = diseaseIDs[r.DiseaseID]
		r.SymptomID = symptomIDs[r.SymptomID]
		r.Code = RuleCode(next)
		next++
		if _, ok := grouped[r.DiseaseID]; !ok {
			order = append(order, r.DiseaseID)
		}
		grouped[r.DiseaseID] = append(grouped[r.DiseaseID], r)
	}

	for _, id := range order {
		if err := store.ReplaceDiseaseRules(ctx, id, grouped[id]); err != nil {
			return stats, fmt.Errorf("failed to replace rules of disease %d: %w", id, err)
		}
		stats.Rules += len(grouped[id])
	}

	return stats, nil
}
