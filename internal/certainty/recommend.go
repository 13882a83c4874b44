package certainty

import (
	"context"
	"fmt"
	"slices"

	"github.com/sipadi/padi/internal/domain"
)

// recommend suggests unreported symptoms for results in the ambiguous band.
func (e *Engine) recommend(ctx context.Context, src domain.RuleSource, results []domain.DiagnosisResult) ([]domain.Recommendation, error) {
	recs := make([]domain.Recommendation, 0)

	for _, r := range results {
		if !e.policy.inRecommendBand(r.CFFinal) {
			continue
		}

		unmatched, err := src.UnmatchedRules(ctx, r.DiseaseID, r.MatchedIDs)
		if err != nil {
			return nil, fmt.Errorf("load unmatched rules for disease %d: %w", r.DiseaseID, err)
		}
		if len(unmatched) == 0 {
			continue
		}

		ids := make([]int64, 0, len(unmatched))
		for _, u := range unmatched {
			ids = append(ids, u.SymptomID)
		}
		ids = dedupe(ids)

		symptoms, err := src.Symptoms(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("load suggested symptoms: %w", err)
		}

		suggested := make([]*domain.Symptom, 0, len(symptoms))
		for _, id := range ids {
			if s, ok := symptoms[id]; ok {
				suggested = append(suggested, s)
			}
		}
		slices.SortFunc(suggested, func(a, b *domain.Symptom) int {
			return compareSymptoms(symptoms, a.ID, b.ID)
		})
		if len(suggested) > e.policy.MaxSuggestions {
			suggested = suggested[:e.policy.MaxSuggestions]
		}

		refs := make([]domain.SymptomRef, 0, len(suggested))
		for _, s := range suggested {
			refs = append(refs, s.Ref())
		}

		recs = append(recs, domain.Recommendation{
			DiseaseCode:       r.DiseaseCode,
			DiseaseName:       r.DiseaseName,
			CurrentCF:         r.CFFinal,
			SuggestedSymptoms: refs,
			Message:           RecommendationMessage(r.DiseaseName),
		})
	}

	return recs, nil
}

// RecommendationMessage is the prompt shown with suggested symptoms.
func RecommendationMessage(diseaseName string) string {
	return fmt.Sprintf("Untuk memastikan diagnosis %s, periksa apakah tanaman juga menunjukkan gejala berikut:", diseaseName)
}
