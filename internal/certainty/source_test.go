package certainty

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/sipadi/padi/internal/domain"
)

// memSource is a minimal in-memory rule source for engine tests.
type memSource struct {
	symptoms map[int64]*domain.Symptom
	diseases map[int64]*domain.Disease
	rules    []*domain.Rule
	err      error
}

func newMemSource() *memSource {
	return &memSource{
		symptoms: make(map[int64]*domain.Symptom),
		diseases: make(map[int64]*domain.Disease),
	}
}

func (m *memSource) addSymptoms(ids ...int64) *memSource {
	for _, id := range ids {
		m.symptoms[id] = &domain.Symptom{
			ID:   id,
			Code: fmt.Sprintf("G%02d", id),
			Name: fmt.Sprintf("Gejala %d", id),
		}
	}
	return m
}

func (m *memSource) addDisease(id int64) *memSource {
	m.diseases[id] = &domain.Disease{
		ID:   id,
		Code: fmt.Sprintf("P%02d", id),
		Name: fmt.Sprintf("Penyakit %d", id),
	}
	return m
}

func (m *memSource) addRule(diseaseID, symptomID int64, mb, md float64, minMatch int) *memSource {
	m.rules = append(m.rules, &domain.Rule{
		ID:              int64(len(m.rules) + 1),
		DiseaseID:       diseaseID,
		SymptomID:       symptomID,
		MB:              mb,
		MD:              md,
		MinSymptomMatch: minMatch,
		Active:          true,
	})
	return m
}

func (m *memSource) ActiveRulesMatching(_ context.Context, ids []int64) ([]*domain.Rule, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*domain.Rule
	for _, r := range m.rules {
		if r.Active && slices.Contains(ids, r.SymptomID) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memSource) ActiveRuleCount(_ context.Context, diseaseID int64) (int, error) {
	n := 0
	for _, r := range m.rules {
		if r.Active && r.DiseaseID == diseaseID {
			n++
		}
	}
	return n, nil
}

func (m *memSource) Symptoms(_ context.Context, ids []int64) (map[int64]*domain.Symptom, error) {
	out := make(map[int64]*domain.Symptom, len(ids))
	for _, id := range ids {
		if s, ok := m.symptoms[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

func (m *memSource) Disease(_ context.Context, id int64) (*domain.Disease, error) {
	d, ok := m.diseases[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return d, nil
}

func (m *memSource) UnmatchedRules(_ context.Context, diseaseID int64, matched []int64) ([]*domain.Rule, error) {
	var out []*domain.Rule
	for _, r := range m.rules {
		if r.Active && r.DiseaseID == diseaseID && !slices.Contains(matched, r.SymptomID) {
			out = append(out, r)
		}
	}
	return out, nil
}

// pasti builds certainty values of 1.0 for every id.
func pasti(ids ...int64) map[string]domain.Certainty {
	out := make(map[string]domain.Certainty, len(ids))
	for _, id := range ids {
		out[strconv.FormatInt(id, 10)] = domain.LabelCertainty(domain.LabelPasti)
	}
	return out
}
