// Package rules holds the in-memory knowledge base: immutable snapshots of
// symptoms, diseases and rules, an atomically reloadable catalog, rule
// authoring helpers and the CEL verdict gate.
package rules

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/sipadi/padi/internal/domain"
)

// Snapshot is an immutable knowledge base implementing domain.RuleSource.
// Callers must not modify the values it returns.
type Snapshot struct {
	symptoms  map[int64]*domain.Symptom
	diseases  map[int64]*domain.Disease
	rules     []*domain.Rule
	bySymptom map[int64][]*domain.Rule // active only
	byDisease map[int64][]*domain.Rule // active only
	loadedAt  time.Time
}

// NewSnapshot indexes the given knowledge base.
// Every rule must reference a known disease and symptom.
func NewSnapshot(symptoms []*domain.Symptom, diseases []*domain.Disease, rules []*domain.Rule) (*Snapshot, error) {
	s := &Snapshot{
		symptoms:  make(map[int64]*domain.Symptom, len(symptoms)),
		diseases:  make(map[int64]*domain.Disease, len(diseases)),
		rules:     make([]*domain.Rule, 0, len(rules)),
		bySymptom: make(map[int64][]*domain.Rule),
		byDisease: make(map[int64][]*domain.Rule),
		loadedAt:  time.Now().UTC(),
	}

	for _, sym := range symptoms {
		if _, dup := s.symptoms[sym.ID]; dup {
			return nil, fmt.Errorf("duplicate symptom id %d", sym.ID)
		}
		cp := *sym
		s.symptoms[sym.ID] = &cp
	}
	for _, d := range diseases {
		if _, dup := s.diseases[d.ID]; dup {
			return nil, fmt.Errorf("duplicate disease id %d", d.ID)
		}
		cp := *d
		s.diseases[d.ID] = &cp
	}

	for _, r := range rules {
		if _, ok := s.diseases[r.DiseaseID]; !ok {
			return nil, fmt.Errorf("rule %s: unknown disease %d", r.Code, r.DiseaseID)
		}
		if _, ok := s.symptoms[r.SymptomID]; !ok {
			return nil, fmt.Errorf("rule %s: unknown symptom %d", r.Code, r.SymptomID)
		}
		cp := *r
		s.rules = append(s.rules, &cp)
		if cp.Active {
			s.bySymptom[cp.SymptomID] = append(s.bySymptom[cp.SymptomID], &cp)
			s.byDisease[cp.DiseaseID] = append(s.byDisease[cp.DiseaseID], &cp)
		}
	}

	return s, nil
}

// KnowledgeReader is the part of the repository a snapshot is loaded from.
type KnowledgeReader interface {
	ListSymptoms(ctx context.Context) ([]*domain.Symptom, error)
	ListDiseases(ctx context.Context) ([]*domain.Disease, error)
	ListRules(ctx context.Context) ([]*domain.Rule, error)
}

// LoadSnapshot reads the full knowledge base from a store.
func LoadSnapshot(ctx context.Context, store KnowledgeReader) (*Snapshot, error) {
	symptoms, err := store.ListSymptoms(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list symptoms: %w", err)
	}
	diseases, err := store.ListDiseases(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list diseases: %w", err)
	}
	rules, err := store.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return NewSnapshot(symptoms, diseases, rules)
}

// ActiveRulesMatching returns active rules whose symptom is in symptomIDs.
func (s *Snapshot) ActiveRulesMatching(_ context.Context, symptomIDs []int64) ([]*domain.Rule, error) {
	seen := make(map[int64]bool, len(symptomIDs))
	var out []*domain.Rule
	for _, id := range symptomIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, s.bySymptom[id]...)
	}
	slices.SortFunc(out, func(a, b *domain.Rule) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// ActiveRuleCount returns the number of active rules of a disease.
func (s *Snapshot) ActiveRuleCount(_ context.Context, diseaseID int64) (int, error) {
	return len(s.byDisease[diseaseID]), nil
}

// Symptoms returns the known symptoms among ids.
func (s *Snapshot) Symptoms(_ context.Context, ids []int64) (map[int64]*domain.Symptom, error) {
	out := make(map[int64]*domain.Symptom, len(ids))
	for _, id := range ids {
		if sym, ok := s.symptoms[id]; ok {
			out[id] = sym
		}
	}
	return out, nil
}

// Disease returns a disease or domain.ErrNotFound.
func (s *Snapshot) Disease(_ context.Context, id int64) (*domain.Disease, error) {
	d, ok := s.diseases[id]
	if !ok {
		return nil, fmt.Errorf("disease %d: %w", id, domain.ErrNotFound)
	}
	return d, nil
}

// UnmatchedRules returns active rules of a disease whose symptom is not in matched.
func (s *Snapshot) UnmatchedRules(_ context.Context, diseaseID int64, matched []int64) ([]*domain.Rule, error) {
	var out []*domain.Rule
	for _, r := range s.byDisease[diseaseID] {
		if !slices.Contains(matched, r.SymptomID) {
			out = append(out, r)
		}
	}
	return out, nil
}

// AllSymptoms returns every symptom ordered by code.
func (s *Snapshot) AllSymptoms() []*domain.Symptom {
	out := make([]*domain.Symptom, 0, len(s.symptoms))
	for _, sym := range s.symptoms {
		out = append(out, sym)
	}
	slices.SortFunc(out, func(a, b *domain.Symptom) int {
		return cmp.Or(cmp.Compare(a.Code, b.Code), cmp.Compare(a.ID, b.ID))
	})
	return out
}

// AllDiseases returns every disease ordered by code.
func (s *Snapshot) AllDiseases() []*domain.Disease {
	out := make([]*domain.Disease, 0, len(s.diseases))
	for _, d := range s.diseases {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b *domain.Disease) int {
		return cmp.Or(cmp.Compare(a.Code, b.Code), cmp.Compare(a.ID, b.ID))
	})
	return out
}

// AllRules returns every rule, active or not, in load order.
func (s *Snapshot) AllRules() []*domain.Rule {
	return slices.Clone(s.rules)
}

// Stats reports the snapshot size.
func (s *Snapshot) Stats() (symptoms, diseases, activeRules int) {
	for _, rs := range s.byDisease {
		activeRules += len(rs)
	}
	return len(s.symptoms), len(s.diseases), activeRules
}

// LoadedAt returns when the snapshot was built.
func (s *Snapshot) LoadedAt() time.Time {
	return s.loadedAt
}

var _ domain.RuleSource = (*Snapshot)(nil)
