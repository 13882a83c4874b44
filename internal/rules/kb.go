package rules

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sipadi/padi/internal/domain"
)

//go:embed default_kb.yaml
var defaultKB []byte

// KnowledgeBase is the YAML form of symptoms, diseases and their rules.
type KnowledgeBase struct {
	Symptoms []domain.Symptom `yaml:"symptoms"`
	Diseases []KBDisease      `yaml:"diseases"`
}

// KBDisease declares a disease and the symptom codes that define it.
type KBDisease struct {
	domain.Disease `yaml:",inline"`

	Symptoms        []string `yaml:"symptoms"`
	MinSymptomMatch int      `yaml:"min_symptom_match"`
	// CF scales the symptoms' MB/MD, 1.0 when omitted.
	CF     *float64 `yaml:"cf"`
	Active *bool    `yaml:"active"`
}

// ParseKnowledgeBase decodes a YAML knowledge base.
func ParseKnowledgeBase(data []byte) (*KnowledgeBase, error) {
	var kb KnowledgeBase
	if err := yaml.Unmarshal(data, &kb); err != nil {
		return nil, fmt.Errorf("failed to parse knowledge base: %w", err)
	}
	return &kb, nil
}

// LoadKnowledgeBase reads a YAML knowledge base from disk.
func LoadKnowledgeBase(path string) (*KnowledgeBase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge base: %w", err)
	}
	return ParseKnowledgeBase(data)
}

// DefaultKnowledgeBase returns the bundled rice-disease knowledge base.
func DefaultKnowledgeBase() *KnowledgeBase {
	kb, err := ParseKnowledgeBase(defaultKB)
	if err != nil {
		panic(err)
	}
	return kb
}

// Build resolves codes into ids and derives the rules.
// Missing ids are assigned in file order starting at 1.
func (kb *KnowledgeBase) Build() ([]*domain.Symptom, []*domain.Disease, []*domain.Rule, error) {
	symptoms := make([]*domain.Symptom, 0, len(kb.Symptoms))
	byCode := make(map[string]*domain.Symptom, len(kb.Symptoms))
	byID := make(map[int64]*domain.Symptom, len(kb.Symptoms))

	for i := range kb.Symptoms {
		s := kb.Symptoms[i]
		if s.Code == "" || s.Name == "" {
			return nil, nil, nil, fmt.Errorf("symptom #%d: code and name are required", i+1)
		}
		if s.ID == 0 {
			s.ID = int64(i + 1)
		}
		if _, dup := byCode[s.Code]; dup {
			return nil, nil, nil, fmt.Errorf("duplicate symptom code %s", s.Code)
		}
		if s.MB < 0 || s.MB > 1 || s.MD < 0 || s.MD > 1 {
			return nil, nil, nil, fmt.Errorf("symptom %s: mb and md must be within [0,1]", s.Code)
		}
		byCode[s.Code] = &s
		byID[s.ID] = &s
		symptoms = append(symptoms, &s)
	}

	diseases := make([]*domain.Disease, 0, len(kb.Diseases))
	var rules []*domain.Rule
	next := 1

	for i := range kb.Diseases {
		kd := kb.Diseases[i]
		d := kd.Disease
		if d.Code == "" || d.Name == "" {
			return nil, nil, nil, fmt.Errorf("disease #%d: code and name are required", i+1)
		}
		if d.ID == 0 {
			d.ID = int64(i + 1)
		}
		diseases = append(diseases, &d)

		ids := make([]int64, 0, len(kd.Symptoms))
		for _, code := range kd.Symptoms {
			s, ok := byCode[code]
			if !ok {
				return nil, nil, nil, fmt.Errorf("disease %s: unknown symptom %s", d.Code, code)
			}
			ids = append(ids, s.ID)
		}
		if len(ids) == 0 {
			continue
		}

		draft := RuleDraft{DiseaseID: d.ID, SymptomIDs: ids, CF: kd.CF, Active: kd.Active}
		if kd.MinSymptomMatch > 0 {
			draft.MinSymptomMatch = &kd.MinSymptomMatch
		}
		built, err := BuildRules(draft, byID, next)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("disease %s: %w", d.Code, err)
		}
		for _, r := range built {
			r.ID = int64(next)
			next++
		}
		rules = append(rules, built...)
	}

	return symptoms, diseases, rules, nil
}

// Snapshot builds an in-memory rule source from the knowledge base.
func (kb *KnowledgeBase) Snapshot() (*Snapshot, error) {
	symptoms, diseases, rules, err := kb.Build()
	if err != nil {
		return nil, err
	}
	return NewSnapshot(symptoms, diseases, rules)
}
