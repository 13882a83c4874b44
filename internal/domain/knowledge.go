// Package domain defines the core interfaces and types for Padi.
package domain

// Symptom is an observable sign on a rice plant (G01, G02, ...).
type Symptom struct {
	ID          int64   `json:"id" yaml:"id"`
	Code        string  `json:"code" yaml:"code"`
	Name        string  `json:"name" yaml:"name"`
	Category    string  `json:"category,omitempty" yaml:"category"` // daun, batang, akar, bulir, malai, pertumbuhan
	Description string  `json:"description,omitempty" yaml:"description"`
	MB          float64 `json:"mb_value" yaml:"mb"`
	MD          float64 `json:"md_value" yaml:"md"`
}

// CFBase returns the symptom's baseline certainty factor (MB - MD).
func (s *Symptom) CFBase() float64 {
	return s.MB - s.MD
}

// Ref returns the code/name pair used for display.
func (s *Symptom) Ref() SymptomRef {
	return SymptomRef{Code: s.Code, Name: s.Name}
}

// Disease is a rice-plant disease (P01, P02, ...).
type Disease struct {
	ID          int64  `json:"id" yaml:"id"`
	Code        string `json:"code" yaml:"code"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description"`
}

// Rule links one disease to one symptom with its own MB/MD pair.
// All rules of a disease carry the same MinSymptomMatch.
type Rule struct {
	ID              int64   `json:"id"`
	Code            string  `json:"rule_code"`
	DiseaseID       int64   `json:"disease_id"`
	SymptomID       int64   `json:"symptom_id"`
	ConfidenceLevel float64 `json:"confidence_level"`
	MB              float64 `json:"mb"`
	MD              float64 `json:"md"`
	MinSymptomMatch int     `json:"min_symptom_match"`
	Active          bool    `json:"is_active"`
}

// CFExpert returns the expert certainty factor of the rule (mb - md).
func (r *Rule) CFExpert() float64 {
	return r.MB - r.MD
}

// SymptomRef is a code/name pair shown to users.
type SymptomRef struct {
	Code string `json:"code"`
	Name string `json:"name"`
}
