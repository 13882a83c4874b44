package domain

import (
	"context"
)

// TreatmentSource records who produced a treatment.
type TreatmentSource string

const (
	SourceAI       TreatmentSource = "ai"
	SourceFallback TreatmentSource = "fallback"
)

// Treatment is a structured handling plan for a diagnosed disease.
type Treatment struct {
	RawText                string            `json:"raw_text,omitempty"`
	Steps                  []string          `json:"langkah_penanganan"`
	Medicines              []Medicine        `json:"rekomendasi_obat"`
	UsageGuides            []string          `json:"panduan_penggunaan"`
	Prevention             []string          `json:"pencegahan"`
	OtherDiseasePrevention []OtherPrevention `json:"pencegahan_penyakit_lain"`
	Source                 TreatmentSource   `json:"source"`
}

// Medicine is one recommended product.
type Medicine struct {
	Name        string `json:"nama"`
	Type        string `json:"jenis"`
	ActiveAgent string `json:"bahan_aktif,omitempty"`
	Dosage      string `json:"dosis"`
	Method      string `json:"cara_pakai"`
}

// OtherPrevention lists prevention steps for a secondary candidate disease.
type OtherPrevention struct {
	DiseaseName string   `json:"penyakit"`
	Steps       []string `json:"langkah"`
}

// TreatmentRequest carries everything an advisor needs.
type TreatmentRequest struct {
	HistoryID string          `json:"history_id"`
	UserID    string          `json:"user_id"`
	Primary   DiagnosisResult `json:"primary"`
	// DiseaseDescription describes the primary disease.
	DiseaseDescription string `json:"disease_description,omitempty"`
	// Secondary holds the remaining ranked results.
	Secondary []DiagnosisResult `json:"secondary"`
	Symptoms  []SymptomRef      `json:"symptoms"`
}

// TreatmentAdvisor produces a treatment plan for a diagnosis.
type TreatmentAdvisor interface {
	Advise(ctx context.Context, req *TreatmentRequest) (*Treatment, error)
}
