package domain

import (
	"time"
)

// TreatmentStatus tracks treatment generation for a saved diagnosis.
type TreatmentStatus string

const (
	TreatmentPending TreatmentStatus = "pending"
	TreatmentReady   TreatmentStatus = "ready"
	TreatmentSkipped TreatmentStatus = "skipped"
	TreatmentFailed  TreatmentStatus = "failed"
)

// DiagnosisHistory is a persisted diagnosis belonging to one user.
type DiagnosisHistory struct {
	ID               string               `json:"id"`
	UserID           string               `json:"user_id"`
	DiseaseID        *int64               `json:"disease_id,omitempty"`
	SelectedSymptoms []int64              `json:"selected_symptoms"`
	CertaintyValues  map[string]Certainty `json:"certainty_values"`
	FinalCF          float64              `json:"final_cf"`
	CertaintyLevel   string               `json:"certainty_level"`
	Method           string               `json:"diagnosis_method"`
	Results          []DiagnosisResult    `json:"results"`
	Treatment        *Treatment           `json:"treatment,omitempty"`
	TreatmentStatus  TreatmentStatus      `json:"treatment_status"`
	DiagnosedAt      time.Time            `json:"diagnosed_at"`
	ExpiresAt        time.Time            `json:"expires_at"`
	IPAddress        string               `json:"ip_address,omitempty"`
}

// MethodForwardChainingCF names the inference method recorded in history.
const MethodForwardChainingCF = "forward_chaining_cf"

// Setting is a runtime-tunable key/value pair.
type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Well-known setting keys.
const (
	SettingMaxDiagnosesPerDay   = "max_diagnoses_per_day"
	SettingHistoryRetentionDays = "history_retention_days"
)
