package domain

// DiagnosisInput is what a user submits for one diagnosis.
// Certainties is keyed by the decimal string form of a symptom id.
type DiagnosisInput struct {
	SymptomIDs  []int64              `json:"symptom_ids"`
	Certainties map[string]Certainty `json:"certainty_values"`
}

// OutcomeStatus is the top-level result of a diagnosis run.
type OutcomeStatus string

const (
	StatusNoDiagnosis OutcomeStatus = "no_diagnosis"
	StatusDiagnosed   OutcomeStatus = "diagnosed"
)

// Confidence status derived from the number of matched symptoms.
const (
	MatchUncertain = "TIDAK PASTI"
	MatchFair      = "CUKUP VALID"
	MatchValid     = "VALID"
)

// Interpretation labels for a final certainty factor.
const (
	InterpretCertain         = "PASTI"
	InterpretAlmostCertain   = "HAMPIR PASTI"
	InterpretMostLikely      = "KEMUNGKINAN BESAR"
	InterpretPossible        = "MUNGKIN"
	InterpretUncertain       = "TIDAK PASTI"
	WarningMultipleInfection = "INFEKSI MULTIPEL TERDETEKSI"
)

// DiagnosisResult is the scored assessment for one candidate disease.
type DiagnosisResult struct {
	DiseaseID       int64    `json:"disease_id"`
	DiseaseCode     string   `json:"disease_code"`
	DiseaseName     string   `json:"disease_name"`
	CFRaw           float64  `json:"cf_raw"`
	SymptomsMatched int      `json:"symptoms_matched"`
	TotalSymptoms   int      `json:"total_symptoms"`
	MatchPercentage float64  `json:"match_percentage"`
	MinSymptomMatch int      `json:"min_symptom_match"`
	MeetsMinMatch   bool     `json:"meets_min_match"`
	MatchedIDs      []int64  `json:"matched_symptom_ids"`
	MatchedCodes    []string `json:"matched_symptoms"`
	MatchedNames    []string `json:"matched_symptom_names"`
	Penalty         float64  `json:"penalty_factor"`
	CFFinal         float64  `json:"cf_final"`
	Status          string   `json:"confidence_status"`
	Interpretation  string   `json:"interpretation"`
}

// Recommendation suggests symptoms to check for a plausible but unconfirmed disease.
type Recommendation struct {
	DiseaseCode       string       `json:"disease_code"`
	DiseaseName       string       `json:"disease_name"`
	CurrentCF         float64      `json:"current_cf"`
	SuggestedSymptoms []SymptomRef `json:"suggested_symptoms"`
	Message           string       `json:"message"`
}

// Outcome is the complete answer of the diagnostic engine.
type Outcome struct {
	Status          OutcomeStatus     `json:"status"`
	Message         string            `json:"message,omitempty"`
	Results         []DiagnosisResult `json:"results"`
	Recommendations []Recommendation  `json:"recommendations"`
	Warning         string            `json:"warning,omitempty"`
}

// Primary returns the top-ranked result, or nil.
func (o *Outcome) Primary() *DiagnosisResult {
	if o == nil || len(o.Results) == 0 {
		return nil
	}
	return &o.Results[0]
}
