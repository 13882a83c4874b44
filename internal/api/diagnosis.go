package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sipadi/padi/internal/certainty"
	"github.com/sipadi/padi/internal/domain"
	"github.com/sipadi/padi/internal/quota"
	"github.com/sipadi/padi/internal/verdict"
)

// MsgNeedsCertainty asks the user to rate each selected symptom.
const MsgNeedsCertainty = "Silakan pilih tingkat keyakinan untuk setiap gejala"

// DiagnosisResponse is the data of POST /diagnosis/start.
type DiagnosisResponse struct {
	Status  verdict.Status `json:"status"`
	Message string         `json:"message,omitempty"`

	HistoryID       string                   `json:"history_id,omitempty"`
	Duplicate       bool                     `json:"duplicate,omitempty"`
	Primary         *domain.DiagnosisResult  `json:"primary,omitempty"`
	Results         []domain.DiagnosisResult `json:"results,omitempty"`
	Recommendations []domain.Recommendation  `json:"recommendations,omitempty"`
	Warning         string                   `json:"warning,omitempty"`
	Disease         *domain.Disease          `json:"disease,omitempty"`
	Treatment       *domain.Treatment        `json:"treatment,omitempty"`
	TreatmentStatus domain.TreatmentStatus   `json:"treatment_status,omitempty"`

	Symptoms         []*domain.Symptom  `json:"symptoms,omitempty"`
	CertaintyOptions map[string]float64 `json:"certainty_options,omitempty"`
}

// StartDiagnosis handles POST /diagnosis/start.
func (h *Handler) StartDiagnosis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var input domain.DiagnosisInput
	if !decodeJSON(w, r, &input) {
		return
	}

	decision, err := h.verdict.Decide(ctx, &verdict.Request{
		UserID:    GetUserID(ctx),
		IPAddress: clientIP(r),
		Input:     input,
	})
	if err != nil {
		h.writeDecisionError(w, err)
		return
	}

	resp := &DiagnosisResponse{Status: decision.Status, Message: decision.Message}
	if decision.Outcome != nil {
		resp.Results = roundResults(decision.Outcome.Results)
		resp.Recommendations = roundRecommendations(decision.Outcome.Recommendations)
		resp.Warning = decision.Outcome.Warning
	}
	if len(resp.Results) > 0 {
		resp.Primary = &resp.Results[0]
	}
	resp.Disease = decision.Disease

	switch decision.Status {
	case verdict.StatusNeedsCertainty:
		h.metrics.observeDiagnosis(string(decision.Status), "")
		resp.Message = MsgNeedsCertainty
		resp.Symptoms = decision.Symptoms
		resp.CertaintyOptions = certainty.Options()
		writeSuccess(w, http.StatusOK, resp.Message, resp)

	case verdict.StatusNoDiagnosis:
		h.metrics.observeDiagnosis(string(decision.Status), "")
		writeJSON(w, http.StatusBadRequest, Envelope{Success: false, Message: decision.Message, Data: resp})

	case verdict.StatusInsufficientMatch:
		h.metrics.observeDiagnosis(string(decision.Status), "")
		writeSuccess(w, http.StatusOK, decision.Message, resp)

	default:
		hist := decision.History
		resp.HistoryID = hist.ID
		resp.Duplicate = decision.Duplicate
		resp.Treatment = hist.Treatment
		resp.TreatmentStatus = hist.TreatmentStatus
		if decision.Duplicate {
			resp.Results = roundResults(hist.Results)
			if len(resp.Results) > 0 {
				resp.Primary = &resp.Results[0]
			}
		} else {
			code := ""
			if decision.Primary != nil {
				code = decision.Primary.DiseaseCode
			}
			h.metrics.observeDiagnosis(string(decision.Status), code)
		}
		writeSuccess(w, http.StatusOK, resp.Message, resp)
	}
}

func (h *Handler) writeDecisionError(w http.ResponseWriter, err error) {
	var inputErr *verdict.InputError
	var limitErr *quota.LimitError
	switch {
	case errors.As(err, &inputErr):
		h.metrics.observeDiagnosis("rejected", "")
		writeError(w, http.StatusBadRequest, inputErr.Message)

	case errors.As(err, &limitErr):
		h.metrics.observeDiagnosis("limited", "")
		writeJSON(w, http.StatusTooManyRequests, Envelope{
			Success: false,
			Message: fmt.Sprintf("Anda telah mencapai batas diagnosis hari ini (%d diagnosis). Silakan coba lagi besok.", limitErr.Max),
			Data: map[string]any{
				"limit_reached": true,
				"max_per_day":   limitErr.Max,
			},
		})

	case errors.Is(err, quota.ErrTooManyRequests):
		h.metrics.observeDiagnosis("limited", "")
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, "Terlalu banyak permintaan diagnosis. Silakan tunggu sebentar.")

	default:
		writeDomainError(w, "diagnosis failed", err)
	}
}

// round4 rounds a certainty value for display.
func round4(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(4).Float64()
	return f
}

func roundResults(in []domain.DiagnosisResult) []domain.DiagnosisResult {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.DiagnosisResult, len(in))
	for i, r := range in {
		r.CFRaw = round4(r.CFRaw)
		r.CFFinal = round4(r.CFFinal)
		r.Penalty = round4(r.Penalty)
		r.MatchPercentage = round4(r.MatchPercentage)
		out[i] = r
	}
	return out
}

func roundRecommendations(in []domain.Recommendation) []domain.Recommendation {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.Recommendation, len(in))
	for i, r := range in {
		r.CurrentCF = round4(r.CurrentCF)
		out[i] = r
	}
	return out
}

func roundHistory(h *domain.DiagnosisHistory) {
	h.FinalCF = round4(h.FinalCF)
	h.Results = roundResults(h.Results)
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
