// Package verdict turns an engine outcome into what a user receives: it
// applies submission limits, decides whether the primary result is specific
// enough to act on, attaches treatment and records the diagnosis history.
package verdict

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sipadi/padi/internal/certainty"
	"github.com/sipadi/padi/internal/domain"
	"github.com/sipadi/padi/internal/quota"
	"github.com/sipadi/padi/internal/rules"
)

// ErrNoPrimary is returned when a diagnosed outcome carries no results.
var ErrNoPrimary = errors.New("diagnosis has no primary result")

// User-facing messages.
const (
	MsgNoSymptoms        = "Pilih minimal satu gejala"
	MsgDuplicate         = "Diagnosis sudah ada, menampilkan hasil sebelumnya"
	MsgInsufficientMatch = "Hasil diagnosa gejala yang anda masukkan tidak merujuk secara spesifik " +
		"pada satu penyakit tertentu silahkan periksa kembali gejala pada tanaman padi anda"
)

// Status is the consumer-facing outcome of a submission.
type Status string

const (
	StatusNeedsCertainty    Status = "needs_certainty"
	StatusNoDiagnosis       Status = "no_diagnosis"
	StatusInsufficientMatch Status = "insufficient_match"
	StatusDiagnosed         Status = "diagnosed"
)

// InputError is a rejected submission. It matches domain.ErrInvalidInput.
type InputError struct {
	Message string
}

func (e *InputError) Error() string { return e.Message }

// Unwrap lets errors.Is(err, domain.ErrInvalidInput) match.
func (e *InputError) Unwrap() error { return domain.ErrInvalidInput }

// Request is one diagnosis submission.
type Request struct {
	UserID    string
	IPAddress string
	Input     domain.DiagnosisInput
}

// Decision is the result of Decide.
type Decision struct {
	Status  Status
	Message string

	// Outcome is nil for needs_certainty and duplicates.
	Outcome *domain.Outcome
	Primary *domain.DiagnosisResult
	Disease *domain.Disease

	// History is set when the diagnosis was saved, or is the earlier
	// diagnosis when Duplicate is true.
	History   *domain.DiagnosisHistory
	Duplicate bool

	// Symptoms lists the selected symptoms for needs_certainty.
	Symptoms []*domain.Symptom
}

// Store is the persistence the service needs.
type Store interface {
	SaveHistory(ctx context.Context, h *domain.DiagnosisHistory) error
	GetHistory(ctx context.Context, userID string, id string) (*domain.DiagnosisHistory, error)
}

// Deps wires a Service.
type Deps struct {
	Engine  *certainty.Engine
	Catalog *rules.Catalog
	Gate    *rules.Gate
	Guard   *quota.Guard
	Store   Store
	Advisor domain.TreatmentAdvisor
	// Bus is optional. Without it async treatment falls back to sync.
	Bus domain.EventBus
}

// Options tune a Service.
type Options struct {
	// Async leaves treatment pending and publishes a request on the bus.
	Async bool
	// Visible is how long a diagnosis stays in the user's history.
	Visible time.Duration
}

// Service runs diagnosis submissions end to end.
type Service struct {
	engine  *certainty.Engine
	catalog *rules.Catalog
	gate    *rules.Gate
	guard   *quota.Guard
	store   Store
	advisor domain.TreatmentAdvisor
	bus     domain.EventBus
	opts    Options
	now     func() time.Time
}

// NewService creates a Service.
func NewService(deps Deps, opts Options) *Service {
	if opts.Visible <= 0 {
		opts.Visible = 30 * 24 * time.Hour
	}
	return &Service{
		engine:  deps.Engine,
		catalog: deps.Catalog,
		gate:    deps.Gate,
		guard:   deps.Guard,
		store:   deps.Store,
		advisor: deps.Advisor,
		bus:     deps.Bus,
		opts:    opts,
		now:     time.Now,
	}
}

// Decide processes a submission.
//
// Rejected input returns an *InputError; limit violations return the quota
// errors. Everything the user should see as a normal response, including
// no_diagnosis, is a Decision.
func (s *Service) Decide(ctx context.Context, req *Request) (*Decision, error) {
	input := &req.Input
	switch {
	case len(input.SymptomIDs) == 0:
		return nil, &InputError{Message: MsgNoSymptoms}
	case len(input.SymptomIDs) < 3:
		return nil, &InputError{Message: certainty.MsgTooFewSymptoms}
	}

	if d, err := s.duplicate(ctx, req); err != nil || d != nil {
		return d, err
	}

	if s.guard != nil {
		if err := s.guard.Admit(ctx, req.UserID); err != nil {
			return nil, err
		}
	}

	// One snapshot for the whole request.
	src := s.catalog.Current()

	if len(input.Certainties) == 0 {
		symptoms, err := selectedSymptoms(ctx, src, input.SymptomIDs)
		if err != nil {
			return nil, err
		}
		return &Decision{Status: StatusNeedsCertainty, Symptoms: symptoms}, nil
	}

	outcome, err := s.engine.Diagnose(ctx, src, input)
	if err != nil {
		return nil, fmt.Errorf("diagnose: %w", err)
	}
	if outcome.Status == domain.StatusNoDiagnosis {
		return &Decision{Status: StatusNoDiagnosis, Message: outcome.Message, Outcome: outcome}, nil
	}

	primary := outcome.Primary()
	if primary == nil {
		return nil, ErrNoPrimary
	}

	disease, err := src.Disease(ctx, primary.DiseaseID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("load disease: %w", err)
	}

	allowed, err := s.gate.Allow(primary, outcome)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return &Decision{
			Status:  StatusInsufficientMatch,
			Message: MsgInsufficientMatch,
			Outcome: outcome,
			Primary: primary,
			Disease: disease,
		}, nil
	}

	history := s.newHistory(req, outcome, primary)
	treq := &domain.TreatmentRequest{
		HistoryID: history.ID,
		UserID:    req.UserID,
		Primary:   *primary,
		Secondary: outcome.Results[1:],
		Symptoms:  matchedRefs(primary),
	}
	if disease != nil {
		treq.DiseaseDescription = disease.Description
	}

	async := s.opts.Async && s.bus != nil
	switch {
	case disease == nil:
		history.TreatmentStatus = domain.TreatmentSkipped
	case async:
		history.TreatmentStatus = domain.TreatmentPending
	default:
		s.treat(ctx, history, treq)
	}

	if err := s.store.SaveHistory(ctx, history); err != nil {
		return nil, fmt.Errorf("save history: %w", err)
	}

	if s.guard != nil {
		if err := s.guard.Remember(ctx, req.UserID, input, history.ID); err != nil {
			slog.Warn("failed to remember submission", "user_id", req.UserID, "error", err)
		}
	}

	if async && disease != nil {
		s.publish(ctx, req.UserID, domain.TopicTreatmentRequested, treq)
	}
	s.publish(ctx, req.UserID, domain.TopicDiagnosisCompleted, history)

	slog.Info("diagnosis saved",
		"history_id", history.ID,
		"user_id", req.UserID,
		"disease_code", primary.DiseaseCode,
		"cf_final", primary.CFFinal,
		"treatment_status", history.TreatmentStatus,
	)

	return &Decision{
		Status:  StatusDiagnosed,
		Outcome: outcome,
		Primary: primary,
		Disease: disease,
		History: history,
	}, nil
}

func (s *Service) duplicate(ctx context.Context, req *Request) (*Decision, error) {
	if s.guard == nil {
		return nil, nil
	}
	sub, err := s.guard.Recent(ctx, req.UserID, &req.Input)
	if err != nil {
		// The duplicate check is advisory.
		slog.Warn("duplicate check failed", "user_id", req.UserID, "error", err)
		return nil, nil
	}
	if sub == nil {
		return nil, nil
	}

	h, err := s.store.GetHistory(ctx, req.UserID, sub.HistoryID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load previous diagnosis: %w", err)
	}

	d := &Decision{
		Status:    StatusDiagnosed,
		Message:   MsgDuplicate,
		History:   h,
		Duplicate: true,
	}
	if len(h.Results) > 0 {
		d.Primary = &h.Results[0]
	}
	if h.DiseaseID != nil {
		if disease, err := s.catalog.Current().Disease(ctx, *h.DiseaseID); err == nil {
			d.Disease = disease
		}
	}
	return d, nil
}

func (s *Service) newHistory(req *Request, outcome *domain.Outcome, primary *domain.DiagnosisResult) *domain.DiagnosisHistory {
	now := s.now().UTC()
	diseaseID := primary.DiseaseID
	return &domain.DiagnosisHistory{
		ID:               uuid.New().String(),
		UserID:           req.UserID,
		DiseaseID:        &diseaseID,
		SelectedSymptoms: req.Input.SymptomIDs,
		CertaintyValues:  req.Input.Certainties,
		FinalCF:          primary.CFFinal,
		CertaintyLevel:   primary.Interpretation,
		Method:           domain.MethodForwardChainingCF,
		Results:          outcome.Results,
		DiagnosedAt:      now,
		ExpiresAt:        now.Add(s.opts.Visible),
		IPAddress:        req.IPAddress,
	}
}

// treat runs the advisor inline. A failing advisor never fails the diagnosis.
func (s *Service) treat(ctx context.Context, h *domain.DiagnosisHistory, req *domain.TreatmentRequest) {
	if s.advisor == nil {
		h.TreatmentStatus = domain.TreatmentSkipped
		return
	}
	t, err := s.advisor.Advise(ctx, req)
	if err != nil || t == nil {
		slog.Warn("treatment generation failed",
			"history_id", h.ID,
			"error", err,
		)
		h.TreatmentStatus = domain.TreatmentFailed
		return
	}
	h.Treatment = t
	h.TreatmentStatus = domain.TreatmentReady
}

func (s *Service) publish(ctx context.Context, namespace, topic string, v any) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to encode event", "topic", topic, "error", err)
		return
	}
	if err := s.bus.Publish(ctx, namespace, topic, payload); err != nil {
		slog.Error("failed to publish event", "topic", topic, "error", err)
	}
}

// selectedSymptoms returns the known symptoms in submission order.
func selectedSymptoms(ctx context.Context, src domain.RuleSource, ids []int64) ([]*domain.Symptom, error) {
	found, err := src.Symptoms(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load symptoms: %w", err)
	}
	out := make([]*domain.Symptom, 0, len(found))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if s, ok := found[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, s)
		}
	}
	return out, nil
}

func matchedRefs(r *domain.DiagnosisResult) []domain.SymptomRef {
	refs := make([]domain.SymptomRef, 0, len(r.MatchedCodes))
	for i, code := range r.MatchedCodes {
		ref := domain.SymptomRef{Code: code}
		if i < len(r.MatchedNames) {
			ref.Name = r.MatchedNames[i]
		}
		refs = append(refs, ref)
	}
	return refs
}
