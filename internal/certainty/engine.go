package certainty

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/sipadi/padi/internal/domain"
)

// Messages returned with a no_diagnosis outcome.
const (
	MsgIncompleteInput     = "Data gejala atau keyakinan tidak lengkap"
	MsgTooFewSymptoms      = "Minimal 3 gejala harus dipilih untuk diagnosis yang akurat"
	MsgIncompleteCertainty = "Nilai keyakinan tidak lengkap untuk semua gejala"
	MsgNoMatchingDisease   = "Tidak ada penyakit yang cocok dengan gejala yang dipilih"
	MsgNoConfidentResult   = "Tidak ada diagnosis dengan tingkat keyakinan memadai"
)

var tracer = otel.Tracer("padi-certainty")

// Engine runs certainty factor diagnoses. It holds no mutable state and is
// safe for concurrent use; the rule source is supplied on every call.
type Engine struct {
	policy Policy
	logger *slog.Logger
}

// NewEngine creates an engine with the given policy.
func NewEngine(policy Policy) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Engine{policy: policy, logger: slog.Default()}, nil
}

// Policy returns the engine's ranking policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Diagnose matches the selected symptoms against src and ranks candidate diseases.
// Insufficient input yields a no_diagnosis outcome, never an error; only
// failures of src are returned as errors.
func (e *Engine) Diagnose(ctx context.Context, src domain.RuleSource, input *domain.DiagnosisInput) (*domain.Outcome, error) {
	ctx, span := tracer.Start(ctx, "certainty.Diagnose")
	defer span.End()

	out, err := e.diagnose(ctx, src, input)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("outcome.status", string(out.Status)),
		attribute.Int("outcome.results", len(out.Results)),
	)
	e.logger.DebugContext(ctx, "diagnosis evaluated",
		"status", out.Status,
		"results", len(out.Results),
		"recommendations", len(out.Recommendations),
		"warning", out.Warning,
	)
	return out, nil
}

func (e *Engine) diagnose(ctx context.Context, src domain.RuleSource, input *domain.DiagnosisInput) (*domain.Outcome, error) {
	if input == nil {
		return noDiagnosis(MsgIncompleteInput), nil
	}

	ids := dedupe(input.SymptomIDs)
	if len(ids) == 0 || len(input.Certainties) == 0 {
		return noDiagnosis(MsgIncompleteInput), nil
	}
	if len(ids) < e.policy.RequiredSymptoms {
		return noDiagnosis(MsgTooFewSymptoms), nil
	}

	normalized := Normalize(input.Certainties)
	certainties := make(map[int64]float64, len(ids))
	for _, id := range ids {
		if v, ok := normalized[id]; ok {
			certainties[id] = v
		}
	}
	if len(certainties) < e.policy.RequiredSymptoms {
		return noDiagnosis(MsgIncompleteCertainty), nil
	}

	groups, err := groupRules(ctx, src, ids)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return noDiagnosis(MsgNoMatchingDisease), nil
	}

	raw, err := e.compute(ctx, src, groups, certainties)
	if err != nil {
		return nil, err
	}

	results := e.rank(raw)
	if len(results) == 0 {
		return noDiagnosis(MsgNoConfidentResult), nil
	}

	recs, err := e.recommend(ctx, src, results)
	if err != nil {
		return nil, err
	}

	return &domain.Outcome{
		Status:          domain.StatusDiagnosed,
		Results:         results,
		Recommendations: recs,
		Warning:         e.multiInfection(results),
	}, nil
}

// diseaseGroup is the set of matched active rules of one disease.
type diseaseGroup struct {
	diseaseID int64
	rules     []*domain.Rule
	symptoms  map[int64]*domain.Symptom
}

// groupRules fetches active rules for ids and partitions them by disease.
// Groups come back in ascending disease id; rules inside a group are
// ordered by symptom code, then symptom id, which fixes the fold order.
func groupRules(ctx context.Context, src domain.RuleSource, ids []int64) ([]*diseaseGroup, error) {
	rules, err := src.ActiveRulesMatching(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load matching rules: %w", err)
	}
	if len(rules) == 0 {
		return nil, nil
	}

	symptomIDs := make([]int64, 0, len(rules))
	for _, r := range rules {
		symptomIDs = append(symptomIDs, r.SymptomID)
	}
	symptoms, err := src.Symptoms(ctx, dedupe(symptomIDs))
	if err != nil {
		return nil, fmt.Errorf("load symptoms: %w", err)
	}

	byDisease := make(map[int64]*diseaseGroup)
	for _, r := range rules {
		g, ok := byDisease[r.DiseaseID]
		if !ok {
			g = &diseaseGroup{diseaseID: r.DiseaseID, symptoms: symptoms}
			byDisease[r.DiseaseID] = g
		}
		g.rules = append(g.rules, r)
	}

	groups := make([]*diseaseGroup, 0, len(byDisease))
	for _, g := range byDisease {
		slices.SortStableFunc(g.rules, func(a, b *domain.Rule) int {
			return compareSymptoms(symptoms, a.SymptomID, b.SymptomID)
		})
		groups = append(groups, g)
	}
	slices.SortFunc(groups, func(a, b *diseaseGroup) int {
		return cmp.Compare(a.diseaseID, b.diseaseID)
	})
	return groups, nil
}

func compareSymptoms(symptoms map[int64]*domain.Symptom, a, b int64) int {
	var codeA, codeB string
	if s, ok := symptoms[a]; ok {
		codeA = s.Code
	}
	if s, ok := symptoms[b]; ok {
		codeB = s.Code
	}
	if c := cmp.Compare(codeA, codeB); c != 0 {
		return c
	}
	return cmp.Compare(a, b)
}

// compute folds each group's symptom CFs into one raw result per disease.
func (e *Engine) compute(ctx context.Context, src domain.RuleSource, groups []*diseaseGroup, certainties map[int64]float64) ([]domain.DiagnosisResult, error) {
	results := make([]domain.DiagnosisResult, 0, len(groups))

	for _, g := range groups {
		total, err := src.ActiveRuleCount(ctx, g.diseaseID)
		if err != nil {
			return nil, fmt.Errorf("count rules for disease %d: %w", g.diseaseID, err)
		}

		minMatch := 0
		values := make([]float64, 0, len(g.rules))
		res := domain.DiagnosisResult{DiseaseID: g.diseaseID}

		for _, r := range g.rules {
			if r.MinSymptomMatch > minMatch {
				minMatch = r.MinSymptomMatch
			}

			userCF, ok := certainties[r.SymptomID]
			if !ok {
				continue
			}
			values = append(values, r.CFExpert()*userCF)
			res.MatchedIDs = append(res.MatchedIDs, r.SymptomID)
			if s, ok := g.symptoms[r.SymptomID]; ok {
				res.MatchedCodes = append(res.MatchedCodes, s.Code)
				res.MatchedNames = append(res.MatchedNames, s.Name)
			}
		}

		cfRaw, ok := Fold(values)
		if !ok || total == 0 {
			continue
		}
		if minMatch == 0 {
			minMatch = e.policy.DefaultMinMatch
		}

		disease, err := src.Disease(ctx, g.diseaseID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
		case err != nil:
			return nil, fmt.Errorf("load disease %d: %w", g.diseaseID, err)
		default:
			res.DiseaseCode = disease.Code
			res.DiseaseName = disease.Name
		}

		res.CFRaw = cfRaw
		res.SymptomsMatched = len(values)
		res.TotalSymptoms = total
		res.MatchPercentage = float64(len(values)) / float64(total)
		res.MinSymptomMatch = minMatch
		res.MeetsMinMatch = len(values) >= minMatch
		results = append(results, res)
	}

	return results, nil
}

// rank applies penalties, drops weak results, and keeps the strongest ones.
func (e *Engine) rank(results []domain.DiagnosisResult) []domain.DiagnosisResult {
	kept := results[:0]
	for _, r := range results {
		r.Penalty, r.Status = e.policy.Penalty(r.SymptomsMatched)
		r.CFFinal = r.CFRaw * r.Penalty
		r.Interpretation = e.policy.Interpret(r.CFFinal)
		if r.CFFinal < e.policy.MinCF {
			continue
		}
		kept = append(kept, r)
	}

	slices.SortStableFunc(kept, func(a, b domain.DiagnosisResult) int {
		return cmp.Compare(b.CFFinal, a.CFFinal)
	})
	if len(kept) > e.policy.MaxResults {
		kept = kept[:e.policy.MaxResults]
	}
	return kept
}

// multiInfection returns the warning when several diseases are near certain.
func (e *Engine) multiInfection(results []domain.DiagnosisResult) string {
	n := 0
	for _, r := range results {
		if r.CFFinal >= e.policy.MultiInfectionCF {
			n++
		}
	}
	if n >= e.policy.MultiInfectionCount {
		return domain.WarningMultipleInfection
	}
	return ""
}

func noDiagnosis(msg string) *domain.Outcome {
	return &domain.Outcome{Status: domain.StatusNoDiagnosis, Message: msg}
}

// dedupe drops repeated ids, keeping first occurrences in order.
func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
