package certainty

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipadi/padi/internal/domain"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultPolicy())
	require.NoError(t, err)
	return e
}

func diagnose(t *testing.T, src domain.RuleSource, ids []int64, certs map[string]domain.Certainty) *domain.Outcome {
	t.Helper()
	out, err := newTestEngine(t).Diagnose(context.Background(), src, &domain.DiagnosisInput{
		SymptomIDs:  ids,
		Certainties: certs,
	})
	require.NoError(t, err)
	require.NotNil(t, out)
	return out
}

func TestDiagnoseFullMatch(t *testing.T) {
	src := newMemSource().addSymptoms(1, 2, 3).addDisease(1).
		addRule(1, 1, 0.8, 0.2, 3).
		addRule(1, 2, 0.8, 0.2, 3).
		addRule(1, 3, 0.8, 0.2, 3)

	out := diagnose(t, src, []int64{1, 2, 3}, pasti(1, 2, 3))

	require.Equal(t, domain.StatusDiagnosed, out.Status)
	require.Len(t, out.Results, 1)

	r := out.Results[0]
	assert.Equal(t, int64(1), r.DiseaseID)
	assert.Equal(t, "P01", r.DiseaseCode)
	assert.Equal(t, "Penyakit 1", r.DiseaseName)
	assert.InDelta(t, 0.936, r.CFRaw, 1e-9)
	assert.Equal(t, 1.0, r.Penalty)
	assert.InDelta(t, 0.936, r.CFFinal, 1e-9)
	assert.Equal(t, domain.InterpretCertain, r.Interpretation)
	assert.Equal(t, domain.MatchValid, r.Status)
	assert.True(t, r.MeetsMinMatch)
	assert.Equal(t, 3, r.SymptomsMatched)
	assert.Equal(t, 3, r.TotalSymptoms)
	assert.Equal(t, 1.0, r.MatchPercentage)
	assert.Equal(t, []int64{1, 2, 3}, r.MatchedIDs)
	assert.Equal(t, []string{"G01", "G02", "G03"}, r.MatchedCodes)
	assert.Empty(t, out.Recommendations)
	assert.Empty(t, out.Warning)
}

func TestDiagnoseSingleMatchPenalty(t *testing.T) {
	src := newMemSource().addSymptoms(1, 2, 3, 4, 5).addDisease(1).
		addRule(1, 1, 1.0, 0.0, 3).
		addRule(1, 4, 0.8, 0.1, 3).
		addRule(1, 5, 0.8, 0.1, 3)

	out := diagnose(t, src, []int64{1, 2, 3}, pasti(1, 2, 3))

	require.Equal(t, domain.StatusDiagnosed, out.Status)
	require.Len(t, out.Results, 1)
	r := out.Results[0]
	assert.Equal(t, 0.5, r.Penalty)
	assert.Equal(t, domain.MatchUncertain, r.Status)
	assert.InDelta(t, 0.5, r.CFFinal, 1e-12)
	assert.False(t, r.MeetsMinMatch)
	assert.InDelta(t, 1.0/3.0, r.MatchPercentage, 1e-12)
}

func TestDiagnoseInvalidInput(t *testing.T) {
	src := newMemSource().addSymptoms(1, 2, 3).addDisease(1).
		addRule(1, 1, 0.8, 0.2, 3)

	tests := []struct {
		name  string
		ids   []int64
		certs map[string]domain.Certainty
		want  string
	}{
		{"no certainties", []int64{1, 2, 3}, nil, MsgIncompleteInput},
		{"empty certainties", []int64{1, 2, 3}, map[string]domain.Certainty{}, MsgIncompleteInput},
		{"no symptoms", nil, pasti(1, 2, 3), MsgIncompleteInput},
		{"two symptoms", []int64{1, 2}, pasti(1, 2), MsgTooFewSymptoms},
		{"duplicates collapse", []int64{1, 1, 2}, pasti(1, 2), MsgTooFewSymptoms},
		{"missing certainty", []int64{1, 2, 3}, pasti(1, 2), MsgIncompleteCertainty},
		{"garbage keys", []int64{1, 2, 3}, map[string]domain.Certainty{
			"a": domain.NumericCertainty(1), "b": domain.NumericCertainty(1), "c": domain.NumericCertainty(1),
		}, MsgIncompleteCertainty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := diagnose(t, src, tt.ids, tt.certs)
			assert.Equal(t, domain.StatusNoDiagnosis, out.Status)
			assert.Equal(t, tt.want, out.Message)
			assert.Empty(t, out.Results)
		})
	}
}

func TestDiagnoseNilInput(t *testing.T) {
	out, err := newTestEngine(t).Diagnose(context.Background(), newMemSource(), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNoDiagnosis, out.Status)
}

func TestDiagnoseNoMatchingDisease(t *testing.T) {
	src := newMemSource().addSymptoms(1, 2, 3, 9).addDisease(1).
		addRule(1, 9, 0.8, 0.2, 3)

	out := diagnose(t, src, []int64{1, 2, 3}, pasti(1, 2, 3))
	assert.Equal(t, domain.StatusNoDiagnosis, out.Status)
	assert.Equal(t, MsgNoMatchingDisease, out.Message)
}

func TestDiagnoseInactiveRulesIgnored(t *testing.T) {
	src := newMemSource().addSymptoms(1, 2, 3).addDisease(1).
		addRule(1, 1, 0.8, 0.2, 3).
		addRule(1, 2, 0.8, 0.2, 3)
	for _, r := range src.rules {
		r.Active = false
	}

	out := diagnose(t, src, []int64{1, 2, 3}, pasti(1, 2, 3))
	assert.Equal(t, MsgNoMatchingDisease, out.Message)
}

func TestDiagnoseBelowThreshold(t *testing.T) {
	src := newMemSource().addSymptoms(1, 2, 3).addDisease(1).
		addRule(1, 1, 0.5, 0.2, 3)

	// 0.3 * 0.5 penalty = 0.15 < 0.20
	out := diagnose(t, src, []int64{1, 2, 3}, pasti(1, 2, 3))
	assert.Equal(t, domain.StatusNoDiagnosis, out.Status)
	assert.Equal(t, MsgNoConfidentResult, out.Message)
}

func TestDiagnoseMultiInfection(t *testing.T) {
	src := newMemSource().addSymptoms(1, 2, 3, 4, 5, 6).addDisease(1).addDisease(2)
	for _, s := range []int64{1, 2, 3} {
		src.addRule(1, s, 1.0, 0.1, 3)
	}
	for _, s := range []int64{4, 5, 6} {
		src.addRule(2, s, 1.0, 0.1, 3)
	}

	out := diagnose(t, src, []int64{1, 2, 3, 4, 5, 6}, pasti(1, 2, 3, 4, 5, 6))

	require.Equal(t, domain.StatusDiagnosed, out.Status)
	require.Len(t, out.Results, 2)
	for _, r := range out.Results {
		assert.GreaterOrEqual(t, r.CFFinal, 0.8)
	}
	assert.Equal(t, domain.WarningMultipleInfection, out.Warning)
}

func TestDiagnoseSingleConfidentNoWarning(t *testing.T) {
	src := newMemSource().addSymptoms(1, 2, 3, 4).addDisease(1).addDisease(2)
	for _, s := range []int64{1, 2, 3} {
		src.addRule(1, s, 1.0, 0.1, 3)
	}
	src.addRule(2, 4, 0.9, 0.1, 3)

	out := diagnose(t, src, []int64{1, 2, 3, 4}, pasti(1, 2, 3, 4))
	require.Len(t, out.Results, 2)
	assert.Less(t, out.Results[1].CFFinal, 0.8)
	assert.Empty(t, out.Warning)
}

func TestDiagnoseRecommendations(t *testing.T) {
	src := newMemSource().addSymptoms(1, 2, 3, 4, 5).addDisease(1).
		addRule(1, 5, 0.6, 0.2, 3).
		addRule(1, 1, 0.75, 0.2, 3).
		addRule(1, 2, 0.3, 0.3, 3).
		addRule(1, 3, 0.3, 0.3, 3).
		addRule(1, 4, 0.6, 0.2, 3)

	out := diagnose(t, src, []int64{1, 2, 3}, pasti(1, 2, 3))

	require.Equal(t, domain.StatusDiagnosed, out.Status)
	require.Len(t, out.Results, 1)
	assert.InDelta(t, 0.55, out.Results[0].CFFinal, 1e-9)
	assert.Equal(t, domain.InterpretMostLikely, out.Results[0].Interpretation)

	require.Len(t, out.Recommendations, 1)
	rec := out.Recommendations[0]
	assert.Equal(t, "P01", rec.DiseaseCode)
	assert.InDelta(t, 0.55, rec.CurrentCF, 1e-9)
	assert.Equal(t, []domain.SymptomRef{
		{Code: "G04", Name: "Gejala 4"},
		{Code: "G05", Name: "Gejala 5"},
	}, rec.SuggestedSymptoms)
	assert.Equal(t, "Untuk memastikan diagnosis Penyakit 1, periksa apakah tanaman juga menunjukkan gejala berikut:", rec.Message)
}

func TestDiagnoseRecommendationLimit(t *testing.T) {
	src := newMemSource().addSymptoms(1, 2, 3, 4, 5, 6, 7, 8, 9).addDisease(1)
	src.addRule(1, 1, 0.75, 0.2, 3)
	src.addRule(1, 2, 0.3, 0.3, 3)
	src.addRule(1, 3, 0.3, 0.3, 3)
	for _, s := range []int64{9, 8, 7, 6, 5, 4} {
		src.addRule(1, s, 0.7, 0.1, 3)
	}

	out := diagnose(t, src, []int64{1, 2, 3}, pasti(1, 2, 3))
	require.Len(t, out.Recommendations, 1)

	var codes []string
	for _, s := range out.Recommendations[0].SuggestedSymptoms {
		codes = append(codes, s.Code)
	}
	assert.Equal(t, []string{"G04", "G05", "G06", "G07"}, codes)
}

func TestDiagnoseNoRecommendationWhenProfileComplete(t *testing.T) {
	src := newMemSource().addSymptoms(1, 2, 3).addDisease(1).
		addRule(1, 1, 0.75, 0.2, 3).
		addRule(1, 2, 0.3, 0.3, 3).
		addRule(1, 3, 0.3, 0.3, 3)

	out := diagnose(t, src, []int64{1, 2, 3}, pasti(1, 2, 3))
	require.Len(t, out.Results, 1)
	assert.InDelta(t, 0.55, out.Results[0].CFFinal, 1e-9)
	assert.Empty(t, out.Recommendations)
}

func TestDiagnoseRankingInvariants(t *testing.T) {
	src := newMemSource().addSymptoms(1, 2, 3)
	mbs := []float64{0.5, 0.9, 0.3, 0.7, 0.8, 0.1}
	for i, mb := range mbs {
		d := int64(i + 1)
		src.addDisease(d)
		src.addRule(d, 1, mb, 0, 3)
		src.addRule(d, 2, mb, 0, 3)
		src.addRule(d, 3, mb, 0, 3)
	}

	out := diagnose(t, src, []int64{1, 2, 3}, pasti(1, 2, 3))

	require.Equal(t, domain.StatusDiagnosed, out.Status)
	assert.LessOrEqual(t, len(out.Results), 3)
	for i, r := range out.Results {
		assert.GreaterOrEqual(t, r.CFFinal, 0.2)
		if i > 0 {
			assert.GreaterOrEqual(t, out.Results[i-1].CFFinal, r.CFFinal)
		}
	}
	assert.Equal(t, int64(2), out.Results[0].DiseaseID)
	assert.Equal(t, int64(5), out.Results[1].DiseaseID)
	assert.Equal(t, int64(4), out.Results[2].DiseaseID)
}

func TestDiagnoseTiesKeepDiseaseOrder(t *testing.T) {
	src := newMemSource().addSymptoms(1, 2, 3)
	for _, d := range []int64{7, 3, 5} {
		src.addDisease(d)
		for _, s := range []int64{1, 2, 3} {
			src.addRule(d, s, 0.8, 0.2, 3)
		}
	}

	for i := 0; i < 5; i++ {
		out := diagnose(t, src, []int64{3, 1, 2}, pasti(1, 2, 3))
		require.Len(t, out.Results, 3)
		assert.Equal(t, int64(3), out.Results[0].DiseaseID)
		assert.Equal(t, int64(5), out.Results[1].DiseaseID)
		assert.Equal(t, int64(7), out.Results[2].DiseaseID)
	}
}

func TestDiagnoseFoldOrderBySymptomCode(t *testing.T) {
	src := newMemSource().addSymptoms(1, 2, 3).addDisease(1)
	// Insert rules out of code order with mixed signs.
	src.addRule(1, 3, 0.2, 0.6, 3)
	src.addRule(1, 1, 0.9, 0.1, 3)
	src.addRule(1, 2, 0.7, 0.2, 3)

	certs := map[string]domain.Certainty{
		"1": domain.NumericCertainty(0.9),
		"2": domain.LabelCertainty(domain.LabelMungkin),
		"3": domain.NumericCertainty(1),
	}
	out := diagnose(t, src, []int64{2, 3, 1}, certs)
	require.Len(t, out.Results, 1)

	cf := func(mb, md, c float64) float64 { return (mb - md) * c }
	want, _ := Fold([]float64{cf(0.9, 0.1, 0.9), cf(0.7, 0.2, 0.4), cf(0.2, 0.6, 1)})
	assert.Equal(t, want, out.Results[0].CFRaw)
	assert.Equal(t, []string{"G01", "G02", "G03"}, out.Results[0].MatchedCodes)
}

func TestDiagnoseMinMatchDefault(t *testing.T) {
	src := newMemSource().addSymptoms(1, 2, 3).addDisease(1).
		addRule(1, 1, 0.9, 0.1, 0).
		addRule(1, 2, 0.9, 0.1, 0)

	out := diagnose(t, src, []int64{1, 2, 3}, pasti(1, 2, 3))
	require.Len(t, out.Results, 1)
	assert.Equal(t, 3, out.Results[0].MinSymptomMatch)
	assert.False(t, out.Results[0].MeetsMinMatch)
	assert.Equal(t, domain.MatchFair, out.Results[0].Status)
}

func TestDiagnoseUnknownDiseaseStillRanked(t *testing.T) {
	src := newMemSource().addSymptoms(1, 2, 3)
	for _, s := range []int64{1, 2, 3} {
		src.addRule(42, s, 0.9, 0.1, 3)
	}

	out := diagnose(t, src, []int64{1, 2, 3}, pasti(1, 2, 3))
	require.Len(t, out.Results, 1)
	assert.Equal(t, int64(42), out.Results[0].DiseaseID)
	assert.Empty(t, out.Results[0].DiseaseCode)
}

func TestDiagnoseSourceErrorPropagates(t *testing.T) {
	boom := errors.New("connection reset")
	src := newMemSource().addSymptoms(1, 2, 3)
	src.err = boom

	out, err := newTestEngine(t).Diagnose(context.Background(), src, &domain.DiagnosisInput{
		SymptomIDs:  []int64{1, 2, 3},
		Certainties: pasti(1, 2, 3),
	})
	assert.Nil(t, out)
	assert.ErrorIs(t, err, boom)
}

func TestDiagnoseConcurrent(t *testing.T) {
	src := newMemSource().addSymptoms(1, 2, 3).addDisease(1).
		addRule(1, 1, 0.8, 0.2, 3).
		addRule(1, 2, 0.8, 0.2, 3).
		addRule(1, 3, 0.8, 0.2, 3)
	e := newTestEngine(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := e.Diagnose(context.Background(), src, &domain.DiagnosisInput{
				SymptomIDs:  []int64{1, 2, 3},
				Certainties: pasti(1, 2, 3),
			})
			assert.NoError(t, err)
			assert.Equal(t, domain.StatusDiagnosed, out.Status)
		}()
	}
	wg.Wait()
}
