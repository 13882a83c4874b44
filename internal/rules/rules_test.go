package rules

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/sipadi/padi/internal/domain"
)

func testSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	snap, err := DefaultKnowledgeBase().Snapshot()
	if err != nil {
		t.Fatalf("failed to build default snapshot: %v", err)
	}
	return snap
}

func TestDefaultKnowledgeBase(t *testing.T) {
	snap := testSnapshot(t)

	symptoms, diseases, rules := snap.Stats()
	if symptoms != 18 {
		t.Errorf("expected 18 symptoms, got %d", symptoms)
	}
	if diseases != 6 {
		t.Errorf("expected 6 diseases, got %d", diseases)
	}
	if rules != 22 {
		t.Errorf("expected 22 active rules, got %d", rules)
	}

	all := snap.AllRules()
	if all[0].Code != "R001" || all[len(all)-1].Code != "R022" {
		t.Errorf("unexpected rule codes %s..%s", all[0].Code, all[len(all)-1].Code)
	}
	for _, r := range all {
		if r.MinSymptomMatch != 3 {
			t.Errorf("rule %s: expected min match 3, got %d", r.Code, r.MinSymptomMatch)
		}
	}
}

func TestSnapshotRuleSource(t *testing.T) {
	snap := testSnapshot(t)
	ctx := context.Background()

	t.Run("ActiveRulesMatching", func(t *testing.T) {
		// G01 belongs to P01, P02 and P05.
		rules, err := snap.ActiveRulesMatching(ctx, []int64{1, 1})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var diseases []int64
		for _, r := range rules {
			diseases = append(diseases, r.DiseaseID)
		}
		if diff := cmp.Diff([]int64{1, 2, 5}, diseases); diff != "" {
			t.Errorf("matching diseases mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("ActiveRuleCount", func(t *testing.T) {
		n, _ := snap.ActiveRuleCount(ctx, 3)
		if n != 3 {
			t.Errorf("expected 3 rules for P03, got %d", n)
		}
		n, _ = snap.ActiveRuleCount(ctx, 99)
		if n != 0 {
			t.Errorf("expected 0 rules for unknown disease, got %d", n)
		}
	})

	t.Run("Symptoms", func(t *testing.T) {
		got, _ := snap.Symptoms(ctx, []int64{2, 404})
		if len(got) != 1 || got[2].Code != "G02" {
			t.Errorf("unexpected symptoms: %+v", got)
		}
	})

	t.Run("Disease", func(t *testing.T) {
		d, err := snap.Disease(ctx, 5)
		if err != nil || d.Name != "Tungro" {
			t.Errorf("expected Tungro, got %+v (%v)", d, err)
		}
		_, err = snap.Disease(ctx, 404)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("UnmatchedRules", func(t *testing.T) {
		rules, _ := snap.UnmatchedRules(ctx, 1, []int64{1, 2})
		var ids []int64
		for _, r := range rules {
			ids = append(ids, r.SymptomID)
		}
		if diff := cmp.Diff([]int64{7, 12}, ids); diff != "" {
			t.Errorf("unmatched symptoms mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestSnapshotIgnoresInactiveRules(t *testing.T) {
	off := false
	snap, err := NewSnapshot(
		[]*domain.Symptom{{ID: 1, Code: "G01", Name: "a"}},
		[]*domain.Disease{{ID: 1, Code: "P01", Name: "b"}},
		[]*domain.Rule{{ID: 1, Code: "R001", DiseaseID: 1, SymptomID: 1, Active: off}},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rules, _ := snap.ActiveRulesMatching(context.Background(), []int64{1})
	if len(rules) != 0 {
		t.Errorf("expected no active rules, got %d", len(rules))
	}
	if len(snap.AllRules()) != 1 {
		t.Errorf("inactive rule should still be listed")
	}
}

func TestSnapshotRejectsDanglingRule(t *testing.T) {
	_, err := NewSnapshot(
		[]*domain.Symptom{{ID: 1, Code: "G01"}},
		nil,
		[]*domain.Rule{{Code: "R001", DiseaseID: 7, SymptomID: 1, Active: true}},
	)
	if err == nil {
		t.Error("expected error for rule with unknown disease")
	}
}

func TestCatalogReload(t *testing.T) {
	first := testSnapshot(t)
	second, err := NewSnapshot(nil, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var mu sync.Mutex
	loads := []*Snapshot{first, second}
	fail := false
	loader := func(context.Context) (*Snapshot, error) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return nil, errors.New("database unavailable")
		}
		s := loads[0]
		loads = loads[1:]
		return s, nil
	}

	cat, err := NewCatalog(context.Background(), loader)
	if err != nil {
		t.Fatalf("failed to create catalog: %v", err)
	}
	held := cat.Current()
	if held != first {
		t.Fatal("expected first snapshot")
	}

	if _, err := cat.Reload(context.Background()); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if cat.Current() != second {
		t.Error("expected reload to swap snapshot")
	}

	// Readers holding the old snapshot keep a consistent view.
	if n, _ := held.ActiveRuleCount(context.Background(), 1); n != 4 {
		t.Errorf("old snapshot changed: %d rules for P01", n)
	}

	fail = true
	if _, err := cat.Reload(context.Background()); err == nil {
		t.Error("expected reload error")
	}
	if cat.Current() != second {
		t.Error("failed reload must keep previous snapshot")
	}
}

func TestStaticCatalog(t *testing.T) {
	snap := testSnapshot(t)
	cat := StaticCatalog(snap)
	got, err := cat.Reload(context.Background())
	if err != nil || got != snap || cat.Current() != snap {
		t.Errorf("static catalog should always serve the same snapshot")
	}
}

func TestBuildRules(t *testing.T) {
	symptoms := map[int64]*domain.Symptom{
		1: {ID: 1, Code: "G01", MB: 0.8, MD: 0.2},
		2: {ID: 2, Code: "G02", MB: 0.7, MD: 0.3},
		3: {ID: 3, Code: "G03", MB: 0.9, MD: 0.1},
	}
	half := 0.5

	rules, err := BuildRules(RuleDraft{DiseaseID: 4, SymptomIDs: []int64{3, 1, 2, 1}, CF: &half}, symptoms, 12)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rules) != 3 {
		t.Fatalf("expected 3 rules, got %d", len(rules))
	}

	want := []struct {
		code      string
		symptomID int64
		mb, md    float64
	}{
		{"R012", 1, 0.4, 0.1},
		{"R013", 2, 0.35, 0.15},
		{"R014", 3, 0.45, 0.05},
	}
	for i, w := range want {
		r := rules[i]
		if r.Code != w.code || r.SymptomID != w.symptomID {
			t.Errorf("rule %d: got %s/%d, want %s/%d", i, r.Code, r.SymptomID, w.code, w.symptomID)
		}
		if diff := r.MB - w.mb; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("rule %d: mb %v, want %v", i, r.MB, w.mb)
		}
		if diff := r.MD - w.md; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("rule %d: md %v, want %v", i, r.MD, w.md)
		}
		if r.MinSymptomMatch != 3 || !r.Active || r.ConfidenceLevel != 0.5 {
			t.Errorf("rule %d: unexpected defaults %+v", i, r)
		}
	}
}

func TestBuildRulesValidation(t *testing.T) {
	symptoms := map[int64]*domain.Symptom{1: {ID: 1, MB: 0.8, MD: 0.2}, 2: {ID: 2, MB: 0.8, MD: 0.2}}
	tooHigh := 1.5
	zero := 0
	three := 3

	tests := []struct {
		name  string
		draft RuleDraft
		want  error
	}{
		{"no symptoms", RuleDraft{DiseaseID: 1}, domain.ErrInvalidInput},
		{"cf out of range", RuleDraft{DiseaseID: 1, SymptomIDs: []int64{1}, CF: &tooHigh}, domain.ErrInvalidInput},
		{"min match zero", RuleDraft{DiseaseID: 1, SymptomIDs: []int64{1, 2}, MinSymptomMatch: &zero}, domain.ErrInvalidInput},
		{"min match above count", RuleDraft{DiseaseID: 1, SymptomIDs: []int64{1, 2}, MinSymptomMatch: &three}, domain.ErrInvalidInput},
		{"unknown symptom", RuleDraft{DiseaseID: 1, SymptomIDs: []int64{1, 9}}, domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildRules(tt.draft, symptoms, 1)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestNextRuleNumber(t *testing.T) {
	if n := NextRuleNumber(nil); n != 1 {
		t.Errorf("expected 1, got %d", n)
	}
	if n := NextRuleNumber([]string{"R001", "R017", "X999", "Rabc", "R009"}); n != 18 {
		t.Errorf("expected 18, got %d", n)
	}
}

func TestLoadKnowledgeBaseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.yaml")
	data := []byte(`
symptoms:
  - {code: A1, name: one, mb: 0.9, md: 0.1}
  - {code: A2, name: two, mb: 0.6, md: 0.2}
diseases:
  - code: D1
    name: disease
    cf: 0.5
    symptoms: [A2, A1]
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	kb, err := LoadKnowledgeBase(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	snap, err := kb.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	rules := snap.AllRules()
	if len(rules) != 2 || rules[0].MinSymptomMatch != 2 {
		t.Fatalf("unexpected rules: %+v", rules)
	}
	if d, _ := snap.Disease(context.Background(), 1); d.Code != "D1" {
		t.Errorf("expected D1, got %s", d.Code)
	}
}

func TestKnowledgeBaseErrors(t *testing.T) {
	tests := map[string]string{
		"unknown symptom": "symptoms: [{code: A, name: a}]\ndiseases: [{code: D, name: d, symptoms: [B]}]",
		"duplicate code":  "symptoms: [{code: A, name: a}, {code: A, name: b}]",
		"mb out of range": "symptoms: [{code: A, name: a, mb: 2}]",
		"missing name":    "diseases: [{code: D}]",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			kb, err := ParseKnowledgeBase([]byte(doc))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if _, err := kb.Snapshot(); err == nil {
				t.Error("expected build error")
			}
		})
	}
}

func TestGate(t *testing.T) {
	primary := &domain.DiagnosisResult{
		DiseaseCode:     "P01",
		CFFinal:         0.72,
		SymptomsMatched: 2,
		MinSymptomMatch: 3,
	}
	outcome := &domain.Outcome{Results: []domain.DiagnosisResult{*primary}}

	t.Run("Default", func(t *testing.T) {
		g, err := NewGate("")
		if err != nil {
			t.Fatalf("compile: %v", err)
		}
		if g.Expression() != DefaultGate {
			t.Errorf("expected default expression, got %q", g.Expression())
		}
		ok, err := g.Allow(primary, outcome)
		if err != nil || ok {
			t.Errorf("expected rejection for 2/3 match, got %v (%v)", ok, err)
		}

		full := *primary
		full.SymptomsMatched = 3
		ok, _ = g.Allow(&full, outcome)
		if !ok {
			t.Error("expected acceptance for 3/3 match")
		}
	})

	t.Run("Custom", func(t *testing.T) {
		g, err := NewGate(`result.cf_final >= 0.7 && warning == "" && results == 1`)
		if err != nil {
			t.Fatalf("compile: %v", err)
		}
		ok, err := g.Allow(primary, outcome)
		if err != nil || !ok {
			t.Errorf("expected acceptance, got %v (%v)", ok, err)
		}
	})

	t.Run("NilPrimary", func(t *testing.T) {
		g, _ := NewGate("")
		ok, err := g.Allow(nil, &domain.Outcome{})
		if err != nil || ok {
			t.Errorf("expected rejection without primary")
		}
	})

	t.Run("CompileErrors", func(t *testing.T) {
		for _, expr := range []string{"this is not CEL !!!", "1.0 + 2.0", `"yes"`} {
			if _, err := NewGate(expr); err == nil {
				t.Errorf("expected compile error for %q", expr)
			}
		}
	})
}
