package rules

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/sipadi/padi/internal/domain"
)

// DefaultGate accepts a primary result that reached its minimum symptom match.
const DefaultGate = "result.symptoms_matched >= result.min_symptom_match"

// Gate is a compiled CEL predicate deciding whether a primary result is
// conclusive enough to generate a treatment and be saved.
//
// Available variables:
//
//	result   map: disease_code, cf_final, cf_raw, symptoms_matched,
//	         total_symptoms, min_symptom_match, match_percentage, interpretation
//	results  int: number of ranked results
//	warning  string: multi-infection warning, may be empty
type Gate struct {
	expr    string
	program cel.Program
}

// NewGate compiles expr. An empty expression uses DefaultGate.
func NewGate(expr string) (*Gate, error) {
	if expr == "" {
		expr = DefaultGate
	}

	env, err := cel.NewEnv(
		cel.Variable("result", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("results", cel.IntType),
		cel.Variable("warning", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile gate %q: %w", expr, issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("gate %q must return bool, got %s", expr, out)
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program: %w", err)
	}

	return &Gate{expr: expr, program: prg}, nil
}

// Expression returns the source expression.
func (g *Gate) Expression() string {
	return g.expr
}

// Allow evaluates the gate for the primary result of an outcome.
func (g *Gate) Allow(primary *domain.DiagnosisResult, outcome *domain.Outcome) (bool, error) {
	if primary == nil {
		return false, nil
	}

	activation := map[string]any{
		"result": map[string]any{
			"disease_code":      primary.DiseaseCode,
			"cf_final":          primary.CFFinal,
			"cf_raw":            primary.CFRaw,
			"symptoms_matched":  int64(primary.SymptomsMatched),
			"total_symptoms":    int64(primary.TotalSymptoms),
			"min_symptom_match": int64(primary.MinSymptomMatch),
			"match_percentage":  primary.MatchPercentage,
			"interpretation":    primary.Interpretation,
		},
		"results": int64(len(outcome.Results)),
		"warning": outcome.Warning,
	}

	out, _, err := g.program.Eval(activation)
	if err != nil {
		return false, fmt.Errorf("gate evaluation failed: %w", err)
	}

	b, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("gate returned %s, expected bool", out.Type().TypeName())
	}
	return bool(b), nil
}
