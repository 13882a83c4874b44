package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sipadi/padi/internal/certainty"
	"github.com/sipadi/padi/internal/domain"
	"github.com/sipadi/padi/internal/rules"
)

type diagnoseOptions struct {
	kbPath      string
	symptoms    []int64
	certainties []string
	asJSON      bool
}

func newDiagnoseCmd(a *app) *cobra.Command {
	var opts diagnoseOptions

	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Diagnose symptoms offline against a knowledge base file",
		Long: `diagnose runs the certainty factor engine against an in-memory
knowledge base. Nothing is written to the store.

Certainties are given as id=value where value is a number between 0 and 1
or one of: pasti, hampir_pasti, kemungkinan_besar, mungkin, tidak_tahu.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := buildInput(opts.symptoms, opts.certainties)
			if err != nil {
				return err
			}

			kb, err := loadKnowledgeBase(opts.kbPath)
			if err != nil {
				return err
			}
			snap, err := kb.Snapshot()
			if err != nil {
				return fmt.Errorf("invalid knowledge base: %w", err)
			}

			engine, err := certainty.NewEngine(certainty.DefaultPolicy().WithOverrides(a.cfg.Engine))
			if err != nil {
				return err
			}
			gate, err := rules.NewGate(a.cfg.Engine.Gate)
			if err != nil {
				return err
			}

			outcome, err := engine.Diagnose(cmd.Context(), snap, input)
			if err != nil {
				return err
			}
			conclusive, err := gate.Allow(outcome.Primary(), outcome)
			if err != nil {
				return err
			}

			if opts.asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					*domain.Outcome
					Conclusive bool `json:"conclusive"`
				}{outcome, conclusive})
			}
			return printOutcome(cmd.OutOrStdout(), outcome, conclusive)
		},
	}

	cmd.Flags().StringVar(&opts.kbPath, "kb", "", "knowledge base YAML file (default built-in)")
	cmd.Flags().Int64SliceVarP(&opts.symptoms, "symptom", "s", nil, "selected symptom id (repeatable)")
	cmd.Flags().StringArrayVarP(&opts.certainties, "certainty", "c", nil, "certainty as id=value (repeatable)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the outcome as JSON")
	return cmd
}

// buildInput pairs the selected symptoms with id=value certainty flags.
func buildInput(symptoms []int64, pairs []string) (*domain.DiagnosisInput, error) {
	input := &domain.DiagnosisInput{
		SymptomIDs:  symptoms,
		Certainties: make(map[string]domain.Certainty, len(pairs)),
	}
	for _, pair := range pairs {
		id, value, ok := strings.Cut(pair, "=")
		if !ok || value == "" {
			return nil, fmt.Errorf("invalid certainty %q: expected id=value", pair)
		}
		if _, err := strconv.ParseInt(id, 10, 64); err != nil {
			return nil, fmt.Errorf("invalid certainty %q: symptom id must be an integer", pair)
		}
		input.Certainties[id] = parseCertainty(value)
	}
	return input, nil
}

func parseCertainty(value string) domain.Certainty {
	if n, err := strconv.ParseFloat(value, 64); err == nil {
		return domain.NumericCertainty(n)
	}
	return domain.LabelCertainty(strings.ToLower(value))
}

func printOutcome(w io.Writer, outcome *domain.Outcome, conclusive bool) error {
	if outcome.Status == domain.StatusNoDiagnosis {
		_, err := fmt.Fprintf(w, "no diagnosis: %s\n", outcome.Message)
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tDISEASE\tCF\tMATCHED\tSTATUS\tINTERPRETATION")
	for _, r := range outcome.Results {
		fmt.Fprintf(tw, "%s\t%s\t%.4f\t%d/%d\t%s\t%s\n",
			r.DiseaseCode, r.DiseaseName, r.CFFinal,
			r.SymptomsMatched, r.TotalSymptoms, r.Status, r.Interpretation)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if outcome.Warning != "" {
		fmt.Fprintf(w, "\nwarning: %s\n", outcome.Warning)
	}
	if !conclusive {
		fmt.Fprintln(w, "\nprimary result is not conclusive")
	}
	for _, rec := range outcome.Recommendations {
		codes := make([]string, 0, len(rec.SuggestedSymptoms))
		for _, s := range rec.SuggestedSymptoms {
			codes = append(codes, s.Code)
		}
		fmt.Fprintf(w, "check %s (%s): %s\n", rec.DiseaseCode, strings.Join(codes, ", "), rec.Message)
	}
	return nil
}
