package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sipadi/padi/internal/repository"
	"github.com/sipadi/padi/internal/rules"
)

func newSeedCmd(a *app) *cobra.Command {
	var kbPath string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Write a knowledge base into the configured store",
		Long: `seed upserts symptoms and diseases by code and replaces the rules of
every disease in the knowledge base. Existing history is left untouched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			kb, err := loadKnowledgeBase(kbPath)
			if err != nil {
				return err
			}

			repo, err := repository.New(a.cfg.Repository)
			if err != nil {
				return fmt.Errorf("failed to initialize repository: %w", err)
			}
			defer repo.Close()

			stats, err := rules.Seed(cmd.Context(), repo, kb)
			if err != nil {
				return fmt.Errorf("failed to seed knowledge base: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %s: %d symptoms, %d diseases, %d rules\n",
				kbSource(kbPath), stats.Symptoms, stats.Diseases, stats.Rules)
			return nil
		},
	}

	cmd.Flags().StringVar(&kbPath, "kb", "", "knowledge base YAML file (default built-in)")
	return cmd
}
