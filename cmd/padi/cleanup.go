package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sipadi/padi/internal/quota"
	"github.com/sipadi/padi/internal/repository"
)

func newCleanupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete diagnosis history older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := repository.New(a.cfg.Repository)
			if err != nil {
				return fmt.Errorf("failed to initialize repository: %w", err)
			}
			defer repo.Close()

			guard := quota.NewGuard(repo, nil, a.cfg.Limits)
			deleted, err := cleanupHistory(cmd.Context(), guard, repo)
			if err != nil {
				return fmt.Errorf("failed to clean up history: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d history entries\n", deleted)
			return nil
		},
	}
}
