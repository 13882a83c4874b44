// Padi - Rice plant disease diagnosis with certainty factors.
// Copyright (c) 2025 sipadi
// Licensed under the Apache License 2.0

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sipadi/padi/internal/config"
	"github.com/sipadi/padi/internal/domain"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries state shared by every subcommand.
type app struct {
	cfgFile string
	verbose bool
	cfg     *domain.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "padi",
		Short: "Rice plant disease diagnosis with certainty factors",
		Long: `padi diagnoses rice plant diseases from observed symptoms using
forward chaining and certainty factors.

Examples:
  padi serve --config padi.yaml
  padi diagnose --symptom 1 --symptom 2 --symptom 7 --certainty 1=pasti --certainty 2=0.8 --certainty 7=mungkin
  padi seed --kb knowledge.yaml`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.cfgFile)
			if err != nil {
				return err
			}
			if a.verbose {
				cfg.Logging.Level = "debug"
			}
			a.cfg = cfg
			slog.SetDefault(newLogger(cmd.ErrOrStderr(), cfg.Logging))
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default ./padi.yaml or /etc/padi/padi.yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newServeCmd(a),
		newDiagnoseCmd(a),
		newSeedCmd(a),
		newCleanupCmd(a),
		newVersionCmd(),
	)
	return root
}

// newLogger builds the process logger: JSON by default, text on request.
func newLogger(w io.Writer, cfg domain.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "padi %s (commit %s, built %s)\n", Version, Commit, BuildDate)
		},
	}
}
