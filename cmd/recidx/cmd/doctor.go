package cmd

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/recidx/internal/config"
	"github.com/Aman-CERP/recidx/internal/output"
	"github.com/Aman-CERP/recidx/internal/preflight"
	"github.com/Aman-CERP/recidx/internal/source"
)

func newDoctorCmd() *cobra.Command {
	var (
		verbose bool
		probe   bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the environment and diagnose issues",
		Long: `Run diagnostics to ensure recidx can operate correctly.

Checks:
  - Configuration validity
  - Disk space next to the snapshot (100MB minimum)
  - Available memory for the configured store capacity
  - Write permissions for the snapshot and telemetry directories
  - File descriptor limits (1024 minimum)
  - Configured sources (fetched with --probe)

Source problems are warnings: a fresh snapshot can still serve queries.`,
		Example: `  # Run diagnostics
  recidx doctor

  # Fetch every source and show details
  recidx doctor --probe --verbose`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, verbose, probe)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed diagnostic info")
	cmd.Flags().BoolVar(&probe, "probe", false, "Fetch every configured source")

	return cmd
}

func runDoctor(cmd *cobra.Command, verbose, probe bool) error {
	cfg, err := config.Load(projectDir)
	if err != nil {
		return err
	}

	opts := []preflight.Option{
		preflight.WithVerbose(verbose),
		preflight.WithOutput(cmd.OutOrStdout()),
	}
	if probe {
		opts = append(opts, preflight.WithProbe(source.NewHTTPFetcher(cfg.SourceTimeout(),
			source.WithLogger(slog.Default()))))
	}
	checker := preflight.New(opts...)
	results := checker.RunAll(cmd.Context(), cfg)

	if jsonOutput {
		err = output.New(cmd.OutOrStdout()).JSON(map[string]any{
			"status": checker.SummaryStatus(results),
			"checks": results,
		})
		if err != nil {
			return err
		}
	} else {
		checker.PrintResults(results)
	}

	if checker.HasCriticalFailures(results) {
		return errors.New("preflight checks failed")
	}
	return nil
}
