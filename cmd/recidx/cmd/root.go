// Package cmd provides the CLI commands for recidx.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/recidx/internal/config"
	rxerrors "github.com/Aman-CERP/recidx/internal/errors"
	"github.com/Aman-CERP/recidx/internal/logging"
	"github.com/Aman-CERP/recidx/internal/output"
	"github.com/Aman-CERP/recidx/internal/profiling"
	"github.com/Aman-CERP/recidx/internal/service"
	"github.com/Aman-CERP/recidx/pkg/version"
)

// Global flags
var (
	debugMode      bool
	projectDir     string
	jsonOutput     bool
	showMetrics    bool
	profileOpts    profiling.Options
	profileSession *profiling.Session
	loggingCleanup func()
)

// NewRootCmd creates the root command for the recidx CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recidx",
		Short: "Index and query records from flat-text tuple dumps",
		Long: `recidx ingests tuple dumps from the configured sources, keeps an
indexed copy in memory backed by a snapshot file, and answers lookups by
id, substring searches and bulk lookups.

The snapshot is reused while it is younger than snapshot.ttl; otherwise
the sources are fetched again.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("recidx version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.recidx/logs/")
	cmd.PersistentFlags().StringVar(&projectDir, "dir", ".", "Directory holding .recidx.yaml; relative paths resolve here")
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.PersistentFlags().BoolVar(&showMetrics, "metrics", false, "Print Prometheus metrics to stderr on exit")
	cmd.PersistentFlags().StringVar(&profileOpts.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newLookupCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newBulkCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newRefreshCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newPingCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command, cancelling on SIGINT/SIGTERM.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := NewRootCmd().ExecuteContext(ctx)
	if err != nil {
		reportError(os.Stderr, err)
	}
	return err
}

// reportError prints err for a person, or as a JSON object under --json.
func reportError(w io.Writer, err error) {
	if !jsonOutput {
		output.New(w).Failure(err)
		return
	}
	data, jerr := rxerrors.FormatJSON(err)
	if jerr != nil {
		output.New(w).Failure(err)
		return
	}
	_, _ = fmt.Fprintln(w, string(data))
}

// startProfilingAndLogging starts profiling and debug logging if flags are set.
func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	if profileOpts.Enabled() {
		s, err := profiling.Start(profileOpts)
		if err != nil {
			return err
		}
		profileSession = s
	}

	if !debugMode {
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Info("Debug logging enabled",
		slog.String("log_file", logging.DefaultLogPath()),
		slog.String("version", version.Version))
	return nil
}

// stopProfilingAndLogging stops profiling, writing the heap profile if
// requested, and closes the debug log.
func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	var err error
	if profileSession != nil {
		err = profileSession.Stop()
		profileSession = nil
	}
	if loggingCleanup != nil {
		slog.Info("Debug logging stopped")
		loggingCleanup()
		loggingCleanup = nil
	}
	return err
}

// session is one command's service plus its output writer.
type session struct {
	cfg      *config.Config
	svc      *service.Service
	registry *prometheus.Registry
	out      *output.Writer
	errOut   io.Writer
}

// openSession loads configuration from --dir, applies adjust and builds
// the service. Callers must close the session.
func openSession(cmd *cobra.Command, adjust func(*config.Config)) (*session, error) {
	cfg, err := config.Load(projectDir)
	if err != nil {
		return nil, err
	}
	if adjust != nil {
		adjust(cfg)
	}

	logger := slog.Default()
	if !debugMode {
		logger, _, err = logging.Setup(logging.Config{Level: cfg.Logging.Level, WriteToStderr: true})
		if err != nil {
			return nil, err
		}
	}

	reg := prometheus.NewRegistry()
	svc, err := service.New(cfg, service.WithLogger(logger), service.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}
	return &session{
		cfg:      cfg,
		svc:      svc,
		registry: reg,
		out:      output.New(cmd.OutOrStdout()),
		errOut:   cmd.ErrOrStderr(),
	}, nil
}

func (s *session) close() error {
	var errs []error
	if showMetrics {
		errs = append(errs, writeMetrics(s.errOut, s.registry))
	}
	errs = append(errs, s.svc.Close())
	return errors.Join(errs...)
}

// writeMetrics writes every gathered family in the text exposition format.
func writeMetrics(w io.Writer, reg prometheus.Gatherer) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
