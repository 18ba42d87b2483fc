package cmd

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/recidx/internal/async"
	"github.com/Aman-CERP/recidx/internal/service"
	"github.com/Aman-CERP/recidx/internal/telemetry"
)

func newRefreshCmd() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Fetch the sources and rebuild the index",
		Long: `Fetch every configured source and update the index and snapshot.

Modes:
  full     rebuild from scratch; the first source to yield an id wins
  augment  keep every indexed record and add only new ids`,
		Example: `  recidx refresh
  recidx refresh --mode augment --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRefresh(cmd, mode)
		},
	}

	cmd.Flags().StringVar(&mode, "mode", string(service.ModeFull), "Refresh mode: full or augment")

	return cmd
}

type refreshReport struct {
	service.RefreshAck
	Status async.RunStatus `json:"status"`
	Run    *telemetry.Run  `json:"run,omitempty"`
}

func runRefresh(cmd *cobra.Command, rawMode string) (err error) {
	mode, err := service.ParseMode(rawMode)
	if err != nil {
		return err
	}

	s, err := openSession(cmd, nil)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, s.close()) }()

	ctx := cmd.Context()
	if mode == service.ModeAugment {
		if err := s.svc.Bootstrap(ctx); err != nil {
			return err
		}
	}

	ack, err := s.svc.TriggerRefresh(ctx, mode)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- s.svc.WaitRefresh() }()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	var runErr error
wait:
	for {
		select {
		case runErr = <-done:
			break wait
		case <-ticker.C:
			p := s.svc.RefreshStatus().Progress
			s.out.Progress(p.SourcesDone, p.SourcesTotal, p.Stage)
		}
	}

	report := refreshReport{RefreshAck: ack, Status: s.svc.RefreshStatus()}
	if st := s.svc.Stats(ctx); st.LastRun != nil && st.LastRun.RunID == ack.RunID {
		report.Run = st.LastRun
	}

	if jsonOutput {
		if err := s.out.JSON(report); err != nil {
			return err
		}
		return runErr
	}
	if runErr != nil {
		return runErr
	}

	p := report.Status.Progress
	s.out.Successf("%s refresh finished: %d records, %d/%d sources, %ds",
		mode, p.Records, p.SourcesDone-p.SourcesFailed, p.SourcesTotal, p.ElapsedSeconds)
	if p.SourcesFailed > 0 {
		s.out.Warningf("%d sources could not be fetched", p.SourcesFailed)
	}
	return nil
}
