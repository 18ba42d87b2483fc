package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/recidx/internal/output"
	"github.com/Aman-CERP/recidx/internal/service"
	"github.com/Aman-CERP/recidx/internal/telemetry"
)

func newStatsCmd() *cobra.Command {
	var history, queries int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index, snapshot and refresh statistics",
		Example: `  recidx stats
  recidx stats --history 10
  recidx stats --queries 7
  recidx stats --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd, history, queries)
		},
	}

	cmd.Flags().IntVar(&history, "history", 0, "Also list the last N refresh runs")
	cmd.Flags().IntVar(&queries, "queries", 0, "Also summarize query telemetry for the last N days")

	return cmd
}

type statsReport struct {
	service.Stats
	History []telemetry.Run         `json:"history,omitempty"`
	Queries *telemetry.QueryHistory `json:"queries,omitempty"`
}

const queryHistoryLimit = 10

func runStats(cmd *cobra.Command, history, queries int) (err error) {
	s, err := openSession(cmd, nil)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, s.close()) }()

	ctx := cmd.Context()
	if err := s.svc.Bootstrap(ctx); err != nil {
		return err
	}

	report := statsReport{Stats: s.svc.Stats(ctx)}
	if history > 0 {
		report.History, err = s.svc.RefreshHistory(ctx, history)
		if err != nil {
			return err
		}
	}
	if queries > 0 {
		report.Queries, err = s.svc.QueryHistory(queries, queryHistoryLimit)
		if err != nil {
			return err
		}
	}

	if jsonOutput {
		return s.out.JSON(report)
	}
	printStats(s.out, report)
	return nil
}

func printStats(out *output.Writer, r statsReport) {
	snap := "missing"
	if r.Snapshot.Exists {
		snap = fmt.Sprintf("%s (%d bytes, age %s, ttl %s)", r.Snapshot.Path, r.Snapshot.Size,
			r.Snapshot.Age.Round(time.Second), r.SnapshotTTL)
	}
	out.KeyValue(
		"records", fmt.Sprintf("%d / %d", r.TotalRecords, r.MaxRecords),
		"emails", strconv.Itoa(r.Index.Emails),
		"addresses", strconv.Itoa(r.Index.Addresses),
		"variations", strconv.Itoa(r.Index.Variations),
		"snapshot", snap,
		"refresh", r.Refresh.Progress.Status,
	)
	if r.LastRun != nil {
		out.KeyValue("last refresh", describeRun(*r.LastRun))
	}

	if len(r.History) > 0 {
		out.Newline()
		rows := make([][]string, 0, len(r.History))
		for _, run := range r.History {
			rows = append(rows, []string{
				run.StartedAt.Local().Format(time.DateTime),
				run.Mode,
				run.Status,
				strconv.Itoa(run.Records),
				strconv.Itoa(run.Added),
				fmt.Sprintf("%d/%d", run.SourcesOK, run.SourcesOK+run.SourcesFailed),
				run.Duration().Round(time.Millisecond).String(),
			})
		}
		out.Table([]string{"STARTED", "MODE", "STATUS", "RECORDS", "ADDED", "SOURCES", "DURATION"}, rows)
	}

	if r.Queries != nil {
		printQueryHistory(out, *r.Queries)
	}
}

func printQueryHistory(out *output.Writer, h telemetry.QueryHistory) {
	out.Newline()
	out.KeyValue(
		"queries", fmt.Sprintf("%d (%s to %s)", h.Total(), h.From, h.To),
		"lookups", strconv.FormatInt(h.KindCounts[telemetry.KindLookup], 10),
		"searches", strconv.FormatInt(h.KindCounts[telemetry.KindSearch], 10),
		"bulk", strconv.FormatInt(h.KindCounts[telemetry.KindBulk], 10),
		"latency", fmt.Sprintf("<1ms %d, <10ms %d, <100ms %d, <1s %d, slow %d",
			h.LatencyCounts[telemetry.BucketP1], h.LatencyCounts[telemetry.BucketP10],
			h.LatencyCounts[telemetry.BucketP100], h.LatencyCounts[telemetry.BucketP1000],
			h.LatencyCounts[telemetry.BucketSlow]),
	)
	if len(h.TopTerms) > 0 {
		out.Newline()
		rows := make([][]string, 0, len(h.TopTerms))
		for _, tc := range h.TopTerms {
			rows = append(rows, []string{tc.Term, strconv.FormatInt(tc.Count, 10)})
		}
		out.Table([]string{"TERM", "COUNT"}, rows)
	}
	if len(h.ZeroResultQueries) > 0 {
		out.Newline()
		out.KeyValue("no results", strings.Join(h.ZeroResultQueries, ", "))
	}
}

func describeRun(run telemetry.Run) string {
	s := fmt.Sprintf("%s %s at %s, %d records, %d/%d sources",
		run.Mode, run.Status, run.StartedAt.Local().Format(time.DateTime),
		run.Records, run.SourcesOK, run.SourcesOK+run.SourcesFailed)
	if run.Error != "" {
		s += ": " + run.Error
	}
	return s
}
