package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aman-CERP/recidx/internal/async"
	rxerrors "github.com/Aman-CERP/recidx/internal/errors"
	"github.com/Aman-CERP/recidx/internal/ingest"
	"github.com/Aman-CERP/recidx/internal/telemetry"
)

// Mode selects how a refresh updates the store.
type Mode string

const (
	// ModeFull rebuilds the store from all sources and swaps it in.
	ModeFull Mode = "full"
	// ModeAugment adds ids the store does not have yet and keeps the rest.
	ModeAugment Mode = "augment"
)

// ParseMode parses a refresh mode. Empty means ModeFull.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeFull:
		return ModeFull, nil
	case ModeAugment:
		return ModeAugment, nil
	}
	return "", rxerrors.ValidationError(fmt.Sprintf("unknown refresh mode %q", s), nil).
		WithSuggestion("Use 'full' or 'augment'")
}

// RefreshAck acknowledges a refresh trigger.
type RefreshAck struct {
	Started bool   `json:"started"`
	RunID   string `json:"run_id,omitempty"`
	Mode    Mode   `json:"mode"`
}

// errNoUsableSource marks a run where every source failed. The store is
// left as it was.
var errNoUsableSource = rxerrors.New(rxerrors.ErrCodeIngestFailed, "no source could be fetched", nil)

// TriggerRefresh starts a background refresh and returns immediately.
// Authorization is the caller's job. While a refresh is running, further
// triggers fail with async.ErrRefreshInProgress.
func (s *Service) TriggerRefresh(ctx context.Context, mode Mode) (RefreshAck, error) {
	runID, err := s.refresher.Start(ctx, string(mode), s.refreshFunc(mode))
	if err != nil {
		return RefreshAck{Mode: mode}, err
	}
	s.logger.Info("refresh started", slog.String("run_id", runID), slog.String("mode", string(mode)))
	return RefreshAck{Started: true, RunID: runID, Mode: mode}, nil
}

// WaitRefresh blocks until the in-flight refresh, if any, finishes and
// returns the most recent run's error.
func (s *Service) WaitRefresh() error {
	return s.refresher.Wait()
}

// RefreshStatus returns the current or most recent run.
func (s *Service) RefreshStatus() async.RunStatus {
	return s.refresher.Last()
}

// Bootstrap fills the store from the snapshot, or from the sources when
// the snapshot is missing, stale or corrupt. With checkpointing on, a
// refresh marker left by an interrupted run means the snapshot may hold a
// partial batch: the sources are tried first and the checkpoint is served
// only when none of them can be fetched. A reload that finds no usable
// source is not an error; the store stays empty.
func (s *Service) Bootstrap(ctx context.Context) error {
	partial := s.cfg.Snapshot.Checkpoint && async.HasIncompleteMarker(s.markerDir)
	switch {
	case partial:
		s.logger.Warn("previous refresh did not finish, snapshot may be a partial checkpoint",
			slog.String("dir", s.markerDir))
	case s.loadSnapshot() == nil:
		return nil
	}

	if _, err := s.refresher.Start(ctx, string(ModeFull), s.refreshFunc(ModeFull)); err != nil {
		return err
	}
	err := s.refresher.Wait()
	if !rxerrors.HasCode(err, rxerrors.ErrCodeIngestFailed) {
		return err
	}
	if partial && s.loadSnapshot() == nil {
		s.logger.Warn("bootstrap found no usable source, serving checkpointed snapshot",
			slog.Int("records", s.store.Len()))
		return nil
	}
	s.logger.Warn("bootstrap found no usable source, starting empty")
	return nil
}

// loadSnapshot replaces the store with the snapshot when it is usable.
func (s *Service) loadSnapshot() error {
	recs, info, err := s.snapshot.Load()
	if err != nil {
		s.logger.Info("snapshot unusable",
			slog.String("code", rxerrors.GetCode(err)),
			slog.String("error", err.Error()))
		return err
	}
	s.store.Replace(recs)
	s.metrics.SetRecords(s.store.Len())
	s.logger.Info("snapshot loaded",
		slog.String("path", info.Path),
		slog.Int("records", len(recs)),
		slog.String("age", info.Age.Round(time.Second).String()))
	return nil
}

func (s *Service) refreshFunc(mode Mode) async.RefreshFunc {
	return func(ctx context.Context, runID string, progress *async.Progress) error {
		started := time.Now()
		run := telemetry.Run{RunID: runID, Mode: string(mode), StartedAt: started}

		res, err := s.ingest(ctx, mode, progress)
		if err == nil && !res.Usable() {
			err = errNoUsableSource
		}
		if res != nil {
			run.Rejected = res.Rejected
			run.Duplicates = res.Duplicates
			run.SourcesOK = len(res.Sources)
			run.SourcesFailed = len(res.Failed)
			for _, f := range res.Failed {
				s.metrics.RecordSourceFailure(f.Label)
			}
			s.metrics.AddRejected(res.Rejected)
		}
		if err != nil {
			s.finishRun(run, err)
			return err
		}

		progress.SetStage(async.StageIndexing)
		if mode == ModeAugment {
			run.Added = s.store.Merge(res.Records)
		} else {
			s.store.Replace(res.Records)
			run.Added = len(res.Records)
		}
		run.Evicted = s.evict()
		if s.negative != nil {
			s.negative.Flush()
		}
		run.Records = s.store.Len()
		progress.SetRecords(run.Records)

		progress.SetStage(async.StagePersisting)
		s.persist()

		s.finishRun(run, nil)
		return nil
	}
}

func (s *Service) ingest(ctx context.Context, mode Mode, progress *async.Progress) (*ingest.Result, error) {
	opts := ingest.Options{Progress: progress}
	if mode == ModeAugment {
		return s.pipeline.Augment(ctx, s.store.Contains, opts)
	}
	if s.cfg.Snapshot.Checkpoint {
		opts.Checkpoint = s.snapshot.Save
	}
	return s.pipeline.FullReload(ctx, opts)
}

// evict trims the store to capacity.
func (s *Service) evict() int {
	n := s.store.EvictIfOverCapacity(s.cfg.Store.MaxRecords)
	if n > 0 {
		s.metrics.AddEvicted(n)
		s.logger.Info("evicted oldest records",
			slog.Int("evicted", n),
			slog.Int("max_records", s.cfg.Store.MaxRecords))
	}
	s.metrics.SetRecords(s.store.Len())
	return n
}

// persist writes the store to the snapshot. Failures are logged; the
// in-memory store stays authoritative.
func (s *Service) persist() {
	err := s.snapshot.Save(s.store.Records())
	s.metrics.RecordSnapshotSave(err)
	if err != nil {
		s.logger.Error("snapshot save failed",
			slog.String("path", s.snapshot.Path()),
			slog.String("error", err.Error()))
	}
}

func (s *Service) finishRun(run telemetry.Run, err error) {
	run.FinishedAt = time.Now()
	run.Status = string(async.StatusReady)
	if err != nil {
		run.Status = string(async.StatusError)
		run.Error = err.Error()
		run.Records = s.store.Len()
	}

	s.metrics.RecordRefresh(run.Mode, run.Status, run.Duration())
	s.logger.Info("refresh finished",
		slog.String("run_id", run.RunID),
		slog.String("mode", run.Mode),
		slog.String("status", run.Status),
		slog.Int("records", run.Records),
		slog.Int("added", run.Added),
		slog.Int("sources_failed", run.SourcesFailed),
		slog.Duration("duration", run.Duration()))

	if s.telemetry == nil {
		return
	}
	// The run context is detached but unbounded; keep the write short.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.telemetry.RecordRun(ctx, run); err != nil {
		s.logger.Warn("refresh run not recorded",
			slog.String("run_id", run.RunID),
			slog.String("error", err.Error()))
	}
}
