package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Aman-CERP/recidx/internal/async"
	rxerrors "github.com/Aman-CERP/recidx/internal/errors"
	"github.com/Aman-CERP/recidx/internal/query"
	"github.com/Aman-CERP/recidx/internal/record"
	"github.com/Aman-CERP/recidx/internal/store"
	"github.com/Aman-CERP/recidx/internal/telemetry"
)

// LookupByID resolves id against the store. On a miss with live fallback
// enabled, the sources are scanned for the trimmed id and a hit is
// inserted and reported with origin "live". Ids that a complete scan did
// not find are remembered for lookup.negative_ttl; a scan that could not
// reach any source, or whose caller gave up, is not remembered.
func (s *Service) LookupByID(ctx context.Context, id string) (query.Result, error) {
	start := time.Now()

	res, err := s.engine.Lookup(id)
	if err == nil {
		s.metrics.RecordLookup(string(res.Match))
		s.recordQuery(telemetry.KindLookup, id, 1, start)
		return res, nil
	}
	liveID := strings.TrimSpace(id)
	if !rxerrors.HasCode(err, rxerrors.ErrCodeRecordNotFound) || s.negative == nil || liveID == "" {
		s.metrics.RecordLookup("miss")
		s.recordQuery(telemetry.KindLookup, id, 0, start)
		return query.Result{}, err
	}

	rec, ok := s.liveLookup(ctx, liveID)
	if !ok {
		s.metrics.RecordLookup("miss")
		s.recordQuery(telemetry.KindLookup, id, 0, start)
		return query.Result{}, err
	}
	s.metrics.RecordLookup("live")
	s.recordQuery(telemetry.KindLookup, id, 1, start)
	return query.Project(rec, store.MatchExact, query.OriginLive), nil
}

type liveHit struct {
	rec record.Record
	ok  bool
}

func (s *Service) liveLookup(ctx context.Context, id string) (record.Record, bool) {
	if ctx.Err() != nil {
		return record.Record{}, false
	}
	if _, neg := s.negative.Get(id); neg {
		s.metrics.RecordLiveLookup("negative")
		return record.Record{}, false
	}

	// Concurrent misses for the same id share one source scan. The scan
	// outlives any single caller so one cancellation cannot decide the
	// answer for the others.
	scanCtx := context.WithoutCancel(ctx)
	ch := s.live.DoChan(id, func() (any, error) {
		rec, ok, err := s.pipeline.FindOne(scanCtx, id)
		if err != nil {
			s.metrics.RecordLiveLookup("error")
			s.logger.Warn("live lookup inconclusive",
				slog.String("id", id),
				slog.String("error", err.Error()))
			return liveHit{}, nil
		}
		if !ok {
			s.negative.SetDefault(id, struct{}{})
			s.metrics.RecordLiveLookup("miss")
			return liveHit{}, nil
		}
		s.store.Upsert(rec)
		s.evict()
		s.persist()
		s.metrics.RecordLiveLookup("hit")
		s.logger.Info("record added from live lookup",
			slog.String("id", rec.ID),
			slog.String("source", rec.Source))
		return liveHit{rec: rec, ok: true}, nil
	})

	select {
	case r := <-ch:
		hit := r.Val.(liveHit)
		return hit.rec, hit.ok
	case <-ctx.Done():
		return record.Record{}, false
	}
}

// Search runs a substring search over ids, emails and addresses.
func (s *Service) Search(q string, limit int) (*query.SearchResponse, error) {
	start := time.Now()
	resp, err := s.engine.Search(q, limit)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordSearch(resp.Cached)
	s.recordQuery(telemetry.KindSearch, resp.Query, resp.Count, start)
	return resp, nil
}

// BulkLookup looks up each id exactly. Use SplitIDs to turn a
// comma-separated list into ids.
func (s *Service) BulkLookup(ids []string) query.BulkResponse {
	start := time.Now()
	resp := s.engine.BulkLookup(ids)
	s.recordQuery(telemetry.KindBulk, strings.Join(ids, ","), len(resp.Found), start)
	return resp
}

// SplitIDs splits a comma-separated id list, trimming each id and
// dropping empty entries.
func SplitIDs(raw string) []string {
	var ids []string
	for part := range strings.SplitSeq(raw, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// Stats extends the query engine's stats with refresh state.
type Stats struct {
	query.Stats
	Refreshing bool            `json:"refreshing"`
	Refresh    async.RunStatus `json:"refresh"`
	LastRun    *telemetry.Run  `json:"last_run,omitempty"`
	MaxRecords int             `json:"max_records"`
}

// Stats reports store, snapshot and refresh state.
func (s *Service) Stats(ctx context.Context) Stats {
	st := Stats{
		Stats:      s.engine.Stats(),
		Refreshing: s.refresher.Running(),
		Refresh:    s.refresher.Last(),
		MaxRecords: s.cfg.Store.MaxRecords,
	}
	if s.telemetry != nil {
		run, ok, err := s.telemetry.LastRun(ctx)
		if err != nil {
			s.logger.Warn("last refresh run unavailable", slog.String("error", err.Error()))
		} else if ok {
			st.LastRun = &run
		}
	}
	return st
}
