// Package service wires the record index together: store, snapshot,
// ingestion pipeline, query engine and background refresher. A Service is
// built once and handed to whatever serves requests.
package service

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/Aman-CERP/recidx/internal/async"
	"github.com/Aman-CERP/recidx/internal/config"
	rxerrors "github.com/Aman-CERP/recidx/internal/errors"
	"github.com/Aman-CERP/recidx/internal/ingest"
	"github.com/Aman-CERP/recidx/internal/metrics"
	"github.com/Aman-CERP/recidx/internal/query"
	"github.com/Aman-CERP/recidx/internal/snapshot"
	"github.com/Aman-CERP/recidx/internal/source"
	"github.com/Aman-CERP/recidx/internal/store"
	"github.com/Aman-CERP/recidx/internal/telemetry"
	"github.com/Aman-CERP/recidx/pkg/version"
)

// Service is the record index. It is safe for concurrent use.
type Service struct {
	cfg    *config.Config
	logger *slog.Logger

	store     *store.Store
	snapshot  *snapshot.Snapshot
	pipeline  *ingest.Pipeline
	engine    *query.Engine
	refresher *async.Refresher
	markerDir string

	telemetry *telemetry.DB
	queries   *telemetry.QueryMetrics
	metrics   *metrics.Metrics

	negative *cache.Cache
	live     singleflight.Group
}

type options struct {
	logger     *slog.Logger
	fetcher    source.Fetcher
	registerer prometheus.Registerer
}

// Option configures New.
type Option func(*options)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithFetcher replaces the HTTP fetcher.
func WithFetcher(f source.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithRegisterer enables Prometheus metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// New builds a Service from cfg. The store starts empty; call Bootstrap
// to load it.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.fetcher == nil {
		o.fetcher = source.NewHTTPFetcher(cfg.SourceTimeout(), source.WithLogger(o.logger))
	}

	s := &Service{
		cfg:       cfg,
		logger:    o.logger,
		store:     store.New(store.WithLooseLookup(cfg.Store.LooseLookup)),
		snapshot:  snapshot.New(cfg.Snapshot.Path, cfg.SnapshotTTL(), snapshot.WithLogger(o.logger)),
		markerDir: filepath.Dir(cfg.Snapshot.Path),
	}
	s.pipeline = ingest.New(source.FromURLs(cfg.Sources.URLs), o.fetcher,
		ingest.WithWorkers(cfg.Sources.Workers),
		ingest.WithLogger(o.logger))
	s.engine = query.NewEngine(s.store, s.snapshot, query.Config{
		DefaultLimit:   cfg.Search.DefaultLimit,
		MaxLimit:       cfg.Search.MaxLimit,
		MinQueryLength: cfg.Search.MinQueryLength,
		CacheSize:      cfg.Search.CacheSize,
	})
	s.refresher = async.NewRefresher(async.RefresherConfig{MarkerDir: s.markerDir, Logger: o.logger})

	if cfg.Lookup.LiveFallback {
		ttl := cfg.NegativeTTL()
		s.negative = cache.New(ttl, 2*ttl)
	}

	if o.registerer != nil {
		m, err := metrics.New(o.registerer)
		if err != nil {
			return nil, err
		}
		s.metrics = m
	}

	if cfg.Telemetry.Enabled {
		db, err := telemetry.Open(cfg.Telemetry.Path)
		if err != nil {
			// Telemetry is optional; the index works without it.
			terr := rxerrors.New(rxerrors.ErrCodeTelemetry, "telemetry database unavailable", err).
				WithDetail("path", cfg.Telemetry.Path)
			s.logger.Warn("telemetry disabled", rxerrors.LogAttrs(terr)...)
		} else {
			s.telemetry = db
			qcfg := telemetry.DefaultQueryMetricsConfig()
			qcfg.Logger = o.logger
			s.queries = telemetry.NewQueryMetricsWithConfig(db, qcfg)
		}
	}

	return s, nil
}

// Config returns the configuration the service was built with.
func (s *Service) Config() *config.Config {
	return s.cfg
}

// PingInfo identifies a running service.
type PingInfo struct {
	Service string    `json:"service"`
	Version string    `json:"version"`
	Records int       `json:"records"`
	Time    time.Time `json:"time"`
}

// Ping reports the service name and version.
func (s *Service) Ping() PingInfo {
	return PingInfo{
		Service: version.Name,
		Version: version.Version,
		Records: s.store.Len(),
		Time:    time.Now(),
	}
}

// Close waits for an in-flight refresh, then flushes and closes telemetry.
func (s *Service) Close() error {
	_ = s.refresher.Wait()

	var errs []error
	if s.queries != nil {
		errs = append(errs, s.queries.Close())
	}
	if s.telemetry != nil {
		errs = append(errs, s.telemetry.Close())
	}
	return errors.Join(errs...)
}

func (s *Service) recordQuery(kind telemetry.QueryKind, q string, results int, start time.Time) {
	if s.queries == nil {
		return
	}
	s.queries.Record(telemetry.QueryEvent{
		Kind:        kind,
		Query:       q,
		ResultCount: results,
		Latency:     time.Since(start),
		Timestamp:   start,
	})
}

// QueryTelemetry returns in-memory query statistics, or nil when
// telemetry is disabled.
func (s *Service) QueryTelemetry() *telemetry.QueryMetricsSnapshot {
	if s.queries == nil {
		return nil
	}
	return s.queries.Snapshot()
}

// QueryHistory flushes pending query telemetry and returns the persisted
// aggregates for the last days days. It returns nil without telemetry.
func (s *Service) QueryHistory(days, limit int) (*telemetry.QueryHistory, error) {
	if s.telemetry == nil {
		return nil, nil
	}
	if err := s.queries.Flush(); err != nil {
		return nil, err
	}
	h, err := s.telemetry.QueryHistory(time.Now(), days, limit)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// RefreshHistory returns up to limit recorded refresh runs, newest first.
func (s *Service) RefreshHistory(ctx context.Context, limit int) ([]telemetry.Run, error) {
	if s.telemetry == nil {
		return nil, nil
	}
	return s.telemetry.Runs(ctx, limit)
}
