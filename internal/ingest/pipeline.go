// Package ingest fetches every configured source, parses its lines and
// assembles a deduplicated batch of records.
//
// Fetches run concurrently up to a worker limit, but batches are always
// merged in configured source order, so the first source to yield an id
// wins exactly as it would in a sequential run.
package ingest

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/recidx/internal/async"
	rxerrors "github.com/Aman-CERP/recidx/internal/errors"
	"github.com/Aman-CERP/recidx/internal/record"
	"github.com/Aman-CERP/recidx/internal/source"
)

// DefaultWorkers is the fetch concurrency when none is configured.
const DefaultWorkers = 4

// CheckpointFunc receives the batch accumulated after each usable source.
// The slice is only valid for the duration of the call.
type CheckpointFunc func(batch []record.Record) error

// Options tune a single run.
type Options struct {
	Progress   *async.Progress
	Checkpoint CheckpointFunc
}

// SourceFailure describes a source skipped in this run.
type SourceFailure struct {
	Label string `json:"label"`
	URL   string `json:"url"`
	Error string `json:"error"`
}

// SourceStat summarises one usable source.
type SourceStat struct {
	Label      string        `json:"label"`
	Bytes      int           `json:"bytes"`
	Added      int           `json:"added"`
	Rejected   int           `json:"rejected"`
	Duplicates int           `json:"duplicates"`
	Existing   int           `json:"existing"`
	Duration   time.Duration `json:"duration"`
}

// Result is the outcome of one pipeline run.
type Result struct {
	// Records in first-seen order.
	Records    []record.Record
	Sources    []SourceStat
	Failed     []SourceFailure
	Rejected   int
	Duplicates int
	// Existing counts ids skipped because the store already had them.
	Existing int
	Duration time.Duration
}

// Usable reports whether at least one source was fetched.
func (r *Result) Usable() bool {
	return len(r.Sources) > 0
}

// Pipeline orchestrates fetching and parsing across sources.
type Pipeline struct {
	sources []source.Source
	fetcher source.Fetcher
	workers int
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithWorkers bounds concurrent fetches.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithClock overrides the time source used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a pipeline over sources in priority order.
func New(sources []source.Source, fetcher source.Fetcher, opts ...Option) *Pipeline {
	p := &Pipeline{
		sources: sources,
		fetcher: fetcher,
		workers: DefaultWorkers,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Sources returns the configured sources.
func (p *Pipeline) Sources() []source.Source {
	return p.sources
}

// FullReload builds a batch from scratch. The first parsed occurrence of
// an id, across and within sources, wins.
func (p *Pipeline) FullReload(ctx context.Context, opts Options) (*Result, error) {
	return p.run(ctx, nil, opts)
}

// Augment builds a batch of ids for which exists returns false. Ids the
// caller already holds are never part of the batch.
func (p *Pipeline) Augment(ctx context.Context, exists func(id string) bool, opts Options) (*Result, error) {
	return p.run(ctx, exists, opts)
}

type fetched struct {
	body     []byte
	err      error
	duration time.Duration
	done     chan struct{}
}

func (p *Pipeline) run(ctx context.Context, exists func(string) bool, opts Options) (*Result, error) {
	start := time.Now()
	progress := opts.Progress
	if progress != nil {
		progress.SetStage(async.StageFetching)
		progress.SetSourcesTotal(len(p.sources))
	}

	slots := p.fetchAll(ctx)
	defer slots.wait()

	res := &Result{}
	seen := make(map[string]struct{})
	loadedAt := p.now()

	for i, src := range p.sources {
		slot := slots.items[i]
		select {
		case <-slot.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		if slot.err != nil {
			p.logger.Warn("source skipped",
				append([]any{slog.String("source", src.Label)}, rxerrors.LogAttrs(slot.err)...)...)
			res.Failed = append(res.Failed, SourceFailure{Label: src.Label, URL: src.URL, Error: slot.err.Error()})
			if progress != nil {
				progress.SourceDone(true)
			}
			continue
		}

		stat := SourceStat{Label: src.Label, Bytes: len(slot.body), Duration: slot.duration}
		for line := range bytes.Lines(slot.body) {
			rec, ok := record.ParseWithSource(string(line), src.Label, loadedAt)
			if !ok {
				stat.Rejected++
				continue
			}
			if _, dup := seen[rec.ID]; dup {
				stat.Duplicates++
				continue
			}
			if exists != nil && exists(rec.ID) {
				stat.Existing++
				continue
			}
			seen[rec.ID] = struct{}{}
			res.Records = append(res.Records, rec)
			stat.Added++
		}
		slot.body = nil

		res.Sources = append(res.Sources, stat)
		res.Rejected += stat.Rejected
		res.Duplicates += stat.Duplicates
		res.Existing += stat.Existing

		p.logger.Info("source merged",
			slog.String("source", src.Label),
			slog.Int("added", stat.Added),
			slog.Int("rejected", stat.Rejected),
			slog.Int("duplicates", stat.Duplicates),
			slog.Int("total", len(res.Records)))

		if progress != nil {
			progress.SourceDone(false)
			progress.SetRecords(len(res.Records))
		}

		if opts.Checkpoint != nil {
			if err := opts.Checkpoint(res.Records); err != nil {
				p.logger.Warn("checkpoint failed",
					slog.String("source", src.Label),
					slog.String("error", err.Error()))
			}
		}
	}

	res.Duration = time.Since(start)
	return res, nil
}

type fetchSet struct {
	items    []*fetched
	group    *errgroup.Group
	launched chan struct{}
}

func (s *fetchSet) wait() {
	<-s.launched
	_ = s.group.Wait()
}

// fetchAll starts every fetch under the worker limit and returns at once.
// Each slot's done channel closes when its fetch finishes.
func (p *Pipeline) fetchAll(ctx context.Context) *fetchSet {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	set := &fetchSet{
		items:    make([]*fetched, len(p.sources)),
		group:    g,
		launched: make(chan struct{}),
	}
	for i := range set.items {
		set.items[i] = &fetched{done: make(chan struct{})}
	}

	go func() {
		defer close(set.launched)
		for i, src := range p.sources {
			slot := set.items[i]
			g.Go(func() error {
				defer close(slot.done)
				started := time.Now()
				slot.body, slot.err = p.fetcher.Fetch(gctx, src)
				slot.duration = time.Since(started)
				return nil
			})
		}
	}()

	return set
}

// ErrNoSourceScanned is returned by FindOne when no source could be
// fetched, so a miss says nothing about the id.
var ErrNoSourceScanned = rxerrors.New(rxerrors.ErrCodeIngestFailed, "no source could be scanned", nil)

// FindOne scans sources in order for a record with exactly id. Sources
// are fetched one at a time and the scan stops at the first hit. A miss
// is only conclusive when the error is nil: the scan returns ctx.Err()
// when cancelled and ErrNoSourceScanned when every source failed.
func (p *Pipeline) FindOne(ctx context.Context, id string) (record.Record, bool, error) {
	if id == "" {
		return record.Record{}, false, nil
	}
	needle := []byte(id)
	scanned := 0

	for _, src := range p.sources {
		if err := ctx.Err(); err != nil {
			return record.Record{}, false, err
		}

		body, err := p.fetcher.Fetch(ctx, src)
		if err != nil {
			p.logger.Warn("source skipped during lookup",
				append([]any{slog.String("source", src.Label)}, rxerrors.LogAttrs(err)...)...)
			continue
		}
		scanned++
		if !bytes.Contains(body, needle) {
			continue
		}

		for line := range bytes.Lines(body) {
			if !bytes.Contains(line, needle) {
				continue
			}
			rec, ok := record.ParseWithSource(string(line), src.Label, p.now())
			if ok && rec.ID == id {
				return rec, true, nil
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return record.Record{}, false, err
	}
	if scanned == 0 && len(p.sources) > 0 {
		return record.Record{}, false, ErrNoSourceScanned
	}
	return record.Record{}, false, nil
}
