// Package query implements the read operations served from the record
// store: point lookup, substring search, bulk lookup and stats.
package query

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"

	rxerrors "github.com/Aman-CERP/recidx/internal/errors"
	"github.com/Aman-CERP/recidx/internal/record"
	"github.com/Aman-CERP/recidx/internal/snapshot"
	"github.com/Aman-CERP/recidx/internal/store"
)

// Defaults for Config fields left at zero.
const (
	DefaultLimit          = 50
	DefaultMaxLimit       = 100
	DefaultMinQueryLength = 2
	DefaultCacheSize      = 256
)

// Origin says where a lookup result came from.
type Origin string

const (
	// OriginCache is a hit in the in-memory store.
	OriginCache Origin = "cache"
	// OriginLive is a record fetched from the sources on a store miss.
	OriginLive Origin = "live"
)

// Result is the projection of a record returned to callers.
type Result struct {
	ID             string      `json:"user_id"`
	Email          string      `json:"email"`
	NetworkAddress string      `json:"ip"`
	Encoded        string      `json:"encoded,omitempty"`
	Source         string      `json:"source_file,omitempty"`
	LoadedAt       time.Time   `json:"loaded_at,omitzero"`
	Match          store.Match `json:"match,omitempty"`
	Origin         Origin      `json:"source,omitempty"`
}

// Project converts a record into a Result.
func Project(r record.Record, m store.Match, o Origin) Result {
	return Result{
		ID:             r.ID,
		Email:          r.Email,
		NetworkAddress: r.NetworkAddress,
		Encoded:        r.EncodedEmail,
		Source:         r.Source,
		LoadedAt:       r.LoadedAt,
		Match:          m,
		Origin:         o,
	}
}

// SearchResponse is the result of Search.
type SearchResponse struct {
	Query   string   `json:"query"`
	Limit   int      `json:"limit"`
	Count   int      `json:"count"`
	Results []Result `json:"results"`
	Cached  bool     `json:"cached"`
}

// BulkResponse is the result of BulkLookup.
type BulkResponse struct {
	Requested int      `json:"requested"`
	Found     []Result `json:"found"`
	NotFound  []string `json:"not_found"`
}

// Stats reports store and snapshot state.
type Stats struct {
	TotalRecords int           `json:"total_records"`
	Index        store.Stats   `json:"index"`
	Snapshot     snapshot.Info `json:"snapshot"`
	SnapshotTTL  time.Duration `json:"snapshot_ttl"`
	Generation   uint64        `json:"generation"`
}

// Config bounds search.
type Config struct {
	DefaultLimit   int
	MaxLimit       int
	MinQueryLength int
	CacheSize      int
}

// SnapshotInfo is the part of the persistence layer Stats needs.
type SnapshotInfo interface {
	Info() snapshot.Info
	TTL() time.Duration
}

// Engine runs queries against a store. It is safe for concurrent use.
type Engine struct {
	store    *store.Store
	snapshot SnapshotInfo
	config   Config
	cache    *lru.Cache[string, []Result]
}

// NewEngine creates an engine. snap may be nil, in which case Stats
// reports no snapshot.
func NewEngine(st *store.Store, snap SnapshotInfo, cfg Config) *Engine {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = DefaultMaxLimit
	}
	if cfg.DefaultLimit > cfg.MaxLimit {
		cfg.DefaultLimit = cfg.MaxLimit
	}
	if cfg.MinQueryLength <= 0 {
		cfg.MinQueryLength = DefaultMinQueryLength
	}

	e := &Engine{store: st, snapshot: snap, config: cfg}
	if cfg.CacheSize > 0 {
		e.cache, _ = lru.New[string, []Result](cfg.CacheSize)
	}
	return e
}

// Lookup resolves id through every store tier. A miss returns
// ERR_601_RECORD_NOT_FOUND.
func (e *Engine) Lookup(id string) (Result, error) {
	rec, match, ok := e.store.Resolve(id)
	if !ok {
		return Result{}, rxerrors.New(rxerrors.ErrCodeRecordNotFound, "record not found", nil).
			WithDetail("id", id)
	}
	return Project(rec, match, OriginCache), nil
}

// Search finds records whose id, email or address contains query. The
// query is trimmed and case-folded; a limit outside (0, MaxLimit] is
// replaced by the default or clamped.
func (e *Engine) Search(query string, limit int) (*SearchResponse, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if utf8.RuneCountInString(q) < e.config.MinQueryLength {
		return nil, rxerrors.New(rxerrors.ErrCodeQueryTooShort,
			fmt.Sprintf("query must be at least %d characters", e.config.MinQueryLength), nil).
			WithDetail("query", query)
	}
	limit = e.normalizeLimit(limit)

	resp := &SearchResponse{Query: q, Limit: limit}
	key := fmt.Sprintf("%d\x00%d\x00%s", e.store.Generation(), limit, q)
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			resp.Results = append([]Result(nil), cached...)
			resp.Count = len(resp.Results)
			resp.Cached = true
			return resp, nil
		}
	}

	recs := e.store.Search(q, limit)
	results := make([]Result, len(recs))
	for i, r := range recs {
		results[i] = Project(r, "", OriginCache)
	}
	if e.cache != nil {
		e.cache.Add(key, results)
	}

	resp.Results = append([]Result(nil), results...)
	resp.Count = len(results)
	return resp, nil
}

func (e *Engine) normalizeLimit(limit int) int {
	if limit <= 0 {
		return e.config.DefaultLimit
	}
	if limit > e.config.MaxLimit {
		return e.config.MaxLimit
	}
	return limit
}

// BulkLookup looks up each id exactly, with no fallback tiers. Input ids
// are used verbatim and both result lists keep the caller's order.
func (e *Engine) BulkLookup(ids []string) BulkResponse {
	resp := BulkResponse{
		Requested: len(ids),
		Found:     make([]Result, 0, len(ids)),
		NotFound:  make([]string, 0),
	}
	for _, id := range ids {
		if rec, ok := e.store.Lookup(id); ok {
			resp.Found = append(resp.Found, Project(rec, store.MatchExact, OriginCache))
		} else {
			resp.NotFound = append(resp.NotFound, id)
		}
	}
	return resp
}

// Stats reports the record count, index sizes and snapshot metadata.
func (e *Engine) Stats() Stats {
	idx := e.store.Stats()
	st := Stats{
		TotalRecords: idx.Records,
		Index:        idx,
		Generation:   e.store.Generation(),
	}
	if e.snapshot != nil {
		st.Snapshot = e.snapshot.Info()
		st.SnapshotTTL = e.snapshot.TTL()
	}
	return st
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.config
}
