package store

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Aman-CERP/recidx/internal/record"
)

// Match identifies which resolution tier found a record.
type Match string

const (
	// MatchExact is a hit on the canonical id.
	MatchExact Match = "exact"
	// MatchVariation is a hit through a registered id variation.
	MatchVariation Match = "variation"
	// MatchNormalized is a hit after trimming, case-folding or stripping
	// non-digits from the input.
	MatchNormalized Match = "normalized"
	// MatchLoose is a hit from the substring scan over all ids.
	MatchLoose Match = "loose"
)

// Stats describes the current index sizes.
type Stats struct {
	Records    int `json:"records"`
	Emails     int `json:"emails"`
	Addresses  int `json:"addresses"`
	Variations int `json:"variations"`
}

// Store is the guarded record index. The zero value is not usable; call New.
type Store struct {
	mu  sync.RWMutex
	idx *index

	looseLookup bool
	generation  atomic.Uint64
}

// Option configures a Store.
type Option func(*Store)

// WithLooseLookup enables or disables the substring fallback in Resolve.
func WithLooseLookup(enabled bool) Option {
	return func(s *Store) { s.looseLookup = enabled }
}

// New creates an empty store. The loose lookup tier is on by default.
func New(opts ...Option) *Store {
	s := &Store{idx: newIndex(), looseLookup: true}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) bump() {
	s.generation.Add(1)
}

// Generation changes on every mutation.
func (s *Store) Generation() uint64 {
	return s.generation.Load()
}

// Upsert inserts rec or overwrites the record stored under rec.ID.
func (s *Store) Upsert(rec record.Record) {
	if rec.ID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.idx.upsert(rec)
	s.bump()
}

// Merge inserts the records whose ids are not present and returns how
// many were added. Present ids are never overwritten.
func (s *Store) Merge(recs []record.Record) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, r := range recs {
		if r.ID == "" || s.idx.records.Contains(r.ID) {
			continue
		}
		s.idx.upsert(r)
		added++
	}
	if added > 0 {
		s.bump()
	}
	return added
}

// Replace swaps in a new index built from recs. The build happens outside
// the lock; readers keep seeing the old index until the swap.
func (s *Store) Replace(recs []record.Record) {
	next := buildIndex(recs)

	s.mu.Lock()
	s.idx = next
	s.bump()
	s.mu.Unlock()
}

// EvictIfOverCapacity removes the oldest entries when the store holds more
// than maxSize records. It removes max(Len/10, Len-maxSize) entries and
// returns the number removed. A non-positive maxSize disables eviction.
func (s *Store) EvictIfOverCapacity(maxSize int) int {
	if maxSize <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.idx.records.Len()
	if n <= maxSize {
		return 0
	}

	toRemove := max(n/10, n-maxSize)
	removed := 0
	for removed < toRemove && s.idx.removeOldest() {
		removed++
	}
	if removed > 0 {
		s.bump()
	}
	return removed
}

// Lookup is an exact-id lookup with no fallback tiers.
func (s *Store) Lookup(id string) (record.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.idx.records.Peek(id)
}

// Contains reports whether id is stored exactly.
func (s *Store) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.idx.records.Contains(id)
}

// Get resolves id through every tier and drops the tier.
func (s *Store) Get(id string) (record.Record, bool) {
	rec, _, ok := s.Resolve(id)
	return rec, ok
}

// Resolve finds a record for id, trying in order:
//  1. the exact id
//  2. a registered variation of a stored id
//  3. the trimmed, case-folded and digits-only forms of id
//  4. the first stored id containing id, oldest first (loose lookup only)
//
// Tier 4 scans every id and its answer can change under concurrent writes.
func (s *Store) Resolve(id string) (record.Record, Match, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	x := s.idx
	if rec, ok := x.records.Peek(id); ok {
		return rec, MatchExact, true
	}
	if canonical, ok := x.variations[id]; ok {
		if rec, ok := x.records.Peek(canonical); ok {
			return rec, MatchVariation, true
		}
	}
	for _, form := range variationsOf(id) {
		if form == "" || form == id {
			continue
		}
		if rec, ok := x.records.Peek(form); ok {
			return rec, MatchNormalized, true
		}
	}
	if s.looseLookup {
		if rec, ok := x.looseScan(id); ok {
			return rec, MatchLoose, true
		}
	}
	return record.Record{}, "", false
}

func (x *index) looseScan(id string) (record.Record, bool) {
	if strings.TrimSpace(id) == "" {
		return record.Record{}, false
	}
	for _, key := range x.records.Keys() {
		if strings.Contains(key, id) {
			return x.records.Peek(key)
		}
	}
	return record.Record{}, false
}

// Search returns records whose id, email or address contains q,
// case-insensitively. The id scan runs first, then the email index, then
// the address index; each stops once limit results are collected. Order
// within the index scans is not stable across calls.
func (s *Store) Search(q string, limit int) []record.Record {
	q = strings.ToLower(q)
	if q == "" || limit <= 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	x := s.idx
	seen := make(map[string]struct{})
	var hits []string
	add := func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		hits = append(hits, id)
	}

	for _, id := range x.records.Keys() {
		if len(hits) >= limit {
			break
		}
		if strings.Contains(strings.ToLower(id), q) {
			add(id)
		}
	}
	scanIndex(x.byEmail, q, limit, &hits, add)
	scanIndex(x.byAddress, q, limit, &hits, add)

	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]record.Record, 0, len(hits))
	for _, id := range hits {
		if rec, ok := x.records.Peek(id); ok {
			out = append(out, rec)
		}
	}
	return out
}

func scanIndex(m map[string]idSet, q string, limit int, hits *[]string, add func(string)) {
	for value, ids := range m {
		if len(*hits) >= limit {
			return
		}
		if !strings.Contains(strings.ToLower(value), q) {
			continue
		}
		for id := range ids {
			add(id)
		}
	}
}

// Records returns a copy of every record, oldest first.
func (s *Store) Records() []record.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := s.idx.records.Keys()
	out := make([]record.Record, 0, len(keys))
	for _, k := range keys {
		if rec, ok := s.idx.records.Peek(k); ok {
			out = append(out, rec)
		}
	}
	return out
}

// IDs returns every canonical id, oldest first.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.idx.records.Keys()
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.idx.records.Len()
}

// Stats returns the current index sizes.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		Records:    s.idx.records.Len(),
		Emails:     len(s.idx.byEmail),
		Addresses:  len(s.idx.byAddress),
		Variations: len(s.idx.variations),
	}
}
