// Package telemetry keeps local usage telemetry for the record index:
// refresh run history and aggregated query statistics.
// All telemetry data is stored locally - no external reporting.
package telemetry

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// QueryKind is the read operation a query event came from.
type QueryKind string

const (
	KindLookup QueryKind = "lookup"
	KindSearch QueryKind = "search"
	KindBulk   QueryKind = "bulk"
)

// LatencyBucket represents a latency histogram bucket.
type LatencyBucket string

const (
	BucketP1    LatencyBucket = "p1"    // <1ms
	BucketP10   LatencyBucket = "p10"   // 1-10ms
	BucketP100  LatencyBucket = "p100"  // 10-100ms
	BucketP1000 LatencyBucket = "p1000" // 100ms-1s
	BucketSlow  LatencyBucket = "slow"  // >=1s, usually a live source scan
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	switch {
	case d < time.Millisecond:
		return BucketP1
	case d < 10*time.Millisecond:
		return BucketP10
	case d < 100*time.Millisecond:
		return BucketP100
	case d < time.Second:
		return BucketP1000
	default:
		return BucketSlow
	}
}

// QueryEvent is a single read operation.
type QueryEvent struct {
	Kind        QueryKind
	Query       string
	ResultCount int
	Latency     time.Duration
	Timestamp   time.Time
}

// IsZeroResult returns true if the operation found nothing.
func (e QueryEvent) IsZeroResult() bool {
	return e.ResultCount == 0
}

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	items    []T
	head     int // next write position
	size     int
	capacity int
	mu       sync.RWMutex
}

// NewCircularBuffer creates a new circular buffer with the given capacity.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add adds an item to the buffer. If full, the oldest item is evicted.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Items returns all items oldest first.
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]T, b.size)
	if b.size < b.capacity {
		copy(result, b.items[:b.size])
	} else {
		copy(result, b.items[b.head:])
		copy(result[b.capacity-b.head:], b.items[:b.head])
	}
	return result
}

// Size returns the current number of items in the buffer.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Clear removes all items from the buffer.
func (b *CircularBuffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = 0
	b.size = 0
}

// ExtractTerms splits a search query into lowercased terms of at least
// three bytes.
func ExtractTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

// TermCount represents a term and its frequency count.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// QueryMetricsSnapshot is an immutable view of the in-memory counters.
type QueryMetricsSnapshot struct {
	KindCounts          map[QueryKind]int64     `json:"kind_counts"`
	TopTerms            []TermCount             `json:"top_terms"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TotalQueries        int64                   `json:"total_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	RepeatCount         int64                   `json:"repeat_count"`
	Since               time.Time               `json:"since"`
}

// ZeroResultPercentage returns the percentage of zero-result queries.
func (s *QueryMetricsSnapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// RepeatRate returns the fraction of queries seen recently before.
func (s *QueryMetricsSnapshot) RepeatRate() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.RepeatCount) / float64(s.TotalQueries)
}

// QueryMetricsStore is where flushed counters go. *DB implements it.
type QueryMetricsStore interface {
	SaveKindCounts(date string, counts map[QueryKind]int64) error
	UpsertTermCounts(terms map[string]int64) error
	AddZeroResultQueries(queries []string, at time.Time) error
	SaveLatencyCounts(date string, counts map[LatencyBucket]int64) error
}

// QueryMetricsConfig configures the query metrics collector.
type QueryMetricsConfig struct {
	TopTermsCapacity      int           // default 100
	ZeroResultsCapacity   int           // default 100
	RecentQueriesCapacity int           // default 500
	FlushInterval         time.Duration // 0 disables auto-flush
	Logger                *slog.Logger
}

// DefaultQueryMetricsConfig returns the defaults.
func DefaultQueryMetricsConfig() QueryMetricsConfig {
	return QueryMetricsConfig{
		TopTermsCapacity:      100,
		ZeroResultsCapacity:   100,
		RecentQueriesCapacity: 500,
		FlushInterval:         60 * time.Second,
	}
}

// pending holds counts not yet written to the store.
type pending struct {
	kinds     map[QueryKind]int64
	terms     map[string]int64
	latencies map[LatencyBucket]int64
	zero      []string
}

func newPending() pending {
	return pending{
		kinds:     make(map[QueryKind]int64),
		terms:     make(map[string]int64),
		latencies: make(map[LatencyBucket]int64),
	}
}

// QueryMetrics collects query telemetry. Safe for concurrent use.
type QueryMetrics struct {
	mu sync.Mutex

	kinds           map[QueryKind]int64
	topTerms        *lru.Cache[string, int64]
	zeroResults     *CircularBuffer[string]
	latencies       map[LatencyBucket]int64
	recentQueries   *lru.Cache[string, struct{}]
	totalQueries    int64
	zeroResultCount int64
	repeatCount     int64
	startTime       time.Time
	pending         pending

	flushMu sync.Mutex
	store   QueryMetricsStore
	logger  *slog.Logger
	stopCh  chan struct{}
	wg      sync.WaitGroup
	closed  bool
}

// NewQueryMetrics creates a collector with the default configuration.
// If store is nil, metrics are only kept in memory.
func NewQueryMetrics(store QueryMetricsStore) *QueryMetrics {
	return NewQueryMetricsWithConfig(store, DefaultQueryMetricsConfig())
}

// NewQueryMetricsWithConfig creates a collector with a custom configuration.
func NewQueryMetricsWithConfig(store QueryMetricsStore, cfg QueryMetricsConfig) *QueryMetrics {
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = 100
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = 100
	}
	if cfg.RecentQueriesCapacity <= 0 {
		cfg.RecentQueriesCapacity = 500
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	recent, _ := lru.New[string, struct{}](cfg.RecentQueriesCapacity)

	m := &QueryMetrics{
		kinds:         make(map[QueryKind]int64),
		topTerms:      topTerms,
		zeroResults:   NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		latencies:     make(map[LatencyBucket]int64),
		recentQueries: recent,
		startTime:     time.Now(),
		pending:       newPending(),
		store:         store,
		logger:        cfg.Logger,
		stopCh:        make(chan struct{}),
	}

	if cfg.FlushInterval > 0 && store != nil {
		m.wg.Add(1)
		go m.flushLoop(cfg.FlushInterval)
	}
	return m
}

func (m *QueryMetrics) flushLoop(interval time.Duration) {
	defer m.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := m.Flush(); err != nil {
				m.logger.Warn("telemetry flush failed", slog.String("error", err.Error()))
			}
		case <-m.stopCh:
			return
		}
	}
}

// Record captures one read operation. Non-blocking apart from the mutex.
func (m *QueryMetrics) Record(event QueryEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	m.kinds[event.Kind]++
	m.pending.kinds[event.Kind]++
	m.totalQueries++

	if event.Kind == KindSearch {
		for _, term := range ExtractTerms(event.Query) {
			count, _ := m.topTerms.Get(term)
			m.topTerms.Add(term, count+1)
			m.pending.terms[term]++
		}
		if event.IsZeroResult() {
			m.zeroResults.Add(event.Query)
			m.pending.zero = append(m.pending.zero, event.Query)
		}
	}
	if event.IsZeroResult() {
		m.zeroResultCount++
	}

	bucket := LatencyToBucket(event.Latency)
	m.latencies[bucket]++
	m.pending.latencies[bucket]++

	key := hashQuery(event.Kind, event.Query)
	if m.recentQueries.Contains(key) {
		m.repeatCount++
	}
	m.recentQueries.Add(key, struct{}{})
}

func hashQuery(kind QueryKind, query string) string {
	sum := sha256.Sum256([]byte(string(kind) + "\x00" + strings.ToLower(strings.TrimSpace(query))))
	return hex.EncodeToString(sum[:16])
}

// Snapshot returns the counters accumulated since the collector started.
func (m *QueryMetrics) Snapshot() *QueryMetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	var top []TermCount
	for _, key := range m.topTerms.Keys() {
		if count, ok := m.topTerms.Peek(key); ok {
			top = append(top, TermCount{Term: key, Count: count})
		}
	}
	slices.SortFunc(top, func(a, b TermCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return strings.Compare(a.Term, b.Term)
	})

	return &QueryMetricsSnapshot{
		KindCounts:          maps.Clone(m.kinds),
		TopTerms:            top,
		ZeroResultQueries:   m.zeroResults.Items(),
		LatencyDistribution: maps.Clone(m.latencies),
		TotalQueries:        m.totalQueries,
		ZeroResultCount:     m.zeroResultCount,
		RepeatCount:         m.repeatCount,
		Since:               m.startTime,
	}
}

// Flush writes counts recorded since the previous flush to the store.
// Safe to call when no store is configured. On failure the batch is dropped.
func (m *QueryMetrics) Flush() error {
	if m.store == nil {
		return nil
	}
	m.flushMu.Lock()
	defer m.flushMu.Unlock()

	m.mu.Lock()
	batch := m.pending
	m.pending = newPending()
	m.mu.Unlock()

	now := time.Now()
	today := now.Format(time.DateOnly)

	if err := m.store.SaveKindCounts(today, batch.kinds); err != nil {
		return err
	}
	if err := m.store.UpsertTermCounts(batch.terms); err != nil {
		return err
	}
	if err := m.store.SaveLatencyCounts(today, batch.latencies); err != nil {
		return err
	}
	return m.store.AddZeroResultQueries(batch.zero, now)
}

// Close stops auto-flush and writes the final batch.
func (m *QueryMetrics) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()
	return m.Flush()
}
