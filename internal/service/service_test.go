package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/recidx/internal/async"
	"github.com/Aman-CERP/recidx/internal/config"
	rxerrors "github.com/Aman-CERP/recidx/internal/errors"
	"github.com/Aman-CERP/recidx/internal/logging"
	"github.com/Aman-CERP/recidx/internal/query"
	"github.com/Aman-CERP/recidx/internal/record"
	"github.com/Aman-CERP/recidx/internal/snapshot"
	"github.com/Aman-CERP/recidx/internal/source"
	"github.com/Aman-CERP/recidx/internal/telemetry"
	"github.com/Aman-CERP/recidx/pkg/version"
)

const (
	srcA = "https://dumps.example.com/exports/part_a.txt"
	srcB = "https://dumps.example.com/exports/part_b.txt"
)

// stubFetcher serves bodies keyed by URL. While gate is non-nil, fetches
// block until it is closed.
type stubFetcher struct {
	mu     sync.Mutex
	bodies map[string]string
	fail   map[string]bool
	gate   chan struct{}
	gates  map[string]chan struct{}
	calls  int
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		bodies: make(map[string]string),
		fail:   make(map[string]bool),
		gates:  make(map[string]chan struct{}),
	}
}

func (f *stubFetcher) Fetch(ctx context.Context, src source.Source) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	if g, ok := f.gates[src.URL]; ok {
		gate = g
	}
	body, failed := f.bodies[src.URL], f.fail[src.URL]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failed {
		return nil, rxerrors.New(rxerrors.ErrCodeSourceUnavailable, "unavailable", nil)
	}
	return []byte(body), nil
}

func (f *stubFetcher) set(url string, recs ...record.Record) {
	lines := make([]string, len(recs))
	for i, r := range recs {
		lines[i] = record.Format(r)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[url] = strings.Join(lines, "\n")
	delete(f.fail, url)
}

func (f *stubFetcher) failAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[srcA] = true
	f.fail[srcB] = true
}

func (f *stubFetcher) block() chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	return f.gate
}

// blockURL makes fetches of url wait until the returned channel is closed.
func (f *stubFetcher) blockURL(url string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.gates[url] = gate
	return gate
}

func (f *stubFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func rec(id, email, addr string) record.Record {
	return record.Record{ID: id, Email: email, NetworkAddress: addr}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewConfig()
	cfg.Sources.URLs = []string{srcA, srcB}
	cfg.Snapshot.Path = filepath.Join(dir, "users_cache.json")
	cfg.Telemetry.Path = filepath.Join(dir, "telemetry.db")
	cfg.Store.LooseLookup = false
	return cfg
}

func newTestService(t *testing.T, cfg *config.Config, f *stubFetcher, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithFetcher(f), WithLogger(logging.Discard())}, opts...)
	svc, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestBootstrap_ReloadsWhenSnapshotMissing(t *testing.T) {
	// Given: no snapshot and two sources
	cfg := testConfig(t)
	f := newStubFetcher()
	f.set(srcA, rec("u1", "alice@example.com", "10.0.0.1"))
	f.set(srcB, rec("u2", "bob@example.com", "10.0.0.2"))
	svc := newTestService(t, cfg, f)

	// When: bootstrapping
	require.NoError(t, svc.Bootstrap(context.Background()))

	// Then: the store is filled, the snapshot written and the run recorded
	res, err := svc.LookupByID(context.Background(), "u2")
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", res.Email)
	assert.Equal(t, query.OriginCache, res.Origin)
	assert.FileExists(t, cfg.Snapshot.Path)

	st := svc.Stats(context.Background())
	assert.Equal(t, 2, st.TotalRecords)
	assert.False(t, st.Refreshing)
	require.NotNil(t, st.LastRun)
	assert.Equal(t, "full", st.LastRun.Mode)
	assert.Equal(t, "ready", st.LastRun.Status)
	assert.Equal(t, 2, st.LastRun.SourcesOK)
}

func TestBootstrap_UsesFreshSnapshot(t *testing.T) {
	// Given: a snapshot written by a previous process
	cfg := testConfig(t)
	first := newStubFetcher()
	first.set(srcA, rec("u1", "alice@example.com", "10.0.0.1"))
	first.set(srcB)
	require.NoError(t, newTestService(t, cfg, first).Bootstrap(context.Background()))

	// When: a new service bootstraps against failing sources
	second := newStubFetcher()
	second.failAll()
	svc := newTestService(t, cfg, second)
	require.NoError(t, svc.Bootstrap(context.Background()))

	// Then: the snapshot is used and no source is fetched
	assert.Equal(t, 0, second.callCount())
	_, err := svc.LookupByID(context.Background(), "u1")
	assert.NoError(t, err)
}

func writeMarker(t *testing.T, cfg *config.Config) string {
	t.Helper()
	marker := filepath.Join(filepath.Dir(cfg.Snapshot.Path), async.MarkerFile)
	require.NoError(t, os.WriteFile(marker, []byte("dead-run"), 0644))
	return marker
}

func TestBootstrap_InterruptedCheckpointForcesReload(t *testing.T) {
	// Given: checkpointing on and a valid snapshot next to a leftover refresh marker
	cfg := testConfig(t)
	cfg.Snapshot.Checkpoint = true
	f := newStubFetcher()
	f.set(srcA, rec("u1", "alice@example.com", "10.0.0.1"))
	f.set(srcB)
	require.NoError(t, newTestService(t, cfg, f).Bootstrap(context.Background()))
	marker := writeMarker(t, cfg)

	// When: bootstrapping again
	g := newStubFetcher()
	g.set(srcA, rec("u7", "eve@example.com", "10.0.0.7"))
	g.set(srcB)
	svc := newTestService(t, cfg, g)
	require.NoError(t, svc.Bootstrap(context.Background()))

	// Then: the sources are preferred and the marker is cleared
	assert.Positive(t, g.callCount())
	_, err := svc.LookupByID(context.Background(), "u7")
	assert.NoError(t, err)
	assert.NoFileExists(t, marker)
}

func TestBootstrap_InterruptedCheckpointServedWhenSourcesDown(t *testing.T) {
	// Given: checkpointing on, a fresh two-record snapshot and a leftover marker
	cfg := testConfig(t)
	cfg.Snapshot.Checkpoint = true
	f := newStubFetcher()
	f.set(srcA, rec("u1", "alice@example.com", "10.0.0.1"), rec("u2", "bob@example.com", "10.0.0.2"))
	f.set(srcB)
	require.NoError(t, newTestService(t, cfg, f).Bootstrap(context.Background()))
	marker := writeMarker(t, cfg)

	// When: bootstrapping while every source is down
	g := newStubFetcher()
	g.failAll()
	svc := newTestService(t, cfg, g)
	require.NoError(t, svc.Bootstrap(context.Background()))

	// Then: the checkpointed records are served
	assert.Positive(t, g.callCount())
	assert.Equal(t, 2, svc.Stats(context.Background()).TotalRecords)
	_, err := svc.LookupByID(context.Background(), "u2")
	assert.NoError(t, err)
	assert.NoFileExists(t, marker)
}

func TestBootstrap_MarkerIgnoredWithoutCheckpoint(t *testing.T) {
	// Given: checkpointing off, a fresh snapshot and a marker from another process
	cfg := testConfig(t)
	f := newStubFetcher()
	f.set(srcA, rec("u1", "alice@example.com", "10.0.0.1"), rec("u2", "bob@example.com", "10.0.0.2"))
	f.set(srcB)
	require.NoError(t, newTestService(t, cfg, f).Bootstrap(context.Background()))
	writeMarker(t, cfg)

	// When: bootstrapping
	g := newStubFetcher()
	g.failAll()
	svc := newTestService(t, cfg, g)
	require.NoError(t, svc.Bootstrap(context.Background()))

	// Then: the snapshot is complete, so it is used without fetching
	assert.Equal(t, 0, g.callCount())
	assert.Equal(t, 2, svc.Stats(context.Background()).TotalRecords)
}

func TestBootstrap_StaleSnapshotReloads(t *testing.T) {
	// Given: a snapshot one second past its TTL
	cfg := testConfig(t)
	f := newStubFetcher()
	f.set(srcA, rec("u1", "alice@example.com", "10.0.0.1"))
	f.set(srcB)
	require.NoError(t, newTestService(t, cfg, f).Bootstrap(context.Background()))
	old := time.Now().Add(-(cfg.SnapshotTTL() + time.Second))
	require.NoError(t, os.Chtimes(cfg.Snapshot.Path, old, old))

	// When: bootstrapping against changed sources
	g := newStubFetcher()
	g.set(srcA, rec("u2", "bob@example.com", "10.0.0.2"))
	g.set(srcB)
	svc := newTestService(t, cfg, g)
	require.NoError(t, svc.Bootstrap(context.Background()))

	// Then: the stale data is discarded in favour of a full reload
	assert.Positive(t, g.callCount())
	_, err := svc.LookupByID(context.Background(), "u2")
	assert.NoError(t, err)
	_, err = svc.LookupByID(context.Background(), "u1")
	assert.True(t, rxerrors.HasCode(err, rxerrors.ErrCodeRecordNotFound))
}

func TestBootstrap_CorruptSnapshotReloads(t *testing.T) {
	// Given: a snapshot that is not a flat object
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.Snapshot.Path, []byte(`[{"email":"x"}]`), 0644))
	f := newStubFetcher()
	f.set(srcA, rec("u1", "alice@example.com", "10.0.0.1"))
	f.set(srcB)
	svc := newTestService(t, cfg, f)

	// When: bootstrapping
	require.NoError(t, svc.Bootstrap(context.Background()))

	// Then: the sources are loaded and the snapshot rewritten
	assert.Positive(t, f.callCount())
	assert.Equal(t, 1, svc.Stats(context.Background()).TotalRecords)
	recs, _, err := snapshot.New(cfg.Snapshot.Path, cfg.SnapshotTTL()).Load()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "u1", recs[0].ID)
}

func TestFullReload_CheckpointsAfterEachSource(t *testing.T) {
	// Given: checkpointing on and the second source stalled
	cfg := testConfig(t)
	cfg.Snapshot.Checkpoint = true
	f := newStubFetcher()
	f.set(srcA, rec("u1", "alice@example.com", "10.0.0.1"))
	f.set(srcB, rec("u2", "bob@example.com", "10.0.0.2"))
	gate := f.blockURL(srcB)
	svc := newTestService(t, cfg, f)
	snap := snapshot.New(cfg.Snapshot.Path, cfg.SnapshotTTL())

	// When: a full refresh runs
	_, err := svc.TriggerRefresh(context.Background(), ModeFull)
	require.NoError(t, err)

	// Then: the first source's batch is on disk before the run finishes
	require.Eventually(t, func() bool {
		recs, _, err := snap.Load()
		return err == nil && len(recs) == 1 && recs[0].ID == "u1"
	}, time.Second, 5*time.Millisecond)
	assert.True(t, svc.Stats(context.Background()).Refreshing)
	assert.Equal(t, 0, svc.Stats(context.Background()).TotalRecords, "the store is swapped only at the end")

	// And: the final snapshot holds both sources
	close(gate)
	require.NoError(t, svc.WaitRefresh())
	recs, _, err := snap.Load()
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestBootstrap_NoUsableSourceStartsEmpty(t *testing.T) {
	cfg := testConfig(t)
	f := newStubFetcher()
	f.failAll()
	svc := newTestService(t, cfg, f)

	require.NoError(t, svc.Bootstrap(context.Background()))

	assert.Equal(t, 0, svc.Stats(context.Background()).TotalRecords)
	assert.NoFileExists(t, cfg.Snapshot.Path)
}

func TestTriggerRefresh_NoUsableSourceKeepsStore(t *testing.T) {
	// Given: a bootstrapped service
	cfg := testConfig(t)
	f := newStubFetcher()
	f.set(srcA, rec("u1", "alice@example.com", "10.0.0.1"))
	f.set(srcB)
	svc := newTestService(t, cfg, f)
	require.NoError(t, svc.Bootstrap(context.Background()))

	// When: every source fails on the next refresh
	f.failAll()
	ack, err := svc.TriggerRefresh(context.Background(), ModeFull)
	require.NoError(t, err)
	assert.True(t, ack.Started)
	assert.NotEmpty(t, ack.RunID)
	err = svc.WaitRefresh()

	// Then: the run fails but the old records remain
	assert.True(t, rxerrors.HasCode(err, rxerrors.ErrCodeIngestFailed))
	_, err = svc.LookupByID(context.Background(), "u1")
	assert.NoError(t, err)

	st := svc.Stats(context.Background())
	require.NotNil(t, st.LastRun)
	assert.Equal(t, "error", st.LastRun.Status)
	assert.Equal(t, 2, st.LastRun.SourcesFailed)
	assert.Equal(t, "error", st.Refresh.Progress.Status)
}

func TestTriggerRefresh_OverlapIsRejected(t *testing.T) {
	cfg := testConfig(t)
	f := newStubFetcher()
	f.set(srcA, rec("u1", "alice@example.com", "10.0.0.1"))
	f.set(srcB)
	svc := newTestService(t, cfg, f)
	gate := f.block()

	first, err := svc.TriggerRefresh(context.Background(), ModeFull)
	require.NoError(t, err)

	second, err := svc.TriggerRefresh(context.Background(), ModeAugment)
	assert.ErrorIs(t, err, async.ErrRefreshInProgress)
	assert.False(t, second.Started)
	assert.True(t, svc.Stats(context.Background()).Refreshing)

	close(gate)
	require.NoError(t, svc.WaitRefresh())
	assert.Equal(t, first.RunID, svc.RefreshStatus().RunID)
}

func TestTriggerRefresh_ReadersSeeOldStoreUntilSwap(t *testing.T) {
	// Given: a store holding u1
	cfg := testConfig(t)
	f := newStubFetcher()
	f.set(srcA, rec("u1", "alice@example.com", "10.0.0.1"))
	f.set(srcB)
	svc := newTestService(t, cfg, f)
	require.NoError(t, svc.Bootstrap(context.Background()))

	// When: a full refresh to different data is blocked mid-fetch
	f.set(srcA, rec("u2", "bob@example.com", "10.0.0.2"))
	gate := f.block()
	calls := f.callCount()
	_, err := svc.TriggerRefresh(context.Background(), ModeFull)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.callCount() > calls }, time.Second, 5*time.Millisecond)

	// Then: readers see the pre-refresh store
	_, err = svc.LookupByID(context.Background(), "u1")
	assert.NoError(t, err)
	_, err = svc.LookupByID(context.Background(), "u2")
	assert.True(t, rxerrors.HasCode(err, rxerrors.ErrCodeRecordNotFound))

	// And: after the swap only the new data is visible
	close(gate)
	require.NoError(t, svc.WaitRefresh())
	_, err = svc.LookupByID(context.Background(), "u2")
	assert.NoError(t, err)
	_, err = svc.LookupByID(context.Background(), "u1")
	assert.Error(t, err)
}

func TestTriggerRefresh_AugmentKeepsExisting(t *testing.T) {
	cfg := testConfig(t)
	f := newStubFetcher()
	f.set(srcA, rec("u1", "alice@example.com", "10.0.0.1"))
	f.set(srcB)
	svc := newTestService(t, cfg, f)
	require.NoError(t, svc.Bootstrap(context.Background()))

	// u1 changes upstream and u3 appears
	f.set(srcA, rec("u1", "changed@example.com", "10.9.9.9"), rec("u3", "carol@example.com", "10.0.0.3"))
	_, err := svc.TriggerRefresh(context.Background(), ModeAugment)
	require.NoError(t, err)
	require.NoError(t, svc.WaitRefresh())

	u1, err := svc.LookupByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", u1.Email)
	_, err = svc.LookupByID(context.Background(), "u3")
	assert.NoError(t, err)

	runs, err := svc.RefreshHistory(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "augment", runs[0].Mode)
	assert.Equal(t, 1, runs[0].Added)
}

func TestTriggerRefresh_EvictsOverCapacity(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.MaxRecords = 2
	f := newStubFetcher()
	f.set(srcA, rec("u1", "", ""), rec("u2", "", ""), rec("u3", "", ""))
	f.set(srcB)
	svc := newTestService(t, cfg, f)

	require.NoError(t, svc.Bootstrap(context.Background()))

	st := svc.Stats(context.Background())
	assert.Equal(t, 2, st.TotalRecords)
	require.NotNil(t, st.LastRun)
	assert.Equal(t, 1, st.LastRun.Evicted)
	_, err := svc.LookupByID(context.Background(), "u1")
	assert.Error(t, err, "oldest record is evicted first")
}

func TestLookupByID_MissWithoutFallback(t *testing.T) {
	cfg := testConfig(t)
	f := newStubFetcher()
	f.set(srcA)
	f.set(srcB)
	svc := newTestService(t, cfg, f)
	require.NoError(t, svc.Bootstrap(context.Background()))
	calls := f.callCount()

	_, err := svc.LookupByID(context.Background(), "u404")

	assert.True(t, rxerrors.HasCode(err, rxerrors.ErrCodeRecordNotFound))
	assert.Equal(t, calls, f.callCount(), "no live scan")
}

func TestLookupByID_LiveFallback(t *testing.T) {
	// Given: live fallback on and a record that appeared upstream after bootstrap
	cfg := testConfig(t)
	cfg.Lookup.LiveFallback = true
	f := newStubFetcher()
	f.set(srcA, rec("u1", "alice@example.com", "10.0.0.1"))
	f.set(srcB)
	svc := newTestService(t, cfg, f)
	require.NoError(t, svc.Bootstrap(context.Background()))
	f.set(srcB, rec("u9", "zed@example.com", "10.0.0.9"))

	// When: looking it up twice
	first, err := svc.LookupByID(context.Background(), "u9")
	require.NoError(t, err)
	second, err := svc.LookupByID(context.Background(), "u9")
	require.NoError(t, err)

	// Then: the first answer is live, the second comes from the store
	assert.Equal(t, query.OriginLive, first.Origin)
	assert.Equal(t, "zed@example.com", first.Email)
	assert.Equal(t, query.OriginCache, second.Origin)
	assert.Equal(t, 2, svc.Stats(context.Background()).TotalRecords)
}

func TestLookupByID_NegativeCacheSkipsSecondScan(t *testing.T) {
	cfg := testConfig(t)
	cfg.Lookup.LiveFallback = true
	f := newStubFetcher()
	f.set(srcA, rec("u1", "alice@example.com", "10.0.0.1"))
	f.set(srcB)
	svc := newTestService(t, cfg, f)
	require.NoError(t, svc.Bootstrap(context.Background()))
	before := f.callCount()

	_, err := svc.LookupByID(context.Background(), "u404")
	require.Error(t, err)
	afterFirst := f.callCount()
	_, err = svc.LookupByID(context.Background(), "u404")
	require.Error(t, err)

	assert.Greater(t, afterFirst, before, "first miss scans the sources")
	assert.Equal(t, afterFirst, f.callCount(), "second miss is answered from the negative cache")
	assert.True(t, rxerrors.HasCode(err, rxerrors.ErrCodeRecordNotFound))
}

func TestLookupByID_FailedScanIsNotRemembered(t *testing.T) {
	// Given: live fallback on and every source down at lookup time
	cfg := testConfig(t)
	cfg.Lookup.LiveFallback = true
	f := newStubFetcher()
	f.set(srcA, rec("u1", "alice@example.com", "10.0.0.1"))
	f.set(srcB)
	svc := newTestService(t, cfg, f)
	require.NoError(t, svc.Bootstrap(context.Background()))
	f.failAll()

	_, err := svc.LookupByID(context.Background(), "u9")
	require.True(t, rxerrors.HasCode(err, rxerrors.ErrCodeRecordNotFound))

	// When: the sources recover with u9 upstream
	f.set(srcA, rec("u1", "alice@example.com", "10.0.0.1"))
	f.set(srcB, rec("u9", "zed@example.com", "10.0.0.9"))
	res, err := svc.LookupByID(context.Background(), "u9")

	// Then: the earlier failure did not count as a miss
	require.NoError(t, err)
	assert.Equal(t, query.OriginLive, res.Origin)
}

func TestLookupByID_CancelledCallerIsNotRemembered(t *testing.T) {
	cfg := testConfig(t)
	cfg.Lookup.LiveFallback = true
	f := newStubFetcher()
	f.set(srcA, rec("u1", "alice@example.com", "10.0.0.1"))
	f.set(srcB)
	svc := newTestService(t, cfg, f)
	require.NoError(t, svc.Bootstrap(context.Background()))
	f.set(srcB, rec("u9", "zed@example.com", "10.0.0.9"))
	calls := f.callCount()

	// Given: a caller that has already given up
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.LookupByID(ctx, "u9")
	require.True(t, rxerrors.HasCode(err, rxerrors.ErrCodeRecordNotFound))
	assert.Equal(t, calls, f.callCount(), "no scan for a cancelled caller")

	// When: a live caller asks for the same id
	res, err := svc.LookupByID(context.Background(), "u9")

	// Then: it is found upstream
	require.NoError(t, err)
	assert.Equal(t, query.OriginLive, res.Origin)
}

func TestLookupByID_LiveFallbackTrimsID(t *testing.T) {
	cfg := testConfig(t)
	cfg.Lookup.LiveFallback = true
	f := newStubFetcher()
	f.set(srcA, rec("u1", "alice@example.com", "10.0.0.1"))
	f.set(srcB)
	svc := newTestService(t, cfg, f)
	require.NoError(t, svc.Bootstrap(context.Background()))
	f.set(srcB, rec("u9", "zed@example.com", "10.0.0.9"))

	res, err := svc.LookupByID(context.Background(), "  u9 ")

	require.NoError(t, err)
	assert.Equal(t, "u9", res.ID)
	assert.Equal(t, query.OriginLive, res.Origin)
}

func TestSearchAndBulk(t *testing.T) {
	cfg := testConfig(t)
	f := newStubFetcher()
	f.set(srcA, rec("u1", "alice@example.com", "10.0.0.1"), rec("u2", "bob@example.com", "10.0.0.2"))
	f.set(srcB)
	svc := newTestService(t, cfg, f)
	require.NoError(t, svc.Bootstrap(context.Background()))

	resp, err := svc.Search("EXAMPLE.com", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Count)
	again, err := svc.Search("example.com", 0)
	require.NoError(t, err)
	assert.True(t, again.Cached)

	_, err = svc.Search("a", 10)
	assert.True(t, rxerrors.HasCode(err, rxerrors.ErrCodeQueryTooShort))

	bulk := svc.BulkLookup(SplitIDs(" u2, nope ,u1,"))
	assert.Equal(t, 3, bulk.Requested)
	require.Len(t, bulk.Found, 2)
	assert.Equal(t, "u2", bulk.Found[0].ID)
	assert.Equal(t, []string{"nope"}, bulk.NotFound)

	tel := svc.QueryTelemetry()
	require.NotNil(t, tel)
	assert.Equal(t, int64(3), tel.TotalQueries)

	// Then: the persisted history includes this process's queries
	hist, err := svc.QueryHistory(1, 10)
	require.NoError(t, err)
	require.NotNil(t, hist)
	assert.Equal(t, int64(2), hist.KindCounts[telemetry.KindSearch])
	assert.Equal(t, int64(1), hist.KindCounts[telemetry.KindBulk])
}

func TestMetricsAreRegistered(t *testing.T) {
	cfg := testConfig(t)
	f := newStubFetcher()
	f.set(srcA, rec("u1", "alice@example.com", "10.0.0.1"))
	f.fail[srcB] = true
	reg := prometheus.NewRegistry()
	svc := newTestService(t, cfg, f, WithRegisterer(reg))

	require.NoError(t, svc.Bootstrap(context.Background()))
	_, _ = svc.LookupByID(context.Background(), "u1")

	n, err := testutil.GatherAndCount(reg, "recidx_refresh_runs_total", "recidx_source_fetch_failures_total", "recidx_lookups_total")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestTelemetryDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Telemetry.Enabled = false
	f := newStubFetcher()
	f.set(srcA, rec("u1", "", ""))
	f.set(srcB)
	svc := newTestService(t, cfg, f)

	require.NoError(t, svc.Bootstrap(context.Background()))

	assert.Nil(t, svc.Stats(context.Background()).LastRun)
	assert.Nil(t, svc.QueryTelemetry())
	hist, err := svc.QueryHistory(7, 10)
	assert.NoError(t, err)
	assert.Nil(t, hist)
	runs, err := svc.RefreshHistory(context.Background(), 5)
	assert.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoFileExists(t, cfg.Telemetry.Path)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Sources.URLs = []string{"ftp://nope"}

	_, err := New(cfg, WithLogger(logging.Discard()))

	assert.Error(t, err)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeFull, m)

	m, err = ParseMode("augment")
	require.NoError(t, err)
	assert.Equal(t, ModeAugment, m)

	_, err = ParseMode("partial")
	assert.True(t, rxerrors.HasCode(err, rxerrors.ErrCodeInvalidInput))
}

func TestSplitIDs(t *testing.T) {
	assert.Equal(t, []string{"a", "b c", "d"}, SplitIDs(" a ,b c,,d, "))
	assert.Nil(t, SplitIDs(" , "))
}

func TestPing(t *testing.T) {
	svc := newTestService(t, testConfig(t), newStubFetcher())

	p := svc.Ping()

	assert.Equal(t, version.Name, p.Service)
	assert.Equal(t, version.Version, p.Version)
	assert.Equal(t, 0, p.Records)
}

func TestClose_WaitsForRefresh(t *testing.T) {
	cfg := testConfig(t)
	f := newStubFetcher()
	f.set(srcA, rec("u1", "", ""))
	f.set(srcB)
	svc, err := New(cfg, WithFetcher(f), WithLogger(logging.Discard()))
	require.NoError(t, err)
	gate := f.block()
	_, err = svc.TriggerRefresh(context.Background(), ModeFull)
	require.NoError(t, err)

	closed := make(chan error, 1)
	go func() { closed <- svc.Close() }()
	select {
	case <-closed:
		t.Fatal("Close returned while a refresh was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(gate)
	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}
	assert.False(t, errors.Is(svc.WaitRefresh(), async.ErrRefreshInProgress))
}
