// Package metrics exposes Prometheus metrics for ingestion and queries.
//
// All recording methods are safe on a nil *Metrics, so components can run
// without a registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "recidx"

// Metrics holds the recidx collectors.
type Metrics struct {
	refreshRuns     *prometheus.CounterVec
	refreshDuration *prometheus.HistogramVec
	sourceFailures  *prometheus.CounterVec
	parseRejected   prometheus.Counter
	records         prometheus.Gauge
	evicted         prometheus.Counter
	snapshotSaves   *prometheus.CounterVec
	lookups         *prometheus.CounterVec
	searches        *prometheus.CounterVec
	liveLookups     *prometheus.CounterVec

	collectors []prometheus.Collector
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		refreshRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_runs_total",
			Help:      "Refresh runs by mode and outcome",
		}, []string{"mode", "status"}),
		refreshDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Wall time of refresh runs",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}, []string{"mode"}),
		sourceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetch_failures_total",
			Help:      "Sources skipped because the fetch failed",
		}, []string{"source"}),
		parseRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_rejected_lines_total",
			Help:      "Source lines rejected by the parser",
		}),
		records: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records",
			Help:      "Records currently held in the store",
		}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_evicted_total",
			Help:      "Records removed by capacity eviction",
		}),
		snapshotSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_saves_total",
			Help:      "Snapshot writes by outcome",
		}, []string{"status"}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookups_total",
			Help:      "Id lookups by resolution tier",
		}, []string{"match"}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Searches by result cache outcome",
		}, []string{"cache"}),
		liveLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_lookups_total",
			Help:      "Live source scans for missing ids",
		}, []string{"result"}),
	}
	m.collectors = []prometheus.Collector{
		m.refreshRuns, m.refreshDuration, m.sourceFailures, m.parseRejected, m.records,
		m.evicted, m.snapshotSaves, m.lookups, m.searches, m.liveLookups,
	}
	if err := reg.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}

// RecordRefresh records a finished refresh run.
func (m *Metrics) RecordRefresh(mode, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.refreshRuns.WithLabelValues(mode, status).Inc()
	m.refreshDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// RecordSourceFailure counts a skipped source.
func (m *Metrics) RecordSourceFailure(label string) {
	if m == nil {
		return
	}
	m.sourceFailures.WithLabelValues(label).Inc()
}

// AddRejected adds parser rejections.
func (m *Metrics) AddRejected(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.parseRejected.Add(float64(n))
}

// SetRecords sets the store size gauge.
func (m *Metrics) SetRecords(n int) {
	if m == nil {
		return
	}
	m.records.Set(float64(n))
}

// AddEvicted adds capacity evictions.
func (m *Metrics) AddEvicted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.evicted.Add(float64(n))
}

// RecordSnapshotSave counts a snapshot write.
func (m *Metrics) RecordSnapshotSave(err error) {
	if m == nil {
		return
	}
	m.snapshotSaves.WithLabelValues(status(err)).Inc()
}

// RecordLookup counts a lookup resolved at the given tier. Use "miss" for
// a lookup that found nothing.
func (m *Metrics) RecordLookup(match string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(match).Inc()
}

// RecordSearch counts a search served from the result cache or not.
func (m *Metrics) RecordSearch(cached bool) {
	if m == nil {
		return
	}
	label := "miss"
	if cached {
		label = "hit"
	}
	m.searches.WithLabelValues(label).Inc()
}

// RecordLiveLookup counts a live scan outcome: hit, miss, error (no
// source reachable) or negative (answered from the negative cache
// without scanning).
func (m *Metrics) RecordLiveLookup(result string) {
	if m == nil {
		return
	}
	m.liveLookups.WithLabelValues(result).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
