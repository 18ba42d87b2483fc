package telemetry

import (
	"fmt"
	"time"
)

// QueryHistory aggregates persisted query telemetry over a date range.
type QueryHistory struct {
	From              string                  `json:"from"`
	To                string                  `json:"to"`
	KindCounts        map[QueryKind]int64     `json:"kind_counts"`
	LatencyCounts     map[LatencyBucket]int64 `json:"latency_counts"`
	TopTerms          []TermCount             `json:"top_terms"`
	ZeroResultQueries []string                `json:"zero_result_queries"`
}

// Total returns the number of queries in the range.
func (h QueryHistory) Total() int64 {
	var n int64
	for _, c := range h.KindCounts {
		n += c
	}
	return n
}

// QueryHistory reads the last days days of counts, ending at now, plus
// up to limit top terms and zero-result queries. Terms and zero-result
// queries are not dated and cover the whole database.
func (d *DB) QueryHistory(now time.Time, days, limit int) (QueryHistory, error) {
	if days < 1 {
		days = 1
	}
	h := QueryHistory{
		From: now.AddDate(0, 0, -(days - 1)).Format(time.DateOnly),
		To:   now.Format(time.DateOnly),
	}

	var err error
	if h.KindCounts, err = d.GetKindCounts(h.From, h.To); err != nil {
		return h, fmt.Errorf("kind counts: %w", err)
	}
	if h.LatencyCounts, err = d.GetLatencyCounts(h.From, h.To); err != nil {
		return h, fmt.Errorf("latency counts: %w", err)
	}
	if h.TopTerms, err = d.GetTopTerms(limit); err != nil {
		return h, err
	}
	if h.ZeroResultQueries, err = d.GetZeroResultQueries(limit); err != nil {
		return h, err
	}
	return h, nil
}
