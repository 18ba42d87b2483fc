package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Run is one finished refresh as recorded in the run history.
type Run struct {
	RunID         string    `json:"run_id"`
	Mode          string    `json:"mode"`
	Status        string    `json:"status"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Records       int       `json:"records"`
	Added         int       `json:"added"`
	Rejected      int       `json:"rejected"`
	Duplicates    int       `json:"duplicates"`
	SourcesOK     int       `json:"sources_ok"`
	SourcesFailed int       `json:"sources_failed"`
	Evicted       int       `json:"evicted"`
	Error         string    `json:"error,omitempty"`
}

// Duration returns how long the run took.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// timeLayout is fixed width so ORDER BY on the text column is chronological.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const runColumns = `run_id, mode, status, started_at, finished_at, records, added,
	rejected, duplicates, sources_ok, sources_failed, evicted, error`

// RecordRun inserts or replaces a run.
func (d *DB) RecordRun(ctx context.Context, r Run) error {
	_, err := d.db.ExecContext(ctx, `INSERT OR REPLACE INTO refresh_runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Mode, r.Status,
		r.StartedAt.UTC().Format(timeLayout), r.FinishedAt.UTC().Format(timeLayout),
		r.Records, r.Added, r.Rejected, r.Duplicates, r.SourcesOK, r.SourcesFailed, r.Evicted, r.Error)
	if err != nil {
		return fmt.Errorf("record refresh run: %w", err)
	}
	return nil
}

// LastRun returns the most recently started run. ok is false when the
// history is empty.
func (d *DB) LastRun(ctx context.Context) (Run, bool, error) {
	runs, err := d.Runs(ctx, 1)
	if err != nil || len(runs) == 0 {
		return Run{}, false, err
	}
	return runs[0], true, nil
}

// Runs returns up to limit runs, newest first.
func (d *DB) Runs(ctx context.Context, limit int) ([]Run, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT `+runColumns+` FROM refresh_runs
		ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query refresh runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Run returns a single run by id.
func (d *DB) Run(ctx context.Context, runID string) (Run, bool, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM refresh_runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, false, nil
	}
	if err != nil {
		return Run{}, false, err
	}
	return r, true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var r Run
	var started, finished string
	err := s.Scan(&r.RunID, &r.Mode, &r.Status, &started, &finished, &r.Records, &r.Added,
		&r.Rejected, &r.Duplicates, &r.SourcesOK, &r.SourcesFailed, &r.Evicted, &r.Error)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan refresh run: %w", err)
	}
	if r.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return Run{}, fmt.Errorf("parse started_at: %w", err)
	}
	if r.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
		return Run{}, fmt.Errorf("parse finished_at: %w", err)
	}
	return r, nil
}
