package async

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	rxerrors "github.com/Aman-CERP/recidx/internal/errors"
)

// MarkerFile is written while a refresh is in flight and removed when it
// finishes. A leftover marker means the previous process died mid-refresh.
const MarkerFile = "refresh.lock"

// ErrRefreshInProgress is returned by Start while another run is in flight.
var ErrRefreshInProgress = rxerrors.New(rxerrors.ErrCodeRefreshInProgress,
	"a refresh is already running", nil)

// RefreshFunc is the work performed by one refresh run.
type RefreshFunc func(ctx context.Context, runID string, progress *Progress) error

// RunStatus describes the current or most recent run.
type RunStatus struct {
	RunID      string           `json:"run_id,omitempty"`
	Mode       string           `json:"mode,omitempty"`
	StartedAt  time.Time        `json:"started_at,omitempty"`
	FinishedAt time.Time        `json:"finished_at,omitempty"`
	Error      string           `json:"error,omitempty"`
	Progress   ProgressSnapshot `json:"progress"`
}

// RefresherConfig configures a Refresher.
type RefresherConfig struct {
	// MarkerDir holds MarkerFile. Empty disables the marker.
	MarkerDir string
	Logger    *slog.Logger
}

// Refresher runs at most one refresh at a time in a background goroutine.
// Overlapping Start calls are rejected, not queued.
type Refresher struct {
	config RefresherConfig
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	done     chan struct{}
	progress *Progress
	last     RunStatus
	err      error
}

// NewRefresher creates an idle Refresher.
func NewRefresher(cfg RefresherConfig) *Refresher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{config: cfg, logger: logger}
}

// Start launches fn in its own goroutine and returns the new run id.
// The run is detached from ctx cancellation and always runs to completion.
// If a run is already in flight, Start returns ErrRefreshInProgress.
func (r *Refresher) Start(ctx context.Context, mode string, fn RefreshFunc) (string, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return "", ErrRefreshInProgress
	}

	runID := uuid.NewString()
	progress := NewProgress()
	done := make(chan struct{})

	r.running = true
	r.done = done
	r.progress = progress
	r.err = nil
	r.last = RunStatus{RunID: runID, Mode: mode, StartedAt: time.Now()}
	r.mu.Unlock()

	go r.run(context.WithoutCancel(ctx), runID, fn, progress, done)
	return runID, nil
}

func (r *Refresher) run(ctx context.Context, runID string, fn RefreshFunc, progress *Progress, done chan struct{}) {
	defer close(done)

	removeMarker := r.writeMarker(runID)

	err := fn(ctx, runID, progress)
	if err != nil {
		progress.SetError(err.Error())
		r.logger.Warn("refresh failed", slog.String("run_id", runID), slog.String("error", err.Error()))
	} else {
		progress.SetReady()
	}

	removeMarker()

	r.mu.Lock()
	r.running = false
	r.err = err
	r.last.FinishedAt = time.Now()
	if err != nil {
		r.last.Error = err.Error()
	}
	r.mu.Unlock()
}

func (r *Refresher) writeMarker(runID string) func() {
	if r.config.MarkerDir == "" {
		return func() {}
	}
	path := filepath.Join(r.config.MarkerDir, MarkerFile)
	if err := os.MkdirAll(r.config.MarkerDir, 0755); err != nil {
		r.logger.Warn("refresh marker not written", slog.String("error", err.Error()))
		return func() {}
	}
	content := runID + " " + time.Now().Format(time.RFC3339)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		r.logger.Warn("refresh marker not written", slog.String("error", err.Error()))
		return func() {}
	}
	return func() { _ = os.Remove(path) }
}

// Running returns true while a run is in flight.
func (r *Refresher) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Wait blocks until the in-flight run, if any, finishes and returns the
// error of the most recent run.
func (r *Refresher) Wait() error {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()

	if done != nil {
		<-done
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Last returns the status of the current or most recent run.
func (r *Refresher) Last() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.last
	st.Progress = r.progress.Snapshot()
	return st
}

// Progress returns a snapshot of the current or most recent run's progress.
func (r *Refresher) Progress() ProgressSnapshot {
	r.mu.Lock()
	p := r.progress
	r.mu.Unlock()
	return p.Snapshot()
}

// HasIncompleteMarker reports whether dir holds a marker left by an
// interrupted refresh.
func HasIncompleteMarker(dir string) bool {
	if dir == "" {
		return false
	}
	_, err := os.Stat(filepath.Join(dir, MarkerFile))
	return err == nil
}
