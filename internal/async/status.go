// Package async runs store refreshes in the background and tracks their
// progress.
package async

import (
	"sync"
	"time"
)

// RefreshStatus represents the overall state of a refresh run.
type RefreshStatus string

const (
	// StatusIdle indicates no refresh has run yet.
	StatusIdle RefreshStatus = "idle"
	// StatusRunning indicates a refresh is in flight.
	StatusRunning RefreshStatus = "running"
	// StatusReady indicates the last refresh completed.
	StatusReady RefreshStatus = "ready"
	// StatusError indicates the last refresh failed.
	StatusError RefreshStatus = "error"
)

// RefreshStage represents the current stage of a refresh run.
type RefreshStage string

const (
	// StageFetching indicates sources are being fetched and merged.
	StageFetching RefreshStage = "fetching"
	// StageIndexing indicates the batch is being swapped into the store.
	StageIndexing RefreshStage = "indexing"
	// StagePersisting indicates the snapshot is being written.
	StagePersisting RefreshStage = "persisting"
	// StageDone indicates the run has finished.
	StageDone RefreshStage = "done"
)

// ProgressSnapshot is an immutable snapshot of refresh progress.
type ProgressSnapshot struct {
	Status         string  `json:"status"`
	Stage          string  `json:"stage"`
	SourcesTotal   int     `json:"sources_total"`
	SourcesDone    int     `json:"sources_done"`
	SourcesFailed  int     `json:"sources_failed"`
	Records        int     `json:"records"`
	ProgressPct    float64 `json:"progress_pct"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

// Progress provides thread-safe tracking of one refresh run.
type Progress struct {
	mu sync.RWMutex

	status        RefreshStatus
	stage         RefreshStage
	sourcesTotal  int
	sourcesDone   int
	sourcesFailed int
	records       int
	startTime     time.Time
	endTime       time.Time
	errorMessage  string
}

// NewProgress creates a progress tracker for a run that starts now.
func NewProgress() *Progress {
	return &Progress{
		status:    StatusRunning,
		stage:     StageFetching,
		startTime: time.Now(),
	}
}

// SetStage updates the current stage.
func (p *Progress) SetStage(stage RefreshStage) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = stage
}

// SetSourcesTotal sets the number of sources in this run.
func (p *Progress) SetSourcesTotal(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.sourcesTotal = total
}

// SourceDone records one finished source.
func (p *Progress) SourceDone(failed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.sourcesDone++
	if failed {
		p.sourcesFailed++
	}
}

// SetRecords updates the number of records accumulated so far.
func (p *Progress) SetRecords(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.records = n
}

// SetError marks the run as failed.
func (p *Progress) SetError(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusError
	p.stage = StageDone
	p.errorMessage = message
	p.endTime = time.Now()
}

// SetReady marks the run as complete.
func (p *Progress) SetReady() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusReady
	p.stage = StageDone
	p.endTime = time.Now()
}

// IsRunning returns true while the run is in flight.
func (p *Progress) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.status == StatusRunning
}

// Snapshot returns an immutable copy of the current progress state.
// A nil Progress reports StatusIdle.
func (p *Progress) Snapshot() ProgressSnapshot {
	if p == nil {
		return ProgressSnapshot{Status: string(StatusIdle)}
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	var progressPct float64
	if p.sourcesTotal > 0 {
		progressPct = float64(p.sourcesDone) / float64(p.sourcesTotal) * 100.0
	}

	end := p.endTime
	if end.IsZero() {
		end = time.Now()
	}

	return ProgressSnapshot{
		Status:         string(p.status),
		Stage:          string(p.stage),
		SourcesTotal:   p.sourcesTotal,
		SourcesDone:    p.sourcesDone,
		SourcesFailed:  p.sourcesFailed,
		Records:        p.records,
		ProgressPct:    progressPct,
		ElapsedSeconds: int(end.Sub(p.startTime).Seconds()),
		ErrorMessage:   p.errorMessage,
	}
}
