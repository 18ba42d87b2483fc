// Package snapshot persists the record map to a JSON file and reads it
// back, judging validity by file age.
//
// The file is a single JSON object mapping id to a record object, written
// in store insertion order so a reload reproduces eviction order:
//
//	{
//	  "u1": {"email": "a@example.com", "ip": "192.0.2.1", "encoded": "...",
//	         "source_file": "users_1.txt", "loaded_at": "2026-01-02T03:04:05Z"}
//	}
//
// Indices are never persisted; the store rebuilds them on load.
package snapshot

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	rxerrors "github.com/Aman-CERP/recidx/internal/errors"
	"github.com/Aman-CERP/recidx/internal/record"
)

// DefaultTTL is the snapshot validity window when none is configured.
const DefaultTTL = time.Hour

// LockSuffix is appended to the snapshot path to name its lock file.
const LockSuffix = ".lock"

// Info describes the snapshot file.
type Info struct {
	Path    string        `json:"path"`
	Exists  bool          `json:"exists"`
	ModTime time.Time     `json:"modified,omitempty"`
	Age     time.Duration `json:"age"`
	Size    int64         `json:"size"`
}

// Stale reports whether the file is older than ttl. A non-positive ttl
// never expires.
func (i Info) Stale(ttl time.Duration) bool {
	return ttl > 0 && i.Age > ttl
}

// entry is the on-disk form of one record.
type entry struct {
	Email          string `json:"email"`
	IP             string `json:"ip"`
	NetworkAddress string `json:"networkAddress,omitempty"`
	Encoded        string `json:"encoded"`
	SourceFile     string `json:"source_file"`
	LoadedAt       string `json:"loaded_at"`
}

// Snapshot reads and writes one snapshot file.
type Snapshot struct {
	path   string
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	lock *FileLock
}

// Option configures a Snapshot.
type Option func(*Snapshot)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Snapshot) { s.logger = l }
}

// WithClock overrides the clock used to compute age.
func WithClock(now func() time.Time) Option {
	return func(s *Snapshot) { s.now = now }
}

// New creates a Snapshot for path. A non-positive ttl uses DefaultTTL.
func New(path string, ttl time.Duration, opts ...Option) *Snapshot {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Snapshot{
		path:   path,
		ttl:    ttl,
		logger: slog.Default(),
		now:    time.Now,
		lock:   NewFileLock(path + LockSuffix),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the snapshot file path.
func (s *Snapshot) Path() string {
	return s.path
}

// TTL returns the validity window.
func (s *Snapshot) TTL() time.Duration {
	return s.ttl
}

// Info stats the snapshot file.
func (s *Snapshot) Info() Info {
	info := Info{Path: s.path}
	st, err := os.Stat(s.path)
	if err != nil {
		return info
	}
	info.Exists = true
	info.ModTime = st.ModTime()
	info.Age = s.now().Sub(st.ModTime())
	info.Size = st.Size()
	return info
}

// Save writes recs to a temporary file beside the snapshot and renames it
// over the live path. Readers never observe a partial file.
func (s *Snapshot) Save(recs []record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.Lock(); err != nil {
		return rxerrors.New(rxerrors.ErrCodeSnapshotLock, "snapshot is locked", err).
			WithDetail("path", s.lock.Path())
	}
	defer func() { _ = s.lock.Unlock() }()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return rxerrors.New(rxerrors.ErrCodeSnapshotWrite, "failed to create snapshot directory", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return rxerrors.New(rxerrors.ErrCodeSnapshotWrite, "failed to create temp snapshot", err)
	}
	tmpPath := tmp.Name()

	start := time.Now()
	if err := writeRecords(tmp, recs); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return rxerrors.New(rxerrors.ErrCodeSnapshotWrite, "failed to write snapshot", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return rxerrors.New(rxerrors.ErrCodeSnapshotWrite, "failed to sync snapshot", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return rxerrors.New(rxerrors.ErrCodeSnapshotWrite, "failed to close snapshot", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return rxerrors.New(rxerrors.ErrCodeSnapshotWrite, "failed to replace snapshot", err)
	}

	s.logger.Debug("snapshot saved",
		slog.String("path", s.path),
		slog.Int("records", len(recs)),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// writeRecords streams recs as one JSON object in slice order. Write
// errors stick to the bufio.Writer and surface from Flush.
func writeRecords(w io.Writer, recs []record.Record) error {
	bw := bufio.NewWriterSize(w, 256*1024)

	bw.WriteString("{")
	for i, r := range recs {
		key, err := json.Marshal(r.ID)
		if err != nil {
			return err
		}
		val, err := json.Marshal(toEntry(r))
		if err != nil {
			return err
		}
		if i > 0 {
			bw.WriteString(",")
		}
		bw.WriteString("\n  ")
		bw.Write(key)
		bw.WriteString(": ")
		bw.Write(val)
	}
	if len(recs) > 0 {
		bw.WriteString("\n")
	}
	bw.WriteString("}\n")
	return bw.Flush()
}

func toEntry(r record.Record) entry {
	e := entry{
		Email:      r.Email,
		IP:         r.NetworkAddress,
		Encoded:    r.EncodedEmail,
		SourceFile: r.Source,
	}
	if !r.LoadedAt.IsZero() {
		e.LoadedAt = r.LoadedAt.Format(time.RFC3339Nano)
	}
	return e
}

// Load reads the snapshot. It fails with ERR_201 when the file is absent,
// ERR_202 when it is older than the TTL and ERR_203 when its content is
// not a flat object of id to record object. No records are returned with
// an error.
func (s *Snapshot) Load() ([]record.Record, Info, error) {
	info := s.Info()
	if !info.Exists {
		return nil, info, rxerrors.New(rxerrors.ErrCodeSnapshotMissing, "no snapshot on disk", nil).
			WithDetail("path", s.path)
	}
	if info.Stale(s.ttl) {
		return nil, info, rxerrors.New(rxerrors.ErrCodeSnapshotStale,
			fmt.Sprintf("snapshot is %s old, limit %s", info.Age.Round(time.Second), s.ttl), nil).
			WithDetail("path", s.path)
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, info, rxerrors.New(rxerrors.ErrCodeSnapshotCorrupt, "snapshot unreadable", err).
			WithDetail("path", s.path)
	}
	defer f.Close()

	recs, err := readRecords(bufio.NewReaderSize(f, 256*1024))
	if err != nil {
		return nil, info, rxerrors.New(rxerrors.ErrCodeSnapshotCorrupt, "snapshot is malformed", err).
			WithDetail("path", s.path)
	}
	return recs, info, nil
}

func readRecords(r io.Reader) ([]record.Record, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}

	var recs []record.Record
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		id, ok := tok.(string)
		if !ok || id == "" {
			return nil, fmt.Errorf("invalid id %v", tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("record %q: %w", id, err)
		}
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || raw[0] != '{' {
			return nil, fmt.Errorf("record %q is not an object", id)
		}
		var e entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("record %q: %w", id, err)
		}
		recs = append(recs, fromEntry(id, e))
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("trailing data after snapshot object")
	}
	return recs, nil
}

func fromEntry(id string, e entry) record.Record {
	addr := e.IP
	if addr == "" {
		addr = e.NetworkAddress
	}
	if addr == "" {
		addr = record.NotAvailable
	}
	email := e.Email
	if email == "" {
		email = record.NotAvailable
	}
	return record.Record{
		ID:             id,
		Email:          email,
		NetworkAddress: addr,
		EncodedEmail:   e.Encoded,
		Source:         e.SourceFile,
		LoadedAt:       parseTime(e.LoadedAt),
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func parseTime(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
