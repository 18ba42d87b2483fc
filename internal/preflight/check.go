package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/recidx/internal/config"
	"github.com/Aman-CERP/recidx/internal/source"
)

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	// StatusPass indicates the check passed successfully.
	StatusPass CheckStatus = iota
	// StatusWarn indicates a non-critical warning.
	StatusWarn
	// StatusFail indicates the check failed.
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the status by name in JSON output.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(s.String())), nil
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Checker performs preflight validation checks.
type Checker struct {
	verbose bool
	output  io.Writer
	fetcher source.Fetcher
}

// Option configures a Checker.
type Option func(*Checker)

// WithVerbose enables verbose output.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) {
		c.verbose = verbose
	}
}

// WithOutput sets the output writer.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) {
		c.output = w
	}
}

// WithProbe makes RunAll fetch every configured source with f.
// Without it sources are only counted.
func WithProbe(f source.Fetcher) Option {
	return func(c *Checker) {
		c.fetcher = f
	}
}

// New creates a new Checker with the given options.
func New(opts ...Option) *Checker {
	c := &Checker{
		output: os.Stdout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every check against cfg. Later checks still run when the
// configuration is invalid so one report shows every problem.
func (c *Checker) RunAll(ctx context.Context, cfg *config.Config) []CheckResult {
	results := []CheckResult{c.CheckConfig(cfg)}

	snapshotDir := filepath.Dir(cfg.Snapshot.Path)
	results = append(results, c.CheckDiskSpace(snapshotDir))
	results = append(results, c.CheckMemory(cfg.Store.MaxRecords))
	results = append(results, c.CheckWritePermissions("snapshot_dir", snapshotDir))
	if cfg.Telemetry.Enabled && cfg.Telemetry.Path != "" {
		results = append(results, c.CheckWritePermissions("telemetry_dir", filepath.Dir(cfg.Telemetry.Path)))
	}
	results = append(results, c.CheckFileDescriptors(cfg.Sources.Workers))
	results = append(results, c.CheckSources(ctx, cfg.Sources.URLs))

	return results
}

// HasCriticalFailures returns true if any required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus returns a summary status string for the results.
func (c *Checker) SummaryStatus(results []CheckResult) string {
	hasWarnings := false
	hasCriticalFailure := false

	for _, r := range results {
		if r.IsCritical() {
			hasCriticalFailure = true
		}
		if r.Status == StatusWarn || (r.Status == StatusFail && !r.Required) {
			hasWarnings = true
		}
	}

	if hasCriticalFailure {
		return "failed"
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults prints check results to the configured output.
func (c *Checker) PrintResults(results []CheckResult) {
	_, _ = fmt.Fprintln(c.output, "recidx system check")
	_, _ = fmt.Fprintln(c.output, "===================")
	_, _ = fmt.Fprintln(c.output)

	for _, r := range results {
		_, _ = fmt.Fprintf(c.output, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if c.verbose && r.Details != "" {
			_, _ = fmt.Fprintf(c.output, "      %s\n", r.Details)
		}
	}

	_, _ = fmt.Fprintln(c.output)
	_, _ = fmt.Fprintf(c.output, "Status: %s\n", strings.ToUpper(c.SummaryStatus(results)))

	var warnings, errs []string
	for _, r := range results {
		switch {
		case r.IsCritical():
			errs = append(errs, r.Name+": "+r.Message)
		case r.Status != StatusPass:
			warnings = append(warnings, r.Name+": "+r.Message)
		}
	}
	printIssues(c.output, "error(s)", errs)
	printIssues(c.output, "warning(s)", warnings)
}

func printIssues(w io.Writer, label string, issues []string) {
	if len(issues) == 0 {
		return
	}
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "%d %s:\n", len(issues), label)
	for _, issue := range issues {
		_, _ = fmt.Fprintf(w, "  - %s\n", issue)
	}
}

// CheckConfig validates cfg.
func (c *Checker) CheckConfig(cfg *config.Config) CheckResult {
	result := CheckResult{
		Name:     "config",
		Required: true,
	}
	if err := cfg.Validate(); err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}
	result.Status = StatusPass
	result.Message = "OK"
	return result
}

// CheckWritePermissions checks that dir exists or can be created, and
// accepts new files.
func (c *Checker) CheckWritePermissions(name, dir string) CheckResult {
	result := CheckResult{
		Name:     name,
		Required: true,
		Details:  dir,
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create directory: %v", err)
		return result
	}
	f, err := os.CreateTemp(dir, ".recidx-preflight-*")
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(f.Name())

	result.Status = StatusPass
	result.Message = "OK"
	return result
}

// CheckSources reports on the configured sources. With a probe fetcher
// every source is fetched; a partial failure is a warning and a total
// failure fails the check. The check is never required since a fresh
// snapshot can serve without any source.
func (c *Checker) CheckSources(ctx context.Context, urls []string) CheckResult {
	result := CheckResult{Name: "sources"}

	if len(urls) == 0 {
		result.Status = StatusWarn
		result.Message = "no sources configured"
		result.Details = "add URLs under sources.urls in .recidx.yaml"
		return result
	}
	if c.fetcher == nil {
		result.Status = StatusPass
		result.Message = fmt.Sprintf("%d configured", len(urls))
		return result
	}

	var failed []string
	for _, src := range source.FromURLs(urls) {
		if _, err := c.fetcher.Fetch(ctx, src); err != nil {
			failed = append(failed, src.Label)
		}
	}
	ok := len(urls) - len(failed)
	result.Message = fmt.Sprintf("%d/%d reachable", ok, len(urls))
	switch {
	case len(failed) == 0:
		result.Status = StatusPass
	case ok == 0:
		result.Status = StatusFail
		result.Details = "unreachable: " + strings.Join(failed, ", ")
	default:
		result.Status = StatusWarn
		result.Details = "unreachable: " + strings.Join(failed, ", ")
	}
	return result
}
