// Package source fetches raw dump content from configured endpoints.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	rxerrors "github.com/Aman-CERP/recidx/internal/errors"
)

// DefaultTimeout bounds a single source fetch.
const DefaultTimeout = 10 * time.Second

// Source is one configured dump endpoint.
type Source struct {
	URL   string
	Label string
}

// New returns a Source for rawURL labelled with the last path segment.
func New(rawURL string) Source {
	return Source{URL: rawURL, Label: labelFor(rawURL)}
}

// FromURLs builds sources in the given order.
func FromURLs(urls []string) []Source {
	out := make([]Source, 0, len(urls))
	for _, u := range urls {
		out = append(out, New(u))
	}
	return out
}

func labelFor(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return rawURL
	}
	base := path.Base(u.Path)
	if base == "/" || base == "." {
		return u.Host
	}
	return base
}

// Fetcher retrieves the raw content of a source. Implementations return a
// coded error when the source is unavailable; callers skip such sources.
type Fetcher interface {
	Fetch(ctx context.Context, src Source) ([]byte, error)
}

// HTTPFetcher fetches http(s) sources with a per-request timeout and reads
// file:// sources from disk.
type HTTPFetcher struct {
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithClient replaces the HTTP client.
func WithClient(c *http.Client) Option {
	return func(f *HTTPFetcher) { f.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *HTTPFetcher) { f.logger = l }
}

// NewHTTPFetcher creates a fetcher. A non-positive timeout uses DefaultTimeout.
func NewHTTPFetcher(timeout time.Duration, opts ...Option) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	f := &HTTPFetcher{
		client:  &http.Client{},
		timeout: timeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, src Source) ([]byte, error) {
	if strings.HasPrefix(src.URL, "file://") {
		return f.fetchFile(src)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, rxerrors.New(rxerrors.ErrCodeSourceUnavailable, "invalid source URL", err).
			WithDetail("source", src.Label)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classify(src, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, rxerrors.New(rxerrors.ErrCodeSourceStatus,
			fmt.Sprintf("source returned status %d", resp.StatusCode), nil).
			WithDetail("source", src.Label).
			WithDetail("status", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(src, err)
	}

	f.logger.Debug("source fetched",
		slog.String("source", src.Label),
		slog.Int("bytes", len(body)),
		slog.Duration("duration", time.Since(start)))
	return body, nil
}

func (f *HTTPFetcher) fetchFile(src Source) ([]byte, error) {
	u, err := url.Parse(src.URL)
	if err != nil {
		return nil, rxerrors.New(rxerrors.ErrCodeSourceUnavailable, "invalid source URL", err).
			WithDetail("source", src.Label)
	}
	data, err := os.ReadFile(u.Path)
	if err != nil {
		return nil, rxerrors.New(rxerrors.ErrCodeSourceUnavailable, "source file unreadable", err).
			WithDetail("source", src.Label)
	}
	return data, nil
}

func classify(src Source, err error) error {
	code := rxerrors.ErrCodeSourceUnavailable
	msg := "source unreachable"

	var netErr interface{ Timeout() bool }
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		code = rxerrors.ErrCodeSourceTimeout
		msg = "source fetch timed out"
	}
	return rxerrors.New(code, msg, err).WithDetail("source", src.Label)
}
