package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rxerrors "github.com/Aman-CERP/recidx/internal/errors"
)

// isolate points the user config lookup at an empty directory and clears
// RECIDX_* variables so host settings never leak into a test.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, name := range []string{
		"SOURCES", "SOURCE_TIMEOUT", "WORKERS", "SNAPSHOT_PATH", "SNAPSHOT_TTL",
		"CHECKPOINT", "MAX_RECORDS", "LOOSE_LOOKUP", "LIVE_FALLBACK",
		"TELEMETRY_ENABLED", "TELEMETRY_PATH", "LOG_LEVEL",
	} {
		t.Setenv(envPrefix+name, "")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// =============================================================================
// Defaults
// =============================================================================

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	// Given: no configuration file exists
	cfg := NewConfig()

	// Then: all defaults should be applied
	require.NotNil(t, cfg)
	assert.Equal(t, 1, cfg.Version)

	assert.Empty(t, cfg.Sources.URLs)
	assert.Equal(t, "10s", cfg.Sources.Timeout)
	assert.Equal(t, 4, cfg.Sources.Workers)

	assert.Equal(t, "users_cache.json", cfg.Snapshot.Path)
	assert.Equal(t, "1h", cfg.Snapshot.TTL)
	assert.False(t, cfg.Snapshot.Checkpoint)

	assert.Equal(t, 1_000_000, cfg.Store.MaxRecords)
	assert.True(t, cfg.Store.LooseLookup)

	assert.Equal(t, 50, cfg.Search.DefaultLimit)
	assert.Equal(t, 100, cfg.Search.MaxLimit)
	assert.Equal(t, 2, cfg.Search.MinQueryLength)

	assert.False(t, cfg.Lookup.LiveFallback)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "warn", cfg.Logging.Level)

	require.NoError(t, cfg.Validate())
}

func TestConfig_DurationHelpers(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, 10*time.Second, cfg.SourceTimeout())
	assert.Equal(t, time.Hour, cfg.SnapshotTTL())
	assert.Equal(t, 5*time.Minute, cfg.NegativeTTL())

	// Unparseable values fall back to the defaults
	cfg.Snapshot.TTL = "soon"
	assert.Equal(t, time.Hour, cfg.SnapshotTTL())
}

// =============================================================================
// Loading
// =============================================================================

func TestLoad_NoConfigFile_ReturnsDefaultsWithResolvedPaths(t *testing.T) {
	isolate(t)

	// Given: an empty directory
	dir := t.TempDir()

	// When: loading configuration
	cfg, err := Load(dir)

	// Then: defaults are used and relative paths are anchored at dir
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "users_cache.json"), cfg.Snapshot.Path)
	assert.Equal(t, filepath.Join(dir, ".recidx", "telemetry.db"), cfg.Telemetry.Path)
}

func TestLoad_YamlFile_OverridesDefaults(t *testing.T) {
	isolate(t)

	// Given: a project config with some values set
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectFileName), `
sources:
  urls:
    - https://example.com/a.txt
    - file:///var/dumps/b.txt
  timeout: 3s
store:
  max_records: 500
  loose_lookup: false
snapshot:
  path: /var/lib/recidx/snap.json
`)

	// When: loading configuration
	cfg, err := Load(dir)
	require.NoError(t, err)

	// Then: file values win and unspecified values keep their defaults
	assert.Equal(t, []string{"https://example.com/a.txt", "file:///var/dumps/b.txt"}, cfg.Sources.URLs)
	assert.Equal(t, 3*time.Second, cfg.SourceTimeout())
	assert.Equal(t, 500, cfg.Store.MaxRecords)
	assert.False(t, cfg.Store.LooseLookup, "explicit false must override a true default")
	assert.Equal(t, "/var/lib/recidx/snap.json", cfg.Snapshot.Path)
	assert.Equal(t, 4, cfg.Sources.Workers)
	assert.Equal(t, 50, cfg.Search.DefaultLimit)
}

func TestLoad_YmlExtension_IsRecognized(t *testing.T) {
	isolate(t)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectFileNameAlt), "sources:\n  workers: 9\n")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Sources.Workers)
}

func TestLoad_YamlPreferredOverYml(t *testing.T) {
	isolate(t)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectFileName), "sources:\n  workers: 2\n")
	writeFile(t, filepath.Join(dir, ProjectFileNameAlt), "sources:\n  workers: 7\n")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Sources.Workers)
}

func TestLoad_UserConfigThenProjectConfig(t *testing.T) {
	isolate(t)

	// Given: a user config and a project config touching overlapping keys
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	writeFile(t, filepath.Join(xdg, "recidx", "config.yaml"), `
search:
  default_limit: 20
lookup:
  live_fallback: true
`)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectFileName), "search:\n  default_limit: 30\n")

	// When: loading configuration
	cfg, err := Load(dir)
	require.NoError(t, err)

	// Then: the project file wins, user-only values survive
	assert.Equal(t, 30, cfg.Search.DefaultLimit)
	assert.True(t, cfg.Lookup.LiveFallback)
	assert.True(t, UserConfigExists())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	isolate(t)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectFileName), "snapshot:\n  ttl: 2h\n")

	t.Setenv("RECIDX_SNAPSHOT_TTL", "30m")
	t.Setenv("RECIDX_SOURCES", " https://a.example/x.txt , ,https://b.example/y.txt")
	t.Setenv("RECIDX_LOOSE_LOOKUP", "0")
	t.Setenv("RECIDX_WORKERS", "not-a-number")
	t.Setenv("RECIDX_LOG_LEVEL", "debug")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Minute, cfg.SnapshotTTL())
	assert.Equal(t, []string{"https://a.example/x.txt", "https://b.example/y.txt"}, cfg.Sources.URLs)
	assert.False(t, cfg.Store.LooseLookup)
	assert.Equal(t, 4, cfg.Sources.Workers, "invalid numbers are ignored")
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_InvalidYaml_ReturnsError(t *testing.T) {
	isolate(t)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectFileName), "sources: [unclosed\n")

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
	assert.True(t, rxerrors.HasCode(err, rxerrors.ErrCodeConfigInvalid))
}

func TestLoad_InvalidFieldType_ReturnsError(t *testing.T) {
	isolate(t)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectFileName), "store:\n  max_records: lots\n")

	_, err := Load(dir)
	require.Error(t, err)
}

// =============================================================================
// Validation
// =============================================================================

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad timeout", func(c *Config) { c.Sources.Timeout = "ten" }, "sources.timeout"},
		{"zero ttl", func(c *Config) { c.Snapshot.TTL = "0s" }, "snapshot.ttl"},
		{"bad scheme", func(c *Config) { c.Sources.URLs = []string{"ftp://x"} }, "sources.urls[0]"},
		{"no workers", func(c *Config) { c.Sources.Workers = 0 }, "sources.workers"},
		{"empty snapshot path", func(c *Config) { c.Snapshot.Path = "" }, "snapshot.path"},
		{"negative capacity", func(c *Config) { c.Store.MaxRecords = -1 }, "store.max_records"},
		{"min query", func(c *Config) { c.Search.MinQueryLength = 0 }, "min_query_length"},
		{"default above max", func(c *Config) { c.Search.DefaultLimit = 500 }, "default_limit"},
		{"telemetry without path", func(c *Config) { c.Telemetry.Path = "" }, "telemetry.path"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_ZeroCapacityDisablesEviction(t *testing.T) {
	cfg := NewConfig()
	cfg.Store.MaxRecords = 0
	assert.NoError(t, cfg.Validate())
}

// =============================================================================
// Writing
// =============================================================================

func TestWriteYAML_RoundTrips(t *testing.T) {
	isolate(t)

	// Given: a customised config
	dir := t.TempDir()
	cfg := NewConfig()
	cfg.Sources.URLs = []string{"https://example.com/dump.txt"}
	cfg.Store.LooseLookup = false

	// When: writing it as the project file and loading it back
	require.NoError(t, cfg.WriteYAML(filepath.Join(dir, ProjectFileName)))
	loaded, err := Load(dir)
	require.NoError(t, err)

	// Then: the values survive
	assert.Equal(t, cfg.Sources.URLs, loaded.Sources.URLs)
	assert.False(t, loaded.Store.LooseLookup)
	assert.Equal(t, filepath.Join(dir, ProjectFileName), ProjectConfigPath(dir))
}
