package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	rxerrors "github.com/Aman-CERP/recidx/internal/errors"
)

const (
	// ProjectFileName is the preferred per-directory config file.
	ProjectFileName = ".recidx.yaml"
	// ProjectFileNameAlt is accepted when ProjectFileName is absent.
	ProjectFileNameAlt = ".recidx.yml"

	envPrefix = "RECIDX_"
)

// Config represents the complete recidx configuration.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Sources   SourcesConfig   `yaml:"sources" json:"sources"`
	Snapshot  SnapshotConfig  `yaml:"snapshot" json:"snapshot"`
	Store     StoreConfig     `yaml:"store" json:"store"`
	Search    SearchConfig    `yaml:"search" json:"search"`
	Lookup    LookupConfig    `yaml:"lookup" json:"lookup"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// SourcesConfig lists the remote dumps to ingest, in priority order.
// The first source to yield an id wins during a full reload.
type SourcesConfig struct {
	URLs    []string `yaml:"urls" json:"urls"`
	Timeout string   `yaml:"timeout" json:"timeout"`
	Workers int      `yaml:"workers" json:"workers"`
}

// SnapshotConfig configures the on-disk snapshot.
type SnapshotConfig struct {
	Path string `yaml:"path" json:"path"`
	TTL  string `yaml:"ttl" json:"ttl"`
	// Checkpoint persists the partial batch after every source.
	Checkpoint bool `yaml:"checkpoint" json:"checkpoint"`
}

// StoreConfig configures the in-memory index.
type StoreConfig struct {
	MaxRecords  int  `yaml:"max_records" json:"max_records"`
	LooseLookup bool `yaml:"loose_lookup" json:"loose_lookup"`
}

// SearchConfig bounds substring search.
type SearchConfig struct {
	DefaultLimit   int `yaml:"default_limit" json:"default_limit"`
	MaxLimit       int `yaml:"max_limit" json:"max_limit"`
	MinQueryLength int `yaml:"min_query_length" json:"min_query_length"`
	CacheSize      int `yaml:"cache_size" json:"cache_size"`
}

// LookupConfig controls the live source scan on a lookup miss.
type LookupConfig struct {
	LiveFallback bool   `yaml:"live_fallback" json:"live_fallback"`
	NegativeTTL  string `yaml:"negative_ttl" json:"negative_ttl"`
}

// TelemetryConfig configures the refresh history database.
type TelemetryConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Sources: SourcesConfig{
			URLs:    []string{},
			Timeout: "10s",
			Workers: 4,
		},
		Snapshot: SnapshotConfig{
			Path:       "users_cache.json",
			TTL:        "1h",
			Checkpoint: false,
		},
		Store: StoreConfig{
			MaxRecords:  1_000_000,
			LooseLookup: true,
		},
		Search: SearchConfig{
			DefaultLimit:   50,
			MaxLimit:       100,
			MinQueryLength: 2,
			CacheSize:      256,
		},
		Lookup: LookupConfig{
			LiveFallback: false,
			NegativeTTL:  "5m",
		},
		Telemetry: TelemetryConfig{
			Enabled: true,
			Path:    filepath.Join(".recidx", "telemetry.db"),
		},
		Logging: LoggingConfig{
			Level: "warn",
		},
	}
}

// GetUserConfigPath returns the path to the user/global configuration file:
//   - $XDG_CONFIG_HOME/recidx/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/recidx/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "recidx", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "recidx", "config.yaml")
	}
	return filepath.Join(home, ".config", "recidx", "config.yaml")
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load loads configuration for the given working directory.
// Precedence, lowest first:
//  1. Hardcoded defaults
//  2. User config (~/.config/recidx/config.yaml)
//  3. Project config (.recidx.yaml in dir)
//  4. Environment variables (RECIDX_*)
//
// Relative snapshot and telemetry paths are resolved against dir.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, rxerrors.ConfigError("failed to load user config: "+err.Error(), err).
				WithSuggestion("Fix or remove " + userPath)
		}
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, rxerrors.ConfigError(err.Error(), err).
			WithSuggestion("Run 'recidx config init --force' to start from the defaults")
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, rxerrors.ConfigError("invalid configuration: "+err.Error(), err).
			WithSuggestion("Check .recidx.yaml and RECIDX_* environment variables")
	}

	cfg.resolvePaths(dir)
	return cfg, nil
}

// ProjectConfigPath returns the project config file in dir, or "" if none exists.
func ProjectConfigPath(dir string) string {
	for _, name := range []string{ProjectFileName, ProjectFileNameAlt} {
		p := filepath.Join(dir, name)
		if fileExists(p) {
			return p
		}
	}
	return ""
}

func (c *Config) loadFromFile(dir string) error {
	path := ProjectConfigPath(dir)
	if path == "" {
		return nil
	}
	return c.loadYAML(path)
}

// loadYAML layers a YAML file over the current values. Keys absent from
// the file keep their current value, including explicit booleans.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	parsed := *c
	parsed.Sources.URLs = append([]string(nil), c.Sources.URLs...)
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	*c = parsed
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(envPrefix + "SOURCES"); v != "" {
		var urls []string
		for _, u := range strings.Split(v, ",") {
			if u = strings.TrimSpace(u); u != "" {
				urls = append(urls, u)
			}
		}
		c.Sources.URLs = urls
	}
	if v := os.Getenv(envPrefix + "SOURCE_TIMEOUT"); v != "" {
		c.Sources.Timeout = v
	}
	if v := os.Getenv(envPrefix + "WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Sources.Workers = n
		}
	}
	if v := os.Getenv(envPrefix + "SNAPSHOT_PATH"); v != "" {
		c.Snapshot.Path = v
	}
	if v := os.Getenv(envPrefix + "SNAPSHOT_TTL"); v != "" {
		c.Snapshot.TTL = v
	}
	if v := os.Getenv(envPrefix + "CHECKPOINT"); v != "" {
		c.Snapshot.Checkpoint = parseBool(v)
	}
	if v := os.Getenv(envPrefix + "MAX_RECORDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Store.MaxRecords = n
		}
	}
	if v := os.Getenv(envPrefix + "LOOSE_LOOKUP"); v != "" {
		c.Store.LooseLookup = parseBool(v)
	}
	if v := os.Getenv(envPrefix + "LIVE_FALLBACK"); v != "" {
		c.Lookup.LiveFallback = parseBool(v)
	}
	if v := os.Getenv(envPrefix + "TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = parseBool(v)
	}
	if v := os.Getenv(envPrefix + "TELEMETRY_PATH"); v != "" {
		c.Telemetry.Path = v
	}
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

func (c *Config) resolvePaths(dir string) {
	if dir == "" {
		return
	}
	if c.Snapshot.Path != "" && !filepath.IsAbs(c.Snapshot.Path) {
		c.Snapshot.Path = filepath.Join(dir, c.Snapshot.Path)
	}
	if c.Telemetry.Path != "" && !filepath.IsAbs(c.Telemetry.Path) {
		c.Telemetry.Path = filepath.Join(dir, c.Telemetry.Path)
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	for _, d := range []struct {
		name, value string
	}{
		{"sources.timeout", c.Sources.Timeout},
		{"snapshot.ttl", c.Snapshot.TTL},
		{"lookup.negative_ttl", c.Lookup.NegativeTTL},
	} {
		v, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("%s must be a duration like 10s or 1h, got %q", d.name, d.value)
		}
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.value)
		}
	}

	for i, u := range c.Sources.URLs {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") && !strings.HasPrefix(u, "file://") {
			return fmt.Errorf("sources.urls[%d] must be an http, https or file URL, got %q", i, u)
		}
	}

	if c.Sources.Workers < 1 {
		return fmt.Errorf("sources.workers must be at least 1, got %d", c.Sources.Workers)
	}
	if c.Snapshot.Path == "" {
		return fmt.Errorf("snapshot.path must not be empty")
	}
	if c.Store.MaxRecords < 0 {
		return fmt.Errorf("store.max_records must be non-negative, got %d", c.Store.MaxRecords)
	}

	if c.Search.MinQueryLength < 1 {
		return fmt.Errorf("search.min_query_length must be at least 1, got %d", c.Search.MinQueryLength)
	}
	if c.Search.DefaultLimit < 1 || c.Search.MaxLimit < 1 {
		return fmt.Errorf("search limits must be positive, got default=%d max=%d", c.Search.DefaultLimit, c.Search.MaxLimit)
	}
	if c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("search.default_limit (%d) must not exceed search.max_limit (%d)", c.Search.DefaultLimit, c.Search.MaxLimit)
	}
	if c.Search.CacheSize < 0 {
		return fmt.Errorf("search.cache_size must be non-negative, got %d", c.Search.CacheSize)
	}

	if c.Telemetry.Enabled && c.Telemetry.Path == "" {
		return fmt.Errorf("telemetry.path must be set when telemetry is enabled")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// SourceTimeout returns the per-source fetch timeout.
func (c *Config) SourceTimeout() time.Duration {
	return durationOr(c.Sources.Timeout, 10*time.Second)
}

// SnapshotTTL returns the snapshot validity window.
func (c *Config) SnapshotTTL() time.Duration {
	return durationOr(c.Snapshot.TTL, time.Hour)
}

// NegativeTTL returns how long a live lookup miss is remembered.
func (c *Config) NegativeTTL() time.Duration {
	return durationOr(c.Lookup.NegativeTTL, 5*time.Minute)
}

func durationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
