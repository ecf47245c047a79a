// Package config loads treewatch configuration from defaults, the user
// config, the project config and TREEWATCH_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	twerrors "github.com/Aman-CERP/treewatch/internal/errors"
	"github.com/Aman-CERP/treewatch/internal/logging"
	"github.com/Aman-CERP/treewatch/internal/watcher"
)

// Project config file names, in order of preference.
const (
	ProjectConfigFile    = ".treewatch.yaml"
	ProjectConfigFileAlt = ".treewatch.yml"
)

// Config represents the complete treewatch configuration.
type Config struct {
	Version int           `yaml:"version" json:"version"`
	Watch   WatchConfig   `yaml:"watch" json:"watch"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// WatchConfig configures roots, ignore rules and timing.
// Durations are strings in time.ParseDuration syntax ("300ms", "10s").
type WatchConfig struct {
	Roots           []string `yaml:"roots" json:"roots"`
	Ignore          []string `yaml:"ignore" json:"ignore"`
	IgnoreFile      string   `yaml:"ignore_file,omitempty" json:"ignore_file,omitempty"`
	Debounce        string   `yaml:"debounce" json:"debounce"`
	Lookback        string   `yaml:"lookback" json:"lookback"`
	PollInterval    string   `yaml:"poll_interval" json:"poll_interval"`
	RescanInterval  string   `yaml:"rescan_interval" json:"rescan_interval"`
	ForcePolling    bool     `yaml:"force_polling" json:"force_polling"`
	ReplayRecent    bool     `yaml:"replay_recent" json:"replay_recent"`
	CaseInsensitive bool     `yaml:"case_insensitive" json:"case_insensitive"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// MetricsConfig configures the Prometheus endpoint. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty" json:"addr,omitempty"`
}

// defaultIgnorePatterns are always ignored; configured patterns are appended.
var defaultIgnorePatterns = []string{
	"**/.git/**",
	"**/*.swp",
	"**/*~",
	"**/.DS_Store",
}

// DefaultIgnorePatterns returns a copy of the built-in ignore patterns.
func DefaultIgnorePatterns() []string {
	return append([]string(nil), defaultIgnorePatterns...)
}

// NewConfig creates a new Config with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Watch: WatchConfig{
			Roots:          []string{"."},
			Ignore:         DefaultIgnorePatterns(),
			Debounce:       "300ms",
			Lookback:       "10s",
			PollInterval:   "1s",
			RescanInterval: "2s",
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// GetUserConfigPath returns the path to the user configuration file:
//   - $XDG_CONFIG_HOME/treewatch/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/treewatch/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "treewatch", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "treewatch", "config.yaml")
	}
	return filepath.Join(home, ".config", "treewatch", "config.yaml")
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load loads configuration for the project in dir. Increasing precedence:
//  1. Defaults
//  2. User config (~/.config/treewatch/config.yaml)
//  3. Project config (.treewatch.yaml in dir)
//  4. Environment variables (TREEWATCH_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	if path := ProjectConfigPath(dir); path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ProjectConfigPath returns the project config file in dir, or "" if there
// is none. .yaml wins over .yml.
func ProjectConfigPath(dir string) string {
	for _, name := range []string{ProjectConfigFile, ProjectConfigFileAlt} {
		if path := filepath.Join(dir, name); fileExists(path) {
			return path
		}
	}
	return ""
}

// loadYAML merges a YAML file over c. Relative roots and ignore files are
// resolved against the file's directory.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return twerrors.ConfigError("failed to read config file "+path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return twerrors.ConfigError("failed to parse config file "+path, err).
			WithDetail("path", path)
	}

	base := filepath.Dir(path)
	for i, root := range parsed.Watch.Roots {
		if !filepath.IsAbs(root) {
			parsed.Watch.Roots[i] = filepath.Join(base, root)
		}
	}
	if f := parsed.Watch.IgnoreFile; f != "" && !filepath.IsAbs(f) {
		parsed.Watch.IgnoreFile = filepath.Join(base, f)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Watch
	if len(other.Watch.Roots) > 0 {
		c.Watch.Roots = other.Watch.Roots
	}
	if len(other.Watch.Ignore) > 0 {
		// Appended so the defaults always apply
		c.Watch.Ignore = appendUnique(c.Watch.Ignore, other.Watch.Ignore...)
	}
	if other.Watch.IgnoreFile != "" {
		c.Watch.IgnoreFile = other.Watch.IgnoreFile
	}
	if other.Watch.Debounce != "" {
		c.Watch.Debounce = other.Watch.Debounce
	}
	if other.Watch.Lookback != "" {
		c.Watch.Lookback = other.Watch.Lookback
	}
	if other.Watch.PollInterval != "" {
		c.Watch.PollInterval = other.Watch.PollInterval
	}
	if other.Watch.RescanInterval != "" {
		c.Watch.RescanInterval = other.Watch.RescanInterval
	}
	// Booleans can only be switched on by a later layer
	if other.Watch.ForcePolling {
		c.Watch.ForcePolling = true
	}
	if other.Watch.ReplayRecent {
		c.Watch.ReplayRecent = true
	}
	if other.Watch.CaseInsensitive {
		c.Watch.CaseInsensitive = true
	}

	// Logging
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxFiles != 0 {
		c.Logging.MaxFiles = other.Logging.MaxFiles
	}

	// Metrics
	if other.Metrics.Addr != "" {
		c.Metrics.Addr = other.Metrics.Addr
	}
}

// applyEnvOverrides applies TREEWATCH_* environment variable overrides.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("TREEWATCH_ROOTS"); v != "" {
		c.Watch.Roots = splitList(v)
	}
	if v := os.Getenv("TREEWATCH_IGNORE"); v != "" {
		c.Watch.Ignore = appendUnique(c.Watch.Ignore, splitList(v)...)
	}
	if v := os.Getenv("TREEWATCH_IGNORE_FILE"); v != "" {
		c.Watch.IgnoreFile = v
	}
	if v := os.Getenv("TREEWATCH_DEBOUNCE"); v != "" {
		c.Watch.Debounce = v
	}
	if v := os.Getenv("TREEWATCH_LOOKBACK"); v != "" {
		c.Watch.Lookback = v
	}
	if v := os.Getenv("TREEWATCH_POLL_INTERVAL"); v != "" {
		c.Watch.PollInterval = v
	}

	bools := []struct {
		env string
		dst *bool
	}{
		{"TREEWATCH_FORCE_POLLING", &c.Watch.ForcePolling},
		{"TREEWATCH_REPLAY_RECENT", &c.Watch.ReplayRecent},
		{"TREEWATCH_CASE_INSENSITIVE", &c.Watch.CaseInsensitive},
	}
	for _, b := range bools {
		v := os.Getenv(b.env)
		if v == "" {
			continue
		}
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return twerrors.ConfigError(fmt.Sprintf("%s must be a boolean, got %q", b.env, v), err)
		}
		*b.dst = parsed
	}

	if v := os.Getenv("TREEWATCH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("TREEWATCH_METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
	return nil
}

// Validate checks durations, the log level and the logging limits.
func (c *Config) Validate() error {
	durations := []struct {
		field string
		value string
	}{
		{"watch.debounce", c.Watch.Debounce},
		{"watch.lookback", c.Watch.Lookback},
		{"watch.poll_interval", c.Watch.PollInterval},
		{"watch.rescan_interval", c.Watch.RescanInterval},
	}
	for _, d := range durations {
		if _, err := parseDuration(d.field, d.value); err != nil {
			return err
		}
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return twerrors.ConfigError("logging.level: "+err.Error(), err)
	}
	if c.Logging.MaxSizeMB < 0 {
		return twerrors.ConfigError(fmt.Sprintf("logging.max_size_mb must be non-negative, got %d", c.Logging.MaxSizeMB), nil)
	}
	if c.Logging.MaxFiles < 0 {
		return twerrors.ConfigError(fmt.Sprintf("logging.max_files must be non-negative, got %d", c.Logging.MaxFiles), nil)
	}
	return nil
}

// WatchOptions converts the watch section into watcher options.
func (c *Config) WatchOptions() (watcher.Options, error) {
	opts := watcher.DefaultOptions()

	var err error
	if opts.DebounceWindow, err = parseDuration("watch.debounce", c.Watch.Debounce); err != nil {
		return opts, err
	}
	if opts.Lookback, err = parseDuration("watch.lookback", c.Watch.Lookback); err != nil {
		return opts, err
	}
	if opts.PollInterval, err = parseDuration("watch.poll_interval", c.Watch.PollInterval); err != nil {
		return opts, err
	}
	opts.ForcePolling = c.Watch.ForcePolling
	opts.ReplayRecent = c.Watch.ReplayRecent
	return opts, nil
}

// RescanInterval returns watch.rescan_interval as a duration.
func (c *Config) RescanInterval() (time.Duration, error) {
	return parseDuration("watch.rescan_interval", c.Watch.RescanInterval)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// FindProjectRoot walks up from startDir looking for a .git directory or a
// treewatch config file. It returns startDir (absolute) if neither is found.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	current := absDir
	for {
		if dirExists(filepath.Join(current, ".git")) || ProjectConfigPath(current) != "" {
			return current, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			return absDir, nil
		}
		current = parent
	}
}

// parseDuration parses a non-negative duration; empty means zero.
func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, twerrors.ConfigError(fmt.Sprintf("%s: invalid duration %q", field, value), err).
			WithSuggestion("Use Go duration syntax such as 300ms, 2s or 1m")
	}
	if d < 0 {
		return 0, twerrors.ConfigError(fmt.Sprintf("%s must not be negative, got %s", field, value), nil)
	}
	return d, nil
}

// splitList splits a comma-separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func appendUnique(dst []string, items ...string) []string {
	seen := make(map[string]struct{}, len(dst))
	for _, s := range dst {
		seen[s] = struct{}{}
	}
	for _, s := range items {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		dst = append(dst, s)
	}
	return dst
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// dirExists checks if a directory exists.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
