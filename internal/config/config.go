// Package config handles configuration loading from YAML files and environment variables.
// Configuration precedence: CLI flags > environment variables > config file > embedded > defaults.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/aegis-monitor/aegis/internal/bridge"
	"github.com/aegis-monitor/aegis/internal/display"
)

// Environment variables read by applyEnvOverrides.
const (
	EnvLogLevel     = "AEGIS_LOG_LEVEL"
	EnvListen       = "AEGIS_LISTEN"
	EnvCollectorURL = "AEGIS_COLLECTOR_URL"
	EnvInterval     = "AEGIS_INTERVAL"
)

// Duration is a wrapper around time.Duration that supports YAML unmarshaling
// from human-readable strings like "1s", "500ms", "1m".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		parsed, err := time.ParseDuration(value.Value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value.Value, err)
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("unsupported duration format: %v", value.Kind)
	}
}

// MarshalYAML implements the yaml.Marshaler interface for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds all configuration.
type Config struct {
	Collection CollectionConfig `yaml:"collection"`
	Bridge     BridgeConfig     `yaml:"bridge"`
	Server     ServerConfig     `yaml:"server"`
	Display    DisplayConfig    `yaml:"display"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// CollectionConfig holds metric collection settings.
type CollectionConfig struct {
	Interval     Duration `yaml:"interval"`
	Timeout      Duration `yaml:"timeout"`
	TopProcesses int      `yaml:"top_processes"`
	Temperature  bool     `yaml:"temperature"`
	GPU          bool     `yaml:"gpu"`
}

// BridgeConfig holds update channel settings.
type BridgeConfig struct {
	StartPolicy string `yaml:"start_policy"`
}

// ServerConfig holds the collector HTTP API settings.
type ServerConfig struct {
	Listen  string `yaml:"listen"`
	GinMode string `yaml:"gin_mode"`
}

// DisplayConfig holds settings for terminal and remote display surfaces.
type DisplayConfig struct {
	CollectorURL string   `yaml:"collector_url"`
	Interval     Duration `yaml:"interval"`
	Mode         string   `yaml:"mode"`
	HistorySize  int      `yaml:"history_size"`
	ProbeRetries int      `yaml:"probe_retries"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Collection: CollectionConfig{
			Interval:     Duration{1 * time.Second},
			Timeout:      Duration{5 * time.Second},
			TopProcesses: 5,
			Temperature:  true,
			GPU:          true,
		},
		Bridge: BridgeConfig{
			StartPolicy: string(bridge.StartOnSubscribe),
		},
		Server: ServerConfig{
			Listen:  "127.0.0.1:8787",
			GinMode: "release",
		},
		Display: DisplayConfig{
			CollectorURL: "http://127.0.0.1:8787",
			Interval:     Duration{1 * time.Second},
			Mode:         string(display.ModePoll),
			HistorySize:  60,
			ProbeRetries: 2,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadFromBytes parses YAML configuration from a byte slice and merges with defaults.
// Environment variables take highest precedence and override values from the byte slice.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config data: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads configuration from a YAML file and merges with defaults and
// environment variables. Unlike LoadLayered, a missing file is an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromBytes(data)
}

// CLIOverrides holds values from command-line flags.
// Zero values are treated as "not set" and skipped.
type CLIOverrides struct {
	Listen       string
	CollectorURL string
	Interval     time.Duration
	Mode         string
	LogLevel     string
}

// DefaultPath returns the per-user config file location, the first place
// Locate looks.
func DefaultPath() string {
	return configSearchPaths()[0]
}

// Locate searches standard config file paths and returns the first one found.
// Returns empty string if no config file exists.
func Locate() string {
	candidates := configSearchPaths()
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// LoadLayered loads configuration with the full precedence chain:
// CLI flags > env vars > external YAML file > embedded bytes > defaults.
//
// An optional configPath argument controls external-file discovery:
//   - omitted        → auto-discover via Locate()
//   - explicit value  → use that path ("" means no external file)
func LoadLayered(cli CLIOverrides, embedded []byte, configPath ...string) (*Config, error) {
	cfg := DefaultConfig()

	// Layer 1: embedded config (lowest priority data layer)
	if len(embedded) > 0 {
		if err := yaml.Unmarshal(embedded, cfg); err != nil {
			return nil, fmt.Errorf("parsing embedded config: %w", err)
		}
	}

	// Layer 2: external YAML file
	var filePath string
	if len(configPath) > 0 {
		filePath = configPath[0]
	} else {
		filePath = Locate()
	}
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", filePath, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file %s: %w", filePath, err)
		}
	}

	// Layer 3: environment variables
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	// Layer 4: CLI flags (highest priority)
	if cli.Listen != "" {
		cfg.Server.Listen = cli.Listen
	}
	if cli.CollectorURL != "" {
		cfg.Display.CollectorURL = cli.CollectorURL
	}
	if cli.Interval > 0 {
		cfg.Collection.Interval = Duration{cli.Interval}
		cfg.Display.Interval = Duration{cli.Interval}
	}
	if cli.Mode != "" {
		cfg.Display.Mode = cli.Mode
	}
	if cli.LogLevel != "" {
		cfg.Logging.Level = cli.LogLevel
	}

	return cfg, nil
}

// WriteConfig serializes the config to a YAML file at the given path.
// Creates parent directories if needed.
func WriteConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0640)
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// AEGIS_INTERVAL sets both the collection and the display cadence.
func applyEnvOverrides(cfg *Config) error {
	if level := os.Getenv(EnvLogLevel); level != "" {
		cfg.Logging.Level = level
	}
	if listen := os.Getenv(EnvListen); listen != "" {
		cfg.Server.Listen = listen
	}
	if u := os.Getenv(EnvCollectorURL); u != "" {
		cfg.Display.CollectorURL = u
	}
	if v := os.Getenv(EnvInterval); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: invalid duration %q: %w", EnvInterval, v, err)
		}
		cfg.Collection.Interval = Duration{d}
		cfg.Display.Interval = Duration{d}
	}
	return nil
}

// Validate checks ranges and enum values. All problems are reported at once.
func (c *Config) Validate() error {
	var errs error

	if c.Collection.Interval.Duration <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("collection.interval must be positive"))
	}
	if c.Collection.Timeout.Duration <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("collection.timeout must be positive"))
	}
	if c.Collection.TopProcesses < 0 || c.Collection.TopProcesses > 100 {
		errs = multierr.Append(errs, fmt.Errorf("collection.top_processes must be between 0 and 100 (got %d)", c.Collection.TopProcesses))
	}
	if _, err := bridge.ParseStartPolicy(c.Bridge.StartPolicy); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("bridge.start_policy: %w", err))
	}
	if c.Server.Listen == "" {
		errs = multierr.Append(errs, fmt.Errorf("server.listen is required"))
	}
	switch c.Server.GinMode {
	case "", "release", "debug", "test":
	default:
		errs = multierr.Append(errs, fmt.Errorf("server.gin_mode must be release, debug or test (got %q)", c.Server.GinMode))
	}
	if c.Display.CollectorURL != "" {
		if u, err := url.Parse(c.Display.CollectorURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = multierr.Append(errs, fmt.Errorf("display.collector_url is not an absolute URL: %q", c.Display.CollectorURL))
		}
	}
	if c.Display.Interval.Duration <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("display.interval must be positive"))
	}
	if _, err := display.ParseMode(c.Display.Mode); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("display.mode: %w", err))
	}
	if c.Display.HistorySize <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("display.history_size must be positive"))
	}
	if c.Display.ProbeRetries < 0 {
		errs = multierr.Append(errs, fmt.Errorf("display.probe_retries must not be negative"))
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("logging.level: %w", err))
	}

	return errs
}
