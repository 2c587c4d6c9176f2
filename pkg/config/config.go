// Package config holds the CLI configuration: built-in defaults, optionally
// overlaid by a YAML file, overridden by command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel        string        `json:"log_level"`
	ScanTimeout     time.Duration `json:"scan_timeout"`
	FallbackTimeout time.Duration `json:"fallback_timeout"`
	ConnectTimeout  time.Duration `json:"connect_timeout"`
	OutputFormat    string        `json:"output_format"`
}

// fileConfig is the YAML schema. Durations travel as integer milliseconds;
// absent fields stay zero and keep their defaults.
type fileConfig struct {
	LogLevel          string `yaml:"log_level"`
	ScanTimeoutMs     int    `yaml:"scan_timeout_ms"`
	FallbackTimeoutMs int    `yaml:"fallback_timeout_ms"`
	ConnectTimeoutMs  int    `yaml:"connect_timeout_ms"`
	OutputFormat      string `yaml:"output_format"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	return &Config{
		LogLevel:        "panic",
		ScanTimeout:     10 * time.Second,
		FallbackTimeout: 5 * time.Second,
		ConnectTimeout:  30 * time.Second,
		OutputFormat:    "table", // table, json
	}
}

// DefaultPath returns the per-user config file location
// (e.g. ~/.config/joyc/config.yaml), or "" when no user config
// directory is known.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "joyc", "config.yaml")
}

// Load returns the defaults overlaid with the YAML file at path. An empty
// path means DefaultPath(), and a missing file there is not an error; an
// explicitly named file must exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	if fc.ScanTimeoutMs > 0 {
		cfg.ScanTimeout = time.Duration(fc.ScanTimeoutMs) * time.Millisecond
	}
	if fc.FallbackTimeoutMs > 0 {
		cfg.FallbackTimeout = time.Duration(fc.FallbackTimeoutMs) * time.Millisecond
	}
	if fc.ConnectTimeoutMs > 0 {
		cfg.ConnectTimeout = time.Duration(fc.ConnectTimeoutMs) * time.Millisecond
	}
	if fc.OutputFormat != "" {
		cfg.OutputFormat = fc.OutputFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks field values
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	switch c.OutputFormat {
	case "table", "json":
	default:
		return fmt.Errorf("invalid output format %q (expected table or json)", c.OutputFormat)
	}
	if c.ScanTimeout < 0 || c.FallbackTimeout < 0 || c.ConnectTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.PanicLevel
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: time.RFC3339,
		FullTimestamp:   true,
	})
	return logger
}
