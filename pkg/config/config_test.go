package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, "panic", cfg.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.ScanTimeout)
	assert.Equal(t, 5*time.Second, cfg.FallbackTimeout)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, "table", cfg.OutputFormat)

	assert.NoError(t, cfg.Validate())
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		expected logrus.Level
	}{
		{
			name:     "creates logger with debug level",
			logLevel: "debug",
			expected: logrus.DebugLevel,
		},
		{
			name:     "creates logger with info level",
			logLevel: "info",
			expected: logrus.InfoLevel,
		},
		{
			name:     "creates logger with warn level",
			logLevel: "warn",
			expected: logrus.WarnLevel,
		},
		{
			name:     "creates logger with error level",
			logLevel: "error",
			expected: logrus.ErrorLevel,
		},
		{
			name:     "unknown level falls back to panic",
			logLevel: "chatty",
			expected: logrus.PanicLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.logLevel}

			logger := cfg.NewLogger()
			assert.Equal(t, tt.expected, logger.GetLevel())

			fm, ok := logger.Formatter.(*logrus.TextFormatter)
			require.True(t, ok, "expected a TextFormatter")
			assert.Equal(t, time.RFC3339, fm.TimestampFormat)
			assert.True(t, fm.FullTimestamp)
		})
	}
}

func TestConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:   "json format is valid",
			mutate: func(c *Config) { c.OutputFormat = "json" },
		},
		{
			name:    "unknown format",
			mutate:  func(c *Config) { c.OutputFormat = "xml" },
			wantErr: "invalid output format",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.LogLevel = "verbose" },
			wantErr: "invalid log level",
		},
		{
			name:    "negative timeout",
			mutate:  func(c *Config) { c.ScanTimeout = -time.Second },
			wantErr: "must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestLoad_ExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
log_level: debug
scan_timeout_ms: 2500
connect_timeout_ms: 15000
output_format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2500*time.Millisecond, cfg.ScanTimeout)
	assert.Equal(t, 15*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, "json", cfg.OutputFormat)

	// Fields absent from the file keep their defaults
	assert.Equal(t, 5*time.Second, cfg.FallbackTimeout)
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: [oops"), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestLoad_InvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output_format: csv"), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "invalid config file")
}

func TestLoad_DefaultPathMissingIsFine(t *testing.T) {
	// Point the user config dir at an empty temp dir
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_DefaultPathWhenPresent(t *testing.T) {
	configHome := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configHome)

	dir := filepath.Join(configHome, "joyc")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log_level: info"), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-test")
	assert.Equal(t, filepath.Join("/tmp/xdg-test", "joyc", "config.yaml"), DefaultPath())
}

func TestConfig_ZeroValues(t *testing.T) {
	cfg := &Config{}

	// Zero values must not panic; unknown level falls back to panic level
	logger := cfg.NewLogger()
	assert.NotNil(t, logger)
	assert.Equal(t, logrus.PanicLevel, logger.GetLevel())

	assert.Equal(t, time.Duration(0), cfg.ScanTimeout)
	assert.Equal(t, time.Duration(0), cfg.ConnectTimeout)
	assert.Equal(t, "", cfg.OutputFormat)
}

func BenchmarkConfig_NewLogger(b *testing.B) {
	cfg := DefaultConfig()
	for b.Loop() {
		_ = cfg.NewLogger()
	}
}

func BenchmarkDefaultConfig(b *testing.B) {
	for b.Loop() {
		_ = DefaultConfig()
	}
}
