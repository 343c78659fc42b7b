package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "frontbase.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Full(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /var/lib/frontbase/data.db
models:
  dir: ./models
engine:
  workers: 16
  compile_concurrency: 2
  max_nesting_depth: 32
  write_policy: change-checked
  delimiter: bracket
  timezone: UTC
logging:
  level: debug
  format: json
metrics:
  addr: ":9090"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/frontbase/data.db", cfg.Database.Path)
	assert.Equal(t, "./models", cfg.Models.Dir)
	assert.Equal(t, 16, cfg.Engine.Workers)
	assert.Equal(t, 2, cfg.Engine.CompileConcurrency)
	assert.Equal(t, 32, cfg.Engine.MaxNestingDepth)
	assert.Equal(t, "change-checked", cfg.Engine.WritePolicy)
	assert.Equal(t, "bracket", cfg.Engine.Delimiter)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)

	level, err := cfg.Logging.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	loc, err := cfg.Engine.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "frontbase.db", cfg.Database.Path)
	assert.Equal(t, 4, cfg.Engine.Workers)
	assert.Equal(t, 8, cfg.Engine.CompileConcurrency)
	assert.Equal(t, 64, cfg.Engine.MaxNestingDepth)
	assert.Equal(t, "asymmetric", cfg.Engine.WritePolicy)
	assert.Equal(t, "curly", cfg.Engine.Delimiter)
	assert.Equal(t, 10, cfg.Engine.ShutdownSec)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Empty(t, cfg.Metrics.Addr)
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("FRONTBASE_DB", "/tmp/env.db")
	path := writeConfig(t, `
database:
  path: ${FRONTBASE_DB}
metrics:
  addr: ${FRONTBASE_METRICS_ADDR_UNSET:-localhost:9100}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/env.db", cfg.Database.Path)
	assert.Equal(t, "localhost:9100", cfg.Metrics.Addr)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestLoad_Malformed(t *testing.T) {
	_, err := Load(writeConfig(t, "engine: [unclosed\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"write policy", func(c *Config) { c.Engine.WritePolicy = "always" }, "engine.write_policy"},
		{"delimiter", func(c *Config) { c.Engine.Delimiter = "angle" }, "engine.delimiter"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"timezone", func(c *Config) { c.Engine.Timezone = "Mars/Olympus" }, "engine.timezone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	cfg := Default()
	assert.NoError(t, cfg.Validate())
}
