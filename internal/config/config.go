// Package config loads the frontbase host configuration from YAML.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/frontbase/internal/engine"
	"github.com/roach88/frontbase/internal/formula"
	"github.com/roach88/frontbase/internal/trigger"
)

// Config holds the frontbase host configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Models   ModelsConfig   `yaml:"models"`
	Engine   EngineConfig   `yaml:"engine"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// DatabaseConfig holds document store settings.
type DatabaseConfig struct {
	Path string `yaml:"path"` // SQLite file (default: ./frontbase.db)
}

// ModelsConfig locates the CUE model and process definitions.
type ModelsConfig struct {
	Dir string `yaml:"dir"` // empty = use definitions already in the store
}

// EngineConfig holds engine tuning.
type EngineConfig struct {
	Workers            int    `yaml:"workers"`
	CompileConcurrency int    `yaml:"compile_concurrency"`
	MaxNestingDepth    int    `yaml:"max_nesting_depth"`
	WritePolicy        string `yaml:"write_policy"` // asymmetric (default) | change-checked
	Delimiter          string `yaml:"delimiter"`    // curly (default) | bracket
	Timezone           string `yaml:"timezone"`     // IANA name for schedules (default: Local)
	ShutdownSec        int    `yaml:"shutdown_timeout_sec"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error (default: info)
	Format string `yaml:"format"` // text (default) | json
}

// MetricsConfig holds the metrics endpoint settings.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // e.g. ":9090"; empty disables the endpoint
}

// Default returns a configuration with every default applied.
func Default() Config {
	var cfg Config
	cfg.ApplyDefaults()
	return cfg
}

// Load reads configuration from a YAML file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Database.Path == "" {
		c.Database.Path = "frontbase.db"
	}
	if c.Engine.Workers <= 0 {
		c.Engine.Workers = engine.DefaultWorkers
	}
	if c.Engine.CompileConcurrency <= 0 {
		c.Engine.CompileConcurrency = trigger.DefaultConcurrency
	}
	if c.Engine.MaxNestingDepth <= 0 {
		c.Engine.MaxNestingDepth = formula.DefaultMaxDepth
	}
	if c.Engine.WritePolicy == "" {
		c.Engine.WritePolicy = string(engine.WriteAsymmetric)
	}
	if c.Engine.Delimiter == "" {
		c.Engine.Delimiter = string(formula.DelimiterCurly)
	}
	if c.Engine.ShutdownSec <= 0 {
		c.Engine.ShutdownSec = 10
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if _, err := engine.ParseWritePolicy(c.Engine.WritePolicy); err != nil {
		return fmt.Errorf("engine.write_policy: %w", err)
	}
	if _, err := formula.ParseDelimiter(c.Engine.Delimiter); err != nil {
		return fmt.Errorf("engine.delimiter: %w", err)
	}
	if _, err := c.Logging.SlogLevel(); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "text", "json":
		// ok
	default:
		return fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format)
	}
	if c.Engine.Timezone != "" {
		if _, err := c.Engine.Location(); err != nil {
			return fmt.Errorf("engine.timezone: %w", err)
		}
	}
	return nil
}

// SlogLevel maps the configured level name to a slog.Level.
func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("logging.level must be debug, info, warn or error, got %q", l.Level)
	}
	return level, nil
}

// Location returns the schedule time zone.
func (e EngineConfig) Location() (*time.Location, error) {
	if e.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(e.Timezone)
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
