// Package config loads the analyzer's YAML configuration file.
package config

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultLogLevel is the default log level.
	DefaultLogLevel = "info"

	// DefaultProvider reads the transcript from a file.
	DefaultProvider = "file"

	// DefaultCountMode counts one ACE factor per merged entry.
	DefaultCountMode = "entries"

	// DefaultFormat is the report format.
	DefaultFormat = "text"

	// DefaultTopK is the number of rules listed by the topk commands.
	DefaultTopK = 10
)

// MariaDBConfig selects the stored snapshot to analyze.
type MariaDBConfig struct {
	// DSN is a go-sql-driver/mysql data source name.
	DSN string `yaml:"dsn"`

	// Device is the device_name whose newest snapshot is loaded. When empty
	// the stored device names are reported instead.
	Device string `yaml:"device"`
}

// Config is the top-level configuration. Command-line flags override any
// value they are explicitly given.
type Config struct {
	// LogLevel is one of "debug", "info", "warn", "error".
	// Default: "info"
	LogLevel string `yaml:"log_level"`

	// LogFile receives JSON logs. Empty logs to stderr.
	LogFile string `yaml:"log_file"`

	// Workers bounds the optimizer pool.
	// Default: number of CPUs
	Workers int `yaml:"workers"`

	// CountMode is "entries" or "prefixes".
	// Default: "entries"
	CountMode string `yaml:"count_mode"`

	// TopK is the default k of the topk commands.
	// Default: 10
	TopK int `yaml:"top_k"`

	// Format is "text", "csv" or "json".
	// Default: "text"
	Format string `yaml:"format"`

	// Provider is where the transcript comes from: "file" or "mariadb".
	// Default: "file"
	Provider string `yaml:"provider"`

	// Rules is the transcript path for the file provider.
	Rules string `yaml:"rules"`

	MariaDB MariaDBConfig `yaml:"mariadb"`

	// MetricsFile, when set, receives Prometheus text-format metrics.
	MetricsFile string `yaml:"metrics_file"`
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.CountMode == "" {
		c.CountMode = DefaultCountMode
	}
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.Format == "" {
		c.Format = DefaultFormat
	}
	if c.Provider == "" {
		c.Provider = DefaultProvider
	}
}

// Validate checks that values are acceptable.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid log_level %q (must be debug, info, warn or error)", c.LogLevel)
	}
	if c.CountMode != "entries" && c.CountMode != "prefixes" {
		return fmt.Errorf("config: invalid count_mode %q (must be \"entries\" or \"prefixes\")", c.CountMode)
	}
	switch c.Format {
	case "text", "csv", "json":
	default:
		return fmt.Errorf("config: invalid format %q (must be text, csv or json)", c.Format)
	}
	if c.Provider != "file" && c.Provider != "mariadb" {
		return fmt.Errorf("config: invalid provider %q (must be \"file\" or \"mariadb\")", c.Provider)
	}
	if c.Workers < 0 {
		return fmt.Errorf("config: workers must not be negative, got %d", c.Workers)
	}
	return nil
}

// ValidateSource checks that the selected provider has what it needs. It is
// separate from Validate because flags usually supply the source.
func (c *Config) ValidateSource() error {
	switch c.Provider {
	case "file":
		if c.Rules == "" {
			return fmt.Errorf("config: provider file needs a transcript path (rules or --file)")
		}
	case "mariadb":
		if c.MariaDB.DSN == "" {
			return fmt.Errorf("config: provider mariadb needs mariadb.dsn")
		}
	}
	return nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// Parse decodes YAML, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}
