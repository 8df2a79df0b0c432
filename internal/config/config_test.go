package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "analyzer.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestConfig_ApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	if cfg.LogLevel != DefaultLogLevel {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, DefaultLogLevel)
	}
	if cfg.Workers != runtime.NumCPU() {
		t.Errorf("Workers = %d, want %d", cfg.Workers, runtime.NumCPU())
	}
	if cfg.CountMode != DefaultCountMode || cfg.Format != DefaultFormat || cfg.Provider != DefaultProvider {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.TopK != DefaultTopK {
		t.Errorf("TopK = %d, want %d", cfg.TopK, DefaultTopK)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"log level", func(c *Config) { c.LogLevel = "trace" }, "log_level"},
		{"count mode", func(c *Config) { c.CountMode = "addresses" }, "count_mode"},
		{"format", func(c *Config) { c.Format = "xml" }, "format"},
		{"provider", func(c *Config) { c.Provider = "ssh" }, "provider"},
		{"workers", func(c *Config) { c.Workers = -1 }, "workers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) || !strings.HasPrefix(err.Error(), "config: ") {
				t.Errorf("expected a config error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfig_ValidateSource(t *testing.T) {
	cfg := Default()
	if err := cfg.ValidateSource(); err == nil {
		t.Error("expected error for file provider without a path")
	}
	cfg.Rules = "acp.txt"
	if err := cfg.ValidateSource(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	cfg.Provider = "mariadb"
	if err := cfg.ValidateSource(); err == nil {
		t.Error("expected error for mariadb provider without a DSN")
	}
	// the device may be left out, the CLI then lists the stored ones
	cfg.MariaDB.DSN = "user:pw@tcp(db:3306)/fw"
	if err := cfg.ValidateSource(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	yaml := `
log_level: debug
workers: 3
count_mode: prefixes
top_k: 5
format: json
provider: mariadb
mariadb:
  dsn: "root:static@tcp(127.0.0.1:3306)/firewall_mgmt"
  device: fw-edge-1
metrics_file: /var/lib/node_exporter/acp.prom
`
	cfg, err := Load(writeTemp(t, yaml))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.Workers != 3 || cfg.CountMode != "prefixes" || cfg.TopK != 5 || cfg.Format != "json" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.MariaDB.Device != "fw-edge-1" || cfg.MetricsFile != "/var/lib/node_exporter/acp.prom" {
		t.Errorf("unexpected nested values %+v", cfg)
	}
	if err := cfg.ValidateSource(); err != nil {
		t.Errorf("ValidateSource: %v", err)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for a missing file")
	}
	if _, err := Load(writeTemp(t, "workers: [1, 2\n")); err == nil {
		t.Error("expected error for malformed YAML")
	}
	if _, err := Load(writeTemp(t, "format: xml\n")); err == nil {
		t.Error("expected validation error")
	}
}
