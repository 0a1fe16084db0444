package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Pool.Size != 10 {
		t.Fatalf("expected pool size 10, got %d", cfg.Pool.Size)
	}
	if cfg.Task.Timeout != 20*time.Second || cfg.Fetch.Timeout != 15*time.Second {
		t.Fatalf("unexpected timeouts: task=%v fetch=%v", cfg.Task.Timeout, cfg.Fetch.Timeout)
	}
	if cfg.Task.DelayMin != time.Second || cfg.Task.DelayMax != 3*time.Second {
		t.Fatalf("unexpected delay window: %v-%v", cfg.Task.DelayMin, cfg.Task.DelayMax)
	}
	if cfg.Run.DrainTimeout != 2*time.Minute {
		t.Fatalf("expected drain timeout 2m, got %v", cfg.Run.DrainTimeout)
	}
	if !cfg.Fetch.FollowRedirects || !cfg.Fetch.IgnoreHTTPErrors || cfg.Fetch.MaxBodySize != 0 {
		t.Fatalf("unexpected fetch defaults: %+v", cfg.Fetch)
	}
	if cfg.Search.Provider != SearchStatic {
		t.Fatalf("expected static search provider, got %q", cfg.Search.Provider)
	}
	if cfg.Report.Limit != 20 || cfg.Report.ChartLimit != 15 {
		t.Fatalf("unexpected report limits: %+v", cfg.Report)
	}
	if len(cfg.Vocabulary) != 11 {
		t.Fatalf("expected 11 vocabulary entries, got %d", len(cfg.Vocabulary))
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
logging:
  development: false
pool:
  size: 4
run:
  drain_timeout: 30s
task:
  timeout: 5s
  delay_min: 0s
  delay_max: 0s
fetch:
  user_agent: tally-test
  respect_robots: true
  rate_limit_rps: 2.5
  rate_limit_burst: 3
headless:
  enabled: true
  max_parallel: 1
search:
  provider: serper
  serper_api_key: secret
report:
  format: markdown
  limit: 5
  output_dir: /tmp/reports
server:
  port: 9090
vocabulary:
  - encryption
  - audit log
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Logging.Development {
		t.Fatal("expected production logging")
	}
	if cfg.Pool.Size != 4 || cfg.Run.DrainTimeout != 30*time.Second || cfg.Task.Timeout != 5*time.Second {
		t.Fatalf("expected pool/run/task overrides to apply: %+v %+v %+v", cfg.Pool, cfg.Run, cfg.Task)
	}
	if cfg.Fetch.UserAgent != "tally-test" || !cfg.Fetch.RespectRobots || cfg.Fetch.RateLimitRPS != 2.5 {
		t.Fatalf("expected fetch overrides to apply: %+v", cfg.Fetch)
	}
	if cfg.Fetch.AcceptEncoding != "gzip" {
		t.Fatalf("expected untouched default to survive, got %q", cfg.Fetch.AcceptEncoding)
	}
	if cfg.Search.Provider != SearchSerper || cfg.Search.SerperAPIKey != "secret" {
		t.Fatalf("expected serper search: %+v", cfg.Search)
	}
	if cfg.Report.Format != "markdown" || cfg.Report.Limit != 5 || cfg.Report.OutputDir != "/tmp/reports" {
		t.Fatalf("expected report overrides: %+v", cfg.Report)
	}
	if strings.Join(cfg.Vocabulary, ",") != "encryption,audit log" {
		t.Fatalf("unexpected vocabulary: %v", cfg.Vocabulary)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TALLY_POOL_SIZE", "3")
	t.Setenv("TALLY_TASK_TIMEOUT", "750ms")
	t.Setenv("SERPER_API_KEY", "from-env")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Pool.Size != 3 {
		t.Fatalf("expected pool size 3, got %d", cfg.Pool.Size)
	}
	if cfg.Task.Timeout != 750*time.Millisecond {
		t.Fatalf("expected task timeout 750ms, got %v", cfg.Task.Timeout)
	}
	if cfg.Search.SerperAPIKey != "from-env" {
		t.Fatalf("expected serper key from env, got %q", cfg.Search.SerperAPIKey)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func validConfig() Config {
	return Config{
		Pool:       PoolConfig{Size: 10},
		Fetch:      FetchConfig{Timeout: time.Second},
		Search:     SearchConfig{Provider: SearchStatic},
		Report:     ReportConfig{Format: "terminal"},
		Server:     ServerConfig{Port: 8080},
		Telemetry:  TelemetryConfig{SampleRatio: 1},
		Vocabulary: []string{"encryption"},
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid base config, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"invalid pool", func(c *Config) { c.Pool.Size = 0 }, "pool.size"},
		{"negative drain", func(c *Config) { c.Run.DrainTimeout = -time.Second }, "run.drain_timeout"},
		{"invalid fetch timeout", func(c *Config) { c.Fetch.Timeout = 0 }, "fetch.timeout"},
		{"negative body size", func(c *Config) { c.Fetch.MaxBodySize = -1 }, "fetch.max_body_size"},
		{"headless missing max parallel", func(c *Config) { c.Headless.Enabled = true }, "headless.max_parallel"},
		{"serper missing key", func(c *Config) { c.Search.Provider = SearchSerper }, "search.serper_api_key"},
		{"unknown provider", func(c *Config) { c.Search.Provider = "bing" }, "search.provider"},
		{"unknown format", func(c *Config) { c.Report.Format = "pdf" }, "report.format"},
		{"sample ratio", func(c *Config) { c.Telemetry.SampleRatio = 2 }, "telemetry.sample_ratio"},
		{"empty vocabulary", func(c *Config) { c.Vocabulary = []string{} }, "vocabulary"},
		{"blank vocabulary entry", func(c *Config) { c.Vocabulary = []string{"ok", " "} }, "vocabulary"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
