package config

import (
	"os"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Bind.Host != DefaultHost {
		t.Errorf("Expected host %s, got %s", DefaultHost, cfg.Bind.Host)
	}
	if cfg.Bind.Port != DefaultPort {
		t.Errorf("Expected port %d, got %d", DefaultPort, cfg.Bind.Port)
	}

	if cfg.Upstream.BaseURL != DefaultUpstream {
		t.Errorf("Expected upstream %s, got %s", DefaultUpstream, cfg.Upstream.BaseURL)
	}

	if cfg.Admission.DefaultParallel != "auto" {
		t.Errorf("Expected default parallel 'auto', got %s", cfg.Admission.DefaultParallel)
	}
	if cfg.Admission.DefaultQueueLimit != 512 {
		t.Errorf("Expected default queue limit 512, got %d", cfg.Admission.DefaultQueueLimit)
	}

	if !cfg.Scan.InputEnabled || !cfg.Scan.OutputEnabled {
		t.Error("Expected both scan pipelines enabled by default")
	}
	if cfg.Scan.WindowBytes != 500 {
		t.Errorf("Expected scan window 500, got %d", cfg.Scan.WindowBytes)
	}
	if cfg.Scan.BlockOnScannerError {
		t.Error("Expected block_on_scanner_error false by default")
	}

	if cfg.Cache.Backend != "auto" {
		t.Errorf("Expected cache backend 'auto', got %s", cfg.Cache.Backend)
	}
	if cfg.Cache.LocalMaxEntries != 1000 {
		t.Errorf("Expected local cache size 1000, got %d", cfg.Cache.LocalMaxEntries)
	}
	if cfg.Cache.TTL() != time.Hour {
		t.Errorf("Expected cache TTL 1h, got %v", cfg.Cache.TTL())
	}
	if cfg.Cache.Remote.PoolSize != 50 {
		t.Errorf("Expected remote pool size 50, got %d", cfg.Cache.Remote.PoolSize)
	}

	if cfg.Timeout.UpstreamConnect != 5*time.Second {
		t.Errorf("Expected connect timeout 5s, got %v", cfg.Timeout.UpstreamConnect)
	}
	if cfg.Timeout.UpstreamIdle != 60*time.Second {
		t.Errorf("Expected idle timeout 60s, got %v", cfg.Timeout.UpstreamIdle)
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("Expected log level 'info', got %s", cfg.Logging.Level)
	}
	if cfg.Engineering.ShowNerdStats != false {
		t.Error("Expected ShowNerdStats to be false by default")
	}
}

func TestLoadConfig_WithoutFile(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Bind.Port != DefaultPort {
		t.Errorf("Expected default port %d, got %d", DefaultPort, cfg.Bind.Port)
	}
	if cfg.Bind.Host != DefaultHost {
		t.Errorf("Expected default host %s, got %s", DefaultHost, cfg.Bind.Host)
	}
}

func TestLoadConfig_WithEnvironmentVariables(t *testing.T) {
	testEnvVars := map[string]string{
		"PADDOCK_BIND_PORT":                     "8080",
		"PADDOCK_BIND_HOST":                     "0.0.0.0",
		"PADDOCK_UPSTREAM_BASE_URL":             "http://ollama:11434/",
		"PADDOCK_SCAN_WINDOW_BYTES":             "250",
		"PADDOCK_CACHE_BACKEND":                 "local-only",
		"PADDOCK_ADMISSION_DEFAULT_PARALLEL":    "4",
		"PADDOCK_ADMISSION_DEFAULT_QUEUE_LIMIT": "64",
		"PADDOCK_TIMEOUT_UPSTREAM_IDLE":         "90s",
		"PADDOCK_LOGGING_LEVEL":                 "debug",
	}

	for key, value := range testEnvVars {
		os.Setenv(key, value)
	}
	defer func() {
		for key := range testEnvVars {
			os.Unsetenv(key)
		}
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load with env vars failed: %v", err)
	}

	if cfg.Bind.Port != 8080 {
		t.Errorf("Expected port 8080 from env var, got %d", cfg.Bind.Port)
	}
	if cfg.Bind.Host != "0.0.0.0" {
		t.Errorf("Expected host 0.0.0.0 from env var, got %s", cfg.Bind.Host)
	}
	if cfg.Upstream.BaseURL != "http://ollama:11434" {
		t.Errorf("Expected trailing slash stripped from upstream URL, got %s", cfg.Upstream.BaseURL)
	}
	if cfg.Scan.WindowBytes != 250 {
		t.Errorf("Expected scan window 250 from env var, got %d", cfg.Scan.WindowBytes)
	}
	if cfg.Cache.Backend != "local-only" {
		t.Errorf("Expected cache backend local-only from env var, got %s", cfg.Cache.Backend)
	}
	if limit, auto := cfg.Admission.ParallelSetting(); auto || limit != 4 {
		t.Errorf("Expected parallel limit 4 from env var, got limit=%d auto=%v", limit, auto)
	}
	if cfg.Admission.DefaultQueueLimit != 64 {
		t.Errorf("Expected queue limit 64 from env var, got %d", cfg.Admission.DefaultQueueLimit)
	}
	if cfg.Timeout.UpstreamIdle != 90*time.Second {
		t.Errorf("Expected idle timeout 90s from env var, got %v", cfg.Timeout.UpstreamIdle)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected log level debug from env var, got %s", cfg.Logging.Level)
	}
}

func TestConfigValidation(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(*Config)
		valid  bool
	}{
		{
			name:   "default config is valid",
			modify: func(c *Config) {},
			valid:  true,
		},
		{
			name:   "port too small",
			modify: func(c *Config) { c.Bind.Port = 0 },
			valid:  false,
		},
		{
			name:   "port too large",
			modify: func(c *Config) { c.Bind.Port = 70000 },
			valid:  false,
		},
		{
			name:   "upstream url without scheme",
			modify: func(c *Config) { c.Upstream.BaseURL = "localhost:11434" },
			valid:  false,
		},
		{
			name:   "upstream url with bad scheme",
			modify: func(c *Config) { c.Upstream.BaseURL = "ftp://localhost:11434" },
			valid:  false,
		},
		{
			name:   "negative queue limit",
			modify: func(c *Config) { c.Admission.DefaultQueueLimit = -1 },
			valid:  false,
		},
		{
			name:   "bogus parallel setting",
			modify: func(c *Config) { c.Admission.DefaultParallel = "plenty" },
			valid:  false,
		},
		{
			name: "override with zero parallel",
			modify: func(c *Config) {
				c.Admission.Overrides = map[string]QueueOverride{"m": {ParallelLimit: 0, QueueLimit: 4}}
			},
			valid: false,
		},
		{
			name:   "zero scan window",
			modify: func(c *Config) { c.Scan.WindowBytes = 0 },
			valid:  false,
		},
		{
			name:   "unknown scan init policy",
			modify: func(c *Config) { c.Scan.Init = "sometimes" },
			valid:  false,
		},
		{
			name: "duplicate scanner names",
			modify: func(c *Config) {
				c.Scan.InputScanners = []ScannerConfig{{Name: "pii"}, {Name: "pii"}}
			},
			valid: false,
		},
		{
			name:   "unknown cache backend",
			modify: func(c *Config) { c.Cache.Backend = "memcached" },
			valid:  false,
		},
		{
			name:   "remote-only without host",
			modify: func(c *Config) { c.Cache.Backend = "remote-only" },
			valid:  false,
		},
		{
			name: "remote-only with host",
			modify: func(c *Config) {
				c.Cache.Backend = "remote-only"
				c.Cache.Remote.Host = "redis.internal"
			},
			valid: true,
		},
		{
			name:   "bad allowlist entry",
			modify: func(c *Config) { c.IPAllowlist = []string{"not-a-cidr"} },
			valid:  false,
		},
		{
			name:   "allowlist with bare ip and cidr",
			modify: func(c *Config) { c.IPAllowlist = []string{"10.0.0.0/8", "192.168.1.10"} },
			valid:  true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(cfg)

			err := cfg.Validate()
			if tc.valid && err != nil {
				t.Errorf("Expected valid config, got error: %v", err)
			}
			if !tc.valid && err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}
}

func TestConfigValidation_ParsesAllowlistOnce(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IPAllowlist = []string{"10.0.0.0/8", "192.168.0.0/16"}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if len(cfg.IPAllowlistParsed) != 2 {
		t.Errorf("Expected 2 parsed networks, got %d", len(cfg.IPAllowlistParsed))
	}
}

func TestParallelSetting(t *testing.T) {
	testCases := []struct {
		raw   string
		limit int
		auto  bool
	}{
		{"auto", 0, true},
		{"", 0, true},
		{"AUTO", 0, true},
		{"4", 4, false},
		{" 8 ", 8, false},
		{"0", 0, true},  // nonsense falls back to auto
		{"-2", 0, true}, // nonsense falls back to auto
	}

	for _, tc := range testCases {
		t.Run(tc.raw, func(t *testing.T) {
			a := AdmissionConfig{DefaultParallel: tc.raw}
			limit, auto := a.ParallelSetting()
			if limit != tc.limit || auto != tc.auto {
				t.Errorf("ParallelSetting(%q) = (%d, %v), want (%d, %v)", tc.raw, limit, auto, tc.limit, tc.auto)
			}
		})
	}
}

func TestRedacted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cache.Remote.Password = "hunter2"

	view := cfg.Redacted()
	if view.Cache.Remote.Password != "REDACTED" {
		t.Errorf("Expected redacted password, got %q", view.Cache.Remote.Password)
	}
	if cfg.Cache.Remote.Password != "hunter2" {
		t.Error("Redacted must not mutate the original config")
	}

	empty := DefaultConfig()
	if empty.Redacted().Cache.Remote.Password != "" {
		t.Error("Empty password should stay empty, not be replaced")
	}
}

func TestGetAddress(t *testing.T) {
	b := BindConfig{Host: "0.0.0.0", Port: 11435}
	if got := b.GetAddress(); got != "0.0.0.0:11435" {
		t.Errorf("Expected 0.0.0.0:11435, got %s", got)
	}
}
