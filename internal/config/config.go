package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/paddockhq/paddock/internal/core/domain"
	"github.com/paddockhq/paddock/internal/util"
)

const (
	DefaultPort = 11435
	DefaultHost = "127.0.0.1"

	DefaultUpstream = "http://localhost:11434"
)

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	yes := true
	return &Config{
		Bind: BindConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Server: ServerConfig{
			ReadTimeout: 30 * time.Second,
			// Write timeout stays off: streaming responses run for minutes.
			WriteTimeout:    0,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RequestLogging:  true,
			RequestLimits: ServerRequestLimits{
				MaxBodySize:   50 * 1024 * 1024, // chat requests can carry images
				MaxHeaderSize: 128 * 1024,
			},
			RateLimits: ServerRateLimits{
				GlobalRequestsPerMinute: 0, // off unless configured
				PerIPRequestsPerMinute:  0,
				BurstSize:               50,
				AdminRequestsPerMinute:  300,
				CleanupInterval:         5 * time.Minute,
				TrustProxyHeaders:       false,
			},
		},
		Upstream: UpstreamConfig{
			BaseURL:          DefaultUpstream,
			MaxIdleConns:     100,
			MaxConnsPerHost:  50,
			IdleConnTimeout:  90 * time.Second,
			StreamBufferSize: 8 * 1024,
			HealthInterval:   30 * time.Second,
		},
		Timeout: TimeoutConfig{
			UpstreamConnect:  5 * time.Second,
			UpstreamIdle:     60 * time.Second,
			UpstreamResponse: 10 * time.Minute,
		},
		Admission: AdmissionConfig{
			DefaultParallel:   "auto",
			DefaultQueueLimit: 512,
			Overrides:         map[string]QueueOverride{},
		},
		Scan: ScanConfig{
			InputEnabled:        true,
			OutputEnabled:       true,
			BlockOnScannerError: false,
			WindowBytes:         500,
			Init:                "eager",
			InitWorkers:         4,
			InputScanners: []ScannerConfig{
				{Name: "length", MaxChars: 32 * 1024},
				{Name: "secrets"},
				{Name: "denylist"},
				{Name: "pii", Redact: &yes},
			},
			OutputScanners: []ScannerConfig{
				{Name: "denylist"},
				{Name: "pii", Redact: &yes},
			},
		},
		Cache: CacheConfig{
			Backend:         "auto",
			LocalMaxEntries: 1000,
			TTLSeconds:      3600,
			Remote: RemoteCacheConfig{
				Port:           6379,
				PoolSize:       50,
				DialTimeout:    2 * time.Second,
				ReadTimeout:    500 * time.Millisecond,
				WriteTimeout:   500 * time.Millisecond,
				HealthInterval: 30 * time.Second,
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Theme:      "default",
			Dir:        "logs",
			FileOutput: false,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
		},
	}
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	config := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("PADDOCK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults(config)

	// Try to read config file
	if err := viper.ReadInConfig(); err != nil {
		// It's okay if config file doesn't exist
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, check if we have PADDOCK_CONFIG_FILE env var
		if configFile := os.Getenv("PADDOCK_CONFIG_FILE"); configFile != "" {
			viper.SetConfigFile(configFile)
			if err := viper.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		}
	}

	if err := unmarshal(config); err != nil {
		return nil, err
	}
	config.Filename = viper.ConfigFileUsed()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	viper.WatchConfig()

	return config, nil
}

// Watch registers fn to run whenever the config file changes on disk. Only
// the reloadable subset takes effect at runtime; the caller decides what to
// apply. A file that fails validation is dropped.
func Watch(fn func(*Config)) {
	viper.OnConfigChange(func(_ fsnotify.Event) {
		fresh := DefaultConfig()
		if err := unmarshal(fresh); err != nil {
			return
		}
		fresh.Filename = viper.ConfigFileUsed()
		if err := fresh.Validate(); err != nil {
			return
		}
		fn(fresh)
	})
}

// unmarshal decodes viper state with the yaml tag names our types carry.
func unmarshal(config *Config) error {
	err := viper.Unmarshal(config, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
	})
	if err != nil {
		return fmt.Errorf("unable to decode config: %w", err)
	}
	// GetString coerces a bare integer, so "4" and 4 both work in the file.
	if viper.IsSet("admission.default_parallel") {
		config.Admission.DefaultParallel = viper.GetString("admission.default_parallel")
	}
	return nil
}

// setDefaults registers every scalar key with viper so environment-only
// overrides apply even when the file never mentions the key. List and map
// settings (scanners, overrides, allowlist) come from the file.
func setDefaults(c *Config) {
	viper.SetDefault("bind.host", c.Bind.Host)
	viper.SetDefault("bind.port", c.Bind.Port)

	viper.SetDefault("server.read_timeout", c.Server.ReadTimeout)
	viper.SetDefault("server.write_timeout", c.Server.WriteTimeout)
	viper.SetDefault("server.idle_timeout", c.Server.IdleTimeout)
	viper.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	viper.SetDefault("server.request_logging", c.Server.RequestLogging)
	viper.SetDefault("server.request_limits.max_body_size", c.Server.RequestLimits.MaxBodySize)
	viper.SetDefault("server.request_limits.max_header_size", c.Server.RequestLimits.MaxHeaderSize)
	viper.SetDefault("server.rate_limits.global_requests_per_minute", c.Server.RateLimits.GlobalRequestsPerMinute)
	viper.SetDefault("server.rate_limits.per_ip_requests_per_minute", c.Server.RateLimits.PerIPRequestsPerMinute)
	viper.SetDefault("server.rate_limits.burst_size", c.Server.RateLimits.BurstSize)
	viper.SetDefault("server.rate_limits.admin_requests_per_minute", c.Server.RateLimits.AdminRequestsPerMinute)
	viper.SetDefault("server.rate_limits.cleanup_interval", c.Server.RateLimits.CleanupInterval)
	viper.SetDefault("server.rate_limits.trust_proxy_headers", c.Server.RateLimits.TrustProxyHeaders)

	viper.SetDefault("upstream.base_url", c.Upstream.BaseURL)
	viper.SetDefault("upstream.max_idle_conns", c.Upstream.MaxIdleConns)
	viper.SetDefault("upstream.max_conns_per_host", c.Upstream.MaxConnsPerHost)
	viper.SetDefault("upstream.idle_conn_timeout", c.Upstream.IdleConnTimeout)
	viper.SetDefault("upstream.stream_buffer_size", c.Upstream.StreamBufferSize)
	viper.SetDefault("upstream.health_interval", c.Upstream.HealthInterval)

	viper.SetDefault("timeout.upstream_connect", c.Timeout.UpstreamConnect)
	viper.SetDefault("timeout.upstream_idle", c.Timeout.UpstreamIdle)
	viper.SetDefault("timeout.upstream_response", c.Timeout.UpstreamResponse)

	viper.SetDefault("admission.default_parallel", c.Admission.DefaultParallel)
	viper.SetDefault("admission.default_queue_limit", c.Admission.DefaultQueueLimit)

	viper.SetDefault("scan.input_enabled", c.Scan.InputEnabled)
	viper.SetDefault("scan.output_enabled", c.Scan.OutputEnabled)
	viper.SetDefault("scan.block_on_scanner_error", c.Scan.BlockOnScannerError)
	viper.SetDefault("scan.window_bytes", c.Scan.WindowBytes)
	viper.SetDefault("scan.init", c.Scan.Init)
	viper.SetDefault("scan.init_workers", c.Scan.InitWorkers)

	viper.SetDefault("cache.backend", c.Cache.Backend)
	viper.SetDefault("cache.local_max_entries", c.Cache.LocalMaxEntries)
	viper.SetDefault("cache.ttl_seconds", c.Cache.TTLSeconds)
	viper.SetDefault("cache.remote.host", c.Cache.Remote.Host)
	viper.SetDefault("cache.remote.port", c.Cache.Remote.Port)
	viper.SetDefault("cache.remote.password", c.Cache.Remote.Password)
	viper.SetDefault("cache.remote.db", c.Cache.Remote.DB)
	viper.SetDefault("cache.remote.pool_size", c.Cache.Remote.PoolSize)
	viper.SetDefault("cache.remote.dial_timeout", c.Cache.Remote.DialTimeout)
	viper.SetDefault("cache.remote.read_timeout", c.Cache.Remote.ReadTimeout)
	viper.SetDefault("cache.remote.write_timeout", c.Cache.Remote.WriteTimeout)
	viper.SetDefault("cache.remote.health_interval", c.Cache.Remote.HealthInterval)

	viper.SetDefault("logging.level", c.Logging.Level)
	viper.SetDefault("logging.theme", c.Logging.Theme)
	viper.SetDefault("logging.dir", c.Logging.Dir)
	viper.SetDefault("logging.file_output", c.Logging.FileOutput)
	viper.SetDefault("logging.max_size", c.Logging.MaxSize)
	viper.SetDefault("logging.max_backups", c.Logging.MaxBackups)
	viper.SetDefault("logging.max_age", c.Logging.MaxAge)

	viper.SetDefault("engineering.show_nerdstats", c.Engineering.ShowNerdStats)
}

// Validate normalises and checks the whole config, caching parsed CIDRs.
func (c *Config) Validate() error {
	if c.Bind.Port < 1 || c.Bind.Port > 65535 {
		return &domain.ConfigValidationError{Field: "bind.port", Value: c.Bind.Port, Reason: "port must be between 1 and 65535"}
	}

	c.Upstream.BaseURL = util.NormaliseBaseURL(strings.TrimSpace(c.Upstream.BaseURL))
	parsed, err := url.Parse(c.Upstream.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return &domain.ConfigValidationError{Field: "upstream.base_url", Value: c.Upstream.BaseURL, Reason: "must be an absolute http(s) URL"}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return &domain.ConfigValidationError{Field: "upstream.base_url", Value: c.Upstream.BaseURL, Reason: "scheme must be http or https"}
	}

	if c.Timeout.UpstreamConnect <= 0 {
		return &domain.ConfigValidationError{Field: "timeout.upstream_connect", Value: c.Timeout.UpstreamConnect, Reason: "must be positive"}
	}
	if c.Timeout.UpstreamIdle <= 0 {
		return &domain.ConfigValidationError{Field: "timeout.upstream_idle", Value: c.Timeout.UpstreamIdle, Reason: "must be positive"}
	}

	if c.Admission.DefaultQueueLimit < 0 {
		return &domain.ConfigValidationError{Field: "admission.default_queue_limit", Value: c.Admission.DefaultQueueLimit, Reason: "must be zero or positive"}
	}
	if raw := strings.TrimSpace(strings.ToLower(c.Admission.DefaultParallel)); raw != "" && raw != "auto" {
		if n, convErr := strconv.Atoi(raw); convErr != nil || n < 1 {
			return &domain.ConfigValidationError{Field: "admission.default_parallel", Value: c.Admission.DefaultParallel, Reason: "must be a positive integer or \"auto\""}
		}
	}
	for model, override := range c.Admission.Overrides {
		if override.ParallelLimit < 1 {
			return &domain.ConfigValidationError{Field: "admission.overrides." + model + ".parallel_limit", Value: override.ParallelLimit, Reason: "must be at least 1"}
		}
		if override.QueueLimit < 0 {
			return &domain.ConfigValidationError{Field: "admission.overrides." + model + ".queue_limit", Value: override.QueueLimit, Reason: "must be zero or positive"}
		}
	}

	if c.Scan.WindowBytes < 1 {
		return &domain.ConfigValidationError{Field: "scan.window_bytes", Value: c.Scan.WindowBytes, Reason: "must be at least 1"}
	}
	switch strings.ToLower(c.Scan.Init) {
	case "", "eager", "lazy":
	default:
		return &domain.ConfigValidationError{Field: "scan.init", Value: c.Scan.Init, Reason: "must be eager or lazy"}
	}
	if c.Scan.InitWorkers < 1 {
		c.Scan.InitWorkers = 1
	}
	if err := validateScannerNames("scan.input_scanners", c.Scan.InputScanners); err != nil {
		return err
	}
	if err := validateScannerNames("scan.output_scanners", c.Scan.OutputScanners); err != nil {
		return err
	}

	switch c.Cache.Backend {
	case "auto", "local-only", "remote-only":
	default:
		return &domain.ConfigValidationError{Field: "cache.backend", Value: c.Cache.Backend, Reason: "must be auto, local-only or remote-only"}
	}
	if c.Cache.Backend == "remote-only" && c.Cache.Remote.Host == "" {
		return &domain.ConfigValidationError{Field: "cache.remote.host", Value: "", Reason: "required when cache.backend is remote-only"}
	}
	if c.Cache.LocalMaxEntries < 1 {
		return &domain.ConfigValidationError{Field: "cache.local_max_entries", Value: c.Cache.LocalMaxEntries, Reason: "must be at least 1"}
	}
	if c.Cache.TTLSeconds < 1 {
		return &domain.ConfigValidationError{Field: "cache.ttl_seconds", Value: c.Cache.TTLSeconds, Reason: "must be at least 1"}
	}
	if c.Cache.Remote.PoolSize < 1 {
		c.Cache.Remote.PoolSize = 1
	}

	allowlist, err := util.ParseCIDRs(c.IPAllowlist)
	if err != nil {
		return &domain.ConfigValidationError{Field: "ip_allowlist", Value: c.IPAllowlist, Reason: err.Error()}
	}
	c.IPAllowlistParsed = allowlist

	trusted, err := util.ParseCIDRs(c.Server.RateLimits.TrustedProxyCIDRs)
	if err != nil {
		return &domain.ConfigValidationError{Field: "server.rate_limits.trusted_proxy_cidrs", Value: c.Server.RateLimits.TrustedProxyCIDRs, Reason: err.Error()}
	}
	c.Server.RateLimits.TrustedProxyCIDRsParsed = trusted

	return nil
}

func validateScannerNames(field string, scanners []ScannerConfig) error {
	seen := make(map[string]struct{}, len(scanners))
	for i, sc := range scanners {
		name := strings.TrimSpace(strings.ToLower(sc.Name))
		if name == "" {
			return &domain.ConfigValidationError{Field: fmt.Sprintf("%s[%d].name", field, i), Value: sc.Name, Reason: "scanner name is required"}
		}
		if _, dup := seen[name]; dup {
			return &domain.ConfigValidationError{Field: fmt.Sprintf("%s[%d].name", field, i), Value: sc.Name, Reason: "scanner names must be unique within a pipeline"}
		}
		seen[name] = struct{}{}
	}
	return nil
}

// Redacted returns the non-sensitive view served on the config endpoint.
func (c *Config) Redacted() *Config {
	view := *c
	if view.Cache.Remote.Password != "" {
		view.Cache.Remote.Password = "REDACTED"
	}
	return &view
}
