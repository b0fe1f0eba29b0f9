package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Filename    string            `yaml:"-" json:"-"`
	Bind        BindConfig        `yaml:"bind" json:"bind"`
	Server      ServerConfig      `yaml:"server" json:"server"`
	Upstream    UpstreamConfig    `yaml:"upstream" json:"upstream"`
	Timeout     TimeoutConfig     `yaml:"timeout" json:"timeout"`
	Admission   AdmissionConfig   `yaml:"admission" json:"admission"`
	Scan        ScanConfig        `yaml:"scan" json:"scan"`
	Cache       CacheConfig       `yaml:"cache" json:"cache"`
	IPAllowlist []string          `yaml:"ip_allowlist" json:"ip_allowlist"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
	Engineering EngineeringConfig `yaml:"engineering" json:"engineering"`

	// Parsed once at validation so the ip gate never re-parses per request.
	IPAllowlistParsed []*net.IPNet `yaml:"-" json:"-"`
}

// BindConfig is the listen address.
type BindConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

// GetAddress returns the server address in host:port format
func (b *BindConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", b.Host, b.Port)
}

// ServerConfig holds HTTP server behaviour beyond the bind address.
type ServerConfig struct {
	RateLimits      ServerRateLimits    `yaml:"rate_limits" json:"rate_limits"`
	RequestLimits   ServerRequestLimits `yaml:"request_limits" json:"request_limits"`
	ReadTimeout     time.Duration       `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration       `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout     time.Duration       `yaml:"idle_timeout" json:"idle_timeout"`
	ShutdownTimeout time.Duration       `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	RequestLogging  bool                `yaml:"request_logging" json:"request_logging"`
}

// ServerRequestLimits defines request size limits
type ServerRequestLimits struct {
	MaxBodySize   int64 `yaml:"max_body_size" json:"max_body_size"`
	MaxHeaderSize int64 `yaml:"max_header_size" json:"max_header_size"`
}

// ServerRateLimits defines rate limiting configuration
type ServerRateLimits struct {
	TrustedProxyCIDRs       []string      `yaml:"trusted_proxy_cidrs" json:"trusted_proxy_cidrs"`
	TrustedProxyCIDRsParsed []*net.IPNet  `yaml:"-" json:"-"`
	GlobalRequestsPerMinute int           `yaml:"global_requests_per_minute" json:"global_requests_per_minute"`
	PerIPRequestsPerMinute  int           `yaml:"per_ip_requests_per_minute" json:"per_ip_requests_per_minute"`
	BurstSize               int           `yaml:"burst_size" json:"burst_size"`
	AdminRequestsPerMinute  int           `yaml:"admin_requests_per_minute" json:"admin_requests_per_minute"`
	CleanupInterval         time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
	TrustProxyHeaders       bool          `yaml:"trust_proxy_headers" json:"trust_proxy_headers"`
}

// UpstreamConfig identifies the backend and sizes the connection pool.
type UpstreamConfig struct {
	BaseURL          string        `yaml:"base_url" json:"base_url"`
	MaxIdleConns     int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	MaxConnsPerHost  int           `yaml:"max_conns_per_host" json:"max_conns_per_host"`
	IdleConnTimeout  time.Duration `yaml:"idle_conn_timeout" json:"idle_conn_timeout"`
	StreamBufferSize int           `yaml:"stream_buffer_size" json:"stream_buffer_size"`
	HealthInterval   time.Duration `yaml:"health_interval" json:"health_interval"`
}

// TimeoutConfig holds the upstream timeout knobs. UpstreamResponse bounds
// the whole body of non-streaming calls only; streaming reads are bounded
// per chunk by UpstreamIdle.
type TimeoutConfig struct {
	UpstreamConnect  time.Duration `yaml:"upstream_connect" json:"upstream_connect"`
	UpstreamIdle     time.Duration `yaml:"upstream_idle" json:"upstream_idle"`
	UpstreamResponse time.Duration `yaml:"upstream_response" json:"upstream_response"`
}

// AdmissionConfig sizes the per-model queues. DefaultParallel accepts an
// integer or the string "auto" (sized from available memory at startup).
type AdmissionConfig struct {
	Overrides         map[string]QueueOverride `yaml:"overrides" json:"overrides"`
	DefaultParallel   string                   `yaml:"default_parallel" json:"default_parallel"`
	DefaultQueueLimit int                      `yaml:"default_queue_limit" json:"default_queue_limit"`
}

type QueueOverride struct {
	ParallelLimit int `yaml:"parallel_limit" json:"parallel_limit"`
	QueueLimit    int `yaml:"queue_limit" json:"queue_limit"`
}

// ParallelSetting resolves DefaultParallel into (limit, auto).
func (a *AdmissionConfig) ParallelSetting() (int, bool) {
	raw := strings.TrimSpace(strings.ToLower(a.DefaultParallel))
	if raw == "" || raw == "auto" {
		return 0, true
	}
	if n, err := strconv.Atoi(raw); err == nil && n >= 1 {
		return n, false
	}
	return 0, true
}

// ScanConfig controls both scanner pipelines.
type ScanConfig struct {
	InputScanners       []ScannerConfig `yaml:"input_scanners" json:"input_scanners"`
	OutputScanners      []ScannerConfig `yaml:"output_scanners" json:"output_scanners"`
	Init                string          `yaml:"init" json:"init"` // eager or lazy
	InitWorkers         int             `yaml:"init_workers" json:"init_workers"`
	WindowBytes         int             `yaml:"window_bytes" json:"window_bytes"`
	InputEnabled        bool            `yaml:"input_enabled" json:"input_enabled"`
	OutputEnabled       bool            `yaml:"output_enabled" json:"output_enabled"`
	BlockOnScannerError bool            `yaml:"block_on_scanner_error" json:"block_on_scanner_error"`
}

// ScannerConfig configures one scanner in pipeline order. Fields beyond
// Name/Enabled are read by the scanner that recognises them.
type ScannerConfig struct {
	Name     string   `yaml:"name" json:"name"`
	Patterns []string `yaml:"patterns" json:"patterns,omitempty"`
	MaxChars int      `yaml:"max_chars" json:"max_chars,omitempty"`
	Enabled  *bool    `yaml:"enabled" json:"enabled,omitempty"`
	Redact   *bool    `yaml:"redact" json:"redact,omitempty"`
	Blocking *bool    `yaml:"blocking" json:"blocking,omitempty"`
}

func (s *ScannerConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// IsBlocking resolves the blocking flag against the scanner's own default.
func (s *ScannerConfig) IsBlocking(defaultBlocking bool) bool {
	if s.Blocking == nil {
		return defaultBlocking
	}
	return *s.Blocking
}

// ShouldRedact resolves the redact flag against the scanner's own default.
func (s *ScannerConfig) ShouldRedact(defaultRedact bool) bool {
	if s.Redact == nil {
		return defaultRedact
	}
	return *s.Redact
}

// CacheConfig selects the verdict cache backend and sizes both tiers.
type CacheConfig struct {
	Remote          RemoteCacheConfig `yaml:"remote" json:"remote"`
	Backend         string            `yaml:"backend" json:"backend"` // auto, local-only, remote-only
	LocalMaxEntries int               `yaml:"local_max_entries" json:"local_max_entries"`
	TTLSeconds      int               `yaml:"ttl_seconds" json:"ttl_seconds"`
}

func (c *CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

type RemoteCacheConfig struct {
	Host           string        `yaml:"host" json:"host"`
	Port           int           `yaml:"port" json:"port"`
	Password       string        `yaml:"password" json:"password,omitempty"`
	DB             int           `yaml:"db" json:"db"`
	PoolSize       int           `yaml:"pool_size" json:"pool_size"`
	DialTimeout    time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout" json:"write_timeout"`
	HealthInterval time.Duration `yaml:"health_interval" json:"health_interval"`
}

func (r *RemoteCacheConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	Theme      string `yaml:"theme" json:"theme"`
	Dir        string `yaml:"dir" json:"dir"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
	FileOutput bool   `yaml:"file_output" json:"file_output"`
}

// EngineeringConfig holds development/debugging configuration
type EngineeringConfig struct {
	ShowNerdStats bool `yaml:"show_nerdstats" json:"show_nerdstats"`
}
