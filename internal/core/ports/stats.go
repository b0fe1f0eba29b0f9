package ports

import (
	"time"

	"github.com/paddockhq/paddock/internal/core/domain"
)

type StatsCollector interface {
	RecordRequest(model string, dialect domain.Dialect, status int, latency time.Duration, bytesOut int64)
	// RecordBlocked counts a request rejected by a verdict, whether the
	// verdict came from a live scan or the cache.
	RecordBlocked(side domain.ScanSide)
	// RecordScan counts one actual pipeline execution (cache hits do not
	// land here).
	RecordScan(side domain.ScanSide, latency time.Duration, allowed bool, scannerErrors int)
	RecordSecurityViolation(violation SecurityViolation)

	GetProxyStats() ProxyStats
	GetModelStats() map[string]ModelStats
	GetScanStats() ScanStats
	GetSecurityStats() SecurityStats
}

type ProxyStats struct {
	TotalRequests      int64 `json:"total_requests"`
	SuccessfulRequests int64 `json:"successful_requests"`
	FailedRequests     int64 `json:"failed_requests"`
	NativeRequests     int64 `json:"native_requests"`
	OpenAIRequests     int64 `json:"openai_requests"`
	BlockedInputs      int64 `json:"blocked_inputs"`
	BlockedOutputs     int64 `json:"blocked_outputs"`
	AverageLatency     int64 `json:"avg_latency_ms"`
	MinLatency         int64 `json:"min_latency_ms"`
	MaxLatency         int64 `json:"max_latency_ms"`
	TotalBytesOut      int64 `json:"total_bytes_out"`
}

type ModelStats struct {
	Model              string    `json:"model"`
	TotalRequests      int64     `json:"total_requests"`
	SuccessfulRequests int64     `json:"successful_requests"`
	FailedRequests     int64     `json:"failed_requests"`
	AverageLatency     int64     `json:"avg_latency_ms"`
	TotalBytesOut      int64     `json:"total_bytes_out"`
	LastUsed           time.Time `json:"last_used"`
}

// ScanStats describes pipeline executions. The blocked counts here are
// blocking verdicts produced by a run; requests rejected off a cached
// verdict show up in ProxyStats.BlockedInputs/BlockedOutputs instead.
type ScanStats struct {
	InputScans      int64 `json:"input_scans"`
	OutputScans     int64 `json:"output_scans"`
	InputBlocked    int64 `json:"input_blocked"`
	OutputBlocked   int64 `json:"output_blocked"`
	ScannerErrors   int64 `json:"scanner_errors"`
	AvgInputScanMs  int64 `json:"avg_input_scan_ms"`
	AvgOutputScanMs int64 `json:"avg_output_scan_ms"`
	P95InputScanMs  int64 `json:"p95_input_scan_ms"`
	P95OutputScanMs int64 `json:"p95_output_scan_ms"`
	P99InputScanMs  int64 `json:"p99_input_scan_ms"`
	P99OutputScanMs int64 `json:"p99_output_scan_ms"`
}

type SecurityStats struct {
	RateLimitViolations  int64 `json:"rate_limit_violations"`
	SizeLimitViolations  int64 `json:"size_limit_violations"`
	IPDeniedViolations   int64 `json:"ip_denied_violations"`
	UniqueRateLimitedIPs int   `json:"unique_rate_limited_ips"`
}
