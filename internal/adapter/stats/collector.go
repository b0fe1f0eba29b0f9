package stats

/*
				Paddock Stats Collector - Centralised Stats Collection
	Collector centralises everything Paddock counts - requests, scans,
	verdict blocks, security violations. Instead of each component doing
	its own bookkeeping, everything reports here so /stats can show what
	is happening system-wide.

	Thread-safe for high concurrency since this gets hit on every request.
	Per-model rows age out automatically so a churn of one-off model names
	never pins memory.

	NOTE: 	Cleanup values are conservative to avoid memory retention over
		  	long running processes. Most users talk to a handful of local
			models, so we cap the tracked set at 50.
*/

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/paddockhq/paddock/internal/core/domain"
	"github.com/paddockhq/paddock/internal/core/ports"
	"github.com/paddockhq/paddock/internal/logger"
)

const (
	// NOTE: These are not too high to avoid memory retention for long periods
	// Most folks run 10-20 local models at most
	MaxTrackedModels = 50
	ModelTTL         = 1 * time.Hour
	CleanupInterval  = 5 * time.Minute

	// scanSampleSize bounds the latency reservoirs; 100 samples give
	// stable p95/p99 estimates without holding every observation.
	scanSampleSize = 100
)

type Collector struct {
	uniqueRateLimitedIPs map[string]int64

	logger logger.StyledLogger

	models *xsync.Map[string, *modelData]

	inputScanSampler  *ReservoirSampler
	outputScanSampler *ReservoirSampler

	totalRequests      int64
	successfulRequests int64
	failedRequests     int64
	nativeRequests     int64
	openAIRequests     int64
	totalLatency       int64
	minLatency         int64
	maxLatency         int64
	totalBytesOut      int64

	blockedInputs  int64
	blockedOutputs int64

	inputScans        int64
	outputScans       int64
	inputScanBlocked  int64
	outputScanBlocked int64
	inputScanLatency  int64
	outputScanLatency int64
	scannerErrors     int64

	rateLimitViolations int64
	sizeLimitViolations int64
	ipDeniedViolations  int64
	lastCleanup         int64
	securityMu          sync.RWMutex

	cleanupMu sync.Mutex
}

type modelData struct {
	totalRequests      *xsync.Counter
	successfulRequests *xsync.Counter
	failedRequests     *xsync.Counter
	totalBytesOut      *xsync.Counter
	totalLatency       *xsync.Counter
	name               string
	lastUsed           int64 // Keep atomic for timestamp
}

func NewCollector(logger logger.StyledLogger) *Collector {
	return &Collector{
		uniqueRateLimitedIPs: make(map[string]int64),
		logger:               logger,
		models:               xsync.NewMap[string, *modelData](),
		inputScanSampler:     NewReservoirSampler(scanSampleSize),
		outputScanSampler:    NewReservoirSampler(scanSampleSize),
		minLatency:           -1,
		lastCleanup:          time.Now().UnixNano(),
	}
}

// RecordRequest counts one finished request. Anything below 400 is a
// success; verdict blocks land here as failures (451) and additionally in
// the blocked counters via RecordBlocked.
func (c *Collector) RecordRequest(model string, dialect domain.Dialect, status int, latency time.Duration, bytesOut int64) {
	now := time.Now().UnixNano()
	latencyMs := latency.Milliseconds()

	atomic.AddInt64(&c.totalRequests, 1)
	atomic.AddInt64(&c.totalBytesOut, bytesOut)

	switch dialect {
	case domain.DialectNative:
		atomic.AddInt64(&c.nativeRequests, 1)
	case domain.DialectOpenAI:
		atomic.AddInt64(&c.openAIRequests, 1)
	}

	success := status < 400
	if success {
		atomic.AddInt64(&c.successfulRequests, 1)
		// Latency totals and bounds only track successful requests so a
		// run of fast failures cannot drag the average down.
		atomic.AddInt64(&c.totalLatency, latencyMs)
		c.updateLatencyBounds(latencyMs)
	} else {
		atomic.AddInt64(&c.failedRequests, 1)
	}

	// Passthrough endpoints carry no model; only proxy totals apply.
	if model != "" {
		c.updateModelStats(model, success, latencyMs, bytesOut, now)
	}
	c.tryCleanup(now)
}

// RecordBlocked counts a request rejected by a verdict, whether the verdict
// came from a live scan or the cache.
func (c *Collector) RecordBlocked(side domain.ScanSide) {
	if side == domain.ScanSideOutput {
		atomic.AddInt64(&c.blockedOutputs, 1)
	} else {
		atomic.AddInt64(&c.blockedInputs, 1)
	}
}

// RecordScan counts one actual pipeline execution. Cache hits and coalesced
// duplicates never land here, so these numbers can sit well below the
// request totals when the verdict cache is warm.
func (c *Collector) RecordScan(side domain.ScanSide, latency time.Duration, allowed bool, scannerErrors int) {
	latencyMs := latency.Milliseconds()

	if side == domain.ScanSideOutput {
		atomic.AddInt64(&c.outputScans, 1)
		atomic.AddInt64(&c.outputScanLatency, latencyMs)
		c.outputScanSampler.Add(latencyMs)
		if !allowed {
			atomic.AddInt64(&c.outputScanBlocked, 1)
		}
	} else {
		atomic.AddInt64(&c.inputScans, 1)
		atomic.AddInt64(&c.inputScanLatency, latencyMs)
		c.inputScanSampler.Add(latencyMs)
		if !allowed {
			atomic.AddInt64(&c.inputScanBlocked, 1)
		}
	}

	if scannerErrors > 0 {
		atomic.AddInt64(&c.scannerErrors, int64(scannerErrors))
	}
}

func (c *Collector) RecordSecurityViolation(violation ports.SecurityViolation) {
	switch violation.ViolationType {
	case ports.ViolationRateLimit:
		atomic.AddInt64(&c.rateLimitViolations, 1)
		c.recordRateLimitedIP(violation.ClientID)
	case ports.ViolationSizeLimit:
		atomic.AddInt64(&c.sizeLimitViolations, 1)
	case ports.ViolationIPDenied:
		atomic.AddInt64(&c.ipDeniedViolations, 1)
	}
}

func (c *Collector) GetProxyStats() ports.ProxyStats {
	total := atomic.LoadInt64(&c.totalRequests)
	successful := atomic.LoadInt64(&c.successfulRequests)
	failed := atomic.LoadInt64(&c.failedRequests)
	totalLatency := atomic.LoadInt64(&c.totalLatency)

	var avgLatency int64
	if successful > 0 {
		avgLatency = totalLatency / successful
	}

	minLatency := atomic.LoadInt64(&c.minLatency)
	if minLatency == -1 {
		minLatency = 0
	}

	return ports.ProxyStats{
		TotalRequests:      total,
		SuccessfulRequests: successful,
		FailedRequests:     failed,
		NativeRequests:     atomic.LoadInt64(&c.nativeRequests),
		OpenAIRequests:     atomic.LoadInt64(&c.openAIRequests),
		BlockedInputs:      atomic.LoadInt64(&c.blockedInputs),
		BlockedOutputs:     atomic.LoadInt64(&c.blockedOutputs),
		AverageLatency:     avgLatency,
		MinLatency:         minLatency,
		MaxLatency:         atomic.LoadInt64(&c.maxLatency),
		TotalBytesOut:      atomic.LoadInt64(&c.totalBytesOut),
	}
}

func (c *Collector) GetModelStats() map[string]ports.ModelStats {
	stats := make(map[string]ports.ModelStats)

	c.models.Range(func(model string, data *modelData) bool {
		successful := data.successfulRequests.Value()
		totalLatency := data.totalLatency.Value()
		avgLatency := int64(0)
		if successful > 0 {
			avgLatency = totalLatency / successful
		}

		stats[model] = ports.ModelStats{
			Model:              data.name,
			TotalRequests:      data.totalRequests.Value(),
			SuccessfulRequests: successful,
			FailedRequests:     data.failedRequests.Value(),
			AverageLatency:     avgLatency,
			TotalBytesOut:      data.totalBytesOut.Value(),
			LastUsed:           time.Unix(0, atomic.LoadInt64(&data.lastUsed)),
		}
		return true
	})

	return stats
}

func (c *Collector) GetScanStats() ports.ScanStats {
	inputScans := atomic.LoadInt64(&c.inputScans)
	outputScans := atomic.LoadInt64(&c.outputScans)

	var avgInput, avgOutput int64
	if inputScans > 0 {
		avgInput = atomic.LoadInt64(&c.inputScanLatency) / inputScans
	}
	if outputScans > 0 {
		avgOutput = atomic.LoadInt64(&c.outputScanLatency) / outputScans
	}

	_, p95Input, p99Input := c.inputScanSampler.GetPercentiles()
	_, p95Output, p99Output := c.outputScanSampler.GetPercentiles()

	return ports.ScanStats{
		InputScans:      inputScans,
		OutputScans:     outputScans,
		InputBlocked:    atomic.LoadInt64(&c.inputScanBlocked),
		OutputBlocked:   atomic.LoadInt64(&c.outputScanBlocked),
		ScannerErrors:   atomic.LoadInt64(&c.scannerErrors),
		AvgInputScanMs:  avgInput,
		AvgOutputScanMs: avgOutput,
		P95InputScanMs:  p95Input,
		P95OutputScanMs: p95Output,
		P99InputScanMs:  p99Input,
		P99OutputScanMs: p99Output,
	}
}

func (c *Collector) GetSecurityStats() ports.SecurityStats {
	c.securityMu.RLock()
	uniqueIPs := len(c.uniqueRateLimitedIPs)
	c.securityMu.RUnlock()

	return ports.SecurityStats{
		RateLimitViolations:  atomic.LoadInt64(&c.rateLimitViolations),
		SizeLimitViolations:  atomic.LoadInt64(&c.sizeLimitViolations),
		IPDeniedViolations:   atomic.LoadInt64(&c.ipDeniedViolations),
		UniqueRateLimitedIPs: uniqueIPs,
	}
}

func (c *Collector) recordRateLimitedIP(clientIP string) {
	now := time.Now().UnixNano()
	cutoff := now - int64(time.Hour)

	c.securityMu.Lock()
	c.uniqueRateLimitedIPs[clientIP] = now
	for ip, ts := range c.uniqueRateLimitedIPs {
		if ts < cutoff {
			delete(c.uniqueRateLimitedIPs, ip)
		}
	}
	c.securityMu.Unlock()
}

func (c *Collector) updateModelStats(model string, success bool, latencyMs, bytesOut, now int64) {
	data := c.getOrInitModel(model, now)

	data.totalRequests.Inc()
	data.totalBytesOut.Add(bytesOut)
	atomic.StoreInt64(&data.lastUsed, now)

	if success {
		data.successfulRequests.Inc()
		data.totalLatency.Add(latencyMs)
	} else {
		data.failedRequests.Inc()
	}
}

func (c *Collector) updateLatencyBounds(latencyMs int64) {
	for {
		minLatency := atomic.LoadInt64(&c.minLatency)
		if minLatency == -1 || latencyMs < minLatency {
			if atomic.CompareAndSwapInt64(&c.minLatency, minLatency, latencyMs) {
				break
			}
		} else {
			break
		}
	}
	for {
		maxLatency := atomic.LoadInt64(&c.maxLatency)
		if latencyMs > maxLatency {
			if atomic.CompareAndSwapInt64(&c.maxLatency, maxLatency, latencyMs) {
				break
			}
		} else {
			break
		}
	}
}

func (c *Collector) getOrInitModel(model string, now int64) *modelData {
	data, _ := c.models.LoadOrCompute(model, func() (*modelData, bool) {
		return &modelData{
			name:               model,
			lastUsed:           now,
			totalRequests:      xsync.NewCounter(),
			successfulRequests: xsync.NewCounter(),
			failedRequests:     xsync.NewCounter(),
			totalBytesOut:      xsync.NewCounter(),
			totalLatency:       xsync.NewCounter(),
		}, false
	})
	return data
}

func (c *Collector) tryCleanup(now int64) {
	lastCleanup := atomic.LoadInt64(&c.lastCleanup)
	if now-lastCleanup < int64(CleanupInterval) {
		return
	}

	c.cleanupMu.Lock()
	defer c.cleanupMu.Unlock()

	// Double-check after acquiring lock
	if now-atomic.LoadInt64(&c.lastCleanup) < int64(CleanupInterval) {
		return
	}

	c.cleanupOldModels(now)
	atomic.StoreInt64(&c.lastCleanup, now)
}

func (c *Collector) cleanupOldModels(now int64) {
	cutoff := now - int64(ModelTTL)

	var toRemove []string
	c.models.Range(func(model string, data *modelData) bool {
		if atomic.LoadInt64(&data.lastUsed) < cutoff {
			toRemove = append(toRemove, model)
		}
		return true
	})

	for _, model := range toRemove {
		c.models.Delete(model)
	}

	if c.models.Size() > MaxTrackedModels {
		c.pruneExcessModels()
	}
}

// pruneExcessModels drops the least recently used rows once the cap is
// breached, keeping exactly MaxTrackedModels behind.
func (c *Collector) pruneExcessModels() {
	type modelActivity struct {
		name     string
		lastUsed int64
	}

	var models []modelActivity
	c.models.Range(func(model string, data *modelData) bool {
		models = append(models, modelActivity{
			name:     model,
			lastUsed: atomic.LoadInt64(&data.lastUsed),
		})
		return true
	})

	sort.Slice(models, func(i, j int) bool {
		return models[i].lastUsed > models[j].lastUsed
	})

	for i := MaxTrackedModels; i < len(models); i++ {
		c.models.Delete(models[i].name)
	}
	c.logger.Debug("Cleaned up old model stats", "removed", len(models)-MaxTrackedModels, "remaining", MaxTrackedModels)
}
