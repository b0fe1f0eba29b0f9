// Package guard enforces the scan policy around upstream calls: an input
// verdict before admission, windowed scans over the accumulating output
// while streaming, and a final verdict over complete responses. Every
// verdict flows through the scan cache, so identical text never pays for a
// second pipeline run.
package guard

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/paddockhq/paddock/internal/adapter/translator"
	"github.com/paddockhq/paddock/internal/config"
	"github.com/paddockhq/paddock/internal/core/domain"
	"github.com/paddockhq/paddock/internal/core/ports"
	"github.com/paddockhq/paddock/internal/logger"
	"github.com/paddockhq/paddock/pkg/eventbus"
	"github.com/paddockhq/paddock/pkg/pool"
)

// Guard owns both scan pipelines and decides, per request, whether bytes
// keep flowing. Handlers hand it the upstream response; it hands back a
// RelayResult after the client has its answer.
type Guard struct {
	input     ports.ScanPipeline
	output    ports.ScanPipeline
	cache     ports.ScanCache
	events    *eventbus.EventBus[domain.GuardEvent]
	translate *translator.Translator
	logger    logger.StyledLogger

	bufferPool *pool.Pool[*[]byte]

	upstreamIdle time.Duration

	windowBytes   atomic.Int64
	inputEnabled  atomic.Bool
	outputEnabled atomic.Bool
	blockOnError  atomic.Bool
}

func New(cfg Configuration, input, output ports.ScanPipeline, cache ports.ScanCache, events *eventbus.EventBus[domain.GuardEvent], translate *translator.Translator, log logger.StyledLogger) (*Guard, error) {
	bufferSize := cfg.GetStreamBufferSize()
	bufferPool, err := pool.NewLitePool(func() *[]byte {
		buffer := make([]byte, bufferSize)
		return &buffer
	})
	if err != nil {
		return nil, err
	}

	g := &Guard{
		input:        input,
		output:       output,
		cache:        cache,
		events:       events,
		translate:    translate,
		logger:       log,
		bufferPool:   bufferPool,
		upstreamIdle: cfg.UpstreamIdle,
	}
	g.windowBytes.Store(int64(cfg.GetWindowBytes()))
	g.inputEnabled.Store(cfg.InputEnabled)
	g.outputEnabled.Store(cfg.OutputEnabled)
	g.blockOnError.Store(cfg.BlockOnScannerError)
	return g, nil
}

// ApplyScanConfig refreshes the hot-reloadable scan knobs. Scanner sets are
// fixed at startup; per-scanner toggles go through the pipelines.
func (g *Guard) ApplyScanConfig(cfg config.ScanConfig) {
	window := cfg.WindowBytes
	if window <= 0 {
		window = DefaultWindowBytes
	}
	g.windowBytes.Store(int64(window))
	g.inputEnabled.Store(cfg.InputEnabled)
	g.outputEnabled.Store(cfg.OutputEnabled)
	g.blockOnError.Store(cfg.BlockOnScannerError)
	g.logger.Info("Scan policy updated",
		"input_enabled", cfg.InputEnabled,
		"output_enabled", cfg.OutputEnabled,
		"window_bytes", window,
		"block_on_scanner_error", cfg.BlockOnScannerError)
}

// Blocks reports whether a verdict should stop the request. Content failures
// always block; scanner errors block only when block_on_scanner_error is
// set. Risk scores never block on their own.
func (g *Guard) Blocks(verdict *domain.ScanResult) bool {
	if verdict == nil {
		return false
	}
	if verdict.ContentFailed() {
		return true
	}
	return g.blockOnError.Load() && len(verdict.ErroredScanners()) > 0
}

// ScanInput runs the input pipeline over the request text via the cache. A
// nil verdict means input scanning is off or there was nothing to scan. The
// second return reports whether the verdict arrived without running the
// pipeline for this caller.
func (g *Guard) ScanInput(ctx context.Context, req *translator.GuardedRequest) (*domain.ScanResult, bool, error) {
	if !g.inputEnabled.Load() || req.ScanText == "" {
		return nil, false, nil
	}
	start := time.Now()
	verdict, hit, err := g.cachedScan(ctx, g.input, req.ScanText, "", false)
	if err != nil {
		return nil, false, err
	}
	if g.Blocks(verdict) {
		g.Publish(domain.GuardEvent{
			Type:      domain.GuardEventViolation,
			Model:     req.Model,
			Kind:      req.Kind,
			Dialect:   req.Dialect,
			Side:      domain.ScanSideInput,
			Scanners:  verdict.FailedScanners,
			Duration:  time.Since(start),
			Streaming: req.Streaming,
		})
	}
	return verdict, hit, nil
}

// ScanOutput runs the output pipeline over a complete response text via the
// cache. A nil verdict means output scanning is off or the text was empty.
func (g *Guard) ScanOutput(ctx context.Context, prompt, output string) (*domain.ScanResult, error) {
	if !g.outputEnabled.Load() || output == "" {
		return nil, nil
	}
	verdict, _, err := g.cachedScan(ctx, g.output, prompt, output, false)
	return verdict, err
}

// Publish stamps and fires a guard event without waiting on subscribers.
func (g *Guard) Publish(event domain.GuardEvent) {
	if g.events == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now()
	}
	g.events.PublishAsync(event)
}

// uncachedVerdict carries a verdict past the cache store. Blocked partials
// and error-tainted results must reach the caller without being kept:
// the former would wrongly condemn every stream sharing the prefix after
// the text grew past it, the latter would pin a transient failure until TTL.
type uncachedVerdict struct {
	verdict *domain.ScanResult
}

func (u *uncachedVerdict) Error() string { return "verdict is not cacheable" }

// cachedScan looks the fingerprint up, running the pipeline under
// single-flight on a miss. partial marks windowed mid-stream scans, whose
// blocking verdicts stay out of the cache.
func (g *Guard) cachedScan(ctx context.Context, pipeline ports.ScanPipeline, prompt, output string, partial bool) (*domain.ScanResult, bool, error) {
	side := pipeline.Side()
	text := prompt
	if side == domain.ScanSideOutput {
		text = output
	}

	computed := false
	verdict, err := g.cache.GetOrCompute(ctx, domain.Fingerprint(side, text), func(scanCtx context.Context) (*domain.ScanResult, error) {
		computed = true
		result := g.runPipeline(scanCtx, pipeline, prompt, output)
		if len(result.ErroredScanners()) > 0 || (partial && result.ContentFailed()) {
			return nil, &uncachedVerdict{verdict: result}
		}
		return result, nil
	})
	if err != nil {
		var uncached *uncachedVerdict
		if errors.As(err, &uncached) {
			return uncached.verdict, false, nil
		}
		if ctx.Err() != nil {
			return nil, false, err
		}
		// Cache trouble is not a reason to skip scanning: fall back to a
		// direct pipeline run and serve the verdict uncached.
		g.logger.Warn("Scan cache failed, running pipeline uncached",
			"side", string(side), "error", err)
		return g.runPipeline(ctx, pipeline, prompt, output), false, nil
	}
	return verdict, !computed, nil
}

// runPipeline executes one pipeline run and publishes its scan event.
func (g *Guard) runPipeline(ctx context.Context, pipeline ports.ScanPipeline, prompt, output string) *domain.ScanResult {
	started := time.Now()
	result := pipeline.Scan(ctx, prompt, output)
	g.Publish(domain.GuardEvent{
		Type:          domain.GuardEventScan,
		Side:          pipeline.Side(),
		Duration:      time.Since(started),
		Allowed:       !result.ContentFailed(),
		ScannerErrors: len(result.ErroredScanners()),
	})
	return result
}

// publishOutcome translates a finished relay into its guard event.
func (g *Guard) publishOutcome(req *translator.GuardedRequest, res *RelayResult, elapsed time.Duration, streaming bool) {
	event := domain.GuardEvent{
		Model:     req.Model,
		Kind:      req.Kind,
		Dialect:   req.Dialect,
		Duration:  elapsed,
		Bytes:     res.Bytes,
		Chunks:    res.Chunks,
		Streaming: streaming,
	}
	switch {
	case res.Blocked:
		event.Type = domain.GuardEventViolation
		event.Side = domain.ScanSideOutput
		if res.Verdict != nil {
			event.Scanners = res.Verdict.FailedScanners
		}
	case res.Completed():
		event.Type = domain.GuardEventCompleted
	default:
		event.Type = domain.GuardEventFailed
		event.ErrKind = res.ErrKind
	}
	g.Publish(event)
}

// cancelUpstream aborts the upstream transfer. Repeat cancels are expected
// where error paths overlap and only rate a debug line.
func (g *Guard) cancelUpstream(handle *ports.ResponseHandle, reason string) {
	if !handle.Cancel() {
		g.logger.Debug("Upstream already cancelled", "reason", reason)
	}
}
