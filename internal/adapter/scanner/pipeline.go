package scanner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paddockhq/paddock/internal/config"
	"github.com/paddockhq/paddock/internal/core/domain"
	"github.com/paddockhq/paddock/internal/core/ports"
	"github.com/paddockhq/paddock/internal/logger"
)

// scanFunc is one scanner lifted onto a common shape for the pipeline loop.
// prompt carries the request text; output is empty on the input side.
type scanFunc func(ctx context.Context, prompt, output string) (domain.ScanOutput, error)

// entry is one pipeline slot. Construction is deferred behind a sync.Once so
// the lazy init policy and the eager warmup pool share one code path.
type entry struct {
	name     string
	enabled  atomic.Bool
	blocking bool

	buildOnce sync.Once
	build     func() (scanFunc, error)
	scan      scanFunc
	buildErr  error
}

func (e *entry) runner() (scanFunc, error) {
	e.buildOnce.Do(func() {
		e.scan, e.buildErr = e.build()
	})
	return e.scan, e.buildErr
}

// Pipeline runs one side's scanners in configured order. Verdict semantics:
// the result passes only when every enabled scanner passed, a raising
// scanner counts as not passed, and sanitization accumulates through the
// chain so later scanners see earlier rewrites.
type Pipeline struct {
	side    domain.ScanSide
	entries []*entry
	logger  logger.StyledLogger

	scans    atomic.Int64
	failures atomic.Int64
}

func newPipeline(side domain.ScanSide, entries []*entry, log logger.StyledLogger) *Pipeline {
	return &Pipeline{
		side:    side,
		entries: entries,
		logger:  log,
	}
}

func (p *Pipeline) Side() domain.ScanSide {
	return p.side
}

// Scan runs every enabled scanner and never stops early: a failing scanner
// does not suppress later verdicts, and a raising scanner is isolated into
// its own failed outcome.
func (p *Pipeline) Scan(ctx context.Context, prompt, output string) *domain.ScanResult {
	p.scans.Add(1)

	text := prompt
	if p.side == domain.ScanSideOutput {
		text = output
	}

	result := &domain.ScanResult{
		CreatedAt: time.Now(),
		Side:      p.side,
		Passed:    true,
	}

	for _, e := range p.entries {
		if !e.enabled.Load() {
			continue
		}
		result.ScannersRun++

		started := time.Now()
		out, err := p.runScanner(ctx, e, prompt, text)
		outcome := domain.ScannerOutcome{
			Scanner:    e.name,
			DurationMs: time.Since(started).Milliseconds(),
		}

		if err != nil {
			outcome.Passed = false
			outcome.Risk = 1.0
			outcome.Error = err.Error()
			result.Passed = false
			result.FailedScanners = append(result.FailedScanners, e.name)
			result.Outcomes = append(result.Outcomes, outcome)

			p.failures.Add(1)
			p.logger.Warn("Scanner raised, outcome recorded as failed",
				"scanner", e.name, "side", string(p.side), "error", err)
			continue
		}

		outcome.Passed = out.Passed
		outcome.Risk = out.Risk
		outcome.Modified = out.Sanitized != text
		result.Outcomes = append(result.Outcomes, outcome)

		if !out.Passed {
			result.Passed = false
			result.FailedScanners = append(result.FailedScanners, e.name)
		}

		// Sanitization flows on even from a failing scanner; only a raise
		// leaves the text untouched.
		text = out.Sanitized
	}

	result.Sanitized = text
	return result
}

// runScanner keeps the input/output calling conventions in one place. The
// accumulated text rides in the side's own slot so scanners see rewrites.
// A panicking scanner is recovered here and surfaces as an ordinary errored
// outcome, so one bad scanner never takes the request down with it.
func (p *Pipeline) runScanner(ctx context.Context, e *entry, prompt, text string) (out domain.ScanOutput, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = domain.ScanOutput{}
			err = fmt.Errorf("scanner panic: %v", r)
		}
	}()

	scan, err := e.runner()
	if err != nil {
		return domain.ScanOutput{}, err
	}
	if p.side == domain.ScanSideInput {
		return scan(ctx, text, "")
	}
	return scan(ctx, prompt, text)
}

// SetScannerEnabled flips one scanner's enabled flag. Reports whether the
// scanner exists on this side.
func (p *Pipeline) SetScannerEnabled(name string, enabled bool) bool {
	for _, e := range p.entries {
		if e.name == name {
			if e.enabled.Swap(enabled) != enabled {
				p.logger.Info("Scanner toggled",
					"scanner", name, "side", string(p.side), "enabled", enabled)
			}
			return true
		}
	}
	return false
}

// ApplyToggles re-points enabled flags at a reloaded config. Scanners not
// mentioned keep their current state; pattern or limit changes need a
// restart since scanners are constructed once.
func (p *Pipeline) ApplyToggles(cfgs []config.ScannerConfig) {
	for _, cfg := range cfgs {
		p.SetScannerEnabled(cfg.Name, cfg.IsEnabled())
	}
}

func (p *Pipeline) Scanners() []ports.ScannerStatus {
	statuses := make([]ports.ScannerStatus, 0, len(p.entries))
	for _, e := range p.entries {
		statuses = append(statuses, ports.ScannerStatus{
			Name:     e.name,
			Side:     string(p.side),
			Blocking: e.blocking,
			Enabled:  e.enabled.Load(),
		})
	}
	return statuses
}

// Counters for the stats endpoint.
func (p *Pipeline) Executions() int64 { return p.scans.Load() }
func (p *Pipeline) Failures() int64   { return p.failures.Load() }
