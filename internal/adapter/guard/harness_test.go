package guard

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/paddockhq/paddock/internal/adapter/translator"
	"github.com/paddockhq/paddock/internal/core/domain"
	"github.com/paddockhq/paddock/internal/core/ports"
	"github.com/paddockhq/paddock/internal/logger"
	"github.com/paddockhq/paddock/pkg/eventbus"
)

func createTestLogger() logger.StyledLogger {
	loggerCfg := &logger.Config{Level: "error", Theme: "default"}
	log, _, _ := logger.New(loggerCfg)
	return logger.NewPlainStyledLogger(log)
}

// fakePipeline returns a canned verdict per scan and counts executions.
type fakePipeline struct {
	verdict func(prompt, output string) *domain.ScanResult
	side    domain.ScanSide

	mu    sync.Mutex
	scans int
}

func (f *fakePipeline) Side() domain.ScanSide { return f.side }

func (f *fakePipeline) Scan(_ context.Context, prompt, output string) *domain.ScanResult {
	f.mu.Lock()
	f.scans++
	f.mu.Unlock()
	return f.verdict(prompt, output)
}

func (f *fakePipeline) SetScannerEnabled(string, bool) bool { return false }
func (f *fakePipeline) Scanners() []ports.ScannerStatus    { return nil }

func (f *fakePipeline) scanCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scans
}

// fakeCache keeps verdicts in a map and counts stores, mirroring the
// layered cache's contract: compute errors are returned without storing.
// Setting failWith makes every GetOrCompute fail without calling compute.
type fakeCache struct {
	mu       sync.Mutex
	entries  map[string]*domain.ScanResult
	stores   int
	failWith error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*domain.ScanResult)}
}

func (f *fakeCache) Lookup(_ context.Context, fingerprint string) (*domain.ScanResult, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	verdict, ok := f.entries[fingerprint]
	return verdict, ok
}

func (f *fakeCache) Store(_ context.Context, fingerprint string, verdict *domain.ScanResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[fingerprint] = verdict
	f.stores++
}

func (f *fakeCache) GetOrCompute(ctx context.Context, fingerprint string, compute func(context.Context) (*domain.ScanResult, error)) (*domain.ScanResult, error) {
	f.mu.Lock()
	failWith := f.failWith
	f.mu.Unlock()
	if failWith != nil {
		return nil, failWith
	}
	if verdict, ok := f.Lookup(ctx, fingerprint); ok {
		return verdict, nil
	}
	verdict, err := compute(ctx)
	if err != nil {
		return nil, err
	}
	f.Store(ctx, fingerprint, verdict)
	return verdict, nil
}

func (f *fakeCache) Clear(context.Context) error            { return nil }
func (f *fakeCache) Cleanup(context.Context) (int, error)   { return 0, nil }
func (f *fakeCache) Stats() ports.CacheStats                { return ports.CacheStats{} }
func (f *fakeCache) Close() error                           { return nil }

func (f *fakeCache) storeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stores
}

func passResult(side domain.ScanSide, text string) *domain.ScanResult {
	return &domain.ScanResult{
		CreatedAt:   time.Now(),
		Side:        side,
		Sanitized:   text,
		Outcomes:    []domain.ScannerOutcome{{Scanner: "keyword", Passed: true}},
		ScannersRun: 1,
		Passed:      true,
	}
}

func blockResult(side domain.ScanSide, scanner string) *domain.ScanResult {
	return &domain.ScanResult{
		CreatedAt:      time.Now(),
		Side:           side,
		FailedScanners: []string{scanner},
		Outcomes:       []domain.ScannerOutcome{{Scanner: scanner, Passed: false}},
		ScannersRun:    1,
		Passed:         false,
	}
}

func errorResult(side domain.ScanSide, scanner string) *domain.ScanResult {
	return &domain.ScanResult{
		CreatedAt:      time.Now(),
		Side:           side,
		FailedScanners: []string{scanner},
		Outcomes:       []domain.ScannerOutcome{{Scanner: scanner, Error: "scanner exploded", Passed: false}},
		ScannersRun:    1,
		Passed:         false,
	}
}

func alwaysPass(side domain.ScanSide) func(string, string) *domain.ScanResult {
	return func(prompt, output string) *domain.ScanResult {
		text := output
		if side == domain.ScanSideInput {
			text = prompt
		}
		return passResult(side, text)
	}
}

type guardHarness struct {
	guard  *Guard
	input  *fakePipeline
	output *fakePipeline
	cache  *fakeCache
	events *eventbus.EventBus[domain.GuardEvent]
}

func newGuardHarness(t *testing.T, cfg Configuration) *guardHarness {
	t.Helper()

	input := &fakePipeline{side: domain.ScanSideInput, verdict: alwaysPass(domain.ScanSideInput)}
	output := &fakePipeline{side: domain.ScanSideOutput, verdict: alwaysPass(domain.ScanSideOutput)}
	cache := newFakeCache()
	events := eventbus.New[domain.GuardEvent]()
	t.Cleanup(events.Shutdown)

	log := createTestLogger()
	g, err := New(cfg, input, output, cache, events, translator.New(log), log)
	require.NoError(t, err)

	return &guardHarness{guard: g, input: input, output: output, cache: cache, events: events}
}

func defaultTestConfig() Configuration {
	return Configuration{
		WindowBytes:   500,
		InputEnabled:  true,
		OutputEnabled: true,
	}
}

func testHandle(body string) *ports.ResponseHandle {
	return ports.NewResponseHandle(http.StatusOK, http.Header{}, io.NopCloser(strings.NewReader(body)), func() {})
}

func nativeChatRequest(model string) *translator.GuardedRequest {
	return &translator.GuardedRequest{
		Model:     model,
		ScanText:  "user: hi",
		Kind:      domain.KindChat,
		Dialect:   domain.DialectNative,
		Streaming: true,
	}
}
