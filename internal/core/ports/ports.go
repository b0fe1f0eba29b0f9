package ports

import (
	"context"

	"github.com/paddockhq/paddock/internal/core/domain"
)

// ScanPipeline runs one side's scanners in configured order. prompt carries
// the request text; output is empty on the input side.
type ScanPipeline interface {
	Side() domain.ScanSide
	Scan(ctx context.Context, prompt, output string) *domain.ScanResult
	SetScannerEnabled(name string, enabled bool) bool
	Scanners() []ScannerStatus
}

// ScannerStatus describes one registered scanner for the config and stats
// endpoints.
type ScannerStatus struct {
	Name     string `json:"name"`
	Side     string `json:"side"`
	Blocking bool   `json:"blocking"`
	Enabled  bool   `json:"enabled"`
}

// AdmissionController bounds per-model concurrency for generation calls.
// Acquire blocks in FIFO order when the model is saturated and its queue has
// room, returns domain.ErrQueueFull when it does not, and ctx.Err() when the
// caller gives up waiting.
type AdmissionController interface {
	Acquire(ctx context.Context, model string) (AdmissionTicket, error)

	// UpdateLimits overrides one model's limits at runtime. The model key
	// may be a glob covering a family of live queues. parallel < 1 keeps
	// the current parallel limit; queueLimit < 0 keeps the current queue
	// limit.
	UpdateLimits(model string, parallel, queueLimit int) domain.QueueLimits

	// Reset removes idle queues and zeroes the counters of busy ones.
	// Returns the number of queues removed.
	Reset() int

	Snapshot() []domain.ModelQueueStats
	Memory() domain.MemoryReport
	Close() error
}

// AdmissionTicket is one admitted generation slot. Release hands the slot
// back; extra calls are no-ops.
type AdmissionTicket interface {
	Model() string
	Release()
}

// ScanCache is the fingerprint→verdict store. Lookups and stores never fail
// the request path; remote-tier trouble degrades to local and is logged.
type ScanCache interface {
	Lookup(ctx context.Context, fingerprint string) (*domain.ScanResult, bool)
	Store(ctx context.Context, fingerprint string, verdict *domain.ScanResult)

	// GetOrCompute coalesces concurrent misses for one fingerprint onto a
	// single compute call and stores the result. A caller whose ctx ends
	// while waiting detaches without cancelling the shared computation.
	GetOrCompute(ctx context.Context, fingerprint string, compute func(context.Context) (*domain.ScanResult, error)) (*domain.ScanResult, error)

	Clear(ctx context.Context) error
	Cleanup(ctx context.Context) (removed int, err error)
	Stats() CacheStats
	Close() error
}

type CacheStats struct {
	Backend       string `json:"backend"`
	LocalEntries  int    `json:"local_entries"`
	LocalHits     int64  `json:"local_hits"`
	LocalMisses   int64  `json:"local_misses"`
	RemoteHits    int64  `json:"remote_hits"`
	RemoteMisses  int64  `json:"remote_misses"`
	RemoteErrors  int64  `json:"remote_errors"`
	Evictions     int64  `json:"evictions"`
	Stores        int64  `json:"stores"`
	Coalesced     int64  `json:"coalesced_lookups"`
	DroppedWrites int64  `json:"dropped_remote_writes"`
	RemoteHealthy bool   `json:"remote_healthy"`
}
