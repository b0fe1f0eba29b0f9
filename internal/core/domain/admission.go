package domain

import "time"

// QueueLimits are the tunables of one model queue. ParallelLimit is the
// number of requests allowed in flight at once; QueueLimit bounds how many
// more may wait.
type QueueLimits struct {
	ParallelLimit int `json:"parallel_limit"`
	QueueLimit    int `json:"queue_limit"`
}

// ModelQueueStats is a point-in-time snapshot of one model queue, shaped for
// the stats endpoints.
type ModelQueueStats struct {
	Model          string `json:"model"`
	InFlight       int64  `json:"in_flight"`
	Waiting        int64  `json:"waiting"`
	ParallelLimit  int    `json:"parallel_limit"`
	QueueLimit     int    `json:"queue_limit"`
	TotalAdmitted  int64  `json:"total_admitted"`
	TotalCompleted int64  `json:"total_completed"`
	TotalRejected  int64  `json:"total_rejected"`
	TotalCancelled int64  `json:"total_cancelled"`
	AvgWaitMs      int64  `json:"avg_wait_ms"`
	AvgProcessMs   int64  `json:"avg_process_ms"`
}

// MemoryReport explains how the auto parallel limit was derived, surfaced on
// the queue memory endpoint.
type MemoryReport struct {
	DetectedAt     time.Time `json:"detected_at"`
	Source         string    `json:"source"`
	TotalBytes     uint64    `json:"total_bytes"`
	AvailableBytes uint64    `json:"available_bytes"`
	AutoParallel   int       `json:"auto_parallel_limit"`
	Fallback       bool      `json:"fallback"`
}
