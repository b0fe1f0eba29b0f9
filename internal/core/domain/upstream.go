package domain

import "time"

type UpstreamStatus int

const (
	StatusUnknown UpstreamStatus = iota
	StatusHealthy
	StatusUnhealthy
)

func (s UpstreamStatus) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// UpstreamHealth is the last observed state of the backend, maintained by the
// health monitor and surfaced on /health. It is advisory only: requests are
// always attempted regardless of status.
type UpstreamHealth struct {
	CheckedAt           time.Time      `json:"checked_at"`
	Status              UpstreamStatus `json:"-"`
	StatusText          string         `json:"status"`
	BackendVersion      string         `json:"backend_version,omitempty"`
	Latency             time.Duration  `json:"-"`
	LatencyMs           int64          `json:"latency_ms"`
	ConsecutiveFailures int            `json:"consecutive_failures,omitempty"`
}
