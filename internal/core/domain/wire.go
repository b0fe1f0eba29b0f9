package domain

// Error kinds carried on wire error bodies (native `type`, OpenAI `code`).
const (
	ErrKindInputBlocked        = "input_blocked"
	ErrKindOutputBlocked       = "output_blocked"
	ErrKindQueueFull           = "queue_full"
	ErrKindUpstreamUnavailable = "upstream_unavailable"
	ErrKindUpstreamTimeout     = "upstream_timeout"
	ErrKindIPDenied            = "ip_denied"
	ErrKindBadRequest          = "bad_request"
)

// ViolationError is the human-facing error string for scanner blocks, shared
// by both dialects.
const ViolationError = "content_policy_violation"

// FailedScanner is the per-scanner detail attached to violation responses.
type FailedScanner struct {
	Scanner string  `json:"scanner"`
	Reason  string  `json:"reason,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

// FailedScannersFrom flattens a blocked verdict into wire detail, one entry
// per failed scanner in pipeline order.
func FailedScannersFrom(result *ScanResult) []FailedScanner {
	if result == nil || len(result.FailedScanners) == 0 {
		return nil
	}
	failed := make([]FailedScanner, 0, len(result.FailedScanners))
	for _, outcome := range result.Outcomes {
		if outcome.Passed && outcome.Error == "" {
			continue
		}
		fs := FailedScanner{Scanner: outcome.Scanner, Score: outcome.Risk}
		if outcome.Error != "" {
			fs.Reason = outcome.Error
		}
		failed = append(failed, fs)
	}
	if len(failed) > 0 {
		return failed
	}
	// Older cache entries may carry names only.
	for _, name := range result.FailedScanners {
		failed = append(failed, FailedScanner{Scanner: name})
	}
	return failed
}

// NativeErrorResponse is the native dialect error body:
// {error, type, message, failed_scanners?}.
type NativeErrorResponse struct {
	Error          string          `json:"error"`
	Type           string          `json:"type,omitempty"`
	Message        string          `json:"message,omitempty"`
	FailedScanners []FailedScanner `json:"failed_scanners,omitempty"`
}

// NativeTerminalFrame is the single NDJSON line emitted when a streaming
// response is cut short by a violation. Field order matters to keep the
// frame readable next to ordinary chunks: done first, then the error.
type NativeTerminalFrame struct {
	Done           bool            `json:"done"`
	Error          string          `json:"error"`
	Type           string          `json:"type,omitempty"`
	FailedScanners []FailedScanner `json:"failed_scanners,omitempty"`
}
