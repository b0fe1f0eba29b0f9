package domain

import "time"

// GuardEventType marks the lifecycle stage a guard event reports.
type GuardEventType string

const (
	// GuardEventStarted fires once a request has passed admission and the
	// upstream call is underway.
	GuardEventStarted GuardEventType = "started"
	// GuardEventCompleted fires when a response reached the client intact.
	GuardEventCompleted GuardEventType = "completed"
	// GuardEventViolation fires when a scanner verdict cut the request or
	// response short.
	GuardEventViolation GuardEventType = "violation"
	// GuardEventFailed fires for infrastructure failures: upstream errors,
	// timeouts, client disconnects.
	GuardEventFailed GuardEventType = "failed"
	// GuardEventScan fires once per actual pipeline execution. Cache hits
	// and coalesced duplicates do not fire it.
	GuardEventScan GuardEventType = "scan"
)

// GuardEvent is the per-request bookkeeping record published on the event
// bus. The stats collector aggregates these off the request's hot path, so
// the event carries everything a counter or histogram might want and the
// publisher never waits on a subscriber.
type GuardEvent struct {
	At            time.Time
	Type          GuardEventType
	Model         string
	Kind          RequestKind
	Dialect       Dialect
	Side          ScanSide // violations and scans: which pipeline ran
	Scanners      []string // violations: scanners that failed
	ErrKind       string   // failures: wire error kind
	Duration      time.Duration
	Bytes         int64 // response bytes relayed to the client
	Chunks        int   // stream chunks relayed
	Streaming     bool
	Allowed       bool // scans: the pipeline verdict passed
	ScannerErrors int  // scans: scanners that errored this run
}
