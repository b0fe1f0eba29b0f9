package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrQueueFull is returned by the admission controller when a model's
	// wait queue has no room left.
	ErrQueueFull = errors.New("admission queue full")

	// ErrAdmissionClosed is returned when the controller is shutting down.
	ErrAdmissionClosed = errors.New("admission controller closed")

	// ErrCacheMiss signals an absent fingerprint inside the cache tiers. It
	// never crosses the ScanCache port; callers see (nil, false).
	ErrCacheMiss = errors.New("cache miss")

	// ErrRemoteDisabled is returned by remote-tier operations when the
	// backend is local-only.
	ErrRemoteDisabled = errors.New("remote cache disabled")
)

type UpstreamError struct {
	Err        error
	Operation  string
	URL        string
	StatusCode int
	Latency    time.Duration
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("upstream %s failed for %s: HTTP %d after %v: %v",
			e.Operation, e.URL, e.StatusCode, e.Latency, e.Err)
	}
	return fmt.Sprintf("upstream %s failed for %s: %v after %v",
		e.Operation, e.URL, e.Err, e.Latency)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

type GuardError struct {
	Err           error
	RequestID     string
	Model         string
	Dialect       Dialect
	BytesStreamed int64
	Latency       time.Duration
}

func (e *GuardError) Error() string {
	return fmt.Sprintf("guard pipeline failed [%s] model %s (%s): %v after %v (%d bytes streamed)",
		e.RequestID, e.Model, e.Dialect, e.Err, e.Latency, e.BytesStreamed)
}

func (e *GuardError) Unwrap() error {
	return e.Err
}

type ScanError struct {
	Err     error
	Scanner string
	Side    ScanSide
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scanner %s (%s) failed: %v", e.Scanner, e.Side, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

type ConfigValidationError struct {
	Value  interface{}
	Field  string
	Reason string
}

func (e *ConfigValidationError) Error() string {
	return fmt.Sprintf("invalid configuration for %s=%v: %s", e.Field, e.Value, e.Reason)
}

func NewUpstreamError(operation, url string, statusCode int, latency time.Duration, err error) *UpstreamError {
	return &UpstreamError{
		Operation:  operation,
		URL:        url,
		StatusCode: statusCode,
		Latency:    latency,
		Err:        err,
	}
}

func NewGuardError(requestID, model string, dialect Dialect, bytesStreamed int64, latency time.Duration, err error) *GuardError {
	return &GuardError{
		RequestID:     requestID,
		Model:         model,
		Dialect:       dialect,
		BytesStreamed: bytesStreamed,
		Latency:       latency,
		Err:           err,
	}
}

func NewScanError(scanner string, side ScanSide, err error) *ScanError {
	return &ScanError{
		Scanner: scanner,
		Side:    side,
		Err:     err,
	}
}
