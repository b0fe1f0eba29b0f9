package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

type ScanSide string

const (
	ScanSideInput  ScanSide = "input"
	ScanSideOutput ScanSide = "output"
)

// Fingerprint identifies a (side, text) pair for cache lookups. The side is
// mixed into the digest so an input verdict can never satisfy an output
// lookup for the same text.
func Fingerprint(side ScanSide, text string) string {
	h := sha256.New()
	h.Write([]byte(side))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// ScanOutput is what a single scanner reports for one piece of text.
// Risk is informational only and never gates a verdict on its own.
type ScanOutput struct {
	Sanitized string
	Risk      float64
	Passed    bool
}

type InputScanner interface {
	Name() string
	Scan(ctx context.Context, prompt string) (ScanOutput, error)
}

type OutputScanner interface {
	Name() string
	Scan(ctx context.Context, prompt, output string) (ScanOutput, error)
}

type ScannerOutcome struct {
	Scanner    string  `json:"scanner"`
	Error      string  `json:"error,omitempty"`
	Risk       float64 `json:"risk"`
	DurationMs int64   `json:"duration_ms"`
	Passed     bool    `json:"passed"`
	Modified   bool    `json:"modified"`
}

// ScanResult is the pipeline verdict for one (side, text) pair. It is the
// unit stored in the scan cache, so it carries everything a later request
// needs to act on the verdict without re-running the scanners.
//
// Passed is the conjunction of every enabled scanner's outcome, so a scanner
// that raised counts as not passed. Callers that treat raise-only failures
// as soft (block_on_scanner_error=false) use ContentFailed/ErroredScanners
// to tell the cases apart.
type ScanResult struct {
	CreatedAt      time.Time        `json:"created_at"`
	Side           ScanSide         `json:"side"`
	Sanitized      string           `json:"sanitized_text"`
	FailedScanners []string         `json:"failed_scanners,omitempty"`
	Outcomes       []ScannerOutcome `json:"outcomes,omitempty"`
	ScannersRun    int              `json:"scanners_run"`
	Passed         bool             `json:"passed"`
}

func (r *ScanResult) Blocked() bool {
	return r != nil && !r.Passed
}

// ContentFailed reports whether any scanner rejected the text itself, as
// opposed to failing by raising.
func (r *ScanResult) ContentFailed() bool {
	if r == nil {
		return false
	}
	for _, outcome := range r.Outcomes {
		if !outcome.Passed && outcome.Error == "" {
			return true
		}
	}
	return false
}

// ErroredScanners returns the scanners that raised. A verdict carrying
// errors is transient and must not be cached.
func (r *ScanResult) ErroredScanners() []string {
	if r == nil {
		return nil
	}
	var errored []string
	for _, outcome := range r.Outcomes {
		if outcome.Error != "" {
			errored = append(errored, outcome.Scanner)
		}
	}
	return errored
}
