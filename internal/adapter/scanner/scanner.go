// Package scanner holds the content scanners and the pipelines that run
// them. Builtins are pattern-based and cheap; the lazy init policy exists
// for scanners that load heavier resources.
package scanner

import (
	"context"
	"fmt"

	"github.com/paddockhq/paddock/internal/config"
	"github.com/paddockhq/paddock/internal/core/domain"
)

const (
	ScannerDenylist = "denylist"
	ScannerPII      = "pii"
	ScannerSecrets  = "secrets"
	ScannerLength   = "length"
)

// TextScanner is the unit builtins implement: one piece of text in, one
// verdict out. Side adapters lift it onto the domain scanner interfaces.
type TextScanner interface {
	Name() string

	// Blocking reports whether this scanner's findings reject text, as
	// configured. Surfaced on /config so operators can see monitor-mode
	// scanners at a glance.
	Blocking() bool

	ScanText(ctx context.Context, text string) (domain.ScanOutput, error)
}

// Factory builds one scanner from its config block.
type Factory func(cfg config.ScannerConfig) (TextScanner, error)

func builtinFactory(name string) (Factory, error) {
	switch name {
	case ScannerDenylist:
		return func(cfg config.ScannerConfig) (TextScanner, error) { return NewDenylist(cfg) }, nil
	case ScannerPII:
		return func(cfg config.ScannerConfig) (TextScanner, error) { return NewPIIRedactor(cfg) }, nil
	case ScannerSecrets:
		return func(cfg config.ScannerConfig) (TextScanner, error) { return NewSecrets(cfg) }, nil
	case ScannerLength:
		return func(cfg config.ScannerConfig) (TextScanner, error) { return NewLengthLimit(cfg) }, nil
	default:
		return nil, fmt.Errorf("unknown scanner %q", name)
	}
}

// inputTextScanner lifts a TextScanner onto the input side: the prompt is
// the text under scan.
type inputTextScanner struct {
	ts TextScanner
}

func (a inputTextScanner) Name() string { return a.ts.Name() }

func (a inputTextScanner) Scan(ctx context.Context, prompt string) (domain.ScanOutput, error) {
	return a.ts.ScanText(ctx, prompt)
}

// outputTextScanner lifts a TextScanner onto the output side. The prompt is
// available as context but the builtins only judge the generated text.
type outputTextScanner struct {
	ts TextScanner
}

func (a outputTextScanner) Name() string { return a.ts.Name() }

func (a outputTextScanner) Scan(ctx context.Context, _ string, output string) (domain.ScanOutput, error) {
	return a.ts.ScanText(ctx, output)
}

var (
	_ domain.InputScanner  = inputTextScanner{}
	_ domain.OutputScanner = outputTextScanner{}
)
