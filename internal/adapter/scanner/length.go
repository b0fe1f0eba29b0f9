package scanner

import (
	"context"
	"unicode/utf8"

	"github.com/paddockhq/paddock/internal/config"
	"github.com/paddockhq/paddock/internal/core/domain"
)

// DefaultMaxChars bounds text at 32k characters, comfortably above normal
// prompts while stopping paste-bomb inputs from monopolising scanners.
const DefaultMaxChars = 32 * 1024

// LengthLimit rejects text over a character budget. Counted in runes so
// multi-byte scripts are not penalised.
type LengthLimit struct {
	maxChars int
	blocking bool
}

func NewLengthLimit(cfg config.ScannerConfig) (*LengthLimit, error) {
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &LengthLimit{
		maxChars: maxChars,
		blocking: cfg.IsBlocking(true),
	}, nil
}

func (s *LengthLimit) Name() string { return ScannerLength }

func (s *LengthLimit) Blocking() bool { return s.blocking }

func (s *LengthLimit) ScanText(_ context.Context, text string) (domain.ScanOutput, error) {
	count := utf8.RuneCountInString(text)
	if count <= s.maxChars {
		return domain.ScanOutput{Sanitized: text, Passed: true}, nil
	}

	risk := float64(count-s.maxChars) / float64(s.maxChars)
	if risk > 1.0 {
		risk = 1.0
	}

	return domain.ScanOutput{
		Sanitized: text,
		Risk:      risk,
		Passed:    !s.blocking,
	}, nil
}
