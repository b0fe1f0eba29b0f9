package scanner

import (
	"context"
	"fmt"
	"regexp"

	"github.com/paddockhq/paddock/internal/config"
	"github.com/paddockhq/paddock/internal/core/domain"
)

// Compiled once at package load; the set is small and shared by both sides.
var secretPatterns = []*regexp.Regexp{
	// AWS access key IDs
	regexp.MustCompile(`\b(?:AKIA|ASIA)[0-9A-Z]{16}\b`),
	// GitHub tokens (classic and fine-grained prefixes)
	regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`),
	// OpenAI-style keys
	regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{20,}\b`),
	// PEM private key headers
	regexp.MustCompile(`-----BEGIN (?:RSA |EC |OPENSSH |DSA )?PRIVATE KEY-----`),
	// Bearer tokens of credential length
	regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9\-._~+/]{25,}=*`),
	// key=value style assignments to secret-ish names
	regexp.MustCompile(`(?i)\b(?:api[_-]?key|secret[_-]?key|access[_-]?token)["'\s:=]+[A-Za-z0-9_\-]{16,}`),
}

// Secrets rejects text carrying credential material. Prompts holding live
// keys should never reach a model; outputs holding them should never reach
// a client.
type Secrets struct {
	patterns []*regexp.Regexp
	blocking bool
}

func NewSecrets(cfg config.ScannerConfig) (*Secrets, error) {
	s := &Secrets{
		patterns: secretPatterns,
		blocking: cfg.IsBlocking(true),
	}

	// Operator patterns extend the builtin set. Copy so the two pipeline
	// sides never share a backing array.
	if len(cfg.Patterns) > 0 {
		patterns := make([]*regexp.Regexp, 0, len(secretPatterns)+len(cfg.Patterns))
		patterns = append(patterns, secretPatterns...)
		for _, pattern := range cfg.Patterns {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("secrets pattern %q: %w", pattern, err)
			}
			patterns = append(patterns, re)
		}
		s.patterns = patterns
	}

	return s, nil
}

func (s *Secrets) Name() string { return ScannerSecrets }

func (s *Secrets) Blocking() bool { return s.blocking }

func (s *Secrets) ScanText(_ context.Context, text string) (domain.ScanOutput, error) {
	for _, re := range s.patterns {
		if re.MatchString(text) {
			return domain.ScanOutput{
				Sanitized: text,
				Risk:      1.0,
				Passed:    !s.blocking,
			}, nil
		}
	}
	return domain.ScanOutput{Sanitized: text, Passed: true}, nil
}
