package scanner

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/paddockhq/paddock/internal/config"
	"github.com/paddockhq/paddock/internal/core/domain"
)

// regexPatternPrefix marks a denylist pattern as a regular expression;
// everything else is a case-insensitive substring.
const regexPatternPrefix = "re:"

// Denylist rejects text containing any configured pattern. It ships with no
// default patterns: what counts as banned content is operator policy, so an
// unconfigured denylist passes everything.
type Denylist struct {
	substrings []string
	regexps    []*regexp.Regexp
	blocking   bool
}

func NewDenylist(cfg config.ScannerConfig) (*Denylist, error) {
	s := &Denylist{
		blocking: cfg.IsBlocking(true),
	}

	for _, pattern := range cfg.Patterns {
		if raw, ok := strings.CutPrefix(pattern, regexPatternPrefix); ok {
			re, err := regexp.Compile(raw)
			if err != nil {
				return nil, fmt.Errorf("denylist pattern %q: %w", pattern, err)
			}
			s.regexps = append(s.regexps, re)
			continue
		}
		s.substrings = append(s.substrings, strings.ToLower(pattern))
	}

	return s, nil
}

func (s *Denylist) Name() string { return ScannerDenylist }

func (s *Denylist) Blocking() bool { return s.blocking }

func (s *Denylist) ScanText(_ context.Context, text string) (domain.ScanOutput, error) {
	matched := false

	if len(s.substrings) > 0 {
		lowered := strings.ToLower(text)
		for _, substring := range s.substrings {
			if strings.Contains(lowered, substring) {
				matched = true
				break
			}
		}
	}

	if !matched {
		for _, re := range s.regexps {
			if re.MatchString(text) {
				matched = true
				break
			}
		}
	}

	if !matched {
		return domain.ScanOutput{Sanitized: text, Passed: true}, nil
	}

	return domain.ScanOutput{
		Sanitized: text,
		Risk:      1.0,
		Passed:    !s.blocking,
	}, nil
}
