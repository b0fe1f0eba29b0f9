package scanner

import (
	"context"
	"regexp"
	"strings"

	"github.com/paddockhq/paddock/internal/config"
	"github.com/paddockhq/paddock/internal/core/domain"
)

// Replacement order matters: SSNs and card numbers would otherwise be
// re-matched by the looser phone pattern.
var piiRules = []struct {
	name        string
	pattern     *regexp.Regexp
	replacement string
	validate    func(match string) bool
}{
	{
		name:        "email",
		pattern:     regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
		replacement: "[EMAIL_REDACTED]",
	},
	{
		name:        "ssn",
		pattern:     regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		replacement: "[SSN_REDACTED]",
	},
	{
		name:        "credit_card",
		pattern:     regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`),
		replacement: "[CARD_REDACTED]",
		validate:    luhnValid,
	},
	{
		name:        "phone",
		pattern:     regexp.MustCompile(`\+?\d[\d\s().-]{7,14}\d`),
		replacement: "[PHONE_REDACTED]",
	},
}

// PIIRedactor finds personal identifiers. In redact mode (the default) it
// rewrites them in place and passes; with redaction off it either blocks on
// findings or reports them as risk only, per the blocking flag.
type PIIRedactor struct {
	redact   bool
	blocking bool
}

func NewPIIRedactor(cfg config.ScannerConfig) (*PIIRedactor, error) {
	return &PIIRedactor{
		redact:   cfg.ShouldRedact(true),
		blocking: cfg.IsBlocking(false),
	}, nil
}

func (s *PIIRedactor) Name() string { return ScannerPII }

func (s *PIIRedactor) Blocking() bool { return s.blocking && !s.redact }

func (s *PIIRedactor) ScanText(_ context.Context, text string) (domain.ScanOutput, error) {
	found := 0
	sanitized := text

	for _, rule := range piiRules {
		matches := rule.pattern.FindAllString(sanitized, -1)
		if len(matches) == 0 {
			continue
		}

		for _, match := range matches {
			if rule.validate != nil && !rule.validate(match) {
				continue
			}
			found++
			if s.redact {
				sanitized = strings.Replace(sanitized, match, rule.replacement, 1)
			}
		}
	}

	if found == 0 {
		return domain.ScanOutput{Sanitized: text, Passed: true}, nil
	}

	risk := 0.25 * float64(found)
	if risk > 1.0 {
		risk = 1.0
	}

	return domain.ScanOutput{
		Sanitized: sanitized,
		Risk:      risk,
		Passed:    s.redact || !s.blocking,
	}, nil
}

// luhnValid keeps the card pattern honest: plenty of 13-19 digit runs are
// order numbers, not cards.
func luhnValid(candidate string) bool {
	digits := make([]int, 0, len(candidate))
	for _, r := range candidate {
		if r >= '0' && r <= '9' {
			digits = append(digits, int(r-'0'))
		}
	}
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}

	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
