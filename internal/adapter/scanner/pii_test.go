package scanner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paddockhq/paddock/internal/config"
)

func TestPIIRedactor_RedactsInPlace(t *testing.T) {
	s, err := NewPIIRedactor(config.ScannerConfig{Name: ScannerPII})
	require.NoError(t, err)
	assert.False(t, s.Blocking(), "redaction mode never blocks")

	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "email",
			text: "contact jo.bloggs+test@example.com.au for details",
			want: "contact [EMAIL_REDACTED] for details",
		},
		{
			name: "ssn",
			text: "ssn on file is 123-45-6789 apparently",
			want: "ssn on file is [SSN_REDACTED] apparently",
		},
		{
			name: "credit card with spaces",
			text: "card 4111 1111 1111 1111 expires soon",
			want: "card [CARD_REDACTED] expires soon",
		},
		{
			name: "credit card with hyphens",
			text: "pay with 4012-8888-8888-1881 today",
			want: "pay with [CARD_REDACTED] today",
		},
		{
			name: "phone",
			text: "call +61 412 345 678 after lunch",
			want: "call [PHONE_REDACTED] after lunch",
		},
		{
			name: "clean text untouched",
			text: "nothing personal in here",
			want: "nothing personal in here",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := s.ScanText(context.Background(), tt.text)
			require.NoError(t, err)
			assert.True(t, out.Passed)
			assert.Equal(t, tt.want, out.Sanitized)
		})
	}
}

func TestPIIRedactor_RiskAccruesPerFinding(t *testing.T) {
	s, err := NewPIIRedactor(config.ScannerConfig{Name: ScannerPII})
	require.NoError(t, err)

	out, err := s.ScanText(context.Background(), "jo@example.com and kim@example.com")
	require.NoError(t, err)
	assert.True(t, out.Passed)
	assert.Equal(t, 0.5, out.Risk)
	assert.Equal(t, "[EMAIL_REDACTED] and [EMAIL_REDACTED]", out.Sanitized)

	out, err = s.ScanText(context.Background(),
		"a@x.io b@x.io c@x.io d@x.io e@x.io f@x.io")
	require.NoError(t, err)
	assert.Equal(t, 1.0, out.Risk, "risk caps at 1.0")
}

func TestPIIRedactor_LuhnRejectsNonCards(t *testing.T) {
	tests := []struct {
		name      string
		candidate string
		want      bool
	}{
		{"visa test number", "4111111111111111", true},
		{"visa with hyphens", "4012-8888-8888-1881", true},
		{"checksum off by one", "4111111111111112", false},
		{"too short", "411111111111", false},
		{"too long", "41111111111111111111", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, luhnValid(tt.candidate))
		})
	}
}

func TestPIIRedactor_InvalidCardNumberNotRedactedAsCard(t *testing.T) {
	s, err := NewPIIRedactor(config.ScannerConfig{Name: ScannerPII})
	require.NoError(t, err)

	out, err := s.ScanText(context.Background(), "order ref 4111111111111112 shipped")
	require.NoError(t, err)
	assert.NotContains(t, out.Sanitized, "[CARD_REDACTED]",
		"digit runs failing the Luhn check are not card numbers")
}

func TestPIIRedactor_DetectOnlyMode(t *testing.T) {
	redact := false
	s, err := NewPIIRedactor(config.ScannerConfig{
		Name:   ScannerPII,
		Redact: &redact,
	})
	require.NoError(t, err)
	assert.False(t, s.Blocking(), "detect-only without blocking just reports")

	out, err := s.ScanText(context.Background(), "reach me at jo@example.com")
	require.NoError(t, err)
	assert.True(t, out.Passed)
	assert.Equal(t, "reach me at jo@example.com", out.Sanitized, "text untouched with redaction off")
	assert.Equal(t, 0.25, out.Risk)
}

func TestPIIRedactor_BlockingMode(t *testing.T) {
	redact := false
	blocking := true
	s, err := NewPIIRedactor(config.ScannerConfig{
		Name:     ScannerPII,
		Redact:   &redact,
		Blocking: &blocking,
	})
	require.NoError(t, err)
	assert.True(t, s.Blocking())

	out, err := s.ScanText(context.Background(), "reach me at jo@example.com")
	require.NoError(t, err)
	assert.False(t, out.Passed)

	out, err = s.ScanText(context.Background(), "no identifiers here")
	require.NoError(t, err)
	assert.True(t, out.Passed)
}
