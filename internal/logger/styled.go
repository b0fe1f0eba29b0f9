package logger

import (
	"log/slog"

	"github.com/paddockhq/paddock/internal/core/domain"
	"github.com/paddockhq/paddock/internal/util"
	"github.com/paddockhq/paddock/theme"
)

// StyledLogger wraps slog.Logger with theme-aware formatting. The pretty
// implementation styles terminal output; the plain one is for tests and
// non-TTY environments.
type StyledLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	InfoWithCount(msg string, count int, args ...any)
	InfoWithEndpoint(msg string, endpoint string, args ...any)
	InfoWithNumbers(msg string, numbers ...int64)
	WarnWithEndpoint(msg string, endpoint string, args ...any)
	ErrorWithEndpoint(msg string, endpoint string, args ...any)

	// InfoScanVerdict logs a scanner verdict with pass/block styling.
	InfoScanVerdict(msg string, scanner string, passed bool, args ...any)
	// InfoUpstreamStatus logs a backend health transition.
	InfoUpstreamStatus(msg string, name string, status domain.UpstreamStatus, args ...any)
	InfoConfigChange(filename string)

	InfoWithContext(msg string, endpoint string, ctx LogContext)
	WarnWithContext(msg string, endpoint string, ctx LogContext)
	ErrorWithContext(msg string, endpoint string, ctx LogContext)

	GetUnderlying() *slog.Logger
	WithRequestID(requestID string) StyledLogger
	WithAttrs(attrs ...slog.Attr) StyledLogger
	With(args ...any) StyledLogger
}

// NewStyledLogger picks the pretty implementation when the terminal supports
// colours, otherwise the plain one.
func NewStyledLogger(logger *slog.Logger, appTheme *theme.Theme) StyledLogger {
	if appTheme != nil && util.ShouldUseColors() {
		return NewPrettyStyledLogger(logger, appTheme)
	}
	return NewPlainStyledLogger(logger)
}

func NewWithTheme(cfg *Config) (*slog.Logger, StyledLogger, func(), error) {
	logger, cleanup, err := New(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	appTheme := theme.GetTheme(cfg.Theme)
	styledLogger := NewStyledLogger(logger, appTheme)

	return logger, styledLogger, cleanup, nil
}

/**
 * LogContext provides a structured way to separate user-facing and detailed logging context.
 * This allows for cleaner terminal output while still capturing all necessary details in the log file.
 * That way, we get a clean TUI output with user-friendly messages, and detailed logs for debugging.
 */

// LogContext separates user-facing from detailed logging context
type LogContext struct {
	UserArgs     []interface{}
	DetailedArgs []interface{}
}

func toInterfaceSlice(strs []string) []interface{} {
	result := make([]interface{}, len(strs))
	for i, s := range strs {
		result[i] = s
	}
	return result
}
