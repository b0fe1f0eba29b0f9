// Package middleware carries the request-scoped HTTP plumbing that sits
// between the security chain and the handlers: request IDs, request/response
// logging and the response writer wrapper both rely on.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/paddockhq/paddock/internal/core/constants"
	"github.com/paddockhq/paddock/internal/logger"
	"github.com/paddockhq/paddock/internal/util"
	"github.com/paddockhq/paddock/pkg/format"
)

// Context keys for request ID and logger
type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	LoggerKey    contextKey = "logger"
)

// IsGuardedPath reports whether a path belongs to the client-facing surface
// (native /api/* and OpenAI /v1/*). Guarded requests log their own outcome
// line, so the middleware drops to debug for them to avoid double logging.
func IsGuardedPath(path string) bool {
	return strings.HasPrefix(path, "/api/") || strings.HasPrefix(path, "/v1/")
}

// responseWriter wraps http.ResponseWriter to capture response size and status
type responseWriter struct {
	http.ResponseWriter
	status int
	size   int64
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.size += int64(size)
	return size, err
}

func (rw *responseWriter) WriteHeader(s int) {
	rw.status = s
	rw.ResponseWriter.WriteHeader(s)
}

// Flush implements http.Flusher. Streaming responses flush per chunk; if the
// wrapper swallowed it, buffered chunks would arrive in bursts.
func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// GetLogger retrieves a logger with request ID from context
func GetLogger(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// RequestLoggingMiddleware stamps every request with an ID, propagates a
// request-scoped logger through the context, and logs start/completion.
func RequestLoggingMiddleware(styledLogger logger.StyledLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Honour an inbound ID so multi-hop setups can correlate.
			requestID := r.Header.Get(constants.HeaderRequestID)
			if requestID == "" {
				requestID = util.GenerateRequestID()
			}

			requestSize := r.ContentLength
			if requestSize < 0 {
				requestSize = 0
			}

			ctx := context.WithValue(r.Context(), RequestIDKey, requestID)

			baseLogger := slog.Default().With(constants.ContextRequestIdKey, requestID)
			ctx = context.WithValue(ctx, LoggerKey, baseLogger)

			w.Header().Set(constants.HeaderRequestID, requestID)

			wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			logFields := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
				"user_agent", r.UserAgent(),
				"request_bytes", requestSize,
			}

			if IsGuardedPath(r.URL.Path) {
				baseLogger.Debug("HTTP request started", logFields...)
			} else {
				baseLogger.Info("Request started", logFields...)
			}

			next.ServeHTTP(wrapped, r.WithContext(ctx))

			duration := time.Since(start)

			completionFields := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.status,
				"duration_ms", duration.Milliseconds(),
				"request_bytes", requestSize,
				"response_bytes", wrapped.size,
				"size_flow", fmt.Sprintf("%s -> %s", format.Bytes(uint64(requestSize)), format.Bytes(uint64(wrapped.size))),
			}

			if IsGuardedPath(r.URL.Path) {
				baseLogger.Debug("HTTP request completed", completionFields...)
			} else {
				baseLogger.Info("Request completed", completionFields...)
			}
		})
	}
}
