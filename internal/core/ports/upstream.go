package ports

import (
	"context"
	"io"
	"net/http"
	"sync/atomic"
)

// UpstreamRequest describes one call to the backend. Path and RawQuery are
// appended to the client's base URL; Streaming exempts the call from the
// total-body timeout.
type UpstreamRequest struct {
	Body      io.Reader
	Header    http.Header
	Method    string
	Path      string
	RawQuery  string
	Streaming bool
}

// UpstreamClient is the process-wide pooled client for the backend. Upstream
// HTTP errors come back as status codes on the handle, not as errors; only
// transport failures return an error.
type UpstreamClient interface {
	Forward(ctx context.Context, req UpstreamRequest) (*ResponseHandle, error)
	BaseURL() string
	Close()
}

// ResponseHandle wraps an in-flight upstream response. Exactly one of
// {read-to-end + Close, Cancel} must happen per handle; Cancel aborts the
// transfer immediately and is safe to call more than once.
type ResponseHandle struct {
	Body       io.ReadCloser
	Header     http.Header
	StatusCode int

	cancel    context.CancelFunc
	cancelled atomic.Bool
}

func NewResponseHandle(statusCode int, header http.Header, body io.ReadCloser, cancel context.CancelFunc) *ResponseHandle {
	return &ResponseHandle{
		StatusCode: statusCode,
		Header:     header,
		Body:       body,
		cancel:     cancel,
	}
}

// Cancel aborts the upstream transfer. It reports false when the handle was
// already cancelled so callers can log double-closes at debug level.
func (h *ResponseHandle) Cancel() bool {
	if !h.cancelled.CompareAndSwap(false, true) {
		return false
	}
	if h.cancel != nil {
		h.cancel()
	}
	if h.Body != nil {
		_ = h.Body.Close()
	}
	return true
}

func (h *ResponseHandle) Cancelled() bool {
	return h.cancelled.Load()
}

// Close releases the handle on the normal completion path. Callers should
// have read the body to EOF first so the connection returns to the pool.
func (h *ResponseHandle) Close() error {
	if h.cancelled.Load() {
		return nil
	}
	if h.cancel != nil {
		defer h.cancel()
	}
	if h.Body != nil {
		return h.Body.Close()
	}
	return nil
}
