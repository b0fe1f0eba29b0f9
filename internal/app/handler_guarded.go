package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/paddockhq/paddock/internal/adapter/guard"
	"github.com/paddockhq/paddock/internal/adapter/translator"
	"github.com/paddockhq/paddock/internal/adapter/upstream"
	"github.com/paddockhq/paddock/internal/app/middleware"
	"github.com/paddockhq/paddock/internal/core/constants"
	"github.com/paddockhq/paddock/internal/core/domain"
	"github.com/paddockhq/paddock/internal/core/ports"
)

// statusClientClosed is nginx's non-standard 499, used only in stats and
// logs for requests whose client vanished before we could answer.
const statusClientClosed = 499

// serveGuarded is the shared generation flow: input verdict, admission,
// upstream call, relay under the output guard. Both dialects and all three
// request kinds route through here; greq carries everything dialect-specific.
func (a *Application) serveGuarded(w http.ResponseWriter, r *http.Request, greq *translator.GuardedRequest) {
	ctx := r.Context()
	start := time.Now()
	rlog := middleware.GetLogger(ctx)

	status := http.StatusOK
	var bytesOut int64
	defer func() {
		a.collector.RecordRequest(greq.Model, greq.Dialect, status, time.Since(start), bytesOut)
	}()

	verdict, hit, err := a.guard.ScanInput(ctx, greq)
	if err != nil {
		if ctx.Err() != nil {
			status = statusClientClosed
			return
		}
		// The guard absorbs cache trouble with an uncached scan, so
		// anything surfacing here is unexpected. Log it and keep serving.
		rlog.Warn("Input scan did not complete, continuing unscanned", "error", err, "model", greq.Model)
	}
	if verdict != nil {
		cacheState := "miss"
		if hit {
			cacheState = "hit"
		}
		w.Header().Set(constants.HeaderCacheState, cacheState)
	}
	if a.guard.Blocks(verdict) {
		status = http.StatusUnavailableForLegalReasons
		translator.WriteError(w, greq.Dialect, status, domain.ErrKindInputBlocked,
			"prompt blocked by content policy", domain.FailedScannersFrom(verdict))
		rlog.Info("Request blocked by input scan",
			"model", greq.Model, "kind", greq.Kind, "failed_scanners", verdict.FailedScanners)
		return
	}

	// Embeddings bypass admission: they are cheap relative to generation
	// and starving them behind chat traffic buys nothing.
	if greq.Kind != domain.KindEmbed {
		ticket, acquireErr := a.admission.Acquire(ctx, greq.Model)
		switch {
		case errors.Is(acquireErr, domain.ErrQueueFull), errors.Is(acquireErr, domain.ErrAdmissionClosed):
			status = http.StatusServiceUnavailable
			w.Header().Set(constants.HeaderRetryAfter, strconv.Itoa(a.retryAfterSeconds(greq.Model)))
			translator.WriteError(w, greq.Dialect, status, domain.ErrKindQueueFull,
				"model is at capacity, retry later", nil)
			rlog.Info("Request rejected, queue full", "model", greq.Model)
			return
		case acquireErr != nil:
			// Client gave up while parked in the queue.
			status = statusClientClosed
			return
		}
		defer ticket.Release()
	}

	handle, err := a.upstream.Forward(ctx, ports.UpstreamRequest{
		Method:    http.MethodPost,
		Path:      greq.Kind.UpstreamPath(),
		Header:    upstream.PrepareProxyHeaders(r),
		Body:      bytes.NewReader(greq.NativeBody),
		Streaming: greq.Streaming,
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			status = statusClientClosed
			return
		}
		var kind string
		status, kind = upstream.Classify(err)
		friendly := upstream.MakeUserFriendlyError(err, time.Since(start), "forward", a.getConfig().Timeout.UpstreamResponse)
		rlog.Warn("Upstream call failed", "model", greq.Model, "error", friendly)
		translator.WriteError(w, greq.Dialect, status, kind, friendly.Error(), nil)
		return
	}

	if handle.StatusCode >= http.StatusBadRequest {
		status = handle.StatusCode
		bytesOut = a.forwardUpstreamError(w, handle)
		rlog.Warn("Upstream rejected request", "model", greq.Model, "status", status)
		return
	}

	var res *guard.RelayResult
	if greq.Streaming && greq.Kind != domain.KindEmbed {
		res = a.guard.RelayStream(ctx, w, handle, greq)
	} else {
		res = a.guard.RelayBuffered(ctx, w, handle, greq)
	}

	bytesOut = res.Bytes
	status = relayStatus(greq, res)
	logRelayOutcome(rlog, greq, res, time.Since(start))
}

// relayStatus derives the status for bookkeeping. Streamed responses
// committed 200 when the headers went out, whatever happened afterwards;
// buffered outcomes map onto their canonical codes.
func relayStatus(greq *translator.GuardedRequest, res *guard.RelayResult) int {
	if greq.Streaming && greq.Kind != domain.KindEmbed {
		return http.StatusOK
	}
	switch {
	case res.Blocked:
		return http.StatusUnavailableForLegalReasons
	case res.TimedOut:
		return http.StatusGatewayTimeout
	case res.ReadFailed:
		return http.StatusBadGateway
	case res.Disconnected:
		return statusClientClosed
	default:
		return http.StatusOK
	}
}

func logRelayOutcome(rlog *slog.Logger, greq *translator.GuardedRequest, res *guard.RelayResult, elapsed time.Duration) {
	fields := []any{
		"model", greq.Model,
		"kind", greq.Kind,
		"dialect", greq.Dialect,
		"streaming", greq.Streaming,
		"bytes", res.Bytes,
		"chunks", res.Chunks,
		"duration_ms", elapsed.Milliseconds(),
	}
	switch {
	case res.Blocked:
		rlog.Info("Response blocked by output scan", append(fields, "failed_scanners", res.Verdict.FailedScanners)...)
	case res.Completed():
		rlog.Info("Request completed", fields...)
	default:
		rlog.Info("Request did not complete", append(fields, "error_kind", res.ErrKind)...)
	}
}

// forwardUpstreamError relays a >=400 upstream response untouched; the
// backend's error shape is already in the client's native dialect.
func (a *Application) forwardUpstreamError(w http.ResponseWriter, handle *ports.ResponseHandle) int64 {
	upstream.CopyResponseHeaders(w.Header(), handle.Header)
	w.WriteHeader(handle.StatusCode)
	n, err := io.Copy(w, handle.Body)
	if err != nil {
		handle.Cancel()
		return n
	}
	_ = handle.Close()
	return n
}

// retryAfterSeconds sizes the Retry-After hint from the model's average
// processing time, clamped to [1, 30] seconds.
func (a *Application) retryAfterSeconds(model string) int {
	for _, row := range a.admission.Snapshot() {
		if row.Model != model {
			continue
		}
		seconds := int(row.AvgProcessMs / 1000)
		if seconds < 1 {
			return 1
		}
		if seconds > 30 {
			return 30
		}
		return seconds
	}
	return 1
}
