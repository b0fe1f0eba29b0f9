package app

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/paddockhq/paddock/internal/adapter/translator"
	"github.com/paddockhq/paddock/internal/adapter/upstream"
	"github.com/paddockhq/paddock/internal/app/middleware"
	"github.com/paddockhq/paddock/internal/core/domain"
	"github.com/paddockhq/paddock/internal/core/ports"
)

// passthroughHandler relays model-management calls to the backend without
// scanning or admission. Streaming routes (pull/push/create emit NDJSON
// progress) are flushed per read so clients see progress as it happens.
func (a *Application) passthroughHandler(streaming bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := middleware.GetLogger(r.Context())
		start := time.Now()
		var status int
		var bytesOut int64
		defer func() {
			a.collector.RecordRequest("", domain.DialectNative, status, time.Since(start), bytesOut)
		}()

		handle, err := a.upstream.Forward(r.Context(), ports.UpstreamRequest{
			Method:    r.Method,
			Path:      r.URL.Path,
			RawQuery:  r.URL.RawQuery,
			Header:    upstream.PrepareProxyHeaders(r),
			Body:      r.Body,
			Streaming: streaming,
		})
		if err != nil {
			var kind string
			status, kind = upstream.Classify(err)
			friendly := upstream.MakeUserFriendlyError(err, time.Since(start), "passthrough", a.getConfig().Timeout.UpstreamResponse)
			translator.WriteError(w, domain.DialectNative, status, kind, friendly.Error(), nil)
			return
		}

		status = handle.StatusCode
		upstream.CopyResponseHeaders(w.Header(), handle.Header)
		w.WriteHeader(handle.StatusCode)

		flusher, _ := w.(http.Flusher)
		buf := make([]byte, 32*1024)
		for {
			n, readErr := handle.Body.Read(buf)
			if n > 0 {
				wn, writeErr := w.Write(buf[:n])
				bytesOut += int64(wn)
				if writeErr != nil {
					handle.Cancel()
					return
				}
				if streaming && flusher != nil {
					flusher.Flush()
				}
			}
			if readErr != nil {
				if !errors.Is(readErr, io.EOF) {
					log.Debug("passthrough relay ended early", "path", r.URL.Path, "error", readErr)
					handle.Cancel()
					return
				}
				_ = handle.Close()
				return
			}
		}
	}
}
