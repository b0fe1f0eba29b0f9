package guard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/paddockhq/paddock/internal/adapter/translator"
	"github.com/paddockhq/paddock/internal/core/constants"
	"github.com/paddockhq/paddock/internal/core/domain"
	"github.com/paddockhq/paddock/internal/core/ports"
)

// RelayBuffered reads the whole upstream response, runs the output verdict,
// and answers in the client's dialect. The upstream connection is released
// before the verdict, so a blocked response never holds backend compute.
// Embeddings skip the output scan; there is no text in a vector.
func (g *Guard) RelayBuffered(ctx context.Context, w http.ResponseWriter, handle *ports.ResponseHandle, req *translator.GuardedRequest) *RelayResult {
	start := time.Now()
	res := &RelayResult{}

	g.Publish(domain.GuardEvent{
		Type:    domain.GuardEventStarted,
		Model:   req.Model,
		Kind:    req.Kind,
		Dialect: req.Dialect,
	})

	body, err := io.ReadAll(handle.Body)
	if err != nil {
		g.cancelUpstream(handle, "buffered read failure")
		g.bufferedReadError(ctx, w, req, res, err)
		g.publishOutcome(req, res, time.Since(start), false)
		return res
	}
	_ = handle.Close()

	text, doneReason, parsed, parseErr := parseBuffered(req.Kind, body)
	if parseErr != nil {
		// Native passthrough can still forward whatever upstream sent;
		// the OpenAI dialect has nothing left to translate.
		g.logger.Warn("Upstream response did not parse", "error", parseErr, "kind", req.Kind, "model", req.Model)
		if req.Dialect == domain.DialectOpenAI {
			translator.WriteError(w, req.Dialect, http.StatusBadGateway, domain.ErrKindUpstreamUnavailable, "invalid upstream response", nil)
			res.ReadFailed = true
			res.ErrKind = domain.ErrKindUpstreamUnavailable
			g.publishOutcome(req, res, time.Since(start), false)
			return res
		}
		parsed = nil
	}
	res.Output = text
	res.DoneReason = doneReason

	if req.Kind != domain.KindEmbed && text != "" {
		verdict, scanErr := g.ScanOutput(ctx, req.ScanText, text)
		if scanErr != nil {
			g.logger.Warn("Output scan failed", "error", scanErr, "model", req.Model)
		} else if g.Blocks(verdict) {
			translator.WriteError(w, req.Dialect, http.StatusUnavailableForLegalReasons, domain.ErrKindOutputBlocked,
				"response blocked by content policy", domain.FailedScannersFrom(verdict))
			res.Blocked = true
			res.Verdict = verdict
			res.ErrKind = domain.ErrKindOutputBlocked
			g.publishOutcome(req, res, time.Since(start), false)
			return res
		}
	}

	written, writeErr := g.writeBuffered(w, handle, req, parsed, body)
	res.Bytes = written
	if writeErr != nil {
		g.logger.Debug("Response write failed", "error", writeErr, "model", req.Model)
		res.Disconnected = true
		res.ErrKind = errKindClientDisconnect
	}
	g.publishOutcome(req, res, time.Since(start), false)
	return res
}

// bufferedReadError classifies a failed body read and answers when the
// client can still hear us.
func (g *Guard) bufferedReadError(ctx context.Context, w http.ResponseWriter, req *translator.GuardedRequest, res *RelayResult, err error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		g.logger.Warn("Upstream response timed out", "model", req.Model, "error", err)
		translator.WriteError(w, req.Dialect, http.StatusGatewayTimeout, domain.ErrKindUpstreamTimeout, "upstream response timed out", nil)
		res.TimedOut = true
		res.ErrKind = domain.ErrKindUpstreamTimeout
	case ctx.Err() != nil:
		g.logger.Debug("Client disconnected during upstream read", "model", req.Model)
		res.Disconnected = true
		res.ErrKind = errKindClientDisconnect
	default:
		g.logger.Warn("Upstream read failed", "model", req.Model, "error", err)
		translator.WriteError(w, req.Dialect, http.StatusBadGateway, domain.ErrKindUpstreamUnavailable, "failed to read upstream response", nil)
		res.ReadFailed = true
		res.ErrKind = domain.ErrKindUpstreamUnavailable
	}
}

// parseBuffered decodes a complete upstream body for one call kind,
// returning the scannable text and the typed payload for translation.
func parseBuffered(kind domain.RequestKind, body []byte) (text, doneReason string, parsed any, err error) {
	switch kind {
	case domain.KindChat:
		var resp domain.ChatResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", "", nil, fmt.Errorf("invalid chat response: %w", err)
		}
		return resp.Message.Content, resp.DoneReason, &resp, nil
	case domain.KindGenerate:
		var resp domain.GenerateResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", "", nil, fmt.Errorf("invalid generate response: %w", err)
		}
		return resp.Response, resp.DoneReason, &resp, nil
	case domain.KindEmbed:
		var resp domain.EmbedResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", "", nil, fmt.Errorf("invalid embed response: %w", err)
		}
		return "", "", &resp, nil
	default:
		return "", "", nil, fmt.Errorf("unknown request kind %q", kind)
	}
}

// writeBuffered answers a passed verdict. Native clients get upstream's
// bytes untouched; OpenAI clients get the translated payload.
func (g *Guard) writeBuffered(w http.ResponseWriter, handle *ports.ResponseHandle, req *translator.GuardedRequest, parsed any, body []byte) (int64, error) {
	if req.Dialect == domain.DialectNative {
		contentType := handle.Header.Get(constants.ContentTypeHeader)
		if contentType == "" {
			contentType = constants.ContentTypeJSON
		}
		w.Header().Set(constants.ContentTypeHeader, contentType)
		w.WriteHeader(handle.StatusCode)
		n, err := w.Write(body)
		return int64(n), err
	}

	var payload any
	switch resp := parsed.(type) {
	case *domain.ChatResponse:
		payload = g.translate.ChatCompletionFrom(resp)
	case *domain.GenerateResponse:
		payload = g.translate.CompletionFrom(resp)
	case *domain.EmbedResponse:
		payload = g.translate.EmbeddingsFrom(resp)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to encode response: %w", err)
	}
	w.Header().Set(constants.ContentTypeHeader, constants.ContentTypeJSON)
	w.WriteHeader(http.StatusOK)
	n, err := w.Write(data)
	return int64(n), err
}
