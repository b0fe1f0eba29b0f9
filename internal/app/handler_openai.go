package app

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/paddockhq/paddock/internal/adapter/translator"
	"github.com/paddockhq/paddock/internal/adapter/upstream"
	"github.com/paddockhq/paddock/internal/app/middleware"
	"github.com/paddockhq/paddock/internal/core/constants"
	"github.com/paddockhq/paddock/internal/core/domain"
	"github.com/paddockhq/paddock/internal/core/ports"
)

// OpenAI-compatible handlers. The body is translated to the native form
// before the guarded flow; the response path translates back.

func (a *Application) openAIChatHandler(w http.ResponseWriter, r *http.Request) {
	body, ok := a.readBody(w, r, domain.DialectOpenAI)
	if !ok {
		return
	}
	greq, err := a.translate.OpenAIChat(body)
	if err != nil {
		a.rejectRequest(w, domain.DialectOpenAI, http.StatusBadRequest, err.Error())
		return
	}
	a.serveGuarded(w, r, greq)
}

func (a *Application) openAICompletionHandler(w http.ResponseWriter, r *http.Request) {
	body, ok := a.readBody(w, r, domain.DialectOpenAI)
	if !ok {
		return
	}
	greq, err := a.translate.OpenAICompletion(body)
	if err != nil {
		a.rejectRequest(w, domain.DialectOpenAI, http.StatusBadRequest, err.Error())
		return
	}
	a.serveGuarded(w, r, greq)
}

func (a *Application) openAIEmbeddingsHandler(w http.ResponseWriter, r *http.Request) {
	body, ok := a.readBody(w, r, domain.DialectOpenAI)
	if !ok {
		return
	}
	greq, err := a.translate.OpenAIEmbeddings(body)
	if err != nil {
		a.rejectRequest(w, domain.DialectOpenAI, http.StatusBadRequest, err.Error())
		return
	}
	a.serveGuarded(w, r, greq)
}

// openAIModelsHandler lists the backend's models in OpenAI shape. It reads
// the native tag list and re-emits it, so no guard or admission applies.
func (a *Application) openAIModelsHandler(w http.ResponseWriter, r *http.Request) {
	log := middleware.GetLogger(r.Context())
	start := time.Now()

	handle, err := a.upstream.Forward(r.Context(), ports.UpstreamRequest{
		Method: http.MethodGet,
		Path:   constants.PathAPITags,
		Header: upstream.PrepareProxyHeaders(r),
	})
	if err != nil {
		status, kind := upstream.Classify(err)
		friendly := upstream.MakeUserFriendlyError(err, time.Since(start), "list models", a.getConfig().Timeout.UpstreamResponse)
		translator.WriteError(w, domain.DialectOpenAI, status, kind, friendly.Error(), nil)
		a.collector.RecordRequest("", domain.DialectOpenAI, status, 0, 0)
		return
	}
	if handle.StatusCode >= 400 {
		a.forwardUpstreamError(w, handle)
		a.collector.RecordRequest("", domain.DialectOpenAI, handle.StatusCode, 0, 0)
		return
	}

	raw, err := io.ReadAll(handle.Body)
	closeErr := handle.Close()
	if err != nil || closeErr != nil {
		translator.WriteError(w, domain.DialectOpenAI, http.StatusBadGateway, domain.ErrKindUpstreamUnavailable,
			"failed to read model list from upstream", nil)
		a.collector.RecordRequest("", domain.DialectOpenAI, http.StatusBadGateway, 0, 0)
		return
	}

	var tags domain.TagsResponse
	if err := json.Unmarshal(raw, &tags); err != nil {
		log.Warn("upstream returned an unparseable tag list", "error", err)
		translator.WriteError(w, domain.DialectOpenAI, http.StatusBadGateway, domain.ErrKindUpstreamUnavailable,
			"upstream returned an invalid model list", nil)
		a.collector.RecordRequest("", domain.DialectOpenAI, http.StatusBadGateway, 0, 0)
		return
	}

	n := writeJSON(w, a.translate.ModelsFrom(&tags))
	a.collector.RecordRequest("", domain.DialectOpenAI, http.StatusOK, 0, n)
}
