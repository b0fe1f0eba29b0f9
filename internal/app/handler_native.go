package app

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/paddockhq/paddock/internal/adapter/translator"
	"github.com/paddockhq/paddock/internal/core/domain"
)

// Native dialect handlers. Bodies are decoded only for the model name, the
// scan text and the stream flag; the client's bytes go to the upstream
// untouched.

func (a *Application) generateHandler(w http.ResponseWriter, r *http.Request) {
	body, ok := a.readBody(w, r, domain.DialectNative)
	if !ok {
		return
	}
	var req domain.GenerateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		a.rejectRequest(w, domain.DialectNative, http.StatusBadRequest, "request body is not valid JSON")
		return
	}
	if strings.TrimSpace(req.Model) == "" {
		a.rejectRequest(w, domain.DialectNative, http.StatusBadRequest, "model is required")
		return
	}
	a.serveGuarded(w, r, translator.NativeGenerate(body, &req))
}

func (a *Application) chatHandler(w http.ResponseWriter, r *http.Request) {
	body, ok := a.readBody(w, r, domain.DialectNative)
	if !ok {
		return
	}
	var req domain.ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		a.rejectRequest(w, domain.DialectNative, http.StatusBadRequest, "request body is not valid JSON")
		return
	}
	if strings.TrimSpace(req.Model) == "" {
		a.rejectRequest(w, domain.DialectNative, http.StatusBadRequest, "model is required")
		return
	}
	a.serveGuarded(w, r, translator.NativeChat(body, &req))
}

func (a *Application) embedHandler(w http.ResponseWriter, r *http.Request) {
	body, ok := a.readBody(w, r, domain.DialectNative)
	if !ok {
		return
	}
	var req domain.EmbedRequest
	if err := json.Unmarshal(body, &req); err != nil {
		a.rejectRequest(w, domain.DialectNative, http.StatusBadRequest, "request body is not valid JSON")
		return
	}
	if strings.TrimSpace(req.Model) == "" {
		a.rejectRequest(w, domain.DialectNative, http.StatusBadRequest, "model is required")
		return
	}
	a.serveGuarded(w, r, translator.NativeEmbed(body, &req))
}

// readBody drains the request body, answering in the caller's dialect when
// it cannot. The security chain has already wrapped oversized bodies in a
// MaxBytesReader, so the over-limit case surfaces here.
func (a *Application) readBody(w http.ResponseWriter, r *http.Request, dialect domain.Dialect) ([]byte, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			a.rejectRequest(w, dialect, http.StatusRequestEntityTooLarge, "request body exceeds the configured size limit")
		} else {
			a.rejectRequest(w, dialect, http.StatusBadRequest, "failed to read request body")
		}
		return nil, false
	}
	if len(body) == 0 {
		a.rejectRequest(w, dialect, http.StatusBadRequest, "request body is required")
		return nil, false
	}
	return body, true
}

// rejectRequest answers a request that never reached the guarded flow and
// records it so malformed traffic still shows in the totals.
func (a *Application) rejectRequest(w http.ResponseWriter, dialect domain.Dialect, status int, message string) {
	translator.WriteError(w, dialect, status, domain.ErrKindBadRequest, message, nil)
	a.collector.RecordRequest("", dialect, status, 0, 0)
}
