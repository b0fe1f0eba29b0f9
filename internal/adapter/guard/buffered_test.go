package guard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paddockhq/paddock/internal/adapter/translator"
	"github.com/paddockhq/paddock/internal/core/constants"
	"github.com/paddockhq/paddock/internal/core/domain"
	"github.com/paddockhq/paddock/internal/core/ports"
)

func bufferedRequest(kind domain.RequestKind, dialect domain.Dialect) *translator.GuardedRequest {
	return &translator.GuardedRequest{
		Model:    "llama3",
		ScanText: "user: hi",
		Kind:     kind,
		Dialect:  dialect,
	}
}

type failingReader struct{ err error }

func (f failingReader) Read([]byte) (int, error) { return 0, f.err }

func TestRelayBuffered_NativeVerbatim(t *testing.T) {
	h := newGuardHarness(t, defaultTestConfig())

	upstream := `{"model":"llama3","response":"hi","done":true,"done_reason":"stop","eval_count":2}`
	header := http.Header{}
	header.Set(constants.ContentTypeHeader, "application/json; charset=utf-8")
	handle := ports.NewResponseHandle(http.StatusOK, header, io.NopCloser(strings.NewReader(upstream)), func() {})
	rec := httptest.NewRecorder()

	res := h.guard.RelayBuffered(context.Background(), rec, handle, bufferedRequest(domain.KindGenerate, domain.DialectNative))

	require.True(t, res.Completed())
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, upstream, rec.Body.String())
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get(constants.ContentTypeHeader))
	assert.Equal(t, "hi", res.Output)
	assert.Equal(t, "stop", res.DoneReason)

	// The output verdict for "hi" is cached for the next identical reply.
	assert.Equal(t, 1, h.output.scanCount())
	assert.Equal(t, 1, h.cache.storeCount())
}

func TestRelayBuffered_OutputBlocked(t *testing.T) {
	h := newGuardHarness(t, defaultTestConfig())
	h.output.verdict = func(prompt, output string) *domain.ScanResult {
		return blockResult(domain.ScanSideOutput, "keyword")
	}

	handle := testHandle(`{"response":"something awful","done":true}`)
	rec := httptest.NewRecorder()

	res := h.guard.RelayBuffered(context.Background(), rec, handle, bufferedRequest(domain.KindGenerate, domain.DialectNative))

	require.True(t, res.Blocked)
	assert.Equal(t, http.StatusUnavailableForLegalReasons, rec.Code)

	var body domain.NativeErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, domain.ViolationError, body.Error)
	assert.Equal(t, domain.ErrKindOutputBlocked, body.Type)
	require.Len(t, body.FailedScanners, 1)
	assert.Equal(t, "keyword", body.FailedScanners[0].Scanner)

	// Complete-text verdicts are cacheable even when they block.
	assert.Equal(t, 1, h.cache.storeCount())
}

func TestRelayBuffered_OpenAIOutputBlocked(t *testing.T) {
	h := newGuardHarness(t, defaultTestConfig())
	h.output.verdict = func(prompt, output string) *domain.ScanResult {
		return blockResult(domain.ScanSideOutput, "keyword")
	}

	handle := testHandle(`{"message":{"role":"assistant","content":"something awful"},"done":true}`)
	rec := httptest.NewRecorder()

	res := h.guard.RelayBuffered(context.Background(), rec, handle, bufferedRequest(domain.KindChat, domain.DialectOpenAI))

	require.True(t, res.Blocked)
	assert.Equal(t, http.StatusUnavailableForLegalReasons, rec.Code)

	var body translator.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, domain.ViolationError, body.Error.Type)
	assert.Equal(t, domain.ErrKindOutputBlocked, body.Error.Code)
	require.Len(t, body.Error.FailedScanners, 1)
	assert.Equal(t, "keyword", body.Error.FailedScanners[0].Scanner)
}

func TestRelayBuffered_OpenAIChatTranslated(t *testing.T) {
	h := newGuardHarness(t, defaultTestConfig())

	upstream := `{"model":"llama3","created_at":"2024-03-05T12:00:00Z","message":{"role":"assistant","content":"Hello there"},"done":true,"done_reason":"stop","prompt_eval_count":12,"eval_count":7}`
	handle := testHandle(upstream)
	rec := httptest.NewRecorder()

	res := h.guard.RelayBuffered(context.Background(), rec, handle, bufferedRequest(domain.KindChat, domain.DialectOpenAI))

	require.True(t, res.Completed())
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, constants.ContentTypeJSON, rec.Header().Get(constants.ContentTypeHeader))

	var completion translator.ChatCompletion
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &completion))
	assert.Equal(t, "chat.completion", completion.Object)
	require.Len(t, completion.Choices, 1)
	assert.Equal(t, "Hello there", completion.Choices[0].Message.Content)
	assert.Equal(t, "stop", completion.Choices[0].FinishReason)
	assert.Equal(t, 12, completion.Usage.PromptTokens)
	assert.Equal(t, 7, completion.Usage.CompletionTokens)
	assert.Equal(t, 19, completion.Usage.TotalTokens)
}

func TestRelayBuffered_EmbeddingsSkipOutputScan(t *testing.T) {
	h := newGuardHarness(t, defaultTestConfig())

	upstream := `{"model":"nomic-embed","embeddings":[[0.1,0.2,0.3]],"prompt_eval_count":4}`
	handle := testHandle(upstream)
	rec := httptest.NewRecorder()

	res := h.guard.RelayBuffered(context.Background(), rec, handle, bufferedRequest(domain.KindEmbed, domain.DialectOpenAI))

	require.True(t, res.Completed())
	assert.Zero(t, h.output.scanCount(), "vectors have no text to scan")

	var body translator.EmbeddingsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "list", body.Object)
	require.Len(t, body.Data, 1)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, body.Data[0].Embedding)
	assert.Equal(t, 4, body.Usage.PromptTokens)
}

func TestRelayBuffered_GarbageNativeForwards(t *testing.T) {
	h := newGuardHarness(t, defaultTestConfig())

	upstream := `<html>the backend is having a bad day</html>`
	handle := testHandle(upstream)
	rec := httptest.NewRecorder()

	res := h.guard.RelayBuffered(context.Background(), rec, handle, bufferedRequest(domain.KindGenerate, domain.DialectNative))

	// Nothing to scan, nothing to translate: the native contract is
	// byte-for-byte, even for nonsense.
	require.True(t, res.Completed())
	assert.Equal(t, upstream, rec.Body.String())
	assert.Zero(t, h.output.scanCount())
}

func TestRelayBuffered_GarbageOpenAI(t *testing.T) {
	h := newGuardHarness(t, defaultTestConfig())

	handle := testHandle(`<html>nope</html>`)
	rec := httptest.NewRecorder()

	res := h.guard.RelayBuffered(context.Background(), rec, handle, bufferedRequest(domain.KindChat, domain.DialectOpenAI))

	require.True(t, res.ReadFailed)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var body translator.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, domain.ErrKindUpstreamUnavailable, body.Error.Code)
}

func TestRelayBuffered_ReadFailure(t *testing.T) {
	h := newGuardHarness(t, defaultTestConfig())

	handle := ports.NewResponseHandle(http.StatusOK, http.Header{}, io.NopCloser(failingReader{err: fmt.Errorf("connection reset")}), func() {})
	rec := httptest.NewRecorder()

	res := h.guard.RelayBuffered(context.Background(), rec, handle, bufferedRequest(domain.KindGenerate, domain.DialectNative))

	require.True(t, res.ReadFailed)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.True(t, handle.Cancelled())

	var body domain.NativeErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, domain.ErrKindUpstreamUnavailable, body.Type)
}

func TestRelayBuffered_ReadTimeout(t *testing.T) {
	h := newGuardHarness(t, defaultTestConfig())

	err := fmt.Errorf("reading body: %w", context.DeadlineExceeded)
	handle := ports.NewResponseHandle(http.StatusOK, http.Header{}, io.NopCloser(failingReader{err: err}), func() {})
	rec := httptest.NewRecorder()

	res := h.guard.RelayBuffered(context.Background(), rec, handle, bufferedRequest(domain.KindGenerate, domain.DialectNative))

	require.True(t, res.TimedOut)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, domain.ErrKindUpstreamTimeout, res.ErrKind)
}
