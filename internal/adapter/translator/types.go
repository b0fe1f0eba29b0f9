package translator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/paddockhq/paddock/internal/core/domain"
)

// GuardedRequest is a decoded generation call in upstream form, plus the
// metadata the response path needs to answer in the caller's dialect. Native
// ingress keeps the client's bytes verbatim; OpenAI ingress carries the
// re-marshalled native request.
type GuardedRequest struct {
	Model      string
	ScanText   string
	NativeBody []byte
	Kind       domain.RequestKind
	Dialect    domain.Dialect
	Streaming  bool
}

// Native ingress constructors. The raw body is forwarded as received; the
// decoded struct only supplies the scan text and routing metadata.

func NativeChat(body []byte, req *domain.ChatRequest) *GuardedRequest {
	return &GuardedRequest{
		Model:      req.Model,
		ScanText:   req.ScanText(),
		NativeBody: body,
		Kind:       domain.KindChat,
		Dialect:    domain.DialectNative,
		Streaming:  req.Streaming(),
	}
}

func NativeGenerate(body []byte, req *domain.GenerateRequest) *GuardedRequest {
	return &GuardedRequest{
		Model:      req.Model,
		ScanText:   req.ScanText(),
		NativeBody: body,
		Kind:       domain.KindGenerate,
		Dialect:    domain.DialectNative,
		Streaming:  req.Streaming(),
	}
}

func NativeEmbed(body []byte, req *domain.EmbedRequest) *GuardedRequest {
	return &GuardedRequest{
		Model:      req.Model,
		ScanText:   strings.Join(req.InputTexts(), "\n"),
		NativeBody: body,
		Kind:       domain.KindEmbed,
		Dialect:    domain.DialectNative,
		Streaming:  false,
	}
}

// OpenAI ingress constructors: translate, then marshal the native request for
// the upstream.

func (t *Translator) OpenAIChat(body []byte) (*GuardedRequest, error) {
	native, err := t.TranslateChat(body)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(native)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal native chat request: %w", err)
	}
	return &GuardedRequest{
		Model:      native.Model,
		ScanText:   native.ScanText(),
		NativeBody: payload,
		Kind:       domain.KindChat,
		Dialect:    domain.DialectOpenAI,
		Streaming:  native.Streaming(),
	}, nil
}

func (t *Translator) OpenAICompletion(body []byte) (*GuardedRequest, error) {
	native, err := t.TranslateCompletion(body)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(native)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal native generate request: %w", err)
	}
	return &GuardedRequest{
		Model:      native.Model,
		ScanText:   native.ScanText(),
		NativeBody: payload,
		Kind:       domain.KindGenerate,
		Dialect:    domain.DialectOpenAI,
		Streaming:  native.Streaming(),
	}, nil
}

func (t *Translator) OpenAIEmbeddings(body []byte) (*GuardedRequest, error) {
	native, err := t.TranslateEmbeddings(body)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(native)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal native embed request: %w", err)
	}
	return &GuardedRequest{
		Model:      native.Model,
		ScanText:   strings.Join(native.InputTexts(), "\n"),
		NativeBody: payload,
		Kind:       domain.KindEmbed,
		Dialect:    domain.DialectOpenAI,
		Streaming:  false,
	}, nil
}
