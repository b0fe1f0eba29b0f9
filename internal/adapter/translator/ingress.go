// Package translator converts between the OpenAI compatibility dialect and
// the native upstream dialect. Ingress maps OpenAI requests onto native
// request structs; egress wraps native responses back into OpenAI shapes,
// including the streaming chunk frames.
package translator

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/paddockhq/paddock/internal/core/domain"
	"github.com/paddockhq/paddock/internal/logger"
)

type Translator struct {
	logger logger.StyledLogger
}

func New(log logger.StyledLogger) *Translator {
	return &Translator{logger: log}
}

var (
	chatFields = []string{
		"model", "messages", "stream", "temperature", "top_p",
		"presence_penalty", "frequency_penalty", "max_tokens", "seed", "stop",
	}
	completionFields = []string{
		"model", "prompt", "stream", "temperature", "top_p",
		"presence_penalty", "frequency_penalty", "max_tokens", "seed", "stop",
	}
	embeddingsFields = []string{"model", "input"}
)

// TranslateChat decodes an OpenAI chat completion request and converts it to
// a native chat request. Unknown fields and unmapped options are dropped.
func (t *Translator) TranslateChat(body []byte) (*domain.ChatRequest, error) {
	var req ChatCompletionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("invalid chat completion request: %w", err)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	t.noteDroppedFields(body, chatFields)

	messages := make([]domain.Message, 0, len(req.Messages))
	dropped := 0
	for _, m := range req.Messages {
		text, nonText := m.ContentText()
		dropped += nonText
		messages = append(messages, domain.Message{
			Role:    m.Role,
			Content: text,
		})
	}
	if dropped > 0 {
		t.logger.Debug("Dropped non-text content parts", "count", dropped)
	}

	stream := req.Stream
	return &domain.ChatRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   &stream,
		Options:  mapOptions(req.SamplingOptions),
	}, nil
}

// TranslateCompletion decodes an OpenAI legacy completion request and
// converts it to a native generate request.
func (t *Translator) TranslateCompletion(body []byte) (*domain.GenerateRequest, error) {
	var req CompletionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("invalid completion request: %w", err)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	t.noteDroppedFields(body, completionFields)

	prompt, err := req.PromptText()
	if err != nil {
		return nil, err
	}

	stream := req.Stream
	return &domain.GenerateRequest{
		Model:   req.Model,
		Prompt:  prompt,
		Stream:  &stream,
		Options: mapOptions(req.SamplingOptions),
	}, nil
}

// TranslateEmbeddings decodes an OpenAI embeddings request and converts it to
// a native embed request. Input passes through raw; both dialects accept a
// string or an array of strings.
func (t *Translator) TranslateEmbeddings(body []byte) (*domain.EmbedRequest, error) {
	var req EmbeddingsRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("invalid embeddings request: %w", err)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	t.noteDroppedFields(body, embeddingsFields)

	return &domain.EmbedRequest{
		Model: req.Model,
		Input: req.Input,
	}, nil
}

// mapOptions builds the native options map from the supported OpenAI knobs.
// max_tokens becomes num_predict; the rest keep their names, which the native
// options map accepts directly.
func mapOptions(o SamplingOptions) map[string]any {
	opts := make(map[string]any)

	if o.Temperature != nil {
		opts["temperature"] = *o.Temperature
	}
	if o.TopP != nil {
		opts["top_p"] = *o.TopP
	}
	if o.PresencePenalty != nil {
		opts["presence_penalty"] = *o.PresencePenalty
	}
	if o.FrequencyPenalty != nil {
		opts["frequency_penalty"] = *o.FrequencyPenalty
	}
	if o.MaxTokens != nil {
		opts["num_predict"] = *o.MaxTokens
	}
	if o.Seed != nil {
		opts["seed"] = *o.Seed
	}
	if stops := stopList(o.Stop); len(stops) > 0 {
		opts["stop"] = stops
	}

	if len(opts) == 0 {
		return nil
	}
	return opts
}

// stopList normalises the stop option, which the wire accepts as a single
// string or an array of up to four strings.
func stopList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		if one == "" {
			return nil
		}
		return []string{one}
	}

	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		return many
	}

	return nil
}

// noteDroppedFields logs request fields outside the mapped set so a client
// can see what was ignored by turning on debug logging. The extra decode
// stays shallow: values land as raw messages.
func (t *Translator) noteDroppedFields(body []byte, known []string) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return
	}
	for _, k := range known {
		delete(fields, k)
	}
	if len(fields) == 0 {
		return
	}

	dropped := make([]string, 0, len(fields))
	for k := range fields {
		dropped = append(dropped, k)
	}
	sort.Strings(dropped)
	t.logger.Debug("Dropped unsupported request fields", "fields", strings.Join(dropped, ", "))
}
