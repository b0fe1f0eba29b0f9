package translator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/paddockhq/paddock/internal/core/domain"
)

// OpenAI dialect shapes. Requests decode permissively: knobs outside the
// mapped option set are dropped, not rejected, so newer client libraries
// keep working against the native backend.

// SamplingOptions are the generation knobs shared by the chat and legacy
// completion endpoints. Pointers distinguish "absent" from zero values.
type SamplingOptions struct {
	Temperature      *float64        `json:"temperature,omitempty"`
	TopP             *float64        `json:"top_p,omitempty"`
	PresencePenalty  *float64        `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64        `json:"frequency_penalty,omitempty"`
	MaxTokens        *int            `json:"max_tokens,omitempty"`
	Seed             *int            `json:"seed,omitempty"`
	Stop             json.RawMessage `json:"stop,omitempty"`
}

func (o *SamplingOptions) Validate() error {
	if o.Temperature != nil && (*o.Temperature < 0 || *o.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2, got %v", *o.Temperature)
	}
	if o.TopP != nil && (*o.TopP < 0 || *o.TopP > 1) {
		return fmt.Errorf("top_p must be between 0 and 1, got %v", *o.TopP)
	}
	if o.MaxTokens != nil && *o.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be non-negative, got %d", *o.MaxTokens)
	}
	return nil
}

type ChatCompletionRequest struct {
	SamplingOptions
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream,omitempty"`
}

// ChatMessage keeps content raw because OpenAI clients send either a plain
// string or an array of typed parts.
type ChatMessage struct {
	Content json.RawMessage `json:"content"`
	Role    string          `json:"role"`
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ContentText flattens the message content to plain text. Non-text parts
// (images and the like) carry nothing the native text APIs can use; the
// count lets callers log the drop.
func (m *ChatMessage) ContentText() (string, int) {
	if len(m.Content) == 0 {
		return "", 0
	}

	var plain string
	if err := json.Unmarshal(m.Content, &plain); err == nil {
		return plain, 0
	}

	var parts []contentPart
	if err := json.Unmarshal(m.Content, &parts); err != nil {
		return "", 0
	}

	var sb strings.Builder
	dropped := 0
	for _, part := range parts {
		if part.Type == "text" {
			sb.WriteString(part.Text)
			continue
		}
		dropped++
	}
	return sb.String(), dropped
}

func (r *ChatCompletionRequest) Validate() error {
	if r.Model == "" {
		return fmt.Errorf("model field is required")
	}
	if len(r.Messages) == 0 {
		return fmt.Errorf("at least one message is required")
	}
	return r.SamplingOptions.Validate()
}

type CompletionRequest struct {
	SamplingOptions
	Prompt json.RawMessage `json:"prompt"`
	Model  string          `json:"model"`
	Stream bool            `json:"stream,omitempty"`
}

// PromptText normalises the prompt, which the wire accepts as a string or an
// array of strings. Array prompts are joined; the native generate API takes
// one prompt per call.
func (r *CompletionRequest) PromptText() (string, error) {
	if len(r.Prompt) == 0 {
		return "", fmt.Errorf("prompt field is required")
	}

	var one string
	if err := json.Unmarshal(r.Prompt, &one); err == nil {
		return one, nil
	}

	var many []string
	if err := json.Unmarshal(r.Prompt, &many); err == nil {
		return strings.Join(many, "\n"), nil
	}

	return "", fmt.Errorf("prompt must be a string or an array of strings")
}

func (r *CompletionRequest) Validate() error {
	if r.Model == "" {
		return fmt.Errorf("model field is required")
	}
	if _, err := r.PromptText(); err != nil {
		return err
	}
	return r.SamplingOptions.Validate()
}

type EmbeddingsRequest struct {
	Input json.RawMessage `json:"input"`
	Model string          `json:"model"`
}

func (r *EmbeddingsRequest) Validate() error {
	if r.Model == "" {
		return fmt.Errorf("model field is required")
	}
	if len(r.Input) == 0 {
		return fmt.Errorf("input field is required")
	}
	return nil
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ChoiceMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatChoice struct {
	Index        int           `json:"index"`
	Message      ChoiceMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type ChatCompletion struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   Usage        `json:"usage"`
}

type CompletionChoice struct {
	Index        int    `json:"index"`
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason"`
}

type Completion struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []CompletionChoice `json:"choices"`
	Usage   Usage              `json:"usage"`
}

// Streaming chunk shapes. Frames stay minimal on purpose: one choices array,
// nothing else, so clients doing incremental decode see stable bytes.

type ChunkDelta struct {
	Content string `json:"content,omitempty"`
}

type ChatChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

type ChatChunk struct {
	Choices []ChatChunkChoice `json:"choices"`
}

type CompletionChunkChoice struct {
	Index        int     `json:"index"`
	Text         string  `json:"text"`
	FinishReason *string `json:"finish_reason"`
}

type CompletionChunk struct {
	Choices []CompletionChunkChoice `json:"choices"`
}

type EmbeddingItem struct {
	Object    string    `json:"object"`
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

type EmbeddingsResponse struct {
	Object string          `json:"object"`
	Data   []EmbeddingItem `json:"data"`
	Model  string          `json:"model"`
	Usage  Usage           `json:"usage"`
}

type ModelItem struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type ModelsResponse struct {
	Object string      `json:"object"`
	Data   []ModelItem `json:"data"`
}

// ErrorDetail is the OpenAI dialect error body:
// {error:{message, type, code, failed_scanners?}}.
type ErrorDetail struct {
	Message        string                 `json:"message"`
	Type           string                 `json:"type"`
	Code           string                 `json:"code,omitempty"`
	FailedScanners []domain.FailedScanner `json:"failed_scanners,omitempty"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}
