package domain

import (
	"encoding/json"
	"strings"
)

// Native dialect shapes for the upstream generate/chat/embed API. Request
// structs are decode-only on the native ingress path (native bodies are
// forwarded to the upstream byte-for-byte); the translator also builds them
// when converting an OpenAI request.

type Message struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type GenerateRequest struct {
	Options   map[string]any  `json:"options,omitempty"`
	KeepAlive json.RawMessage `json:"keep_alive,omitempty"`
	Format    json.RawMessage `json:"format,omitempty"`
	Model     string          `json:"model"`
	Prompt    string          `json:"prompt"`
	System    string          `json:"system,omitempty"`
	Template  string          `json:"template,omitempty"`
	Stream    *bool           `json:"stream,omitempty"`
	Raw       bool            `json:"raw,omitempty"`
}

type ChatRequest struct {
	Options   map[string]any  `json:"options,omitempty"`
	KeepAlive json.RawMessage `json:"keep_alive,omitempty"`
	Format    json.RawMessage `json:"format,omitempty"`
	Tools     json.RawMessage `json:"tools,omitempty"`
	Model     string          `json:"model"`
	Messages  []Message       `json:"messages"`
	Stream    *bool           `json:"stream,omitempty"`
}

type EmbedRequest struct {
	Options   map[string]any  `json:"options,omitempty"`
	Input     json.RawMessage `json:"input"`
	KeepAlive json.RawMessage `json:"keep_alive,omitempty"`
	Model     string          `json:"model"`
	Truncate  *bool           `json:"truncate,omitempty"`
}

// Streaming reports the effective stream flag: the native dialect streams by
// default, so an absent flag means true.
func (r *GenerateRequest) Streaming() bool { return r.Stream == nil || *r.Stream }
func (r *ChatRequest) Streaming() bool     { return r.Stream == nil || *r.Stream }

// ScanText returns the text the input pipeline sees: the raw prompt for
// generate-style requests, a role-prefixed transcript for chat.
func (r *GenerateRequest) ScanText() string { return r.Prompt }

func (r *ChatRequest) ScanText() string {
	var sb strings.Builder
	for i, m := range r.Messages {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(m.Role)
		sb.WriteString(": ")
		sb.WriteString(m.Content)
	}
	return sb.String()
}

// InputTexts normalises the embed input, which the wire accepts as either a
// single string or an array of strings.
func (r *EmbedRequest) InputTexts() []string {
	if len(r.Input) == 0 {
		return nil
	}
	var one string
	if err := json.Unmarshal(r.Input, &one); err == nil {
		return []string{one}
	}
	var many []string
	if err := json.Unmarshal(r.Input, &many); err == nil {
		return many
	}
	return nil
}

// Metrics are the timing counters the upstream attaches to terminal chunks
// and non-streaming responses.
type Metrics struct {
	TotalDuration      int64 `json:"total_duration,omitempty"`
	LoadDuration       int64 `json:"load_duration,omitempty"`
	PromptEvalCount    int   `json:"prompt_eval_count,omitempty"`
	PromptEvalDuration int64 `json:"prompt_eval_duration,omitempty"`
	EvalCount          int   `json:"eval_count,omitempty"`
	EvalDuration       int64 `json:"eval_duration,omitempty"`
}

type ChatResponse struct {
	Model      string  `json:"model,omitempty"`
	CreatedAt  string  `json:"created_at,omitempty"`
	Message    Message `json:"message"`
	DoneReason string  `json:"done_reason,omitempty"`
	Done       bool    `json:"done"`
	Metrics
}

type GenerateResponse struct {
	Model      string `json:"model,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
	Response   string `json:"response"`
	DoneReason string `json:"done_reason,omitempty"`
	Context    []int  `json:"context,omitempty"`
	Done       bool   `json:"done"`
	Metrics
}

type EmbedResponse struct {
	Model           string      `json:"model,omitempty"`
	Embeddings      [][]float64 `json:"embeddings"`
	TotalDuration   int64       `json:"total_duration,omitempty"`
	LoadDuration    int64       `json:"load_duration,omitempty"`
	PromptEvalCount int         `json:"prompt_eval_count,omitempty"`
}

type ModelSummary struct {
	Name       string `json:"name"`
	Model      string `json:"model,omitempty"`
	ModifiedAt string `json:"modified_at,omitempty"`
	Size       int64  `json:"size,omitempty"`
	Digest     string `json:"digest,omitempty"`
}

type TagsResponse struct {
	Models []ModelSummary `json:"models"`
}
