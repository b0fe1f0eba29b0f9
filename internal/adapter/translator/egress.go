package translator

import (
	"time"

	"github.com/paddockhq/paddock/internal/core/domain"
)

const modelOwner = "library"

// ChatCompletionFrom wraps a native chat response in an OpenAI chat
// completion envelope.
func (t *Translator) ChatCompletionFrom(resp *domain.ChatResponse) *ChatCompletion {
	return &ChatCompletion{
		ID:      newID("chatcmpl-"),
		Object:  "chat.completion",
		Created: createdUnix(resp.CreatedAt),
		Model:   resp.Model,
		Choices: []ChatChoice{
			{
				Index: 0,
				Message: ChoiceMessage{
					Role:    "assistant",
					Content: resp.Message.Content,
				},
				FinishReason: finishReasonFrom(resp.DoneReason),
			},
		},
		Usage: usageFrom(resp.PromptEvalCount, resp.EvalCount),
	}
}

// CompletionFrom wraps a native generate response in an OpenAI legacy
// completion envelope.
func (t *Translator) CompletionFrom(resp *domain.GenerateResponse) *Completion {
	return &Completion{
		ID:      newID("cmpl-"),
		Object:  "text_completion",
		Created: createdUnix(resp.CreatedAt),
		Model:   resp.Model,
		Choices: []CompletionChoice{
			{
				Index:        0,
				Text:         resp.Response,
				FinishReason: finishReasonFrom(resp.DoneReason),
			},
		},
		Usage: usageFrom(resp.PromptEvalCount, resp.EvalCount),
	}
}

// EmbeddingsFrom wraps a native embed response in an OpenAI embeddings list.
func (t *Translator) EmbeddingsFrom(resp *domain.EmbedResponse) *EmbeddingsResponse {
	data := make([]EmbeddingItem, 0, len(resp.Embeddings))
	for i, vec := range resp.Embeddings {
		data = append(data, EmbeddingItem{
			Object:    "embedding",
			Index:     i,
			Embedding: vec,
		})
	}
	return &EmbeddingsResponse{
		Object: "list",
		Data:   data,
		Model:  resp.Model,
		Usage: Usage{
			PromptTokens: resp.PromptEvalCount,
			TotalTokens:  resp.PromptEvalCount,
		},
	}
}

// ModelsFrom converts the native tags listing into the OpenAI models list.
func (t *Translator) ModelsFrom(tags *domain.TagsResponse) *ModelsResponse {
	data := make([]ModelItem, 0, len(tags.Models))
	for _, m := range tags.Models {
		data = append(data, ModelItem{
			ID:      m.Name,
			Object:  "model",
			Created: createdUnix(m.ModifiedAt),
			OwnedBy: modelOwner,
		})
	}
	return &ModelsResponse{
		Object: "list",
		Data:   data,
	}
}

// finishReasonFrom maps the native done_reason to an OpenAI finish_reason.
// Unknown reasons collapse to "stop" rather than leaking upstream vocabulary.
func finishReasonFrom(doneReason string) string {
	switch doneReason {
	case "length":
		return "length"
	case "stop", "":
		return "stop"
	default:
		return "stop"
	}
}

func usageFrom(promptTokens, completionTokens int) Usage {
	return Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}
}

// createdUnix parses the native created_at / modified_at timestamp. The
// upstream writes RFC 3339 with nanoseconds; anything unparseable falls back
// to now so the envelope always carries a plausible epoch.
func createdUnix(ts string) int64 {
	if ts != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			return parsed.Unix()
		}
	}
	return time.Now().Unix()
}
