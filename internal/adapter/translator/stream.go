package translator

import (
	"encoding/json"
	"fmt"
	"io"
)

// Streaming chunk constructors. Delta frames carry content with a null
// finish_reason; the finish frame carries an empty delta and the mapped
// reason. The [DONE] sentinel is written separately.

func ChatDeltaChunk(content string) *ChatChunk {
	return &ChatChunk{
		Choices: []ChatChunkChoice{
			{Index: 0, Delta: ChunkDelta{Content: content}},
		},
	}
}

func ChatFinishChunk(doneReason string) *ChatChunk {
	reason := finishReasonFrom(doneReason)
	return &ChatChunk{
		Choices: []ChatChunkChoice{
			{Index: 0, FinishReason: &reason},
		},
	}
}

func CompletionDeltaChunk(text string) *CompletionChunk {
	return &CompletionChunk{
		Choices: []CompletionChunkChoice{
			{Index: 0, Text: text},
		},
	}
}

func CompletionFinishChunk(doneReason string) *CompletionChunk {
	reason := finishReasonFrom(doneReason)
	return &CompletionChunk{
		Choices: []CompletionChunkChoice{
			{Index: 0, FinishReason: &reason},
		},
	}
}

// WriteSSE marshals the payload and writes one server-sent event frame.
// Flushing is the caller's job; the writer here may be wrapped.
func WriteSSE(w io.Writer, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal stream chunk: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write stream chunk: %w", err)
	}
	return nil
}

// WriteSSEDone writes the stream terminator frame.
func WriteSSEDone(w io.Writer) error {
	if _, err := io.WriteString(w, "data: [DONE]\n\n"); err != nil {
		return fmt.Errorf("failed to write stream terminator: %w", err)
	}
	return nil
}
