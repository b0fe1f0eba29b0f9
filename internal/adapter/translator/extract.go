package translator

import (
	"github.com/tidwall/gjson"

	"github.com/paddockhq/paddock/internal/core/domain"
)

// StreamChunk is the slice of a native NDJSON chunk the streaming loop cares
// about: the generated text, the done flag and the terminal reason.
type StreamChunk struct {
	Text       string
	DoneReason string
	Done       bool
}

// ParseChatChunk extracts the streaming fields from a native chat chunk
// without unmarshalling the whole line. gjson scans forward to the matching
// keys, which keeps the per-chunk cost flat regardless of chunk size.
func ParseChatChunk(line []byte) StreamChunk {
	vals := gjson.GetManyBytes(line, "message.content", "done", "done_reason")
	return StreamChunk{
		Text:       vals[0].String(),
		Done:       vals[1].Bool(),
		DoneReason: vals[2].String(),
	}
}

// ParseGenerateChunk extracts the streaming fields from a native generate
// chunk.
func ParseGenerateChunk(line []byte) StreamChunk {
	vals := gjson.GetManyBytes(line, "response", "done", "done_reason")
	return StreamChunk{
		Text:       vals[0].String(),
		Done:       vals[1].Bool(),
		DoneReason: vals[2].String(),
	}
}

// ChunkFor returns the chunk parser matching the request kind. Embeddings
// never stream, so anything unrecognised falls back to the generate shape.
func ChunkFor(kind domain.RequestKind) func([]byte) StreamChunk {
	if kind == domain.KindChat {
		return ParseChatChunk
	}
	return ParseGenerateChunk
}

// ExtractModel pulls the top-level model field from a request body without a
// full decode. gjson coerces non-string values via String(), so the type is
// checked first; missing or non-string fields come back empty.
func ExtractModel(body []byte) string {
	result := gjson.GetBytes(body, "model")
	if result.Type != gjson.String {
		return ""
	}
	return result.Str
}
