package domain

// Dialect identifies the wire format a client spoke on the way in, which is
// also the format we must answer in: native Ollama NDJSON or OpenAI SSE.
type Dialect string

const (
	DialectNative Dialect = "native"
	DialectOpenAI Dialect = "openai"
)

// RequestKind classifies a guarded call. It picks the upstream path and the
// chunk fields the streaming loop reads.
type RequestKind string

const (
	KindChat     RequestKind = "chat"
	KindGenerate RequestKind = "generate"
	KindEmbed    RequestKind = "embed"
)

// UpstreamPath returns the native endpoint this kind forwards to.
func (k RequestKind) UpstreamPath() string {
	switch k {
	case KindChat:
		return "/api/chat"
	case KindGenerate:
		return "/api/generate"
	case KindEmbed:
		return "/api/embed"
	default:
		return ""
	}
}
