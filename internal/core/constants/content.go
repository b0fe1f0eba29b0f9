package constants

const (
	ContentTypeHeader = "Content-Type"
	ContentTypeJSON   = "application/json"
	ContentTypeNDJSON = "application/x-ndjson"
	ContentTypeSSE    = "text/event-stream"
	ContentTypeText   = "text/plain"

	HeaderRequestID  = "X-Paddock-Request-ID"
	HeaderRetryAfter = "Retry-After"
	HeaderCacheState = "X-Paddock-Cache" // hit/miss on the input verdict, handy when tuning windows
)
