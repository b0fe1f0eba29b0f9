package constants

const (
	ContextRequestIdKey   = "request_id"   // generated per request in the logging middleware
	ContextRequestTimeKey = "request_time" // set alongside the ID to track total latency
	ContextClientIPKey    = "client_ip"    // resolved once by the ip gate and reused for logging
)
