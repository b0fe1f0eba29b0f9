package constants

const (
	// Native generation paths, guarded by the scan pipelines.
	PathAPIGenerate = "/api/generate"
	PathAPIChat     = "/api/chat"
	PathAPIEmbed    = "/api/embed"

	// Model management passthrough.
	PathAPIPull    = "/api/pull"
	PathAPIPush    = "/api/push"
	PathAPICreate  = "/api/create"
	PathAPITags    = "/api/tags"
	PathAPIShow    = "/api/show"
	PathAPIDelete  = "/api/delete"
	PathAPICopy    = "/api/copy"
	PathAPIPs      = "/api/ps"
	PathAPIVersion = "/api/version"

	// OpenAI-compatible surface.
	PathV1ChatCompletions = "/v1/chat/completions"
	PathV1Completions     = "/v1/completions"
	PathV1Embeddings      = "/v1/embeddings"
	PathV1Models          = "/v1/models"

	// Operational surface, rate limited on its own budget.
	PathHealth      = "/health"
	PathVersion     = "/version"
	PathStats       = "/stats"
	PathConfig      = "/config"
	PathProcess     = "/internal/process"
	PathQueueStats  = "/queue/stats"
	PathQueueMemory = "/queue/memory"

	PathAdminPrefix       = "/admin/"
	PathAdminCacheClear   = "/admin/cache/clear"
	PathAdminCacheCleanup = "/admin/cache/cleanup"
	PathAdminQueueReset   = "/admin/queue/reset"
	PathAdminQueueUpdate  = "/admin/queue/update"
	PathAdminScanners     = "/admin/scanners/{scanner}"
)
