package app

import (
	"net/http"

	"github.com/paddockhq/paddock/internal/core/constants"
)

// registerRoutes builds the complete routing table. Proxy routes carry the
// full security chain (ip gate, rate limit, size limit); everything else
// runs on the admin rate budget only.
func (a *Application) registerRoutes() {
	// Native generation surface, guarded by the scan pipelines.
	a.registry.RegisterProxyRoute(constants.PathAPIGenerate, a.generateHandler, "Guarded generate (native)", http.MethodPost)
	a.registry.RegisterProxyRoute(constants.PathAPIChat, a.chatHandler, "Guarded chat (native)", http.MethodPost)
	a.registry.RegisterProxyRoute(constants.PathAPIEmbed, a.embedHandler, "Guarded embeddings (native)", http.MethodPost)

	// OpenAI-compatible surface, translated onto the native upstream.
	a.registry.RegisterProxyRoute(constants.PathV1ChatCompletions, a.openAIChatHandler, "Guarded chat completions (OpenAI)", http.MethodPost)
	a.registry.RegisterProxyRoute(constants.PathV1Completions, a.openAICompletionHandler, "Guarded completions (OpenAI)", http.MethodPost)
	a.registry.RegisterProxyRoute(constants.PathV1Embeddings, a.openAIEmbeddingsHandler, "Guarded embeddings (OpenAI)", http.MethodPost)
	a.registry.RegisterProxyRoute(constants.PathV1Models, a.openAIModelsHandler, "Models list (OpenAI)", http.MethodGet)

	// Model management passes through unscanned; pull/push/create stream
	// NDJSON progress, so they ride the streaming relay.
	a.registry.RegisterProxyRoute(constants.PathAPIPull, a.passthroughHandler(true), "Pull a model (passthrough)", http.MethodPost)
	a.registry.RegisterProxyRoute(constants.PathAPIPush, a.passthroughHandler(true), "Push a model (passthrough)", http.MethodPost)
	a.registry.RegisterProxyRoute(constants.PathAPICreate, a.passthroughHandler(true), "Create a model (passthrough)", http.MethodPost)
	a.registry.RegisterProxyRoute(constants.PathAPITags, a.passthroughHandler(false), "List local models (passthrough)", http.MethodGet)
	a.registry.RegisterProxyRoute(constants.PathAPIShow, a.passthroughHandler(false), "Show model details (passthrough)", http.MethodPost)
	a.registry.RegisterProxyRoute(constants.PathAPIDelete, a.passthroughHandler(false), "Delete a model (passthrough)", http.MethodDelete)
	a.registry.RegisterProxyRoute(constants.PathAPICopy, a.passthroughHandler(false), "Copy a model (passthrough)", http.MethodPost)
	a.registry.RegisterProxyRoute(constants.PathAPIPs, a.passthroughHandler(false), "List running models (passthrough)", http.MethodGet)
	a.registry.RegisterProxyRoute(constants.PathAPIVersion, a.passthroughHandler(false), "Backend version (passthrough)", http.MethodGet)

	// Operational surface.
	a.registry.Register(constants.PathHealth, a.healthHandler, "Liveness and upstream health")
	a.registry.Register(constants.PathVersion, a.versionHandler, "Paddock version information")
	a.registry.Register(constants.PathStats, a.statsHandler, "Proxy, scan, cache and queue statistics")
	a.registry.Register(constants.PathConfig, a.configHandler, "Effective configuration (redacted)")
	a.registry.Register(constants.PathProcess, a.processStatsHandler, "Process runtime statistics")
	a.registry.Register(constants.PathQueueStats, a.queueStatsHandler, "Per-model admission queues")
	a.registry.Register(constants.PathQueueMemory, a.queueMemoryHandler, "Admission auto-size memory report")

	a.registry.RegisterWithMethod(constants.PathAdminCacheClear, a.cacheClearHandler, "Clear the scan cache", http.MethodPost)
	a.registry.RegisterWithMethod(constants.PathAdminCacheCleanup, a.cacheCleanupHandler, "Drop expired cache entries", http.MethodPost)
	a.registry.RegisterWithMethod(constants.PathAdminQueueReset, a.queueResetHandler, "Retire idle queues, zero counters", http.MethodPost)
	a.registry.RegisterWithMethod(constants.PathAdminQueueUpdate, a.queueUpdateHandler, "Update one model's queue limits", http.MethodPost)
	a.registry.RegisterWithMethod(constants.PathAdminScanners, a.scannerToggleHandler, "Toggle one scanner at runtime", http.MethodPost)
}
