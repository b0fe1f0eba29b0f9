package app

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/sjson"

	"github.com/paddockhq/paddock/internal/adapter/scanner"
	"github.com/paddockhq/paddock/internal/app/middleware"
	"github.com/paddockhq/paddock/internal/core/domain"
	"github.com/paddockhq/paddock/internal/version"
)

// writeJSON marshals v onto the response and reports the bytes written.
// Marshal failures surface as a 500 with a plain error body.
func writeJSON(w http.ResponseWriter, v any) int64 {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return 0
	}
	w.Header().Set("Content-Type", "application/json")
	n, _ := w.Write(data)
	return int64(n)
}

func (a *Application) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := a.monitor.Health()

	writeJSON(w, map[string]any{
		"status":         "running",
		"version":        version.Version,
		"uptime_seconds": int64(time.Since(a.StartTime).Seconds()),
		"upstream":       health,
	})
}

func (a *Application) versionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"name":    version.Name,
		"version": version.Version,
		"commit":  version.Commit,
		"built":   version.Date,
	})
}

func scannerReport(p *scanner.Pipeline) map[string]any {
	return map[string]any{
		"scanners":   p.Scanners(),
		"executions": p.Executions(),
		"failures":   p.Failures(),
	}
}

func (a *Application) statsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"proxy":    a.collector.GetProxyStats(),
		"models":   a.collector.GetModelStats(),
		"scans":    a.collector.GetScanStats(),
		"security": a.collector.GetSecurityStats(),
		"cache":    a.cache.Stats(),
		"queues":   a.admission.Snapshot(),
		"pipelines": map[string]any{
			"input":  scannerReport(a.inputPipe),
			"output": scannerReport(a.outputPipe),
		},
	})
}

// configHandler reports the effective configuration with secrets removed.
func (a *Application) configHandler(w http.ResponseWriter, r *http.Request) {
	data, err := json.Marshal(a.getConfig())
	if err != nil {
		http.Error(w, "failed to encode configuration", http.StatusInternalServerError)
		return
	}
	if redacted, derr := sjson.DeleteBytes(data, "cache.remote.password"); derr == nil {
		data = redacted
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (a *Application) queueStatsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"queues": a.admission.Snapshot(),
	})
}

func (a *Application) queueMemoryHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, a.admission.Memory())
}

func (a *Application) cacheClearHandler(w http.ResponseWriter, r *http.Request) {
	log := middleware.GetLogger(r.Context())

	if err := a.cache.Clear(r.Context()); err != nil {
		log.Warn("cache clear did not complete cleanly", "error", err)
		writeJSON(w, map[string]any{"cleared": false, "error": err.Error()})
		return
	}
	writeJSON(w, map[string]any{"cleared": true})
}

func (a *Application) cacheCleanupHandler(w http.ResponseWriter, r *http.Request) {
	removed, err := a.cache.Cleanup(r.Context())
	if err != nil {
		writeJSON(w, map[string]any{"removed": removed, "error": err.Error()})
		return
	}
	writeJSON(w, map[string]any{"removed": removed})
}

func (a *Application) queueResetHandler(w http.ResponseWriter, r *http.Request) {
	removed := a.admission.Reset()
	writeJSON(w, map[string]any{"removed_queues": removed})
}

// queueUpdateHandler sets one model's admission limits. Absent fields keep
// their current value; the model key may be a glob.
func (a *Application) queueUpdateHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Model         string `json:"model"`
		ParallelLimit *int   `json:"parallel_limit"`
		QueueLimit    *int   `json:"queue_limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "request body is not valid JSON", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(body.Model) == "" {
		http.Error(w, "model is required", http.StatusBadRequest)
		return
	}

	parallel, queueLimit := 0, -1
	if body.ParallelLimit != nil {
		if *body.ParallelLimit < 1 {
			http.Error(w, "parallel_limit must be at least 1", http.StatusBadRequest)
			return
		}
		parallel = *body.ParallelLimit
	}
	if body.QueueLimit != nil {
		if *body.QueueLimit < 0 {
			http.Error(w, "queue_limit must not be negative", http.StatusBadRequest)
			return
		}
		queueLimit = *body.QueueLimit
	}

	next := a.admission.UpdateLimits(body.Model, parallel, queueLimit)
	writeJSON(w, map[string]any{
		"model":          body.Model,
		"parallel_limit": next.ParallelLimit,
		"queue_limit":    next.QueueLimit,
	})
}

// scannerToggleHandler enables or disables a single scanner on one pipeline.
func (a *Application) scannerToggleHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("scanner")

	var body struct {
		Side    string `json:"side"`
		Enabled bool   `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "request body is not valid JSON", http.StatusBadRequest)
		return
	}

	var pipe *scanner.Pipeline
	switch domain.ScanSide(body.Side) {
	case domain.ScanSideInput:
		pipe = a.inputPipe
	case domain.ScanSideOutput:
		pipe = a.outputPipe
	default:
		http.Error(w, "side must be \"input\" or \"output\"", http.StatusBadRequest)
		return
	}

	if !pipe.SetScannerEnabled(name, body.Enabled) {
		http.Error(w, "unknown scanner: "+name, http.StatusNotFound)
		return
	}

	log := middleware.GetLogger(r.Context())
	log.Info("scanner toggled", "scanner", name, "side", body.Side, "enabled", body.Enabled)

	writeJSON(w, map[string]any{
		"scanner": name,
		"side":    body.Side,
		"enabled": body.Enabled,
	})
}
