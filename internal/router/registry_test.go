package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/paddockhq/paddock/internal/logger"
)

func createTestLogger() logger.StyledLogger {
	loggerCfg := &logger.Config{Level: "error", Theme: "default"}
	log, _, _ := logger.New(loggerCfg)
	return logger.NewPlainStyledLogger(log)
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func TestWireUpEnforcesMethod(t *testing.T) {
	registry := NewRouteRegistry(createTestLogger())
	registry.RegisterProxyRoute("/api/generate", okHandler, "generate", http.MethodPost)
	registry.Register("/health", okHandler, "health")

	mux := http.NewServeMux()
	registry.WireUp(mux)

	tests := []struct {
		name     string
		method   string
		path     string
		expected int
	}{
		{"post to generate", http.MethodPost, "/api/generate", http.StatusOK},
		{"get to generate rejected", http.MethodGet, "/api/generate", http.StatusMethodNotAllowed},
		{"delete to generate rejected", http.MethodDelete, "/api/generate", http.StatusMethodNotAllowed},
		{"get to health", http.MethodGet, "/health", http.StatusOK},
		{"post to health rejected", http.MethodPost, "/health", http.StatusMethodNotAllowed},
		{"unknown path", http.MethodGet, "/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rr := httptest.NewRecorder()
			mux.ServeHTTP(rr, req)

			if rr.Code != tt.expected {
				t.Errorf("%s %s: expected status %d, got %d", tt.method, tt.path, tt.expected, rr.Code)
			}
		})
	}
}

// fakeSecurityAdapters satisfies the duck-typed provider the registry wires
// against, tagging responses so tests can see which chain ran.
type fakeSecurityAdapters struct{}

func (f *fakeSecurityAdapters) CreateChainMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Test-Chain", "full")
			next.ServeHTTP(w, r)
		})
	}
}

func (f *fakeSecurityAdapters) CreateRateLimitMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Test-Chain", "rate-only")
			next.ServeHTTP(w, r)
		})
	}
}

func TestWireUpWithSecurityChainRouteClasses(t *testing.T) {
	registry := NewRouteRegistry(createTestLogger())
	registry.RegisterProxyRoute("/api/chat", okHandler, "chat", http.MethodPost)
	registry.Register("/stats", okHandler, "stats")

	mux := http.NewServeMux()
	registry.WireUpWithSecurityChain(mux, &fakeSecurityAdapters{})

	proxyReq := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	proxyRR := httptest.NewRecorder()
	mux.ServeHTTP(proxyRR, proxyReq)

	if got := proxyRR.Header().Get("X-Test-Chain"); got != "full" {
		t.Errorf("Expected proxy route to run the full chain, got %q", got)
	}

	adminReq := httptest.NewRequest(http.MethodGet, "/stats", nil)
	adminRR := httptest.NewRecorder()
	mux.ServeHTTP(adminRR, adminReq)

	if got := adminRR.Header().Get("X-Test-Chain"); got != "rate-only" {
		t.Errorf("Expected admin route to run the rate limiter only, got %q", got)
	}
}

func TestWireUpWithSecurityChainFallsBackWithoutAdapters(t *testing.T) {
	registry := NewRouteRegistry(createTestLogger())
	registry.Register("/version", okHandler, "version")

	mux := http.NewServeMux()
	registry.WireUpWithSecurityChain(mux, nil)

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200 without adapters, got %d", rr.Code)
	}
}

func TestGetRoutesPreservesRegistrationDetails(t *testing.T) {
	registry := NewRouteRegistry(createTestLogger())
	registry.RegisterProxyRoute("/api/embed", okHandler, "embeddings", http.MethodPost)
	registry.Register("/config", okHandler, "config view")

	routes := registry.GetRoutes()

	embed, ok := routes["/api/embed"]
	if !ok {
		t.Fatal("Expected /api/embed to be registered")
	}
	if !embed.IsProxy || embed.Method != http.MethodPost {
		t.Errorf("Expected /api/embed to be a POST proxy route, got method=%s isProxy=%v", embed.Method, embed.IsProxy)
	}

	cfg, ok := routes["/config"]
	if !ok {
		t.Fatal("Expected /config to be registered")
	}
	if cfg.IsProxy {
		t.Error("Expected /config to be an admin route")
	}
	if cfg.Method != http.MethodGet {
		t.Errorf("Expected Register to default to GET, got %s", cfg.Method)
	}
}
