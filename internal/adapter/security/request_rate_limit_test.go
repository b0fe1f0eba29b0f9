package security

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/paddockhq/paddock/internal/config"
	"github.com/paddockhq/paddock/internal/core/ports"
	"github.com/paddockhq/paddock/internal/logger"
	"github.com/paddockhq/paddock/internal/util"
)

func createTestRateLimitLogger() logger.StyledLogger {
	loggerCfg := &logger.Config{Level: "error", Theme: "default"}
	log, _, _ := logger.New(loggerCfg)
	return logger.NewPlainStyledLogger(log)
}

func TestNewRateLimitValidator(t *testing.T) {
	cidrs := []string{"192.168.0.0/16", "10.0.0.0/8"}
	trustedCIDRs, _ := util.ParseCIDRs(cidrs)
	limits := config.ServerRateLimits{
		GlobalRequestsPerMinute: 1000,
		PerIPRequestsPerMinute:  100,
		BurstSize:               50,
		AdminRequestsPerMinute:  500,
		CleanupInterval:         time.Minute,
		TrustProxyHeaders:       true,
		TrustedProxyCIDRs:       cidrs,
		TrustedProxyCIDRsParsed: trustedCIDRs,
	}

	validator := NewRateLimitValidator(limits, nil, createTestRateLimitLogger())
	defer validator.Stop()

	if validator.Name() != "rate_limit" {
		t.Errorf("Expected name 'rate_limit', got %q", validator.Name())
	}
	if validator.globalRequestsPerMinute != 1000 {
		t.Errorf("Expected global limit 1000, got %d", validator.globalRequestsPerMinute)
	}
	if validator.perIPRequestsPerMinute != 100 {
		t.Errorf("Expected per-IP limit 100, got %d", validator.perIPRequestsPerMinute)
	}
	if validator.burstSize != 50 {
		t.Errorf("Expected burst size 50, got %d", validator.burstSize)
	}
	if validator.adminRequestsPerMinute != 500 {
		t.Errorf("Expected admin limit 500, got %d", validator.adminRequestsPerMinute)
	}
	if !validator.trustProxyHeaders {
		t.Error("Expected trust proxy headers to be true")
	}
	if validator.globalLimiter == nil {
		t.Error("Expected global limiter to be initialised")
	}
	if len(validator.trustedCIDRs) != 2 {
		t.Errorf("Expected 2 trusted CIDRs, got %d", len(validator.trustedCIDRs))
	}
}

func TestRateLimitValidator_Validate_Disabled(t *testing.T) {
	limits := config.ServerRateLimits{
		GlobalRequestsPerMinute: 0,
		PerIPRequestsPerMinute:  0,
		BurstSize:               10,
		CleanupInterval:         time.Minute,
	}

	validator := NewRateLimitValidator(limits, nil, createTestRateLimitLogger())
	defer validator.Stop()

	req := ports.SecurityRequest{
		ClientID: "192.168.1.100",
		Endpoint: "/api/test",
		Method:   "POST",
	}

	for i := 0; i < 10; i++ {
		result, err := validator.Validate(context.Background(), req)
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if !result.Allowed {
			t.Errorf("Request %d should be allowed when limits are disabled", i+1)
		}
	}

	if validator.globalLimiter != nil {
		t.Error("Global limiter should not be initialised when global limit is 0")
	}
}

func TestRateLimitValidator_Validate_AdminEndpoint(t *testing.T) {
	limits := config.ServerRateLimits{
		GlobalRequestsPerMinute: 0,
		PerIPRequestsPerMinute:  60,
		AdminRequestsPerMinute:  300,
		BurstSize:               3,
		CleanupInterval:         time.Minute,
	}

	validator := NewRateLimitValidator(limits, nil, createTestRateLimitLogger())
	defer validator.Stop()

	ctx := context.Background()
	clientIP := "192.168.1.100"

	regularReq := ports.SecurityRequest{
		ClientID: clientIP,
		Endpoint: "/api/chat",
		Method:   "POST",
	}

	adminReq := ports.SecurityRequest{
		ClientID: clientIP,
		Endpoint: "/health",
		Method:   "GET",
		IsAdmin:  true,
	}

	regularResult, err := validator.Validate(ctx, regularReq)
	if err != nil {
		t.Fatalf("Regular request validation failed: %v", err)
	}
	if regularResult.RateLimit != 60 {
		t.Errorf("Expected regular limit 60, got %d", regularResult.RateLimit)
	}

	adminResult, err := validator.Validate(ctx, adminReq)
	if err != nil {
		t.Fatalf("Admin request validation failed: %v", err)
	}
	if adminResult.RateLimit != 300 {
		t.Errorf("Expected admin limit 300, got %d", adminResult.RateLimit)
	}
}

func TestRateLimitValidator_Validate_BurstCapacity(t *testing.T) {
	limits := config.ServerRateLimits{
		GlobalRequestsPerMinute: 0,
		PerIPRequestsPerMinute:  60,
		BurstSize:               3,
		CleanupInterval:         time.Minute,
	}

	validator := NewRateLimitValidator(limits, nil, createTestRateLimitLogger())
	defer validator.Stop()

	ctx := context.Background()
	req := ports.SecurityRequest{
		ClientID: "192.168.1.100",
		Endpoint: "/api/test",
		Method:   "POST",
	}

	successCount := 0
	rateLimitedCount := 0

	for i := 0; i < 10; i++ {
		result, err := validator.Validate(ctx, req)
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}

		if result.Allowed {
			successCount++
		} else {
			rateLimitedCount++
			if result.RetryAfter == 0 {
				t.Error("Expected Retry-After guidance when rate limited")
			}
		}
	}

	if successCount == 0 {
		t.Error("Expected some successful requests")
	}
	if rateLimitedCount == 0 {
		t.Log("No rate limiting triggered - this may be acceptable with token refill timing")
	}
}

func TestRateLimitValidator_Validate_PerIPIsolation(t *testing.T) {
	limits := config.ServerRateLimits{
		GlobalRequestsPerMinute: 0,
		PerIPRequestsPerMinute:  60,
		BurstSize:               2,
		CleanupInterval:         time.Minute,
	}

	validator := NewRateLimitValidator(limits, nil, createTestRateLimitLogger())
	defer validator.Stop()

	ctx := context.Background()

	req1 := ports.SecurityRequest{
		ClientID: "192.168.1.100",
		Endpoint: "/api/test",
		Method:   "POST",
	}

	req2 := ports.SecurityRequest{
		ClientID: "192.168.1.101",
		Endpoint: "/api/test",
		Method:   "POST",
	}

	ip1Blocked := false
	for i := 0; i < 10; i++ {
		result, err := validator.Validate(ctx, req1)
		if err != nil {
			t.Fatalf("IP1 validation failed: %v", err)
		}
		if !result.Allowed {
			ip1Blocked = true
			break
		}
		time.Sleep(time.Millisecond)
	}

	result2, err := validator.Validate(ctx, req2)
	if err != nil {
		t.Fatalf("IP2 validation failed: %v", err)
	}
	if !result2.Allowed {
		t.Error("IP2 should be allowed (separate limiter)")
	}

	t.Logf("IP1 blocked: %v", ip1Blocked)
}

func TestRateLimitValidator_Validate_AdminBucketIsolation(t *testing.T) {
	limits := config.ServerRateLimits{
		GlobalRequestsPerMinute: 0,
		PerIPRequestsPerMinute:  60,
		AdminRequestsPerMinute:  600,
		BurstSize:               1,
		CleanupInterval:         time.Minute,
	}

	validator := NewRateLimitValidator(limits, nil, createTestRateLimitLogger())
	defer validator.Stop()

	ctx := context.Background()
	clientIP := "192.168.1.100"

	// exhaust the inference bucket
	inferenceBlocked := false
	for i := 0; i < 5; i++ {
		result, err := validator.Validate(ctx, ports.SecurityRequest{
			ClientID: clientIP,
			Endpoint: "/api/chat",
			Method:   "POST",
		})
		if err != nil {
			t.Fatalf("Validation failed: %v", err)
		}
		if !result.Allowed {
			inferenceBlocked = true
			break
		}
	}
	if !inferenceBlocked {
		t.Log("Inference bucket not exhausted - token refill timing")
	}

	// admin traffic runs on its own bucket and is still admitted
	adminResult, err := validator.Validate(ctx, ports.SecurityRequest{
		ClientID: clientIP,
		Endpoint: "/health",
		Method:   "GET",
		IsAdmin:  true,
	})
	if err != nil {
		t.Fatalf("Admin validation failed: %v", err)
	}
	if !adminResult.Allowed {
		t.Error("Admin request should use a separate bucket")
	}
}

func TestRateLimitValidator_Validate_GlobalLimit(t *testing.T) {
	limits := config.ServerRateLimits{
		GlobalRequestsPerMinute: 180,
		PerIPRequestsPerMinute:  600,
		BurstSize:               3,
		CleanupInterval:         time.Minute,
	}

	validator := NewRateLimitValidator(limits, nil, createTestRateLimitLogger())
	defer validator.Stop()

	ctx := context.Background()
	ips := []string{"192.168.1.100", "192.168.1.101", "192.168.1.102"}
	globalBlocked := false

	for i := 0; i < 20; i++ {
		ip := ips[i%len(ips)]
		req := ports.SecurityRequest{
			ClientID: ip,
			Endpoint: "/api/test",
			Method:   "POST",
		}

		result, err := validator.Validate(ctx, req)
		if err != nil {
			t.Fatalf("Global limit validation failed: %v", err)
		}

		if !result.Allowed {
			globalBlocked = true
			break
		}
	}

	if !globalBlocked {
		t.Log("Global rate limiting not triggered - this may be due to token refill timing")
	}
}

func TestRateLimitValidator_Validate_ConcurrentAccess(t *testing.T) {
	limits := config.ServerRateLimits{
		GlobalRequestsPerMinute: 0,
		PerIPRequestsPerMinute:  300,
		BurstSize:               5,
		CleanupInterval:         time.Minute,
	}

	validator := NewRateLimitValidator(limits, nil, createTestRateLimitLogger())
	defer validator.Stop()

	ctx := context.Background()
	var wg sync.WaitGroup
	errors := make(chan error, 100)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			req := ports.SecurityRequest{
				ClientID: "192.168.1.100",
				Endpoint: "/api/test",
				Method:   "POST",
			}

			for j := 0; j < 10; j++ {
				_, err := validator.Validate(ctx, req)
				if err != nil {
					errors <- err
				}
			}
		}(i)
	}

	wg.Wait()
	close(errors)

	for err := range errors {
		t.Errorf("Concurrent access error: %v", err)
	}
}

func TestRateLimitValidator_Cleanup(t *testing.T) {
	limits := config.ServerRateLimits{
		GlobalRequestsPerMinute: 0,
		PerIPRequestsPerMinute:  100,
		BurstSize:               10,
		CleanupInterval:         50 * time.Millisecond,
	}

	validator := NewRateLimitValidator(limits, nil, createTestRateLimitLogger())
	defer validator.Stop()

	ctx := context.Background()

	for i := 0; i < 5; i++ {
		req := ports.SecurityRequest{
			ClientID: fmt.Sprintf("192.168.1.%d", 100+i),
			Endpoint: "/api/test",
			Method:   "POST",
		}
		_, err := validator.Validate(ctx, req)
		if err != nil {
			t.Fatalf("Validation failed: %v", err)
		}
	}

	limiterCount := 0
	validator.ipLimiters.Range(func(key, value interface{}) bool {
		limiterCount++
		return true
	})

	if limiterCount != 5 {
		t.Errorf("Expected 5 IP limiters, got %d", limiterCount)
	}

	validator.ipLimiters.Range(func(key, value interface{}) bool {
		limiterInfo := value.(*ipLimiterInfo)
		limiterInfo.mu.Lock()
		limiterInfo.lastAccess = time.Now().Add(-11 * time.Minute)
		limiterInfo.mu.Unlock()
		return true
	})

	time.Sleep(100 * time.Millisecond)

	limiterCountAfter := 0
	validator.ipLimiters.Range(func(key, value interface{}) bool {
		limiterCountAfter++
		return true
	})

	if limiterCountAfter != 0 {
		t.Errorf("Expected 0 IP limiters after cleanup, got %d", limiterCountAfter)
	}
}

func TestRateLimitValidator_Stop_Idempotent(t *testing.T) {
	limits := config.ServerRateLimits{
		PerIPRequestsPerMinute: 100,
		BurstSize:              10,
		CleanupInterval:        time.Minute,
	}

	validator := NewRateLimitValidator(limits, nil, createTestRateLimitLogger())

	validator.Stop()
	validator.Stop() // must not panic on a closed channel
}

func TestIsAdminPath(t *testing.T) {
	adminPaths := []string{
		"/health", "/version", "/stats", "/config",
		"/queue/stats", "/queue/memory",
		"/admin/cache/clear", "/admin/cache/cleanup",
		"/admin/queue/reset", "/admin/queue/update",
	}
	for _, path := range adminPaths {
		if !IsAdminPath(path) {
			t.Errorf("Expected %q to be an admin path", path)
		}
	}

	inferencePaths := []string{
		"/api/chat", "/api/generate", "/api/embed", "/api/tags",
		"/v1/chat/completions", "/v1/completions", "/v1/models", "/",
	}
	for _, path := range inferencePaths {
		if IsAdminPath(path) {
			t.Errorf("Expected %q to not be an admin path", path)
		}
	}
}

func TestRateLimitValidator_Middleware_AlwaysSetsHeaders(t *testing.T) {
	limits := config.ServerRateLimits{
		PerIPRequestsPerMinute: 60,
		BurstSize:              5,
		CleanupInterval:        time.Minute,
	}

	validator := NewRateLimitValidator(limits, nil, createTestRateLimitLogger())
	defer validator.Stop()

	handler := validator.CreateMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	r.RemoteAddr = "192.168.1.50:40001"
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
	if w.Header().Get("X-RateLimit-Limit") == "" {
		t.Error("Expected X-RateLimit-Limit header")
	}
	if w.Header().Get("X-RateLimit-Remaining") == "" {
		t.Error("Expected X-RateLimit-Remaining header")
	}
	if w.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("Expected X-RateLimit-Reset header")
	}
}

func TestRateLimitValidator_Middleware_RejectsWith429(t *testing.T) {
	limits := config.ServerRateLimits{
		PerIPRequestsPerMinute: 1,
		BurstSize:              1,
		CleanupInterval:        time.Minute,
	}

	metrics := &recordingMetrics{}
	validator := NewRateLimitValidator(limits, metrics, createTestRateLimitLogger())
	defer validator.Stop()

	handler := validator.CreateMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rejected := false
	for i := 0; i < 5; i++ {
		r := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
		r.RemoteAddr = "192.168.1.51:40002"
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		if w.Code == http.StatusTooManyRequests {
			rejected = true
			if w.Header().Get("Retry-After") == "" {
				t.Error("Expected Retry-After header on 429")
			}
			break
		}
	}

	if !rejected {
		t.Fatal("Expected a 429 after exhausting a burst of 1")
	}
	if metrics.countByType(ports.ViolationRateLimit) == 0 {
		t.Error("Expected rate limit violation to be recorded")
	}
}

func TestRateLimitValidator_Middleware_UsesGateResolvedIP(t *testing.T) {
	limits := config.ServerRateLimits{
		PerIPRequestsPerMinute: 1,
		BurstSize:              1,
		CleanupInterval:        time.Minute,
	}

	validator := NewRateLimitValidator(limits, nil, createTestRateLimitLogger())
	defer validator.Stop()

	handler := validator.CreateMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// two requests from the same socket but distinct gate-resolved IPs
	// land in separate buckets
	for i, ip := range []string{"10.9.9.1", "10.9.9.2"} {
		r := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
		r.RemoteAddr = "127.0.0.1:33000"
		r = r.WithContext(context.WithValue(r.Context(), ClientIPKey, ip))
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		if w.Code != http.StatusOK {
			t.Errorf("Request %d for %s should pass on a fresh bucket, got %d", i, ip, w.Code)
		}
	}
}
