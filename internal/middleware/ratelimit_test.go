package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter(1, 5)
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		if !rl.Allow("key") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	if rl.Allow("key") {
		t.Error("6th request should be denied")
	}
	if !rl.Allow("other") {
		t.Error("a different key has its own bucket")
	}
}

func TestRateLimiterRefill(t *testing.T) {
	rl := NewRateLimiter(1, 3)
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		rl.Allow("key")
	}

	// Should be blocked
	if rl.Allow("key") {
		t.Error("should be blocked with an empty bucket")
	}

	now = now.Add(1100 * time.Millisecond)
	if !rl.Allow("key") {
		t.Error("should be allowed after a token refills")
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(1, 5)
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow("expired")
	now = now.Add(10 * time.Minute)
	rl.Allow("active")

	rl.Cleanup(3 * time.Minute)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.visitors["expired"]; ok {
		t.Error("expired entry should have been cleaned up")
	}
	if _, ok := rl.visitors["active"]; !ok {
		t.Error("active entry should still exist")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)
	keyFunc := func(r *http.Request) string { return "test" }

	handler := RateLimit(rl, keyFunc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// First 2 requests should pass
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("POST", "/", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i+1, rec.Code, http.StatusOK)
		}
	}

	// 3rd request should be rate limited
	req := httptest.NewRequest("POST", "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("3rd request: status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		trustProxy bool
		headers    map[string]string
		want       string
	}{
		{"cloudflare behind proxy", true, map[string]string{"CF-Connecting-IP": "1.1.1.1", "X-Forwarded-For": "2.2.2.2"}, "1.1.1.1"},
		{"forwarded chain behind proxy", true, map[string]string{"X-Forwarded-For": "2.2.2.2, 10.0.0.1"}, "2.2.2.2"},
		{"empty forwarded hop behind proxy", true, map[string]string{"X-Forwarded-For": " , 10.0.0.1"}, "3.3.3.3"},
		{"remote addr behind proxy", true, nil, "3.3.3.3"},
		{"cloudflare header ignored", false, map[string]string{"CF-Connecting-IP": "1.1.1.1"}, "3.3.3.3"},
		{"forwarded header ignored", false, map[string]string{"X-Forwarded-For": "2.2.2.2"}, "3.3.3.3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = "3.3.3.3:80"
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := ClientIP(tt.trustProxy)(req); got != tt.want {
				t.Errorf("ClientIP(%v) = %q, want %q", tt.trustProxy, got, tt.want)
			}
		})
	}
}

func TestRateLimitIgnoresSpoofedHeaders(t *testing.T) {
	limiter := NewRateLimiter(1, 2)
	handler := RateLimit(limiter, ClientIP(false))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	codes := make([]int, 0, 3)
	for i := range 3 {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "3.3.3.3:80"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("statuses = %v, want the third request limited", codes)
	}
	if n := len(limiter.visitors); n != 1 {
		t.Errorf("visitors = %d, want 1", n)
	}
}
