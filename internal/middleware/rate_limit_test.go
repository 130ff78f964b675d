package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func limitedHandler(rl *RateLimiter) http.Handler {
	return rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func requestFrom(remoteAddr string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.RemoteAddr = remoteAddr
	return req
}

func TestRateLimiter_BasicFunctionality(t *testing.T) {
	rl := NewRateLimiter(context.Background(), 2, 2) // 2 req/sec, burst 2
	defer rl.Stop()

	handler := limitedHandler(rl)

	for i := 1; i <= 2; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, requestFrom("192.168.1.1:1234"))
		if rr.Code != http.StatusOK {
			t.Errorf("request %d: expected status 200, got %d", i, rr.Code)
		}
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, requestFrom("192.168.1.1:1234"))

	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("third request: expected status 429, got %d", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Retry-After = %q, want 1", got)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestRateLimiter_PerIPLimiting(t *testing.T) {
	rl := NewRateLimiter(context.Background(), 1, 1)
	defer rl.Stop()

	handler := limitedHandler(rl)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, requestFrom("192.168.1.1:1234"))
	if rr.Code != http.StatusOK {
		t.Fatalf("IP 1 first request: expected 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, requestFrom("192.168.1.2:1234"))
	if rr.Code != http.StatusOK {
		t.Errorf("IP 2 first request: expected 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, requestFrom("192.168.1.1:1234"))
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("IP 1 second request: expected 429, got %d", rr.Code)
	}
}

func TestRateLimiter_KeysByHostNotPort(t *testing.T) {
	rl := NewRateLimiter(context.Background(), 1, 1)
	defer rl.Stop()

	handler := limitedHandler(rl)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, requestFrom("10.0.0.7:5000"))
	if rr.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", rr.Code)
	}

	// Same client on a new ephemeral port shares the bucket
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, requestFrom("10.0.0.7:5001"))
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("second port: expected 429, got %d", rr.Code)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remoteAddr string
		want       string
	}{
		{"192.168.1.1:1234", "192.168.1.1"},
		{"[::1]:8080", "::1"},
		{"203.0.113.9", "203.0.113.9"},
	}

	for _, tt := range tests {
		t.Run(tt.remoteAddr, func(t *testing.T) {
			if got := clientIP(requestFrom(tt.remoteAddr)); got != tt.want {
				t.Errorf("clientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	tests := []struct {
		limit rate.Limit
		want  int
	}{
		{20, 1},
		{1, 1},
		{0.5, 2},
		{0.1, 10},
		{0, 1},
	}

	for _, tt := range tests {
		if got := retryAfterSeconds(tt.limit); got != tt.want {
			t.Errorf("retryAfterSeconds(%v) = %d, want %d", tt.limit, got, tt.want)
		}
	}
}

func TestRateLimiter_CleanupExpired(t *testing.T) {
	rl := NewRateLimiter(context.Background(), 10, 1)
	defer rl.Stop()

	for i := 0; i < 100; i++ {
		_ = rl.getLimiter(fmt.Sprintf("192.168.1.%d", i))
	}

	rl.mu.Lock()
	if len(rl.limiters) != 100 {
		t.Errorf("expected 100 limiters, got %d", len(rl.limiters))
	}
	for i := 0; i < 50; i++ {
		rl.limiters[fmt.Sprintf("192.168.1.%d", i)].lastAccess = time.Now().Add(-20 * time.Minute)
	}
	rl.mu.Unlock()

	rl.cleanup(time.Now())

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.limiters) != 50 {
		t.Errorf("expected 50 limiters after cleanup, got %d", len(rl.limiters))
	}
	if _, ok := rl.limiters["192.168.1.0"]; ok {
		t.Error("expired limiter survived cleanup")
	}
	if _, ok := rl.limiters["192.168.1.99"]; !ok {
		t.Error("active limiter was removed")
	}
}

func TestRateLimiter_LRUEviction(t *testing.T) {
	rl := NewRateLimiter(context.Background(), 10, 1)
	defer rl.Stop()

	base := time.Now()
	numLimiters := maxLimiters + 500
	for i := 0; i < numLimiters; i++ {
		key := fmt.Sprintf("ip-%d", i)
		_ = rl.getLimiter(key)
		rl.mu.Lock()
		rl.limiters[key].lastAccess = base.Add(time.Duration(i) * time.Millisecond)
		rl.mu.Unlock()
	}

	rl.cleanup(base.Add(time.Minute))

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.limiters) != maxLimiters/2 {
		t.Errorf("expected %d limiters, got %d", maxLimiters/2, len(rl.limiters))
	}
	if _, ok := rl.limiters["ip-0"]; ok {
		t.Error("oldest limiter survived eviction")
	}
	if _, ok := rl.limiters[fmt.Sprintf("ip-%d", numLimiters-1)]; !ok {
		t.Error("newest limiter was evicted")
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	rl := NewRateLimiter(context.Background(), 100, 10)
	defer rl.Stop()

	handler := limitedHandler(rl)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				rr := httptest.NewRecorder()
				handler.ServeHTTP(rr, requestFrom(fmt.Sprintf("10.1.0.%d:1234", id)))
			}
		}(i)
	}
	wg.Wait()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.limiters) != 50 {
		t.Errorf("expected 50 limiters, got %d", len(rl.limiters))
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(context.Background(), 1, 1)
	rl.Stop()
	rl.Stop()
}

func TestRateLimiter_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rl := NewRateLimiter(ctx, 1, 1)
	defer rl.Stop()

	cancel()

	// The limiter keeps serving after its cleanup loop has stopped
	rr := httptest.NewRecorder()
	limitedHandler(rl).ServeHTTP(rr, requestFrom("10.9.9.9:1"))
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200 after cancellation, got %d", rr.Code)
	}
}
