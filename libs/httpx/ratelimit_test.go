package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(h http.Handler, ip string) int {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots", nil)
	req.Header.Set("X-Forwarded-For", ip)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestRateLimiterInMemory(t *testing.T) {
	h := NewRateLimiter(2, time.Minute).Middleware()(okHandler())
	for i := 0; i < 2; i++ {
		if code := doRequest(h, "10.0.0.1"); code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, code)
		}
	}
	if code := doRequest(h, "10.0.0.1"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
	if code := doRequest(h, "10.0.0.2"); code != http.StatusOK {
		t.Fatalf("expected other client to pass, got %d", code)
	}
}

func TestRedisRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	h := NewRedisRateLimiter(rdb, 2, time.Minute, "test").Middleware(nil, false)(okHandler())
	for i := 0; i < 2; i++ {
		if code := doRequest(h, "10.0.0.1"); code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, code)
		}
	}
	if code := doRequest(h, "10.0.0.1"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}

	mr.FastForward(2 * time.Minute)
	if code := doRequest(h, "10.0.0.1"); code != http.StatusOK {
		t.Fatalf("expected window reset, got %d", code)
	}
}

func TestRedisRateLimiterFailOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	mr.Close()

	open := NewRedisRateLimiter(rdb, 1, time.Minute, "test").Middleware(nil, true)(okHandler())
	if code := doRequest(open, "10.0.0.1"); code != http.StatusOK {
		t.Fatalf("expected fail-open 200, got %d", code)
	}
	closed := NewRedisRateLimiter(rdb, 1, time.Minute, "test").Middleware(nil, false)(okHandler())
	if code := doRequest(closed, "10.0.0.1"); code != http.StatusServiceUnavailable {
		t.Fatalf("expected fail-closed 503, got %d", code)
	}
}

func TestRateLimitRejectionBody(t *testing.T) {
	h := NewRateLimiter(1, 30*time.Second).Middleware()(okHandler())
	doRequest(h, "10.0.0.9")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/appointments", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.9, 172.16.0.1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "30" {
		t.Fatalf("unexpected Retry-After %q", rec.Header().Get("Retry-After"))
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "RATE_LIMITED" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestRateLimiterSweepsExpiredClients(t *testing.T) {
	clock := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, time.Minute)
	rl.now = func() time.Time { return clock }

	ctx := context.Background()
	for _, key := range []string{"a", "b", "c"} {
		if ok, _ := rl.Allow(ctx, key); !ok {
			t.Fatalf("first request for %s should pass", key)
		}
	}
	if ok, _ := rl.Allow(ctx, "a"); ok {
		t.Fatal("second request inside the window should be rejected")
	}

	clock = clock.Add(2 * time.Minute)
	if ok, _ := rl.Allow(ctx, "a"); !ok {
		t.Fatal("expected a fresh window")
	}
	if len(rl.visitors) != 1 {
		t.Fatalf("expected expired clients to be swept, have %d", len(rl.visitors))
	}
}
