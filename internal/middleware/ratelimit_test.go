package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Strob0t/Tasktrack/internal/domain/user"
)

// hit sends one anonymous request from addr and returns the recorder.
func hit(h http.Handler, addr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/T1/start", http.NoBody)
	req.RemoteAddr = addr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func okLimited(rl *RateLimiter) http.Handler {
	return rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestRateLimiterBurst(t *testing.T) {
	tests := []struct {
		name     string
		burst    int
		requests int
		wantLast int
	}{
		{"within burst", 10, 10, http.StatusOK},
		{"one over burst", 5, 6, http.StatusTooManyRequests},
		{"burst of one", 1, 2, http.StatusTooManyRequests},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := okLimited(NewRateLimiter(10, tt.burst))
			var rec *httptest.ResponseRecorder
			for range tt.requests {
				rec = hit(h, "192.168.1.1:4000")
			}
			if rec.Code != tt.wantLast {
				t.Fatalf("last status = %d, want %d", rec.Code, tt.wantLast)
			}
			if rec.Header().Get("X-RateLimit-Remaining") == "" || rec.Header().Get("X-RateLimit-Reset") == "" {
				t.Error("missing rate limit headers")
			}
			if tt.wantLast == http.StatusTooManyRequests {
				if rec.Header().Get("Retry-After") == "" {
					t.Error("missing Retry-After")
				}
				if !strings.Contains(rec.Body.String(), `"rate_limited"`) {
					t.Errorf("body = %s", rec.Body.String())
				}
			}
		})
	}
}

func TestRateLimiterAnonymousByIP(t *testing.T) {
	h := okLimited(NewRateLimiter(10, 2))
	hit(h, "10.0.0.1:1111")
	hit(h, "10.0.0.1:2222")

	// The port is ignored: a new connection from the same host shares the bucket.
	if rec := hit(h, "10.0.0.1:3333"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("10.0.0.1: status = %d, want 429", rec.Code)
	}
	if rec := hit(h, "10.0.0.2:1111"); rec.Code != http.StatusOK {
		t.Errorf("10.0.0.2: status = %d, want 200", rec.Code)
	}
}

func TestRateLimiterPerPrincipal(t *testing.T) {
	rl := NewRateLimiter(10, 1)
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(id string) int {
		req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		req.RemoteAddr = "10.0.0.1:1234"
		req = req.WithContext(WithPrincipal(req.Context(), user.Principal{ID: id, Role: user.RoleMember, OrgID: "org-1"}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send("u-1"); code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", code)
	}
	if code := send("u-1"); code != http.StatusTooManyRequests {
		t.Errorf("u-1 second request: expected 429, got %d", code)
	}
	// Same IP, different principal.
	if code := send("u-2"); code != http.StatusOK {
		t.Errorf("u-2: expected 200, got %d", code)
	}
	if rl.Len() != 2 {
		t.Errorf("Len() = %d, want 2", rl.Len())
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(10, 5)
	rl.allow("ip:10.0.0.1")
	rl.allow("ip:10.0.0.2")

	rl.cleanup(time.Hour)
	if rl.Len() != 2 {
		t.Fatalf("fresh buckets removed: Len() = %d", rl.Len())
	}

	rl.cleanup(-time.Second)
	if rl.Len() != 0 {
		t.Errorf("stale buckets kept: Len() = %d", rl.Len())
	}
}

func TestRateLimiterSetLimits(t *testing.T) {
	rl := NewRateLimiter(10, 1)
	if _, _, ok := rl.allow("ip:10.0.0.9"); !ok {
		t.Fatal("first request should pass")
	}
	if _, _, ok := rl.allow("ip:10.0.0.9"); ok {
		t.Fatal("second request should exceed burst 1")
	}

	rl.SetLimits(10, 5)
	if _, _, ok := rl.allow("ip:10.0.0.10"); !ok {
		t.Fatal("new key should pass")
	}
	if _, _, ok := rl.allow("ip:10.0.0.10"); !ok {
		t.Fatal("raised burst should allow a second request")
	}
}
