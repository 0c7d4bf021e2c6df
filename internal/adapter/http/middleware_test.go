package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResponseWriterCapturesStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, status: http.StatusOK}

	rw.WriteHeader(http.StatusTeapot)

	if rw.status != http.StatusTeapot {
		t.Fatalf("status = %d, want 418", rw.status)
	}
	if rec.Code != http.StatusTeapot {
		t.Fatalf("recorder code = %d, want 418", rec.Code)
	}
	if rw.Unwrap() != rec {
		t.Fatal("Unwrap should return the wrapped writer")
	}
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name        string
		origins     string
		origin      string
		wantAllow   string
		wantCredent string
	}{
		{"listed origin", "http://localhost:3000, https://tasks.example.com", "https://tasks.example.com", "https://tasks.example.com", "true"},
		{"unlisted origin", "http://localhost:3000", "https://evil.example", "", ""},
		{"wildcard", "*", "https://any.example", "*", ""},
		{"no origin header", "http://localhost:3000", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			h := CORS(tt.origins)(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
				called = true
			}))

			req := httptest.NewRequest(http.MethodOptions, "/api/v1/tasks", http.NoBody)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if called {
				t.Error("preflight should not reach the handler")
			}
			if rec.Code != http.StatusNoContent {
				t.Errorf("status = %d, want 204", rec.Code)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("allow origin = %q, want %q", got, tt.wantAllow)
			}
			if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != tt.wantCredent {
				t.Errorf("allow credentials = %q, want %q", got, tt.wantCredent)
			}
		})
	}
}

func TestResponseWriterCountsBytes(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, status: http.StatusOK}
	_, _ = rw.Write([]byte(`{"id":"T1"}`))
	_, _ = rw.Write([]byte("\n"))
	if rw.bytes != 12 {
		t.Fatalf("bytes = %d, want 12", rw.bytes)
	}
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	for _, header := range []string{"X-Content-Type-Options", "X-Frame-Options", "Content-Security-Policy"} {
		if rec.Header().Get(header) == "" {
			t.Errorf("missing %s", header)
		}
	}
}
