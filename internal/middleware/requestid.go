// Package middleware provides HTTP middleware for Tasktrack.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/Strob0t/Tasktrack/internal/logger"
)

const (
	headerRequestID = "X-Request-ID"
	maxRequestIDLen = 128
)

// RequestID reuses a caller's X-Request-ID or mints a UUID, stores it in
// the logging context and echoes it on the response. Incoming IDs that are
// too long or contain spaces or control bytes are replaced, since they end
// up in log lines and audit entries.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if !validRequestID(id) {
			id = uuid.NewString()
		}

		ctx := logger.WithRequestID(r.Context(), id)
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := range len(id) {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}
