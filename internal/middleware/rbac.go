package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Strob0t/Tasktrack/internal/domain/access"
	"github.com/Strob0t/Tasktrack/internal/domain/user"
)

type roleError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// RequireRole gates a route on the caller's role. It is used for routes
// whose permission does not depend on the target record (task creation,
// stats, user administration, audit log); per-task rules live in
// access.Authorize.
func RequireRole(roles ...user.Role) func(http.Handler) http.Handler {
	allowed := make(map[user.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				writeRoleError(w, http.StatusUnauthorized, "unauthorized", "authorization required")
				return
			}
			if !allowed[p.Role] {
				slog.InfoContext(r.Context(), "route denied by role",
					"principal", p.ID, "role", p.Role, "method", r.Method, "path", r.URL.Path)
				writeRoleError(w, http.StatusForbidden, string(access.ReasonInsufficientRole), "role "+string(p.Role)+" may not use this endpoint")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeRoleError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(roleError{Error: msg, Code: code})
}
