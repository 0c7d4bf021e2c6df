package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/Strob0t/Tasktrack/internal/domain/user"
	"github.com/Strob0t/Tasktrack/internal/logger"
	"github.com/Strob0t/Tasktrack/internal/service"
)

type principalCtxKey struct{}

// publicPaths are exempt from authentication.
var publicPaths = map[string]bool{
	"/health":       true,
	"/health/ready": true,
}

// Auth returns middleware that verifies the bearer token and stores the
// resulting principal in the request context. When authentication is
// disabled every request acts as the configured default admin.
func Auth(authSvc *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !authSvc.Enabled() {
				next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), authSvc.DefaultPrincipal())))
				return
			}

			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, `{"error":"authorization required","code":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				http.Error(w, `{"error":"invalid authorization header","code":"unauthorized"}`, http.StatusUnauthorized)
				return
			}

			claims, err := authSvc.ValidateAccessToken(token)
			if err != nil {
				http.Error(w, `{"error":"invalid token","code":"unauthorized"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), claims.Principal())))
		})
	}
}

// WithPrincipal returns a context carrying p. The principal id is also
// attached to log records.
func WithPrincipal(ctx context.Context, p user.Principal) context.Context {
	ctx = context.WithValue(ctx, principalCtxKey{}, p)
	return logger.WithPrincipalID(ctx, p.ID)
}

// PrincipalFromContext returns the authenticated principal of the request.
func PrincipalFromContext(ctx context.Context) (user.Principal, bool) {
	p, ok := ctx.Value(principalCtxKey{}).(user.Principal)
	return p, ok
}
