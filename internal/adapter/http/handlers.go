package http

import (
	"context"
	"net/http"
	"time"

	"github.com/Strob0t/Tasktrack/internal/domain/audit"
	"github.com/Strob0t/Tasktrack/internal/service"
)

// HealthCheck probes one dependency for readiness.
type HealthCheck func(ctx context.Context) error

// Handlers holds the services behind the HTTP API.
type Handlers struct {
	Tasks  *service.TaskService
	Issues *service.IssueService
	Users  *service.UserService
	Audit  *service.AuditService

	// Checks are run by /health/ready, keyed by dependency name.
	Checks map[string]HealthCheck
	// UploadLimit caps the multipart body of /done. Zero applies the evidence default.
	UploadLimit int64
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready runs every dependency check and reports 503 when one fails.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.Checks))
	for name, check := range h.Checks {
		if err := check(ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": overall, "checks": results})
}

// ListAuditLogs handles GET /api/v1/audit-logs.
func (h *Handlers) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	q := r.URL.Query()
	entries, err := h.Audit.List(r.Context(), p, audit.ListFilter{
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		UserID:     q.Get("user_id"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		writeDomainError(w, err, "audit log not found")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
