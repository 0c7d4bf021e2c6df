package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/Tasktrack/internal/domain/task"
	"github.com/Strob0t/Tasktrack/internal/domain/user"
	"github.com/Strob0t/Tasktrack/internal/middleware"
)

// MountRoutes registers all API routes on the given chi router. Role
// checks here only reject early; the services enforce the same rules.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", h.Health)
	r.Get("/health/ready", h.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		r.Get("/me", h.Me)

		// Tasks
		r.Get("/tasks", h.ListTasks)
		r.With(middleware.RequireRole(user.RoleManager, user.RoleAdmin)).Post("/tasks", handleCreate(h.Tasks.Create))
		r.Get("/tasks/my", h.ListMyTasks)
		r.With(middleware.RequireRole(user.RoleManager, user.RoleAdmin)).Get("/tasks/stats", h.TaskStats)
		r.Get("/tasks/{id}", h.GetTask)
		r.Patch("/tasks/{id}", h.UpdateTask)
		r.Delete("/tasks/{id}", handleDelete(h.Tasks.Delete, "task not found"))

		// Workflow
		r.Post("/tasks/{id}/start", h.Transition(task.ActionStart))
		r.Post("/tasks/{id}/done", h.MarkDone)
		r.Post("/tasks/{id}/verify", h.Transition(task.ActionVerify))
		r.Post("/tasks/{id}/reject", h.Transition(task.ActionReject))
		r.Post("/tasks/{id}/approve", h.Transition(task.ActionApprove))
		r.Post("/tasks/{id}/reassign", h.ReassignTask)
		r.Get("/tasks/{id}/document", h.GetTaskDocument)

		// Issues
		r.Get("/issues", h.ListIssues)
		r.Post("/issues", handleCreate(h.Issues.Create))
		r.Get("/issues/{id}", handleGet(h.Issues.Get, "issue not found"))
		r.Patch("/issues/{id}", handleUpdate(h.Issues.Update, "issue not found"))
		r.Delete("/issues/{id}", handleDelete(h.Issues.Delete, "issue not found"))

		// User directory
		r.Get("/users", h.ListUsers)
		r.Get("/users/assignable", h.ListAssignableUsers)
		r.With(middleware.RequireRole(user.RoleManager, user.RoleAdmin)).Get("/users/{id}", handleGet(h.Users.Lookup, "user not found"))
		r.With(middleware.RequireRole(user.RoleAdmin)).Post("/users", handleCreate(h.Users.Create))
		r.With(middleware.RequireRole(user.RoleAdmin)).Patch("/users/{id}", handleUpdate(h.Users.Update, "user not found"))

		// Audit
		r.With(middleware.RequireRole(user.RoleAdmin)).Get("/audit-logs", h.ListAuditLogs)
	})
}
