package http

import (
	"net/http"

	"github.com/Strob0t/Tasktrack/internal/domain/issue"
)

// ListIssues handles GET /api/v1/issues. Members only see issues they
// reported or are assigned to.
func (h *Handlers) ListIssues(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	f := issue.ListFilter{
		Status:   issue.Status(q.Get("status")),
		Severity: issue.Severity(q.Get("severity")),
	}
	if f.Status != "" && !issue.ValidStatuses[f.Status] {
		writeError(w, http.StatusBadRequest, codeValidation, "unknown status "+string(f.Status))
		return
	}
	if f.Severity != "" && !issue.ValidSeverities[f.Severity] {
		writeError(w, http.StatusBadRequest, codeValidation, "unknown severity "+string(f.Severity))
		return
	}
	var err error
	if f.Limit, err = queryInt(r, "limit"); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	if f.Offset, err = queryInt(r, "offset"); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, err.Error())
		return
	}

	issues, err := h.Issues.List(r.Context(), p, f)
	if err != nil {
		writeDomainError(w, err, "issue not found")
		return
	}
	writeJSON(w, http.StatusOK, issues)
}
