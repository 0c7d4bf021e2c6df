package http

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"strconv"

	"github.com/Strob0t/Tasktrack/internal/domain"
	"github.com/Strob0t/Tasktrack/internal/domain/evidence"
	"github.com/Strob0t/Tasktrack/internal/domain/task"
	"github.com/Strob0t/Tasktrack/internal/domain/user"
	"github.com/Strob0t/Tasktrack/internal/service"
)

// multipartMemory is how much of an upload ParseMultipartForm keeps in
// memory before spilling to a temp file.
const multipartMemory = 4 << 20

// taskFilter parses the list query parameters shared by /tasks and /tasks/my.
func taskFilter(r *http.Request) (task.ListFilter, error) {
	q := r.URL.Query()
	statuses, err := task.ParseStatusFilter(q.Get("status"))
	if err != nil {
		return task.ListFilter{}, err
	}
	f := task.ListFilter{
		Statuses:   statuses,
		Priority:   task.Priority(q.Get("priority")),
		AssignedTo: q.Get("assigned_to"),
	}
	if f.Priority != "" && !task.ValidPriorities[f.Priority] {
		return task.ListFilter{}, errors.New("unknown priority " + strconv.Quote(string(f.Priority)))
	}
	if f.Limit, err = queryInt(r, "limit"); err != nil {
		return task.ListFilter{}, err
	}
	if f.Offset, err = queryInt(r, "offset"); err != nil {
		return task.ListFilter{}, err
	}
	return f, nil
}

// ListTasks handles GET /api/v1/tasks.
func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	h.listTasks(w, r, h.Tasks.List)
}

// ListMyTasks handles GET /api/v1/tasks/my.
func (h *Handlers) ListMyTasks(w http.ResponseWriter, r *http.Request) {
	h.listTasks(w, r, h.Tasks.ListMine)
}

func (h *Handlers) listTasks(w http.ResponseWriter, r *http.Request, list func(ctx context.Context, p user.Principal, f task.ListFilter) ([]task.Task, error)) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	f, err := taskFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, trimSentinel(err, domain.ErrValidation))
		return
	}
	tasks, err := list(r.Context(), p, f)
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

// TaskStats handles GET /api/v1/tasks/stats.
func (h *Handlers) TaskStats(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	stats, err := h.Tasks.Stats(r.Context(), p)
	if err != nil {
		writeDomainError(w, err, "stats not found")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GetTask handles GET /api/v1/tasks/{id}. The version is exposed as an
// ETag for use with If-Match on PATCH.
func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	t, err := h.Tasks.Get(r.Context(), p, urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	setETag(w, t)
	writeJSON(w, http.StatusOK, t)
}

// UpdateTask handles PATCH /api/v1/tasks/{id}.
func (h *Handlers) UpdateTask(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	expected, err := ifMatchVersion(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	patch, ok := readJSON[task.Patch](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	t, err := h.Tasks.Update(r.Context(), p, urlParam(r, "id"), &patch, expected)
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	setETag(w, t)
	writeJSON(w, http.StatusOK, t)
}

// Transition returns a handler for a body-less workflow action.
func (h *Handlers) Transition(action task.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.transition(w, r, service.TransitionRequest{Action: action})
	}
}

type markDoneRequest struct {
	SkipDocument bool `json:"skip_document"`
}

// MarkDone handles POST /api/v1/tasks/{id}/done. The body is either
// multipart/form-data with an optional "document" file and a
// "skip_document" flag, a JSON markDoneRequest, or empty.
func (h *Handlers) MarkDone(w http.ResponseWriter, r *http.Request) {
	req := service.TransitionRequest{Action: task.ActionMarkDone}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		limit := h.UploadLimit
		if limit <= 0 {
			limit = evidence.DefaultMaxBytes
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit+maxRequestBodySize)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeError(w, http.StatusRequestEntityTooLarge, codePayloadTooLarge, "document exceeds the upload limit")
				return
			}
			writeError(w, http.StatusBadRequest, codeInvalidBody, "invalid multipart body")
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		if v := r.FormValue("skip_document"); v != "" {
			skip, err := strconv.ParseBool(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, codeValidation, "skip_document must be a boolean")
				return
			}
			req.SkipDocument = skip
		}

		file, hdr, err := r.FormFile("document")
		switch {
		case errors.Is(err, http.ErrMissingFile):
		case err != nil:
			writeError(w, http.StatusBadRequest, codeInvalidBody, "invalid document part")
			return
		default:
			defer func() { _ = file.Close() }()
			req.Upload = &service.Upload{
				Filename:    hdr.Filename,
				ContentType: hdr.Header.Get("Content-Type"),
				Size:        hdr.Size,
				Body:        file,
			}
		}
	} else if mediaType == "application/json" {
		body, ok := readJSON[markDoneRequest](w, r, maxRequestBodySize)
		if !ok {
			return
		}
		req.SkipDocument = body.SkipDocument
	}

	h.transition(w, r, req)
}

func (h *Handlers) transition(w http.ResponseWriter, r *http.Request, req service.TransitionRequest) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	res, err := h.Tasks.Transition(r.Context(), p, urlParam(r, "id"), req)
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	setETag(w, res.Task)
	writeJSON(w, http.StatusOK, res)
}

type reassignRequest struct {
	AssigneeID string `json:"assignee_id"`
}

// ReassignTask handles POST /api/v1/tasks/{id}/reassign.
func (h *Handlers) ReassignTask(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[reassignRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	t, err := h.Tasks.Reassign(r.Context(), p, urlParam(r, "id"), req.AssigneeID)
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	setETag(w, t)
	writeJSON(w, http.StatusOK, t)
}

// GetTaskDocument handles GET /api/v1/tasks/{id}/document. Clients poll it
// until summary_state leaves "pending".
func (h *Handlers) GetTaskDocument(w http.ResponseWriter, r *http.Request) {
	handleGet(h.Tasks.Document, "document not found")(w, r)
}

func setETag(w http.ResponseWriter, t *task.Task) {
	if t != nil {
		w.Header().Set("ETag", strconv.Quote(strconv.Itoa(t.Version)))
	}
}
