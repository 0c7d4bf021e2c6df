package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/Tasktrack/internal/domain"
	"github.com/Strob0t/Tasktrack/internal/domain/access"
	"github.com/Strob0t/Tasktrack/internal/domain/task"
	"github.com/Strob0t/Tasktrack/internal/domain/user"
	"github.com/Strob0t/Tasktrack/internal/middleware"
)

const maxRequestBodySize = 1 << 20 // 1 MB

// ---------------------------------------------------------------------------
// Request helpers
// ---------------------------------------------------------------------------

// readJSON decodes a JSON request body with a size limit.
func readJSON[T any](w http.ResponseWriter, r *http.Request, bodyLimit int64) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, codePayloadTooLarge, "request body too large")
		} else {
			writeError(w, http.StatusBadRequest, codeInvalidBody, "invalid request body")
		}
		return v, false
	}
	return v, true
}

// urlParam is a short alias for chi.URLParam.
func urlParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// principal returns the authenticated caller or writes a 401.
func principal(w http.ResponseWriter, r *http.Request) (user.Principal, bool) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authorization required")
	}
	return p, ok
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}

// ifMatchVersion parses an If-Match header carrying a task version, with or
// without quotes. An absent header returns 0.
func ifMatchVersion(r *http.Request) (int, error) {
	s := strings.Trim(strings.TrimPrefix(r.Header.Get("If-Match"), "W/"), `"`)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, errors.New("If-Match must be a task version")
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Response helpers
// ---------------------------------------------------------------------------

// Machine-readable error codes.
const (
	codeNotFound          = "not_found"
	codeConflict          = "conflict"
	codeValidation        = "validation_failed"
	codeInvalidBody       = "invalid_body"
	codeInvalidTransition = "invalid_transition"
	codeForbidden         = "insufficient_role"
	codePayloadTooLarge   = "payload_too_large"
	codeUnsupportedType   = "unsupported_file_type"
	codeInternal          = "internal"
)

type errorResponse struct {
	Error          string        `json:"error"`
	Code           string        `json:"code"`
	AllowedActions []task.Action `json:"allowed_actions,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

func writeDomainError(w http.ResponseWriter, err error, notFoundMsg string) {
	var transErr *task.TransitionError
	var denyErr *access.DenyError
	switch {
	case errors.As(err, &transErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:          transErr.Error(),
			Code:           codeInvalidTransition,
			AllowedActions: transErr.Allowed,
		})
	case errors.As(err, &denyErr) && denyErr.Reason == access.ReasonInvalidTarget:
		writeError(w, http.StatusBadRequest, string(access.ReasonInvalidTarget), "assignee is not a valid target for this caller")
	case errors.As(err, &denyErr):
		code := string(denyErr.Reason)
		if code == "" {
			code = codeForbidden
		}
		writeError(w, http.StatusForbidden, code, "not permitted to "+string(denyErr.Action)+" this task")
	case errors.Is(err, domain.ErrInsufficientRole):
		writeError(w, http.StatusForbidden, codeForbidden, "insufficient role")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, notFoundMsg)
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, codeConflict, "resource was modified by another request")
	case errors.Is(err, domain.ErrPayloadTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, codePayloadTooLarge, trimSentinel(err, domain.ErrPayloadTooLarge))
	case errors.Is(err, domain.ErrUnsupportedType):
		writeError(w, http.StatusUnsupportedMediaType, codeUnsupportedType, trimSentinel(err, domain.ErrUnsupportedType))
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusUnprocessableEntity, codeInvalidTransition, err.Error())
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, codeValidation, trimSentinel(err, domain.ErrValidation))
	default:
		writeInternalError(w, err)
	}
}

// trimSentinel returns the message of err after the sentinel's own text.
func trimSentinel(err, sentinel error) string {
	msg := err.Error()
	if i := strings.Index(msg, sentinel.Error()+": "); i >= 0 {
		return msg[i+len(sentinel.Error())+2:]
	}
	return msg
}

// writeInternalError logs the actual error server-side and returns a generic message to the client.
func writeInternalError(w http.ResponseWriter, err error) {
	slog.Error("request failed", "error", err)
	writeError(w, http.StatusInternalServerError, codeInternal, "internal server error")
}
