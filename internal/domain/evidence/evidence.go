// Package evidence models documents attached to tasks as proof of
// completion, together with their asynchronously produced summary.
package evidence

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/Strob0t/Tasktrack/internal/domain"
)

// DefaultMaxBytes is the upload size limit applied when none is configured.
const DefaultMaxBytes int64 = 10 << 20

// AllowedExtensions lists the accepted upload file extensions.
var AllowedExtensions = map[string]bool{
	".pdf":  true,
	".doc":  true,
	".docx": true,
	".txt":  true,
	".md":   true,
	".log":  true,
	".csv":  true,
	".xlsx": true,
	".xls":  true,
}

// textExtensions are the formats whose content is sent to the summarizer
// verbatim. Other formats are summarized from their metadata only.
var textExtensions = map[string]bool{
	".txt": true,
	".md":  true,
	".log": true,
	".csv": true,
}

// SummaryState tracks the asynchronous summarization of an attachment.
type SummaryState string

const (
	SummaryPending SummaryState = "pending"
	SummaryReady   SummaryState = "ready"
	SummaryFailed  SummaryState = "failed"
)

// Summary is the advisory output of the summarization collaborator.
type Summary struct {
	Summary                    string   `json:"summary"`
	KeyPoints                  []string `json:"key_points,omitempty"`
	DocumentType               string   `json:"document_type,omitempty"`
	QualityAssessment          string   `json:"quality_assessment,omitempty"`
	VerificationRecommendation string   `json:"verification_recommendation,omitempty"`
}

// Evidence links a task to a stored artifact.
type Evidence struct {
	Filename     string       `json:"filename"`
	ContentID    string       `json:"content_id"` // sha256 hex of the content
	StorageRef   string       `json:"storage_ref"`
	ContentType  string       `json:"content_type,omitempty"`
	Size         int64        `json:"size"`
	SummaryState SummaryState `json:"summary_state"`
	Summary      *Summary     `json:"summary,omitempty"`
	SummaryError string       `json:"summary_error,omitempty"`
	AttachedAt   time.Time    `json:"attached_at"`
	SummarizedAt *time.Time   `json:"summarized_at,omitempty"`
}

// SummaryReady reports whether a non-empty summary has been recorded.
func (e *Evidence) SummaryReady() bool {
	return e != nil && e.SummaryState == SummaryReady && e.Summary != nil && e.Summary.Summary != ""
}

// Extension returns the lower-cased extension of the evidence filename.
func (e *Evidence) Extension() string {
	return Extension(e.Filename)
}

// Extension returns the lower-cased extension of name, including the dot.
func Extension(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

// IsText reports whether files with this name are plain text.
func IsText(name string) bool {
	return textExtensions[Extension(name)]
}

// ValidateUpload checks an upload's size and type. A maxBytes of zero or
// less applies DefaultMaxBytes.
func ValidateUpload(filename string, size, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if strings.TrimSpace(filename) == "" {
		return fmt.Errorf("%w: filename is required", domain.ErrValidation)
	}
	if size > maxBytes {
		return fmt.Errorf("%w: %d bytes exceeds the %d byte limit", domain.ErrPayloadTooLarge, size, maxBytes)
	}
	if !AllowedExtensions[Extension(filename)] {
		return fmt.Errorf("%w: %q", domain.ErrUnsupportedType, Extension(filename))
	}
	return nil
}

// FallbackSummary is recorded for documents whose content cannot be read
// as text.
func FallbackSummary(filename string) Summary {
	return Summary{
		Summary:      "Document uploaded: " + filename,
		DocumentType: strings.TrimPrefix(Extension(filename), "."),
	}
}

// SummaryResult is the outcome of summarizing one attachment, addressed by
// task and content id so a result for a replaced document can be told
// apart from one for the current document.
type SummaryResult struct {
	OrgID     string       `json:"org_id"`
	TaskID    string       `json:"task_id"`
	ContentID string       `json:"content_id"`
	State     SummaryState `json:"state"`
	Summary   *Summary     `json:"summary,omitempty"`
	Error     string       `json:"error,omitempty"`
	At        time.Time    `json:"at"`
}

// Apply records the result on e. Results for other content are ignored.
func (e *Evidence) Apply(res *SummaryResult) bool {
	if e == nil || res.ContentID != e.ContentID {
		return false
	}
	at := res.At
	e.SummaryState = res.State
	e.Summary = res.Summary
	e.SummaryError = res.Error
	e.SummarizedAt = &at
	return true
}
