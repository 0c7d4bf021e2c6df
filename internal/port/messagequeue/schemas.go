package messagequeue

import (
	"errors"
	"time"
)

// SummarizeRequestPayload is the schema for documents.summarize messages.
type SummarizeRequestPayload struct {
	OrgID       string `json:"org_id"`
	TaskID      string `json:"task_id"`
	TaskTitle   string `json:"task_title,omitempty"`
	ContentID   string `json:"content_id"`
	Filename    string `json:"filename"`
	StorageRef  string `json:"storage_ref"`
	ContentType string `json:"content_type,omitempty"`
}

func (p *SummarizeRequestPayload) validate() error {
	if p.OrgID == "" || p.TaskID == "" || p.ContentID == "" {
		return errors.New("org_id, task_id and content_id are required")
	}
	if p.StorageRef == "" {
		return errors.New("storage_ref is required")
	}
	return nil
}

// SummaryPayload mirrors the structured summary returned by the summarizer.
type SummaryPayload struct {
	Summary                    string   `json:"summary"`
	KeyPoints                  []string `json:"key_points,omitempty"`
	DocumentType               string   `json:"document_type,omitempty"`
	QualityAssessment          string   `json:"quality_assessment,omitempty"`
	VerificationRecommendation string   `json:"verification_recommendation,omitempty"`
}

// SummaryResultPayload is the schema for documents.summarized messages.
type SummaryResultPayload struct {
	OrgID     string          `json:"org_id"`
	TaskID    string          `json:"task_id"`
	ContentID string          `json:"content_id"`
	State     string          `json:"state"` // "ready" | "failed"
	Summary   *SummaryPayload `json:"summary,omitempty"`
	Error     string          `json:"error,omitempty"`
	At        time.Time       `json:"at"`
}

func (p *SummaryResultPayload) validate() error {
	if p.OrgID == "" || p.TaskID == "" || p.ContentID == "" {
		return errors.New("org_id, task_id and content_id are required")
	}
	switch p.State {
	case "ready":
		if p.Summary == nil {
			return errors.New("ready result without summary")
		}
	case "failed":
	default:
		return errors.New("state must be ready or failed")
	}
	return nil
}

// TaskTransitionedPayload is the schema for tasks.transitioned messages.
type TaskTransitionedPayload struct {
	OrgID  string    `json:"org_id"`
	TaskID string    `json:"task_id"`
	Action string    `json:"action"`
	From   string    `json:"from"`
	To     string    `json:"to"`
	Actor  string    `json:"actor"`
	At     time.Time `json:"at"`
}

func (p *TaskTransitionedPayload) validate() error {
	if p.TaskID == "" || p.Action == "" || p.To == "" {
		return errors.New("task_id, action and to are required")
	}
	return nil
}

// TaskAssignedPayload is the schema for tasks.assigned messages.
type TaskAssignedPayload struct {
	OrgID        string    `json:"org_id"`
	TaskID       string    `json:"task_id"`
	PreviousUser string    `json:"previous_user,omitempty"`
	AssignedTo   string    `json:"assigned_to"`
	Actor        string    `json:"actor"`
	At           time.Time `json:"at"`
}

func (p *TaskAssignedPayload) validate() error {
	if p.TaskID == "" {
		return errors.New("task_id is required")
	}
	return nil
}
