// Package task defines the Task entity and its approval lifecycle.
package task

import (
	"errors"
	"fmt"
	"time"

	"github.com/Strob0t/Tasktrack/internal/domain"
	"github.com/Strob0t/Tasktrack/internal/domain/evidence"
)

// Status represents the current state of a task.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusBlocked    Status = "blocked"
	StatusVerified   Status = "verified"
	StatusApproved   Status = "approved"
)

// ValidStatuses is the set of all task statuses.
var ValidStatuses = map[Status]bool{
	StatusTodo:       true,
	StatusInProgress: true,
	StatusDone:       true,
	StatusBlocked:    true,
	StatusVerified:   true,
	StatusApproved:   true,
}

// Priority ranks tasks for display and reporting.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ValidPriorities is the set of all task priorities.
var ValidPriorities = map[Priority]bool{
	PriorityLow:    true,
	PriorityMedium: true,
	PriorityHigh:   true,
	PriorityUrgent: true,
}

// Task is a unit of work moving through todo -> in_progress -> done ->
// verified -> approved.
type Task struct {
	ID          string             `json:"id"`
	OrgID       string             `json:"org_id"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Status      Status             `json:"status"`
	Priority    Priority           `json:"priority"`
	AssignedTo  string             `json:"assigned_to,omitempty"`
	CreatedBy   string             `json:"created_by"`
	DueDate     *time.Time         `json:"due_date,omitempty"`
	Document    *evidence.Evidence `json:"document,omitempty"`
	VerifiedBy  string             `json:"verified_by,omitempty"`
	VerifiedAt  *time.Time         `json:"verified_at,omitempty"`
	ApprovedBy  string             `json:"approved_by,omitempty"`
	ApprovedAt  *time.Time         `json:"approved_at,omitempty"`
	Version     int                `json:"version"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// IsAssignedTo reports whether the task is assigned to the given user.
func (t *Task) IsAssignedTo(userID string) bool {
	return t.AssignedTo != "" && t.AssignedTo == userID
}

// SummaryReady reports whether the attached document has a summary.
func (t *Task) SummaryReady() bool {
	return t.Document.SummaryReady()
}

// Overdue reports whether the task is past its due date and not yet approved.
func (t *Task) Overdue(now time.Time) bool {
	return t.DueDate != nil && t.DueDate.Before(now) && t.Status != StatusApproved
}

// CheckInvariants verifies the sign-off fields agree with the status.
func (t *Task) CheckInvariants() error {
	if !ValidStatuses[t.Status] {
		return fmt.Errorf("invalid status %q", t.Status)
	}
	signedOff := t.Status == StatusVerified || t.Status == StatusApproved
	if (t.VerifiedBy != "") != signedOff {
		return fmt.Errorf("verified_by %q inconsistent with status %s", t.VerifiedBy, t.Status)
	}
	if (t.ApprovedBy != "") != (t.Status == StatusApproved) {
		return fmt.Errorf("approved_by %q inconsistent with status %s", t.ApprovedBy, t.Status)
	}
	return nil
}

// CreateRequest holds the fields needed to create a new task. Optional
// fields follow the Field convention: absent keeps the default, null or
// "" leaves the field empty.
type CreateRequest struct {
	Title       string                 `json:"title"`
	Description domain.Field[string]   `json:"description"`
	Priority    domain.Field[Priority] `json:"priority"`
	AssignedTo  domain.Field[string]   `json:"assigned_to"`
	DueDate     domain.Field[Date]     `json:"due_date"`
}

// Validate checks that the CreateRequest is well formed.
func (r *CreateRequest) Validate() error {
	if r.Title == "" {
		return errors.New("title is required")
	}
	if r.Priority.Null {
		return errors.New("priority cannot be cleared")
	}
	if r.Priority.Set && !ValidPriorities[r.Priority.Value] {
		return fmt.Errorf("invalid priority %q", r.Priority.Value)
	}
	return nil
}

// New builds a todo task from a validated request.
func New(id, orgID, createdBy string, req *CreateRequest, now time.Time) *Task {
	t := &Task{
		ID:          id,
		OrgID:       orgID,
		Title:       req.Title,
		Description: req.Description.Or(""),
		Status:      StatusTodo,
		Priority:    req.Priority.Or(PriorityMedium),
		AssignedTo:  req.AssignedTo.Or(""),
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if d, ok := req.DueDate.Get(); ok {
		due := d.Time()
		t.DueDate = &due
	}
	return t
}

// ListFilter narrows task listings. Empty fields do not filter.
type ListFilter struct {
	Statuses   []Status
	Priority   Priority
	AssignedTo string
	Limit      int
	Offset     int
}

// ParseStatusFilter expands a status query value. "completed" matches
// every status past the assignee's hands.
func ParseStatusFilter(s string) ([]Status, error) {
	switch s {
	case "":
		return nil, nil
	case "completed":
		return []Status{StatusDone, StatusVerified, StatusApproved}, nil
	}
	if !ValidStatuses[Status(s)] {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, s)
	}
	return []Status{Status(s)}, nil
}

// Stats summarizes the tasks of an organization.
type Stats struct {
	Total      int              `json:"total"`
	ByStatus   map[Status]int   `json:"by_status"`
	ByPriority map[Priority]int `json:"by_priority"`
	Overdue    int              `json:"overdue"`
	DueSoon    int              `json:"due_soon"`
}

// DueSoonWindow is how far ahead Stats.DueSoon looks.
const DueSoonWindow = 48 * time.Hour
