// Package issue defines reported issues. Issues have a flat status set
// and no approval chain; access is scoped by role and involvement.
package issue

import (
	"errors"
	"fmt"
	"time"

	"github.com/Strob0t/Tasktrack/internal/domain"
	"github.com/Strob0t/Tasktrack/internal/domain/user"
)

// Status is the state of an issue. Any status may follow any other.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
)

// ValidStatuses is the set of all issue statuses.
var ValidStatuses = map[Status]bool{
	StatusOpen:       true,
	StatusInProgress: true,
	StatusResolved:   true,
	StatusClosed:     true,
}

// Severity grades the impact of an issue.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ValidSeverities is the set of all issue severities.
var ValidSeverities = map[Severity]bool{
	SeverityLow:      true,
	SeverityMedium:   true,
	SeverityHigh:     true,
	SeverityCritical: true,
}

// Issue is a problem report.
type Issue struct {
	ID          string     `json:"id"`
	OrgID       string     `json:"org_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Severity    Severity   `json:"severity"`
	Status      Status     `json:"status"`
	ReportedBy  string     `json:"reported_by"`
	AssignedTo  string     `json:"assigned_to,omitempty"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	Version     int        `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Involves reports whether the user reported or is assigned to the issue.
func (i *Issue) Involves(userID string) bool {
	return userID != "" && (i.ReportedBy == userID || i.AssignedTo == userID)
}

// CreateRequest holds the fields needed to report an issue.
type CreateRequest struct {
	Title       string                 `json:"title"`
	Description domain.Field[string]   `json:"description"`
	Severity    domain.Field[Severity] `json:"severity"`
	AssignedTo  domain.Field[string]   `json:"assigned_to"`
}

// Validate checks that the CreateRequest is well formed.
func (r *CreateRequest) Validate() error {
	if r.Title == "" {
		return errors.New("title is required")
	}
	if r.Severity.Null {
		return errors.New("severity cannot be cleared")
	}
	if v, ok := r.Severity.Get(); ok && !ValidSeverities[v] {
		return fmt.Errorf("invalid severity %q", v)
	}
	return nil
}

// New builds an open issue from a validated request.
func New(id string, reporter user.Principal, req *CreateRequest, now time.Time) *Issue {
	return &Issue{
		ID:          id,
		OrgID:       reporter.OrgID,
		Title:       req.Title,
		Description: req.Description.Or(""),
		Severity:    req.Severity.Or(SeverityMedium),
		Status:      StatusOpen,
		ReportedBy:  reporter.ID,
		AssignedTo:  req.AssignedTo.Or(""),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Patch is a partial update of an issue.
type Patch struct {
	Title       domain.Field[string]   `json:"title"`
	Description domain.Field[string]   `json:"description"`
	Severity    domain.Field[Severity] `json:"severity"`
	Status      domain.Field[Status]   `json:"status"`
	AssignedTo  domain.Field[string]   `json:"assigned_to"`
}

// Validate checks the patch in isolation.
func (p *Patch) Validate() error {
	if p.Title.Null {
		return errors.New("title cannot be cleared")
	}
	if p.Severity.Null {
		return errors.New("severity cannot be cleared")
	}
	if v, ok := p.Severity.Get(); ok && !ValidSeverities[v] {
		return fmt.Errorf("invalid severity %q", v)
	}
	if p.Status.Null {
		return errors.New("status cannot be cleared")
	}
	if v, ok := p.Status.Get(); ok && !ValidStatuses[v] {
		return fmt.Errorf("invalid status %q", v)
	}
	return nil
}

// Apply applies a validated patch. Moving to resolved or closed stamps
// ResolvedAt; reopening clears it.
func (i *Issue) Apply(p *Patch, now time.Time) {
	if v, ok := p.Title.Get(); ok {
		i.Title = v
	}
	if p.Description.Set {
		i.Description = p.Description.Or("")
	}
	if v, ok := p.Severity.Get(); ok {
		i.Severity = v
	}
	if p.AssignedTo.Set {
		i.AssignedTo = p.AssignedTo.Or("")
	}
	if v, ok := p.Status.Get(); ok && v != i.Status {
		i.Status = v
		switch v {
		case StatusResolved, StatusClosed:
			if i.ResolvedAt == nil {
				i.ResolvedAt = &now
			}
		default:
			i.ResolvedAt = nil
		}
	}
	i.UpdatedAt = now
}

// CanView reports whether p may read the issue. Members only see issues
// they reported or are assigned to.
func CanView(p user.Principal, i *Issue) bool {
	if p.OrgID != i.OrgID {
		return false
	}
	return p.IsPrivileged() || i.Involves(p.ID)
}

// AuthorizePatch checks whether p may apply patch to the issue. Members
// may only edit issues they reported and never change status or
// assignment.
func AuthorizePatch(p user.Principal, i *Issue, patch *Patch) error {
	if p.OrgID != i.OrgID {
		return fmt.Errorf("%w: issue belongs to another organization", domain.ErrInsufficientRole)
	}
	if p.IsPrivileged() {
		return nil
	}
	if i.ReportedBy != p.ID {
		return fmt.Errorf("%w: members may only edit issues they reported", domain.ErrInsufficientRole)
	}
	if patch.Status.Set || patch.AssignedTo.Set {
		return fmt.Errorf("%w: members cannot change status or assignment", domain.ErrInsufficientRole)
	}
	return nil
}

// CanDelete reports whether p may delete issues.
func CanDelete(p user.Principal) bool {
	return p.IsPrivileged()
}

// ListFilter narrows issue listings. InvolvingUser restricts results to
// issues reported by or assigned to that user.
type ListFilter struct {
	Status        Status
	Severity      Severity
	InvolvingUser string
	Limit         int
	Offset        int
}
