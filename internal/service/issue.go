package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/Tasktrack/internal/adapter/otel"
	"github.com/Strob0t/Tasktrack/internal/domain"
	"github.com/Strob0t/Tasktrack/internal/domain/audit"
	"github.com/Strob0t/Tasktrack/internal/domain/issue"
	"github.com/Strob0t/Tasktrack/internal/domain/user"
	"github.com/Strob0t/Tasktrack/internal/port/database"
)

// IssueService handles role-scoped issue tracking. Members see and edit
// only the issues they reported or are assigned to.
type IssueService struct {
	store   database.Store
	users   *UserService
	metrics *otel.Metrics
	now     func() time.Time
}

// NewIssueService creates a new IssueService.
func NewIssueService(store database.Store, users *UserService, metrics *otel.Metrics) *IssueService {
	return &IssueService{
		store:   store,
		users:   users,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// List returns the issues visible to p.
func (s *IssueService) List(ctx context.Context, p user.Principal, f issue.ListFilter) ([]issue.Issue, error) {
	if !p.IsPrivileged() {
		f.InvolvingUser = p.ID
	}
	return s.store.ListIssues(ctx, p.OrgID, f)
}

// Get returns an issue. Issues p may not view are reported as not found.
func (s *IssueService) Get(ctx context.Context, p user.Principal, id string) (*issue.Issue, error) {
	i, err := s.store.GetIssue(ctx, p.OrgID, id)
	if err != nil {
		return nil, err
	}
	if !issue.CanView(p, i) {
		return nil, fmt.Errorf("issue %s: %w", id, domain.ErrNotFound)
	}
	return i, nil
}

// Create files a new issue. Any role may report; only assigners may set
// an assignee.
func (s *IssueService) Create(ctx context.Context, p user.Principal, req *issue.CreateRequest) (*issue.Issue, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	if id, ok := req.AssignedTo.Get(); ok {
		if _, err := s.users.ResolveAssignee(ctx, p, id); err != nil {
			return nil, err
		}
	}

	now := s.now()
	i := issue.New(uuid.NewString(), p, req, now)
	entry := newAuditEntry(p, audit.ActionCreate, audit.EntityIssue, i.ID, map[string]any{
		"title": i.Title, "severity": i.Severity,
	}, now)
	if err := s.store.CreateIssue(ctx, i, entry); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "issue created", "issue_id", i.ID, "severity", i.Severity)
	return i, nil
}

// Update edits an issue. Issues carry no approval chain, so any status may
// follow any other.
func (s *IssueService) Update(ctx context.Context, p user.Principal, id string, patch *issue.Patch) (*issue.Issue, error) {
	if err := patch.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	i, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if err := issue.AuthorizePatch(p, i, patch); err != nil {
		return nil, err
	}
	if assignee, ok := patch.AssignedTo.Get(); ok && assignee != i.AssignedTo {
		if _, err := s.users.ResolveAssignee(ctx, p, assignee); err != nil {
			return nil, err
		}
	}

	now := s.now()
	i.Apply(patch, now)
	entry := newAuditEntry(p, audit.ActionUpdate, audit.EntityIssue, i.ID, map[string]any{
		"status": i.Status, "severity": i.Severity, "assigned_to": i.AssignedTo,
	}, now)
	if err := s.store.UpdateIssue(ctx, i, entry); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			s.metrics.RecordConflict(ctx, audit.EntityIssue)
		}
		return nil, err
	}
	return i, nil
}

// Delete removes an issue. Manager or admin only.
func (s *IssueService) Delete(ctx context.Context, p user.Principal, id string) error {
	if !issue.CanDelete(p) {
		return fmt.Errorf("delete issue: %w", domain.ErrInsufficientRole)
	}
	entry := newAuditEntry(p, audit.ActionDelete, audit.EntityIssue, id, nil, s.now())
	return s.store.DeleteIssue(ctx, p.OrgID, id, entry)
}
