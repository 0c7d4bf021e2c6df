// Package service contains the Tasktrack application services: the task
// workflow, the user directory, issues, evidence documents and notifications.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/Tasktrack/internal/adapter/otel"
	"github.com/Strob0t/Tasktrack/internal/domain"
	"github.com/Strob0t/Tasktrack/internal/domain/access"
	"github.com/Strob0t/Tasktrack/internal/domain/audit"
	"github.com/Strob0t/Tasktrack/internal/domain/evidence"
	"github.com/Strob0t/Tasktrack/internal/domain/task"
	"github.com/Strob0t/Tasktrack/internal/domain/user"
	"github.com/Strob0t/Tasktrack/internal/port/database"
	"github.com/Strob0t/Tasktrack/internal/port/messagequeue"
)

// TaskService runs the task lifecycle: creation, direct edits, workflow
// transitions and reassignment. Every mutation is authorized against the
// acting principal and persisted with a compare-and-swap on the version.
type TaskService struct {
	store   database.Store
	users   *UserService
	docs    *DocumentService
	queue   messagequeue.Queue
	metrics *otel.Metrics
	now     func() time.Time
}

// NewTaskService creates a new TaskService.
func NewTaskService(store database.Store, users *UserService, docs *DocumentService, queue messagequeue.Queue, metrics *otel.Metrics) *TaskService {
	return &TaskService{
		store:   store,
		users:   users,
		docs:    docs,
		queue:   queue,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// TransitionRequest is a workflow action on a task.
type TransitionRequest struct {
	Action       task.Action
	SkipDocument bool    // mark_done only
	Upload       *Upload // mark_done only
}

// TransitionResult reports the task after a transition and whether it
// changed. Applied is false for idempotent replays.
type TransitionResult struct {
	Task    *task.Task  `json:"task"`
	From    task.Status `json:"from"`
	To      task.Status `json:"to"`
	Applied bool        `json:"applied"`
}

// List returns tasks of the principal's organization. Reads are open to every role.
func (s *TaskService) List(ctx context.Context, p user.Principal, f task.ListFilter) ([]task.Task, error) {
	return s.store.ListTasks(ctx, p.OrgID, f)
}

// ListMine returns the tasks assigned to the principal.
func (s *TaskService) ListMine(ctx context.Context, p user.Principal, f task.ListFilter) ([]task.Task, error) {
	f.AssignedTo = p.ID
	return s.store.ListTasks(ctx, p.OrgID, f)
}

// Get returns a task by ID.
func (s *TaskService) Get(ctx context.Context, p user.Principal, id string) (*task.Task, error) {
	return s.store.GetTask(ctx, p.OrgID, id)
}

// Stats returns the dashboard counters. Manager or admin only.
func (s *TaskService) Stats(ctx context.Context, p user.Principal) (*task.Stats, error) {
	if !p.IsPrivileged() {
		return nil, fmt.Errorf("task stats: %w", domain.ErrInsufficientRole)
	}
	return s.store.TaskStats(ctx, p.OrgID, s.now())
}

// Document returns the evidence attached to a task, including its summary state.
func (s *TaskService) Document(ctx context.Context, p user.Principal, id string) (*evidence.Evidence, error) {
	t, err := s.store.GetTask(ctx, p.OrgID, id)
	if err != nil {
		return nil, err
	}
	return s.docs.Document(t)
}

// Create adds a task in status todo. Manager or admin only.
func (s *TaskService) Create(ctx context.Context, p user.Principal, req *task.CreateRequest) (*task.Task, error) {
	if !p.IsPrivileged() {
		s.metrics.RecordDenial(ctx, "create", string(access.ReasonInsufficientRole))
		return nil, fmt.Errorf("create task: %w", domain.ErrInsufficientRole)
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	if id, ok := req.AssignedTo.Get(); ok {
		if _, err := s.users.ResolveAssignee(ctx, p, id); err != nil {
			return nil, err
		}
	}

	now := s.now()
	t := task.New(uuid.NewString(), p.OrgID, p.ID, req, now)
	entry := newAuditEntry(p, audit.ActionCreate, audit.EntityTask, t.ID, map[string]any{
		"title": t.Title, "priority": t.Priority, "assigned_to": t.AssignedTo,
	}, now)
	if err := s.store.CreateTask(ctx, t, entry); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "task created", "task_id", t.ID, "assigned_to", t.AssignedTo)

	if t.AssignedTo != "" {
		s.publishAssigned(ctx, p, t, "")
	}
	return t, nil
}

// Update applies a direct edit. Manager or admin only. A positive
// expectedVersion must match the stored version.
func (s *TaskService) Update(ctx context.Context, p user.Principal, id string, patch *task.Patch, expectedVersion int) (*task.Task, error) {
	if err := patch.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	t, err := s.store.GetTask(ctx, p.OrgID, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, p, t, task.ActionEdit); err != nil {
		return nil, err
	}
	if expectedVersion > 0 && expectedVersion != t.Version {
		s.metrics.RecordConflict(ctx, audit.EntityTask)
		return nil, fmt.Errorf("task %s is at version %d: %w", id, t.Version, domain.ErrConflict)
	}
	if patch.Empty() {
		return t, nil
	}
	if assignee, ok := patch.AssignedTo.Get(); ok && assignee != t.AssignedTo {
		if _, err := s.users.ResolveAssignee(ctx, p, assignee); err != nil {
			return nil, err
		}
	}

	previous := t.AssignedTo
	now := s.now()
	if err := t.ApplyPatch(patch, now); err != nil {
		var te *task.TransitionError
		if errors.As(err, &te) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}

	entry := newAuditEntry(p, audit.ActionUpdate, audit.EntityTask, t.ID, map[string]any{"fields": patch.Fields()}, now)
	if err := s.save(ctx, t, entry); err != nil {
		return nil, err
	}
	if t.AssignedTo != previous {
		s.publishAssigned(ctx, p, t, previous)
	}
	return t, nil
}

// Delete removes a task. Manager or admin only.
func (s *TaskService) Delete(ctx context.Context, p user.Principal, id string) error {
	t, err := s.store.GetTask(ctx, p.OrgID, id)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, p, t, task.ActionDelete); err != nil {
		return err
	}
	entry := newAuditEntry(p, audit.ActionDelete, audit.EntityTask, t.ID, map[string]any{"title": t.Title, "status": t.Status}, s.now())
	if err := s.store.DeleteTask(ctx, p.OrgID, id, entry); err != nil {
		return err
	}
	slog.InfoContext(ctx, "task deleted", "task_id", id)
	return nil
}

// Transition runs a workflow action. The guard is consulted first, then
// the state machine; an upload is stored only once both have accepted.
func (s *TaskService) Transition(ctx context.Context, p user.Principal, id string, req TransitionRequest) (_ *TransitionResult, err error) {
	ctx, span := otel.StartTransitionSpan(ctx, id, string(req.Action), string(p.Role))
	defer func() { otel.EndSpan(span, err) }()

	if !req.Action.IsWorkflow() {
		return nil, fmt.Errorf("%w: %q is not a workflow action", domain.ErrValidation, req.Action)
	}
	if req.Upload != nil && req.Action != task.ActionMarkDone {
		return nil, fmt.Errorf("%w: documents can only be attached when marking a task done", domain.ErrValidation)
	}

	t, err := s.store.GetTask(ctx, p.OrgID, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, p, t, req.Action); err != nil {
		return nil, err
	}

	now := s.now()
	cmd := task.Command{Action: req.Action, Actor: p.ID, SkipDocument: req.SkipDocument, Now: now}

	if req.Upload != nil {
		trial := *t
		trialCmd := cmd
		trialCmd.SkipDocument = true
		out, err := task.Apply(&trial, trialCmd)
		if err != nil {
			return nil, err
		}
		if out.Applied {
			ev, err := s.docs.Attach(ctx, t, req.Upload)
			if err != nil {
				return nil, err
			}
			cmd.Evidence = ev
		}
	}

	out, err := task.Apply(t, cmd)
	if err != nil {
		return nil, err
	}
	res := &TransitionResult{Task: t, From: out.From, To: out.To, Applied: out.Applied}
	if !out.Applied {
		return res, nil
	}

	details := map[string]any{"from": out.From, "to": out.To}
	if cmd.Evidence != nil {
		details["document"] = cmd.Evidence.Filename
		details["content_id"] = cmd.Evidence.ContentID
	} else if req.Action == task.ActionMarkDone && t.Document == nil {
		details["skip_document"] = true
	}
	entry := newAuditEntry(p, string(req.Action), audit.EntityTask, t.ID, details, now)
	if err := s.save(ctx, t, entry); err != nil {
		return nil, err
	}

	s.metrics.RecordTransition(ctx, string(req.Action), string(out.From), string(out.To))
	slog.InfoContext(ctx, "task transitioned", "task_id", t.ID, "action", req.Action, "from", out.From, "to", out.To)
	s.publish(ctx, messagequeue.SubjectTaskTransitioned, messagequeue.TaskTransitionedPayload{
		OrgID:  t.OrgID,
		TaskID: t.ID,
		Action: string(req.Action),
		From:   string(out.From),
		To:     string(out.To),
		Actor:  p.ID,
		At:     now,
	})
	if cmd.Evidence != nil {
		s.docs.RequestSummary(ctx, t)
	}
	return res, nil
}

// Reassign hands a task the manager holds over to one of their members.
// Status is left unchanged.
func (s *TaskService) Reassign(ctx context.Context, p user.Principal, id, assigneeID string) (*task.Task, error) {
	if assigneeID == "" {
		return nil, fmt.Errorf("%w: assignee_id is required", domain.ErrValidation)
	}
	t, err := s.store.GetTask(ctx, p.OrgID, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, p, t, task.ActionReassign); err != nil {
		return nil, err
	}

	target, err := s.users.Get(ctx, p.OrgID, assigneeID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if target != nil && !target.Active {
		target = nil
	}
	if d := access.AuthorizeReassignTarget(p, target); !d.Allowed {
		s.metrics.RecordDenial(ctx, string(task.ActionReassign), string(d.Reason))
		return nil, d.Err(task.ActionReassign)
	}
	if t.AssignedTo == target.ID {
		return t, nil
	}

	previous := t.AssignedTo
	now := s.now()
	t.AssignedTo = target.ID
	t.UpdatedAt = now
	entry := newAuditEntry(p, string(task.ActionReassign), audit.EntityTask, t.ID, map[string]any{
		"from": previous, "to": target.ID,
	}, now)
	if err := s.save(ctx, t, entry); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "task reassigned", "task_id", t.ID, "from", previous, "to", target.ID)
	s.publishAssigned(ctx, p, t, previous)
	return t, nil
}

func (s *TaskService) authorize(ctx context.Context, p user.Principal, t *task.Task, action task.Action) error {
	d := access.Authorize(p, t, action)
	if d.Allowed {
		return nil
	}
	s.metrics.RecordDenial(ctx, string(action), string(d.Reason))
	slog.InfoContext(ctx, "action denied", "task_id", t.ID, "action", action, "reason", d.Reason, "rule", d.Rule)
	return d.Err(action)
}

func (s *TaskService) save(ctx context.Context, t *task.Task, entry *audit.Entry) error {
	err := s.store.UpdateTask(ctx, t, entry)
	if errors.Is(err, domain.ErrConflict) {
		s.metrics.RecordConflict(ctx, audit.EntityTask)
	}
	return err
}

func (s *TaskService) publishAssigned(ctx context.Context, p user.Principal, t *task.Task, previous string) {
	s.publish(ctx, messagequeue.SubjectTaskAssigned, messagequeue.TaskAssignedPayload{
		OrgID:        t.OrgID,
		TaskID:       t.ID,
		PreviousUser: previous,
		AssignedTo:   t.AssignedTo,
		Actor:        p.ID,
		At:           t.UpdatedAt,
	})
}

// publish sends a lifecycle event. The change is already committed, so a
// publish failure is logged and not returned.
func (s *TaskService) publish(ctx context.Context, subject string, payload any) {
	if s.queue == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.ErrorContext(ctx, "marshal event", "subject", subject, "error", err)
		return
	}
	if err := s.queue.Publish(ctx, subject, data); err != nil {
		slog.ErrorContext(ctx, "failed to publish event", "subject", subject, "error", err)
	}
}
