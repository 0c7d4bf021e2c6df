package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Strob0t/Tasktrack/internal/domain"
	"github.com/Strob0t/Tasktrack/internal/domain/task"
	"github.com/Strob0t/Tasktrack/internal/port/database"
	"github.com/Strob0t/Tasktrack/internal/port/messagequeue"
	"github.com/Strob0t/Tasktrack/internal/port/notifier"
)

// NotificationService turns task lifecycle events from the queue into
// notifications and dispatches them to every configured notifier.
type NotificationService struct {
	store         database.Store
	users         *UserService
	notifiers     []notifier.Notifier
	enabledEvents map[string]bool
}

// NewNotificationService creates a NotificationService. If enabledEvents is
// empty, all event subjects are enabled.
func NewNotificationService(store database.Store, users *UserService, notifiers []notifier.Notifier, enabledEvents []string) *NotificationService {
	enabled := make(map[string]bool, len(enabledEvents))
	for _, e := range enabledEvents {
		enabled[e] = true
	}
	return &NotificationService{
		store:         store,
		users:         users,
		notifiers:     notifiers,
		enabledEvents: enabled,
	}
}

// Start subscribes to the task event subjects. With no notifiers configured
// nothing is subscribed.
func (s *NotificationService) Start(ctx context.Context, queue messagequeue.Queue) (func(), error) {
	if len(s.notifiers) == 0 {
		return func() {}, nil
	}
	cancelAssigned, err := queue.Subscribe(ctx, messagequeue.SubjectTaskAssigned, s.HandleAssigned)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", messagequeue.SubjectTaskAssigned, err)
	}
	cancelTransitioned, err := queue.Subscribe(ctx, messagequeue.SubjectTaskTransitioned, s.HandleTransitioned)
	if err != nil {
		cancelAssigned()
		return nil, fmt.Errorf("subscribe %s: %w", messagequeue.SubjectTaskTransitioned, err)
	}
	slog.Info("notifications started", "notifiers", len(s.notifiers))
	return func() {
		cancelAssigned()
		cancelTransitioned()
	}, nil
}

// HandleAssigned notifies the new assignee of a task.
func (s *NotificationService) HandleAssigned(ctx context.Context, subject string, data []byte) error {
	var ev messagequeue.TaskAssignedPayload
	if err := json.Unmarshal(data, &ev); err != nil {
		return fmt.Errorf("decode %s: %w", subject, err)
	}
	if ev.AssignedTo == "" || !s.enabled(messagequeue.SubjectTaskAssigned) {
		return nil
	}
	t, ok, err := s.loadTask(ctx, ev.OrgID, ev.TaskID)
	if !ok {
		return err
	}

	s.Notify(ctx, notifier.Notification{
		Title:     "Task assigned: " + t.Title,
		Message:   fmt.Sprintf("%s assigned you this task.", s.displayName(ctx, ev.OrgID, ev.Actor)),
		Level:     notifier.LevelInfo,
		Source:    messagequeue.SubjectTaskAssigned,
		Fields:    taskFields(t),
		Recipient: s.email(ctx, ev.OrgID, ev.AssignedTo),
	})
	return nil
}

// HandleTransitioned reports a workflow action. Completed work goes to the
// task's creator for verification; review outcomes go to the assignee.
func (s *NotificationService) HandleTransitioned(ctx context.Context, subject string, data []byte) error {
	var ev messagequeue.TaskTransitionedPayload
	if err := json.Unmarshal(data, &ev); err != nil {
		return fmt.Errorf("decode %s: %w", subject, err)
	}
	if !s.enabled(messagequeue.SubjectTaskTransitioned) {
		return nil
	}
	t, ok, err := s.loadTask(ctx, ev.OrgID, ev.TaskID)
	if !ok {
		return err
	}

	action := task.Action(ev.Action)
	verb := actionVerb(action)
	n := notifier.Notification{
		Title:   fmt.Sprintf("Task %s: %s", verb, t.Title),
		Message: fmt.Sprintf("%s %s the task (%s to %s).", s.displayName(ctx, ev.OrgID, ev.Actor), verb, ev.From, ev.To),
		Level:   actionLevel(action),
		Source:  messagequeue.SubjectTaskTransitioned,
		Fields:  taskFields(t),
	}
	switch action {
	case task.ActionMarkDone:
		n.Recipient = s.email(ctx, ev.OrgID, t.CreatedBy)
	case task.ActionVerify, task.ActionReject, task.ActionApprove:
		n.Recipient = s.email(ctx, ev.OrgID, t.AssignedTo)
	}
	s.Notify(ctx, n)
	return nil
}

// Notify sends a notification to all notifiers. Errors are logged and do
// not interrupt delivery to the others.
func (s *NotificationService) Notify(ctx context.Context, n notifier.Notification) {
	for _, provider := range s.notifiers {
		if err := provider.Send(ctx, n); err != nil {
			slog.WarnContext(ctx, "notification send failed",
				"provider", provider.Name(),
				"source", n.Source,
				"error", err,
			)
			continue
		}
		slog.DebugContext(ctx, "notification sent", "provider", provider.Name(), "title", n.Title)
	}
}

// NotifierCount returns the number of configured notifiers.
func (s *NotificationService) NotifierCount() int {
	return len(s.notifiers)
}

func (s *NotificationService) enabled(subject string) bool {
	return len(s.enabledEvents) == 0 || s.enabledEvents[subject]
}

// loadTask returns ok=false when there is nothing to notify about. A task
// deleted since the event is skipped; other errors are returned so the
// queue redelivers.
func (s *NotificationService) loadTask(ctx context.Context, orgID, id string) (*task.Task, bool, error) {
	t, err := s.store.GetTask(ctx, orgID, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}

func (s *NotificationService) displayName(ctx context.Context, orgID, id string) string {
	if id == "" {
		return "Someone"
	}
	u, err := s.users.Get(ctx, orgID, id)
	if err != nil || u.Name == "" {
		return id
	}
	return u.Name
}

func (s *NotificationService) email(ctx context.Context, orgID, id string) string {
	if id == "" {
		return ""
	}
	u, err := s.users.Get(ctx, orgID, id)
	if err != nil || !u.Active {
		return ""
	}
	return u.Email
}

func taskFields(t *task.Task) []notifier.Field {
	fields := []notifier.Field{
		{Name: "Status", Value: string(t.Status)},
		{Name: "Priority", Value: string(t.Priority)},
	}
	if t.DueDate != nil {
		fields = append(fields, notifier.Field{Name: "Due", Value: t.DueDate.Format("2006-01-02")})
	}
	return fields
}

func actionVerb(a task.Action) string {
	switch a {
	case task.ActionStart:
		return "started"
	case task.ActionMarkDone:
		return "marked done"
	case task.ActionVerify:
		return "verified"
	case task.ActionReject:
		return "rejected"
	case task.ActionApprove:
		return "approved"
	default:
		return string(a)
	}
}

func actionLevel(a task.Action) string {
	switch a {
	case task.ActionApprove:
		return notifier.LevelSuccess
	case task.ActionReject:
		return notifier.LevelWarning
	default:
		return notifier.LevelInfo
	}
}
