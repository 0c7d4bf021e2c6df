package task

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Strob0t/Tasktrack/internal/domain"
	"github.com/Strob0t/Tasktrack/internal/domain/evidence"
)

// Action names an operation on a task. The workflow actions move a task
// through its lifecycle; reassign, edit and delete are side actions the
// access guard also decides on.
type Action string

const (
	ActionStart    Action = "start"
	ActionMarkDone Action = "mark_done"
	ActionVerify   Action = "verify"
	ActionReject   Action = "reject"
	ActionApprove  Action = "approve"
	ActionReassign Action = "reassign"
	ActionEdit     Action = "edit"
	ActionDelete   Action = "delete"
)

// IsWorkflow reports whether a is a lifecycle transition.
func (a Action) IsWorkflow() bool {
	switch a {
	case ActionStart, ActionMarkDone, ActionVerify, ActionReject, ActionApprove:
		return true
	}
	return false
}

// transitions lists, per workflow action, the statuses it is valid from
// and the status it produces.
var transitions = map[Action]struct {
	from []Status
	to   Status
}{
	ActionStart:    {from: []Status{StatusTodo}, to: StatusInProgress},
	ActionMarkDone: {from: []Status{StatusTodo, StatusInProgress}, to: StatusDone},
	ActionVerify:   {from: []Status{StatusDone}, to: StatusVerified},
	ActionReject:   {from: []Status{StatusDone, StatusVerified}, to: StatusInProgress},
	ActionApprove:  {from: []Status{StatusVerified}, to: StatusApproved},
}

// workflowOrder fixes the order AllowedActions reports actions in.
var workflowOrder = []Action{ActionStart, ActionMarkDone, ActionVerify, ActionReject, ActionApprove}

// AllowedActions returns the workflow actions valid from status s.
func AllowedActions(s Status) []Action {
	var out []Action
	for _, a := range workflowOrder {
		if slices.Contains(transitions[a].from, s) {
			out = append(out, a)
		}
	}
	return out
}

// TransitionError reports an action requested from a status it is not
// valid from. It matches domain.ErrInvalidTransition.
type TransitionError struct {
	From    Status
	Action  Action
	Allowed []Action
}

func (e *TransitionError) Error() string {
	allowed := make([]string, len(e.Allowed))
	for i, a := range e.Allowed {
		allowed[i] = string(a)
	}
	return fmt.Sprintf("invalid transition: cannot %s a task in status %s (allowed: %s)",
		e.Action, e.From, strings.Join(allowed, ", "))
}

func (e *TransitionError) Unwrap() error { return domain.ErrInvalidTransition }

// Command is a request to apply a workflow action.
type Command struct {
	Action       Action
	Actor        string
	Evidence     *evidence.Evidence // mark_done only
	SkipDocument bool               // mark_done only
	Now          time.Time
}

// Outcome describes what Apply did.
type Outcome struct {
	From    Status
	To      Status
	Applied bool // false when the command was an idempotent replay
}

// Apply runs cmd against t. Replaying an action whose effect is already
// in place (start on in_progress, mark_done on done, verify or approve
// by the same actor) succeeds without changing t. On error t is left
// unchanged.
func Apply(t *Task, cmd Command) (Outcome, error) {
	tr, ok := transitions[cmd.Action]
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %q is not a workflow action", domain.ErrValidation, cmd.Action)
	}
	from := t.Status
	if replayed(t, cmd) {
		return Outcome{From: from, To: from}, nil
	}
	if !slices.Contains(tr.from, from) {
		return Outcome{}, &TransitionError{From: from, Action: cmd.Action, Allowed: AllowedActions(from)}
	}
	if cmd.Action == ActionMarkDone && cmd.Evidence == nil && t.Document == nil && !cmd.SkipDocument {
		return Outcome{}, fmt.Errorf("%w: attach a document or confirm completion without one", domain.ErrValidation)
	}

	now := cmd.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	switch cmd.Action {
	case ActionMarkDone:
		if cmd.Evidence != nil {
			t.Document = cmd.Evidence
		}
	case ActionVerify:
		t.VerifiedBy = cmd.Actor
		t.VerifiedAt = &now
	case ActionReject:
		t.clearSignOff()
	case ActionApprove:
		t.ApprovedBy = cmd.Actor
		t.ApprovedAt = &now
	}
	t.Status = tr.to
	t.UpdatedAt = now
	return Outcome{From: from, To: tr.to, Applied: true}, nil
}

func replayed(t *Task, cmd Command) bool {
	switch cmd.Action {
	case ActionStart:
		return t.Status == StatusInProgress
	case ActionMarkDone:
		return t.Status == StatusDone
	case ActionVerify:
		return t.Status == StatusVerified && t.VerifiedBy == cmd.Actor
	case ActionApprove:
		return t.Status == StatusApproved && t.ApprovedBy == cmd.Actor
	}
	return false
}

func (t *Task) clearSignOff() {
	t.VerifiedBy, t.VerifiedAt = "", nil
	t.ApprovedBy, t.ApprovedAt = "", nil
}
