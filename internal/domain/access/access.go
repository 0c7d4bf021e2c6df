// Package access is the workflow authorization guard: a pure decision
// table over (principal role, assignment, task status, action).
package access

import (
	"fmt"

	"github.com/Strob0t/Tasktrack/internal/domain"
	"github.com/Strob0t/Tasktrack/internal/domain/task"
	"github.com/Strob0t/Tasktrack/internal/domain/user"
)

// Reason is a machine-readable denial code.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonInsufficientRole Reason = "insufficient_role"
	ReasonNotAssignee      Reason = "not_assignee"
	ReasonInvalidTarget    Reason = "invalid_assignee"
)

// Decision is the result of Authorize.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason,omitempty"`
	Rule    string `json:"rule"`
}

// Err returns nil for an allow and a *DenyError otherwise.
func (d Decision) Err(action task.Action) error {
	if d.Allowed {
		return nil
	}
	return &DenyError{Action: action, Reason: d.Reason, Rule: d.Rule}
}

// DenyError reports a denied action. It matches domain.ErrInsufficientRole.
type DenyError struct {
	Action task.Action
	Reason Reason
	Rule   string
}

func (e *DenyError) Error() string {
	return fmt.Sprintf("%s denied: %s (%s)", e.Action, e.Reason, e.Rule)
}

func (e *DenyError) Unwrap() error { return domain.ErrInsufficientRole }

func allow(rule string) Decision { return Decision{Allowed: true, Rule: rule} }

func deny(reason Reason, rule string) Decision {
	return Decision{Reason: reason, Rule: rule}
}

// rule is one row of the decision table. match selects the actions (and
// for reject, the status) the row covers; decide returns the decision
// for a matched request.
type rule struct {
	name   string
	match  func(a task.Action, t *task.Task) bool
	decide func(p user.Principal, t *task.Task) Decision
}

var rules = []rule{
	{
		name: "assignee-work",
		match: func(a task.Action, _ *task.Task) bool {
			return a == task.ActionStart || a == task.ActionMarkDone
		},
		decide: func(p user.Principal, t *task.Task) Decision {
			if !p.IsMember() && !p.IsManager() {
				return deny(ReasonInsufficientRole, "assignee-work")
			}
			if !t.IsAssignedTo(p.ID) {
				return deny(ReasonNotAssignee, "assignee-work")
			}
			return allow("assignee-work")
		},
	},
	{
		name: "manager-reassign",
		match: func(a task.Action, _ *task.Task) bool {
			return a == task.ActionReassign
		},
		decide: func(p user.Principal, t *task.Task) Decision {
			if !p.IsManager() {
				return deny(ReasonInsufficientRole, "manager-reassign")
			}
			if !t.IsAssignedTo(p.ID) {
				return deny(ReasonNotAssignee, "manager-reassign")
			}
			if t.Status != task.StatusTodo && t.Status != task.StatusInProgress {
				return deny(ReasonInsufficientRole, "manager-reassign")
			}
			return allow("manager-reassign")
		},
	},
	{
		name: "verify-or-reject-done",
		match: func(a task.Action, t *task.Task) bool {
			return a == task.ActionVerify || (a == task.ActionReject && t.Status != task.StatusVerified)
		},
		decide: func(p user.Principal, _ *task.Task) Decision {
			if p.IsPrivileged() {
				return allow("verify-or-reject-done")
			}
			return deny(ReasonInsufficientRole, "verify-or-reject-done")
		},
	},
	{
		name: "approve-or-reject-verified",
		match: func(a task.Action, t *task.Task) bool {
			return a == task.ActionApprove || (a == task.ActionReject && t.Status == task.StatusVerified)
		},
		decide: func(p user.Principal, _ *task.Task) Decision {
			if p.IsAdmin() {
				return allow("approve-or-reject-verified")
			}
			return deny(ReasonInsufficientRole, "approve-or-reject-verified")
		},
	},
	{
		name: "privileged-edit",
		match: func(a task.Action, _ *task.Task) bool {
			return a == task.ActionEdit || a == task.ActionDelete
		},
		decide: func(p user.Principal, _ *task.Task) Decision {
			if p.IsPrivileged() {
				return allow("privileged-edit")
			}
			return deny(ReasonInsufficientRole, "privileged-edit")
		},
	},
}

// Authorize decides whether p may perform action on t. The first rule
// whose match accepts the action decides; unmatched actions are denied.
// Principals from another organization are always denied. Authorize only
// checks who may act; whether the action is valid from the task's status
// is the state machine's concern.
func Authorize(p user.Principal, t *task.Task, action task.Action) Decision {
	if t == nil || p.OrgID != t.OrgID || !p.Role.Valid() {
		return deny(ReasonInsufficientRole, "default-deny")
	}
	for _, r := range rules {
		if r.match(action, t) {
			return r.decide(p, t)
		}
	}
	return deny(ReasonInsufficientRole, "default-deny")
}

// AuthorizeReassignTarget checks the assignee a manager picks through the
// reassign action: any member, or the manager themself. Unassigning is a
// direct edit, not a reassign.
func AuthorizeReassignTarget(p user.Principal, target *user.User) Decision {
	if target == nil {
		return deny(ReasonInvalidTarget, "reassign-target")
	}
	if p.Is(target.ID) || target.Role == user.RoleMember {
		return allow("reassign-target")
	}
	return deny(ReasonInvalidTarget, "reassign-target")
}
