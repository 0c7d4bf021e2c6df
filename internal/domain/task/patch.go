package task

import (
	"errors"
	"fmt"
	"time"

	"github.com/Strob0t/Tasktrack/internal/domain"
)

// Patch is a direct edit of a task. Every field follows the Field
// convention, identically to CreateRequest.
type Patch struct {
	Title       domain.Field[string]   `json:"title"`
	Description domain.Field[string]   `json:"description"`
	Priority    domain.Field[Priority] `json:"priority"`
	AssignedTo  domain.Field[string]   `json:"assigned_to"`
	DueDate     domain.Field[Date]     `json:"due_date"`
	Status      domain.Field[Status]   `json:"status"`
}

// Empty reports whether the patch changes nothing.
func (p *Patch) Empty() bool {
	return len(p.Fields()) == 0
}

// Fields returns the JSON names of the fields the patch touches.
func (p *Patch) Fields() []string {
	var out []string
	for _, f := range []struct {
		name string
		set  bool
	}{
		{"title", p.Title.Set},
		{"description", p.Description.Set},
		{"priority", p.Priority.Set},
		{"assigned_to", p.AssignedTo.Set},
		{"due_date", p.DueDate.Set},
		{"status", p.Status.Set},
	} {
		if f.set {
			out = append(out, f.name)
		}
	}
	return out
}

// Validate checks the patch in isolation, without looking at a task.
func (p *Patch) Validate() error {
	if p.Title.Null {
		return errors.New("title cannot be cleared")
	}
	if p.Priority.Null {
		return errors.New("priority cannot be cleared")
	}
	if v, ok := p.Priority.Get(); ok && !ValidPriorities[v] {
		return fmt.Errorf("invalid priority %q", v)
	}
	if p.Status.Null {
		return errors.New("status cannot be cleared")
	}
	if v, ok := p.Status.Get(); ok && v != StatusBlocked && v != StatusTodo {
		return fmt.Errorf("status can only be edited to %s or %s; use the workflow actions for %s", StatusBlocked, StatusTodo, v)
	}
	return nil
}

// ApplyPatch applies a validated patch. Status edits may block any task
// that is not yet approved, and may return a blocked task to todo. A task
// that gets blocked loses its sign-offs. On error t is left unchanged.
func (t *Task) ApplyPatch(p *Patch, now time.Time) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if st, ok := p.Status.Get(); ok && st != t.Status {
		if err := checkStatusEdit(t.Status, st); err != nil {
			return err
		}
		t.Status = st
		t.clearSignOff()
	}
	if v, ok := p.Title.Get(); ok {
		t.Title = v
	}
	if p.Description.Set {
		t.Description = p.Description.Or("")
	}
	if v, ok := p.Priority.Get(); ok {
		t.Priority = v
	}
	if p.AssignedTo.Set {
		t.AssignedTo = p.AssignedTo.Or("")
	}
	if p.DueDate.Set {
		if d, ok := p.DueDate.Get(); ok {
			due := d.Time()
			t.DueDate = &due
		} else {
			t.DueDate = nil
		}
	}
	t.UpdatedAt = now
	return nil
}

func checkStatusEdit(from, to Status) error {
	switch {
	case to == StatusBlocked && from != StatusApproved:
		return nil
	case to == StatusTodo && from == StatusBlocked:
		return nil
	}
	return &TransitionError{From: from, Action: ActionEdit, Allowed: AllowedActions(from)}
}
