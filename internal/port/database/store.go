// Package database defines the database store port (interface).
package database

import (
	"context"
	"time"

	"github.com/Strob0t/Tasktrack/internal/domain/audit"
	"github.com/Strob0t/Tasktrack/internal/domain/evidence"
	"github.com/Strob0t/Tasktrack/internal/domain/issue"
	"github.com/Strob0t/Tasktrack/internal/domain/task"
	"github.com/Strob0t/Tasktrack/internal/domain/user"
)

// Store is the port interface for database operations. Every query is
// scoped to an organization id passed by the caller.
//
// Mutations that accept an *audit.Entry write it in the same transaction
// as the change; a nil entry skips auditing.
type Store interface {
	// Tasks
	CreateTask(ctx context.Context, t *task.Task, entry *audit.Entry) error
	GetTask(ctx context.Context, orgID, id string) (*task.Task, error)
	ListTasks(ctx context.Context, orgID string, f task.ListFilter) ([]task.Task, error)
	// UpdateTask writes t if its version still matches the stored row and
	// increments t.Version. A stale version returns domain.ErrConflict.
	UpdateTask(ctx context.Context, t *task.Task, entry *audit.Entry) error
	DeleteTask(ctx context.Context, orgID, id string, entry *audit.Entry) error
	// UpdateTaskSummary records a summarization result on the task's
	// document without touching status or version. Results for a document
	// that has since been replaced (content id mismatch) are ignored and
	// reported as domain.ErrNotFound.
	UpdateTaskSummary(ctx context.Context, res *evidence.SummaryResult) error
	TaskStats(ctx context.Context, orgID string, now time.Time) (*task.Stats, error)

	// Users
	CreateUser(ctx context.Context, u *user.User) error
	GetUser(ctx context.Context, orgID, id string) (*user.User, error)
	ListUsers(ctx context.Context, orgID string) ([]user.User, error)
	UpdateUser(ctx context.Context, u *user.User) error

	// Issues
	CreateIssue(ctx context.Context, i *issue.Issue, entry *audit.Entry) error
	GetIssue(ctx context.Context, orgID, id string) (*issue.Issue, error)
	ListIssues(ctx context.Context, orgID string, f issue.ListFilter) ([]issue.Issue, error)
	UpdateIssue(ctx context.Context, i *issue.Issue, entry *audit.Entry) error
	DeleteIssue(ctx context.Context, orgID, id string, entry *audit.Entry) error

	// Audit
	AppendAudit(ctx context.Context, entry *audit.Entry) error
	ListAudit(ctx context.Context, orgID string, f audit.ListFilter) ([]audit.Entry, error)
}
