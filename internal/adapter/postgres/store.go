package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/Tasktrack/internal/domain"
	"github.com/Strob0t/Tasktrack/internal/domain/audit"
	"github.com/Strob0t/Tasktrack/internal/domain/evidence"
	"github.com/Strob0t/Tasktrack/internal/domain/task"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// execer is satisfied by both *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// --- Tasks ---

const taskColumns = `id, org_id, title, description, status, priority, assigned_to, created_by, due_date,
	doc_filename, doc_content_id, doc_storage_ref, doc_content_type, doc_size,
	doc_summary_state, doc_summary, doc_summary_error, doc_attached_at, doc_summarized_at,
	verified_by, verified_at, approved_by, approved_at, version, created_at, updated_at`

func (s *Store) CreateTask(ctx context.Context, t *task.Task, entry *audit.Entry) error {
	doc, err := documentArgs(t.Document)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	t.Version = 1
	args := []any{
		t.ID, t.OrgID, t.Title, t.Description, string(t.Status), string(t.Priority),
		nullIfEmpty(t.AssignedTo), t.CreatedBy, t.DueDate,
	}
	args = append(args, doc...)
	args = append(args,
		nullIfEmpty(t.VerifiedBy), t.VerifiedAt, nullIfEmpty(t.ApprovedBy), t.ApprovedAt,
		t.Version, t.CreatedAt, t.UpdatedAt,
	)
	_, err = tx.Exec(ctx,
		`INSERT INTO tasks (`+taskColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19,
		         $20, $21, $22, $23, $24, $25, $26)`, args...)
	if err != nil {
		return constraintWrap(err, "insert task")
	}
	if err := appendAudit(ctx, tx, entry); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create task: %w", err)
	}
	return nil
}

func (s *Store) GetTask(ctx context.Context, orgID, id string) (*task.Task, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1 AND org_id = $2`, id, orgID)
	t, err := scanTask(row)
	if err != nil {
		return nil, notFoundWrap(err, "get task %s", id)
	}
	return &t, nil
}

func (s *Store) ListTasks(ctx context.Context, orgID string, f task.ListFilter) ([]task.Task, error) {
	where := []string{"org_id = $1"}
	args := []any{orgID}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, pgTextArray(statuses))
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if f.Priority != "" {
		args = append(args, string(f.Priority))
		where = append(where, fmt.Sprintf("priority = $%d", len(args)))
	}
	if f.AssignedTo != "" {
		args = append(args, f.AssignedTo)
		where = append(where, fmt.Sprintf("assigned_to = $%d", len(args)))
	}
	limit, offset := pageBounds(f.Limit, f.Offset)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY created_at DESC, id
		 LIMIT $`+fmt.Sprint(len(args)-1)+` OFFSET $`+fmt.Sprint(len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return orEmpty(tasks), rows.Err()
}

// docChanged is true when an UPDATE of tasks attaches a different document
// than the stored one. SET expressions see the row before the update.
const docChanged = `(doc_content_id IS DISTINCT FROM $11 OR doc_attached_at IS DISTINCT FROM $18)`

func (s *Store) UpdateTask(ctx context.Context, t *task.Task, entry *audit.Entry) error {
	doc, err := documentArgs(t.Document)
	if err != nil {
		return fmt.Errorf("update task %s: %w", t.ID, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	args := []any{
		t.ID, t.OrgID, t.Version,
		t.Title, t.Description, string(t.Status), string(t.Priority), nullIfEmpty(t.AssignedTo), t.DueDate,
	}
	args = append(args, doc...)
	args = append(args,
		nullIfEmpty(t.VerifiedBy), t.VerifiedAt, nullIfEmpty(t.ApprovedBy), t.ApprovedAt, t.UpdatedAt,
	)
	// The summary columns belong to the summary worker once a document is
	// attached; they are only overwritten when a document is (re)attached.
	updated, err := scanTask(tx.QueryRow(ctx,
		`UPDATE tasks SET
		     title = $4, description = $5, status = $6, priority = $7, assigned_to = $8, due_date = $9,
		     doc_summary_state = CASE WHEN `+docChanged+` THEN $15 ELSE doc_summary_state END,
		     doc_summary       = CASE WHEN `+docChanged+` THEN $16 ELSE doc_summary END,
		     doc_summary_error = CASE WHEN `+docChanged+` THEN $17 ELSE doc_summary_error END,
		     doc_summarized_at = CASE WHEN `+docChanged+` THEN $19 ELSE doc_summarized_at END,
		     doc_filename = $10, doc_content_id = $11, doc_storage_ref = $12, doc_content_type = $13, doc_size = $14,
		     doc_attached_at = $18,
		     verified_by = $20, verified_at = $21, approved_by = $22, approved_at = $23,
		     updated_at = $24, version = version + 1
		 WHERE id = $1 AND org_id = $2 AND version = $3
		 RETURNING `+taskColumns, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("update task %s: %w", t.ID, domain.ErrConflict)
	}
	if err != nil {
		return constraintWrap(err, "update task %s", t.ID)
	}
	if err := appendAudit(ctx, tx, entry); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit update task: %w", err)
	}
	*t = updated
	return nil
}

func (s *Store) DeleteTask(ctx context.Context, orgID, id string, entry *audit.Entry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	tag, err := tx.Exec(ctx, `DELETE FROM tasks WHERE id = $1 AND org_id = $2`, id, orgID)
	if err := execExpectOne(tag, err, "delete task %s", id); err != nil {
		return err
	}
	if err := appendAudit(ctx, tx, entry); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delete task: %w", err)
	}
	return nil
}

func (s *Store) UpdateTaskSummary(ctx context.Context, res *evidence.SummaryResult) error {
	var summaryJSON []byte
	if res.Summary != nil {
		b, err := json.Marshal(res.Summary)
		if err != nil {
			return fmt.Errorf("marshal summary: %w", err)
		}
		summaryJSON = b
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE tasks SET doc_summary_state = $4, doc_summary = $5, doc_summary_error = $6, doc_summarized_at = $7
		 WHERE id = $1 AND org_id = $2 AND doc_content_id = $3`,
		res.TaskID, res.OrgID, res.ContentID, string(res.State), summaryJSON, nullIfEmpty(res.Error), nullTime(res.At))
	return execExpectOne(tag, err, "update summary for task %s", res.TaskID)
}

func (s *Store) TaskStats(ctx context.Context, orgID string, now time.Time) (*task.Stats, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, priority, count(*),
		        count(*) FILTER (WHERE due_date < $2 AND status <> 'approved'),
		        count(*) FILTER (WHERE due_date >= $2 AND due_date < $3 AND status <> 'approved')
		 FROM tasks WHERE org_id = $1
		 GROUP BY status, priority`,
		orgID, now, now.Add(task.DueSoonWindow))
	if err != nil {
		return nil, fmt.Errorf("task stats: %w", err)
	}
	defer rows.Close()

	stats := &task.Stats{
		ByStatus:   make(map[task.Status]int, len(task.ValidStatuses)),
		ByPriority: make(map[task.Priority]int, len(task.ValidPriorities)),
	}
	for st := range task.ValidStatuses {
		stats.ByStatus[st] = 0
	}
	for p := range task.ValidPriorities {
		stats.ByPriority[p] = 0
	}
	for rows.Next() {
		var (
			status, priority        string
			count, overdue, dueSoon int
		)
		if err := rows.Scan(&status, &priority, &count, &overdue, &dueSoon); err != nil {
			return nil, fmt.Errorf("scan task stats: %w", err)
		}
		stats.Total += count
		stats.ByStatus[task.Status(status)] += count
		stats.ByPriority[task.Priority(priority)] += count
		stats.Overdue += overdue
		stats.DueSoon += dueSoon
	}
	return stats, rows.Err()
}

// documentArgs flattens the evidence record into the ten doc_* columns.
func documentArgs(d *evidence.Evidence) ([]any, error) {
	if d == nil {
		return make([]any, 10), nil
	}
	var summaryJSON []byte
	if d.Summary != nil {
		b, err := json.Marshal(d.Summary)
		if err != nil {
			return nil, fmt.Errorf("marshal summary: %w", err)
		}
		summaryJSON = b
	}
	return []any{
		d.Filename, d.ContentID, d.StorageRef, nullIfEmpty(d.ContentType), d.Size,
		string(d.SummaryState), summaryJSON, nullIfEmpty(d.SummaryError), d.AttachedAt, d.SummarizedAt,
	}, nil
}

func scanTask(row scannable) (task.Task, error) {
	var (
		t                                  task.Task
		status, priority                   string
		assignedTo, verifiedBy, approvedBy *string

		docFilename, docContentID, docRef, docType, docState, docErr *string
		docSize                                                      *int64
		docSummary                                                   []byte
		docAttached, docSummarized                                   *time.Time
	)
	err := row.Scan(
		&t.ID, &t.OrgID, &t.Title, &t.Description, &status, &priority, &assignedTo, &t.CreatedBy, &t.DueDate,
		&docFilename, &docContentID, &docRef, &docType, &docSize,
		&docState, &docSummary, &docErr, &docAttached, &docSummarized,
		&verifiedBy, &t.VerifiedAt, &approvedBy, &t.ApprovedAt, &t.Version, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return t, err
	}
	t.Status = task.Status(status)
	t.Priority = task.Priority(priority)
	t.AssignedTo = derefString(assignedTo)
	t.VerifiedBy = derefString(verifiedBy)
	t.ApprovedBy = derefString(approvedBy)

	if docContentID != nil {
		d := &evidence.Evidence{
			Filename:     derefString(docFilename),
			ContentID:    *docContentID,
			StorageRef:   derefString(docRef),
			ContentType:  derefString(docType),
			SummaryState: evidence.SummaryState(derefString(docState)),
			SummaryError: derefString(docErr),
			SummarizedAt: docSummarized,
		}
		if docSize != nil {
			d.Size = *docSize
		}
		if docAttached != nil {
			d.AttachedAt = *docAttached
		}
		if len(docSummary) > 0 {
			var sum evidence.Summary
			if err := json.Unmarshal(docSummary, &sum); err != nil {
				return t, fmt.Errorf("unmarshal summary: %w", err)
			}
			d.Summary = &sum
		}
		t.Document = d
	}
	return t, nil
}
