package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/Strob0t/Tasktrack/internal/domain"
	"github.com/Strob0t/Tasktrack/internal/domain/audit"
	"github.com/Strob0t/Tasktrack/internal/domain/issue"
)

const issueColumns = `id, org_id, title, description, severity, status, reported_by, assigned_to,
	resolved_at, version, created_at, updated_at`

func (s *Store) CreateIssue(ctx context.Context, i *issue.Issue, entry *audit.Entry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	i.Version = 1
	_, err = tx.Exec(ctx,
		`INSERT INTO issues (`+issueColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		i.ID, i.OrgID, i.Title, i.Description, string(i.Severity), string(i.Status), i.ReportedBy,
		nullIfEmpty(i.AssignedTo), i.ResolvedAt, i.Version, i.CreatedAt, i.UpdatedAt)
	if err != nil {
		return constraintWrap(err, "insert issue")
	}
	if err := appendAudit(ctx, tx, entry); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create issue: %w", err)
	}
	return nil
}

func (s *Store) GetIssue(ctx context.Context, orgID, id string) (*issue.Issue, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE id = $1 AND org_id = $2`, id, orgID)
	i, err := scanIssue(row)
	if err != nil {
		return nil, notFoundWrap(err, "get issue %s", id)
	}
	return &i, nil
}

func (s *Store) ListIssues(ctx context.Context, orgID string, f issue.ListFilter) ([]issue.Issue, error) {
	where := []string{"org_id = $1"}
	args := []any{orgID}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Severity != "" {
		args = append(args, string(f.Severity))
		where = append(where, fmt.Sprintf("severity = $%d", len(args)))
	}
	if f.InvolvingUser != "" {
		args = append(args, f.InvolvingUser)
		where = append(where, fmt.Sprintf("(reported_by = $%d OR assigned_to = $%d)", len(args), len(args)))
	}
	limit, offset := pageBounds(f.Limit, f.Offset)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx,
		`SELECT `+issueColumns+` FROM issues
		 WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY created_at DESC, id
		 LIMIT $`+fmt.Sprint(len(args)-1)+` OFFSET $`+fmt.Sprint(len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	defer rows.Close()

	var issues []issue.Issue
	for rows.Next() {
		i, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		issues = append(issues, i)
	}
	return orEmpty(issues), rows.Err()
}

func (s *Store) UpdateIssue(ctx context.Context, i *issue.Issue, entry *audit.Entry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	tag, err := tx.Exec(ctx,
		`UPDATE issues SET title = $4, description = $5, severity = $6, status = $7, assigned_to = $8,
		        resolved_at = $9, updated_at = $10, version = version + 1
		 WHERE id = $1 AND org_id = $2 AND version = $3`,
		i.ID, i.OrgID, i.Version, i.Title, i.Description, string(i.Severity), string(i.Status),
		nullIfEmpty(i.AssignedTo), i.ResolvedAt, i.UpdatedAt)
	if err != nil {
		return constraintWrap(err, "update issue %s", i.ID)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update issue %s: %w", i.ID, domain.ErrConflict)
	}
	if err := appendAudit(ctx, tx, entry); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit update issue: %w", err)
	}
	i.Version++
	return nil
}

func (s *Store) DeleteIssue(ctx context.Context, orgID, id string, entry *audit.Entry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	tag, err := tx.Exec(ctx, `DELETE FROM issues WHERE id = $1 AND org_id = $2`, id, orgID)
	if err := execExpectOne(tag, err, "delete issue %s", id); err != nil {
		return err
	}
	if err := appendAudit(ctx, tx, entry); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delete issue: %w", err)
	}
	return nil
}

func scanIssue(row scannable) (issue.Issue, error) {
	var (
		i                issue.Issue
		severity, status string
		assignedTo       *string
	)
	err := row.Scan(&i.ID, &i.OrgID, &i.Title, &i.Description, &severity, &status, &i.ReportedBy,
		&assignedTo, &i.ResolvedAt, &i.Version, &i.CreatedAt, &i.UpdatedAt)
	i.Severity = issue.Severity(severity)
	i.Status = issue.Status(status)
	i.AssignedTo = derefString(assignedTo)
	return i, err
}
