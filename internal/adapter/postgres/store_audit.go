package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/Strob0t/Tasktrack/internal/domain/audit"
)

func (s *Store) AppendAudit(ctx context.Context, entry *audit.Entry) error {
	return appendAudit(ctx, s.pool, entry)
}

// appendAudit writes entry through q so it shares the caller's transaction.
// A nil entry is a no-op.
func appendAudit(ctx context.Context, q execer, entry *audit.Entry) error {
	if entry == nil {
		return nil
	}
	var details []byte
	if len(entry.Details) > 0 {
		details = entry.Details
	}
	_, err := q.Exec(ctx,
		`INSERT INTO audit_logs (id, org_id, user_id, action, entity_type, entity_id, details, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.OrgID, entry.UserID, entry.Action, entry.EntityType, entry.EntityID, details, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *Store) ListAudit(ctx context.Context, orgID string, f audit.ListFilter) ([]audit.Entry, error) {
	where := []string{"org_id = $1"}
	args := []any{orgID}
	if f.EntityType != "" {
		args = append(args, f.EntityType)
		where = append(where, fmt.Sprintf("entity_type = $%d", len(args)))
	}
	if f.EntityID != "" {
		args = append(args, f.EntityID)
		where = append(where, fmt.Sprintf("entity_id = $%d", len(args)))
	}
	if f.UserID != "" {
		args = append(args, f.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	limit, offset := pageBounds(f.Limit, f.Offset)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx,
		`SELECT id, org_id, user_id, action, entity_type, entity_id, details, created_at
		 FROM audit_logs
		 WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY created_at DESC, id
		 LIMIT $`+fmt.Sprint(len(args)-1)+` OFFSET $`+fmt.Sprint(len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var (
			e       audit.Entry
			details []byte
		)
		if err := rows.Scan(&e.ID, &e.OrgID, &e.UserID, &e.Action, &e.EntityType, &e.EntityID, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if len(details) > 0 {
			e.Details = details
		}
		entries = append(entries, e)
	}
	return orEmpty(entries), rows.Err()
}
