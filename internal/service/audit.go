package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/Tasktrack/internal/domain"
	"github.com/Strob0t/Tasktrack/internal/domain/audit"
	"github.com/Strob0t/Tasktrack/internal/domain/user"
	"github.com/Strob0t/Tasktrack/internal/port/database"
)

// AuditService exposes the audit trail to administrators.
type AuditService struct {
	store database.Store
}

// NewAuditService creates a new AuditService.
func NewAuditService(store database.Store) *AuditService {
	return &AuditService{store: store}
}

// List returns audit entries of the principal's organization, newest first.
func (s *AuditService) List(ctx context.Context, p user.Principal, f audit.ListFilter) ([]audit.Entry, error) {
	if !p.IsAdmin() {
		return nil, fmt.Errorf("audit log: %w", domain.ErrInsufficientRole)
	}
	return s.store.ListAudit(ctx, p.OrgID, f)
}

// newAuditEntry builds an entry attributed to p. Details that fail to
// marshal are dropped rather than failing the operation being audited.
func newAuditEntry(p user.Principal, action, entityType, entityID string, details any, now time.Time) *audit.Entry {
	e := &audit.Entry{
		ID:         uuid.NewString(),
		OrgID:      p.OrgID,
		UserID:     p.ID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		CreatedAt:  now,
	}
	if details != nil {
		raw, err := json.Marshal(details)
		if err != nil {
			slog.Warn("audit details not serializable", "action", action, "entity_id", entityID, "error", err)
		} else {
			e.Details = raw
		}
	}
	return e
}
