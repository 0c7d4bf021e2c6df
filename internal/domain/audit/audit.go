// Package audit defines the append-only record of mutations.
package audit

import (
	"encoding/json"
	"time"
)

// Entity types recorded in the audit log.
const (
	EntityTask  = "task"
	EntityIssue = "issue"
	EntityUser  = "user"
)

// Actions recorded in the audit log besides workflow action names.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Entry is one audit record.
type Entry struct {
	ID         string          `json:"id"`
	OrgID      string          `json:"org_id"`
	UserID     string          `json:"user_id"`
	Action     string          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Details    json.RawMessage `json:"details,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ListFilter narrows audit listings.
type ListFilter struct {
	EntityType string
	EntityID   string
	UserID     string
	Limit      int
	Offset     int
}
