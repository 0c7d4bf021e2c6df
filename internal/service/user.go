package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/Tasktrack/internal/domain"
	"github.com/Strob0t/Tasktrack/internal/domain/assignment"
	"github.com/Strob0t/Tasktrack/internal/domain/audit"
	"github.com/Strob0t/Tasktrack/internal/domain/user"
	"github.com/Strob0t/Tasktrack/internal/port/cache"
	"github.com/Strob0t/Tasktrack/internal/port/database"
)

// UserService manages the user directory. Single-user lookups, which the
// assignment checks perform on every write, go through the cache.
type UserService struct {
	store database.Store
	cache cache.Cache
	ttl   time.Duration
	now   func() time.Time
}

// NewUserService creates a new UserService. A nil cache disables caching.
func NewUserService(store database.Store, c cache.Cache, ttl time.Duration) *UserService {
	return &UserService{store: store, cache: c, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

func userKey(orgID, id string) string {
	return cache.Key("user", orgID, id)
}

// Get returns a directory entry of the given organization.
func (s *UserService) Get(ctx context.Context, orgID, id string) (*user.User, error) {
	key := userKey(orgID, id)
	if s.cache != nil {
		if data, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var u user.User
			if err := json.Unmarshal(data, &u); err == nil {
				return &u, nil
			}
			slog.WarnContext(ctx, "corrupt user cache entry", "key", key)
		}
	}

	u, err := s.store.GetUser(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	s.remember(ctx, u)
	return u, nil
}

func (s *UserService) remember(ctx context.Context, u *user.User) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(u)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, userKey(u.OrgID, u.ID), data, s.ttl); err != nil {
		slog.WarnContext(ctx, "user cache set failed", "user_id", u.ID, "error", err)
	}
}

func (s *UserService) forget(ctx context.Context, orgID, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, userKey(orgID, id)); err != nil {
		slog.WarnContext(ctx, "user cache delete failed", "user_id", id, "error", err)
	}
}

// Lookup returns one user of the principal's organization.
func (s *UserService) Lookup(ctx context.Context, p user.Principal, id string) (*user.User, error) {
	return s.Get(ctx, p.OrgID, id)
}

// List returns every user of the principal's organization.
func (s *UserService) List(ctx context.Context, p user.Principal) ([]user.User, error) {
	return s.store.ListUsers(ctx, p.OrgID)
}

// Assignable returns the users p may assign work to, managers first.
func (s *UserService) Assignable(ctx context.Context, p user.Principal) ([]user.User, error) {
	if !assignment.CanAssign(p) {
		return []user.User{}, nil
	}
	users, err := s.store.ListUsers(ctx, p.OrgID)
	if err != nil {
		return nil, err
	}
	return assignment.FilterCandidates(p, users), nil
}

// ResolveAssignee loads the candidate and checks that p may assign to them.
// An unknown or inactive candidate is a validation error.
func (s *UserService) ResolveAssignee(ctx context.Context, p user.Principal, id string) (*user.User, error) {
	u, err := s.Get(ctx, p.OrgID, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown assignee %q", domain.ErrValidation, id)
		}
		return nil, err
	}
	if !u.Active {
		return nil, fmt.Errorf("%w: assignee %q is inactive", domain.ErrValidation, id)
	}
	if !assignment.CanAssignTo(p, u) {
		return nil, fmt.Errorf("%w: %s may not assign work to a %s", domain.ErrInsufficientRole, p.Role, u.Role)
	}
	return u, nil
}

// Create adds a user to the principal's organization. Admin only.
func (s *UserService) Create(ctx context.Context, p user.Principal, req *user.CreateRequest) (*user.User, error) {
	if !p.IsAdmin() {
		return nil, fmt.Errorf("create user: %w", domain.ErrInsufficientRole)
	}
	u, err := s.Provision(ctx, p.OrgID, req)
	if err != nil {
		return nil, err
	}
	entry := newAuditEntry(p, audit.ActionCreate, audit.EntityUser, u.ID, map[string]any{"email": u.Email, "role": u.Role}, s.now())
	if err := s.store.AppendAudit(ctx, entry); err != nil {
		slog.ErrorContext(ctx, "audit append failed", "user_id", u.ID, "error", err)
	}
	return u, nil
}

// Provision adds a user without an acting principal. It backs both Create
// and the admin CLI that seeds the first administrator.
func (s *UserService) Provision(ctx context.Context, orgID string, req *user.CreateRequest) (*user.User, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	u := &user.User{
		ID:     uuid.NewString(),
		OrgID:  orgID,
		Email:  req.Email,
		Name:   req.Name,
		Role:   req.Role,
		Active: true,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "user created", "user_id", u.ID, "role", u.Role)
	return u, nil
}

// Update changes a user's name, role or active flag. Admin only; an admin
// cannot demote or deactivate themself.
func (s *UserService) Update(ctx context.Context, p user.Principal, id string, req *user.UpdateRequest) (*user.User, error) {
	if !p.IsAdmin() {
		return nil, fmt.Errorf("update user: %w", domain.ErrInsufficientRole)
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	if p.Is(id) && ((req.Role != nil && *req.Role != user.RoleAdmin) || (req.Active != nil && !*req.Active)) {
		return nil, fmt.Errorf("%w: admins cannot demote or deactivate themselves", domain.ErrValidation)
	}

	u, err := s.store.GetUser(ctx, p.OrgID, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		u.Name = *req.Name
	}
	if req.Role != nil {
		u.Role = *req.Role
	}
	if req.Active != nil {
		u.Active = *req.Active
	}
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return nil, err
	}
	s.forget(ctx, p.OrgID, id)

	entry := newAuditEntry(p, audit.ActionUpdate, audit.EntityUser, u.ID, req, s.now())
	if err := s.store.AppendAudit(ctx, entry); err != nil {
		slog.ErrorContext(ctx, "audit append failed", "user_id", u.ID, "error", err)
	}
	return u, nil
}
