// Package user defines the principal and user directory model used for
// authorization and assignment.
package user

import (
	"errors"
	"net/mail"
	"time"
)

// Role represents the authorization level of a user.
type Role string

const (
	RoleMember  Role = "member"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

// ValidRoles is the set of all valid user roles.
var ValidRoles = map[Role]bool{
	RoleMember:  true,
	RoleManager: true,
	RoleAdmin:   true,
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return ValidRoles[r] }

// User is a directory entry: a person who can act on or be assigned work.
type User struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"org_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Principal is the authenticated actor of a single request. It is built
// once by the identity layer and never mutated afterwards.
type Principal struct {
	ID    string `json:"id"`
	Role  Role   `json:"role"`
	OrgID string `json:"org_id"`
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// IsManager reports whether the principal has the manager role.
func (p Principal) IsManager() bool { return p.Role == RoleManager }

// IsMember reports whether the principal has the member role.
func (p Principal) IsMember() bool { return p.Role == RoleMember }

// IsPrivileged reports whether the principal is a manager or an admin.
func (p Principal) IsPrivileged() bool { return p.IsManager() || p.IsAdmin() }

// Is reports whether the principal is the user with the given id.
func (p Principal) Is(id string) bool { return id != "" && p.ID == id }

// Principal returns the principal view of a directory entry.
func (u *User) Principal() Principal {
	return Principal{ID: u.ID, Role: u.Role, OrgID: u.OrgID}
}

// CreateRequest is the input for adding a user to the directory.
type CreateRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
}

// Validate checks that the CreateRequest has all required fields.
func (r *CreateRequest) Validate() error {
	if r.Email == "" {
		return errors.New("email is required")
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return errors.New("invalid email format")
	}
	if r.Name == "" {
		return errors.New("name is required")
	}
	if !r.Role.Valid() {
		return errors.New("invalid role: must be member, manager, or admin")
	}
	return nil
}

// UpdateRequest is the input for updating an existing user. Nil fields
// are left unchanged.
type UpdateRequest struct {
	Name   *string `json:"name,omitempty"`
	Role   *Role   `json:"role,omitempty"`
	Active *bool   `json:"active,omitempty"`
}

// Validate checks the fields that are present.
func (r *UpdateRequest) Validate() error {
	if r.Name != nil && *r.Name == "" {
		return errors.New("name must not be empty")
	}
	if r.Role != nil && !r.Role.Valid() {
		return errors.New("invalid role: must be member, manager, or admin")
	}
	return nil
}

// TokenClaims contains the JWT payload fields the identity layer accepts.
type TokenClaims struct {
	UserID   string `json:"sub"`
	Name     string `json:"name,omitempty"`
	Role     Role   `json:"role"`
	OrgID    string `json:"org"`
	Issuer   string `json:"iss,omitempty"`
	Audience string `json:"aud,omitempty"`
	JTI      string `json:"jti,omitempty"`
	IssuedAt int64  `json:"iat"`
	Expiry   int64  `json:"exp"`
}

// Principal returns the principal the claims describe.
func (c *TokenClaims) Principal() Principal {
	return Principal{ID: c.UserID, Role: c.Role, OrgID: c.OrgID}
}
