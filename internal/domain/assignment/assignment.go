// Package assignment decides who may assign work and to whom.
package assignment

import (
	"slices"
	"strings"

	"github.com/Strob0t/Tasktrack/internal/domain/user"
)

// AssignableRoles returns the roles a principal may assign work to,
// excluding self-assignment, which CanAssignTo handles separately.
//
//	admin   -> manager, member
//	manager -> member
//	member  -> none
func AssignableRoles(p user.Principal) []user.Role {
	switch p.Role {
	case user.RoleAdmin:
		return []user.Role{user.RoleManager, user.RoleMember}
	case user.RoleManager:
		return []user.Role{user.RoleMember}
	default:
		return nil
	}
}

// CanAssign reports whether the principal may assign work at all.
func CanAssign(p user.Principal) bool {
	return p.IsPrivileged()
}

// CanAssignTo reports whether p may assign work to candidate. Assigners
// may always assign to themselves. Candidates from another organization
// or inactive users are never assignable.
func CanAssignTo(p user.Principal, candidate *user.User) bool {
	if !CanAssign(p) || candidate == nil {
		return false
	}
	if candidate.OrgID != p.OrgID || !candidate.Active {
		return false
	}
	if p.Is(candidate.ID) {
		return true
	}
	return slices.Contains(AssignableRoles(p), candidate.Role)
}

// FilterCandidates returns the users p may assign to: managers first,
// then members, each group ordered by name. Members get an empty list.
func FilterCandidates(p user.Principal, users []user.User) []user.User {
	if !CanAssign(p) {
		return nil
	}
	out := make([]user.User, 0, len(users))
	for i := range users {
		if CanAssignTo(p, &users[i]) {
			out = append(out, users[i])
		}
	}
	slices.SortStableFunc(out, func(a, b user.User) int {
		if ra, rb := displayRank(a.Role), displayRank(b.Role); ra != rb {
			return ra - rb
		}
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return out
}

func displayRank(r user.Role) int {
	switch r {
	case user.RoleAdmin:
		return 0
	case user.RoleManager:
		return 1
	default:
		return 2
	}
}
