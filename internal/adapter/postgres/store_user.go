package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Strob0t/Tasktrack/internal/domain/user"
)

const userColumns = `id, org_id, email, name, role, active, created_at, updated_at`

func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.OrgID, u.Email, u.Name, string(u.Role), u.Active, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return constraintWrap(err, "create user")
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, orgID, id string) (*user.User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users WHERE id = $1 AND org_id = $2`, id, orgID)

	u, err := scanUser(row)
	if err != nil {
		return nil, notFoundWrap(err, "get user %s", id)
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context, orgID string) ([]user.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users WHERE org_id = $1 ORDER BY name, id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return orEmpty(users), rows.Err()
}

func (s *Store) UpdateUser(ctx context.Context, u *user.User) error {
	u.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET name = $3, role = $4, active = $5, updated_at = $6
		WHERE id = $1 AND org_id = $2`,
		u.ID, u.OrgID, u.Name, string(u.Role), u.Active, u.UpdatedAt,
	)
	return execExpectOne(tag, err, "update user %s", u.ID)
}

func scanUser(row scannable) (user.User, error) {
	var (
		u    user.User
		role string
	)
	err := row.Scan(&u.ID, &u.OrgID, &u.Email, &u.Name, &role, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	u.Role = user.Role(role)
	return u, err
}
