package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/Strob0t/Tasktrack/internal/adapter/postgres"
	"github.com/Strob0t/Tasktrack/internal/adapter/ristretto"
	"github.com/Strob0t/Tasktrack/internal/config"
	"github.com/Strob0t/Tasktrack/internal/domain/user"
	"github.com/Strob0t/Tasktrack/internal/secrets"
	"github.com/Strob0t/Tasktrack/internal/service"
)

// runAdmin dispatches admin subcommands.
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "create-user":
		return runAdminCreateUser(args[1:])
	case "list-users":
		return runAdminListUsers(args[1:])
	case "issue-token":
		return runAdminIssueToken(args[1:])
	case "migrate":
		return runAdminMigrate(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: tasktrack admin <command> [options]

Commands:
  create-user      Create a user in an organization
  list-users       List the users of an organization
  issue-token      Issue a bearer token for a user
  migrate          Apply, inspect or roll back database migrations
  help             Show this help message

Examples:
  tasktrack admin create-user --email admin@example.com --name "Ada Admin" --role admin
  tasktrack admin list-users --org 00000000-0000-0000-0000-000000000000
  tasktrack admin issue-token --user 7b0c... --ttl 1h
  tasktrack admin migrate status
  tasktrack admin migrate rollback --steps 1
`)
}

type adminDeps struct {
	cfg   *config.Config
	users *service.UserService
	auth  *service.AuthService
	close func()
}

func loadAdminDeps(ctx context.Context) (*adminDeps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	l1, err := ristretto.New(1)
	if err != nil {
		pool.Close()
		return nil, err
	}

	vault, err := secrets.NewVault(secretsLoader(config.NewHolder(cfg, "")))
	if err != nil {
		pool.Close()
		l1.Close()
		return nil, fmt.Errorf("secrets: %w", err)
	}
	authSvc := service.NewAuthService(&cfg.Auth)
	authSvc.SetSecretSource(vault.Source(secrets.JWTSecret))

	return &adminDeps{
		cfg:   cfg,
		users: service.NewUserService(postgres.NewStore(pool), l1, time.Minute),
		auth:  authSvc,
		close: func() {
			l1.Close()
			pool.Close()
		},
	}, nil
}

func runAdminCreateUser(args []string) error {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	email := fs.String("email", "", "user email address (required)")
	name := fs.String("name", "", "user display name (required)")
	role := fs.String("role", string(user.RoleMember), "role: admin, manager or member")
	org := fs.String("org", "", "organization id (defaults to auth.default_org_id)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *email == "" {
		return errors.New("--email is required")
	}
	if *name == "" {
		return errors.New("--name is required")
	}

	ctx := context.Background()
	deps, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer deps.close()

	orgID := orDefault(*org, deps.cfg.Auth.DefaultOrgID)
	u, err := deps.users.Provision(ctx, orgID, &user.CreateRequest{
		Email: *email,
		Name:  *name,
		Role:  user.Role(*role),
	})
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	fmt.Fprintf(os.Stderr, "User created: %s (id=%s, role=%s, org=%s)\n", u.Email, u.ID, u.Role, u.OrgID)
	return nil
}

func runAdminListUsers(args []string) error {
	fs := flag.NewFlagSet("list-users", flag.ContinueOnError)
	org := fs.String("org", "", "organization id (defaults to auth.default_org_id)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	deps, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer deps.close()

	orgID := orDefault(*org, deps.cfg.Auth.DefaultOrgID)
	users, err := deps.users.List(ctx, user.Principal{OrgID: orgID, Role: user.RoleAdmin})
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	if len(users) == 0 {
		fmt.Println("No users found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tEMAIL\tNAME\tROLE\tACTIVE")
	for i := range users {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n",
			users[i].ID, users[i].Email, users[i].Name, users[i].Role, users[i].Active)
	}
	return w.Flush()
}

func runAdminIssueToken(args []string) error {
	fs := flag.NewFlagSet("issue-token", flag.ContinueOnError)
	userID := fs.String("user", "", "user id (required)")
	org := fs.String("org", "", "organization id (defaults to auth.default_org_id)")
	ttl := fs.Duration("ttl", 0, "token lifetime (defaults to auth.dev_token_expiry)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == "" {
		return errors.New("--user is required")
	}

	ctx := context.Background()
	deps, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer deps.close()

	orgID := orDefault(*org, deps.cfg.Auth.DefaultOrgID)
	u, err := deps.users.Get(ctx, orgID, *userID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if !u.Active {
		return fmt.Errorf("user %s is inactive", u.ID)
	}

	token, err := deps.auth.IssueToken(u, *ttl)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}

	// The bare token goes to stdout so it can be captured by scripts.
	if term.IsTerminal(int(os.Stdout.Fd())) { //nolint:gosec // fd fits in int
		fmt.Fprintf(os.Stderr, "Token for %s (%s):\n", u.Email, u.Role)
	}
	fmt.Println(token)
	return nil
}

func runAdminMigrate(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: tasktrack admin migrate <up|status|rollback> [--steps N]")
	}
	fs := flag.NewFlagSet("migrate "+args[0], flag.ContinueOnError)
	steps := fs.Int("steps", 1, "number of migrations to roll back")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx := context.Background()

	switch args[0] {
	case "up":
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return err
		}
	case "rollback":
		if err := postgres.RollbackMigrations(ctx, cfg.Postgres.DSN, *steps); err != nil {
			return err
		}
	case "status":
		states, err := postgres.MigrationStatus(ctx, cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "VERSION\tFILE\tAPPLIED_AT")
		for _, s := range states {
			applied := "pending"
			if s.Applied {
				applied = s.AppliedAt.Format(time.RFC3339)
			}
			_, _ = fmt.Fprintf(w, "%d\t%s\t%s\n", s.Version, s.Path, applied)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown migrate command: %s", args[0])
	}

	v, err := postgres.MigrationVersion(ctx, cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Schema version: %d\n", v)
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
