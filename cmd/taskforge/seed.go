package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"

	"github.com/alecgard/taskforge/internal/auth"
	"github.com/alecgard/taskforge/internal/config"
	"github.com/alecgard/taskforge/internal/task"
	"github.com/alecgard/taskforge/internal/team"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed demo users, a team and a few tasks",
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

const demoPassword = "taskforge-demo"

var demoUsers = []auth.RegisterInput{
	{Email: "owner@taskforge.dev", Name: "Olivia Owner", Password: demoPassword},
	{Email: "admin@taskforge.dev", Name: "Adam Admin", Password: demoPassword},
	{Email: "member@taskforge.dev", Name: "Mia Member", Password: demoPassword},
}

var demoTasks = []task.CreateInput{
	{Title: "Write onboarding guide", Status: task.StatusInProgress, Priority: task.PriorityHigh},
	{Title: "Set up staging database", Status: task.StatusTodo, Priority: task.PriorityUrgent},
	{Title: "Review realtime reconnect logic", Status: task.StatusBlocked, Priority: task.PriorityMedium},
	{Title: "Tidy up the backlog", Status: task.StatusDone, Priority: task.PriorityLow},
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return errors.New("database.url is required to seed")
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	// Check if seed has already run.
	if _, err := a.users.GetByEmail(ctx, demoUsers[0].Email); err == nil {
		slog.Info("demo data already exists, skipping seed")
		return nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("checking existing users: %w", err)
	}

	ids := make([]string, 0, len(demoUsers))
	for _, in := range demoUsers {
		res, err := a.auth.Register(ctx, in)
		if err != nil {
			return fmt.Errorf("registering %s: %w", in.Email, err)
		}
		slog.Info("created user", "email", res.User.Email, "id", res.User.ID)
		ids = append(ids, res.User.ID)
	}
	ownerID := ids[0]

	t, err := a.teams.Create(ctx, ownerID, "Demo Team")
	if err != nil {
		return fmt.Errorf("creating team: %w", err)
	}
	owner, err := a.teams.Authorize(ctx, t.ID, ownerID, team.RoleOwner)
	if err != nil {
		return err
	}
	if _, err := a.teams.AddMember(ctx, owner, ids[1], team.RoleAdmin); err != nil {
		return fmt.Errorf("adding admin: %w", err)
	}
	if _, err := a.teams.AddMember(ctx, owner, ids[2], team.RoleMember); err != nil {
		return fmt.Errorf("adding member: %w", err)
	}

	var first *task.Task
	for i, in := range demoTasks {
		assignee := ids[i%len(ids)]
		in.AssigneeUserID = &assignee
		created, err := a.tasks.Create(ctx, ownerID, t.ID, in)
		if err != nil {
			return fmt.Errorf("creating task %q: %w", in.Title, err)
		}
		if first == nil {
			first = created
		}
	}
	if _, err := a.comments.Create(ctx, ids[2], t.ID, first.ID, "Started on the outline, will share a draft tomorrow."); err != nil {
		return fmt.Errorf("creating comment: %w", err)
	}

	fmt.Printf("\n=== Demo Data Seeded ===\n")
	fmt.Printf("Team:      %s (%s)\n", t.Name, t.ID)
	fmt.Printf("Tasks:     %d created\n", len(demoTasks))
	for _, u := range demoUsers {
		fmt.Printf("User:      %s / %s\n", u.Email, u.Password)
	}
	fmt.Printf("\nTry it:\n")
	fmt.Printf("  curl -X POST http://localhost:8080/auth/login -H 'Content-Type: application/json' \\\n")
	fmt.Printf("    -d '{\"email\":\"%s\",\"password\":\"%s\"}'\n", demoUsers[0].Email, demoPassword)

	return nil
}
