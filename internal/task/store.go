package task

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alecgard/taskforge/internal/database"
	"github.com/alecgard/taskforge/internal/user"
)

// Store provides database operations for tasks.
type Store struct {
	db *database.DB
}

// NewStore creates a new task store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

const taskSelect = `SELECT t.id, t.team_id, t.title, t.description, t.status, t.priority, t.due_at,
	t.created_by_user_id, t.assignee_user_id, t.deleted_at, t.created_at, t.updated_at,
	c.id, c.email, c.name, c.created_at, c.updated_at,
	a.id, a.email, a.name, a.created_at, a.updated_at
	FROM tasks t
	JOIN users c ON c.id = t.created_by_user_id
	LEFT JOIN users a ON a.id = t.assignee_user_id`

func scanTask(scan func(dest ...any) error) (*Task, error) {
	t := &Task{}
	c := &user.User{}
	var (
		aID, aEmail, aName *string
		aCreated, aUpdated *time.Time
	)
	err := scan(
		&t.ID, &t.TeamID, &t.Title, &t.Description, &t.Status, &t.Priority, &t.DueAt,
		&t.CreatedByUserID, &t.AssigneeUserID, &t.DeletedAt, &t.CreatedAt, &t.UpdatedAt,
		&c.ID, &c.Email, &c.Name, &c.CreatedAt, &c.UpdatedAt,
		&aID, &aEmail, &aName, &aCreated, &aUpdated,
	)
	if err != nil {
		return nil, err
	}
	t.CreatedBy = c
	if aID != nil {
		t.Assignee = &user.User{ID: *aID, Email: *aEmail, Name: *aName, CreatedAt: *aCreated, UpdatedAt: *aUpdated}
	}
	return t, nil
}

// Create inserts a task and returns it with its user summaries.
func (s *Store) Create(ctx context.Context, in NewTask) (*Task, error) {
	var id string
	err := s.db.Conn(ctx).QueryRow(ctx,
		`INSERT INTO tasks (team_id, title, description, status, priority, due_at, created_by_user_id, assignee_user_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		in.TeamID, in.Title, in.Description, in.Status, in.Priority, in.DueAt, in.CreatedByUserID, in.AssigneeUserID,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}
	return s.Get(ctx, in.TeamID, id)
}

// Get returns a non-deleted task of the team.
func (s *Store) Get(ctx context.Context, teamID, taskID string) (*Task, error) {
	return s.get(ctx, teamID, taskID, "")
}

// GetForUpdate is Get with the task row locked until the transaction ends.
func (s *Store) GetForUpdate(ctx context.Context, teamID, taskID string) (*Task, error) {
	return s.get(ctx, teamID, taskID, " FOR UPDATE OF t")
}

func (s *Store) get(ctx context.Context, teamID, taskID, suffix string) (*Task, error) {
	t, err := scanTask(func(dest ...any) error {
		return s.db.Conn(ctx).QueryRow(ctx,
			taskSelect+` WHERE t.id = $1 AND t.team_id = $2 AND t.deleted_at IS NULL`+suffix,
			taskID, teamID,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("getting task: %w", err)
	}
	return t, nil
}

// ListByTeam returns the team's non-deleted tasks, most recently updated
// first.
func (s *Store) ListByTeam(ctx context.Context, teamID string) ([]*Task, error) {
	rows, err := s.db.Conn(ctx).Query(ctx,
		taskSelect+` WHERE t.team_id = $1 AND t.deleted_at IS NULL
		 ORDER BY t.updated_at DESC, t.id DESC`,
		teamID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer rows.Close()

	out := []*Task{}
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning task row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Update applies the provided patch fields to a task.
func (s *Store) Update(ctx context.Context, teamID, taskID string, p Patch) (*Task, error) {
	var setClauses []string
	var args []any
	argIdx := 1

	add := func(column string, v any) {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, argIdx))
		args = append(args, v)
		argIdx++
	}
	if p.Title.Set {
		add("title", p.Title.Value)
	}
	if p.Description.Set {
		add("description", p.Description.Ptr())
	}
	if p.Status.Set {
		add("status", p.Status.Value)
	}
	if p.Priority.Set {
		add("priority", p.Priority.Value)
	}
	if p.DueAt.Set {
		add("due_at", p.DueAt.Ptr())
	}
	if p.AssigneeUserID.Set {
		add("assignee_user_id", p.AssigneeUserID.Ptr())
	}

	if len(setClauses) == 0 {
		return s.Get(ctx, teamID, taskID)
	}
	setClauses = append(setClauses, "updated_at = clock_timestamp()")

	args = append(args, taskID, teamID)
	query := fmt.Sprintf(
		`UPDATE tasks SET %s WHERE id = $%d AND team_id = $%d AND deleted_at IS NULL`,
		strings.Join(setClauses, ", "), argIdx, argIdx+1,
	)
	if _, err := s.db.Conn(ctx).Exec(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("updating task: %w", err)
	}
	return s.Get(ctx, teamID, taskID)
}
