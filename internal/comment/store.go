package comment

import (
	"context"
	"fmt"
	"time"

	"github.com/alecgard/taskforge/internal/database"
	"github.com/alecgard/taskforge/internal/user"
)

// Store provides database operations for comments.
type Store struct {
	db *database.DB
}

// NewStore creates a new comment store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

const commentSelect = `SELECT c.id, c.team_id, c.task_id, c.author_user_id, c.body, c.deleted_at, c.created_at, c.updated_at,
	u.id, u.email, u.name, u.created_at, u.updated_at
	FROM comments c JOIN users u ON u.id = c.author_user_id`

func scanComment(scan func(dest ...any) error) (*Comment, error) {
	c := &Comment{}
	a := &user.User{}
	err := scan(
		&c.ID, &c.TeamID, &c.TaskID, &c.AuthorUserID, &c.Body, &c.DeletedAt, &c.CreatedAt, &c.UpdatedAt,
		&a.ID, &a.Email, &a.Name, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Author = a
	return c, nil
}

// Create inserts a comment and returns it with its author.
func (s *Store) Create(ctx context.Context, teamID, taskID, authorID, body string) (*Comment, error) {
	var id string
	err := s.db.Conn(ctx).QueryRow(ctx,
		`INSERT INTO comments (team_id, task_id, author_user_id, body)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		teamID, taskID, authorID, body,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("creating comment: %w", err)
	}
	return s.Get(ctx, teamID, taskID, id)
}

// Get returns a non-deleted comment on the given task.
func (s *Store) Get(ctx context.Context, teamID, taskID, commentID string) (*Comment, error) {
	c, err := scanComment(func(dest ...any) error {
		return s.db.Conn(ctx).QueryRow(ctx,
			commentSelect+` WHERE c.id = $1 AND c.team_id = $2 AND c.task_id = $3 AND c.deleted_at IS NULL`,
			commentID, teamID, taskID,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("getting comment: %w", err)
	}
	return c, nil
}

// ListByTask returns a task's non-deleted comments, oldest first.
func (s *Store) ListByTask(ctx context.Context, teamID, taskID string) ([]*Comment, error) {
	rows, err := s.db.Conn(ctx).Query(ctx,
		commentSelect+` WHERE c.team_id = $1 AND c.task_id = $2 AND c.deleted_at IS NULL
		 ORDER BY c.created_at ASC, c.id ASC`,
		teamID, taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing comments: %w", err)
	}
	defer rows.Close()

	out := []*Comment{}
	for rows.Next() {
		c, err := scanComment(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning comment row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SoftDelete marks a comment deleted.
func (s *Store) SoftDelete(ctx context.Context, commentID string, at time.Time) error {
	_, err := s.db.Conn(ctx).Exec(ctx,
		`UPDATE comments SET deleted_at = $2, updated_at = $2
		 WHERE id = $1 AND deleted_at IS NULL`, commentID, at)
	if err != nil {
		return fmt.Errorf("deleting comment: %w", err)
	}
	return nil
}
