package comment

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/alecgard/taskforge/internal/activity"
	"github.com/alecgard/taskforge/internal/apperr"
	"github.com/alecgard/taskforge/internal/database"
	"github.com/alecgard/taskforge/internal/task"
	"github.com/alecgard/taskforge/internal/team"
	"github.com/jackc/pgx/v5"
)

// Repository is the persistence the comment service needs.
type Repository interface {
	Create(ctx context.Context, teamID, taskID, authorID, body string) (*Comment, error)
	Get(ctx context.Context, teamID, taskID, commentID string) (*Comment, error)
	ListByTask(ctx context.Context, teamID, taskID string) ([]*Comment, error)
	SoftDelete(ctx context.Context, commentID string, at time.Time) error
}

// TaskLookup resolves non-deleted tasks.
type TaskLookup interface {
	Get(ctx context.Context, teamID, taskID string) (*task.Task, error)
}

// Service implements task comments.
type Service struct {
	repo     Repository
	tasks    TaskLookup
	tx       database.Transactor
	activity activity.Writer
	now      func() time.Time
}

// NewService creates a comment service.
func NewService(repo Repository, tasks TaskLookup, tx database.Transactor, w activity.Writer) *Service {
	return &Service{repo: repo, tasks: tasks, tx: tx, activity: w, now: time.Now}
}

// Create adds a comment to a task.
func (s *Service) Create(ctx context.Context, actorID, teamID, taskID, body string) (*Comment, error) {
	body = strings.TrimSpace(body)

	var c *Comment
	var act *activity.Activity
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.requireTask(ctx, teamID, taskID); err != nil {
			return err
		}
		var err error
		c, err = s.repo.Create(ctx, teamID, taskID, actorID, body)
		if err != nil {
			return err
		}
		act, err = s.activity.Record(ctx, activity.Entry{
			TeamID:      teamID,
			ActorUserID: actorID,
			EntityType:  activity.EntityComment,
			EntityID:    c.ID,
			Action:      activity.ActionCommented,
			Data:        map[string]any{"taskId": taskID},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.activity.Publish(ctx, act)
	return c, nil
}

// List returns the task's comments.
func (s *Service) List(ctx context.Context, teamID, taskID string) ([]*Comment, error) {
	if err := s.requireTask(ctx, teamID, taskID); err != nil {
		return nil, err
	}
	return s.repo.ListByTask(ctx, teamID, taskID)
}

// Delete soft-deletes a comment. The author may always delete; otherwise the
// actor needs ADMIN or higher.
func (s *Service) Delete(ctx context.Context, actor *team.Membership, taskID, commentID string) error {
	var act *activity.Activity
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.requireTask(ctx, actor.TeamID, taskID); err != nil {
			return err
		}
		c, err := s.repo.Get(ctx, actor.TeamID, taskID, commentID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperr.NotFound(apperr.CodeCommentNotFound, "Comment not found")
			}
			return err
		}
		if c.AuthorUserID != actor.UserID && !actor.Role.AtLeast(team.RoleAdmin) {
			return apperr.Forbidden()
		}

		if err := s.repo.SoftDelete(ctx, c.ID, s.now()); err != nil {
			return err
		}
		act, err = s.activity.Record(ctx, activity.Entry{
			TeamID:      actor.TeamID,
			ActorUserID: actor.UserID,
			EntityType:  activity.EntityComment,
			EntityID:    c.ID,
			Action:      activity.ActionDeleted,
			Data:        map[string]any{"taskId": taskID},
		})
		return err
	})
	if err != nil {
		return err
	}
	s.activity.Publish(ctx, act)
	return nil
}

func (s *Service) requireTask(ctx context.Context, teamID, taskID string) error {
	if _, err := s.tasks.Get(ctx, teamID, taskID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound(apperr.CodeTaskNotFound, "Task not found")
		}
		return err
	}
	return nil
}
