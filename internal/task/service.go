package task

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/alecgard/taskforge/internal/activity"
	"github.com/alecgard/taskforge/internal/apperr"
	"github.com/alecgard/taskforge/internal/database"
	"github.com/alecgard/taskforge/internal/team"
	"github.com/jackc/pgx/v5"
)

// Repository is the persistence the task service needs.
type Repository interface {
	Create(ctx context.Context, in NewTask) (*Task, error)
	Get(ctx context.Context, teamID, taskID string) (*Task, error)
	GetForUpdate(ctx context.Context, teamID, taskID string) (*Task, error)
	ListByTeam(ctx context.Context, teamID string) ([]*Task, error)
	Update(ctx context.Context, teamID, taskID string, p Patch) (*Task, error)
}

// MembershipLookup resolves team memberships.
type MembershipLookup interface {
	GetMembership(ctx context.Context, teamID, userID string) (*team.Membership, error)
}

// Service implements task management.
type Service struct {
	repo     Repository
	members  MembershipLookup
	tx       database.Transactor
	activity activity.Writer
}

// NewService creates a task service.
func NewService(repo Repository, members MembershipLookup, tx database.Transactor, w activity.Writer) *Service {
	return &Service{repo: repo, members: members, tx: tx, activity: w}
}

// Create adds a task to the team.
func (s *Service) Create(ctx context.Context, actorID, teamID string, in CreateInput) (*Task, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Status == "" {
		in.Status = StatusTodo
	}
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}

	var t *Task
	var act *activity.Activity
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if in.AssigneeUserID != nil {
			if err := s.checkAssignee(ctx, teamID, *in.AssigneeUserID); err != nil {
				return err
			}
		}

		var err error
		t, err = s.repo.Create(ctx, NewTask{TeamID: teamID, CreatedByUserID: actorID, CreateInput: in})
		if err != nil {
			return err
		}
		act, err = s.activity.Record(ctx, activity.Entry{
			TeamID:      teamID,
			ActorUserID: actorID,
			EntityType:  activity.EntityTask,
			EntityID:    t.ID,
			Action:      activity.ActionCreated,
			Data: map[string]any{
				"title":          t.Title,
				"status":         string(t.Status),
				"priority":       string(t.Priority),
				"assigneeUserId": optional(t.AssigneeUserID),
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.activity.Publish(ctx, act)
	return t, nil
}

// List returns the team's tasks.
func (s *Service) List(ctx context.Context, teamID string) ([]*Task, error) {
	return s.repo.ListByTeam(ctx, teamID)
}

// Update applies a partial update to a task.
func (s *Service) Update(ctx context.Context, actorID, teamID, taskID string, p Patch) (*Task, error) {
	if err := p.Normalize(); err != nil {
		return nil, err
	}

	var t *Task
	var act *activity.Activity
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetForUpdate(ctx, teamID, taskID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return taskNotFound()
			}
			return err
		}
		if p.AssigneeUserID.Set && !p.AssigneeUserID.Null {
			if err := s.checkAssignee(ctx, teamID, p.AssigneeUserID.Value); err != nil {
				return err
			}
		}

		t, err = s.repo.Update(ctx, teamID, taskID, p)
		if err != nil {
			return err
		}
		act, err = s.activity.Record(ctx, activity.Entry{
			TeamID:      teamID,
			ActorUserID: actorID,
			EntityType:  activity.EntityTask,
			EntityID:    t.ID,
			Action:      activity.ActionUpdated,
			Data: map[string]any{
				"patch":        p.Fields(),
				"statusFrom":   string(existing.Status),
				"statusTo":     string(t.Status),
				"assigneeFrom": optional(existing.AssigneeUserID),
				"assigneeTo":   optional(t.AssigneeUserID),
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.activity.Publish(ctx, act)
	return t, nil
}

func (s *Service) checkAssignee(ctx context.Context, teamID, userID string) error {
	if _, err := s.members.GetMembership(ctx, teamID, userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.New(http.StatusBadRequest, apperr.CodeAssigneeNotInTeam, "Assignee must be a member of the team")
		}
		return err
	}
	return nil
}

func taskNotFound() *apperr.Error {
	return apperr.NotFound(apperr.CodeTaskNotFound, "Task not found")
}

func optional(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
