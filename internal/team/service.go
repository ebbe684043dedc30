package team

import (
	"context"
	"errors"
	"strings"

	"github.com/alecgard/taskforge/internal/activity"
	"github.com/alecgard/taskforge/internal/apperr"
	"github.com/alecgard/taskforge/internal/database"
	"github.com/alecgard/taskforge/internal/user"
	"github.com/jackc/pgx/v5"
)

// Repository is the persistence the team service needs.
type Repository interface {
	CreateTeam(ctx context.Context, name, createdBy string) (*Team, error)
	CreateMembership(ctx context.Context, teamID, userID string, role Role) (*Membership, error)
	GetMembership(ctx context.Context, teamID, userID string) (*Membership, error)
	GetMembershipForUpdate(ctx context.Context, teamID, userID string) (*Membership, error)
	LockOwners(ctx context.Context, teamID string) (int, error)
	UpdateRole(ctx context.Context, teamID, userID string, role Role) (*Membership, error)
	DeleteMembership(ctx context.Context, teamID, userID string) error
	ListForUser(ctx context.Context, userID string) ([]TeamWithRole, error)
	ListMembers(ctx context.Context, teamID string) ([]Member, error)
}

// UserLookup resolves users by id.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*user.User, error)
}

// Service implements team and membership management.
type Service struct {
	repo     Repository
	users    UserLookup
	tx       database.Transactor
	activity activity.Writer
}

// NewService creates a team service.
func NewService(repo Repository, users UserLookup, tx database.Transactor, w activity.Writer) *Service {
	return &Service{repo: repo, users: users, tx: tx, activity: w}
}

// Create makes a team with actorID as its first OWNER.
func (s *Service) Create(ctx context.Context, actorID, name string) (*Team, error) {
	name = strings.TrimSpace(name)

	var t *Team
	var act *activity.Activity
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		t, err = s.repo.CreateTeam(ctx, name, actorID)
		if err != nil {
			return err
		}
		if _, err := s.repo.CreateMembership(ctx, t.ID, actorID, RoleOwner); err != nil {
			return err
		}
		act, err = s.activity.Record(ctx, activity.Entry{
			TeamID:      t.ID,
			ActorUserID: actorID,
			EntityType:  activity.EntityTeam,
			EntityID:    t.ID,
			Action:      activity.ActionCreated,
			Data:        map[string]any{"name": t.Name},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.activity.Publish(ctx, act)
	return t, nil
}

// ListMine returns the caller's teams with their role in each.
func (s *Service) ListMine(ctx context.Context, userID string) ([]TeamWithRole, error) {
	return s.repo.ListForUser(ctx, userID)
}

// ListMembers returns the members of a team.
func (s *Service) ListMembers(ctx context.Context, teamID string) ([]Member, error) {
	return s.repo.ListMembers(ctx, teamID)
}

// Authorize resolves userID's membership in teamID and requires a role of at
// least min. Non-members and insufficient roles get FORBIDDEN.
func (s *Service) Authorize(ctx context.Context, teamID, userID string, min Role) (*Membership, error) {
	m, err := s.repo.GetMembership(ctx, teamID, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.Forbidden()
		}
		return nil, err
	}
	if !m.Role.AtLeast(min) {
		return nil, apperr.Forbidden()
	}
	return m, nil
}

// IsMember reports whether userID belongs to teamID.
func (s *Service) IsMember(ctx context.Context, teamID, userID string) (bool, error) {
	_, err := s.repo.GetMembership(ctx, teamID, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// AddMember adds userID to the actor's team. Only an OWNER may add another
// OWNER.
func (s *Service) AddMember(ctx context.Context, actor *Membership, userID string, role Role) (*MembershipView, error) {
	if role == RoleOwner && actor.Role != RoleOwner {
		return nil, apperr.Forbidden()
	}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(apperr.CodeUserNotFound, "User not found")
		}
		return nil, err
	}

	var m *Membership
	var act *activity.Activity
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		m, err = s.repo.CreateMembership(ctx, actor.TeamID, userID, role)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return apperr.Conflict(apperr.CodeAlreadyAMember, "User is already a member")
			}
			return err
		}
		act, err = s.activity.Record(ctx, activity.Entry{
			TeamID:      actor.TeamID,
			ActorUserID: actor.UserID,
			EntityType:  activity.EntityMembership,
			EntityID:    m.ID,
			Action:      activity.ActionCreated,
			Data:        map[string]any{"userId": userID, "role": string(role)},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.activity.Publish(ctx, act)
	return view(m, u), nil
}

// UpdateMemberRole changes a member's role. Only an OWNER may grant or take
// away OWNER, nobody may act on a higher-ranked member, and the last OWNER
// cannot be demoted.
func (s *Service) UpdateMemberRole(ctx context.Context, actor *Membership, userID string, role Role) (*MembershipView, error) {
	var m *Membership
	var act *activity.Activity
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		owners, err := s.repo.LockOwners(ctx, actor.TeamID)
		if err != nil {
			return err
		}
		target, err := s.lockTarget(ctx, actor.TeamID, userID)
		if err != nil {
			return err
		}
		if err := checkCanManage(actor, target, role); err != nil {
			return err
		}
		if target.Role == role {
			m = target
			return nil
		}
		if target.Role == RoleOwner && owners <= 1 {
			return lastOwner()
		}

		m, err = s.repo.UpdateRole(ctx, actor.TeamID, userID, role)
		if err != nil {
			return err
		}
		act, err = s.activity.Record(ctx, activity.Entry{
			TeamID:      actor.TeamID,
			ActorUserID: actor.UserID,
			EntityType:  activity.EntityMembership,
			EntityID:    m.ID,
			Action:      activity.ActionUpdated,
			Data: map[string]any{
				"userId":   userID,
				"roleFrom": string(target.Role),
				"roleTo":   string(role),
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.activity.Publish(ctx, act)

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return view(m, u), nil
}

// RemoveMember deletes a membership under the same rules as
// UpdateMemberRole.
func (s *Service) RemoveMember(ctx context.Context, actor *Membership, userID string) error {
	var act *activity.Activity
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		owners, err := s.repo.LockOwners(ctx, actor.TeamID)
		if err != nil {
			return err
		}
		target, err := s.lockTarget(ctx, actor.TeamID, userID)
		if err != nil {
			return err
		}
		if err := checkCanManage(actor, target, target.Role); err != nil {
			return err
		}
		if target.Role == RoleOwner && owners <= 1 {
			return lastOwner()
		}

		if err := s.repo.DeleteMembership(ctx, actor.TeamID, userID); err != nil {
			return err
		}
		act, err = s.activity.Record(ctx, activity.Entry{
			TeamID:      actor.TeamID,
			ActorUserID: actor.UserID,
			EntityType:  activity.EntityMembership,
			EntityID:    target.ID,
			Action:      activity.ActionDeleted,
			Data:        map[string]any{"userId": userID, "role": string(target.Role)},
		})
		return err
	})
	if err != nil {
		return err
	}
	s.activity.Publish(ctx, act)
	return nil
}

func (s *Service) lockTarget(ctx context.Context, teamID, userID string) (*Membership, error) {
	m, err := s.repo.GetMembershipForUpdate(ctx, teamID, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(apperr.CodeMembershipNotFound, "Membership not found")
		}
		return nil, err
	}
	return m, nil
}

// checkCanManage enforces the role-change rules for actor acting on target,
// where newRole is the role target ends up with.
func checkCanManage(actor, target *Membership, newRole Role) error {
	if (newRole == RoleOwner || target.Role == RoleOwner) && actor.Role != RoleOwner {
		return apperr.Forbidden()
	}
	if actor.Role.Rank() < target.Role.Rank() {
		return apperr.Forbidden()
	}
	return nil
}

func lastOwner() *apperr.Error {
	return apperr.Conflict(apperr.CodeLastOwner, "A team must keep at least one owner")
}

func view(m *Membership, u *user.User) *MembershipView {
	return &MembershipView{
		TeamID:    m.TeamID,
		Role:      m.Role,
		User:      u,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
