package team

import (
	"context"
	"fmt"

	"github.com/alecgard/taskforge/internal/database"
	"github.com/alecgard/taskforge/internal/user"
)

// Store provides database operations for teams and memberships.
type Store struct {
	db *database.DB
}

// NewStore creates a new team store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

const membershipColumns = `id, team_id, user_id, role, created_at, updated_at`

func scanMembership(scan func(dest ...any) error) (*Membership, error) {
	m := &Membership{}
	if err := scan(&m.ID, &m.TeamID, &m.UserID, &m.Role, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	return m, nil
}

// CreateTeam inserts a team row.
func (s *Store) CreateTeam(ctx context.Context, name, createdBy string) (*Team, error) {
	t := &Team{}
	err := s.db.Conn(ctx).QueryRow(ctx,
		`INSERT INTO teams (name, created_by_user_id)
		 VALUES ($1, $2)
		 RETURNING id, name, created_by_user_id, created_at, updated_at`,
		name, createdBy,
	).Scan(&t.ID, &t.Name, &t.CreatedByUserID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating team: %w", err)
	}
	return t, nil
}

// CreateMembership inserts a membership. A duplicate (team, user) pair
// surfaces as a unique violation.
func (s *Store) CreateMembership(ctx context.Context, teamID, userID string, role Role) (*Membership, error) {
	m, err := scanMembership(func(dest ...any) error {
		return s.db.Conn(ctx).QueryRow(ctx,
			`INSERT INTO team_memberships (team_id, user_id, role)
			 VALUES ($1, $2, $3)
			 RETURNING `+membershipColumns,
			teamID, userID, role,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("creating membership: %w", err)
	}
	return m, nil
}

// GetMembership looks up the membership of userID in teamID.
func (s *Store) GetMembership(ctx context.Context, teamID, userID string) (*Membership, error) {
	m, err := scanMembership(func(dest ...any) error {
		return s.db.Conn(ctx).QueryRow(ctx,
			`SELECT `+membershipColumns+` FROM team_memberships
			 WHERE team_id = $1 AND user_id = $2`,
			teamID, userID,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("getting membership: %w", err)
	}
	return m, nil
}

// GetMembershipForUpdate is GetMembership with a row lock held until the
// surrounding transaction ends.
func (s *Store) GetMembershipForUpdate(ctx context.Context, teamID, userID string) (*Membership, error) {
	m, err := scanMembership(func(dest ...any) error {
		return s.db.Conn(ctx).QueryRow(ctx,
			`SELECT `+membershipColumns+` FROM team_memberships
			 WHERE team_id = $1 AND user_id = $2
			 FOR UPDATE`,
			teamID, userID,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("locking membership: %w", err)
	}
	return m, nil
}

// LockOwners locks the team's OWNER rows in id order and returns how many
// there are.
func (s *Store) LockOwners(ctx context.Context, teamID string) (int, error) {
	rows, err := s.db.Conn(ctx).Query(ctx,
		`SELECT id FROM team_memberships
		 WHERE team_id = $1 AND role = $2
		 ORDER BY id
		 FOR UPDATE`,
		teamID, RoleOwner,
	)
	if err != nil {
		return 0, fmt.Errorf("locking owners: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		n++
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("locking owners: %w", err)
	}
	return n, nil
}

// UpdateRole changes the role of an existing membership.
func (s *Store) UpdateRole(ctx context.Context, teamID, userID string, role Role) (*Membership, error) {
	m, err := scanMembership(func(dest ...any) error {
		return s.db.Conn(ctx).QueryRow(ctx,
			`UPDATE team_memberships SET role = $3, updated_at = clock_timestamp()
			 WHERE team_id = $1 AND user_id = $2
			 RETURNING `+membershipColumns,
			teamID, userID, role,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("updating membership role: %w", err)
	}
	return m, nil
}

// DeleteMembership removes a membership.
func (s *Store) DeleteMembership(ctx context.Context, teamID, userID string) error {
	_, err := s.db.Conn(ctx).Exec(ctx,
		`DELETE FROM team_memberships WHERE team_id = $1 AND user_id = $2`, teamID, userID)
	if err != nil {
		return fmt.Errorf("deleting membership: %w", err)
	}
	return nil
}

// ListForUser returns the user's teams in membership creation order.
func (s *Store) ListForUser(ctx context.Context, userID string) ([]TeamWithRole, error) {
	rows, err := s.db.Conn(ctx).Query(ctx,
		`SELECT t.id, t.name, t.created_by_user_id, t.created_at, t.updated_at, m.role
		 FROM team_memberships m JOIN teams t ON t.id = m.team_id
		 WHERE m.user_id = $1
		 ORDER BY m.created_at ASC, m.id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing teams for user: %w", err)
	}
	defer rows.Close()

	out := []TeamWithRole{}
	for rows.Next() {
		t := &Team{}
		var role Role
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedByUserID, &t.CreatedAt, &t.UpdatedAt, &role); err != nil {
			return nil, fmt.Errorf("scanning team row: %w", err)
		}
		out = append(out, TeamWithRole{Team: t, Role: role})
	}
	return out, rows.Err()
}

// ListMembers returns a team's members in join order.
func (s *Store) ListMembers(ctx context.Context, teamID string) ([]Member, error) {
	rows, err := s.db.Conn(ctx).Query(ctx,
		`SELECT u.id, u.email, u.name, u.created_at, u.updated_at, m.role, m.created_at
		 FROM team_memberships m JOIN users u ON u.id = m.user_id
		 WHERE m.team_id = $1
		 ORDER BY m.created_at ASC, m.id ASC`,
		teamID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	defer rows.Close()

	out := []Member{}
	for rows.Next() {
		u := &user.User{}
		var m Member
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt, &u.UpdatedAt, &m.Role, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning member row: %w", err)
		}
		m.User = u
		out = append(out, m)
	}
	return out, rows.Err()
}
