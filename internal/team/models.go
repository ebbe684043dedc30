package team

import (
	"time"

	"github.com/alecgard/taskforge/internal/user"
)

// Role is a member's role within a team. Roles are totally ordered by Rank.
type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
)

// Rank returns the role's position in MEMBER < ADMIN < OWNER, or 0 for an
// unknown role.
func (r Role) Rank() int {
	switch r {
	case RoleMember:
		return 1
	case RoleAdmin:
		return 2
	case RoleOwner:
		return 3
	default:
		return 0
	}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r.Rank() > 0 }

// AtLeast reports whether r ranks at or above min.
func (r Role) AtLeast(min Role) bool {
	return r.Valid() && r.Rank() >= min.Rank()
}

// Team is a tenant grouping users, tasks and activity.
type Team struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	CreatedByUserID string    `json:"createdByUserId"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Membership links a user to a team with a role.
type Membership struct {
	ID        string    `json:"id"`
	TeamID    string    `json:"teamId"`
	UserID    string    `json:"userId"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TeamWithRole is a team as seen by one of its members.
type TeamWithRole struct {
	Team *Team `json:"team"`
	Role Role  `json:"role"`
}

// Member is a team member listing entry.
type Member struct {
	User      *user.User `json:"user"`
	Role      Role       `json:"role"`
	CreatedAt time.Time  `json:"createdAt"`
}

// MembershipView is the membership shape returned by the member endpoints.
type MembershipView struct {
	TeamID    string     `json:"teamId"`
	Role      Role       `json:"role"`
	User      *user.User `json:"user"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}
