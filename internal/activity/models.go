package activity

import "time"

// EntityType names the kind of entity an activity row describes.
type EntityType string

const (
	EntityTeam       EntityType = "TEAM"
	EntityMembership EntityType = "MEMBERSHIP"
	EntityTask       EntityType = "TASK"
	EntityComment    EntityType = "COMMENT"
)

// Action is what happened to the entity.
type Action string

const (
	ActionCreated   Action = "CREATED"
	ActionUpdated   Action = "UPDATED"
	ActionDeleted   Action = "DELETED"
	ActionCommented Action = "COMMENTED"
)

// Activity is one immutable row of a team's activity log.
type Activity struct {
	ID          string         `json:"id"`
	TeamID      string         `json:"teamId"`
	ActorUserID *string        `json:"actorUserId"`
	EntityType  EntityType     `json:"entityType"`
	EntityID    string         `json:"entityId"`
	Action      Action         `json:"action"`
	Data        map[string]any `json:"data"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// Entry holds the fields for a new activity row. An empty ActorUserID is
// stored as NULL.
type Entry struct {
	TeamID      string
	ActorUserID string
	EntityType  EntityType
	EntityID    string
	Action      Action
	Data        map[string]any
}

// ListParams controls cursor pagination over a team's activity.
type ListParams struct {
	Cursor string
	Limit  int
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)
