package task

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/alecgard/taskforge/internal/user"
)

// Status is a task's workflow state.
type Status string

const (
	StatusTodo       Status = "TODO"
	StatusInProgress Status = "IN_PROGRESS"
	StatusBlocked    Status = "BLOCKED"
	StatusDone       Status = "DONE"
)

func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusBlocked, StatusDone:
		return true
	}
	return false
}

// Priority is a task's urgency.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Task is a unit of work owned by a team.
type Task struct {
	ID              string     `json:"id"`
	TeamID          string     `json:"teamId"`
	Title           string     `json:"title"`
	Description     *string    `json:"description"`
	Status          Status     `json:"status"`
	Priority        Priority   `json:"priority"`
	DueAt           *time.Time `json:"dueAt"`
	CreatedByUserID string     `json:"createdByUserId"`
	AssigneeUserID  *string    `json:"assigneeUserId"`
	DeletedAt       *time.Time `json:"deletedAt"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`

	CreatedBy *user.User `json:"createdBy"`
	Assignee  *user.User `json:"assignee"`
}

// CreateInput holds the fields for a new task. Zero Status and Priority fall
// back to TODO and MEDIUM.
type CreateInput struct {
	Title          string
	Description    *string
	Status         Status
	Priority       Priority
	DueAt          *time.Time
	AssigneeUserID *string
}

// NewTask is the row the store inserts.
type NewTask struct {
	TeamID          string
	CreatedByUserID string
	CreateInput
}

// Field is a JSON patch field that distinguishes an absent key from an
// explicit null.
type Field[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// Some returns a Field set to v.
func Some[T any](v T) Field[T] { return Field[T]{Set: true, Value: v} }

// Null returns a Field explicitly set to null.
func Null[T any]() Field[T] { return Field[T]{Set: true, Null: true} }

func (f *Field[T]) UnmarshalJSON(data []byte) error {
	f.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		f.Null = true
		return nil
	}
	return json.Unmarshal(data, &f.Value)
}

// Ptr returns nil for null and a pointer to the value otherwise.
func (f Field[T]) Ptr() *T {
	if f.Null {
		return nil
	}
	v := f.Value
	return &v
}

// Patch is a partial task update. Absent fields are untouched and null clears
// the nullable ones.
type Patch struct {
	Title          Field[string]    `json:"title"`
	Description    Field[string]    `json:"description"`
	Status         Field[Status]    `json:"status"`
	Priority       Field[Priority]  `json:"priority"`
	DueAt          Field[time.Time] `json:"dueAt"`
	AssigneeUserID Field[string]    `json:"assigneeUserId"`
}

// Empty reports whether no field was provided.
func (p *Patch) Empty() bool {
	return !p.Title.Set && !p.Description.Set && !p.Status.Set &&
		!p.Priority.Set && !p.DueAt.Set && !p.AssigneeUserID.Set
}

// Fields returns the provided fields as a JSON-friendly map.
func (p *Patch) Fields() map[string]any {
	out := map[string]any{}
	put := func(name string, set, null bool, v any) {
		if !set {
			return
		}
		if null {
			out[name] = nil
			return
		}
		out[name] = v
	}
	put("title", p.Title.Set, p.Title.Null, p.Title.Value)
	put("description", p.Description.Set, p.Description.Null, p.Description.Value)
	put("status", p.Status.Set, p.Status.Null, string(p.Status.Value))
	put("priority", p.Priority.Set, p.Priority.Null, string(p.Priority.Value))
	put("dueAt", p.DueAt.Set, p.DueAt.Null, p.DueAt.Value.UTC().Format(time.RFC3339Nano))
	put("assigneeUserId", p.AssigneeUserID.Set, p.AssigneeUserID.Null, p.AssigneeUserID.Value)
	return out
}
