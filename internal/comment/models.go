package comment

import (
	"time"

	"github.com/alecgard/taskforge/internal/user"
)

// Comment is a note attached to a task. Deleted comments keep their row with
// DeletedAt set.
type Comment struct {
	ID           string     `json:"id"`
	TeamID       string     `json:"teamId"`
	TaskID       string     `json:"taskId"`
	AuthorUserID string     `json:"authorUserId"`
	Body         string     `json:"body"`
	DeletedAt    *time.Time `json:"deletedAt"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`

	Author *user.User `json:"author"`
}
