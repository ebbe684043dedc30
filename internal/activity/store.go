package activity

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/alecgard/taskforge/internal/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Store provides database operations for the activity log.
type Store struct {
	db *database.DB
}

// NewStore creates a new activity store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

const activityColumns = `id, team_id, actor_user_id, entity_type, entity_id, action, data, created_at`

func scanActivity(scan func(dest ...any) error) (*Activity, error) {
	a := &Activity{}
	if err := scan(&a.ID, &a.TeamID, &a.ActorUserID, &a.EntityType, &a.EntityID, &a.Action, &a.Data, &a.CreatedAt); err != nil {
		return nil, err
	}
	if a.Data == nil {
		a.Data = map[string]any{}
	}
	return a, nil
}

// Append inserts an activity row using the transaction bound to ctx, if any.
func (s *Store) Append(ctx context.Context, e Entry) (*Activity, error) {
	var actor *string
	if e.ActorUserID != "" {
		actor = &e.ActorUserID
	}
	data := e.Data
	if data == nil {
		data = map[string]any{}
	}

	a, err := scanActivity(func(dest ...any) error {
		return s.db.Conn(ctx).QueryRow(ctx,
			`INSERT INTO activity_logs (team_id, actor_user_id, entity_type, entity_id, action, data)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING `+activityColumns,
			e.TeamID, actor, e.EntityType, e.EntityID, e.Action, data,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("appending activity: %w", err)
	}
	return a, nil
}

// ListByTeam returns a page of a team's activity in creation order. It returns
// the rows, the next cursor (empty if no more results), and any error.
func (s *Store) ListByTeam(ctx context.Context, teamID string, params ListParams) ([]*Activity, string, error) {
	limit := ClampLimit(params.Limit)

	var rows pgx.Rows
	var err error
	if params.Cursor != "" {
		cursorTime, cursorID, cerr := DecodeCursor(params.Cursor)
		if cerr != nil {
			return nil, "", fmt.Errorf("invalid cursor: %w", cerr)
		}
		rows, err = s.db.Conn(ctx).Query(ctx,
			`SELECT `+activityColumns+` FROM activity_logs
			 WHERE team_id = $1 AND (created_at, id) > ($2, $3)
			 ORDER BY created_at ASC, id ASC
			 LIMIT $4`,
			teamID, cursorTime, cursorID, limit+1,
		)
	} else {
		rows, err = s.db.Conn(ctx).Query(ctx,
			`SELECT `+activityColumns+` FROM activity_logs
			 WHERE team_id = $1
			 ORDER BY created_at ASC, id ASC
			 LIMIT $2`,
			teamID, limit+1,
		)
	}
	if err != nil {
		return nil, "", fmt.Errorf("listing activity: %w", err)
	}
	defer rows.Close()

	var out []*Activity
	for rows.Next() {
		a, err := scanActivity(rows.Scan)
		if err != nil {
			return nil, "", fmt.Errorf("scanning activity row: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("iterating activity rows: %w", err)
	}

	return Page(out, limit)
}

// Page trims rows fetched with limit+1 and derives the next cursor.
func Page(rows []*Activity, limit int) ([]*Activity, string, error) {
	if len(rows) <= limit {
		return rows, "", nil
	}
	rows = rows[:limit]
	last := rows[len(rows)-1]
	return rows, EncodeCursor(last.CreatedAt, last.ID), nil
}

// ClampLimit applies the default and maximum page size.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// EncodeCursor produces a base64 string from a created_at timestamp and id.
func EncodeCursor(createdAt time.Time, id string) string {
	raw := createdAt.UTC().Format(time.RFC3339Nano) + "|" + id
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a base64 cursor back into its created_at and id parts.
func DecodeCursor(cursor string) (time.Time, string, error) {
	data, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("decoding cursor base64: %w", err)
	}
	parts := strings.SplitN(string(data), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return time.Time{}, "", fmt.Errorf("invalid cursor format")
	}
	t, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", fmt.Errorf("parsing cursor time: %w", err)
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return time.Time{}, "", fmt.Errorf("parsing cursor id: %w", err)
	}
	return t, id.String(), nil
}
