// Package testutil provides an in-memory implementation of every repository
// interface plus a transaction runner with snapshot rollback, for service and
// HTTP tests that run without PostgreSQL.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/alecgard/taskforge/internal/activity"
	"github.com/alecgard/taskforge/internal/comment"
	"github.com/alecgard/taskforge/internal/task"
	"github.com/alecgard/taskforge/internal/team"
	"github.com/alecgard/taskforge/internal/user"
)

type txKey struct{}

// Memory holds all rows. Transactions are serialized and roll back by
// restoring a snapshot taken at begin.
type Memory struct {
	txMu sync.Mutex

	mu    sync.Mutex
	state *state
	clock time.Time

	// FailAppend, when set, is returned by every activity append.
	FailAppend error
}

type state struct {
	users       map[string]*user.User
	sessions    map[string]*user.Session
	teams       map[string]*team.Team
	memberships []*team.Membership
	tasks       []*task.Task
	comments    []*comment.Comment
	activity    []*activity.Activity
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		state: &state{
			users:    make(map[string]*user.User),
			sessions: make(map[string]*user.Session),
			teams:    make(map[string]*team.Team),
		},
		clock: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

// now returns a strictly increasing timestamp. Callers hold m.mu.
func (m *Memory) now() time.Time {
	m.clock = m.clock.Add(time.Millisecond)
	return m.clock
}

// InTx runs fn as a single transaction. A nested call joins the outer one.
func (m *Memory) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapshot := m.state.clone()
	m.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		m.mu.Lock()
		m.state = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

func (s *state) clone() *state {
	c := &state{
		users:    make(map[string]*user.User, len(s.users)),
		sessions: make(map[string]*user.Session, len(s.sessions)),
		teams:    make(map[string]*team.Team, len(s.teams)),
	}
	for k, v := range s.users {
		u := *v
		c.users[k] = &u
	}
	for k, v := range s.sessions {
		sess := *v
		c.sessions[k] = &sess
	}
	for k, v := range s.teams {
		t := *v
		c.teams[k] = &t
	}
	for _, v := range s.memberships {
		mm := *v
		c.memberships = append(c.memberships, &mm)
	}
	for _, v := range s.tasks {
		t := *v
		c.tasks = append(c.tasks, &t)
	}
	for _, v := range s.comments {
		cm := *v
		c.comments = append(c.comments, &cm)
	}
	for _, v := range s.activity {
		a := *v
		c.activity = append(c.activity, &a)
	}
	return c
}

func notFound(op string) error {
	return fmt.Errorf("%s: %w", op, pgx.ErrNoRows)
}

func uniqueViolation(op, constraint string) error {
	return fmt.Errorf("%s: %w", op, &pgconn.PgError{Code: "23505", ConstraintName: constraint})
}

func (m *Memory) userCopy(id string) *user.User {
	u, ok := m.state.users[id]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

// ActivityRows returns every activity row in append order.
func (m *Memory) ActivityRows() []*activity.Activity {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*activity.Activity, len(m.state.activity))
	for i, a := range m.state.activity {
		cp := *a
		out[i] = &cp
	}
	return out
}

// TaskCount returns the number of task rows, deleted or not.
func (m *Memory) TaskCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.tasks)
}

// CommentCount returns the number of comment rows, deleted or not.
func (m *Memory) CommentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.comments)
}

// ---- users and sessions ----

// Users returns the user repository view.
func (m *Memory) Users() *Users { return &Users{m: m} }

// Users implements the user and session store over Memory.
type Users struct{ m *Memory }

func (r *Users) Create(_ context.Context, in user.CreateUserInput) (*user.User, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.state.users {
		if u.Email == in.Email {
			return nil, uniqueViolation("creating user", "users_email_key")
		}
	}
	now := m.now()
	u := &user.User{
		ID:           uuid.NewString(),
		Email:        in.Email,
		Name:         in.Name,
		PasswordHash: in.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.state.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (r *Users) GetByID(_ context.Context, id string) (*user.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if u := r.m.userCopy(id); u != nil {
		return u, nil
	}
	return nil, notFound("getting user")
}

func (r *Users) GetByEmail(_ context.Context, email string) (*user.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for id, u := range r.m.state.users {
		if u.Email == email {
			return r.m.userCopy(id), nil
		}
	}
	return nil, notFound("getting user by email")
}

func (r *Users) CreateSession(_ context.Context, sess *user.Session) error {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.state.sessions[sess.JTI]; ok {
		return uniqueViolation("creating session", "sessions_pkey")
	}
	sess.CreatedAt = m.now()
	cp := *sess
	m.state.sessions[sess.JTI] = &cp
	return nil
}

func (r *Users) GetSession(_ context.Context, jti string) (*user.Session, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	sess, ok := r.m.state.sessions[jti]
	if !ok {
		return nil, notFound("getting session")
	}
	cp := *sess
	return &cp, nil
}

func (r *Users) RevokeSession(_ context.Context, jti string, at time.Time) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	sess, ok := r.m.state.sessions[jti]
	if !ok || sess.RevokedAt != nil {
		return false, nil
	}
	sess.RevokedAt = &at
	return true, nil
}

func (r *Users) RevokeUserSession(_ context.Context, userID, jti string, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	sess, ok := r.m.state.sessions[jti]
	if ok && sess.UserID == userID && sess.RevokedAt == nil {
		sess.RevokedAt = &at
	}
	return nil
}

func (r *Users) PurgeExpiredSessions(_ context.Context, cutoff time.Time) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var n int64
	for jti, sess := range r.m.state.sessions {
		if sess.ExpiresAt.Before(cutoff) {
			delete(r.m.state.sessions, jti)
			n++
		}
	}
	return n, nil
}

// ---- teams and memberships ----

// Teams returns the team repository view.
func (m *Memory) Teams() *Teams { return &Teams{m: m} }

// Teams implements the team and membership store over Memory.
type Teams struct{ m *Memory }

func (r *Teams) CreateTeam(_ context.Context, name, createdBy string) (*team.Team, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	t := &team.Team{ID: uuid.NewString(), Name: name, CreatedByUserID: createdBy, CreatedAt: now, UpdatedAt: now}
	m.state.teams[t.ID] = t
	cp := *t
	return &cp, nil
}

func (r *Teams) CreateMembership(_ context.Context, teamID, userID string, role team.Role) (*team.Membership, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.find(teamID, userID) != nil {
		return nil, uniqueViolation("creating membership", "team_memberships_team_id_user_id_key")
	}
	now := m.now()
	mm := &team.Membership{ID: uuid.NewString(), TeamID: teamID, UserID: userID, Role: role, CreatedAt: now, UpdatedAt: now}
	m.state.memberships = append(m.state.memberships, mm)
	cp := *mm
	return &cp, nil
}

// find returns the stored membership. Callers hold m.mu.
func (r *Teams) find(teamID, userID string) *team.Membership {
	for _, mm := range r.m.state.memberships {
		if mm.TeamID == teamID && mm.UserID == userID {
			return mm
		}
	}
	return nil
}

func (r *Teams) GetMembership(_ context.Context, teamID, userID string) (*team.Membership, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	mm := r.find(teamID, userID)
	if mm == nil {
		return nil, notFound("getting membership")
	}
	cp := *mm
	return &cp, nil
}

func (r *Teams) GetMembershipForUpdate(ctx context.Context, teamID, userID string) (*team.Membership, error) {
	return r.GetMembership(ctx, teamID, userID)
}

func (r *Teams) LockOwners(_ context.Context, teamID string) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	n := 0
	for _, mm := range r.m.state.memberships {
		if mm.TeamID == teamID && mm.Role == team.RoleOwner {
			n++
		}
	}
	return n, nil
}

func (r *Teams) UpdateRole(_ context.Context, teamID, userID string, role team.Role) (*team.Membership, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	mm := r.find(teamID, userID)
	if mm == nil {
		return nil, notFound("updating membership role")
	}
	mm.Role = role
	mm.UpdatedAt = m.now()
	cp := *mm
	return &cp, nil
}

func (r *Teams) DeleteMembership(_ context.Context, teamID, userID string) error {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.state.memberships[:0:0]
	for _, mm := range m.state.memberships {
		if mm.TeamID == teamID && mm.UserID == userID {
			continue
		}
		kept = append(kept, mm)
	}
	m.state.memberships = kept
	return nil
}

func (r *Teams) ListForUser(_ context.Context, userID string) ([]team.TeamWithRole, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []team.TeamWithRole{}
	for _, mm := range m.state.memberships {
		if mm.UserID != userID {
			continue
		}
		t := *m.state.teams[mm.TeamID]
		out = append(out, team.TeamWithRole{Team: &t, Role: mm.Role})
	}
	return out, nil
}

func (r *Teams) ListMembers(_ context.Context, teamID string) ([]team.Member, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []team.Member{}
	for _, mm := range m.state.memberships {
		if mm.TeamID != teamID {
			continue
		}
		out = append(out, team.Member{User: m.userCopy(mm.UserID), Role: mm.Role, CreatedAt: mm.CreatedAt})
	}
	return out, nil
}

// ---- tasks ----

// Tasks returns the task repository view.
func (m *Memory) Tasks() *Tasks { return &Tasks{m: m} }

// Tasks implements the task store over Memory.
type Tasks struct{ m *Memory }

// decorate copies t and attaches user summaries. Callers hold m.mu.
func (r *Tasks) decorate(t *task.Task) *task.Task {
	cp := *t
	cp.CreatedBy = r.m.userCopy(t.CreatedByUserID)
	cp.Assignee = nil
	if t.AssigneeUserID != nil {
		cp.Assignee = r.m.userCopy(*t.AssigneeUserID)
	}
	return &cp
}

func (r *Tasks) find(teamID, taskID string) *task.Task {
	for _, t := range r.m.state.tasks {
		if t.ID == taskID && t.TeamID == teamID && t.DeletedAt == nil {
			return t
		}
	}
	return nil
}

func (r *Tasks) Create(_ context.Context, in task.NewTask) (*task.Task, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.state.users[in.CreatedByUserID]; !ok {
		return nil, errors.New("creating task: creator does not exist")
	}
	now := m.now()
	t := &task.Task{
		ID:              uuid.NewString(),
		TeamID:          in.TeamID,
		Title:           in.Title,
		Description:     in.Description,
		Status:          in.Status,
		Priority:        in.Priority,
		DueAt:           in.DueAt,
		CreatedByUserID: in.CreatedByUserID,
		AssigneeUserID:  in.AssigneeUserID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	m.state.tasks = append(m.state.tasks, t)
	return r.decorate(t), nil
}

func (r *Tasks) Get(_ context.Context, teamID, taskID string) (*task.Task, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	t := r.find(teamID, taskID)
	if t == nil {
		return nil, notFound("getting task")
	}
	return r.decorate(t), nil
}

func (r *Tasks) GetForUpdate(ctx context.Context, teamID, taskID string) (*task.Task, error) {
	return r.Get(ctx, teamID, taskID)
}

func (r *Tasks) ListByTeam(_ context.Context, teamID string) ([]*task.Task, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := []*task.Task{}
	for _, t := range r.m.state.tasks {
		if t.TeamID == teamID && t.DeletedAt == nil {
			out = append(out, r.decorate(t))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return strings.Compare(out[i].ID, out[j].ID) > 0
	})
	return out, nil
}

func (r *Tasks) Update(_ context.Context, teamID, taskID string, p task.Patch) (*task.Task, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	t := r.find(teamID, taskID)
	if t == nil {
		return nil, notFound("getting task")
	}
	if p.Empty() {
		return r.decorate(t), nil
	}
	if p.Title.Set {
		t.Title = p.Title.Value
	}
	if p.Description.Set {
		t.Description = p.Description.Ptr()
	}
	if p.Status.Set {
		t.Status = p.Status.Value
	}
	if p.Priority.Set {
		t.Priority = p.Priority.Value
	}
	if p.DueAt.Set {
		t.DueAt = p.DueAt.Ptr()
	}
	if p.AssigneeUserID.Set {
		t.AssigneeUserID = p.AssigneeUserID.Ptr()
	}
	t.UpdatedAt = m.now()
	return r.decorate(t), nil
}

// ---- comments ----

// Comments returns the comment repository view.
func (m *Memory) Comments() *Comments { return &Comments{m: m} }

// Comments implements the comment store over Memory.
type Comments struct{ m *Memory }

func (r *Comments) decorate(c *comment.Comment) *comment.Comment {
	cp := *c
	cp.Author = r.m.userCopy(c.AuthorUserID)
	return &cp
}

func (r *Comments) Create(_ context.Context, teamID, taskID, authorID, body string) (*comment.Comment, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	c := &comment.Comment{
		ID:           uuid.NewString(),
		TeamID:       teamID,
		TaskID:       taskID,
		AuthorUserID: authorID,
		Body:         body,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.state.comments = append(m.state.comments, c)
	return r.decorate(c), nil
}

func (r *Comments) Get(_ context.Context, teamID, taskID, commentID string) (*comment.Comment, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, c := range r.m.state.comments {
		if c.ID == commentID && c.TeamID == teamID && c.TaskID == taskID && c.DeletedAt == nil {
			return r.decorate(c), nil
		}
	}
	return nil, notFound("getting comment")
}

func (r *Comments) ListByTask(_ context.Context, teamID, taskID string) ([]*comment.Comment, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := []*comment.Comment{}
	for _, c := range r.m.state.comments {
		if c.TeamID == teamID && c.TaskID == taskID && c.DeletedAt == nil {
			out = append(out, r.decorate(c))
		}
	}
	return out, nil
}

func (r *Comments) SoftDelete(_ context.Context, commentID string, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, c := range r.m.state.comments {
		if c.ID == commentID && c.DeletedAt == nil {
			c.DeletedAt = &at
			c.UpdatedAt = at
		}
	}
	return nil
}

// ---- activity ----

// Activity returns the activity repository view.
func (m *Memory) Activity() *Activity { return &Activity{m: m} }

// Activity implements the activity log store over Memory.
type Activity struct{ m *Memory }

func (r *Activity) Append(_ context.Context, e activity.Entry) (*activity.Activity, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAppend != nil {
		return nil, fmt.Errorf("appending activity: %w", m.FailAppend)
	}
	var actor *string
	if e.ActorUserID != "" {
		id := e.ActorUserID
		actor = &id
	}
	data := e.Data
	if data == nil {
		data = map[string]any{}
	}
	a := &activity.Activity{
		ID:          uuid.NewString(),
		TeamID:      e.TeamID,
		ActorUserID: actor,
		EntityType:  e.EntityType,
		EntityID:    e.EntityID,
		Action:      e.Action,
		Data:        data,
		CreatedAt:   m.now(),
	}
	m.state.activity = append(m.state.activity, a)
	cp := *a
	return &cp, nil
}

func (r *Activity) ListByTeam(_ context.Context, teamID string, params activity.ListParams) ([]*activity.Activity, string, error) {
	limit := activity.ClampLimit(params.Limit)

	var after time.Time
	var afterID string
	if params.Cursor != "" {
		t, id, err := activity.DecodeCursor(params.Cursor)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cursor: %w", err)
		}
		after, afterID = t, id
	}

	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*activity.Activity
	for _, a := range r.m.state.activity {
		if a.TeamID != teamID {
			continue
		}
		if afterID != "" && !a.CreatedAt.After(after) && !(a.CreatedAt.Equal(after) && a.ID > afterID) {
			continue
		}
		cp := *a
		out = append(out, &cp)
		if len(out) == limit+1 {
			break
		}
	}
	return activity.Page(out, limit)
}
