package comment_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alecgard/taskforge/internal/activity"
	"github.com/alecgard/taskforge/internal/apperr"
	"github.com/alecgard/taskforge/internal/comment"
	"github.com/alecgard/taskforge/internal/task"
	"github.com/alecgard/taskforge/internal/team"
	"github.com/alecgard/taskforge/internal/testutil"
	"github.com/alecgard/taskforge/internal/user"
)

type fixture struct {
	mem    *testutil.Memory
	svc    *comment.Service
	teams  *team.Service
	owner  *user.User
	admin  *user.User
	alice  *user.User
	bob    *user.User
	teamID string
	taskID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	mem := testutil.NewMemory()
	rec, _ := testutil.Recorder(mem)
	teams := team.NewService(mem.Teams(), mem.Users(), mem, rec)
	tasks := task.NewService(mem.Tasks(), mem.Teams(), mem, rec)

	f := &fixture{
		mem:   mem,
		svc:   comment.NewService(mem.Comments(), mem.Tasks(), mem, rec),
		teams: teams,
		owner: testutil.MustUser(t, mem, "owner@example.com", "Owner"),
		admin: testutil.MustUser(t, mem, "admin@example.com", "Admin"),
		alice: testutil.MustUser(t, mem, "alice@example.com", "Alice"),
		bob:   testutil.MustUser(t, mem, "bob@example.com", "Bob"),
	}
	tm, err := teams.Create(ctx, f.owner.ID, "Platform")
	require.NoError(t, err)
	f.teamID = tm.ID

	owner := f.membership(t, f.owner.ID)
	for id, role := range map[string]team.Role{f.admin.ID: team.RoleAdmin, f.alice.ID: team.RoleMember, f.bob.ID: team.RoleMember} {
		_, err := teams.AddMember(ctx, owner, id, role)
		require.NoError(t, err)
	}

	tk, err := tasks.Create(ctx, f.alice.ID, f.teamID, task.CreateInput{Title: "Write docs"})
	require.NoError(t, err)
	f.taskID = tk.ID
	return f
}

func (f *fixture) membership(t *testing.T, userID string) *team.Membership {
	t.Helper()
	m, err := f.teams.Authorize(context.Background(), f.teamID, userID, team.RoleMember)
	require.NoError(t, err)
	return m
}

func TestCreateAndListComments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, f.alice.ID, f.teamID, f.taskID, "  Looks good  ")
	require.NoError(t, err)
	assert.Equal(t, "Looks good", first.Body)
	require.NotNil(t, first.Author)
	assert.Equal(t, f.alice.ID, first.Author.ID)

	rows := f.mem.ActivityRows()
	last := rows[len(rows)-1]
	assert.Equal(t, activity.EntityComment, last.EntityType)
	assert.Equal(t, activity.ActionCommented, last.Action)
	assert.Equal(t, first.ID, last.EntityID)
	assert.Equal(t, map[string]any{"taskId": f.taskID}, last.Data)

	second, err := f.svc.Create(ctx, f.bob.ID, f.teamID, f.taskID, "Agreed")
	require.NoError(t, err)

	comments, err := f.svc.List(ctx, f.teamID, f.taskID)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, first.ID, comments[0].ID)
	assert.Equal(t, second.ID, comments[1].ID)
}

func TestCommentOnMissingTask(t *testing.T) {
	f := newFixture(t)
	missing := "00000000-0000-4000-8000-000000000000"

	_, err := f.svc.Create(context.Background(), f.alice.ID, f.teamID, missing, "hello")
	assert.True(t, apperr.IsCode(err, apperr.CodeTaskNotFound), "got %v", err)

	_, err = f.svc.List(context.Background(), f.teamID, missing)
	assert.True(t, apperr.IsCode(err, apperr.CodeTaskNotFound), "got %v", err)
	assert.Equal(t, 0, f.mem.CommentCount())
}

func TestDeleteComment(t *testing.T) {
	tests := []struct {
		name    string
		actor   func(f *fixture) string
		allowed bool
	}{
		{"author", func(f *fixture) string { return f.alice.ID }, true},
		{"admin", func(f *fixture) string { return f.admin.ID }, true},
		{"owner", func(f *fixture) string { return f.owner.ID }, true},
		{"other member", func(f *fixture) string { return f.bob.ID }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			c, err := f.svc.Create(ctx, f.alice.ID, f.teamID, f.taskID, "hello")
			require.NoError(t, err)
			before := len(f.mem.ActivityRows())

			err = f.svc.Delete(ctx, f.membership(t, tt.actor(f)), f.taskID, c.ID)
			if !tt.allowed {
				assert.True(t, apperr.IsCode(err, apperr.CodeForbidden), "got %v", err)
				assert.Len(t, f.mem.ActivityRows(), before)
				return
			}
			require.NoError(t, err)

			comments, err := f.svc.List(ctx, f.teamID, f.taskID)
			require.NoError(t, err)
			assert.Empty(t, comments)
			assert.Equal(t, 1, f.mem.CommentCount(), "soft delete keeps the row")

			rows := f.mem.ActivityRows()
			require.Len(t, rows, before+1)
			last := rows[len(rows)-1]
			assert.Equal(t, activity.ActionDeleted, last.Action)
			assert.Equal(t, c.ID, last.EntityID)
			assert.Equal(t, map[string]any{"taskId": f.taskID}, last.Data)
		})
	}
}

func TestDeleteCommentTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, err := f.svc.Create(ctx, f.alice.ID, f.teamID, f.taskID, "hello")
	require.NoError(t, err)
	alice := f.membership(t, f.alice.ID)

	require.NoError(t, f.svc.Delete(ctx, alice, f.taskID, c.ID))
	err = f.svc.Delete(ctx, alice, f.taskID, c.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeCommentNotFound), "got %v", err)
}

func TestCreateCommentRollsBackWhenActivityFails(t *testing.T) {
	f := newFixture(t)
	f.mem.FailAppend = assert.AnError

	_, err := f.svc.Create(context.Background(), f.alice.ID, f.teamID, f.taskID, "hello")
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 0, f.mem.CommentCount())
}

func TestDeleteCommentRollsBackWhenActivityFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, err := f.svc.Create(ctx, f.alice.ID, f.teamID, f.taskID, "hello")
	require.NoError(t, err)
	before := len(f.mem.ActivityRows())
	f.mem.FailAppend = assert.AnError

	err = f.svc.Delete(ctx, f.membership(t, f.alice.ID), f.taskID, c.ID)
	require.ErrorIs(t, err, assert.AnError)

	f.mem.FailAppend = nil
	comments, err := f.svc.List(ctx, f.teamID, f.taskID)
	require.NoError(t, err)
	require.Len(t, comments, 1, "comment stays visible")
	assert.Equal(t, c.ID, comments[0].ID)
	assert.Len(t, f.mem.ActivityRows(), before)
}
