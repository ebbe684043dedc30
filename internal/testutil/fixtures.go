package testutil

import (
	"context"
	"testing"

	"github.com/alecgard/taskforge/internal/activity"
	"github.com/alecgard/taskforge/internal/user"
)

// MustUser inserts a user with a placeholder password hash.
func MustUser(t testing.TB, m *Memory, email, name string) *user.User {
	t.Helper()
	u, err := m.Users().Create(context.Background(), user.CreateUserInput{
		Email:        email,
		Name:         name,
		PasswordHash: "$2a$04$placeholder",
	})
	if err != nil {
		t.Fatalf("creating user %s: %v", email, err)
	}
	return u
}

// Recorder returns an activity recorder backed by m and a LocalBus that
// collects everything published to it.
func Recorder(m *Memory) (*activity.Recorder, *Published) {
	bus := activity.NewLocalBus()
	p := &Published{}
	bus.Subscribe(p.add)
	return activity.NewRecorder(m.Activity(), bus), p
}
