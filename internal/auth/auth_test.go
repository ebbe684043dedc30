package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/alecgard/taskforge/internal/apperr"
	"github.com/alecgard/taskforge/internal/auth"
	"github.com/alecgard/taskforge/internal/testutil"
)

type countingObserver struct {
	mu        sync.Mutex
	successes map[string]int
	failures  map[string]int
}

func (o *countingObserver) IncAuthSuccess(kind string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.successes[kind]++
}

func (o *countingObserver) IncAuthFailure(kind string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures[kind]++
}

func newService(t *testing.T) (*auth.Service, *countingObserver) {
	t.Helper()
	mem := testutil.NewMemory()
	tokens := auth.NewTokenIssuer(auth.TokenConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    time.Hour,
	})
	svc := auth.NewService(mem.Users(), mem, tokens, bcrypt.MinCost)
	obs := &countingObserver{successes: map[string]int{}, failures: map[string]int{}}
	svc.SetObserver(obs)
	return svc, obs
}

func register(t *testing.T, svc *auth.Service, email string) *auth.Result {
	t.Helper()
	res, err := svc.Register(context.Background(), auth.RegisterInput{Email: email, Name: " Alice ", Password: "password123"})
	require.NoError(t, err)
	return res
}

func TestRegister(t *testing.T) {
	svc, obs := newService(t)

	res := register(t, svc, "  Alice@Example.com")
	assert.Equal(t, "alice@example.com", res.User.Email)
	assert.Equal(t, "Alice", res.User.Name)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.NotEqual(t, "password123", res.User.PasswordHash)

	userID, err := svc.Authenticate(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, userID)
	assert.Equal(t, 1, obs.successes["register"])
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := newService(t)
	register(t, svc, "alice@example.com")

	_, err := svc.Register(context.Background(), auth.RegisterInput{Email: "ALICE@example.com", Name: "Other", Password: "password123"})
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeEmailInUse), "got %v", err)
}

func TestLogin(t *testing.T) {
	svc, obs := newService(t)
	reg := register(t, svc, "alice@example.com")

	res, err := svc.Login(context.Background(), "Alice@Example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, res.User.ID)

	_, err = svc.Login(context.Background(), "alice@example.com", "wrong-password")
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidCredentials), "got %v", err)

	_, err = svc.Login(context.Background(), "nobody@example.com", "password123")
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidCredentials), "got %v", err)

	assert.Equal(t, 2, obs.failures["login"])
	assert.Equal(t, 1, obs.successes["login"])
}

func TestRefreshRotation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	reg := register(t, svc, "alice@example.com")

	pair, err := svc.Refresh(ctx, reg.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, reg.RefreshToken, pair.RefreshToken)

	// Replaying the consumed token fails even before the new one is used.
	_, err = svc.Refresh(ctx, reg.RefreshToken)
	assert.True(t, apperr.IsCode(err, apperr.CodeUnauthorized), "got %v", err)

	// Only the reused session is affected.
	next, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, next.AccessToken)
}

func TestRefreshRejectsInvalidTokens(t *testing.T) {
	svc, obs := newService(t)
	reg := register(t, svc, "alice@example.com")

	for _, token := range []string{"", "garbage", reg.AccessToken} {
		_, err := svc.Refresh(context.Background(), token)
		assert.True(t, apperr.IsCode(err, apperr.CodeUnauthorized), "token %q: got %v", token, err)
	}
	assert.Equal(t, 3, obs.failures["refresh"])
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	svc, _ := newService(t)
	reg := register(t, svc, "alice@example.com")

	var wg sync.WaitGroup
	results := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Refresh(context.Background(), reg.RefreshToken)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
		} else {
			assert.True(t, apperr.IsCode(err, apperr.CodeUnauthorized), "got %v", err)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestLogout(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	reg := register(t, svc, "alice@example.com")

	require.NoError(t, svc.Logout(ctx, reg.RefreshToken))
	require.NoError(t, svc.Logout(ctx, reg.RefreshToken), "logout is idempotent")
	require.NoError(t, svc.Logout(ctx, "garbage"), "unverifiable tokens are ignored")

	_, err := svc.Refresh(ctx, reg.RefreshToken)
	assert.True(t, apperr.IsCode(err, apperr.CodeUnauthorized), "got %v", err)
}

func TestMe(t *testing.T) {
	svc, _ := newService(t)
	reg := register(t, svc, "alice@example.com")

	u, err := svc.Me(context.Background(), reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", u.Email)

	_, err = svc.Me(context.Background(), "00000000-0000-4000-8000-000000000000")
	assert.True(t, apperr.IsCode(err, apperr.CodeUnauthorized), "got %v", err)
}

func TestAuthenticateRejectsRefreshToken(t *testing.T) {
	svc, obs := newService(t)
	reg := register(t, svc, "alice@example.com")

	_, err := svc.Authenticate(reg.RefreshToken)
	assert.True(t, apperr.IsCode(err, apperr.CodeUnauthorized), "got %v", err)
	assert.Equal(t, 1, obs.failures["access"])
}
