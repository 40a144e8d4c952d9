package service

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/willjrcristo/mealmuse/internal/domain"
	"github.com/willjrcristo/mealmuse/internal/repository"
)

type testEnv struct {
	db           *sql.DB
	users        repository.UserRepository
	earlyAdopter *EarlyAdopterService
	userService  *UserService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := repository.Open(filepath.Join(t.TempDir(), "mealmuse.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	users := repository.NewSQLiteRepository(db)
	ea := NewEarlyAdopterService(repository.NewSQLiteEarlyAdopterRepository(db))
	require.NoError(t, ea.Configure(context.Background(), domain.DefaultEarlyAdopterSlots))

	return &testEnv{
		db:           db,
		users:        users,
		earlyAdopter: ea,
		userService:  NewUserService(users, ea),
	}
}

func (e *testEnv) createUser(t *testing.T, email string) int64 {
	t.Helper()
	id, err := e.userService.CreateUser(context.Background(), domain.User{Name: "Cook", Email: email})
	require.NoError(t, err)
	return id
}

func (e *testEnv) makePremium(t *testing.T, email string, until time.Time) {
	t.Helper()
	tier, status := domain.TierPremium, domain.StatusActive
	n, err := e.users.UpdateSubscriptionByEmail(context.Background(), email, repository.SubscriptionPatch{
		Tier:             &tier,
		Status:           &status,
		CurrentPeriodEnd: &until,
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestUserService_CreateUser(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	testCases := []struct {
		name    string
		user    domain.User
		wantErr error
	}{
		{name: "valid", user: domain.User{Name: "Ana", Email: "ana@mealmuse.app"}},
		{name: "missing name", user: domain.User{Name: "  ", Email: "x@mealmuse.app"}, wantErr: ErrInvalidData},
		{name: "missing email", user: domain.User{Name: "Ana"}, wantErr: ErrInvalidData},
		{name: "email without at", user: domain.User{Name: "Ana", Email: "ana.mealmuse.app"}, wantErr: ErrInvalidData},
		{name: "duplicate email", user: domain.User{Name: "Ana 2", Email: "ANA@mealmuse.app"}, wantErr: ErrEmailTaken},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.userService.CreateUser(ctx, tc.user)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestUserService_NewUsersStartFree(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	id := env.createUser(t, "free@mealmuse.app")

	view, err := env.userService.GetSubscription(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TierFree, view.Tier)
	assert.Equal(t, domain.StatusNone, view.Status)
	assert.False(t, view.IsPremium)
	assert.False(t, view.EarlyAdopter)

	_, err = env.userService.GetSubscription(ctx, 999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserService_GetSubscription_Premium(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	id := env.createUser(t, "pro@mealmuse.app")
	env.makePremium(t, "pro@mealmuse.app", time.Now().Add(24*time.Hour))

	view, err := env.userService.GetSubscription(ctx, id)
	require.NoError(t, err)
	assert.True(t, view.IsPremium)
	assert.False(t, view.EarlyAdopter)
	assert.Nil(t, view.EarlyAdopterSince)
}

func TestUserService_GetSubscription_EarlyAdopterSince(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	id := env.createUser(t, "early@mealmuse.app")

	claim, err := env.earlyAdopter.Claim(ctx, id, "early@mealmuse.app")
	require.NoError(t, err)

	view, err := env.userService.GetSubscription(ctx, id)
	require.NoError(t, err)
	assert.True(t, view.EarlyAdopter)
	require.NotNil(t, view.EarlyAdopterSince)
	assert.True(t, claim.ClaimedAt.Equal(*view.EarlyAdopterSince))
}

func TestUserService_UpdateUser(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	id := env.createUser(t, "old@mealmuse.app")
	env.createUser(t, "taken@mealmuse.app")

	require.NoError(t, env.userService.UpdateUser(ctx, id, domain.User{Name: "New", Email: "new@mealmuse.app"}))
	u, err := env.userService.GetUserByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "New", u.Name)
	assert.Equal(t, "new@mealmuse.app", u.Email)

	err = env.userService.UpdateUser(ctx, id, domain.User{Name: "New", Email: "taken@mealmuse.app"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	err = env.userService.UpdateUser(ctx, 999, domain.User{Name: "Nobody", Email: "n@mealmuse.app"})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserService_DeleteUserReleasesEarlyAdopterSlot(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	id := env.createUser(t, "bye@mealmuse.app")

	_, err := env.earlyAdopter.Claim(ctx, id, "bye@mealmuse.app")
	require.NoError(t, err)
	status, err := env.earlyAdopter.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, status.UsedSlots)

	require.NoError(t, env.userService.DeleteUser(ctx, id))

	status, err = env.earlyAdopter.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, status.UsedSlots)

	_, err = env.userService.GetUserByID(ctx, id)
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.ErrorIs(t, env.userService.DeleteUser(ctx, id), ErrUserNotFound)
}

func TestUserService_GetAllUsers(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 3; i++ {
		env.createUser(t, fmt.Sprintf("user%d@mealmuse.app", i))
	}
	users, err := env.userService.GetAllUsers(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, 3)
}
