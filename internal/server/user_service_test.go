package server

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/onboarding-survey/internal/config"
	"github.com/jonathan/onboarding-survey/internal/db"
	"github.com/jonathan/onboarding-survey/internal/types"
)

func setupTestUserService(t *testing.T) (*UserService, *memStore) {
	t.Helper()
	pc, err := config.NewPasswordConfig(10, "pepper") // lowest cost for speed
	require.NoError(t, err)
	store := newMemStore()
	return NewUserService(store, pc, nil), store
}

func TestToAPIUser(t *testing.T) {
	t.Run("valid user", func(t *testing.T) {
		now := time.Now()
		dbUser := &db.User{
			ID:                uuid.New(),
			Name:              "John Doe",
			Email:             "john@example.com",
			Phone:             "+15550100",
			PasswordHash:      "hashed-password",
			PasswordSet:       true,
			Onboarded:         true,
			SurveyCompletedAt: &now,
			CreatedAt:         now,
			UpdatedAt:         now,
		}

		u := toAPIUser(dbUser)
		require.NotNil(t, u)
		assert.Equal(t, dbUser.ID, u.ID)
		assert.Equal(t, dbUser.Email, u.Email)
		assert.True(t, u.Onboarded)
		assert.Equal(t, &now, u.SurveyCompletedAt)
		assert.Equal(t, types.DashboardURL, u.LandingURL())
	})

	t.Run("nil user", func(t *testing.T) {
		assert.Nil(t, toAPIUser(nil))
	})
}

func TestUserService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("creates account with password", func(t *testing.T) {
		svc, store := setupTestUserService(t)
		u, err := svc.Register(ctx, &types.CreateUserRequest{Name: "Jane", Email: "jane@example.com", Password: "correct-horse"})
		require.NoError(t, err)
		assert.True(t, u.PasswordSet)
		assert.False(t, u.Onboarded)

		stored, _ := store.GetUser(ctx, u.ID)
		assert.NotEqual(t, "correct-horse", stored.PasswordHash)
	})

	t.Run("duplicate email", func(t *testing.T) {
		svc, _ := setupTestUserService(t)
		req := &types.CreateUserRequest{Name: "Jane", Email: "jane@example.com", Password: "correct-horse"}
		_, err := svc.Register(ctx, req)
		require.NoError(t, err)
		_, err = svc.Register(ctx, req)
		var exists *ErrEmailAlreadyExists
		assert.ErrorAs(t, err, &exists)
	})

	t.Run("password failure rolls back the account", func(t *testing.T) {
		svc, store := setupTestUserService(t)
		store.updatePasswordErr = errStore
		_, err := svc.Register(ctx, &types.CreateUserRequest{Name: "Jane", Email: "jane@example.com", Password: "correct-horse"})
		require.ErrorIs(t, err, errStore)
		assert.Len(t, store.deleted, 1)

		exists, _ := store.CheckEmailExists(ctx, "jane@example.com")
		assert.False(t, exists)
	})
}

func TestUserService_Login(t *testing.T) {
	ctx := context.Background()
	svc, store := setupTestUserService(t)
	registered, err := svc.Register(ctx, &types.CreateUserRequest{Name: "Jane", Email: "jane@example.com", Password: "correct-horse"})
	require.NoError(t, err)
	_, err = store.CreateUser(ctx, "No Password", "nopw@example.com", "")
	require.NoError(t, err)

	u, err := svc.Login(ctx, &types.LoginRequest{Email: "jane@example.com", Password: "correct-horse"})
	require.NoError(t, err)
	assert.Equal(t, registered.ID, u.ID)

	for _, req := range []types.LoginRequest{
		{Email: "jane@example.com", Password: "wrong-horse"},
		{Email: "nobody@example.com", Password: "correct-horse"},
		{Email: "nopw@example.com", Password: ""},
	} {
		_, err := svc.Login(ctx, &req)
		var creds *ErrInvalidCredentials
		assert.ErrorAs(t, err, &creds, req.Email)
	}
}

func TestUserService_UpdatePassword(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupTestUserService(t)
	u, err := svc.Register(ctx, &types.CreateUserRequest{Name: "Jane", Email: "jane@example.com", Password: "correct-horse"})
	require.NoError(t, err)

	var mismatch *ErrPasswordMismatch
	assert.ErrorAs(t, svc.UpdatePassword(ctx, u.ID, "wrong-horse", "battery-staple"), &mismatch)

	var notFound *ErrUserNotFound
	assert.ErrorAs(t, svc.UpdatePassword(ctx, uuid.New(), "correct-horse", "battery-staple"), &notFound)

	require.NoError(t, svc.UpdatePassword(ctx, u.ID, "correct-horse", "battery-staple"))
	_, err = svc.Login(ctx, &types.LoginRequest{Email: "jane@example.com", Password: "battery-staple"})
	assert.NoError(t, err)
}

func TestUserService_GetUser(t *testing.T) {
	svc, _ := setupTestUserService(t)
	_, err := svc.GetUser(context.Background(), uuid.New())
	var notFound *ErrUserNotFound
	assert.ErrorAs(t, err, &notFound)
}
