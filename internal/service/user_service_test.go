package service

import (
	"context"
	"testing"

	"huddle/internal/middleware"
	"huddle/internal/models"
	"huddle/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserService_RegisterAndLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.userSvc.Register(ctx, RegisterInput{Username: "maria", Email: "Maria@Example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "maria@example.com", res.User.Email)
	assert.NotEqual(t, "secret1", res.User.Password)
	require.NotNil(t, res.User.LocationLat)
	assert.Equal(t, models.DefaultLocationLat, *res.User.LocationLat)

	sub, err := middleware.ParseToken(testSecret, res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, sub)

	_, err = f.userSvc.Register(ctx, RegisterInput{Username: "maria", Email: "other@example.com", Password: "secret1"})
	assert.Equal(t, models.CodeConflict, models.ErrorCode(err))

	_, err = f.userSvc.Register(ctx, RegisterInput{Username: "x", Email: "x@example.com", Password: "secret1"})
	assert.Equal(t, models.CodeValidation, models.ErrorCode(err))

	login, err := f.userSvc.Login(ctx, "maria@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, login.User.ID)

	_, err = f.userSvc.Login(ctx, "maria@example.com", "wrong-password")
	assert.Equal(t, models.CodeValidation, models.ErrorCode(err))

	_, err = f.userSvc.Login(ctx, "ghost@example.com", "secret1")
	assert.True(t, models.IsNotFound(err))
}

func TestUserService_ProfileAndOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := testutil.CreateUser(t, f.db, "amy")
	b := testutil.CreateUser(t, f.db, "bo")
	testutil.Follow(t, f.db, b.ID, a.ID)

	profile, err := f.userSvc.GetProfile(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{b.ID}, profile.Followers)
	assert.Empty(t, profile.Following)

	_, err = f.userSvc.UpdateLocation(ctx, b.ID, a.ID, 10, 10)
	assert.True(t, models.IsForbidden(err))

	updated, err := f.userSvc.UpdateLocation(ctx, a.ID, a.ID, 40.4168, -3.7038)
	require.NoError(t, err)
	assert.InDelta(t, 40.4168, *updated.LocationLat, 1e-9)

	_, err = f.userSvc.UpdateLocation(ctx, a.ID, a.ID, 120, 0)
	assert.Equal(t, models.CodeValidation, models.ErrorCode(err))

	pic := "avatars/amy.png"
	updated, err = f.userSvc.UpdateProfile(ctx, UpdateProfileInput{ActorID: a.ID, UserID: a.ID, ProfilePicture: &pic})
	require.NoError(t, err)
	assert.Equal(t, pic, updated.ProfilePicture)

	assert.True(t, models.IsForbidden(f.userSvc.Delete(ctx, b.ID, a.ID)))
	require.NoError(t, f.userSvc.Delete(ctx, a.ID, a.ID))
	_, err = f.userSvc.GetUser(ctx, a.ID)
	assert.True(t, models.IsNotFound(err))
}

func TestUserService_Search(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := testutil.CreateUser(t, f.db, "zed")

	_, err := f.userSvc.Search(ctx, "  ", 10)
	assert.Equal(t, models.CodeValidation, models.ErrorCode(err))

	got, err := f.userSvc.Search(ctx, "ZE", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, u.ID, got[0].ID)
}
