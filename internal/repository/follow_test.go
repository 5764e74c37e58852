package repository

import (
	"context"
	"testing"

	"huddle/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFollowRepository(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewFollowRepository(db)
	ctx := context.Background()

	a := testutil.CreateUser(t, db, "ann")
	b := testutil.CreateUser(t, db, "ben")
	c := testutil.CreateUser(t, db, "cat")

	require.NoError(t, repo.Follow(ctx, a.ID, b.ID))
	assert.ErrorIs(t, repo.Follow(ctx, a.ID, b.ID), ErrAlreadyFollowing)

	following, err := repo.IsFollowing(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, following)

	mutual, err := repo.IsMutual(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, mutual, "one-way edge is not mutual")

	require.NoError(t, repo.Follow(ctx, b.ID, a.ID))
	require.NoError(t, repo.Follow(ctx, a.ID, c.ID))

	mutual, err = repo.IsMutual(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.True(t, mutual)

	followers, err := repo.Followers(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{b.ID}, followers)

	outgoing, err := repo.Following(ctx, a.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{b.ID, c.ID}, outgoing)

	mutuals, err := repo.Mutuals(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{b.ID}, mutuals)

	require.NoError(t, repo.Unfollow(ctx, b.ID, a.ID))
	assert.ErrorIs(t, repo.Unfollow(ctx, b.ID, a.ID), ErrNotFollowing)

	mutuals, err = repo.Mutuals(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, mutuals)
}
