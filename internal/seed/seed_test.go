package seed

import (
	"context"
	"testing"

	"huddle/internal/models"
	"huddle/internal/repository"
	"huddle/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallOptions() Options {
	opts := DefaultOptions()
	opts.NumUsers = 6
	opts.NumEvents = 4
	opts.MessagesPerChat = 3
	opts.SkipBcrypt = true
	opts.RandSeed = 42
	return opts
}

func TestSeeder_Run(t *testing.T) {
	db := testutil.NewTestDB(t)
	s, err := NewSeeder(db, nil, smallOptions())
	require.NoError(t, err)

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Users, 6)
	require.Len(t, res.Events, 4)
	assert.Equal(t, 18, res.Follows)
	assert.Equal(t, 3, res.PrivateChats)

	follows := repository.NewFollowRepository(db)
	for i, u := range res.Users {
		next := res.Users[(i+1)%len(res.Users)]
		mutual, err := follows.IsMutual(context.Background(), u.ID, next.ID)
		require.NoError(t, err)
		assert.True(t, mutual, "ring neighbours follow each other")
	}

	events := repository.NewEventRepository(db)
	for _, e := range res.Events {
		stored, err := events.GetByID(context.Background(), e.ID)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(stored.Participants), stored.MaxParticipants)
		assert.Equal(t, e.OrganizerID, stored.Participants[0])
		assert.Equal(t, len(stored.Participants), stored.ParticipantCount)
	}

	var messages int64
	require.NoError(t, db.Model(&models.PrivateMessage{}).Count(&messages).Error)
	assert.EqualValues(t, 9, messages)
}

func TestSeeder_ClearAll(t *testing.T) {
	db := testutil.NewTestDB(t)
	s, err := NewSeeder(db, nil, smallOptions())
	require.NoError(t, err)
	_, err = s.Run(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.ClearAll())
	for _, m := range []interface{}{&models.User{}, &models.Event{}, &models.Follow{}, &models.PrivateChat{}, &models.ChatMessage{}} {
		var n int64
		require.NoError(t, db.Model(m).Count(&n).Error)
		assert.Zero(t, n, "%T", m)
	}
}

func TestFactory_CreateUserStaysWithinColumnLimits(t *testing.T) {
	db := testutil.NewTestDB(t)
	f, err := NewFactory(repository.NewUserRepository(db), repository.NewEventRepository(db), repository.NewEventChatRepository(db), smallOptions())
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		u, err := f.CreateUser(context.Background())
		require.NoError(t, err)
		assert.LessOrEqual(t, len(u.Username), 20)
		assert.LessOrEqual(t, len(u.Email), 40)
		require.NotNil(t, u.LocationLat)
		assert.InDelta(t, models.DefaultLocationLat, *u.LocationLat, 0.15)
	}
}
