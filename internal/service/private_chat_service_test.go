package service

import (
	"context"
	"sync"
	"testing"

	"huddle/internal/models"
	"huddle/internal/repository"
	"huddle/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrivateChatService_GetOrCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := testutil.CreateUser(t, f.db, "a")
	b := testutil.CreateUser(t, f.db, "b")

	_, err := f.dmSvc.GetOrCreate(ctx, a.ID, 9999)
	assert.True(t, models.IsNotFound(err))

	testutil.Follow(t, f.db, a.ID, b.ID)
	_, err = f.dmSvc.GetOrCreate(ctx, a.ID, b.ID)
	forbiddenWith(t, err, "Private chat requires mutual following.")

	testutil.Follow(t, f.db, b.ID, a.ID)
	first, err := f.dmSvc.GetOrCreate(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{a.ID, b.ID}, first.Participants)
	assert.Empty(t, first.Messages)

	second, err := f.dmSvc.GetOrCreate(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "either order resolves to the same chat")
}

func TestPrivateChatService_ConcurrentGetOrCreateYieldsOneChat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := testutil.CreateUser(t, f.db, "a")
	b := testutil.CreateUser(t, f.db, "b")
	testutil.Befriend(t, f.db, a.ID, b.ID)

	ids := make([]uint, 10)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			x, y := a.ID, b.ID
			if i%2 == 1 {
				x, y = y, x
			}
			chat, err := f.dmSvc.GetOrCreate(ctx, x, y)
			if assert.NoError(t, err) {
				ids[i] = chat.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	var count int64
	require.NoError(t, f.db.Model(&models.PrivateChat{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

// racingChatRepo reports the pair as absent on the first lookup and then
// loses the insert, as when another instance creates the chat in between.
type racingChatRepo struct {
	repository.PrivateChatRepository
	winner  *models.PrivateChat
	lookups int
}

func (r *racingChatRepo) FindByPair(_ context.Context, _, _ uint) (*models.PrivateChat, error) {
	r.lookups++
	if r.lookups == 1 {
		return nil, nil
	}
	return r.winner, nil
}

func (r *racingChatRepo) Create(context.Context, *models.PrivateChat) error {
	return repository.ErrDuplicatePair
}

func TestPrivateChatService_LostCreateRaceReturnsWinner(t *testing.T) {
	f := newFixture(t)
	a := testutil.CreateUser(t, f.db, "a")
	b := testutil.CreateUser(t, f.db, "b")
	testutil.Befriend(t, f.db, a.ID, b.ID)

	winner := models.NewPrivateChat(b.ID, a.ID)
	winner.ID = 77
	repo := &racingChatRepo{winner: winner}
	svc := NewPrivateChatService(repo, f.follows, f.users)

	chat, err := svc.GetOrCreate(context.Background(), a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(77), chat.ID)
	assert.Equal(t, 2, repo.lookups)
}

func TestPrivateChatService_PostMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := testutil.CreateUser(t, f.db, "a")
	b := testutil.CreateUser(t, f.db, "b")
	testutil.Befriend(t, f.db, a.ID, b.ID)

	chat, err := f.dmSvc.GetOrCreate(ctx, a.ID, b.ID)
	require.NoError(t, err)

	_, err = f.dmSvc.PostMessage(ctx, chat.ID+100, a.ID, "hello")
	assert.True(t, models.IsNotFound(err))

	_, err = f.dmSvc.PostMessage(ctx, chat.ID, a.ID, "   ")
	assert.Equal(t, models.CodeValidation, models.ErrorCode(err))

	msg, err := f.dmSvc.PostMessage(ctx, chat.ID, a.ID, "hello")
	require.NoError(t, err)
	assert.Equal(t, models.PrivateRoomKey(chat.ID), msg.RoomKey)
	require.NotNil(t, msg.Sender)
	assert.Equal(t, a.Username, msg.Sender.Username)

	// Writable after the mutual follow lapses.
	require.NoError(t, f.follows.Unfollow(ctx, b.ID, a.ID))
	_, err = f.dmSvc.PostMessage(ctx, chat.ID, b.ID, "still here")
	require.NoError(t, err)

	full, err := f.dmSvc.Get(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, full.Messages, 2)
	assert.Equal(t, "hello", full.Messages[0].Message)
	require.NotNil(t, full.Messages[1].Sender)
	assert.Equal(t, b.Username, full.Messages[1].Sender.Username)

	_, err = f.dmSvc.Get(ctx, chat.ID+100)
	assert.True(t, models.IsNotFound(err))
}

func TestPrivateChatService_ListingsFollowCurrentMutuals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := testutil.CreateUser(t, f.db, "u")
	friend := testutil.CreateUser(t, f.db, "friend")
	lapsed := testutil.CreateUser(t, f.db, "lapsed")
	fresh := testutil.CreateUser(t, f.db, "fresh")
	fan := testutil.CreateUser(t, f.db, "fan")

	testutil.Befriend(t, f.db, u.ID, friend.ID)
	testutil.Befriend(t, f.db, u.ID, lapsed.ID)
	testutil.Befriend(t, f.db, u.ID, fresh.ID)
	testutil.Follow(t, f.db, fan.ID, u.ID)

	withFriend, err := f.dmSvc.GetOrCreate(ctx, u.ID, friend.ID)
	require.NoError(t, err)
	_, err = f.dmSvc.GetOrCreate(ctx, lapsed.ID, u.ID)
	require.NoError(t, err)
	require.NoError(t, f.follows.Unfollow(ctx, u.ID, lapsed.ID))

	chats, err := f.dmSvc.ListForUser(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, withFriend.ID, chats[0].ID)
	require.Len(t, chats[0].Participants, 2)

	available, err := f.dmSvc.ListAvailablePartners(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, fresh.ID, available[0].ID)

	_, err = f.dmSvc.ListForUser(ctx, 9999)
	assert.True(t, models.IsNotFound(err))
	_, err = f.dmSvc.ListAvailablePartners(ctx, 9999)
	assert.True(t, models.IsNotFound(err))
}
