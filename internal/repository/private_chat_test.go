package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"huddle/internal/models"
	"huddle/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// exercisePrivateChatRepository runs the behaviour both stores must share.
func exercisePrivateChatRepository(t *testing.T, repo PrivateChatRepository) {
	ctx := context.Background()
	const alice, bob, carol uint = 101, 102, 103

	none, err := repo.FindByPair(ctx, alice, bob)
	require.NoError(t, err)
	assert.Nil(t, none)

	chat := models.NewPrivateChat(bob, alice)
	require.NoError(t, repo.Create(ctx, chat))
	require.NotZero(t, chat.ID)
	assert.Equal(t, []uint{bob, alice}, chat.Participants)

	assert.ErrorIs(t, repo.Create(ctx, models.NewPrivateChat(alice, bob)), ErrDuplicatePair,
		"the reversed pair is the same chat")

	found, err := repo.FindByPair(ctx, alice, bob)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, chat.ID, found.ID)

	t0 := time.Now().UTC().Truncate(time.Millisecond)
	first := &models.PrivateMessage{SenderID: alice, Message: "hi", Timestamp: t0}
	second := &models.PrivateMessage{SenderID: bob, Message: "hey", Timestamp: t0.Add(time.Second)}
	require.NoError(t, repo.AppendMessage(ctx, chat.ID, first))
	require.NoError(t, repo.AppendMessage(ctx, chat.ID, second))
	assert.NotZero(t, first.ID)

	got, err := repo.GetByID(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "hi", got.Messages[0].Message)
	assert.Equal(t, bob, got.Messages[1].SenderID)

	err = repo.AppendMessage(ctx, chat.ID+1000, &models.PrivateMessage{SenderID: alice, Message: "lost", Timestamp: t0})
	assert.True(t, models.IsNotFound(err))

	_, err = repo.GetByID(ctx, chat.ID+1000)
	assert.True(t, models.IsNotFound(err))

	other := models.NewPrivateChat(alice, carol)
	require.NoError(t, repo.Create(ctx, other))

	forAlice, err := repo.ListForUser(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, forAlice, 2)

	forCarol, err := repo.ListForUser(ctx, carol)
	require.NoError(t, err)
	require.Len(t, forCarol, 1)
	assert.Equal(t, other.ID, forCarol[0].ID)
	assert.Empty(t, forCarol[0].Messages)
}

func TestPrivateChatRepository_SQL(t *testing.T) {
	exercisePrivateChatRepository(t, NewPrivateChatRepository(testutil.NewTestDB(t)))
}

func TestPrivateChatRepository_Mongo(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	db := client.Database("huddle_test_" + time.Now().Format("20060102150405"))
	t.Cleanup(func() { _ = db.Drop(context.Background()) })

	repo, err := NewMongoPrivateChatRepository(ctx, db)
	require.NoError(t, err)
	exercisePrivateChatRepository(t, repo)
}

func TestEventChatRepository(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewEventChatRepository(db)
	ctx := context.Background()

	org := testutil.CreateUser(t, db, "org")
	ev := testutil.CreateEvent(t, db, org.ID)

	t0 := time.Now().UTC()
	require.NoError(t, repo.Create(ctx, &models.ChatMessage{EventID: ev.ID, SenderID: org.ID, Message: "second", Timestamp: t0.Add(time.Second)}))
	require.NoError(t, repo.Create(ctx, &models.ChatMessage{EventID: ev.ID, SenderID: org.ID, Message: "first", Timestamp: t0}))

	msgs, err := repo.ListByEvent(ctx, ev.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Message)

	empty, err := repo.ListByEvent(ctx, ev.ID+1)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}
