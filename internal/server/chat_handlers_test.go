package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"huddle/internal/config"
	"huddle/internal/models"
	"huddle/internal/repository"
	"huddle/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestEventChat(t *testing.T) {
	env := newTestEnv(t)
	org := testutil.CreateUser(t, env.db, "org")
	alice := testutil.CreateUser(t, env.db, "alice")
	event := testutil.CreateEvent(t, env.db, org.ID)
	path := fmt.Sprintf("/api/chat/%d", event.ID)

	var msg models.ChatMessage
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, path, fiber.Map{"sender": org.ID, "message": "kick-off at 10"}, &msg))
	assert.Equal(t, fmt.Sprintf("chat_%d", event.ID), msg.ChatID)
	require.NotNil(t, msg.Sender)
	assert.Equal(t, org.Username, msg.Sender.Username)

	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, path, fiber.Map{"sender": alice.ID, "message": "see you there"}, nil))

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, path, fiber.Map{"sender": alice.ID, "message": ""}, nil))
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, path, fiber.Map{"sender": alice.ID + 100, "message": "hi"}, nil))
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, fmt.Sprintf("/api/chat/%d", event.ID+1), fiber.Map{"sender": alice.ID, "message": "hi"}, nil))

	var history []models.ChatMessage
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, path, nil, &history))
	require.Len(t, history, 2)
	assert.Equal(t, "kick-off at 10", history[0].Message)
	assert.Equal(t, "see you there", history[1].Message)
	require.NotNil(t, history[1].Sender)
	assert.Equal(t, alice.ID, history[1].Sender.ID)
}

func TestPrivateChatLifecycle(t *testing.T) {
	env := newTestEnv(t)
	alice := testutil.CreateUser(t, env.db, "alice")
	bob := testutil.CreateUser(t, env.db, "bob")
	carol := testutil.CreateUser(t, env.db, "carol")
	testutil.Befriend(t, env.db, alice.ID, bob.ID)
	testutil.Befriend(t, env.db, alice.ID, carol.ID)

	var partners []models.UserSummary
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, fmt.Sprintf("/api/privateChat/available/%d", alice.ID), nil, &partners))
	assert.Len(t, partners, 2)

	var chat models.PrivateChat
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/privateChat/getOrCreate", fiber.Map{"userId1": alice.ID, "userId2": bob.ID}, &chat))
	require.NotZero(t, chat.ID)

	// The pair is unordered.
	var again models.PrivateChat
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/privateChat/getOrCreate", fiber.Map{"userId1": fmt.Sprint(bob.ID), "userId2": alice.ID}, &again))
	assert.Equal(t, chat.ID, again.ID)

	var msg models.PrivateMessage
	path := fmt.Sprintf("/api/privateChat/%d/message", chat.ID)
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, path, fiber.Map{"sender": bob.ID, "message": "lunch?"}, &msg))
	assert.Equal(t, fmt.Sprint(chat.ID), msg.RoomKey)

	var loaded models.PrivateChat
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, fmt.Sprintf("/api/privateChat/%d", chat.ID), nil, &loaded))
	require.Len(t, loaded.Messages, 1)
	require.NotNil(t, loaded.Messages[0].Sender)
	assert.Equal(t, bob.Username, loaded.Messages[0].Sender.Username)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, fmt.Sprintf("/api/privateChat/available/%d", alice.ID), nil, &partners))
	require.Len(t, partners, 1)
	assert.Equal(t, carol.ID, partners[0].ID)

	var views []models.PrivateChatView
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, fmt.Sprintf("/api/privateChat/user/%d", alice.ID), nil, &views))
	require.Len(t, views, 1)

	// Once bob unfollows, the chat is hidden from listings but stays writable.
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, fmt.Sprintf("/api/user/%d/unfollow", alice.ID), fiber.Map{"userId": bob.ID}, nil))
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, fmt.Sprintf("/api/privateChat/user/%d", alice.ID), nil, &views))
	assert.Empty(t, views)
	assert.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, path, fiber.Map{"sender": alice.ID, "message": "still here"}, nil))
}

func TestGetOrCreatePrivateChatRejections(t *testing.T) {
	env := newTestEnv(t)
	alice := testutil.CreateUser(t, env.db, "alice")
	bob := testutil.CreateUser(t, env.db, "bob")
	testutil.Follow(t, env.db, alice.ID, bob.ID)

	tests := []struct {
		name     string
		body     fiber.Map
		wantCode int
	}{
		{"one-way follow", fiber.Map{"userId1": alice.ID, "userId2": bob.ID}, http.StatusForbidden},
		{"unknown user", fiber.Map{"userId1": alice.ID, "userId2": bob.ID + 100}, http.StatusNotFound},
		{"missing user", fiber.Map{"userId1": alice.ID}, http.StatusBadRequest},
		{"malformed id", fiber.Map{"userId1": "abc", "userId2": bob.ID}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, env.do(t, http.MethodPost, "/api/privateChat/getOrCreate", tt.body, nil))
		})
	}
}

func TestPrivateChatAuthRequired(t *testing.T) {
	env := newTestEnv(t, authRequired)
	alice := testutil.CreateUser(t, env.db, "alice")
	bob := testutil.CreateUser(t, env.db, "bob")
	mallory := testutil.CreateUser(t, env.db, "mallory")
	testutil.Befriend(t, env.db, alice.ID, bob.ID)

	pair := fiber.Map{"userId1": alice.ID, "userId2": bob.ID}
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodPost, "/api/privateChat/getOrCreate", pair, nil, tokenFor(t, mallory.ID)))

	var chat models.PrivateChat
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/privateChat/getOrCreate", pair, &chat, tokenFor(t, alice.ID)))

	chatPath := fmt.Sprintf("/api/privateChat/%d", chat.ID)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, chatPath, nil, nil, tokenFor(t, mallory.ID)))
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, chatPath, nil, nil, tokenFor(t, bob.ID)))

	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodPost, chatPath+"/message", fiber.Map{"message": "hi"}, nil, tokenFor(t, mallory.ID)))
	assert.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, chatPath+"/message", fiber.Map{"message": "hi"}, nil, tokenFor(t, bob.ID)))

	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, fmt.Sprintf("/api/privateChat/user/%d", alice.ID), nil, nil, tokenFor(t, mallory.ID)))
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, fmt.Sprintf("/api/privateChat/user/%d", alice.ID), nil, nil, tokenFor(t, alice.ID)))
}

type mockPrivateChatRepository struct {
	mock.Mock
}

var _ repository.PrivateChatRepository = (*mockPrivateChatRepository)(nil)

func (m *mockPrivateChatRepository) FindByPair(ctx context.Context, a, b uint) (*models.PrivateChat, error) {
	args := m.Called(ctx, a, b)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PrivateChat), args.Error(1)
}

func (m *mockPrivateChatRepository) Create(ctx context.Context, chat *models.PrivateChat) error {
	return m.Called(ctx, chat).Error(0)
}

func (m *mockPrivateChatRepository) GetByID(ctx context.Context, id uint) (*models.PrivateChat, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PrivateChat), args.Error(1)
}

func (m *mockPrivateChatRepository) AppendMessage(ctx context.Context, chatID uint, msg *models.PrivateMessage) error {
	return m.Called(ctx, chatID, msg).Error(0)
}

func (m *mockPrivateChatRepository) ListForUser(ctx context.Context, userID uint) ([]models.PrivateChat, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.PrivateChat), args.Error(1)
}

func TestPrivateChatStoreFailuresAreInternalErrors(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	db := testutil.NewTestDB(t)
	alice := testutil.CreateUser(t, db, "alice")
	bob := testutil.CreateUser(t, db, "bob")
	testutil.Befriend(t, db, alice.ID, bob.ID)

	repo := new(mockPrivateChatRepository)
	repo.On("FindByPair", mock.Anything, alice.ID, bob.ID).Return(nil, errors.New("connection reset by peer"))
	repo.On("GetByID", mock.Anything, uint(7)).Return(nil, models.NewNotFoundError("Private chat", 7))

	srv, err := NewServerWithDeps(&config.Config{Env: "test", JWTSecret: testSecret}, db, nil, WithPrivateChatRepository(repo))
	require.NoError(t, err)
	env := &testEnv{srv: srv, db: db}

	var errBody errorBody
	require.Equal(t, http.StatusInternalServerError, env.do(t, http.MethodPost, "/api/privateChat/getOrCreate", fiber.Map{"userId1": alice.ID, "userId2": bob.ID}, &errBody))
	assert.Equal(t, "INTERNAL_ERROR", errBody.Code)
	assert.NotContains(t, errBody.Error, "connection reset")

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/privateChat/7", nil, nil))
	repo.AssertExpectations(t)
}
