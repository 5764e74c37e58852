package service

import (
	"testing"

	"huddle/internal/repository"
	"huddle/internal/testutil"

	"gorm.io/gorm"
)

type fixture struct {
	db        *gorm.DB
	users     repository.UserRepository
	follows   repository.FollowRepository
	events    repository.EventRepository
	chats     repository.EventChatRepository
	private   repository.PrivateChatRepository
	userSvc   *UserService
	followSvc *FollowService
	eventSvc  *EventService
	chatSvc   *EventChatService
	dmSvc     *PrivateChatService
}

const testSecret = "service-test-secret"

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	f := &fixture{
		db:      db,
		users:   repository.NewUserRepository(db),
		follows: repository.NewFollowRepository(db),
		events:  repository.NewEventRepository(db),
		chats:   repository.NewEventChatRepository(db),
		private: repository.NewPrivateChatRepository(db),
	}
	f.userSvc = NewUserService(f.users, f.follows, testSecret)
	f.followSvc = NewFollowService(f.follows, f.users)
	f.eventSvc = NewEventService(f.events, f.users)
	f.chatSvc = NewEventChatService(f.chats, f.events, f.users)
	f.dmSvc = NewPrivateChatService(f.private, f.follows, f.users)
	return f
}
