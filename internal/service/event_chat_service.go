package service

import (
	"context"
	"time"

	"huddle/internal/models"
	"huddle/internal/repository"
	"huddle/internal/validation"
)

// EventChatService handles an event's group chat.
type EventChatService struct {
	chatRepo  repository.EventChatRepository
	eventRepo repository.EventRepository
	userRepo  repository.UserRepository
	now       func() time.Time
}

// NewEventChatService returns a new EventChatService.
func NewEventChatService(chatRepo repository.EventChatRepository, eventRepo repository.EventRepository, userRepo repository.UserRepository) *EventChatService {
	return &EventChatService{
		chatRepo:  chatRepo,
		eventRepo: eventRepo,
		userRepo:  userRepo,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Post stores a message and returns it with the sender populated and the
// relay room key set, ready for the client to broadcast.
func (s *EventChatService) Post(ctx context.Context, eventID, senderID uint, message string) (*models.ChatMessage, error) {
	if err := validation.ValidateMessage(message); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if _, err := s.eventRepo.GetByID(ctx, eventID); err != nil {
		return nil, err
	}
	senders, err := s.userRepo.GetSummaries(ctx, []uint{senderID}, models.SenderFields)
	if err != nil {
		return nil, err
	}
	sender, ok := senders[senderID]
	if !ok {
		return nil, models.NewNotFoundError("User", senderID)
	}

	msg := &models.ChatMessage{
		EventID:   eventID,
		SenderID:  senderID,
		Message:   message,
		Timestamp: s.now(),
	}
	if err := s.chatRepo.Create(ctx, msg); err != nil {
		return nil, err
	}
	msg.Sender = &sender
	msg.ChatID = models.EventRoomKey(eventID)
	return msg, nil
}

// List returns the event's messages oldest first with senders populated.
func (s *EventChatService) List(ctx context.Context, eventID uint) ([]models.ChatMessage, error) {
	msgs, err := s.chatRepo.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.SenderID)
	}
	senders, err := s.userRepo.GetSummaries(ctx, ids, models.ParticipantFields)
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		if sum, ok := senders[msgs[i].SenderID]; ok {
			msgs[i].Sender = &sum
		}
	}
	return msgs, nil
}
