package repository

import (
	"context"

	"huddle/internal/models"
	"huddle/internal/observability"

	"gorm.io/gorm"
)

// EventChatRepository stores event group chat messages.
type EventChatRepository interface {
	Create(ctx context.Context, msg *models.ChatMessage) error
	ListByEvent(ctx context.Context, eventID uint) ([]models.ChatMessage, error)
}

type eventChatRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewEventChatRepository creates a new event chat repository
func NewEventChatRepository(db *gorm.DB) EventChatRepository {
	return &eventChatRepository{db: db, log: observability.NewRepoLogger("chat_messages")}
}

func (r *eventChatRepository) Create(ctx context.Context, msg *models.ChatMessage) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		r.log.LogError(ctx, err, "create")
		return models.NewInternalError(err)
	}
	r.log.LogCreate(ctx, map[string]interface{}{"message_id": msg.ID, "event_id": msg.EventID})
	return nil
}

// ListByEvent returns the event's messages oldest first.
func (r *eventChatRepository) ListByEvent(ctx context.Context, eventID uint) ([]models.ChatMessage, error) {
	msgs := []models.ChatMessage{}
	if err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("timestamp ASC, id ASC").
		Find(&msgs).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return msgs, nil
}
