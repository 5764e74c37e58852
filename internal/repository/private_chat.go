package repository

import (
	"context"
	"errors"

	"huddle/internal/models"
	"huddle/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PrivateChatRepository stores two-party chats and their messages. At most
// one chat exists per unordered pair of users.
type PrivateChatRepository interface {
	FindByPair(ctx context.Context, a, b uint) (*models.PrivateChat, error)
	Create(ctx context.Context, chat *models.PrivateChat) error
	GetByID(ctx context.Context, id uint) (*models.PrivateChat, error)
	AppendMessage(ctx context.Context, chatID uint, msg *models.PrivateMessage) error
	ListForUser(ctx context.Context, userID uint) ([]models.PrivateChat, error)
}

type privateChatRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewPrivateChatRepository creates the SQL-backed private chat store.
func NewPrivateChatRepository(db *gorm.DB) PrivateChatRepository {
	return &privateChatRepository{db: db, log: observability.NewRepoLogger("private_chats")}
}

func orderedMessages(db *gorm.DB) *gorm.DB {
	return db.Order("timestamp ASC, id ASC")
}

// FindByPair returns the chat for {a, b} in either order, or nil.
func (r *privateChatRepository) FindByPair(ctx context.Context, a, b uint) (*models.PrivateChat, error) {
	low, high := models.PairKey(a, b)
	var chat models.PrivateChat
	if err := r.db.WithContext(ctx).
		Preload("Messages", orderedMessages).
		Where("user_low_id = ? AND user_high_id = ?", low, high).
		First(&chat).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	chat.FillParticipants()
	return &chat, nil
}

// Create inserts chat unless its pair already has one, in which case
// ErrDuplicatePair is returned and the caller should re-read the pair.
func (r *privateChatRepository) Create(ctx context.Context, chat *models.PrivateChat) error {
	res := r.db.WithContext(ctx).
		Omit("Messages").
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(chat)
	if res.Error != nil {
		if isUniqueConstraintError(res.Error) {
			return ErrDuplicatePair
		}
		r.log.LogError(ctx, res.Error, "create")
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrDuplicatePair
	}
	chat.FillParticipants()
	r.log.LogCreate(ctx, map[string]interface{}{"chat_id": chat.ID})
	return nil
}

func (r *privateChatRepository) GetByID(ctx context.Context, id uint) (*models.PrivateChat, error) {
	var chat models.PrivateChat
	if err := r.db.WithContext(ctx).Preload("Messages", orderedMessages).First(&chat, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Private chat", id)
		}
		return nil, models.NewInternalError(err)
	}
	chat.FillParticipants()
	return &chat, nil
}

// AppendMessage stores msg at the end of the chat's history.
func (r *privateChatRepository) AppendMessage(ctx context.Context, chatID uint, msg *models.PrivateMessage) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.PrivateChat{}).Where("id = ?", chatID).Count(&count).Error; err != nil {
		return models.NewInternalError(err)
	}
	if count == 0 {
		return models.NewNotFoundError("Private chat", chatID)
	}

	msg.ChatID = chatID
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		r.log.LogError(ctx, err, "append_message")
		return models.NewInternalError(err)
	}
	r.log.LogCreate(ctx, map[string]interface{}{"chat_id": chatID, "message_id": msg.ID})
	return nil
}

func (r *privateChatRepository) ListForUser(ctx context.Context, userID uint) ([]models.PrivateChat, error) {
	chats := []models.PrivateChat{}
	if err := r.db.WithContext(ctx).
		Preload("Messages", orderedMessages).
		Where("participant_a = ? OR participant_b = ?", userID, userID).
		Order("created_at ASC, id ASC").
		Find(&chats).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	for i := range chats {
		chats[i].FillParticipants()
	}
	return chats, nil
}
