package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"huddle/internal/middleware"
	"huddle/internal/models"
	"huddle/internal/observability"
	"huddle/internal/repository"
	"huddle/internal/validation"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
)

// PrivateChatService gates two-party chats on mutual follows and keeps one
// chat per unordered pair.
type PrivateChatService struct {
	chatRepo   repository.PrivateChatRepository
	followRepo repository.FollowRepository
	userRepo   repository.UserRepository
	resolving  singleflight.Group
	now        func() time.Time
}

// NewPrivateChatService returns a new PrivateChatService.
func NewPrivateChatService(
	chatRepo repository.PrivateChatRepository,
	followRepo repository.FollowRepository,
	userRepo repository.UserRepository,
) *PrivateChatService {
	return &PrivateChatService{
		chatRepo:   chatRepo,
		followRepo: followRepo,
		userRepo:   userRepo,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// GetOrCreate returns the chat for {a, b}, creating it when absent. Both
// users must exist and follow each other.
func (s *PrivateChatService) GetOrCreate(ctx context.Context, a, b uint) (chat *models.PrivateChat, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "PrivateChatService", "GetOrCreate",
		attribute.Int64("user.a", int64(a)), attribute.Int64("user.b", int64(b)))
	defer func() { observability.EndSpan(span, err) }()

	for _, id := range []uint{a, b} {
		ok, err := s.userRepo.Exists(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, models.NewNotFoundError("User(s)", id)
		}
	}

	mutual, err := s.followRepo.IsMutual(ctx, a, b)
	if err != nil {
		return nil, err
	}
	if !mutual {
		observability.PrivateChatResolutions.WithLabelValues("denied").Inc()
		return nil, models.NewForbiddenError("Private chat requires mutual following.")
	}

	low, high := models.PairKey(a, b)
	key := fmt.Sprintf("%d:%d", low, high)
	// The shared call must outlive any single caller's cancellation.
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.resolving.Do(key, func() (interface{}, error) {
		return s.findOrCreate(shared, a, b)
	})
	if err != nil {
		return nil, err
	}
	found := *v.(*models.PrivateChat)
	return &found, nil
}

func (s *PrivateChatService) findOrCreate(ctx context.Context, a, b uint) (*models.PrivateChat, error) {
	existing, err := s.chatRepo.FindByPair(ctx, a, b)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		observability.PrivateChatResolutions.WithLabelValues("existing").Inc()
		return existing, nil
	}

	chat := models.NewPrivateChat(a, b)
	chat.CreatedAt = s.now()
	err = s.chatRepo.Create(ctx, chat)
	switch {
	case err == nil:
		observability.PrivateChatResolutions.WithLabelValues("created").Inc()
		return chat, nil
	case errors.Is(err, repository.ErrDuplicatePair):
		// Another instance created the pair between our read and write.
		existing, err = s.chatRepo.FindByPair(ctx, a, b)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, models.NewInternalError(repository.ErrDuplicatePair)
		}
		observability.PrivateChatResolutions.WithLabelValues("existing").Inc()
		return existing, nil
	default:
		return nil, err
	}
}

// Get returns the chat with every message's sender populated.
func (s *PrivateChatService) Get(ctx context.Context, chatID uint) (*models.PrivateChat, error) {
	chat, err := s.chatRepo.GetByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if err := s.populateSenders(ctx, []*models.PrivateChat{chat}); err != nil {
		return nil, err
	}
	return chat, nil
}

// PostMessage appends a message. Mutual follow is not re-checked here: a
// chat stays writable after either side unfollows.
func (s *PrivateChatService) PostMessage(ctx context.Context, chatID, senderID uint, message string) (*models.PrivateMessage, error) {
	if err := validation.ValidateMessage(message); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if senderID == 0 {
		return nil, models.NewValidationError("Sender is required")
	}

	msg := &models.PrivateMessage{
		SenderID:  senderID,
		Message:   message,
		Timestamp: s.now(),
	}
	if err := s.chatRepo.AppendMessage(ctx, chatID, msg); err != nil {
		return nil, err
	}
	msg.RoomKey = models.PrivateRoomKey(chatID)

	// The message is already durable; a failed lookup only leaves it unpopulated.
	senders, err := s.userRepo.GetSummaries(ctx, []uint{senderID}, models.SenderFields)
	if err != nil {
		middleware.Logger.WarnContext(ctx, "Failed to populate private message sender", "chat_id", chatID, "error", err)
		return msg, nil
	}
	if sum, ok := senders[senderID]; ok {
		msg.Sender = &sum
	}
	return msg, nil
}

// ListForUser returns userID's chats whose other participant is currently a
// mutual follow of userID. Chats whose mutual status lapsed are hidden.
func (s *PrivateChatService) ListForUser(ctx context.Context, userID uint) ([]models.PrivateChatView, error) {
	ok, err := s.userRepo.Exists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.NewNotFoundError("User", userID)
	}

	mutuals, err := s.followRepo.Mutuals(ctx, userID)
	if err != nil {
		return nil, err
	}
	mutualSet := make(map[uint]struct{}, len(mutuals))
	for _, id := range mutuals {
		mutualSet[id] = struct{}{}
	}

	chats, err := s.chatRepo.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	visible := make([]*models.PrivateChat, 0, len(chats))
	for i := range chats {
		if _, ok := mutualSet[chats[i].Other(userID)]; ok {
			visible = append(visible, &chats[i])
		}
	}
	if err := s.populateSenders(ctx, visible); err != nil {
		return nil, err
	}

	participantIDs := make([]uint, 0, 2*len(visible))
	for _, c := range visible {
		participantIDs = append(participantIDs, c.Participants...)
	}
	people, err := s.userRepo.GetSummaries(ctx, participantIDs, models.SenderFields)
	if err != nil {
		return nil, err
	}

	out := make([]models.PrivateChatView, 0, len(visible))
	for _, c := range visible {
		view := models.PrivateChatView{PrivateChat: c, Participants: make([]models.UserSummary, 0, 2)}
		for _, id := range c.Participants {
			if p, ok := people[id]; ok {
				view.Participants = append(view.Participants, p)
			}
		}
		out = append(out, view)
	}
	return out, nil
}

// ListAvailablePartners returns mutual follows of userID who do not yet
// share a chat with userID.
func (s *PrivateChatService) ListAvailablePartners(ctx context.Context, userID uint) ([]models.UserSummary, error) {
	ok, err := s.userRepo.Exists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.NewNotFoundError("User", userID)
	}

	mutuals, err := s.followRepo.Mutuals(ctx, userID)
	if err != nil {
		return nil, err
	}
	chats, err := s.chatRepo.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	taken := make(map[uint]struct{}, len(chats))
	for _, c := range chats {
		taken[c.Other(userID)] = struct{}{}
	}

	candidates := make([]uint, 0, len(mutuals))
	for _, id := range mutuals {
		if _, ok := taken[id]; !ok {
			candidates = append(candidates, id)
		}
	}
	return orderedSummaries(ctx, s.userRepo, candidates, models.ParticipantFields)
}

func (s *PrivateChatService) populateSenders(ctx context.Context, chats []*models.PrivateChat) error {
	seen := map[uint]struct{}{}
	ids := []uint{}
	for _, c := range chats {
		for _, m := range c.Messages {
			if _, ok := seen[m.SenderID]; !ok {
				seen[m.SenderID] = struct{}{}
				ids = append(ids, m.SenderID)
			}
		}
	}
	if len(ids) == 0 {
		return nil
	}
	senders, err := s.userRepo.GetSummaries(ctx, ids, models.SenderFields)
	if err != nil {
		return err
	}
	for _, c := range chats {
		for i := range c.Messages {
			if sum, ok := senders[c.Messages[i].SenderID]; ok {
				c.Messages[i].Sender = &sum
			}
		}
	}
	return nil
}
