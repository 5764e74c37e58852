package repository

import (
	"context"
	"errors"
	"time"

	"huddle/internal/models"
	"huddle/internal/observability"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	privateChatsCollection = "private_chats"
	countersCollection     = "counters"
)

type mongoPrivateMessage struct {
	ID        uint      `bson:"id"`
	SenderID  uint      `bson:"sender_id"`
	Message   string    `bson:"message"`
	Timestamp time.Time `bson:"timestamp"`
}

type mongoPrivateChat struct {
	ID           uint                  `bson:"_id"`
	ParticipantA uint                  `bson:"participant_a"`
	ParticipantB uint                  `bson:"participant_b"`
	UserLowID    uint                  `bson:"user_low"`
	UserHighID   uint                  `bson:"user_high"`
	CreatedAt    time.Time             `bson:"created_at"`
	Messages     []mongoPrivateMessage `bson:"messages"`
}

func (d *mongoPrivateChat) toModel() *models.PrivateChat {
	chat := &models.PrivateChat{
		ID:           d.ID,
		ParticipantA: d.ParticipantA,
		ParticipantB: d.ParticipantB,
		UserLowID:    d.UserLowID,
		UserHighID:   d.UserHighID,
		CreatedAt:    d.CreatedAt,
		Messages:     make([]models.PrivateMessage, 0, len(d.Messages)),
	}
	for _, m := range d.Messages {
		chat.Messages = append(chat.Messages, models.PrivateMessage{
			ID:        m.ID,
			ChatID:    d.ID,
			SenderID:  m.SenderID,
			Message:   m.Message,
			Timestamp: m.Timestamp,
		})
	}
	chat.FillParticipants()
	return chat
}

// mongoPrivateChatRepository keeps each chat as one document with its
// messages embedded, appended with $push. Numeric ids come from a counters
// collection so chat ids stay interchangeable with the SQL store.
type mongoPrivateChatRepository struct {
	chats    *mongo.Collection
	counters *mongo.Collection
	log      *observability.RepoLogger
}

// NewMongoPrivateChatRepository returns a document-store PrivateChatRepository
// and ensures its indexes exist.
func NewMongoPrivateChatRepository(ctx context.Context, db *mongo.Database) (PrivateChatRepository, error) {
	r := &mongoPrivateChatRepository{
		chats:    db.Collection(privateChatsCollection),
		counters: db.Collection(countersCollection),
		log:      observability.NewRepoLogger(privateChatsCollection),
	}
	_, err := r.chats.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_low", Value: 1}, {Key: "user_high", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_private_chat_pair"),
		},
		{Keys: bson.D{{Key: "participant_a", Value: 1}}},
		{Keys: bson.D{{Key: "participant_b", Value: 1}}},
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *mongoPrivateChatRepository) nextID(ctx context.Context, name string) (uint, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, err
	}
	return uint(counter.Seq), nil
}

func (r *mongoPrivateChatRepository) findOne(ctx context.Context, filter bson.M) (*mongoPrivateChat, error) {
	var doc mongoPrivateChat
	err := r.chats.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *mongoPrivateChatRepository) FindByPair(ctx context.Context, a, b uint) (*models.PrivateChat, error) {
	low, high := models.PairKey(a, b)
	doc, err := r.findOne(ctx, bson.M{"user_low": low, "user_high": high})
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if doc == nil {
		return nil, nil
	}
	return doc.toModel(), nil
}

func (r *mongoPrivateChatRepository) Create(ctx context.Context, chat *models.PrivateChat) error {
	id, err := r.nextID(ctx, privateChatsCollection)
	if err != nil {
		return models.NewInternalError(err)
	}
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = time.Now().UTC()
	}
	doc := mongoPrivateChat{
		ID:           id,
		ParticipantA: chat.ParticipantA,
		ParticipantB: chat.ParticipantB,
		UserLowID:    chat.UserLowID,
		UserHighID:   chat.UserHighID,
		CreatedAt:    chat.CreatedAt,
		Messages:     []mongoPrivateMessage{},
	}
	if _, err := r.chats.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicatePair
		}
		r.log.LogError(ctx, err, "create")
		return models.NewInternalError(err)
	}
	chat.ID = id
	chat.FillParticipants()
	r.log.LogCreate(ctx, map[string]interface{}{"chat_id": id})
	return nil
}

func (r *mongoPrivateChatRepository) GetByID(ctx context.Context, id uint) (*models.PrivateChat, error) {
	doc, err := r.findOne(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if doc == nil {
		return nil, models.NewNotFoundError("Private chat", id)
	}
	return doc.toModel(), nil
}

func (r *mongoPrivateChatRepository) AppendMessage(ctx context.Context, chatID uint, msg *models.PrivateMessage) error {
	id, err := r.nextID(ctx, "private_messages")
	if err != nil {
		return models.NewInternalError(err)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	res, err := r.chats.UpdateOne(ctx,
		bson.M{"_id": chatID},
		bson.M{"$push": bson.M{"messages": mongoPrivateMessage{
			ID:        id,
			SenderID:  msg.SenderID,
			Message:   msg.Message,
			Timestamp: msg.Timestamp,
		}}},
	)
	if err != nil {
		r.log.LogError(ctx, err, "append_message")
		return models.NewInternalError(err)
	}
	if res.MatchedCount == 0 {
		return models.NewNotFoundError("Private chat", chatID)
	}
	msg.ID = id
	msg.ChatID = chatID
	r.log.LogCreate(ctx, map[string]interface{}{"chat_id": chatID, "message_id": id})
	return nil
}

func (r *mongoPrivateChatRepository) ListForUser(ctx context.Context, userID uint) ([]models.PrivateChat, error) {
	cur, err := r.chats.Find(ctx,
		bson.M{"$or": bson.A{bson.M{"participant_a": userID}, bson.M{"participant_b": userID}}},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	defer cur.Close(ctx)

	var docs []mongoPrivateChat
	if err := cur.All(ctx, &docs); err != nil {
		return nil, models.NewInternalError(err)
	}
	chats := make([]models.PrivateChat, 0, len(docs))
	for i := range docs {
		chats = append(chats, *docs[i].toModel())
	}
	return chats, nil
}
