package models

import (
	"strconv"
	"time"
)

// ChatMessage is an append-only message in an event's group chat.
type ChatMessage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	EventID   uint      `gorm:"not null;index:idx_chat_event_ts,priority:1" json:"eventId"`
	SenderID  uint      `gorm:"not null;index" json:"senderId"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	Timestamp time.Time `gorm:"not null;index:idx_chat_event_ts,priority:2" json:"timestamp"`

	Sender *UserSummary `gorm:"-" json:"sender"`
	ChatID string       `gorm:"-" json:"chatId,omitempty"`
}

// PrivateChat is a two-party conversation. UserLowID and UserHighID hold the
// participant ids in ascending order and form the unique pair key, while
// ParticipantA/ParticipantB preserve the order the chat was created with.
type PrivateChat struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ParticipantA uint      `gorm:"not null" json:"-"`
	ParticipantB uint      `gorm:"not null" json:"-"`
	UserLowID    uint      `gorm:"not null;uniqueIndex:idx_private_chat_pair,priority:1" json:"-"`
	UserHighID   uint      `gorm:"not null;uniqueIndex:idx_private_chat_pair,priority:2;index" json:"-"`
	CreatedAt    time.Time `json:"createdAt"`

	Participants []uint           `gorm:"-" json:"participants"`
	Messages     []PrivateMessage `gorm:"foreignKey:ChatID" json:"messages"`
}

// NewPrivateChat builds an unsaved chat for the ordered pair (a, b).
func NewPrivateChat(a, b uint) *PrivateChat {
	low, high := PairKey(a, b)
	return &PrivateChat{
		ParticipantA: a,
		ParticipantB: b,
		UserLowID:    low,
		UserHighID:   high,
		Participants: []uint{a, b},
		Messages:     []PrivateMessage{},
	}
}

// PairKey returns the unordered pair (a, b) as (low, high).
func PairKey(a, b uint) (uint, uint) {
	if a > b {
		return b, a
	}
	return a, b
}

// FillParticipants restores the Participants slice from the stored columns.
func (c *PrivateChat) FillParticipants() {
	c.Participants = []uint{c.ParticipantA, c.ParticipantB}
	if c.Messages == nil {
		c.Messages = []PrivateMessage{}
	}
}

// Other returns the participant that is not userID.
func (c *PrivateChat) Other(userID uint) uint {
	if c.ParticipantA == userID {
		return c.ParticipantB
	}
	return c.ParticipantA
}

// Includes reports whether userID is one of the two participants.
func (c *PrivateChat) Includes(userID uint) bool {
	return c.ParticipantA == userID || c.ParticipantB == userID
}

// RoomKey returns the relay room key for the chat.
func (c *PrivateChat) RoomKey() string {
	return PrivateRoomKey(c.ID)
}

// PrivateMessage is one entry of a private chat, kept in append order.
type PrivateMessage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ChatID    uint      `gorm:"not null;index" json:"-"`
	SenderID  uint      `gorm:"not null" json:"senderId"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	Timestamp time.Time `gorm:"not null" json:"timestamp"`

	Sender *UserSummary `gorm:"-" json:"sender"`
	// RoomKey is set on freshly posted messages so clients can relay them.
	RoomKey string `gorm:"-" json:"chatId,omitempty"`
}

// PrivateChatView is a chat with its participants populated.
type PrivateChatView struct {
	*PrivateChat
	Participants []UserSummary `json:"participants"`
}

// PrivateRoomKey formats the relay room key for a private chat id.
func PrivateRoomKey(chatID uint) string {
	return strconv.FormatUint(uint64(chatID), 10)
}
