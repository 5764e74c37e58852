package models

import (
	"fmt"
	"time"
)

// Event is a scheduled, geolocated activity with a capped participant roster.
// ParticipantCount mirrors the number of EventParticipant rows and is the
// column guarded by the conditional join write.
type Event struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Title            string    `gorm:"not null;index" json:"title"`
	Description      string    `gorm:"type:text;not null" json:"description"`
	Type             string    `gorm:"not null;index" json:"type"`
	Subtype          *string   `json:"subtype"`
	Location         string    `gorm:"not null" json:"location"`
	LocationLat      *float64  `json:"locationLAT"`
	LocationLng      *float64  `json:"locationLNG"`
	EntryFee         float64   `gorm:"default:0" json:"entryFee"`
	StartTime        time.Time `gorm:"not null;index" json:"startTime"`
	EndTime          time.Time `gorm:"not null" json:"endTime"`
	MaxParticipants  int       `gorm:"not null" json:"maxParticipants"`
	OrganizerID      uint      `gorm:"not null;index" json:"organizer"`
	ParticipantCount int       `gorm:"not null;default:0" json:"participantCount"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`

	// Participants holds roster user ids in join order.
	Participants []uint `gorm:"-" json:"participants"`
}

// HasEnded reports whether the event's end time is at or before now.
func (e *Event) HasEnded(now time.Time) bool {
	return !now.Before(e.EndTime)
}

// IsFull reports whether the roster has reached capacity.
func (e *Event) IsFull() bool {
	return len(e.Participants) >= e.MaxParticipants
}

// HasParticipant reports whether userID is on the roster.
func (e *Event) HasParticipant(userID uint) bool {
	for _, id := range e.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

// ChatRoomKey returns the relay room key for the event's group chat.
func (e *Event) ChatRoomKey() string {
	return EventRoomKey(e.ID)
}

// EventRoomKey formats the relay room key for an event id.
func EventRoomKey(eventID uint) string {
	return fmt.Sprintf("chat_%d", eventID)
}

// EventParticipant is one roster entry. The composite primary key makes a
// duplicate join impossible at the storage layer.
type EventParticipant struct {
	EventID  uint      `gorm:"primaryKey;autoIncrement:false" json:"eventId"`
	UserID   uint      `gorm:"primaryKey;autoIncrement:false;index" json:"userId"`
	JoinedAt time.Time `gorm:"not null;index" json:"joinedAt"`
}

// EventView is an event with its organizer and participants populated.
type EventView struct {
	*Event
	Organizer    *UserSummary  `json:"organizer"`
	Participants []UserSummary `json:"participants"`
}

// EventWithOrganizer populates only the organizer; participants stay ids.
type EventWithOrganizer struct {
	*Event
	Organizer *UserSummary `json:"organizer"`
}

// EventWithDistance annotates an event with its distance in kilometres from a user.
type EventWithDistance struct {
	*Event
	Distance *float64 `json:"distance,omitempty"`
}

// EventFilter narrows event listings. Zero values are ignored.
type EventFilter struct {
	Type        string
	Subtype     string
	StartDate   *time.Time
	EndDate     *time.Time
	Lat         *float64
	Lng         *float64
	MaxDistance float64
	UpcomingAt  *time.Time
}

// MapData is the payload rendered on the client map: users and events with coordinates.
type MapData struct {
	Users  []UserSummary `json:"users"`
	Events []MapEvent    `json:"events"`
}

// MapEvent is the reduced event projection used by MapData.
type MapEvent struct {
	ID          uint     `json:"id"`
	Title       string   `json:"title"`
	Type        string   `json:"type"`
	Subtype     *string  `json:"subtype"`
	Location    string   `json:"location"`
	LocationLat *float64 `json:"locationLAT"`
	LocationLng *float64 `json:"locationLNG"`
}
