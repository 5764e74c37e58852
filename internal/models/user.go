// Package models contains data structures for the application's domain models.
package models

import (
	"time"
)

// Default registration coordinates (central London).
const (
	DefaultLocationLat = 51.5072
	DefaultLocationLng = 0.1276
)

// User is an account holder. Followers and Following are loaded from the
// follows table on demand and are never persisted as columns.
type User struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Username       string    `gorm:"uniqueIndex;size:20;not null" json:"username"`
	Email          string    `gorm:"uniqueIndex;size:40;not null" json:"email"`
	Password       string    `gorm:"not null" json:"-"`
	ProfilePicture string    `gorm:"default:''" json:"profilePicture"`
	LocationLat    *float64  `json:"locationLAT"`
	LocationLng    *float64  `json:"locationLNG"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`

	Followers []uint `gorm:"-" json:"followers,omitempty"`
	Following []uint `gorm:"-" json:"following,omitempty"`
}

// HasLocation reports whether both coordinates are set and non-zero.
func (u *User) HasLocation() bool {
	return u.LocationLat != nil && u.LocationLng != nil && (*u.LocationLat != 0 || *u.LocationLng != 0)
}

// Follow is a directed edge of the follow graph: FollowerID follows FolloweeID.
type Follow struct {
	FollowerID uint      `gorm:"primaryKey;autoIncrement:false" json:"followerId"`
	FolloweeID uint      `gorm:"primaryKey;autoIncrement:false;index" json:"followeeId"`
	CreatedAt  time.Time `json:"createdAt"`
}

// UserSummary is the populated view of a user embedded in other resources.
type UserSummary struct {
	ID             uint     `json:"id"`
	Username       string   `json:"username"`
	Email          string   `json:"email,omitempty"`
	ProfilePicture string   `json:"profilePicture"`
	LocationLat    *float64 `json:"locationLAT,omitempty"`
	LocationLng    *float64 `json:"locationLNG,omitempty"`
}

// Field lists accepted by UserRepository.GetSummaries.
var (
	SenderFields      = []string{"id", "username", "profile_picture"}
	ParticipantFields = []string{"id", "username", "email", "profile_picture"}
	OrganizerFields   = []string{"id", "username", "email"}
	MapFields         = []string{"id", "username", "profile_picture", "location_lat", "location_lng"}
)

// Summary projects a user onto the requested summary fields.
func (u *User) Summary(fields []string) UserSummary {
	s := UserSummary{ID: u.ID}
	for _, f := range fields {
		switch f {
		case "username":
			s.Username = u.Username
		case "email":
			s.Email = u.Email
		case "profile_picture":
			s.ProfilePicture = u.ProfilePicture
		case "location_lat":
			s.LocationLat = u.LocationLat
		case "location_lng":
			s.LocationLng = u.LocationLng
		}
	}
	return s
}
