// Package testutil provides shared fixtures for backend tests.
package testutil

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"huddle/internal/config"
	"huddle/internal/database"
	"huddle/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var seq uint64

// NewTestDB opens a migrated SQLite database private to t.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	cfg := &config.Config{
		Env:        "test",
		DBDriver:   "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "huddle_test.db"),
	}
	db, err := database.Connect(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// CreateUser inserts a user with a unique username and email.
func CreateUser(t *testing.T, db *gorm.DB, name string) *models.User {
	t.Helper()
	n := atomic.AddUint64(&seq, 1)
	lat, lng := models.DefaultLocationLat, models.DefaultLocationLng
	user := &models.User{
		Username:    fmt.Sprintf("%s%d", name, n),
		Email:       fmt.Sprintf("%s%d@example.com", name, n),
		Password:    "hashed",
		LocationLat: &lat,
		LocationLng: &lng,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// Follow inserts the edge follower -> followee.
func Follow(t *testing.T, db *gorm.DB, follower, followee uint) {
	t.Helper()
	require.NoError(t, db.Create(&models.Follow{FollowerID: follower, FolloweeID: followee}).Error)
}

// Befriend makes a and b follow each other.
func Befriend(t *testing.T, db *gorm.DB, a, b uint) {
	t.Helper()
	Follow(t, db, a, b)
	Follow(t, db, b, a)
}

// EventOption adjusts an event fixture before it is stored.
type EventOption func(*models.Event)

// WithCapacity sets MaxParticipants.
func WithCapacity(n int) EventOption {
	return func(e *models.Event) { e.MaxParticipants = n }
}

// WithWindow sets the start and end time.
func WithWindow(start, end time.Time) EventOption {
	return func(e *models.Event) {
		e.StartTime = start
		e.EndTime = end
	}
}

// WithCoordinates sets the event location.
func WithCoordinates(lat, lng float64) EventOption {
	return func(e *models.Event) {
		e.LocationLat = &lat
		e.LocationLng = &lng
	}
}

// CreateEvent stores an open event organised by organizerID, with the
// organizer already on the roster. The organizer's join time is backdated a
// minute so later joins sort after it.
func CreateEvent(t *testing.T, db *gorm.DB, organizerID uint, opts ...EventOption) *models.Event {
	t.Helper()
	now := time.Now().UTC()
	event := &models.Event{
		Title:           fmt.Sprintf("Event %d", atomic.AddUint64(&seq, 1)),
		Description:     "Five-a-side in the park",
		Type:            "sports",
		Location:        "Hyde Park",
		StartTime:       now.Add(time.Hour),
		EndTime:         now.Add(3 * time.Hour),
		MaxParticipants: 10,
		OrganizerID:     organizerID,
	}
	for _, opt := range opts {
		opt(event)
	}
	event.ParticipantCount = 1
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(event).Error; err != nil {
			return err
		}
		return tx.Create(&models.EventParticipant{EventID: event.ID, UserID: organizerID, JoinedAt: now.Add(-time.Minute)}).Error
	}))
	event.Participants = []uint{organizerID}
	return event
}
