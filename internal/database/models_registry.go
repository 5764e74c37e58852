package database

import (
	"fmt"
	"log/slog"

	"huddle/internal/middleware"
	"huddle/internal/models"

	"gorm.io/gorm"
)

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Follow{},
		&models.Event{},
		&models.EventParticipant{},
		&models.ChatMessage{},
		&models.PrivateChat{},
		&models.PrivateMessage{},
	}
}

// postgresConstraints back the roster and follow invariants in the schema
// itself. SQLite test databases rely on the conditional writes alone.
var postgresConstraints = []struct {
	table, name, check string
}{
	{"events", "chk_events_capacity", "participant_count >= 0 AND participant_count <= max_participants"},
	{"events", "chk_events_window", "end_time > start_time"},
	{"follows", "chk_follows_not_self", "follower_id <> followee_id"},
	{"private_chats", "chk_private_chats_distinct", "user_low_id < user_high_id"},
}

// Migrate creates or updates every table in PersistentModels.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(PersistentModels()...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	if db.Dialector.Name() != "postgres" {
		return nil
	}
	for _, c := range postgresConstraints {
		if db.Migrator().HasConstraint(c.table, c.name) {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s CHECK (%s)", c.table, c.name, c.check)
		if err := db.Exec(stmt).Error; err != nil {
			middleware.Logger.Warn("Failed to add check constraint",
				slog.String("constraint", c.name), slog.String("error", err.Error()))
		}
	}
	return nil
}
