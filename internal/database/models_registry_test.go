package database

import (
	"testing"

	"huddle/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestPersistentModels_IncludesRosterAndChatTables(t *testing.T) {
	var sawParticipant, sawPrivate bool
	for _, model := range PersistentModels() {
		switch model.(type) {
		case *models.EventParticipant:
			sawParticipant = true
		case *models.PrivateChat:
			sawPrivate = true
		}
	}
	assert.True(t, sawParticipant, "PersistentModels should include EventParticipant")
	assert.True(t, sawPrivate, "PersistentModels should include PrivateChat")
}

func TestMigrate_SQLite(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, Migrate(db))

	m := db.Migrator()
	for _, table := range []string{"users", "follows", "events", "event_participants", "chat_messages", "private_chats", "private_messages"} {
		assert.True(t, m.HasTable(table), table)
	}
	assert.True(t, m.HasIndex(&models.PrivateChat{}, "idx_private_chat_pair"))

	// Idempotent.
	require.NoError(t, Migrate(db))
}
