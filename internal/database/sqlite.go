package database

import (
	"fmt"

	"gorm.io/gorm"
)

// sqliteSchema mirrors the migrated Postgres tables. AutoMigrate emits
// Postgres-only column types (uuid, text[]), so SQLite gets plain DDL.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT,
		avatar_url TEXT,
		is_admin INTEGER DEFAULT 0,
		is_frozen INTEGER DEFAULT 0,
		last_active_at DATETIME,
		is_online INTEGER DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS posts (
		id TEXT PRIMARY KEY,
		author_id TEXT NOT NULL,
		text TEXT,
		image_url TEXT,
		likes TEXT,
		is_banned INTEGER DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS comments (
		id TEXT PRIMARY KEY,
		post_id TEXT NOT NULL,
		parent_id TEXT,
		author_id TEXT NOT NULL,
		text TEXT,
		likes TEXT,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		last_message_text TEXT,
		last_message_sender_id TEXT,
		last_message_seen INTEGER DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS conversation_participants (
		conversation_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		created_at DATETIME,
		PRIMARY KEY (conversation_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		text TEXT,
		image_url TEXT,
		seen INTEGER DEFAULT 0,
		delivered INTEGER DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME
	)`,
}

// MigrateSQLite creates the realtime tables in an SQLite database
func MigrateSQLite(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database not initialized")
	}
	for _, stmt := range sqliteSchema {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create sqlite schema: %w", err)
		}
	}
	return nil
}
