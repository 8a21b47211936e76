package database

import (
	"context"
	"fmt"
)

// schema is written in the subset of SQL understood by both postgres and
// sqlite. Timestamps are stored in UTC.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS chats (
		id TEXT PRIMARY KEY,
		chat_name TEXT NOT NULL,
		is_group BOOLEAN NOT NULL,
		created_by TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS chat_participants (
		chat_id TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
		username TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (chat_id, username)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_participants_username ON chat_participants(username)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		chat_id TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
		username TEXT NOT NULL,
		content TEXT NOT NULL,
		sent_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_chat_sent ON messages(chat_id, sent_at)`,
}

// mysqlSchema keys on VARCHAR columns and declares indexes inline, since
// MySQL cannot index TEXT without a prefix length and has no
// CREATE INDEX IF NOT EXISTS.
var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id VARCHAR(36) NOT NULL PRIMARY KEY,
		username VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		created_at DATETIME(6) NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS chats (
		id VARCHAR(36) NOT NULL PRIMARY KEY,
		chat_name VARCHAR(255) NOT NULL,
		is_group BOOLEAN NOT NULL,
		created_by VARCHAR(255) NOT NULL,
		created_at DATETIME(6) NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS chat_participants (
		chat_id VARCHAR(36) NOT NULL,
		username VARCHAR(255) NOT NULL,
		position INT NOT NULL,
		PRIMARY KEY (chat_id, username),
		INDEX idx_chat_participants_username (username),
		CONSTRAINT fk_participants_chat FOREIGN KEY (chat_id) REFERENCES chats(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS messages (
		id VARCHAR(36) NOT NULL PRIMARY KEY,
		chat_id VARCHAR(36) NOT NULL,
		username VARCHAR(255) NOT NULL,
		content MEDIUMTEXT NOT NULL,
		sent_at DATETIME(6) NOT NULL,
		INDEX idx_messages_chat_sent (chat_id, sent_at),
		CONSTRAINT fk_messages_chat FOREIGN KEY (chat_id) REFERENCES chats(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate ensures the required tables are present.
func (db *DB) Migrate(ctx context.Context) error {
	stmts := schema
	if db.DriverName() == DriverMySQL {
		stmts = mysqlSchema
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", db.DriverName(), err)
		}
	}
	return nil
}
