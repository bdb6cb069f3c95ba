package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // Import the sqlite3 driver.
)

// InitDB connects to the SQLite database and creates the schema.
func InitDB(dataSourceName string) (*sql.DB, error) {
	// Ensure the directory for the database file exists.
	dir := filepath.Dir(dataSourceName)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Foreign keys are off by default in sqlite; without them the ON DELETE
	// CASCADE clauses below are inert and deleting a chat orphans its rows.
	db, err := sql.Open("sqlite3", dataSourceName+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Enable WAL mode for better concurrency.
	// This allows readers to not block writers.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		slog.Warn("Failed to enable WAL mode for SQLite, continuing without it.", "error", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return db, nil
}

// createTables executes the SQL statements to create the database schema.
func createTables(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS chats (
			id TEXT PRIMARY KEY,
			user_id TEXT,
			session_id TEXT,
			title TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			CHECK ((user_id IS NULL) != (session_id IS NULL))
		);
		CREATE INDEX IF NOT EXISTS idx_chats_user_id_updated_at ON chats(user_id, updated_at DESC);
		CREATE INDEX IF NOT EXISTS idx_chats_session_id_updated_at ON chats(session_id, updated_at DESC);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			chat_id TEXT NOT NULL,
			parent_id TEXT,
			role TEXT NOT NULL CHECK(role IN ('system', 'user', 'assistant', 'tool')),
			content TEXT NOT NULL,
			parts TEXT,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (chat_id) REFERENCES chats(id) ON DELETE CASCADE,
			FOREIGN KEY (parent_id) REFERENCES messages(id) ON DELETE SET NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_chat_id_created_at ON messages(chat_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_messages_parent_id ON messages(parent_id);

		CREATE TABLE IF NOT EXISTS tool_calls (
			id TEXT PRIMARY KEY CHECK(length(id) <= 64),
			message_id TEXT NOT NULL,
			tool_name TEXT NOT NULL,
			input TEXT,
			output TEXT,
			status TEXT NOT NULL CHECK(status IN ('pending', 'success', 'error')),
			error TEXT,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE
		);
		CREATE INDEX IF NOT EXISTS idx_tool_calls_message_id ON tool_calls(message_id);

		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`
	_, err := db.Exec(schema)
	return err
}
