// Package db is the single source of truth for conversations, messages and
// message embeddings, backed by a local SQLite file. Every mutating call is
// atomic; other components read and write through this package only.
package db

import (
	"database/sql"
	"errors"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a referenced conversation or message does
// not exist. Mutating calls never ignore a missing row silently.
var ErrNotFound = errors.New("db: not found")

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    title TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id INTEGER NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS embeddings (
    message_id INTEGER PRIMARY KEY,
    vector TEXT NOT NULL,
    FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);
CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at);`

// nowExpr yields millisecond-resolution timestamps; CURRENT_TIMESTAMP only
// resolves to seconds, too coarse for recency ordering.
const nowExpr = "strftime('%Y-%m-%d %H:%M:%f','now')"

type Database struct {
	db *sql.DB
}

func New(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Single connection: writes within one conversation must serialize,
	// and a shared pool avoids SQLITE_BUSY from concurrent writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &Database{db: db}, nil
}

func (db *Database) Close() error {
	return db.db.Close()
}
