package db

import (
	"database/sql"
	"errors"

	"github.com/toolhub/toolhub/internal/models"
)

func (db *Database) CreateConversation(title string) (*models.Conversation, error) {
	query := `
        INSERT INTO conversations (title, created_at, updated_at)
        VALUES (?, ` + nowExpr + `, ` + nowExpr + `)
        RETURNING id, created_at, updated_at`

	conv := &models.Conversation{Title: title}
	err := db.db.QueryRow(query, title).Scan(&conv.ID, &conv.CreatedAt, &conv.UpdatedAt)
	return conv, err
}

// ListConversations returns up to limit conversations, most recently
// updated first.
func (db *Database) ListConversations(limit int) ([]models.Conversation, error) {
	query := `
        SELECT id, title, created_at, updated_at
        FROM conversations
        ORDER BY updated_at DESC, id DESC
        LIMIT ?`

	rows, err := db.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conversations := make([]models.Conversation, 0)
	for rows.Next() {
		var conv models.Conversation
		if err := rows.Scan(&conv.ID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

func (db *Database) GetConversation(id int64) (*models.Conversation, error) {
	var conv models.Conversation
	err := db.db.QueryRow(`
        SELECT id, title, created_at, updated_at
        FROM conversations WHERE id = ?`, id).
		Scan(&conv.ID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// UpdateConversationTitle renames a conversation. Renaming counts as an
// update for list ordering purposes.
func (db *Database) UpdateConversationTitle(id int64, title string) error {
	res, err := db.db.Exec(
		`UPDATE conversations SET title = ?, updated_at = `+nowExpr+` WHERE id = ?`,
		title, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteConversation removes the conversation and all of its messages and
// embeddings in one transaction.
func (db *Database) DeleteConversation(id int64) error {
	tx, err := db.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
        DELETE FROM embeddings WHERE message_id IN
            (SELECT id FROM messages WHERE conversation_id = ?)`, id); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM messages WHERE conversation_id = ?", id); err != nil {
		return err
	}
	res, err := tx.Exec("DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}
