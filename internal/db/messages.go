package db

import (
	"strings"

	"github.com/toolhub/toolhub/internal/models"
)

// snippetRadius bounds keyword-search excerpts to this many characters on
// each side of the match.
const snippetRadius = 80

// AddMessage appends a message to a conversation and bumps the
// conversation's updated_at. Returns ErrNotFound if the conversation does
// not exist.
func (db *Database) AddMessage(convID int64, role, content string) (int64, error) {
	tx, err := db.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(
		"SELECT COUNT(*) FROM conversations WHERE id = ?", convID).Scan(&exists); err != nil {
		return 0, err
	}
	if exists == 0 {
		return 0, ErrNotFound
	}

	var id int64
	err = tx.QueryRow(`
        INSERT INTO messages (conversation_id, role, content, created_at)
        VALUES (?, ?, ?, `+nowExpr+`)
        RETURNING id`, convID, role, content).Scan(&id)
	if err != nil {
		return 0, err
	}

	if _, err := tx.Exec(
		"UPDATE conversations SET updated_at = "+nowExpr+" WHERE id = ?", convID); err != nil {
		return 0, err
	}

	return id, tx.Commit()
}

// GetMessages returns a conversation's messages in append order.
func (db *Database) GetMessages(convID int64) ([]models.Message, error) {
	query := `
        SELECT id, conversation_id, role, content, created_at
        FROM messages
        WHERE conversation_id = ?
        ORDER BY id ASC`

	rows, err := db.db.Query(query, convID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.ConvID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (db *Database) CountMessages(convID int64) (int, error) {
	var n int
	err := db.db.QueryRow(
		"SELECT COUNT(*) FROM messages WHERE conversation_id = ?", convID).Scan(&n)
	return n, err
}

// SearchMessages does a case-insensitive substring match over all message
// content, newest matches first. instr() sidesteps LIKE wildcard escaping.
func (db *Database) SearchMessages(keyword string) ([]models.KeywordResult, error) {
	rows, err := db.db.Query(`
        SELECT c.id, c.title, m.content
        FROM messages m
        JOIN conversations c ON c.id = m.conversation_id
        WHERE instr(lower(m.content), lower(?)) > 0
        ORDER BY m.created_at DESC, m.id DESC`, keyword)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]models.KeywordResult, 0)
	for rows.Next() {
		var r models.KeywordResult
		var content string
		if err := rows.Scan(&r.ConvID, &r.Title, &content); err != nil {
			return nil, err
		}
		r.Snippet = snippet(content, keyword)
		results = append(results, r)
	}
	return results, rows.Err()
}

// snippet returns an excerpt of content centred on the first
// case-insensitive occurrence of keyword.
func snippet(content, keyword string) string {
	idx := strings.Index(strings.ToLower(content), strings.ToLower(keyword))
	if idx < 0 {
		idx = 0
	}

	start := idx - snippetRadius
	if start < 0 {
		start = 0
	}
	end := idx + len(keyword) + snippetRadius
	if end > len(content) {
		end = len(content)
	}

	s := content[start:end]
	if start > 0 {
		s = "…" + s
	}
	if end < len(content) {
		s = s + "…"
	}
	return s
}
