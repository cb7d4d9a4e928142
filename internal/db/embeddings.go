package db

import (
	"encoding/json"

	"github.com/toolhub/toolhub/internal/models"
)

// UpsertMessageEmbedding attaches or replaces the embedding for a message.
// Vectors are stored as JSON text for portability across drivers.
func (db *Database) UpsertMessageEmbedding(messageID int64, vector []float64) error {
	raw, err := json.Marshal(vector)
	if err != nil {
		return err
	}

	tx, err := db.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(
		"SELECT COUNT(*) FROM messages WHERE id = ?", messageID).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}

	if _, err := tx.Exec(`
        INSERT INTO embeddings (message_id, vector) VALUES (?, ?)
        ON CONFLICT(message_id) DO UPDATE SET vector = excluded.vector`,
		messageID, string(raw)); err != nil {
		return err
	}

	return tx.Commit()
}

// MessagesWithEmbeddings returns every message that has an embedding
// attached, joined with its conversation title. Rows whose stored vector
// fails to decode are skipped rather than failing the whole scan.
func (db *Database) MessagesWithEmbeddings() ([]models.EmbeddedMessage, error) {
	rows, err := db.db.Query(`
        SELECT m.id, m.conversation_id, c.title, m.content, e.vector
        FROM embeddings e
        JOIN messages m ON m.id = e.message_id
        JOIN conversations c ON c.id = m.conversation_id
        ORDER BY m.id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.EmbeddedMessage, 0)
	for rows.Next() {
		var em models.EmbeddedMessage
		var raw string
		if err := rows.Scan(&em.MessageID, &em.ConvID, &em.Title, &em.Content, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &em.Vector); err != nil {
			continue
		}
		out = append(out, em)
	}
	return out, rows.Err()
}
