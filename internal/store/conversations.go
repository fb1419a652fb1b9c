package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateConversation inserts a new conversation
func (db *DB) CreateConversation(ctx context.Context, c *Conversation) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO conversations (id, user_id, created_at) VALUES (?, ?, ?)
	`, c.ID, c.UserID, c.CreatedAt.Format(time.RFC3339))
	return err
}

// GetConversation returns a conversation owned by userID
func (db *DB) GetConversation(ctx context.Context, userID int64, id string) (*Conversation, error) {
	var c Conversation
	var createdAt string
	err := db.QueryRowContext(ctx, `
		SELECT id, user_id, created_at FROM conversations WHERE id = ? AND user_id = ?
	`, id, userID).Scan(&c.ID, &c.UserID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	c.CreatedAt = parseTimestamp(createdAt)
	return &c, nil
}

// AppendMessage adds a message to a conversation
func (db *DB) AppendMessage(ctx context.Context, m *Message) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, role, content, created_at)
		VALUES (?, ?, ?, ?)
	`, m.ConversationID, m.Role, m.Content, m.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("appending message: %w", err)
	}
	m.ID, err = res.LastInsertId()
	return err
}

// RecentMessages returns the last limit messages of a conversation in chronological order
func (db *DB) RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, created_at
		FROM (
			SELECT id, conversation_id, role, content, created_at
			FROM messages
			WHERE conversation_id = ?
			ORDER BY id DESC
			LIMIT ?
		)
		ORDER BY id ASC
	`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		var createdAt string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &createdAt); err != nil {
			return nil, err
		}
		m.CreatedAt = parseTimestamp(createdAt)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
