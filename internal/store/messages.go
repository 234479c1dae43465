// ABOUTME: Message persistence for conversation history
// ABOUTME: Save, list, mark-read and soft-delete operations on the messages table

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SaveMessage persists a message. Typing signals never reach this layer.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *Message) error {
	msgType := msg.Type
	if msgType == "" {
		msgType = MessageTypeText
	}

	attachJSON, err := encodeJSON(msg.Attachments)
	if err != nil {
		return fmt.Errorf("encoding attachments: %w", err)
	}

	query := `
		INSERT INTO messages (id, conversation_id, sender, sender_id, type, body, attachments, read, deleted, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		msg.ID,
		msg.ConversationID,
		string(msg.Sender),
		nullString(msg.SenderID),
		string(msgType),
		msg.Body,
		attachJSON,
		msg.Read,
		msg.Deleted,
		msg.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	s.logger.Debug("saved message", "id", msg.ID, "conversation_id", msg.ConversationID, "sender", msg.Sender)
	return nil
}

// ListRecentMessages retrieves the most recent `limit` non-deleted messages
// for a conversation, returned in chronological order (oldest first).
// If limit is 0 or negative, all messages are returned.
func (s *SQLiteStore) ListRecentMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	var query string
	var args []any

	if limit > 0 {
		// Get the N most recent messages, but return them in chronological order
		query = `
			SELECT id, conversation_id, sender, sender_id, type, body, attachments, read, deleted, created_at
			FROM (
				SELECT id, conversation_id, sender, sender_id, type, body, attachments, read, deleted, created_at
				FROM messages
				WHERE conversation_id = ? AND deleted = 0
				ORDER BY created_at DESC
				LIMIT ?
			)
			ORDER BY created_at ASC
		`
		args = []any{conversationID, limit}
	} else {
		query = `
			SELECT id, conversation_id, sender, sender_id, type, body, attachments, read, deleted, created_at
			FROM messages
			WHERE conversation_id = ? AND deleted = 0
			ORDER BY created_at ASC
		`
		args = []any{conversationID}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}

	return messages, nil
}

func scanMessage(row rowScanner) (*Message, error) {
	var msg Message
	var senderID, attachJSON sql.NullString
	var createdAt string

	err := row.Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.Sender,
		&senderID,
		&msg.Type,
		&msg.Body,
		&attachJSON,
		&msg.Read,
		&msg.Deleted,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	msg.SenderID = senderID.String
	if attachJSON.Valid {
		// Best effort: invalid JSON leaves attachments empty
		_ = json.Unmarshal([]byte(attachJSON.String), &msg.Attachments)
	}

	msg.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing message created_at: %w", err)
	}

	return &msg, nil
}

// MarkMessagesRead flags every unread customer message in a conversation as
// read. Called when an agent joins or replies.
func (s *SQLiteStore) MarkMessagesRead(ctx context.Context, conversationID string) error {
	query := `
		UPDATE messages SET read = 1
		WHERE conversation_id = ? AND sender = ? AND read = 0
	`

	result, err := s.db.ExecContext(ctx, query, conversationID, string(SenderCustomer))
	if err != nil {
		return fmt.Errorf("marking messages read: %w", err)
	}

	if n, err := result.RowsAffected(); err == nil && n > 0 {
		s.logger.Debug("marked messages read", "conversation_id", conversationID, "count", n)
	}
	return nil
}

// SoftDeleteMessage flags a message as deleted without removing the row.
// Returns ErrNotFound if the message doesn't exist in the conversation.
func (s *SQLiteStore) SoftDeleteMessage(ctx context.Context, conversationID, messageID string) error {
	query := `UPDATE messages SET deleted = 1 WHERE id = ? AND conversation_id = ?`

	result, err := s.db.ExecContext(ctx, query, messageID, conversationID)
	if err != nil {
		return fmt.Errorf("deleting message: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("soft deleted message", "id", messageID, "conversation_id", conversationID)
	return nil
}
