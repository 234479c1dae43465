// ABOUTME: Filtered and full-text conversation queries for history and search
// ABOUTME: Implements QueryConversations and SearchConversations over SQLite

package store

import (
	"context"
	"fmt"
	"time"
)

// QueryConversations returns conversations matching the query filters,
// ordered by most recent activity first.
func (s *SQLiteStore) QueryConversations(ctx context.Context, q ConversationQuery) ([]*Conversation, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	var args []any
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE 1=1`

	if q.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(q.Status))
	}
	if q.Department != "" {
		query += ` AND department = ?`
		args = append(args, q.Department)
	}
	if q.AgentID != "" {
		query += ` AND assigned_agent_id = ?`
		args = append(args, q.AgentID)
	}
	if q.Since != nil {
		query += ` AND last_activity_at >= ?`
		args = append(args, q.Since.UTC().Format(time.RFC3339))
	}
	if q.Until != nil {
		query += ` AND last_activity_at <= ?`
		args = append(args, q.Until.UTC().Format(time.RFC3339))
	}

	query += ` ORDER BY last_activity_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, q.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	return collectConversations(rows)
}

// SearchConversations finds conversations whose customer fields, tags, or
// message bodies contain the given text. Matches are ordered by most recent
// activity first. Deleted messages are excluded from the body search.
func (s *SQLiteStore) SearchConversations(ctx context.Context, text string, limit int) ([]*Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	pattern := "%" + text + "%"
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations c
		WHERE c.customer_name LIKE ?
		   OR c.customer_email LIKE ?
		   OR c.tags LIKE ?
		   OR EXISTS (
				SELECT 1 FROM messages m
				WHERE m.conversation_id = c.id AND m.deleted = 0 AND m.body LIKE ?
		   )
		ORDER BY c.last_activity_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, pattern, pattern, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("searching conversations: %w", err)
	}
	defer rows.Close()

	return collectConversations(rows)
}
