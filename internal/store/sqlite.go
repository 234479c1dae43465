// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides conversation/message/agent persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id                TEXT PRIMARY KEY,
			customer_id       TEXT,
			customer_name     TEXT,
			customer_email    TEXT,
			department        TEXT NOT NULL DEFAULT 'general',
			priority          TEXT NOT NULL DEFAULT 'medium',
			status            TEXT NOT NULL DEFAULT 'waiting',
			assigned_agent_id TEXT,
			message_count     INTEGER NOT NULL DEFAULT 0,
			unread_count      INTEGER NOT NULL DEFAULT 0,
			tags              TEXT,
			source            TEXT,
			metadata          TEXT,
			created_at        TEXT NOT NULL,
			last_activity_at  TEXT NOT NULL,
			assigned_at       TEXT,
			resolved_at       TEXT,
			closed_at         TEXT,

			CHECK (priority IN ('low', 'medium', 'high', 'urgent')),
			CHECK (status IN ('waiting', 'active', 'transferred', 'resolved', 'closed'))
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_status ON conversations(status);
		CREATE INDEX IF NOT EXISTS idx_conversations_department ON conversations(department);
		CREATE INDEX IF NOT EXISTS idx_conversations_agent ON conversations(assigned_agent_id);
		CREATE INDEX IF NOT EXISTS idx_conversations_activity ON conversations(last_activity_at);

		CREATE TABLE IF NOT EXISTS messages (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			sender          TEXT NOT NULL,
			sender_id       TEXT,
			type            TEXT NOT NULL DEFAULT 'text',
			body            TEXT,
			attachments     TEXT,
			read            INTEGER NOT NULL DEFAULT 0,
			deleted         INTEGER NOT NULL DEFAULT 0,
			created_at      TEXT NOT NULL,

			FOREIGN KEY (conversation_id) REFERENCES conversations(id),
			CHECK (sender IN ('customer', 'agent', 'system')),
			CHECK (type IN ('text', 'image', 'file', 'system'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages(conversation_id, created_at);

		CREATE TABLE IF NOT EXISTS agents (
			id           TEXT PRIMARY KEY,
			name         TEXT NOT NULL,
			department   TEXT NOT NULL DEFAULT 'general',
			max_capacity INTEGER NOT NULL DEFAULT 3,
			created_at   TEXT NOT NULL,
			updated_at   TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_agents_department ON agents(department);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

const conversationColumns = `id, customer_id, customer_name, customer_email, department,
	priority, status, assigned_agent_id, message_count, unread_count, tags, source,
	metadata, created_at, last_activity_at, assigned_at, resolved_at, closed_at`

// UpsertConversation inserts a conversation or updates it in place.
// Safe to call repeatedly with the same ID; created_at is kept from the
// first write so restart recovery preserves queue fairness.
func (s *SQLiteStore) UpsertConversation(ctx context.Context, conv *Conversation) error {
	tagsJSON, err := encodeJSON(conv.Tags)
	if err != nil {
		return fmt.Errorf("encoding tags: %w", err)
	}
	metaJSON, err := encodeJSON(conv.Metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	query := `
		INSERT INTO conversations (` + conversationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			customer_id       = excluded.customer_id,
			customer_name     = excluded.customer_name,
			customer_email    = excluded.customer_email,
			department        = excluded.department,
			priority          = excluded.priority,
			status            = excluded.status,
			assigned_agent_id = excluded.assigned_agent_id,
			message_count     = excluded.message_count,
			unread_count      = excluded.unread_count,
			tags              = excluded.tags,
			source            = excluded.source,
			metadata          = excluded.metadata,
			last_activity_at  = excluded.last_activity_at,
			assigned_at       = excluded.assigned_at,
			resolved_at       = excluded.resolved_at,
			closed_at         = excluded.closed_at
	`

	_, err = s.db.ExecContext(ctx, query,
		conv.ID,
		nullString(conv.CustomerID),
		nullString(conv.CustomerName),
		nullString(conv.CustomerEmail),
		conv.Department,
		string(conv.Priority),
		string(conv.Status),
		nullString(conv.AssignedAgentID),
		conv.MessageCount,
		conv.UnreadCount,
		tagsJSON,
		nullString(conv.Source),
		metaJSON,
		conv.CreatedAt.UTC().Format(time.RFC3339),
		conv.LastActivityAt.UTC().Format(time.RFC3339),
		nullTime(conv.AssignedAt),
		nullTime(conv.ResolvedAt),
		nullTime(conv.ClosedAt),
	)
	if err != nil {
		return fmt.Errorf("upserting conversation: %w", err)
	}

	s.logger.Debug("upserted conversation", "id", conv.ID, "status", conv.Status)
	return nil
}

// GetConversation retrieves a conversation by ID.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = ?`

	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}
	return conv, nil
}

// ListOpenConversations returns every conversation that is still live
// (waiting, active, or transferred) in arrival order. Used to rebuild the
// registry and queue after a restart.
func (s *SQLiteStore) ListOpenConversations(ctx context.Context) ([]*Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE status IN ('waiting', 'active', 'transferred')
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying open conversations: %w", err)
	}
	defer rows.Close()

	return collectConversations(rows)
}

// rowScanner abstracts *sql.Row and *sql.Rows for the shared scan helper
type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var conv Conversation
	var customerID, customerName, customerEmail sql.NullString
	var agentID, tagsJSON, source, metaJSON sql.NullString
	var createdAt, lastActivity string
	var assignedAt, resolvedAt, closedAt sql.NullString

	err := row.Scan(
		&conv.ID,
		&customerID,
		&customerName,
		&customerEmail,
		&conv.Department,
		&conv.Priority,
		&conv.Status,
		&agentID,
		&conv.MessageCount,
		&conv.UnreadCount,
		&tagsJSON,
		&source,
		&metaJSON,
		&createdAt,
		&lastActivity,
		&assignedAt,
		&resolvedAt,
		&closedAt,
	)
	if err != nil {
		return nil, err
	}

	conv.CustomerID = customerID.String
	conv.CustomerName = customerName.String
	conv.CustomerEmail = customerEmail.String
	conv.AssignedAgentID = agentID.String
	conv.Source = source.String

	if tagsJSON.Valid {
		// Best effort: invalid JSON leaves tags empty
		_ = json.Unmarshal([]byte(tagsJSON.String), &conv.Tags)
	}
	if metaJSON.Valid {
		_ = json.Unmarshal([]byte(metaJSON.String), &conv.Metadata)
	}

	conv.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	conv.LastActivityAt, err = time.Parse(time.RFC3339, lastActivity)
	if err != nil {
		return nil, fmt.Errorf("parsing last_activity_at: %w", err)
	}
	conv.AssignedAt = parseNullTime(assignedAt)
	conv.ResolvedAt = parseNullTime(resolvedAt)
	conv.ClosedAt = parseNullTime(closedAt)

	return &conv, nil
}

func collectConversations(rows *sql.Rows) ([]*Conversation, error) {
	var convs []*Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversation rows: %w", err)
	}
	return convs, nil
}

// nullString returns nil for empty strings, otherwise the string
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullTime returns nil for nil times, otherwise the RFC3339 string
func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

// encodeJSON marshals a slice or map column, mapping empty values to NULL
func encodeJSON(v any) (any, error) {
	switch val := v.(type) {
	case []string:
		if len(val) == 0 {
			return nil, nil
		}
	case []Attachment:
		if len(val) == 0 {
			return nil, nil
		}
	case map[string]string:
		if len(val) == 0 {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)
