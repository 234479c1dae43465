// Package store provides persistent storage for the support desk using SQLite.
//
// # Architecture
//
// The Store interface is the durable mirror of the in-memory conversation
// registry. Writes from the routing layer are best-effort: a failed write is
// logged by the caller and never blocks a state transition, so the SQLite
// database can lag behind memory but never contradicts it for live traffic.
// On restart the registry and queue are rebuilt from ListOpenConversations.
//
// # Data Models
//
//   - Conversation: One support session, from waiting through closed
//   - Message: Individual utterances (text, image, file, system)
//   - AgentProfile: Durable agent identity and capacity for the directory
//
// Typing signals and agent presence are deliberately not stored here; they
// are ephemeral and live in internal/typing and internal/agent.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Timestamps are stored as RFC3339 UTC strings so lexical ordering matches
// chronological ordering. Tags, metadata and attachments are JSON columns.
//
// # Error Handling
//
//   - ErrNotFound: Requested entity does not exist
//
// All methods accept context.Context for cancellation support.
//
// # Testing
//
// Use NewMockStore() for unit tests; it implements Store entirely in memory
// and can be told to fail writes (FailWrites) to exercise soft-failure paths.
// Use NewSQLiteStore with a t.TempDir() path for integration tests.
package store
