// ABOUTME: Store interface and data types for livedesk persistence
// ABOUTME: Defines Conversation, Message, AgentProfile structs and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Status is the lifecycle state of a conversation
type Status string

const (
	StatusWaiting     Status = "waiting"     // In the queue, no agent assigned
	StatusActive      Status = "active"      // An agent is handling it
	StatusTransferred Status = "transferred" // Handed between agents, still live
	StatusResolved    Status = "resolved"    // Closed with a resolution note
	StatusClosed      Status = "closed"      // Terminal
)

// Open reports whether the status still occupies the registry and may
// hold queue or agent capacity.
func (s Status) Open() bool {
	return s == StatusWaiting || s == StatusActive || s == StatusTransferred
}

// Assigned reports whether the status requires an assigned agent.
func (s Status) Assigned() bool {
	return s == StatusActive || s == StatusTransferred
}

// Priority orders waiting conversations in the queue
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Weight maps a priority to its queue ordering weight. Unknown values
// rank with medium so malformed rows never jump the queue.
func (p Priority) Weight() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	case PriorityUrgent:
		return 4
	default:
		return 2
	}
}

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Sender identifies which side of the conversation authored a message
type Sender string

const (
	SenderCustomer Sender = "customer"
	SenderAgent    Sender = "agent"
	SenderSystem   Sender = "system"
)

// MessageType categorizes message content
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeFile   MessageType = "file"
	MessageTypeSystem MessageType = "system"
	// MessageTypeTyping is accepted at the send boundary but routed to the
	// typing tracker; it is never persisted and the schema rejects it.
	MessageTypeTyping MessageType = "typing"
)

// Conversation is a support session between a customer and (eventually) an agent.
// The in-memory registry owns the live copy; rows here are the durable mirror.
type Conversation struct {
	ID              string
	CustomerID      string
	CustomerName    string
	CustomerEmail   string
	Department      string
	Priority        Priority
	Status          Status
	AssignedAgentID string // empty while waiting/resolved/closed
	MessageCount    int
	UnreadCount     int // customer messages the assigned agent has not seen
	Tags            []string
	Source          string // originating surface, e.g. "storefront", "mobile"
	Metadata        map[string]string
	CreatedAt       time.Time
	LastActivityAt  time.Time
	AssignedAt      *time.Time
	ResolvedAt      *time.Time
	ClosedAt        *time.Time
}

// Attachment is a file reference carried by a message
type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
}

// Message is a single utterance within a conversation. Typing signals are
// never stored as messages.
type Message struct {
	ID             string
	ConversationID string
	Sender         Sender
	SenderID       string
	Type           MessageType
	Body           string
	Attachments    []Attachment
	Read           bool
	Deleted        bool // soft delete; rows are never removed
	CreatedAt      time.Time
}

// AgentProfile is the durable identity of a support agent. Presence and
// load live in the agent pool, not here.
type AgentProfile struct {
	ID          string
	Name        string
	Department  string
	MaxCapacity int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ConversationQuery filters QueryConversations results. Zero values mean
// "no filter" for that field.
type ConversationQuery struct {
	Status     Status
	Department string
	AgentID    string
	Since      *time.Time
	Until      *time.Time
	Limit      int // 1-500, defaults to 50
	Offset     int
}

// Store defines the interface for conversation and message persistence.
// All writes from the router are best-effort: callers log failures and keep
// going, so implementations must never be required for correctness of the
// in-memory state.
type Store interface {
	// Conversations
	UpsertConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListOpenConversations(ctx context.Context) ([]*Conversation, error)
	QueryConversations(ctx context.Context, q ConversationQuery) ([]*Conversation, error)
	SearchConversations(ctx context.Context, text string, limit int) ([]*Conversation, error)

	// Messages
	SaveMessage(ctx context.Context, msg *Message) error
	ListRecentMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error)
	MarkMessagesRead(ctx context.Context, conversationID string) error
	SoftDeleteMessage(ctx context.Context, conversationID, messageID string) error

	// Agent profiles
	UpsertAgent(ctx context.Context, agent *AgentProfile) error
	GetAgent(ctx context.Context, id string) (*AgentProfile, error)
	ListAgents(ctx context.Context) ([]*AgentProfile, error)

	// Close releases any resources held by the store
	Close() error
}
