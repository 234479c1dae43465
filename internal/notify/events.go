// ABOUTME: Event envelope, event types, and delivery targets for client notifications
// ABOUTME: Defines the wire shape shared by the in-memory hub and the AMQP transport

package notify

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a routing state change. The set is closed; consumers
// switch on it.
type EventType string

const (
	EventConversationQueued      EventType = "conversation_queued"
	EventConversationAssigned    EventType = "conversation_assigned"
	EventConversationRequeued    EventType = "conversation_requeued"
	EventConversationTransferred EventType = "conversation_transferred"
	EventConversationResolved    EventType = "conversation_resolved"
	EventConversationClosed      EventType = "conversation_closed"
	EventAgentJoined             EventType = "agent_joined"
	EventAgentLeft               EventType = "agent_left"
	EventMessageCreated          EventType = "message_created"
	EventTyping                  EventType = "typing"
	EventAgentStatusChanged      EventType = "agent_status_changed"
)

// Meta carries event identity and tracing fields.
type Meta struct {
	// Unique event ID
	ID string `json:"id"`
	// Event name, e.g. conversation_assigned
	Type EventType `json:"type"`
	// Timestamp when the event was emitted
	OccurredAt time.Time `json:"occurred_at"`
	// Emitting service
	Producer string `json:"producer,omitempty"`
	// Trace / request correlation ID, usually the conversation ID
	CorrelationID string `json:"correlation_id,omitempty"`
}

// Event is the envelope delivered to clients over every transport.
type Event struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// producerName identifies this service in event metadata.
const producerName = "livedesk"

// NewEvent builds an envelope with a fresh ID and timestamp.
func NewEvent(eventType EventType, correlationID string, data any) Event {
	return Event{
		Meta: Meta{
			ID:            uuid.New().String(),
			Type:          eventType,
			OccurredAt:    time.Now().UTC(),
			Producer:      producerName,
			CorrelationID: correlationID,
		},
		Data: data,
	}
}

// TargetKind selects which audience an event goes to.
type TargetKind string

const (
	// TargetConversation reaches the customer and current agent of one conversation.
	TargetConversation TargetKind = "conversation"
	// TargetAgent reaches a single agent's private stream.
	TargetAgent TargetKind = "agent"
	// TargetBroadcast reaches every connected agent.
	TargetBroadcast TargetKind = "broadcast"
	// TargetTopic reaches subscribers of an explicit topic.
	TargetTopic TargetKind = "topic"
)

// Target is one delivery audience. Kinds are never conflated: a
// conversation event does not leak to the agent broadcast and vice versa.
type Target struct {
	Kind TargetKind
	ID   string // conversation ID, agent ID, or topic name; empty for broadcast
}

// ConversationTarget addresses the participants of one conversation.
func ConversationTarget(conversationID string) Target {
	return Target{Kind: TargetConversation, ID: conversationID}
}

// AgentTarget addresses a single agent.
func AgentTarget(agentID string) Target {
	return Target{Kind: TargetAgent, ID: agentID}
}

// BroadcastTarget addresses all connected agents.
func BroadcastTarget() Target {
	return Target{Kind: TargetBroadcast}
}

// TopicTarget addresses subscribers of a named topic.
func TopicTarget(name string) Target {
	return Target{Kind: TargetTopic, ID: name}
}

// Key returns the routing key for this target, used both as the in-memory
// subscription key and as the AMQP topic routing key.
func (t Target) Key() string {
	switch t.Kind {
	case TargetConversation:
		return "chat.conversation." + t.ID
	case TargetAgent:
		return "chat.agent." + t.ID
	case TargetBroadcast:
		return "chat.agents"
	case TargetTopic:
		return "chat.topic." + t.ID
	default:
		return "chat.unknown"
	}
}

// ConversationPayload is the data body for conversation lifecycle events.
type ConversationPayload struct {
	ConversationID string `json:"conversation_id"`
	Department     string `json:"department,omitempty"`
	Priority       string `json:"priority,omitempty"`
	Status         string `json:"status,omitempty"`
	AgentID        string `json:"agent_id,omitempty"`
	FromAgentID    string `json:"from_agent_id,omitempty"`
	QueuePosition  int    `json:"queue_position,omitempty"`
	EstimatedWait  string `json:"estimated_wait,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// MessagePayload is the data body for message_created events.
type MessagePayload struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Sender         string `json:"sender"`
	SenderID       string `json:"sender_id,omitempty"`
	Type           string `json:"type"`
	Body           string `json:"body,omitempty"`
}

// TypingPayload is the data body for typing events.
type TypingPayload struct {
	ConversationID string `json:"conversation_id"`
	ActorID        string `json:"actor_id"`
}

// AgentStatusPayload is the data body for agent_status_changed events.
type AgentStatusPayload struct {
	AgentID     string `json:"agent_id"`
	Status      string `json:"status"`
	Load        int    `json:"load"`
	MaxCapacity int    `json:"max_capacity"`
}
