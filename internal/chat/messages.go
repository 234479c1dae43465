// ABOUTME: Message operations: send (including typing signals), tag, soft delete
// ABOUTME: Typing signals mutate the tracker only and are never persisted

package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/orbiterp/livedesk/internal/notify"
	"github.com/orbiterp/livedesk/internal/store"
)

// SendMessageRequest carries one utterance into a conversation.
type SendMessageRequest struct {
	ConversationID string
	Sender         store.Sender
	// SenderID is the customer or agent identifier behind the message.
	SenderID    string
	Type        store.MessageType
	Body        string
	Attachments []store.Attachment
}

// MessageReceipt acknowledges a sent message. Typing signals return an
// empty MessageID because nothing was stored.
type MessageReceipt struct {
	MessageID string
	Timestamp time.Time
}

// SendMessage records a message in the conversation. Typing-type requests
// feed the typing tracker and fan out an ephemeral typing event instead of
// being persisted.
func (s *Service) SendMessage(ctx context.Context, req SendMessageRequest) (*MessageReceipt, error) {
	if req.ConversationID == "" {
		return nil, fmt.Errorf("conversation_id is required")
	}
	switch req.Sender {
	case store.SenderCustomer, store.SenderAgent, store.SenderSystem:
	default:
		return nil, fmt.Errorf("unknown sender %q", req.Sender)
	}

	if req.Type == store.MessageTypeTyping {
		return s.handleTyping(ctx, req)
	}

	msgType := req.Type
	if msgType == "" {
		msgType = store.MessageTypeText
	}

	now := time.Now().UTC()
	msg := &store.Message{
		ID:             newMessageID(),
		ConversationID: req.ConversationID,
		Sender:         req.Sender,
		SenderID:       req.SenderID,
		Type:           msgType,
		Body:           req.Body,
		Attachments:    req.Attachments,
		CreatedAt:      now,
	}

	if err := s.recordMessage(ctx, msg); err != nil {
		return nil, err
	}

	// The message itself proves the typist finished.
	s.typing.Clear(req.ConversationID, senderKey(req))

	return &MessageReceipt{MessageID: msg.ID, Timestamp: now}, nil
}

// handleTyping arms the typing tracker and tells the conversation about it.
// Nothing is persisted; the signal expires on its own.
func (s *Service) handleTyping(ctx context.Context, req SendMessageRequest) (*MessageReceipt, error) {
	conv, err := s.registry.Get(req.ConversationID)
	if err != nil {
		return nil, mapErr(err)
	}
	if conv.Status == store.StatusClosed {
		return nil, fmt.Errorf("%w: conversation is closed", ErrInvalidState)
	}

	actor := senderKey(req)
	s.typing.Signal(req.ConversationID, actor)

	s.fanout.Conversation(ctx, req.ConversationID, notify.NewEvent(
		notify.EventTyping, req.ConversationID, notify.TypingPayload{
			ConversationID: req.ConversationID,
			ActorID:        actor,
		}))

	return &MessageReceipt{Timestamp: time.Now().UTC()}, nil
}

// Typing reports who is currently typing in the conversation, if anyone.
func (s *Service) Typing(conversationID string) (string, bool) {
	return s.typing.Typist(conversationID)
}

// TagConversation appends tags to the conversation. Already-present tags
// are ignored.
func (s *Service) TagConversation(ctx context.Context, conversationID string, tags ...string) error {
	if err := s.registry.AppendTags(conversationID, tags...); err != nil {
		return mapErr(err)
	}
	s.persistCurrent(conversationID)
	return nil
}

// DeleteMessage soft-deletes a message: it disappears from reads but the
// row stays for audit.
func (s *Service) DeleteMessage(ctx context.Context, conversationID, messageID string) error {
	if err := s.store.SoftDeleteMessage(ctx, conversationID, messageID); err != nil {
		return mapErr(err)
	}
	return nil
}

// senderKey labels the typing actor: the concrete sender ID when known,
// the sender role otherwise.
func senderKey(req SendMessageRequest) string {
	if req.SenderID != "" {
		return req.SenderID
	}
	return string(req.Sender)
}
