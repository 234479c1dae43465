// ABOUTME: Conversation lifecycle operations: initiate, join, leave, transfer, close
// ABOUTME: Capacity is reserved before any commit so rejected requests change nothing

package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/orbiterp/livedesk/internal/notify"
	"github.com/orbiterp/livedesk/internal/store"
)

// InitiateRequest starts a new support conversation.
type InitiateRequest struct {
	CustomerID    string
	CustomerName  string
	CustomerEmail string
	Department    string
	Priority      store.Priority
	Source        string
	// InitialMessage, when set, is recorded as the customer's first message.
	InitialMessage string
	Metadata       map[string]string
}

// Receipt tells the customer where their conversation stands.
type Receipt struct {
	ConversationID  string
	Status          store.Status
	AssignedAgentID string
	// QueuePosition is 1-based; zero when assigned immediately.
	QueuePosition int
	// EstimatedWait is zero when assigned immediately.
	EstimatedWait time.Duration
}

// JoinResult hands the joining agent the conversation plus recent backlog.
type JoinResult struct {
	Conversation   store.Conversation
	RecentMessages []*store.Message
}

// InitiateChat registers the conversation, enqueues it, and tries an
// immediate assignment. It never blocks waiting for an agent: when nobody
// is free the receipt carries the queue position and wait estimate.
// Customer identity is optional: anonymous sessions queue and route like
// any other.
func (s *Service) InitiateChat(ctx context.Context, req InitiateRequest) (*Receipt, error) {
	department := req.Department
	if department == "" {
		department = DefaultDepartment
	}
	priority := req.Priority
	if !priority.Valid() {
		priority = store.PriorityMedium
	}

	now := time.Now().UTC()
	conv := &store.Conversation{
		ID:             uuid.New().String(),
		CustomerID:     req.CustomerID,
		CustomerName:   req.CustomerName,
		CustomerEmail:  req.CustomerEmail,
		Department:     department,
		Priority:       priority,
		Status:         store.StatusWaiting,
		Source:         req.Source,
		Metadata:       req.Metadata,
		CreatedAt:      now,
		LastActivityAt: now,
	}

	if err := s.registry.Add(conv); err != nil {
		return nil, mapErr(err)
	}
	s.persistConversation(*conv)

	s.logger.Info("conversation initiated",
		"conversation_id", conv.ID,
		"customer_id", conv.CustomerID,
		"department", department,
		"priority", priority)

	if req.InitialMessage != "" {
		msg := &store.Message{
			ID:             newMessageID(),
			ConversationID: conv.ID,
			Sender:         store.SenderCustomer,
			SenderID:       req.CustomerID,
			Type:           store.MessageTypeText,
			Body:           req.InitialMessage,
			CreatedAt:      now,
		}
		if err := s.recordMessage(ctx, msg); err != nil {
			s.logger.Error("failed to record initial message",
				"conversation_id", conv.ID,
				"error", err)
		}
	}

	s.queue.Push(conv.ID, priority.Weight(), department, now)

	s.fanout.Broadcast(ctx, notify.NewEvent(
		notify.EventConversationQueued, conv.ID, notify.ConversationPayload{
			ConversationID: conv.ID,
			Department:     department,
			Priority:       string(priority),
			Status:         string(store.StatusWaiting),
			QueuePosition:  s.queue.Position(conv.ID),
			EstimatedWait:  s.router.EstimateWait(department).String(),
		}))

	if s.router.TryAssign(ctx, conv.ID) {
		assigned, err := s.registry.Get(conv.ID)
		if err != nil {
			return nil, mapErr(err)
		}
		return &Receipt{
			ConversationID:  conv.ID,
			Status:          assigned.Status,
			AssignedAgentID: assigned.AssignedAgentID,
		}, nil
	}

	return &Receipt{
		ConversationID: conv.ID,
		Status:         store.StatusWaiting,
		QueuePosition:  s.queue.Position(conv.ID),
		EstimatedWait:  s.router.EstimateWait(department),
	}, nil
}

// JoinConversation manually assigns a waiting conversation to the given
// agent. Unlike auto-assignment the agent may be away or busy, but never
// offline, and capacity is always enforced.
func (s *Service) JoinConversation(ctx context.Context, conversationID, agentID string) (*JoinResult, error) {
	if _, err := s.pool.Register(ctx, agentID); err != nil {
		return nil, mapErr(err)
	}

	if err := s.pool.Reserve(agentID); err != nil {
		return nil, mapErr(err)
	}

	if err := s.registry.Assign(conversationID, agentID); err != nil {
		if relErr := s.pool.Release(agentID); relErr != nil {
			s.logger.Error("failed to unwind join reservation",
				"agent_id", agentID, "error", relErr)
		}
		return nil, mapErr(err)
	}

	s.queue.Remove(conversationID)

	// Joining means reading the backlog.
	if err := s.registry.MarkRead(conversationID); err != nil {
		s.logger.Warn("failed to reset unread counter",
			"conversation_id", conversationID, "error", err)
	}
	s.markMessagesRead(conversationID)
	s.persistCurrent(conversationID)

	conv, err := s.registry.Get(conversationID)
	if err != nil {
		return nil, mapErr(err)
	}

	recent, err := s.store.ListRecentMessages(ctx, conversationID, recentMessageWindow)
	if err != nil {
		s.logger.Error("failed to load recent messages",
			"conversation_id", conversationID, "error", err)
		recent = nil
	}

	assignedEvent := notify.NewEvent(
		notify.EventConversationAssigned, conversationID, notify.ConversationPayload{
			ConversationID: conversationID,
			Department:     conv.Department,
			Priority:       string(conv.Priority),
			Status:         string(conv.Status),
			AgentID:        agentID,
		})
	s.fanout.Agent(ctx, agentID, assignedEvent)
	s.fanout.Conversation(ctx, conversationID, notify.NewEvent(
		notify.EventAgentJoined, conversationID, notify.ConversationPayload{
			ConversationID: conversationID,
			AgentID:        agentID,
			Status:         string(conv.Status),
		}))

	s.logger.Info("agent joined conversation",
		"conversation_id", conversationID,
		"agent_id", agentID)

	return &JoinResult{Conversation: conv, RecentMessages: recent}, nil
}

// LeaveConversation returns an assigned conversation to the queue. The
// conversation re-enters its priority band with a fresh arrival time.
func (s *Service) LeaveConversation(ctx context.Context, conversationID, agentID string) error {
	if err := s.registry.Release(conversationID, agentID); err != nil {
		return mapErr(err)
	}

	if err := s.pool.Release(agentID); err != nil {
		s.logger.Error("failed to release agent capacity",
			"agent_id", agentID,
			"conversation_id", conversationID,
			"error", err)
	}

	s.requeue(ctx, conversationID, "agent left")

	s.fanout.Conversation(ctx, conversationID, notify.NewEvent(
		notify.EventAgentLeft, conversationID, notify.ConversationPayload{
			ConversationID: conversationID,
			AgentID:        agentID,
			Status:         string(store.StatusWaiting),
		}))

	s.logger.Info("agent left conversation",
		"conversation_id", conversationID,
		"agent_id", agentID)
	return nil
}

// TransferConversation hands a conversation to another agent. The target's
// capacity is reserved before anything changes, so a full target leaves the
// conversation untouched with the original agent.
func (s *Service) TransferConversation(ctx context.Context, conversationID, fromAgentID, toAgentID, reason string) error {
	if _, err := s.pool.Register(ctx, toAgentID); err != nil {
		return mapErr(err)
	}

	if err := s.pool.Reserve(toAgentID); err != nil {
		return mapErr(err)
	}

	if err := s.registry.Transfer(conversationID, fromAgentID, toAgentID); err != nil {
		if relErr := s.pool.Release(toAgentID); relErr != nil {
			s.logger.Error("failed to unwind transfer reservation",
				"agent_id", toAgentID, "error", relErr)
		}
		return mapErr(err)
	}

	if err := s.pool.Release(fromAgentID); err != nil {
		s.logger.Error("failed to release transferring agent",
			"agent_id", fromAgentID,
			"conversation_id", conversationID,
			"error", err)
	}

	s.persistCurrent(conversationID)

	body := fmt.Sprintf("Conversation transferred from %s to %s",
		s.agentName(fromAgentID), s.agentName(toAgentID))
	if reason != "" {
		body += ": " + reason
	}
	sysMsg := &store.Message{
		ID:             newMessageID(),
		ConversationID: conversationID,
		Sender:         store.SenderSystem,
		Type:           store.MessageTypeSystem,
		Body:           body,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.recordMessage(ctx, sysMsg); err != nil {
		s.logger.Warn("failed to record transfer note",
			"conversation_id", conversationID, "error", err)
	}

	event := notify.NewEvent(
		notify.EventConversationTransferred, conversationID, notify.ConversationPayload{
			ConversationID: conversationID,
			AgentID:        toAgentID,
			FromAgentID:    fromAgentID,
			Status:         string(store.StatusTransferred),
			Reason:         reason,
		})
	s.fanout.Conversation(ctx, conversationID, event)
	s.fanout.Agent(ctx, fromAgentID, event)
	s.fanout.Agent(ctx, toAgentID, event)

	s.logger.Info("conversation transferred",
		"conversation_id", conversationID,
		"from_agent", fromAgentID,
		"to_agent", toAgentID,
		"reason", reason)
	return nil
}

// CloseConversation ends a conversation. With a resolution note it lands in
// resolved (closable later, swept eventually); without one it is closed
// terminally. Agents may only close conversations they hold.
func (s *Service) CloseConversation(ctx context.Context, conversationID, agentID, resolution string) error {
	conv, err := s.registry.Get(conversationID)
	if err != nil {
		return mapErr(err)
	}
	if agentID != "" && conv.AssignedAgentID != "" && conv.AssignedAgentID != agentID {
		return fmt.Errorf("%w: conversation is held by %s", ErrConflict, conv.AssignedAgentID)
	}

	var (
		prevAgent string
		eventType notify.EventType
		status    store.Status
	)
	if resolution != "" {
		prevAgent, err = s.registry.Resolve(conversationID)
		eventType = notify.EventConversationResolved
		status = store.StatusResolved
	} else {
		prevAgent, err = s.registry.Close(conversationID)
		eventType = notify.EventConversationClosed
		status = store.StatusClosed
	}
	if err != nil {
		return mapErr(err)
	}

	if resolution != "" {
		if err := s.registry.SetMetadata(conversationID, "resolution", resolution); err != nil {
			s.logger.Warn("failed to record resolution",
				"conversation_id", conversationID, "error", err)
		}
		if agentID != "" {
			_ = s.registry.SetMetadata(conversationID, "resolved_by", agentID)
		}
	}

	if prevAgent != "" {
		if err := s.pool.Release(prevAgent); err != nil {
			s.logger.Error("failed to release agent capacity on close",
				"agent_id", prevAgent,
				"conversation_id", conversationID,
				"error", err)
		}
	}
	s.queue.Remove(conversationID)
	s.persistCurrent(conversationID)

	event := notify.NewEvent(eventType, conversationID, notify.ConversationPayload{
		ConversationID: conversationID,
		Department:     conv.Department,
		Status:         string(status),
		AgentID:        prevAgent,
		Reason:         resolution,
	})
	s.fanout.Conversation(ctx, conversationID, event)
	if prevAgent != "" {
		s.fanout.Agent(ctx, prevAgent, event)
	}

	s.logger.Info("conversation ended",
		"conversation_id", conversationID,
		"status", status,
		"agent_id", prevAgent)
	return nil
}

// requeue pushes a conversation back into the waiting queue with a fresh
// arrival time (back of its priority band) and announces it.
func (s *Service) requeue(ctx context.Context, conversationID, reason string) {
	conv, err := s.registry.Get(conversationID)
	if err != nil {
		s.logger.Error("cannot requeue unknown conversation",
			"conversation_id", conversationID, "error", err)
		return
	}

	s.queue.Push(conversationID, conv.Priority.Weight(), conv.Department, time.Now().UTC())
	s.persistConversation(conv)

	event := notify.NewEvent(
		notify.EventConversationRequeued, conversationID, notify.ConversationPayload{
			ConversationID: conversationID,
			Department:     conv.Department,
			Priority:       string(conv.Priority),
			Status:         string(store.StatusWaiting),
			QueuePosition:  s.queue.Position(conversationID),
			Reason:         reason,
		})
	s.fanout.Conversation(ctx, conversationID, event)
	s.fanout.Broadcast(ctx, event)
}

// markMessagesRead flags persisted customer messages read, best-effort.
func (s *Service) markMessagesRead(conversationID string) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := s.store.MarkMessagesRead(ctx, conversationID); err != nil {
		s.logger.Warn("failed to mark messages read",
			"conversation_id", conversationID, "error", err)
	}
}
