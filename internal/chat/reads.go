// ABOUTME: Read-side operations: agent dashboard, history, search, queue status
// ABOUTME: Conversation rows come from the store so dashboard polling never touches the registry

package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/orbiterp/livedesk/internal/agent"
	"github.com/orbiterp/livedesk/internal/store"
)

// Dashboard is an agent's working view: their presence, their open
// conversations, and the state of the queue.
type Dashboard struct {
	Agent         agent.Snapshot
	Conversations []*store.Conversation
	// UnreadTotal sums unread customer messages across the agent's
	// conversations.
	UnreadTotal         int
	WaitingByDepartment map[string]int
	QueueDepth          int
	// EstimatedWait is the current estimate for the agent's own department.
	EstimatedWait time.Duration
	OnlineAgents  int
}

// QueueStatus describes one department's share of the waiting queue.
type QueueStatus struct {
	Department    string
	Size          int
	TotalSize     int
	EstimatedWait time.Duration
}

// AgentDashboard assembles the dashboard. Conversation rows are read from
// the store; only presence and queue figures come from live state, each
// behind its own lock, so frequent polling cannot contend with assignment.
func (s *Service) AgentDashboard(ctx context.Context, agentID string) (*Dashboard, error) {
	snap, err := s.pool.Register(ctx, agentID)
	if err != nil {
		return nil, mapErr(err)
	}

	rows, err := s.store.QueryConversations(ctx, store.ConversationQuery{AgentID: agentID})
	if err != nil {
		return nil, fmt.Errorf("failed to load agent conversations: %w", err)
	}

	var open []*store.Conversation
	unread := 0
	for _, row := range rows {
		if row.Status.Assigned() {
			open = append(open, row)
			unread += row.UnreadCount
		}
	}

	return &Dashboard{
		Agent:               *snap,
		Conversations:       open,
		UnreadTotal:         unread,
		WaitingByDepartment: s.queue.DepartmentCounts(),
		QueueDepth:          s.queue.Len(),
		EstimatedWait:       s.router.EstimateWait(snap.Department),
		OnlineAgents:        s.pool.OnlineCount(),
	}, nil
}

// ConversationHistory queries persisted conversations with the store's
// filter set (status, department, agent, time range, paging).
func (s *Service) ConversationHistory(ctx context.Context, q store.ConversationQuery) ([]*store.Conversation, error) {
	return s.store.QueryConversations(ctx, q)
}

// MessageHistory returns the most recent messages of a conversation in
// chronological order.
func (s *Service) MessageHistory(ctx context.Context, conversationID string, limit int) ([]*store.Message, error) {
	if _, err := s.store.GetConversation(ctx, conversationID); err != nil {
		return nil, mapErr(err)
	}
	return s.store.ListRecentMessages(ctx, conversationID, limit)
}

// SearchConversations finds conversations whose customer fields, tags, or
// message bodies match the text.
func (s *Service) SearchConversations(ctx context.Context, text string, limit int) ([]*store.Conversation, error) {
	return s.store.SearchConversations(ctx, text, limit)
}

// QueueStatus reports the live queue for one department.
func (s *Service) QueueStatus(department string) QueueStatus {
	return QueueStatus{
		Department:    department,
		Size:          s.queue.DepartmentLen(department),
		TotalSize:     s.queue.Len(),
		EstimatedWait: s.router.EstimateWait(department),
	}
}
