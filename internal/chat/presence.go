// ABOUTME: Agent presence operations: status changes, heartbeats, the stale-agent sweep
// ABOUTME: Going offline cascades: every held conversation returns to the queue

package chat

import (
	"context"
	"time"

	"github.com/orbiterp/livedesk/internal/agent"
	"github.com/orbiterp/livedesk/internal/notify"
)

// SetAgentStatus updates an agent's presence. Setting the same status twice
// is a no-op. Going offline releases every conversation the agent holds
// back into the queue, leaving the agent with zero load.
func (s *Service) SetAgentStatus(ctx context.Context, agentID string, status agent.Status) error {
	changed, err := s.pool.SetStatus(ctx, agentID, status)
	if err != nil {
		return mapErr(err)
	}

	if status == agent.StatusOffline {
		s.releaseAgentConversations(ctx, agentID)
	}

	if changed {
		s.broadcastAgentStatus(ctx, agentID, status)
	}
	return nil
}

// Heartbeat records liveness for the agent's presence timeout.
func (s *Service) Heartbeat(agentID string) {
	s.pool.Heartbeat(agentID)
}

// SweepStaleAgents marks agents without a recent heartbeat offline and runs
// the offline cascade for each. Returns how many agents were marked.
func (s *Service) SweepStaleAgents(ctx context.Context, olderThan time.Duration) int {
	stale := s.pool.MarkStale(olderThan)
	for _, agentID := range stale {
		s.releaseAgentConversations(ctx, agentID)
		s.broadcastAgentStatus(ctx, agentID, agent.StatusOffline)
	}
	return len(stale)
}

// releaseAgentConversations implements the offline cascade: each held
// conversation is released, its capacity slot freed, and the conversation
// requeued with a fresh arrival time. Safe to call when the agent holds
// nothing.
func (s *Service) releaseAgentConversations(ctx context.Context, agentID string) {
	owned := s.registry.ConversationsByAgent(agentID)
	if len(owned) == 0 {
		return
	}

	for _, conv := range owned {
		if err := s.registry.Release(conv.ID, agentID); err != nil {
			s.logger.Error("offline cascade failed to release conversation",
				"conversation_id", conv.ID,
				"agent_id", agentID,
				"error", err)
			continue
		}
		if err := s.pool.Release(agentID); err != nil {
			s.logger.Error("offline cascade failed to free capacity",
				"agent_id", agentID,
				"conversation_id", conv.ID,
				"error", err)
		}
		s.requeue(ctx, conv.ID, "agent went offline")
	}

	s.logger.Info("requeued conversations for offline agent",
		"agent_id", agentID,
		"count", len(owned))
}

func (s *Service) broadcastAgentStatus(ctx context.Context, agentID string, status agent.Status) {
	payload := notify.AgentStatusPayload{
		AgentID: agentID,
		Status:  string(status),
	}
	if snap, ok := s.pool.Get(agentID); ok {
		payload.Load = snap.Load
		payload.MaxCapacity = snap.MaxCapacity
	}
	s.fanout.Broadcast(ctx, notify.NewEvent(notify.EventAgentStatusChanged, agentID, payload))
}
