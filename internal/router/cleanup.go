// ABOUTME: Periodic cleanup over routing state: close idle conversations, purge old closed ones
// ABOUTME: Both passes log-and-continue per entry; a single failure never aborts the run

package router

import (
	"context"
	"time"

	"github.com/orbiterp/livedesk/internal/notify"
	"github.com/orbiterp/livedesk/internal/store"
)

// CloseIdle closes every conversation whose last activity is older than the
// inactivity threshold, regardless of status. Held agent capacity is
// released and waiting entries leave the queue. Returns how many
// conversations were closed.
func (r *Router) CloseIdle(ctx context.Context) int {
	threshold := r.Settings().InactivityThreshold
	cutoff := time.Now().UTC().Add(-threshold)

	idle := r.registry.IdleSince(cutoff)
	if len(idle) == 0 {
		return 0
	}

	closed := 0
	for _, conv := range idle {
		if ctx.Err() != nil {
			r.logger.Warn("idle cleanup cancelled", "closed", closed)
			return closed
		}

		prevAgent, err := r.registry.Close(conv.ID)
		if err != nil {
			// Raced with a manual close or resolve; nothing to do.
			r.logger.Debug("idle close skipped",
				"conversation_id", conv.ID,
				"error", err)
			continue
		}

		if prevAgent != "" {
			if err := r.pool.Release(prevAgent); err != nil {
				r.logger.Error("failed to release capacity for idle close",
					"agent_id", prevAgent,
					"conversation_id", conv.ID,
					"error", err)
			}
		}
		r.queue.Remove(conv.ID)

		if updated, err := r.registry.Get(conv.ID); err == nil {
			r.persist(updated)
		}

		r.fanout.Conversation(ctx, conv.ID, notify.NewEvent(
			notify.EventConversationClosed, conv.ID, notify.ConversationPayload{
				ConversationID: conv.ID,
				Department:     conv.Department,
				Status:         string(store.StatusClosed),
				Reason:         "inactivity",
			}))

		closed++
	}

	if closed > 0 {
		r.logger.Info("closed idle conversations",
			"closed", closed,
			"threshold", threshold)
	}
	return closed
}

// PurgeClosed forgets closed conversations older than the retention window.
// Their persisted rows remain available through history queries.
func (r *Router) PurgeClosed(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	purged := r.registry.PurgeClosed(r.Settings().ClosedRetention)
	for _, id := range purged {
		// A purged conversation must not linger in the queue; Remove is a
		// no-op when absent.
		r.queue.Remove(id)
	}
	return len(purged)
}
