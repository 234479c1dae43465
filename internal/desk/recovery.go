// ABOUTME: Startup recovery: rebuilds the registry and queue from the store
// ABOUTME: A restart is treated like every agent going offline at once

package desk

import (
	"context"
	"fmt"
	"sort"

	"github.com/orbiterp/livedesk/internal/store"
)

// recoverFromStore repopulates the in-memory routing state from the durable
// conversations. Previously assigned conversations return to waiting with
// their assignment cleared: the agents who held them have not reconnected
// yet, and the next sweep re-assigns as presence comes back. Original
// arrival times are preserved so the rebuilt queue keeps its order.
func (d *Desk) recoverFromStore(ctx context.Context) error {
	open, err := d.store.ListOpenConversations(ctx)
	if err != nil {
		return fmt.Errorf("loading open conversations: %w", err)
	}
	if len(open) == 0 {
		d.logger.Info("no open conversations to recover")
		return nil
	}

	// Enqueue oldest first so equal-priority entries keep FIFO order.
	sort.Slice(open, func(i, j int) bool {
		return open[i].CreatedAt.Before(open[j].CreatedAt)
	})

	recovered, requeued := 0, 0
	for _, conv := range open {
		wasAssigned := conv.Status.Assigned()
		if wasAssigned {
			conv.Status = store.StatusWaiting
			conv.AssignedAgentID = ""
			conv.AssignedAt = nil
		}

		if err := d.registry.Add(conv); err != nil {
			d.logger.Error("skipping unrecoverable conversation",
				"conversation_id", conv.ID,
				"error", err)
			continue
		}
		d.queue.Push(conv.ID, conv.Priority.Weight(), conv.Department, conv.CreatedAt)
		recovered++

		if wasAssigned {
			requeued++
			d.persistRecovered(conv)
		}
	}

	d.logger.Info("recovered routing state from store",
		"conversations", recovered,
		"returned_to_queue", requeued)
	return nil
}

// persistRecovered writes back a conversation whose assignment was cleared
// during recovery, best-effort.
func (d *Desk) persistRecovered(conv *store.Conversation) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := d.store.UpsertConversation(ctx, conv); err != nil {
		d.logger.Error("failed to persist recovered conversation",
			"conversation_id", conv.ID,
			"error", err)
	}
}
