// ABOUTME: In-memory fan-out hub for cross-client event delivery
// ABOUTME: Publishes events to all subscribers of a target key without blocking

package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64
)

// Hub provides in-memory pub/sub for events. Subscribers register for a
// target (conversation, agent, broadcast, topic) and receive events as they
// are emitted. This is the transport connected clients consume in-process;
// the AMQP transport mirrors the same events out of process.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan Event // target key -> subID -> ch
	logger      *slog.Logger
}

// NewHub creates a hub. Pass nil logger for default.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subscribers: make(map[string]map[string]chan Event),
		logger:      logger.With("component", "hub"),
	}
}

// Subscribe registers a subscriber for events on the given target.
// Returns a channel that receives events and a subscription ID for later
// unsubscription. The subscription is automatically cleaned up when ctx is
// cancelled.
func (h *Hub) Subscribe(ctx context.Context, target Target) (<-chan Event, string) {
	key := target.Key()
	subID := uuid.New().String()
	ch := make(chan Event, subscriberBufferSize)

	h.mu.Lock()
	if _, ok := h.subscribers[key]; !ok {
		h.subscribers[key] = make(map[string]chan Event)
	}
	h.subscribers[key][subID] = ch
	h.mu.Unlock()

	h.logger.Debug("subscriber added", "target", key, "sub_id", subID)

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		h.Unsubscribe(target, subID)
	}()

	return ch, subID
}

// Deliver sends an event to all subscribers of the target.
// Non-blocking: events are dropped for subscribers whose channels are full.
// Always returns nil; a slow consumer is not a delivery failure.
func (h *Hub) Deliver(ctx context.Context, target Target, event Event) error {
	key := target.Key()

	// Sends are non-blocking, so they stay under the read lock. Closing a
	// channel needs the write lock, so an unsubscribing client can never
	// close a channel with a send in flight.
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subscribers[key] {
		select {
		case ch <- event:
			// Sent
		default:
			// Subscriber channel full, drop event for this subscriber
			h.logger.Debug("dropped event for slow subscriber",
				"target", key,
				"event_id", event.Meta.ID,
				"event_type", event.Meta.Type)
		}
	}
	return nil
}

// Unsubscribe removes a subscription and closes its channel.
func (h *Hub) Unsubscribe(target Target, subID string) {
	key := target.Key()

	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subscribers[key]
	if !ok {
		return
	}

	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	// Clean up empty target entries
	if len(subs) == 0 {
		delete(h.subscribers, key)
	}

	h.logger.Debug("subscriber removed", "target", key, "sub_id", subID)
}

// SubscriberCount reports how many subscribers a target currently has.
func (h *Hub) SubscriberCount(target Target) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[target.Key()])
}

// Close shuts down the hub and closes all subscriber channels.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for key, subs := range h.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(h.subscribers, key)
	}

	h.logger.Debug("hub closed")
	return nil
}

var _ Transport = (*Hub)(nil)
