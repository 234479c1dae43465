// ABOUTME: Tests for the in-memory hub fan-out
// ABOUTME: Covers subscribe, deliver, drop-on-full, unsubscribe, context cancellation, concurrency

package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeEvent(eventType EventType, conversationID string) Event {
	return NewEvent(eventType, conversationID, ConversationPayload{
		ConversationID: conversationID,
	})
}

func TestHub_SingleSubscriberReceivesEvent(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()

	ctx := t.Context()
	target := ConversationTarget("conv-1")

	ch, _ := h.Subscribe(ctx, target)

	event := makeEvent(EventMessageCreated, "conv-1")
	require.NoError(t, h.Deliver(ctx, target, event))

	select {
	case received := <-ch:
		assert.Equal(t, event.Meta.ID, received.Meta.ID)
		assert.Equal(t, EventMessageCreated, received.Meta.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestHub_MultipleSubscribersReceiveSameEvent(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()

	ctx := t.Context()
	target := ConversationTarget("conv-1")

	ch1, _ := h.Subscribe(ctx, target)
	ch2, _ := h.Subscribe(ctx, target)
	ch3, _ := h.Subscribe(ctx, target)

	event := makeEvent(EventMessageCreated, "conv-1")
	require.NoError(t, h.Deliver(ctx, target, event))

	for i, ch := range []<-chan Event{ch1, ch2, ch3} {
		select {
		case received := <-ch:
			assert.Equal(t, event.Meta.ID, received.Meta.ID, "subscriber %d got wrong event", i)
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d timed out", i)
		}
	}
}

func TestHub_TargetsAreIsolated(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()

	ctx := t.Context()

	convCh, _ := h.Subscribe(ctx, ConversationTarget("conv-1"))
	otherCh, _ := h.Subscribe(ctx, ConversationTarget("conv-2"))
	// Same ID, different kind: must not be conflated with the conversation.
	agentCh, _ := h.Subscribe(ctx, AgentTarget("conv-1"))

	event := makeEvent(EventMessageCreated, "conv-1")
	require.NoError(t, h.Deliver(ctx, ConversationTarget("conv-1"), event))

	select {
	case received := <-convCh:
		assert.Equal(t, event.Meta.ID, received.Meta.ID)
	case <-time.After(time.Second):
		t.Fatal("subscriber for conv-1 timed out")
	}

	select {
	case <-otherCh:
		t.Fatal("subscriber for conv-2 should not receive conv-1 events")
	case <-time.After(100 * time.Millisecond):
		// Expected: no event
	}

	select {
	case <-agentCh:
		t.Fatal("agent subscriber should not receive conversation events")
	case <-time.After(100 * time.Millisecond):
		// Expected: no event
	}
}

func TestHub_BroadcastReachesAllAgentSubscribers(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()

	ctx := t.Context()

	ch1, _ := h.Subscribe(ctx, BroadcastTarget())
	ch2, _ := h.Subscribe(ctx, BroadcastTarget())

	event := NewEvent(EventConversationQueued, "conv-9", ConversationPayload{
		ConversationID: "conv-9",
		Department:     "billing",
	})
	require.NoError(t, h.Deliver(ctx, BroadcastTarget(), event))

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case received := <-ch:
			assert.Equal(t, EventConversationQueued, received.Meta.Type, "subscriber %d", i)
		case <-time.After(time.Second):
			t.Fatalf("broadcast subscriber %d timed out", i)
		}
	}
}

func TestHub_SlowConsumerDoesNotBlockDelivery(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()

	ctx := t.Context()
	target := ConversationTarget("conv-1")

	// Subscribe but never read (slow consumer)
	_, _ = h.Subscribe(ctx, target)
	fast, _ := h.Subscribe(ctx, target)

	// Deliver more events than the buffer size to overflow the slow channel
	for range subscriberBufferSize + 20 {
		require.NoError(t, h.Deliver(ctx, target, makeEvent(EventMessageCreated, "conv-1")))
	}

	// The fast consumer still receives events; delivery never blocked
	receivedCount := 0
	for {
		select {
		case <-fast:
			receivedCount++
		case <-time.After(200 * time.Millisecond):
			assert.Greater(t, receivedCount, 0, "fast consumer should receive events")
			return
		}
	}
}

func TestHub_ContextCancellationCleansUp(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()

	ctx, cancel := context.WithCancel(context.Background())
	target := ConversationTarget("conv-1")
	ch, _ := h.Subscribe(ctx, target)

	require.Equal(t, 1, h.SubscriberCount(target))

	cancel()

	require.Eventually(t, func() bool {
		return h.SubscriberCount(target) == 0
	}, time.Second, 10*time.Millisecond, "subscription should be removed after context cancel")

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed after context cancel")
	case <-time.After(time.Second):
		t.Fatal("channel not closed after context cancel")
	}
}

func TestHub_ManualUnsubscribe(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()

	ctx := t.Context()
	target := ConversationTarget("conv-1")

	ch, subID := h.Subscribe(ctx, target)

	h.Unsubscribe(target, subID)
	assert.Equal(t, 0, h.SubscriberCount(target))

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed after unsubscribe")
	case <-time.After(time.Second):
		t.Fatal("channel not closed after unsubscribe")
	}

	// Delivering afterwards must not panic
	require.NoError(t, h.Deliver(ctx, target, makeEvent(EventMessageCreated, "conv-1")))
}

func TestHub_UnsubscribeUnknownIsNoOp(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()

	h.Unsubscribe(ConversationTarget("conv-1"), "no-such-sub")

	ch, _ := h.Subscribe(t.Context(), ConversationTarget("conv-1"))
	h.Unsubscribe(ConversationTarget("conv-1"), "still-no-such-sub")
	assert.Equal(t, 1, h.SubscriberCount(ConversationTarget("conv-1")))
	_ = ch
}

func TestHub_CloseClosesAllSubscriptions(t *testing.T) {
	h := NewHub(nil)

	ch1, _ := h.Subscribe(t.Context(), ConversationTarget("conv-1"))
	ch2, _ := h.Subscribe(t.Context(), AgentTarget("agent-1"))

	require.NoError(t, h.Close())

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case _, ok := <-ch:
			assert.False(t, ok, "channel %d should be closed after Close()", i)
		case <-time.After(time.Second):
			t.Fatalf("channel %d not closed after Close()", i)
		}
	}
}

func TestHub_DeliverToNobodyIsNoOp(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()

	// Should not panic or error
	err := h.Deliver(t.Context(), ConversationTarget("nobody-listening"), makeEvent(EventMessageCreated, "x"))
	require.NoError(t, err)
}

func TestHub_ConcurrentDeliverSubscribe(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()

	var wg sync.WaitGroup
	ctx := t.Context()
	target := TopicTarget("churn")

	for range 10 {
		wg.Go(func() {
			ch, _ := h.Subscribe(ctx, target)
			for range 5 {
				select {
				case <-ch:
				case <-time.After(500 * time.Millisecond):
					return
				}
			}
		})
	}

	for range 10 {
		wg.Go(func() {
			for range 10 {
				_ = h.Deliver(ctx, target, makeEvent(EventMessageCreated, "churn"))
			}
		})
	}

	wg.Wait()
	// Reaching here without deadlock or panic is the assertion
}

func TestHub_ConcurrentDeliverUnsubscribe(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()

	var wg sync.WaitGroup
	ctx := t.Context()
	target := AgentTarget("agent-1")

	// Unsubscribing closes the channel; in-flight deliveries must never
	// land on a closed channel.
	for range 50 {
		_, subID := h.Subscribe(ctx, target)
		wg.Go(func() {
			h.Unsubscribe(target, subID)
		})
	}
	for range 10 {
		wg.Go(func() {
			for range 20 {
				_ = h.Deliver(ctx, target, makeEvent(EventAgentStatusChanged, "agent-1"))
			}
		})
	}

	wg.Wait()
	assert.Equal(t, 0, h.SubscriberCount(target))
}

func TestHub_SubscribeReturnsUniqueIDs(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()

	ctx := t.Context()

	_, id1 := h.Subscribe(ctx, ConversationTarget("conv-1"))
	_, id2 := h.Subscribe(ctx, ConversationTarget("conv-1"))
	_, id3 := h.Subscribe(ctx, AgentTarget("agent-1"))

	require.NotEqual(t, id1, id2)
	require.NotEqual(t, id1, id3)
	require.NotEqual(t, id2, id3)
}
