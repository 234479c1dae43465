// ABOUTME: Tests for the fanout orchestrator
// ABOUTME: Covers multi-transport delivery, failing-transport isolation, broadcast rate limiting

package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingTransport captures delivered events for assertions.
type recordingTransport struct {
	mu     sync.Mutex
	events []Event
	keys   []string
	fail   error
	closed bool
}

func (r *recordingTransport) Deliver(_ context.Context, target Target, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.events = append(r.events, event)
	r.keys = append(r.keys, target.Key())
	return nil
}

func (r *recordingTransport) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recordingTransport) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestFanout_DeliversToAllTransports(t *testing.T) {
	t1 := &recordingTransport{}
	t2 := &recordingTransport{}
	f := NewFanout(nil, 0, 0, t1, t2)
	defer f.Close()

	event := makeEvent(EventConversationAssigned, "conv-1")
	f.Conversation(t.Context(), "conv-1", event)

	require.Equal(t, 1, t1.count())
	require.Equal(t, 1, t2.count())
	assert.Equal(t, "chat.conversation.conv-1", t1.keys[0])
	assert.Equal(t, event.Meta.ID, t2.events[0].Meta.ID)
}

func TestFanout_FailingTransportDoesNotStopOthers(t *testing.T) {
	broken := &recordingTransport{fail: errors.New("broker unreachable")}
	healthy := &recordingTransport{}
	f := NewFanout(nil, 0, 0, broken, healthy)
	defer f.Close()

	f.Agent(t.Context(), "agent-1", makeEvent(EventConversationAssigned, "conv-1"))

	assert.Equal(t, 0, broken.count())
	assert.Equal(t, 1, healthy.count())
	assert.Equal(t, "chat.agent.agent-1", healthy.keys[0])
}

func TestFanout_BroadcastRateLimited(t *testing.T) {
	sink := &recordingTransport{}
	// 1 event/sec with burst 2: the third immediate broadcast is dropped.
	f := NewFanout(nil, 1, 2, sink)
	defer f.Close()

	ctx := t.Context()
	for range 5 {
		f.Broadcast(ctx, makeEvent(EventConversationQueued, "conv-1"))
	}

	assert.Equal(t, 2, sink.count(), "broadcasts over the burst should be dropped")
}

func TestFanout_RateLimitDoesNotApplyToScopedTargets(t *testing.T) {
	sink := &recordingTransport{}
	f := NewFanout(nil, 1, 1, sink)
	defer f.Close()

	ctx := t.Context()
	for i := range 10 {
		f.Conversation(ctx, "conv-1", makeEvent(EventMessageCreated, "conv-1"))
		f.Agent(ctx, "agent-1", makeEvent(EventConversationAssigned, "conv-1"))
		_ = i
	}

	assert.Equal(t, 20, sink.count(), "conversation and agent events are never rate limited")
}

func TestFanout_RateLimitRefills(t *testing.T) {
	sink := &recordingTransport{}
	// 100 events/sec, burst 1: after a drop, ~10ms restores one token.
	f := NewFanout(nil, 100, 1, sink)
	defer f.Close()

	ctx := t.Context()
	f.Broadcast(ctx, makeEvent(EventConversationQueued, "conv-1"))
	f.Broadcast(ctx, makeEvent(EventConversationQueued, "conv-2"))
	require.Equal(t, 1, sink.count())

	time.Sleep(30 * time.Millisecond)
	f.Broadcast(ctx, makeEvent(EventConversationQueued, "conv-3"))
	assert.Equal(t, 2, sink.count(), "limiter should refill over time")
}

func TestFanout_CloseClosesTransports(t *testing.T) {
	t1 := &recordingTransport{}
	t2 := &recordingTransport{}
	f := NewFanout(nil, 0, 0, t1, t2)

	f.Close()

	assert.True(t, t1.closed)
	assert.True(t, t2.closed)
}

func TestFanout_HubAsTransport(t *testing.T) {
	h := NewHub(nil)
	f := NewFanout(nil, 0, 0, h)
	defer f.Close()

	ctx := t.Context()
	ch, _ := h.Subscribe(ctx, ConversationTarget("conv-1"))

	f.Conversation(ctx, "conv-1", makeEvent(EventMessageCreated, "conv-1"))

	select {
	case received := <-ch:
		assert.Equal(t, EventMessageCreated, received.Meta.Type)
	case <-time.After(time.Second):
		t.Fatal("hub subscriber did not receive fanned-out event")
	}
}
