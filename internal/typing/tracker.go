// ABOUTME: Thread-safe TTL tracker for typing indicators.
// ABOUTME: Holds at most one live typist per conversation; entries expire on their own.

package typing

import (
	"sync"
	"time"
)

// DefaultTTL is how long a typing signal stays visible without a refresh.
const DefaultTTL = 3 * time.Second

// signal records who is typing in a conversation and until when.
type signal struct {
	actorID  string
	deadline time.Time
}

// Tracker provides a thread-safe, TTL-based view of who is currently typing.
// State is entirely in memory: a restart clears all signals, which is
// acceptable because they expire within seconds anyway.
type Tracker struct {
	mu      sync.RWMutex
	signals map[string]signal // keyed by conversation ID, last writer wins
	ttl     time.Duration
	done    chan struct{}
	closed  bool
}

// New creates a tracker with the given TTL. A background goroutine
// periodically removes expired signals so the map does not accumulate
// dead conversations.
func New(ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	t := &Tracker{
		signals: make(map[string]signal),
		ttl:     ttl,
		done:    make(chan struct{}),
	}
	go t.cleanup()
	return t
}

// Signal records that an actor is typing in a conversation. Repeated calls
// refresh the deadline; a signal from a different actor replaces the
// previous one.
func (t *Tracker) Signal(conversationID, actorID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.signals[conversationID] = signal{
		actorID:  actorID,
		deadline: time.Now().Add(t.ttl),
	}
}

// Typist returns the actor currently typing in a conversation, if any
// non-expired signal exists.
func (t *Tracker) Typist(conversationID string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.signals[conversationID]
	if !ok || time.Now().After(s.deadline) {
		return "", false
	}
	return s.actorID, true
}

// Clear drops the typing signal for a conversation if it belongs to the
// given actor. Called when that actor sends a real message.
func (t *Tracker) Clear(conversationID, actorID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.signals[conversationID]; ok && s.actorID == actorID {
		delete(t.signals, conversationID)
	}
}

// Active returns the number of conversations with a live typing signal.
func (t *Tracker) Active() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := time.Now()
	n := 0
	for _, s := range t.signals {
		if now.Before(s.deadline) {
			n++
		}
	}
	return n
}

// cleanup runs in a background goroutine, periodically removing expired signals.
func (t *Tracker) cleanup() {
	ticker := time.NewTicker(t.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.runCleanup()
		case <-t.done:
			return
		}
	}
}

// runCleanup removes all expired signals.
func (t *Tracker) runCleanup() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	for id, s := range t.signals {
		if now.After(s.deadline) {
			delete(t.signals, id)
		}
	}
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.closed {
		close(t.done)
		t.closed = true
	}
}
