// ABOUTME: In-memory conversation registry, the single owner of lifecycle transitions
// ABOUTME: Every mutator validates-then-applies under one lock; no partial state escapes

package registry

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/orbiterp/livedesk/internal/store"
)

var (
	// ErrNotFound is returned when a conversation ID is not registered.
	ErrNotFound = errors.New("conversation not found")
	// ErrInvalidState is returned when a transition is not legal from the
	// conversation's current status.
	ErrInvalidState = errors.New("invalid conversation state")
	// ErrAlreadyExists is returned when adding a conversation ID twice.
	ErrAlreadyExists = errors.New("conversation already registered")
	// ErrNotOwner is returned when an agent operates on a conversation
	// assigned to someone else.
	ErrNotOwner = errors.New("conversation assigned to a different agent")
)

// Registry holds every conversation the service currently tracks and owns
// all status transitions. It is the authoritative copy; the store trails it
// best-effort. Legal transitions:
//
//	waiting              -> active       (Assign)
//	active|transferred   -> waiting      (Release)
//	active|transferred   -> transferred  (Transfer)
//	waiting|active|transferred -> resolved (Resolve)
//	any non-closed       -> closed       (Close, terminal)
//
// Every other move returns ErrInvalidState.
type Registry struct {
	mu            sync.RWMutex
	conversations map[string]*store.Conversation
	logger        *slog.Logger
}

// New creates an empty registry. Pass nil logger for default.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		conversations: make(map[string]*store.Conversation),
		logger:        logger.With("component", "registry"),
	}
}

// Add registers a conversation. The caller keeps ownership of conv; the
// registry stores its own copy. Fails if the ID is already present or the
// record arrives with an assignment that contradicts its status.
func (r *Registry) Add(conv *store.Conversation) error {
	if conv == nil || conv.ID == "" {
		return ErrInvalidState
	}
	if conv.Status.Assigned() != (conv.AssignedAgentID != "") {
		return ErrInvalidState
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conversations[conv.ID]; exists {
		return ErrAlreadyExists
	}

	c := clone(conv)
	r.conversations[conv.ID] = &c

	r.logger.Debug("conversation registered",
		"conversation_id", conv.ID,
		"department", conv.Department,
		"priority", conv.Priority,
		"status", conv.Status)
	return nil
}

// Get returns a copy of the conversation.
func (r *Registry) Get(id string) (store.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conversations[id]
	if !ok {
		return store.Conversation{}, ErrNotFound
	}
	return clone(c), nil
}

// Assign moves a waiting conversation to active under the given agent. The
// status check happens under the write lock, so a conversation that was
// closed or assigned between candidate selection and commit is rejected
// here and the caller can unwind its capacity reservation.
func (r *Registry) Assign(convID, agentID string) error {
	if agentID == "" {
		return ErrInvalidState
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conversations[convID]
	if !ok {
		return ErrNotFound
	}
	if c.Status != store.StatusWaiting {
		return ErrInvalidState
	}

	now := time.Now().UTC()
	c.Status = store.StatusActive
	c.AssignedAgentID = agentID
	c.AssignedAt = &now
	c.LastActivityAt = now

	r.logger.Info("conversation assigned",
		"conversation_id", convID,
		"agent_id", agentID,
		"department", c.Department)
	return nil
}

// Release puts an assigned conversation back to waiting. Owner-checked: only
// the assigned agent (or a caller acting for it, like the offline cascade)
// may release.
func (r *Registry) Release(convID, agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conversations[convID]
	if !ok {
		return ErrNotFound
	}
	if !c.Status.Assigned() {
		return ErrInvalidState
	}
	if c.AssignedAgentID != agentID {
		return ErrNotOwner
	}

	c.Status = store.StatusWaiting
	c.AssignedAgentID = ""
	c.AssignedAt = nil
	c.LastActivityAt = time.Now().UTC()

	r.logger.Info("conversation released",
		"conversation_id", convID,
		"agent_id", agentID)
	return nil
}

// Transfer hands an assigned conversation from one agent to another. The
// caller must already hold a capacity reservation for the target agent;
// on error nothing has changed and the reservation should be unwound.
func (r *Registry) Transfer(convID, fromAgentID, toAgentID string) error {
	if toAgentID == "" || toAgentID == fromAgentID {
		return ErrInvalidState
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conversations[convID]
	if !ok {
		return ErrNotFound
	}
	if !c.Status.Assigned() {
		return ErrInvalidState
	}
	if c.AssignedAgentID != fromAgentID {
		return ErrNotOwner
	}

	now := time.Now().UTC()
	c.Status = store.StatusTransferred
	c.AssignedAgentID = toAgentID
	c.AssignedAt = &now
	c.LastActivityAt = now

	r.logger.Info("conversation transferred",
		"conversation_id", convID,
		"from_agent", fromAgentID,
		"to_agent", toAgentID)
	return nil
}

// Resolve marks a live conversation resolved. Returns the agent that held
// it (empty if it was waiting) so the caller can free pool capacity.
func (r *Registry) Resolve(convID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conversations[convID]
	if !ok {
		return "", ErrNotFound
	}
	if !c.Status.Open() {
		return "", ErrInvalidState
	}

	prevAgent := c.AssignedAgentID
	now := time.Now().UTC()
	c.Status = store.StatusResolved
	c.AssignedAgentID = ""
	c.AssignedAt = nil
	c.ResolvedAt = &now
	c.LastActivityAt = now

	r.logger.Info("conversation resolved",
		"conversation_id", convID,
		"agent_id", prevAgent)
	return prevAgent, nil
}

// Close makes the conversation terminal. Legal from any status except
// closed itself. Returns the agent that held it (empty if none) so the
// caller can free pool capacity.
func (r *Registry) Close(convID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conversations[convID]
	if !ok {
		return "", ErrNotFound
	}
	if c.Status == store.StatusClosed {
		return "", ErrInvalidState
	}

	prevAgent := c.AssignedAgentID
	now := time.Now().UTC()
	c.Status = store.StatusClosed
	c.AssignedAgentID = ""
	c.AssignedAt = nil
	c.ClosedAt = &now
	c.LastActivityAt = now

	r.logger.Info("conversation closed",
		"conversation_id", convID,
		"agent_id", prevAgent)
	return prevAgent, nil
}

// ApplyMessage records message activity: bumps the counter and the activity
// clock, and maintains the unread counter (customer messages raise it, an
// agent reply clears it because the agent has seen the backlog). Rejected
// for closed conversations.
func (r *Registry) ApplyMessage(convID string, sender store.Sender) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conversations[convID]
	if !ok {
		return ErrNotFound
	}
	if c.Status == store.StatusClosed {
		return ErrInvalidState
	}

	c.MessageCount++
	c.LastActivityAt = time.Now().UTC()

	switch sender {
	case store.SenderCustomer:
		c.UnreadCount++
	case store.SenderAgent:
		c.UnreadCount = 0
	}
	return nil
}

// MarkRead clears the unread counter.
func (r *Registry) MarkRead(convID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conversations[convID]
	if !ok {
		return ErrNotFound
	}
	c.UnreadCount = 0
	return nil
}

// AppendTags adds tags not already present. Tagging is bookkeeping and is
// allowed in every status.
func (r *Registry) AppendTags(convID string, tags ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conversations[convID]
	if !ok {
		return ErrNotFound
	}

	for _, tag := range tags {
		if tag == "" {
			continue
		}
		found := false
		for _, existing := range c.Tags {
			if existing == tag {
				found = true
				break
			}
		}
		if !found {
			c.Tags = append(c.Tags, tag)
		}
	}
	return nil
}

// SetMetadata stores one metadata key on the conversation.
func (r *Registry) SetMetadata(convID, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conversations[convID]
	if !ok {
		return ErrNotFound
	}
	if c.Metadata == nil {
		c.Metadata = make(map[string]string)
	}
	c.Metadata[key] = value
	return nil
}

// ConversationsByAgent returns copies of every conversation currently
// assigned to the agent, oldest first.
func (r *Registry) ConversationsByAgent(agentID string) []store.Conversation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []store.Conversation
	for _, c := range r.conversations {
		if c.Status.Assigned() && c.AssignedAgentID == agentID {
			out = append(out, clone(c))
		}
	}
	sortByAge(out)
	return out
}

// Snapshot returns copies of every registered conversation, oldest first.
func (r *Registry) Snapshot() []store.Conversation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]store.Conversation, 0, len(r.conversations))
	for _, c := range r.conversations {
		out = append(out, clone(c))
	}
	sortByAge(out)
	return out
}

// IdleSince returns copies of every non-closed conversation whose last
// activity is strictly before the cutoff. The cleanup sweeper feeds these
// to Close.
func (r *Registry) IdleSince(cutoff time.Time) []store.Conversation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []store.Conversation
	for _, c := range r.conversations {
		if c.Status != store.StatusClosed && c.LastActivityAt.Before(cutoff) {
			out = append(out, clone(c))
		}
	}
	sortByAge(out)
	return out
}

// PurgeClosed drops closed conversations whose ClosedAt is older than the
// grace period and returns their IDs. The persisted rows remain; only the
// in-memory record is forgotten.
func (r *Registry) PurgeClosed(grace time.Duration) []string {
	cutoff := time.Now().UTC().Add(-grace)

	r.mu.Lock()
	defer r.mu.Unlock()

	var purged []string
	for id, c := range r.conversations {
		if c.Status != store.StatusClosed {
			continue
		}
		if c.ClosedAt != nil && c.ClosedAt.After(cutoff) {
			continue
		}
		delete(r.conversations, id)
		purged = append(purged, id)
	}

	if len(purged) > 0 {
		sort.Strings(purged)
		r.logger.Info("purged closed conversations", "count", len(purged))
	}
	return purged
}

// Len reports how many conversations are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conversations)
}

// CountByStatus reports how many conversations sit in each status.
func (r *Registry) CountByStatus() map[store.Status]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[store.Status]int)
	for _, c := range r.conversations {
		counts[c.Status]++
	}
	return counts
}

func sortByAge(convs []store.Conversation) {
	sort.Slice(convs, func(i, j int) bool {
		if !convs[i].CreatedAt.Equal(convs[j].CreatedAt) {
			return convs[i].CreatedAt.Before(convs[j].CreatedAt)
		}
		return convs[i].ID < convs[j].ID
	})
}

// clone deep-copies a conversation so registry state never aliases caller
// memory.
func clone(c *store.Conversation) store.Conversation {
	out := *c
	if c.Tags != nil {
		out.Tags = append([]string(nil), c.Tags...)
	}
	if c.Metadata != nil {
		out.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	if c.AssignedAt != nil {
		t := *c.AssignedAt
		out.AssignedAt = &t
	}
	if c.ResolvedAt != nil {
		t := *c.ResolvedAt
		out.ResolvedAt = &t
	}
	if c.ClosedAt != nil {
		t := *c.ClosedAt
		out.ClosedAt = &t
	}
	return out
}
