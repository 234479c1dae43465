// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation // keyed by conversation ID
	messages      map[string][]*Message    // keyed by conversation ID, insertion order
	agents        map[string]*AgentProfile // keyed by agent ID

	// FailWrites makes every write return an error, for exercising the
	// best-effort persistence paths.
	FailWrites error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]*Message),
		agents:        make(map[string]*AgentProfile),
	}
}

// UpsertConversation stores or replaces a conversation.
func (m *MockStore) UpsertConversation(ctx context.Context, conv *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWrites != nil {
		return m.FailWrites
	}

	// Make a copy to avoid external modification
	c := cloneConversation(conv)
	if existing, ok := m.conversations[c.ID]; ok {
		c.CreatedAt = existing.CreatedAt
	}
	m.conversations[c.ID] = c
	return nil
}

// GetConversation retrieves a conversation by ID.
func (m *MockStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneConversation(c), nil
}

// ListOpenConversations returns live conversations in arrival order.
func (m *MockStore) ListOpenConversations(ctx context.Context) ([]*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var convs []*Conversation
	for _, c := range m.conversations {
		if c.Status.Open() {
			convs = append(convs, cloneConversation(c))
		}
	}
	sort.Slice(convs, func(i, j int) bool {
		return convs[i].CreatedAt.Before(convs[j].CreatedAt)
	})
	return convs, nil
}

// QueryConversations filters stored conversations.
func (m *MockStore) QueryConversations(ctx context.Context, q ConversationQuery) ([]*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	var convs []*Conversation
	for _, c := range m.conversations {
		if q.Status != "" && c.Status != q.Status {
			continue
		}
		if q.Department != "" && c.Department != q.Department {
			continue
		}
		if q.AgentID != "" && c.AssignedAgentID != q.AgentID {
			continue
		}
		if q.Since != nil && c.LastActivityAt.Before(*q.Since) {
			continue
		}
		if q.Until != nil && c.LastActivityAt.After(*q.Until) {
			continue
		}
		convs = append(convs, cloneConversation(c))
	}

	sort.Slice(convs, func(i, j int) bool {
		return convs[i].LastActivityAt.After(convs[j].LastActivityAt)
	})

	if q.Offset > 0 {
		if q.Offset >= len(convs) {
			return nil, nil
		}
		convs = convs[q.Offset:]
	}
	if len(convs) > limit {
		convs = convs[:limit]
	}
	return convs, nil
}

// SearchConversations matches customer fields, tags and message bodies.
func (m *MockStore) SearchConversations(ctx context.Context, text string, limit int) ([]*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	needle := strings.ToLower(text)

	var convs []*Conversation
	for _, c := range m.conversations {
		if m.matches(c, needle) {
			convs = append(convs, cloneConversation(c))
		}
	}
	sort.Slice(convs, func(i, j int) bool {
		return convs[i].LastActivityAt.After(convs[j].LastActivityAt)
	})
	if len(convs) > limit {
		convs = convs[:limit]
	}
	return convs, nil
}

func (m *MockStore) matches(c *Conversation, needle string) bool {
	if strings.Contains(strings.ToLower(c.CustomerName), needle) ||
		strings.Contains(strings.ToLower(c.CustomerEmail), needle) {
		return true
	}
	for _, tag := range c.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	for _, msg := range m.messages[c.ID] {
		if !msg.Deleted && strings.Contains(strings.ToLower(msg.Body), needle) {
			return true
		}
	}
	return false
}

// SaveMessage appends a message to its conversation.
func (m *MockStore) SaveMessage(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWrites != nil {
		return m.FailWrites
	}

	cp := *msg
	cp.Attachments = append([]Attachment(nil), msg.Attachments...)
	m.messages[cp.ConversationID] = append(m.messages[cp.ConversationID], &cp)
	return nil
}

// ListRecentMessages returns the most recent non-deleted messages in
// chronological order.
func (m *MockStore) ListRecentMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var msgs []*Message
	for _, msg := range m.messages[conversationID] {
		if msg.Deleted {
			continue
		}
		cp := *msg
		msgs = append(msgs, &cp)
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// MarkMessagesRead flags unread customer messages as read.
func (m *MockStore) MarkMessagesRead(ctx context.Context, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWrites != nil {
		return m.FailWrites
	}

	for _, msg := range m.messages[conversationID] {
		if msg.Sender == SenderCustomer && !msg.Read {
			msg.Read = true
		}
	}
	return nil
}

// SoftDeleteMessage flags a message as deleted.
func (m *MockStore) SoftDeleteMessage(ctx context.Context, conversationID, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWrites != nil {
		return m.FailWrites
	}

	for _, msg := range m.messages[conversationID] {
		if msg.ID == messageID {
			msg.Deleted = true
			return nil
		}
	}
	return ErrNotFound
}

// UpsertAgent stores or replaces an agent profile.
func (m *MockStore) UpsertAgent(ctx context.Context, agent *AgentProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWrites != nil {
		return m.FailWrites
	}

	a := *agent
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	a.UpdatedAt = time.Now()
	m.agents[a.ID] = &a
	return nil
}

// GetAgent retrieves an agent profile by ID.
func (m *MockStore) GetAgent(ctx context.Context, id string) (*AgentProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// ListAgents returns all agent profiles ordered by department then name.
func (m *MockStore) ListAgents(ctx context.Context) ([]*AgentProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	agents := make([]*AgentProfile, 0, len(m.agents))
	for _, a := range m.agents {
		cp := *a
		agents = append(agents, &cp)
	}
	sort.Slice(agents, func(i, j int) bool {
		if agents[i].Department != agents[j].Department {
			return agents[i].Department < agents[j].Department
		}
		return agents[i].Name < agents[j].Name
	})
	return agents, nil
}

// Close is a no-op for the mock.
func (m *MockStore) Close() error {
	return nil
}

// MessageCount reports how many messages (including deleted) are stored for
// a conversation. Test helper.
func (m *MockStore) MessageCount(conversationID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages[conversationID])
}

func cloneConversation(c *Conversation) *Conversation {
	cp := *c
	cp.Tags = append([]string(nil), c.Tags...)
	if c.Metadata != nil {
		cp.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			cp.Metadata[k] = v
		}
	}
	if c.AssignedAt != nil {
		t := *c.AssignedAt
		cp.AssignedAt = &t
	}
	if c.ResolvedAt != nil {
		t := *c.ResolvedAt
		cp.ResolvedAt = &t
	}
	if c.ClosedAt != nil {
		t := *c.ClosedAt
		cp.ClosedAt = &t
	}
	return &cp
}

// Ensure MockStore implements Store interface
var _ Store = (*MockStore)(nil)
