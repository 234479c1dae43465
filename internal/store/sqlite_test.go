// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers conversation upsert/query, message persistence, and agent profiles

package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	return store
}

func testConversation(id string) *Conversation {
	now := time.Now().UTC().Truncate(time.Second)
	return &Conversation{
		ID:             id,
		CustomerID:     "cust-1",
		CustomerName:   "Dana Smith",
		CustomerEmail:  "dana@example.com",
		Department:     "billing",
		Priority:       PriorityHigh,
		Status:         StatusWaiting,
		Tags:           []string{"refund"},
		Source:         "storefront",
		Metadata:       map[string]string{"order": "A-1001"},
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	// Verify the database file was created
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestUpsertAndGetConversation(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	conv := testConversation("conv-123")

	if err := store.UpsertConversation(ctx, conv); err != nil {
		t.Fatalf("UpsertConversation failed: %v", err)
	}

	got, err := store.GetConversation(ctx, "conv-123")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}

	if got.ID != conv.ID {
		t.Errorf("ID mismatch: got %q, want %q", got.ID, conv.ID)
	}
	if got.CustomerName != conv.CustomerName {
		t.Errorf("CustomerName mismatch: got %q, want %q", got.CustomerName, conv.CustomerName)
	}
	if got.Department != conv.Department {
		t.Errorf("Department mismatch: got %q, want %q", got.Department, conv.Department)
	}
	if got.Priority != PriorityHigh {
		t.Errorf("Priority mismatch: got %q, want %q", got.Priority, PriorityHigh)
	}
	if got.Status != StatusWaiting {
		t.Errorf("Status mismatch: got %q, want %q", got.Status, StatusWaiting)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "refund" {
		t.Errorf("Tags mismatch: got %v", got.Tags)
	}
	if got.Metadata["order"] != "A-1001" {
		t.Errorf("Metadata mismatch: got %v", got.Metadata)
	}
	if !got.CreatedAt.Equal(conv.CreatedAt) {
		t.Errorf("CreatedAt mismatch: got %v, want %v", got.CreatedAt, conv.CreatedAt)
	}
	if got.AssignedAt != nil {
		t.Errorf("expected nil AssignedAt, got %v", got.AssignedAt)
	}
}

func TestUpsertConversation_Idempotent(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	conv := testConversation("conv-upsert")

	if err := store.UpsertConversation(ctx, conv); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}

	// Second write with updated state must not error and must overwrite
	assignedAt := time.Now().UTC().Truncate(time.Second)
	conv.Status = StatusActive
	conv.AssignedAgentID = "agent-1"
	conv.AssignedAt = &assignedAt
	conv.MessageCount = 3

	if err := store.UpsertConversation(ctx, conv); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	got, err := store.GetConversation(ctx, "conv-upsert")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got.Status != StatusActive {
		t.Errorf("Status not updated: got %q", got.Status)
	}
	if got.AssignedAgentID != "agent-1" {
		t.Errorf("AssignedAgentID not updated: got %q", got.AssignedAgentID)
	}
	if got.AssignedAt == nil || !got.AssignedAt.Equal(assignedAt) {
		t.Errorf("AssignedAt mismatch: got %v, want %v", got.AssignedAt, assignedAt)
	}
	if got.MessageCount != 3 {
		t.Errorf("MessageCount not updated: got %d", got.MessageCount)
	}
}

func TestGetConversation_NotFound(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	_, err := store.GetConversation(context.Background(), "nonexistent")
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListOpenConversations(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second).Add(-time.Hour)

	statuses := []Status{StatusWaiting, StatusActive, StatusClosed, StatusResolved, StatusTransferred}
	for i, status := range statuses {
		conv := testConversation(fmt.Sprintf("conv-%d", i))
		conv.Status = status
		if status.Assigned() {
			conv.AssignedAgentID = "agent-1"
		}
		conv.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		conv.LastActivityAt = conv.CreatedAt
		if err := store.UpsertConversation(ctx, conv); err != nil {
			t.Fatalf("upsert %d failed: %v", i, err)
		}
	}

	open, err := store.ListOpenConversations(ctx)
	if err != nil {
		t.Fatalf("ListOpenConversations failed: %v", err)
	}

	if len(open) != 3 {
		t.Fatalf("expected 3 open conversations, got %d", len(open))
	}
	// Arrival order: conv-0 (waiting), conv-1 (active), conv-4 (transferred)
	wantOrder := []string{"conv-0", "conv-1", "conv-4"}
	for i, want := range wantOrder {
		if open[i].ID != want {
			t.Errorf("position %d: got %q, want %q", i, open[i].ID, want)
		}
	}
}

func TestSaveAndListMessages(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	conv := testConversation("conv-msgs")
	if err := store.UpsertConversation(ctx, conv); err != nil {
		t.Fatalf("UpsertConversation failed: %v", err)
	}

	base := time.Now().UTC().Truncate(time.Second).Add(-time.Minute)
	for i := range 5 {
		msg := &Message{
			ID:             fmt.Sprintf("msg-%d", i),
			ConversationID: "conv-msgs",
			Sender:         SenderCustomer,
			SenderID:       "cust-1",
			Type:           MessageTypeText,
			Body:           fmt.Sprintf("message %d", i),
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		}
		if err := store.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("SaveMessage %d failed: %v", i, err)
		}
	}

	// Limited fetch returns the most recent 3 in chronological order
	msgs, err := store.ListRecentMessages(ctx, "conv-msgs", 3)
	if err != nil {
		t.Fatalf("ListRecentMessages failed: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i, want := range []string{"msg-2", "msg-3", "msg-4"} {
		if msgs[i].ID != want {
			t.Errorf("position %d: got %q, want %q", i, msgs[i].ID, want)
		}
	}

	// Unlimited fetch returns all
	all, err := store.ListRecentMessages(ctx, "conv-msgs", 0)
	if err != nil {
		t.Fatalf("ListRecentMessages (all) failed: %v", err)
	}
	if len(all) != 5 {
		t.Errorf("expected 5 messages, got %d", len(all))
	}
}

func TestSaveMessage_Attachments(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	conv := testConversation("conv-attach")
	if err := store.UpsertConversation(ctx, conv); err != nil {
		t.Fatalf("UpsertConversation failed: %v", err)
	}

	msg := &Message{
		ID:             "msg-attach",
		ConversationID: "conv-attach",
		Sender:         SenderCustomer,
		Type:           MessageTypeImage,
		Body:           "see screenshot",
		Attachments: []Attachment{
			{Name: "receipt.png", MimeType: "image/png", URL: "https://cdn.example.com/receipt.png", Size: 20480},
		},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := store.SaveMessage(ctx, msg); err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}

	msgs, err := store.ListRecentMessages(ctx, "conv-attach", 0)
	if err != nil {
		t.Fatalf("ListRecentMessages failed: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if len(msgs[0].Attachments) != 1 {
		t.Fatalf("expected 1 attachment, got %d", len(msgs[0].Attachments))
	}
	if msgs[0].Attachments[0].Name != "receipt.png" {
		t.Errorf("attachment name mismatch: got %q", msgs[0].Attachments[0].Name)
	}
	if msgs[0].Attachments[0].Size != 20480 {
		t.Errorf("attachment size mismatch: got %d", msgs[0].Attachments[0].Size)
	}
}

func TestMarkMessagesRead(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	conv := testConversation("conv-read")
	if err := store.UpsertConversation(ctx, conv); err != nil {
		t.Fatalf("UpsertConversation failed: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	senders := []Sender{SenderCustomer, SenderCustomer, SenderAgent}
	for i, sender := range senders {
		msg := &Message{
			ID:             fmt.Sprintf("msg-read-%d", i),
			ConversationID: "conv-read",
			Sender:         sender,
			Type:           MessageTypeText,
			Body:           "hello",
			CreatedAt:      now.Add(time.Duration(i) * time.Second),
		}
		if err := store.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("SaveMessage failed: %v", err)
		}
	}

	if err := store.MarkMessagesRead(ctx, "conv-read"); err != nil {
		t.Fatalf("MarkMessagesRead failed: %v", err)
	}

	msgs, err := store.ListRecentMessages(ctx, "conv-read", 0)
	if err != nil {
		t.Fatalf("ListRecentMessages failed: %v", err)
	}
	for _, msg := range msgs {
		if msg.Sender == SenderCustomer && !msg.Read {
			t.Errorf("customer message %q still unread", msg.ID)
		}
	}
}

func TestSoftDeleteMessage(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	conv := testConversation("conv-del")
	if err := store.UpsertConversation(ctx, conv); err != nil {
		t.Fatalf("UpsertConversation failed: %v", err)
	}

	msg := &Message{
		ID:             "msg-del",
		ConversationID: "conv-del",
		Sender:         SenderCustomer,
		Type:           MessageTypeText,
		Body:           "remove me",
		CreatedAt:      time.Now().UTC().Truncate(time.Second),
	}
	if err := store.SaveMessage(ctx, msg); err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}

	if err := store.SoftDeleteMessage(ctx, "conv-del", "msg-del"); err != nil {
		t.Fatalf("SoftDeleteMessage failed: %v", err)
	}

	msgs, err := store.ListRecentMessages(ctx, "conv-del", 0)
	if err != nil {
		t.Fatalf("ListRecentMessages failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected deleted message to be excluded, got %d messages", len(msgs))
	}

	if err := store.SoftDeleteMessage(ctx, "conv-del", "no-such-message"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound for unknown message, got %v", err)
	}
}

func TestQueryConversations_Filters(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second).Add(-time.Hour)

	fixtures := []struct {
		id         string
		status     Status
		department string
		agent      string
	}{
		{"conv-a", StatusWaiting, "billing", ""},
		{"conv-b", StatusActive, "billing", "agent-1"},
		{"conv-c", StatusActive, "technical", "agent-2"},
		{"conv-d", StatusClosed, "billing", ""},
	}
	for i, f := range fixtures {
		conv := testConversation(f.id)
		conv.Status = f.status
		conv.Department = f.department
		conv.AssignedAgentID = f.agent
		conv.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		conv.LastActivityAt = conv.CreatedAt
		if err := store.UpsertConversation(ctx, conv); err != nil {
			t.Fatalf("upsert %s failed: %v", f.id, err)
		}
	}

	tests := []struct {
		name  string
		query ConversationQuery
		want  []string
	}{
		{
			name:  "by status",
			query: ConversationQuery{Status: StatusActive},
			want:  []string{"conv-c", "conv-b"},
		},
		{
			name:  "by department",
			query: ConversationQuery{Department: "billing"},
			want:  []string{"conv-d", "conv-b", "conv-a"},
		},
		{
			name:  "by agent",
			query: ConversationQuery{AgentID: "agent-1"},
			want:  []string{"conv-b"},
		},
		{
			name:  "status and department",
			query: ConversationQuery{Status: StatusActive, Department: "technical"},
			want:  []string{"conv-c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.QueryConversations(ctx, tt.query)
			if err != nil {
				t.Fatalf("QueryConversations failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d results, got %d", len(tt.want), len(got))
			}
			for i, want := range tt.want {
				if got[i].ID != want {
					t.Errorf("position %d: got %q, want %q", i, got[i].ID, want)
				}
			}
		})
	}
}

func TestQueryConversations_SinceUntil(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second).Add(-3 * time.Hour)

	for i := range 3 {
		conv := testConversation(fmt.Sprintf("conv-t%d", i))
		conv.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		conv.LastActivityAt = conv.CreatedAt
		if err := store.UpsertConversation(ctx, conv); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
	}

	since := base.Add(30 * time.Minute)
	until := base.Add(90 * time.Minute)
	got, err := store.QueryConversations(ctx, ConversationQuery{Since: &since, Until: &until})
	if err != nil {
		t.Fatalf("QueryConversations failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "conv-t1" {
		t.Errorf("expected [conv-t1], got %v", convIDs(got))
	}
}

func TestSearchConversations(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()

	first := testConversation("conv-s1")
	first.CustomerName = "Avery Jones"
	first.Tags = []string{"refund", "priority-customer"}
	if err := store.UpsertConversation(ctx, first); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	second := testConversation("conv-s2")
	second.CustomerName = "Morgan Lee"
	second.Tags = nil
	second.LastActivityAt = first.LastActivityAt.Add(time.Minute)
	if err := store.UpsertConversation(ctx, second); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	msg := &Message{
		ID:             "msg-s1",
		ConversationID: "conv-s2",
		Sender:         SenderCustomer,
		Type:           MessageTypeText,
		Body:           "my order B-2002 never arrived",
		CreatedAt:      time.Now().UTC().Truncate(time.Second),
	}
	if err := store.SaveMessage(ctx, msg); err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}

	// Match on customer name
	got, err := store.SearchConversations(ctx, "Avery", 10)
	if err != nil {
		t.Fatalf("SearchConversations failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "conv-s1" {
		t.Errorf("name search: expected [conv-s1], got %v", convIDs(got))
	}

	// Match on tag
	got, err = store.SearchConversations(ctx, "priority-customer", 10)
	if err != nil {
		t.Fatalf("SearchConversations failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "conv-s1" {
		t.Errorf("tag search: expected [conv-s1], got %v", convIDs(got))
	}

	// Match on message body
	got, err = store.SearchConversations(ctx, "B-2002", 10)
	if err != nil {
		t.Fatalf("SearchConversations failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "conv-s2" {
		t.Errorf("body search: expected [conv-s2], got %v", convIDs(got))
	}

	// No match
	got, err = store.SearchConversations(ctx, "zebra", 10)
	if err != nil {
		t.Fatalf("SearchConversations failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no results, got %v", convIDs(got))
	}
}

func TestAgentProfiles(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	agent := &AgentProfile{
		ID:          "agent-1",
		Name:        "Sam Rivera",
		Department:  "billing",
		MaxCapacity: 4,
	}

	if err := store.UpsertAgent(ctx, agent); err != nil {
		t.Fatalf("UpsertAgent failed: %v", err)
	}

	got, err := store.GetAgent(ctx, "agent-1")
	if err != nil {
		t.Fatalf("GetAgent failed: %v", err)
	}
	if got.Name != "Sam Rivera" {
		t.Errorf("Name mismatch: got %q", got.Name)
	}
	if got.MaxCapacity != 4 {
		t.Errorf("MaxCapacity mismatch: got %d", got.MaxCapacity)
	}

	// Update in place
	agent.MaxCapacity = 6
	if err := store.UpsertAgent(ctx, agent); err != nil {
		t.Fatalf("second UpsertAgent failed: %v", err)
	}
	got, err = store.GetAgent(ctx, "agent-1")
	if err != nil {
		t.Fatalf("GetAgent failed: %v", err)
	}
	if got.MaxCapacity != 6 {
		t.Errorf("MaxCapacity not updated: got %d", got.MaxCapacity)
	}

	if _, err := store.GetAgent(ctx, "nonexistent"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	second := &AgentProfile{ID: "agent-2", Name: "Alex Kim", Department: "technical", MaxCapacity: 3}
	if err := store.UpsertAgent(ctx, second); err != nil {
		t.Fatalf("UpsertAgent failed: %v", err)
	}

	agents, err := store.ListAgents(ctx)
	if err != nil {
		t.Fatalf("ListAgents failed: %v", err)
	}
	if len(agents) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(agents))
	}
	if agents[0].ID != "agent-1" || agents[1].ID != "agent-2" {
		t.Errorf("unexpected order: %q, %q", agents[0].ID, agents[1].ID)
	}
}

func convIDs(convs []*Conversation) []string {
	ids := make([]string, len(convs))
	for i, c := range convs {
		ids[i] = c.ID
	}
	return ids
}
