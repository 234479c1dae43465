// ABOUTME: Tests for the in-memory MockStore
// ABOUTME: Verifies parity with SQLiteStore semantics and the FailWrites hook

package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMockStore_ConversationRoundTrip(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	conv := testConversation("conv-1")
	if err := m.UpsertConversation(ctx, conv); err != nil {
		t.Fatalf("UpsertConversation failed: %v", err)
	}

	got, err := m.GetConversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got.CustomerName != conv.CustomerName {
		t.Errorf("CustomerName mismatch: got %q", got.CustomerName)
	}

	// Mutating the returned copy must not affect the stored value
	got.CustomerName = "changed"
	got.Tags[0] = "changed"
	again, err := m.GetConversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if again.CustomerName != "Dana Smith" {
		t.Errorf("stored conversation was mutated: %q", again.CustomerName)
	}
	if again.Tags[0] != "refund" {
		t.Errorf("stored tags were mutated: %v", again.Tags)
	}

	if _, err := m.GetConversation(ctx, "missing"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMockStore_UpsertKeepsCreatedAt(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	conv := testConversation("conv-keep")
	original := conv.CreatedAt

	if err := m.UpsertConversation(ctx, conv); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}

	conv.CreatedAt = original.Add(time.Hour)
	conv.Status = StatusActive
	conv.AssignedAgentID = "agent-1"
	if err := m.UpsertConversation(ctx, conv); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	got, err := m.GetConversation(ctx, "conv-keep")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if !got.CreatedAt.Equal(original) {
		t.Errorf("CreatedAt changed on upsert: got %v, want %v", got.CreatedAt, original)
	}
	if got.Status != StatusActive {
		t.Errorf("Status not updated: got %q", got.Status)
	}
}

func TestMockStore_MessagesAndReadFlags(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	base := time.Now().Add(-time.Minute)
	for i, sender := range []Sender{SenderCustomer, SenderAgent, SenderCustomer} {
		msg := &Message{
			ID:             string(rune('a' + i)),
			ConversationID: "conv-1",
			Sender:         sender,
			Type:           MessageTypeText,
			Body:           "hi",
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		}
		if err := m.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("SaveMessage failed: %v", err)
		}
	}

	msgs, err := m.ListRecentMessages(ctx, "conv-1", 2)
	if err != nil {
		t.Fatalf("ListRecentMessages failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].ID != "b" || msgs[1].ID != "c" {
		t.Errorf("unexpected window: %q, %q", msgs[0].ID, msgs[1].ID)
	}

	if err := m.MarkMessagesRead(ctx, "conv-1"); err != nil {
		t.Fatalf("MarkMessagesRead failed: %v", err)
	}
	all, err := m.ListRecentMessages(ctx, "conv-1", 0)
	if err != nil {
		t.Fatalf("ListRecentMessages failed: %v", err)
	}
	for _, msg := range all {
		if msg.Sender == SenderCustomer && !msg.Read {
			t.Errorf("customer message %q still unread", msg.ID)
		}
	}

	if err := m.SoftDeleteMessage(ctx, "conv-1", "b"); err != nil {
		t.Fatalf("SoftDeleteMessage failed: %v", err)
	}
	remaining, err := m.ListRecentMessages(ctx, "conv-1", 0)
	if err != nil {
		t.Fatalf("ListRecentMessages failed: %v", err)
	}
	if len(remaining) != 2 {
		t.Errorf("expected 2 visible messages after delete, got %d", len(remaining))
	}
	if m.MessageCount("conv-1") != 3 {
		t.Errorf("soft delete removed the row: count %d", m.MessageCount("conv-1"))
	}

	if err := m.SoftDeleteMessage(ctx, "conv-1", "zzz"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMockStore_FailWrites(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	boom := errors.New("disk full")
	m.FailWrites = boom

	if err := m.UpsertConversation(ctx, testConversation("conv-x")); !errors.Is(err, boom) {
		t.Errorf("UpsertConversation: expected injected error, got %v", err)
	}
	if err := m.SaveMessage(ctx, &Message{ID: "m", ConversationID: "conv-x"}); !errors.Is(err, boom) {
		t.Errorf("SaveMessage: expected injected error, got %v", err)
	}

	m.FailWrites = nil
	if err := m.UpsertConversation(ctx, testConversation("conv-x")); err != nil {
		t.Errorf("expected writes to succeed again, got %v", err)
	}
}
