package presence

import (
	"context"
	"testing"
	"time"
)

func mustInsert(t *testing.T, s *InMemoryStore, id, sender, receiver, content string, at time.Time) {
	t.Helper()
	err := s.Insert(context.Background(), Message{
		ID:         id,
		SenderID:   sender,
		ReceiverID: receiver,
		Content:    content,
		CreatedAt:  at,
	})
	if err != nil {
		t.Fatalf("Insert %s: %v", id, err)
	}
}

func TestInMemoryStore_ListConversation(t *testing.T) {
	s := NewInMemoryStore()
	now := time.Now().UTC()

	mustInsert(t, s, "01A", "alice", "bob", "one", now)
	mustInsert(t, s, "01B", "bob", "alice", "two", now.Add(time.Second))
	mustInsert(t, s, "01C", "alice", "carol", "other thread", now.Add(2*time.Second))
	mustInsert(t, s, "01D", "alice", "bob", "three", now.Add(3*time.Second))

	out, err := s.ListConversation(context.Background(), ListConversationInput{UserA: "alice", UserB: "bob", Limit: 10})
	if err != nil {
		t.Fatalf("ListConversation: %v", err)
	}
	if len(out.Messages) != 3 {
		t.Fatalf("got %d messages, want 3", len(out.Messages))
	}
	// Newest first.
	if out.Messages[0].ID != "01D" || out.Messages[2].ID != "01A" {
		t.Fatalf("wrong order: %q .. %q", out.Messages[0].ID, out.Messages[2].ID)
	}
	if out.HasMore {
		t.Fatal("HasMore = true on a complete page")
	}
}

func TestInMemoryStore_ListConversationPaging(t *testing.T) {
	s := NewInMemoryStore()
	now := time.Now().UTC()

	mustInsert(t, s, "01A", "alice", "bob", "one", now)
	mustInsert(t, s, "01B", "alice", "bob", "two", now)
	mustInsert(t, s, "01C", "alice", "bob", "three", now)

	page, err := s.ListConversation(context.Background(), ListConversationInput{UserA: "bob", UserB: "alice", Limit: 2})
	if err != nil {
		t.Fatalf("ListConversation: %v", err)
	}
	if len(page.Messages) != 2 || !page.HasMore {
		t.Fatalf("first page = %d messages, HasMore=%v", len(page.Messages), page.HasMore)
	}

	cursor := page.Messages[len(page.Messages)-1].ID
	rest, err := s.ListConversation(context.Background(), ListConversationInput{UserA: "bob", UserB: "alice", BeforeID: cursor, Limit: 2})
	if err != nil {
		t.Fatalf("ListConversation page 2: %v", err)
	}
	if len(rest.Messages) != 1 || rest.HasMore {
		t.Fatalf("second page = %d messages, HasMore=%v", len(rest.Messages), rest.HasMore)
	}
	if rest.Messages[0].ID != "01A" {
		t.Fatalf("second page id = %q, want 01A", rest.Messages[0].ID)
	}
}

func TestInMemoryStore_InsertRejectsInvalid(t *testing.T) {
	s := NewInMemoryStore()

	err := s.Insert(context.Background(), Message{ID: "01A", SenderID: "", ReceiverID: "bob", Content: "x"})
	if err == nil {
		t.Fatal("expected invalid message error")
	}
}
