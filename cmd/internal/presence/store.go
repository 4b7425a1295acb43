package presence

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidMessage reports a structurally invalid message on insert.
var ErrInvalidMessage = errors.New("presence: invalid message")

// Message is the canonical persisted private message.
type Message struct {
	ID         string
	SenderID   string
	ReceiverID string
	Content    string
	CreatedAt  time.Time
}

// MessageStore persists and queries private messages.
//
// Requirements:
//   - Insert assigns nothing: the caller supplies the full record, including ID.
//   - ListConversation returns messages between exactly two users, newest
//     first, with cursor paging on the ULID id.
type MessageStore interface {
	Insert(ctx context.Context, msg Message) error
	ListConversation(ctx context.Context, in ListConversationInput) (ListConversationResult, error)
	Close() error
}

// ListConversationInput describes a history query between two users.
// BeforeID, when set, restricts results to messages with id < BeforeID.
type ListConversationInput struct {
	UserA    string
	UserB    string
	BeforeID string
	Limit    int
}

// ListConversationResult contains one page of conversation history.
type ListConversationResult struct {
	Messages []Message
	HasMore  bool
}

func validateMessage(msg Message) error {
	if msg.ID == "" || msg.SenderID == "" || msg.ReceiverID == "" || msg.Content == "" {
		return ErrInvalidMessage
	}
	return nil
}
