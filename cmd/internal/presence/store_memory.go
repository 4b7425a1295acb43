package presence

import (
	"context"
	"sort"
	"sync"
)

const memMaxMessages = 50_000

// InMemoryStore is a dev-only fallback when DB is not configured.
type InMemoryStore struct {
	mu   sync.Mutex
	msgs []Message // ordered by id ASC
}

// NewInMemoryStore constructs an in-memory MessageStore implementation.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{msgs: make([]Message, 0, 256)}
}

// Close closes the store (noop for in-memory).
func (s *InMemoryStore) Close() error { return nil }

// Insert persists one private message.
func (s *InMemoryStore) Insert(ctx context.Context, msg Message) error {
	if err := validateMessage(msg); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.msgs = append(s.msgs, msg)

	// ULIDs assigned at insert time are already near-sorted; keep the
	// invariant strict so paging stays correct.
	sort.Slice(s.msgs, func(i, j int) bool { return s.msgs[i].ID < s.msgs[j].ID })

	// Bound memory to avoid unbounded growth in dev.
	if len(s.msgs) > memMaxMessages {
		s.msgs = s.msgs[len(s.msgs)-memMaxMessages:]
	}
	return nil
}

// ListConversation returns messages between two users, newest first, paged
// by the ULID id cursor.
func (s *InMemoryStore) ListConversation(ctx context.Context, in ListConversationInput) (ListConversationResult, error) {
	if in.UserA == "" || in.UserB == "" {
		return ListConversationResult{}, ErrInvalidMessage
	}
	if err := ctx.Err(); err != nil {
		return ListConversationResult{}, err
	}

	limit := in.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	s.mu.Lock()
	snap := append([]Message(nil), s.msgs...)
	s.mu.Unlock()

	// Newest first.
	out := make([]Message, 0, limit+1)
	for i := len(snap) - 1; i >= 0; i-- {
		m := snap[i]
		between := (m.SenderID == in.UserA && m.ReceiverID == in.UserB) ||
			(m.SenderID == in.UserB && m.ReceiverID == in.UserA)
		if !between {
			continue
		}
		if in.BeforeID != "" && m.ID >= in.BeforeID {
			continue
		}
		out = append(out, m)
		if len(out) > limit {
			break
		}
	}

	hasMore := len(out) > limit
	if hasMore {
		out = out[:limit]
	}

	return ListConversationResult{Messages: out, HasMore: hasMore}, nil
}
