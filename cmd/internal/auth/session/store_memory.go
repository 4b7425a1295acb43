package session

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store used when no database is configured
// and by tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record // token hash -> record
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Insert adds a refresh-token record (idempotent by token hash).
func (s *MemoryStore) Insert(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.TokenHash]; ok {
		return nil
	}
	s.records[rec.TokenHash] = rec
	return nil
}

// FindByToken loads a record by token hash.
func (s *MemoryStore) FindByToken(ctx context.Context, tokenHash string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[tokenHash]
	if !ok {
		return Record{}, ErrTokenRevoked
	}
	return rec, nil
}

// DeleteByToken removes a record by token hash.
func (s *MemoryStore) DeleteByToken(ctx context.Context, tokenHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[tokenHash]; !ok {
		return ErrTokenRevoked
	}
	delete(s.records, tokenHash)
	return nil
}
