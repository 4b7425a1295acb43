package identity

import (
	"context"
	"sync"
	"time"

	"pipit/cmd/security/token"
)

// MemoryStore is an in-memory Store used when no database is configured
// and by tests. It mirrors PostgresStore semantics, including conflict
// and not-found mapping.
type MemoryStore struct {
	mu      sync.Mutex
	byID    map[string]User
	byEmail map[string]string // normalized email -> id
	byName  map[string]string // username -> id
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]User),
		byEmail: make(map[string]string),
		byName:  make(map[string]string),
	}
}

// Create inserts a new user.
func (s *MemoryStore) Create(ctx context.Context, u User) error {
	if u.ID == "" || u.Email == "" || u.Username == "" || u.PasswordHash == "" {
		return ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	email := NormalizeEmail(u.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[u.ID]; ok {
		return ErrConflict
	}
	if _, ok := s.byEmail[email]; ok {
		return ErrConflict
	}
	if _, ok := s.byName[u.Username]; ok {
		return ErrConflict
	}

	u.Email = email
	u.UpdatedAt = u.CreatedAt
	s.byID[u.ID] = u
	s.byEmail[email] = u.ID
	s.byName[u.Username] = u.ID
	return nil
}

// FindByID loads a user by id.
func (s *MemoryStore) FindByID(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

// FindByEmail loads a user by normalized email.
func (s *MemoryStore) FindByEmail(ctx context.Context, email string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return User{}, ErrNotFound
	}
	return s.byID[id], nil
}

// SetEmailVerifyToken stores a freshly issued email-verify token.
func (s *MemoryStore) SetEmailVerifyToken(_ context.Context, now time.Time, userID, tok string) error {
	return s.mutate(userID, func(u *User) {
		u.EmailVerifyToken = tok
		u.UpdatedAt = now
	})
}

// MarkVerified flips the account to Verified and clears the stored token.
func (s *MemoryStore) MarkVerified(_ context.Context, now time.Time, userID string) error {
	return s.mutate(userID, func(u *User) {
		u.Verify = token.VerifyVerified
		u.EmailVerifyToken = ""
		u.UpdatedAt = now
	})
}

// SetForgotPasswordToken stores a freshly issued forgot-password token.
func (s *MemoryStore) SetForgotPasswordToken(_ context.Context, now time.Time, userID, tok string) error {
	return s.mutate(userID, func(u *User) {
		u.ForgotPasswordToken = tok
		u.UpdatedAt = now
	})
}

// ResetPassword replaces the password hash and clears the stored token.
func (s *MemoryStore) ResetPassword(_ context.Context, now time.Time, userID, passwordHash string) error {
	return s.mutate(userID, func(u *User) {
		u.PasswordHash = passwordHash
		u.ForgotPasswordToken = ""
		u.UpdatedAt = now
	})
}

func (s *MemoryStore) mutate(userID string, fn func(*User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[userID]
	if !ok {
		return ErrNotFound
	}
	fn(&u)
	s.byID[userID] = u
	return nil
}
