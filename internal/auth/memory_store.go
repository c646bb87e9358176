package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"videobox/internal/models"
)

// MemoryStore keeps credentials in-memory. It is safe for concurrent use and
// primarily intended for tests and single-instance development setups.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]models.User
}

// NewMemoryStore constructs an empty in-memory credential store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]models.User)}
}

// Put inserts or replaces a user record.
func (s *MemoryStore) Put(user models.User) {
	s.mu.Lock()
	s.users[user.ID] = user
	s.mu.Unlock()
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (models.User, error) {
	s.mu.RLock()
	user, ok := s.users[id]
	s.mu.RUnlock()
	if !ok {
		return models.User{}, ErrNotFound
	}
	return user, nil
}

func (s *MemoryStore) FindByIdentifier(_ context.Context, identifier string) (models.User, error) {
	needle := strings.ToLower(strings.TrimSpace(identifier))
	if needle == "" {
		return models.User{}, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if strings.ToLower(user.Username) == needle || strings.ToLower(user.Email) == needle {
			return user, nil
		}
	}
	return models.User{}, ErrNotFound
}

func (s *MemoryStore) SetRefreshToken(_ context.Context, id, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	user.RefreshToken = token
	user.UpdatedAt = time.Now().UTC()
	s.users[id] = user
	return nil
}

func (s *MemoryStore) SwapRefreshToken(_ context.Context, id, presented, next string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	if user.RefreshToken == "" {
		return ErrUnauthorized
	}
	if !digestsEqual(user.RefreshToken, presented) {
		return ErrTokenReuseDetected
	}
	user.RefreshToken = next
	user.UpdatedAt = time.Now().UTC()
	s.users[id] = user
	return nil
}

func (s *MemoryStore) SetPasswordHash(_ context.Context, id, hash string, clearRefreshToken bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	user.PasswordHash = hash
	if clearRefreshToken {
		user.RefreshToken = ""
	}
	user.UpdatedAt = time.Now().UTC()
	s.users[id] = user
	return nil
}
