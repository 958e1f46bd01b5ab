package memory

import (
	"fmt"
	"sync"

	"quizhost-service/internal/domain"

	"github.com/google/uuid"
)

// IdentityStore is a simple credential store: opaque bearer tokens mapped to
// user ids. It stands in for the auth collaborator.
type IdentityStore struct {
	mu     sync.RWMutex
	tokens map[string]int
}

func NewIdentityStore() *IdentityStore {
	return &IdentityStore{tokens: make(map[string]int)}
}

// Issue mints a fresh bearer token for a user.
func (s *IdentityStore) Issue(userID int) string {
	token := uuid.NewString()
	s.mu.Lock()
	s.tokens[token] = userID
	s.mu.Unlock()
	return token
}

// Revoke invalidates a token.
func (s *IdentityStore) Revoke(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
}

func (s *IdentityStore) Resolve(token string) (int, error) {
	if token == "" {
		return 0, fmt.Errorf("%w: empty token", domain.ErrUnauthenticated)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.tokens[token]
	if !ok {
		return 0, fmt.Errorf("%w: unknown token", domain.ErrUnauthenticated)
	}
	return userID, nil
}
