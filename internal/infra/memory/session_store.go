package memory

import (
	"context"
	"sync"

	"quizhost-service/internal/app"
	"quizhost-service/internal/domain"
)

// SessionStore is the in-memory implementation of app.SessionRepository.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[int]*app.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[int]*app.Session),
	}
}

func (s *SessionStore) Add(sess *app.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID()] = sess
}

func (s *SessionStore) Get(sessionID int) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	return sess, ok
}

func (s *SessionStore) Remove(sessionID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

func (s *SessionStore) List() []*app.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*app.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

// ArchiveStore keeps ended sessions in memory. Records are stored by value
// and never handed back for mutation.
type ArchiveStore struct {
	mu      sync.RWMutex
	records []domain.SessionRecord
}

func NewArchiveStore() *ArchiveStore {
	return &ArchiveStore{}
}

func (s *ArchiveStore) Archive(_ context.Context, record domain.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *ArchiveStore) ListIDs(_ context.Context, quizID int) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := []int{}
	for _, r := range s.records {
		if r.QuizID == quizID {
			ids = append(ids, r.SessionID)
		}
	}
	return ids, nil
}

// Get returns an archived record by session id, for inspection in tests and
// admin tooling.
func (s *ArchiveStore) Get(sessionID int) (domain.SessionRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.SessionID == sessionID {
			return r, true
		}
	}
	return domain.SessionRecord{}, false
}
