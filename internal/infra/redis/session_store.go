package redis

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"quizhost-service/internal/app"
	"quizhost-service/internal/domain"

	"github.com/redis/go-redis/v9"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Notes:
//   - Live sessions stay in a local map: they hold timers and a mutex, so the
//     in-process object is authoritative while the session runs.
//   - Redis marks session liveness per quiz so operators can see which
//     sessions a node is running.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[int]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[int]*app.Session),
	}
}

func (s *SessionStore) Add(sess *app.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID()] = sess
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.liveKey(sess.ID()), strconv.Itoa(sess.QuizID()), s.ttl).Err()
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
	_ = s.client.Del(context.Background(), s.liveKey(sessionID)).Err()
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

func (s *SessionStore) liveKey(sessionID int) string {
	return "session:live:" + strconv.Itoa(sessionID)
}

// ArchiveStore persists ended sessions as JSON and indexes their ids per
// quiz:
//
//	SET  session:archive:{sessionID} {json}
//	SADD quiz:{quizID}:archived      {sessionID}
type ArchiveStore struct {
	client *redis.Client
}

func NewArchiveStore(client *redis.Client) *ArchiveStore {
	return &ArchiveStore{client: client}
}

func (s *ArchiveStore) Archive(ctx context.Context, record domain.SessionRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.recordKey(record.SessionID), raw, 0)
	pipe.SAdd(ctx, s.indexKey(record.QuizID), record.SessionID)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *ArchiveStore) ListIDs(ctx context.Context, quizID int) ([]int, error) {
	members, err := s.client.SMembers(ctx, s.indexKey(quizID)).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(members))
	for _, m := range members {
		id, err := strconv.Atoi(m)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Get loads an archived session record.
func (s *ArchiveStore) Get(ctx context.Context, sessionID int) (domain.SessionRecord, error) {
	raw, err := s.client.Get(ctx, s.recordKey(sessionID)).Bytes()
	if err != nil {
		return domain.SessionRecord{}, domain.ErrSessionNotFound
	}
	var record domain.SessionRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return domain.SessionRecord{}, err
	}
	return record, nil
}

func (s *ArchiveStore) recordKey(sessionID int) string {
	return "session:archive:" + strconv.Itoa(sessionID)
}

func (s *ArchiveStore) indexKey(quizID int) string {
	return "quiz:" + strconv.Itoa(quizID) + ":archived"
}
