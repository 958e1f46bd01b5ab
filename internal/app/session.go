package app

import (
	"sync"
	"time"

	"quizhost-service/internal/domain"
)

// Session is one live run of a quiz. All fields are guarded by mu; every
// mutation path (admin call, player call, timer callback) locks the session
// so concurrent updates serialize per session while distinct sessions proceed
// in parallel.
type Session struct {
	mu sync.Mutex

	id           int
	quizID       int
	adminToken   string
	state        domain.State
	atQuestion   int // 1-based, 0 outside a question
	autoStartNum int
	meta         domain.QuizRecord // deep copy taken at start
	players      []*domain.Player
	results      []domain.QuestionResult
	messages     []domain.ChatMessage

	// questionOpenedAt is the wall clock at the moment the current question
	// entered QUESTION_OPEN; submission latency is measured against it.
	questionOpenedAt time.Time

	// timerEpoch identifies the live pending timer. A callback carrying a
	// different epoch is stale and must not apply.
	timerEpoch  uint64
	cancelTimer func()

	now func() time.Time
}

func newSession(id int, adminToken string, snapshot domain.QuizRecord, autoStartNum int, now func() time.Time) *Session {
	results := make([]domain.QuestionResult, 0, len(snapshot.Questions))
	for _, q := range snapshot.Questions {
		results = append(results, domain.QuestionResult{
			QuestionID:     q.ID,
			PlayersCorrect: []string{},
		})
	}
	return &Session{
		id:           id,
		quizID:       snapshot.ID,
		adminToken:   adminToken,
		state:        domain.StateLobby,
		autoStartNum: autoStartNum,
		meta:         snapshot,
		results:      results,
		now:          now,
	}
}

// ID returns the session identifier.
func (s *Session) ID() int { return s.id }

// QuizID returns the id of the quiz this session runs.
func (s *Session) QuizID() int { return s.quizID }

// State returns the current lifecycle state.
func (s *Session) State() domain.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// cancelPendingTimerLocked stops the outstanding timer, if any, and bumps the
// epoch so an already in-flight firing detects itself as stale.
func (s *Session) cancelPendingTimerLocked() {
	if s.cancelTimer != nil {
		s.cancelTimer()
		s.cancelTimer = nil
	}
	s.timerEpoch++
}

func (s *Session) playerByIDLocked(playerID int) *domain.Player {
	for _, p := range s.players {
		if p.ID == playerID {
			return p
		}
	}
	return nil
}

func (s *Session) playerByNameLocked(name string) *domain.Player {
	for _, p := range s.players {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// recordLocked builds the serializable form of the session.
func (s *Session) recordLocked() domain.SessionRecord {
	players := make([]domain.Player, 0, len(s.players))
	for _, p := range s.players {
		cp := *p
		cp.Submissions = append([]domain.Submission(nil), p.Submissions...)
		players = append(players, cp)
	}
	return domain.SessionRecord{
		SessionID:  s.id,
		QuizID:     s.quizID,
		State:      s.state,
		AtQuestion: s.atQuestion,
		Players:    players,
		Results:    append([]domain.QuestionResult(nil), s.results...),
		Messages:   append([]domain.ChatMessage(nil), s.messages...),
		Metadata:   s.meta.Clone(),
	}
}

// rankedUsersLocked returns all players sorted descending by rounded total
// score. Ties keep join order.
func (s *Session) rankedUsersLocked() []domain.UserRank {
	users := make([]domain.UserRank, 0, len(s.players))
	for _, p := range s.players {
		users = append(users, domain.UserRank{Name: p.Name, Score: roundScore(p.Score)})
	}
	sortUsersByScore(users)
	return users
}
