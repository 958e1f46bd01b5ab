package app

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"quizhost-service/internal/domain"
)

// countdownDuration is how long QUESTION_COUNTDOWN lasts before the question
// opens automatically.
const countdownDuration = 3 * time.Second

const (
	maxAutoStartNum          = 50
	maxActiveSessionsPerQuiz = 10
	sessionIDFloor           = 10001
	sessionIDSpan            = 90001
)

// SessionRepository holds the live sessions, keyed by session id.
type SessionRepository interface {
	Add(s *Session)
	Get(sessionID int) (*Session, bool)
	Remove(sessionID int)
	List() []*Session
}

// ArchiveStore receives sessions once they reach END. Archived sessions are
// never mutated again.
type ArchiveStore interface {
	Archive(ctx context.Context, record domain.SessionRecord) error
	ListIDs(ctx context.Context, quizID int) ([]int, error)
}

// QuizRepository loads quiz definitions (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID int) (domain.QuizRecord, error)
}

// IdentityResolver maps an opaque bearer token to a user id.
type IdentityResolver interface {
	Resolve(token string) (int, error)
}

// SessionService drives quiz sessions: it validates transition requests,
// applies them, schedules the automatic ones and archives finished runs.
type SessionService struct {
	sessions   SessionRepository
	archive    ArchiveStore
	quizzes    QuizRepository
	identities IdentityResolver
	scheduler  Scheduler
	countdown  time.Duration
	now        func() time.Time

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewSessionService(sessions SessionRepository, archive ArchiveStore, quizzes QuizRepository, identities IdentityResolver, scheduler Scheduler) *SessionService {
	return &SessionService{
		sessions:   sessions,
		archive:    archive,
		quizzes:    quizzes,
		identities: identities,
		scheduler:  scheduler,
		countdown:  countdownDuration,
		now:        time.Now,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithClock replaces the wall clock, for deterministic tests.
func (s *SessionService) WithClock(now func() time.Time) *SessionService {
	s.now = now
	return s
}

// SessionInfo is the admin view of a running session.
type SessionInfo struct {
	State      domain.State      `json:"state"`
	AtQuestion int               `json:"atQuestion"`
	Players    []string          `json:"players"`
	Metadata   domain.QuizRecord `json:"metadata"`
}

// SessionList pairs the active and archived session ids of a quiz.
type SessionList struct {
	ActiveSessions   []int `json:"activeSessions"`
	InactiveSessions []int `json:"inactiveSessions"`
}

// StartSession snapshots the quiz and creates a new session in LOBBY.
func (s *SessionService) StartSession(ctx context.Context, token string, quizID, autoStartNum int) (int, error) {
	userID, err := s.identities.Resolve(token)
	if err != nil {
		return 0, err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return 0, err
	}
	if quiz.OwnerID != userID {
		return 0, fmt.Errorf("%w: user does not own quiz %d", domain.ErrForbidden, quizID)
	}
	if autoStartNum < 0 || autoStartNum > maxAutoStartNum {
		return 0, fmt.Errorf("%w: autoStartNum must be 0-%d", domain.ErrValidation, maxAutoStartNum)
	}
	if len(quiz.Questions) == 0 {
		return 0, fmt.Errorf("%w: quiz has no questions", domain.ErrValidation)
	}
	if s.activeSessionCount(quizID) >= maxActiveSessionsPerQuiz {
		return 0, fmt.Errorf("%w: quiz %d already has %d active sessions", domain.ErrInvalidState, quizID, maxActiveSessionsPerQuiz)
	}

	sess := newSession(s.newSessionID(), token, quiz.Clone(), autoStartNum, s.now)
	s.sessions.Add(sess)
	return sess.ID(), nil
}

// Transition applies an admin-requested action. The check order is
// load-bearing: session existence, then action legality, then
// authentication, then ownership.
func (s *SessionService) Transition(ctx context.Context, token string, quizID, sessionID int, action domain.Action) error {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.ErrSessionNotFound
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if !sess.state.Allows(action) {
		return fmt.Errorf("%w: action %s cannot be applied in state %s", domain.ErrInvalidState, action, sess.state)
	}
	userID, err := s.identities.Resolve(token)
	if err != nil {
		return err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return err
	}
	if quiz.OwnerID != userID {
		return fmt.Errorf("%w: user does not own quiz %d", domain.ErrForbidden, quizID)
	}
	return s.applyActionLocked(sess, action)
}

// applyActionLocked mutates the session for one legal action. It is the
// single entry point shared by admin calls, auto-start and timer callbacks.
func (s *SessionService) applyActionLocked(sess *Session, action domain.Action) error {
	if !sess.state.Allows(action) {
		return fmt.Errorf("%w: action %s cannot be applied in state %s", domain.ErrInvalidState, action, sess.state)
	}

	switch action {
	case domain.ActionEnd:
		sess.cancelPendingTimerLocked()
		sess.atQuestion = 0
		sess.state = domain.StateEnd
		s.sessions.Remove(sess.id)
		if err := s.archive.Archive(context.Background(), sess.recordLocked()); err != nil {
			log.Printf("archive session %d: %v", sess.id, err)
		}

	case domain.ActionNextQuestion:
		if sess.atQuestion >= len(sess.meta.Questions) {
			return fmt.Errorf("%w: no question after %d", domain.ErrInvalidState, sess.atQuestion)
		}
		sess.cancelPendingTimerLocked()
		sess.atQuestion++
		sess.state = domain.StateQuestionCountdown
		s.armTimerLocked(sess, s.countdown, domain.ActionSkipCountdown)

	case domain.ActionSkipCountdown:
		sess.cancelPendingTimerLocked()
		sess.questionOpenedAt = sess.now()
		sess.state = domain.StateQuestionOpen
		question := sess.meta.Questions[sess.atQuestion-1]
		s.armTimerLocked(sess, time.Duration(question.Duration)*time.Second, domain.ActionQuestionClose)

	case domain.ActionQuestionClose:
		sess.cancelPendingTimerLocked()
		sess.state = domain.StateQuestionClose
		scoreQuestion(sess)

	case domain.ActionGoToAnswer:
		// Skipping straight from an open question scores it first.
		if sess.state == domain.StateQuestionOpen {
			sess.cancelPendingTimerLocked()
			scoreQuestion(sess)
		}
		sess.state = domain.StateAnswerShow

	case domain.ActionGoToFinalResults:
		sess.atQuestion = 0
		sess.state = domain.StateFinalResults
	}
	return nil
}

// armTimerLocked schedules the next automatic transition, replacing any
// pending one.
func (s *SessionService) armTimerLocked(sess *Session, d time.Duration, action domain.Action) {
	sess.cancelPendingTimerLocked()
	epoch := sess.timerEpoch
	sessionID := sess.id
	sess.cancelTimer = s.scheduler.Schedule(d, func() {
		s.timerFired(sessionID, epoch, action)
	})
}

// timerFired is the scheduler callback. A session that is gone or a stale
// epoch is an expected race, not an error.
func (s *SessionService) timerFired(sessionID int, epoch uint64, action domain.Action) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.timerEpoch != epoch {
		return
	}
	if err := s.applyActionLocked(sess, action); err != nil {
		log.Printf("timer action %s on session %d: %v", action, sessionID, err)
	}
}

// GetSessionInfo returns the admin view of a session.
func (s *SessionService) GetSessionInfo(ctx context.Context, token string, quizID, sessionID int) (SessionInfo, error) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return SessionInfo{}, domain.ErrSessionNotFound
	}
	if err := s.authorize(ctx, token, quizID); err != nil {
		return SessionInfo{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	names := make([]string, 0, len(sess.players))
	for _, p := range sess.players {
		names = append(names, p.Name)
	}
	return SessionInfo{
		State:      sess.state,
		AtQuestion: sess.atQuestion,
		Players:    names,
		Metadata:   sess.meta.Clone(),
	}, nil
}

// ListSessions returns the active and archived session ids of a quiz, both
// ascending.
func (s *SessionService) ListSessions(ctx context.Context, token string, quizID int) (SessionList, error) {
	if err := s.authorize(ctx, token, quizID); err != nil {
		return SessionList{}, err
	}

	active := []int{}
	for _, sess := range s.sessions.List() {
		if sess.QuizID() == quizID {
			active = append(active, sess.ID())
		}
	}
	sort.Ints(active)

	inactive, err := s.archive.ListIDs(ctx, quizID)
	if err != nil {
		return SessionList{}, err
	}
	sort.Ints(inactive)
	return SessionList{ActiveSessions: active, InactiveSessions: inactive}, nil
}

// GetSessionResults returns the final scoreboard. Only valid once the session
// reached FINAL_RESULTS.
func (s *SessionService) GetSessionResults(ctx context.Context, token string, quizID, sessionID int) (domain.SessionResults, error) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.SessionResults{}, domain.ErrSessionNotFound
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state != domain.StateFinalResults {
		return domain.SessionResults{}, fmt.Errorf("%w: session is not in FINAL_RESULTS", domain.ErrInvalidState)
	}
	if err := s.authorize(ctx, token, quizID); err != nil {
		return domain.SessionResults{}, err
	}
	return domain.SessionResults{
		UsersRankedByScore: sess.rankedUsersLocked(),
		QuestionResults:    append([]domain.QuestionResult(nil), sess.results...),
	}, nil
}

// GetSessionResultsCSV renders the per-question scores and ranks as CSV, one
// row per player sorted by name.
func (s *SessionService) GetSessionResultsCSV(ctx context.Context, token string, quizID, sessionID int) (string, error) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return "", domain.ErrSessionNotFound
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state != domain.StateFinalResults {
		return "", fmt.Errorf("%w: session is not in FINAL_RESULTS", domain.ErrInvalidState)
	}
	if err := s.authorize(ctx, token, quizID); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("Player")
	for i := 1; i <= len(sess.meta.Questions); i++ {
		fmt.Fprintf(&b, ",question%dscore,question%drank", i, i)
	}

	players := append([]*domain.Player(nil), sess.players...)
	sort.Slice(players, func(i, j int) bool { return players[i].Name < players[j].Name })
	for _, p := range players {
		b.WriteString("\n")
		b.WriteString(p.Name)
		for i := range sess.meta.Questions {
			fmt.Fprintf(&b, ",%d,%d", p.Submissions[i].Score, p.Submissions[i].Rank)
		}
	}
	return b.String(), nil
}

// authorize resolves the token and checks quiz ownership.
func (s *SessionService) authorize(ctx context.Context, token string, quizID int) error {
	userID, err := s.identities.Resolve(token)
	if err != nil {
		return err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return err
	}
	if quiz.OwnerID != userID {
		return fmt.Errorf("%w: user does not own quiz %d", domain.ErrForbidden, quizID)
	}
	return nil
}

func (s *SessionService) activeSessionCount(quizID int) int {
	count := 0
	for _, sess := range s.sessions.List() {
		if sess.QuizID() == quizID {
			count++
		}
	}
	return count
}

func (s *SessionService) newSessionID() int {
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	for {
		id := s.rnd.Intn(sessionIDSpan) + sessionIDFloor
		if _, exists := s.sessions.Get(id); !exists {
			return id
		}
	}
}
