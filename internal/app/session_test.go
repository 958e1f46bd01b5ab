package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"quizhost-service/internal/domain"
)

// ---- in-package fakes -----------------------------------------------------

type fakeSessions struct {
	mu sync.Mutex
	m  map[int]*Session
}

func newFakeSessions() *fakeSessions { return &fakeSessions{m: make(map[int]*Session)} }

func (f *fakeSessions) Add(s *Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[s.ID()] = s
}

func (f *fakeSessions) Get(id int) (*Session, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.m[id]
	return s, ok
}

func (f *fakeSessions) Remove(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.m, id)
}

func (f *fakeSessions) List() []*Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Session, 0, len(f.m))
	for _, s := range f.m {
		out = append(out, s)
	}
	return out
}

type fakeArchive struct {
	mu      sync.Mutex
	records []domain.SessionRecord
}

func (f *fakeArchive) Archive(_ context.Context, record domain.SessionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, record)
	return nil
}

func (f *fakeArchive) ListIDs(_ context.Context, quizID int) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := []int{}
	for _, r := range f.records {
		if r.QuizID == quizID {
			ids = append(ids, r.SessionID)
		}
	}
	return ids, nil
}

type fakeQuizzes struct {
	mu sync.Mutex
	m  map[int]domain.QuizRecord
}

func (f *fakeQuizzes) GetQuiz(_ context.Context, quizID int) (domain.QuizRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	quiz, ok := f.m[quizID]
	if !ok {
		return domain.QuizRecord{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}

func (f *fakeQuizzes) put(quiz domain.QuizRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[quiz.ID] = quiz
}

type fakeIdentities struct {
	tokens map[string]int
}

func (f *fakeIdentities) Resolve(token string) (int, error) {
	if id, ok := f.tokens[token]; ok {
		return id, nil
	}
	return 0, fmt.Errorf("%w: unknown token", domain.ErrUnauthenticated)
}

type fakeTimer struct {
	d         time.Duration
	fn        func()
	cancelled bool
	fired     bool
}

// fakeScheduler records scheduled callbacks so tests fire them by hand.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (f *fakeScheduler) Schedule(d time.Duration, fn func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{d: d, fn: fn}
	f.timers = append(f.timers, t)
	return func() {
		f.mu.Lock()
		t.cancelled = true
		f.mu.Unlock()
	}
}

// fireLast runs the most recently armed timer, cancelled or not, the way a
// real timer that already left the runtime queue would fire.
func (f *fakeScheduler) fireLast() {
	f.mu.Lock()
	t := f.timers[len(f.timers)-1]
	t.fired = true
	f.mu.Unlock()
	t.fn()
}

// firePending runs the most recent timer only if it has not been cancelled.
func (f *fakeScheduler) firePending(t *testing.T) {
	t.Helper()
	f.mu.Lock()
	var pending *fakeTimer
	for _, timer := range f.timers {
		if !timer.cancelled && !timer.fired {
			pending = timer
		}
	}
	if pending == nil {
		f.mu.Unlock()
		t.Fatalf("no pending timer to fire")
	}
	pending.fired = true
	f.mu.Unlock()
	pending.fn()
}

func (f *fakeScheduler) pendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, timer := range f.timers {
		if !timer.cancelled && !timer.fired {
			n++
		}
	}
	return n
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// ---- fixture --------------------------------------------------------------

const (
	testToken  = "token-admin"
	otherToken = "token-other"
	testQuizID = 1
)

type testEnv struct {
	service   *SessionService
	sessions  *fakeSessions
	archive   *fakeArchive
	quizzes   *fakeQuizzes
	scheduler *fakeScheduler
	clock     *fakeClock
}

func testQuiz() domain.QuizRecord {
	return domain.QuizRecord{
		ID:           testQuizID,
		OwnerID:      1,
		Name:         "Capitals",
		NumQuestions: 2,
		Duration:     40,
		Questions: []domain.Question{
			{
				ID:       1,
				Prompt:   "Capital of France?",
				Duration: 30,
				Points:   4,
				Answers: []domain.Answer{
					{ID: 1, Text: "Paris", Colour: "red", Correct: true},
					{ID: 2, Text: "Lyon", Colour: "blue"},
					{ID: 3, Text: "Nice", Colour: "green"},
					{ID: 4, Text: "Lille", Colour: "yellow"},
					{ID: 5, Text: "Brest", Colour: "white"},
					{ID: 6, Text: "Metz", Colour: "purple"},
				},
			},
			{
				ID:       2,
				Prompt:   "Capital of Japan?",
				Duration: 10,
				Points:   6,
				Answers: []domain.Answer{
					{ID: 1, Text: "Tokyo", Colour: "red", Correct: true},
					{ID: 2, Text: "Osaka", Colour: "blue"},
				},
			},
		},
	}
}

func newTestEnv() *testEnv {
	env := &testEnv{
		sessions:  newFakeSessions(),
		archive:   &fakeArchive{},
		quizzes:   &fakeQuizzes{m: map[int]domain.QuizRecord{testQuizID: testQuiz()}},
		scheduler: &fakeScheduler{},
		clock:     newFakeClock(),
	}
	identities := &fakeIdentities{tokens: map[string]int{testToken: 1, otherToken: 2}}
	env.service = NewSessionService(env.sessions, env.archive, env.quizzes, identities, env.scheduler).
		WithClock(env.clock.Now)
	return env
}

func (env *testEnv) start(t *testing.T, autoStartNum int) int {
	t.Helper()
	id, err := env.service.StartSession(context.Background(), testToken, testQuizID, autoStartNum)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	return id
}

func (env *testEnv) transition(t *testing.T, sessionID int, action domain.Action) {
	t.Helper()
	if err := env.service.Transition(context.Background(), testToken, testQuizID, sessionID, action); err != nil {
		t.Fatalf("transition %s: %v", action, err)
	}
}

func (env *testEnv) state(t *testing.T, sessionID int) domain.State {
	t.Helper()
	sess, ok := env.sessions.Get(sessionID)
	if !ok {
		t.Fatalf("session %d not in store", sessionID)
	}
	return sess.State()
}

// ---- tests ----------------------------------------------------------------

func TestStartSessionBeginsInLobby(t *testing.T) {
	env := newTestEnv()
	id := env.start(t, 0)

	if got := env.state(t, id); got != domain.StateLobby {
		t.Fatalf("new session should be in LOBBY, got %s", got)
	}
	info, err := env.service.GetSessionInfo(context.Background(), testToken, testQuizID, id)
	if err != nil {
		t.Fatalf("session info: %v", err)
	}
	if info.AtQuestion != 0 || len(info.Players) != 0 {
		t.Fatalf("fresh session should have no question and no players, got %+v", info)
	}
}

func TestStartSessionValidation(t *testing.T) {
	env := newTestEnv()

	if _, err := env.service.StartSession(context.Background(), "bogus", testQuizID, 0); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
	if _, err := env.service.StartSession(context.Background(), testToken, 99, 0); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}
	if _, err := env.service.StartSession(context.Background(), otherToken, testQuizID, 0); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for non-owner, got %v", err)
	}
	if _, err := env.service.StartSession(context.Background(), testToken, testQuizID, 51); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for autoStartNum 51, got %v", err)
	}

	empty := testQuiz()
	empty.ID = 2
	empty.Questions = nil
	env.quizzes.put(empty)
	if _, err := env.service.StartSession(context.Background(), testToken, 2, 0); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for empty quiz, got %v", err)
	}
}

func TestSessionLimitPerQuiz(t *testing.T) {
	env := newTestEnv()
	ids := make([]int, 0, 10)
	for i := 0; i < 10; i++ {
		ids = append(ids, env.start(t, 0))
	}

	_, err := env.service.StartSession(context.Background(), testToken, testQuizID, 0)
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("11th session should hit the cap, got %v", err)
	}

	// Ending one frees a slot.
	env.transition(t, ids[0], domain.ActionEnd)
	if _, err := env.service.StartSession(context.Background(), testToken, testQuizID, 0); err != nil {
		t.Fatalf("start after freeing a slot: %v", err)
	}
}

func TestIllegalActionsRejectedWithoutSideEffects(t *testing.T) {
	env := newTestEnv()
	id := env.start(t, 0)

	for _, action := range []domain.Action{
		domain.ActionSkipCountdown,
		domain.ActionQuestionClose,
		domain.ActionGoToAnswer,
		domain.ActionGoToFinalResults,
	} {
		err := env.service.Transition(context.Background(), testToken, testQuizID, id, action)
		if !errors.Is(err, domain.ErrInvalidState) {
			t.Fatalf("action %s from LOBBY should be invalid, got %v", action, err)
		}
	}
	if got := env.state(t, id); got != domain.StateLobby {
		t.Fatalf("rejected actions must not change state, got %s", got)
	}
	if env.scheduler.pendingCount() != 0 {
		t.Fatalf("rejected actions must not arm timers")
	}
}

func TestQuestionFlowWithTimers(t *testing.T) {
	env := newTestEnv()
	id := env.start(t, 0)

	env.transition(t, id, domain.ActionNextQuestion)
	if got := env.state(t, id); got != domain.StateQuestionCountdown {
		t.Fatalf("expected QUESTION_COUNTDOWN, got %s", got)
	}
	if env.scheduler.pendingCount() != 1 {
		t.Fatalf("countdown timer should be armed")
	}

	// Countdown elapses: the question opens and its duration timer arms.
	env.scheduler.firePending(t)
	if got := env.state(t, id); got != domain.StateQuestionOpen {
		t.Fatalf("expected QUESTION_OPEN after countdown, got %s", got)
	}
	if env.scheduler.pendingCount() != 1 {
		t.Fatalf("question duration timer should be armed")
	}

	// Question duration elapses: the question closes and is scored.
	env.scheduler.firePending(t)
	if got := env.state(t, id); got != domain.StateQuestionClose {
		t.Fatalf("expected QUESTION_CLOSE after duration, got %s", got)
	}
	if env.scheduler.pendingCount() != 0 {
		t.Fatalf("no timer should remain after close")
	}

	env.transition(t, id, domain.ActionGoToAnswer)
	env.transition(t, id, domain.ActionNextQuestion)
	if got := env.state(t, id); got != domain.StateQuestionCountdown {
		t.Fatalf("expected countdown for second question, got %s", got)
	}

	sess, _ := env.sessions.Get(id)
	sess.mu.Lock()
	atQuestion := sess.atQuestion
	sess.mu.Unlock()
	if atQuestion != 2 {
		t.Fatalf("expected atQuestion 2, got %d", atQuestion)
	}
}

func TestNextQuestionBeyondLastRejected(t *testing.T) {
	env := newTestEnv()
	id := env.start(t, 0)

	env.transition(t, id, domain.ActionNextQuestion)
	env.transition(t, id, domain.ActionSkipCountdown)
	env.transition(t, id, domain.ActionGoToAnswer)
	env.transition(t, id, domain.ActionNextQuestion)
	env.transition(t, id, domain.ActionSkipCountdown)
	env.transition(t, id, domain.ActionGoToAnswer)

	err := env.service.Transition(context.Background(), testToken, testQuizID, id, domain.ActionNextQuestion)
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("advancing past the last question should fail, got %v", err)
	}
}

func TestSkipCountdownCancelsCountdownTimer(t *testing.T) {
	env := newTestEnv()
	id := env.start(t, 0)

	env.transition(t, id, domain.ActionNextQuestion)
	env.transition(t, id, domain.ActionSkipCountdown)
	if got := env.state(t, id); got != domain.StateQuestionOpen {
		t.Fatalf("expected QUESTION_OPEN, got %s", got)
	}

	// The cancelled countdown callback may still fire from the runtime
	// queue; a stale epoch must make it a no-op.
	env.scheduler.timers[0].fn()
	if got := env.state(t, id); got != domain.StateQuestionOpen {
		t.Fatalf("stale countdown timer must not re-apply, got %s", got)
	}
}

func TestScoringNotDoubledByLateTimer(t *testing.T) {
	env := newTestEnv()
	id := env.start(t, 0)
	playerID, err := env.service.Join(id, "Solo")
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	env.transition(t, id, domain.ActionNextQuestion)
	env.transition(t, id, domain.ActionSkipCountdown)
	if err := env.service.SubmitAnswers(playerID, 1, []int{1}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Manual close scores the question and cancels the duration timer.
	env.transition(t, id, domain.ActionQuestionClose)

	sess, _ := env.sessions.Get(id)
	sess.mu.Lock()
	scoreAfterClose := sess.players[0].Score
	sess.mu.Unlock()
	if scoreAfterClose != 4 {
		t.Fatalf("expected 4 points after close, got %v", scoreAfterClose)
	}

	// The already-dequeued duration timer fires late anyway.
	env.scheduler.fireLast()

	sess.mu.Lock()
	scoreAfterLateTimer := sess.players[0].Score
	state := sess.state
	sess.mu.Unlock()
	if scoreAfterLateTimer != scoreAfterClose {
		t.Fatalf("late timer must not re-score: %v != %v", scoreAfterLateTimer, scoreAfterClose)
	}
	if state != domain.StateQuestionClose {
		t.Fatalf("late timer must not change state, got %s", state)
	}
}

func TestEndArchivesSessionFromAnyState(t *testing.T) {
	env := newTestEnv()
	id := env.start(t, 0)
	env.transition(t, id, domain.ActionNextQuestion)

	env.transition(t, id, domain.ActionEnd)

	if _, ok := env.sessions.Get(id); ok {
		t.Fatalf("ended session must leave the live store")
	}
	ids, _ := env.archive.ListIDs(context.Background(), testQuizID)
	if len(ids) != 1 || ids[0] != id {
		t.Fatalf("expected archived id %d, got %v", id, ids)
	}
	record := env.archive.records[0]
	if record.State != domain.StateEnd || record.AtQuestion != 0 {
		t.Fatalf("archived record should be END with atQuestion 0, got %+v", record)
	}

	// The cancelled countdown timer firing later is a silent no-op.
	env.scheduler.fireLast()
	if len(env.archive.records) != 1 {
		t.Fatalf("stale timer after END must not archive again")
	}
}

func TestTransitionCheckPrecedence(t *testing.T) {
	env := newTestEnv()
	id := env.start(t, 0)

	// Unknown session wins over a bad token.
	err := env.service.Transition(context.Background(), "bogus", testQuizID, 99999, domain.ActionEnd)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected session not found first, got %v", err)
	}

	// Illegal action wins over a bad token.
	err = env.service.Transition(context.Background(), "bogus", testQuizID, id, domain.ActionSkipCountdown)
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid action before auth, got %v", err)
	}

	// Bad token wins over ownership.
	err = env.service.Transition(context.Background(), "bogus", testQuizID, id, domain.ActionEnd)
	if !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}

	// Valid token without ownership is forbidden.
	err = env.service.Transition(context.Background(), otherToken, testQuizID, id, domain.ActionEnd)
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	if got := env.state(t, id); got != domain.StateLobby {
		t.Fatalf("failed checks must not mutate the session, got %s", got)
	}
}

func TestSnapshotSurvivesQuizEdit(t *testing.T) {
	env := newTestEnv()
	id := env.start(t, 0)

	edited := testQuiz()
	edited.Questions[0].Prompt = "Edited after start"
	env.quizzes.put(edited)

	info, err := env.service.GetSessionInfo(context.Background(), testToken, testQuizID, id)
	if err != nil {
		t.Fatalf("session info: %v", err)
	}
	if info.Metadata.Questions[0].Prompt != "Capital of France?" {
		t.Fatalf("session snapshot must not see later quiz edits, got %q", info.Metadata.Questions[0].Prompt)
	}
}

func TestListSessions(t *testing.T) {
	env := newTestEnv()
	a := env.start(t, 0)
	b := env.start(t, 0)
	env.transition(t, a, domain.ActionEnd)

	list, err := env.service.ListSessions(context.Background(), testToken, testQuizID)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(list.ActiveSessions) != 1 || list.ActiveSessions[0] != b {
		t.Fatalf("expected active [%d], got %v", b, list.ActiveSessions)
	}
	if len(list.InactiveSessions) != 1 || list.InactiveSessions[0] != a {
		t.Fatalf("expected inactive [%d], got %v", a, list.InactiveSessions)
	}
}

func TestSessionResultsOnlyInFinalResults(t *testing.T) {
	env := newTestEnv()
	id := env.start(t, 0)

	_, err := env.service.GetSessionResults(context.Background(), testToken, testQuizID, id)
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("results before FINAL_RESULTS should fail, got %v", err)
	}
}
