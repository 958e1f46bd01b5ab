package app

import (
	"fmt"
	"math"
	"math/rand"
	"unicode/utf8"

	"quizhost-service/internal/domain"
)

// PlayerStatus is what a joined player sees about their session.
type PlayerStatus struct {
	State        domain.State `json:"state"`
	NumQuestions int          `json:"numQuestions"`
	AtQuestion   int          `json:"atQuestion"`
}

// PlayerAnswer is an answer option stripped of its correctness flag.
type PlayerAnswer struct {
	ID     int    `json:"answerId"`
	Text   string `json:"answer"`
	Colour string `json:"colour"`
}

// PlayerQuestion is the question content shown to players while it is live.
type PlayerQuestion struct {
	QuestionID   int            `json:"questionId"`
	Prompt       string         `json:"question"`
	Duration     int            `json:"duration"`
	ThumbnailURL string         `json:"thumbnailUrl,omitempty"`
	Points       int            `json:"points"`
	Answers      []PlayerAnswer `json:"answers"`
}

const (
	generatedNameLetters = 5
	generatedNameDigits  = 3
	maxChatMessageLen    = 100
)

// Join adds a player to a lobby. An empty name gets a generated one. Reaching
// autoStartNum starts the session immediately.
func (s *SessionService) Join(sessionID int, name string) (int, error) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return 0, domain.ErrSessionNotFound
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if name != "" && sess.playerByNameLocked(name) != nil {
		return 0, fmt.Errorf("%w: name %q is already taken", domain.ErrValidation, name)
	}
	if sess.state != domain.StateLobby {
		return 0, fmt.Errorf("%w: session is not in LOBBY", domain.ErrInvalidState)
	}
	if name == "" {
		name = s.generateName()
	}

	playerID := smallestUnusedID(sess.players)
	submissions := make([]domain.Submission, 0, len(sess.meta.Questions))
	for _, q := range sess.meta.Questions {
		submissions = append(submissions, domain.Submission{QuestionID: q.ID, AnswerIDs: []int{}})
	}
	sess.players = append(sess.players, &domain.Player{
		ID:          playerID,
		Name:        name,
		Submissions: submissions,
	})

	if sess.autoStartNum != 0 && len(sess.players) == sess.autoStartNum {
		if err := s.applyActionLocked(sess, domain.ActionNextQuestion); err != nil {
			return 0, err
		}
	}
	return playerID, nil
}

// GetPlayerStatus reports the state of the player's session.
func (s *SessionService) GetPlayerStatus(playerID int) (PlayerStatus, error) {
	sess, ok := s.sessionForPlayer(playerID)
	if !ok {
		return PlayerStatus{}, domain.ErrPlayerNotFound
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return PlayerStatus{
		State:        sess.state,
		NumQuestions: len(sess.meta.Questions),
		AtQuestion:   sess.atQuestion,
	}, nil
}

// GetPlayerQuestion returns the content of the question the session is
// currently on, without correctness flags.
func (s *SessionService) GetPlayerQuestion(playerID, position int) (PlayerQuestion, error) {
	sess, ok := s.sessionForPlayer(playerID)
	if !ok {
		return PlayerQuestion{}, domain.ErrPlayerNotFound
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if position > len(sess.meta.Questions) {
		return PlayerQuestion{}, fmt.Errorf("%w: question position %d out of range", domain.ErrValidation, position)
	}
	if position != sess.atQuestion {
		return PlayerQuestion{}, fmt.Errorf("%w: session is not on question %d", domain.ErrInvalidState, position)
	}
	switch sess.state {
	case domain.StateLobby, domain.StateQuestionCountdown, domain.StateEnd:
		return PlayerQuestion{}, fmt.Errorf("%w: question is not visible in state %s", domain.ErrInvalidState, sess.state)
	}

	q := sess.meta.Questions[position-1]
	answers := make([]PlayerAnswer, 0, len(q.Answers))
	for _, a := range q.Answers {
		answers = append(answers, PlayerAnswer{ID: a.ID, Text: a.Text, Colour: a.Colour})
	}
	return PlayerQuestion{
		QuestionID:   q.ID,
		Prompt:       q.Prompt,
		Duration:     q.Duration,
		ThumbnailURL: q.ThumbnailURL,
		Points:       q.Points,
		Answers:      answers,
	}, nil
}

// SubmitAnswers records a player's answer set for the open question,
// replacing any earlier submission and restamping its latency.
func (s *SessionService) SubmitAnswers(playerID, position int, answerIDs []int) error {
	sess, ok := s.sessionForPlayer(playerID)
	if !ok {
		return domain.ErrPlayerNotFound
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if position > len(sess.meta.Questions) {
		return fmt.Errorf("%w: question position %d out of range", domain.ErrValidation, position)
	}
	if sess.state != domain.StateQuestionOpen {
		return fmt.Errorf("%w: session is not in QUESTION_OPEN", domain.ErrInvalidState)
	}
	if position != sess.atQuestion {
		return fmt.Errorf("%w: session is not on question %d", domain.ErrInvalidState, position)
	}

	question := sess.meta.Questions[position-1]
	if err := validateAnswerIDs(question, answerIDs); err != nil {
		return err
	}

	player := sess.playerByIDLocked(playerID)
	sub := &player.Submissions[position-1]
	sub.AnswerIDs = append([]int(nil), answerIDs...)
	sub.AnswerTime = int(math.Round(sess.now().Sub(sess.questionOpenedAt).Seconds()))
	return nil
}

// GetPlayerQuestionResult returns the result of the question the session is
// showing answers for.
func (s *SessionService) GetPlayerQuestionResult(playerID, position int) (domain.QuestionResult, error) {
	sess, ok := s.sessionForPlayer(playerID)
	if !ok {
		return domain.QuestionResult{}, domain.ErrPlayerNotFound
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if position > len(sess.meta.Questions) {
		return domain.QuestionResult{}, fmt.Errorf("%w: question position %d out of range", domain.ErrValidation, position)
	}
	if sess.state != domain.StateAnswerShow {
		return domain.QuestionResult{}, fmt.Errorf("%w: session is not in ANSWER_SHOW", domain.ErrInvalidState)
	}
	if position != sess.atQuestion {
		return domain.QuestionResult{}, fmt.Errorf("%w: session is not on question %d", domain.ErrInvalidState, position)
	}
	return sess.results[position-1], nil
}

// GetFinalResults returns the scoreboard once the session reached
// FINAL_RESULTS.
func (s *SessionService) GetFinalResults(playerID int) (domain.SessionResults, error) {
	sess, ok := s.sessionForPlayer(playerID)
	if !ok {
		return domain.SessionResults{}, domain.ErrPlayerNotFound
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state != domain.StateFinalResults {
		return domain.SessionResults{}, fmt.Errorf("%w: session is not in FINAL_RESULTS", domain.ErrInvalidState)
	}
	return domain.SessionResults{
		UsersRankedByScore: sess.rankedUsersLocked(),
		QuestionResults:    append([]domain.QuestionResult(nil), sess.results...),
	}, nil
}

// Chat appends a message to the session's chat log. Messages are accepted in
// every session state.
func (s *SessionService) Chat(playerID int, message string) error {
	sess, ok := s.sessionForPlayer(playerID)
	if !ok {
		return domain.ErrPlayerNotFound
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	// Length is counted in characters, not bytes.
	if n := utf8.RuneCountInString(message); n < 1 || n > maxChatMessageLen {
		return fmt.Errorf("%w: message must be 1-%d characters", domain.ErrValidation, maxChatMessageLen)
	}
	player := sess.playerByIDLocked(playerID)
	sess.messages = append(sess.messages, domain.ChatMessage{
		PlayerID:   playerID,
		PlayerName: player.Name,
		Body:       message,
		TimeSent:   sess.now().Unix(),
	})
	return nil
}

// ReadChat returns the session's chat log, newest first.
func (s *SessionService) ReadChat(playerID int) ([]domain.ChatMessage, error) {
	sess, ok := s.sessionForPlayer(playerID)
	if !ok {
		return nil, domain.ErrPlayerNotFound
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	out := make([]domain.ChatMessage, 0, len(sess.messages))
	for i := len(sess.messages) - 1; i >= 0; i-- {
		out = append(out, sess.messages[i])
	}
	return out, nil
}

// sessionForPlayer scans the live sessions for the one holding the player.
// Players are never removed, so the session stays valid after the scan.
func (s *SessionService) sessionForPlayer(playerID int) (*Session, bool) {
	for _, sess := range s.sessions.List() {
		sess.mu.Lock()
		found := sess.playerByIDLocked(playerID) != nil
		sess.mu.Unlock()
		if found {
			return sess, true
		}
	}
	return nil, false
}

func validateAnswerIDs(question domain.Question, answerIDs []int) error {
	if len(answerIDs) == 0 {
		return fmt.Errorf("%w: at least one answer id is required", domain.ErrValidation)
	}
	valid := make(map[int]bool, len(question.Answers))
	for _, a := range question.Answers {
		valid[a.ID] = true
	}
	seen := make(map[int]bool, len(answerIDs))
	for _, id := range answerIDs {
		if !valid[id] {
			return fmt.Errorf("%w: answer id %d does not belong to this question", domain.ErrValidation, id)
		}
		if seen[id] {
			return fmt.Errorf("%w: duplicate answer id %d", domain.ErrValidation, id)
		}
		seen[id] = true
	}
	return nil
}

func smallestUnusedID(players []*domain.Player) int {
	used := make(map[int]bool, len(players))
	for _, p := range players {
		used[p.ID] = true
	}
	id := 1
	for used[id] {
		id++
	}
	return id
}

// generateName builds five distinct lowercase letters followed by three
// distinct digits.
func (s *SessionService) generateName() string {
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	letters := pickDistinct(s.rnd, generatedNameLetters, 26)
	digits := pickDistinct(s.rnd, generatedNameDigits, 10)

	name := make([]byte, 0, generatedNameLetters+generatedNameDigits)
	for _, n := range letters {
		name = append(name, byte('a'+n))
	}
	for _, n := range digits {
		name = append(name, byte('0'+n))
	}
	return string(name)
}

func pickDistinct(rnd *rand.Rand, count, max int) []int {
	picked := make([]int, 0, count)
	used := make(map[int]bool, count)
	for len(picked) < count {
		n := rnd.Intn(max)
		if used[n] {
			continue
		}
		used[n] = true
		picked = append(picked, n)
	}
	return picked
}
