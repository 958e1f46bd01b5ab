package domain

// State is the lifecycle phase of a quiz session.
type State string

const (
	StateLobby             State = "LOBBY"
	StateQuestionCountdown State = "QUESTION_COUNTDOWN"
	StateQuestionOpen      State = "QUESTION_OPEN"
	StateQuestionClose     State = "QUESTION_CLOSE"
	StateAnswerShow        State = "ANSWER_SHOW"
	StateFinalResults      State = "FINAL_RESULTS"
	StateEnd               State = "END"
)

// Action advances a session through its lifecycle. Actions are issued by the
// owning admin or by an elapsed timer.
type Action string

const (
	ActionNextQuestion     Action = "NEXT_QUESTION"
	ActionSkipCountdown    Action = "SKIP_COUNTDOWN"
	ActionQuestionClose    Action = "QUESTION_CLOSE"
	ActionGoToAnswer       Action = "GO_TO_ANSWER"
	ActionGoToFinalResults Action = "GO_TO_FINAL_RESULTS"
	ActionEnd              Action = "END"
)

var legalActions = map[State][]Action{
	StateLobby:             {ActionNextQuestion, ActionEnd},
	StateQuestionCountdown: {ActionNextQuestion, ActionSkipCountdown, ActionEnd},
	StateQuestionOpen:      {ActionGoToAnswer, ActionQuestionClose, ActionEnd},
	StateQuestionClose:     {ActionGoToAnswer, ActionEnd},
	StateAnswerShow:        {ActionGoToFinalResults, ActionEnd, ActionNextQuestion},
	StateFinalResults:      {ActionEnd},
	StateEnd:               {},
}

// Allows reports whether the action is legal in this state.
func (s State) Allows(action Action) bool {
	for _, a := range legalActions[s] {
		if a == action {
			return true
		}
	}
	return false
}

// Answer is one selectable option of a question.
type Answer struct {
	ID      int    `json:"answerId"`
	Text    string `json:"answer"`
	Colour  string `json:"colour"`
	Correct bool   `json:"correct"`
}

// Question is an MCQ question with one or more correct answers.
type Question struct {
	ID           int      `json:"questionId"`
	Prompt       string   `json:"question"`
	Duration     int      `json:"duration"` // seconds
	Points       int      `json:"points"`
	ThumbnailURL string   `json:"thumbnailUrl,omitempty"`
	Answers      []Answer `json:"answers"`
}

// CorrectAnswerIDs returns the ids of all correct answers.
func (q Question) CorrectAnswerIDs() []int {
	var ids []int
	for _, a := range q.Answers {
		if a.Correct {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

// QuizRecord is a quiz definition as supplied by the quiz CRUD collaborator.
// A running session holds its own deep copy so later edits to the record
// cannot leak into the session.
type QuizRecord struct {
	ID             int        `json:"quizId"`
	OwnerID        int        `json:"ownerId"`
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	TimeCreated    int64      `json:"timeCreated"`
	TimeLastEdited int64      `json:"timeLastEdited"`
	NumQuestions   int        `json:"numQuestions"`
	Duration       int        `json:"duration"`
	ThumbnailURL   string     `json:"thumbnailUrl,omitempty"`
	Questions      []Question `json:"questions"`
}

// Clone returns a deep copy sharing no mutable substructure with the receiver.
func (r QuizRecord) Clone() QuizRecord {
	out := r
	out.Questions = make([]Question, len(r.Questions))
	for i, q := range r.Questions {
		cq := q
		cq.Answers = append([]Answer(nil), q.Answers...)
		out.Questions[i] = cq
	}
	return out
}

// Submission is a player's answer to one question. AnswerIDs is overwritten
// wholesale on every submit while the question is open.
type Submission struct {
	QuestionID int   `json:"questionId"`
	AnswerIDs  []int `json:"answerIds"`
	AnswerTime int   `json:"answerTime"` // seconds after the question opened
	Score      int   `json:"score"`      // rounded, per question
	Rank       int   `json:"rank"`
}

// Player is a participant in one session. Score accumulates unrounded and is
// rounded only for display.
type Player struct {
	ID          int          `json:"playerId"`
	Name        string       `json:"name"`
	Score       float64      `json:"-"`
	Submissions []Submission `json:"submissions"`
}

// QuestionResult is the per-question outcome, overwritten when the question
// closes.
type QuestionResult struct {
	QuestionID        int      `json:"questionId"`
	PlayersCorrect    []string `json:"playersCorrectList"`
	AverageAnswerTime int      `json:"averageAnswerTime"`
	PercentCorrect    int      `json:"percentCorrect"`
}

// ChatMessage is one entry in a session's chat log.
type ChatMessage struct {
	PlayerID   int    `json:"playerId"`
	PlayerName string `json:"playerName"`
	Body       string `json:"messageBody"`
	TimeSent   int64  `json:"timeSent"`
}

// UserRank pairs a player name with their rounded total score.
type UserRank struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// SessionResults is the final scoreboard of a finished run.
type SessionResults struct {
	UsersRankedByScore []UserRank       `json:"usersRankedByScore"`
	QuestionResults    []QuestionResult `json:"questionResults"`
}

// SessionRecord is the serializable form of a session, used when a session is
// archived and for admin info views.
type SessionRecord struct {
	SessionID  int              `json:"sessionId"`
	QuizID     int              `json:"quizId"`
	State      State            `json:"state"`
	AtQuestion int              `json:"atQuestion"`
	Players    []Player         `json:"players"`
	Results    []QuestionResult `json:"results"`
	Messages   []ChatMessage    `json:"messages"`
	Metadata   QuizRecord       `json:"metadata"`
}
