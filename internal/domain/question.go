package domain

import (
	"fmt"
	"math/rand"
)

// Colours available for answer options. Each question draws without
// repetition, so six answers exhaust the palette.
var answerColours = []string{"red", "yellow", "green", "blue", "white", "purple"}

// AnswerBody is the authoring input for one answer option.
type AnswerBody struct {
	Text    string `json:"answer"`
	Correct bool   `json:"correct"`
}

// QuestionBody is the authoring input for a question.
type QuestionBody struct {
	Prompt       string       `json:"question"`
	Duration     int          `json:"duration"`
	Points       int          `json:"points"`
	ThumbnailURL string       `json:"thumbnailUrl,omitempty"`
	Answers      []AnswerBody `json:"answers"`
}

const maxQuizDuration = 180 // seconds, summed over all questions

// ValidateQuestionBody applies the authoring rules. quizDuration is the total
// duration of the quiz including the candidate question.
func ValidateQuestionBody(body QuestionBody, quizDuration int) error {
	if len(body.Prompt) < 5 || len(body.Prompt) > 50 {
		return fmt.Errorf("%w: question prompt must be 5-50 characters", ErrValidation)
	}
	if len(body.Answers) < 2 || len(body.Answers) > 6 {
		return fmt.Errorf("%w: question must have 2-6 answers", ErrValidation)
	}
	if body.Duration < 1 {
		return fmt.Errorf("%w: question duration must be positive", ErrValidation)
	}
	if quizDuration > maxQuizDuration {
		return fmt.Errorf("%w: quiz duration exceeds 3 minutes", ErrValidation)
	}
	if body.Points < 1 || body.Points > 10 {
		return fmt.Errorf("%w: points must be 1-10", ErrValidation)
	}
	seen := make(map[string]bool, len(body.Answers))
	hasCorrect := false
	for _, a := range body.Answers {
		if len(a.Text) < 1 || len(a.Text) > 30 {
			return fmt.Errorf("%w: answer text must be 1-30 characters", ErrValidation)
		}
		if seen[a.Text] {
			return fmt.Errorf("%w: duplicate answer text", ErrValidation)
		}
		seen[a.Text] = true
		if a.Correct {
			hasCorrect = true
		}
	}
	if !hasCorrect {
		return fmt.Errorf("%w: question has no correct answer", ErrValidation)
	}
	return nil
}

// NewQuestion builds a Question from an authoring body, assigning answer ids
// sequentially and colours randomly without repetition.
func NewQuestion(rnd *rand.Rand, id int, body QuestionBody, quizDuration int) (Question, error) {
	if err := ValidateQuestionBody(body, quizDuration); err != nil {
		return Question{}, err
	}

	palette := append([]string(nil), answerColours...)
	answers := make([]Answer, 0, len(body.Answers))
	for i, a := range body.Answers {
		pick := rnd.Intn(len(palette))
		answers = append(answers, Answer{
			ID:      i + 1,
			Text:    a.Text,
			Colour:  palette[pick],
			Correct: a.Correct,
		})
		palette = append(palette[:pick], palette[pick+1:]...)
	}

	return Question{
		ID:           id,
		Prompt:       body.Prompt,
		Duration:     body.Duration,
		Points:       body.Points,
		ThumbnailURL: body.ThumbnailURL,
		Answers:      answers,
	}, nil
}
