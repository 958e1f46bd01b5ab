package domain

import (
	"errors"
	"math/rand"
	"strings"
	"testing"
)

func validBody() QuestionBody {
	return QuestionBody{
		Prompt:   "What colour is the sky?",
		Duration: 30,
		Points:   5,
		Answers: []AnswerBody{
			{Text: "Blue", Correct: true},
			{Text: "Green"},
		},
	}
}

func TestValidateQuestionBody(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*QuestionBody)
		quiz   int
		ok     bool
	}{
		{name: "valid", mutate: func(*QuestionBody) {}, quiz: 30, ok: true},
		{name: "prompt too short", mutate: func(b *QuestionBody) { b.Prompt = "abcd" }, quiz: 30},
		{name: "prompt too long", mutate: func(b *QuestionBody) { b.Prompt = strings.Repeat("x", 51) }, quiz: 30},
		{name: "one answer", mutate: func(b *QuestionBody) { b.Answers = b.Answers[:1] }, quiz: 30},
		{name: "seven answers", mutate: func(b *QuestionBody) {
			b.Answers = nil
			for i := 0; i < 7; i++ {
				b.Answers = append(b.Answers, AnswerBody{Text: strings.Repeat("a", i+1), Correct: i == 0})
			}
		}, quiz: 30},
		{name: "zero duration", mutate: func(b *QuestionBody) { b.Duration = 0 }, quiz: 30},
		{name: "quiz over three minutes", mutate: func(*QuestionBody) {}, quiz: 181},
		{name: "quiz exactly three minutes", mutate: func(*QuestionBody) {}, quiz: 180, ok: true},
		{name: "zero points", mutate: func(b *QuestionBody) { b.Points = 0 }, quiz: 30},
		{name: "eleven points", mutate: func(b *QuestionBody) { b.Points = 11 }, quiz: 30},
		{name: "empty answer text", mutate: func(b *QuestionBody) { b.Answers[1].Text = "" }, quiz: 30},
		{name: "answer text too long", mutate: func(b *QuestionBody) { b.Answers[1].Text = strings.Repeat("x", 31) }, quiz: 30},
		{name: "duplicate answer text", mutate: func(b *QuestionBody) { b.Answers[1].Text = "Blue" }, quiz: 30},
		{name: "no correct answer", mutate: func(b *QuestionBody) { b.Answers[0].Correct = false }, quiz: 30},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := validBody()
			tc.mutate(&body)
			err := ValidateQuestionBody(body, tc.quiz)
			if tc.ok && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestNewQuestionAssignsDistinctColours(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	body := validBody()
	body.Answers = []AnswerBody{
		{Text: "a", Correct: true},
		{Text: "b"}, {Text: "c"}, {Text: "d"}, {Text: "e"}, {Text: "f"},
	}

	q, err := NewQuestion(rnd, 3, body, 30)
	if err != nil {
		t.Fatalf("new question: %v", err)
	}
	if q.ID != 3 || len(q.Answers) != 6 {
		t.Fatalf("unexpected question %+v", q)
	}

	seen := map[string]bool{}
	valid := map[string]bool{"red": true, "yellow": true, "green": true, "blue": true, "white": true, "purple": true}
	for i, a := range q.Answers {
		if a.ID != i+1 {
			t.Fatalf("answer ids should be sequential, got %+v", q.Answers)
		}
		if !valid[a.Colour] {
			t.Fatalf("unknown colour %q", a.Colour)
		}
		if seen[a.Colour] {
			t.Fatalf("colour %q assigned twice", a.Colour)
		}
		seen[a.Colour] = true
	}
}

func TestCorrectAnswerIDs(t *testing.T) {
	q := Question{Answers: []Answer{
		{ID: 1, Correct: true},
		{ID: 2},
		{ID: 3, Correct: true},
	}}
	ids := q.CorrectAnswerIDs()
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 3 {
		t.Fatalf("expected [1 3], got %v", ids)
	}
}

func TestQuizRecordCloneIsDeep(t *testing.T) {
	original := QuizRecord{
		ID: 1,
		Questions: []Question{
			{ID: 1, Prompt: "p", Answers: []Answer{{ID: 1, Text: "a"}}},
		},
	}
	clone := original.Clone()
	clone.Questions[0].Prompt = "edited"
	clone.Questions[0].Answers[0].Text = "edited"

	if original.Questions[0].Prompt != "p" || original.Questions[0].Answers[0].Text != "a" {
		t.Fatalf("clone must not share substructure, original is %+v", original.Questions[0])
	}
}

func TestStateAllows(t *testing.T) {
	if !StateLobby.Allows(ActionNextQuestion) {
		t.Fatalf("LOBBY should allow NEXT_QUESTION")
	}
	if StateLobby.Allows(ActionGoToAnswer) {
		t.Fatalf("LOBBY should not allow GO_TO_ANSWER")
	}
	if !StateAnswerShow.Allows(ActionNextQuestion) {
		t.Fatalf("ANSWER_SHOW should allow NEXT_QUESTION")
	}
	if StateEnd.Allows(ActionEnd) {
		t.Fatalf("END is terminal")
	}
	for _, state := range []State{StateLobby, StateQuestionCountdown, StateQuestionOpen, StateQuestionClose, StateAnswerShow, StateFinalResults} {
		if !state.Allows(ActionEnd) {
			t.Fatalf("%s should allow END", state)
		}
	}
}
