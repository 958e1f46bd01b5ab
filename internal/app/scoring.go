package app

import (
	"math"
	"sort"

	"quizhost-service/internal/domain"
)

// questionOutcome is the per-player working state while a question is scored.
type questionOutcome struct {
	player   *domain.Player
	answered bool
	correct  bool
	latency  int
	actual   float64 // unrounded points/k contribution
	rounded  int     // stored into the submission
	rank     int     // 0 for players who never submitted
}

// scoreQuestion computes the result of the session's current question and
// folds it into the players and the index-aligned QuestionResult slot. The
// state machine invokes it exactly once per question, when the question
// leaves QUESTION_OPEN; calling it again would double-count running totals.
// Caller holds the session lock.
func scoreQuestion(s *Session) {
	pos := s.atQuestion - 1
	question := s.meta.Questions[pos]
	correctIDs := question.CorrectAnswerIDs()

	outcomes := make([]*questionOutcome, 0, len(s.players))
	var correctOrder []*questionOutcome
	totalLatency := 0
	answeredCount := 0

	for _, p := range s.players {
		sub := p.Submissions[pos]
		o := &questionOutcome{player: p}
		if len(sub.AnswerIDs) > 0 {
			o.answered = true
			o.latency = sub.AnswerTime
			answeredCount++
			totalLatency += sub.AnswerTime
			// Correct means the submitted set equals the correct set exactly.
			o.correct = sameIDSet(sub.AnswerIDs, correctIDs)
			if o.correct {
				correctOrder = append(correctOrder, o)
			}
		}
		outcomes = append(outcomes, o)
	}

	// Fastest correct responder earns full points, the k-th fastest points/k.
	// Stable sort keeps join order on latency ties.
	sort.SliceStable(correctOrder, func(i, j int) bool {
		return correctOrder[i].latency < correctOrder[j].latency
	})
	for i, o := range correctOrder {
		o.actual = float64(question.Points) / float64(i+1)
		o.rounded = int(math.Round(o.actual))
	}

	// Question rank: 1-based position at which a player's rounded score first
	// appears in the full descending ordering. Players who never submitted
	// occupy positions but keep rank 0.
	ranked := append([]*questionOutcome(nil), outcomes...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].rounded > ranked[j].rounded
	})
	firstAt := make(map[int]int)
	for i, o := range ranked {
		if _, ok := firstAt[o.rounded]; !ok {
			firstAt[o.rounded] = i + 1
		}
	}
	for _, o := range ranked {
		if o.answered {
			o.rank = firstAt[o.rounded]
		}
	}

	names := make([]string, 0, len(correctOrder))
	for _, o := range correctOrder {
		names = append(names, o.player.Name)
	}
	sort.Strings(names)

	avgTime := 0
	if answeredCount > 0 {
		avgTime = int(math.Round(float64(totalLatency) / float64(answeredCount)))
	}
	percent := 0
	if len(s.players) > 0 {
		percent = int(math.Round(float64(len(correctOrder)) / float64(len(s.players)) * 100))
	}

	s.results[pos] = domain.QuestionResult{
		QuestionID:        question.ID,
		PlayersCorrect:    names,
		AverageAnswerTime: avgTime,
		PercentCorrect:    percent,
	}

	// Running totals accumulate unrounded; rounding happens per submission
	// and at display so errors do not compound across questions.
	for _, o := range outcomes {
		o.player.Score += o.actual
		o.player.Submissions[pos].Score = o.rounded
		o.player.Submissions[pos].Rank = o.rank
	}
}

func sameIDSet(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[int]bool, len(b))
	for _, id := range b {
		set[id] = true
	}
	for _, id := range a {
		if !set[id] {
			return false
		}
	}
	return true
}

func roundScore(score float64) int {
	return int(math.Round(score))
}

func sortUsersByScore(users []domain.UserRank) {
	sort.SliceStable(users, func(i, j int) bool {
		return users[i].Score > users[j].Score
	})
}
