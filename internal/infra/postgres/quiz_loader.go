package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"quizhost-service/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuizLoader loads quiz JSONB from Postgres.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizID int) (domain.QuizRecord, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM quizzes WHERE id=$1`, quizID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuizRecord{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.QuizRecord{}, fmt.Errorf("load quiz: %w", err)
	}
	var quiz domain.QuizRecord
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.QuizRecord{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	return quiz, nil
}
