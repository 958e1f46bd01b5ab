package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"quizhost-service/internal/domain"

	"github.com/jackc/pgx/v4/pgxpool"
)

// ArchiveStore persists ended sessions as JSONB rows. Rows are insert-only;
// an archived session is never updated.
type ArchiveStore struct {
	pool *pgxpool.Pool
}

func NewArchiveStore(pool *pgxpool.Pool) *ArchiveStore {
	return &ArchiveStore{pool: pool}
}

func (s *ArchiveStore) Archive(ctx context.Context, record domain.SessionRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO archived_sessions (id, quiz_id, data) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`,
		record.SessionID, record.QuizID, raw)
	if err != nil {
		return fmt.Errorf("archive session: %w", err)
	}
	return nil
}

func (s *ArchiveStore) ListIDs(ctx context.Context, quizID int) ([]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM archived_sessions WHERE quiz_id=$1 ORDER BY id`, quizID)
	if err != nil {
		return nil, fmt.Errorf("list archived sessions: %w", err)
	}
	defer rows.Close()

	ids := []int{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Get loads one archived session record.
func (s *ArchiveStore) Get(ctx context.Context, sessionID int) (domain.SessionRecord, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM archived_sessions WHERE id=$1`, sessionID).Scan(&raw)
	if err != nil {
		return domain.SessionRecord{}, domain.ErrSessionNotFound
	}
	var record domain.SessionRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return domain.SessionRecord{}, err
	}
	return record, nil
}
