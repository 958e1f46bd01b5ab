package migrations

import (
	"github.com/uptrace/bun/migrate"
)

const createQuizzesSQL = `
CREATE TABLE IF NOT EXISTS quizzes (
    id   INTEGER PRIMARY KEY,
    data JSONB NOT NULL
);
`

const createArchivedSessionsSQL = `
CREATE TABLE IF NOT EXISTS archived_sessions (
    id          INTEGER PRIMARY KEY,
    quiz_id     INTEGER NOT NULL,
    data        JSONB NOT NULL,
    archived_at TIMESTAMPTZ NOT NULL DEFAULT now()
)
`

const createArchivedSessionsIndexSQL = `
CREATE INDEX IF NOT EXISTS archived_sessions_quiz_id_idx ON archived_sessions (quiz_id)
`

var Migrations = migrate.NewMigrations()
