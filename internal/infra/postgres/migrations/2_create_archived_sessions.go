package migrations

import (
	"context"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			if _, err := db.Exec(createArchivedSessionsSQL); err != nil {
				return err
			}
			_, err := db.Exec(createArchivedSessionsIndexSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.Exec(`DROP TABLE IF EXISTS archived_sessions`)
			return err
		},
	)
}
