package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`
			CREATE TABLE global_stats (
				id INTEGER PRIMARY KEY CHECK (id = 1),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				total_files INTEGER NOT NULL DEFAULT 0,
				total_bytes INTEGER NOT NULL DEFAULT 0
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}

		// The single aggregate row always exists so updates never need an upsert.
		_, err = db.Exec(`INSERT INTO global_stats (id) VALUES (1)`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE user_stats (
				user_id INTEGER PRIMARY KEY,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				display_name TEXT NOT NULL DEFAULT '',
				files_processed INTEGER NOT NULL DEFAULT 0,
				bytes_processed INTEGER NOT NULL DEFAULT 0,
				files_today INTEGER NOT NULL DEFAULT 0,
				last_file_date TEXT NOT NULL DEFAULT ''
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`CREATE INDEX ix_user_stats_files_processed ON user_stats(files_processed DESC)`)
		return errors.WithStack(err)
	}

	down := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec("DROP TABLE IF EXISTS user_stats")
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec("DROP TABLE IF EXISTS global_stats")
		return errors.WithStack(err)
	}

	Migrations.MustRegister(up, down)
}
