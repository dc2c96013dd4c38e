package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`
			CREATE TABLE user_settings (
				user_id INTEGER PRIMARY KEY,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				last_seen_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				display_name TEXT NOT NULL DEFAULT '',
				template TEXT NOT NULL DEFAULT '',
				thumbnail_ref TEXT,
				counter INTEGER NOT NULL DEFAULT 1 CHECK (counter >= 0),
				rename_mode TEXT NOT NULL DEFAULT 'auto',
				media_type TEXT NOT NULL DEFAULT 'document',
				replace_rules TEXT NOT NULL DEFAULT '[]'
			)
		`)
		return errors.WithStack(err)
	}

	down := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec("DROP TABLE IF EXISTS user_settings")
		return errors.WithStack(err)
	}

	Migrations.MustRegister(up, down)
}
