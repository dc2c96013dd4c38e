// Package migrations holds the schema for user settings and rename stats.
package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

var Migrations = migrate.NewMigrations()

// Migrations are marked applied only once they succeed, so a failed one is
// retried on the next start.
func newMigrator(ctx context.Context, db *bun.DB) (*migrate.Migrator, error) {
	migrator := migrate.NewMigrator(db, Migrations, migrate.WithMarkAppliedOnSuccess(true))
	if err := migrator.Init(ctx); err != nil {
		return nil, errors.WithStack(err)
	}
	return migrator, nil
}

// BringUpToDate applies every pending migration as one group. The group ID is
// 0 when the schema was already current.
func BringUpToDate(ctx context.Context, db *bun.DB) (*migrate.MigrationGroup, error) {
	migrator, err := newMigrator(ctx, db)
	if err != nil {
		return nil, err
	}
	group, err := migrator.Migrate(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to migrate settings and stats schema")
	}
	return group, nil
}

// Rollback reverts the most recent migration group. Rolling back the stats
// migration discards every recorded rename.
func Rollback(ctx context.Context, db *bun.DB) (*migrate.MigrationGroup, error) {
	migrator, err := newMigrator(ctx, db)
	if err != nil {
		return nil, err
	}
	group, err := migrator.Rollback(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to roll back schema")
	}
	return group, nil
}

// Status is the state of the schema in a bot database.
type Status struct {
	Applied     []string
	Pending     []string
	LastGroupID int64
}

// Current reports which migrations have been applied.
func Current(ctx context.Context, db *bun.DB) (*Status, error) {
	migrator, err := newMigrator(ctx, db)
	if err != nil {
		return nil, err
	}
	ms, err := migrator.MigrationsWithStatus(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	status := &Status{LastGroupID: ms.LastGroupID()}
	for _, m := range ms {
		if m.IsApplied() {
			status.Applied = append(status.Applied, m.String())
		} else {
			status.Pending = append(status.Pending, m.String())
		}
	}
	return status, nil
}
