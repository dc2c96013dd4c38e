package settings

import (
	"context"
	"database/sql"
	"time"

	"github.com/autorenamer/autorenamer/pkg/errcodes"
	"github.com/autorenamer/autorenamer/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db: db}
}

// Get returns the user's settings, or the defaults if the user has never
// been seen.
func (svc *Service) Get(ctx context.Context, userID int64) (*models.UserSettings, error) {
	settings, err := get(ctx, svc.db, userID)
	return settings, errcodes.Persistence(err)
}

// Ensure creates the user's settings row if needed and records that the user
// was just seen.
func (svc *Service) Ensure(ctx context.Context, userID int64, displayName string) (*models.UserSettings, error) {
	settings := models.DefaultUserSettings(userID)
	settings.DisplayName = displayName
	if err := upsert(ctx, svc.db, settings, "last_seen_at", "display_name"); err != nil {
		return nil, err
	}
	return svc.Get(ctx, userID)
}

// UpdateTemplate stores a new rename template. Jobs that are already running
// keep the template they were dispatched with.
func (svc *Service) UpdateTemplate(ctx context.Context, userID int64, tmpl string) error {
	settings := models.DefaultUserSettings(userID)
	settings.Template = tmpl
	return upsert(ctx, svc.db, settings, "template")
}

func (svc *Service) SetThumbnail(ctx context.Context, userID int64, ref string) error {
	settings := models.DefaultUserSettings(userID)
	settings.ThumbnailRef = &ref
	return upsert(ctx, svc.db, settings, "thumbnail_ref")
}

func (svc *Service) ClearThumbnail(ctx context.Context, userID int64) error {
	settings := models.DefaultUserSettings(userID)
	return upsert(ctx, svc.db, settings, "thumbnail_ref")
}

func (svc *Service) SetRenameMode(ctx context.Context, userID int64, mode string) error {
	if !models.IsValidRenameMode(mode) {
		return errors.Errorf("unknown rename mode %q", mode)
	}
	settings := models.DefaultUserSettings(userID)
	settings.RenameMode = mode
	return upsert(ctx, svc.db, settings, "rename_mode")
}

func (svc *Service) SetMediaType(ctx context.Context, userID int64, mediaType string) error {
	if !models.IsValidMediaType(mediaType) {
		return errors.Errorf("unknown media type %q", mediaType)
	}
	settings := models.DefaultUserSettings(userID)
	settings.MediaType = mediaType
	return upsert(ctx, svc.db, settings, "media_type")
}

// AddReplaceRule appends a rule, replacing any existing rule for the same
// text so that each source string maps to one replacement.
func (svc *Service) AddReplaceRule(ctx context.Context, userID int64, rule models.ReplaceRule) ([]models.ReplaceRule, error) {
	var rules []models.ReplaceRule
	err := svc.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		settings, err := get(ctx, tx, userID)
		if err != nil {
			return err
		}
		replaced := false
		for i := range settings.ReplaceRules {
			if settings.ReplaceRules[i].From == rule.From {
				settings.ReplaceRules[i].To = rule.To
				replaced = true
			}
		}
		if !replaced {
			settings.ReplaceRules = append(settings.ReplaceRules, rule)
		}
		rules = settings.ReplaceRules
		return upsert(ctx, tx, settings, "replace_rules")
	})
	if err != nil {
		return nil, errcodes.Persistence(err)
	}
	return rules, nil
}

func (svc *Service) ClearReplaceRules(ctx context.Context, userID int64) error {
	settings := models.DefaultUserSettings(userID)
	return upsert(ctx, svc.db, settings, "replace_rules")
}

// IncrementCounter advances the user's sequence counter by one and returns
// the new value.
func (svc *Service) IncrementCounter(ctx context.Context, userID int64) (int64, error) {
	var counter int64
	err := svc.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		settings := models.DefaultUserSettings(userID)
		now := time.Now()
		settings.CreatedAt, settings.UpdatedAt, settings.LastSeenAt = now, now, now
		_, err := tx.NewInsert().
			Model(settings).
			On("CONFLICT (user_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		err = tx.NewUpdate().
			Model((*models.UserSettings)(nil)).
			Set("counter = counter + 1").
			Set("updated_at = ?", now).
			Where("user_id = ?", userID).
			Returning("counter").
			Scan(ctx, &counter)
		return errors.WithStack(err)
	})
	if err != nil {
		return 0, errcodes.Persistence(err)
	}
	return counter, nil
}

func get(ctx context.Context, db bun.IDB, userID int64) (*models.UserSettings, error) {
	settings := &models.UserSettings{}
	err := db.NewSelect().
		Model(settings).
		Where("user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.DefaultUserSettings(userID), nil
		}
		return nil, errors.WithStack(err)
	}
	if err := settings.UnmarshalReplaceRules(); err != nil {
		return nil, err
	}
	return settings, nil
}

// upsert inserts settings for a new user, or updates only the given columns
// for an existing one.
func upsert(ctx context.Context, db bun.IDB, settings *models.UserSettings, columns ...string) error {
	if err := settings.MarshalReplaceRules(); err != nil {
		return errcodes.Persistence(err)
	}
	now := time.Now()
	settings.CreatedAt, settings.UpdatedAt, settings.LastSeenAt = now, now, now

	q := db.NewInsert().
		Model(settings).
		On("CONFLICT (user_id) DO UPDATE").
		Set("updated_at = EXCLUDED.updated_at")
	for _, column := range columns {
		q = q.Set("? = EXCLUDED.?", bun.Ident(column), bun.Ident(column))
	}
	_, err := q.Exec(ctx)
	return errcodes.Persistence(err)
}
