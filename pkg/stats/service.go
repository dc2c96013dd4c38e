package stats

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/autorenamer/autorenamer/pkg/errcodes"
	"github.com/autorenamer/autorenamer/pkg/models"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

const (
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 100
)

// Service owns GlobalStats. Writes go through a single mutex so that
// concurrent workers never race on the aggregate row.
type Service struct {
	db  *bun.DB
	mu  sync.Mutex
	now func() time.Time
}

func NewService(db *bun.DB) *Service {
	return &Service{db: db, now: time.Now}
}

type Summary struct {
	TotalFiles      int64  `json:"total_files"`
	TotalBytes      int64  `json:"total_bytes"`
	TotalBytesHuman string `json:"total_bytes_human"`
	Users           int    `json:"users"`
	ActiveToday     int    `json:"active_today"`
}

// RecordSuccess counts one delivered file of the given size for the user.
func (svc *Service) RecordSuccess(ctx context.Context, userID int64, displayName string, bytes int64) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	now := svc.now().UTC()
	today := now.Format(time.DateOnly)

	err := svc.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewUpdate().
			Model((*models.GlobalStats)(nil)).
			Set("total_files = total_files + 1").
			Set("total_bytes = total_bytes + ?", bytes).
			Set("updated_at = ?", now).
			Where("id = ?", models.GlobalStatsID).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		us := &models.UserStats{
			UserID:         userID,
			UpdatedAt:      now,
			DisplayName:    displayName,
			FilesProcessed: 1,
			BytesProcessed: bytes,
			FilesToday:     1,
			LastFileDate:   today,
		}
		_, err = tx.NewInsert().
			Model(us).
			On("CONFLICT (user_id) DO UPDATE").
			Set("files_processed = files_processed + 1").
			Set("bytes_processed = bytes_processed + EXCLUDED.bytes_processed").
			Set("files_today = CASE WHEN last_file_date = EXCLUDED.last_file_date THEN files_today + 1 ELSE 1 END").
			Set("last_file_date = EXCLUDED.last_file_date").
			Set("display_name = CASE WHEN EXCLUDED.display_name = '' THEN display_name ELSE EXCLUDED.display_name END").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		return errors.WithStack(err)
	})
	return errcodes.Persistence(err)
}

func (svc *Service) Totals(ctx context.Context) (*models.GlobalStats, error) {
	gs := &models.GlobalStats{}
	err := svc.db.NewSelect().
		Model(gs).
		Where("id = ?", models.GlobalStatsID).
		Scan(ctx)
	if err != nil {
		return nil, errcodes.Persistence(err)
	}
	return gs, nil
}

// Summary combines the totals with user counts for reporting.
func (svc *Service) Summary(ctx context.Context) (*Summary, error) {
	gs, err := svc.Totals(ctx)
	if err != nil {
		return nil, err
	}
	users, err := svc.db.NewSelect().Model((*models.UserSettings)(nil)).Count(ctx)
	if err != nil {
		return nil, errcodes.Persistence(err)
	}
	today := svc.now().UTC().Format(time.DateOnly)
	active, err := svc.db.NewSelect().
		Model((*models.UserStats)(nil)).
		Where("last_file_date = ?", today).
		Count(ctx)
	if err != nil {
		return nil, errcodes.Persistence(err)
	}
	return &Summary{
		TotalFiles:      gs.TotalFiles,
		TotalBytes:      gs.TotalBytes,
		TotalBytesHuman: humanize.IBytes(uint64(gs.TotalBytes)),
		Users:           users,
		ActiveToday:     active,
	}, nil
}

// Leaderboard ranks users by processed file count.
func (svc *Service) Leaderboard(ctx context.Context, limit int) ([]*models.UserStats, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	if limit > MaxLeaderboardLimit {
		limit = MaxLeaderboardLimit
	}
	entries := []*models.UserStats{}
	err := svc.db.NewSelect().
		Model(&entries).
		Order("files_processed DESC", "bytes_processed DESC", "user_id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, errcodes.Persistence(err)
	}
	return entries, nil
}

// ForUser returns the user's stats, zeroed if they have none yet.
func (svc *Service) ForUser(ctx context.Context, userID int64) (*models.UserStats, error) {
	us := &models.UserStats{}
	err := svc.db.NewSelect().
		Model(us).
		Where("user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.UserStats{UserID: userID}, nil
		}
		return nil, errcodes.Persistence(err)
	}
	if us.LastFileDate != svc.now().UTC().Format(time.DateOnly) {
		us.FilesToday = 0
	}
	return us, nil
}
