package models

import (
	"time"

	"github.com/uptrace/bun"
)

const GlobalStatsID = 1

type GlobalStats struct {
	bun.BaseModel `bun:"table:global_stats,alias:gs"`

	ID         int       `bun:",pk" json:"-"`
	UpdatedAt  time.Time `bun:",nullzero,notnull,default:current_timestamp" json:"updated_at"`
	TotalFiles int64     `bun:",notnull" json:"total_files"`
	TotalBytes int64     `bun:",notnull" json:"total_bytes"`
}

type UserStats struct {
	bun.BaseModel `bun:"table:user_stats,alias:ust"`

	UserID         int64     `bun:",pk" json:"user_id"`
	UpdatedAt      time.Time `bun:",nullzero,notnull,default:current_timestamp" json:"updated_at"`
	DisplayName    string    `bun:",notnull" json:"display_name"`
	FilesProcessed int64     `bun:",notnull" json:"files_processed"`
	BytesProcessed int64     `bun:",notnull" json:"bytes_processed"`
	FilesToday     int64     `bun:",notnull" json:"files_today"`
	LastFileDate   string    `bun:",notnull" json:"last_file_date"`
}
