package models

import (
	"time"
)

const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
)

// RenameJob is one file waiting to be renamed for one user. Jobs live only in
// memory and are discarded once they reach a terminal status.
type RenameJob struct {
	ID           string     `json:"id"`
	UserID       int64      `json:"user_id"`
	ChatID       int64      `json:"chat_id"`
	DisplayName  string     `json:"display_name"`
	FileRef      string     `json:"file_ref"`
	OriginalName string     `json:"original_name"`
	FileSize     int64      `json:"file_size"`
	MimeType     string     `json:"mime_type,omitempty"`
	Caption      string     `json:"caption,omitempty"`
	MessageID    int        `json:"message_id,omitempty"`
	Status       string     `json:"status"`
	ErrorKind    string     `json:"error_kind,omitempty"`
	EnqueuedAt   time.Time  `json:"enqueued_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

func IsTerminalJobStatus(status string) bool {
	return status == JobStatusSucceeded || status == JobStatusFailed
}
