package models

import (
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/uptrace/bun"
)

const (
	RenameModeAuto    = "auto"
	RenameModeManual  = "manual"
	RenameModeReplace = "replace"
)

const (
	MediaTypeDocument = "document"
	MediaTypeAuto     = "auto"
)

const DefaultCounter = 1

// ReplaceRule swaps every occurrence of From with To in a resolved name.
type ReplaceRule struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type UserSettings struct {
	bun.BaseModel `bun:"table:user_settings,alias:us"`

	UserID           int64         `bun:",pk" json:"user_id"`
	CreatedAt        time.Time     `bun:",nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt        time.Time     `bun:",nullzero,notnull,default:current_timestamp" json:"updated_at"`
	LastSeenAt       time.Time     `bun:",nullzero,notnull,default:current_timestamp" json:"last_seen_at"`
	DisplayName      string        `bun:",notnull" json:"display_name"`
	Template         string        `bun:",notnull" json:"template"`
	ThumbnailRef     *string       `json:"thumbnail_ref,omitempty"`
	Counter          int64         `bun:",notnull" json:"counter"`
	RenameMode       string        `bun:",notnull" json:"rename_mode"`
	MediaType        string        `bun:",notnull" json:"media_type"`
	ReplaceRulesJSON string        `bun:"replace_rules,notnull" json:"-"`
	ReplaceRules     []ReplaceRule `bun:"-" json:"replace_rules"`
}

// DefaultUserSettings returns the settings a user starts with.
func DefaultUserSettings(userID int64) *UserSettings {
	return &UserSettings{
		UserID:           userID,
		Counter:          DefaultCounter,
		RenameMode:       RenameModeAuto,
		MediaType:        MediaTypeDocument,
		ReplaceRulesJSON: "[]",
		ReplaceRules:     []ReplaceRule{},
	}
}

func (us *UserSettings) UnmarshalReplaceRules() error {
	us.ReplaceRules = []ReplaceRule{}
	if us.ReplaceRulesJSON == "" {
		return nil
	}
	err := json.Unmarshal([]byte(us.ReplaceRulesJSON), &us.ReplaceRules)
	return errors.WithStack(err)
}

func (us *UserSettings) MarshalReplaceRules() error {
	if us.ReplaceRules == nil {
		us.ReplaceRules = []ReplaceRule{}
	}
	b, err := json.Marshal(us.ReplaceRules)
	if err != nil {
		return errors.WithStack(err)
	}
	us.ReplaceRulesJSON = string(b)
	return nil
}

// HasThumbnail reports whether a custom thumbnail is configured.
func (us *UserSettings) HasThumbnail() bool {
	return us.ThumbnailRef != nil && *us.ThumbnailRef != ""
}

// Clone returns a deep copy so a running job is unaffected by later updates.
func (us *UserSettings) Clone() *UserSettings {
	c := *us
	if us.ThumbnailRef != nil {
		ref := *us.ThumbnailRef
		c.ThumbnailRef = &ref
	}
	c.ReplaceRules = append([]ReplaceRule{}, us.ReplaceRules...)
	return &c
}

func IsValidRenameMode(mode string) bool {
	switch mode {
	case RenameModeAuto, RenameModeManual, RenameModeReplace:
		return true
	}
	return false
}

func IsValidMediaType(mediaType string) bool {
	return mediaType == MediaTypeDocument || mediaType == MediaTypeAuto
}
