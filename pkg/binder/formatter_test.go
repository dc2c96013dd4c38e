package binder

import (
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type adminPayload struct {
	Template     string   `json:"template" validate:"template"`
	RenameMode   string   `json:"rename_mode" validate:"oneof=auto manual replace"`
	DisplayName  string   `json:"display_name" validate:"max=64"`
	ThumbnailRef string   `json:"thumbnail_ref" validate:"required"`
	Ext          string   `json:"ext" validate:"omitempty,lowercase"`
	UserID       int64    `json:"user_id" validate:"userid"`
	Counter      int64    `json:"counter" validate:"gt=0"`
	Limit        int      `json:"limit" validate:"min=1,max=100"`
	Offset       int      `json:"offset" validate:"gte=0"`
	ReplaceRules []string `json:"replace_rules" validate:"min=1,max=2"`
}

func validAdminPayload() adminPayload {
	return adminPayload{
		Template:     "{title} S{season}E{episode}",
		RenameMode:   "auto",
		DisplayName:  "@ann",
		ThumbnailRef: "AgACAgIAAxkBAAIB",
		Ext:          ".mkv",
		UserID:       7,
		Counter:      1,
		Limit:        10,
		ReplaceRules: []string{"[Group] "},
	}
}

func TestFormatValidationError(t *testing.T) {
	b, err := New()
	require.NoError(t, err)

	require.NoError(t, b.validate.Struct(validAdminPayload()))

	cases := []struct {
		name   string
		modify func(p *adminPayload)
		msg    string
	}{
		{"unbalanced template", func(p *adminPayload) { p.Template = "{title" }, `"template" is not a valid rename template`},
		{"unknown rename mode", func(p *adminPayload) { p.RenameMode = "shuffle" }, `"rename_mode" must be one of the following: "auto", "manual", "replace"`},
		{"long display name", func(p *adminPayload) { p.DisplayName = strings.Repeat("a", 65) }, `"display_name" length must be less than or equal to 64 characters`},
		{"missing thumbnail", func(p *adminPayload) { p.ThumbnailRef = "" }, `"thumbnail_ref" is required`},
		{"uppercase extension", func(p *adminPayload) { p.Ext = ".MKV" }, `"ext" failed the "lowercase" check`},
		{"zero user id", func(p *adminPayload) { p.UserID = 0 }, `"user_id" is not a valid user id`},
		{"zero counter", func(p *adminPayload) { p.Counter = 0 }, `"counter" must be greater than 0`},
		{"limit too small", func(p *adminPayload) { p.Limit = 0 }, `"limit" must be greater than or equal to 1`},
		{"limit too large", func(p *adminPayload) { p.Limit = 500 }, `"limit" must be less than or equal to 100`},
		{"negative offset", func(p *adminPayload) { p.Offset = -1 }, `"offset" must be greater than or equal to 0`},
		{"no replace rules", func(p *adminPayload) { p.ReplaceRules = nil }, `"replace_rules" length must be greater than or equal to 1 element`},
		{"too many replace rules", func(p *adminPayload) { p.ReplaceRules = []string{"a", "b", "c"} }, `"replace_rules" length must be less than or equal to 2 elements`},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			p := validAdminPayload()
			tt.modify(&p)

			err := b.validate.Struct(p)
			var errs validator.ValidationErrors
			require.ErrorAs(t, err, &errs)
			require.Len(t, errs, 1)
			assert.Equal(t, tt.msg, formatValidationError(errs[0]))
		})
	}
}
