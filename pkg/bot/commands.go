package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/autorenamer/autorenamer/pkg/errcodes"
	"github.com/autorenamer/autorenamer/pkg/models"
	"github.com/autorenamer/autorenamer/pkg/template"
	"github.com/autorenamer/autorenamer/pkg/transport"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

const leaderboardSize = 10

const unrecognizedText = "Send me a document, video or audio file and I'll send it back renamed. Send /help for the commands."

const startText = `👋 Hi %s! I rename files.

Send me a document, video or audio file and I'll send it back with a new name built from your template.

Set a template with /autorename, e.g.
/autorename {title} S{season}E{episode} [{quality}]

Send /help for everything else.`

func helpText() string {
	tokens := make([]string, 0, len(template.Tokens))
	for _, t := range template.Tokens {
		tokens = append(tokens, "{"+string(t)+"}")
	}
	return `📖 Commands

/autorename <template> - set your rename template
/preview - show what your template produces
/settings - show and change your settings
/mode <auto|manual|replace> - how names are built
/replace old | new - add a text replacement
/clearreplace - remove all replacements
/setmediatype <document|auto> - how files are sent back
/delthumb - remove your thumbnail
/queue - files waiting for you
/mystats - your totals
/leaderboard - top renamers

Send a photo to use it as the thumbnail for your files.

Tokens: ` + strings.Join(tokens, " ")
}

func (d *Dispatcher) handleStart(ctx context.Context, ev Event) error {
	if _, err := d.settingsService.Ensure(ctx, ev.UserID, ev.DisplayName); err != nil {
		return err
	}
	name := ev.DisplayName
	if name == "" {
		name = "there"
	}
	return d.reply(ctx, ev, fmt.Sprintf(startText, name))
}

func (d *Dispatcher) handleHelp(ctx context.Context, ev Event) error {
	return d.reply(ctx, ev, helpText())
}

func (d *Dispatcher) handleSettings(ctx context.Context, ev Event) error {
	s, err := d.settingsService.Get(ctx, ev.UserID)
	if err != nil {
		return err
	}
	return d.client.Send(ctx, transport.Message{
		ChatID:  ev.ChatID,
		Text:    settingsText(s),
		ReplyTo: ev.MessageID,
		Buttons: settingsButtons(s),
	})
}

func settingsText(s *models.UserSettings) string {
	var b strings.Builder
	b.WriteString("⚙️ Your settings\n\n")
	tmpl := s.Template
	if tmpl == "" {
		tmpl = "(none, original names are kept)"
	}
	fmt.Fprintf(&b, "Template: %s\n", tmpl)
	fmt.Fprintf(&b, "Mode: %s\n", s.RenameMode)
	fmt.Fprintf(&b, "Send as: %s\n", s.MediaType)
	fmt.Fprintf(&b, "Next counter: %d\n", s.Counter)
	if s.HasThumbnail() {
		b.WriteString("Thumbnail: set\n")
	} else {
		b.WriteString("Thumbnail: none\n")
	}
	if len(s.ReplaceRules) == 0 {
		b.WriteString("Replacements: none")
	} else {
		b.WriteString("Replacements:")
		for _, r := range s.ReplaceRules {
			fmt.Fprintf(&b, "\n  %q → %q", r.From, r.To)
		}
	}
	return b.String()
}

func settingsButtons(s *models.UserSettings) [][]transport.Button {
	mark := func(label string, on bool) string {
		if on {
			return "✅ " + label
		}
		return label
	}
	rows := [][]transport.Button{
		{
			{Text: mark("Auto", s.RenameMode == models.RenameModeAuto), Data: "mode:" + models.RenameModeAuto},
			{Text: mark("Manual", s.RenameMode == models.RenameModeManual), Data: "mode:" + models.RenameModeManual},
			{Text: mark("Replace", s.RenameMode == models.RenameModeReplace), Data: "mode:" + models.RenameModeReplace},
		},
		{
			{Text: mark("Document", s.MediaType == models.MediaTypeDocument), Data: "media:" + models.MediaTypeDocument},
			{Text: mark("Auto type", s.MediaType == models.MediaTypeAuto), Data: "media:" + models.MediaTypeAuto},
		},
	}
	if s.HasThumbnail() {
		rows = append(rows, []transport.Button{{Text: "🗑 Delete thumbnail", Data: "thumb:delete"}})
	}
	return rows
}

func (d *Dispatcher) handleAutorename(ctx context.Context, ev Event) error {
	if ev.Args == "" {
		s, err := d.settingsService.Get(ctx, ev.UserID)
		if err != nil {
			return err
		}
		current := s.Template
		if current == "" {
			current = "(none)"
		}
		return d.reply(ctx, ev, "Usage: /autorename <template>\nCurrent template: "+current+"\n\n"+helpText())
	}

	if err := template.Validate(ev.Args); err != nil {
		return d.reply(ctx, ev, "❌ That template is invalid: "+errcodes.Cause(err).Error())
	}
	if err := d.settingsService.UpdateTemplate(ctx, ev.UserID, ev.Args); err != nil {
		return err
	}

	preview, err := template.Preview(ev.Args)
	if err != nil {
		return err
	}
	text := "✅ Template saved.\nExample: " + preview
	if unknown := template.Unknown(ev.Args); len(unknown) > 0 {
		text += "\n⚠️ Not recognised and kept as written: " + strings.Join(unknown, " ")
	}
	return d.reply(ctx, ev, text)
}

func (d *Dispatcher) handlePreview(ctx context.Context, ev Event) error {
	s, err := d.settingsService.Get(ctx, ev.UserID)
	if err != nil {
		return err
	}
	preview, err := template.Preview(s.Template)
	if err != nil {
		return d.reply(ctx, ev, "❌ Your saved template is invalid: "+errcodes.Cause(err).Error())
	}
	return d.reply(ctx, ev, fmt.Sprintf("🔍 %s\n→ %s", template.SampleMetadata.Stem+template.SampleMetadata.Ext, preview))
}

func (d *Dispatcher) handleMode(ctx context.Context, ev Event) error {
	mode := strings.ToLower(ev.Args)
	if !models.IsValidRenameMode(mode) {
		return d.reply(ctx, ev, "Usage: /mode <auto|manual|replace>\n\nauto: use your template\nmanual: use the file's caption as the new name\nreplace: keep the original name and apply /replace rules")
	}
	if err := d.settingsService.SetRenameMode(ctx, ev.UserID, mode); err != nil {
		return err
	}
	return d.reply(ctx, ev, "✅ Rename mode set to "+mode+".")
}

func (d *Dispatcher) handleReplace(ctx context.Context, ev Event) error {
	from, to, ok := strings.Cut(ev.Args, "|")
	from = strings.TrimSpace(from)
	if !ok || from == "" {
		return d.reply(ctx, ev, "Usage: /replace old | new\nUse an empty new text to delete: /replace old |")
	}
	rules, err := d.settingsService.AddReplaceRule(ctx, ev.UserID, models.ReplaceRule{From: from, To: strings.TrimSpace(to)})
	if err != nil {
		return err
	}
	return d.reply(ctx, ev, fmt.Sprintf("✅ Replacement saved. You have %d.", len(rules)))
}

func (d *Dispatcher) handleClearReplace(ctx context.Context, ev Event) error {
	if err := d.settingsService.ClearReplaceRules(ctx, ev.UserID); err != nil {
		return err
	}
	return d.reply(ctx, ev, "✅ Replacements cleared.")
}

func (d *Dispatcher) handleSetMediaType(ctx context.Context, ev Event) error {
	mediaType := strings.ToLower(ev.Args)
	if !models.IsValidMediaType(mediaType) {
		return d.reply(ctx, ev, "Usage: /setmediatype <document|auto>")
	}
	if err := d.settingsService.SetMediaType(ctx, ev.UserID, mediaType); err != nil {
		return err
	}
	return d.reply(ctx, ev, "✅ Files will be sent as "+mediaType+".")
}

func (d *Dispatcher) handleDelThumb(ctx context.Context, ev Event) error {
	if err := d.settingsService.ClearThumbnail(ctx, ev.UserID); err != nil {
		return err
	}
	return d.reply(ctx, ev, "🗑 Thumbnail removed.")
}

func (d *Dispatcher) handleQueue(ctx context.Context, ev Event) error {
	pending := d.queue.UserPending(ev.UserID)
	if pending == 0 {
		return d.reply(ctx, ev, "📭 Nothing waiting.")
	}
	return d.reply(ctx, ev, fmt.Sprintf("📬 %d file(s) waiting or in progress.", pending))
}

func (d *Dispatcher) handleLeaderboard(ctx context.Context, ev Event) error {
	entries, err := d.statsService.Leaderboard(ctx, leaderboardSize)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return d.reply(ctx, ev, "🏆 No files renamed yet.")
	}
	var b strings.Builder
	b.WriteString("🏆 Leaderboard")
	for i, e := range entries {
		name := e.DisplayName
		if name == "" {
			name = fmt.Sprintf("user %d", e.UserID)
		}
		fmt.Fprintf(&b, "\n%d. %s: %s files", i+1, name, humanize.Comma(e.FilesProcessed))
	}
	return d.reply(ctx, ev, b.String())
}

func (d *Dispatcher) handleMyStats(ctx context.Context, ev Event) error {
	us, err := d.statsService.ForUser(ctx, ev.UserID)
	if err != nil {
		return err
	}
	return d.reply(ctx, ev, fmt.Sprintf("📊 Files renamed: %s (%s today)\nData processed: %s",
		humanize.Comma(us.FilesProcessed), humanize.Comma(us.FilesToday), humanize.IBytes(uint64(us.BytesProcessed))))
}

func (d *Dispatcher) handleStats(ctx context.Context, ev Event) error {
	if !d.config.IsAdmin(ev.UserID) {
		return d.reply(ctx, ev, "⛔ This command is for admins.")
	}
	summary, err := d.statsService.Summary(ctx)
	if err != nil {
		return err
	}
	return d.reply(ctx, ev, fmt.Sprintf("📊 Bot stats\nFiles: %s\nData: %s\nUsers: %d\nActive today: %d\nQueue depth: %d",
		humanize.Comma(summary.TotalFiles), summary.TotalBytesHuman, summary.Users, summary.ActiveToday, d.queue.Depth()))
}

func (d *Dispatcher) handleCallback(ctx context.Context, ev Event) error {
	action, value, _ := strings.Cut(ev.Data, ":")

	var err error
	answer := "Saved"
	switch action {
	case "mode":
		if !models.IsValidRenameMode(value) {
			answer = "Unknown mode"
			break
		}
		err = d.settingsService.SetRenameMode(ctx, ev.UserID, value)
	case "media":
		if !models.IsValidMediaType(value) {
			answer = "Unknown type"
			break
		}
		err = d.settingsService.SetMediaType(ctx, ev.UserID, value)
	case "thumb":
		if value != "delete" {
			answer = "Unknown action"
			break
		}
		err = d.settingsService.ClearThumbnail(ctx, ev.UserID)
		answer = "Thumbnail removed"
	default:
		answer = "Unknown action"
	}
	if err != nil {
		_ = d.client.AnswerCallback(ctx, ev.CallbackID, "Something went wrong")
		return errors.WithStack(err)
	}
	return d.client.AnswerCallback(ctx, ev.CallbackID, answer)
}
