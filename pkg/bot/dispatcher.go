package bot

import (
	"context"
	"fmt"

	"github.com/autorenamer/autorenamer/pkg/config"
	"github.com/autorenamer/autorenamer/pkg/errcodes"
	"github.com/autorenamer/autorenamer/pkg/models"
	"github.com/autorenamer/autorenamer/pkg/queue"
	"github.com/autorenamer/autorenamer/pkg/settings"
	"github.com/autorenamer/autorenamer/pkg/stats"
	"github.com/autorenamer/autorenamer/pkg/transport"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
)

// Queue is the part of the queue manager the dispatcher feeds.
type Queue interface {
	Enqueue(job *models.RenameJob) (int, error)
	UserPending(userID int64) int
	Depth() int
}

// Dispatcher takes updates from the webhook or poller and handles them one
// at a time. File uploads become rename jobs. Everything else is answered
// directly.
type Dispatcher struct {
	config *config.Config
	log    logger.Logger

	client transport.Messenger
	queue  Queue

	settingsService *settings.Service
	statsService    *stats.Service

	updates  chan tgbotapi.Update
	commands map[string]func(ctx context.Context, ev Event) error
}

func New(cfg *config.Config, db *bun.DB, client transport.Messenger, q Queue) *Dispatcher {
	d := &Dispatcher{
		config: cfg,
		log:    logger.New(),

		client: client,
		queue:  q,

		settingsService: settings.NewService(db),
		statsService:    stats.NewService(db),

		updates: make(chan tgbotapi.Update, cfg.EventBuffer),
	}
	d.commands = map[string]func(ctx context.Context, ev Event) error{
		"start":        d.handleStart,
		"help":         d.handleHelp,
		"settings":     d.handleSettings,
		"autorename":   d.handleAutorename,
		"preview":      d.handlePreview,
		"mode":         d.handleMode,
		"replace":      d.handleReplace,
		"clearreplace": d.handleClearReplace,
		"setmediatype": d.handleSetMediaType,
		"delthumb":     d.handleDelThumb,
		"queue":        d.handleQueue,
		"leaderboard":  d.handleLeaderboard,
		"mystats":      d.handleMyStats,
		"stats":        d.handleStats,
	}
	return d
}

// Submit hands an update to the dispatcher without blocking. It reports false
// when the buffer is full, so the caller can ask the platform to redeliver.
func (d *Dispatcher) Submit(update tgbotapi.Update) bool {
	select {
	case d.updates <- update:
		return true
	default:
		return false
	}
}

// SubmitWait hands an update to the dispatcher, waiting for buffer space. It
// reports false if ctx ends before the update was accepted.
func (d *Dispatcher) SubmitWait(ctx context.Context, update tgbotapi.Update) bool {
	select {
	case d.updates <- update:
		return true
	case <-ctx.Done():
		return false
	}
}

// Run handles submitted updates until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case update := <-d.updates:
			d.Handle(ctx, update)
		}
	}
}

// Handle classifies one update and acts on it. Failures are logged and, when
// possible, reported back to the user.
func (d *Dispatcher) Handle(ctx context.Context, update tgbotapi.Update) {
	ev := Classify(update)
	log := d.log.Root(logger.Data{"update_id": ev.UpdateID, "user_id": ev.UserID, "kind": string(ev.Kind)})
	ctx = log.WithContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			log.Err(errors.Errorf("%v", r)).Error("panic while handling update")
		}
	}()

	var err error
	switch ev.Kind {
	case EventFile:
		err = d.handleFile(ctx, ev)
	case EventPhoto:
		err = d.handlePhoto(ctx, ev)
	case EventCommand:
		err = d.handleCommand(ctx, ev)
	case EventCallback:
		err = d.handleCallback(ctx, ev)
	default:
		if ev.Replyable {
			err = d.reply(ctx, ev, unrecognizedText)
		}
	}
	if err != nil {
		log.Err(err).Error("failed to handle update")
		if ev.Replyable && ev.Kind != EventCallback && errcodes.KindOf(err) != errcodes.KindTransport {
			if err := d.reply(ctx, ev, "❌ Something went wrong. Please try again."); err != nil {
				log.Err(err).Warn("failed to notify user of failed update")
			}
		}
	}
}

func (d *Dispatcher) handleFile(ctx context.Context, ev Event) error {
	log := logger.FromContext(ctx)

	if ev.File.Size > d.config.MaxFileSize {
		log.Info("rejecting oversize file", logger.Data{"size": ev.File.Size})
		return d.reply(ctx, ev, errcodes.UserMessage(errcodes.Transport(errcodes.ErrFileTooLarge)))
	}

	if _, err := d.settingsService.Ensure(ctx, ev.UserID, ev.DisplayName); err != nil {
		return err
	}

	job := &models.RenameJob{
		UserID:       ev.UserID,
		ChatID:       ev.ChatID,
		DisplayName:  ev.DisplayName,
		FileRef:      ev.File.ID,
		OriginalName: ev.File.Name,
		FileSize:     ev.File.Size,
		MimeType:     ev.File.MimeType,
		Caption:      ev.Caption,
		MessageID:    ev.MessageID,
	}
	position, err := d.queue.Enqueue(job)
	switch {
	case errors.Is(err, queue.ErrQueueFull):
		return d.reply(ctx, ev, fmt.Sprintf("⏳ You already have %d files waiting. Send this one again once some finish.", d.queue.UserPending(ev.UserID)))
	case errors.Is(err, queue.ErrShuttingDown):
		return d.reply(ctx, ev, "🔄 I'm restarting right now. Please send the file again in a minute.")
	case err != nil:
		return err
	}

	log.Info("enqueued rename job", logger.Data{"job_id": job.ID, "position": position, "original_name": job.OriginalName})
	if position > 1 {
		return d.reply(ctx, ev, fmt.Sprintf("📥 Queued. %d file(s) ahead of this one.", position-1))
	}
	return d.reply(ctx, ev, "⚙️ Renaming your file...")
}

func (d *Dispatcher) handlePhoto(ctx context.Context, ev Event) error {
	if err := d.settingsService.SetThumbnail(ctx, ev.UserID, ev.File.ID); err != nil {
		return err
	}
	return d.reply(ctx, ev, "🖼 Thumbnail saved. It will be attached to your renamed files. Use /delthumb to remove it.")
}

func (d *Dispatcher) handleCommand(ctx context.Context, ev Event) error {
	fn, ok := d.commands[ev.Command]
	if !ok {
		return d.reply(ctx, ev, fmt.Sprintf("🤷 I don't know /%s. Send /help to see what I can do.", ev.Command))
	}
	return fn(ctx, ev)
}

func (d *Dispatcher) reply(ctx context.Context, ev Event, text string) error {
	return d.client.Send(ctx, transport.Message{ChatID: ev.ChatID, Text: text, ReplyTo: ev.MessageID})
}
