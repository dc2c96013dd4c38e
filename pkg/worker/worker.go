package worker

import (
	"context"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/autorenamer/autorenamer/pkg/config"
	"github.com/autorenamer/autorenamer/pkg/errcodes"
	"github.com/autorenamer/autorenamer/pkg/mediafile"
	"github.com/autorenamer/autorenamer/pkg/metadata"
	"github.com/autorenamer/autorenamer/pkg/models"
	"github.com/autorenamer/autorenamer/pkg/scratch"
	"github.com/autorenamer/autorenamer/pkg/settings"
	"github.com/autorenamer/autorenamer/pkg/stats"
	"github.com/autorenamer/autorenamer/pkg/template"
	"github.com/autorenamer/autorenamer/pkg/thumbnail"
	"github.com/autorenamer/autorenamer/pkg/transport"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
	"golang.org/x/time/rate"
)

var processID = randStringBytes(8)

// Scratch file names start with a dot so they never collide with a
// sanitised output name.
const (
	incomingFile  = ".incoming"
	thumbSrcFile  = ".thumb-src"
	thumbFile     = ".thumb.jpg"
	captionPrefix = "Renamed: "
)

type Worker struct {
	config *config.Config
	log    logger.Logger

	client  transport.Client
	scratch *scratch.Manager

	settingsService *settings.Service
	statsService    *stats.Service

	limitersMu sync.Mutex
	limiters   map[int64]*rate.Limiter
}

func New(cfg *config.Config, db *bun.DB, client transport.Client, scratchManager *scratch.Manager) *Worker {
	return &Worker{
		config: cfg,
		log:    logger.New(),

		client:  client,
		scratch: scratchManager,

		settingsService: settings.NewService(db),
		statsService:    stats.NewService(db),

		limiters: map[int64]*rate.Limiter{},
	}
}

// Process renames one file and sends it back. Every failure is reported to
// the user and returned so the queue can record the job's kind of failure.
// Counters and stats only change after the renamed file was delivered.
func (w *Worker) Process(ctx context.Context, job *models.RenameJob) error {
	log := w.log.ID(job.ID).Root(logger.Data{"job_id": job.ID, "user_id": job.UserID, "process_id": processID})
	ctx = log.WithContext(ctx)

	start := time.Now()
	log.Info("processing rename job", logger.Data{"original_name": job.OriginalName, "file_size": job.FileSize})

	name, err := w.process(ctx, job)
	if err != nil {
		log.Err(err).Error("rename job failed", logger.Data{"kind": string(errcodes.KindOf(err))})
		w.notify(ctx, job, errcodes.UserMessage(err))
		return err
	}

	log.Info("rename job finished", logger.Data{"new_name": name, "duration_ms": time.Since(start).Milliseconds()})
	return nil
}

func (w *Worker) process(ctx context.Context, job *models.RenameJob) (string, error) {
	log := logger.FromContext(ctx)

	// Settings are read once here so a job keeps the template it was
	// dispatched with even if the user edits it mid-flight.
	userSettings, err := w.settingsService.Get(ctx, job.UserID)
	if err != nil {
		return "", err
	}

	name, err := NewName(job, userSettings)
	if err != nil {
		return "", err
	}

	space, err := w.scratch.Acquire(job.ID)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := space.Release(); err != nil {
			log.Err(err).Warn("failed to release scratch space")
		}
	}()

	incoming := space.Path(incomingFile)
	size, err := w.client.Download(ctx, job.FileRef, incoming)
	if err != nil {
		return "", err
	}

	target := space.Path(name)
	if err := os.Rename(incoming, target); err != nil {
		return "", errcodes.Storage(errors.WithStack(err))
	}

	upload := transport.Upload{
		ChatID:  job.ChatID,
		Path:    target,
		Kind:    mediafile.KindDocument,
		Caption: captionPrefix + name,
		ReplyTo: job.MessageID,
	}

	if userSettings.MediaType == models.MediaTypeAuto {
		info, err := mediafile.Detect(target)
		if err != nil {
			log.Warn("failed to detect media type, sending as document", logger.Data{"error": err.Error()})
		} else {
			upload.Kind = info.Kind
			upload.Duration = info.Duration
		}
	}

	if userSettings.HasThumbnail() {
		path, err := w.prepareThumbnail(ctx, space, *userSettings.ThumbnailRef)
		if err != nil {
			log.Warn("failed to prepare thumbnail, sending without one", logger.Data{"error": err.Error(), "kind": string(errcodes.KindOf(err))})
		} else {
			upload.ThumbnailPath = path
		}
	}

	if err := w.uploadLimiter(job.UserID).Wait(ctx); err != nil {
		return "", errcodes.Transport(errors.WithStack(err))
	}
	if err := w.client.Upload(ctx, upload); err != nil {
		return "", err
	}

	counter, err := w.settingsService.IncrementCounter(ctx, job.UserID)
	if err != nil {
		return "", err
	}
	log.Debug("counter advanced", logger.Data{"counter": counter})

	if err := w.statsService.RecordSuccess(ctx, job.UserID, job.DisplayName, size); err != nil {
		log.Err(err).Warn("failed to record stats for delivered file")
	}

	return name, nil
}

// NewName computes the output filename for job from the user's settings.
func NewName(job *models.RenameJob, userSettings *models.UserSettings) (string, error) {
	md := metadata.Extract(job.OriginalName, userSettings)

	switch userSettings.RenameMode {
	case models.RenameModeManual:
		caption := strings.TrimSpace(job.Caption)
		if caption != "" {
			return template.Finalize(template.TrimExt(caption, md.Ext), md.Ext, userSettings.ReplaceRules), nil
		}
	case models.RenameModeReplace:
		return template.Finalize(md.Stem, md.Ext, userSettings.ReplaceRules), nil
	}

	return template.ResolveWithRules(userSettings.Template, md, userSettings.ReplaceRules)
}

func (w *Worker) prepareThumbnail(ctx context.Context, space *scratch.Space, ref string) (string, error) {
	src := space.Path(thumbSrcFile)
	if _, err := w.client.Download(ctx, ref, src); err != nil {
		return "", err
	}
	dst := space.Path(thumbFile)
	if err := thumbnail.Normalize(src, dst); err != nil {
		return "", err
	}
	return dst, nil
}

func (w *Worker) uploadLimiter(userID int64) *rate.Limiter {
	w.limitersMu.Lock()
	defer w.limitersMu.Unlock()

	if l, ok := w.limiters[userID]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Inf, 0)
	if n := w.config.UploadsPerHour; n > 0 {
		l = rate.NewLimiter(rate.Every(time.Hour/time.Duration(n)), n)
	}
	w.limiters[userID] = l
	return l
}

func (w *Worker) notify(ctx context.Context, job *models.RenameJob, text string) {
	err := w.client.Send(ctx, transport.Message{ChatID: job.ChatID, Text: text, ReplyTo: job.MessageID})
	if err != nil {
		logger.FromContext(ctx).Err(err).Warn("failed to notify user of failed job")
	}
}

const letterBytes = "abcdef0123456789"

func randStringBytes(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = letterBytes[rand.Intn(len(letterBytes))]
	}
	return string(b)
}
