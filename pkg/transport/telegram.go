package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/autorenamer/autorenamer/pkg/config"
	"github.com/autorenamer/autorenamer/pkg/errcodes"
	"github.com/autorenamer/autorenamer/pkg/mediafile"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"golang.org/x/time/rate"
)

const pollTimeoutSeconds = 60

// Telegram implements Client against the Bot API. Every API call waits on a
// shared limiter so the bot stays under the platform's global request rate.
type Telegram struct {
	api          *tgbotapi.BotAPI
	token        string
	fileEndpoint string
	maxFileSize  int64
	limiter      *rate.Limiter
	httpClient   *http.Client
	log          logger.Logger
}

// NewTelegram connects to the Bot API and verifies the token.
func NewTelegram(cfg *config.Config) (*Telegram, error) {
	return newTelegram(cfg, http.DefaultClient)
}

func newTelegram(cfg *config.Config, client *http.Client) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, cfg.BotAPIEndpoint, client)
	if err != nil {
		return nil, errcodes.Transport(errors.Wrap(err, "failed to connect to the bot api"))
	}
	burst := int(cfg.APIRequestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return &Telegram{
		api:          api,
		token:        cfg.BotToken,
		fileEndpoint: cfg.BotFileEndpoint,
		maxFileSize:  cfg.MaxFileSize,
		limiter:      rate.NewLimiter(rate.Limit(cfg.APIRequestsPerSecond), burst),
		httpClient:   client,
		log:          logger.New(),
	}, nil
}

// Username is the bot's own username, as reported by the platform.
func (t *Telegram) Username() string {
	return t.api.Self.UserName
}

func (t *Telegram) wait(ctx context.Context) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return errcodes.Transport(errors.WithStack(err))
	}
	return nil
}

func (t *Telegram) Download(ctx context.Context, fileRef, dst string) (int64, error) {
	if err := t.wait(ctx); err != nil {
		return 0, err
	}
	file, err := t.api.GetFile(tgbotapi.FileConfig{FileID: fileRef})
	if err != nil {
		return 0, classify(err)
	}
	if file.FileSize > 0 && int64(file.FileSize) > t.maxFileSize {
		return 0, errcodes.Transport(errors.Wrapf(errcodes.ErrFileTooLarge, "file is %d bytes", file.FileSize))
	}

	link := fmt.Sprintf(t.fileEndpoint, t.token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return 0, errcodes.Transport(errors.WithStack(err))
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return 0, errcodes.Transport(errors.Wrap(err, "failed to fetch file"))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, errcodes.Transport(errors.Errorf("file download returned status %d", resp.StatusCode))
	}

	out, err := os.Create(dst)
	if err != nil {
		return 0, errcodes.Storage(errors.WithStack(err))
	}
	n, err := io.Copy(out, io.LimitReader(bodyReader{resp.Body}, t.maxFileSize+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		// Read failures are already transport errors; anything else came
		// from the scratch file.
		return n, errcodes.Storage(errors.Wrap(err, "failed to write download"))
	}
	if n > t.maxFileSize {
		return n, errcodes.Transport(errors.Wrapf(errcodes.ErrFileTooLarge, "download exceeded %d bytes", t.maxFileSize))
	}
	return n, nil
}

func (t *Telegram) Upload(ctx context.Context, upload Upload) error {
	if err := t.wait(ctx); err != nil {
		return err
	}

	var thumb tgbotapi.RequestFileData
	if upload.ThumbnailPath != "" {
		thumb = tgbotapi.FilePath(upload.ThumbnailPath)
	}
	file := tgbotapi.FilePath(upload.Path)
	seconds := int(upload.Duration.Seconds())

	var c tgbotapi.Chattable
	switch upload.Kind {
	case mediafile.KindVideo:
		v := tgbotapi.NewVideo(upload.ChatID, file)
		v.Caption = upload.Caption
		v.Thumb = thumb
		v.Duration = seconds
		v.SupportsStreaming = true
		v.ReplyToMessageID = upload.ReplyTo
		c = v
	case mediafile.KindAudio:
		a := tgbotapi.NewAudio(upload.ChatID, file)
		a.Caption = upload.Caption
		a.Thumb = thumb
		a.Duration = seconds
		a.ReplyToMessageID = upload.ReplyTo
		c = a
	default:
		d := tgbotapi.NewDocument(upload.ChatID, file)
		d.Caption = upload.Caption
		d.Thumb = thumb
		d.DisableContentTypeDetection = true
		d.ReplyToMessageID = upload.ReplyTo
		c = d
	}

	if _, err := t.api.Send(c); err != nil {
		return classify(err)
	}
	return nil
}

func (t *Telegram) Send(ctx context.Context, msg Message) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	m := tgbotapi.NewMessage(msg.ChatID, msg.Text)
	m.ReplyToMessageID = msg.ReplyTo
	m.DisableWebPagePreview = true
	if len(msg.Buttons) > 0 {
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(msg.Buttons))
		for _, row := range msg.Buttons {
			buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
			for _, b := range row {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
			}
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
		}
		m.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	if _, err := t.api.Send(m); err != nil {
		return classify(err)
	}
	return nil
}

func (t *Telegram) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	if _, err := t.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return classify(err)
	}
	return nil
}

// SetWebhook registers url as the update delivery endpoint.
func (t *Telegram) SetWebhook(ctx context.Context, url string) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return errcodes.Transport(errors.Wrap(err, "invalid webhook url"))
	}
	if _, err := t.api.Request(wh); err != nil {
		return classify(err)
	}
	return nil
}

// DeleteWebhook removes any registered webhook so updates can be polled.
func (t *Telegram) DeleteWebhook(ctx context.Context) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	if _, err := t.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return classify(err)
	}
	return nil
}

// Poll long-polls for updates and hands each one to sink until ctx is done.
// The platform has already forgotten a fetched update, so sink must block
// until the update is accepted. It returns false only when ctx ends first.
func (t *Telegram) Poll(ctx context.Context, sink func(ctx context.Context, update tgbotapi.Update) bool) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeoutSeconds
	updates := t.api.GetUpdatesChan(u)
	defer t.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if !sink(ctx, update) {
				t.log.Warn("polling stopped before update was accepted", logger.Data{"update_id": update.UpdateID})
				return
			}
		}
	}
}

// bodyReader reports failures reading a download as transport errors.
type bodyReader struct {
	r io.Reader
}

func (br bodyReader) Read(p []byte) (int, error) {
	n, err := br.r.Read(p)
	if err != nil && err != io.EOF {
		err = errcodes.Transport(errors.Wrap(err, "failed to read download"))
	}
	return n, err
}

// classify maps Bot API failures onto transport errors, keeping the
// rate-limit and size cases recognisable for user messages.
func classify(err error) error {
	if err == nil {
		return nil
	}
	code, retryAfter, message := apiError(err)
	switch {
	case code == http.StatusTooManyRequests || retryAfter > 0:
		return errcodes.Transport(errors.Wrapf(errcodes.ErrRateLimited, "retry after %ds: %s", retryAfter, message))
	case code == http.StatusRequestEntityTooLarge || strings.Contains(strings.ToLower(message), "too big"):
		return errcodes.Transport(errors.Wrap(errcodes.ErrFileTooLarge, message))
	}
	return errcodes.Transport(errors.WithStack(err))
}

func apiError(err error) (code, retryAfter int, message string) {
	var ptr *tgbotapi.Error
	if errors.As(err, &ptr) && ptr != nil {
		return ptr.Code, ptr.RetryAfter, ptr.Message
	}
	var val tgbotapi.Error
	if errors.As(err, &val) {
		return val.Code, val.RetryAfter, val.Message
	}
	return 0, 0, err.Error()
}
