package transport

import (
	"context"
	"time"

	"github.com/autorenamer/autorenamer/pkg/mediafile"
)

// Button is one inline keyboard button. Data is delivered back as a callback.
type Button struct {
	Text string
	Data string
}

// Message is an outgoing text message.
type Message struct {
	ChatID  int64
	Text    string
	ReplyTo int
	Buttons [][]Button
}

// Upload describes a renamed file to send back. The file at Path is sent
// under its base name.
type Upload struct {
	ChatID        int64
	Path          string
	Kind          mediafile.Kind
	Caption       string
	ThumbnailPath string
	Duration      time.Duration
	ReplyTo       int
}

type Downloader interface {
	// Download fetches the file identified by fileRef into dst and returns
	// the number of bytes written.
	Download(ctx context.Context, fileRef, dst string) (int64, error)
}

type Uploader interface {
	Upload(ctx context.Context, upload Upload) error
}

type Messenger interface {
	Send(ctx context.Context, msg Message) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// Client is everything the bot needs from the messaging platform.
type Client interface {
	Downloader
	Uploader
	Messenger
}

var _ Client = (*Telegram)(nil)
