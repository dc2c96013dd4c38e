package bot

import (
	"path"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type EventKind string

const (
	EventFile         EventKind = "file"
	EventPhoto        EventKind = "photo"
	EventCommand      EventKind = "command"
	EventCallback     EventKind = "callback"
	EventUnrecognized EventKind = "unrecognized"
)

// File is an inbound file reference.
type File struct {
	ID       string
	Name     string
	Size     int64
	MimeType string
}

// Event is an inbound update reduced to what the dispatcher acts on.
type Event struct {
	Kind        EventKind
	UpdateID    int
	UserID      int64
	ChatID      int64
	DisplayName string
	MessageID   int

	File    *File
	Caption string

	Command string
	Args    string

	CallbackID string
	Data       string

	// Replyable is false for updates that carry no message to answer.
	Replyable bool
}

// Classify sorts an update into one event kind. Updates the bot has no use
// for are unrecognized.
func Classify(update tgbotapi.Update) Event {
	ev := Event{Kind: EventUnrecognized, UpdateID: update.UpdateID}

	if cq := update.CallbackQuery; cq != nil {
		ev.Kind = EventCallback
		ev.CallbackID = cq.ID
		ev.Data = cq.Data
		if cq.From != nil {
			ev.UserID = cq.From.ID
			ev.ChatID = cq.From.ID
			ev.DisplayName = displayName(cq.From)
		}
		if cq.Message != nil && cq.Message.Chat != nil {
			ev.ChatID = cq.Message.Chat.ID
			ev.MessageID = cq.Message.MessageID
		}
		ev.Replyable = ev.ChatID != 0
		return ev
	}

	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return ev
	}
	ev.UserID = msg.From.ID
	ev.ChatID = msg.Chat.ID
	ev.DisplayName = displayName(msg.From)
	ev.MessageID = msg.MessageID
	ev.Caption = msg.Caption
	ev.Replyable = true

	switch {
	case msg.IsCommand():
		ev.Kind = EventCommand
		ev.Command = strings.ToLower(msg.Command())
		ev.Args = strings.TrimSpace(msg.CommandArguments())
	case msg.Document != nil:
		ev.Kind = EventFile
		ev.File = &File{
			ID:       msg.Document.FileID,
			Name:     fallbackName(msg.Document.FileName, "document", msg.Document.FileUniqueID, ""),
			Size:     int64(msg.Document.FileSize),
			MimeType: msg.Document.MimeType,
		}
	case msg.Video != nil:
		ev.Kind = EventFile
		ev.File = &File{
			ID:       msg.Video.FileID,
			Name:     fallbackName(msg.Video.FileName, "video", msg.Video.FileUniqueID, ".mp4"),
			Size:     int64(msg.Video.FileSize),
			MimeType: msg.Video.MimeType,
		}
	case msg.Audio != nil:
		ev.Kind = EventFile
		ev.File = &File{
			ID:       msg.Audio.FileID,
			Name:     fallbackName(msg.Audio.FileName, "audio", msg.Audio.FileUniqueID, ".mp3"),
			Size:     int64(msg.Audio.FileSize),
			MimeType: msg.Audio.MimeType,
		}
	case len(msg.Photo) > 0:
		// Sizes are ascending, so the last one is the original.
		largest := msg.Photo[len(msg.Photo)-1]
		ev.Kind = EventPhoto
		ev.File = &File{ID: largest.FileID, Size: int64(largest.FileSize), MimeType: "image/jpeg"}
	}

	return ev
}

func displayName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return "@" + u.UserName
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func fallbackName(name, kind, uniqueID, ext string) string {
	name = strings.TrimSpace(path.Base(strings.ReplaceAll(name, `\`, "/")))
	if name != "" && name != "." && name != "/" {
		return name
	}
	return kind + "_" + uniqueID + ext
}
