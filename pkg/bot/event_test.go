package bot

import (
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func message(userID int64) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 10,
		From:      &tgbotapi.User{ID: userID, FirstName: "Ann", LastName: "Lee"},
		Chat:      &tgbotapi.Chat{ID: userID, Type: "private"},
	}
}

func commandUpdate(userID int64, text string) tgbotapi.Update {
	msg := message(userID)
	cmd, _, _ := strings.Cut(text, " ")
	msg.Text = text
	msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	return tgbotapi.Update{UpdateID: 1, Message: msg}
}

func documentUpdate(userID int64, name string, size int) tgbotapi.Update {
	msg := message(userID)
	msg.Document = &tgbotapi.Document{FileID: "doc-" + name, FileUniqueID: "u-" + name, FileName: name, FileSize: size, MimeType: "video/x-matroska"}
	return tgbotapi.Update{UpdateID: 2, Message: msg}
}

func TestClassify_Document(t *testing.T) {
	update := documentUpdate(5, "clip.S01E02.mkv", 2048)
	update.Message.Caption = "new name"

	ev := Classify(update)
	assert.Equal(t, EventFile, ev.Kind)
	assert.Equal(t, int64(5), ev.UserID)
	assert.Equal(t, int64(5), ev.ChatID)
	assert.Equal(t, 10, ev.MessageID)
	assert.Equal(t, "Ann Lee", ev.DisplayName)
	assert.Equal(t, "new name", ev.Caption)
	require.NotNil(t, ev.File)
	assert.Equal(t, "doc-clip.S01E02.mkv", ev.File.ID)
	assert.Equal(t, "clip.S01E02.mkv", ev.File.Name)
	assert.Equal(t, int64(2048), ev.File.Size)
	assert.True(t, ev.Replyable)
}

func TestClassify_VideoWithoutName(t *testing.T) {
	msg := message(5)
	msg.From.UserName = "ann"
	msg.Video = &tgbotapi.Video{FileID: "vid", FileUniqueID: "AbC", FileSize: 10}

	ev := Classify(tgbotapi.Update{Message: msg})
	assert.Equal(t, EventFile, ev.Kind)
	assert.Equal(t, "video_AbC.mp4", ev.File.Name)
	assert.Equal(t, "@ann", ev.DisplayName)
}

func TestClassify_DocumentNameWithPath(t *testing.T) {
	ev := Classify(documentUpdate(5, `..\..\evil.txt`, 1))
	assert.Equal(t, "evil.txt", ev.File.Name)
}

func TestClassify_AudioIsFile(t *testing.T) {
	msg := message(5)
	msg.Audio = &tgbotapi.Audio{FileID: "aud", FileUniqueID: "x", FileName: "song.flac", FileSize: 3}

	ev := Classify(tgbotapi.Update{Message: msg})
	assert.Equal(t, EventFile, ev.Kind)
	assert.Equal(t, "song.flac", ev.File.Name)
}

func TestClassify_PhotoPicksLargest(t *testing.T) {
	msg := message(5)
	msg.Photo = []tgbotapi.PhotoSize{
		{FileID: "small", Width: 90, Height: 90},
		{FileID: "large", Width: 1280, Height: 1280},
	}

	ev := Classify(tgbotapi.Update{Message: msg})
	assert.Equal(t, EventPhoto, ev.Kind)
	assert.Equal(t, "large", ev.File.ID)
}

func TestClassify_Command(t *testing.T) {
	ev := Classify(commandUpdate(5, "/AutoRename {title} {season}"))
	assert.Equal(t, EventCommand, ev.Kind)
	assert.Equal(t, "autorename", ev.Command)
	assert.Equal(t, "{title} {season}", ev.Args)

	ev = Classify(commandUpdate(5, "/help@renamer_bot"))
	assert.Equal(t, "help", ev.Command)
	assert.Empty(t, ev.Args)
}

func TestClassify_Callback(t *testing.T) {
	update := tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb-1",
		From:    &tgbotapi.User{ID: 5, FirstName: "Ann"},
		Message: &tgbotapi.Message{MessageID: 44, Chat: &tgbotapi.Chat{ID: 99}},
		Data:    "mode:manual",
	}}

	ev := Classify(update)
	assert.Equal(t, EventCallback, ev.Kind)
	assert.Equal(t, "cb-1", ev.CallbackID)
	assert.Equal(t, "mode:manual", ev.Data)
	assert.Equal(t, int64(5), ev.UserID)
	assert.Equal(t, int64(99), ev.ChatID)
	assert.Equal(t, 44, ev.MessageID)
}

func TestClassify_Unrecognized(t *testing.T) {
	ev := Classify(tgbotapi.Update{UpdateID: 3})
	assert.Equal(t, EventUnrecognized, ev.Kind)
	assert.False(t, ev.Replyable)

	msg := message(5)
	msg.Text = "hello"
	ev = Classify(tgbotapi.Update{Message: msg})
	assert.Equal(t, EventUnrecognized, ev.Kind)
	assert.True(t, ev.Replyable)

	ev = Classify(tgbotapi.Update{EditedMessage: message(5)})
	assert.Equal(t, EventUnrecognized, ev.Kind)
	assert.False(t, ev.Replyable)
}
