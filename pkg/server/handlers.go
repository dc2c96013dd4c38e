package server

import (
	"io"
	"net/http"

	"github.com/autorenamer/autorenamer/pkg/errcodes"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	echologger "github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
)

const maxUpdateSize = 1 << 20

type handler struct {
	dispatcher Dispatcher
	queue      Queue
}

func (h *handler) health(c echo.Context) error {
	return errors.WithStack(c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
		"bot":    "running",
	}))
}

func (h *handler) status(c echo.Context) error {
	return errors.WithStack(c.JSON(http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"queue_depth": h.queue.Depth(),
	}))
}

// webhook accepts one update from the platform. The update is handled after
// the response is sent, so the platform only waits for it to be buffered.
func (h *handler) webhook(c echo.Context) error {
	log := echologger.FromEchoContext(c)

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxUpdateSize))
	if err != nil {
		return errcodes.MalformedPayload()
	}

	update := tgbotapi.Update{}
	if err := json.Unmarshal(body, &update); err != nil {
		log.Err(err).Warn("malformed update")
		return errcodes.MalformedPayload()
	}

	if !h.dispatcher.Submit(update) {
		log.Warn("update buffer full", logger.Data{"update_id": update.UpdateID})
		return errcodes.Unavailable("Update buffer is full.")
	}

	return errors.WithStack(c.NoContent(http.StatusOK))
}
