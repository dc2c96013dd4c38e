package settings

import (
	"net/http"
	"strconv"

	"github.com/autorenamer/autorenamer/pkg/errcodes"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type handler struct {
	settingsService *Service
}

func userID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errcodes.NotFound("User")
	}
	return id, nil
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := userID(c)
	if err != nil {
		return err
	}

	settings, err := h.settingsService.Get(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}
	// Defaults are returned for users who never talked to the bot.
	if settings.CreatedAt.IsZero() {
		return errcodes.NotFound("User")
	}

	return errors.WithStack(c.JSON(http.StatusOK, settings))
}

func (h *handler) update(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := userID(c)
	if err != nil {
		return err
	}

	// Bind params.
	params := UpdateSettingsPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	settings, err := h.settingsService.Get(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}
	if settings.CreatedAt.IsZero() {
		return errcodes.NotFound("User")
	}

	if params.Template != nil {
		if err := h.settingsService.UpdateTemplate(ctx, id, *params.Template); err != nil {
			return errors.WithStack(err)
		}
	}
	if params.RenameMode != nil {
		if err := h.settingsService.SetRenameMode(ctx, id, *params.RenameMode); err != nil {
			return errors.WithStack(err)
		}
	}
	if params.MediaType != nil {
		if err := h.settingsService.SetMediaType(ctx, id, *params.MediaType); err != nil {
			return errors.WithStack(err)
		}
	}

	settings, err = h.settingsService.Get(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, settings))
}
