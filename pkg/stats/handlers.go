package stats

import (
	"net/http"

	"github.com/autorenamer/autorenamer/pkg/models"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type handler struct {
	statsService *Service
}

func (h *handler) summary(c echo.Context) error {
	ctx := c.Request().Context()

	summary, err := h.statsService.Summary(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, summary))
}

func (h *handler) leaderboard(c echo.Context) error {
	ctx := c.Request().Context()

	params := LeaderboardQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	entries, err := h.statsService.Leaderboard(ctx, params.Limit)
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Entries []*models.UserStats `json:"entries"`
	}{entries}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}
