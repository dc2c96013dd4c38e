package settings

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutesWithGroup registers settings routes on a pre-configured group.
func RegisterRoutesWithGroup(g *echo.Group, settingsService *Service) {
	h := &handler{
		settingsService: settingsService,
	}

	g.GET("/:user_id/settings", h.retrieve)
	g.PATCH("/:user_id/settings", h.update)
}
