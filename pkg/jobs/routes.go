package jobs

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutesWithGroup registers job routes on a pre-configured group.
func RegisterRoutesWithGroup(g *echo.Group, source Source) {
	h := &handler{
		jobService: NewService(source),
	}

	g.GET("", h.list)
	g.GET("/:id", h.retrieve)
}
