package stats

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutesWithGroup registers stats routes on a pre-configured group.
func RegisterRoutesWithGroup(g *echo.Group, statsService *Service) {
	h := &handler{
		statsService: statsService,
	}

	g.GET("/stats", h.summary)
	g.GET("/leaderboard", h.leaderboard)
}
