package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/autorenamer/autorenamer/pkg/binder"
	"github.com/autorenamer/autorenamer/pkg/config"
	"github.com/autorenamer/autorenamer/pkg/errcodes"
	"github.com/autorenamer/autorenamer/pkg/jobs"
	"github.com/autorenamer/autorenamer/pkg/settings"
	"github.com/autorenamer/autorenamer/pkg/stats"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/echo/v4/middleware/recovery"
	"github.com/uptrace/bun"
)

// Dispatcher accepts updates delivered to the webhook.
type Dispatcher interface {
	Submit(update tgbotapi.Update) bool
}

// Queue reports on pending and recent rename jobs.
type Queue interface {
	jobs.Source
	Depth() int
}

func New(cfg *config.Config, db *bun.DB, dispatcher Dispatcher, queue Queue) (*http.Server, error) {
	e, err := newEcho(cfg, db, dispatcher, queue)
	if err != nil {
		return nil, err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.Port),
		Handler:           e,
		ReadHeaderTimeout: 3 * time.Second,
	}

	return srv, nil
}

func newEcho(cfg *config.Config, db *bun.DB, dispatcher Dispatcher, queue Queue) (*echo.Echo, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	b, err := binder.New()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	e.Binder = b

	e.Use(logger.Middleware())
	e.Use(recovery.Middleware())

	h := &handler{dispatcher: dispatcher, queue: queue}
	e.GET("/health", h.health)
	e.GET("/status", h.status)
	e.POST(cfg.WebhookRoute(), h.webhook)

	if cfg.AdminAPIKey != "" {
		registerAdminRoutes(e, cfg, db, queue)
	}

	echo.NotFoundHandler = notFoundHandler
	e.HTTPErrorHandler = errcodes.NewHandler().Handle

	return e, nil
}

// registerAdminRoutes registers the operator API. Every route needs the
// admin API key.
func registerAdminRoutes(e *echo.Echo, cfg *config.Config, db *bun.DB, queue Queue) {
	admin := e.Group("/admin")
	admin.Use(requireAPIKey(cfg.AdminAPIKey))

	stats.RegisterRoutesWithGroup(admin, stats.NewService(db))
	jobs.RegisterRoutesWithGroup(admin.Group("/jobs"), queue)
	settings.RegisterRoutesWithGroup(admin.Group("/users"), settings.NewService(db))
}

func notFoundHandler(c echo.Context) error {
	c.SetPath("/:path")
	return errcodes.NotFound("Page")
}
