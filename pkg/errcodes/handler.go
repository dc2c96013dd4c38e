package errcodes

import (
	"net/http"

	"github.com/iancoleman/strcase"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	echologger "github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/errutils"
	"github.com/robinjoseph08/golib/logger"
)

// Handler renders errors returned by the health, webhook and admin routes.
type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

// jobStatus is the response for a rename pipeline failure that reached an
// admin route, keyed by its kind.
var jobStatus = map[Kind]struct {
	HTTPCode int
	Code     string
	Message  string
}{
	KindTransport:   {http.StatusBadGateway, "messaging_platform_error", "The messaging platform could not be reached."},
	KindTemplate:    {http.StatusUnprocessableEntity, "invalid_template", ""},
	KindStorage:     {http.StatusInsufficientStorage, "scratch_storage_error", "Scratch storage is unavailable."},
	KindPersistence: {http.StatusServiceUnavailable, "settings_store_unavailable", "The settings store is unavailable."},
}

// Handle is an Echo error handler. Known errors keep their status and
// anything unclassified is a 500.
func (h *Handler) Handle(err error, c echo.Context) {
	log := echologger.FromEchoContext(c)
	if errutils.IsIgnorableErr(err) {
		log.Err(err).Warn("broken pipe")
		return
	}

	e := Render(err)
	if e.HTTPCode >= http.StatusInternalServerError {
		log.Err(err).Error("server error", logger.Data{"code": e.Code, "kind": string(KindOf(err))})
	}

	payload := map[string]interface{}{
		"error": map[string]interface{}{
			"code":        e.Code,
			"message":     e.Message,
			"status_code": e.HTTPCode,
		},
	}
	if err := c.JSON(e.HTTPCode, payload); err != nil {
		log.Err(errors.WithStack(err)).Error("error handler json error")
	}
}

// Render maps err onto the Error that is sent to the client.
func Render(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	var je *JobError
	if errors.As(err, &je) {
		if s, ok := jobStatus[je.Kind]; ok {
			msg := s.Message
			if msg == "" {
				msg = Cause(err).Error()
			}
			return &Error{HTTPCode: s.HTTPCode, Message: msg, Code: s.Code}
		}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg, ok := he.Message.(string)
		if !ok {
			msg = http.StatusText(he.Code)
		}
		return &Error{HTTPCode: he.Code, Message: msg, Code: strcase.ToSnake(msg)}
	}

	return &Error{HTTPCode: http.StatusInternalServerError, Message: "Internal Server Error", Code: "internal_server_error"}
}
