package server

import (
	"crypto/subtle"

	"github.com/autorenamer/autorenamer/pkg/errcodes"
	"github.com/labstack/echo/v4"
)

const apiKeyHeader = "X-Api-Key"

func requireAPIKey(key string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			got := c.Request().Header.Get(apiKeyHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				return errcodes.Unauthorized()
			}
			return next(c)
		}
	}
}
