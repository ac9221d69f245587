package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/semaphore"
)

// ConcurrencyLimit returns an Echo middleware that lets at most n requests
// run the wrapped handler at once. Requests over the limit fail fast with
// 503 instead of queueing. n <= 0 disables the limit.
func ConcurrencyLimit(n int64) echo.MiddlewareFunc {
	if n <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	sem := semaphore.NewWeighted(n)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !sem.TryAcquire(1) {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "Proxy busy")
			}
			defer sem.Release(1)
			return next(c)
		}
	}
}
