package middleware

import (
	"github.com/labstack/echo/v4"
)

// ContentTypeOnly returns an Echo middleware that drops every response
// header except Content-Type right before the status line is written.
// It covers headers set by the handler, by other middleware and by the
// error handler alike.
func ContentTypeOnly() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			res := c.Response()
			res.Before(func() {
				h := res.Header()
				ct := h.Get(echo.HeaderContentType)
				clear(h)
				if ct != "" {
					h.Set(echo.HeaderContentType, ct)
				}
			})
			return next(c)
		}
	}
}

// SecurityHeaders returns an Echo middleware that adds anti-sniffing and
// anti-framing headers to responses. Never attach it to /api/proxy, whose
// output must stay embeddable.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			return next(c)
		}
	}
}
