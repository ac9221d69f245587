package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/FelipeGerardi/projetos-desenvolvimento/internal/metrics"
)

// MetricsMiddleware returns an Echo middleware that records Prometheus metrics
// for each inbound request: count, latency and response size, all labelled
// with a bounded path prefix.
func MetricsMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()
			err := next(c)
			duration := time.Since(start).Seconds()

			status := strconv.Itoa(responseStatus(c, err))
			method := metrics.NormalizeMethod(c.Request().Method)
			path := metrics.NormalizePath(c.Request().URL.Path)

			m.RequestsTotal.WithLabelValues(method, status, path).Inc()
			m.RequestDuration.WithLabelValues(method, status, path).Observe(duration)
			if err == nil {
				m.ResponseBytes.WithLabelValues(path).Observe(float64(c.Response().Size))
			}

			return err
		}
	}
}
