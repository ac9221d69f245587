package handler

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/FelipeGerardi/projetos-desenvolvimento/internal/config"
	"github.com/FelipeGerardi/projetos-desenvolvimento/internal/metrics"
	"github.com/FelipeGerardi/projetos-desenvolvimento/internal/middleware"
)

// RegisterRoutes wires all route handlers onto the Echo instance.
// The proxy route sends no response header beyond Content-Type, so framing
// headers and request IDs are attached to the operational routes only.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, m *metrics.Metrics, proxy *ProxyHandler, health *HealthHandler) {
	e.GET("/api/proxy", proxy.Handle,
		middleware.ContentTypeOnly(),
		middleware.ConcurrencyLimit(cfg.Server.MaxInFlight),
	)

	ops := []echo.MiddlewareFunc{echomw.RequestID(), middleware.SecurityHeaders()}
	e.GET("/healthz", health.Healthz, ops...)
	e.GET("/proxy/status", health.Status, ops...)

	if cfg.Metrics.Enabled && m != nil {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})), ops...)
	}
}
