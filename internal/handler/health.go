package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/FelipeGerardi/projetos-desenvolvimento/internal/allowlist"
	"github.com/FelipeGerardi/projetos-desenvolvimento/internal/config"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	matcher *allowlist.Matcher
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, matcher *allowlist.Matcher, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, matcher: matcher, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status returns proxy status information.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":           "ok",
		"version":          string(h.version),
		"allowlist_rules":  h.matcher.Len(),
		"propagate_status": h.cfg.Proxy.PropagateStatus,
		"max_body_bytes":   h.cfg.Upstream.MaxBodyBytes,
	})
}
