// Package handler exposes the proxy and operational endpoints over Echo.
package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/labstack/echo/v4"

	"github.com/FelipeGerardi/projetos-desenvolvimento/internal/config"
	"github.com/FelipeGerardi/projetos-desenvolvimento/internal/model"
	"github.com/FelipeGerardi/projetos-desenvolvimento/internal/service"
)

// userinfoPattern matches the password part of URLs embedded in error messages.
var userinfoPattern = regexp.MustCompile(`(://[^/@\s:"]*:)[^/@\s"]+@`)

// ProxyHandler serves GET /api/proxy?url=<target>.
type ProxyHandler struct {
	service *service.ProxyService
	cfg     *config.Config
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, cfg *config.Config, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		cfg:     cfg,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle fetches the target named by the url query parameter and writes the
// (possibly rewritten) body back with only a Content-Type header from upstream.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	pr := &model.ProxyRequest{
		Ctx:       req.Context(),
		TargetURL: c.QueryParam("url"),
	}

	resp, err := h.service.Proxy(pr)
	if err != nil {
		return h.mapError(c, err)
	}

	return c.Blob(resp.StatusCode, resp.ContentType, resp.Body)
}

func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	var pe *service.Error
	if !errors.As(err, &pe) {
		pe = &service.Error{Kind: service.KindUpstream, Public: "internal error", Err: err}
	}

	switch pe.Kind {
	case service.KindMissingTarget:
		h.logger.Info("rejected request", "reason", pe.Kind.String())
		return c.String(http.StatusBadRequest, pe.Public)
	case service.KindBlocked:
		h.logger.Info("rejected request",
			"reason", pe.Kind.String(),
			"err", sanitizeError(pe),
		)
		return c.String(http.StatusForbidden, pe.Public)
	}

	h.logger.Error("proxy error",
		"err", sanitizeError(pe),
		"path", c.Request().URL.Path,
	)

	msg := pe.Public
	if h.cfg.Proxy.ExposeErrorDetail {
		msg = userinfoPattern.ReplaceAllString(pe.Detail(), "${1}[REDACTED]@")
	}
	return c.String(http.StatusInternalServerError, "Proxy error: "+msg)
}

// sanitizeError redacts URL passwords from error messages that may contain target URLs.
func sanitizeError(err error) string {
	return userinfoPattern.ReplaceAllString(err.Error(), "${1}[REDACTED]@")
}
