// Package service implements the fetch, classify and rewrite steps behind /api/proxy.
package service

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/FelipeGerardi/projetos-desenvolvimento/internal/allowlist"
	"github.com/FelipeGerardi/projetos-desenvolvimento/internal/config"
	"github.com/FelipeGerardi/projetos-desenvolvimento/internal/metrics"
	"github.com/FelipeGerardi/projetos-desenvolvimento/internal/model"
	"github.com/FelipeGerardi/projetos-desenvolvimento/internal/rewrite"
)

// defaultContentType is emitted for upstream bodies that carry no Content-Type.
const defaultContentType = "application/octet-stream"

// Fetcher retrieves a target URL. Implemented by *client.UpstreamClient.
type Fetcher interface {
	Fetch(ctx context.Context, target string) (*model.UpstreamResponse, error)
}

// ProxyService turns a ProxyRequest into a ProxyResponse or a classified *Error.
type ProxyService struct {
	fetcher Fetcher
	matcher *allowlist.Matcher
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewProxyService creates a ProxyService. The metrics parameter is optional.
func NewProxyService(f Fetcher, matcher *allowlist.Matcher, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *ProxyService {
	return &ProxyService{
		fetcher: f,
		matcher: matcher,
		cfg:     cfg,
		logger:  logger.With("component", "proxy_service"),
		metrics: m,
	}
}

// Proxy validates the target against the allowlist, fetches it and, for HTML,
// rewrites it for framing. Errors are always *Error. A blocked target is never
// fetched.
func (s *ProxyService) Proxy(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	if pr.TargetURL == "" {
		return nil, errMissingTarget
	}

	u, ok := s.matcher.Check(pr.TargetURL)
	if !ok {
		s.countDecision("blocked")
		s.logger.Warn("target blocked by allowlist", "target", pr.TargetURL)
		return nil, errBlocked
	}
	s.countDecision("allowed")

	s.logger.Debug("fetching target",
		"host", u.Host,
		"rule", s.matcher.Match(u),
	)

	up, err := s.fetcher.Fetch(pr.Ctx, pr.TargetURL)
	if err != nil {
		return nil, classifyFetchError(err)
	}

	resp := &model.ProxyResponse{
		StatusCode:  http.StatusOK,
		ContentType: up.ContentType,
		Body:        up.Body,
	}
	if s.cfg.Proxy.PropagateStatus {
		resp.StatusCode = up.StatusCode
	}
	if resp.ContentType == "" {
		resp.ContentType = defaultContentType
	}

	if !rewrite.IsHTML(up.ContentType) {
		s.countRewrite("passthrough")
		return resp, nil
	}

	res, err := rewrite.Document(up.Body, pr.TargetURL)
	if err != nil {
		// Pass the upstream body through unmodified.
		s.countRewrite("failed")
		s.logger.Warn("html rewrite failed; passing body through",
			"err", err,
			"host", u.Host,
		)
		return resp, nil
	}
	s.countRewrite("rewritten")

	s.logger.Debug("html rewritten",
		"host", u.Host,
		"head_found", res.HeadFound,
		"meta_stripped", res.Stripped,
	)

	resp.ContentType = rewrite.ContentType
	resp.Body = res.HTML
	return resp, nil
}

func (s *ProxyService) countDecision(result string) {
	if s.metrics != nil {
		s.metrics.AllowlistDecisions.WithLabelValues(result).Inc()
	}
}

func (s *ProxyService) countRewrite(outcome string) {
	if s.metrics != nil {
		s.metrics.Rewrites.WithLabelValues(outcome).Inc()
	}
}
