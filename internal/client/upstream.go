// Package client provides the outbound HTTP client that fetches proxied pages.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/FelipeGerardi/projetos-desenvolvimento/internal/config"
	"github.com/FelipeGerardi/projetos-desenvolvimento/internal/metrics"
	"github.com/FelipeGerardi/projetos-desenvolvimento/internal/model"
)

const userAgent = "frame-proxy/1.0"

// ErrBodyTooLarge is returned when the upstream body exceeds upstream.max_body_bytes.
var ErrBodyTooLarge = errors.New("upstream response body exceeds limit")

// RedirectBlockedError is returned when a redirect hop leaves the allowlist.
type RedirectBlockedError struct {
	URL string
}

func (e *RedirectBlockedError) Error() string {
	return fmt.Sprintf("redirect to %s blocked by allowlist", e.URL)
}

// RedirectPolicy decides whether a redirect hop may be followed.
type RedirectPolicy interface {
	AllowURL(u *url.URL) bool
}

// UpstreamClient performs the single anonymous GET behind each proxied request.
type UpstreamClient struct {
	httpClient   *http.Client
	logger       *slog.Logger
	metrics      *metrics.Metrics
	policy       RedirectPolicy
	maxRedirects int
	maxBody      int64
}

// NewUpstreamClient creates an UpstreamClient with connection pooling and timeouts.
// Every redirect hop is checked against policy unless upstream.skip_redirect_check
// is set or policy is nil. The metrics parameter is optional.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics, policy RedirectPolicy) *UpstreamClient {
	transport := &http.Transport{
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	c := &UpstreamClient{
		logger:       logger.With("component", "upstream_client"),
		metrics:      m,
		policy:       policy,
		maxRedirects: cfg.Upstream.MaxRedirects,
		maxBody:      cfg.Upstream.MaxBodyBytes,
	}
	if cfg.Upstream.SkipRedirectCheck {
		c.policy = nil
	}
	if c.maxRedirects <= 0 {
		c.maxRedirects = 10
	}

	c.httpClient = &http.Client{
		Transport:     transport,
		Timeout:       time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		CheckRedirect: c.checkRedirect,
	}
	return c
}

// Fetch issues a GET for target and buffers the whole response body.
// No inbound request headers are forwarded. ctx bounds the upstream call,
// so a caller that disconnects cancels it.
func (c *UpstreamClient) Fetch(ctx context.Context, target string) (*model.UpstreamResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	c.logger.Debug("upstream request",
		"host", req.URL.Host,
		"path", req.URL.Path,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(start, 0)
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := c.readBody(resp.Body)
	c.observe(start, resp.StatusCode)
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}

	return &model.UpstreamResponse{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		FinalURL:    resp.Request.URL.String(),
	}, nil
}

func (c *UpstreamClient) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= c.maxRedirects {
		return fmt.Errorf("stopped after %d redirects", c.maxRedirects)
	}
	if c.policy != nil && !c.policy.AllowURL(req.URL) {
		c.logger.Warn("redirect left allowlist",
			"from", via[len(via)-1].URL.Redacted(),
			"to", req.URL.Redacted(),
		)
		return &RedirectBlockedError{URL: req.URL.Redacted()}
	}
	return nil
}

func (c *UpstreamClient) readBody(r io.Reader) ([]byte, error) {
	if c.maxBody <= 0 {
		return io.ReadAll(r)
	}
	body, err := io.ReadAll(io.LimitReader(r, c.maxBody+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > c.maxBody {
		return nil, ErrBodyTooLarge
	}
	return body, nil
}

// observe records upstream latency and outcome; status 0 means no response.
func (c *UpstreamClient) observe(start time.Time, status int) {
	if c.metrics == nil {
		return
	}
	class := metrics.StatusClass(status)
	c.metrics.UpstreamDuration.WithLabelValues(class).Observe(time.Since(start).Seconds())
	c.metrics.UpstreamResponses.WithLabelValues(class).Inc()
}
