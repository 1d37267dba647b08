// Package upstream is the HTTP transport shared by the government API clients.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/tribal-hazard-overlays/internal/domain"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/observability"
)

// maxBody caps how much of a response is read. NFHL polygons for a large
// viewport can run to tens of megabytes.
const maxBody = 64 << 20

// Client performs GET requests against upstream APIs with a per-request
// timeout, a fixed User-Agent, and per-source metrics.
type Client struct {
	httpClient *http.Client
	userAgent  string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// New creates an upstream client.
func New(timeout time.Duration, userAgent string, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  userAgent,
		metrics:    metrics,
		logger:     logger,
	}
}

// Get fetches rawURL and returns the body of a 2xx response. Transport
// failures and other statuses are returned as *domain.NetworkError.
func (c *Client) Get(ctx context.Context, source, rawURL, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	start := time.Now()
	body, err := c.do(req, source)
	c.metrics.UpstreamDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.UpstreamRequests.WithLabelValues(source, "error").Inc()
		c.logger.Debug("upstream request failed", "source", source, "url", rawURL, "error", err)
		return nil, err
	}
	c.metrics.UpstreamRequests.WithLabelValues(source, "success").Inc()
	return body, nil
}

func (c *Client) do(req *http.Request, source string) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.NetworkError{Source: source, URL: req.URL.String(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &domain.NetworkError{Source: source, URL: req.URL.String(), Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.NetworkError{
			Source:     source,
			URL:        req.URL.String(),
			StatusCode: resp.StatusCode,
			Err:        errors.New(snippet(body)),
		}
	}
	return body, nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 256 {
		s = s[:256] + "..."
	}
	if s == "" {
		return "empty response body"
	}
	return s
}
