// Package client provides the HTTP client for the origin API.
package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"edge-gateway-go/internal/config"
	"edge-gateway-go/internal/metrics"
	"edge-gateway-go/internal/model"
)

// OriginClient sends requests to the origin API.
//
// Deadlines are not set on the client itself: each forwarding attempt carries
// its own context deadline, so a single client can serve attempts with
// different budgets. Redirects from the origin are followed transparently
// (net/http default policy); they are never surfaced to the caller as 3xx.
type OriginClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewOriginClient creates an OriginClient with connection pooling.
// The metrics parameter is optional; pass nil to disable origin metrics recording.
func NewOriginClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *OriginClient {
	transport := &http.Transport{
		MaxIdleConns:        cfg.Origin.IdleConnections,
		MaxIdleConnsPerHost: cfg.Origin.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &OriginClient{
		httpClient: &http.Client{Transport: transport},
		logger:     logger.With("component", "origin_client"),
		metrics:    m,
	}
}

// Do executes an HTTP request against the origin and returns the raw response.
// The caller is responsible for closing the response body.
//
// Do returns an error only for transport-level failures (timeout, DNS,
// connection reset); HTTP-level statuses, including 4xx/5xx, come back as a
// normal response. The retry loop in service depends on this split.
func (c *OriginClient) Do(req *http.Request) (*model.ProxyResponse, error) {
	c.logger.Debug("origin request",
		"method", req.Method,
		"path", req.URL.Path,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via ProxyResponse
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(req.Method)

	if err != nil {
		if c.metrics != nil {
			c.metrics.OriginDuration.WithLabelValues(method).Observe(duration)
		}
		return nil, fmt.Errorf("origin request: %w", err)
	}

	if c.metrics != nil {
		status := strconv.Itoa(resp.StatusCode)
		c.metrics.OriginDuration.WithLabelValues(method).Observe(duration)
		c.metrics.OriginResponses.WithLabelValues(method, status).Inc()
	}

	return &model.ProxyResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}

// DoStream executes a request and returns the response body as a stream.
// The caller is responsible for closing the returned ReadCloser.
// The provided context controls the lifetime of the attempt: when it is
// canceled or its deadline expires, the in-flight origin call is aborted.
func (c *OriginClient) DoStream(ctx context.Context, method, url string, header http.Header, body io.Reader) (*model.ProxyResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build origin request: %w", err)
	}
	req.Header = header

	return c.Do(req)
}
