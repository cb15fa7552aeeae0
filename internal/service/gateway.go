// Package service implements the core forwarding and retry logic.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"edge-gateway-go/internal/client"
	"edge-gateway-go/internal/config"
	"edge-gateway-go/internal/metrics"
	"edge-gateway-go/internal/model"
)

// ErrOriginUnstable is returned when every forwarding attempt ended in a
// retryable status or a transport failure. Callers cannot distinguish the two
// cases; both mean "try again later".
var ErrOriginUnstable = errors.New("origin unstable: retry budget exhausted")

// defaultRetryableStatuses are the statuses treated as transient
// infrastructure failures. Client errors (4xx) and application-level 5xx
// outside this set are passed through untouched.
var defaultRetryableStatuses = []int{
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
	522, // Cloudflare: connection timed out
	524, // Cloudflare: a timeout occurred
}

// maxDrainBytes bounds how much of a discarded retryable response body is
// drained before close, to keep the connection reusable without buffering
// arbitrarily large error pages.
const maxDrainBytes = 64 * 1024

// GatewayService forwards requests to the origin, retrying transient failures.
type GatewayService struct {
	client  *client.OriginClient
	logger  *slog.Logger
	metrics *metrics.Metrics
	baseURL *url.URL

	maxAttempts    int
	attemptTimeout time.Duration
	backoffStep    time.Duration
	backoffCap     time.Duration
	retryable      map[int]bool
}

// NewGatewayService creates a GatewayService. The retryable-status set and
// timing constants are frozen here; the service holds no mutable state after
// construction and is safe for concurrent use.
func NewGatewayService(c *client.OriginClient, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*GatewayService, error) {
	u, err := url.Parse(cfg.Origin.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse origin base_url: %w", err)
	}

	if cfg.Retry.MaxAttempts < 1 {
		return nil, fmt.Errorf("retry.max_attempts must be >= 1; got %d", cfg.Retry.MaxAttempts)
	}

	retryable := make(map[int]bool, len(defaultRetryableStatuses))
	for _, status := range defaultRetryableStatuses {
		retryable[status] = true
	}

	return &GatewayService{
		client:         c,
		logger:         logger.With("component", "gateway_service"),
		metrics:        m,
		baseURL:        u,
		maxAttempts:    cfg.Retry.MaxAttempts,
		attemptTimeout: time.Duration(cfg.Retry.AttemptTimeoutSeconds) * time.Second,
		backoffStep:    time.Duration(cfg.Retry.BackoffStepMillis) * time.Millisecond,
		backoffCap:     time.Duration(cfg.Retry.BackoffCapMillis) * time.Millisecond,
		retryable:      retryable,
	}, nil
}

// Forward sends a ProxyRequest to the origin and returns the first terminal
// response. The caller is responsible for closing the response body.
//
// A response is terminal when its status is outside the retryable set.
// Retryable statuses and transport failures are retried with capped linear
// backoff until the attempt budget runs out, at which point ErrOriginUnstable
// is returned; the last raw origin failure is never passed through.
func (s *GatewayService) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	target := s.buildTargetURL(pr.Path, pr.RawQuery)
	header := sanitizeHeader(pr.Header)

	body, err := captureBody(pr)
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		resp, err := s.attempt(pr.Ctx, pr.Method, target, header, body, attempt)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		// A canceled inbound request is not an origin failure; stop retrying
		// a caller that is gone.
		if pr.Ctx.Err() != nil {
			return nil, pr.Ctx.Err()
		}

		if attempt < s.maxAttempts {
			if err := s.backoff(pr.Ctx, attempt); err != nil {
				return nil, err
			}
		}
	}

	if s.metrics != nil {
		s.metrics.ExhaustedTotal.Inc()
		s.metrics.AttemptsPerReq.Observe(float64(s.maxAttempts))
	}
	s.logger.Warn("retry budget exhausted",
		"method", pr.Method,
		"path", pr.Path,
		"attempts", s.maxAttempts,
		"last_err", lastErr,
	)
	return nil, fmt.Errorf("%w (last: %w)", ErrOriginUnstable, lastErr)
}

// errRetryableStatus marks an attempt that got a response in the retryable set.
type errRetryableStatus struct {
	status int
}

func (e *errRetryableStatus) Error() string {
	return fmt.Sprintf("origin returned retryable status %d", e.status)
}

// attempt performs a single forwarding try. Each attempt owns a cancel
// handle signaled by its own timer: if the origin has not produced response
// headers within the attempt timeout, the in-flight call is aborted. Once
// headers arrive the timer is stopped, so a terminal response can stream for
// as long as the inbound request stays alive. Retryable responses are
// drained and discarded.
func (s *GatewayService) attempt(ctx context.Context, method, target string, header http.Header, body []byte, attempt int) (*model.ProxyResponse, error) {
	attemptCtx, cancel := context.WithCancel(ctx)
	timer := time.AfterFunc(s.attemptTimeout, cancel)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	resp, err := s.client.DoStream(attemptCtx, method, target, header, reader)
	timer.Stop()
	if err != nil {
		cancel()
		if s.metrics != nil {
			s.metrics.RetriesTotal.WithLabelValues("network").Inc()
		}
		s.logger.Debug("attempt failed",
			"attempt", attempt,
			"err", err,
		)
		return nil, err
	}

	if s.retryable[resp.StatusCode] {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
		_ = resp.Body.Close()
		cancel()
		if s.metrics != nil {
			s.metrics.RetriesTotal.WithLabelValues("status").Inc()
		}
		s.logger.Debug("attempt got retryable status",
			"attempt", attempt,
			"status", resp.StatusCode,
		)
		return nil, &errRetryableStatus{status: resp.StatusCode}
	}

	resp.Body = &cancelOnClose{rc: resp.Body, cancel: cancel}
	resp.Attempts = attempt
	if s.metrics != nil {
		s.metrics.AttemptsPerReq.Observe(float64(attempt))
	}
	return resp, nil
}

// backoff sleeps between attempts, honoring inbound-request cancellation.
func (s *GatewayService) backoff(ctx context.Context, attempt int) error {
	delay := s.backoffDelay(attempt)
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// backoffDelay returns the wait before the next attempt: step * attempts
// already made, capped. Linear, not exponential; the origin being restarted
// behind a load balancer recovers in seconds, not minutes.
func (s *GatewayService) backoffDelay(attempt int) time.Duration {
	d := s.backoffStep * time.Duration(attempt)
	if d > s.backoffCap {
		d = s.backoffCap
	}
	return d
}

// buildTargetURL joins the forwarded sub-path onto the origin base URL and
// re-applies the inbound query string verbatim.
func (s *GatewayService) buildTargetURL(subPath, rawQuery string) string {
	u := *s.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(subPath, "/")
	u.RawQuery = rawQuery
	return u.String()
}

// sanitizeHeader clones the inbound headers and drops Host, which must
// reflect the origin, not the edge hostname. Everything else, Authorization
// and Content-Type included, passes through unchanged.
func sanitizeHeader(src http.Header) http.Header {
	dst := src.Clone()
	if dst == nil {
		dst = make(http.Header)
	}
	// net/http promotes Host out of the header map, but some edge runtimes
	// re-inject it; the outbound client derives Host from the target URL.
	dst.Del("Host")
	return dst
}

// captureBody reads the inbound body once into memory so the same bytes can
// be resent on every retry. GET/HEAD requests have no body to capture.
func captureBody(pr *model.ProxyRequest) ([]byte, error) {
	if pr.Method == http.MethodGet || pr.Method == http.MethodHead || pr.Body == nil {
		return nil, nil
	}
	defer func() { _ = pr.Body.Close() }()

	body, err := io.ReadAll(pr.Body)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// cancelOnClose releases the attempt's cancel handle when the streamed
// response body is closed, so the deadline does not abort an in-progress
// stream handed back to the caller.
type cancelOnClose struct {
	rc     io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Read(p []byte) (int, error) { return c.rc.Read(p) }

func (c *cancelOnClose) Close() error {
	err := c.rc.Close()
	c.cancel()
	return err
}
