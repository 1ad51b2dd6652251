// Package httpretry provides an HTTP client with automatic retry logic,
// exponential backoff, and jitter for calls to AWS-hosted endpoints
// (SNS subscription confirmation, signing certificate downloads).
package httpretry

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/databender/leadengine/internal/pkg/logger"
)

// HTTPDoer is the interface for executing HTTP requests.
// Both *http.Client and *RetryClient satisfy this interface.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RetryClient wraps an HTTPDoer with retry logic using exponential backoff and jitter.
type RetryClient struct {
	client     HTTPDoer
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	minDelay   time.Duration
}

// Option configures a RetryClient.
type Option func(*RetryClient)

// WithDelays overrides the backoff bounds. Tests use millisecond values.
func WithDelays(base, maxDelay time.Duration) Option {
	return func(rc *RetryClient) {
		rc.baseDelay = base
		rc.maxDelay = maxDelay
		if base < rc.minDelay {
			rc.minDelay = base
		}
	}
}

// NewRetryClient creates a new RetryClient that wraps the given HTTPDoer.
// If client is nil, a default http.Client with 10s timeout is used.
// maxRetries is the number of retry attempts after the initial request (default 3).
func NewRetryClient(client HTTPDoer, maxRetries int, opts ...Option) *RetryClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	rc := &RetryClient{
		client:     client,
		maxRetries: maxRetries,
		baseDelay:  500 * time.Millisecond,
		maxDelay:   10 * time.Second,
		minDelay:   100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

// Get issues a GET for url with retries and returns the body, failing on any
// non-2xx final status. Bodies are capped at maxBytes.
func (rc *RetryClient) Get(ctx context.Context, url string, maxBytes int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("httpretry: build request: %w", err)
	}
	resp, err := rc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
	if err != nil {
		return nil, fmt.Errorf("httpretry: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("httpretry: GET %s returned status %d", req.URL.Host, resp.StatusCode)
	}
	return body, nil
}

// Do sends req, retrying 429 and 5xx gateway statuses and transport errors
// with full-jitter backoff. The last attempt's response is returned unchanged
// so callers can inspect it. A canceled context ends the loop with the most
// recent failure, or the context error when nothing failed yet.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	var lastErr error
	fail := func() error {
		if lastErr != nil {
			return lastErr
		}
		return ctx.Err()
	}

	for attempt := 0; attempt <= rc.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, fail()
		}
		if attempt > 0 {
			if err := rewind(req); err != nil {
				return nil, err
			}
			delay := rc.calculateDelay(attempt)
			logger.Warn("httpretry: retrying request",
				"attempt", attempt, "max", rc.maxRetries,
				"method", req.Method, "host", req.URL.Host, "path", req.URL.Path, "wait", delay)
			if !sleep(ctx, delay) {
				return nil, fail()
			}
		}

		resp, err := rc.client.Do(req)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, err
		case err != nil:
			lastErr = err
		case attempt == rc.maxRetries || !isRetryableStatus(resp.StatusCode):
			return resp, nil
		default:
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("httpretry: server returned retryable status %d", resp.StatusCode)
		}
	}
	return nil, lastErr
}

func rewind(req *http.Request) error {
	if req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("httpretry: failed to reset request body: %w", err)
	}
	req.Body = body
	return nil
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// calculateDelay picks uniformly in [0, min(maxDelay, baseDelay<<(attempt-1))]
// and never returns less than minDelay.
func (rc *RetryClient) calculateDelay(attempt int) time.Duration {
	ceiling := rc.maxDelay
	if shift := attempt - 1; shift < 32 {
		if exp := rc.baseDelay << shift; exp > 0 && exp < ceiling {
			ceiling = exp
		}
	}
	return max(time.Duration(rand.Int63n(int64(ceiling)+1)), rc.minDelay)
}

func isRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable ||
		code == http.StatusGatewayTimeout
}
