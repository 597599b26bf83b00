// Package httpretry provides an HTTP client with automatic retry,
// exponential backoff, and jitter for calls to delivery gateways.
package httpretry

import (
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// HTTPDoer executes HTTP requests. Both *http.Client and *RetryClient
// satisfy this interface, so adapters can be tested with a stub.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RetryClient wraps an HTTPDoer and retries transient failures.
type RetryClient struct {
	client     HTTPDoer
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewRetryClient wraps the given HTTPDoer with retry behavior.
// A nil client gets a default http.Client with a 30s timeout.
// maxRetries counts retries after the initial request (default 3).
func NewRetryClient(client HTTPDoer, maxRetries int) *RetryClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &RetryClient{
		client:     client,
		maxRetries: maxRetries,
		baseDelay:  time.Second,
		maxDelay:   30 * time.Second,
	}
}

// Do executes the request, retrying on 429/5xx statuses and transient
// network errors. Client errors (4xx other than 429) and context
// cancellation are returned immediately. The last response is returned
// as-is so callers can inspect status and body.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 0; ; attempt++ {
		if err := req.Context().Err(); err != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, err
		}

		resp, err := rc.client.Do(req)
		if err == nil && !retryableStatus(resp.StatusCode) {
			return resp, nil
		}
		if err == nil && attempt == rc.maxRetries {
			// Out of retries; hand the gateway response back untouched.
			return resp, nil
		}

		var wait time.Duration
		if err != nil {
			lastErr = err
			if req.Context().Err() != nil {
				return nil, err
			}
			if attempt == rc.maxRetries {
				return nil, lastErr
			}
			wait = rc.backoff(attempt + 1)
		} else {
			wait = rc.backoff(attempt + 1)
			// A 429 often names its own cool-down.
			if after := retryAfter(resp); after > wait {
				wait = after
			}
			lastErr = fmt.Errorf("httpretry: gateway returned retryable status %d", resp.StatusCode)
			// Drain so the connection can be reused.
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}

		log.Printf("httpretry: retry %d/%d for %s %s%s in %s",
			attempt+1, rc.maxRetries, req.Method, req.URL.Host, req.URL.Path, wait)

		if req.GetBody != nil {
			body, berr := req.GetBody()
			if berr != nil {
				return nil, fmt.Errorf("httpretry: failed to reset request body: %w", berr)
			}
			req.Body = body
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-req.Context().Done():
			timer.Stop()
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, req.Context().Err()
		}
	}
}

// backoff returns the wait before the given 1-based retry attempt:
// full jitter over baseDelay*2^(attempt-1), capped at maxDelay and
// floored at 100ms.
func (rc *RetryClient) backoff(attempt int) time.Duration {
	d := rc.baseDelay << (attempt - 1)
	if d > rc.maxDelay || d <= 0 {
		d = rc.maxDelay
	}
	jittered := time.Duration(rand.Float64() * float64(d))
	if jittered < 100*time.Millisecond {
		jittered = 100 * time.Millisecond
	}
	return jittered
}

// retryAfter parses a Retry-After header given in whole seconds.
// HTTP-date values are ignored; gateways in practice send seconds.
func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
