// Package httpretry retries HTTP calls to channel workers with exponential
// backoff and full jitter. A Retry-After header on 429/503 overrides the
// computed delay.
package httpretry

import (
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// HTTPDoer is satisfied by *http.Client and *RetryClient.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options tunes a RetryClient. Zero fields take defaults.
type Options struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// RetryClient wraps an HTTPDoer with retries.
type RetryClient struct {
	client HTTPDoer
	opts   Options
	sleep  func(req *http.Request, d time.Duration) error
}

// NewRetryClient wraps client. A nil client is an http.Client with a 30s
// timeout.
func NewRetryClient(client HTTPDoer, opts Options) *RetryClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	return &RetryClient{client: client, opts: opts, sleep: sleepCtx}
}

// Do sends req, retrying transport errors and 429/5xx gateway statuses.
// The last retryable response is returned as-is so the caller can read it.
// Requests with a body must set GetBody to be retried.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	var lastErr error
	var wait time.Duration

	for attempt := 0; attempt <= rc.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("httpretry: reset body: %w", err)
				}
				req.Body = body
			}
			if wait <= 0 {
				wait = rc.backoff(attempt)
			}
			log.Printf("[httpretry] retry %d/%d for %s %s%s in %s",
				attempt, rc.opts.MaxRetries, req.Method, req.URL.Host, req.URL.Path, wait)
			if err := rc.sleep(req, wait); err != nil {
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, err
			}
		}
		wait = 0

		resp, err := rc.client.Do(req)
		if err != nil {
			if req.Context().Err() != nil {
				return nil, err
			}
			lastErr = err
			continue
		}
		if !retryable(resp.StatusCode) || attempt == rc.opts.MaxRetries {
			return resp, nil
		}

		wait = retryAfter(resp.Header.Get("Retry-After"), rc.opts.MaxDelay)
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("httpretry: retryable status %d", resp.StatusCode)
	}
	return nil, lastErr
}

// backoff is random(0, min(MaxDelay, BaseDelay * 2^(attempt-1))), floored
// at 100ms.
func (rc *RetryClient) backoff(attempt int) time.Duration {
	exp := float64(rc.opts.BaseDelay) * math.Pow(2, float64(attempt-1))
	if exp > float64(rc.opts.MaxDelay) {
		exp = float64(rc.opts.MaxDelay)
	}
	d := time.Duration(rand.Float64() * exp)
	if d < 100*time.Millisecond {
		d = 100 * time.Millisecond
	}
	return d
}

// retryAfter parses a delay-seconds Retry-After value, capped at ceiling.
func retryAfter(h string, ceiling time.Duration) time.Duration {
	secs, err := strconv.Atoi(h)
	if err != nil || secs <= 0 {
		return 0
	}
	d := time.Duration(secs) * time.Second
	if d > ceiling {
		return ceiling
	}
	return d
}

func retryable(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func sleepCtx(req *http.Request, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-req.Context().Done():
		return req.Context().Err()
	}
}
