// Package github is a minimal authenticated client for the GitHub REST API.
//
// The client knows nothing about OAuth semantics: a bearer token goes in,
// classified results or typed errors come out. Failure classification and
// the retry policy for transient classes live here and only here.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/markb/pagelift/internal/log"
)

const defaultBaseURL = "https://api.github.com"

// maxRetries is the number of extra attempts after the first for transient
// failures. retryBase scales the linear backoff between them.
const (
	maxRetries       = 2
	defaultRetryBase = time.Second
	requestTimeout   = 30 * time.Second
)

// Config holds client configuration. The zero value targets api.github.com.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	RetryBase  time.Duration
}

// Client is a reusable, token-authenticated GitHub API client. Safe for
// concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retryBase  time.Duration

	mu    sync.RWMutex
	token string
	rate  RateLimitSnapshot
	hasRL bool

	// Clock and sleep hooks for retry waits. Tests replace them.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a client from cfg.
func NewClient(cfg Config) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: cfg.HTTPClient,
		retryBase:  cfg.RetryBase,
		now:        time.Now,
		sleep:      sleepCtx,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.httpClient == nil {
		// The request timeout is separate from the retry policy so a hung
		// connection cannot eat the whole retry budget.
		c.httpClient = &http.Client{Timeout: requestTimeout}
	}
	if c.retryBase <= 0 {
		c.retryBase = defaultRetryBase
	}
	return c
}

// SetToken installs the bearer token used for subsequent requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// ClearToken removes the bearer token.
func (c *Client) ClearToken() {
	c.SetToken("")
}

// RateLimit returns the most recently observed rate limit headers.
func (c *Client) RateLimit() (RateLimitSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rate, c.hasRL
}

// Do sends an authenticated JSON request and decodes the response into out.
// A nil out discards the payload; a 204 always yields an empty result.
// Transient failures (rate limits, 5xx, transport errors) are retried up to
// maxRetries extra attempts; everything else fails immediately.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay(lastErr, attempt)
			log.Debug("retrying github request", "method", method, "path", path, "attempt", attempt, "delay", delay)
			if err := c.sleep(ctx, delay); err != nil {
				return err
			}
		}

		apiErr, err := c.doOnce(ctx, method, path, payload, out)
		if err != nil {
			// No HTTP response at all: indistinguishable from transient
			// connectivity loss, so it shares the capped retry policy.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("github request failed: %w", err)
			continue
		}
		if apiErr == nil {
			return nil
		}
		if !apiErr.Retryable() {
			return apiErr
		}
		lastErr = apiErr
	}
	return lastErr
}

// retryDelay picks the wait before the given attempt: the provider's hint
// when the last failure carried one, else linear backoff.
func (c *Client) retryDelay(lastErr error, attempt int) time.Duration {
	var apiErr *APIError
	if errors.As(lastErr, &apiErr) && apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter
	}
	return time.Duration(attempt) * c.retryBase
}

// doOnce performs a single HTTP round trip. A non-nil *APIError means the
// server answered with a failure status; err is reserved for transport
// failures.
func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte, out any) (*APIError, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.currentToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if snap, ok := snapshotFromHeaders(resp.Header); ok {
		c.mu.Lock()
		c.rate = snap
		c.hasRL = true
		c.mu.Unlock()
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.classify(resp, respBody), nil
	}

	if resp.StatusCode == http.StatusNoContent || out == nil || len(respBody) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		// Callers that don't need the payload should not crash on a
		// malformed body.
		log.Debug("ignoring undecodable response body", "path", path, "err", err)
	}
	return nil, nil
}

// classify maps a failure response to an APIError exactly once.
func (c *Client) classify(resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{
		Status: resp.StatusCode,
		Body:   string(body),
	}

	var errBody struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &errBody) == nil {
		apiErr.Message = errBody.Message
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		apiErr.Class = ClassAuth
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusForbidden && isRateLimited(resp.Header):
		apiErr.Class = ClassRateLimited
		apiErr.RetryAfter = retryDelayFromHeaders(resp.Header, c.now())
	case resp.StatusCode == http.StatusForbidden:
		apiErr.Class = ClassForbidden
	case resp.StatusCode == http.StatusNotFound:
		apiErr.Class = ClassNotFound
	case resp.StatusCode == http.StatusUnprocessableEntity:
		apiErr.Class = ClassValidation
	case resp.StatusCode >= 500:
		apiErr.Class = ClassServer
	default:
		apiErr.Class = ClassClient
	}
	return apiErr
}

// isRateLimited distinguishes a rate-limit 403 from a permissions 403.
func isRateLimited(h http.Header) bool {
	return h.Get("X-Ratelimit-Remaining") == "0" || h.Get("Retry-After") != ""
}

func (c *Client) currentToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// sleepCtx sleeps for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
