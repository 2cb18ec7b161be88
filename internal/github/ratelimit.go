package github

import (
	"net/http"
	"strconv"
	"time"
)

// RateLimitSnapshot is the rate limit state read from response headers.
// It only ever informs retry waits; it is never persisted.
type RateLimitSnapshot struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// snapshotFromHeaders reads the x-ratelimit-* headers. ok is false when the
// response carried none.
func snapshotFromHeaders(h http.Header) (RateLimitSnapshot, bool) {
	limitStr := h.Get("X-Ratelimit-Limit")
	if limitStr == "" {
		return RateLimitSnapshot{}, false
	}

	var snap RateLimitSnapshot
	snap.Limit, _ = strconv.Atoi(limitStr)
	snap.Remaining, _ = strconv.Atoi(h.Get("X-Ratelimit-Remaining"))
	if reset, err := strconv.ParseInt(h.Get("X-Ratelimit-Reset"), 10, 64); err == nil && reset > 0 {
		snap.ResetAt = time.Unix(reset, 0)
	}
	return snap, true
}

// retryDelayFromHeaders returns the provider-specified wait before the next
// attempt: Retry-After when present, else the time until the rate limit
// window resets. Zero means the provider gave no hint.
func retryDelayFromHeaders(h http.Header, now time.Time) time.Duration {
	if ra := h.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if reset, err := strconv.ParseInt(h.Get("X-Ratelimit-Reset"), 10, 64); err == nil && reset > 0 {
		if d := time.Unix(reset, 0).Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
