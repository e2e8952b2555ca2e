package github

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mooring-labs/searchlink/internal/logger"
)

const (
	// minRemainingBuffer is the number of requests kept in reserve. When the
	// remaining quota drops below this, the limiter holds until the window
	// resets rather than draining the quota entirely.
	minRemainingBuffer = 100

	// proactiveRate caps the steady-state request rate in requests per second
	// so a long listing pass does not burn through the hourly quota.
	proactiveRate = 1.2
)

// RateLimiter paces requests to the GitHub API. It combines a token bucket
// for steady-state pacing with quota state tracked from response headers.
type RateLimiter struct {
	mu        sync.Mutex
	bucket    *rate.Limiter
	limit     int
	remaining int
	resetAt   time.Time
}

// NewRateLimiter creates a rate limiter with default GitHub API limits.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		bucket:    rate.NewLimiter(rate.Limit(proactiveRate), 1),
		limit:     5000,
		remaining: 5000,
	}
}

// Wait blocks until the next request may be sent. It first waits for the
// token bucket, then holds until the quota window resets if the remaining
// quota has dropped below the reserve buffer.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if err := rl.bucket.Wait(ctx); err != nil {
		return err
	}

	rl.mu.Lock()
	holdUntilReset := rl.remaining > 0 && rl.remaining <= minRemainingBuffer && time.Now().Before(rl.resetAt)
	resetAt := rl.resetAt
	rl.mu.Unlock()

	if !holdUntilReset {
		return nil
	}

	logger.Infof("GitHub quota nearly exhausted, holding until reset at %s", resetAt.Format(time.RFC3339))
	timer := time.NewTimer(time.Until(resetAt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// UpdateFromResponse records quota state from the rate limit headers of an
// API response. Responses without the headers are ignored.
func (rl *RateLimiter) UpdateFromResponse(resp *http.Response) {
	if resp == nil {
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if v := resp.Header.Get("X-RateLimit-Limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			rl.limit = limit
		}
	}
	if v := resp.Header.Get("X-RateLimit-Remaining"); v != "" {
		if remaining, err := strconv.Atoi(v); err == nil {
			rl.remaining = remaining
		}
	}
	if v := resp.Header.Get("X-RateLimit-Reset"); v != "" {
		if resetUnix, err := strconv.ParseInt(v, 10, 64); err == nil {
			rl.resetAt = time.Unix(resetUnix, 0)
		}
	}
}

// Remaining returns the remaining quota from the last observed response.
func (rl *RateLimiter) Remaining() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.remaining
}

// ResetAt returns when the current quota window resets.
func (rl *RateLimiter) ResetAt() time.Time {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.resetAt
}
