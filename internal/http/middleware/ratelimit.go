// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// RateLimiter is a process-local token bucket per actor, built on
// golang.org/x/time/rate. It shields the case lifecycle from button mashing
// and runaway bridges; it is not an authorization mechanism. Buckets idle for
// longer than the TTL are swept at most once per sweep interval. Replays
// flagged by IdempotencyValidator skip the limiter entirely.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	defaultBucketTTL   = 10 * time.Minute
	defaultSweepEvery  = time.Minute
	maxRetryAfterSecs  = 60
	rateLimitedCode    = "too_many_requests"
	rateLimitedMessage = "rate limit exceeded"
)

// keyFunc maps a request to its bucket.
type keyFunc func(*gin.Context) string

// KeyByUserOrIP keys buckets by the Identity() actor ("user:<id>") and falls
// back to the client address ("ip:<addr>") for anonymous callers.
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if uid := UserID(c); uid != "" {
			return "user:" + uid
		}
		return "ip:" + c.ClientIP()
	}
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is safe for concurrent use.
type RateLimiter struct {
	limit rate.Limit
	burst int
	keyFn keyFunc

	ttl        time.Duration
	sweepEvery time.Duration
	now        func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

// NewRateLimiter returns a limiter refilling rps tokens per second per key
// with the given burst (coerced to at least 1).
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	return &RateLimiter{
		limit:      rate.Limit(rps),
		burst:      max(burst, 1),
		keyFn:      keyFn,
		ttl:        defaultBucketTTL,
		sweepEvery: defaultSweepEvery,
		now:        time.Now,
		buckets:    make(map[string]*bucket),
	}
}

// limiterFor returns the bucket of key, creating it on first use. Idle
// buckets are swept before the lookup so a stale entry for key itself is
// replaced rather than refreshed.
func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= rl.sweepEvery {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.ttl {
				delete(rl.buckets, k)
			}
		}
		rl.lastSweep = now
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.lim
}

// Len reports the number of live buckets.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// IsRateBypass reports whether IdempotencyValidator flagged the request as a
// replay that must not spend tokens.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler enforces the limit. Rejections get 429, a Retry-After in whole
// seconds, and the usual error envelope with code "too_many_requests".
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}
		lim := rl.limiterFor(rl.keyFn(c))
		if lim.AllowN(rl.now(), 1) {
			c.Next()
			return
		}

		httpRateLimited.WithLabelValues(routeLabel(c)).Inc()
		c.Header("Retry-After", strconv.Itoa(retryAfter(lim, rl.now())))
		abortJSON(c, http.StatusTooManyRequests, rateLimitedCode, rateLimitedMessage)
	}
}

// retryAfter is the wait until lim grants its next token, rounded up and
// clamped to [1, 60] seconds.
func retryAfter(lim *rate.Limiter, now time.Time) int {
	r := lim.ReserveN(now, 1)
	defer r.CancelAt(now)
	if !r.OK() {
		return maxRetryAfterSecs
	}
	secs := int(math.Ceil(r.DelayFrom(now).Seconds()))
	return min(max(secs, 1), maxRetryAfterSecs)
}
