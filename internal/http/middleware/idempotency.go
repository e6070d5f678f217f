// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// Chat platforms redeliver button presses and modal submissions; the bridge
// forwards each delivery with the platform interaction id as Idempotency-Key.
// IdempotencyValidator checks that header, stashes the key, and asks a lookup
// whether (user, target, key) already completed. Replays are flagged so the
// rate limiter lets them through and the case handlers can serve the stored
// result instead of running the lifecycle twice.
//
// The target names the operation and the case, e.g. "claim:<id>" or
// "resolve:<id>", so one interaction id never answers for another action on
// the same case. New requests use SubmitTarget.
package middleware

import (
	"context"
	"net/http"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the interaction id of a delivery.
const HeaderIdempotencyKey = "Idempotency-Key"

// SubmitTarget is the idempotency target of routes without a case id.
const SubmitTarget = "submit"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"

	defaultIdemKeyLen = 200
)

var defaultIdemKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~:\-]+$`)

// IdempotencyOptions tunes key validation. Zero values mean 200 bytes and
// the token pattern ^[A-Za-z0-9._~:-]+$.
type IdempotencyOptions struct {
	MaxLen  int
	Pattern *regexp.Regexp
}

// IdempotencyLookup reports whether a completed, unexpired result exists.
// Errors are logged and treated as a miss.
type IdempotencyLookup func(ctx context.Context, userID, target, key string, now time.Time) (bool, error)

// GetIdempotencyKey returns the key validated by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	s := c.GetString(ctxKeyIdemKey)
	return s, s != ""
}

// IsReplay reports whether the lookup found a completed result.
func IsReplay(c *gin.Context) bool {
	return c.GetBool(ctxKeyIdemReplay)
}

// IdempotencyTarget returns "<action>:<id>" for case routes, where action is
// the last segment of the route template (or of the request path when the
// route is unknown). Routes without a case id map to SubmitTarget.
func IdempotencyTarget(c *gin.Context) string {
	id := c.Param("id")
	if id == "" {
		return SubmitTarget
	}
	route := c.FullPath()
	if route == "" && c.Request != nil {
		route = c.Request.URL.Path
	}
	action := path.Base(route)
	if action == "." || action == "/" || action == id || strings.HasPrefix(action, ":") {
		return id
	}
	return action + ":" + id
}

// IdempotencyValidator rejects malformed keys with 400 bad_idempotency_key.
// Requests without the header pass untouched; lookups only run for
// identified actors since records are per user.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = defaultIdemKeyLen
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultIdemKeyPattern
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			abortJSON(c, http.StatusBadRequest, "bad_idempotency_key", "invalid Idempotency-Key")
			return
		}
		c.Set(ctxKeyIdemKey, key)

		uid := UserID(c)
		if lookup == nil || uid == "" {
			c.Next()
			return
		}
		target := IdempotencyTarget(c)
		found, err := lookup(c.Request.Context(), uid, target, key, time.Now().UTC())
		switch {
		case err != nil:
			LoggerFrom(c).Warn().Err(err).
				Str("idempotency_key", key).
				Str("target", target).
				Msg("idempotency lookup failed")
		case found:
			c.Set(ctxKeyIdemReplay, true)
			c.Set(ctxKeyRateBypass, true)
		}
		c.Next()
	}
}
