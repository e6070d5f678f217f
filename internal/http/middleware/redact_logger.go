// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// RedactingLogger is the access log of the dispatch API. It never logs
// bodies (a rescue form carries location and cause details), masks
// credential headers outright and pattern-scrubs emails, phone numbers and
// UUIDs from query strings and the remaining headers. It also attaches the
// request-scoped logger returned by LoggerFrom.
//
//	r.Use(middleware.RequestID())
//	r.Use(middleware.Identity(nil))
//	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
//	    MaskHeaders: []string{"X-Bridge-Signature"},
//	}))
package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const redactedValue = "[REDACTED]"

// Applied in this order. The phone pattern is digits only but loose enough to
// eat UUID segments, so UUIDs go first.
var scrubbers = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`), "[REDACTED:id]"},
	{regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`), "[REDACTED:email]"},
	{regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`), "[REDACTED:phone]"},
}

var defaultMaskedHeaders = []string{"Authorization", "Cookie", "Set-Cookie", "Proxy-Authorization"}

// RedactOptions adds header names (case-insensitive) whose values are
// replaced wholesale, on top of the credential headers masked by default.
type RedactOptions struct {
	MaskHeaders []string
}

type redactor struct {
	masked map[string]struct{}
}

func newRedactor(extra []string) redactor {
	r := redactor{masked: make(map[string]struct{}, len(defaultMaskedHeaders)+len(extra))}
	for _, h := range append(append([]string(nil), defaultMaskedHeaders...), extra...) {
		if h = strings.TrimSpace(h); h != "" {
			r.masked[strings.ToLower(h)] = struct{}{}
		}
	}
	return r
}

func (redactor) scrub(s string) string {
	for _, sc := range scrubbers {
		if s == "" {
			break
		}
		s = sc.re.ReplaceAllString(s, sc.repl)
	}
	return s
}

func (r redactor) headerDict(h map[string][]string) *zerolog.Event {
	d := zerolog.Dict()
	for k, vv := range h {
		if _, ok := r.masked[strings.ToLower(k)]; ok {
			d.Str(k, redactedValue)
			continue
		}
		d.Str(k, r.scrub(strings.Join(vv, ", ")))
	}
	return d
}

// RedactingLogger emits one "http_request" line per request: info for
// 2xx/3xx, warn for 4xx, error for 5xx or when handlers recorded gin errors.
// The path field is the route template, falling back to the raw path for
// unmatched requests.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	rd := newRedactor(opts.MaskHeaders)

	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		rid := RequestIDFrom(c)
		if rid == "" && validRequestID(c.GetHeader(requestIDHeader)) {
			rid = c.GetHeader(requestIDHeader)
		}

		lc := log.With().
			Str("request_id", rid).
			Str("method", c.Request.Method).
			Str("path", path)
		if uid := UserID(c); uid != "" {
			lc = lc.Str("user_id", uid)
		}
		if caseID := c.Param("id"); caseID != "" {
			lc = lc.Str("case_id", caseID)
		}
		l := lc.Logger()
		c.Set(loggerKey, &l)

		c.Next()

		status := c.Writer.Status()
		ev := l.Info()
		switch {
		case len(c.Errors) > 0 || status >= 500:
			ev = l.Error()
			if len(c.Errors) > 0 {
				ev = ev.Str("errors", c.Errors.String())
			}
		case status >= 400:
			ev = l.Warn()
		}
		ev.Str("query", rd.scrub(truncate(c.Request.URL.RawQuery, maxQueryLogLength))).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Dict("headers", rd.headerDict(c.Request.Header)).
			Msg("http_request")
	}
}
