// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the acting identity of a request. The chat bridge in
// front of this service has already authenticated the platform user and
// forwards:
//
//   - X-User-ID:    the platform user id of the actor
//   - X-User-Roles: comma-separated platform role names or ids
//
// Identity() stores the user id under the "userID" context key (read by the
// rate limiter, the idempotency validator, and the loggers) and decides
// whether the actor is privileged, i.e. holds one of the configured
// moderator roles.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderUserID carries the acting platform user id.
	HeaderUserID = "X-User-ID"
	// HeaderUserRoles carries the actor's roles as CSV.
	HeaderUserRoles = "X-User-Roles"

	ctxKeyUserID     = "userID"
	ctxKeyPrivileged = "user.privileged"
)

// Identity returns a middleware that reads the actor headers and marks the
// request privileged when any role matches privilegedRoles (case-insensitive).
// Requests without X-User-ID pass through unauthenticated; handlers that
// need an actor reject them.
func Identity(privilegedRoles []string) gin.HandlerFunc {
	priv := make(map[string]struct{}, len(privilegedRoles))
	for _, r := range privilegedRoles {
		if r = strings.ToLower(strings.TrimSpace(r)); r != "" {
			priv[r] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		if uid := strings.TrimSpace(c.GetHeader(HeaderUserID)); uid != "" {
			c.Set(ctxKeyUserID, uid)
		}
		privileged := false
		for _, r := range strings.Split(c.GetHeader(HeaderUserRoles), ",") {
			if _, ok := priv[strings.ToLower(strings.TrimSpace(r))]; ok {
				privileged = true
				break
			}
		}
		c.Set(ctxKeyPrivileged, privileged)
		c.Next()
	}
}

// UserID returns the actor id set by Identity, or "" when the request carried
// none.
func UserID(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// IsPrivileged reports whether Identity marked the actor as a moderator.
func IsPrivileged(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyPrivileged)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}
