// Package handlers provides HTTP handler implementations for the public API.
//
// Every failure leaves the API as an ErrorResponse carrying a stable code
// from errors.go and the request's correlation id:
//
//	HTTP/1.1 409 Conflict
//	{
//	  "request_id": "1287340081734828052",
//	  "code": "already_claimed",
//	  "message": "case already claimed"
//	}
//
// Successful responses wrap the payload in a named field, e.g.
// { "case": { "id": "...", "status": "IN_PROGRESS", ... } }.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-rescue-dispatch/internal/http/middleware"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"1287340081734828052"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"case not found"`
}

func errorEnvelope(c *gin.Context, code, msg string) ErrorResponse {
	return ErrorResponse{RequestID: middleware.RequestIDFrom(c), Code: code, Message: msg}
}

// fail aborts with an ErrorResponse. 5xx responses are logged at error level
// through the request-scoped logger; client errors are left to the access log.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, errorEnvelope(c, code, msg))
}

// Fail is fail for callers outside the package (NoRoute, NoMethod).
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
