package handlers

// Error codes carried in ErrorResponse.Code. Clients branch on the code, not
// the message: several lifecycle rejections share 409 Conflict.
//
//	400  bad_request, invalid_form, invalid_outcome
//	401  unauthorized       missing X-User-ID
//	403  forbidden          actor may not resolve this case
//	404  not_found
//	405  method_not_allowed
//	409  already_claimed, not_claimed, case_closed, conflict (duplicate case)
//	429  too_many_requests  written by the rate limiter
//	500  internal_error, list_failed
//	502  notifier_failed    announcement or thread could not be delivered
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"

	ErrCodeInvalidForm    = "invalid_form"
	ErrCodeInvalidOutcome = "invalid_outcome"
	ErrCodeAlreadyClaimed = "already_claimed"
	ErrCodeNotClaimed     = "not_claimed"
	ErrCodeCaseClosed     = "case_closed"
	ErrCodeListFailed     = "list_failed"
	ErrCodeNotifierFailed = "notifier_failed"
)
