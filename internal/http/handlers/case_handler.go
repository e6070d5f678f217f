// Case HTTP handlers.
//
// This file exposes the interaction API the chat bridge calls when users act
// on rescue cases:
//   - POST /cases               (submit a request form)
//   - GET  /cases               (list, paginated, optional status, ETag support)
//   - GET  /cases/stats         (per-status counts)
//   - GET  /cases/search        (free-text search over request forms)
//   - GET  /cases/{id}          (fetch one case)
//   - POST /cases/{id}/claim    (take the case)
//   - POST /cases/{id}/resolve  (close the case with an outcome)
//
// Handlers are transport-thin: they read the actor from the identity
// middleware, call CaseService, and translate lifecycle rejections into the
// standard error envelope.
//
// Idempotency:
// Chat platforms redeliver interactions. If the bridge supplies an
// Idempotency-Key and a previous successful result exists for
// (user, target, key), the handler returns the recorded body and sets
// `Idempotency-Replayed: true` without touching the lifecycle. Deliveries
// of the same key that overlap wait for the first one (see interaction.go).
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-rescue-dispatch/internal/domain"
	"github.com/tbourn/go-rescue-dispatch/internal/http/middleware"
	"github.com/tbourn/go-rescue-dispatch/internal/services"
	"github.com/tbourn/go-rescue-dispatch/internal/utils"
)

//
// Service contracts (context-aware)
//

// CaseService defines the case lifecycle operations consumed by HTTP handlers.
//
// Implementations must be safe for concurrent use and honor the provided
// context for cancellation and timeouts.
type CaseService interface {
	// SubmitRequest announces and registers a new PENDING case.
	SubmitRequest(ctx context.Context, requesterID string, form domain.RequestForm) (*domain.Case, error)
	// Claim assigns a case to actorID (first writer wins).
	Claim(ctx context.Context, caseID, actorID string) (*domain.Case, error)
	// Resolve closes a claimed case with a terminal outcome.
	Resolve(ctx context.Context, caseID, actorID string, privileged bool, outcome domain.Status) (*domain.Case, error)
	// Get returns a single case.
	Get(ctx context.Context, caseID string) (*domain.Case, error)
	// ListPage returns a page of cases, optionally filtered by status.
	ListPage(ctx context.Context, status domain.Status, page, pageSize int) ([]domain.Case, int64, error)
	// Stats returns the number of cases per status.
	Stats(ctx context.Context) (map[domain.Status]int64, error)
	// Search ranks cases by free text over their request forms.
	Search(ctx context.Context, query string, status domain.Status, k int) ([]services.SearchHit, error)
}

// IdempotencyStore persists interaction results for replay.
// repo.IdempotencyRepo is the production implementation.
type IdempotencyStore interface {
	Lookup(ctx context.Context, userID, target, key string, now time.Time) (*domain.Idempotency, error)
	Save(ctx context.Context, userID, target, key, caseID string, status int, response []byte) error
}

// Revisioner exposes a counter that changes on every store mutation; list
// ETags are derived from it.
type Revisioner interface {
	Revision() uint64
}

//
// Handler wiring
//

// Handlers groups the case endpoints. idem and rev are optional: without
// them, replays and conditional list responses are disabled.
type Handlers struct {
	caseSvc CaseService
	idem    IdempotencyStore
	rev     Revisioner
	locks   interactionLocks
}

// New constructs and returns a Handlers instance bound to the given
// dependencies.
func New(caseSvc CaseService, idem IdempotencyStore, rev Revisioner) *Handlers {
	return &Handlers{caseSvc: caseSvc, idem: idem, rev: rev}
}

// actorID returns the acting user set by the identity middleware, falling
// back to the raw X-User-ID header when the middleware is not installed.
func actorID(c *gin.Context) string {
	if uid := middleware.UserID(c); uid != "" {
		return uid
	}
	if c.Request != nil {
		return strings.TrimSpace(c.GetHeader(middleware.HeaderUserID))
	}
	return ""
}

//
// DTOs
//

// SubmitCaseRequest is the JSON payload of a rescue request form. Every field
// is required; values are trimmed and NFC-normalized by the service.
type SubmitCaseRequest struct {
	Cause         string `json:"cause"          example:"Ship destroyed by pirates"`
	GalaxySystem  string `json:"galaxy_system"  example:"Stanton / Crusader"`
	Location      string `json:"location"       example:"Near Yela asteroid belt, OM-3"`
	TimeRemaining string `json:"time_remaining" example:"25 minutes"`
	Hazards       string `json:"hazards"        example:"Two hostile fighters nearby"`
}

func (r SubmitCaseRequest) form() domain.RequestForm {
	return domain.RequestForm{
		Cause:         r.Cause,
		GalaxySystem:  r.GalaxySystem,
		Location:      r.Location,
		TimeRemaining: r.TimeRemaining,
		Hazards:       r.Hazards,
	}
}

// ResolveCaseRequest is the JSON payload for closing a case.
type ResolveCaseRequest struct {
	// Outcome is SUCCEEDED or FAILED (case-insensitive).
	Outcome string `json:"outcome" binding:"required" example:"SUCCEEDED"`
}

// CaseResponse wraps a single case.
type CaseResponse struct {
	Case *domain.Case `json:"case"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListCasesResponse wraps a page of cases and pagination information.
type ListCasesResponse struct {
	Cases      []domain.Case `json:"cases"`
	Pagination Pagination    `json:"pagination"`
}

// StatsResponse reports case counts per status.
type StatsResponse struct {
	Counts map[domain.Status]int64 `json:"counts"`
	Total  int64                   `json:"total" example:"12"`
}

// SearchCasesResponse lists ranked matches, best first.
type SearchCasesResponse struct {
	Query string               `json:"query" example:"yela om-3"`
	Hits  []services.SearchHit `json:"hits"`
}

// InvalidFormResponse is the 400 body for a rejected request form.
type InvalidFormResponse struct {
	ErrorResponse
	Fields []services.FieldError `json:"fields"`
}

//
// Helpers
//

// failCase maps a lifecycle error onto the error envelope.
func failCase(c *gin.Context, err error) {
	var fe *services.FormError
	switch {
	case errors.As(err, &fe):
		c.AbortWithStatusJSON(http.StatusBadRequest, InvalidFormResponse{
			ErrorResponse: errorEnvelope(c, ErrCodeInvalidForm, services.ErrInvalidForm.Error()),
			Fields:        fe.Fields,
		})
	case errors.Is(err, services.ErrInvalidForm):
		fail(c, http.StatusBadRequest, ErrCodeInvalidForm, err.Error())
	case errors.Is(err, services.ErrInvalidOutcome):
		fail(c, http.StatusBadRequest, ErrCodeInvalidOutcome, err.Error())
	case errors.Is(err, services.ErrMissingActor):
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "X-User-ID header required")
	case errors.Is(err, services.ErrNotAuthorized):
		fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
	case errors.Is(err, services.ErrCaseNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "case not found")
	case errors.Is(err, services.ErrAlreadyClaimed):
		fail(c, http.StatusConflict, ErrCodeAlreadyClaimed, err.Error())
	case errors.Is(err, services.ErrNotClaimed):
		fail(c, http.StatusConflict, ErrCodeNotClaimed, err.Error())
	case errors.Is(err, services.ErrCaseClosed):
		fail(c, http.StatusConflict, ErrCodeCaseClosed, err.Error())
	case errors.Is(err, services.ErrDuplicateCase):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, services.ErrNotifier):
		fail(c, http.StatusBadGateway, ErrCodeNotifierFailed, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// idempotencyKey returns the key validated by IdempotencyValidator, falling
// back to the raw header when that middleware is not installed.
func idempotencyKey(c *gin.Context) string {
	if k, ok := middleware.GetIdempotencyKey(c); ok {
		return k
	}
	return strings.TrimSpace(c.GetHeader(middleware.HeaderIdempotencyKey))
}

// replay serves a stored interaction result. It reports whether it wrote one.
func (h *Handlers) replay(c *gin.Context, uid, key string) bool {
	if h.idem == nil || key == "" || uid == "" {
		return false
	}
	rec, err := h.idem.Lookup(c.Request.Context(), uid, middleware.IdempotencyTarget(c), key, time.Now().UTC())
	if err != nil || rec == nil {
		return false
	}
	c.Header("Idempotency-Replayed", "true")
	c.Data(rec.Status, "application/json; charset=utf-8", []byte(rec.Response))
	return true
}

// respondCase writes a case and records it for replay (best effort).
func (h *Handlers) respondCase(c *gin.Context, status int, uid, key string, cs *domain.Case) {
	body := CaseResponse{Case: cs}
	if h.idem != nil && key != "" && uid != "" {
		if raw, err := json.Marshal(body); err == nil {
			if err := h.idem.Save(c.Request.Context(), uid, middleware.IdempotencyTarget(c), key, cs.ID, status, raw); err != nil {
				middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency record not saved")
			}
		}
	}
	ok(c, status, body)
}

//
// Handlers
//

// SubmitCase godoc
// @ID          submitCase
// @Summary     Submit a rescue request
// @Description Validates the request form, announces the case in the rescue channel, opens its
// @Description discussion thread and registers it as PENDING. Supports idempotent redelivery.
// @Tags        Cases
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  true  "Requester platform user id"           example(user123)
// @Param       Idempotency-Key  header  string  false "Interaction id for safe redelivery"   example(1287340081734828052)
// @Param       body             body    handlers.SubmitCaseRequest  true  "Rescue request form"
//
// @Success     201  {object}  handlers.CaseResponse         "Registered case"
// @Failure     400  {object}  handlers.InvalidFormResponse  "Invalid form"
// @Failure     401  {object}  handlers.ErrorResponse        "Missing actor"
// @Failure     409  {object}  handlers.ErrorResponse        "Duplicate case"
// @Failure     502  {object}  handlers.ErrorResponse        "Chat platform unavailable"
// @Router      /cases [post]
func (h *Handlers) SubmitCase(c *gin.Context) {
	uid := actorID(c)
	if uid == "" {
		failCase(c, services.ErrMissingActor)
		return
	}
	h.interact(c, uid, http.StatusCreated, func() (*domain.Case, bool) {
		var req SubmitCaseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
			return nil, false
		}
		cs, err := h.caseSvc.SubmitRequest(c.Request.Context(), uid, req.form())
		if err != nil {
			failCase(c, err)
			return nil, false
		}
		return cs, true
	})
}

// ListCases godoc
// @ID          listCases
// @Summary     List cases (paginated)
// @Description Returns a page of cases, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Cases
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"cases:all:42:1:20\")
// @Param       status         query   string  false "Filter by status"             Enums(PENDING, IN_PROGRESS, SUCCEEDED, FAILED)
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListCasesResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /cases [get]
func (h *Handlers) ListCases(c *gin.Context) {
	var status domain.Status
	if raw := c.Query("status"); raw != "" {
		s, ok := domain.ParseStatus(raw)
		if !ok {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown status filter")
			return
		}
		status = s
	}
	pg := utils.ParsePage(c.Query("page"), c.Query("page_size"))

	// ETag pre-check: the store revision covers every mutation.
	if h.rev != nil {
		filter := string(status)
		if filter == "" {
			filter = "all"
		}
		etag := fmt.Sprintf(`W/"cases:%s:%d:%d:%d"`, filter, h.rev.Revision(), pg.Number, pg.Size)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.caseSvc.ListPage(c.Request.Context(), status, pg.Number, pg.Size)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	ok(c, http.StatusOK, ListCasesResponse{
		Cases: items,
		Pagination: Pagination{
			Page:       pg.Number,
			PageSize:   pg.Size,
			Total:      total,
			TotalPages: pg.Pages(total),
			HasNext:    pg.HasNext(total),
		},
	})
}

// CaseStats godoc
// @ID          caseStats
// @Summary     Case counts per status
// @Tags        Cases
// @Produce     json
// @Success     200  {object} handlers.StatsResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /cases/stats [get]
func (h *Handlers) CaseStats(c *gin.Context) {
	counts, err := h.caseSvc.Stats(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	resp := StatsResponse{Counts: make(map[domain.Status]int64, 4)}
	for _, s := range []domain.Status{domain.StatusPending, domain.StatusInProgress, domain.StatusSucceeded, domain.StatusFailed} {
		resp.Counts[s] = counts[s]
		resp.Total += counts[s]
	}
	ok(c, http.StatusOK, resp)
}

// SearchCases godoc
// @ID          searchCases
// @Summary     Search cases
// @Description Ranks cases by word overlap between q and their request forms
// @Description (location, system, cause, hazards). Equal scores list newer cases first.
// @Tags        Cases
// @Produce     json
// @Param       q       query   string  true  "Free-text query"     example(yela om-3)
// @Param       status  query   string  false "Filter by status"    Enums(PENDING, IN_PROGRESS, SUCCEEDED, FAILED)
// @Param       limit   query   int     false "Max hits"            minimum(1) maximum(50) default(5)
// @Success     200  {object} handlers.SearchCasesResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /cases/search [get]
func (h *Handlers) SearchCases(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "q is required")
		return
	}
	var status domain.Status
	if raw := c.Query("status"); raw != "" {
		s, ok := domain.ParseStatus(raw)
		if !ok {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown status filter")
			return
		}
		status = s
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	hits, err := h.caseSvc.Search(c.Request.Context(), q, status, limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, SearchCasesResponse{Query: q, Hits: hits})
}

// GetCase godoc
// @ID          getCase
// @Summary     Get a case
// @Tags        Cases
// @Produce     json
// @Param       id   path    string  true  "Case id (announcement reference)"
// @Success     200  {object} handlers.CaseResponse
// @Failure     404  {object} handlers.ErrorResponse "Case not found"
// @Router      /cases/{id} [get]
func (h *Handlers) GetCase(c *gin.Context) {
	cs, err := h.caseSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failCase(c, err)
		return
	}
	ok(c, http.StatusOK, CaseResponse{Case: cs})
}

// ClaimCase godoc
// @ID          claimCase
// @Summary     Take a case
// @Description Assigns the case to the acting responder. The first claim wins; repeating a claim
// @Description as the current claimer succeeds again and re-sends the notifications.
// @Tags        Cases
// @Produce     json
//
// @Param       X-User-ID        header  string  true  "Responder platform user id"          example(medic42)
// @Param       Idempotency-Key  header  string  false "Interaction id for safe redelivery"
// @Param       id               path    string  true  "Case id (announcement reference)"
//
// @Success     200  {object}  handlers.CaseResponse
// @Failure     401  {object}  handlers.ErrorResponse "Missing actor"
// @Failure     404  {object}  handlers.ErrorResponse "Case not found"
// @Failure     409  {object}  handlers.ErrorResponse "Already claimed or closed"
// @Router      /cases/{id}/claim [post]
func (h *Handlers) ClaimCase(c *gin.Context) {
	uid := actorID(c)
	if uid == "" {
		failCase(c, services.ErrMissingActor)
		return
	}
	h.interact(c, uid, http.StatusOK, func() (*domain.Case, bool) {
		cs, err := h.caseSvc.Claim(c.Request.Context(), c.Param("id"), uid)
		if err != nil {
			failCase(c, err)
			return nil, false
		}
		return cs, true
	})
}

// ResolveCase godoc
// @ID          resolveCase
// @Summary     Close a case
// @Description Resolves a claimed case as SUCCEEDED or FAILED. Only the claimer or a holder of a
// @Description privileged role (X-User-Roles) may close it. Controls are disabled afterwards.
// @Tags        Cases
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  true  "Acting platform user id"             example(medic42)
// @Param       X-User-Roles     header  string  false "Comma-separated roles of the actor"  example(medic,moderator)
// @Param       Idempotency-Key  header  string  false "Interaction id for safe redelivery"
// @Param       id               path    string  true  "Case id (announcement reference)"
// @Param       body             body    handlers.ResolveCaseRequest  true  "Outcome"
//
// @Success     200  {object}  handlers.CaseResponse
// @Failure     400  {object}  handlers.ErrorResponse "Invalid outcome"
// @Failure     401  {object}  handlers.ErrorResponse "Missing actor"
// @Failure     403  {object}  handlers.ErrorResponse "Not the claimer"
// @Failure     404  {object}  handlers.ErrorResponse "Case not found"
// @Failure     409  {object}  handlers.ErrorResponse "Not claimed or already closed"
// @Router      /cases/{id}/resolve [post]
func (h *Handlers) ResolveCase(c *gin.Context) {
	uid := actorID(c)
	if uid == "" {
		failCase(c, services.ErrMissingActor)
		return
	}
	h.interact(c, uid, http.StatusOK, func() (*domain.Case, bool) {
		var req ResolveCaseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeInvalidOutcome, services.ErrInvalidOutcome.Error())
			return nil, false
		}
		// An unknown value parses to "" and is rejected by the service.
		outcome, _ := domain.ParseStatus(req.Outcome)

		cs, err := h.caseSvc.Resolve(c.Request.Context(), c.Param("id"), uid, middleware.IsPrivileged(c), outcome)
		if err != nil {
			failCase(c, err)
			return nil, false
		}
		return cs, true
	})
}
