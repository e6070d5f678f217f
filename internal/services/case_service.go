// Package services – CaseService
//
// CaseService is the case lifecycle state machine and authorization engine.
// It accepts three events (request submitted, claim attempted, resolution
// attempted) and answers each with either an updated case plus notifier
// commands, or a typed rejection (see errors.go).
//
// State machine:
//
//	PENDING → IN_PROGRESS → {SUCCEEDED, FAILED}
//
// Claims are first-writer-wins and idempotent for the writer. Resolution
// requires a prior claim and is restricted to the claimer or a privileged
// actor. All checks run inside CaseRepo.Update, whose per-case atomicity is
// the only synchronization the lifecycle needs. Notifications go out after
// the update has committed.
//
// Observability: every public method opens an OpenTelemetry span; rejections
// and transitions are counted in Prometheus (see metrics.go).
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-rescue-dispatch/internal/domain"
	"github.com/tbourn/go-rescue-dispatch/internal/repo"
	"github.com/tbourn/go-rescue-dispatch/internal/utils"
)

// CaseRepo defines the storage contract required by CaseService.
// repo.CaseStore is the production implementation.
type CaseRepo interface {
	// Create inserts a new PENDING case.
	Create(ctx context.Context, id, requesterID, threadID string, form domain.RequestForm) (*domain.Case, error)

	// Get returns a copy of a case.
	Get(ctx context.Context, id string) (*domain.Case, error)

	// Update atomically applies mutate to a case.
	Update(ctx context.Context, id string, mutate func(*domain.Case) error) (*domain.Case, error)

	// List returns a page of cases, newest first, optionally by status.
	List(ctx context.Context, status domain.Status, offset, limit int) ([]domain.Case, error)

	// Count returns the number of cases, optionally by status.
	Count(ctx context.Context, status domain.Status) (int64, error)

	// Stats returns per-status case counts.
	Stats(ctx context.Context) (map[domain.Status]int64, error)
}

// CaseService implements the rescue case lifecycle.
type CaseService struct {
	// Repo is the authoritative case registry.
	Repo CaseRepo
	// Notifier renders lifecycle changes on the chat platform.
	Notifier Notifier
	// Logger receives notifier failures. Nil means the global zerolog logger.
	Logger *zerolog.Logger

	// MaxShortRunes caps single-line form fields.
	MaxShortRunes int
	// MaxLongRunes caps paragraph form fields.
	MaxLongRunes int

	// NewID mints a case id when the notifier returns no reference.
	NewID func() string
	// Now stamps draft cases passed to AnnounceCase.
	Now func() time.Time

	search searchCache
}

// NewCaseService constructs a CaseService with default form limits.
func NewCaseService(r CaseRepo, n Notifier) *CaseService {
	return &CaseService{
		Repo:          r,
		Notifier:      n,
		MaxShortRunes: DefaultMaxShortRunes,
		MaxLongRunes:  DefaultMaxLongRunes,
		NewID:         uuid.NewString,
		Now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *CaseService) tracer() trace.Tracer {
	return otel.Tracer("services/CaseService")
}

// SubmitRequest validates form, announces the case, opens its thread, and
// registers it as PENDING. Any identity may submit.
//
// The announcement reference becomes the case id. Failures of AnnounceCase or
// OpenThread are returned wrapped in ErrNotifier and no case is stored.
func (s *CaseService) SubmitRequest(ctx context.Context, requesterID string, form domain.RequestForm) (*domain.Case, error) {
	ctx, span := s.tracer().Start(ctx, "SubmitRequest",
		trace.WithAttributes(attribute.String("user.id", requesterID)),
	)
	defer span.End()

	requesterID = strings.TrimSpace(requesterID)
	if requesterID == "" {
		return nil, s.reject(span, "submit", ErrMissingActor)
	}
	form, err := normalizeForm(form, s.MaxShortRunes, s.MaxLongRunes)
	if err != nil {
		return nil, s.reject(span, "submit", err)
	}

	draft := domain.Case{
		RequesterID: requesterID,
		Status:      domain.StatusPending,
		Form:        form,
		CreatedAt:   s.now(),
	}
	ref, err := s.Notifier.AnnounceCase(ctx, draft, form)
	if err != nil {
		return nil, s.reject(span, "submit", fmt.Errorf("%w: announce case: %w", ErrNotifier, err))
	}
	draft.ID = strings.TrimSpace(ref)
	if draft.ID == "" {
		draft.ID = s.newID()
	}

	threadID, err := s.Notifier.OpenThread(ctx, draft)
	if err != nil {
		s.logger().Warn().Err(err).Str("case_id", draft.ID).Msg("announcement left without thread")
		return nil, s.reject(span, "submit", fmt.Errorf("%w: open thread: %w", ErrNotifier, err))
	}

	c, err := s.Repo.Create(ctx, draft.ID, requesterID, threadID, form)
	if err != nil {
		s.logger().Warn().Err(err).
			Str("case_id", draft.ID).
			Str("thread_id", threadID).
			Msg("announcement and thread left without case")
		if errors.Is(err, repo.ErrDuplicateCase) {
			err = ErrDuplicateCase
		}
		return nil, s.reject(span, "submit", err)
	}

	casesSubmitted.Inc()
	caseTransitions.WithLabelValues(string(domain.StatusPending)).Inc()
	span.SetAttributes(attribute.String("case.id", c.ID))
	return c, nil
}

// Claim assigns the case to actorID.
//
//   - unclaimed, open case: actorID becomes the claimer, status IN_PROGRESS
//   - already claimed by actorID: idempotent success, commands are re-sent
//   - claimed by someone else: ErrAlreadyClaimed
//   - terminal case: ErrCaseClosed
func (s *CaseService) Claim(ctx context.Context, caseID, actorID string) (*domain.Case, error) {
	ctx, span := s.tracer().Start(ctx, "Claim",
		trace.WithAttributes(
			attribute.String("case.id", caseID),
			attribute.String("user.id", actorID),
		),
	)
	defer span.End()

	if strings.TrimSpace(actorID) == "" {
		return nil, s.reject(span, "claim", ErrMissingActor)
	}

	var first bool
	c, err := s.Repo.Update(ctx, caseID, func(c *domain.Case) error {
		switch {
		case c.Status.IsTerminal():
			return ErrCaseClosed
		case c.ClaimerID == actorID:
			return nil
		case c.ClaimerID != "":
			return ErrAlreadyClaimed
		case !domain.CanTransition(c.Status, domain.StatusInProgress):
			return ErrCaseClosed
		}
		c.ClaimerID = actorID
		c.Status = domain.StatusInProgress
		first = true
		return nil
	})
	if err != nil {
		return nil, s.reject(span, "claim", mapRepoErr(err))
	}

	if first {
		caseTransitions.WithLabelValues(string(domain.StatusInProgress)).Inc()
	}
	span.SetAttributes(attribute.Bool("claim.first", first))

	s.dispatch(ctx, *c, claimCommands(actorID))
	return c, nil
}

// Resolve closes a claimed case with outcome (SUCCEEDED or FAILED).
//
// Checks, in order: the outcome is valid (ErrInvalidOutcome), the case is
// claimed (ErrNotClaimed, regardless of privilege), the case is open
// (ErrCaseClosed), and the actor is the claimer or privileged
// (ErrNotAuthorized).
func (s *CaseService) Resolve(ctx context.Context, caseID, actorID string, privileged bool, outcome domain.Status) (*domain.Case, error) {
	ctx, span := s.tracer().Start(ctx, "Resolve",
		trace.WithAttributes(
			attribute.String("case.id", caseID),
			attribute.String("user.id", actorID),
			attribute.Bool("user.privileged", privileged),
			attribute.String("case.outcome", string(outcome)),
		),
	)
	defer span.End()

	if !outcome.IsOutcome() {
		return nil, s.reject(span, "resolve", ErrInvalidOutcome)
	}
	if strings.TrimSpace(actorID) == "" {
		return nil, s.reject(span, "resolve", ErrMissingActor)
	}

	c, err := s.Repo.Update(ctx, caseID, func(c *domain.Case) error {
		switch {
		case c.ClaimerID == "":
			return ErrNotClaimed
		case c.Status.IsTerminal():
			return ErrCaseClosed
		case actorID != c.ClaimerID && !privileged:
			return ErrNotAuthorized
		case !domain.CanTransition(c.Status, outcome):
			return ErrCaseClosed
		}
		c.Status = outcome
		c.ResolvedBy = actorID
		return nil
	})
	if err != nil {
		return nil, s.reject(span, "resolve", mapRepoErr(err))
	}

	caseTransitions.WithLabelValues(string(outcome)).Inc()
	s.dispatch(ctx, *c, resolveCommands(outcome, actorID))
	return c, nil
}

// Get returns a single case.
func (s *CaseService) Get(ctx context.Context, caseID string) (*domain.Case, error) {
	c, err := s.Repo.Get(ctx, caseID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	return c, nil
}

// ListPage returns a page of cases, newest first, and the total count.
// An empty status lists every case. Invalid page/pageSize fall back to
// page 1 and utils.DefaultPageSize per page.
func (s *CaseService) ListPage(ctx context.Context, status domain.Status, page, pageSize int) ([]domain.Case, int64, error) {
	pg := utils.Page{Number: max(page, 1), Size: pageSize}
	if pg.Size <= 0 {
		pg.Size = utils.DefaultPageSize
	}

	total, err := s.Repo.Count(ctx, status)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Case{}, 0, nil
	}

	items, err := s.Repo.List(ctx, status, pg.Offset(), pg.Size)
	return items, total, err
}

// Stats returns per-status case counts.
func (s *CaseService) Stats(ctx context.Context) (map[domain.Status]int64, error) {
	return s.Repo.Stats(ctx)
}

// reject counts and records a rejection on the span and returns err.
func (s *CaseService) reject(span trace.Span, op string, err error) error {
	reason := rejectionReason(err)
	caseRejections.WithLabelValues(op, reason).Inc()
	span.SetAttributes(attribute.String("rejection.reason", reason))
	if reason == "internal" || reason == "notifier" {
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// mapRepoErr translates store sentinels into service errors.
func mapRepoErr(err error) error {
	if errors.Is(err, repo.ErrCaseNotFound) {
		return ErrCaseNotFound
	}
	return err
}

func (s *CaseService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *CaseService) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}
