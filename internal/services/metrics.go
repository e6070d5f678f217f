// Package services – lifecycle metrics
//
// Prometheus collectors for the case lifecycle. Label values are drawn from
// fixed sets (statuses, operation names, rejection reasons, command kinds) to
// keep cardinality bounded.
package services

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	casesSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rescue_cases_submitted_total",
			Help: "Total number of rescue cases created.",
		},
	)

	// caseTransitions counts committed status changes by target status.
	caseTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rescue_case_transitions_total",
			Help: "Total number of committed case status transitions.",
		},
		[]string{"to"},
	)

	caseRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rescue_case_rejections_total",
			Help: "Total number of rejected lifecycle operations.",
		},
		[]string{"op", "reason"},
	)

	notifierFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rescue_notifier_failures_total",
			Help: "Total number of failed notifier commands.",
		},
		[]string{"command"},
	)
)

func init() {
	prometheus.MustRegister(casesSubmitted, caseTransitions, caseRejections, notifierFailures)
}

// rejectionReason maps a lifecycle error to a stable metric label.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrCaseNotFound):
		return "not_found"
	case errors.Is(err, ErrDuplicateCase):
		return "duplicate_case"
	case errors.Is(err, ErrInvalidForm):
		return "invalid_form"
	case errors.Is(err, ErrMissingActor):
		return "missing_actor"
	case errors.Is(err, ErrAlreadyClaimed):
		return "already_claimed"
	case errors.Is(err, ErrNotClaimed):
		return "not_claimed"
	case errors.Is(err, ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, ErrCaseClosed):
		return "case_closed"
	case errors.Is(err, ErrInvalidOutcome):
		return "invalid_outcome"
	case errors.Is(err, ErrNotifier):
		return "notifier"
	default:
		return "internal"
	}
}
