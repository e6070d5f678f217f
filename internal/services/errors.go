// Package services defines the business logic of the rescue dispatch service.
// This file centralizes the service-level error values returned by the case
// lifecycle so that callers can branch on them with errors.Is.
//
// Every error here is a recoverable, caller-facing rejection. None of them is
// returned after a state change: a rejected call leaves the store untouched.
// Translation into user-facing messages or HTTP status codes happens in the
// handler layer.
package services

import "errors"

// Lookup and creation errors.
var (
	// ErrCaseNotFound indicates that no case exists for the given id.
	ErrCaseNotFound = errors.New("case not found")

	// ErrDuplicateCase is returned when a new case would reuse an existing id.
	ErrDuplicateCase = errors.New("case already exists")

	// ErrInvalidForm is returned when a submitted request form has missing or
	// oversized fields. The returned error wraps it with field details.
	ErrInvalidForm = errors.New("invalid request form")

	// ErrMissingActor is returned when an operation carries no actor identity.
	ErrMissingActor = errors.New("actor identity is required")
)

// Lifecycle rejections.
var (
	// ErrAlreadyClaimed is returned when a different responder holds the case.
	ErrAlreadyClaimed = errors.New("case already claimed by another responder")

	// ErrNotClaimed is returned when resolving a case nobody has claimed yet.
	ErrNotClaimed = errors.New("case has not been claimed")

	// ErrNotAuthorized is returned when an actor who is neither the claimer
	// nor privileged tries to resolve a case.
	ErrNotAuthorized = errors.New("only the claimer or a moderator may close the case")

	// ErrCaseClosed is returned for any lifecycle event on a terminal case.
	ErrCaseClosed = errors.New("case is closed")

	// ErrInvalidOutcome is returned when a resolution outcome is not
	// SUCCEEDED or FAILED.
	ErrInvalidOutcome = errors.New("outcome must be SUCCEEDED or FAILED")
)

// ErrNotifier wraps failures of the notifier calls whose results the
// lifecycle needs (announcing a case and opening its thread).
var ErrNotifier = errors.New("notifier failed")
