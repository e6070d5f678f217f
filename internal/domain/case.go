// Package domain defines the rescue case model shared by the case store, the
// lifecycle service, the notifiers, and the HTTP layer. Cases live in memory
// only; the GORM-mapped types in this package back request idempotency.
package domain

import (
	"strings"
	"time"
)

// Status is the lifecycle status of a rescue case.
type Status string

const (
	// StatusPending is the initial status of a freshly submitted case.
	StatusPending Status = "PENDING"
	// StatusInProgress means a responder has claimed the case.
	StatusInProgress Status = "IN_PROGRESS"
	// StatusSucceeded is a terminal status: the rescue succeeded.
	StatusSucceeded Status = "SUCCEEDED"
	// StatusFailed is a terminal status: the rescue failed.
	StatusFailed Status = "FAILED"
)

// transitions lists every permitted status change. Anything absent is illegal.
var transitions = map[Status]map[Status]struct{}{
	StatusPending: {
		StatusInProgress: {},
	},
	StatusInProgress: {
		StatusSucceeded: {},
		StatusFailed:    {},
	},
	StatusSucceeded: {},
	StatusFailed:    {},
}

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether s accepts no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// IsOutcome reports whether s may be used as a resolution outcome.
func (s Status) IsOutcome() bool { return s.IsTerminal() }

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	next, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// ParseStatus parses a status name case-insensitively. Hyphens and spaces
// are accepted in place of underscores ("in progress", "in-progress").
func ParseStatus(v string) (Status, bool) {
	v = strings.ToUpper(strings.TrimSpace(v))
	v = strings.NewReplacer("-", "_", " ", "_").Replace(v)
	s := Status(v)
	if !s.Valid() {
		return "", false
	}
	return s, true
}

// RequestForm is the free-text ficha a requester fills in when asking for a
// rescue. All fields are required.
type RequestForm struct {
	Cause         string `json:"cause"          example:"Ship destroyed by pirates"`
	GalaxySystem  string `json:"galaxy_system"  example:"Stanton / Crusader"`
	Location      string `json:"location"       example:"Near Yela asteroid belt, OM-3"`
	TimeRemaining string `json:"time_remaining" example:"25 minutes"`
	Hazards       string `json:"hazards"        example:"Two hostile fighters nearby"`
}

// Case is one rescue request and its lifecycle state.
//
// ID maps 1:1 to the public announcement of the request. RequesterID and
// ThreadID are fixed at creation. ClaimerID is set exactly once, by the first
// successful claim, and is non-empty if and only if Status is not PENDING.
type Case struct {
	ID          string      `json:"id"                    example:"1287340081734828052"`
	RequesterID string      `json:"requester_id"          example:"user123"`
	ThreadID    string      `json:"thread_id"             example:"1287340087651123200"`
	ClaimerID   string      `json:"claimer_id,omitempty"  example:"medic42"`
	ResolvedBy  string      `json:"resolved_by,omitempty" example:"medic42"`
	Status      Status      `json:"status"                example:"IN_PROGRESS"`
	Form        RequestForm `json:"form"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// IsClaimed reports whether a responder holds the case.
func (c Case) IsClaimed() bool { return c.ClaimerID != "" }

// IsTerminal reports whether the case has been resolved.
func (c Case) IsTerminal() bool { return c.Status.IsTerminal() }

// RenderKind selects how an announcement is re-rendered after a transition.
type RenderKind string

const (
	RenderClaimed  RenderKind = "CLAIMED"
	RenderResolved RenderKind = "RESOLVED"
)

// RenderState tells a notifier how to redraw a case announcement. Once a case
// is resolved, ControlsDisabled is always true.
type RenderState struct {
	Kind             RenderKind `json:"kind"`
	Outcome          Status     `json:"outcome,omitempty"`
	ControlsDisabled bool       `json:"controls_disabled"`
}

// Claimed is the render state after a successful claim.
func Claimed() RenderState {
	return RenderState{Kind: RenderClaimed}
}

// Resolved is the render state for a resolved case with the given outcome.
func Resolved(outcome Status) RenderState {
	return RenderState{Kind: RenderResolved, Outcome: outcome, ControlsDisabled: true}
}
