// Package services – notifier commands
//
// Transitions produce a list of typed commands for the Notifier. The list is
// built only after the store has committed the new state and is dispatched in
// order. Dispatch is best-effort: a failing command is logged and counted but
// never changes the outcome of the lifecycle call, and later commands still
// run.
package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-rescue-dispatch/internal/domain"
)

// Notifier renders case state on the chat platform. Implementations own any
// timeout or retry policy for their calls.
type Notifier interface {
	// AnnounceCase publishes a new request and returns a stable reference
	// that becomes the case id. An empty reference lets the service mint one.
	AnnounceCase(ctx context.Context, c domain.Case, form domain.RequestForm) (string, error)
	// OpenThread creates the coordination thread for the case and returns its id.
	OpenThread(ctx context.Context, c domain.Case) (string, error)
	// UpdateAnnouncement redraws the announcement. Interactive controls must
	// be disabled when state.ControlsDisabled is set.
	UpdateAnnouncement(ctx context.Context, c domain.Case, state domain.RenderState) error
	// NotifyThread posts a message into the case thread.
	NotifyThread(ctx context.Context, c domain.Case, message string) error
	// ArchiveThread closes the case thread.
	ArchiveThread(ctx context.Context, c domain.Case) error
}

// CommandKind names a notifier operation emitted after a transition.
type CommandKind string

const (
	CmdUpdateAnnouncement CommandKind = "update_announcement"
	CmdNotifyThread       CommandKind = "notify_thread"
	CmdArchiveThread      CommandKind = "archive_thread"
)

// Command is one notifier call. Render is set for CmdUpdateAnnouncement and
// Message for CmdNotifyThread.
type Command struct {
	Kind    CommandKind
	Render  domain.RenderState
	Message string
}

// Mention formats a user reference the way chat threads display it.
func Mention(userID string) string { return "<@" + userID + ">" }

// claimCommands are emitted for a first claim and for every repeated claim by
// the same responder.
func claimCommands(actorID string) []Command {
	return []Command{
		{Kind: CmdUpdateAnnouncement, Render: domain.Claimed()},
		{Kind: CmdNotifyThread, Message: fmt.Sprintf("🚑 %s has taken the case.", Mention(actorID))},
	}
}

// resolveCommands render the final outcome, announce the closure in the
// thread, and archive it.
func resolveCommands(outcome domain.Status, actorID string) []Command {
	return []Command{
		{Kind: CmdUpdateAnnouncement, Render: domain.Resolved(outcome)},
		{Kind: CmdNotifyThread, Message: fmt.Sprintf("Case closed: **%s** by %s", outcome, Mention(actorID))},
		{Kind: CmdArchiveThread},
	}
}

// dispatch runs cmds against the notifier in order.
func (s *CaseService) dispatch(ctx context.Context, c domain.Case, cmds []Command) {
	for _, cmd := range cmds {
		var err error
		switch cmd.Kind {
		case CmdUpdateAnnouncement:
			err = s.Notifier.UpdateAnnouncement(ctx, c, cmd.Render)
		case CmdNotifyThread:
			err = s.Notifier.NotifyThread(ctx, c, cmd.Message)
		case CmdArchiveThread:
			err = s.Notifier.ArchiveThread(ctx, c)
		default:
			err = fmt.Errorf("unknown command %q", cmd.Kind)
		}
		if err != nil {
			notifierFailures.WithLabelValues(string(cmd.Kind)).Inc()
			s.logger().Warn().
				Err(err).
				Str("case_id", c.ID).
				Str("command", string(cmd.Kind)).
				Msg("notifier command failed")
		}
	}
}

func (s *CaseService) logger() *zerolog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return &log.Logger
}
